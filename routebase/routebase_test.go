// Copyright 2025 The goplace Authors. SPDX-License-Identifier: Apache-2.0

package routebase

import (
	"errors"
	"math"
	"testing"

	"github.com/ajroetker/goplace/bingrid"
	"github.com/ajroetker/goplace/geometry"
	"github.com/ajroetker/goplace/nesterovbase"
	"github.com/ajroetker/goplace/netlist"
)

// fakeWriter discards writes; routebase only needs a Writer to exist.
type fakeWriter struct{ calls int }

func (w *fakeWriter) SetLocation(handle any, lx, ly int64, status netlist.PlacementStatus) { w.calls++ }
func (w *fakeWriter) SetLocked(handle any, locked bool)                                   {}

// fakeRouter reports one congested tile at (0,0) on a single horizontal
// layer, with congestion high enough to clear targetRC by default.
type fakeRouter struct {
	result    netlist.RouteResult
	err       error
	routeCalls int
}

func (r *fakeRouter) Route(allowCongestion bool, overflowIterations int) (netlist.RouteResult, error) {
	r.routeCalls++
	return r.result, r.err
}

func congestedResult() netlist.RouteResult {
	return netlist.RouteResult{
		TileDx: 1000, TileDy: 1000, TileCntX: 2, TileCntY: 2,
		Tiles: []netlist.TileUsage{
			{Layer: 1, Direction: netlist.Horizontal, X: 0, Y: 0, Capacity: 10, Usage: 20, Blockage: 0},
			{Layer: 1, Direction: netlist.Horizontal, X: 1, Y: 0, Capacity: 10, Usage: 1, Blockage: 0},
			{Layer: 1, Direction: netlist.Horizontal, X: 0, Y: 1, Capacity: 10, Usage: 1, Blockage: 0},
			{Layer: 1, Direction: netlist.Horizontal, X: 1, Y: 1, Capacity: 10, Usage: 1, Blockage: 0},
		},
	}
}

func uncongestedResult() netlist.RouteResult {
	return netlist.RouteResult{
		TileDx: 1000, TileDy: 1000, TileCntX: 2, TileCntY: 2,
		Tiles: []netlist.TileUsage{
			{Layer: 1, Direction: netlist.Horizontal, X: 0, Y: 0, Capacity: 10, Usage: 1, Blockage: 0},
			{Layer: 1, Direction: netlist.Horizontal, X: 1, Y: 0, Capacity: 10, Usage: 1, Blockage: 0},
			{Layer: 1, Direction: netlist.Horizontal, X: 0, Y: 1, Capacity: 10, Usage: 1, Blockage: 0},
			{Layer: 1, Direction: netlist.Horizontal, X: 1, Y: 1, Capacity: 10, Usage: 1, Blockage: 0},
		},
	}
}

// oneStdCellSetup builds a minimal common graph/region with one std-cell
// GCell at the congested tile's center.
func oneStdCellSetup() (*nesterovbase.NesterovBaseCommon, *nesterovbase.NesterovBase) {
	common := &nesterovbase.NesterovBaseCommon{
		GCells: []nesterovbase.GCell{{InstIdx: 0, Dx: 400, Dy: 400}},
		PosX:   []float64{500},
		PosY:   []float64{500},
	}
	core := geometry.Rect{Lx: 0, Ly: 0, Ux: 2000, Uy: 2000}
	bins := bingrid.New(core, 4, 4, 160000, 0.7)
	region := nesterovbase.NewNesterovBase(common, bins, []int{0})
	return common, region
}

func TestBloatNoOpBelowTargetRC(t *testing.T) {
	common, region := oneStdCellSetup()
	router := &fakeRouter{result: uncongestedResult()}
	writer := &fakeWriter{}
	u := New(common, []*nesterovbase.NesterovBase{region}, []any{"h0"}, 0, writer, router, 1_000_000, DefaultOptions())

	revert, err := u.Bloat(0.3)
	if err != nil {
		t.Fatalf("Bloat() error = %v", err)
	}
	if revert {
		t.Fatalf("Bloat() revert = true, want false (RC below target)")
	}
	if common.GCells[0].Dx != 400 || common.GCells[0].Dy != 400 {
		t.Errorf("GCell size changed on a no-op pass: %+v", common.GCells[0])
	}
}

func TestBloatInflatesCongestedStdCell(t *testing.T) {
	common, region := oneStdCellSetup()
	router := &fakeRouter{result: congestedResult()}
	writer := &fakeWriter{}
	u := New(common, []*nesterovbase.NesterovBase{region}, []any{"h0"}, 0, writer, router, 1_000_000, DefaultOptions())

	revert, err := u.Bloat(0.3)
	if err != nil {
		t.Fatalf("Bloat() error = %v", err)
	}
	if revert {
		t.Fatalf("Bloat() revert = true on first congested call, want false")
	}
	if common.GCells[0].Dx <= 400 {
		t.Errorf("GCell.Dx = %d, want > 400 after bloat", common.GCells[0].Dx)
	}
	if writer.calls != 1 {
		t.Errorf("UpdateDbGCells wrote %d locations, want 1", writer.calls)
	}
	if router.routeCalls != 1 {
		t.Errorf("Route called %d times, want 1", router.routeCalls)
	}
}

func TestBloatRevertsAfterMinRcViolatedLimit(t *testing.T) {
	common, region := oneStdCellSetup()
	router := &fakeRouter{result: congestedResult()}
	writer := &fakeWriter{}
	opts := DefaultOptions()
	opts.MinRcViolatedLimit = 3
	u := New(common, []*nesterovbase.NesterovBase{region}, []any{"h0"}, 0, writer, router, 100_000_000, opts)

	origDx, origDy := common.GCells[0].Dx, common.GCells[0].Dy

	// First call establishes minRC (no violation). The next three repeat
	// the same RC (not an improvement) and should trip the revert.
	if _, err := u.Bloat(0.3); err != nil {
		t.Fatalf("Bloat() call 1 error = %v", err)
	}
	var revert bool
	var err error
	for i := 0; i < opts.MinRcViolatedLimit; i++ {
		revert, err = u.Bloat(0.3)
		if err != nil {
			t.Fatalf("Bloat() call %d error = %v", i+2, err)
		}
	}
	if !revert {
		t.Fatalf("Bloat() revert = false after %d violated calls, want true", opts.MinRcViolatedLimit)
	}
	if common.GCells[0].Dx != origDx || common.GCells[0].Dy != origDy {
		t.Errorf("GCell size = (%d,%d) after revert, want original (%d,%d)",
			common.GCells[0].Dx, common.GCells[0].Dy, origDx, origDy)
	}
}

func TestBloatRevertsWhenTargetDensityExceedsMax(t *testing.T) {
	common, region := oneStdCellSetup()
	router := &fakeRouter{result: congestedResult()}
	writer := &fakeWriter{}
	opts := DefaultOptions()
	// A tiny whitespace area forces the recomputed target density above
	// maxDensity on the very first bloat.
	u := New(common, []*nesterovbase.NesterovBase{region}, []any{"h0"}, 0, writer, router, 1000, opts)

	revert, err := u.Bloat(0.3)
	if err != nil {
		t.Fatalf("Bloat() error = %v", err)
	}
	if !revert {
		t.Fatalf("Bloat() revert = false, want true (density exceeds maxDensity)")
	}
}

func TestBloatPropagatesRouterError(t *testing.T) {
	common, region := oneStdCellSetup()
	wantErr := errors.New("router unavailable")
	router := &fakeRouter{err: wantErr}
	writer := &fakeWriter{}
	u := New(common, []*nesterovbase.NesterovBase{region}, []any{"h0"}, 0, writer, router, 1_000_000, DefaultOptions())

	_, err := u.Bloat(0.3)
	if !errors.Is(err, wantErr) {
		t.Fatalf("Bloat() error = %v, want %v", err, wantErr)
	}
}

func TestUsageCapacityRatioHidesHighBlockageTile(t *testing.T) {
	t.Parallel()
	ratio := usageCapacityRatio(netlist.TileUsage{Capacity: 10, Usage: 5, Blockage: 9}, 0.8)
	if !math.IsInf(ratio, -1) {
		t.Errorf("usageCapacityRatio() = %v, want -Inf for a high-blockage tile", ratio)
	}
}

func TestTopPercentAvgRoundsCountUp(t *testing.T) {
	t.Parallel()
	values := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	// top 5% of 10 values -> ceil(0.5)=1 -> just the max.
	got := topPercentAvg(values, 0.05)
	if got != 10 {
		t.Errorf("topPercentAvg(5%%) = %v, want 10", got)
	}
	// top 20% of 10 -> 2 values: {10, 9} averaged.
	got = topPercentAvg(values, 0.2)
	if math.Abs(got-9.5) > 1e-9 {
		t.Errorf("topPercentAvg(20%%) = %v, want 9.5", got)
	}
}
