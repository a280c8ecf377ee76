// Copyright 2025 The goplace Authors. SPDX-License-Identifier: Apache-2.0

// Package routebase implements component I of spec.md §4.I: routability-
// driven cell bloating from a global router's tile congestion report,
// grounded on original_source/src/gpl/src/routeBase.cpp.
package routebase

import (
	"math"
	"sort"

	"github.com/samber/lo"
	"gonum.org/v1/gonum/stat"

	"github.com/ajroetker/goplace/geometry"
	"github.com/ajroetker/goplace/nesterovbase"
	"github.com/ajroetker/goplace/netlist"
)

// Options configures the updater (spec.md §4.I defaults, ported from
// original_source's RouteBaseVars).
type Options struct {
	InflationRatioCoef float64 // default 2.5
	MaxInflationRatio  float64 // default 2.5
	MaxDensity         float64 // default 0.90
	TargetRC           float64 // default 1.25
	IgnoreEdgeRatio    float64 // default 0.8
	MinInflationRatio  float64 // default 1.01

	// RcK1..RcK4 weight the top-0.5%/1%/2%/5% congested-edge averages.
	RcK1, RcK2, RcK3, RcK4 float64

	// MinRcViolatedLimit reverts after this many consecutive calls
	// without an RC improvement (default 3).
	MinRcViolatedLimit int

	// OverflowIterations bounds the router's own overflow-resolution
	// iterations for the allow-congestion probe pass (default 1).
	OverflowIterations int
}

// DefaultOptions returns spec.md §4.I's defaults: only the 0.5% and 1%
// congestion percentiles count toward RC (rcK3=rcK4=0), matching
// original_source's shipped RouteBaseVars.
func DefaultOptions() Options {
	return Options{
		InflationRatioCoef: 2.5, MaxInflationRatio: 2.5,
		MaxDensity: 0.90, TargetRC: 1.25, IgnoreEdgeRatio: 0.8,
		MinInflationRatio: 1.01,
		RcK1:              1.0, RcK2: 1.0, RcK3: 0.0, RcK4: 0.0,
		MinRcViolatedLimit: 3, OverflowIterations: 1,
	}
}

type cellSize struct{ dx, dy int64 }

// Updater drives spec.md §4.I's tile-congestion bloat pass against the
// shared G-graph, one global-router probe at a time.
type Updater struct {
	common  *nesterovbase.NesterovBaseCommon
	regions []*nesterovbase.NesterovBase // every region; target density is propagated to all
	primary *nesterovbase.NesterovBase   // whitespace/bin-size reference, analogous to original_source's nbVec_[0]

	handles    []any
	writer     netlist.Writer
	router     netlist.Router
	padLeftDBU int64

	opts           Options
	whiteSpaceArea float64

	minRC              float64
	minRcViolatedCnt   int
	minRcTargetDensity float64
	minRcCellSize      map[int]cellSize
}

// New builds an Updater. whiteSpaceArea is the core area available to
// movable cells (core area minus fixed-instance area), the denominator of
// spec.md §4.I's target-density recomputation.
func New(common *nesterovbase.NesterovBaseCommon, regions []*nesterovbase.NesterovBase, handles []any, padLeftDBU int64, writer netlist.Writer, router netlist.Router, whiteSpaceArea float64, opts Options) *Updater {
	var primary *nesterovbase.NesterovBase
	if len(regions) > 0 {
		primary = regions[0]
	}
	return &Updater{
		common: common, regions: regions, primary: primary,
		handles: handles, writer: writer, router: router, padLeftDBU: padLeftDBU,
		opts: opts, whiteSpaceArea: whiteSpaceArea,
		minRC: math.Inf(1),
	}
}

// Bloat implements nesterovplace.Router: spec.md §4.I's routability pass.
// It writes the current placement, probes the global router, computes the
// RC congestion metric, and either bloats congested std cells (requesting
// no revert) or — once maxDensity is exceeded or RC hasn't improved in
// MinRcViolatedLimit consecutive calls — restores the min-RC cell sizes
// and asks the driver to restore its own snapshot.
func (u *Updater) Bloat(overflow float64) (revert bool, err error) {
	if u.primary == nil || u.router == nil {
		return false, nil
	}

	u.common.UpdateDbGCells(u.handles, u.padLeftDBU, u.writer)

	result, err := u.router.Route(true, u.opts.OverflowIterations)
	if err != nil {
		return false, err
	}

	tileMax, horRatios, verRatios := u.tileRatios(result)
	rc := weightedRC(horRatios, verRatios, u.opts)
	if rc < u.opts.TargetRC {
		return false, nil
	}

	if rc < u.minRC {
		u.minRC = rc
		u.minRcTargetDensity = u.primary.Bins.TargetDensity
		u.minRcViolatedCnt = 0
		u.snapshotCellSizes()
	} else {
		u.minRcViolatedCnt++
	}

	u.bloatStdCells(result, tileMax)
	newDensity := u.currentCellsArea() / u.whiteSpaceArea

	if newDensity > u.opts.MaxDensity || u.minRcViolatedCnt >= u.opts.MinRcViolatedLimit {
		u.revertCellSizes()
		for _, r := range u.regions {
			r.Bins.SetTargetDensity(u.minRcTargetDensity)
		}
		return true, nil
	}

	for _, r := range u.regions {
		r.Bins.SetTargetDensity(newDensity)
	}
	return false, nil
}

// usageCapacityRatio implements original_source's getUsageCapacityRatio:
// -Inf ("hidden") when capacity is zero or the tile's blockage ratio is at
// or above ignoreEdgeRatio, else usage/capacity.
func usageCapacityRatio(t netlist.TileUsage, ignoreEdgeRatio float64) float64 {
	if t.Capacity == 0 {
		return math.Inf(-1)
	}
	if t.Blockage/t.Capacity >= ignoreEdgeRatio {
		return math.Inf(-1)
	}
	return t.Usage / t.Capacity
}

// tileRatios computes, for every tile, the max ratio across routing
// layers (spec.md §4.I), after folding in the appropriate neighbour edge
// per layer direction; it also returns the flattened per-layer ratio
// lists split by axis, used for the RC metric.
func (u *Updater) tileRatios(res netlist.RouteResult) (tileMax [][]float64, horRatios, verRatios []float64) {
	tileMax = make([][]float64, res.TileCntY)
	for y := range tileMax {
		tileMax[y] = make([]float64, res.TileCntX)
		for x := range tileMax[y] {
			tileMax[y][x] = math.Inf(-1)
		}
	}

	byLayer := map[int][]netlist.TileUsage{}
	for _, t := range res.Tiles {
		byLayer[t.Layer] = append(byLayer[t.Layer], t)
	}

	for _, tiles := range byLayer {
		if len(tiles) == 0 {
			continue
		}
		dir := tiles[0].Direction
		grid := make([][]float64, res.TileCntY)
		for y := range grid {
			grid[y] = make([]float64, res.TileCntX)
			for x := range grid[y] {
				grid[y][x] = math.Inf(-1)
			}
		}
		for _, t := range tiles {
			if t.Y < res.TileCntY && t.X < res.TileCntX {
				grid[t.Y][t.X] = usageCapacityRatio(t, u.opts.IgnoreEdgeRatio)
			}
		}

		var raw []float64
		for y := 0; y < res.TileCntY; y++ {
			for x := 0; x < res.TileCntX; x++ {
				ratio := grid[y][x]
				if dir == netlist.Horizontal && x >= 1 {
					ratio = math.Max(ratio, grid[y][x-1])
				}
				if dir == netlist.Vertical && y >= 1 {
					ratio = math.Max(ratio, grid[y-1][x])
				}
				if !math.IsInf(ratio, -1) {
					ratio = math.Max(ratio, 0)
				}
				raw = append(raw, ratio)
				if ratio > tileMax[y][x] {
					tileMax[y][x] = ratio
				}
			}
		}

		visible := lo.Filter(raw, func(v float64, _ int) bool { return !math.IsInf(v, -1) })
		if dir == netlist.Horizontal {
			horRatios = append(horRatios, visible...)
		} else {
			verRatios = append(verRatios, visible...)
		}
	}
	return tileMax, horRatios, verRatios
}

// topPercentAvg averages the top pct fraction (by count, rounded up) of
// values, matching original_source's ceil(pct*n)-based percentile window.
func topPercentAvg(values []float64, pct float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))
	n := int(math.Ceil(pct * float64(len(sorted))))
	if n < 1 {
		n = 1
	}
	if n > len(sorted) {
		n = len(sorted)
	}
	return stat.Mean(sorted[:n], nil)
}

// weightedRC implements original_source's getRC(): a weighted average of
// the top-0.5/1/2/5% congested edges on each axis, rcK-weighted and taking
// the max of the horizontal/vertical figure at each percentile.
func weightedRC(horRatios, verRatios []float64, opts Options) float64 {
	denom := opts.RcK1 + opts.RcK2 + opts.RcK3 + opts.RcK4
	if denom == 0 {
		return 0
	}
	p005 := math.Max(topPercentAvg(horRatios, 0.005), topPercentAvg(verRatios, 0.005))
	p010 := math.Max(topPercentAvg(horRatios, 0.01), topPercentAvg(verRatios, 0.01))
	p020 := math.Max(topPercentAvg(horRatios, 0.02), topPercentAvg(verRatios, 0.02))
	p050 := math.Max(topPercentAvg(horRatios, 0.05), topPercentAvg(verRatios, 0.05))
	return (opts.RcK1*p005 + opts.RcK2*p010 + opts.RcK3*p020 + opts.RcK4*p050) / denom
}

// inflationRatio implements spec.md §4.I: inflationRatio =
// min(maxInflationRatio, ratio^inflationRatioCoef) once ratio clears
// minInflationRatio, else no inflation (1.0).
func (u *Updater) inflationRatio(ratio float64) float64 {
	if ratio < u.opts.MinInflationRatio {
		return 1
	}
	return math.Min(u.opts.MaxInflationRatio, math.Pow(ratio, u.opts.InflationRatioCoef))
}

// bloatStdCells scales every std-cell GCell's size by √inflationRatio of
// the tile it occupies, per spec.md §4.I.
func (u *Updater) bloatStdCells(res netlist.RouteResult, tileMax [][]float64) {
	if res.TileDx <= 0 || res.TileDy <= 0 {
		return
	}
	originX, originY := u.primary.Bins.Core.Lx, u.primary.Bins.Core.Ly
	binX, binY := u.primary.Bins.BinSizeX, u.primary.Bins.BinSizeY

	for i := range u.common.GCells {
		gc := &u.common.GCells[i]
		if gc.IsMacro || gc.IsFiller || gc.InstIdx == geometry.NoIndex {
			continue
		}
		ix := int((int64(u.common.PosX[i]) - originX) / res.TileDx)
		iy := int((int64(u.common.PosY[i]) - originY) / res.TileDy)
		ix = clampInt(ix, 0, res.TileCntX-1)
		iy = clampInt(iy, 0, res.TileCntY-1)
		if iy < 0 || ix < 0 || iy >= len(tileMax) || ix >= len(tileMax[iy]) {
			continue
		}

		ratio := u.inflationRatio(tileMax[iy][ix])
		if ratio <= 1 {
			continue
		}
		gc.Bloat(ratio, binX, binY)
	}
}

func clampInt(v, low, high int) int {
	if high < low {
		return low
	}
	if v < low {
		return low
	}
	if v > high {
		return high
	}
	return v
}

// currentCellsArea sums the area of every unlocked GCell (std cells,
// macros, and fillers), the analogue of original_source's
// nesterovInstsArea()+totalFillerArea().
func (u *Updater) currentCellsArea() float64 {
	var area float64
	for i := range u.common.GCells {
		gc := &u.common.GCells[i]
		if gc.Locked {
			continue
		}
		area += float64(gc.Dx) * float64(gc.Dy)
	}
	return area
}

func (u *Updater) snapshotCellSizes() {
	u.minRcCellSize = make(map[int]cellSize, len(u.common.GCells))
	for i := range u.common.GCells {
		gc := &u.common.GCells[i]
		if gc.IsMacro || gc.IsFiller || gc.InstIdx == geometry.NoIndex {
			continue
		}
		u.minRcCellSize[i] = cellSize{gc.Dx, gc.Dy}
	}
}

func (u *Updater) revertCellSizes() {
	binX, binY := u.primary.Bins.BinSizeX, u.primary.Bins.BinSizeY
	for i, sz := range u.minRcCellSize {
		u.common.GCells[i].SetSize(sz.dx, sz.dy, binX, binY)
	}
}
