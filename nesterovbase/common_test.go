// Copyright 2025 The goplace Authors. SPDX-License-Identifier: Apache-2.0

package nesterovbase

import (
	"math"
	"testing"

	"github.com/ajroetker/goplace/geometry"
	"github.com/ajroetker/goplace/netlist"
	"github.com/ajroetker/goplace/placerbase"
)

type fakeReader struct {
	die       geometry.Die
	instances []netlist.InstanceView
	nets      []netlist.NetView
	pins      []netlist.PinView
	rows      []netlist.RowView
}

func (f *fakeReader) Die() (geometry.Die, bool)         { return f.die, true }
func (f *fakeReader) Instances() []netlist.InstanceView { return f.instances }
func (f *fakeReader) Nets() []netlist.NetView           { return f.nets }
func (f *fakeReader) Pins() []netlist.PinView           { return f.pins }
func (f *fakeReader) Rows() []netlist.RowView           { return f.rows }
func (f *fakeReader) Blockages() []netlist.BlockageView { return nil }
func (f *fakeReader) Regions() []netlist.RegionView     { return nil }

func twoCellNetReader() *fakeReader {
	die := geometry.Die{Outer: geometry.Rect{Lx: 0, Ly: 0, Ux: 1000, Uy: 1000}, Core: geometry.Rect{Lx: 0, Ly: 0, Ux: 1000, Uy: 1000}}
	master := geometry.Rect{Lx: 0, Ly: 0, Ux: 20, Uy: 20}
	return &fakeReader{
		die:  die,
		rows: []netlist.RowView{{OriginX: 0, OriginY: 0, SiteWidth: 10, SiteHeight: 20, NumSites: 100}},
		instances: []netlist.InstanceView{
			{Handle: "a", Lx: 100, Ly: 100, Ux: 120, Uy: 120, Status: netlist.StatusUnplaced},
			{Handle: "b", Lx: 500, Ly: 100, Ux: 520, Uy: 120, Status: netlist.StatusUnplaced},
		},
		nets: []netlist.NetView{{Handle: "n1", Signal: geometry.SignalSignal}},
		pins: []netlist.PinView{
			{InstanceHandle: "a", MasterBBox: master, NetHandle: "n1"},
			{InstanceHandle: "b", MasterBBox: master, NetHandle: "n1"},
		},
	}
}

func TestUpdateWireLengthForceWAGradientPointsTowardOtherPin(t *testing.T) {
	pb, err := placerbase.Build(twoCellNetReader(), placerbase.Config{}, nil)
	if err != nil {
		t.Fatalf("placerbase.Build() error = %v", err)
	}
	common := BuildCommon(pb, 10, 20, 0, 20, 20, nil)
	common.UpdateWireLengthForceWA(1.0/200, 1.0/200)

	// "a" sits left of "b": its gradient is positive (points toward larger
	// x, i.e. toward "b"), so the Nesterov update, which adds step*grad to
	// the position, moves "a" toward "b" and reduces HPWL.
	if math.IsNaN(common.WLGradX[0]) || math.IsInf(common.WLGradX[0], 0) {
		t.Fatalf("WLGradX[0] = %v, want finite", common.WLGradX[0])
	}
	if common.WLGradX[0] <= 0 {
		t.Errorf("WLGradX[0] = %v, want > 0 (toward \"b\", 400 to the right)", common.WLGradX[0])
	}
	if common.WLGradY[0] != 0 {
		t.Errorf("WLGradY[0] = %v, want 0 (pins share the same y)", common.WLGradY[0])
	}
}

func TestWireLengthCoefScaleBounds(t *testing.T) {
	if got := WireLengthCoefScale(0.05); got != 10 {
		t.Errorf("WireLengthCoefScale(0.05) = %v, want 10", got)
	}
	if got := WireLengthCoefScale(1.5); got != 0.1 {
		t.Errorf("WireLengthCoefScale(1.5) = %v, want 0.1", got)
	}
	mid := WireLengthCoefScale(0.55)
	if mid <= 0.1 || mid >= 10 {
		t.Errorf("WireLengthCoefScale(0.55) = %v, want strictly between 0.1 and 10", mid)
	}
}

func TestNextNesterovCoeff(t *testing.T) {
	ak, coeff := NextNesterovCoeff(1)
	wantAk := (1 + math.Sqrt(5)) / 2
	if math.Abs(ak-wantAk) > 1e-9 {
		t.Errorf("akNext = %v, want %v", ak, wantAk)
	}
	wantCoeff := (1 - 1) / wantAk
	if math.Abs(coeff-wantCoeff) > 1e-9 {
		t.Errorf("coeff = %v, want %v", coeff, wantCoeff)
	}
}

func TestAcceptStepLength(t *testing.T) {
	if !AcceptStepLength(0.96, 1.0) {
		t.Errorf("AcceptStepLength(0.96,1.0) = false, want true (>=0.95*old)")
	}
	if !AcceptStepLength(0.02, 1.0) {
		t.Errorf("AcceptStepLength(0.02,1.0) = false, want true (>=0.01 floor)")
	}
	if AcceptStepLength(math.NaN(), 1.0) {
		t.Errorf("AcceptStepLength(NaN,_) = true, want false")
	}
}
