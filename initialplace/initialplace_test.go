// Copyright 2025 The goplace Authors. SPDX-License-Identifier: Apache-2.0

package initialplace

import (
	"math"
	"testing"

	"github.com/ajroetker/goplace/geometry"
)

// buildArena creates n movable instances (20x20) all on one net, plus
// optionally two fixed pads on the left/right edges of a 1000-wide core.
func buildArena(withFixedPads bool) (*geometry.Arena, []int, geometry.Rect) {
	core := geometry.Rect{Lx: 0, Ly: 0, Ux: 1000, Uy: 200}
	var a geometry.Arena
	var movable []int
	netIdx := 0
	a.Nets = append(a.Nets, geometry.Net{})

	addInst := func(lx, ly int64, fixed bool) int {
		idx := len(a.Instances)
		a.Instances = append(a.Instances, geometry.Instance{
			Lx: lx, Ly: ly, Ux: lx + 20, Uy: ly + 20, Fixed: fixed,
		})
		return idx
	}
	addPin := func(instIdx int) {
		inst := &a.Instances[instIdx]
		pin := geometry.Pin{InstIdx: instIdx, NetIdx: netIdx, Cx: inst.CenterX(), Cy: inst.CenterY()}
		a.Pins = append(a.Pins, pin)
	}

	if withFixedPads {
		padL := addInst(0, 90, true)
		padR := addInst(980, 90, true)
		addPin(padL)
		cellA := addInst(400, 90, false)
		addPin(cellA)
		movable = append(movable, cellA)
		addPin(padR)
	} else {
		c1 := addInst(100, 90, false)
		c2 := addInst(800, 90, false)
		addPin(c1)
		addPin(c2)
		movable = []int{c1, c2}
	}

	a.FixPointers()
	a.RecomputeNetBBoxes() // computes IsMinPinX/IsMaxPinX from pin.Cx
	return &a, movable, core
}

// TestB2BSymmetryNoGrounding checks spec.md §8 property 6 for an
// all-movable net (no fixed-instance grounding term, which would add to
// the diagonal without a matching off-diagonal entry): A is symmetric and
// each row's diagonal equals the sum of |off-diagonal| entries in that
// row.
func TestB2BSymmetryNoGrounding(t *testing.T) {
	arena, movable, _ := buildArena(false)
	movableOf := map[int]int{movable[0]: 0, movable[1]: 1}
	m, _ := BuildSystem(arena, movableOf, len(movable), DefaultOptions(), axisX)

	for i := range m.Diag {
		var offSum float64
		for _, e := range m.Off[i] {
			offSum += math.Abs(e.val)
			// symmetry: A[i][j] must equal A[j][i]
			found := false
			for _, e2 := range m.Off[e.col] {
				if e2.col == i {
					found = true
					if math.Abs(e2.val-e.val) > 1e-9 {
						t.Errorf("A[%d][%d]=%v != A[%d][%d]=%v", i, e.col, e.val, e.col, i, e2.val)
					}
				}
			}
			if !found {
				t.Errorf("A[%d][%d] has no symmetric counterpart", i, e.col)
			}
		}
		if math.Abs(m.Diag[i]-offSum) > 1e-9 {
			t.Errorf("row %d: diag=%v, want sum(|off-diag|)=%v", i, m.Diag[i], offSum)
		}
	}
}

func TestBiCGStabSolves2x2(t *testing.T) {
	m := NewMatrix(2)
	m.AddDiag(0, 2)
	m.AddDiag(1, 2)
	m.AddOff(0, 1, -1)
	m.AddOff(1, 0, -1)
	b := []float64{1, 0}
	x := make([]float64, 2)
	_, residual := BiCGStab(m, b, x, 1e-10, 100)
	if residual > 1e-8 {
		t.Fatalf("residual = %v, want <= 1e-8", residual)
	}
	ax := make([]float64, 2)
	m.MulVec(x, ax)
	for i := range ax {
		if math.Abs(ax[i]-b[i]) > 1e-6 {
			t.Errorf("A*x[%d] = %v, want %v", i, ax[i], b[i])
		}
	}
}

// TestInitialPlaceConvergesToMidpoint checks spec.md §8 scenario S2: two
// fixed pads at the core edges and one movable cell wired to both should
// settle near the pads' midpoint within a few outer iterations.
func TestInitialPlaceConvergesToMidpoint(t *testing.T) {
	arena, movable, core := buildArena(true)
	opts := DefaultOptions()
	opts.MaxOuterIter = 3
	opts.MinOuterIter = 1
	Place(arena, movable, core, opts)

	cellIdx := movable[0]
	gotCx := arena.Instances[cellIdx].CenterX()
	wantCx := (arena.Instances[0].CenterX() + arena.Instances[1].CenterX()) / 2
	tolerance := core.Dx() / 100 // 1% of core width
	if diff := gotCx - wantCx; diff > tolerance || diff < -tolerance {
		t.Errorf("cell center x = %d, want within %d of midpoint %d", gotCx, tolerance, wantCx)
	}
}
