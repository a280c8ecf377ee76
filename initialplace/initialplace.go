// Copyright 2025 The goplace Authors. SPDX-License-Identifier: Apache-2.0

package initialplace

import (
	"math"

	"github.com/ajroetker/goplace/geometry"
)

// Options configures the B2B solver (spec.md §4.G defaults).
type Options struct {
	MaxFanout      int     // nets with |pins| >= MaxFanout are skipped (default 200)
	NetWeightScale float64 // default 800
	MinDiffLength  float64 // default 1500
	MaxOuterIter   int     // default 20, spec.md §6's initialPlaceMaxIter
	ResidualTol    float64 // default 1e-5
	MinOuterIter   int     // default 5
	MaxSolverIter  int     // default 1000, spec.md §6's initialPlaceMaxSolverIter (bounds each BiCGSTAB solve, independent of MaxOuterIter)
}

// DefaultOptions returns spec.md §4.G's default tuning constants.
func DefaultOptions() Options {
	return Options{
		MaxFanout: 200, NetWeightScale: 800, MinDiffLength: 1500,
		MaxOuterIter: 20, ResidualTol: 1e-5, MinOuterIter: 5, MaxSolverIter: 1000,
	}
}

// Place runs the B2B quadratic placer over arena, moving every non-locked
// movable instance in place. movable lists the movable-instance
// indices (0..n-1 mapping built internally); locked movable instances
// are treated like fixed ones, contributing only to RHS.
func Place(arena *geometry.Arena, movable []int, core geometry.Rect, opts Options) {
	n := len(movable)
	if n == 0 {
		return
	}
	movableOf := make(map[int]int, n)
	for i, instIdx := range movable {
		movableOf[instIdx] = i
	}

	cx, cy := float64(core.CenterX()), float64(core.CenterY())
	x := make([]float64, n)
	y := make([]float64, n)
	for i := range movable {
		x[i] = cx
		y[i] = cy
	}
	applyCenters(arena, movable, x, y)

	for iter := 1; iter <= opts.MaxOuterIter; iter++ {
		ax, bx := BuildSystem(arena, movableOf, n, opts, axisX)
		ay, by := BuildSystem(arena, movableOf, n, opts, axisY)

		_, rx := BiCGStab(ax, bx, x, opts.ResidualTol, opts.MaxSolverIter)
		_, ry := BiCGStab(ay, by, y, opts.ResidualTol, opts.MaxSolverIter)

		applyCenters(arena, movable, x, y)
		arena.RecomputeNetBBoxes()

		if iter >= opts.MinOuterIter && math.Max(rx, ry) <= opts.ResidualTol {
			break
		}
	}
}

func applyCenters(arena *geometry.Arena, movable []int, x, y []float64) {
	for i, instIdx := range movable {
		inst := &arena.Instances[instIdx]
		if inst.Locked {
			continue
		}
		cx := int64(math.Round(x[i]))
		cy := int64(math.Round(y[i]))
		lx := cx - inst.Width()/2
		ly := cy - inst.Height()/2
		arena.UpdateInstanceLocation(instIdx, lx, ly)
	}
}

type axis int

const (
	axisX axis = iota
	axisY
)

// BuildSystem assembles one axis's sparse SPD matrix and RHS per spec.md
// §4.G: for every net with 2 <= |pins| < maxFanout, weight w =
// netWeightScale/(|pins|-1); for each pin paired with the net's min/max
// extreme pin on this axis, w_axis = w / max(|Δcoord|, minDiffLength).
func BuildSystem(arena *geometry.Arena, movableOf map[int]int, n int, opts Options, ax axis) (*Matrix, []float64) {
	m := NewMatrix(n)
	b := make([]float64, n)

	coord := func(p *geometry.Pin) int64 {
		if ax == axisX {
			return p.Cx
		}
		return p.Cy
	}
	isExtreme := func(p *geometry.Pin) bool {
		if ax == axisX {
			return p.IsMinPinX || p.IsMaxPinX
		}
		return p.IsMinPinY || p.IsMaxPinY
	}

	for _, net := range arena.Nets {
		k := len(net.PinIdxs)
		if k < 2 || k >= opts.MaxFanout {
			continue
		}
		w := opts.NetWeightScale / float64(k-1)

		for _, pi1 := range net.PinIdxs {
			p1 := &arena.Pins[pi1]
			if !isExtreme(p1) {
				continue
			}
			for _, pi2 := range net.PinIdxs {
				if pi1 == pi2 {
					continue
				}
				p2 := &arena.Pins[pi2]
				if p1.InstIdx == p2.InstIdx {
					continue
				}
				diff := math.Abs(float64(coord(p1) - coord(p2)))
				wAxis := w / math.Max(diff, opts.MinDiffLength)
				addPinPair(arena, movableOf, b, m, p1, p2, wAxis, ax)
			}
		}
	}
	return m, b
}

// addPinPair accumulates one ordered pin pair's contribution per spec.md
// §4.G, handling movable-movable and movable-fixed combinations.
func addPinPair(arena *geometry.Arena, movableOf map[int]int, b []float64, m *Matrix, p1, p2 *geometry.Pin, w float64, ax axis) {
	inst1 := &arena.Instances[p1.InstIdx]
	inst2 := &arena.Instances[p2.InstIdx]

	i, iMovable := movableOf[p1.InstIdx]
	j, jMovable := movableOf[p2.InstIdx]
	iMovable = iMovable && !inst1.Locked
	jMovable = jMovable && !inst2.Locked

	var cx1, cx2 int64
	if ax == axisX {
		cx1, cx2 = inst1.CenterX(), inst2.CenterX()
	} else {
		cx1, cx2 = inst1.CenterY(), inst2.CenterY()
	}
	off1 := float64(coordOf(p1, ax) - cx1)
	off2 := float64(coordOf(p2, ax) - cx2)

	switch {
	case iMovable && jMovable:
		m.AddDiag(i, w)
		m.AddDiag(j, w)
		m.AddOff(i, j, -w)
		m.AddOff(j, i, -w)
		b[i] += -w * (off1 - off2)
		b[j] += -w * (off2 - off1)
	case iMovable && !jMovable:
		m.AddDiag(i, w)
		b[i] += -w*off1 + w*(float64(cx2)+off2)
	case !iMovable && jMovable:
		m.AddDiag(j, w)
		b[j] += -w*off2 + w*(float64(cx1)+off1)
	}
}

func coordOf(p *geometry.Pin, ax axis) int64 {
	if ax == axisX {
		return p.Cx
	}
	return p.Cy
}
