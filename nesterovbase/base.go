// Copyright 2025 The goplace Authors. SPDX-License-Identifier: Apache-2.0

package nesterovbase

import (
	"math"

	"github.com/ajroetker/goplace/bingrid"
	"github.com/ajroetker/goplace/fft"
)

// State is one region's position in the convergence state machine of
// spec.md §4.F.
type State int

const (
	StateInit State = iota
	StateRunning
	StateConverged
	StateDiverged
	StateReverted
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "Init"
	case StateRunning:
		return "Running"
	case StateConverged:
		return "Converged"
	case StateDiverged:
		return "Diverged"
	case StateReverted:
		return "Reverted"
	default:
		return "Unknown"
	}
}

// Divergence codes named in spec.md §7: 305 is NumericDivergence (the
// predicted step length), 306 is GradientDivergence (WL/density grad
// sum), 307 is OverflowDivergence.
const (
	DivergeStepLengthNaN          = 305
	DivergeWireLengthOrDensityNaN = 306
	DivergeOverflowGrowth         = 307
)

// NesterovBase is one power-domain region's density gradient and
// convergence state (spec.md §4.F, component NesterovBase).
type NesterovBase struct {
	Common    *NesterovBaseCommon
	Bins      *bingrid.BinGrid
	Solver    *fft.Solver
	GCellIdxs []int // indices into Common.GCells belonging to this region

	State       State
	DivergeCode int

	DensityPenalty float64
	MaxPhiCoef     float64
	MinPhiCoef     float64
	maxPhiShrunk   bool // spec.md §4.F: "multiply maxPhiCoef by 0.99 once"

	StepLength float64
	Ak         float64

	Overflow       float64
	MinSeenOverflow float64
	TargetOverflow float64

	BaseWireLengthCoef float64
	WlCoefX, WlCoefY   float64

	// Coordinate/gradient vectors, one entry per GCellIdxs[i] (spec.md
	// §4.H's curCoordi/prevCoordi/nextCoordi/curSLPCoordi families).
	CurX, CurY   []float64
	PrevX, PrevY []float64
	NextX, NextY []float64

	CurSLPX, CurSLPY   []float64
	NextSLPX, NextSLPY []float64

	CurGradX, CurGradY   []float64
	PrevGradX, PrevGradY []float64
	NextGradX, NextGradY []float64

	CurSLPSumGradX, CurSLPSumGradY []float64

	snapshot *regionSnapshot
}

// regionSnapshot is the per-region payload of spec.md §4.H's snapshot:
// "copy curCoordi, curSLPCoordi, curSLPSumGrads; record current
// densityPenalty, stepLength, a_k, wlCoefX/Y".
type regionSnapshot struct {
	curX, curY       []float64
	curSLPX, curSLPY []float64
	curSLPSumGradX   []float64
	curSLPSumGradY   []float64

	densityPenalty float64
	stepLength     float64
	ak             float64
	wlCoefX, wlCoefY float64
}

// AllocateState sizes every coordinate/gradient vector to len(GCellIdxs),
// the "Init: allocate state vectors" step of spec.md §4.F.
func (b *NesterovBase) AllocateState() {
	n := len(b.GCellIdxs)
	alloc := func() []float64 { return make([]float64, n) }
	b.CurX, b.CurY = alloc(), alloc()
	b.PrevX, b.PrevY = alloc(), alloc()
	b.NextX, b.NextY = alloc(), alloc()
	b.CurSLPX, b.CurSLPY = alloc(), alloc()
	b.NextSLPX, b.NextSLPY = alloc(), alloc()
	b.CurGradX, b.CurGradY = alloc(), alloc()
	b.PrevGradX, b.PrevGradY = alloc(), alloc()
	b.NextGradX, b.NextGradY = alloc(), alloc()
	b.CurSLPSumGradX, b.CurSLPSumGradY = alloc(), alloc()

	for i, gi := range b.GCellIdxs {
		b.CurX[i] = b.Common.PosX[gi]
		b.CurY[i] = b.Common.PosY[gi]
		b.CurSLPX[i] = b.Common.PosX[gi]
		b.CurSLPY[i] = b.Common.PosY[gi]
	}
}

// TakeSnapshot captures this region's reusable state, per spec.md §4.H
// ("Snapshot ... taken once when overflow first reaches 0.6 under
// routability mode").
func (b *NesterovBase) TakeSnapshot() {
	b.snapshot = &regionSnapshot{
		curX: append([]float64(nil), b.CurX...), curY: append([]float64(nil), b.CurY...),
		curSLPX: append([]float64(nil), b.CurSLPX...), curSLPY: append([]float64(nil), b.CurSLPY...),
		curSLPSumGradX: append([]float64(nil), b.CurSLPSumGradX...),
		curSLPSumGradY: append([]float64(nil), b.CurSLPSumGradY...),
		densityPenalty: b.DensityPenalty, stepLength: b.StepLength, ak: b.Ak,
		wlCoefX: b.WlCoefX, wlCoefY: b.WlCoefY,
	}
}

// HasSnapshot reports whether TakeSnapshot has been called.
func (b *NesterovBase) HasSnapshot() bool { return b.snapshot != nil }

// RestoreSnapshot implements spec.md §8 property 9: after revert,
// curCoordi must equal the snapshotted curCoordi bit-exactly.
func (b *NesterovBase) RestoreSnapshot() {
	s := b.snapshot
	if s == nil {
		return
	}
	copy(b.CurX, s.curX)
	copy(b.CurY, s.curY)
	copy(b.CurSLPX, s.curSLPX)
	copy(b.CurSLPY, s.curSLPY)
	copy(b.CurSLPSumGradX, s.curSLPSumGradX)
	copy(b.CurSLPSumGradY, s.curSLPSumGradY)
	b.DensityPenalty = s.densityPenalty
	b.StepLength = s.stepLength
	b.Ak = s.ak
	b.WlCoefX, b.WlCoefY = s.wlCoefX, s.wlCoefY
	for i, gi := range b.GCellIdxs {
		b.Common.PosX[gi] = b.CurX[i]
		b.Common.PosY[gi] = b.CurY[i]
	}
}

// NewNesterovBase creates a region with the default penalty bounds used
// throughout original_source (minPhiCoef=0.95, maxPhiCoef=1.05).
func NewNesterovBase(common *NesterovBaseCommon, bins *bingrid.BinGrid, gcellIdxs []int) *NesterovBase {
	return &NesterovBase{
		Common: common, Bins: bins, GCellIdxs: gcellIdxs,
		Solver:          fft.NewSolver(bins.BinCntX, bins.BinCntY, bins.BinSizeX, bins.BinSizeY),
		State:           StateInit,
		DensityPenalty:  1,
		MinPhiCoef:      0.95,
		MaxPhiCoef:      1.05,
		TargetOverflow:  0.1,
		MinSeenOverflow: math.Inf(1),
	}
}

// UpdateDensityField runs this region's bin densities through the Poisson
// solver and writes the resulting electric field/potential back into the
// bin grid (spec.md §4.C/§4.D).
func (b *NesterovBase) UpdateDensityField() {
	res := b.Solver.Solve(b.Bins.Density2D())
	b.Bins.ApplyElectroFields(res.Phi, res.Ex, res.Ey)
}

// DensityPreconditioner returns the per-GCell preconditioner (area, on
// both axes), per spec.md §4.F.
func (b *NesterovBase) DensityPreconditioner(gcellIdx int) float64 {
	gc := &b.Common.GCells[gcellIdx]
	return float64(gc.Dx) * float64(gc.Dy)
}

// DensityGradient implements spec.md §4.F's density gradient: for each
// GCell in this region, sum over overlapped bins of
// overlapDensity*densityScale*(electroForceX, electroForceY).
func (b *NesterovBase) DensityGradient(gx, gy []float64) {
	for _, gi := range b.GCellIdxs {
		gc := &b.Common.GCells[gi]
		cx, cy := b.Common.PosX[gi], b.Common.PosY[gi]
		bbox := gc.DensityBBox(cx, cy)

		var fx, fy float64
		b.Bins.ForEachOverlapping(bbox, func(bin *bingrid.Bin) {
			overlap := float64(bin.Rect.Overlap(bbox))
			if overlap <= 0 {
				return
			}
			fx += overlap * gc.DensityScale * float64(bin.ElectroForceX)
			fy += overlap * gc.DensityScale * float64(bin.ElectroForceY)
		})
		gx[gi] = fx
		gy[gi] = fy
	}
}

// PredictStepLength implements spec.md §4.F's step-length prediction:
// α_new = ||x_cur - x_prev|| / ||g_cur - g_prev|| with the RMS 2-norm
// over all cells in this region.
func (b *NesterovBase) PredictStepLength(curX, curY, prevX, prevY, curGX, curGY, prevGX, prevGY []float64) float64 {
	var numSq, denSq float64
	n := len(b.GCellIdxs)
	for i := range b.GCellIdxs {
		dx := curX[i] - prevX[i]
		dy := curY[i] - prevY[i]
		numSq += dx*dx + dy*dy

		ddx := curGX[i] - prevGX[i]
		ddy := curGY[i] - prevGY[i]
		denSq += ddx*ddx + ddy*ddy
	}
	if n == 0 || denSq == 0 {
		return math.NaN()
	}
	return math.Sqrt(numSq/float64(n)) / math.Sqrt(denSq/float64(n))
}

// AcceptStepLength reports whether a newly predicted step length should
// be accepted, per spec.md §4.F: "accept if >= 0.95*old or >= 0.01".
func AcceptStepLength(newAlpha, oldAlpha float64) bool {
	if math.IsNaN(newAlpha) || math.IsInf(newAlpha, 0) {
		return false
	}
	return newAlpha >= 0.95*oldAlpha || newAlpha >= 0.01
}

// NextNesterovCoeff computes a_{k+1} and the extrapolation coefficient,
// per spec.md §4.F/§4.H: a_{k+1} = (1+sqrt(4a_k^2+1))/2, coeff =
// (a_k-1)/a_{k+1}.
func NextNesterovCoeff(ak float64) (akNext, coeff float64) {
	akNext = (1 + math.Sqrt(4*ak*ak+1)) / 2
	coeff = (ak - 1) / akNext
	return akNext, coeff
}

// UpdatePenalty implements spec.md §4.F's penalty update: φCoef =
// max(minPhiCoef, maxPhiCoef^(-ΔHPWL/referenceHPWL)) when ΔHPWL >= 0,
// else maxPhiCoef; densityPenalty *= φCoef. The first time overflow drops
// below 0.35 it shrinks maxPhiCoef by 0.99, once.
func (b *NesterovBase) UpdatePenalty(deltaHPWL, referenceHPWL float64) {
	var phiCoef float64
	if deltaHPWL >= 0 && referenceHPWL != 0 {
		phiCoef = math.Max(b.MinPhiCoef, math.Pow(b.MaxPhiCoef, -deltaHPWL/referenceHPWL))
	} else {
		phiCoef = b.MaxPhiCoef
	}
	b.DensityPenalty *= phiCoef

	if !b.maxPhiShrunk && b.Overflow < 0.35 {
		b.MaxPhiCoef *= 0.99
		b.maxPhiShrunk = true
	}
}

// WireLengthCoefScale implements spec.md §4.F's f(overflow) piecewise
// schedule used to derive wlCoefX/Y from baseWireLengthCoef.
func WireLengthCoefScale(overflow float64) float64 {
	switch {
	case overflow < 0.1:
		return 10
	case overflow > 1:
		return 0.1
	default:
		return 1 / math.Pow(10, (overflow-0.1)*20/9-1)
	}
}

// UpdateWireLengthCoef recomputes wlCoefX/Y from baseWireLengthCoef and
// the current overflow, per spec.md §4.F.
func (b *NesterovBase) UpdateWireLengthCoef() {
	scale := WireLengthCoefScale(b.Overflow)
	b.WlCoefX = b.BaseWireLengthCoef * scale
	b.WlCoefY = b.BaseWireLengthCoef * scale
}

// CheckDivergence inspects the wirelength/density gradient sums and
// predicted step length for NaN/Inf, and whether overflow has grown 20%
// above its min-seen value while still below 0.2, setting State and
// DivergeCode accordingly. It returns true if this call detected a new
// divergence.
func (b *NesterovBase) CheckDivergence(wlGradSum, densityGradSum, predictedStep float64) bool {
	if isBad(wlGradSum) || isBad(densityGradSum) {
		b.State, b.DivergeCode = StateDiverged, DivergeWireLengthOrDensityNaN
		return true
	}
	if isBad(predictedStep) {
		b.State, b.DivergeCode = StateDiverged, DivergeStepLengthNaN
		return true
	}
	if b.Overflow < b.MinSeenOverflow {
		b.MinSeenOverflow = b.Overflow
	}
	if b.Overflow < 0.2 && b.Overflow > 1.2*b.MinSeenOverflow {
		b.State, b.DivergeCode = StateDiverged, DivergeOverflowGrowth
		return true
	}
	return false
}

func isBad(v float64) bool { return math.IsNaN(v) || math.IsInf(v, 0) }

// CheckConvergence locks the region's instances and sets State to
// Converged once overflow has reached TargetOverflow.
func (b *NesterovBase) CheckConvergence() bool {
	if b.Overflow <= b.TargetOverflow {
		b.State = StateConverged
		for _, gi := range b.GCellIdxs {
			b.Common.GCells[gi].Locked = true
		}
		return true
	}
	return false
}

// Revert transitions a diverged region back to Running after a snapshot
// restore, per spec.md §4.F ("Reverted: after one divergence, restore
// snapshot and continue; a second divergence is fatal").
func (b *NesterovBase) Revert() {
	b.State = StateRunning
}
