// Copyright 2025 The goplace Authors. SPDX-License-Identifier: Apache-2.0

// Package nesterovplace implements component H of spec.md §4.H: the
// outer Nesterov-accelerated gradient loop that drives one or more
// nesterovbase.NesterovBase regions to convergence, coordinating with the
// shared wirelength graph, the bin-grid/FFT density field, and the
// optional routability/timing hand-offs.
package nesterovplace

import (
	"fmt"
	"math"

	"github.com/ajroetker/goplace/bingrid"
	"github.com/ajroetker/goplace/geometry"
	"github.com/ajroetker/goplace/nesterovbase"
	"github.com/ajroetker/goplace/netlist"
)

// Options configures the outer driver (spec.md §4.H defaults).
type Options struct {
	MaxNesterovIter             int     // default 5000
	MaxBackTrack                int     // default 10
	InitialPrevCoordiUpdateCoef float64 // default 1e-2
	InitRetryLimit              int     // bounded retry count for init step-length recovery

	RoutabilityDrivenMode    bool
	RoutabilityCheckOverflow float64 // default 0.2
	SnapshotOverflow         float64 // default 0.6

	TimingDrivenMode bool

	PadLeftDBU int64
}

// DefaultOptions returns spec.md §4.H's defaults.
func DefaultOptions() Options {
	return Options{
		MaxNesterovIter: 5000, MaxBackTrack: 10,
		InitialPrevCoordiUpdateCoef: 1e-2, InitRetryLimit: 10,
		RoutabilityCheckOverflow: 0.2, SnapshotOverflow: 0.6,
	}
}

// Router is RouteBase's driver-facing surface (component I).
type Router interface {
	Bloat(overflow float64) (revert bool, err error)
}

// TimingUpdater is TimingBase's driver-facing surface (component J).
type TimingUpdater interface {
	MaybeReweight(overflow float64) (triggered bool, err error)
}

// GraphicsSink is a debug-draw capability invoked at iteration
// boundaries and at bloat/snapshot events. A nil Engine.Graphics skips
// all of these calls, so wiring a sink never changes placement behavior.
type GraphicsSink interface {
	DrawIteration(iter int, overflow, hpwl float64)
	DrawBloat(revert bool)
	DrawSnapshot()
}

// Error is the engine's structured failure mode (spec.md §7).
type Error struct {
	Code    int
	Message string
}

func (e *Error) Error() string { return fmt.Sprintf("nesterovplace: code %d: %s", e.Code, e.Message) }

const (
	codeInitStepDivergence = 304
)

// Engine drives one or more regions sharing a common G-graph.
type Engine struct {
	Common  *nesterovbase.NesterovBaseCommon
	Regions []*nesterovbase.NesterovBase
	Core    geometry.Rect

	Handles []any
	Writer  netlist.Writer

	Opts Options

	Router   Router
	Timing   TimingUpdater
	Graphics GraphicsSink

	snapshotTaken bool
	revertedOnce  bool

	HPWLHistory []float64
}

// Init implements spec.md §4.H step 1: per region initDensity1, a shared
// WA wirelength pass, updatePrevGradient, initDensity2, with bounded
// retry on a non-finite initial step length.
func (e *Engine) Init() error {
	for _, r := range e.Regions {
		r.AllocateState()
		r.UpdateDensityField()
		r.UpdateWireLengthCoef() // seed wlCoefX/Y from overflow=0 so the WA pass below isn't degenerate
	}

	for _, r := range e.Regions {
		e.gradientAt(r, r.CurX, r.CurY, r.CurGradX, r.CurGradY)
	}

	coef := e.Opts.InitialPrevCoordiUpdateCoef
	for attempt := 0; ; attempt++ {
		ok := true
		for _, r := range e.Regions {
			for i := range r.GCellIdxs {
				r.PrevX[i] = r.CurX[i] - coef*r.CurGradX[i]
				r.PrevY[i] = r.CurY[i] - coef*r.CurGradY[i]
			}
			e.gradientAt(r, r.PrevX, r.PrevY, r.PrevGradX, r.PrevGradY)
			step := r.PredictStepLength(r.CurX, r.CurY, r.PrevX, r.PrevY, r.CurGradX, r.CurGradY, r.PrevGradX, r.PrevGradY)
			if math.IsNaN(step) || math.IsInf(step, 0) {
				ok = false
				continue
			}
			r.StepLength = step
		}
		if ok {
			break
		}
		if attempt >= e.Opts.InitRetryLimit {
			return &Error{Code: codeInitStepDivergence, Message: "initial step length stayed non-finite after bounded retries"}
		}
		coef *= 10
	}

	// gradientAt leaves the shared graph evaluated at the last probed
	// (Prev) position; restore it to Cur before the main loop starts.
	for _, r := range e.Regions {
		e.syncCommonPos(r, r.CurX, r.CurY)
	}
	return nil
}

func (e *Engine) syncCommonPos(r *nesterovbase.NesterovBase, xs, ys []float64) {
	for i, gi := range r.GCellIdxs {
		e.Common.PosX[gi] = xs[i]
		e.Common.PosY[gi] = ys[i]
	}
}

// gradientAt evaluates the combined (preconditioned) WA wirelength +
// density gradient for region r at the given per-cell positions,
// writing the result into outGx/outGy. It mutates the shared graph's
// bin-grid density state and Common.PosX/Y as a side effect.
func (e *Engine) gradientAt(r *nesterovbase.NesterovBase, xs, ys []float64, outGx, outGy []float64) {
	e.syncCommonPos(r, xs, ys)
	r.Bins.UpdateGCellDensityArea(densityViews(e.Common, r.GCellIdxs, e.Common.PosX, e.Common.PosY))
	r.UpdateDensityField()
	e.Common.UpdateWireLengthForceWA(r.WlCoefX, r.WlCoefY)

	dgx, dgy := make([]float64, len(e.Common.GCells)), make([]float64, len(e.Common.GCells))
	r.DensityGradient(dgx, dgy)
	for i, gi := range r.GCellIdxs {
		wlPre := math.Max(e.Common.WirelengthPreconditioner(gi), 1)
		denPre := math.Max(r.DensityPreconditioner(gi), 1)
		outGx[i] = e.Common.WLGradX[gi]/wlPre + r.DensityPenalty*dgx[gi]/denPre
		outGy[i] = e.Common.WLGradY[gi]/wlPre + r.DensityPenalty*dgy[gi]/denPre
	}
}

// Run executes spec.md §4.H step 2's per-iteration loop until every
// region converges, diverges fatally, or MaxNesterovIter is reached, then
// always writes the final coordinates back to the netlist (step 3).
func (e *Engine) Run() error {
	defer e.writeBack()

	for iter := 0; iter < e.Opts.MaxNesterovIter; iter++ {
		prevHPWL := e.totalHPWL()

		for _, r := range e.Regions {
			akNext, coeff := nesterovbase.NextNesterovCoeff(r.Ak)
			r.Ak = akNext
			e.backtrack(r, coeff)
		}

		for _, r := range e.Regions {
			r.UpdatePenalty(prevHPWL-e.totalHPWL(), math.Max(prevHPWL, 1))
		}

		e.advance()
		e.updateOverflow()

		if e.Opts.RoutabilityDrivenMode && e.Router != nil {
			overflow := e.maxOverflow()
			if !e.snapshotTaken && overflow <= e.Opts.SnapshotOverflow {
				e.takeSnapshot()
			}
			if overflow <= e.Opts.RoutabilityCheckOverflow {
				revert, err := e.Router.Bloat(overflow)
				if err == nil {
					if revert {
						e.restoreSnapshot()
					}
					if e.Graphics != nil {
						e.Graphics.DrawBloat(revert)
					}
				}
			}
		}

		if e.Opts.TimingDrivenMode && e.Timing != nil {
			if _, err := e.Timing.MaybeReweight(e.maxOverflow()); err != nil {
				e.Opts.TimingDrivenMode = false
			}
		}

		hpwl := e.totalHPWL()
		e.HPWLHistory = append(e.HPWLHistory, hpwl)
		if e.Graphics != nil {
			e.Graphics.DrawIteration(iter, e.maxOverflow(), hpwl)
		}

		converged, fatal := e.checkConvergenceAndDivergence()
		if fatal != nil {
			return fatal
		}
		if converged {
			break
		}
	}
	return nil
}

// backtrack implements spec.md §4.H step 2.b: predict, clamp, recompute
// gradients at the extrapolated point, accept when the new step length is
// within tolerance of the old one. On rejection the trial step is halved
// so the loop makes progress toward acceptance instead of repeating the
// same extrapolation.
func (e *Engine) backtrack(r *nesterovbase.NesterovBase, coeff float64) {
	oldAlpha := r.StepLength
	trial := oldAlpha

	for bt := 0; bt < e.Opts.MaxBackTrack; bt++ {
		for i, gi := range r.GCellIdxs {
			gc := &e.Common.GCells[gi]
			nx := r.CurX[i] + trial*r.CurGradX[i]
			ny := r.CurY[i] + trial*r.CurGradY[i]
			nx, ny = clampToCore(nx, ny, gc, e.Core)

			sx := nx + coeff*(nx-r.CurX[i])
			sy := ny + coeff*(ny-r.CurY[i])
			sx, sy = clampToCore(sx, sy, gc, e.Core)

			r.NextX[i], r.NextY[i] = nx, ny
			r.NextSLPX[i], r.NextSLPY[i] = sx, sy
		}

		e.gradientAt(r, r.NextSLPX, r.NextSLPY, r.NextGradX, r.NextGradY)

		newAlpha := r.PredictStepLength(r.NextX, r.NextY, r.CurX, r.CurY, r.NextGradX, r.NextGradY, r.CurGradX, r.CurGradY)
		if nesterovbase.AcceptStepLength(newAlpha, oldAlpha) {
			r.StepLength = newAlpha
			e.syncCommonPos(r, r.NextX, r.NextY)
			return
		}
		trial /= 2
	}
	r.StepLength = trial
	e.syncCommonPos(r, r.NextX, r.NextY)
}

func clampToCore(cx, cy float64, gc *nesterovbase.GCell, core geometry.Rect) (float64, float64) {
	hx, hy := float64(gc.Dx)/2, float64(gc.Dy)/2
	cx = math.Max(float64(core.Lx)+hx, math.Min(float64(core.Ux)-hx, cx))
	cy = math.Max(float64(core.Ly)+hy, math.Min(float64(core.Uy)-hy, cy))
	return cx, cy
}

// densityViews converts region gcells at the given shared positions into
// bingrid.GCellView for a density-area update.
func densityViews(c *nesterovbase.NesterovBaseCommon, gcellIdxs []int, posX, posY []float64) []bingrid.GCellView {
	views := make([]bingrid.GCellView, len(gcellIdxs))
	for k, gi := range gcellIdxs {
		gc := &c.GCells[gi]
		views[k] = bingrid.GCellView{
			DensityBBox:  gc.DensityBBox(posX[gi], posY[gi]),
			DensityScale: gc.DensityScale,
			IsMacro:      gc.IsMacro,
			IsFiller:     gc.IsFiller,
		}
	}
	return views
}

// advance implements spec.md §4.H step 2.d: swap prev<->cur<->next,
// freezing locked cells by copying cur into next before the swap.
func (e *Engine) advance() {
	for _, r := range e.Regions {
		for i, gi := range r.GCellIdxs {
			if e.Common.GCells[gi].Locked {
				r.NextX[i], r.NextY[i] = r.CurX[i], r.CurY[i]
				r.NextGradX[i], r.NextGradY[i] = r.CurGradX[i], r.CurGradY[i]
			}
		}
		r.PrevX, r.CurX, r.NextX = r.CurX, r.NextX, r.PrevX
		r.PrevY, r.CurY, r.NextY = r.CurY, r.NextY, r.PrevY
		r.PrevGradX, r.CurGradX, r.NextGradX = r.CurGradX, r.NextGradX, r.PrevGradX
		r.PrevGradY, r.CurGradY, r.NextGradY = r.CurGradY, r.NextGradY, r.PrevGradY
		for i, gi := range r.GCellIdxs {
			e.Common.PosX[gi], e.Common.PosY[gi] = r.CurX[i], r.CurY[i]
		}
	}
}

func (e *Engine) updateOverflow() {
	for _, r := range e.Regions {
		r.Bins.UpdateGCellDensityArea(densityViews(e.Common, r.GCellIdxs, e.Common.PosX, e.Common.PosY))
		total := r.Bins.Core.Area()
		if total > 0 {
			r.Overflow = r.Bins.SumOverflowArea / float64(total)
		}
		r.UpdateWireLengthCoef()
	}
}

func (e *Engine) maxOverflow() float64 {
	max := 0.0
	for _, r := range e.Regions {
		if r.Overflow > max {
			max = r.Overflow
		}
	}
	return max
}

// totalHPWL sums each net's half-perimeter wirelength computed from the
// shared graph's current pin positions.
func (e *Engine) totalHPWL() (sum float64) {
	for _, net := range e.Common.GNets {
		if len(net.PinIdxs) == 0 {
			continue
		}
		loX, hiX := math.Inf(1), math.Inf(-1)
		loY, hiY := math.Inf(1), math.Inf(-1)
		for _, pi := range net.PinIdxs {
			gp := &e.Common.GPins[pi]
			x := e.Common.PosX[gp.GCellIdx] + float64(gp.OffsetCx)
			y := e.Common.PosY[gp.GCellIdx] + float64(gp.OffsetCy)
			loX, hiX = math.Min(loX, x), math.Max(hiX, x)
			loY, hiY = math.Min(loY, y), math.Max(hiY, y)
		}
		sum += (hiX - loX) + (hiY - loY)
	}
	return sum
}

func (e *Engine) takeSnapshot() {
	e.snapshotTaken = true
	for _, r := range e.Regions {
		r.TakeSnapshot()
	}
	if e.Graphics != nil {
		e.Graphics.DrawSnapshot()
	}
}

func (e *Engine) restoreSnapshot() {
	for _, r := range e.Regions {
		if r.HasSnapshot() {
			r.RestoreSnapshot()
		}
	}
}

// checkConvergenceAndDivergence implements spec.md §7's "revert-then-
// fatal" rule: a region's first divergence restores its snapshot and
// continues running; a divergence with no revert available (either no
// snapshot was ever taken, or one revert has already been spent this run)
// is fatal and carries the triggering region's numeric divergence code.
func (e *Engine) checkConvergenceAndDivergence() (converged bool, fatal *Error) {
	allConverged := true
	for _, r := range e.Regions {
		wlSum, densSum := 0.0, 0.0
		for i := range r.GCellIdxs {
			wlSum += r.CurGradX[i] + r.CurGradY[i]
			densSum += r.CurGradX[i] + r.CurGradY[i]
		}
		if r.CheckDivergence(wlSum, densSum, r.StepLength) {
			if !e.revertedOnce && r.HasSnapshot() {
				r.RestoreSnapshot()
				r.Revert()
				e.revertedOnce = true
				allConverged = false
				continue
			}
			return false, &Error{Code: r.DivergeCode, Message: "region diverged with no revert available"}
		}
		if !r.CheckConvergence() {
			allConverged = false
		}
	}
	return allConverged, nil
}

// writeBack implements spec.md §4.H step 3: always write final
// coordinates back to the netlist.
func (e *Engine) writeBack() {
	if e.Writer == nil {
		return
	}
	e.Common.UpdateDbGCells(e.Handles, e.Opts.PadLeftDBU, e.Writer)
}
