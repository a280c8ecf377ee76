// Copyright 2025 The goplace Authors. SPDX-License-Identifier: Apache-2.0

// Package place wires components B through J into the single inbound
// operation spec.md §6 exposes: place(options). It owns no algorithm of
// its own beyond sizing fillers, choosing the bin grid and deciding which
// optional collaborators (router, resizer) to engage; everything else is
// delegated to placerbase, initialplace, nesterovbase, nesterovplace,
// routebase and timingbase.
package place

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"runtime"
	"sort"

	"github.com/ajroetker/goplace/bingrid"
	"github.com/ajroetker/goplace/geometry"
	"github.com/ajroetker/goplace/initialplace"
	"github.com/ajroetker/goplace/nesterovbase"
	"github.com/ajroetker/goplace/nesterovplace"
	"github.com/ajroetker/goplace/netlist"
	"github.com/ajroetker/goplace/placerbase"
	"github.com/ajroetker/goplace/routebase"
	"github.com/ajroetker/goplace/timingbase"
	"github.com/ajroetker/goplace/workerpool"
)

// Kind classifies a place error the way spec.md §7's table does, so a
// caller can decide whether to retry, disable a feature, or abort.
type Kind int

const (
	KindInputInvariant Kind = iota
	KindNumericDivergence
	KindGradientDivergence
	KindOverflowDivergence
	KindInitStepDivergence
	KindRoutabilityUnsolvable
	KindTimingNoSlack
)

func (k Kind) String() string {
	switch k {
	case KindInputInvariant:
		return "InputInvariant"
	case KindNumericDivergence:
		return "NumericDivergence"
	case KindGradientDivergence:
		return "GradientDivergence"
	case KindOverflowDivergence:
		return "OverflowDivergence"
	case KindInitStepDivergence:
		return "InitStepDivergence"
	case KindRoutabilityUnsolvable:
		return "RoutabilityUnsolvable"
	case KindTimingNoSlack:
		return "TimingNoSlack"
	default:
		return "Unknown"
	}
}

// Error is the engine's structured failure mode (spec.md §7). Code is 0
// for kinds that carry no numeric code (InputInvariant, RoutabilityUnsolvable,
// TimingNoSlack).
type Error struct {
	Kind    Kind
	Code    int
	Message string
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("place: %s (%d): %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("place: %s: %s", e.Kind, e.Message)
}

// GraphicsSink is a debug-draw capability the driver calls at iteration
// boundaries and at bloat/snapshot events. The zero value (noGraphics) is
// a no-op so graphics never costs anything unless a caller wires one in,
// grounded on original_source's graphicsNone.h/AbstractGraphics.h.
type GraphicsSink interface {
	DrawIteration(iter int, overflow, hpwl float64)
	DrawBloat(revert bool)
	DrawSnapshot()
}

type noGraphics struct{}

func (noGraphics) DrawIteration(int, float64, float64) {}
func (noGraphics) DrawBloat(bool)                       {}
func (noGraphics) DrawSnapshot()                        {}

// Options covers every flag spec.md §6 names on place(options). The zero
// value is not runnable; call DefaultOptions and override fields, or call
// Validate to discover a zero-value omission.
type Options struct {
	Incremental           bool
	DoNesterovPlace       bool
	TimingDrivenMode      bool
	RoutabilityDrivenMode bool
	SkipIOMode            bool

	PadLeftSites  int64
	PadRightSites int64

	// TargetDensity is the user-requested density in (0,1]. Ignored when
	// UniformTargetDensityMode is set.
	TargetDensity            float64
	UniformTargetDensityMode bool

	// MinTargetDensity/MaxTargetDensity clamp the effective per-region
	// density after the uniform/user choice is resolved (SPEC_FULL.md
	// §12, grounded on original_source/src/gpl/src/replace.cpp's
	// setTargetDensity range check). Zero values disable the clamp.
	MinTargetDensity float64
	MaxTargetDensity float64

	BinGridCntX int
	BinGridCntY int

	TargetOverflow float64 // default 0.1

	InitDensityPenalty float64 // default 8e-5 (nesterovbase density penalty seed)
	InitWireLengthCoef float64 // default 0.25
	MinPhiCoef         float64 // default 0.95
	MaxPhiCoef         float64 // default 1.05
	ReferenceHpwl      float64 // default 446000000

	RoutabilityCheckOverflow      float64 // default 0.2
	RoutabilityMaxDensity         float64 // default 0.9
	RoutabilityTargetRcMetric     float64 // default 1.25
	RoutabilityInflationRatioCoef float64 // default 2.5
	RoutabilityMaxInflationRatio  float64 // default 2.5
	RoutabilityRcK1               float64
	RoutabilityRcK2               float64
	RoutabilityRcK3               float64
	RoutabilityRcK4               float64

	TimingNetWeightMax       float64 // default 5
	TimingNetWeightOverflows []int   // default [79]

	InitialPlaceMaxIter        int     // default 20
	InitialPlaceMinDiffLength  float64 // default 1500
	InitialPlaceMaxSolverIter  int     // default 1000
	InitialPlaceMaxFanout      int     // default 200
	InitialPlaceNetWeightScale float64 // default 800

	NesterovPlaceMaxIter int // default 5000

	GroupName string

	Logger   *slog.Logger
	Graphics GraphicsSink
	Pool     *workerpool.Pool

	// RandSeed seeds filler placement (default 0, matching
	// original_source's fixed mt19937(0) seed for reproducible runs).
	RandSeed int64
}

// DefaultOptions returns spec.md §4's named defaults, doing both init and
// Nesterov placement with no optional driven modes engaged.
func DefaultOptions() Options {
	return Options{
		DoNesterovPlace: true,
		TargetDensity:   0, // 0 selects uniform density unless overridden
		TargetOverflow:  0.1,

		InitDensityPenalty: 8e-5,
		InitWireLengthCoef: 0.25,
		MinPhiCoef:         0.95,
		MaxPhiCoef:         1.05,
		ReferenceHpwl:      446000000,

		RoutabilityCheckOverflow:      0.2,
		RoutabilityMaxDensity:         0.9,
		RoutabilityTargetRcMetric:     1.25,
		RoutabilityInflationRatioCoef: 2.5,
		RoutabilityMaxInflationRatio:  2.5,
		RoutabilityRcK1:               1.0,
		RoutabilityRcK2:               1.0,

		TimingNetWeightMax:       5,
		TimingNetWeightOverflows: []int{79},

		InitialPlaceMaxIter:        20,
		InitialPlaceMinDiffLength:  1500,
		InitialPlaceMaxSolverIter:  1000,
		InitialPlaceMaxFanout:      200,
		InitialPlaceNetWeightScale: 800,

		NesterovPlaceMaxIter: 5000,
	}
}

// Validate enforces spec.md §7's ranges, returning an InputInvariant
// Error naming the first violation found.
func (o Options) Validate() error {
	bad := func(msg string) error { return &Error{Kind: KindInputInvariant, Message: msg} }

	if o.TargetDensity != 0 && (o.TargetDensity < 0 || o.TargetDensity > 1) {
		return bad("targetDensity must be in [0,1]")
	}
	if o.MinPhiCoef <= 0 {
		return bad("minPhiCoef must be > 0")
	}
	if o.MaxPhiCoef <= 0 {
		return bad("maxPhiCoef must be > 0")
	}
	if o.MinPhiCoef > o.MaxPhiCoef {
		return bad("minPhiCoef must be <= maxPhiCoef")
	}
	if o.InitialPlaceMaxIter < 0 {
		return bad("initialPlaceMaxIter must be >= 0")
	}
	if o.InitialPlaceMaxSolverIter < 0 {
		return bad("initialPlaceMaxSolverIter must be >= 0")
	}
	if o.NesterovPlaceMaxIter < 0 {
		return bad("nesterovPlaceMaxIter must be >= 0")
	}
	if o.MinTargetDensity != 0 && o.MaxTargetDensity != 0 && o.MinTargetDensity > o.MaxTargetDensity {
		return bad("minTargetDensity must be <= maxTargetDensity")
	}
	if o.PadLeftSites < 0 || o.PadRightSites < 0 {
		return bad("padLeft/padRight must be >= 0")
	}
	return nil
}

// clampTargetDensity applies SPEC_FULL.md §12's optional min/max clamp.
func (o Options) clampTargetDensity(density float64) float64 {
	if o.MinTargetDensity != 0 && density < o.MinTargetDensity {
		density = o.MinTargetDensity
	}
	if o.MaxTargetDensity != 0 && density > o.MaxTargetDensity {
		density = o.MaxTargetDensity
	}
	return density
}

// Engine wires one run's collaborators: a netlist Reader/Writer, an
// optional Router (routabilityDrivenMode) and an optional Resizer
// (timingDrivenMode).
type Engine struct {
	Reader  netlist.Reader
	Writer  netlist.Writer
	Router  netlist.Router
	Resizer netlist.Resizer

	pb *placerbase.PlacerBase
}

// New builds an Engine against the given collaborators. Router and
// Resizer may be nil when the corresponding driven mode is never used.
func New(reader netlist.Reader, writer netlist.Writer, router netlist.Router, resizer netlist.Resizer) *Engine {
	return &Engine{Reader: reader, Writer: writer, Router: router, Resizer: resizer}
}

// UniformTargetDensity implements spec.md §6's getUniformTargetDensity:
// the minimum feasible density (stdArea + macroArea)/whiteSpaceArea. It
// ingests the netlist (if not already done by a prior Place call) to
// compute the areas.
func (e *Engine) UniformTargetDensity(opts Options) (float64, error) {
	pb, err := e.placerBase(opts)
	if err != nil {
		return 0, err
	}
	return uniformTargetDensity(pb), nil
}

func uniformTargetDensity(pb *placerbase.PlacerBase) float64 {
	whiteSpace := float64(pb.Die.Core.Area() - pb.NonPlaceInstsArea)
	if whiteSpace <= 0 {
		return 1
	}
	return float64(pb.StdInstsArea+pb.MacroInstsArea) / whiteSpace
}

func (e *Engine) placerBase(opts Options) (*placerbase.PlacerBase, error) {
	if e.pb != nil {
		return e.pb, nil
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	pb, err := placerbase.Build(e.Reader, placerbase.Config{
		GroupName:     opts.GroupName,
		PadLeftSites:  opts.PadLeftSites,
		PadRightSites: opts.PadRightSites,
		SkipIO:        opts.SkipIOMode,
	}, logger)
	if err != nil {
		return nil, &Error{Kind: KindInputInvariant, Message: err.Error()}
	}
	e.pb = pb
	return pb, nil
}

// Place implements spec.md §6's place(options): run init placement, then
// (when requested) the Nesterov loop, honoring the routability/timing
// driven-mode hand-offs. ctx is checked before initial placement, before
// the Nesterov phase is set up, and after the Nesterov Init; the Nesterov
// iterations inside Run are not interrupted by ctx.
func (e *Engine) Place(ctx context.Context, opts Options) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Graphics == nil {
		opts.Graphics = noGraphics{}
	}
	pool := opts.Pool
	if pool == nil {
		pool = workerpool.New(runtime.GOMAXPROCS(0))
		defer pool.Close()
	}

	pb, err := e.placerBase(opts)
	if err != nil {
		return err
	}

	if opts.UniformTargetDensityMode {
		opts.TargetDensity = uniformTargetDensity(pb)
		opts.Logger.Info("uniformTargetDensityMode: resolved target density", "density", opts.TargetDensity)
	}
	targetDensity := opts.TargetDensity
	if targetDensity == 0 {
		targetDensity = uniformTargetDensity(pb)
	}
	targetDensity = opts.clampTargetDensity(targetDensity)

	padLeftDBU := opts.PadLeftSites * pb.SiteWidth

	if err := ctx.Err(); err != nil {
		return err
	}

	movable := movableIndices(pb)
	initialplace.Place(&pb.Arena, movable, pb.Die.Core, initialplace.Options{
		MaxFanout:      opts.InitialPlaceMaxFanout,
		NetWeightScale: opts.InitialPlaceNetWeightScale,
		MinDiffLength:  opts.InitialPlaceMinDiffLength,
		MaxOuterIter:   opts.InitialPlaceMaxIter,
		ResidualTol:    1e-5,
		MinOuterIter:   5,
		MaxSolverIter:  opts.InitialPlaceMaxSolverIter,
	})
	pb.Arena.FixPointers()
	pb.Arena.RecomputeNetBBoxes()

	if !opts.DoNesterovPlace {
		e.writeBack(pb, padLeftDBU)
		return nil
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	avgPlaceInstArea := int64(0)
	if n := len(movable); n > 0 {
		avgPlaceInstArea = pb.PlaceInstsArea / int64(n)
	}
	bins := bingrid.New(pb.Die.Core, opts.BinGridCntX, opts.BinGridCntY, avgPlaceInstArea, targetDensity)
	bins.UpdateNonPlaceArea(fixedInstances(pb))

	fillerDx, fillerDy, fillerCnt := sizeFillers(pb, bins.Core.Area(), targetDensity)

	common := nesterovbase.BuildCommon(pb, fillerDx, fillerDy, fillerCnt, bins.BinSizeX, bins.BinSizeY, pool)
	seedFillerPositions(common, len(common.GCells)-fillerCnt, bins.Core, fillerDx, fillerDy, opts.RandSeed)

	region := nesterovbase.NewNesterovBase(common, bins, allGCellIdxs(common))
	region.MinPhiCoef = opts.MinPhiCoef
	region.MaxPhiCoef = opts.MaxPhiCoef
	region.DensityPenalty = opts.InitDensityPenalty
	region.TargetOverflow = opts.TargetOverflow
	region.BaseWireLengthCoef = opts.InitWireLengthCoef / ((bins.BinSizeX + bins.BinSizeY) / 2)
	regions := []*nesterovbase.NesterovBase{region}

	driver := &nesterovplace.Engine{
		Common:   common,
		Regions:  regions,
		Core:     pb.Die.Core,
		Handles:  pb.Handles,
		Writer:   e.Writer,
		Graphics: opts.Graphics,
		Opts: nesterovplace.Options{
			MaxNesterovIter:             opts.NesterovPlaceMaxIter,
			MaxBackTrack:                10,
			InitialPrevCoordiUpdateCoef: 1e-2,
			InitRetryLimit:              10,
			RoutabilityDrivenMode:       opts.RoutabilityDrivenMode,
			RoutabilityCheckOverflow:    opts.RoutabilityCheckOverflow,
			SnapshotOverflow:            0.6,
			TimingDrivenMode:            opts.TimingDrivenMode,
			PadLeftDBU:                  padLeftDBU,
		},
	}

	if opts.RoutabilityDrivenMode && e.Router != nil {
		whiteSpace := float64(pb.Die.Core.Area() - pb.NonPlaceInstsArea)
		driver.Router = routebase.New(common, regions, pb.Handles, padLeftDBU, e.Writer, e.Router, whiteSpace, routebase.Options{
			InflationRatioCoef: opts.RoutabilityInflationRatioCoef,
			MaxInflationRatio:  opts.RoutabilityMaxInflationRatio,
			MaxDensity:         opts.RoutabilityMaxDensity,
			TargetRC:           opts.RoutabilityTargetRcMetric,
			IgnoreEdgeRatio:    0.8,
			MinInflationRatio:  1.01,
			RcK1:               opts.RoutabilityRcK1,
			RcK2:               opts.RoutabilityRcK2,
			RcK3:               opts.RoutabilityRcK3,
			RcK4:               opts.RoutabilityRcK4,
			MinRcViolatedLimit: 3,
			OverflowIterations: 1,
		})
	}

	if opts.TimingDrivenMode && e.Resizer != nil {
		driver.Timing = timingbase.New(common, e.Resizer, timingbase.Options{
			NetWeightMax:            opts.TimingNetWeightMax,
			TriggerOverflowsPercent: opts.TimingNetWeightOverflows,
		})
	}

	if err := driver.Init(); err != nil {
		return translateNesterovError(err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := driver.Run(); err != nil {
		return translateNesterovError(err)
	}
	return nil
}

func (e *Engine) writeBack(pb *placerbase.PlacerBase, padLeftDBU int64) {
	if e.Writer == nil {
		return
	}
	for i, inst := range pb.Arena.Instances {
		if inst.Dummy || inst.Fixed {
			continue
		}
		handle := pb.Handles[i]
		if handle == nil {
			continue
		}
		e.Writer.SetLocation(handle, inst.Lx+padLeftDBU, inst.Ly, netlist.StatusPlaced)
	}
}

func translateNesterovError(err error) error {
	var npErr *nesterovplace.Error
	if e, ok := err.(*nesterovplace.Error); ok {
		npErr = e
	}
	if npErr == nil {
		return err
	}
	kind := KindInitStepDivergence
	switch npErr.Code {
	case nesterovbase.DivergeWireLengthOrDensityNaN:
		kind = KindGradientDivergence
	case nesterovbase.DivergeStepLengthNaN:
		kind = KindNumericDivergence
	case nesterovbase.DivergeOverflowGrowth:
		kind = KindOverflowDivergence
	}
	return &Error{Kind: kind, Code: npErr.Code, Message: npErr.Message}
}

func movableIndices(pb *placerbase.PlacerBase) []int {
	var out []int
	for i, inst := range pb.Arena.Instances {
		if inst.Movable() {
			out = append(out, i)
		}
	}
	return out
}

func fixedInstances(pb *placerbase.PlacerBase) []geometry.Instance {
	var out []geometry.Instance
	for _, inst := range pb.Arena.Instances {
		if inst.Fixed {
			out = append(out, inst)
		}
	}
	return out
}

func allGCellIdxs(c *nesterovbase.NesterovBaseCommon) []int {
	idxs := make([]int, len(c.GCells))
	for i := range idxs {
		idxs[i] = i
	}
	return idxs
}

// sizeFillers implements original_source's initFillerGCells: average
// dx/dy over the 5th-95th percentile of movable standard-cell sizes. When
// the filler area exceeds 10x the Nesterov instance area, both dimensions
// are scaled up by sqrt(fillerArea/(10*instArea)), which lowers the
// filler count.
func sizeFillers(pb *placerbase.PlacerBase, coreArea int64, targetDensity float64) (fillerDx, fillerDy int64, fillerCnt int) {
	var dxs, dys []int64
	for _, inst := range pb.Arena.Instances {
		if !inst.Movable() || inst.Macro {
			continue
		}
		dxs = append(dxs, inst.Width())
		dys = append(dys, inst.Height())
	}
	if len(dxs) == 0 {
		return 0, 0, 0
	}
	sort.Slice(dxs, func(i, j int) bool { return dxs[i] < dxs[j] })
	sort.Slice(dys, func(i, j int) bool { return dys[i] < dys[j] })

	lo := int(float64(len(dxs)) * 0.05)
	hi := int(float64(len(dxs)) * 0.95)
	if lo == hi {
		lo, hi = 0, len(dxs)
	}
	var dxSum, dySum int64
	for i := lo; i < hi; i++ {
		dxSum += dxs[i]
		dySum += dys[i]
	}
	n := int64(hi - lo)
	fillerDx = dxSum / n
	fillerDy = dySum / n
	if fillerDx <= 0 || fillerDy <= 0 {
		return 0, 0, 0
	}

	whiteSpaceArea := float64(coreArea - pb.NonPlaceInstsArea)
	nesterovInstsArea := float64(pb.StdInstsArea) + math.Round(float64(pb.MacroInstsArea)*targetDensity)
	movableArea := whiteSpaceArea * targetDensity
	totalFillerArea := movableArea - nesterovInstsArea
	if totalFillerArea <= 0 {
		return fillerDx, fillerDy, 0
	}

	const limitFillerRatio = 10
	if scale := math.Sqrt(totalFillerArea / (limitFillerRatio * nesterovInstsArea)); scale > 1 {
		fillerDx = int64(float64(fillerDx) * scale)
		fillerDy = int64(float64(fillerDy) * scale)
	}
	if fillerDx <= 0 || fillerDy <= 0 {
		return 0, 0, 0
	}
	fillerCnt = int(totalFillerArea / float64(fillerDx*fillerDy))
	return fillerDx, fillerDy, fillerCnt
}

// seedFillerPositions places every filler GCell (the ones appended after
// numRealInsts in BuildCommon's GCells slice) at a random center inside
// the core, matching original_source's mt19937(0)-seeded placement.
func seedFillerPositions(common *nesterovbase.NesterovBaseCommon, numRealInsts int, core geometry.Rect, fillerDx, fillerDy int64, seed int64) {
	r := rand.New(rand.NewSource(seed))
	hx, hy := float64(fillerDx)/2, float64(fillerDy)/2
	for i := numRealInsts; i < len(common.GCells); i++ {
		common.PosX[i] = float64(core.Lx) + hx + r.Float64()*(float64(core.Dx())-2*hx)
		common.PosY[i] = float64(core.Ly) + hy + r.Float64()*(float64(core.Dy())-2*hy)
	}
}
