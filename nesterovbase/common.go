// Copyright 2025 The goplace Authors. SPDX-License-Identifier: Apache-2.0

package nesterovbase

import (
	"math"

	"github.com/ajroetker/goplace/geometry"
	"github.com/ajroetker/goplace/netlist"
	"github.com/ajroetker/goplace/placerbase"
	"github.com/ajroetker/goplace/workerpool"
)

// MinExpFloor is the default floor (spec.md §4.E: "a configurable floor
// (default -300)") below which a pin's WA exponent is dropped from the
// accumulation to avoid under/overflow.
const MinExpFloor = -300

// NesterovBaseCommon owns the shared G-graph (GCell/GPin/GNet) built once
// from a placerbase.PlacerBase and the weighted-average wirelength
// gradient pass that every region reads (spec.md §4.E, component
// NesterovBaseCommon).
type NesterovBaseCommon struct {
	GCells []GCell
	GPins  []GPin
	GNets  []GNet

	// NetHandles[i] is the opaque netlist handle for GNets[i], used by
	// timingbase to resolve a resizer-reported slack back to a GNet.
	NetHandles []any

	// PosX/PosY is the current center position of every GCell, written by
	// each NesterovBase region before a wirelength-gradient pass.
	PosX, PosY []float64

	// WLGradX/WLGradY holds the last updateWireLengthForceWA() output.
	WLGradX, WLGradY []float64

	pool *workerpool.Pool
}

// BuildCommon constructs the shared G-graph from a PlacerBase, appending
// numFillers filler GCells (spec.md §4.D/F: filler cells participate in
// density but not wirelength).
func BuildCommon(pb *placerbase.PlacerBase, fillerDx, fillerDy int64, numFillers int, binSizeX, binSizeY float64, pool *workerpool.Pool) *NesterovBaseCommon {
	c := &NesterovBaseCommon{pool: pool}

	gcellOfInst := make([]int, len(pb.Arena.Instances))
	for i, inst := range pb.Arena.Instances {
		if inst.Dummy {
			gcellOfInst[i] = -1
			continue
		}
		sizeX, sizeY, scale := computeDensitySize(inst.Width(), inst.Height(), binSizeX, binSizeY)
		gc := GCell{
			InstIdx: i,
			IsMacro: inst.Macro,
			// A fixed instance never moves or converges through the
			// Nesterov state machine; it contributes density only.
			Locked: inst.Locked || inst.Fixed,
			Dx:     inst.Width(), Dy: inst.Height(),
			DensitySizeX: sizeX, DensitySizeY: sizeY, DensityScale: scale,
		}
		gcellOfInst[i] = len(c.GCells)
		c.GCells = append(c.GCells, gc)
	}

	for i := 0; i < numFillers; i++ {
		sizeX, sizeY, scale := computeDensitySize(fillerDx, fillerDy, binSizeX, binSizeY)
		c.GCells = append(c.GCells, GCell{
			InstIdx: geometry.NoIndex, IsFiller: true,
			Dx: fillerDx, Dy: fillerDy,
			DensitySizeX: sizeX, DensitySizeY: sizeY, DensityScale: scale,
		})
	}

	for ni, net := range pb.Arena.Nets {
		cw := net.CustomWeight
		if cw == 0 {
			cw = 1
		}
		gn := GNet{Weight: net.TotalWeight(), CustomWeight: cw}
		if ni < len(pb.NetHandles) {
			c.NetHandles = append(c.NetHandles, pb.NetHandles[ni])
		} else {
			c.NetHandles = append(c.NetHandles, nil)
		}
		for _, pinIdx := range net.PinIdxs {
			pin := &pb.Arena.Pins[pinIdx]
			gIdx := -1
			if pin.InstIdx != geometry.NoIndex {
				gIdx = gcellOfInst[pin.InstIdx]
			}
			gp := GPin{
				GCellIdx: gIdx,
				GNetIdx:  len(c.GNets),
				OffsetCx: pin.OffsetCx, OffsetCy: pin.OffsetCy,
				IsMinPinX: pin.IsMinPinX, IsMaxPinX: pin.IsMaxPinX,
				IsMinPinY: pin.IsMinPinY, IsMaxPinY: pin.IsMaxPinY,
			}
			gpIdx := len(c.GPins)
			c.GPins = append(c.GPins, gp)
			gn.PinIdxs = append(gn.PinIdxs, gpIdx)
			if gIdx >= 0 {
				c.GCells[gIdx].PinIdxs = append(c.GCells[gIdx].PinIdxs, gpIdx)
			}
		}
		c.GNets = append(c.GNets, gn)
	}

	n := len(c.GCells)
	c.PosX, c.PosY = make([]float64, n), make([]float64, n)
	c.WLGradX, c.WLGradY = make([]float64, n), make([]float64, n)
	for i, inst := range pb.Arena.Instances {
		if gi := gcellOfInst[i]; gi >= 0 {
			c.PosX[gi] = float64(inst.CenterX())
			c.PosY[gi] = float64(inst.CenterY())
		}
	}
	return c
}

// netSums holds the per-net ΣA/ΣB accumulators for both extremes of one
// axis, per spec.md §4.E.
type netSums struct {
	sumAMin, sumBMin float64
	sumAMax, sumBMax float64
}

// pinExp holds the per-pin min/max-side exponent weights (p in spec.md
// §4.E) computed in the ΣA/ΣB accumulation pass, reused unchanged in the
// gradient-distribution pass.
type pinExp struct {
	pMin, pMax float64 // 0 when this pin's exponent fell below MinExpFloor
}

// UpdateWireLengthForceWA implements spec.md §4.E's weighted-average
// wirelength gradient: a first pass accumulates per-net ΣA/ΣB sums (using
// the shift-invariant reformulation against the net's extreme pin
// coordinate), then a second pass distributes each pin's WA gradient,
// scaled by the net's TotalWeight, into its owning GCell.
func (c *NesterovBaseCommon) UpdateWireLengthForceWA(wlCoefX, wlCoefY float64) {
	for i := range c.WLGradX {
		c.WLGradX[i], c.WLGradY[i] = 0, 0
	}
	c.updateAxis(wlCoefX, c.PosX, func(gp *GPin) int64 { return gp.OffsetCx }, c.WLGradX)
	c.updateAxis(wlCoefY, c.PosY, func(gp *GPin) int64 { return gp.OffsetCy }, c.WLGradY)
}

func (c *NesterovBaseCommon) updateAxis(gamma float64, pos []float64, pinOffset func(*GPin) int64, out []float64) {
	exps := make([]pinExp, len(c.GPins))

	for ni := range c.GNets {
		net := &c.GNets[ni]
		if len(net.PinIdxs) < 2 {
			continue
		}
		lo, hi := math.Inf(1), math.Inf(-1)
		for _, pi := range net.PinIdxs {
			gp := &c.GPins[pi]
			x := pos[gp.GCellIdx] + float64(pinOffset(gp))
			lo = math.Min(lo, x)
			hi = math.Max(hi, x)
		}

		var s netSums
		for _, pi := range net.PinIdxs {
			gp := &c.GPins[pi]
			x := pos[gp.GCellIdx] + float64(pinOffset(gp))
			var e pinExp
			if eMin := (lo - x) * gamma; eMin >= MinExpFloor {
				e.pMin = math.Exp(eMin)
				s.sumAMin += e.pMin
				s.sumBMin += x * e.pMin
			}
			if eMax := (x - hi) * gamma; eMax >= MinExpFloor {
				e.pMax = math.Exp(eMax)
				s.sumAMax += e.pMax
				s.sumBMax += x * e.pMax
			}
			exps[pi] = e
		}

		for _, pi := range net.PinIdxs {
			gp := &c.GPins[pi]
			x := pos[gp.GCellIdx] + float64(pinOffset(gp))
			e := exps[pi]
			var g float64
			if s.sumAMin > 0 && e.pMin > 0 {
				g += (s.sumAMin*(1-gamma*x) + gamma*s.sumBMin) / (s.sumAMin * s.sumAMin) * e.pMin
			}
			if s.sumAMax > 0 && e.pMax > 0 {
				g -= (s.sumAMax*(1+gamma*x) - gamma*s.sumBMax) / (s.sumAMax * s.sumAMax) * e.pMax
			}
			out[gp.GCellIdx] += g * net.Weight
		}
	}
}

// WirelengthPreconditioner returns the per-GCell preconditioner value:
// the pin count, identical on both axes (spec.md §4.E).
func (c *NesterovBaseCommon) WirelengthPreconditioner(gcellIdx int) float64 {
	return float64(len(c.GCells[gcellIdx].PinIdxs))
}

// UpdateDbGCells implements spec.md §4.E's updateDbGCells(): writes
// (cx-dx/2+padLeft, cy-dy/2) back to the external netlist for every
// non-locked, non-filler, non-dummy placed instance, parallelized over
// GCells per spec.md §5's data-parallel model.
func (c *NesterovBaseCommon) UpdateDbGCells(handles []any, padLeftDBU int64, w netlist.Writer) {
	work := func(start, end int) {
		for i := start; i < end; i++ {
			gc := &c.GCells[i]
			if gc.IsFiller || gc.Locked || gc.InstIdx == geometry.NoIndex {
				continue
			}
			handle := handles[gc.InstIdx]
			if handle == nil {
				continue
			}
			lx := int64(math.Round(c.PosX[i])) - gc.Dx/2 + padLeftDBU
			ly := int64(math.Round(c.PosY[i])) - gc.Dy/2
			w.SetLocation(handle, lx, ly, netlist.StatusPlaced)
		}
	}
	if c.pool != nil {
		c.pool.ParallelFor(len(c.GCells), work)
		return
	}
	work(0, len(c.GCells))
}
