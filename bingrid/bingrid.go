// Copyright 2025 The goplace Authors. SPDX-License-Identifier: Apache-2.0

// Package bingrid implements the uniform bin tiling of spec.md §4.D: it
// computes per-bin occupancy (non-placeable, placed-instance and filler
// area) and the resulting density/overflow used as the Nesterov loop's
// convergence metric.
package bingrid

import (
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/ajroetker/goplace/geometry"
)

// Bin is one cell of the uniform grid (spec.md §3, Bin).
type Bin struct {
	Ix, Iy int
	Rect   geometry.Rect

	NonPlace   float64
	InstPlaced float64
	Filler     float64

	Density       float64
	TargetDensity float64

	ElectroPhi    float32
	ElectroForceX float32
	ElectroForceY float32
}

// Area is the bin's rectangle area.
func (b Bin) Area() float64 { return float64(b.Rect.Area()) }

// BinGrid owns the bin array and its dimensions.
type BinGrid struct {
	Core               geometry.Rect
	BinCntX, BinCntY   int
	BinSizeX, BinSizeY float64

	Bins []Bin

	TargetDensity    float64
	SumOverflowArea  float64
	MovableArea      int64
}

// roundDownToPowerOfTwo returns the largest power of two <= x (x > 0),
// ported from original_source/src/gpl/src/nesterovBase.cpp
// roundDownToPowerOfTwo.
func roundDownToPowerOfTwo(x int) int {
	if x <= 0 {
		return 1
	}
	x |= x >> 1
	x |= x >> 2
	x |= x >> 4
	x |= x >> 8
	x |= x >> 16
	return x ^ (x >> 1)
}

// AutoBinCount implements spec.md §4.D's auto bin-count search exactly as
// original_source computes it: idealBinArea = round(avgPlaceInstArea /
// targetDensity); idealBinCnt = totalBinArea / idealBinArea (floor
// division), with a floor of 4. The long axis gets k*ratio bins, the short
// axis gets k bins, where ratio is the core aspect ratio rounded down to a
// power of two.
func AutoBinCount(coreWidth, coreHeight int64, avgPlaceInstArea int64, targetDensity float64) (binCntX, binCntY int) {
	totalBinArea := coreWidth * coreHeight

	var idealBinArea int64
	if targetDensity != 0 {
		idealBinArea = int64(math.Round(float64(avgPlaceInstArea) / targetDensity))
	}

	var idealBinCnt int64
	if idealBinArea != 0 {
		idealBinCnt = totalBinArea / idealBinArea
	}
	if idealBinCnt < 4 {
		idealBinCnt = 4
	}

	width, height := coreWidth, coreHeight
	ratio := roundDownToPowerOfTwo(int(max64(width, height) / min64(width, height)))

	foundBinCnt := 2
	for foundBinCnt = 2; foundBinCnt <= 1024; foundBinCnt *= 2 {
		area := int64(foundBinCnt) * int64(foundBinCnt*ratio)
		if (foundBinCnt == 2 || area <= idealBinCnt) && 4*area > idealBinCnt {
			break
		}
	}

	if width > height {
		return foundBinCnt * ratio, foundBinCnt
	}
	return foundBinCnt, foundBinCnt * ratio
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

// New builds a bin grid over core with the given bin counts (0 selects
// AutoBinCount using avgPlaceInstArea/targetDensity) and target density.
func New(core geometry.Rect, binCntX, binCntY int, avgPlaceInstArea int64, targetDensity float64) *BinGrid {
	if binCntX <= 0 || binCntY <= 0 {
		binCntX, binCntY = AutoBinCount(core.Dx(), core.Dy(), avgPlaceInstArea, targetDensity)
	}
	if binCntX < 2 {
		binCntX = 2
	}
	if binCntY < 2 {
		binCntY = 2
	}

	g := &BinGrid{
		Core: core, BinCntX: binCntX, BinCntY: binCntY,
		TargetDensity: targetDensity,
	}
	g.BinSizeX = math.Ceil(float64(core.Dx()) / float64(binCntX))
	g.BinSizeY = math.Ceil(float64(core.Dy()) / float64(binCntY))

	g.Bins = make([]Bin, binCntX*binCntY)
	for y := 0; y < binCntY; y++ {
		for x := 0; x < binCntX; x++ {
			lx := core.Lx + int64(float64(x)*g.BinSizeX)
			ly := core.Ly + int64(float64(y)*g.BinSizeY)
			ux := min64(lx+int64(g.BinSizeX), core.Ux)
			uy := min64(ly+int64(g.BinSizeY), core.Uy)
			g.Bins[y*binCntX+x] = Bin{
				Ix: x, Iy: y,
				Rect:          geometry.Rect{Lx: lx, Ly: ly, Ux: ux, Uy: uy},
				TargetDensity: targetDensity,
			}
		}
	}
	return g
}

// SetTargetDensity updates the grid's and every bin's target density,
// used by routebase to propagate a new density after a routability bloat
// pass (spec.md §4.I).
func (g *BinGrid) SetTargetDensity(density float64) {
	g.TargetDensity = density
	for i := range g.Bins {
		g.Bins[i].TargetDensity = density
	}
}

func (g *BinGrid) at(x, y int) *Bin { return &g.Bins[y*g.BinCntX+x] }

// indexRangeX and indexRangeY return the half-open [lo, hi) bin index
// range along their axis that r overlaps.
func (g *BinGrid) indexRangeX(r geometry.Rect) (int, int) {
	lo := int(float64(r.Lx-g.Core.Lx) / g.BinSizeX)
	hi := int(math.Ceil(float64(r.Ux-g.Core.Lx)/g.BinSizeX))
	return clamp(lo, 0, g.BinCntX), clamp(hi, 0, g.BinCntX)
}

func (g *BinGrid) indexRangeY(r geometry.Rect) (int, int) {
	lo := int(float64(r.Ly-g.Core.Ly) / g.BinSizeY)
	hi := int(math.Ceil(float64(r.Uy-g.Core.Ly)/g.BinSizeY))
	return clamp(lo, 0, g.BinCntY), clamp(hi, 0, g.BinCntY)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// UpdateNonPlaceArea implements spec.md §4.D's updateBinsNonPlaceArea:
// for each fixed instance, for each overlapped bin, add
// overlap(bin,inst)*targetDensity. Macros additionally get the
// anisotropic bivariate-normal overlap estimate described in spec.md
// §4.D; Instance.Macro marks which fixed instances are macros.
func (g *BinGrid) UpdateNonPlaceArea(fixedInsts []geometry.Instance) {
	for i := range g.Bins {
		g.Bins[i].NonPlace = 0
	}
	for _, inst := range fixedInsts {
		bbox := inst.BBox()
		x0, x1 := g.indexRangeX(bbox)
		y0, y1 := g.indexRangeY(bbox)
		for y := y0; y < y1; y++ {
			for x := x0; x < x1; x++ {
				bin := g.at(x, y)
				var overlap float64
				if inst.Macro {
					overlap = macroOverlapArea(*bin, bbox)
				} else {
					overlap = float64(bin.Rect.Overlap(bbox))
				}
				bin.NonPlace += overlap * bin.TargetDensity
			}
		}
	}
}

// macroOverlapArea implements the anisotropic overlap estimate of
// spec.md §4.D: weight the rectangular overlap by a bivariate normal CDF
// centered on the macro with sigma = extent/4, capped at 1.15x the raw
// overlap and floored at the raw overlap.
func macroOverlapArea(bin Bin, macro geometry.Rect) float64 {
	raw := float64(bin.Rect.Overlap(macro))
	if raw == 0 {
		return 0
	}
	sigmaX := float64(macro.Dx()) / 4
	sigmaY := float64(macro.Dy()) / 4
	if sigmaX == 0 {
		sigmaX = 1
	}
	if sigmaY == 0 {
		sigmaY = 1
	}
	mcx, mcy := float64(macro.CenterX()), float64(macro.CenterY())
	cdf := func(v, mean, sigma float64) float64 {
		return 0.5 * (1 + math.Erf((v-mean)/(sigma*math.Sqrt2)))
	}
	weight := cdf(float64(bin.Rect.Ux), mcx, sigmaX) - cdf(float64(bin.Rect.Lx), mcx, sigmaX)
	weight *= cdf(float64(bin.Rect.Uy), mcy, sigmaY) - cdf(float64(bin.Rect.Ly), mcy, sigmaY)
	scaled := raw * weight * 4 // normalize so a bin fully inside the macro center approaches raw
	if scaled > 1.15*raw {
		scaled = 1.15 * raw
	}
	if scaled < raw {
		scaled = raw
	}
	return scaled
}

// GCellView is the minimal shape bingrid needs from a GCell to compute
// density overlap, to avoid an import cycle with package nesterovbase.
type GCellView struct {
	DensityBBox  geometry.Rect
	DensityScale float64
	IsMacro      bool
	IsFiller     bool
}

// UpdateGCellDensityArea implements spec.md §4.D's
// updateBinsGCellDensityArea: zero instPlaced/filler, then for each GCell
// add overlapDensity(bin, gcell) * densityScale to the appropriate
// accumulator (macros additionally multiplied by bin.targetDensity), then
// recompute density and overflow per bin.
func (g *BinGrid) UpdateGCellDensityArea(cells []GCellView) {
	for i := range g.Bins {
		g.Bins[i].InstPlaced = 0
		g.Bins[i].Filler = 0
	}

	for _, cell := range cells {
		x0, x1 := g.indexRangeX(cell.DensityBBox)
		y0, y1 := g.indexRangeY(cell.DensityBBox)
		for y := y0; y < y1; y++ {
			for x := x0; x < x1; x++ {
				bin := g.at(x, y)
				overlap := float64(bin.Rect.Overlap(cell.DensityBBox)) * cell.DensityScale
				switch {
				case cell.IsFiller:
					bin.Filler += overlap
				case cell.IsMacro:
					bin.InstPlaced += overlap * bin.TargetDensity
				default:
					bin.InstPlaced += overlap
				}
			}
		}
	}

	var eg errgroup.Group
	chunks := 8
	if chunks > len(g.Bins) {
		chunks = 1
	}
	chunkSize := (len(g.Bins) + chunks - 1) / chunks
	overflows := make([]float64, chunks)
	for c := 0; c < chunks; c++ {
		c := c
		start := c * chunkSize
		end := min(start+chunkSize, len(g.Bins))
		if start >= end {
			continue
		}
		eg.Go(func() error {
			var local float64
			for i := start; i < end; i++ {
				bin := &g.Bins[i]
				binArea := bin.Area()
				scaledBinArea := binArea * bin.TargetDensity
				if scaledBinArea > 0 {
					bin.Density = (bin.InstPlaced + bin.Filler + bin.NonPlace) / scaledBinArea
				}
				over := bin.InstPlaced + bin.NonPlace - scaledBinArea
				if over > 0 {
					local += over
				}
			}
			overflows[c] = local
			return nil
		})
	}
	_ = eg.Wait()
	var total float64
	for _, v := range overflows {
		total += v
	}
	g.SumOverflowArea = total
}

// ForEachOverlapping calls fn once for every bin whose rectangle overlaps
// r, in row-major order.
func (g *BinGrid) ForEachOverlapping(r geometry.Rect, fn func(*Bin)) {
	x0, x1 := g.indexRangeX(r)
	y0, y1 := g.indexRangeY(r)
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			fn(g.at(x, y))
		}
	}
}

// Density2D returns the per-bin density as a row-major [BinCntY][BinCntX]
// grid, the shape the fft package expects.
func (g *BinGrid) Density2D() [][]float32 {
	out := make([][]float32, g.BinCntY)
	for y := 0; y < g.BinCntY; y++ {
		row := make([]float32, g.BinCntX)
		for x := 0; x < g.BinCntX; x++ {
			row[x] = float32(g.at(x, y).Density)
		}
		out[y] = row
	}
	return out
}

// ApplyElectroFields writes phi/Ex/Ey (as produced by fft.Solver.Solve)
// back into the bins.
func (g *BinGrid) ApplyElectroFields(phi, ex, ey [][]float32) {
	for y := 0; y < g.BinCntY; y++ {
		for x := 0; x < g.BinCntX; x++ {
			bin := g.at(x, y)
			bin.ElectroPhi = phi[y][x]
			bin.ElectroForceX = ex[y][x]
			bin.ElectroForceY = ey[y][x]
		}
	}
}
