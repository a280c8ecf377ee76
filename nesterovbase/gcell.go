// Copyright 2025 The goplace Authors. SPDX-License-Identifier: Apache-2.0

// Package nesterovbase implements components E and F of spec.md §4: the
// shift-invariant weighted-average wirelength gradient
// (NesterovBaseCommon) and the density gradient, preconditioners and
// convergence state machine (NesterovBase), grounded on
// original_source/src/gpl/src/nesterovBase.cpp's GCell/GPin/GNet model.
package nesterovbase

import (
	"math"

	"github.com/ajroetker/goplace/geometry"
)

// GCell is the Nesterov-loop view of one placeable instance or filler: its
// current/prev/next placement state lives in NesterovBase's coordinate
// vectors, indexed by position in that region's GCellIdxs list, not here
// (spec.md §5: index maps
// rebuilt via FixPointers, not pointer cycles).
type GCell struct {
	InstIdx int // index into geometry.Arena.Instances, or geometry.NoIndex for a filler
	IsFiller bool
	IsMacro  bool
	Locked   bool

	Dx, Dy int64 // cell extent

	DensityScale        float64
	DensitySizeX, DensitySizeY float64

	PinIdxs []int // indices into NesterovBaseCommon.GPins
}

// DensityBBox returns this cell's density-expanded bounding box centered
// at (cx, cy), per spec.md §4.F's densitySizeX/Y.
func (c *GCell) DensityBBox(cx, cy float64) geometry.Rect {
	hx, hy := c.DensitySizeX/2, c.DensitySizeY/2
	return geometry.Rect{
		Lx: int64(math.Round(cx - hx)), Ly: int64(math.Round(cy - hy)),
		Ux: int64(math.Round(cx + hx)), Uy: int64(math.Round(cy + hy)),
	}
}

// computeDensitySize implements spec.md §4.F: "if dx < sqrt(2)*binSizeX,
// set densitySizeX = sqrt(2)*binSizeX and scaleX = dx/(sqrt(2)*binSizeX),
// else densitySizeX = dx, scaleX = 1"; likewise for Y. densityScale =
// scaleX*scaleY.
func computeDensitySize(dx, dy int64, binSizeX, binSizeY float64) (sizeX, sizeY, scale float64) {
	sqrt2 := math.Sqrt2
	fx := float64(dx)
	fy := float64(dy)

	var sizeXv, scaleX float64
	if minX := sqrt2 * binSizeX; fx < minX {
		sizeXv, scaleX = minX, fx/minX
	} else {
		sizeXv, scaleX = fx, 1
	}

	var sizeYv, scaleY float64
	if minY := sqrt2 * binSizeY; fy < minY {
		sizeYv, scaleY = minY, fy/minY
	} else {
		sizeYv, scaleY = fy, 1
	}

	return sizeXv, sizeYv, scaleX * scaleY
}

// Bloat scales dx/dy by √ratio, rounding to the nearest DBU, and
// recomputes the density size/scale against the given bin dimensions, per
// spec.md §4.I's routability bloat step. Returns the area delta in DBU².
func (c *GCell) Bloat(ratio, binSizeX, binSizeY float64) int64 {
	prevArea := c.Dx * c.Dy
	scale := math.Sqrt(ratio)
	c.Dx = int64(math.Round(float64(c.Dx) * scale))
	c.Dy = int64(math.Round(float64(c.Dy) * scale))
	c.DensitySizeX, c.DensitySizeY, c.DensityScale = computeDensitySize(c.Dx, c.Dy, binSizeX, binSizeY)
	return c.Dx*c.Dy - prevArea
}

// SetSize restores dx/dy (e.g. from a routability min-RC snapshot) and
// recomputes the density size/scale.
func (c *GCell) SetSize(dx, dy int64, binSizeX, binSizeY float64) {
	c.Dx, c.Dy = dx, dy
	c.DensitySizeX, c.DensitySizeY, c.DensityScale = computeDensitySize(dx, dy, binSizeX, binSizeY)
}

// GPin is the Nesterov-loop view of one pin: it denormalizes a
// geometry.Pin's owning GCell and net for the hot WA-gradient loop.
type GPin struct {
	GCellIdx int
	GNetIdx  int
	OffsetCx, OffsetCy int64 // pin offset from cell center (geometry.Pin.OffsetCx/Cy)
	IsMinPinX, IsMaxPinX bool
	IsMinPinY, IsMaxPinY bool
}

// GNet is the Nesterov-loop view of one net.
type GNet struct {
	PinIdxs []int
	Weight  float64 // total weight: timing x custom, per spec.md §4.A Net.TotalWeight

	// CustomWeight is carried separately from Weight so timingbase can
	// recompute Weight = timingWeight*CustomWeight without losing the
	// netlist-supplied custom multiplier baked in at BuildCommon time.
	CustomWeight float64
}
