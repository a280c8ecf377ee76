// Copyright 2025 The goplace Authors. SPDX-License-Identifier: Apache-2.0

package placerbase

import (
	"github.com/ajroetker/goplace/geometry"
	"github.com/ajroetker/goplace/netlist"
)

// siteKind is the per-site paint used while walking the site grid
// (spec.md §4.B).
type siteKind uint8

const (
	siteEmpty siteKind = iota
	siteRow
	siteFixedInst
)

// BuildDummyFill walks a (coreDx/siteX)×(coreDy/siteY) site grid and
// returns one dummy Instance per contiguous run of Empty sites along X
// within a row (spec.md §4.B). Dummy instances carry Fixed=true so
// downstream area accounting (BinGrid.UpdateNonPlaceArea) treats them
// exactly like any other unusable obstacle.
func BuildDummyFill(die geometry.Die, siteW, siteH int64, instances []geometry.Instance, blockages []netlist.BlockageView, regions []netlist.RegionView, groupName string) []geometry.Instance {
	core := die.Core
	nx := int(core.Dx() / siteW)
	ny := int(core.Dy() / siteH)
	if nx <= 0 || ny <= 0 {
		return nil
	}

	grid := make([]siteKind, nx*ny)
	at := func(sx, sy int) int { return sy*nx + sx }

	// Step 1: seed Row/Empty from the group region, or Row everywhere when
	// there is no group restriction.
	var group *netlist.RegionView
	if groupName != "" {
		for i := range regions {
			if regions[i].Name == groupName {
				group = &regions[i]
				break
			}
		}
	}
	for sy := 0; sy < ny; sy++ {
		for sx := 0; sx < nx; sx++ {
			if group == nil {
				grid[at(sx, sy)] = siteRow
				continue
			}
			siteRect := siteRectAt(core, siteW, siteH, sx, sy)
			inside := false
			for _, box := range group.Boxes {
				if box.Overlap(siteRect) > 0 {
					inside = true
					break
				}
			}
			if inside {
				grid[at(sx, sy)] = siteRow
			} else {
				grid[at(sx, sy)] = siteEmpty
			}
		}
	}

	// Step 2: paint FixedInst under every fixed instance (movable macros
	// are not painted).
	for _, inst := range instances {
		if !inst.Fixed {
			continue
		}
		paintSites(grid, core, siteW, siteH, nx, ny, inst.BBox(), siteFixedInst)
	}

	// Step 3: blockages with maxDensity < 100 paint a proportional share of
	// their sites Empty, spread evenly with a fixed-stride pattern: every
	// int(100/(100-maxDensity))-th site, so the painted fraction
	// approximates (100-maxDensity)/100 regardless of blockage shape.
	for _, bl := range blockages {
		if bl.MaxDensity >= 100 {
			continue
		}
		emptyFrac := (100 - bl.MaxDensity) / 100
		if emptyFrac <= 0 {
			continue
		}
		stride := int(1.0 / emptyFrac)
		if stride < 1 {
			stride = 1
		}
		counter := 0
		forEachSite(core, siteW, siteH, nx, ny, bl.Rect, func(sx, sy int) {
			idx := at(sx, sy)
			if grid[idx] == siteFixedInst {
				return
			}
			if counter%stride == 0 {
				grid[idx] = siteEmpty
			}
			counter++
		})
	}

	// Step 4: contiguous Empty runs along X become one dummy instance.
	var dummies []geometry.Instance
	for sy := 0; sy < ny; sy++ {
		runStart := -1
		flush := func(endX int) {
			if runStart < 0 {
				return
			}
			lx := core.Lx + int64(runStart)*siteW
			ux := core.Lx + int64(endX)*siteW
			ly := core.Ly + int64(sy)*siteH
			uy := ly + siteH
			dummies = append(dummies, geometry.Instance{
				ExtID: -1,
				Lx:    lx, Ly: ly, Ux: ux, Uy: uy,
				Fixed: true,
				Dummy: true,
			})
			runStart = -1
		}
		for sx := 0; sx < nx; sx++ {
			if grid[at(sx, sy)] == siteEmpty {
				if runStart < 0 {
					runStart = sx
				}
			} else {
				flush(sx)
			}
		}
		flush(nx)
	}
	return dummies
}

func siteRectAt(core geometry.Rect, siteW, siteH int64, sx, sy int) geometry.Rect {
	lx := core.Lx + int64(sx)*siteW
	ly := core.Ly + int64(sy)*siteH
	return geometry.Rect{Lx: lx, Ly: ly, Ux: lx + siteW, Uy: ly + siteH}
}

func forEachSite(core geometry.Rect, siteW, siteH int64, nx, ny int, r geometry.Rect, fn func(sx, sy int)) {
	sxLo := int((r.Lx - core.Lx) / siteW)
	sxHi := int((r.Ux-core.Lx)/siteW) + 1
	syLo := int((r.Ly - core.Ly) / siteH)
	syHi := int((r.Uy-core.Ly)/siteH) + 1
	sxLo = clampInt(sxLo, 0, nx)
	sxHi = clampInt(sxHi, 0, nx)
	syLo = clampInt(syLo, 0, ny)
	syHi = clampInt(syHi, 0, ny)
	for sy := syLo; sy < syHi; sy++ {
		for sx := sxLo; sx < sxHi; sx++ {
			if r.Overlap(siteRectAt(core, siteW, siteH, sx, sy)) > 0 {
				fn(sx, sy)
			}
		}
	}
}

func paintSites(grid []siteKind, core geometry.Rect, siteW, siteH int64, nx, ny int, r geometry.Rect, kind siteKind) {
	forEachSite(core, siteW, siteH, nx, ny, r, func(sx, sy int) {
		grid[sy*nx+sx] = kind
	})
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
