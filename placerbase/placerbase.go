// Copyright 2025 The goplace Authors. SPDX-License-Identifier: Apache-2.0

// Package placerbase ingests an external netlist (netlist.Reader) into a
// geometry.Arena: it classifies instances into movable/fixed/dummy, fills
// unusable sites with dummy instances, and builds the Pin/Net set while
// filtering supply nets (spec.md §4.B, component B).
package placerbase

import (
	"fmt"
	"log/slog"

	"github.com/samber/lo"

	"github.com/ajroetker/goplace/geometry"
	"github.com/ajroetker/goplace/netlist"
)

// defaultMacroSiteRows is the "cell height > 6 site rows" threshold from
// spec.md §3.
const defaultMacroSiteRows = 6

// Config holds the per-run PlacerBase inputs named in spec.md §4.B.
type Config struct {
	GroupName          string // optional per-region group; "" selects all regions
	PadLeftSites       int64  // left site padding, in site-widths
	PadRightSites      int64  // right site padding, in site-widths
	SkipIO             bool   // drop boundary-port (BTerm) pins from the net set
	MacroSiteRowsLimit int64  // 0 selects defaultMacroSiteRows
}

// PlacerBase is the ingested, classified view of one netlist.
type PlacerBase struct {
	Arena geometry.Arena
	Die   geometry.Die

	SiteWidth, SiteHeight int64

	PlaceInstsArea    int64
	NonPlaceInstsArea int64
	MacroInstsArea    int64
	StdInstsArea      int64

	Dummies []geometry.Instance

	// Handles lets the engine write results back to the external netlist:
	// Handles[i] is the opaque handle for Arena.Instances[i], or nil for a
	// dummy instance that has no netlist counterpart.
	Handles []any

	// NetHandles[i] is the opaque handle for Arena.Nets[i], used by
	// timingbase to look up per-net slack from the resizer collaborator.
	NetHandles []any

	Blockages []netlist.BlockageView
	Regions   []netlist.RegionView

	logger *slog.Logger
}

// Build ingests r into a new PlacerBase.
func Build(r netlist.Reader, cfg Config, logger *slog.Logger) (*PlacerBase, error) {
	if logger == nil {
		logger = slog.Default()
	}
	die, ok := r.Die()
	if !ok {
		return nil, fmt.Errorf("placerbase: netlist reader has no die/core box")
	}
	if err := die.Validate(); err != nil {
		return nil, fmt.Errorf("placerbase: %w", err)
	}

	pb := &PlacerBase{
		Die:       die,
		Blockages: r.Blockages(),
		Regions:   r.Regions(),
		logger:    logger,
	}

	rows := r.Rows()
	if len(rows) == 0 {
		return nil, fmt.Errorf("placerbase: netlist has no placement rows")
	}
	pb.SiteWidth = rows[0].SiteWidth
	pb.SiteHeight = rows[0].SiteHeight
	if pb.SiteWidth <= 0 || pb.SiteHeight <= 0 {
		return nil, fmt.Errorf("placerbase: invalid site size %dx%d", pb.SiteWidth, pb.SiteHeight)
	}

	macroRows := cfg.MacroSiteRowsLimit
	if macroRows <= 0 {
		macroRows = defaultMacroSiteRows
	}

	instViews := r.Instances()
	handleIdx := make(map[any]int, len(instViews))
	for _, iv := range instViews {
		h := iv.Uy - iv.Ly
		fixed := iv.Status == netlist.StatusFixed
		macro := iv.IsBlock || geometry.IsMacroHeight(h, pb.SiteHeight, macroRows)

		bbox := geometry.Rect{Lx: iv.Lx, Ly: iv.Ly, Ux: iv.Ux, Uy: iv.Uy}
		if fixed {
			bbox = bbox.SnapOutward(pb.Die.Core.Lx, pb.Die.Core.Ly, pb.SiteWidth, pb.SiteHeight)
		}

		if bbox.Dx() > pb.Die.Core.Dx() || bbox.Dy() > pb.Die.Core.Dy() {
			return nil, fmt.Errorf("placerbase: instance bbox %+v exceeds core %+v", bbox, pb.Die.Core)
		}

		inst := geometry.Instance{
			ExtID:  int64(len(pb.Arena.Instances)),
			Lx:     bbox.Lx, Ly: bbox.Ly, Ux: bbox.Ux, Uy: bbox.Uy,
			Fixed:  fixed,
			Macro:  macro,
			Orient: iv.Orient,
		}
		handleIdx[iv.Handle] = len(pb.Arena.Instances)
		pb.Arena.Instances = append(pb.Arena.Instances, inst)
		pb.Handles = append(pb.Handles, iv.Handle)

		area := inst.Area()
		if fixed {
			pb.NonPlaceInstsArea += area
		} else {
			pb.PlaceInstsArea += area
			if macro {
				pb.MacroInstsArea += area
			} else {
				pb.StdInstsArea += area
			}
		}
	}

	if err := pb.checkUtilization(); err != nil {
		return nil, err
	}

	if err := pb.buildNets(r, handleIdx, cfg); err != nil {
		return nil, err
	}

	pb.Dummies = BuildDummyFill(pb.Die, pb.SiteWidth, pb.SiteHeight, pb.Arena.Instances, pb.Blockages, pb.Regions, cfg.GroupName)
	for i := range pb.Dummies {
		pb.Dummies[i].ExtID = int64(len(pb.Arena.Instances))
		pb.Arena.Instances = append(pb.Arena.Instances, pb.Dummies[i])
		pb.Handles = append(pb.Handles, nil)
	}

	return pb, nil
}

func (pb *PlacerBase) checkUtilization() error {
	coreArea := pb.Die.Core.Area()
	if coreArea <= 0 {
		return fmt.Errorf("placerbase: core area is zero")
	}
	usable := coreArea - pb.NonPlaceInstsArea
	if usable <= 0 {
		return fmt.Errorf("placerbase: no usable core area after fixed instances")
	}
	if float64(pb.PlaceInstsArea) > float64(usable) {
		return fmt.Errorf("placerbase: utilization > 100%% (movable area %d > usable core area %d)",
			pb.PlaceInstsArea, usable)
	}
	return nil
}

// buildNets builds the Pin/Net set from r, skipping filtered signal types
// (power/ground/reset) and, when cfg.SkipIO is set, boundary ports.
func (pb *PlacerBase) buildNets(r netlist.Reader, handleIdx map[any]int, cfg Config) error {
	netViews := r.Nets()
	netIdx := make(map[any]int, len(netViews))
	kept := lo.Filter(netViews, func(nv netlist.NetView, _ int) bool { return !nv.Signal.IsFiltered() })
	for _, nv := range kept {
		netIdx[nv.Handle] = len(pb.Arena.Nets)
		pb.Arena.Nets = append(pb.Arena.Nets, geometry.Net{
			Signal:       nv.Signal,
			CustomWeight: nv.CustomWeight,
			TimingWeight: 1,
		})
		pb.NetHandles = append(pb.NetHandles, nv.Handle)
	}

	for _, pv := range r.Pins() {
		ni, ok := netIdx[pv.NetHandle]
		if !ok {
			continue // net was filtered out (power/ground/reset)
		}
		isBTerm := pv.InstanceHandle == nil
		if isBTerm && cfg.SkipIO {
			continue
		}

		pin := geometry.Pin{NetIdx: ni, InstIdx: geometry.NoIndex}
		if isBTerm {
			pin.Kind = geometry.BTerm
			cx, cy := geometry.BoundaryPortOffset(pv.PortBBox)
			pin.Cx, pin.Cy = cx, cy
		} else {
			ii, ok := handleIdx[pv.InstanceHandle]
			if !ok {
				continue
			}
			pin.Kind = geometry.ITerm
			pin.InstIdx = ii
			shapeUnion, hasShapes := unionShapes(pv.Shapes)
			orient := pb.Arena.Instances[ii].Orient
			ox, oy, _ := geometry.ComputePinOffset(shapeUnion, pv.MasterBBox, orient, hasShapes)
			if !hasShapes {
				pb.logger.Warn("pin has no shapes; treating as centered", "net", pv.NetHandle, "instance", pv.InstanceHandle)
			}
			pin.OffsetCx, pin.OffsetCy = ox, oy
			pin.Cx = pb.Arena.Instances[ii].CenterX() + ox
			pin.Cy = pb.Arena.Instances[ii].CenterY() + oy
		}
		pb.Arena.Pins = append(pb.Arena.Pins, pin)
	}

	pb.Arena.FixPointers()
	pb.Arena.RecomputeNetBBoxes()
	return nil
}

func unionShapes(shapes []netlist.PinShape) (geometry.Rect, bool) {
	if len(shapes) == 0 {
		return geometry.Rect{}, false
	}
	r := geometry.Rect{Lx: shapes[0].Lx, Ly: shapes[0].Ly, Ux: shapes[0].Ux, Uy: shapes[0].Uy}
	for _, s := range shapes[1:] {
		r = r.Union(geometry.Rect{Lx: s.Lx, Ly: s.Ly, Ux: s.Ux, Uy: s.Uy})
	}
	return r, true
}
