// Copyright 2025 The goplace Authors. SPDX-License-Identifier: Apache-2.0

// Package netlist defines the collaborator interfaces the placement engine
// consumes (spec.md §6) without depending on any concrete database schema.
// Database/netlist loading, LEF parsing, detailed placement/legalization,
// the global router's internals and the resizer's internals are all out of
// scope (spec.md §1) — this package only describes the shape of the calls
// the engine makes into them.
package netlist

import "github.com/ajroetker/goplace/geometry"

// PlacementStatus mirrors the handful of states a netlist database tracks
// for an instance's location.
type PlacementStatus int

const (
	StatusUnplaced PlacementStatus = iota
	StatusPlaced
	StatusFixed
)

// InstanceView is what the engine needs to know about one netlist
// instance to build a geometry.Instance and its pins.
type InstanceView struct {
	Handle         any // opaque back-reference written verbatim into Writer.SetLocation calls
	Lx, Ly, Ux, Uy int64
	Orient         geometry.Orient
	Status         PlacementStatus
	IsBlock        bool // netlist already marks this as a macro/block
	SiteHeightDBU  int64
}

// PinShape is one rectangle of a pin's shape, in the master's own
// (unrotated) coordinate system.
type PinShape struct {
	Lx, Ly, Ux, Uy int64
}

// PinView is one pin on an instance or a boundary port.
type PinView struct {
	InstanceHandle any // nil for a boundary port (BTerm)
	Shapes         []PinShape
	MasterBBox     geometry.Rect // only meaningful when InstanceHandle != nil
	PortBBox       geometry.Rect // only meaningful when InstanceHandle == nil
	NetHandle      any
}

// NetView describes one net's signal classification; iterms/bterms are
// supplied separately via PinView.NetHandle matching this net's handle.
type NetView struct {
	Handle       any
	Signal       geometry.SignalType
	CustomWeight float64
}

// RowView is one placement row (a run of sites at a fixed Y).
type RowView struct {
	OriginX, OriginY int64
	SiteWidth        int64
	SiteHeight       int64
	NumSites         int64
}

// BlockageView is a placement blockage; MaxDensity in [0,100] caps movable
// cell area inside the blockage (spec.md §4.B).
type BlockageView struct {
	Rect       geometry.Rect
	MaxDensity float64
}

// RegionView is a power-domain/placement group used to scope a
// NesterovBase instance (spec.md §4.B, "per-region group").
type RegionView struct {
	Name  string
	Boxes []geometry.Rect
}

// Reader is the read side of the external netlist collaborator
// (spec.md §6): iterate instances, nets (and their pins), rows/sites,
// blockages and regions.
type Reader interface {
	Die() (die geometry.Die, ok bool)
	Instances() []InstanceView
	Nets() []NetView
	Pins() []PinView
	Rows() []RowView
	Blockages() []BlockageView
	Regions() []RegionView
}

// Writer is the write side: the engine writes results back only as
// updated instance locations and lock/placement status (spec.md §6).
type Writer interface {
	SetLocation(handle any, lx, ly int64, status PlacementStatus)
	SetLocked(handle any, locked bool)
}

// LayerDirection is horizontal or vertical routing preference for a layer,
// used by RouteBase to pick the correct neighbour-tile edge (spec.md
// §4.I).
type LayerDirection int

const (
	Horizontal LayerDirection = iota
	Vertical
)

// TileUsage is one (layer, x, y) routing-capacity sample.
type TileUsage struct {
	Layer     int
	Direction LayerDirection
	X, Y      int
	Capacity  float64
	Usage     float64
	Blockage  float64
}

// RouteResult is what one router pass returns.
type RouteResult struct {
	TileDx, TileDy int64
	TileCntX       int
	TileCntY       int
	Tiles          []TileUsage
}

// Router is the global-router collaborator (spec.md §6): one congestion
// pass with allowCongestion + a bounded number of overflow iterations,
// returning per-layer per-tile capacity/usage/blockage.
type Router interface {
	Route(allowCongestion bool, overflowIterations int) (RouteResult, error)
}

// NetSlack is one net's worst-case slack as reported by the resizer.
type NetSlack struct {
	NetHandle any
	SlackNs   float64
}

// Resizer is the timing collaborator (spec.md §6 and §4.J):
// FindResizeSlacks recomputes timing, WorstSlackNets returns nets sorted
// ascending by slack, NetSlack looks up one net's slack if already known.
type Resizer interface {
	FindResizeSlacks() error
	WorstSlackNets() []NetSlack
	NetSlack(netHandle any) (slackNs float64, ok bool)
}
