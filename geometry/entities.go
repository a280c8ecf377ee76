// Copyright 2025 The goplace Authors. SPDX-License-Identifier: Apache-2.0

package geometry

// SignalType classifies a Net for ingest-time filtering. Power, ground and
// reset nets are dropped before they ever reach an Arena (spec.md §3, Net).
type SignalType int

const (
	SignalSignal SignalType = iota
	SignalClock
	SignalPower
	SignalGround
	SignalReset
)

// IsFiltered reports whether nets of this signal type are excluded from
// placement (spec.md §3: "power/ground/reset nets are filtered out on
// ingest").
func (s SignalType) IsFiltered() bool {
	return s == SignalPower || s == SignalGround || s == SignalReset
}

// Instance is either a real cell (constructed from an external netlist
// handle, tracked by ExtID) or a dummy cell marking an unplaceable site.
// ExtID is the instance's position in Arena.Instances at ingest; it is not
// a sparse-matrix row index, since initialplace numbers its rows by
// position in its own list of movable instances (spec.md §3, Instance /
// §4.G).
type Instance struct {
	ExtID int64

	Lx, Ly, Ux, Uy int64

	Fixed  bool
	Macro  bool
	Locked bool
	Dummy  bool

	Orient Orient

	// PinIdxs is rebuilt by Arena.FixPointers from Pin.InstIdx; never
	// mutated directly by callers.
	PinIdxs []int
}

// Width and Height are the instance's current bbox extents.
func (inst Instance) Width() int64  { return inst.Ux - inst.Lx }
func (inst Instance) Height() int64 { return inst.Uy - inst.Ly }
func (inst Instance) CenterX() int64 { return (inst.Lx + inst.Ux) / 2 }
func (inst Instance) CenterY() int64 { return (inst.Ly + inst.Uy) / 2 }
func (inst Instance) Area() int64    { return inst.Width() * inst.Height() }
func (inst Instance) Movable() bool  { return !inst.Fixed && !inst.Dummy }
func (inst Instance) BBox() Rect     { return Rect{inst.Lx, inst.Ly, inst.Ux, inst.Uy} }

// IsMacroHeight reports whether an instance of the given height is a macro
// by height alone: taller than siteRows site rows (spec.md §3, Instance).
// The netlist's own block flag is not checked here; callers OR it in.
func IsMacroHeight(heightDBU, siteHeightDBU int64, siteRows int64) bool {
	if siteHeightDBU <= 0 {
		return false
	}
	return heightDBU > siteRows*siteHeightDBU
}

// PinKind distinguishes an instance terminal from a boundary port.
type PinKind int

const (
	ITerm PinKind = iota
	BTerm
)

// Pin belongs to at most one Instance (ITerm) or is a boundary port
// (BTerm). InstIdx/NetIdx are -1 when not applicable; OffsetCx/OffsetCy
// are relative to the owning instance's master center (always (0,0) for a
// BTerm). Cx/Cy cache the current absolute center and must be kept
// coherent with the owning Instance by the caller that moves it.
type Pin struct {
	Kind PinKind

	InstIdx int
	NetIdx  int

	OffsetCx, OffsetCy int64
	Cx, Cy             int64

	IsMinPinX, IsMaxPinX bool
	IsMinPinY, IsMaxPinY bool
}

// NoIndex is the sentinel for "no instance"/"no net".
const NoIndex = -1

// Net is a set of pins (by index into the owning Arena), with a running
// bbox and the two weight knobs used by the WA gradient and the B2B
// system: TimingWeight (from TimingBase) and CustomWeight (user-supplied).
type Net struct {
	PinIdxs []int

	BBox Rect

	TimingWeight float64
	CustomWeight float64

	Signal SignalType
}

// TotalWeight is the product used everywhere a "net weight" scalar is
// needed (spec.md §4.E: "multiplied by the pin's net total weight (timing
// × custom)").
func (n Net) TotalWeight() float64 {
	tw, cw := n.TimingWeight, n.CustomWeight
	if tw == 0 {
		tw = 1
	}
	if cw == 0 {
		cw = 1
	}
	return tw * cw
}

// HPWL is (ux-lx)+(uy-ly), clamped to zero for an inverted bbox.
func (n Net) HPWL() int64 { return n.BBox.HPWL() }

// Arena owns all Instance/Pin/Net storage for one PlacerBase(Common).
// Nothing outside this package's ingestion logic may create or destroy
// entries; every cross reference is an index into one of the three
// slices, so a slice re-grow never invalidates another slice's indices.
type Arena struct {
	Instances []Instance
	Pins      []Pin
	Nets      []Net
}

// FixPointers rebuilds Instance.PinIdxs and Net.PinIdxs from the
// authoritative Pin.InstIdx/Pin.NetIdx fields. It must be called after any
// push to Pins before the next read of PinIdxs (spec.md §3, "After any
// push_back ... the engine must run a fix-pointers pass"). Calling it
// twice in a row is a no-op on state (spec.md §8, property 8): the rebuild
// is a pure function of Pin fields, not of prior PinIdxs content.
func (a *Arena) FixPointers() {
	for i := range a.Instances {
		a.Instances[i].PinIdxs = a.Instances[i].PinIdxs[:0]
	}
	for i := range a.Nets {
		a.Nets[i].PinIdxs = a.Nets[i].PinIdxs[:0]
	}
	for pi := range a.Pins {
		p := &a.Pins[pi]
		if p.InstIdx != NoIndex {
			a.Instances[p.InstIdx].PinIdxs = append(a.Instances[p.InstIdx].PinIdxs, pi)
		}
		if p.NetIdx != NoIndex {
			a.Nets[p.NetIdx].PinIdxs = append(a.Nets[p.NetIdx].PinIdxs, pi)
		}
	}
}

// RecomputeNetBBoxes recomputes every net's bbox and min/max pin flags
// from its pins' current absolute centers. Callers must have already
// moved pin centers (e.g. after UpdateInstanceLocation) and run
// FixPointers at least once since the last structural change.
func (a *Arena) RecomputeNetBBoxes() {
	for ni := range a.Nets {
		net := &a.Nets[ni]
		if len(net.PinIdxs) == 0 {
			net.BBox = EmptyBBox()
			continue
		}
		first := &a.Pins[net.PinIdxs[0]]
		bb := Rect{Lx: first.Cx, Ly: first.Cy, Ux: first.Cx, Uy: first.Cy}
		for _, pi := range net.PinIdxs[1:] {
			p := &a.Pins[pi]
			bb.Lx = min(bb.Lx, p.Cx)
			bb.Ux = max(bb.Ux, p.Cx)
			bb.Ly = min(bb.Ly, p.Cy)
			bb.Uy = max(bb.Uy, p.Cy)
		}
		net.BBox = bb
		for _, pi := range net.PinIdxs {
			p := &a.Pins[pi]
			p.IsMinPinX = p.Cx == bb.Lx
			p.IsMaxPinX = p.Cx == bb.Ux
			p.IsMinPinY = p.Cy == bb.Ly
			p.IsMaxPinY = p.Cy == bb.Uy
		}
	}
}

// UpdateInstanceLocation moves instance idx so its bbox lower-left becomes
// (lx, ly), and refreshes the absolute center of every pin it owns. It
// does not touch net bboxes; call RecomputeNetBBoxes afterward.
func (a *Arena) UpdateInstanceLocation(idx int, lx, ly int64) {
	inst := &a.Instances[idx]
	dx := lx - inst.Lx
	dy := ly - inst.Ly
	inst.Lx += dx
	inst.Ly += dy
	inst.Ux += dx
	inst.Uy += dy
	cx, cy := inst.CenterX(), inst.CenterY()
	for _, pi := range inst.PinIdxs {
		p := &a.Pins[pi]
		p.Cx = cx + p.OffsetCx
		p.Cy = cy + p.OffsetCy
	}
}
