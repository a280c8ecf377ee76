// Copyright 2025 The goplace Authors. SPDX-License-Identifier: Apache-2.0

// Package geometry holds the pure value types of the placement engine:
// rectangles, the die/core box, instances, pins, nets and cell
// orientation. Types here have trivial constructors and no back-pointers;
// cross references between Instance/Pin/Net are plain integer indices into
// an Arena, rebuilt on demand by Arena.FixPointers.
package geometry

// Rect is an axis-aligned rectangle in integer database units (DBU).
type Rect struct {
	Lx, Ly, Ux, Uy int64
}

// NewRect returns the rectangle with the corners exactly as given; it does
// not normalize them, so Lx<=Ux and Ly<=Uy is not enforced: an inverted
// rect (Ux<Lx) is a valid,
// meaningful state (an empty net bbox before any pin has been added), and
// callers rely on Dx/Dy/HPWL clamping to zero for it.
func NewRect(lx, ly, ux, uy int64) Rect {
	return Rect{Lx: lx, Ly: ly, Ux: ux, Uy: uy}
}

// Dx returns the width, clamped to zero for an inverted rectangle.
func (r Rect) Dx() int64 {
	if r.Ux < r.Lx {
		return 0
	}
	return r.Ux - r.Lx
}

// Dy returns the height, clamped to zero for an inverted rectangle.
func (r Rect) Dy() int64 {
	if r.Uy < r.Ly {
		return 0
	}
	return r.Uy - r.Ly
}

// CenterX returns the horizontal midpoint.
func (r Rect) CenterX() int64 { return (r.Lx + r.Ux) / 2 }

// CenterY returns the vertical midpoint.
func (r Rect) CenterY() int64 { return (r.Ly + r.Uy) / 2 }

// Area returns Dx()*Dy() as a 64-bit area, never negative.
func (r Rect) Area() int64 { return r.Dx() * r.Dy() }

// HPWL returns the half-perimeter wirelength of the rectangle, clamped to
// zero when the rectangle is inverted (spec.md §3, Net.HPWL).
func (r Rect) HPWL() int64 { return r.Dx() + r.Dy() }

// Contains reports whether other lies entirely within r (die/core
// invariant; spec.md §3, Die).
func (r Rect) Contains(other Rect) bool {
	return other.Lx >= r.Lx && other.Ly >= r.Ly && other.Ux <= r.Ux && other.Uy <= r.Uy
}

// Overlap returns the overlap area between r and other, zero if disjoint.
func (r Rect) Overlap(other Rect) int64 {
	lx := max(r.Lx, other.Lx)
	ly := max(r.Ly, other.Ly)
	ux := min(r.Ux, other.Ux)
	uy := min(r.Uy, other.Uy)
	if ux <= lx || uy <= ly {
		return 0
	}
	return (ux - lx) * (uy - ly)
}

// Union returns the bounding rectangle of r and other.
func (r Rect) Union(other Rect) Rect {
	return Rect{
		Lx: min(r.Lx, other.Lx),
		Ly: min(r.Ly, other.Ly),
		Ux: max(r.Ux, other.Ux),
		Uy: max(r.Uy, other.Uy),
	}
}

// EmptyBBox returns the canonical "nothing accumulated yet" bbox: an
// inverted rectangle that Union()s correctly with the first real point.
func EmptyBBox() Rect {
	return Rect{Lx: 1<<62 - 1, Ly: 1<<62 - 1, Ux: -(1<<62 - 1), Uy: -(1<<62 - 1)}
}

// SnapOutward floors lx/ly and ceils ux/uy to the nearest multiple of
// (siteX, siteY) measured from origin (ox, oy): a partially used site is
// unusable, so fixed instances are always grown, never shrunk (spec.md
// §4.A).
func (r Rect) SnapOutward(ox, oy, siteX, siteY int64) Rect {
	floorTo := func(v, origin, step int64) int64 {
		if step <= 0 {
			return v
		}
		d := v - origin
		q := d / step
		if d%step != 0 && d < 0 {
			q--
		}
		return origin + q*step
	}
	ceilTo := func(v, origin, step int64) int64 {
		if step <= 0 {
			return v
		}
		d := v - origin
		q := d / step
		if d%step != 0 && d > 0 {
			q++
		}
		return origin + q*step
	}
	return Rect{
		Lx: floorTo(r.Lx, ox, siteX),
		Ly: floorTo(r.Ly, oy, siteY),
		Ux: ceilTo(r.Ux, ox, siteX),
		Uy: ceilTo(r.Uy, oy, siteY),
	}
}
