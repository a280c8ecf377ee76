// Copyright 2025 The goplace Authors. SPDX-License-Identifier: Apache-2.0

package geometry

// Orient is one of the eight standard cell orientations used by the
// external netlist/LEF model. It only ever transforms an offset vector
// relative to a center point — instances themselves never rotate their
// stored bbox, since gpl/RePlAce treats bbox as axis-aligned regardless of
// orientation (spec.md §4.A, pin offset computation).
type Orient int

const (
	R0 Orient = iota
	R90
	R180
	R270
	MY
	MX
	MYR90
	MXR90
)

// String returns the conventional two/three-letter orientation name.
func (o Orient) String() string {
	switch o {
	case R0:
		return "R0"
	case R90:
		return "R90"
	case R180:
		return "R180"
	case R270:
		return "R270"
	case MY:
		return "MY"
	case MX:
		return "MX"
	case MYR90:
		return "MYR90"
	case MXR90:
		return "MXR90"
	default:
		return "R0"
	}
}

// Transform rotates/mirrors the offset vector (dx, dy) — typically a pin
// shape-bbox-union center expressed relative to the master's origin cell
// center — according to the orientation, returning the offset to apply
// relative to the instance's placed center.
func (o Orient) Transform(dx, dy int64) (int64, int64) {
	switch o {
	case R0:
		return dx, dy
	case R90:
		return -dy, dx
	case R180:
		return -dx, -dy
	case R270:
		return dy, -dx
	case MY:
		return -dx, dy
	case MX:
		return dx, -dy
	case MYR90:
		// mirror about Y then rotate 90
		return -dy, -dx
	case MXR90:
		// mirror about X then rotate 90
		return dy, dx
	default:
		return dx, dy
	}
}
