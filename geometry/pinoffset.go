// Copyright 2025 The goplace Authors. SPDX-License-Identifier: Apache-2.0

package geometry

// log is intentionally not imported here: geometry is a pure value-type
// package with no ambient stack. The "pin with no shapes" warning named by
// spec.md §4.A is logged by the placerbase ingestion call site, which has
// access to a *slog.Logger; ComputePinOffset just reports the condition.

// ComputePinOffset computes (offsetCx, offsetCy) for an instance pin: the
// union of the pin's shape rectangles in the master, transformed by the
// instance's orientation about the master center, re-expressed relative to
// that center (spec.md §4.A).
//
// shapeUnion is the bbox union of all shape rectangles for this pin in the
// master's own (unrotated) coordinate system; masterCenter is that
// coordinate system's own bbox center. hasShapes must be false when the
// pin has no shapes in the master (a centered pin is returned, and the
// caller should log the warning spec.md §4.A calls for).
func ComputePinOffset(shapeUnion Rect, masterCenter Rect, orient Orient, hasShapes bool) (offsetCx, offsetCy int64, centered bool) {
	if !hasShapes {
		return 0, 0, true
	}
	mcx, mcy := masterCenter.CenterX(), masterCenter.CenterY()
	dx := shapeUnion.CenterX() - mcx
	dy := shapeUnion.CenterY() - mcy
	ox, oy := orient.Transform(dx, dy)
	return ox, oy, false
}

// BoundaryPortOffset implements the BTerm branch of spec.md §4.A: "For a
// boundary port, offset is (0,0) and absolute center is the port bbox
// center."
func BoundaryPortOffset(portBBox Rect) (cx, cy int64) {
	return portBBox.CenterX(), portBBox.CenterY()
}
