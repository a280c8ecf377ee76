// Copyright 2025 The goplace Authors. SPDX-License-Identifier: Apache-2.0

package geometry

import "testing"

func TestOrientTransformPreservesLength(t *testing.T) {
	for _, o := range []Orient{R0, R90, R180, R270, MX, MY, MXR90, MYR90} {
		x, y := o.Transform(30, 40)
		if x*x+y*y != 30*30+40*40 {
			t.Errorf("%s.Transform distorted vector length: got (%d,%d)", o, x, y)
		}
	}
}

func TestOrientR90(t *testing.T) {
	x, y := R90.Transform(10, 0)
	if x != 0 || y != 10 {
		t.Errorf("R90.Transform(10,0) = (%d,%d), want (0,10)", x, y)
	}
}

func TestOrientR180IsDoubleR90(t *testing.T) {
	x1, y1 := R90.Transform(7, -3)
	x2, y2 := R90.Transform(x1, y1)
	x3, y3 := R180.Transform(7, -3)
	if x2 != x3 || y2 != y3 {
		t.Errorf("R90 applied twice = (%d,%d), want R180 = (%d,%d)", x2, y2, x3, y3)
	}
}
