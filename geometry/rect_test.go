// Copyright 2025 The goplace Authors. SPDX-License-Identifier: Apache-2.0

package geometry

import "testing"

func TestRectOverlap(t *testing.T) {
	tests := []struct {
		name     string
		a, b     Rect
		wantArea int64
	}{
		{"disjoint", Rect{0, 0, 10, 10}, Rect{20, 20, 30, 30}, 0},
		{"touching edge", Rect{0, 0, 10, 10}, Rect{10, 0, 20, 10}, 0},
		{"partial", Rect{0, 0, 10, 10}, Rect{5, 5, 15, 15}, 25},
		{"contained", Rect{0, 0, 10, 10}, Rect{2, 2, 4, 4}, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Overlap(tt.b); got != tt.wantArea {
				t.Errorf("Overlap() = %d, want %d", got, tt.wantArea)
			}
		})
	}
}

func TestRectHPWLClampsInverted(t *testing.T) {
	r := Rect{Lx: 10, Ly: 10, Ux: 0, Uy: 0}
	if got := r.HPWL(); got != 0 {
		t.Errorf("HPWL() of inverted rect = %d, want 0", got)
	}
}

func TestRectContains(t *testing.T) {
	die := Rect{0, 0, 1000, 1000}
	core := Rect{100, 100, 900, 900}
	if !die.Contains(core) {
		t.Errorf("expected die to contain core")
	}
	outside := Rect{-1, 100, 900, 900}
	if die.Contains(outside) {
		t.Errorf("expected die to not contain out-of-bounds box")
	}
}

func TestSnapOutward(t *testing.T) {
	r := Rect{Lx: 5, Ly: 5, Ux: 95, Uy: 95}
	snapped := r.SnapOutward(0, 0, 10, 10)
	want := Rect{Lx: 0, Ly: 0, Ux: 100, Uy: 100}
	if snapped != want {
		t.Errorf("SnapOutward() = %+v, want %+v", snapped, want)
	}
}

func TestDieValidate(t *testing.T) {
	good := Die{Outer: Rect{0, 0, 1000, 1000}, Core: Rect{100, 100, 900, 900}}
	if err := good.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
	bad := Die{Outer: Rect{0, 0, 1000, 1000}, Core: Rect{-10, 100, 900, 900}}
	if err := bad.Validate(); err == nil {
		t.Errorf("Validate() = nil, want error for core outside die")
	}
}
