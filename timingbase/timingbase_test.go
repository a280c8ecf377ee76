// Copyright 2025 The goplace Authors. SPDX-License-Identifier: Apache-2.0

package timingbase

import (
	"errors"
	"math"
	"testing"

	"github.com/ajroetker/goplace/nesterovbase"
	"github.com/ajroetker/goplace/netlist"
)

type fakeResizer struct {
	slacks    []netlist.NetSlack // worst-slack-list boundary nets: [0]=worst, [last]=boundary
	perNet    map[any]float64    // per-net slack lookup, independent of the worst-list
	findErr   error
	findCalls int
}

func (r *fakeResizer) FindResizeSlacks() error { r.findCalls++; return r.findErr }
func (r *fakeResizer) WorstSlackNets() []netlist.NetSlack { return r.slacks }
func (r *fakeResizer) NetSlack(handle any) (float64, bool) {
	if r.perNet != nil {
		s, ok := r.perNet[handle]
		return s, ok
	}
	for _, s := range r.slacks {
		if s.NetHandle == handle {
			return s.SlackNs, true
		}
	}
	return 0, false
}

func threeNetCommon() *nesterovbase.NesterovBaseCommon {
	return &nesterovbase.NesterovBaseCommon{
		GNets: []nesterovbase.GNet{
			{PinIdxs: []int{0, 1}, CustomWeight: 1},
			{PinIdxs: []int{2, 3}, CustomWeight: 1},
			{PinIdxs: []int{4, 5}, CustomWeight: 1},
		},
		NetHandles: []any{"nA", "nB", "nC"},
	}
}

// TestWeightFormulaMatchesScenario checks spec.md §8 S5: nets at slacks
// {-10ns, -5ns, -1ns} with netWeightMax=5 and a worst-slack-list boundary
// of 0ns should get weights {5, 3, 1.4} respectively (spec.md states
// "1.44" as an approximate figure; 1.4 is the exact value of the stated
// formula).
func TestWeightFormulaMatchesScenario(t *testing.T) {
	common := threeNetCommon()
	resizer := &fakeResizer{
		slacks: []netlist.NetSlack{{NetHandle: "nA", SlackNs: -10}, {NetHandle: "nD", SlackNs: 0}},
		perNet: map[any]float64{"nA": -10, "nB": -5, "nC": -1},
	}
	u := New(common, resizer, Options{NetWeightMax: 5, TriggerOverflowsPercent: []int{79}})

	triggered, err := u.MaybeReweight(0.5) // dips below 79
	if err != nil {
		t.Fatalf("MaybeReweight() error = %v", err)
	}
	if !triggered {
		t.Fatalf("MaybeReweight() triggered = false, want true")
	}

	want := []float64{5, 3, 1.4}
	for i, w := range want {
		if math.Abs(common.GNets[i].Weight-w) > 1e-9 {
			t.Errorf("GNets[%d].Weight = %v, want %v", i, common.GNets[i].Weight, w)
		}
	}
}

func TestTriggerFiresOnlyOnceOnFirstDip(t *testing.T) {
	common := threeNetCommon()
	resizer := &fakeResizer{slacks: []netlist.NetSlack{
		{NetHandle: "nA", SlackNs: -10}, {NetHandle: "nB", SlackNs: -5}, {NetHandle: "nC", SlackNs: -1},
	}}
	u := New(common, resizer, Options{NetWeightMax: 5, TriggerOverflowsPercent: []int{79}})

	if triggered, _ := u.MaybeReweight(0.5); !triggered {
		t.Fatalf("first dip below 79%% should trigger")
	}
	if triggered, _ := u.MaybeReweight(0.4); triggered {
		t.Fatalf("second call without a fresh trigger crossing should not re-trigger")
	}
	if resizer.findCalls != 1 {
		t.Errorf("FindResizeSlacks called %d times, want 1", resizer.findCalls)
	}
}

func TestNoSlackDataReturnsErrNoSlack(t *testing.T) {
	common := threeNetCommon()
	resizer := &fakeResizer{}
	u := New(common, resizer, DefaultOptions())

	_, err := u.MaybeReweight(0.5)
	if !errors.Is(err, ErrNoSlack) {
		t.Fatalf("MaybeReweight() error = %v, want ErrNoSlack", err)
	}
}

func TestAboveTriggerOverflowNeverFires(t *testing.T) {
	common := threeNetCommon()
	resizer := &fakeResizer{slacks: []netlist.NetSlack{{NetHandle: "nA", SlackNs: -1}}}
	u := New(common, resizer, Options{NetWeightMax: 5, TriggerOverflowsPercent: []int{79}})

	if triggered, _ := u.MaybeReweight(0.95); triggered {
		t.Fatalf("overflow above the trigger threshold should never fire")
	}
	if resizer.findCalls != 0 {
		t.Errorf("FindResizeSlacks should not be called before a trigger fires")
	}
}
