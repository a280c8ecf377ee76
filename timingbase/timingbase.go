// Copyright 2025 The goplace Authors. SPDX-License-Identifier: Apache-2.0

// Package timingbase implements component J of spec.md §4.J: net-weight
// reweighting from a resizer's slack distribution, triggered the first
// time overflow dips below a descending list of trigger percentages.
// Grounded on original_source/src/gpl/src/timingBase.cpp.
package timingbase

import (
	"errors"
	"math"
	"sort"

	"github.com/ajroetker/goplace/nesterovbase"
	"github.com/ajroetker/goplace/netlist"
)

// Options configures the updater (spec.md §4.J defaults).
type Options struct {
	NetWeightMax float64 // default 5

	// TriggerOverflowsPercent lists the overflow percentages (0-100) at
	// which reweighting fires, once each, on the first dip below.
	TriggerOverflowsPercent []int
}

// DefaultOptions returns a single trigger at 79% overflow, matching the
// single-threshold configuration original_source ships by default.
func DefaultOptions() Options {
	return Options{NetWeightMax: 5, TriggerOverflowsPercent: []int{79}}
}

// ErrNoSlack is returned when the resizer reports no net slacks; the
// caller should disable timing-driven mode for the remainder of the run.
var ErrNoSlack = errors.New("timingbase: resizer reported no net slacks")

// Updater drives spec.md §4.J's net-weight reweighting against the
// shared G-graph built by nesterovbase.BuildCommon.
type Updater struct {
	common       *nesterovbase.NesterovBaseCommon
	resizer      netlist.Resizer
	netWeightMax float64

	triggers []int // sorted descending
	checked  []bool
}

// New builds an Updater for common, driven by resizer.
func New(common *nesterovbase.NesterovBaseCommon, resizer netlist.Resizer, opts Options) *Updater {
	triggers := append([]int(nil), opts.TriggerOverflowsPercent...)
	sort.Sort(sort.Reverse(sort.IntSlice(triggers)))
	return &Updater{
		common: common, resizer: resizer, netWeightMax: opts.NetWeightMax,
		triggers: triggers, checked: make([]bool, len(triggers)),
	}
}

// isOverflowTrigger implements original_source's isTimingNetWeightOverflow:
// triggers are sorted descending; the first time the current overflow
// (as an integer percent) dips below one or more triggers, each of those
// triggers fires once.
func (u *Updater) isOverflowTrigger(overflow float64) bool {
	intOverflow := int(math.Round(overflow * 100))
	if len(u.triggers) == 0 || intOverflow > u.triggers[0] {
		return false
	}
	needRun := false
	for i, trig := range u.triggers {
		if trig > intOverflow {
			if !u.checked[i] {
				u.checked[i] = true
				needRun = true
			}
			continue
		}
		return needRun
	}
	return needRun
}

// MaybeReweight implements nesterovplace.TimingUpdater. It is a no-op
// (triggered=false, err=nil) unless overflow has just dipped below an
// un-fired trigger.
func (u *Updater) MaybeReweight(overflow float64) (triggered bool, err error) {
	if !u.isOverflowTrigger(overflow) {
		return false, nil
	}
	if err := u.resizer.FindResizeSlacks(); err != nil {
		return false, err
	}
	return true, u.updateGNetWeights()
}

// updateGNetWeights implements spec.md §4.J's weight formula: weight = 1
// + (netWeightMax-1)*(s_max-s)/(s_max-s_min), clamped to [1,
// netWeightMax]; nets with slack >= s_max keep weight 1. slack_min/
// slack_max are the worst and boundary slacks of the resizer's bounded
// worst-slack-nets list; every GNet is then looked up individually via
// Resizer.NetSlack, matching original_source's per-net resizeNetSlack
// calls rather than being limited to the worst-list membership.
func (u *Updater) updateGNetWeights() error {
	worst := u.resizer.WorstSlackNets()
	if len(worst) == 0 {
		return ErrNoSlack
	}
	slackMin := worst[0].SlackNs
	slackMax := worst[len(worst)-1].SlackNs
	if math.IsInf(slackMin, -1) || math.IsInf(slackMin, 1) {
		return ErrNoSlack
	}

	for i := range u.common.GNets {
		gn := &u.common.GNets[i]
		timingWeight := 1.0
		if len(gn.PinIdxs) > 1 && i < len(u.common.NetHandles) {
			if slack, ok := u.resizer.NetSlack(u.common.NetHandles[i]); ok && slack < slackMax {
				switch {
				case slackMax == slackMin:
					timingWeight = 1
				default:
					timingWeight = 1 + (u.netWeightMax-1)*(slackMax-slack)/(slackMax-slackMin)
				}
				timingWeight = math.Max(1, math.Min(u.netWeightMax, timingWeight))
			}
		}
		gn.Weight = timingWeight * gn.CustomWeight
	}
	return nil
}
