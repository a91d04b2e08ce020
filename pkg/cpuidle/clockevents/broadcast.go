/*
Copyright 2023 Alibaba Group Holding Limited.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package clockevents keeps the per-unit broadcast mode of the tick device:
// a unit in broadcast mode relies on the shared wake-up timer instead of its
// local timer, which may stop in deep idle states.
package clockevents

import (
	"sync"

	"github.com/go-logr/logr"
	"go.uber.org/atomic"

	"github.com/alibaba/polardbx-cpuidle/pkg/cpuidle/cpumask"
)

type Reason int

const (
	BroadcastOn Reason = iota
	BroadcastOff
)

func (r Reason) String() string {
	switch r {
	case BroadcastOn:
		return "BroadcastOn"
	case BroadcastOff:
		return "BroadcastOff"
	default:
		return "Unknown"
	}
}

type Tracker struct {
	logger        logr.Logger
	mu            sync.RWMutex
	broadcast     map[int]bool
	notifications atomic.Uint64
}

func NewTracker(logger logr.Logger) *Tracker {
	return &Tracker{
		logger:    logger.WithName("clockevents"),
		broadcast: map[int]bool{},
	}
}

// Notify is called on the unit itself.
func (t *Tracker) Notify(reason Reason, unit int) {
	t.notifications.Inc()
	t.mu.Lock()
	defer t.mu.Unlock()
	switch reason {
	case BroadcastOn:
		t.broadcast[unit] = true
	case BroadcastOff:
		delete(t.broadcast, unit)
	default:
		t.logger.Info("ignore unknown notification", "reason", int(reason), "unit", unit)
		return
	}
	t.logger.V(1).Info("broadcast mode changed", "reason", reason.String(), "unit", unit)
}

func (t *Tracker) IsBroadcast(unit int) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.broadcast[unit]
}

// BroadcastMask returns the units currently in broadcast mode.
func (t *Tracker) BroadcastMask() cpumask.Mask {
	t.mu.RLock()
	defer t.mu.RUnlock()
	units := make([]int, 0, len(t.broadcast))
	for unit := range t.broadcast {
		units = append(units, unit)
	}
	return cpumask.New(units...)
}

// Notifications returns the number of notifications received.
func (t *Tracker) Notifications() uint64 {
	return t.notifications.Load()
}
