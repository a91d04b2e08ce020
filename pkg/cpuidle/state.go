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

package cpuidle

import (
	"strings"

	"github.com/pkg/errors"
)

// MaxStates is the capacity of a driver's state table.
const MaxStates = 10

// PowerUnbounded is the power usage of a state that never saves power.
const PowerUnbounded = -1

type Flags uint32

const (
	// FlagTimeValid means the residency measured around the state is meaningful.
	FlagTimeValid Flags = 1 << iota
	// FlagCoupled means all units of the mask have to enter the state together.
	FlagCoupled
	// FlagTimerStop means the local timer stops in this state.
	FlagTimerStop
)

var flagNames = []struct {
	flag Flags
	name string
}{
	{FlagTimeValid, "TIME_VALID"},
	{FlagCoupled, "COUPLED"},
	{FlagTimerStop, "TIMER_STOP"},
}

func (f Flags) Has(o Flags) bool {
	return f&o == o
}

func (f Flags) String() string {
	names := make([]string, 0, len(flagNames))
	for _, fn := range flagNames {
		if f.Has(fn.flag) {
			names = append(names, fn.name)
		}
	}
	return strings.Join(names, "|")
}

// ParseFlags parses flag names such as "TIME_VALID" or "timer_stop".
func ParseFlags(names ...string) (Flags, error) {
	var f Flags
	for _, name := range names {
		found := false
		for _, fn := range flagNames {
			if strings.EqualFold(strings.TrimSpace(name), fn.name) {
				f |= fn.flag
				found = true
				break
			}
		}
		if !found {
			return 0, errors.Errorf("unknown idle state flag %q", name)
		}
	}
	return f, nil
}

// EnterFunc puts dev into the state at index of drv and returns the index
// of the state actually entered, negative on failure.
type EnterFunc func(dev *Device, drv *Driver, index int) int

// State describes one idle state. Latencies are in microseconds.
type State struct {
	Name            string
	Desc            string
	ExitLatency     uint32
	TargetResidency uint32
	PowerUsage      int
	Flags           Flags
	// Disabled is owned by the governor.
	Disabled bool
	Enter    EnterFunc
}
