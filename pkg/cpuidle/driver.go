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
	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/alibaba/polardbx-cpuidle/pkg/cpuidle/cpumask"
)

// Driver is a named table of idle states governing a mask of units. It is
// built by its producer and handed to Registry.Register, which fills in the
// default mask, the broadcast requirement and the polling state in place.
// The producer may only drop it after Unregister succeeded.
type Driver struct {
	Name   string
	States []State
	// Mask is the set of units the driver claims, nil for all possible units.
	Mask cpumask.Mask

	refcnt  refcount
	bctimer atomic.Bool
}

func (d *Driver) StateCount() int {
	return len(d.States)
}

// NeedsBroadcast reports whether a state of the registered driver stops the
// local timer.
func (d *Driver) NeedsBroadcast() bool {
	return d.bctimer.Load()
}

// Refcount returns the number of outstanding references.
func (d *Driver) Refcount() int64 {
	return d.refcnt.load()
}

func (d *Driver) validate(mask, possible cpumask.Mask, firstIndex int) error {
	if d.Name == "" {
		return errors.Wrap(ErrInvalidDriver, "empty driver name")
	}
	n := len(d.States)
	if n == 0 {
		return errors.Wrapf(ErrInvalidDriver, "driver %q has no idle state", d.Name)
	}
	if n > MaxStates {
		return errors.Wrapf(ErrInvalidDriver, "driver %q has %d idle states, max %d", d.Name, n, MaxStates)
	}
	if mask.Empty() {
		return errors.Wrapf(ErrInvalidDriver, "driver %q has an empty mask", d.Name)
	}
	if !mask.SubsetOf(possible) {
		return errors.Wrapf(ErrInvalidDriver, "driver %q mask %s not within possible units %s", d.Name, mask, possible)
	}
	for i := firstIndex; i < n; i++ {
		s := &d.States[i]
		if !s.Disabled && s.Enter == nil {
			return errors.Wrapf(ErrInvalidDriver, "driver %q state %d (%s) has no enter callback", d.Name, i, s.Name)
		}
	}
	return nil
}

func needsBroadcast(states []State, firstIndex int) bool {
	for i := len(states) - 1; i >= firstIndex; i-- {
		if states[i].Flags.Has(FlagTimerStop) {
			return true
		}
	}
	return false
}
