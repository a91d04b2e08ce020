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
	"time"

	"github.com/pkg/errors"
)

// Enter puts dev into the state at index of its current driver and returns
// the index of the state actually entered. The driver is held for the whole
// call, so it can't be unregistered underneath.
func (r *Registry) Enter(dev *Device, index int) (int, error) {
	ref, ok := r.Acquire(dev.CPU)
	if !ok {
		return -1, errors.Wrapf(ErrNoDriver, "unit %d", dev.CPU)
	}
	defer ref.Release()

	drv := ref.Driver()
	if index < 0 || index >= drv.StateCount() {
		return -1, errors.Wrapf(ErrInvalidState, "driver %q has no state %d", drv.Name, index)
	}
	state := &drv.States[index]
	if state.Disabled || state.Enter == nil {
		return -1, errors.Wrapf(ErrInvalidState, "driver %q state %d (%s) is disabled", drv.Name, index, state.Name)
	}

	start := time.Now()
	entered := state.Enter(dev, drv, index)
	residency := time.Since(start)
	if entered < 0 {
		return entered, errors.Wrapf(ErrEnterFailed, "driver %q state %d (%s) returned %d", drv.Name, index, state.Name, entered)
	}
	if r.observer != nil {
		r.observer.ObserveEnter(drv, index, entered, residency)
	}
	return entered, nil
}
