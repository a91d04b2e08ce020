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

	"github.com/go-logr/logr"

	"github.com/alibaba/polardbx-cpuidle/pkg/cpuidle/cpumask"
)

// EnterObserver is told about every completed idle entry.
type EnterObserver interface {
	ObserveEnter(drv *Driver, requested, entered int, residency time.Duration)
}

// Options are resolved once by NewRegistry.
type Options struct {
	// MultipleDrivers gives every unit its own driver slot. Otherwise a
	// single driver governs all units.
	MultipleDrivers bool
	// PollIdle installs the polling state at index 0 of every driver.
	// Defaults to ArchHasCpuRelax.
	PollIdle *bool
	// Disabled starts the registry with idle management turned off.
	Disabled bool
	// Development panics on precondition violations after logging them.
	Development bool
	// Possible is the set of units that may ever be governed. Defaults to
	// the possible cpus of the host.
	Possible cpumask.Mask
	// Coordinator defaults to an SmpBroadcast over per-unit workers owned
	// by the registry.
	Coordinator BroadcastCoordinator
	// PinUnits pins the workers of the default coordinator to their cpus.
	PinUnits bool
	Observer EnterObserver
	Logger   logr.Logger
}
