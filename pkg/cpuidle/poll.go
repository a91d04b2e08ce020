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

import "runtime"

const (
	PollStateName = "POLL"
	PollStateDesc = "CPUIDLE CORE POLL IDLE"
)

// pollIdle busy waits until a reschedule is requested.
func pollIdle(dev *Device, drv *Driver, index int) int {
	dev.EnableIRQ()
	if !dev.setPollingAndTest() {
		for !dev.NeedResched() {
			cpuRelax()
		}
	}
	dev.clearPolling()
	return index
}

// PollState returns the state the registry installs at index 0 when the
// architecture has a relax primitive.
func PollState() State {
	return State{
		Name:            PollStateName,
		Desc:            PollStateDesc,
		ExitLatency:     0,
		TargetResidency: 0,
		PowerUsage:      PowerUnbounded,
		Flags:           FlagTimeValid,
		Disabled:        false,
		Enter:           pollIdle,
	}
}

// cpuRelax yields the processor to other goroutines inside spin loops.
func cpuRelax() {
	runtime.Gosched()
}
