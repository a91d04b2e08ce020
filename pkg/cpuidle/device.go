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

import "go.uber.org/atomic"

// Device is the idle-side view of one unit: its interrupt state, whether it
// is busy polling, and the reschedule request that ends an idle period.
type Device struct {
	CPU int

	irqEnabled  atomic.Bool
	polling     atomic.Bool
	needResched atomic.Bool
	kick        chan struct{}
}

func NewDevice(cpu int) *Device {
	return &Device{
		CPU:  cpu,
		kick: make(chan struct{}, 1),
	}
}

func (d *Device) EnableIRQ() {
	d.irqEnabled.Store(true)
}

func (d *Device) DisableIRQ() {
	d.irqEnabled.Store(false)
}

func (d *Device) IRQEnabled() bool {
	return d.irqEnabled.Load()
}

// SetNeedResched asks the unit to leave idle. A polling unit notices the flag
// by itself, others are kicked.
func (d *Device) SetNeedResched() {
	d.needResched.Store(true)
	if d.polling.Load() {
		return
	}
	select {
	case d.kick <- struct{}{}:
	default:
	}
}

func (d *Device) NeedResched() bool {
	return d.needResched.Load()
}

// ClearNeedResched consumes the reschedule request and reports whether there was one.
func (d *Device) ClearNeedResched() bool {
	return d.needResched.Swap(false)
}

// Kicked is signalled when a non polling unit is asked to reschedule. Enter
// callbacks of sleeping states wait on it.
func (d *Device) Kicked() <-chan struct{} {
	return d.kick
}

func (d *Device) Polling() bool {
	return d.polling.Load()
}

// setPollingAndTest marks the unit polling and reports whether a reschedule
// is already pending.
func (d *Device) setPollingAndTest() bool {
	d.polling.Store(true)
	return d.needResched.Load()
}

func (d *Device) clearPolling() {
	d.polling.Store(false)
}
