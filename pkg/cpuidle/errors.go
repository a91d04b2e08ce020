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

import "github.com/pkg/errors"

var (
	// ErrInvalidDriver is returned for a nil driver or a malformed state table or mask.
	ErrInvalidDriver = errors.New("invalid cpuidle driver")
	// ErrFrameworkDisabled is returned while idle management is globally off.
	ErrFrameworkDisabled = errors.New("cpuidle framework disabled")
	// ErrUnitBusy is returned when a unit of the mask belongs to another driver.
	ErrUnitBusy = errors.New("unit already owned by a cpuidle driver")
	// ErrPreconditionViolated reports a caller breaking the refcount contract.
	ErrPreconditionViolated = errors.New("cpuidle precondition violated")
	// ErrBroadcast is returned when the broadcast timer could not be set up on every unit.
	ErrBroadcast = errors.New("broadcast timer notification failed")

	ErrNoDriver     = errors.New("no cpuidle driver for unit")
	ErrInvalidState = errors.New("invalid idle state")
	ErrEnterFailed  = errors.New("idle state enter failed")
)
