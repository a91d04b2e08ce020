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
	"context"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"

	"github.com/alibaba/polardbx-cpuidle/pkg/cpuidle/clockevents"
	"github.com/alibaba/polardbx-cpuidle/pkg/cpuidle/cpumask"
	"github.com/alibaba/polardbx-cpuidle/pkg/cpuidle/smp"
)

// BroadcastCoordinator switches the units of a mask to and from the shared
// broadcast timer. Both calls return only once every unit of the mask has
// processed the notification.
type BroadcastCoordinator interface {
	Enable(mask cpumask.Mask) error
	Disable(mask cpumask.Mask) error
}

// SmpBroadcast delivers clock event notifications on each unit through the
// smp dispatcher.
type SmpBroadcast struct {
	logger     logr.Logger
	dispatcher *smp.Dispatcher
	tracker    *clockevents.Tracker
}

func NewSmpBroadcast(dispatcher *smp.Dispatcher, tracker *clockevents.Tracker, logger logr.Logger) *SmpBroadcast {
	return &SmpBroadcast{
		logger:     logger.WithName("broadcast"),
		dispatcher: dispatcher,
		tracker:    tracker,
	}
}

func (b *SmpBroadcast) Enable(mask cpumask.Mask) error {
	return b.notify(mask, clockevents.BroadcastOn)
}

func (b *SmpBroadcast) Disable(mask cpumask.Mask) error {
	return b.notify(mask, clockevents.BroadcastOff)
}

func (b *SmpBroadcast) Tracker() *clockevents.Tracker {
	return b.tracker
}

func (b *SmpBroadcast) notify(mask cpumask.Mask, reason clockevents.Reason) error {
	err := b.dispatcher.OnEachUnitMask(context.Background(), mask, func(unit int) {
		b.tracker.Notify(reason, unit)
	}, true)
	if err != nil {
		return errors.Wrapf(ErrBroadcast, "%s on units %s: %s", reason, mask, err.Error())
	}
	b.logger.V(1).Info("broadcast notified", "reason", reason.String(), "units", mask.String())
	return nil
}
