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
	"sort"
	"sync"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"k8s.io/utils/pointer"

	"github.com/alibaba/polardbx-cpuidle/pkg/cpuidle/clockevents"
	"github.com/alibaba/polardbx-cpuidle/pkg/cpuidle/cpumask"
	"github.com/alibaba/polardbx-cpuidle/pkg/cpuidle/smp"
	"github.com/alibaba/polardbx-cpuidle/pkg/cpuidle/topology"
)

// Registry arbitrates which driver owns each unit.
//
// Register, Unregister, Acquire and Release are serialized by one mutex.
// Unit slots are only ever replaced while holding it, so CurrentDriver reads
// them without locking.
type Registry struct {
	logger      logr.Logger
	multiple    bool
	pollIdle    bool
	development bool
	possible    cpumask.Mask
	coordinator BroadcastCoordinator
	observer    EnterObserver
	closer      func()

	disabled atomic.Bool

	mu sync.Mutex
	// slotIndex maps a unit to its slot, immutable after construction
	slotIndex map[int]int
	slots     []atomic.Pointer[Driver]
	drivers   map[string]*Driver
}

func NewRegistry(opts Options) (*Registry, error) {
	logger := opts.Logger
	if logger.GetSink() == nil {
		logger = logr.Discard()
	}
	logger = logger.WithName("cpuidle")

	possible := opts.Possible
	if possible == nil {
		var err error
		possible, err = topology.Possible()
		if err != nil {
			return nil, errors.Wrap(err, "failed to detect possible units")
		}
	}
	if possible.Empty() {
		return nil, errors.New("no possible unit")
	}

	r := &Registry{
		logger:      logger,
		multiple:    opts.MultipleDrivers,
		pollIdle:    pointer.BoolDeref(opts.PollIdle, ArchHasCpuRelax),
		development: opts.Development,
		possible:    possible.Clone(),
		coordinator: opts.Coordinator,
		observer:    opts.Observer,
		slotIndex:   make(map[int]int, len(possible)),
		drivers:     map[string]*Driver{},
	}
	r.disabled.Store(opts.Disabled)

	slotCount := 1
	if r.multiple {
		slotCount = len(possible)
	}
	r.slots = make([]atomic.Pointer[Driver], slotCount)
	for i, unit := range possible {
		if r.multiple {
			r.slotIndex[unit] = i
		} else {
			r.slotIndex[unit] = 0
		}
	}

	if r.coordinator == nil {
		dispatcher := smp.NewDispatcher(possible, smp.Options{Logger: logger, Pin: opts.PinUnits})
		r.coordinator = NewSmpBroadcast(dispatcher, clockevents.NewTracker(logger), logger)
		r.closer = dispatcher.Stop
	}

	logger.Info("registry created", "units", possible.String(), "multipleDrivers", r.multiple, "pollIdle", r.pollIdle)
	return r, nil
}

// Close releases the resources owned by the registry. Drivers should be
// unregistered first.
func (r *Registry) Close() {
	if r.closer != nil {
		r.closer()
	}
}

func (r *Registry) Possible() cpumask.Mask {
	return r.possible.Clone()
}

func (r *Registry) MultipleDrivers() bool {
	return r.multiple
}

// FirstStateIndex is the index of the first producer-owned state.
func (r *Registry) FirstStateIndex() int {
	if r.pollIdle {
		return 1
	}
	return 0
}

func (r *Registry) Coordinator() BroadcastCoordinator {
	return r.coordinator
}

// Disable turns idle management off: subsequent registrations fail.
func (r *Registry) Disable() {
	r.disabled.Store(true)
}

func (r *Registry) Enable() {
	r.disabled.Store(false)
}

func (r *Registry) Disabled() bool {
	return r.disabled.Load()
}

func (r *Registry) slot(unit int) *atomic.Pointer[Driver] {
	i, ok := r.slotIndex[unit]
	if !ok {
		return nil
	}
	return &r.slots[i]
}

// Register validates drv, claims every unit of its mask and sets up the
// broadcast timer when a state stops the local timer. It either fully
// succeeds or leaves neither the registry nor drv changed.
func (r *Registry) Register(drv *Driver) error {
	if drv == nil {
		return errors.Wrap(ErrInvalidDriver, "nil driver")
	}
	if drv.StateCount() == 0 {
		return errors.Wrapf(ErrInvalidDriver, "driver %q has no idle state", drv.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.disabled.Load() {
		return ErrFrameworkDisabled
	}

	if owner, ok := r.drivers[drv.Name]; ok {
		if owner == drv {
			return errors.Wrapf(ErrUnitBusy, "driver %q already registered", drv.Name)
		}
		return errors.Wrapf(ErrInvalidDriver, "driver name %q already in use", drv.Name)
	}

	mask := drv.Mask
	if mask == nil {
		mask = r.possible.Clone()
	}
	firstIndex := r.FirstStateIndex()
	if err := drv.validate(mask, r.possible, firstIndex); err != nil {
		return err
	}
	bctimer := needsBroadcast(drv.States, firstIndex)

	if err := r.checkFree(mask); err != nil {
		return err
	}

	if bctimer {
		if err := r.coordinator.Enable(mask); err != nil {
			r.logger.Error(err, "failed to enable broadcast timer", "driver", drv.Name, "units", mask.String())
			return err
		}
	}

	// Nothing can fail from here. drv is not published yet, so it is
	// prepared in place before its slots are stored.
	if r.pollIdle {
		drv.States[0] = PollState()
	}
	drv.Mask = mask
	drv.refcnt.reset()
	drv.bctimer.Store(bctimer)
	r.storeDriver(drv, mask)

	r.drivers[drv.Name] = drv
	r.logger.Info("driver registered", "driver", drv.Name, "units", mask.String(), "states", drv.StateCount(), "broadcast", bctimer)
	return nil
}

// checkFree scans the units of mask in order and fails on the first one
// owned by another driver.
func (r *Registry) checkFree(mask cpumask.Mask) error {
	if !r.multiple {
		if cur := r.slots[0].Load(); cur != nil {
			return errors.Wrapf(ErrUnitBusy, "driver %q is the current driver", cur.Name)
		}
		return nil
	}
	for _, unit := range mask {
		if cur := r.slot(unit).Load(); cur != nil {
			return errors.Wrapf(ErrUnitBusy, "unit %d is owned by driver %q", unit, cur.Name)
		}
	}
	return nil
}

// storeDriver publishes drv on every unit of mask. The units must have been
// checked free under the same critical section.
func (r *Registry) storeDriver(drv *Driver, mask cpumask.Mask) {
	if !r.multiple {
		r.slots[0].Store(drv)
		return
	}
	for _, unit := range mask {
		r.slot(unit).Store(drv)
	}
}

// unsetDriver clears the slots of mask that point to drv.
func (r *Registry) unsetDriver(drv *Driver, mask cpumask.Mask) {
	if !r.multiple {
		r.slots[0].CompareAndSwap(drv, nil)
		return
	}
	for _, unit := range mask {
		if s := r.slot(unit); s != nil {
			s.CompareAndSwap(drv, nil)
		}
	}
}

// Unregister detaches drv from its units. It refuses while references are
// outstanding. Unregistering a driver that is not registered does nothing.
func (r *Registry) Unregister(drv *Driver) error {
	if drv == nil {
		return errors.Wrap(ErrInvalidDriver, "nil driver")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if n := drv.refcnt.load(); n > 0 {
		return r.violation(errors.Wrapf(ErrPreconditionViolated, "unregister driver %q with %d references", drv.Name, n))
	}

	if r.drivers[drv.Name] != drv {
		r.logger.Info("driver not registered, ignore", "driver", drv.Name)
		return nil
	}

	if drv.bctimer.Load() {
		if err := r.coordinator.Disable(drv.Mask); err != nil {
			r.logger.Error(err, "failed to disable broadcast timer", "driver", drv.Name, "units", drv.Mask.String())
			return err
		}
		drv.bctimer.Store(false)
	}

	r.unsetDriver(drv, drv.Mask)
	delete(r.drivers, drv.Name)
	r.logger.Info("driver unregistered", "driver", drv.Name, "units", drv.Mask.String())
	return nil
}

// CurrentDriver returns the driver of unit without locking. The result may
// be momentarily stale but was registered at some point.
func (r *Registry) CurrentDriver(unit int) *Driver {
	s := r.slot(unit)
	if s == nil {
		return nil
	}
	return s.Load()
}

// Acquire returns a counted reference to the driver of unit. The driver
// can't be unregistered until the reference is released.
func (r *Registry) Acquire(unit int) (*Ref, bool) {
	s := r.slot(unit)
	if s == nil {
		return nil, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	drv := s.Load()
	if drv == nil {
		return nil, false
	}
	drv.refcnt.inc()
	return &Ref{registry: r, driver: drv}, true
}

// Release drops a reference taken by Acquire. Prefer Ref.Release.
func (r *Registry) Release(drv *Driver) error {
	if drv == nil {
		return errors.Wrap(ErrInvalidDriver, "nil driver")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := drv.refcnt.dec(); err != nil {
		return r.violation(errors.Wrapf(err, "release driver %q", drv.Name))
	}
	return nil
}

func (r *Registry) violation(err error) error {
	r.logger.Error(err, "cpuidle contract violated")
	if r.development {
		panic(err)
	}
	return err
}

type DriverInfo struct {
	Name           string       `json:"name"`
	Mask           cpumask.Mask `json:"mask"`
	Refcount       int64        `json:"refcount"`
	NeedsBroadcast bool         `json:"needsBroadcast"`
	States         []string     `json:"states"`
}

// Drivers returns a snapshot of the registered drivers sorted by name.
func (r *Registry) Drivers() []DriverInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]DriverInfo, 0, len(r.drivers))
	for _, drv := range r.drivers {
		states := make([]string, 0, len(drv.States))
		for _, s := range drv.States {
			states = append(states, s.Name)
		}
		result = append(result, DriverInfo{
			Name:           drv.Name,
			Mask:           drv.Mask.Clone(),
			Refcount:       drv.refcnt.load(),
			NeedsBroadcast: drv.bctimer.Load(),
			States:         states,
		})
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result
}
