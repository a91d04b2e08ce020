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


// Package sim drives configured idle drivers through a Registry, with one
// idle loop per unit woken by periodic reschedule requests.
package sim

import (
	"context"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/alibaba/polardbx-cpuidle/pkg/cpuidle"
	"github.com/alibaba/polardbx-cpuidle/pkg/cpuidle/config"
	"github.com/alibaba/polardbx-cpuidle/pkg/cpuidle/cpumask"
)

type Options struct {
	Logger   logr.Logger
	Observer cpuidle.EnterObserver
}

type Stats struct {
	Entries int64
	Wakeups int64
	Units   int
}

type Simulator struct {
	id       string
	logger   logr.Logger
	config   *config.Config
	registry *cpuidle.Registry
	drivers  []*cpuidle.Driver

	entries atomic.Int64
	wakeups atomic.Int64
}

func New(cfg *config.Config, opts Options) (*Simulator, error) {
	logger := opts.Logger
	if logger.GetSink() == nil {
		logger = logr.Discard()
	}
	registryOpts, err := cfg.Registry.Options(logger)
	if err != nil {
		return nil, err
	}
	registryOpts.Observer = opts.Observer
	registry, err := cpuidle.NewRegistry(registryOpts)
	if err != nil {
		return nil, err
	}

	drivers := make([]*cpuidle.Driver, 0, len(cfg.Drivers))
	for i := range cfg.Drivers {
		drv, err := BuildDriver(&cfg.Drivers[i], registry.FirstStateIndex())
		if err != nil {
			registry.Close()
			return nil, err
		}
		drivers = append(drivers, drv)
	}
	id := uuid.New().String()
	return &Simulator{
		id:       id,
		logger:   logger.WithName("sim").WithValues("trace", id),
		config:   cfg,
		registry: registry,
		drivers:  drivers,
	}, nil
}

// ID identifies the run in logs.
func (s *Simulator) ID() string {
	return s.id
}

func (s *Simulator) Registry() *cpuidle.Registry {
	return s.registry
}

func (s *Simulator) Drivers() []*cpuidle.Driver {
	return s.drivers
}

func (s *Simulator) Close() {
	s.registry.Close()
}

// BuildDriver turns a configured driver into one whose sleeping states wait
// for their target residency or a reschedule request. When firstIndex is 1
// an empty slot is reserved for the polling state.
func BuildDriver(dc *config.DriverConfig, firstIndex int) (*cpuidle.Driver, error) {
	mask, err := dc.Mask()
	if err != nil {
		return nil, errors.Wrapf(err, "driver %q", dc.Name)
	}
	states := make([]cpuidle.State, firstIndex, firstIndex+len(dc.States))
	for i := range dc.States {
		sc := &dc.States[i]
		flags, err := sc.ParseFlags()
		if err != nil {
			return nil, errors.Wrapf(err, "driver %q state %q", dc.Name, sc.Name)
		}
		states = append(states, cpuidle.State{
			Name:            sc.Name,
			Desc:            sc.Desc,
			ExitLatency:     sc.ExitLatency,
			TargetResidency: sc.TargetResidency,
			PowerUsage:      sc.PowerUsage,
			Flags:           flags,
			Disabled:        sc.Disabled,
			Enter:           SleepEnter(time.Duration(sc.TargetResidency) * time.Microsecond),
		})
	}
	return &cpuidle.Driver{
		Name:   dc.Name,
		States: states,
		Mask:   mask,
	}, nil
}

// SleepEnter returns an enter callback sleeping until the unit is kicked or
// residency elapsed. A zero residency sleeps until kicked.
func SleepEnter(residency time.Duration) cpuidle.EnterFunc {
	return func(dev *cpuidle.Device, drv *cpuidle.Driver, index int) int {
		dev.EnableIRQ()
		if dev.NeedResched() {
			return index
		}
		if residency <= 0 {
			<-dev.Kicked()
			return index
		}
		timer := time.NewTimer(residency)
		defer timer.Stop()
		select {
		case <-dev.Kicked():
		case <-timer.C:
		}
		return index
	}
}

// pickState returns the deepest enabled state not deeper than want, or the
// deepest enabled one when want is negative.
func pickState(drv *cpuidle.Driver, want int) int {
	last := drv.StateCount() - 1
	if want < 0 || want > last {
		want = last
	}
	for i := want; i >= 0; i-- {
		st := &drv.States[i]
		if !st.Disabled && st.Enter != nil {
			return i
		}
	}
	return -1
}

// RegisterAll registers every configured driver, unregistering the ones
// already registered when one fails.
func (s *Simulator) RegisterAll() error {
	for i, drv := range s.drivers {
		if err := s.registry.Register(drv); err != nil {
			for j := i - 1; j >= 0; j-- {
				if uerr := s.registry.Unregister(s.drivers[j]); uerr != nil {
					s.logger.Error(uerr, "failed to unregister", "driver", s.drivers[j].Name)
				}
			}
			return errors.Wrapf(err, "failed to register driver %q", drv.Name)
		}
	}
	return nil
}

func (s *Simulator) UnregisterAll() error {
	var firstErr error
	for i := len(s.drivers) - 1; i >= 0; i-- {
		if err := s.registry.Unregister(s.drivers[i]); err != nil {
			s.logger.Error(err, "failed to unregister", "driver", s.drivers[i].Name)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Run registers the drivers and runs the idle loops until ctx is done.
func (s *Simulator) Run(ctx context.Context) (Stats, error) {
	if err := s.RegisterAll(); err != nil {
		return Stats{}, err
	}

	units := cpumask.Mask{}
	for _, unit := range s.registry.Possible() {
		if s.registry.CurrentDriver(unit) != nil {
			units = append(units, unit)
		}
	}
	devices := make([]*cpuidle.Device, 0, len(units))
	for _, unit := range units {
		devices = append(devices, cpuidle.NewDevice(unit))
	}
	s.logger.Info("simulation started", "units", units.String(), "tick", s.config.Simulation.Tick().String())

	loopsDone := make(chan struct{})
	reschedDone := make(chan struct{})
	go func() {
		defer close(reschedDone)
		s.resched(devices, loopsDone)
	}()

	g, gctx := errgroup.WithContext(ctx)
	for _, dev := range devices {
		dev := dev
		g.Go(func() error {
			return s.idleLoop(gctx, dev)
		})
	}
	runErr := g.Wait()
	close(loopsDone)
	<-reschedDone

	stats := Stats{
		Entries: s.entries.Load(),
		Wakeups: s.wakeups.Load(),
		Units:   len(devices),
	}
	s.logger.Info("simulation stopped", "entries", stats.Entries, "wakeups", stats.Wakeups)
	if err := s.UnregisterAll(); err != nil && runErr == nil {
		runErr = err
	}
	return stats, runErr
}

// resched asks every unit to reschedule on each tick until the loops are done.
func (s *Simulator) resched(devices []*cpuidle.Device, done <-chan struct{}) {
	ticker := time.NewTicker(s.config.Simulation.Tick())
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			for _, dev := range devices {
				dev.SetNeedResched()
			}
		}
	}
}

func (s *Simulator) idleLoop(ctx context.Context, dev *cpuidle.Device) error {
	want := s.config.Simulation.GetEnterIndex()
	for ctx.Err() == nil {
		drv := s.registry.CurrentDriver(dev.CPU)
		if drv == nil {
			return errors.Wrapf(cpuidle.ErrNoDriver, "unit %d", dev.CPU)
		}
		index := pickState(drv, want)
		if index < 0 {
			return errors.Wrapf(cpuidle.ErrInvalidState, "driver %q has no enabled state", drv.Name)
		}
		dev.DisableIRQ()
		if _, err := s.registry.Enter(dev, index); err != nil {
			return err
		}
		s.entries.Inc()
		if dev.ClearNeedResched() {
			s.wakeups.Inc()
		}
		select {
		case <-dev.Kicked():
		default:
		}
	}
	return nil
}
