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

// Package smp runs functions on behalf of individual execution units. Each
// unit owns a worker goroutine, optionally locked to an OS thread pinned to
// the matching cpu, so a function dispatched to a unit observes that unit's
// context the way a cross-cpu call would.
package smp

import (
	"context"
	"runtime"
	"sync"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/alibaba/polardbx-cpuidle/pkg/cpuidle/cpumask"
)

var (
	ErrStopped      = errors.New("dispatcher stopped")
	ErrUnknownUnit  = errors.New("unit not managed by dispatcher")
	ErrNotSupported = errors.New("cpu affinity not supported")
)

const defaultQueueDepth = 16

// Func is executed on the worker of unit.
type Func func(unit int)

type call struct {
	fn   Func
	done chan struct{}
}

type Options struct {
	Logger logr.Logger
	// Pin locks each worker to an OS thread bound to its cpu.
	Pin        bool
	QueueDepth int
}

type Dispatcher struct {
	logger  logr.Logger
	units   cpumask.Mask
	queues  map[int]chan call
	pin     bool
	mu      sync.RWMutex
	stopped atomic.Bool
	calls   atomic.Uint64
	wg      sync.WaitGroup
}

// NewDispatcher starts one worker per unit of units.
func NewDispatcher(units cpumask.Mask, opts Options) *Dispatcher {
	logger := opts.Logger
	if logger.GetSink() == nil {
		logger = logr.Discard()
	}
	depth := opts.QueueDepth
	if depth <= 0 {
		depth = defaultQueueDepth
	}
	d := &Dispatcher{
		logger: logger.WithName("smp"),
		units:  units.Clone(),
		queues: make(map[int]chan call, len(units)),
		pin:    opts.Pin,
	}
	for _, unit := range units {
		q := make(chan call, depth)
		d.queues[unit] = q
		d.wg.Add(1)
		go d.worker(unit, q)
	}
	d.logger.V(1).Info("workers started", "units", units.String(), "pin", opts.Pin)
	return d
}

func (d *Dispatcher) worker(unit int, q <-chan call) {
	defer d.wg.Done()
	if d.pin {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		if err := pinToCpu(unit); err != nil {
			d.logger.Error(err, "failed to pin worker, continue unpinned", "unit", unit)
		}
	}
	for c := range q {
		c.fn(unit)
		close(c.done)
	}
}

func (d *Dispatcher) Units() cpumask.Mask {
	return d.units.Clone()
}

// Calls returns the number of functions executed so far on all workers.
func (d *Dispatcher) Calls() uint64 {
	return d.calls.Load()
}

// OnEachUnitMask runs fn on every unit of mask. With wait it returns only
// after every targeted worker has finished running fn, otherwise it returns
// once the call is queued on every worker. Units are validated before any
// call is queued, so an unknown unit never results in a partial dispatch.
func (d *Dispatcher) OnEachUnitMask(ctx context.Context, mask cpumask.Mask, fn Func, wait bool) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.stopped.Load() {
		return ErrStopped
	}
	for _, unit := range mask {
		if _, ok := d.queues[unit]; !ok {
			return errors.Wrapf(ErrUnknownUnit, "unit %d", unit)
		}
	}

	eg, ctx := errgroup.WithContext(ctx)
	for _, unit := range mask {
		q := d.queues[unit]
		c := call{fn: fn, done: make(chan struct{})}
		d.calls.Inc()
		eg.Go(func() error {
			select {
			case q <- c:
			case <-ctx.Done():
				return ctx.Err()
			}
			if !wait {
				return nil
			}
			select {
			case <-c.done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}
	return eg.Wait()
}

// OnUnit runs fn on a single unit and waits for it.
func (d *Dispatcher) OnUnit(ctx context.Context, unit int, fn Func) error {
	return d.OnEachUnitMask(ctx, cpumask.Mask{unit}, fn, true)
}

// Stop drains queued calls and terminates the workers.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped.Swap(true) {
		d.mu.Unlock()
		return
	}
	for _, q := range d.queues {
		close(q)
	}
	d.mu.Unlock()
	d.wg.Wait()
	d.logger.V(1).Info("workers stopped")
}
