package smp

import (
	"context"
	"sync"
	"testing"

	. "github.com/onsi/gomega"
	"github.com/pkg/errors"

	"github.com/alibaba/polardbx-cpuidle/pkg/cpuidle/cpumask"
)

func TestOnEachUnitMaskWaitsForEveryUnit(t *testing.T) {
	g := NewGomegaWithT(t)
	d := NewDispatcher(cpumask.Range(0, 4), Options{})
	defer d.Stop()

	var mu sync.Mutex
	seen := map[int]int{}
	err := d.OnEachUnitMask(context.Background(), cpumask.New(1, 3), func(unit int) {
		mu.Lock()
		defer mu.Unlock()
		seen[unit]++
	}, true)
	g.Expect(err).Should(BeNil())
	// wait=true, so every unit has run fn by now
	g.Expect(seen).Should(Equal(map[int]int{1: 1, 3: 1}))
	g.Expect(d.Calls()).Should(BeEquivalentTo(2))
}

func TestOnEachUnitMaskNoWait(t *testing.T) {
	g := NewGomegaWithT(t)
	d := NewDispatcher(cpumask.Range(0, 2), Options{})

	var wg sync.WaitGroup
	wg.Add(2)
	err := d.OnEachUnitMask(context.Background(), cpumask.Range(0, 2), func(unit int) {
		wg.Done()
	}, false)
	g.Expect(err).Should(BeNil())
	wg.Wait()
	d.Stop()
}

func TestOnEachUnitMaskUnknownUnit(t *testing.T) {
	g := NewGomegaWithT(t)
	d := NewDispatcher(cpumask.Range(0, 2), Options{})
	defer d.Stop()

	ran := false
	err := d.OnEachUnitMask(context.Background(), cpumask.New(0, 5), func(unit int) {
		ran = true
	}, true)
	g.Expect(errors.Is(err, ErrUnknownUnit)).Should(BeTrue())
	g.Expect(ran).Should(BeFalse())
}

func TestStop(t *testing.T) {
	g := NewGomegaWithT(t)
	d := NewDispatcher(cpumask.Range(0, 2), Options{})
	g.Expect(d.OnUnit(context.Background(), 1, func(int) {})).Should(BeNil())
	d.Stop()
	d.Stop()
	err := d.OnUnit(context.Background(), 1, func(int) {})
	g.Expect(errors.Is(err, ErrStopped)).Should(BeTrue())
	g.Expect(d.Units()).Should(Equal(cpumask.Range(0, 2)))
}

func TestConcurrentDispatch(t *testing.T) {
	g := NewGomegaWithT(t)
	d := NewDispatcher(cpumask.Range(0, 8), Options{QueueDepth: 1})
	defer d.Stop()

	var mu sync.Mutex
	total := 0
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = d.OnEachUnitMask(context.Background(), cpumask.Range(0, 8), func(int) {
				mu.Lock()
				total++
				mu.Unlock()
			}, true)
		}()
	}
	wg.Wait()
	g.Expect(total).Should(Equal(16 * 8))
}
