package cpuidle

import (
	"sync"
	"testing"
	"time"

	"github.com/go-logr/logr"
	. "github.com/onsi/gomega"
	"github.com/pkg/errors"
	"k8s.io/utils/pointer"

	"github.com/alibaba/polardbx-cpuidle/pkg/cpuidle/cpumask"
)

type recordingObserver struct {
	mu      sync.Mutex
	entries []int
}

func (o *recordingObserver) ObserveEnter(drv *Driver, requested, entered int, residency time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.entries = append(o.entries, entered)
}

func TestEnterPollState(t *testing.T) {
	g := NewGomegaWithT(t)
	observer := &recordingObserver{}
	r, err := NewRegistry(Options{
		MultipleDrivers: true,
		PollIdle:        pointer.Bool(true),
		Possible:        cpumask.Range(0, 2),
		Coordinator:     &fakeCoordinator{},
		Observer:        observer,
		Logger:          logr.Discard(),
	})
	g.Expect(err).Should(BeNil())
	a := testDriver("A", cpumask.Range(0, 2), State{}, testState("C1", 0))
	g.Expect(r.Register(a)).Should(Succeed())

	dev := NewDevice(1)
	dev.DisableIRQ()
	go func() {
		g.Eventually(dev.Polling).Should(BeTrue())
		dev.SetNeedResched()
	}()
	entered, err := r.Enter(dev, 0)
	g.Expect(err).Should(BeNil())
	g.Expect(entered).Should(Equal(0))
	g.Expect(dev.IRQEnabled()).Should(BeTrue())
	g.Expect(dev.Polling()).Should(BeFalse())
	g.Expect(dev.ClearNeedResched()).Should(BeTrue())
	g.Expect(a.Refcount()).Should(BeEquivalentTo(0))

	// a pending reschedule returns immediately
	dev.SetNeedResched()
	entered, err = r.Enter(dev, 0)
	g.Expect(err).Should(BeNil())
	g.Expect(entered).Should(Equal(0))

	entered, err = r.Enter(dev, 1)
	g.Expect(err).Should(BeNil())
	g.Expect(entered).Should(Equal(1))
	g.Expect(observer.entries).Should(Equal([]int{0, 0, 1}))
}

func TestEnterErrors(t *testing.T) {
	g := NewGomegaWithT(t)
	r, _ := newTestRegistry(t, true, false)

	_, err := r.Enter(NewDevice(0), 0)
	g.Expect(errors.Is(err, ErrNoDriver)).Should(BeTrue())

	disabled := testState("C2", 0)
	disabled.Disabled = true
	failing := testState("C3", 0)
	failing.Enter = func(dev *Device, drv *Driver, index int) int {
		return -1
	}
	a := testDriver("A", cpumask.New(0), testState("C1", 0), disabled, failing)
	g.Expect(r.Register(a)).Should(Succeed())

	dev := NewDevice(0)
	_, err = r.Enter(dev, 5)
	g.Expect(errors.Is(err, ErrInvalidState)).Should(BeTrue())
	_, err = r.Enter(dev, -1)
	g.Expect(errors.Is(err, ErrInvalidState)).Should(BeTrue())
	_, err = r.Enter(dev, 1)
	g.Expect(errors.Is(err, ErrInvalidState)).Should(BeTrue())
	_, err = r.Enter(dev, 2)
	g.Expect(errors.Is(err, ErrEnterFailed)).Should(BeTrue())

	// every path released its reference
	g.Expect(a.Refcount()).Should(BeEquivalentTo(0))
	g.Expect(r.Unregister(a)).Should(Succeed())
}

func TestDeviceKick(t *testing.T) {
	g := NewGomegaWithT(t)
	dev := NewDevice(3)
	dev.SetNeedResched()
	g.Eventually(dev.Kicked()).Should(Receive())
	g.Expect(dev.NeedResched()).Should(BeTrue())
	g.Expect(dev.ClearNeedResched()).Should(BeTrue())
	g.Expect(dev.ClearNeedResched()).Should(BeFalse())
}

func TestFlags(t *testing.T) {
	g := NewGomegaWithT(t)
	f, err := ParseFlags("time_valid", " TIMER_STOP ")
	g.Expect(err).Should(BeNil())
	g.Expect(f).Should(Equal(FlagTimeValid | FlagTimerStop))
	g.Expect(f.Has(FlagTimerStop)).Should(BeTrue())
	g.Expect(f.Has(FlagCoupled)).Should(BeFalse())
	g.Expect(f.String()).Should(Equal("TIME_VALID|TIMER_STOP"))
	_, err = ParseFlags("DEEP")
	g.Expect(err).ShouldNot(BeNil())
}
