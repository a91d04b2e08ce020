package cpuidle

import (
	"testing"

	"github.com/go-logr/logr"
	. "github.com/onsi/gomega"
	"github.com/pkg/errors"
	"k8s.io/utils/pointer"

	"github.com/alibaba/polardbx-cpuidle/pkg/cpuidle/clockevents"
	"github.com/alibaba/polardbx-cpuidle/pkg/cpuidle/cpumask"
	"github.com/alibaba/polardbx-cpuidle/pkg/cpuidle/smp"
)

func TestSmpBroadcastMirrorsDrivers(t *testing.T) {
	g := NewGomegaWithT(t)
	r, err := NewRegistry(Options{
		MultipleDrivers: true,
		PollIdle:        pointer.Bool(false),
		Possible:        cpumask.Range(0, 4),
		Logger:          logr.Discard(),
	})
	g.Expect(err).Should(BeNil())
	defer r.Close()

	coord, ok := r.Coordinator().(*SmpBroadcast)
	g.Expect(ok).Should(BeTrue())
	tracker := coord.Tracker()

	deep := testDriver("deep", cpumask.New(1, 2), testState("C1", 0), testState("C6", FlagTimerStop))
	shallow := testDriver("shallow", cpumask.New(0), testState("C1", 0))
	g.Expect(r.Register(deep)).Should(Succeed())
	g.Expect(r.Register(shallow)).Should(Succeed())

	// Register returns after every unit processed the notification
	g.Expect(tracker.BroadcastMask()).Should(Equal(cpumask.New(1, 2)))

	g.Expect(r.Unregister(deep)).Should(Succeed())
	g.Expect(tracker.BroadcastMask()).Should(BeEmpty())
	g.Expect(tracker.Notifications()).Should(BeEquivalentTo(4))
	g.Expect(r.Unregister(shallow)).Should(Succeed())
}

func TestSmpBroadcastStoppedDispatcher(t *testing.T) {
	g := NewGomegaWithT(t)
	dispatcher := smp.NewDispatcher(cpumask.Range(0, 2), smp.Options{})
	dispatcher.Stop()
	coord := NewSmpBroadcast(dispatcher, clockevents.NewTracker(logr.Discard()), logr.Discard())

	r, err := NewRegistry(Options{
		MultipleDrivers: true,
		PollIdle:        pointer.Bool(false),
		Possible:        cpumask.Range(0, 2),
		Coordinator:     coord,
	})
	g.Expect(err).Should(BeNil())

	deep := testDriver("deep", nil, testState("C6", FlagTimerStop))
	err = r.Register(deep)
	g.Expect(errors.Is(err, ErrBroadcast)).Should(BeTrue())
	g.Expect(r.CurrentDriver(0)).Should(BeNil())
	g.Expect(r.CurrentDriver(1)).Should(BeNil())
	g.Expect(deep.Mask).Should(BeNil())

	shallow := testDriver("shallow", nil, testState("C1", 0))
	g.Expect(r.Register(shallow)).Should(Succeed())
}
