package clockevents

import (
	"testing"

	"github.com/go-logr/logr"
	. "github.com/onsi/gomega"

	"github.com/alibaba/polardbx-cpuidle/pkg/cpuidle/cpumask"
)

func TestTracker(t *testing.T) {
	g := NewGomegaWithT(t)
	tracker := NewTracker(logr.Discard())

	tracker.Notify(BroadcastOn, 2)
	tracker.Notify(BroadcastOn, 0)
	g.Expect(tracker.IsBroadcast(2)).Should(BeTrue())
	g.Expect(tracker.IsBroadcast(1)).Should(BeFalse())
	g.Expect(tracker.BroadcastMask()).Should(Equal(cpumask.New(0, 2)))

	tracker.Notify(BroadcastOff, 2)
	tracker.Notify(Reason(42), 1)
	g.Expect(tracker.BroadcastMask()).Should(Equal(cpumask.New(0)))
	g.Expect(tracker.Notifications()).Should(BeEquivalentTo(4))
	g.Expect(Reason(42).String()).Should(Equal("Unknown"))
}
