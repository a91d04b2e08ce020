package biglittle

import (
	"testing"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/alibaba/polardbx-cpuidle/pkg/cpuidle/topology"
)

// two A15 cores on package 0, two A7 cores on package 1
func testTopology() *topology.Topology {
	return topology.NewTopology([]*topology.CpuItem{
		{Processor: 0, PhysicalId: A15Cluster},
		{Processor: 1, PhysicalId: A15Cluster},
		{Processor: 2, PhysicalId: A7Cluster},
		{Processor: 3, PhysicalId: A7Cluster},
	})
}

type fakeOps struct {
	inits []int
	fail  error
}

func (f *fakeOps) ops(name string) *Ops {
	return &Ops{
		Name: name,
		GetTransitionLatency: func(cpu int) (uint32, error) {
			return uint32(1000 * (cpu + 1)), nil
		},
		InitOppTable: func(cpu int) error {
			if f.fail != nil {
				return f.fail
			}
			f.inits = append(f.inits, cpu)
			return nil
		},
	}
}

func TestRegister(t *testing.T) {
	r := NewRegistry(testTopology(), logr.Discard())
	f := &fakeOps{}
	vexpress := f.ops("vexpress-spc")

	_, err := r.TransitionLatency(0)
	require.ErrorIs(t, err, ErrNoOpsActive)

	require.NoError(t, r.Register(vexpress))
	require.Equal(t, []int{0, 2}, f.inits)
	require.Equal(t, map[int]int{A15Cluster: 0, A7Cluster: 2}, r.Clusters())
	require.Equal(t, "vexpress-spc", r.Active())

	latency, err := r.TransitionLatency(2)
	require.NoError(t, err)
	require.EqualValues(t, 3000, latency)

	err = r.Register(f.ops("scpi"))
	require.ErrorIs(t, err, ErrBusy)

	require.ErrorIs(t, r.Unregister(f.ops("scpi")), ErrNotFound)
	require.NoError(t, r.Unregister(vexpress))
	require.Equal(t, "", r.Active())
	require.Empty(t, r.Clusters())
	require.ErrorIs(t, r.Unregister(vexpress), ErrNotFound)
}

func TestRegisterInvalid(t *testing.T) {
	r := NewRegistry(testTopology(), logr.Discard())
	require.ErrorIs(t, r.Register(nil), ErrInvalidOps)
	require.ErrorIs(t, r.Register(&Ops{Name: "x"}), ErrInvalidOps)
	ops := (&fakeOps{}).ops("")
	require.ErrorIs(t, r.Register(ops), ErrInvalidOps)
}

func TestRegisterInitFailure(t *testing.T) {
	r := NewRegistry(testTopology(), logr.Discard())
	f := &fakeOps{fail: errors.New("no opp")}
	require.Error(t, r.Register(f.ops("vexpress-spc")))
	require.Equal(t, "", r.Active())

	f.fail = nil
	require.NoError(t, r.Register(f.ops("vexpress-spc")))
}

func TestCpuToCluster(t *testing.T) {
	r := NewRegistry(testTopology(), logr.Discard())
	cluster, err := r.CpuToCluster(3)
	require.NoError(t, err)
	require.Equal(t, A7Cluster, cluster)

	_, err = r.CpuToCluster(8)
	require.ErrorIs(t, err, ErrUnknownCpu)

	r.SetSwitchingEnabled(true)
	require.True(t, r.SwitchingEnabled())
	for cpu := 0; cpu < 4; cpu++ {
		cluster, err := r.CpuToCluster(cpu)
		require.NoError(t, err)
		require.Equal(t, MaxClusters, cluster)
	}

	f := &fakeOps{}
	require.NoError(t, r.Register(f.ops("switcher")))
	require.Equal(t, []int{0}, f.inits)
}
