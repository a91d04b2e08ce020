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


// Package biglittle holds the single active frequency-scaling implementation
// of a two cluster big.LITTLE platform.
package biglittle

import (
	"sync"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/alibaba/polardbx-cpuidle/pkg/cpuidle/cpumask"
)

const (
	A15Cluster = 0
	A7Cluster  = 1

	// MaxClusters is also the cluster of every cpu while switching is enabled.
	MaxClusters = 2
)

var (
	ErrBusy        = errors.New("another big.LITTLE implementation is registered")
	ErrInvalidOps  = errors.New("invalid big.LITTLE ops")
	ErrNotFound    = errors.New("ops not registered")
	ErrUnknownCpu  = errors.New("cpu not in topology")
	ErrNoOpsActive = errors.New("no big.LITTLE implementation registered")
)

type Ops struct {
	Name                 string
	GetTransitionLatency func(cpu int) (uint32, error)

	// InitOppTable sets the operating points of the cpu's cluster.
	InitOppTable func(cpu int) error
}

func (o *Ops) validate() error {
	if o == nil || o.Name == "" || o.GetTransitionLatency == nil || o.InitOppTable == nil {
		return ErrInvalidOps
	}
	return nil
}

// Topology maps a cpu to its physical package.
type Topology interface {
	Processors() cpumask.Mask
	PackageOf(cpu int) (int, bool)
}

type Registry struct {
	logger   logr.Logger
	topology Topology
	switcher atomic.Bool

	mu       sync.Mutex
	ops      *Ops
	clusters map[int]int
}

func NewRegistry(topology Topology, logger logr.Logger) *Registry {
	return &Registry{
		logger:   logger.WithName("biglittle"),
		topology: topology,
	}
}

// SetSwitchingEnabled toggles the in-kernel switcher folding both clusters
// into one.
func (r *Registry) SetSwitchingEnabled(enabled bool) {
	r.switcher.Store(enabled)
}

func (r *Registry) SwitchingEnabled() bool {
	return r.switcher.Load()
}

func (r *Registry) CpuToCluster(cpu int) (int, error) {
	if r.SwitchingEnabled() {
		return MaxClusters, nil
	}
	pkg, ok := r.topology.PackageOf(cpu)
	if !ok {
		return -1, errors.Wrapf(ErrUnknownCpu, "cpu %d", cpu)
	}
	return pkg, nil
}

// Register activates ops and initializes the OPP table of every cluster
// through its first cpu. A failed initialization leaves nothing registered.
func (r *Registry) Register(ops *Ops) error {
	if err := ops.validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ops != nil {
		return errors.Wrapf(ErrBusy, "%s is active", r.ops.Name)
	}

	clusters := map[int]int{}
	for _, cpu := range r.topology.Processors() {
		cluster, err := r.CpuToCluster(cpu)
		if err != nil {
			return err
		}
		if _, ok := clusters[cluster]; ok {
			continue
		}
		if err := ops.InitOppTable(cpu); err != nil {
			return errors.Wrapf(err, "failed to init opp table of cluster %d", cluster)
		}
		clusters[cluster] = cpu
	}
	r.ops = ops
	r.clusters = clusters
	r.logger.Info("registered", "name", ops.Name, "clusters", len(clusters))
	return nil
}

func (r *Registry) Unregister(ops *Ops) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ops == nil || r.ops != ops {
		return ErrNotFound
	}
	r.ops = nil
	r.clusters = nil
	r.logger.Info("unregistered", "name", ops.Name)
	return nil
}

func (r *Registry) Active() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ops == nil {
		return ""
	}
	return r.ops.Name
}

// TransitionLatency returns the latency, in ns, of switching the cpu's
// operating point.
func (r *Registry) TransitionLatency(cpu int) (uint32, error) {
	r.mu.Lock()
	ops := r.ops
	r.mu.Unlock()
	if ops == nil {
		return 0, ErrNoOpsActive
	}
	return ops.GetTransitionLatency(cpu)
}

// Clusters returns the cpu each initialized cluster was set up through.
func (r *Registry) Clusters() map[int]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make(map[int]int, len(r.clusters))
	for k, v := range r.clusters {
		result[k] = v
	}
	return result
}
