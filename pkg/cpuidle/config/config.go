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

package config

import (
	"os"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"
	"k8s.io/apimachinery/pkg/util/yaml"

	"github.com/alibaba/polardbx-cpuidle/pkg/cpuidle"
	"github.com/alibaba/polardbx-cpuidle/pkg/cpuidle/cpumask"
)

var ConfigFilepath = "/config/cpuidle.yaml"

const (
	DefaultTickMillis    = 10
	DefaultEnterIndex    = -1
	defaultDecodeBufSize = 512
)

type RegistryConfig struct {
	MultipleDrivers bool  `json:"multipleDrivers,omitempty"`
	PollIdle        *bool `json:"pollIdle,omitempty"`
	Disabled        bool  `json:"disabled,omitempty"`
	Development     bool  `json:"development,omitempty"`
	PinUnits        bool  `json:"pinUnits,omitempty"`

	// PossibleCpus overrides the host's possible cpus, in cpuset list format.
	PossibleCpus string `json:"possibleCpus,omitempty"`
}

type StateConfig struct {
	Name            string   `json:"name,omitempty"`
	Desc            string   `json:"desc,omitempty"`
	ExitLatency     uint32   `json:"exitLatency,omitempty"`
	TargetResidency uint32   `json:"targetResidency,omitempty"`
	PowerUsage      int      `json:"powerUsage,omitempty"`
	Flags           []string `json:"flags,omitempty"`
	Disabled        bool     `json:"disabled,omitempty"`
}

type DriverConfig struct {
	Name string `json:"name,omitempty"`

	// Cpus in cpuset list format, empty for all possible cpus.
	Cpus   string        `json:"cpus,omitempty"`
	States []StateConfig `json:"states,omitempty"`
}

type SimulationConfig struct {
	// TickMillis is the period of the reschedule requests waking the units.
	TickMillis int `json:"tickMillis,omitempty"`
	// EnterIndex is the state every idle loop enters, negative for the deepest enabled one.
	EnterIndex *int `json:"enterIndex,omitempty"`
}

type Config struct {
	Registry   RegistryConfig   `json:"registry,omitempty"`
	Drivers    []DriverConfig   `json:"drivers,omitempty"`
	Simulation SimulationConfig `json:"simulation,omitempty"`
}

var configValue atomic.Value

func InitConfig(path string) error {
	config, err := LoadConfig(path)
	if err != nil {
		return err
	}
	configValue.Store(*config)
	return nil
}

func GetConfig() Config {
	return configValue.Load().(Config)
}

func LoadConfig(path string) (*Config, error) {
	fd, err := os.OpenFile(path, os.O_RDONLY, 0664)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}
	defer fd.Close()
	var config Config
	decoder := yaml.NewYAMLOrJSONDecoder(fd, defaultDecodeBufSize)
	if err := decoder.Decode(&config); err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s", path)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) Validate() error {
	if _, err := c.Registry.PossibleMask(); err != nil {
		return err
	}
	names := map[string]bool{}
	for i := range c.Drivers {
		d := &c.Drivers[i]
		if d.Name == "" {
			return errors.Errorf("driver #%d has no name", i)
		}
		if names[d.Name] {
			return errors.Errorf("duplicate driver %q", d.Name)
		}
		names[d.Name] = true
		if len(d.States) == 0 {
			return errors.Errorf("driver %q has no state", d.Name)
		}
		if _, err := d.Mask(); err != nil {
			return errors.Wrapf(err, "driver %q", d.Name)
		}
		for j := range d.States {
			if _, err := d.States[j].ParseFlags(); err != nil {
				return errors.Wrapf(err, "driver %q state %d", d.Name, j)
			}
		}
	}
	if c.Simulation.TickMillis < 0 {
		return errors.Errorf("negative tick %d", c.Simulation.TickMillis)
	}
	return nil
}

// PossibleMask returns nil when the host's possible cpus should be used.
func (c *RegistryConfig) PossibleMask() (cpumask.Mask, error) {
	if c.PossibleCpus == "" {
		return nil, nil
	}
	mask, err := cpumask.Parse(c.PossibleCpus)
	if err != nil {
		return nil, errors.Wrap(err, "invalid possibleCpus")
	}
	return mask, nil
}

// Options converts the switches into registry options.
func (c *RegistryConfig) Options(logger logr.Logger) (cpuidle.Options, error) {
	possible, err := c.PossibleMask()
	if err != nil {
		return cpuidle.Options{}, err
	}
	return cpuidle.Options{
		MultipleDrivers: c.MultipleDrivers,
		PollIdle:        c.PollIdle,
		Disabled:        c.Disabled,
		Development:     c.Development,
		PinUnits:        c.PinUnits,
		Possible:        possible,
		Logger:          logger,
	}, nil
}

// Mask returns nil for all possible cpus.
func (d *DriverConfig) Mask() (cpumask.Mask, error) {
	if d.Cpus == "" {
		return nil, nil
	}
	return cpumask.Parse(d.Cpus)
}

func (s *StateConfig) ParseFlags() (cpuidle.Flags, error) {
	return cpuidle.ParseFlags(s.Flags...)
}

func (s *SimulationConfig) Tick() time.Duration {
	if s.TickMillis == 0 {
		return DefaultTickMillis * time.Millisecond
	}
	return time.Duration(s.TickMillis) * time.Millisecond
}

func (s *SimulationConfig) GetEnterIndex() int {
	if s.EnterIndex == nil {
		return DefaultEnterIndex
	}
	return *s.EnterIndex
}
