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

//go:build linux

package smp

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// cpuSetSize is the number of cpus a unix.CPUSet can hold.
const cpuSetSize = 1024

func pinToCpu(cpu int) error {
	if cpu < 0 || cpu >= cpuSetSize {
		return errors.Errorf("cpu %d out of affinity range", cpu)
	}
	var set unix.CPUSet
	set.Zero()
	set.Set(cpu)
	// pid 0 is the calling thread
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return errors.Wrapf(err, "failed to set affinity to cpu %d", cpu)
	}
	return nil
}
