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

// Package topology discovers the execution units of the host: the possible
// cpu mask and the package (socket) each processor belongs to.
package topology

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v3/cpu"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/alibaba/polardbx-cpuidle/pkg/cpuidle/cpumask"
)

var (
	PossibleCpuFilepath         = "/sys/devices/system/cpu/possible"
	CpuInfoFilepath             = "/proc/cpuinfo"
	CpuPhysicalIdFilepathFormat = "/sys/devices/system/cpu/cpu%d/topology/physical_package_id"
	CpuCoreIdFilepathFormat     = "/sys/devices/system/cpu/cpu%d/topology/core_id"
)

const (
	KeyProcessor  = "processor"
	KeyPhysicalId = "physical id"
	KeyCoreId     = "core id"
	KeyModelName  = "model name"
)

var logger logr.Logger = zap.New(zap.UseDevMode(true)).WithName("topology")

// SetLogger replaces the package logger.
func SetLogger(l logr.Logger) {
	logger = l.WithName("topology")
}

// Possible returns the mask of units that may ever be brought online. The
// sysfs list is preferred; the logical cpu count is used when it can't be read.
func Possible() (cpumask.Mask, error) {
	content, err := ReadFile(PossibleCpuFilepath)
	if err == nil {
		mask, err := cpumask.Parse(content)
		if err == nil && !mask.Empty() {
			return mask, nil
		}
		logger.Info("unusable possible cpu list, fallback to cpu count", "filepath", PossibleCpuFilepath, "content", strings.TrimSpace(content))
	} else {
		logger.V(1).Info("failed to read possible cpu list, fallback to cpu count", "filepath", PossibleCpuFilepath, "error", err.Error())
	}
	count, err := cpu.Counts(true)
	if err != nil {
		return nil, errors.Wrap(err, "failed to count logical cpus")
	}
	if count <= 0 {
		return nil, errors.Errorf("invalid logical cpu count %d", count)
	}
	return cpumask.Range(0, count), nil
}

type CpuItem struct {
	Processor  int    `json:"processor"`
	CoreId     int    `json:"core_id"`
	PhysicalId int    `json:"physical_id"`
	ModelName  string `json:"model_name"`
}

// Topology is the processor to package layout of the host.
type Topology struct {
	CpuItems []*CpuItem `json:"cpu_items,omitempty"`
	// key: processor
	processorMap map[int]*CpuItem
	// key: physical package id
	packageMap map[int]cpumask.Mask
}

func NewTopology(cpuItems []*CpuItem) *Topology {
	t := &Topology{
		CpuItems:     cpuItems,
		processorMap: map[int]*CpuItem{},
		packageMap:   map[int]cpumask.Mask{},
	}
	for _, item := range cpuItems {
		t.processorMap[item.Processor] = item
		t.packageMap[item.PhysicalId] = append(t.packageMap[item.PhysicalId], item.Processor)
	}
	for k, v := range t.packageMap {
		t.packageMap[k] = cpumask.New(v...)
	}
	return t
}

// Load parses CpuInfoFilepath.
func Load() (*Topology, error) {
	items, err := ParseCpuInfo(CpuInfoFilepath)
	if err != nil {
		return nil, err
	}
	return NewTopology(items), nil
}

func (t *Topology) Processors() cpumask.Mask {
	cpus := make([]int, 0, len(t.processorMap))
	for k := range t.processorMap {
		cpus = append(cpus, k)
	}
	return cpumask.New(cpus...)
}

// PackageOf returns the physical package id of the processor.
func (t *Topology) PackageOf(processor int) (int, bool) {
	item, ok := t.processorMap[processor]
	if !ok {
		return -1, false
	}
	return item.PhysicalId, true
}

// Packages returns the processors of each physical package.
func (t *Topology) Packages() map[int]cpumask.Mask {
	result := make(map[int]cpumask.Mask, len(t.packageMap))
	for k, v := range t.packageMap {
		result[k] = v.Clone()
	}
	return result
}

// PhysicalPackageID reads the package id of the cpu from sysfs.
func PhysicalPackageID(processor int) (int, error) {
	return ReadIntFromFile(fmt.Sprintf(CpuPhysicalIdFilepathFormat, processor))
}

// ParseCpuInfo parses a /proc/cpuinfo formatted file. Package and core ids
// missing from the file (as on most arm hosts) are read from sysfs, and
// default to 0 when sysfs doesn't have them either.
func ParseCpuInfo(cpuInfoFilepath string) ([]*CpuItem, error) {
	content, err := ReadFile(cpuInfoFilepath)
	if err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("failed to read file, filepath = %s", cpuInfoFilepath))
	}
	lines := strings.Split(content, NewLineSeparator)

	cpuItems := make([]*CpuItem, 0)
	cpuItem := &CpuItem{}
	hasPhysicalId := false
	hasCoreId := false
	flush := func() {
		if cpuItem.ModelName == "" {
			return
		}
		if !hasPhysicalId {
			cpuItem.PhysicalId = readIdOrZero(CpuPhysicalIdFilepathFormat, cpuItem.Processor)
		}
		if !hasCoreId {
			cpuItem.CoreId = readIdOrZero(CpuCoreIdFilepathFormat, cpuItem.Processor)
		}
		hasPhysicalId = false
		hasCoreId = false
		cpuItems = append(cpuItems, cpuItem)
		cpuItem = &CpuItem{}
	}
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		kv := strings.SplitN(line, ":", 2)
		if len(kv) != 2 {
			continue
		}
		key := strings.TrimSpace(kv[0])
		value := strings.TrimSpace(kv[1])
		switch key {
		case KeyProcessor:
			intVal, err := strconv.Atoi(value)
			if err != nil {
				return nil, errors.Wrap(err, fmt.Sprintf("failed to parse line, line = %s", line))
			}
			cpuItem.Processor = intVal
			cpuItem.ModelName = "unknown"
		case KeyPhysicalId:
			intVal, err := strconv.Atoi(value)
			if err != nil {
				return nil, errors.Wrap(err, fmt.Sprintf("failed to parse line, line = %s", line))
			}
			cpuItem.PhysicalId = intVal
			hasPhysicalId = true
		case KeyCoreId:
			intVal, err := strconv.Atoi(value)
			if err != nil {
				return nil, errors.Wrap(err, fmt.Sprintf("failed to parse line, line = %s", line))
			}
			cpuItem.CoreId = intVal
			hasCoreId = true
		case KeyModelName:
			cpuItem.ModelName = value
		}
	}
	flush()
	return cpuItems, nil
}

func readIdOrZero(format string, processor int) int {
	filepath := fmt.Sprintf(format, processor)
	id, err := ReadIntFromFile(filepath)
	if err != nil {
		logger.V(1).Info("failed to read int from file, use 0", "filepath", filepath, "error", err.Error())
		return 0
	}
	return id
}
