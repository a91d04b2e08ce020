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

package cpumask

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// AllCpuSet is the textual form of an unspecified mask, i.e. every possible unit.
const AllCpuSet = "-1"

// Mask is a sorted set of unit (cpu) ids without duplicates. A nil Mask
// stands for "unspecified" and is resolved to all possible units by its user.
type Mask []int

// New builds a mask from the given cpus, dropping duplicates.
func New(cpus ...int) Mask {
	if len(cpus) == 0 {
		return Mask{}
	}
	uniqueSet := map[int]bool{}
	for _, cpu := range cpus {
		uniqueSet[cpu] = true
	}
	result := Mask(maps.Keys(uniqueSet))
	slices.Sort(result)
	return result
}

// Range returns the mask {start, ..., end-1}.
func Range(start, end int) Mask {
	if end <= start {
		return Mask{}
	}
	result := make(Mask, 0, end-start)
	for i := start; i < end; i++ {
		result = append(result, i)
	}
	return result
}

// Parse parses the cpuset list format used by sysfs and cgroups, e.g. "0-3,8,10-11".
// AllCpuSet parses to a nil mask.
func Parse(cpuSet string) (Mask, error) {
	cpuSet = strings.TrimSpace(cpuSet)
	if cpuSet == AllCpuSet {
		return nil, nil
	}
	result := make([]int, 0)
	for _, cpu := range strings.Split(cpuSet, ",") {
		cpu = strings.TrimSpace(cpu)
		if cpu == "" {
			continue
		}
		if strings.Contains(cpu, "-") {
			splittedStr := strings.SplitN(cpu, "-", 2)
			start, err := strconv.Atoi(strings.TrimSpace(splittedStr[0]))
			if err != nil {
				return nil, errors.Wrap(err, fmt.Sprintf("failed to convert start, cpu = %s", cpu))
			}
			end, err := strconv.Atoi(strings.TrimSpace(splittedStr[1]))
			if err != nil {
				return nil, errors.Wrap(err, fmt.Sprintf("failed to convert end, cpu = %s", cpu))
			}
			if end < start {
				return nil, errors.Errorf("invalid range, cpu = %s", cpu)
			}
			for i := start; i <= end; i++ {
				result = append(result, i)
			}
		} else {
			value, err := strconv.Atoi(cpu)
			if err != nil {
				return nil, errors.Wrap(err, fmt.Sprintf("failed to convert, cpu = %s", cpu))
			}
			if value < 0 {
				return nil, errors.Errorf("negative cpu, cpu = %s", cpu)
			}
			result = append(result, value)
		}
	}
	return New(result...), nil
}

// MustParse is Parse for literals known to be valid.
func MustParse(cpuSet string) Mask {
	m, err := Parse(cpuSet)
	if err != nil {
		panic(err)
	}
	return m
}

// String renders the mask in cpuset list format.
func (m Mask) String() string {
	if m == nil {
		return AllCpuSet
	}
	if len(m) == 0 {
		return ""
	}
	byteBuf := bytes.Buffer{}
	byteBuf.WriteString(strconv.Itoa(m[0]))
	cpuSetLen := len(m)
	for i := 1; i < cpuSetLen; i++ {
		if m[i]-m[i-1] == 1 {
			if (i+1 < cpuSetLen) && m[i+1]-m[i] == 1 {
				// the end has not been reached
				continue
			}
			byteBuf.WriteString(fmt.Sprintf("-%d", m[i]))
		} else {
			byteBuf.WriteString(fmt.Sprintf(",%d", m[i]))
		}
	}
	return byteBuf.String()
}

func (m Mask) Len() int {
	return len(m)
}

func (m Mask) Empty() bool {
	return len(m) == 0
}

func (m Mask) Contains(cpu int) bool {
	i := sort.SearchInts(m, cpu)
	return i < len(m) && m[i] == cpu
}

// Max returns the highest unit id, or -1 for an empty mask.
func (m Mask) Max() int {
	if len(m) == 0 {
		return -1
	}
	return m[len(m)-1]
}

func (m Mask) Intersects(o Mask) bool {
	i, j := 0, 0
	for i < len(m) && j < len(o) {
		switch {
		case m[i] == o[j]:
			return true
		case m[i] < o[j]:
			i++
		default:
			j++
		}
	}
	return false
}

func (m Mask) Intersection(o Mask) Mask {
	result := Mask{}
	for _, cpu := range m {
		if o.Contains(cpu) {
			result = append(result, cpu)
		}
	}
	return result
}

func (m Mask) Union(o Mask) Mask {
	merged := make([]int, 0, len(m)+len(o))
	merged = append(merged, m...)
	merged = append(merged, o...)
	return New(merged...)
}

// Difference returns the units of m that are not in o.
func (m Mask) Difference(o Mask) Mask {
	result := Mask{}
	for _, cpu := range m {
		if !o.Contains(cpu) {
			result = append(result, cpu)
		}
	}
	return result
}

// SubsetOf reports whether every unit of m is also in o.
func (m Mask) SubsetOf(o Mask) bool {
	for _, cpu := range m {
		if !o.Contains(cpu) {
			return false
		}
	}
	return true
}

func (m Mask) Equal(o Mask) bool {
	if (m == nil) != (o == nil) {
		return false
	}
	return slices.Equal(m, o)
}

// Clone returns a copy that does not share the backing array.
func (m Mask) Clone() Mask {
	if m == nil {
		return nil
	}
	c := make(Mask, len(m))
	copy(c, m)
	return c
}
