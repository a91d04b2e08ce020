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

package cpuidle

import (
	"github.com/pkg/errors"
	"go.uber.org/atomic"
)

// refcount never goes below zero. Writers hold the registry lock, the
// atomic only serves lock-free readers.
type refcount struct {
	n atomic.Int64
}

func (r *refcount) inc() int64 {
	return r.n.Inc()
}

func (r *refcount) dec() (int64, error) {
	cur := r.n.Load()
	if cur <= 0 {
		return cur, errors.Wrap(ErrPreconditionViolated, "refcount underflow")
	}
	return r.n.Dec(), nil
}

func (r *refcount) load() int64 {
	return r.n.Load()
}

func (r *refcount) reset() {
	r.n.Store(0)
}

// Ref is a counted reference to a registered driver. Release is idempotent,
// so `defer ref.Release()` is safe on every path.
type Ref struct {
	registry *Registry
	driver   *Driver
	released atomic.Bool
}

func (ref *Ref) Driver() *Driver {
	return ref.driver
}

func (ref *Ref) Release() {
	if ref == nil || ref.released.Swap(true) {
		return
	}
	_ = ref.registry.Release(ref.driver)
}
