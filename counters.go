// Copyright 2015 The Govisor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package hsvisor

import (
	"sync"
)

type counterKey struct {
	kind ResourceKind
	name string
}

// CounterRegistry holds execution counters that resources advance
// themselves, by checking in.  It is safe for concurrent use.
type CounterRegistry struct {
	counts map[counterKey]uint32
	mx     sync.Mutex
}

func NewCounterRegistry() *CounterRegistry {
	return &CounterRegistry{counts: make(map[counterKey]uint32)}
}

// CheckIn advances the counter of the named resource, registering it on
// first use, and returns the new value.
func (r *CounterRegistry) CheckIn(kind ResourceKind, name string) uint32 {
	r.mx.Lock()
	defer r.mx.Unlock()
	k := counterKey{kind, name}
	r.counts[k]++
	return r.counts[k]
}

// Set stores an absolute counter value.
func (r *CounterRegistry) Set(kind ResourceKind, name string, v uint32) {
	r.mx.Lock()
	r.counts[counterKey{kind, name}] = v
	r.mx.Unlock()
}

// Forget removes a resource.
func (r *CounterRegistry) Forget(kind ResourceKind, name string) {
	r.mx.Lock()
	delete(r.counts, counterKey{kind, name})
	r.mx.Unlock()
}

// ExecutionCount implements CounterSource.
func (r *CounterRegistry) ExecutionCount(kind ResourceKind, name string) (uint32, bool) {
	r.mx.Lock()
	defer r.mx.Unlock()
	v, ok := r.counts[counterKey{kind, name}]
	return v, ok
}

// CounterChain consults each source in turn and returns the first hit.
type CounterChain []CounterSource

func (c CounterChain) ExecutionCount(kind ResourceKind, name string) (uint32, bool) {
	for _, src := range c {
		if v, ok := src.ExecutionCount(kind, name); ok {
			return v, true
		}
	}
	return 0, false
}
