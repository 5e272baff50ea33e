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

// AppLifecycle is what the host must implement to let the supervisor act
// on applications.  The supervisor promises not to call these methods
// concurrently, and none of them may block for long: the supervisor calls
// them from inside its cycle.
type AppLifecycle interface {
	// Restart asks for the named application to be restarted.  The
	// lifecycle manager may apply its own policy (rate limits and so
	// forth) and refuse, returning an error.
	Restart(name string) error

	// Delete asks for the named application to be stopped and removed.
	Delete(name string) error

	// RequestProcessorReset asks for the whole processor to be reset.
	// On a real target this does not return.  Hosted implementations
	// may return, in which case the supervisor simply carries on.
	RequestProcessorReset()

	// Registered reports whether an application of that name is known.
	// It is used for diagnostics only.
	Registered(name string) bool
}

// CounterSource supplies execution counters.  A counter is any value that
// changes while the resource makes progress; only change matters, not
// the magnitude.  The boolean is false when the resource is unknown.
type CounterSource interface {
	ExecutionCount(kind ResourceKind, name string) (uint32, bool)
}

// IdleCounter supplies a monotonically increasing count of idle work.
// Reads need not be synchronized with the writer; a stale value merely
// skews one utilization sample.
type IdleCounter interface {
	IdleCount() uint32
}
