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
	"context"
	"runtime"
	"sync/atomic"

	"github.com/shirou/gopsutil/cpu"
)

// IdleWord is a single idle counter word, incremented by whatever idle
// hook the host has (a lowest priority task, typically) and read by the
// utilization monitor.
type IdleWord struct {
	n uint32
}

// Add advances the counter.  It wraps naturally.
func (w *IdleWord) Add(delta uint32) {
	atomic.AddUint32(&w.n, delta)
}

// IdleCount implements IdleCounter.
func (w *IdleWord) IdleCount() uint32 {
	return atomic.LoadUint32(&w.n)
}

// IdleSpinner advances an IdleWord whenever the Go scheduler has nothing
// better to run.  It stands in for the lowest priority task of a real
// target, and only makes sense on a host dedicated to the supervised
// applications: Go has no idle priority, so the spinner competes with
// them for CPU.
type IdleSpinner struct {
	Word *IdleWord
}

// Serve spins until ctx is done.  It implements the suture.Service
// contract.
func (s IdleSpinner) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		for i := 0; i < 1000; i++ {
			s.Word.Add(1)
			runtime.Gosched()
		}
	}
}

func (s IdleSpinner) String() string {
	return "idle-spinner"
}

// HostIdle reads the host's aggregate idle CPU time, in hundredths of a
// second, as an idle counter.  With a one second cycle on a host with n
// CPUs, a calibration of Mult1=1, Div=n, Mult2=100 yields utilization.
type HostIdle struct {
	last uint32
}

// IdleCount implements IdleCounter.  A failed sample repeats the last
// value, which reads as a fully busy interval.
func (h *HostIdle) IdleCount() uint32 {
	ts, e := cpu.Times(false)
	if e != nil || len(ts) == 0 {
		return h.last
	}
	h.last = uint32(uint64(ts[0].Idle * 100))
	return h.last
}
