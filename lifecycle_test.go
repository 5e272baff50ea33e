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

//go:build !windows

package hsvisor

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	. "github.com/smartystreets/goconvey/convey"
)

func sleeper(name string) ProcessManifest {
	return ProcessManifest{
		Name:     name,
		Command:  []string{"sleep", "30"},
		StopTime: time.Second,
	}
}

func TestAppProcess(t *testing.T) {
	Convey("A manifest needs a command", t, func() {
		_, e := NewAppProcess(ProcessManifest{Name: "x"}, testLogger(t))
		So(e, ShouldNotBeNil)
		_, e = NewAppProcess(ProcessManifest{Command: []string{"true"}}, testLogger(t))
		So(e, ShouldNotBeNil)
	})

	Convey("Given a sleeping process", t, func() {
		m := sleeper("sleeper")
		m.RateLimit = 2
		m.RatePeriod = time.Hour
		p, e := NewAppProcess(m, testLogger(t))
		So(e, ShouldBeNil)
		So(p.Name(), ShouldEqual, "sleeper")
		So(p.Description(), ShouldContainSubstring, "sleep")
		So(p.Running(), ShouldBeFalse)
		So(p.Pid(), ShouldEqual, 0)

		So(p.Start(), ShouldBeNil)
		Reset(p.Stop)
		So(p.Running(), ShouldBeTrue)
		So(p.Pid(), ShouldBeGreaterThan, 0)

		Convey("It stops", func() {
			p.Stop()
			So(p.Running(), ShouldBeFalse)
			So(p.Pid(), ShouldEqual, 0)
		})

		Convey("Restarts are rate limited", func() {
			pid := p.Pid()
			So(p.CheckRestart(), ShouldBeNil)
			So(p.Restart(), ShouldBeNil)
			So(p.Running(), ShouldBeTrue)
			So(p.Pid(), ShouldNotEqual, pid)
			So(p.CheckRestart(), ShouldEqual, ErrRateLimited)
			So(p.Restart(), ShouldEqual, ErrRateLimited)
			So(p.Running(), ShouldBeTrue)
		})
	})
}

func TestProcessLifecycle(t *testing.T) {
	Convey("Given a lifecycle manager", t, func() {
		// Stops run in the background and may outlive the test.
		quiet := zerolog.Nop()
		l := NewProcessLifecycle(nil, quiet)
		exited := make(chan int, 1)
		l.exit = func(code int) {
			exited <- code
		}
		p, e := NewAppProcess(sleeper("A"), quiet)
		So(e, ShouldBeNil)
		So(l.Add(p), ShouldBeNil)
		Reset(l.StopAll)

		Convey("Names are unique", func() {
			q, e := NewAppProcess(sleeper("A"), quiet)
			So(e, ShouldBeNil)
			So(l.Add(q), ShouldNotBeNil)
			So(l.Names(), ShouldResemble, []string{"A"})
		})

		Convey("Registration is reported", func() {
			So(l.Registered("A"), ShouldBeTrue)
			So(l.Registered("B"), ShouldBeFalse)
			l.Register("B")
			So(l.Registered("B"), ShouldBeTrue)
		})

		Convey("Unknown applications cannot be acted on", func() {
			So(errors.Is(l.Restart("B"), ErrNotRegistered), ShouldBeTrue)
			So(errors.Is(l.Delete("B"), ErrNotRegistered), ShouldBeTrue)
		})

		Convey("Started processes have execution counts", func() {
			So(l.StartAll(), ShouldBeNil)
			So(p.Running(), ShouldBeTrue)
			c := ProcessCounters{Lifecycle: l}
			_, ok := c.ExecutionCount(KindAppMain, "A")
			So(ok, ShouldBeTrue)
			_, ok = c.ExecutionCount(KindDevice, "A")
			So(ok, ShouldBeFalse)
			_, ok = c.ExecutionCount(KindAppMain, "B")
			So(ok, ShouldBeFalse)

			Convey("And deleted ones are forgotten", func() {
				So(l.Delete("A"), ShouldBeNil)
				So(l.Registered("A"), ShouldBeFalse)
				So(l.Process("A"), ShouldBeNil)
				for i := 0; i < 100 && p.Pid() != 0; i++ {
					time.Sleep(10 * time.Millisecond)
				}
				So(p.Pid(), ShouldEqual, 0)
			})
		})

		Convey("A reset without a command exits", func() {
			So(l.StartAll(), ShouldBeNil)
			l.RequestProcessorReset()
			select {
			case code := <-exited:
				So(code, ShouldEqual, 3)
			case <-time.After(5 * time.Second):
				So("timeout", ShouldBeEmpty)
			}
			So(p.Running(), ShouldBeFalse)
		})
	})
}

func TestCounters(t *testing.T) {
	Convey("Counters advance on check in", t, func() {
		r := NewCounterRegistry()
		_, ok := r.ExecutionCount(KindAppMain, "X")
		So(ok, ShouldBeFalse)
		So(r.CheckIn(KindAppMain, "X"), ShouldEqual, 1)
		So(r.CheckIn(KindAppMain, "X"), ShouldEqual, 2)
		_, ok = r.ExecutionCount(KindDevice, "X")
		So(ok, ShouldBeFalse)

		r.Set(KindDevice, "bus", 0xFFFFFFFF)
		So(r.CheckIn(KindDevice, "bus"), ShouldEqual, 0)

		Convey("A chain consults each source in turn", func() {
			other := NewCounterRegistry()
			other.Set(KindIsr, "timer", 9)
			other.Set(KindAppMain, "X", 99)
			c := CounterChain{r, other}
			v, ok := c.ExecutionCount(KindAppMain, "X")
			So(ok, ShouldBeTrue)
			So(v, ShouldEqual, 2)
			v, ok = c.ExecutionCount(KindIsr, "timer")
			So(ok, ShouldBeTrue)
			So(v, ShouldEqual, 9)

			r.Forget(KindAppMain, "X")
			v, _ = c.ExecutionCount(KindAppMain, "X")
			So(v, ShouldEqual, 99)
		})
	})
}
