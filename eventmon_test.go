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
	"testing"

	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"
)

func TestEventMonitor(t *testing.T) {
	Convey("Given an event monitor", t, func() {
		sink := &testSink{}
		bus := newTestBus()
		m := NewEventMonitor(sink, bus, "events")
		m.Refresh(&EventMonTable{Generation: 1, Entries: []EventMonEntry{
			{Target: "Y", EventID: 7, Action: Action{Kind: Alert}},
		}})

		Convey("While disabled, events are ignored", func() {
			So(m.Enabled(), ShouldBeFalse)
			m.OnEvent("Y", 7)
			So(m.Observed(), ShouldEqual, 0)
			So(sink.calls, ShouldBeEmpty)
		})

		Convey("Enabling subscribes", func() {
			So(m.Enable(), ShouldBeNil)
			So(m.Enabled(), ShouldBeTrue)
			So(bus.subs["events"], ShouldBeTrue)

			Convey("A matching event fires its action", func() {
				m.OnEvent("Y", 7)
				So(m.Observed(), ShouldEqual, 1)
				So(sink.calls, ShouldResemble, []sinkCall{
					{Action{Kind: Alert}, "Y"},
				})
			})

			Convey("Other events are only counted", func() {
				m.OnEvent("Z", 7)
				m.OnEvent("Y", 8)
				So(m.Observed(), ShouldEqual, 2)
				So(sink.calls, ShouldBeEmpty)
			})

			Convey("Every matching entry fires", func() {
				m.Refresh(&EventMonTable{Generation: 2, Entries: []EventMonEntry{
					{Target: "Y", EventID: 7, Action: Action{Kind: Alert}},
					{Target: "Y", EventID: 7, Action: Action{Kind: AppRestart}},
					{Target: "Y", EventID: 7, Action: Action{Kind: NoAction}},
				}})
				m.OnEvent("Y", 7)
				So(m.Observed(), ShouldEqual, 1)
				So(len(sink.calls), ShouldEqual, 2)
				So(sink.calls[1].act.Kind, ShouldEqual, AppRestart)
			})

			Convey("Without a table events are still counted", func() {
				m.Refresh(nil)
				m.OnEvent("Y", 7)
				So(m.Observed(), ShouldEqual, 1)
				So(sink.calls, ShouldBeEmpty)
			})

			Convey("Disabling unsubscribes", func() {
				So(m.Disable(), ShouldBeNil)
				So(m.Enabled(), ShouldBeFalse)
				So(bus.subs["events"], ShouldBeFalse)
			})

			Convey("A failed unsubscribe leaves it enabled", func() {
				bus.unsubErr = errInjected
				e := m.Disable()
				So(e, ShouldNotBeNil)
				So(errors.Is(e, errInjected), ShouldBeTrue)
				So(m.Enabled(), ShouldBeTrue)
			})

			Convey("ResetCounters zeroes the observed count", func() {
				m.OnEvent("Z", 1)
				m.ResetCounters()
				So(m.Observed(), ShouldEqual, 0)
			})
		})

		Convey("A failed subscription leaves it disabled", func() {
			bus.subErr = errInjected
			e := m.Enable()
			So(e, ShouldNotBeNil)
			_, ok := e.(*SubscriptionError)
			So(ok, ShouldBeTrue)
			So(m.Enabled(), ShouldBeFalse)
		})

		Convey("Resolve counts unknown targets", func() {
			m.Resolve(func(string) bool { return false })
			So(m.Unresolved(), ShouldEqual, 1)
			m.Resolve(func(n string) bool { return n == "Y" })
			So(m.Unresolved(), ShouldEqual, 0)
		})
	})
}
