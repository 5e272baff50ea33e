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

	. "github.com/smartystreets/goconvey/convey"
)

func TestUtilizationMonitor(t *testing.T) {
	Convey("Calibrations with zero constants are rejected", t, func() {
		idle := &testIdle{}
		sink := &testSink{}
		for _, cfg := range []UtilConfig{
			{Mult1: 0, Div: 1, Mult2: 100, Threshold: 9900, MaxHogCycles: 5},
			{Mult1: 1, Div: 0, Mult2: 100, Threshold: 9900, MaxHogCycles: 5},
			{Mult1: 1, Div: 1, Mult2: 0, Threshold: 9900, MaxHogCycles: 5},
			{Mult1: 1, Div: 1, Mult2: 100, Threshold: 0, MaxHogCycles: 5},
			{Mult1: 1, Div: 1, Mult2: 100, Threshold: 9900, MaxHogCycles: 0},
			{Mult1: 1, Div: 1, Mult2: 100, Threshold: 10001, MaxHogCycles: 5},
		} {
			m, e := NewUtilizationMonitor(cfg, idle, sink)
			So(e, ShouldNotBeNil)
			So(m, ShouldBeNil)
		}
	})

	Convey("Given a utilization monitor", t, func() {
		// 100 idle units per interval is a fully idle interval.
		idle := &testIdle{n: 1000}
		sink := &testSink{}
		m, e := NewUtilizationMonitor(DefaultConfig().Util, idle, sink)
		So(e, ShouldBeNil)
		So(m.Hogging(), ShouldBeTrue)

		mark := func(delta uint32) {
			idle.n += delta
			m.Mark()
		}

		Convey("Idle work maps to utilization", func() {
			mark(100)
			So(m.Current(), ShouldEqual, 0)
			mark(50)
			So(m.Current(), ShouldEqual, 5000)
			mark(0)
			So(m.Current(), ShouldEqual, UtilTotal)
			mark(1000000)
			So(m.Current(), ShouldEqual, 0)
		})

		Convey("A wrapped idle counter still measures the interval", func() {
			idle.n = 0xFFFFFFF0
			m.Mark()
			idle.n = 0x22
			m.Mark()
			So(m.Current(), ShouldEqual, 5000)
		})

		Convey("Average covers recent intervals and peak the history", func() {
			mark(100)
			mark(100)
			mark(100)
			mark(100)
			mark(0)
			So(m.Current(), ShouldEqual, 10000)
			So(m.Average(), ShouldEqual, 2500)
			So(m.Peak(), ShouldEqual, 10000)
			for i := 0; i < utilHistoryLen; i++ {
				mark(50)
			}
			So(m.Average(), ShouldEqual, 5000)
			So(m.Peak(), ShouldEqual, 5000)
		})

		Convey("Sustained overload alerts exactly once", func() {
			for i := 0; i < 4; i++ {
				mark(0)
			}
			So(m.HogCount(), ShouldEqual, 4)
			So(sink.calls, ShouldBeEmpty)
			mark(0)
			So(sink.calls, ShouldResemble, []sinkCall{
				{Action{Kind: Alert}, "CPU"},
			})
			for i := 0; i < 10; i++ {
				mark(0)
			}
			So(len(sink.calls), ShouldEqual, 1)
			So(m.HogCount(), ShouldEqual, 5)

			Convey("And a quiet interval rearms it", func() {
				mark(100)
				So(m.HogCount(), ShouldEqual, 0)
				for i := 0; i < 5; i++ {
					mark(0)
				}
				So(len(sink.calls), ShouldEqual, 2)
			})
		})

		Convey("Disabled hogging detection never alerts", func() {
			m.SetHogging(false)
			for i := 0; i < 10; i++ {
				mark(0)
			}
			So(m.HogCount(), ShouldEqual, 0)
			So(sink.calls, ShouldBeEmpty)
			So(m.Current(), ShouldEqual, UtilTotal)
		})
	})
}
