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

func TestDispatcher(t *testing.T) {
	Convey("Given a dispatcher", t, func() {
		store := &testStore{MemStore: NewMemStore()}
		lc := &testLifecycle{known: make(map[string]bool)}
		bus := newTestBus()
		notes := &testNotes{}

		open := func(performed, max uint16) *Dispatcher {
			So(store.Write(GuardKey, encodeGuard(performed, max)), ShouldBeNil)
			g, e := OpenGuard(store, 3)
			So(e, ShouldBeNil)
			return NewDispatcher(g, lc, bus, notes, testLogger(t))
		}

		Convey("A reset within the limit is performed", func() {
			d := open(0, 2)
			d.Dispatch(Action{Kind: ProcessorReset}, "X")
			So(lc.resets, ShouldEqual, 1)
			So(d.guard.Performed(), ShouldEqual, 1)
			So(notes.count(NotifyResetPerformed), ShouldEqual, 1)

			Convey("And the count is persisted", func() {
				g, e := OpenGuard(store, 3)
				So(e, ShouldBeNil)
				So(g.Performed(), ShouldEqual, 1)
				So(g.Max(), ShouldEqual, 2)
			})
		})

		Convey("A reset beyond the limit is suppressed", func() {
			d := open(2, 2)
			d.Dispatch(Action{Kind: ProcessorReset}, "X")
			So(lc.resets, ShouldEqual, 0)
			So(d.guard.Performed(), ShouldEqual, 2)
			So(d.resetsDenied, ShouldEqual, 1)
			So(notes.count(NotifyResetSuppressed), ShouldEqual, 1)
			So(notes.count(NotifyResetPerformed), ShouldEqual, 0)

			Convey("Every time it is asked for", func() {
				d.Dispatch(Action{Kind: ProcessorReset}, "X")
				So(lc.resets, ShouldEqual, 0)
				So(d.guard.Performed(), ShouldEqual, 2)
				So(d.resetsDenied, ShouldEqual, 2)
				So(notes.count(NotifyResetSuppressed), ShouldEqual, 2)

				b, e := store.Read(GuardKey)
				So(e, ShouldBeNil)
				So(b, ShouldResemble, encodeGuard(2, 2))
			})
		})

		Convey("Resets stop once the budget is spent", func() {
			d := open(0, 2)
			for i := 0; i < 3; i++ {
				d.Dispatch(Action{Kind: ProcessorReset}, "X")
			}
			So(lc.resets, ShouldEqual, 2)
			So(d.resetsDenied, ShouldEqual, 1)
			So(notes.count(NotifyResetPerformed), ShouldEqual, 2)
			So(notes.count(NotifyResetSuppressed), ShouldEqual, 1)
			So(d.guard.Performed(), ShouldEqual, 2)

			g, e := OpenGuard(store, 3)
			So(e, ShouldBeNil)
			So(g.Performed(), ShouldEqual, 2)
			So(g.Max(), ShouldEqual, 2)
		})

		Convey("A reset whose count cannot be stored still happens", func() {
			d := open(0, 2)
			store.writeErr = errInjected
			d.Dispatch(Action{Kind: ProcessorReset}, "X")
			So(lc.resets, ShouldEqual, 1)
			So(d.guard.Performed(), ShouldEqual, 1)
			So(notes.count(NotifyStoreFailed), ShouldEqual, 1)
		})

		Convey("Restarts and deletes go to the lifecycle manager", func() {
			d := open(0, 2)
			d.Dispatch(Action{Kind: AppRestart}, "X")
			d.Dispatch(Action{Kind: AppDelete}, "Y")
			So(lc.restarts, ShouldResemble, []string{"X"})
			So(lc.deletes, ShouldResemble, []string{"Y"})
			So(d.restarts, ShouldEqual, 1)
			So(d.deletes, ShouldEqual, 1)

			Convey("And a refused restart is reported", func() {
				lc.restartErr = ErrRateLimited
				d.Dispatch(Action{Kind: AppRestart}, "X")
				So(d.restarts, ShouldEqual, 1)
				So(notes.count(NotifyRestartFailed), ShouldEqual, 1)
			})
		})

		Convey("An alert only notifies", func() {
			d := open(0, 2)
			d.Dispatch(Action{Kind: Alert}, "X")
			d.Dispatch(Action{Kind: NoAction}, "X")
			So(notes.count(NotifyAlert), ShouldEqual, 1)
			So(lc.resets, ShouldEqual, 0)
			So(lc.restarts, ShouldBeEmpty)
		})

		Convey("With message actions loaded", func() {
			d := open(0, 2)
			d.SetMsgActions(&MsgActionTable{Generation: 1, Entries: []MsgActionEntry{
				{State: MsgEnabled, Cooldown: 3, Payload: []byte("ping")},
				{State: MsgDisabled, Cooldown: 3, Payload: []byte("off")},
				{State: MsgEnabledSilent, Cooldown: 0, Payload: []byte("quiet")},
			}})
			msg := func(i int) Action {
				return Action{Kind: SendMessage, Message: i}
			}

			Convey("A message is sent once per cooldown", func() {
				d.Dispatch(msg(0), "X")
				d.Dispatch(msg(0), "X")
				So(len(bus.sent), ShouldEqual, 1)
				So(string(bus.sent[0]), ShouldEqual, "ping")
				So(d.msgExec, ShouldEqual, 1)
				So(d.msgSkipped, ShouldEqual, 1)
				So(d.Cooldown(0), ShouldEqual, 3)

				d.TickCooldowns()
				d.TickCooldowns()
				d.Dispatch(msg(0), "X")
				So(len(bus.sent), ShouldEqual, 1)
				d.TickCooldowns()
				So(d.Cooldown(0), ShouldEqual, 0)
				d.Dispatch(msg(0), "X")
				So(len(bus.sent), ShouldEqual, 2)
			})

			Convey("Reloading the table clears cooldowns", func() {
				d.Dispatch(msg(0), "X")
				So(d.Cooldown(0), ShouldEqual, 3)
				d.SetMsgActions(d.msgs)
				So(d.Cooldown(0), ShouldEqual, 0)
			})

			Convey("A disabled message is never sent", func() {
				d.Dispatch(msg(1), "X")
				So(bus.sent, ShouldBeEmpty)
				So(d.msgSkipped, ShouldEqual, 0)
			})

			Convey("A silent message is sent without a notification", func() {
				d.Dispatch(msg(2), "X")
				d.Dispatch(msg(2), "X")
				So(len(bus.sent), ShouldEqual, 2)
				So(notes.count(NotifyMsgSent), ShouldEqual, 0)
			})

			Convey("A message beyond the table is ignored", func() {
				d.Dispatch(msg(5), "X")
				So(bus.sent, ShouldBeEmpty)
			})

			Convey("A failed send starts no cooldown", func() {
				bus.sendErr = errInjected
				d.Dispatch(msg(0), "X")
				So(d.Cooldown(0), ShouldEqual, 0)
				So(d.msgExec, ShouldEqual, 0)
				So(notes.count(NotifyMsgFailed), ShouldEqual, 1)
			})

			Convey("ResetCounters zeroes the statistics", func() {
				d.Dispatch(msg(0), "X")
				d.Dispatch(msg(0), "X")
				d.ResetCounters()
				So(d.msgExec, ShouldEqual, 0)
				So(d.msgSkipped, ShouldEqual, 0)
				So(d.Cooldown(0), ShouldEqual, 3)
			})
		})
	})
}
