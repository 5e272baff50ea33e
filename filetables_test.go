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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"
)

func TestFileTables(t *testing.T) {
	Convey("Given a table directory", t, func() {
		dir := t.TempDir()
		write := func(id TableID, body string) {
			e := os.WriteFile(filepath.Join(dir, TableFile(id)), []byte(body), 0644)
			So(e, ShouldBeNil)
		}
		write(AppMonTableID, "- name: X\n  cycles: 3\n  action: restart\n")
		write(MsgActionTableID, "- state: 1\n  cooldown: 10\n  payload: ping\n")
		tabs := NewFileTables(dir, testLogger(t))

		Convey("Present files load", func() {
			recs, gen, e := tabs.LoadAppMon()
			So(e, ShouldBeNil)
			So(gen, ShouldEqual, 1)
			So(recs, ShouldResemble, []AppMonRecord{
				{Name: "X", CycleCount: 3, Action: CodeAppRestart},
			})
			msgs, _, e := tabs.LoadMsgActions()
			So(e, ShouldBeNil)
			So(msgs[0].Payload, ShouldEqual, "ping")
			So(msgs[0].State, ShouldEqual, MsgEnabled)
		})

		Convey("Missing files fail", func() {
			_, _, e := tabs.LoadEventMon()
			So(e, ShouldNotBeNil)
			_, _, e = tabs.LoadExecCounters()
			So(e, ShouldNotBeNil)
		})

		Convey("A reload starts a new generation", func() {
			write(AppMonTableID, "- name: Y\n  cycles: 4\n  action: alert\n")
			tabs.Reload(AppMonTableID)
			recs, gen, e := tabs.LoadAppMon()
			So(e, ShouldBeNil)
			So(gen, ShouldEqual, 2)
			So(recs[0].Name, ShouldEqual, "Y")
		})

		Convey("Rereading the same file keeps the generation", func() {
			tabs.Reload(AppMonTableID)
			tabs.Reload(AppMonTableID)
			_, gen, e := tabs.LoadAppMon()
			So(e, ShouldBeNil)
			So(gen, ShouldEqual, 1)
		})

		Convey("A file that does not decode is rejected content", func() {
			write(AppMonTableID, "- name: Y\n  action: sideways\n")
			tabs.Reload(AppMonTableID)
			recs, gen, e := tabs.LoadAppMon()
			var bad *ContentError
			So(errors.As(e, &bad), ShouldBeTrue)
			So(bad.Table, ShouldEqual, AppMonTableID)
			So(gen, ShouldEqual, 2)
			So(recs[0].Name, ShouldEqual, "X")

			tabs.Reload(AppMonTableID)
			_, gen, _ = tabs.LoadAppMon()
			So(gen, ShouldEqual, 2)
		})

		Convey("An empty file leaves the table alone", func() {
			write(AppMonTableID, "")
			tabs.Reload(AppMonTableID)
			recs, gen, e := tabs.LoadAppMon()
			So(e, ShouldBeNil)
			So(gen, ShouldEqual, 1)
			So(recs[0].Name, ShouldEqual, "X")
		})

		Convey("An empty file is not a table", func() {
			write(EventMonTableID, "\n")
			tabs.Reload(EventMonTableID)
			_, gen, e := tabs.LoadEventMon()
			So(e, ShouldNotBeNil)
			So(gen, ShouldEqual, 0)

			write(EventMonTableID, "[]\n")
			tabs.Reload(EventMonTableID)
			recs, gen, e := tabs.LoadEventMon()
			So(e, ShouldBeNil)
			So(gen, ShouldEqual, 1)
			So(recs, ShouldBeEmpty)
		})

		Convey("A missing file is not rejected content", func() {
			So(os.Remove(filepath.Join(dir, TableFile(AppMonTableID))), ShouldBeNil)
			tabs.Reload(AppMonTableID)
			_, _, e := tabs.LoadAppMon()
			So(e, ShouldNotBeNil)
			var bad *ContentError
			So(errors.As(e, &bad), ShouldBeFalse)
		})

		Convey("Serve reloads changed files", func() {
			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan error, 1)
			go func() {
				done <- tabs.Serve(ctx)
			}()
			Reset(func() {
				cancel()
				<-done
			})
			time.Sleep(50 * time.Millisecond)
			write(EventMonTableID, "- name: Y\n  event: 7\n  action: alert\n")

			// The file may be seen empty before it is seen written.
			var recs []EventMonRecord
			var e error
			for i := 0; i < 200; i++ {
				if recs, _, e = tabs.LoadEventMon(); e == nil && len(recs) > 0 {
					break
				}
				time.Sleep(5 * time.Millisecond)
			}
			So(e, ShouldBeNil)
			So(len(recs), ShouldEqual, 1)
			So(recs[0].EventID, ShouldEqual, 7)
		})
	})
}
