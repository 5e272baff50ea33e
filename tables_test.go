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
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"gopkg.in/yaml.v3"
)

func configError(e error) *ConfigError {
	ce, ok := e.(*ConfigError)
	So(ok, ShouldBeTrue)
	return ce
}

func TestValidateAppMon(t *testing.T) {
	Convey("Application monitor records are validated", t, func() {
		Convey("Good records produce a snapshot", func() {
			tab, e := ValidateAppMon([]AppMonRecord{
				{Name: "X", CycleCount: 3, Action: CodeAppRestart},
				{Name: "", CycleCount: 0, Action: CodeNoAction},
				{Name: "Y", CycleCount: 5, Action: MessageCode(2)},
			}, 7)
			So(e, ShouldBeNil)
			So(tab.Generation, ShouldEqual, 7)
			So(len(tab.Entries), ShouldEqual, 3)
			So(tab.Entries[0].Action, ShouldResemble, Action{Kind: AppRestart})
			So(tab.Entries[1].Enabled(), ShouldBeFalse)
			So(tab.Entries[2].Action, ShouldResemble,
				Action{Kind: SendMessage, Message: 2})
		})

		Convey("A nonzero spare field is rejected", func() {
			_, e := ValidateAppMon([]AppMonRecord{
				{Name: "X", CycleCount: 3, Action: CodeAlert, Spare: 1},
			}, 1)
			ce := configError(e)
			So(ce.Table, ShouldEqual, AppMonTableID)
			So(ce.Index, ShouldEqual, 0)
			So(ce.Field, ShouldEqual, "Spare")
		})

		Convey("Too many records are rejected", func() {
			recs := make([]AppMonRecord, MaxAppMonEntries+1)
			_, e := ValidateAppMon(recs, 1)
			ce := configError(e)
			So(ce.Index, ShouldEqual, -1)
			So(e.Error(), ShouldContainSubstring, "too many")
		})

		Convey("An unknown action code is rejected", func() {
			_, e := ValidateAppMon([]AppMonRecord{
				{Name: "X", CycleCount: 3, Action: 9},
			}, 1)
			So(configError(e).Field, ShouldEqual, "Action")
		})

		Convey("A message index beyond the table is rejected", func() {
			_, e := ValidateAppMon([]AppMonRecord{
				{Name: "X", CycleCount: 3, Action: MessageCode(MaxMsgActions)},
			}, 1)
			So(configError(e).Field, ShouldEqual, "Action")
		})

		Convey("An enabled entry needs a target", func() {
			_, e := ValidateAppMon([]AppMonRecord{
				{Name: "", CycleCount: 3, Action: CodeAlert},
			}, 1)
			So(configError(e).Field, ShouldEqual, "Name")
		})

		Convey("A long name is rejected", func() {
			_, e := ValidateAppMon([]AppMonRecord{
				{Name: strings.Repeat("n", MaxNameLen+1), CycleCount: 3,
					Action: CodeAlert},
			}, 1)
			So(configError(e).Field, ShouldEqual, "Name")
		})
	})
}

func TestValidateOtherTables(t *testing.T) {
	Convey("Event monitor records are validated", t, func() {
		tab, e := ValidateEventMon([]EventMonRecord{
			{Name: "Y", EventID: 7, Action: CodeAlert},
		}, 2)
		So(e, ShouldBeNil)
		So(tab.Entries[0].EventID, ShouldEqual, 7)

		_, e = ValidateEventMon([]EventMonRecord{
			{Name: "", EventID: 7, Action: CodeAlert},
		}, 2)
		So(configError(e).Table, ShouldEqual, EventMonTableID)

		_, e = ValidateEventMon(make([]EventMonRecord, MaxEventMonEntries+1), 2)
		So(e, ShouldNotBeNil)
	})

	Convey("Execution counter records are validated", t, func() {
		tab, e := ValidateExecCounters([]ExecCounterRecord{
			{Name: "X", Kind: KindAppMain},
			{Name: "", Kind: KindNone},
		}, 3)
		So(e, ShouldBeNil)
		So(tab.Entries[0].Kind, ShouldEqual, KindAppMain)

		_, e = ValidateExecCounters([]ExecCounterRecord{
			{Name: "X", Kind: 9},
		}, 3)
		So(configError(e).Field, ShouldEqual, "Kind")

		_, e = ValidateExecCounters([]ExecCounterRecord{
			{Name: "", Kind: KindDevice},
		}, 3)
		So(configError(e).Field, ShouldEqual, "Name")
	})

	Convey("Message action records are validated", t, func() {
		tab, e := ValidateMsgActions([]MsgActionRecord{
			{State: MsgEnabled, Cooldown: 10, Payload: "ping"},
			{State: MsgDisabled},
		}, 4)
		So(e, ShouldBeNil)
		So(string(tab.Entries[0].Payload), ShouldEqual, "ping")

		_, e = ValidateMsgActions([]MsgActionRecord{
			{State: MsgEnabled, Cooldown: 10},
		}, 4)
		So(configError(e).Field, ShouldEqual, "Payload")

		_, e = ValidateMsgActions([]MsgActionRecord{
			{State: MsgEnabled, Payload: strings.Repeat("p", MaxMsgPayload+1)},
		}, 4)
		So(configError(e).Field, ShouldEqual, "Payload")

		_, e = ValidateMsgActions([]MsgActionRecord{
			{State: 3, Payload: "ping"},
		}, 4)
		So(configError(e).Field, ShouldEqual, "State")

		_, e = ValidateMsgActions(make([]MsgActionRecord, MaxMsgActions+1), 4)
		So(e, ShouldNotBeNil)
	})
}

func TestTableYAML(t *testing.T) {
	Convey("Table records can be written in YAML", t, func() {
		var recs []AppMonRecord
		e := yaml.Unmarshal([]byte(`
- name: X
  cycles: 3
  action: restart
- name: Y
  cycles: 10
  action: message:1
- name: Z
  cycles: 4
  action: 3
`), &recs)
		So(e, ShouldBeNil)
		So(len(recs), ShouldEqual, 3)
		So(recs[0].Action, ShouldEqual, CodeAppRestart)
		So(recs[1].Action, ShouldEqual, MessageCode(1))
		So(recs[2].Action, ShouldEqual, CodeAlert)

		var xct []ExecCounterRecord
		e = yaml.Unmarshal([]byte(`
- name: X
  kind: app
- name: bus
  kind: 3
`), &xct)
		So(e, ShouldBeNil)
		So(xct[0].Kind, ShouldEqual, KindAppMain)
		So(xct[1].Kind, ShouldEqual, KindDevice)

		var msgs []MsgActionRecord
		e = yaml.Unmarshal([]byte(`
- state: disabled
- state: enabled
  payload: ping
- state: silent
  payload: quiet
- state: 1
  payload: one
`), &msgs)
		So(e, ShouldBeNil)
		So(len(msgs), ShouldEqual, 4)
		So(msgs[0].State, ShouldEqual, MsgDisabled)
		So(msgs[1].State, ShouldEqual, MsgEnabled)
		So(msgs[2].State, ShouldEqual, MsgEnabledSilent)
		So(msgs[3].State, ShouldEqual, MsgEnabled)
		So(yaml.Unmarshal([]byte("- state: loud\n"), &msgs), ShouldNotBeNil)

		e = yaml.Unmarshal([]byte("- name: X\n  action: bogus\n"), &recs)
		So(e, ShouldNotBeNil)
	})
}
