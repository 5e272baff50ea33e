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
	"fmt"
	"strconv"
	"sync"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Table capacities and field limits.
const (
	MaxAppMonEntries      = 32
	MaxEventMonEntries    = 16
	MaxExecCounterEntries = 32
	MaxMsgActions         = 8
	MaxNameLen            = 20
	MaxMsgPayload         = 64
)

// TableID names one of the four configuration tables.
type TableID int

const (
	AppMonTableID TableID = iota
	EventMonTableID
	ExecCounterTableID
	MsgActionTableID
)

func (t TableID) String() string {
	switch t {
	case AppMonTableID:
		return "AppMon"
	case EventMonTableID:
		return "EventMon"
	case ExecCounterTableID:
		return "ExecCounter"
	case MsgActionTableID:
		return "MsgAction"
	}
	return "Unknown"
}

// ResourceKind classifies the resource an execution counter belongs to.
type ResourceKind uint8

const (
	KindNone ResourceKind = iota
	KindAppMain
	KindAppChild
	KindDevice
	KindIsr
)

func (k ResourceKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindAppMain:
		return "app"
	case KindAppChild:
		return "child"
	case KindDevice:
		return "device"
	case KindIsr:
		return "isr"
	}
	return "unknown"
}

// ParseResourceKind is the inverse of ResourceKind.String.
func ParseResourceKind(s string) (ResourceKind, bool) {
	for k := KindNone; k <= KindIsr; k++ {
		if k.String() == s {
			return k, true
		}
	}
	return KindNone, false
}

// UnmarshalYAML accepts either the kind name or its number.
func (k *ResourceKind) UnmarshalYAML(node *yaml.Node) error {
	if v, ok := ParseResourceKind(node.Value); ok {
		*k = v
		return nil
	}
	n, e := strconv.ParseUint(node.Value, 10, 8)
	if e != nil {
		return fmt.Errorf("unknown resource kind %q", node.Value)
	}
	*k = ResourceKind(n)
	return nil
}

// MsgState is the enable state of a message action.
type MsgState uint8

const (
	MsgDisabled MsgState = iota
	MsgEnabled
	MsgEnabledSilent
)

func (s MsgState) String() string {
	switch s {
	case MsgDisabled:
		return "disabled"
	case MsgEnabled:
		return "enabled"
	case MsgEnabledSilent:
		return "silent"
	}
	return "unknown"
}

// ParseMsgState is the inverse of MsgState.String.
func ParseMsgState(s string) (MsgState, bool) {
	for m := MsgDisabled; m <= MsgEnabledSilent; m++ {
		if m.String() == s {
			return m, true
		}
	}
	return MsgDisabled, false
}

// UnmarshalYAML accepts either the state name or its number.
func (s *MsgState) UnmarshalYAML(node *yaml.Node) error {
	if v, ok := ParseMsgState(node.Value); ok {
		*s = v
		return nil
	}
	n, e := strconv.ParseUint(node.Value, 10, 8)
	if e != nil {
		return fmt.Errorf("unknown message state %q", node.Value)
	}
	*s = MsgState(n)
	return nil
}

// Raw records, as handed over by a TableService.  Spare fields must be
// zero; they are reserved for future use.

type AppMonRecord struct {
	Name       string     `yaml:"name" validate:"max=20"`
	CycleCount uint32     `yaml:"cycles"`
	Action     ActionCode `yaml:"action"`
	Spare      uint16     `yaml:"spare" validate:"eq=0"`
}

type EventMonRecord struct {
	Name    string     `yaml:"name" validate:"max=20"`
	EventID uint16     `yaml:"event"`
	Action  ActionCode `yaml:"action"`
	Spare   uint16     `yaml:"spare" validate:"eq=0"`
}

type ExecCounterRecord struct {
	Name  string       `yaml:"name" validate:"max=20"`
	Kind  ResourceKind `yaml:"kind" validate:"lte=4"`
	Spare uint16       `yaml:"spare" validate:"eq=0"`
}

type MsgActionRecord struct {
	State    MsgState `yaml:"state" validate:"lte=2"`
	Cooldown uint32   `yaml:"cooldown"`
	Payload  string   `yaml:"payload" validate:"max=64"`
	Spare    uint16   `yaml:"spare" validate:"eq=0"`
}

// Validated entries.

type AppMonEntry struct {
	Target     string
	CycleCount uint32
	Action     Action
}

// Enabled reports whether the entry takes part in monitoring.
func (e AppMonEntry) Enabled() bool {
	return e.CycleCount != 0 && e.Action.Kind != NoAction
}

type EventMonEntry struct {
	Target  string
	EventID uint16
	Action  Action
}

func (e EventMonEntry) Enabled() bool {
	return e.Action.Kind != NoAction
}

type ExecCounterEntry struct {
	Name string
	Kind ResourceKind
}

type MsgActionEntry struct {
	State    MsgState
	Cooldown uint32
	Payload  []byte
}

// Snapshots.  A snapshot is never modified after validation; a reload
// produces a new one.

type AppMonTable struct {
	Generation uint64
	Entries    []AppMonEntry
}

type EventMonTable struct {
	Generation uint64
	Entries    []EventMonEntry
}

type ExecCounterTable struct {
	Generation uint64
	Entries    []ExecCounterEntry
}

type MsgActionTable struct {
	Generation uint64
	Entries    []MsgActionEntry
}

// TableService hands out the current raw contents of each table together
// with a generation number.  The generation changes whenever the contents
// do.  Returned slices must not be modified by the service afterwards.
//
// A *ContentError return, carrying the generation of the content it
// could not decode, rejects that generation and keeps the current table.
// Any other error means the table could not be obtained at all.
type TableService interface {
	LoadAppMon() ([]AppMonRecord, uint64, error)
	LoadEventMon() ([]EventMonRecord, uint64, error)
	LoadExecCounters() ([]ExecCounterRecord, uint64, error)
	LoadMsgActions() ([]MsgActionRecord, uint64, error)
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

func checkRecord(t TableID, i int, rec interface{}) error {
	if e := getValidator().Struct(rec); e != nil {
		if errs, ok := e.(validator.ValidationErrors); ok && len(errs) > 0 {
			return &ConfigError{
				Table:  t,
				Index:  i,
				Field:  errs[0].Field(),
				Reason: "failed " + errs[0].Tag() + " check",
			}
		}
		return &ConfigError{Table: t, Index: i, Field: "record", Reason: e.Error()}
	}
	return nil
}

func tooMany(t TableID, n, max int) error {
	if n > max {
		return &ConfigError{Table: t, Index: -1,
			Reason: "too many entries"}
	}
	return nil
}

// ValidateAppMon converts raw records into an AppMonTable snapshot.
func ValidateAppMon(recs []AppMonRecord, gen uint64) (*AppMonTable, error) {
	if e := tooMany(AppMonTableID, len(recs), MaxAppMonEntries); e != nil {
		return nil, e
	}
	tab := &AppMonTable{Generation: gen, Entries: make([]AppMonEntry, len(recs))}
	for i, r := range recs {
		if e := checkRecord(AppMonTableID, i, r); e != nil {
			return nil, e
		}
		act, ok := r.Action.Decode()
		if !ok {
			return nil, &ConfigError{Table: AppMonTableID, Index: i,
				Field: "Action", Reason: "unknown action code"}
		}
		ent := AppMonEntry{Target: r.Name, CycleCount: r.CycleCount, Action: act}
		if ent.Enabled() && ent.Target == "" {
			return nil, &ConfigError{Table: AppMonTableID, Index: i,
				Field: "Name", Reason: "empty target"}
		}
		tab.Entries[i] = ent
	}
	return tab, nil
}

// ValidateEventMon converts raw records into an EventMonTable snapshot.
func ValidateEventMon(recs []EventMonRecord, gen uint64) (*EventMonTable, error) {
	if e := tooMany(EventMonTableID, len(recs), MaxEventMonEntries); e != nil {
		return nil, e
	}
	tab := &EventMonTable{Generation: gen, Entries: make([]EventMonEntry, len(recs))}
	for i, r := range recs {
		if e := checkRecord(EventMonTableID, i, r); e != nil {
			return nil, e
		}
		act, ok := r.Action.Decode()
		if !ok {
			return nil, &ConfigError{Table: EventMonTableID, Index: i,
				Field: "Action", Reason: "unknown action code"}
		}
		ent := EventMonEntry{Target: r.Name, EventID: r.EventID, Action: act}
		if ent.Enabled() && ent.Target == "" {
			return nil, &ConfigError{Table: EventMonTableID, Index: i,
				Field: "Name", Reason: "empty target"}
		}
		tab.Entries[i] = ent
	}
	return tab, nil
}

// ValidateExecCounters converts raw records into an ExecCounterTable.
func ValidateExecCounters(recs []ExecCounterRecord, gen uint64) (*ExecCounterTable, error) {
	if e := tooMany(ExecCounterTableID, len(recs), MaxExecCounterEntries); e != nil {
		return nil, e
	}
	tab := &ExecCounterTable{Generation: gen, Entries: make([]ExecCounterEntry, len(recs))}
	for i, r := range recs {
		if e := checkRecord(ExecCounterTableID, i, r); e != nil {
			return nil, e
		}
		if r.Kind != KindNone && r.Name == "" {
			return nil, &ConfigError{Table: ExecCounterTableID, Index: i,
				Field: "Name", Reason: "empty resource name"}
		}
		tab.Entries[i] = ExecCounterEntry{Name: r.Name, Kind: r.Kind}
	}
	return tab, nil
}

// ValidateMsgActions converts raw records into a MsgActionTable.
func ValidateMsgActions(recs []MsgActionRecord, gen uint64) (*MsgActionTable, error) {
	if e := tooMany(MsgActionTableID, len(recs), MaxMsgActions); e != nil {
		return nil, e
	}
	tab := &MsgActionTable{Generation: gen, Entries: make([]MsgActionEntry, len(recs))}
	for i, r := range recs {
		if e := checkRecord(MsgActionTableID, i, r); e != nil {
			return nil, e
		}
		if r.State != MsgDisabled && len(r.Payload) == 0 {
			return nil, &ConfigError{Table: MsgActionTableID, Index: i,
				Field: "Payload", Reason: "enabled with empty payload"}
		}
		tab.Entries[i] = MsgActionEntry{
			State:    r.State,
			Cooldown: r.Cooldown,
			Payload:  []byte(r.Payload),
		}
	}
	return tab, nil
}
