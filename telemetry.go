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
	"time"
)

// TableStatus describes the acquisition state of one table.
type TableStatus struct {
	Table       string `json:"table"`
	Loaded      bool   `json:"loaded"`
	Generation  uint64 `json:"generation,string"`
	Failing     bool   `json:"failing"`
	Rejected    bool   `json:"rejected"`
	RejectedGen uint64 `json:"rejectedGeneration,string,omitempty"`
	AutoOff     bool   `json:"autoDisabled,omitempty"`
}

// Snapshot is a consistent, read-only view of the supervisor's
// housekeeping telemetry.
type Snapshot struct {
	Name       string    `json:"name"`
	State      string    `json:"state"`
	Serial     int64     `json:"serial,string"`
	Cycles     uint64    `json:"cycles"`
	CreateTime time.Time `json:"created"`
	UpdateTime time.Time `json:"updated"`

	CmdCount    uint32 `json:"cmdCount"`
	CmdErrCount uint32 `json:"cmdErrCount"`

	AppMonEnabled    bool `json:"appMonEnabled"`
	EventMonEnabled  bool `json:"eventMonEnabled"`
	AlivenessEnabled bool `json:"alivenessEnabled"`
	HoggingEnabled   bool `json:"hoggingEnabled"`

	ResetsPerformed uint16 `json:"resetsPerformed"`
	MaxResets       uint16 `json:"maxResets"`
	ResetsDenied    uint32 `json:"resetsDenied"`
	Restarts        uint32 `json:"restarts"`
	Deletes         uint32 `json:"deletes"`

	EventsObserved     uint32 `json:"eventsObserved"`
	UnresolvedEvents   uint32 `json:"unresolvedEvents"`
	MsgActionsExecuted uint32 `json:"msgActionsExecuted"`
	MsgActionsSkipped  uint32 `json:"msgActionsSkipped"`

	UtilCurrent uint32 `json:"utilCurrent"`
	UtilAverage uint32 `json:"utilAverage"`
	UtilPeak    uint32 `json:"utilPeak"`
	HogCount    uint32 `json:"hogCount"`

	// AppMonEnables packs the per-entry enable flags, entry i in bit
	// i%32 of word i/32.
	AppMonEnables []uint32      `json:"appMonEnables"`
	ExecCounts    []uint32      `json:"execCounts"`
	Tables        []TableStatus `json:"tables"`
}

// Snapshot returns the current telemetry.
func (s *Supervisor) Snapshot() *Snapshot {
	s.lock()
	defer s.unlock()

	snap := &Snapshot{
		Name:       s.name,
		State:      s.state.String(),
		Serial:     s.serial,
		Cycles:     s.cycles,
		CreateTime: s.createTime,
		UpdateTime: s.updateTime,

		CmdCount:    s.cmdCount,
		CmdErrCount: s.cmdErrCount,

		AppMonEnabled:    s.appMonEnabled,
		EventMonEnabled:  s.eventmon.Enabled(),
		AlivenessEnabled: s.aliveEnabled,
		HoggingEnabled:   s.utilmon.Hogging(),

		ResetsPerformed: s.guard.Performed(),
		MaxResets:       s.guard.Max(),
		ResetsDenied:    s.dispatch.resetsDenied,
		Restarts:        s.dispatch.restarts,
		Deletes:         s.dispatch.deletes,

		EventsObserved:     s.eventmon.Observed(),
		UnresolvedEvents:   s.eventmon.Unresolved(),
		MsgActionsExecuted: s.dispatch.msgExec,
		MsgActionsSkipped:  s.dispatch.msgSkipped,

		UtilCurrent: s.utilmon.Current(),
		UtilAverage: s.utilmon.Average(),
		UtilPeak:    s.utilmon.Peak(),
		HogCount:    s.utilmon.HogCount(),

		AppMonEnables: packEnables(s.appmon.Enables()),
		ExecCounts:    append([]uint32{}, s.execCounts...),
	}
	for id := AppMonTableID; id <= MsgActionTableID; id++ {
		ts := s.ts[id]
		snap.Tables = append(snap.Tables, TableStatus{
			Table:       id.String(),
			Loaded:      ts.loaded,
			Generation:  ts.gen,
			Failing:     ts.failing,
			Rejected:    ts.rejected,
			RejectedGen: ts.rejectedGen,
			AutoOff:     s.autoOff[id],
		})
	}
	return snap
}

func packEnables(en []bool) []uint32 {
	rv := make([]uint32, (MaxAppMonEntries+31)/32)
	for i, on := range en {
		if on {
			rv[i/32] |= 1 << uint(i%32)
		}
	}
	return rv
}

// Serial returns the serial number, which advances once per cycle.
func (s *Supervisor) Serial() int64 {
	s.lock()
	defer s.unlock()
	return s.serial
}
