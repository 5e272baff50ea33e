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
	"sync"
)

// MemTables is a TableService holding tables in memory.  Every Set call
// starts a new generation of that table; a table that was never set
// fails to load with ErrNoTable.  SetError makes loads of a table fail
// until it is cleared with a nil error.
type MemTables struct {
	appmon   []AppMonRecord
	eventmon []EventMonRecord
	xct      []ExecCounterRecord
	msgs     []MsgActionRecord
	gens     [MsgActionTableID + 1]uint64
	errs     [MsgActionTableID + 1]error
	mx       sync.Mutex
}

func NewMemTables() *MemTables {
	return &MemTables{}
}

func (t *MemTables) SetAppMon(recs []AppMonRecord) {
	t.mx.Lock()
	t.appmon = append([]AppMonRecord{}, recs...)
	t.gens[AppMonTableID]++
	t.mx.Unlock()
}

func (t *MemTables) SetEventMon(recs []EventMonRecord) {
	t.mx.Lock()
	t.eventmon = append([]EventMonRecord{}, recs...)
	t.gens[EventMonTableID]++
	t.mx.Unlock()
}

func (t *MemTables) SetExecCounters(recs []ExecCounterRecord) {
	t.mx.Lock()
	t.xct = append([]ExecCounterRecord{}, recs...)
	t.gens[ExecCounterTableID]++
	t.mx.Unlock()
}

func (t *MemTables) SetMsgActions(recs []MsgActionRecord) {
	t.mx.Lock()
	t.msgs = append([]MsgActionRecord{}, recs...)
	t.gens[MsgActionTableID]++
	t.mx.Unlock()
}

// SetError injects a load failure for table id.
func (t *MemTables) SetError(id TableID, e error) {
	t.mx.Lock()
	t.errs[id] = e
	t.mx.Unlock()
}

// load reports the injected error, or ErrNoTable for a table that was
// never set.  Call with the lock held.
func (t *MemTables) load(id TableID) error {
	if e := t.errs[id]; e != nil {
		return e
	}
	if t.gens[id] == 0 {
		return ErrNoTable
	}
	return nil
}

func (t *MemTables) LoadAppMon() ([]AppMonRecord, uint64, error) {
	t.mx.Lock()
	defer t.mx.Unlock()
	if e := t.load(AppMonTableID); e != nil {
		return nil, 0, e
	}
	return t.appmon, t.gens[AppMonTableID], nil
}

func (t *MemTables) LoadEventMon() ([]EventMonRecord, uint64, error) {
	t.mx.Lock()
	defer t.mx.Unlock()
	if e := t.load(EventMonTableID); e != nil {
		return nil, 0, e
	}
	return t.eventmon, t.gens[EventMonTableID], nil
}

func (t *MemTables) LoadExecCounters() ([]ExecCounterRecord, uint64, error) {
	t.mx.Lock()
	defer t.mx.Unlock()
	if e := t.load(ExecCounterTableID); e != nil {
		return nil, 0, e
	}
	return t.xct, t.gens[ExecCounterTableID], nil
}

func (t *MemTables) LoadMsgActions() ([]MsgActionRecord, uint64, error) {
	t.mx.Lock()
	defer t.mx.Unlock()
	if e := t.load(MsgActionTableID); e != nil {
		return nil, 0, e
	}
	return t.msgs, t.gens[MsgActionTableID], nil
}
