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

import "github.com/pkg/errors"

// acquireTables polls the table service for every table.  Call with the
// lock held.
func (s *Supervisor) acquireTables() {
	{
		recs, gen, e := s.tables.LoadAppMon()
		s.acquire(AppMonTableID, gen, e, func() error {
			tab, e := ValidateAppMon(recs, gen)
			if e != nil {
				return e
			}
			s.appmon.Refresh(tab)
			return nil
		})
	}
	{
		recs, gen, e := s.tables.LoadEventMon()
		s.acquire(EventMonTableID, gen, e, func() error {
			tab, e := ValidateEventMon(recs, gen)
			if e != nil {
				return e
			}
			s.eventmon.Refresh(tab)
			return nil
		})
	}
	{
		recs, gen, e := s.tables.LoadExecCounters()
		s.acquire(ExecCounterTableID, gen, e, func() error {
			tab, e := ValidateExecCounters(recs, gen)
			if e != nil {
				return e
			}
			s.xct = tab
			return nil
		})
	}
	{
		recs, gen, e := s.tables.LoadMsgActions()
		s.acquire(MsgActionTableID, gen, e, func() error {
			tab, e := ValidateMsgActions(recs, gen)
			if e != nil {
				return e
			}
			s.dispatch.SetMsgActions(tab)
			return nil
		})
	}
}

// acquire applies the outcome of one table load.  install validates and
// swaps in the new snapshot; it is only called for a generation that is
// neither current nor already rejected.  Content that could not be
// decoded is rejected like content that failed validation.
func (s *Supervisor) acquire(id TableID, gen uint64, err error, install func() error) {
	ts := &s.ts[id]
	var bad *ContentError
	if err != nil && !errors.As(err, &bad) {
		if !ts.failing {
			ts.failing = true
			s.notifyf(NotifyTableAcquire, SevError, id.String(),
				"%v", &AcquireError{Table: id, Err: err})
		}
		if ts.loaded {
			ts.loaded = false
			s.dropTable(id)
		}
		if s.monitorEnabled(id) {
			if e := s.setMonitor(id, false); e != nil {
				s.logger.Warn().Err(e).Stringer("table", id).Msg("auto-disable")
			}
			if !s.monitorEnabled(id) {
				s.autoOff[id] = true
				s.notifyf(NotifyAutoDisabled, SevError, id.String(),
					"%s monitor disabled, table unavailable", id)
			}
		}
		return
	}
	if ts.failing {
		ts.failing = false
		s.logger.Info().Stringer("table", id).Msg("table available again")
	}
	if !(ts.loaded && gen == ts.gen) && !(ts.rejected && gen == ts.rejectedGen) {
		var e error
		if bad != nil {
			e = bad
		} else {
			e = install()
		}
		if e != nil {
			ts.rejected = true
			ts.rejectedGen = gen
			s.notifyf(NotifyTableRejected, SevError, id.String(),
				"%s table generation %d rejected: %v", id, gen, e)
		} else {
			ts.loaded = true
			ts.gen = gen
			ts.rejected = false
			s.logger.Info().Stringer("table", id).Uint64("generation", gen).
				Msg("table loaded")
		}
	}
	if ts.loaded && s.autoOff[id] {
		if e := s.setMonitor(id, true); e != nil {
			s.logger.Warn().Err(e).Stringer("table", id).Msg("re-enable")
		}
		if s.monitorEnabled(id) {
			s.autoOff[id] = false
			s.notifyf(NotifyReenabled, SevInfo, id.String(),
				"%s monitor re-enabled", id)
		}
	}
}

func (s *Supervisor) dropTable(id TableID) {
	switch id {
	case AppMonTableID:
		s.appmon.Refresh(nil)
	case EventMonTableID:
		s.eventmon.Refresh(nil)
	case ExecCounterTableID:
		s.xct = nil
	case MsgActionTableID:
		s.dispatch.SetMsgActions(nil)
	}
}

// monitorEnabled reports the enable state of the monitor owning a table.
// The execution counter and message action tables have no monitor.
func (s *Supervisor) monitorEnabled(id TableID) bool {
	switch id {
	case AppMonTableID:
		return s.appMonEnabled
	case EventMonTableID:
		return s.eventmon.Enabled()
	}
	return false
}

// setMonitor changes the enable state of the monitor owning a table.  An
// enabled application monitor restarts its countdowns.
func (s *Supervisor) setMonitor(id TableID, on bool) error {
	switch id {
	case AppMonTableID:
		if on && !s.appMonEnabled {
			s.appmon.Refresh(s.appmon.Table())
		}
		s.appMonEnabled = on
	case EventMonTableID:
		if on {
			return s.eventmon.Enable()
		}
		return s.eventmon.Disable()
	}
	return nil
}
