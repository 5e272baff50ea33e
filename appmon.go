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

// ActionSink receives the actions monitors decide to take.
type ActionSink interface {
	Dispatch(act Action, target string)
}

type appMonState struct {
	countdown uint32
	last      uint32
	primed    bool
}

// AppMonitor declares an application dead when its execution counter
// does not change for CycleCount consecutive ticks.
//
// The first tick after a Refresh only records a baseline; since nothing
// has been proven yet, that tick counts as "unchanged".  A counter that
// never moves therefore fires on tick N, 2N, 3N, ... after the refresh.
// A target that never reports a counter at all is treated the same way.
type AppMonitor struct {
	table *AppMonTable
	state []appMonState
	sink  ActionSink
}

// NewAppMonitor returns a monitor with no table.
func NewAppMonitor(sink ActionSink) *AppMonitor {
	return &AppMonitor{sink: sink}
}

// Refresh installs tab (which may be nil) and reseeds every countdown.
func (m *AppMonitor) Refresh(tab *AppMonTable) {
	m.table = tab
	if tab == nil {
		m.state = nil
		return
	}
	m.state = make([]appMonState, len(tab.Entries))
	for i, ent := range tab.Entries {
		if ent.Enabled() {
			m.state[i].countdown = ent.CycleCount
		}
	}
}

// Table returns the installed table, or nil.
func (m *AppMonitor) Table() *AppMonTable {
	return m.table
}

// Tick runs one monitoring pass against the current execution counts.
func (m *AppMonitor) Tick(counts map[string]uint32) {
	if m.table == nil {
		return
	}
	for i, ent := range m.table.Entries {
		if !ent.Enabled() {
			continue
		}
		st := &m.state[i]
		cnt, ok := counts[ent.Target]
		switch {
		case ok && !st.primed:
			st.last = cnt
			st.primed = true
		case ok && cnt != st.last:
			st.last = cnt
			st.countdown = ent.CycleCount
			continue
		}
		st.countdown--
		if st.countdown == 0 {
			m.sink.Dispatch(ent.Action, ent.Target)
			st.countdown = ent.CycleCount
		}
	}
}

// Countdown returns the remaining countdown of entry i (0 when disabled).
func (m *AppMonitor) Countdown(i int) uint32 {
	if i < 0 || i >= len(m.state) {
		return 0
	}
	return m.state[i].countdown
}

// Enables returns the per-entry enable flags of the installed table.
func (m *AppMonitor) Enables() []bool {
	if m.table == nil {
		return nil
	}
	rv := make([]bool, len(m.table.Entries))
	for i, ent := range m.table.Entries {
		rv[i] = ent.Enabled()
	}
	return rv
}
