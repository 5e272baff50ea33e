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

// Subscriber is the subscription half of the message bus.
type Subscriber interface {
	Subscribe(topic string) error
	Unsubscribe(topic string) error
}

// EventMonitor matches inbound (source, event id) pairs against the
// event monitor table.  Every matching entry fires, not just the first.
type EventMonitor struct {
	table      *EventMonTable
	sink       ActionSink
	sub        Subscriber
	topic      string
	enabled    bool
	observed   uint32
	unresolved uint32
}

// NewEventMonitor returns a disabled monitor that subscribes to topic on
// sub when enabled.
func NewEventMonitor(sink ActionSink, sub Subscriber, topic string) *EventMonitor {
	return &EventMonitor{sink: sink, sub: sub, topic: topic}
}

// Refresh installs a new table (which may be nil).
func (m *EventMonitor) Refresh(tab *EventMonTable) {
	m.table = tab
}

// Table returns the installed table, or nil.
func (m *EventMonitor) Table() *EventMonTable {
	return m.table
}

// Enabled reports whether the monitor is subscribed and matching.
func (m *EventMonitor) Enabled() bool {
	return m.enabled
}

// Enable subscribes to the event stream.  On failure the monitor stays
// disabled and a SubscriptionError is returned.
func (m *EventMonitor) Enable() error {
	if m.enabled {
		return nil
	}
	if e := m.sub.Subscribe(m.topic); e != nil {
		return &SubscriptionError{Topic: m.topic, Op: "subscribe", Err: e}
	}
	m.enabled = true
	return nil
}

// Disable unsubscribes from the event stream.  On failure the monitor
// stays enabled and a SubscriptionError is returned.
func (m *EventMonitor) Disable() error {
	if !m.enabled {
		return nil
	}
	if e := m.sub.Unsubscribe(m.topic); e != nil {
		return &SubscriptionError{Topic: m.topic, Op: "unsubscribe", Err: e}
	}
	m.enabled = false
	return nil
}

// OnEvent processes one inbound event.  The observed counter advances
// once per event, regardless of how many entries match.
func (m *EventMonitor) OnEvent(source string, id uint16) {
	if !m.enabled {
		return
	}
	m.observed++
	if m.table == nil {
		return
	}
	for _, ent := range m.table.Entries {
		if !ent.Enabled() {
			continue
		}
		if ent.Target == source && ent.EventID == id {
			m.sink.Dispatch(ent.Action, ent.Target)
		}
	}
}

// Observed returns the number of events processed.
func (m *EventMonitor) Observed() uint32 {
	return m.observed
}

// Resolve recounts the enabled entries whose target is not a registered
// application.  The count is for operator visibility only.
func (m *EventMonitor) Resolve(known func(string) bool) {
	m.unresolved = 0
	if m.table == nil {
		return
	}
	for _, ent := range m.table.Entries {
		if ent.Enabled() && !known(ent.Target) {
			m.unresolved++
		}
	}
}

// Unresolved returns the count computed by the last Resolve.
func (m *EventMonitor) Unresolved() uint32 {
	return m.unresolved
}

// ResetCounters zeroes the observed counter.
func (m *EventMonitor) ResetCounters() {
	m.observed = 0
}
