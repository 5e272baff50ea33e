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
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	. "github.com/smartystreets/goconvey/convey"
)

type testLog struct {
	t *testing.T
}

func (tl *testLog) Write(p []byte) (n int, err error) {
	s := string(p)
	s = strings.Trim(s, "\n")
	tl.t.Log(s)
	return len(p), nil
}

func testLogger(t *testing.T) zerolog.Logger {
	return zerolog.New(&testLog{t: t}).With().Timestamp().Logger()
}

type sinkCall struct {
	act    Action
	target string
}

// testSink records dispatched actions.
type testSink struct {
	calls []sinkCall
}

func (s *testSink) Dispatch(act Action, target string) {
	s.calls = append(s.calls, sinkCall{act, target})
}

type testLifecycle struct {
	restarts   []string
	deletes    []string
	resets     int
	known      map[string]bool
	restartErr error
	sync.Mutex
}

func (l *testLifecycle) Restart(name string) error {
	l.Lock()
	defer l.Unlock()
	if l.restartErr != nil {
		return l.restartErr
	}
	l.restarts = append(l.restarts, name)
	return nil
}

func (l *testLifecycle) Delete(name string) error {
	l.Lock()
	defer l.Unlock()
	l.deletes = append(l.deletes, name)
	return nil
}

func (l *testLifecycle) RequestProcessorReset() {
	l.Lock()
	l.resets++
	l.Unlock()
}

func (l *testLifecycle) Registered(name string) bool {
	l.Lock()
	defer l.Unlock()
	return l.known[name]
}

// testBus is an in-memory MessageBus.
type testBus struct {
	subs     map[string]bool
	events   []Event
	sent     [][]byte
	subErr   error
	unsubErr error
	sendErr  error
	sync.Mutex
}

func newTestBus() *testBus {
	return &testBus{subs: make(map[string]bool)}
}

func (b *testBus) Subscribe(topic string) error {
	b.Lock()
	defer b.Unlock()
	if b.subErr != nil {
		return b.subErr
	}
	b.subs[topic] = true
	return nil
}

func (b *testBus) Unsubscribe(topic string) error {
	b.Lock()
	defer b.Unlock()
	if b.unsubErr != nil {
		return b.unsubErr
	}
	delete(b.subs, topic)
	return nil
}

func (b *testBus) Send(payload []byte) error {
	b.Lock()
	defer b.Unlock()
	if b.sendErr != nil {
		return b.sendErr
	}
	b.sent = append(b.sent, payload)
	return nil
}

func (b *testBus) Receive() (Event, bool) {
	b.Lock()
	defer b.Unlock()
	if len(b.events) == 0 {
		return Event{}, false
	}
	ev := b.events[0]
	b.events = b.events[1:]
	return ev, true
}

func (b *testBus) post(source string, id uint16) {
	b.Lock()
	b.events = append(b.events, Event{Source: source, ID: id})
	b.Unlock()
}

// testIdle is an idle counter advanced by hand.
type testIdle struct {
	n uint32
}

func (i *testIdle) IdleCount() uint32 {
	return i.n
}

// testNotes records notifications.
type testNotes struct {
	notes []Notification
	sync.Mutex
}

func (n *testNotes) Notify(note Notification) {
	n.Lock()
	n.notes = append(n.notes, note)
	n.Unlock()
}

func (n *testNotes) count(id NotifyID) int {
	n.Lock()
	defer n.Unlock()
	cnt := 0
	for _, note := range n.notes {
		if note.ID == id {
			cnt++
		}
	}
	return cnt
}

// testStore wraps a MemStore with injectable failures.
type testStore struct {
	*MemStore
	readErr  error
	writeErr error
}

func (s *testStore) Read(key string) ([]byte, error) {
	if s.readErr != nil {
		return nil, s.readErr
	}
	return s.MemStore.Read(key)
}

func (s *testStore) Write(key string, b []byte) error {
	if s.writeErr != nil {
		return s.writeErr
	}
	return s.MemStore.Write(key, b)
}

var errInjected = errors.New("Injected failure")

// testRig holds the collaborators of a supervisor under test.
type testRig struct {
	tables   *MemTables
	store    *testStore
	bus      *testBus
	lc       *testLifecycle
	counters *CounterRegistry
	idle     *testIdle
	notes    *testNotes
	alive    *bytes.Buffer
}

func newTestRig() *testRig {
	return &testRig{
		tables:   NewMemTables(),
		store:    &testStore{MemStore: NewMemStore()},
		bus:      newTestBus(),
		lc:       &testLifecycle{known: make(map[string]bool)},
		counters: NewCounterRegistry(),
		idle:     &testIdle{},
		notes:    &testNotes{},
		alive:    &bytes.Buffer{},
	}
}

func (r *testRig) collaborators() Collaborators {
	return Collaborators{
		Tables:    r.tables,
		Store:     r.store,
		Bus:       r.bus,
		Lifecycle: r.lc,
		Counters:  r.counters,
		Idle:      r.idle,
		Notifier:  r.notes,
		Aliveness: r.alive,
	}
}

// loadAll gives every table an empty first generation.
func (r *testRig) loadAll() {
	r.tables.SetAppMon(nil)
	r.tables.SetEventMon(nil)
	r.tables.SetExecCounters(nil)
	r.tables.SetMsgActions(nil)
}

// WithSupervisor runs fn against a fresh supervisor.  setup may prepare
// the rig and configuration before the supervisor is created.
func WithSupervisor(t *testing.T, setup func(r *testRig, cfg *Config),
	fn func(s *Supervisor, r *testRig)) func() {
	return func() {
		r := newTestRig()
		cfg := DefaultConfig()
		cfg.Name = t.Name()
		// The test idle counter never moves, which reads as overload.
		cfg.HoggingEnabled = false
		if setup != nil {
			setup(r, &cfg)
		}
		s, e := NewSupervisor(cfg, r.collaborators())
		So(e, ShouldBeNil)
		So(s, ShouldNotBeNil)
		s.SetLogger(testLogger(t))
		Reset(func() {
			s.Shutdown()
		})
		fn(s, r)
	}
}
