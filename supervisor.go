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
	"io"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// State is the life cycle state of a Supervisor.
type State int

const (
	StateInit State = iota
	StateRunning
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateRunning:
		return "running"
	case StateTerminated:
		return "terminated"
	}
	return "unknown"
}

// Collaborators are the external services a Supervisor works through.
// Notifier and Aliveness are optional; everything else is required.
type Collaborators struct {
	Tables    TableService
	Store     Store
	Bus       MessageBus
	Lifecycle AppLifecycle
	Counters  CounterSource
	Idle      IdleCounter
	Notifier  Notifier
	Aliveness io.Writer
}

type tableState struct {
	gen         uint64
	loaded      bool
	failing     bool
	rejected    bool
	rejectedGen uint64
}

// InvalidExecCount is reported for execution counters that could not be
// read.
const InvalidExecCount = 0xFFFFFFFF

// Supervisor is the per-cycle coordinator.  Each call to Tick performs one
// complete pass: table acquisition, application monitoring, event
// matching, utilization, cooldowns, and operator commands, in that order.
//
// All engine state is guarded by one lock, held for the whole pass.  Other
// goroutines only read telemetry (under the same lock) or queue commands
// to be applied by the next pass.
type Supervisor struct {
	cfg       Config
	name      string
	state     State
	tables    TableService
	counters  CounterSource
	bus       MessageBus
	lifecycle AppLifecycle
	aliveOut  io.Writer

	guard    *PersistentGuard
	dispatch *Dispatcher
	appmon   *AppMonitor
	eventmon *EventMonitor
	utilmon  *UtilizationMonitor

	notifier *MultiNotifier
	lognote  *LogNotifier
	log      *EventLog
	logger   zerolog.Logger

	appMonEnabled bool
	aliveEnabled  bool
	aliveCount    uint32
	autoOff       [MsgActionTableID + 1]bool
	ts            [MsgActionTableID + 1]tableState
	xct           *ExecCounterTable
	execCounts    []uint32

	cmds        chan pending
	cmdCount    uint32
	cmdErrCount uint32
	cycles      uint64

	serial     int64
	createTime time.Time
	updateTime time.Time
	mx         sync.Mutex
	cvs        map[*sync.Cond]bool
}

func (s *Supervisor) lock() {
	s.mx.Lock()
}

func (s *Supervisor) unlock() {
	s.mx.Unlock()
}

// NewSupervisor validates the configuration, opens the reset guard, and
// performs the first table acquisition.  Any failure here is fatal and
// no Supervisor is returned.
func NewSupervisor(cfg Config, c Collaborators) (*Supervisor, error) {
	if e := cfg.Validate(); e != nil {
		return nil, e
	}
	switch {
	case c.Tables == nil:
		return nil, errors.New("missing table service")
	case c.Store == nil:
		return nil, errors.New("missing store")
	case c.Bus == nil:
		return nil, errors.New("missing message bus")
	case c.Lifecycle == nil:
		return nil, errors.New("missing lifecycle manager")
	case c.Counters == nil:
		return nil, errors.New("missing counter source")
	case c.Idle == nil:
		return nil, errors.New("missing idle counter")
	}
	if cfg.Name == "" {
		cfg.Name = "hsvisor"
	}

	// As with the log, serial numbers start from the current time so
	// that a restarted supervisor does not reuse them.
	s := &Supervisor{
		cfg:       cfg,
		name:      cfg.Name,
		state:     StateInit,
		tables:    c.Tables,
		counters:  c.Counters,
		bus:       c.Bus,
		lifecycle: c.Lifecycle,
		aliveOut:  c.Aliveness,
		serial:    time.Now().UnixNano(),
		cmds:      make(chan pending, cfg.CommandQueue),
		cvs:       make(map[*sync.Cond]bool),
	}
	s.createTime = time.Now()
	s.updateTime = s.createTime
	s.logger = zerolog.New(os.Stderr).With().Timestamp().
		Str("supervisor", s.name).Logger()
	s.log = NewEventLog(MaxLogRecords)
	s.lognote = &LogNotifier{Logger: s.logger}
	s.notifier = &MultiNotifier{}
	s.notifier.AddNotifier(s.log)
	s.notifier.AddNotifier(s.lognote)
	if c.Notifier != nil {
		s.notifier.AddNotifier(c.Notifier)
	}

	g, e := OpenGuard(c.Store, cfg.DefaultMaxResets)
	if e != nil {
		s.state = StateTerminated
		return nil, e
	}
	s.guard = g
	if g.Recovered() {
		s.notifyf(NotifyGuardRecovered, SevError, "",
			"Reset guard record corrupt, reinitialized to 0 of %d", g.Max())
	}

	s.dispatch = NewDispatcher(g, c.Lifecycle, c.Bus, s.notifier, s.logger)
	s.appmon = NewAppMonitor(s.dispatch)
	s.eventmon = NewEventMonitor(s.dispatch, c.Bus, cfg.EventTopic)
	if s.utilmon, e = NewUtilizationMonitor(cfg.Util, c.Idle, s.dispatch); e != nil {
		s.state = StateTerminated
		return nil, e
	}
	s.utilmon.SetHogging(cfg.HoggingEnabled)
	s.aliveEnabled = cfg.AlivenessEnabled
	s.appMonEnabled = cfg.AppMonEnabled
	if cfg.EventMonEnabled {
		if e := s.eventmon.Enable(); e != nil {
			s.notifyf(NotifySubscribeFailed, SevError, cfg.EventTopic,
				"Event monitor not enabled: %v", e)
		}
	}

	s.acquireTables()
	s.state = StateRunning
	s.notifyf(NotifyInit, SevInfo, "",
		"Supervisor %s initialized, resets %d of %d", s.name,
		g.Performed(), g.Max())
	return s, nil
}

// Name returns the name the supervisor was configured with.
func (s *Supervisor) Name() string {
	return s.name
}

// State returns the life cycle state.
func (s *Supervisor) State() State {
	s.lock()
	defer s.unlock()
	return s.state
}

// SetLogger replaces the logger used for operational logging, including
// the log copy of every notification.
func (s *Supervisor) SetLogger(l zerolog.Logger) {
	s.lock()
	defer s.unlock()
	s.logger = l.With().Str("supervisor", s.name).Logger()
	s.notifier.DelNotifier(s.lognote)
	s.lognote = &LogNotifier{Logger: s.logger}
	s.notifier.AddNotifier(s.lognote)
	s.dispatch.logger = s.logger
}

func (s *Supervisor) notifyf(id NotifyID, sev Severity, target string,
	format string, v ...interface{}) {
	notifyf(s.notifier, id, sev, target, format, v...)
}

// Tick performs one complete supervisor pass.  It never blocks on the
// collaborators beyond the time their own calls take, and it never fails:
// problems are reported as notifications.
func (s *Supervisor) Tick() {
	s.lock()
	defer s.unlock()
	if s.state != StateRunning {
		return
	}
	s.acquireTables()
	counts := s.gatherCounts()
	if s.appMonEnabled {
		s.appmon.Tick(counts)
	}
	s.drainEvents()
	s.utilmon.Mark()
	s.dispatch.TickCooldowns()
	s.drainCommands()
	s.aliveness()
	s.eventmon.Resolve(s.lifecycle.Registered)
	s.cycles++
	s.bumpSerial()
}

// Serve runs Tick once every configured period until ctx is done.  It
// implements the suture.Service contract.
func (s *Supervisor) Serve(ctx context.Context) error {
	t := time.NewTicker(s.cfg.Period)
	defer t.Stop()
	s.logger.Info().Dur("period", s.cfg.Period).Msg("supervisor running")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			s.Tick()
		}
	}
}

func (s *Supervisor) String() string {
	return s.name
}

// Shutdown stops the supervisor for good, unsubscribing from the event
// stream.  Queued commands fail with ErrTerminated.
func (s *Supervisor) Shutdown() {
	s.lock()
	if s.state == StateTerminated {
		s.unlock()
		return
	}
	s.state = StateTerminated
	if e := s.eventmon.Disable(); e != nil {
		s.logger.Error().Err(e).Msg("unsubscribe at shutdown")
	}
	s.failCommands(ErrTerminated)
	s.bumpSerial()
	s.unlock()
	s.logger.Info().Msg("supervisor shut down")
}

func (s *Supervisor) drainEvents() {
	for i := 0; i < s.cfg.MaxEventsPerCycle; i++ {
		ev, ok := s.bus.Receive()
		if !ok {
			return
		}
		s.eventmon.OnEvent(ev.Source, ev.ID)
	}
}

// gatherCounts collects the execution counters named by the execution
// counter table, then any application monitor target not covered there,
// as an application main task.
func (s *Supervisor) gatherCounts() map[string]uint32 {
	counts := make(map[string]uint32)
	s.execCounts = s.execCounts[:0]
	if s.xct != nil {
		for _, ent := range s.xct.Entries {
			if ent.Kind == KindNone {
				s.execCounts = append(s.execCounts, InvalidExecCount)
				continue
			}
			v, ok := s.counters.ExecutionCount(ent.Kind, ent.Name)
			if !ok {
				s.execCounts = append(s.execCounts, InvalidExecCount)
				continue
			}
			s.execCounts = append(s.execCounts, v)
			if _, dup := counts[ent.Name]; !dup {
				counts[ent.Name] = v
			}
		}
	}
	if tab := s.appmon.Table(); tab != nil && s.appMonEnabled {
		for _, ent := range tab.Entries {
			if !ent.Enabled() {
				continue
			}
			if _, ok := counts[ent.Target]; ok {
				continue
			}
			if v, ok := s.counters.ExecutionCount(KindAppMain, ent.Target); ok {
				counts[ent.Target] = v
			}
		}
	}
	return counts
}

func (s *Supervisor) aliveness() {
	if !s.aliveEnabled || s.aliveOut == nil {
		return
	}
	s.aliveCount++
	if s.aliveCount >= s.cfg.AlivenessPeriod {
		s.aliveCount = 0
		if _, e := io.WriteString(s.aliveOut, s.cfg.AlivenessToken); e != nil {
			s.logger.Debug().Err(e).Msg("aliveness write")
		}
	}
}

// bumpSerial increments the serial and notifies watchers.  Call with lock
// held.
func (s *Supervisor) bumpSerial() {
	s.updateTime = time.Now()
	s.serial++
	// NB: If the lock is not held here, then there is a risk
	// that the woken goroutines won't get see the updated
	// serial number!!
	for cv := range s.cvs {
		cv.Broadcast()
	}
}

// WatchSerial waits for the serial number to move away from old, which
// happens once per cycle and on shutdown.  If it has not changed within
// expire the old value is returned.  A poll can be done by supplying 0
// for the expiration.
func (s *Supervisor) WatchSerial(old int64, expire time.Duration) int64 {
	expired := false
	cv := sync.NewCond(&s.mx)
	var timer *time.Timer
	var rv int64

	if expire > 0 {
		timer = time.AfterFunc(expire, func() {
			s.lock()
			expired = true
			cv.Broadcast()
			s.unlock()
		})
	} else {
		expired = true
	}

	s.lock()
	s.cvs[cv] = true
	for {
		rv = s.serial
		if rv != old || expired {
			break
		}
		cv.Wait()
	}
	delete(s.cvs, cv)
	s.unlock()
	if timer != nil {
		timer.Stop()
	}
	return rv
}

// GetLog returns the notification log; see EventLog.GetRecords.
func (s *Supervisor) GetLog(lastid int64) ([]LogRecord, int64) {
	return s.log.GetRecords(lastid)
}

// WatchLog waits for the notification log to change.
func (s *Supervisor) WatchLog(old int64, expire time.Duration) int64 {
	return s.log.Watch(old, expire)
}
