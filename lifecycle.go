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
	"os"
	"os/exec"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/process"
)

// ProcessLifecycle implements AppLifecycle over a set of AppProcesses.
// Names that are not managed processes may still be registered with
// Register, for applications that only check in counters; such names
// cannot be restarted or deleted.
type ProcessLifecycle struct {
	procs    map[string]*AppProcess
	others   map[string]bool
	resetCmd []string
	exit     func(int)
	logger   zerolog.Logger
	mx       sync.Mutex
}

// NewProcessLifecycle returns an empty lifecycle manager.  A processor
// reset runs resetCmd when one is given; otherwise every process is
// stopped and the host exits with status 3, leaving the actual restart
// to whatever started it.
func NewProcessLifecycle(resetCmd []string, logger zerolog.Logger) *ProcessLifecycle {
	return &ProcessLifecycle{
		procs:    make(map[string]*AppProcess),
		others:   make(map[string]bool),
		resetCmd: resetCmd,
		exit:     os.Exit,
		logger:   logger,
	}
}

// Add registers a managed process.
func (l *ProcessLifecycle) Add(p *AppProcess) error {
	l.mx.Lock()
	defer l.mx.Unlock()
	if _, ok := l.procs[p.Name()]; ok {
		return errors.Errorf("application %s already registered", p.Name())
	}
	l.procs[p.Name()] = p
	return nil
}

// Register records an application name that is not a managed process.
func (l *ProcessLifecycle) Register(name string) {
	l.mx.Lock()
	l.others[name] = true
	l.mx.Unlock()
}

// Process returns the managed process called name, or nil.
func (l *ProcessLifecycle) Process(name string) *AppProcess {
	l.mx.Lock()
	defer l.mx.Unlock()
	return l.procs[name]
}

// Names returns the names of every managed process, sorted.
func (l *ProcessLifecycle) Names() []string {
	l.mx.Lock()
	rv := make([]string, 0, len(l.procs))
	for n := range l.procs {
		rv = append(rv, n)
	}
	l.mx.Unlock()
	sort.Strings(rv)
	return rv
}

// StartAll starts every managed process, returning the first failure.
func (l *ProcessLifecycle) StartAll() error {
	var first error
	for _, n := range l.Names() {
		if e := l.Process(n).Start(); e != nil && first == nil {
			first = e
		}
	}
	return first
}

// StopAll stops every managed process.
func (l *ProcessLifecycle) StopAll() {
	for _, n := range l.Names() {
		l.Process(n).Stop()
	}
}

// Restart implements AppLifecycle.  The restart happens in the
// background, since stopping a process can take its full stop time.
func (l *ProcessLifecycle) Restart(name string) error {
	p := l.Process(name)
	if p == nil {
		return errors.Wrap(ErrNotRegistered, name)
	}
	if e := p.CheckRestart(); e != nil {
		return errors.Wrap(e, name)
	}
	go func() {
		if e := p.Restart(); e != nil {
			l.logger.Error().Err(e).Str("app", name).Msg("restart")
		}
	}()
	return nil
}

// Delete implements AppLifecycle.  The process is forgotten at once and
// stopped in the background.
func (l *ProcessLifecycle) Delete(name string) error {
	l.mx.Lock()
	p, ok := l.procs[name]
	delete(l.procs, name)
	l.mx.Unlock()
	if !ok {
		return errors.Wrap(ErrNotRegistered, name)
	}
	go p.Stop()
	return nil
}

// Registered implements AppLifecycle.
func (l *ProcessLifecycle) Registered(name string) bool {
	l.mx.Lock()
	defer l.mx.Unlock()
	_, ok := l.procs[name]
	return ok || l.others[name]
}

// RequestProcessorReset implements AppLifecycle.  It does not wait for
// the reset command to finish.
func (l *ProcessLifecycle) RequestProcessorReset() {
	if len(l.resetCmd) == 0 {
		l.logger.Warn().Msg("processor reset: stopping applications and exiting")
		go func() {
			l.StopAll()
			l.exit(3)
		}()
		return
	}
	cmd := exec.Command(l.resetCmd[0], l.resetCmd[1:]...)
	if e := cmd.Start(); e != nil {
		l.logger.Error().Err(e).Strs("command", l.resetCmd).Msg("processor reset")
		return
	}
	l.logger.Warn().Int("pid", cmd.Process.Pid).Msg("processor reset started")
	go cmd.Wait()
}

// ProcessCounters is a CounterSource reporting the CPU time consumed by
// a managed process, in hundredths of a second, as its execution count.
//
// CPU time only advances while the process runs.  A healthy process that
// sleeps or blocks on I/O for longer than its monitor cycle count looks
// exactly like a hung one and will be acted on.  Use it only for
// processes that are always busy; anything else should check in with a
// CounterRegistry.
type ProcessCounters struct {
	Lifecycle *ProcessLifecycle
}

// ExecutionCount implements CounterSource.  Only application kinds are
// served; a stopped process has no count.
func (c ProcessCounters) ExecutionCount(kind ResourceKind, name string) (uint32, bool) {
	if kind != KindAppMain && kind != KindAppChild {
		return 0, false
	}
	p := c.Lifecycle.Process(name)
	if p == nil {
		return 0, false
	}
	pid := p.Pid()
	if pid == 0 {
		return 0, false
	}
	proc, e := process.NewProcess(int32(pid))
	if e != nil {
		return 0, false
	}
	t, e := proc.Times()
	if e != nil {
		return 0, false
	}
	return uint32(uint64((t.User + t.System) * 100)), true
}
