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
	"strconv"

	"github.com/pkg/errors"
)

// CommandCode identifies an operator command.
type CommandCode int

const (
	CmdNoop CommandCode = iota
	CmdResetCounters
	CmdEnableAppMon
	CmdDisableAppMon
	CmdEnableEventMon
	CmdDisableEventMon
	CmdEnableAliveness
	CmdDisableAliveness
	CmdResetResetsPerformed
	CmdSetMaxResets
	CmdEnableCPUHog
	CmdDisableCPUHog
)

var commandNames = []string{
	CmdNoop:                 "noop",
	CmdResetCounters:        "reset-counters",
	CmdEnableAppMon:         "enable-appmon",
	CmdDisableAppMon:        "disable-appmon",
	CmdEnableEventMon:       "enable-eventmon",
	CmdDisableEventMon:      "disable-eventmon",
	CmdEnableAliveness:      "enable-aliveness",
	CmdDisableAliveness:     "disable-aliveness",
	CmdResetResetsPerformed: "reset-resets-performed",
	CmdSetMaxResets:         "set-max-resets",
	CmdEnableCPUHog:         "enable-cpuhog",
	CmdDisableCPUHog:        "disable-cpuhog",
}

func (c CommandCode) String() string {
	if c < 0 || int(c) >= len(commandNames) {
		return "unknown"
	}
	return commandNames[c]
}

// CommandNames lists every command name accepted by ParseCommand.
func CommandNames() []string {
	return append([]string{}, commandNames...)
}

// Command is one operator request.  Value is only used by
// CmdSetMaxResets.
type Command struct {
	Code  CommandCode
	Value uint32
}

func (c Command) String() string {
	if c.Code == CmdSetMaxResets {
		return c.Code.String() + " " + strconv.FormatUint(uint64(c.Value), 10)
	}
	return c.Code.String()
}

// ParseCommand looks up a command by name.  A value is required for
// set-max-resets and ignored otherwise.
func ParseCommand(name string, value string) (Command, error) {
	for i, n := range commandNames {
		if n != name {
			continue
		}
		cmd := Command{Code: CommandCode(i)}
		if cmd.Code == CmdSetMaxResets {
			v, e := strconv.ParseUint(value, 10, 16)
			if e != nil {
				return cmd, errors.Wrapf(ErrBadValue, "%s %q", name, value)
			}
			cmd.Value = uint32(v)
		}
		return cmd, nil
	}
	return Command{}, errors.Wrapf(ErrBadCommand, "%q", name)
}

type pending struct {
	cmd   Command
	reply chan error
}

// Submit queues a command to be applied by the next cycle.  It does not
// wait for the outcome.
func (s *Supervisor) Submit(cmd Command) error {
	return s.enqueue(pending{cmd: cmd})
}

// Exec queues a command and waits for the cycle that applies it.  The
// command remains queued if ctx expires first.
func (s *Supervisor) Exec(ctx context.Context, cmd Command) error {
	p := pending{cmd: cmd, reply: make(chan error, 1)}
	if e := s.enqueue(p); e != nil {
		return e
	}
	select {
	case e := <-p.reply:
		return e
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Supervisor) enqueue(p pending) error {
	s.lock()
	defer s.unlock()
	if s.state == StateTerminated {
		return ErrTerminated
	}
	select {
	case s.cmds <- p:
		return nil
	default:
		return ErrQueueFull
	}
}

// drainCommands applies every queued command.  Call with lock held.
func (s *Supervisor) drainCommands() {
	for {
		select {
		case p := <-s.cmds:
			e := s.applyCommand(p.cmd)
			if p.reply != nil {
				p.reply <- e
			}
		default:
			return
		}
	}
}

func (s *Supervisor) failCommands(err error) {
	for {
		select {
		case p := <-s.cmds:
			if p.reply != nil {
				p.reply <- err
			}
		default:
			return
		}
	}
}

func (s *Supervisor) applyCommand(cmd Command) error {
	var err error
	switch cmd.Code {
	case CmdNoop:
	case CmdResetCounters:
		s.cmdCount = 0
		s.cmdErrCount = 0
		s.dispatch.ResetCounters()
		s.eventmon.ResetCounters()
		s.notifyf(NotifyCommand, SevInfo, "", "Counters reset")
		return nil
	case CmdEnableAppMon:
		if s.appmon.Table() == nil {
			err = errors.Wrap(ErrNoTable, "enable application monitor")
			break
		}
		s.setMonitor(AppMonTableID, true)
		s.autoOff[AppMonTableID] = false
	case CmdDisableAppMon:
		s.setMonitor(AppMonTableID, false)
		s.autoOff[AppMonTableID] = false
	case CmdEnableEventMon:
		if err = s.setMonitor(EventMonTableID, true); err == nil {
			s.autoOff[EventMonTableID] = false
		}
	case CmdDisableEventMon:
		if err = s.setMonitor(EventMonTableID, false); err == nil {
			s.autoOff[EventMonTableID] = false
		}
	case CmdEnableAliveness:
		s.aliveEnabled = true
		s.aliveCount = 0
	case CmdDisableAliveness:
		s.aliveEnabled = false
	case CmdResetResetsPerformed:
		if e := s.guard.ClearPerformed(); e != nil {
			s.notifyf(NotifyStoreFailed, SevError, "", "%v", e)
		}
	case CmdSetMaxResets:
		if cmd.Value > 0xFFFF {
			err = errors.Wrapf(ErrBadValue, "max resets %d", cmd.Value)
			break
		}
		if e := s.guard.SetMax(uint16(cmd.Value)); e != nil {
			s.notifyf(NotifyStoreFailed, SevError, "", "%v", e)
		}
	case CmdEnableCPUHog:
		s.utilmon.SetHogging(true)
	case CmdDisableCPUHog:
		s.utilmon.SetHogging(false)
	default:
		err = errors.Wrapf(ErrBadCommand, "code %d", cmd.Code)
	}
	if err != nil {
		s.cmdErrCount++
		s.notifyf(NotifyCommandRejected, SevError, "",
			"Command %v rejected: %v", cmd, err)
		return err
	}
	s.cmdCount++
	s.notifyf(NotifyCommand, SevInfo, "", "Command %v accepted", cmd)
	return nil
}
