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
	"github.com/rs/zerolog"
)

// Sender is the outbound half of the message bus.
type Sender interface {
	Send(payload []byte) error
}

// Dispatcher turns actions requested by the monitors into effects.  It is
// the only place where applications are restarted or deleted, where the
// processor is reset, and where message actions are sent.
//
// Processor resets are bounded by the PersistentGuard: once the performed
// count reaches the maximum, further reset requests are downgraded to an
// alert.  Message actions are rate limited by a per-entry cooldown,
// counted in cycles.
type Dispatcher struct {
	guard     *PersistentGuard
	lifecycle AppLifecycle
	sender    Sender
	notifier  Notifier
	logger    zerolog.Logger

	msgs      *MsgActionTable
	cooldowns [MaxMsgActions]uint32

	msgExec      uint32
	msgSkipped   uint32
	resetsDenied uint32
	restarts     uint32
	deletes      uint32
}

// NewDispatcher returns a Dispatcher.  None of the collaborators may be nil.
func NewDispatcher(g *PersistentGuard, lc AppLifecycle, s Sender,
	n Notifier, l zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		guard:     g,
		lifecycle: lc,
		sender:    s,
		notifier:  n,
		logger:    l,
	}
}

// Dispatch carries out the action on behalf of target.
func (d *Dispatcher) Dispatch(act Action, target string) {
	switch act.Kind {
	case NoAction:
	case Alert:
		notifyf(d.notifier, NotifyAlert, SevError, target,
			"Health alert for %s", target)
	case AppRestart:
		d.restart(target)
	case AppDelete:
		d.delete(target)
	case ProcessorReset:
		d.reset(target)
	case SendMessage:
		d.sendMessage(act.Message, target)
	}
}

func (d *Dispatcher) restart(target string) {
	if e := d.lifecycle.Restart(target); e != nil {
		notifyf(d.notifier, NotifyRestartFailed, SevError, target,
			"Failed to restart %s: %v", target, e)
		return
	}
	d.restarts++
	notifyf(d.notifier, NotifyRestart, SevError, target,
		"Restarted %s", target)
}

func (d *Dispatcher) delete(target string) {
	if e := d.lifecycle.Delete(target); e != nil {
		notifyf(d.notifier, NotifyDeleteFailed, SevError, target,
			"Failed to delete %s: %v", target, e)
		return
	}
	d.deletes++
	notifyf(d.notifier, NotifyDelete, SevError, target,
		"Deleted %s", target)
}

func (d *Dispatcher) reset(target string) {
	ok, e := d.guard.TryConsume()
	if !ok {
		d.resetsDenied++
		notifyf(d.notifier, NotifyResetSuppressed, SevError, target,
			"Processor reset limit reached (%d of %d), reset suppressed for %s",
			d.guard.Performed(), d.guard.Max(), target)
		return
	}
	if e != nil {
		notifyf(d.notifier, NotifyStoreFailed, SevError, target,
			"Reset count not persisted: %v", e)
	}
	notifyf(d.notifier, NotifyResetPerformed, SevCritical, target,
		"Processor reset %d of %d requested for %s",
		d.guard.Performed(), d.guard.Max(), target)
	d.lifecycle.RequestProcessorReset()
}

func (d *Dispatcher) sendMessage(i int, target string) {
	if d.msgs == nil || i >= len(d.msgs.Entries) {
		d.logger.Debug().Int("message", i).Str("target", target).
			Msg("message action not loaded")
		return
	}
	ent := d.msgs.Entries[i]
	if ent.State == MsgDisabled {
		return
	}
	if d.cooldowns[i] > 0 {
		d.msgSkipped++
		return
	}
	if e := d.sender.Send(ent.Payload); e != nil {
		notifyf(d.notifier, NotifyMsgFailed, SevError, target,
			"Message action %d for %s failed: %v", i, target, e)
		return
	}
	d.cooldowns[i] = ent.Cooldown
	d.msgExec++
	if ent.State != MsgEnabledSilent {
		notifyf(d.notifier, NotifyMsgSent, SevInfo, target,
			"Sent message action %d for %s", i, target)
	}
}

// TickCooldowns advances every running cooldown by one cycle.
func (d *Dispatcher) TickCooldowns() {
	for i := range d.cooldowns {
		if d.cooldowns[i] > 0 {
			d.cooldowns[i]--
		}
	}
}

// SetMsgActions installs a new message action table and clears all
// cooldowns.  A nil table disables message actions.
func (d *Dispatcher) SetMsgActions(tab *MsgActionTable) {
	d.msgs = tab
	for i := range d.cooldowns {
		d.cooldowns[i] = 0
	}
}

// Cooldown returns the remaining cooldown of message action i.
func (d *Dispatcher) Cooldown(i int) uint32 {
	if i < 0 || i >= len(d.cooldowns) {
		return 0
	}
	return d.cooldowns[i]
}

// ResetCounters zeroes the dispatcher's statistics.
func (d *Dispatcher) ResetCounters() {
	d.msgExec = 0
	d.msgSkipped = 0
	d.resetsDenied = 0
	d.restarts = 0
	d.deletes = 0
}
