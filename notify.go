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
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Severity of a notification.
type Severity int

const (
	SevDebug Severity = iota
	SevInfo
	SevError
	SevCritical
)

func (s Severity) String() string {
	switch s {
	case SevDebug:
		return "debug"
	case SevInfo:
		return "info"
	case SevError:
		return "error"
	case SevCritical:
		return "critical"
	}
	return "unknown"
}

// NotifyID identifies the kind of a notification, so that ground tools
// (and the event monitor of another supervisor) can match on it.
type NotifyID uint16

const (
	NotifyInit NotifyID = iota + 1
	NotifyAlert
	NotifyResetPerformed
	NotifyResetSuppressed
	NotifyRestart
	NotifyRestartFailed
	NotifyDelete
	NotifyDeleteFailed
	NotifyMsgSent
	NotifyMsgFailed
	NotifyTableRejected
	NotifyTableAcquire
	NotifyAutoDisabled
	NotifyReenabled
	NotifyCommand
	NotifyCommandRejected
	NotifyGuardRecovered
	NotifyStoreFailed
	NotifySubscribeFailed
)

// Notification is an outbound event produced by the engine.
type Notification struct {
	ID       NotifyID
	Severity Severity
	Target   string
	Text     string
}

// Notifier receives engine notifications.  Notify must not block.
type Notifier interface {
	Notify(n Notification)
}

// LogNotifier writes notifications to a zerolog logger.
type LogNotifier struct {
	Logger zerolog.Logger
}

func (l *LogNotifier) Notify(n Notification) {
	var ev *zerolog.Event
	switch n.Severity {
	case SevDebug:
		ev = l.Logger.Debug()
	case SevInfo:
		ev = l.Logger.Info()
	case SevError:
		ev = l.Logger.Error()
	default:
		ev = l.Logger.Warn().Bool("critical", true)
	}
	ev = ev.Uint16("id", uint16(n.ID))
	if n.Target != "" {
		ev = ev.Str("target", n.Target)
	}
	ev.Msg(n.Text)
}

// MultiNotifier fans a notification out to every registered Notifier.
// Registered notifiers must be comparable (pointers, typically).
type MultiNotifier struct {
	notifiers []Notifier
	lock      sync.Mutex
}

// Notify implements Notifier.
func (m *MultiNotifier) Notify(n Notification) {
	m.lock.Lock()
	for _, x := range m.notifiers {
		x.Notify(n)
	}
	m.lock.Unlock()
}

// AddNotifier registers a notifier.  A notifier can only be added once.
func (m *MultiNotifier) AddNotifier(n Notifier) {
	m.lock.Lock()
	defer m.lock.Unlock()
	for _, x := range m.notifiers {
		if x == n {
			return
		}
	}
	m.notifiers = append(m.notifiers, n)
}

// DelNotifier removes a notifier from the fan-out list.
func (m *MultiNotifier) DelNotifier(n Notifier) {
	m.lock.Lock()
	defer m.lock.Unlock()
	for i, x := range m.notifiers {
		if x == n {
			m.notifiers = append(m.notifiers[:i], m.notifiers[i+1:]...)
			break
		}
	}
}

func notifyf(n Notifier, id NotifyID, sev Severity, target string,
	format string, v ...interface{}) {
	n.Notify(Notification{
		ID:       id,
		Severity: sev,
		Target:   target,
		Text:     fmt.Sprintf(format, v...),
	})
}
