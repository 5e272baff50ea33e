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

// Package util is used for internal implementation bits in the CLI.
package util

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gdamore/hsvisor"
)

// OnOff renders an enable flag.
func OnOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

// FormatUtil renders a utilization in hundredths of a percent.
func FormatUtil(u uint32) string {
	return fmt.Sprintf("%d.%02d%%", u/100, u%100)
}

func FormatDuration(d time.Duration) string {

	sec := int((d % time.Minute) / time.Second)
	min := int((d % time.Hour) / time.Minute)
	hour := int(d / time.Hour)

	return fmt.Sprintf("%d:%02d:%02d", hour, min, sec)
}

// FormatEnables renders packed per-entry enable flags as one character
// per entry, for n entries.
func FormatEnables(words []uint32, n int) string {
	var sb strings.Builder
	for i := 0; i < n; i++ {
		w := i / 32
		if w < len(words) && words[w]&(1<<uint(i%32)) != 0 {
			sb.WriteByte('+')
		} else {
			sb.WriteByte('.')
		}
	}
	return sb.String()
}

// TableState describes the acquisition state of one table.
func TableState(t hsvisor.TableStatus) string {
	state := "not loaded"
	switch {
	case t.Failing:
		state = "unavailable"
	case t.Loaded:
		state = fmt.Sprintf("generation %d", t.Generation)
	}
	if t.Rejected {
		state += fmt.Sprintf(", rejected %d", t.RejectedGen)
	}
	if t.AutoOff {
		state += ", monitor auto-disabled"
	}
	return state
}

// StatusLines renders the telemetry as labeled lines, one per concern.
func StatusLines(s *hsvisor.Snapshot) []string {
	lines := make([]string, 0, 16)
	add := func(label string, format string, v ...interface{}) {
		v = append([]interface{}{label + ":"}, v...)
		lines = append(lines, fmt.Sprintf("%-12s "+format, v...))
	}
	add("Name", "%s (%s)", s.Name, s.State)
	add("Up", "%s, %d cycles", FormatDuration(time.Since(s.CreateTime)), s.Cycles)
	add("Commands", "%d accepted, %d rejected", s.CmdCount, s.CmdErrCount)
	add("Monitors", "appmon %s, eventmon %s, aliveness %s, cpuhog %s",
		OnOff(s.AppMonEnabled), OnOff(s.EventMonEnabled),
		OnOff(s.AlivenessEnabled), OnOff(s.HoggingEnabled))
	add("Resets", "%d of %d, %d suppressed",
		s.ResetsPerformed, s.MaxResets, s.ResetsDenied)
	add("Apps", "%d restarts, %d deletes", s.Restarts, s.Deletes)
	add("Events", "%d observed, %d unresolved",
		s.EventsObserved, s.UnresolvedEvents)
	add("Messages", "%d sent, %d in cooldown",
		s.MsgActionsExecuted, s.MsgActionsSkipped)
	add("CPU", "%s now, %s avg, %s peak, hog %d",
		FormatUtil(s.UtilCurrent), FormatUtil(s.UtilAverage),
		FormatUtil(s.UtilPeak), s.HogCount)
	add("AppMon", "%s", FormatEnables(s.AppMonEnables, hsvisor.MaxAppMonEntries))
	counts := make([]string, 0, len(s.ExecCounts))
	for _, v := range s.ExecCounts {
		counts = append(counts, FormatCount(v))
	}
	add("Counters", "%s", strings.Join(counts, " "))
	for _, t := range s.Tables {
		add("Table "+t.Table, "%s", TableState(t))
	}
	return lines
}

// FormatCount renders an execution count, which may be invalid.
func FormatCount(v uint32) string {
	if v == hsvisor.InvalidExecCount {
		return "-"
	}
	return fmt.Sprintf("%d", v)
}

type sorted []hsvisor.LogRecord

func (s sorted) Swap(i, j int) {
	s[i], s[j] = s[j], s[i]
}

func (s sorted) Len() int {
	return len(s)
}

func (s sorted) Less(i, j int) bool {
	return s[i].Id < s[j].Id
}

// SortRecords orders log records oldest first.
func SortRecords(items []hsvisor.LogRecord) {
	sort.Sort(sorted(items))
}

// FormatRecord renders one log record on a single line.
func FormatRecord(r hsvisor.LogRecord) string {
	tgt := ""
	if r.Target != "" {
		tgt = " [" + r.Target + "]"
	}
	return fmt.Sprintf("%s %-8s %3d%s %s",
		r.Time.Format(time.RFC3339), r.Severity, r.NotifyID, tgt, r.Text)
}
