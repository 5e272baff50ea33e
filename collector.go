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
	"github.com/prometheus/client_golang/prometheus"
)

// Collector exports a supervisor's telemetry as prometheus metrics.  Each
// scrape takes one Snapshot, so all values come from the same cycle.
type Collector struct {
	s *Supervisor

	cycles      *prometheus.Desc
	commands    *prometheus.Desc
	enabled     *prometheus.Desc
	resets      *prometheus.Desc
	maxResets   *prometheus.Desc
	actions     *prometheus.Desc
	events      *prometheus.Desc
	unresolved  *prometheus.Desc
	msgActions  *prometheus.Desc
	utilization *prometheus.Desc
	hogCount    *prometheus.Desc
	tableGen    *prometheus.Desc
}

// NewCollector returns a Collector for s.
func NewCollector(s *Supervisor) *Collector {
	labels := prometheus.Labels{"supervisor": s.Name()}
	desc := func(name, help string, vars ...string) *prometheus.Desc {
		return prometheus.NewDesc("hsvisor_"+name, help, vars, labels)
	}
	return &Collector{
		s:           s,
		cycles:      desc("cycles_total", "Supervisor cycles completed."),
		commands:    desc("commands_total", "Operator commands by outcome.", "outcome"),
		enabled:     desc("monitor_enabled", "Monitor enable state.", "monitor"),
		resets:      desc("resets_performed", "Processor resets performed."),
		maxResets:   desc("resets_max", "Processor resets allowed."),
		actions:     desc("actions_total", "Corrective actions by kind.", "kind"),
		events:      desc("events_observed_total", "Events processed by the event monitor."),
		unresolved:  desc("events_unresolved", "Event monitor entries naming unknown applications."),
		msgActions:  desc("message_actions_total", "Message actions by outcome.", "outcome"),
		utilization: desc("cpu_utilization_ratio", "CPU utilization.", "window"),
		hogCount:    desc("cpu_hog_cycles", "Consecutive overloaded cycles."),
		tableGen:    desc("table_generation", "Generation of the loaded table.", "table"),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.cycles
	ch <- c.commands
	ch <- c.enabled
	ch <- c.resets
	ch <- c.maxResets
	ch <- c.actions
	ch <- c.events
	ch <- c.unresolved
	ch <- c.msgActions
	ch <- c.utilization
	ch <- c.hogCount
	ch <- c.tableGen
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.s.Snapshot()
	counter := func(d *prometheus.Desc, v float64, lv ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, v, lv...)
	}
	gauge := func(d *prometheus.Desc, v float64, lv ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, lv...)
	}

	counter(c.cycles, float64(snap.Cycles))
	counter(c.commands, float64(snap.CmdCount), "accepted")
	counter(c.commands, float64(snap.CmdErrCount), "rejected")
	gauge(c.enabled, boolGauge(snap.AppMonEnabled), "appmon")
	gauge(c.enabled, boolGauge(snap.EventMonEnabled), "eventmon")
	gauge(c.enabled, boolGauge(snap.AlivenessEnabled), "aliveness")
	gauge(c.enabled, boolGauge(snap.HoggingEnabled), "cpuhog")
	gauge(c.resets, float64(snap.ResetsPerformed))
	gauge(c.maxResets, float64(snap.MaxResets))
	counter(c.actions, float64(snap.Restarts), "restart")
	counter(c.actions, float64(snap.Deletes), "delete")
	counter(c.actions, float64(snap.ResetsDenied), "reset_denied")
	counter(c.events, float64(snap.EventsObserved))
	gauge(c.unresolved, float64(snap.UnresolvedEvents))
	counter(c.msgActions, float64(snap.MsgActionsExecuted), "sent")
	counter(c.msgActions, float64(snap.MsgActionsSkipped), "cooldown")
	gauge(c.utilization, float64(snap.UtilCurrent)/UtilTotal, "current")
	gauge(c.utilization, float64(snap.UtilAverage)/UtilTotal, "average")
	gauge(c.utilization, float64(snap.UtilPeak)/UtilTotal, "peak")
	gauge(c.hogCount, float64(snap.HogCount))
	for _, ts := range snap.Tables {
		if ts.Loaded {
			gauge(c.tableGen, float64(ts.Generation), ts.Table)
		}
	}
}
