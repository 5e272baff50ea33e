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
	"github.com/pkg/errors"
)

// Utilization is expressed in hundredths of a percent.
const UtilTotal = 10000

const (
	utilHistoryLen = 64
	utilAverageLen = 4
)

// UtilConfig calibrates the utilization monitor.  Idle work counted over
// one interval maps to idle time as (delta * Mult1 / Div) * Mult2, in
// hundredths of a percent.
type UtilConfig struct {
	Mult1        uint32 `koanf:"mult1" validate:"gt=0"`
	Div          uint32 `koanf:"div" validate:"gt=0"`
	Mult2        uint32 `koanf:"mult2" validate:"gt=0"`
	Threshold    uint32 `koanf:"threshold" validate:"gt=0,lte=10000"`
	MaxHogCycles uint32 `koanf:"max_hog_cycles" validate:"gt=0"`
}

// Validate rejects calibrations that could divide by zero or never fire.
func (c UtilConfig) Validate() error {
	if e := getValidator().Struct(c); e != nil {
		return errors.Wrap(e, "utilization config")
	}
	return nil
}

// UtilizationMonitor estimates CPU utilization from an idle counter and
// detects sustained overload ("hogging").  It only ever raises alerts.
type UtilizationMonitor struct {
	cfg      UtilConfig
	idle     IdleCounter
	sink     ActionSink
	lastIdle uint32

	history [utilHistoryLen]uint32
	next    int
	filled  int
	current uint32
	average uint32
	peak    uint32

	hogEnabled bool
	hogCount   uint32
}

// NewUtilizationMonitor validates cfg and returns a monitor.  The first
// Mark measures from the idle count observed here.
func NewUtilizationMonitor(cfg UtilConfig, idle IdleCounter, sink ActionSink) (*UtilizationMonitor, error) {
	if e := cfg.Validate(); e != nil {
		return nil, e
	}
	return &UtilizationMonitor{
		cfg:        cfg,
		idle:       idle,
		sink:       sink,
		lastIdle:   idle.IdleCount(),
		hogEnabled: true,
	}, nil
}

// Mark closes one measurement interval.
func (m *UtilizationMonitor) Mark() {
	now := m.idle.IdleCount()
	delta := now - m.lastIdle
	m.lastIdle = now

	idle := uint64(delta) * uint64(m.cfg.Mult1) / uint64(m.cfg.Div)
	if idle < UtilTotal {
		idle *= uint64(m.cfg.Mult2)
	}
	if idle > UtilTotal {
		idle = UtilTotal
	}
	util := uint32(UtilTotal - idle)
	m.current = util

	m.history[m.next] = util
	m.next = (m.next + 1) % utilHistoryLen
	if m.filled < utilHistoryLen {
		m.filled++
	}
	m.recompute()

	if !m.hogEnabled {
		return
	}
	if util >= m.cfg.Threshold {
		// The count saturates, so one episode raises one alert.
		if m.hogCount < m.cfg.MaxHogCycles {
			m.hogCount++
			if m.hogCount == m.cfg.MaxHogCycles {
				m.sink.Dispatch(Action{Kind: Alert}, "CPU")
			}
		}
	} else {
		m.hogCount = 0
	}
}

func (m *UtilizationMonitor) recompute() {
	var peak uint32
	for i := 0; i < m.filled; i++ {
		if m.history[i] > peak {
			peak = m.history[i]
		}
	}
	m.peak = peak

	n := utilAverageLen
	if n > m.filled {
		n = m.filled
	}
	var sum uint64
	for i := 1; i <= n; i++ {
		sum += uint64(m.history[(m.next-i+utilHistoryLen)%utilHistoryLen])
	}
	if n > 0 {
		m.average = uint32(sum / uint64(n))
	}
}

// SetHogging enables or disables hogging detection.  Disabling clears the
// consecutive overload count.
func (m *UtilizationMonitor) SetHogging(on bool) {
	m.hogEnabled = on
	m.hogCount = 0
}

// Hogging reports whether hogging detection is enabled.
func (m *UtilizationMonitor) Hogging() bool {
	return m.hogEnabled
}

// HogCount returns the number of consecutive overloaded intervals.
func (m *UtilizationMonitor) HogCount() uint32 {
	return m.hogCount
}

// Current returns the most recent utilization.
func (m *UtilizationMonitor) Current() uint32 {
	return m.current
}

// Average returns the mean of the most recent intervals.
func (m *UtilizationMonitor) Average() uint32 {
	return m.average
}

// Peak returns the highest utilization held in the history.
func (m *UtilizationMonitor) Peak() uint32 {
	return m.peak
}
