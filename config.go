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
	"time"

	"github.com/pkg/errors"
)

// Config holds the settings fixed at construction time.
type Config struct {
	Name              string        `koanf:"name"`
	Period            time.Duration `koanf:"period" validate:"gt=0"`
	Util              UtilConfig    `koanf:"util"`
	DefaultMaxResets  uint16        `koanf:"default_max_resets"`
	AlivenessPeriod   uint32        `koanf:"aliveness_period" validate:"gt=0"`
	AlivenessToken    string        `koanf:"aliveness_token"`
	MaxEventsPerCycle int           `koanf:"max_events_per_cycle" validate:"gt=0"`
	CommandQueue      int           `koanf:"command_queue" validate:"gt=0"`
	EventTopic        string        `koanf:"event_topic" validate:"required"`

	// Initial enable states.
	AppMonEnabled    bool `koanf:"appmon_enabled"`
	EventMonEnabled  bool `koanf:"eventmon_enabled"`
	AlivenessEnabled bool `koanf:"aliveness_enabled"`
	HoggingEnabled   bool `koanf:"hogging_enabled"`
}

// DefaultConfig returns a configuration suitable for a single CPU host
// sampled once a second.
func DefaultConfig() Config {
	return Config{
		Name:   "hsvisor",
		Period: time.Second,
		Util: UtilConfig{
			Mult1:        1,
			Div:          1,
			Mult2:        100,
			Threshold:    9900,
			MaxHogCycles: 5,
		},
		DefaultMaxResets:  3,
		AlivenessPeriod:   5,
		AlivenessToken:    ".",
		MaxEventsPerCycle: 32,
		CommandQueue:      16,
		EventTopic:        "hsvisor.events",
		AppMonEnabled:     true,
		EventMonEnabled:   true,
		AlivenessEnabled:  false,
		HoggingEnabled:    true,
	}
}

// Validate checks every field, including the utilization calibration.
func (c Config) Validate() error {
	if e := getValidator().Struct(c); e != nil {
		return errors.Wrap(e, "invalid config")
	}
	return nil
}
