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

package main

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"

	"github.com/gdamore/hsvisor"
)

const envPrefix = "HSVISOR_"

// DaemonConfig is the complete hsvisord configuration.
type DaemonConfig struct {
	Engine hsvisor.Config `koanf:"engine"`

	Listen      string   `koanf:"listen" validate:"required"`
	TableDir    string   `koanf:"table_dir" validate:"required"`
	AppDir      string   `koanf:"app_dir"`
	StoreDir    string   `koanf:"store_dir"`
	ActionTopic string   `koanf:"action_topic" validate:"required"`
	BusDepth    int      `koanf:"bus_depth" validate:"gte=0"`
	ResetCmd    []string `koanf:"reset_command"`
	IdleSource  string   `koanf:"idle_source" validate:"oneof=host spinner"`
	StartApps   bool     `koanf:"start_apps"`
	LogLevel    string   `koanf:"log_level"`
	LogFormat   string   `koanf:"log_format" validate:"oneof=console json"`

	// CPUTimeCounters also counts CPU time of managed processes as
	// progress.  Processes that idle or block on I/O then look frozen.
	CPUTimeCounters bool `koanf:"cpu_time_counters"`
}

func defaultConfig() DaemonConfig {
	return DaemonConfig{
		Engine:      hsvisor.DefaultConfig(),
		Listen:      "127.0.0.1:8321",
		TableDir:    "tables",
		AppDir:      "apps",
		ActionTopic: "hsvisor.actions",
		BusDepth:    256,
		IdleSource:  "host",
		StartApps:   true,
		LogLevel:    "info",
		LogFormat:   "console",
	}
}

// envKey maps HSVISOR_ENGINE__PERIOD to engine.period.  A double
// underscore separates levels, since keys contain single underscores.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// loadConfig layers defaults, the optional YAML file, and the
// environment, in increasing priority.
func loadConfig(path string) (*DaemonConfig, error) {
	k := koanf.New(".")
	if e := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); e != nil {
		return nil, errors.Wrap(e, "load defaults")
	}
	if path != "" {
		if e := k.Load(file.Provider(path), yaml.Parser()); e != nil {
			return nil, errors.Wrapf(e, "load config file %s", path)
		}
	}
	if e := k.Load(env.Provider(envPrefix, ".", envKey), nil); e != nil {
		return nil, errors.Wrap(e, "load environment")
	}

	cfg := &DaemonConfig{}
	if e := k.Unmarshal("", cfg); e != nil {
		return nil, errors.Wrap(e, "decode config")
	}
	if e := validator.New().Struct(cfg); e != nil {
		return nil, errors.Wrap(e, "invalid config")
	}
	return cfg, nil
}
