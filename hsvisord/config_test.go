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
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/gdamore/hsvisor"
)

func TestCounterSources(t *testing.T) {
	Convey("Given the default configuration", t, func() {
		cfg, e := loadConfig("")
		So(e, ShouldBeNil)
		registry := hsvisor.NewCounterRegistry()
		lc := hsvisor.NewProcessLifecycle(nil, zerolog.Nop())

		Convey("CPU time is not counted as progress", func() {
			So(cfg.CPUTimeCounters, ShouldBeFalse)
			counters := counterSources(cfg, registry, lc, zerolog.Nop())
			So(len(counters), ShouldEqual, 1)
			So(counters[0], ShouldEqual, registry)
		})

		Convey("Check-ins are counted", func() {
			counters := counterSources(cfg, registry, lc, zerolog.Nop())
			registry.CheckIn(hsvisor.KindAppMain, "X")
			v, ok := counters.ExecutionCount(hsvisor.KindAppMain, "X")
			So(ok, ShouldBeTrue)
			So(v, ShouldEqual, 1)
		})
	})

	Convey("CPU time counters can be switched on", t, func() {
		path := filepath.Join(t.TempDir(), "hsvisord.yaml")
		So(os.WriteFile(path, []byte("cpu_time_counters: true\n"), 0644),
			ShouldBeNil)
		cfg, e := loadConfig(path)
		So(e, ShouldBeNil)
		So(cfg.CPUTimeCounters, ShouldBeTrue)

		counters := counterSources(cfg, hsvisor.NewCounterRegistry(),
			hsvisor.NewProcessLifecycle(nil, zerolog.Nop()), zerolog.Nop())
		So(len(counters), ShouldEqual, 2)
		_, ok := counters[1].(hsvisor.ProcessCounters)
		So(ok, ShouldBeTrue)
	})
}
