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
	"io"
	"os"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"
)

func newLogger(level string, format string) zerolog.Logger {
	var w io.Writer = os.Stderr
	if format != "json" {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}
	lvl, e := zerolog.ParseLevel(level)
	if e != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

// busLogger routes watermill's logging into zerolog.
type busLogger struct {
	l zerolog.Logger
}

func fields(ev *zerolog.Event, f watermill.LogFields) *zerolog.Event {
	for k, v := range f {
		ev = ev.Interface(k, v)
	}
	return ev
}

func (b busLogger) Error(msg string, err error, f watermill.LogFields) {
	fields(b.l.Error().Err(err), f).Msg(msg)
}

func (b busLogger) Info(msg string, f watermill.LogFields) {
	fields(b.l.Info(), f).Msg(msg)
}

func (b busLogger) Debug(msg string, f watermill.LogFields) {
	fields(b.l.Debug(), f).Msg(msg)
}

func (b busLogger) Trace(msg string, f watermill.LogFields) {
	fields(b.l.Trace(), f).Msg(msg)
}

func (b busLogger) With(f watermill.LogFields) watermill.LoggerAdapter {
	ctx := b.l.With()
	for k, v := range f {
		ctx = ctx.Interface(k, v)
	}
	return busLogger{l: ctx.Logger()}
}

// treeHook logs suture supervision events.
func treeHook(l zerolog.Logger) suture.EventHook {
	return func(ev suture.Event) {
		switch ev.Type() {
		case suture.EventTypeServicePanic, suture.EventTypeServiceTerminate:
			l.Error().Fields(ev.Map()).Msg(ev.String())
		case suture.EventTypeBackoff:
			l.Warn().Fields(ev.Map()).Msg(ev.String())
		default:
			l.Info().Fields(ev.Map()).Msg(ev.String())
		}
	}
}
