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

package rest

import (
	"github.com/gdamore/hsvisor"
)

const (
	mimeJson = "application/json; charset=UTF-8"

	// A GET carrying both headers waits up to PollTimeHeader seconds
	// for the resource to move away from the PollEtagHeader value.
	PollEtagHeader = "X-Hsvisor-Poll-Etag"
	PollTimeHeader = "X-Hsvisor-Poll-Time"
)

var ok struct{}

// StatusInfo is the supervisor telemetry as served by GET /status.
type StatusInfo struct {
	hsvisor.Snapshot
	etag string
}

// LogInfo is the notification log as served by GET /log.
type LogInfo struct {
	Records []hsvisor.LogRecord
	etag    string
}

// CommandResult is returned for an accepted command.
type CommandResult struct {
	Command string `json:"command"`
}

// CounterInfo is returned when a counter checks in.
type CounterInfo struct {
	Kind  string `json:"kind"`
	Name  string `json:"name"`
	Value uint32 `json:"value"`
}

type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Message
}
