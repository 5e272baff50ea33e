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

	"github.com/pkg/errors"
)

var (
	ErrTerminated    = errors.New("Supervisor is terminated")
	ErrNoTable       = errors.New("Table not loaded")
	ErrBadCommand    = errors.New("Unknown command")
	ErrBadValue      = errors.New("Bad command value")
	ErrQueueFull     = errors.New("Command queue full")
	ErrNotRegistered = errors.New("Application not registered")
	ErrRateLimited   = errors.New("Restarting too quickly")
	ErrCorruptGuard  = errors.New("Persistent guard record corrupt")
	ErrNoSuchKey     = errors.New("No such key")
	ErrNotSubscribed = errors.New("Not subscribed")
)

// ConfigError reports a table record that failed validation.  The whole
// table load is rejected when any record fails.
type ConfigError struct {
	Table  TableID
	Index  int
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("%s table: %s", e.Table, e.Reason)
	}
	return fmt.Sprintf("%s table entry %d: %s: %s",
		e.Table, e.Index, e.Field, e.Reason)
}

// AcquireError reports that a table could not be obtained from the
// table service.  It is transient; acquisition is retried every cycle.
type AcquireError struct {
	Table TableID
	Err   error
}

func (e *AcquireError) Error() string {
	return fmt.Sprintf("acquire %s table: %v", e.Table, e.Err)
}

func (e *AcquireError) Unwrap() error {
	return e.Err
}

// ContentError reports a table the service could read but not decode.
// It rejects that generation the way a failed validation does, so the
// previously loaded table stays in force.
type ContentError struct {
	Table TableID
	Err   error
}

func (e *ContentError) Error() string {
	return fmt.Sprintf("%s table content: %v", e.Table, e.Err)
}

func (e *ContentError) Unwrap() error {
	return e.Err
}

// SubscriptionError reports a bus subscribe or unsubscribe failure.
type SubscriptionError struct {
	Topic string
	Op    string
	Err   error
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Topic, e.Err)
}

func (e *SubscriptionError) Unwrap() error {
	return e.Err
}
