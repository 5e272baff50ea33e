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

// Package hsvisor provides a health and safety supervisor: a periodic,
// table driven engine that watches other applications for loss of
// liveness, reacts to fault events reported on a message bus, and keeps
// an eye on processor utilization.
//
// Each cycle the Supervisor acquires its four configuration tables,
// samples execution counters, runs the application and event monitors,
// measures utilization, and applies queued operator commands.  Monitors
// never act directly; every corrective action (an alert, an application
// restart or delete, a processor reset, or a custom bus message) passes
// through one Dispatcher.  Processor resets are bounded by a persistent
// guard, so a faulty application can never cause an endless reset loop.
//
// The engine only touches the outside world through small interfaces
// (TableService, Store, MessageBus, AppLifecycle, CounterSource,
// IdleCounter, and Notifier), for which this package supplies hosted
// implementations: YAML table files, a badger store, a watermill bus,
// and operating system processes.  The hsvisord command puts them
// together and serves the command and telemetry interface of package
// rest.
package hsvisor
