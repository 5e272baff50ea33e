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
	"sync"
	"time"
)

const (
	MaxLogRecords = 1000
)

type LogRecord struct {
	Id       int64     `json:"id,string"`
	Time     time.Time `json:"time"`
	NotifyID NotifyID  `json:"event"`
	Severity string    `json:"severity"`
	Target   string    `json:"target,omitempty"`
	Text     string    `json:"text"`
}

// EventLog keeps the most recent notifications in a ring.  It is the
// engine's event log, and implements Notifier.
type EventLog struct {
	records    []LogRecord
	numRecords int
	maxRecords int
	id         int64
	cvs        map[*sync.Cond]bool
	mx         sync.Mutex
}

func (log *EventLog) lock() {
	log.mx.Lock()
}

func (log *EventLog) unlock() {
	log.mx.Unlock()
}

// Notify implements Notifier.
func (log *EventLog) Notify(n Notification) {
	log.lock()
	if log.records == nil {
		log.records = make([]LogRecord, log.maxRecords)
		log.numRecords = 0
	}
	idx := log.numRecords % log.maxRecords
	log.id++
	log.records[idx] = LogRecord{
		Id:       log.id,
		Time:     time.Now(),
		NotifyID: n.ID,
		Severity: n.Severity.String(),
		Target:   n.Target,
		Text:     n.Text,
	}
	// NB: numRecords may actually be more than maxRecords.
	// In that case, we've looped, but we use this really to
	// track the next index.
	log.numRecords++
	for cv := range log.cvs {
		cv.Broadcast()
	}
	log.unlock()
}

func (log *EventLog) Clear() {
	log.lock()
	log.numRecords = 0
	// We presume that we cannot add new records more quickly than
	// once every nanosecond.
	log.id = time.Now().UnixNano()
	log.unlock()
}

// GetRecords returns the records that are stored, as well as an ID
// suitable for use as an Etag.  The last parameter can be the last ID
// that was checked, in which case this function will return nil immediately
// if the log has not changed since that ID was returned, without duplicating
// any records.
func (log *EventLog) GetRecords(last int64) ([]LogRecord, int64) {
	log.lock()
	defer log.unlock()
	if log.id == last {
		return nil, last
	}
	cnt := log.numRecords
	if cnt > log.maxRecords {
		cnt = log.maxRecords
	}
	recs := make([]LogRecord, 0, cnt)
	index := log.numRecords - cnt
	for j := 0; j < cnt; j++ {
		recs = append(recs, log.records[index%log.maxRecords])
		index++
	}
	return recs, log.id
}

// Watch waits until the log changes from last, or expire passes.  It
// returns the current ID.
func (log *EventLog) Watch(last int64, expire time.Duration) int64 {
	expired := false
	var timer *time.Timer
	cv := sync.NewCond(&log.mx)
	if expire > 0 {
		timer = time.AfterFunc(expire, func() {
			log.lock()
			expired = true
			cv.Broadcast()
			log.unlock()
		})
	} else {
		expired = true
	}

	log.lock()
	log.cvs[cv] = true
	for {
		if log.id != last || expired {
			break
		}
		cv.Wait()
	}
	delete(log.cvs, cv)
	last = log.id
	log.unlock()
	if timer != nil {
		timer.Stop()
	}
	return last
}

// NewEventLog returns an EventLog holding up to max records; zero selects
// MaxLogRecords.
func NewEventLog(max int) *EventLog {
	if max <= 0 {
		max = MaxLogRecords
	}
	return &EventLog{
		maxRecords: max,
		id:         time.Now().UnixNano(),
		cvs:        make(map[*sync.Cond]bool),
	}
}
