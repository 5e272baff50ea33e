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
	"encoding/binary"
	"sync"

	"github.com/pkg/errors"
)

// Store is opaque, non-volatile byte storage.  Read returns ErrNoSuchKey
// (possibly wrapped) for a key that was never written.
type Store interface {
	Read(key string) ([]byte, error)
	Write(key string, b []byte) error
}

// GuardKey is the store key holding the reset guard record.
const GuardKey = "hsvisor/guard"

const guardRecordLen = 8

// PersistentGuard records how many processor resets this engine has
// performed and how many it may perform.  Every mutation is written
// through to the Store immediately.  The record keeps each value next to
// its bitwise inverse so that corruption can be detected on read.
type PersistentGuard struct {
	store      Store
	performed  uint16
	max        uint16
	defaultMax uint16
	recovered  bool
}

func encodeGuard(performed, max uint16) []byte {
	b := make([]byte, guardRecordLen)
	binary.BigEndian.PutUint16(b[0:], performed)
	binary.BigEndian.PutUint16(b[2:], ^performed)
	binary.BigEndian.PutUint16(b[4:], max)
	binary.BigEndian.PutUint16(b[6:], ^max)
	return b
}

func decodeGuard(b []byte) (uint16, uint16, error) {
	if len(b) != guardRecordLen {
		return 0, 0, ErrCorruptGuard
	}
	performed := binary.BigEndian.Uint16(b[0:])
	max := binary.BigEndian.Uint16(b[4:])
	if binary.BigEndian.Uint16(b[2:]) != ^performed ||
		binary.BigEndian.Uint16(b[6:]) != ^max {
		return 0, 0, ErrCorruptGuard
	}
	return performed, max, nil
}

// OpenGuard reads the guard record from the store.  A missing or corrupt
// record is replaced by (0, defaultMax) and written back; Recovered then
// reports true.  An error is returned only when the store itself fails.
func OpenGuard(store Store, defaultMax uint16) (*PersistentGuard, error) {
	g := &PersistentGuard{store: store, defaultMax: defaultMax}
	b, e := store.Read(GuardKey)
	switch {
	case e == nil:
		if g.performed, g.max, e = decodeGuard(b); e == nil {
			return g, nil
		}
		g.recovered = true
	case errors.Is(e, ErrNoSuchKey):
	default:
		return nil, errors.Wrap(e, "read reset guard")
	}
	g.performed = 0
	g.max = defaultMax
	if e := g.save(); e != nil {
		return nil, e
	}
	return g, nil
}

func (g *PersistentGuard) save() error {
	if e := g.store.Write(GuardKey, encodeGuard(g.performed, g.max)); e != nil {
		return errors.Wrap(e, "write reset guard")
	}
	return nil
}

// Performed returns the number of resets performed.
func (g *PersistentGuard) Performed() uint16 {
	return g.performed
}

// Max returns the number of resets allowed.
func (g *PersistentGuard) Max() uint16 {
	return g.max
}

// Recovered reports whether the record was found corrupt at open time.
func (g *PersistentGuard) Recovered() bool {
	return g.recovered
}

// TryConsume takes one reset from the budget.  It returns false, changing
// nothing, when the budget is exhausted.  When it returns true the count
// has been incremented in memory even if persisting it failed; the error
// reports the store failure.
func (g *PersistentGuard) TryConsume() (bool, error) {
	if g.performed >= g.max {
		return false, nil
	}
	g.performed++
	return true, g.save()
}

// ClearPerformed sets the performed count back to zero.
func (g *PersistentGuard) ClearPerformed() error {
	g.performed = 0
	return g.save()
}

// SetMax sets the number of resets allowed.
func (g *PersistentGuard) SetMax(n uint16) error {
	g.max = n
	return g.save()
}

// MemStore is a Store kept in memory, for tests and for hosts with no
// non-volatile storage.
type MemStore struct {
	data map[string][]byte
	mx   sync.Mutex
}

func NewMemStore() *MemStore {
	return &MemStore{data: make(map[string][]byte)}
}

func (s *MemStore) Read(key string) ([]byte, error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	b, ok := s.data[key]
	if !ok {
		return nil, ErrNoSuchKey
	}
	return append([]byte{}, b...), nil
}

func (s *MemStore) Write(key string, b []byte) error {
	s.mx.Lock()
	s.data[key] = append([]byte{}, b...)
	s.mx.Unlock()
	return nil
}
