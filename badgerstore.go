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
	"github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"
)

// BadgerStore is a Store backed by a badger database.  Writes are synced
// so that the reset guard survives an abrupt processor reset.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadgerStore opens (or creates) a database in dir.  An empty dir
// opens an in-memory database.
func OpenBadgerStore(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	} else {
		opts = opts.WithSyncWrites(true)
	}
	db, e := badger.Open(opts)
	if e != nil {
		return nil, errors.Wrap(e, "open badger store")
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Read(key string) ([]byte, error) {
	var rv []byte
	e := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNoSuchKey
		}
		if err != nil {
			return err
		}
		rv, err = item.ValueCopy(nil)
		return err
	})
	return rv, e
}

func (s *BadgerStore) Write(key string, b []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), b)
	})
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}
