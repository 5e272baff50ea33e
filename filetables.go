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
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Table file names within a FileTables directory.
var tableFiles = [MsgActionTableID + 1]string{
	AppMonTableID:      "appmon.yaml",
	EventMonTableID:    "eventmon.yaml",
	ExecCounterTableID: "execcounters.yaml",
	MsgActionTableID:   "msgactions.yaml",
}

// TableFile returns the file name FileTables uses for table id.
func TableFile(id TableID) string {
	return tableFiles[id]
}

// FileTables is a TableService reading each table from a YAML file (a
// list of records) in one directory.  Files are parsed when they change
// and the parsed records are handed out until the next change.  Every
// change of content starts a new generation; rereading the same bytes
// does not.  Content that does not decode is reported as a *ContentError
// for its generation while the last good records are kept.  A missing
// or unreadable file fails to load.  An empty file is taken to be in the middle of being rewritten
// and changes nothing; write "[]" for a table with no entries.
type FileTables struct {
	dir    string
	logger zerolog.Logger

	appmon   []AppMonRecord
	eventmon []EventMonRecord
	xct      []ExecCounterRecord
	msgs     []MsgActionRecord
	gens     [MsgActionTableID + 1]uint64
	errs     [MsgActionTableID + 1]error
	raw      [MsgActionTableID + 1][]byte
	rawErr   [MsgActionTableID + 1]error
	mx       sync.Mutex
}

// NewFileTables reads every table file in dir.  Failures are remembered
// and reported by the corresponding Load call.
func NewFileTables(dir string, logger zerolog.Logger) *FileTables {
	t := &FileTables{dir: dir, logger: logger}
	for id := AppMonTableID; id <= MsgActionTableID; id++ {
		t.errs[id] = errors.Errorf("%s not loaded", tableFiles[id])
		t.Reload(id)
	}
	return t
}

// Reload parses the file of table id again.
func (t *FileTables) Reload(id TableID) {
	fname := filepath.Join(t.dir, tableFiles[id])
	b, err := os.ReadFile(fname)
	if err == nil && len(bytes.TrimSpace(b)) == 0 {
		t.logger.Debug().Str("file", fname).Msg("table file empty, not loaded")
		return
	}

	t.mx.Lock()
	switch {
	case err != nil:
	case t.raw[id] != nil && bytes.Equal(b, t.raw[id]):
		err = t.rawErr[id]
	default:
		t.gens[id]++
		if err = t.decode(id, b); err != nil {
			err = &ContentError{Table: id, Err: err}
		}
		t.raw[id] = b
		t.rawErr[id] = err
	}
	t.errs[id] = err
	gen := t.gens[id]
	t.mx.Unlock()

	if err != nil {
		t.logger.Warn().Err(err).Str("file", fname).Uint64("generation", gen).
			Msg("table file not loaded")
		return
	}
	t.logger.Debug().Str("file", fname).Uint64("generation", gen).
		Msg("table file loaded")
}

func (t *FileTables) decode(id TableID, b []byte) error {
	var e error
	switch id {
	case AppMonTableID:
		var recs []AppMonRecord
		if e = yaml.Unmarshal(b, &recs); e == nil {
			t.appmon = recs
		}
	case EventMonTableID:
		var recs []EventMonRecord
		if e = yaml.Unmarshal(b, &recs); e == nil {
			t.eventmon = recs
		}
	case ExecCounterTableID:
		var recs []ExecCounterRecord
		if e = yaml.Unmarshal(b, &recs); e == nil {
			t.xct = recs
		}
	case MsgActionTableID:
		var recs []MsgActionRecord
		if e = yaml.Unmarshal(b, &recs); e == nil {
			t.msgs = recs
		}
	}
	return errors.Wrapf(e, "parse %s", tableFiles[id])
}

func (t *FileTables) LoadAppMon() ([]AppMonRecord, uint64, error) {
	t.mx.Lock()
	defer t.mx.Unlock()
	return t.appmon, t.gens[AppMonTableID], t.errs[AppMonTableID]
}

func (t *FileTables) LoadEventMon() ([]EventMonRecord, uint64, error) {
	t.mx.Lock()
	defer t.mx.Unlock()
	return t.eventmon, t.gens[EventMonTableID], t.errs[EventMonTableID]
}

func (t *FileTables) LoadExecCounters() ([]ExecCounterRecord, uint64, error) {
	t.mx.Lock()
	defer t.mx.Unlock()
	return t.xct, t.gens[ExecCounterTableID], t.errs[ExecCounterTableID]
}

func (t *FileTables) LoadMsgActions() ([]MsgActionRecord, uint64, error) {
	t.mx.Lock()
	defer t.mx.Unlock()
	return t.msgs, t.gens[MsgActionTableID], t.errs[MsgActionTableID]
}

// Serve watches the table directory and reloads a table whenever its
// file is written, created, renamed, or removed.  It returns when ctx is
// done.  It implements the suture.Service contract.
func (t *FileTables) Serve(ctx context.Context) error {
	w, e := fsnotify.NewWatcher()
	if e != nil {
		return errors.Wrap(e, "table watcher")
	}
	defer w.Close()
	if e := w.Add(t.dir); e != nil {
		return errors.Wrapf(e, "watch %s", t.dir)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op == fsnotify.Chmod {
				continue
			}
			base := filepath.Base(ev.Name)
			for id, f := range tableFiles {
				if f == base {
					t.Reload(TableID(id))
				}
			}
		case e, ok := <-w.Errors:
			if !ok {
				return nil
			}
			t.logger.Error().Err(e).Str("dir", t.dir).Msg("table watcher")
		}
	}
}

func (t *FileTables) String() string {
	return "tables:" + t.dir
}
