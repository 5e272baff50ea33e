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
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gdamore/hsvisor"
)

// maxPoll bounds how long a long poll may wait.
const maxPoll = 300 * time.Second

// EventPublisher announces events on the message bus on behalf of
// applications that post them over HTTP.
type EventPublisher interface {
	Publish(topic string, ev hsvisor.Event) error
}

// Options carries the optional collaborators of a Handler.  Endpoints
// whose collaborator is missing are not registered.
type Options struct {
	Events     EventPublisher
	EventTopic string
	Counters   *hsvisor.CounterRegistry
	Registry   *prometheus.Registry
	// CommandTimeout bounds how long a command waits for its cycle.
	CommandTimeout time.Duration
}

// Handler wraps a Supervisor, adding http.Handler functionality.
type Handler struct {
	s    *hsvisor.Supervisor
	opts Options
	r    *mux.Router
}

func (h *Handler) internalError(w http.ResponseWriter, e error) {
	http.Error(w, e.Error(), http.StatusInternalServerError)
}

func (h *Handler) writeJson(w http.ResponseWriter, v interface{}) {
	if b, e := json.Marshal(v); e != nil {
		h.internalError(w, e)
	} else {
		w.Header().Set("Content-Type", mimeJson)
		w.Write(b)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, e *Error) {
	if b, err := json.Marshal(e); err != nil {
		h.internalError(w, err)
	} else {
		w.Header().Set("Content-Type", mimeJson)
		w.WriteHeader(e.Code)
		w.Write(b)
	}
}

// pollTime returns how long the request asked to wait for a value other
// than etag, or zero for a plain GET.
func pollTime(r *http.Request, etag string) time.Duration {
	if r.Header.Get(PollEtagHeader) != etag {
		return 0
	}
	secs, e := strconv.Atoi(r.Header.Get(PollTimeHeader))
	if e != nil || secs <= 0 {
		return 0
	}
	d := time.Duration(secs) * time.Second
	if d > maxPoll {
		d = maxPoll
	}
	return d
}

func etagOf(n int64) string {
	return strconv.FormatInt(n, 16)
}

func (h *Handler) getStatus(w http.ResponseWriter, r *http.Request) {
	serial := h.s.Serial()
	if d := pollTime(r, etagOf(serial)); d > 0 {
		h.s.WatchSerial(serial, d)
	}
	snap := h.s.Snapshot()
	etag := etagOf(snap.Serial)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Etag", etag)
	h.writeJson(w, snap)
}

func (h *Handler) getLog(w http.ResponseWriter, r *http.Request) {
	id := h.s.WatchLog(0, 0)
	if d := pollTime(r, etagOf(id)); d > 0 {
		h.s.WatchLog(id, d)
	}
	recs, id := h.s.GetLog(0)
	etag := etagOf(id)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Etag", etag)
	h.writeJson(w, recs)
}

func (h *Handler) postCommand(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["command"]
	cmd, err := hsvisor.ParseCommand(name, r.URL.Query().Get("value"))
	if err != nil {
		h.writeError(w, &Error{http.StatusBadRequest, err.Error()})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.opts.CommandTimeout)
	defer cancel()
	err = h.s.Exec(ctx, cmd)
	switch {
	case err == nil:
		h.writeJson(w, &CommandResult{Command: cmd.String()})
	case errors.Is(err, hsvisor.ErrQueueFull),
		errors.Is(err, hsvisor.ErrTerminated):
		h.writeError(w, &Error{http.StatusServiceUnavailable, err.Error()})
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		h.writeError(w, &Error{http.StatusGatewayTimeout, err.Error()})
	default:
		h.writeError(w, &Error{http.StatusConflict, err.Error()})
	}
}

func (h *Handler) postEvent(w http.ResponseWriter, r *http.Request) {
	var ev hsvisor.Event
	if e := json.NewDecoder(r.Body).Decode(&ev); e != nil {
		h.writeError(w, &Error{http.StatusBadRequest, e.Error()})
		return
	}
	if ev.Source == "" {
		h.writeError(w, &Error{http.StatusBadRequest, "Missing event source"})
		return
	}
	if e := h.opts.Events.Publish(h.opts.EventTopic, ev); e != nil {
		h.internalError(w, e)
		return
	}
	h.writeJson(w, ok)
}

func (h *Handler) postCounter(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	kind, found := hsvisor.ParseResourceKind(vars["kind"])
	if !found || kind == hsvisor.KindNone {
		h.writeError(w, &Error{http.StatusBadRequest, "Unknown resource kind"})
		return
	}
	name := vars["name"]
	if len(name) > hsvisor.MaxNameLen {
		h.writeError(w, &Error{http.StatusBadRequest, "Name too long"})
		return
	}
	v := h.opts.Counters.CheckIn(kind, name)
	h.writeJson(w, &CounterInfo{Kind: kind.String(), Name: name, Value: v})
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	h.r.ServeHTTP(w, req)
}

func NewHandler(s *hsvisor.Supervisor, opts Options) *Handler {
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = 10 * time.Second
	}
	r := mux.NewRouter()
	h := &Handler{s: s, opts: opts, r: r}
	r.HandleFunc("/status", h.getStatus).Methods("GET")
	r.HandleFunc("/log", h.getLog).Methods("GET")
	r.HandleFunc("/commands/{command}", h.postCommand).Methods("POST")
	if opts.Events != nil {
		r.HandleFunc("/events", h.postEvent).Methods("POST")
	}
	if opts.Counters != nil {
		r.HandleFunc("/counters/{kind}/{name}", h.postCounter).Methods("POST")
	}
	if opts.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Registry,
			promhttp.HandlerOpts{})).Methods("GET")
	}
	return h
}
