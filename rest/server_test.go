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
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/gdamore/hsvisor"
)

type testBus struct {
	published []hsvisor.Event
	sync.Mutex
}

func (b *testBus) Subscribe(string) error { return nil }
func (b *testBus) Unsubscribe(string) error { return nil }
func (b *testBus) Send([]byte) error { return nil }

func (b *testBus) Receive() (hsvisor.Event, bool) {
	return hsvisor.Event{}, false
}

func (b *testBus) Publish(topic string, ev hsvisor.Event) error {
	b.Lock()
	b.published = append(b.published, ev)
	b.Unlock()
	return nil
}

type testLifecycle struct{}

func (testLifecycle) Restart(string) error { return nil }
func (testLifecycle) Delete(string) error { return nil }
func (testLifecycle) RequestProcessorReset() {}
func (testLifecycle) Registered(string) bool { return true }

func TestHandler(t *testing.T) {
	Convey("Given a supervisor behind a handler", t, func() {
		tables := hsvisor.NewMemTables()
		tables.SetEventMon(nil)
		tables.SetExecCounters(nil)
		tables.SetMsgActions(nil)
		bus := &testBus{}
		counters := hsvisor.NewCounterRegistry()

		cfg := hsvisor.DefaultConfig()
		cfg.Name = "rest"
		cfg.Period = 5 * time.Millisecond
		s, e := hsvisor.NewSupervisor(cfg, hsvisor.Collaborators{
			Tables:    tables,
			Store:     hsvisor.NewMemStore(),
			Bus:       bus,
			Lifecycle: testLifecycle{},
			Counters:  counters,
			Idle:      &hsvisor.IdleWord{},
		})
		So(e, ShouldBeNil)
		s.SetLogger(zerolog.Nop())

		reg := prometheus.NewRegistry()
		reg.MustRegister(hsvisor.NewCollector(s))

		srv := httptest.NewServer(NewHandler(s, Options{
			Events:         bus,
			EventTopic:     cfg.EventTopic,
			Counters:       counters,
			Registry:       reg,
			CommandTimeout: 2 * time.Second,
		}))
		client := NewClient(nil, srv.URL)
		Reset(func() {
			srv.Close()
			s.Shutdown()
		})

		Convey("Status is served with an etag", func() {
			st, e := client.Status()
			So(e, ShouldBeNil)
			So(st.Name, ShouldEqual, "rest")
			So(st.State, ShouldEqual, "running")
			So(st.etag, ShouldEqual, etagOf(st.Serial))
			So(len(st.Tables), ShouldEqual, 4)

			req, _ := http.NewRequest("GET", srv.URL+"/status", nil)
			req.Header.Set("If-None-Match", st.etag)
			res, e := http.DefaultClient.Do(req)
			So(e, ShouldBeNil)
			res.Body.Close()
			So(res.StatusCode, ShouldEqual, http.StatusNotModified)

			Convey("And a watch sees the next cycle", func() {
				done := make(chan *StatusInfo, 1)
				go func() {
					ns, _ := client.WatchStatus(context.Background(), st)
					done <- ns
				}()
				time.Sleep(20 * time.Millisecond)
				s.Tick()
				select {
				case ns := <-done:
					So(ns, ShouldNotBeNil)
					So(ns.Cycles, ShouldEqual, 1)
				case <-time.After(5 * time.Second):
					So("timeout", ShouldBeEmpty)
				}
			})
		})

		Convey("The log is served", func() {
			l, e := client.GetLog()
			So(e, ShouldBeNil)
			So(len(l.Records), ShouldBeGreaterThan, 0)
		})

		Convey("Unknown commands are refused", func() {
			_, e := client.Command("bogus", "")
			So(e, ShouldNotBeNil)
			So(e.(*Error).Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("With the supervisor running", func() {
			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan struct{})
			go func() {
				s.Serve(ctx)
				close(done)
			}()
			Reset(func() {
				cancel()
				<-done
			})

			Convey("Commands are applied", func() {
				r, e := client.Command("set-max-resets", "5")
				So(e, ShouldBeNil)
				So(r.Command, ShouldEqual, "set-max-resets 5")
				So(s.Snapshot().MaxResets, ShouldEqual, 5)
			})

			Convey("Rejected commands report a conflict", func() {
				_, e := client.Command("enable-appmon", "")
				So(e, ShouldNotBeNil)
				So(e.(*Error).Code, ShouldEqual, http.StatusConflict)
			})
		})

		Convey("Commands after shutdown are unavailable", func() {
			s.Shutdown()
			_, e := client.Command("noop", "")
			So(e, ShouldNotBeNil)
			So(e.(*Error).Code, ShouldEqual, http.StatusServiceUnavailable)
		})

		Convey("Events are published on the bus", func() {
			So(client.PostEvent("Y", 7), ShouldBeNil)
			So(bus.published, ShouldResemble, []hsvisor.Event{{Source: "Y", ID: 7}})

			res, e := http.Post(srv.URL+"/events", mimeJson,
				strings.NewReader(`{"id": 7}`))
			So(e, ShouldBeNil)
			res.Body.Close()
			So(res.StatusCode, ShouldEqual, http.StatusBadRequest)
		})

		Convey("Counters check in", func() {
			c, e := client.CheckIn(hsvisor.KindAppMain, "X")
			So(e, ShouldBeNil)
			So(c.Value, ShouldEqual, 1)
			c, e = client.CheckIn(hsvisor.KindAppMain, "X")
			So(e, ShouldBeNil)
			So(c.Value, ShouldEqual, 2)
			v, ok := counters.ExecutionCount(hsvisor.KindAppMain, "X")
			So(ok, ShouldBeTrue)
			So(v, ShouldEqual, 2)

			_, e = client.CheckIn(hsvisor.KindNone, "X")
			So(e, ShouldNotBeNil)
		})

		Convey("Metrics are exported", func() {
			res, e := http.Get(srv.URL + "/metrics")
			So(e, ShouldBeNil)
			defer res.Body.Close()
			So(res.StatusCode, ShouldEqual, http.StatusOK)
			b, e := io.ReadAll(res.Body)
			So(e, ShouldBeNil)
			So(string(b), ShouldContainSubstring, `hsvisor_resets_max{supervisor="rest"} 3`)
		})
	})
}
