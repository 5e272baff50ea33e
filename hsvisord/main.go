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

// Command hsvisord hosts a health and safety supervisor.  It watches the
// applications listed in its application directory, using the tables in
// its table directory, and serves its command and telemetry interface
// over HTTP.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/thejerf/suture/v4"
	"gopkg.in/yaml.v3"

	"github.com/gdamore/hsvisor"
	"github.com/gdamore/hsvisor/rest"
)

var configPath string

// counterSources chains check-ins ahead of process CPU time, which is
// only consulted when configured.
func counterSources(cfg *DaemonConfig, registry *hsvisor.CounterRegistry,
	lc *hsvisor.ProcessLifecycle, logger zerolog.Logger) hsvisor.CounterChain {
	counters := hsvisor.CounterChain{registry}
	if cfg.CPUTimeCounters {
		counters = append(counters, hsvisor.ProcessCounters{Lifecycle: lc})
		logger.Warn().Msg("CPU time counts as progress; idle applications look frozen")
	}
	return counters
}

const daemonHelp = `hsvisord runs the health and safety supervisor over the table files
in table_dir and the applications described in app_dir.

Applications show progress by checking in (POST /counters/{kind}/{name}).
With cpu_time_counters set, CPU time consumed by a managed process also
counts.  A healthy process that sleeps or blocks on I/O for longer than
its monitor cycle count then looks frozen and is acted on, so enable it
only for applications that are always busy.`

func main() {
	root := &cobra.Command{
		Use:          "hsvisord",
		Short:        "Health and safety supervisor daemon",
		Long:         daemonHelp,
		SilenceUsage: true,
		RunE:         run,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"configuration file (YAML)")

	check := &cobra.Command{
		Use:   "check",
		Short: "Validate the table files and exit",
		RunE:  runCheck,
	}
	root.AddCommand(check)

	if e := root.Execute(); e != nil {
		os.Exit(1)
	}
}

// httpService runs the HTTP server under the supervision tree.
type httpService struct {
	srv    *http.Server
	logger zerolog.Logger
}

func (h *httpService) Serve(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		errc <- h.srv.ListenAndServe()
	}()
	h.logger.Info().Str("addr", h.srv.Addr).Msg("listening")
	select {
	case e := <-errc:
		return e
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		h.srv.Shutdown(sctx)
		return ctx.Err()
	}
}

func (h *httpService) String() string {
	return "http:" + h.srv.Addr
}

func loadApps(dir string, lc *hsvisor.ProcessLifecycle, logger zerolog.Logger) {
	if dir == "" {
		return
	}
	files, e := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if e != nil {
		logger.Error().Err(e).Str("dir", dir).Msg("scan applications")
		return
	}
	for _, fname := range files {
		b, e := os.ReadFile(fname)
		if e != nil {
			logger.Error().Err(e).Str("file", fname).Msg("read manifest")
			continue
		}
		var m hsvisor.ProcessManifest
		if e := yaml.Unmarshal(b, &m); e != nil {
			logger.Error().Err(e).Str("file", fname).Msg("parse manifest")
			continue
		}
		p, e := hsvisor.NewAppProcess(m, logger)
		if e != nil {
			logger.Error().Err(e).Str("file", fname).Msg("load manifest")
			continue
		}
		if e := lc.Add(p); e != nil {
			logger.Error().Err(e).Str("file", fname).Msg("add application")
		}
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, e := loadConfig(configPath)
	if e != nil {
		return e
	}
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)

	store, e := hsvisor.OpenBadgerStore(cfg.StoreDir)
	if e != nil {
		return e
	}
	defer store.Close()

	pubsub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: int64(cfg.BusDepth),
	}, busLogger{l: logger.With().Str("component", "bus").Logger()})
	defer pubsub.Close()
	bus := hsvisor.NewWatermillBus(pubsub, pubsub, cfg.ActionTopic, cfg.BusDepth)
	defer bus.Close()

	tables := hsvisor.NewFileTables(cfg.TableDir, logger)

	lc := hsvisor.NewProcessLifecycle(cfg.ResetCmd, logger)
	loadApps(cfg.AppDir, lc, logger)
	registry := hsvisor.NewCounterRegistry()
	counters := counterSources(cfg, registry, lc, logger)

	tree := suture.New("hsvisord", suture.Spec{
		EventHook: treeHook(logger.With().Str("component", "tree").Logger()),
	})

	var idle hsvisor.IdleCounter = &hsvisor.HostIdle{}
	if cfg.IdleSource == "spinner" {
		w := &hsvisor.IdleWord{}
		idle = w
		tree.Add(hsvisor.IdleSpinner{Word: w})
	}

	sup, e := hsvisor.NewSupervisor(cfg.Engine, hsvisor.Collaborators{
		Tables:    tables,
		Store:     store,
		Bus:       bus,
		Lifecycle: lc,
		Counters:  counters,
		Idle:      idle,
		Aliveness: os.Stdout,
	})
	if e != nil {
		return e
	}
	sup.SetLogger(logger)
	defer sup.Shutdown()

	reg := prometheus.NewRegistry()
	reg.MustRegister(hsvisor.NewCollector(sup), collectors.NewGoCollector())

	handler := rest.NewHandler(sup, rest.Options{
		Events:     bus,
		EventTopic: cfg.Engine.EventTopic,
		Counters:   registry,
		Registry:   reg,
	})

	tree.Add(sup)
	tree.Add(tables)
	tree.Add(&httpService{
		srv:    &http.Server{Addr: cfg.Listen, Handler: handler},
		logger: logger,
	})

	if cfg.StartApps {
		if e := lc.StartAll(); e != nil {
			logger.Error().Err(e).Msg("start applications")
		}
	}
	defer lc.StopAll()

	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer stop()

	e = tree.Serve(ctx)
	logger.Info().Err(e).Msg("shutting down")
	return nil
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, e := loadConfig(configPath)
	if e != nil {
		return e
	}
	logger := newLogger("error", cfg.LogFormat)
	tables := hsvisor.NewFileTables(cfg.TableDir, logger)

	bad := 0
	report := func(id hsvisor.TableID, e error) {
		if e != nil {
			bad++
			fmt.Printf("%-12s %v\n", id, e)
			return
		}
		fmt.Printf("%-12s ok\n", id)
	}
	{
		recs, gen, e := tables.LoadAppMon()
		if e == nil {
			_, e = hsvisor.ValidateAppMon(recs, gen)
		}
		report(hsvisor.AppMonTableID, e)
	}
	{
		recs, gen, e := tables.LoadEventMon()
		if e == nil {
			_, e = hsvisor.ValidateEventMon(recs, gen)
		}
		report(hsvisor.EventMonTableID, e)
	}
	{
		recs, gen, e := tables.LoadExecCounters()
		if e == nil {
			_, e = hsvisor.ValidateExecCounters(recs, gen)
		}
		report(hsvisor.ExecCounterTableID, e)
	}
	{
		recs, gen, e := tables.LoadMsgActions()
		if e == nil {
			_, e = hsvisor.ValidateMsgActions(recs, gen)
		}
		report(hsvisor.MsgActionTableID, e)
	}
	if bad != 0 {
		return fmt.Errorf("%d table(s) invalid", bad)
	}
	return nil
}
