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

// Command hsvisor implements a client application that communicates with
// hsvisord.  It uses subcommands:
//
//	status              - show supervisor telemetry
//	watch               - show telemetry every time it changes
//	log [-f]            - show (and follow) the notification log
//	cmd <name> [value]  - run an operator command
//	commands            - list operator commands
//	event <src> <id>    - announce an event
//	checkin <kind> <n>  - advance an execution counter
//	ui                  - run the terminal user interface
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/gdamore/hsvisor"
	"github.com/gdamore/hsvisor/hsvisor/util"
	"github.com/gdamore/hsvisor/rest"
)

var addr string = "http://127.0.0.1:8321"
var auth string = ""

func newClient() (*rest.Client, error) {
	client := rest.NewClient(nil, addr)
	if auth != "" {
		a := strings.SplitN(auth, ":", 2)
		if len(a) != 2 {
			return nil, fmt.Errorf("bad user:pass supplied")
		}
		client.SetAuth(a[0], a[1])
	}
	return client, nil
}

func showStatus(s *rest.StatusInfo) {
	for _, l := range util.StatusLines(&s.Snapshot) {
		fmt.Println(l)
	}
}

func main() {
	root := &cobra.Command{
		Use:          "hsvisor",
		Short:        "Client for hsvisord",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&addr, "address", "a", addr,
		"hsvisord address")
	root.PersistentFlags().StringVarP(&auth, "user", "u", auth,
		"user:pass authentication")

	root.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show supervisor telemetry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, e := newClient()
			if e != nil {
				return e
			}
			s, e := client.Status()
			if e != nil {
				return e
			}
			showStatus(s)
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "watch",
		Short: "Show telemetry whenever it changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, e := newClient()
			if e != nil {
				return e
			}
			var last *rest.StatusInfo
			for {
				s, e := client.WatchStatus(context.Background(), last)
				if e != nil {
					return e
				}
				if s != last {
					fmt.Println()
					showStatus(s)
				}
				last = s
			}
		},
	})

	var follow bool
	logCmd := &cobra.Command{
		Use:   "log",
		Short: "Show the notification log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, e := newClient()
			if e != nil {
				return e
			}
			l, e := client.GetLog()
			if e != nil {
				return e
			}
			var lastId int64
			show := func(l *rest.LogInfo) {
				util.SortRecords(l.Records)
				for _, r := range l.Records {
					if r.Id > lastId {
						fmt.Println(util.FormatRecord(r))
						lastId = r.Id
					}
				}
			}
			show(l)
			for follow {
				if l, e = client.WatchLog(context.Background(), l); e != nil {
					return e
				}
				show(l)
			}
			return nil
		},
	}
	logCmd.Flags().BoolVarP(&follow, "follow", "f", false, "follow the log")
	root.AddCommand(logCmd)

	root.AddCommand(&cobra.Command{
		Use:   "commands",
		Short: "List operator commands",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			for _, n := range hsvisor.CommandNames() {
				fmt.Println(n)
			}
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "cmd <name> [value]",
		Short: "Run an operator command",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, e := newClient()
			if e != nil {
				return e
			}
			value := ""
			if len(args) == 2 {
				value = args[1]
			}
			r, e := client.Command(args[0], value)
			if e != nil {
				return e
			}
			fmt.Printf("%s: accepted\n", r.Command)
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "event <source> <id>",
		Short: "Announce an event",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, e := strconv.ParseUint(args[1], 0, 16)
			if e != nil {
				return fmt.Errorf("bad event id %q", args[1])
			}
			client, e := newClient()
			if e != nil {
				return e
			}
			return client.PostEvent(args[0], uint16(id))
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "checkin <kind> <name>",
		Short: "Advance an execution counter",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, ok := hsvisor.ParseResourceKind(args[0])
			if !ok {
				return fmt.Errorf("unknown resource kind %q", args[0])
			}
			client, e := newClient()
			if e != nil {
				return e
			}
			c, e := client.CheckIn(kind, args[1])
			if e != nil {
				return e
			}
			fmt.Printf("%s %s: %d\n", c.Kind, c.Name, c.Value)
			return nil
		},
	})

	var logfile string
	uiCmd := &cobra.Command{
		Use:   "ui",
		Short: "Run the terminal user interface",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, e := newClient()
			if e != nil {
				return e
			}
			logger := zerolog.Nop()
			if logfile != "" {
				f, e := os.OpenFile(logfile,
					os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
				if e != nil {
					return e
				}
				defer f.Close()
				logger = zerolog.New(f).With().Timestamp().Logger()
			}
			return doUI(client, addr, logger)
		},
	}
	uiCmd.Flags().StringVarP(&logfile, "logfile", "l", "",
		"log user interface activity to this file")
	root.AddCommand(uiCmd)

	if e := root.Execute(); e != nil {
		os.Exit(1)
	}
}
