// Copyright 2016 The Govisor Authors
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

package ui

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gdamore/tcell"
	"github.com/gdamore/tcell/views"
	"github.com/rs/zerolog"

	"github.com/gdamore/hsvisor/rest"
)

// App is the terminal user interface for one hsvisord.  Telemetry and
// the notification log are kept current by long polls in the
// background; panels read the latest copies when they draw.
type App struct {
	app    *views.Application
	view   views.View
	panel  views.Widget
	info   *InfoPanel
	help   *HelpPanel
	log    *LogPanel
	main   *MainPanel
	client *rest.Client
	logger zerolog.Logger
	ctx    context.Context
	cancel context.CancelFunc

	status  *rest.StatusInfo
	err     error
	logInfo *rest.LogInfo
	logErr  error
	note    string
	noteAt  time.Time
	mx      sync.Mutex

	views.WidgetWatchers
}

func (a *App) show(w views.Widget) {
	if w != a.panel {
		a.panel.SetView(nil)
		a.panel = w
	}
	a.panel.SetView(a.view)
	a.panel.Resize()
	a.app.Refresh()
}

func (a *App) ShowHelp() {
	a.show(a.help)
}

func (a *App) ShowInfo() {
	a.show(a.info)
}

func (a *App) ShowLog() {
	a.show(a.log)
}

func (a *App) ShowMain() {
	a.show(a.main)
}

// Command runs an operator command.  The outcome is shown in the status
// bar of the main panel once the server answers.
func (a *App) Command(name string) {
	a.logger.Info().Str("command", name).Msg("sending command")
	go func() {
		note := name + ": accepted"
		if _, e := a.client.Command(name, ""); e != nil {
			note = fmt.Sprintf("%s: %v", name, e)
			a.logger.Warn().Err(e).Str("command", name).Msg("command failed")
		}
		a.mx.Lock()
		a.note = note
		a.noteAt = time.Now()
		a.mx.Unlock()
		a.app.Update()
	}()
}

// Note returns the outcome of the last command, for a few seconds after
// it arrived.
func (a *App) Note() string {
	a.mx.Lock()
	defer a.mx.Unlock()
	if time.Since(a.noteAt) > 5*time.Second {
		return ""
	}
	return a.note
}

func (a *App) Quit() {
	a.cancel()
	a.app.Quit()
}

func (a *App) HandleEvent(ev tcell.Event) bool {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		switch ev.Key() {
		case tcell.KeyCtrlC:
			a.Quit()
			return true
		case tcell.KeyCtrlL:
			a.app.Refresh()
			return true
		}
	}
	if a.panel != nil {
		return a.panel.HandleEvent(ev)
	}
	return false
}

func (a *App) Draw() {
	if a.panel != nil {
		a.panel.Draw()
	}
}

func (a *App) Resize() {
	if a.panel != nil {
		a.panel.Resize()
	}
}

func (a *App) SetView(view views.View) {
	a.view = view
	if a.panel != nil {
		a.panel.SetView(view)
	}
}

func (a *App) Size() (int, int) {
	if a.panel != nil {
		return a.panel.Size()
	}
	return 0, 0
}

func (a *App) GetAppName() string {
	return "hsvisor"
}

// Status returns the latest telemetry, or the error that prevented
// getting it.
func (a *App) Status() (*rest.StatusInfo, error) {
	a.mx.Lock()
	defer a.mx.Unlock()
	return a.status, a.err
}

// Log returns the latest copy of the notification log.
func (a *App) Log() (*rest.LogInfo, error) {
	a.mx.Lock()
	defer a.mx.Unlock()
	return a.logInfo, a.logErr
}

func (a *App) refresh() {
	var last *rest.StatusInfo
	for {
		s, e := a.client.WatchStatus(a.ctx, last)
		if a.ctx.Err() != nil {
			return
		}
		a.mx.Lock()
		if e == nil {
			a.status = s
			last = s
		}
		a.err = e
		a.mx.Unlock()
		a.app.Update()
		if e != nil {
			a.logger.Debug().Err(e).Msg("status poll")
			last = nil
			time.Sleep(2 * time.Second)
		}
	}
}

func (a *App) refreshLog() {
	var last *rest.LogInfo
	for {
		l, e := a.client.WatchLog(a.ctx, last)
		if a.ctx.Err() != nil {
			return
		}
		a.mx.Lock()
		if e == nil {
			a.logInfo = l
			last = l
		}
		a.logErr = e
		a.mx.Unlock()
		a.app.Update()
		if e != nil {
			a.logger.Debug().Err(e).Msg("log poll")
			last = nil
			time.Sleep(2 * time.Second)
		}
	}
}

func NewApp(client *rest.Client, server string, logger zerolog.Logger) *App {
	app := &App{
		app:    &views.Application{},
		client: client,
		logger: logger,
	}
	app.ctx, app.cancel = context.WithCancel(context.Background())
	app.info = NewInfoPanel(app)
	app.help = NewHelpPanel(app)
	app.log = NewLogPanel(app)
	app.main = NewMainPanel(app, server)
	app.panel = app.main
	return app
}

// Run shows the main panel and processes input until the user quits.
func (a *App) Run() error {
	a.logger.Info().Msg("starting user interface")
	a.app.SetRootWidget(a)
	a.ShowMain()
	go a.refresh()
	go a.refreshLog()
	go func() {
		// Durations on screen move even when nothing else does.
		t := time.NewTicker(time.Second)
		defer t.Stop()
		for {
			select {
			case <-a.ctx.Done():
				return
			case <-t.C:
				a.app.Update()
			}
		}
	}()
	e := a.app.Run()
	a.cancel()
	return e
}
