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
	"fmt"

	"github.com/gdamore/tcell"
	"github.com/gdamore/tcell/views"

	"github.com/gdamore/hsvisor"
	"github.com/gdamore/hsvisor/hsvisor/util"
)

// LogPanel shows the notification log, oldest first.
type LogPanel struct {
	text *views.TextArea

	Panel
}

func NewLogPanel(app *App) *LogPanel {
	p := &LogPanel{}

	p.Panel.Init(app)
	p.SetTitle("Notifications")

	// We don't change the keybar, so set it once
	p.SetKeys([]string{"[ESC] Main", "[H] Help", "[I] Info"})

	p.text = views.NewTextArea()
	p.text.EnableCursor(false)
	p.text.SetStyle(StyleNormal)
	p.SetContent(p.text)

	return p
}

func (p *LogPanel) Draw() {
	p.update()
	p.Panel.Draw()
}

func (p *LogPanel) HandleEvent(ev tcell.Event) bool {
	app := p.App()
	switch ev := ev.(type) {
	case *tcell.EventKey:
		switch ev.Key() {
		case tcell.KeyEsc:
			app.ShowMain()
			return true
		case tcell.KeyF1:
			app.ShowHelp()
			return true
		case tcell.KeyRune:
			switch ev.Rune() {
			case 'Q', 'q':
				app.ShowMain()
				return true
			case 'H', 'h':
				app.ShowHelp()
				return true
			case 'I', 'i':
				app.ShowInfo()
				return true
			}
		}
	}
	return p.Panel.HandleEvent(ev)
}

// logLines renders records oldest first, and the level of the most
// severe one.
func logLines(recs []hsvisor.LogRecord) ([]string, level) {
	recs = append([]hsvisor.LogRecord{}, recs...)
	util.SortRecords(recs)
	lvl := levelNormal
	lines := make([]string, 0, len(recs))
	for _, r := range recs {
		lines = append(lines, util.FormatRecord(r))
		switch r.Severity {
		case hsvisor.SevCritical.String():
			lvl = levelError
		case hsvisor.SevError.String():
			if lvl < levelWarn {
				lvl = levelWarn
			}
		}
	}
	return lines, lvl
}

func (p *LogPanel) update() {
	l, err := p.App().Log()
	if l == nil {
		if err != nil {
			p.SetLevel(levelError)
			p.SetStatus(fmt.Sprintf("No data: %v", err))
		} else {
			p.SetLevel(levelNormal)
			p.SetStatus("Loading ...")
		}
		p.text.SetLines([]string{""})
		return
	}
	lines, lvl := logLines(l.Records)
	p.SetLevel(lvl)
	if err != nil {
		p.SetStatus(fmt.Sprintf("Stale: %v", err))
	} else {
		p.SetStatus(fmt.Sprintf("%d records", len(lines)))
	}
	p.text.SetLines(lines)
}
