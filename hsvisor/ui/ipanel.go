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

	"github.com/gdamore/hsvisor/hsvisor/util"
)

// InfoPanel shows all of the telemetry of the supervisor.
type InfoPanel struct {
	text *views.TextArea

	Panel
}

func NewInfoPanel(app *App) *InfoPanel {
	p := &InfoPanel{}

	p.Panel.Init(app)
	p.SetTitle("Details")
	p.SetKeys([]string{"[ESC] Main", "[H] Help", "[L] Log"})

	p.text = views.NewTextArea()
	p.text.EnableCursor(false)
	p.text.SetStyle(StyleNormal)
	p.SetContent(p.text)

	return p
}

func (p *InfoPanel) Draw() {
	p.update()
	p.Panel.Draw()
}

func (p *InfoPanel) HandleEvent(ev tcell.Event) bool {
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
			case 'L', 'l':
				app.ShowLog()
				return true
			}
		}
	}
	return p.Panel.HandleEvent(ev)
}

func (p *InfoPanel) update() {
	s, err := p.App().Status()
	if s == nil {
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
	p.SetLevel(worst(statusRows(&s.Snapshot)))
	if err != nil {
		p.SetStatus(fmt.Sprintf("Stale: %v", err))
	} else {
		p.SetStatus(fmt.Sprintf("Serial %d", s.Serial))
	}
	p.text.SetLines(util.StatusLines(&s.Snapshot))
}
