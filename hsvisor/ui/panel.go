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
	"sync"

	"github.com/gdamore/tcell"
	"github.com/gdamore/tcell/views"
)

// Content styles, by level.
var (
	StyleNormal = tcell.StyleDefault.Foreground(tcell.ColorSilver).Background(tcell.ColorBlack)
	StyleGood   = tcell.StyleDefault.Foreground(tcell.ColorGreen).Background(tcell.ColorBlack)
	StyleWarn   = tcell.StyleDefault.Foreground(tcell.ColorYellow).Background(tcell.ColorBlack)
	StyleError  = tcell.StyleDefault.Foreground(tcell.ColorMaroon).Background(tcell.ColorBlack)
)

// level grades a line of content, and a whole screen by its worst line.
type level int

const (
	levelNormal level = iota
	levelGood
	levelWarn
	levelError
)

func (l level) style() tcell.Style {
	switch l {
	case levelGood:
		return StyleGood
	case levelWarn:
		return StyleWarn
	case levelError:
		return StyleError
	}
	return StyleNormal
}

// Panel is a views.Panel with our title bar on top, the status bar
// beneath it, and the key bar at the bottom.
type Panel struct {
	tb   *TitleBar
	sb   *StatusBar
	kb   *KeyBar
	once sync.Once
	app  *App

	views.Panel
}

func (p *Panel) SetTitle(title string) {
	p.tb.SetCenter(title)
}

func (p *Panel) SetKeys(words []string) {
	p.kb.SetKeys(words)
}

func (p *Panel) SetStatus(status string) {
	p.sb.SetText(status)
}

// SetLevel colors the status bar.
func (p *Panel) SetLevel(l level) {
	switch l {
	case levelGood:
		p.sb.SetGood()
	case levelWarn:
		p.sb.SetWarn()
	case levelError:
		p.sb.SetError()
	default:
		p.sb.SetNormal()
	}
}

func (p *Panel) Init(app *App) {
	p.once.Do(func() {
		p.app = app

		p.tb = NewTitleBar()
		p.tb.SetRight(app.GetAppName())
		p.tb.SetCenter(" ")
		p.kb = NewKeyBar()
		p.sb = NewStatusBar()

		p.Panel.SetTitle(p.tb)
		p.Panel.SetMenu(p.sb)
		p.Panel.SetStatus(p.kb)
	})
}

func (p *Panel) App() *App {
	return p.app
}
