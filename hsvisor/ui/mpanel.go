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

// row is one line of the main panel.  The command fields name the
// operator commands the row answers to; empty means not applicable.
type row struct {
	name    string
	state   string
	detail  string
	level   level
	on      bool
	enable  string
	disable string
	clear   string
}

// command returns the operator command for a key pressed on the row,
// or "" when the key does nothing there.
func (r row) command(key rune) string {
	switch key {
	case 'E', 'e':
		if !r.on {
			return r.enable
		}
	case 'D', 'd':
		if r.on {
			return r.disable
		}
	case 'C', 'c':
		return r.clear
	}
	return ""
}

func (r row) String() string {
	return fmt.Sprintf("%-12s %-12s %s", r.name, r.state, r.detail)
}

func autoOff(s *hsvisor.Snapshot, table string) bool {
	for _, t := range s.Tables {
		if t.Table == table {
			return t.AutoOff
		}
	}
	return false
}

func monitorRow(name string, on bool, auto bool, detail string) row {
	r := row{
		name:    name,
		on:      on,
		detail:  detail,
		enable:  "enable-" + name,
		disable: "disable-" + name,
	}
	switch {
	case on:
		r.state = "enabled"
		r.level = levelGood
	case auto:
		r.state = "auto-off"
		r.level = levelError
	default:
		r.state = "disabled"
		r.level = levelWarn
	}
	return r
}

// statusRows lays the telemetry out as the rows of the main panel: the
// monitors, the reset budget, then one row per table.
func statusRows(s *hsvisor.Snapshot) []row {
	rows := []row{
		monitorRow("appmon", s.AppMonEnabled,
			autoOff(s, hsvisor.AppMonTableID.String()),
			util.FormatEnables(s.AppMonEnables, hsvisor.MaxAppMonEntries)),
		monitorRow("eventmon", s.EventMonEnabled,
			autoOff(s, hsvisor.EventMonTableID.String()),
			fmt.Sprintf("%d observed, %d unresolved",
				s.EventsObserved, s.UnresolvedEvents)),
		monitorRow("aliveness", s.AlivenessEnabled, false, ""),
		monitorRow("cpuhog", s.HoggingEnabled, false,
			fmt.Sprintf("%s now, %s avg, %s peak",
				util.FormatUtil(s.UtilCurrent),
				util.FormatUtil(s.UtilAverage),
				util.FormatUtil(s.UtilPeak))),
	}

	resets := row{
		name:   "resets",
		state:  fmt.Sprintf("%d of %d", s.ResetsPerformed, s.MaxResets),
		detail: fmt.Sprintf("%d suppressed", s.ResetsDenied),
		on:     true,
		clear:  "reset-resets-performed",
		level:  levelGood,
	}
	if s.ResetsPerformed >= s.MaxResets {
		resets.level = levelError
	} else if s.ResetsPerformed > 0 {
		resets.level = levelWarn
	}
	rows = append(rows, resets)

	for _, t := range s.Tables {
		r := row{
			name:   t.Table,
			detail: util.TableState(t),
			on:     t.Loaded,
		}
		switch {
		case t.Failing:
			r.state = "failing"
			r.level = levelError
		case t.Rejected:
			r.state = "rejected"
			r.level = levelWarn
		case t.Loaded:
			r.state = "loaded"
			r.level = levelGood
		default:
			r.state = "missing"
			r.level = levelNormal
		}
		rows = append(rows, r)
	}
	return rows
}

func worst(rows []row) level {
	l := levelNormal
	for _, r := range rows {
		if r.level > l {
			l = r.level
		}
	}
	return l
}

// MainPanel lists the monitors, the reset budget and the tables of the
// supervisor, one per line, colored by health.
type MainPanel struct {
	content  *views.CellView
	rows     []row
	selected string
	curx     int
	cury     int
	width    int
	height   int

	Panel
}

// mainModel provides the model for a CellView.
type mainModel struct {
	m *MainPanel
}

func NewMainPanel(app *App, server string) *MainPanel {
	m := &MainPanel{}

	m.Panel.Init(app)
	m.content = views.NewCellView()
	m.SetContent(m.content)

	m.content.SetModel(&mainModel{m})
	m.content.SetStyle(StyleNormal)

	m.SetTitle(server)
	m.SetKeys([]string{"[Q] Quit"})

	return m
}

func (m *MainPanel) Draw() {
	m.update()
	m.Panel.Draw()
}

func (m *MainPanel) current() *row {
	for i := range m.rows {
		if m.rows[i].name == m.selected {
			return &m.rows[i]
		}
	}
	return nil
}

func (m *MainPanel) HandleEvent(ev tcell.Event) bool {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		switch ev.Key() {
		case tcell.KeyEsc:
			m.unselect()
			return true
		case tcell.KeyF1:
			m.App().ShowHelp()
			return true
		case tcell.KeyEnter:
			m.App().ShowInfo()
			return true
		case tcell.KeyRune:
			switch ev.Rune() {
			case 'Q', 'q':
				m.App().Quit()
				return true
			case 'H', 'h':
				m.App().ShowHelp()
				return true
			case 'I', 'i':
				m.App().ShowInfo()
				return true
			case 'L', 'l':
				m.App().ShowLog()
				return true
			case 'Z', 'z':
				m.App().Command("reset-counters")
				return true
			case 'E', 'e', 'D', 'd', 'C', 'c':
				if r := m.current(); r != nil {
					if cmd := r.command(ev.Rune()); cmd != "" {
						m.App().Command(cmd)
						return true
					}
				}
			}
		}
	}
	return m.Panel.HandleEvent(ev)
}

func (model *mainModel) GetCell(x, y int) (rune, tcell.Style, []rune, int) {
	m := model.m

	if y < 0 || y >= len(m.rows) {
		return ' ', StyleNormal, nil, 1
	}
	line := m.rows[y].String()
	ch := ' '
	if x >= 0 && x < len(line) {
		ch = rune(line[x])
	}
	style := m.rows[y].level.style()
	if m.rows[y].name == m.selected {
		style = style.Reverse(true)
	}
	return ch, style, nil, 1
}

func (model *mainModel) GetBounds() (int, int) {
	m := model.m
	return m.width, m.height
}

func (model *mainModel) GetCursor() (int, int, bool, bool) {
	m := model.m
	return m.curx, m.cury, true, false
}

func (model *mainModel) MoveCursor(offx, offy int) {
	m := model.m
	m.curx += offx
	m.cury += offy
	m.updateCursor(true)
}

func (model *mainModel) SetCursor(x, y int) {
	m := model.m
	m.curx = x
	m.cury = y
	m.updateCursor(true)
}

func (m *MainPanel) unselect() {
	m.curx = 0
	m.cury = 0
	m.updateCursor(false)
}

func (m *MainPanel) updateCursor(selected bool) {
	if m.curx > m.width-1 {
		m.curx = m.width - 1
	}
	if m.cury > m.height-1 {
		m.cury = m.height - 1
	}
	if m.curx < 0 {
		m.curx = 0
	}
	if m.cury < 0 {
		m.cury = 0
	}
	if selected && m.height > 0 {
		if m.selected == "" {
			m.curx = 0
			m.cury = 0
		}
		m.selected = m.rows[m.cury].name
	} else {
		m.selected = ""
	}
}

// update refreshes the rows from the latest telemetry.  It runs on the
// event loop, as part of Draw.
func (m *MainPanel) update() {
	s, err := m.App().Status()
	if s == nil {
		m.rows = nil
		m.width, m.height = 0, 0
		if err != nil {
			m.SetLevel(levelError)
			m.SetStatus(fmt.Sprintf("Cannot load status: %v", err))
		} else {
			m.SetLevel(levelNormal)
			m.SetStatus("Loading ...")
		}
		m.SetKeys([]string{"[Q] Quit", "[H] Help", "[L] Log"})
		return
	}

	m.rows = statusRows(&s.Snapshot)
	m.height = len(m.rows)
	m.width = 0
	for i, r := range m.rows {
		if n := len(r.String()); n > m.width {
			m.width = n
		}
		if r.name == m.selected {
			m.cury = i
		}
	}

	lvl := worst(m.rows)
	status := fmt.Sprintf("%s %s  cycle %d  cpu %s  resets %d/%d",
		s.Name, s.State, s.Cycles, util.FormatUtil(s.UtilCurrent),
		s.ResetsPerformed, s.MaxResets)
	if err != nil {
		status = fmt.Sprintf("%s  (stale: %v)", status, err)
		lvl = levelWarn
	}
	if note := m.App().Note(); note != "" {
		status = note
	}
	m.SetLevel(lvl)
	m.SetStatus(status)

	words := []string{"[Q] Quit", "[H] Help", "[I] Info", "[L] Log", "[Z] Zero"}
	if r := m.current(); r != nil {
		if r.command('E') != "" {
			words = append(words, "[E] Enable")
		}
		if r.command('D') != "" {
			words = append(words, "[D] Disable")
		}
		if r.command('C') != "" {
			words = append(words, "[C] Clear")
		}
	}
	m.SetKeys(words)
}
