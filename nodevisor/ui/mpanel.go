// Copyright 2026 The Nodevisor Authors
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
	"net/http"

	"github.com/gdamore/tcell/v2"
	"github.com/gdamore/tcell/v2/views"

	"github.com/gdamore/nodevisor"
	"github.com/gdamore/nodevisor/nodevisor/util"
	"github.com/gdamore/nodevisor/rest"
)

var (
	StyleNormal = tcell.StyleDefault.
			Foreground(tcell.ColorSilver).
			Background(tcell.ColorBlack)
	StyleGood = tcell.StyleDefault.
			Foreground(tcell.ColorGreen).
			Background(tcell.ColorBlack)
	StyleWarn = tcell.StyleDefault.
			Foreground(tcell.ColorYellow).
			Background(tcell.ColorBlack)
	StyleError = tcell.StyleDefault.
			Foreground(tcell.ColorMaroon).
			Background(tcell.ColorBlack)
)

func levelStyle(l util.Level) tcell.Style {
	switch l {
	case util.LevelGood:
		return StyleGood
	case util.LevelWarn:
		return StyleWarn
	case util.LevelError:
		return StyleError
	}
	return StyleNormal
}

// MainPanel implements a Widget as a Panel, but provides the data
// model and handling for the content area, using data loaded from the
// nodevisord REST API.
type MainPanel struct {
	content  *views.CellView
	selected *rest.NodeInfo
	nrunning int
	nsyncing int
	nready   int
	nfailed  int
	width    int
	height   int
	curx     int
	cury     int
	lines    []string
	styles   []tcell.Style
	items    []rest.NodeInfo

	Panel
}

// mainModel provides the model for a CellArea.
type mainModel struct {
	m *MainPanel
}

func NewMainPanel(app *App) *MainPanel {
	m := &MainPanel{}

	m.Panel.Init(app, app.url)
	m.content = views.NewCellView()
	m.SetContent(m.content)

	m.content.SetModel(&mainModel{m})
	m.content.SetStyle(StyleNormal)

	m.SetTitle("Nodes")
	m.SetKeys([]string{"[Q] Quit"})

	return m
}

func (m *MainPanel) Draw() {
	m.update()
	m.Panel.Draw()
}

// running reports whether any targeted node still has a process.
func (m *MainPanel) running(t nodevisor.Target) bool {
	for _, n := range m.items {
		if t == nodevisor.TargetIndexer && n.Role != nodevisor.Indexer {
			continue
		}
		if n.State == nodevisor.StateRunning {
			return true
		}
	}
	return false
}

func canLaunch(n *rest.NodeInfo) bool {
	switch n.State {
	case nodevisor.StateIdle, nodevisor.StateStopped:
		return true
	}
	return false
}

func (m *MainPanel) HandleEvent(ev tcell.Event) bool {
	app := m.App()
	switch ev := ev.(type) {
	case *tcell.EventKey:
		app.ClearNotice()
		switch ev.Key() {
		case tcell.KeyEsc:
			m.unselect()
			return true
		case tcell.KeyF1:
			app.ShowHelp()
			return true
		case tcell.KeyEnter:
			if m.selected != nil {
				app.ShowInfo(m.selected.Role)
				return true
			}
		case tcell.KeyRune:
			switch ev.Rune() {
			case 'Q', 'q':
				app.Quit()
				return true
			case 'H', 'h':
				app.ShowHelp()
				return true
			case 'I', 'i':
				if m.selected != nil {
					app.ShowInfo(m.selected.Role)
					return true
				}
			case 'L', 'l':
				if m.selected != nil {
					app.ShowLog(m.selected.Role, "")
					return true
				}
			case 'R', 'r':
				if m.selected != nil && canLaunch(m.selected) {
					app.Launch(m.selected.Role)
					return true
				}
			case 'S', 's':
				if m.running(nodevisor.TargetIndexer) {
					app.Shutdown(nodevisor.TargetIndexer)
					return true
				}
			case 'X', 'x':
				if m.running(nodevisor.TargetBoth) {
					app.Shutdown(nodevisor.TargetBoth)
					return true
				}
			}
		}
	}
	return m.Panel.HandleEvent(ev)
}

// Model items
func (model *mainModel) GetCell(x, y int) (rune, tcell.Style, []rune, int) {
	var ch rune
	var style tcell.Style

	m := model.m

	if y < 0 || y >= len(m.lines) {
		return ch, StyleNormal, nil, 1
	}

	if x >= 0 && x < len(m.lines[y]) {
		ch = rune(m.lines[y][x])
	} else {
		ch = ' '
	}
	style = m.styles[y]
	if m.selected != nil && m.items[y].Role == m.selected.Role {
		style = style.Reverse(true)
	}
	return ch, style, nil, 1
}

func (model *mainModel) GetBounds() (int, int) {
	// This assumes that all content is displayable runes of width 1.
	m := model.m
	y := len(m.lines)
	x := 0
	for _, l := range m.lines {
		if x < len(l) {
			x = len(l)
		}
	}
	return x, y
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
	m.cury = 0
	m.curx = 0
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
		if m.selected == nil {
			m.curx = 0
			m.cury = 0
		}
		m.selected = &m.items[m.cury]
	} else {
		m.selected = nil
	}
}

func formatNode(n *rest.NodeInfo) string {
	return fmt.Sprintf("%-10s %-10s %-22s %10s   %s",
		n.Role, util.Status(n), util.Progress(n),
		util.FormatDuration(util.Since(n)), n.Status)
}

// update is called to update content, e.g. in response to Draw() or
// as part of another update.  It is called with the AppLock held.
func (m *MainPanel) update() {

	items, err := m.App().GetItems()
	m.items = items

	// preserve selected item
	if sel := m.selected; sel != nil {
		m.selected = nil
		for i := range m.items {
			if m.items[i].Role == sel.Role {
				m.selected = &m.items[i]
				m.cury = i
			}
		}
	}
	if err != nil {
		if e, ok := err.(*rest.Error); ok && e.Code == http.StatusUnauthorized {
			m.App().ShowAuth()
			return
		}
		m.SetLevel(util.LevelError)
		m.SetStatus(fmt.Sprintf("Cannot load nodes: %v", err))
		m.lines = []string{}
		m.styles = []tcell.Style{}
		m.items = nil
		m.selected = nil
		m.height = 0
		m.SetKeys([]string{"[Q] Quit", "[H] Help"})
		return
	}

	lines := make([]string, 0, len(m.items))
	styles := make([]tcell.Style, 0, len(m.items))

	m.nrunning = 0
	m.nsyncing = 0
	m.nready = 0
	m.nfailed = 0

	m.height = 0
	m.width = 0

	for i := range items {
		n := &items[i]
		line := formatNode(n)

		if len(line) > m.width {
			m.width = len(line)
		}
		m.height++

		lines = append(lines, line)
		l := util.Grade(n)
		styles = append(styles, levelStyle(l))
		switch {
		case l == util.LevelError:
			m.nfailed++
		case n.Readiness.Ready():
			m.nready++
			m.nrunning++
		case n.State == nodevisor.StateRunning:
			m.nrunning++
			if n.Sync.State == nodevisor.SyncSyncing {
				m.nsyncing++
			}
		}
	}

	m.lines = lines
	m.styles = styles

	if !m.SetNotice() {
		m.SetStatus(fmt.Sprintf(
			"%6d Running %6d Syncing %6d Ready %6d Failed",
			m.nrunning, m.nsyncing, m.nready, m.nfailed))

		switch {
		case m.nfailed > 0:
			m.SetLevel(util.LevelError)
		case m.nready == len(items) && len(items) > 0:
			m.SetLevel(util.LevelGood)
		case m.nrunning > 0:
			m.SetLevel(util.LevelWarn)
		default:
			m.SetLevel(util.LevelNormal)
		}
	}

	words := []string{"[Q] Quit", "[H] Help"}

	if item := m.selected; item != nil {
		words = append(words, "[I] Info")
		words = append(words, "[L] Log")
		if canLaunch(item) {
			words = append(words, "[R] Launch")
		}
	}
	if m.running(nodevisor.TargetIndexer) {
		words = append(words, "[S] Stop indexer")
	}
	if m.running(nodevisor.TargetBoth) {
		words = append(words, "[X] Stop all")
	}
	m.SetKeys(words)
}
