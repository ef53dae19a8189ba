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

	"github.com/gdamore/tcell/v2"
	"github.com/gdamore/tcell/v2/views"

	"github.com/gdamore/nodevisor"
	"github.com/gdamore/nodevisor/nodevisor/util"
	"github.com/gdamore/nodevisor/rest"
)

type InfoPanel struct {
	text *views.TextArea
	info *rest.NodeInfo
	role nodevisor.Role

	Panel
}

func NewInfoPanel(app *App) *InfoPanel {
	p := &InfoPanel{}
	p.Panel.Init(app, app.url)

	p.text = views.NewTextArea()
	p.text.EnableCursor(false)
	p.text.SetStyle(StyleNormal)
	p.SetContent(p.text)
	p.SetKeys([]string{"[ESC] Main", "[H] Help"})

	return p
}

func (p *InfoPanel) Draw() {
	p.update()
	p.Panel.Draw()
}

func (p *InfoPanel) HandleEvent(ev tcell.Event) bool {
	info := p.info
	app := p.app
	switch ev := ev.(type) {
	case *tcell.EventKey:
		app.ClearNotice()
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
				app.ShowLog(p.role, "")
				return true
			case 'R', 'r':
				if info != nil && canLaunch(info) {
					app.Launch(p.role)
					return true
				}
			}
		}
	}
	return p.Panel.HandleEvent(ev)
}

func (p *InfoPanel) SetRole(role nodevisor.Role) {
	p.role = role
}

func detailLines(n *rest.NodeInfo) []string {
	lines := make([]string, 0, 12)
	add := func(label string, v interface{}) {
		lines = append(lines, fmt.Sprintf("%13s %v", label+":", v))
	}
	add("Node", n.Role)
	add("Status", util.Status(n))
	add("State", n.State)
	if n.Phase != nodevisor.PhaseNone {
		add("Phase", n.Phase)
	}
	if n.Pid != 0 {
		add("Pid", n.Pid)
	}
	add("Sync", n.Sync.State)
	if n.Role == nodevisor.FullNode {
		add("Progress", fmt.Sprintf("%.4f%%", n.Sync.Progress*100))
		add("Blocks", n.Blocks)
		add("Headers", n.Headers)
		if n.Chain != "" {
			add("Chain", n.Chain)
		}
	}
	add("Running", n.Readiness.Running)
	add("Synced", n.Readiness.Synced)
	add("Since", n.TimeStamp.Format("2006-01-02 15:04:05"))
	add("Detail", n.Status)
	if n.RPCError != "" {
		add("RPC error", n.RPCError)
	}
	if n.ExitError != "" {
		add("Exit error", n.ExitError)
	}
	return lines
}

// update must be called with AppLock held.
func (p *InfoPanel) update() {

	n, e := p.app.GetItem(p.role)
	p.info = n
	words := []string{"[ESC] Main", "[H] Help", "[L] Log"}

	p.SetTitle("Details for " + p.role.String())

	if n == nil {
		if e != nil {
			p.SetStatus(fmt.Sprintf("No data: %v", e))
			p.SetLevel(util.LevelError)
		} else {
			p.SetStatus("Loading...")
			p.SetLevel(util.LevelNormal)
		}
		p.text.SetLines(nil)
		p.SetKeys(words)
		return
	}

	if !p.SetNotice() {
		p.SetStatus("")
		p.SetLevel(util.Grade(n))
	}
	p.text.SetLines(detailLines(n))

	if canLaunch(n) {
		words = append(words, "[R] Launch")
	}
	p.SetKeys(words)
}
