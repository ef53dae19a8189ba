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
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/gdamore/tcell/v2/views"

	"github.com/gdamore/nodevisor"
	"github.com/gdamore/nodevisor/nodevisor/util"
	"github.com/gdamore/nodevisor/rest"
)

// logStreams is the cycle of stream filters; empty merges them all.
var logStreams = []string{"", "stdout", "stderr", "system"}

type LogPanel struct {
	text   *views.TextArea
	info   *rest.NodeInfo
	role   nodevisor.Role
	stream string

	Panel
}

func NewLogPanel(app *App) *LogPanel {
	p := &LogPanel{}

	p.Panel.Init(app, app.url)

	p.text = views.NewTextArea()
	p.text.EnableCursor(false)
	p.text.SetStyle(StyleNormal)
	p.SetContent(p.text)
	p.SetKeys([]string{"[ESC] Main", "[H] Help"})

	return p
}

func (p *LogPanel) Draw() {
	p.update()
	p.Panel.Draw()
}

func (p *LogPanel) nextStream() string {
	for i, s := range logStreams {
		if s == p.stream {
			return logStreams[(i+1)%len(logStreams)]
		}
	}
	return ""
}

func (p *LogPanel) HandleEvent(ev tcell.Event) bool {
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
			case 'I', 'i':
				app.ShowInfo(p.role)
				return true
			case 'T', 't':
				app.ShowLog(p.role, p.nextStream())
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

func (p *LogPanel) SetRole(role nodevisor.Role, stream string) {
	p.SetTitle("Loading")
	p.text.SetLines(nil)
	p.role = role
	p.stream = stream
}

// update must be called with AppLock held.
func (p *LogPanel) update() {

	node, e1 := p.app.GetItem(p.role)
	loginfo, e2 := p.app.GetLog(p.role)
	p.info = node

	words := []string{"[ESC] Main", "[H] Help", "[I] Info", "[T] Stream"}

	if p.stream == "" {
		p.SetTitle("Log for " + p.role.String())
	} else {
		p.SetTitle(fmt.Sprintf("Log for %s (%s)", p.role, p.stream))
	}

	if loginfo == nil {
		e := e2
		if e == nil {
			e = e1
		}
		if e != nil {
			p.SetStatus(fmt.Sprintf("No data: %v", e))
			p.SetLevel(util.LevelError)
		} else {
			p.SetStatus("Loading ...")
			p.SetLevel(util.LevelNormal)
		}
		p.text.SetLines([]string{""})
		p.SetKeys(words)
		return
	}

	if !p.SetNotice() {
		if node != nil {
			p.SetStatus(fmt.Sprintf("%s  %s", util.Status(node), node.Status))
			p.SetLevel(util.Grade(node))
		} else {
			p.SetStatus("")
			p.SetLevel(util.LevelNormal)
		}
	}

	lines := make([]string, 0, len(loginfo.Records))
	for _, r := range loginfo.Records {
		tag := ' '
		switch r.Stream {
		case nodevisor.StreamStderr:
			tag = '!'
		case nodevisor.StreamSystem:
			tag = '*'
		}
		line := fmt.Sprintf("%s %c %s",
			r.Time.Format(time.StampMilli), tag, r.Text)
		lines = append(lines, line)
	}
	p.text.SetLines(lines)

	if node != nil && canLaunch(node) {
		words = append(words, "[R] Launch")
	}
	p.SetKeys(words)
}
