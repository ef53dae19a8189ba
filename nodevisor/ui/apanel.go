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
	"github.com/gdamore/tcell/v2"
	"github.com/gdamore/tcell/v2/views"

	"github.com/gdamore/nodevisor/nodevisor/util"
)

const (
	entryWidth = 16
	entryMax   = 256
)

var (
	styleFocus = tcell.StyleDefault.
		Foreground(tcell.ColorWhite).
		Background(tcell.ColorNavy)
)

// entry is a single line input field.
type entry struct {
	text []rune
	mask bool
	view *views.Text
}

func (e *entry) reset() {
	e.text = e.text[:0]
}

func (e *entry) key(ev *tcell.EventKey) bool {
	switch ev.Key() {
	case tcell.KeyCtrlU, tcell.KeyCtrlW:
		e.reset()
	case tcell.KeyBackspace, tcell.KeyBackspace2:
		if len(e.text) > 0 {
			e.text = e.text[:len(e.text)-1]
		}
	case tcell.KeyRune:
		if len(e.text) < entryMax {
			e.text = append(e.text, ev.Rune())
		}
	default:
		return false
	}
	return true
}

// render draws the field, scrolled to show its end.
func (e *entry) render(focus bool) {
	var shown []rune
	if e.mask {
		for range e.text {
			shown = append(shown, '*')
		}
	} else {
		shown = append(shown, e.text...)
	}
	if focus {
		shown = append(shown, '_')
	}
	if len(shown) > entryWidth {
		shown = shown[len(shown)-entryWidth:]
		shown[0] = '<'
	}
	for len(shown) < entryWidth {
		shown = append(shown, ' ')
	}
	e.view.SetText(string(shown))
	if focus {
		e.view.SetStyle(styleFocus)
	} else {
		e.view.SetStyle(StyleNormal)
	}
}

func newEntry(mask bool) *entry {
	e := &entry{
		text: make([]rune, 0, 128),
		mask: mask,
		view: views.NewText(),
	}
	e.view.SetStyle(StyleNormal)
	return e
}

// AuthPanel prompts for credentials when the server refuses ours.
type AuthPanel struct {
	user       *entry
	pass       *entry
	passactive bool

	Panel
}

func NewAuthPanel(app *App) *AuthPanel {
	a := &AuthPanel{
		user: newEntry(false),
		pass: newEntry(true),
	}
	a.Panel.Init(app, app.url)

	hlayout := views.NewBoxLayout(views.Horizontal)
	left := views.NewBoxLayout(views.Vertical)
	right := views.NewBoxLayout(views.Vertical)
	uprompt := views.NewText()
	pprompt := views.NewText()
	uprompt.SetText("Username: ")
	pprompt.SetText("Password: ")

	for _, w := range []interface{ SetStyle(tcell.Style) }{
		uprompt, pprompt, hlayout, left, right,
	} {
		w.SetStyle(StyleNormal)
	}

	left.AddWidget(views.NewSpacer(), 1.0)
	left.AddWidget(uprompt, 0.0)
	left.AddWidget(pprompt, 0.0)
	left.AddWidget(views.NewSpacer(), 1.0)

	right.AddWidget(views.NewSpacer(), 1.0)
	right.AddWidget(a.user.view, 0.0)
	right.AddWidget(a.pass.view, 0.0)
	right.AddWidget(views.NewSpacer(), 1.0)

	hlayout.AddWidget(views.NewSpacer(), 1.0)
	hlayout.AddWidget(left, 0.0)
	hlayout.AddWidget(right, 0.0)
	hlayout.AddWidget(views.NewSpacer(), 1.0)

	a.SetTitle("Login")
	a.SetStatus("Authentication Required")
	a.SetKeys([]string{"[ESC] Quit", "[TAB] Next"})
	a.SetContent(hlayout)

	return a
}

func (a *AuthPanel) ResetFields() {
	a.passactive = false
	a.user.reset()
	a.pass.reset()
}

func (a *AuthPanel) Draw() {
	a.update()
	a.Panel.Draw()
}

func (a *AuthPanel) HandleEvent(ev tcell.Event) bool {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		switch ev.Key() {
		case tcell.KeyEsc:
			a.App().Quit()
			return true
		case tcell.KeyTab, tcell.KeyEnter:
			if a.passactive {
				a.App().SetUserPassword(string(a.user.text),
					string(a.pass.text))
				a.App().ShowMain()
			} else {
				a.passactive = true
			}
			return true
		case tcell.KeyBacktab:
			a.passactive = false
			return true
		}
		if a.passactive {
			return a.pass.key(ev)
		}
		return a.user.key(ev)
	}
	return a.Panel.HandleEvent(ev)
}

// update must be called with AppLock held.
func (a *AuthPanel) update() {
	a.SetLevel(util.LevelError)
	a.user.render(!a.passactive)
	a.pass.render(a.passactive)
}
