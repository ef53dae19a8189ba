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
	"strings"
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/gdamore/tcell/v2/views"

	"github.com/gdamore/nodevisor/nodevisor/util"
)

var (
	barStyleNormal = tcell.StyleDefault.
			Foreground(tcell.ColorBlack).
			Background(tcell.ColorSilver)
	barStyleAccent = tcell.StyleDefault.
			Foreground(tcell.ColorNavy).
			Background(tcell.ColorSilver)

	StatusBarStyleNormal = barStyleNormal
	StatusBarStyleGood   = tcell.StyleDefault.
				Foreground(tcell.ColorWhite).
				Background(tcell.ColorGreen).
				Bold(true)
	StatusBarStyleWarn = tcell.StyleDefault.
				Foreground(tcell.ColorBlack).
				Background(tcell.ColorYellow)
	StatusBarStyleError = tcell.StyleDefault.
				Foreground(tcell.ColorWhite).
				Background(tcell.ColorMaroon).
				Bold(true)
)

// TitleBar shows the server on the left, and the screen name in the
// center.
type TitleBar struct {
	once sync.Once
	views.SimpleStyledTextBar
}

func (tb *TitleBar) Init() {
	tb.once.Do(func() {
		tb.SimpleStyledTextBar.Init()
		tb.SimpleStyledTextBar.SetStyle(barStyleNormal)
		tb.RegisterLeftStyle('N', barStyleNormal)
		tb.RegisterLeftStyle('A', barStyleAccent)
		tb.RegisterCenterStyle('N', barStyleNormal)
		tb.RegisterCenterStyle('A', barStyleAccent.Bold(true))
		tb.RegisterRightStyle('N', barStyleNormal)
		tb.RegisterRightStyle('A', barStyleAccent)
	})
}

func NewTitleBar() *TitleBar {
	tb := &TitleBar{}
	tb.Init()
	return tb
}

// KeyBar lists the keys valid on the current screen.  Each word is of the
// form "[K] Label", and the bracketed part is highlighted.
type KeyBar struct {
	once sync.Once
	views.SimpleStyledTextBar
}

func (k *KeyBar) Init() {
	k.once.Do(func() {
		k.SimpleStyledTextBar.Init()
		k.SimpleStyledTextBar.SetStyle(barStyleNormal)
		k.RegisterLeftStyle('N', barStyleNormal)
		k.RegisterLeftStyle('A', barStyleAccent.Bold(true))
	})
}

func (k *KeyBar) SetKeys(words []string) {
	var b strings.Builder
	for i, w := range words {
		if i != 0 && len(w) != 0 {
			b.WriteByte(' ')
		}
		for _, r := range w {
			switch r {
			case '%':
				b.WriteString("%%")
			case '[':
				b.WriteString("%A[")
			case ']':
				b.WriteString("]%N")
			default:
				b.WriteRune(r)
			}
		}
	}
	k.SetLeft(b.String())
}

func NewKeyBar() *KeyBar {
	kb := &KeyBar{}
	kb.Init()
	return kb
}

// StatusBar is like a titlebar, but it changes color based on the
// status of a screen -- e.g. red background to indicate a fault condition.
type StatusBar struct {
	once   sync.Once
	status string
	views.SimpleStyledTextBar
}

func (sb *StatusBar) Init() {
	sb.once.Do(func() {
		sb.SimpleStyledTextBar.Init()
		sb.SetLevel(util.LevelNormal)
	})
}

func (sb *StatusBar) SetStyle(style tcell.Style) {
	sb.SimpleStyledTextBar.SetStyle(style)
	sb.SimpleStyledTextBar.RegisterLeftStyle('N', style)
	sb.SimpleStyledTextBar.SetLeft(sb.status)
}

// SetLevel picks the bar color for a health grade.
func (sb *StatusBar) SetLevel(l util.Level) {
	switch l {
	case util.LevelGood:
		sb.SetStyle(StatusBarStyleGood)
	case util.LevelWarn:
		sb.SetStyle(StatusBarStyleWarn)
	case util.LevelError:
		sb.SetStyle(StatusBarStyleError)
	default:
		sb.SetStyle(StatusBarStyleNormal)
	}
}

func (sb *StatusBar) SetText(status string) {
	sb.status = strings.ReplaceAll(status, "%", "%%")
	sb.SetLeft(sb.status)
}

func NewStatusBar() *StatusBar {
	sb := &StatusBar{}
	sb.Init()
	return sb
}
