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

// Package ui implements the full screen interface of the nodevisor
// command, on top of tcell views.
package ui

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gdamore/tcell/v2"
	"github.com/gdamore/tcell/v2/views"

	"github.com/gdamore/nodevisor"
	"github.com/gdamore/nodevisor/nodevisor/util"
	"github.com/gdamore/nodevisor/rest"
)

var errNoNode = errors.New("Node not found")

type App struct {
	app       *views.Application
	view      views.View
	panel     views.Widget
	info      *InfoPanel
	help      *HelpPanel
	log       *LogPanel
	main      *MainPanel
	auth      *AuthPanel
	client    *rest.Client
	url       string
	logger    *log.Logger
	err       error
	items     []rest.NodeInfo
	notice    string
	logRole   nodevisor.Role
	logStream string
	logInfo   *rest.LogInfo
	logErr    error
	logCancel context.CancelFunc
	ctx       context.Context
	cancel    context.CancelFunc
	started   chan struct{}
	once      sync.Once

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

func (a *App) ShowInfo(role nodevisor.Role) {
	a.info.SetRole(role)
	a.show(a.info)
}

// ShowLog displays the log of role.  An empty stream merges all streams.
func (a *App) ShowLog(role nodevisor.Role, stream string) {
	if a.logCancel != nil {
		a.logCancel()
	}
	ctx, cancel := context.WithCancel(a.ctx)
	a.logInfo = nil
	a.logErr = nil
	a.logRole = role
	a.logStream = stream
	a.logCancel = cancel
	a.log.SetRole(role, stream)
	go a.refreshLog(ctx, role, stream)

	a.show(a.log)
}

func (a *App) ShowMain() {
	if a.logCancel != nil {
		a.logCancel()
		a.logCancel = nil
	}
	a.show(a.main)
}

func (a *App) ShowAuth() {
	a.auth.ResetFields()
	a.show(a.auth)
}

func (a *App) SetUserPassword(user, pass string) {
	a.client.SetAuth(user, pass)
	a.err = nil
}

// Notice returns the outcome of the last request, if it failed.
func (a *App) Notice() string {
	return a.notice
}

func (a *App) ClearNotice() {
	a.notice = ""
}

// request runs fn off the event loop, and reports a failure as a notice.
func (a *App) request(what string, fn func(ctx context.Context) error) {
	a.Logf("Request %s", what)
	go func() {
		e := fn(a.ctx)
		a.app.PostFunc(func() {
			if e != nil {
				a.Logf("Request %s failed: %v", what, e)
				a.notice = what + ": " + e.Error()
			} else {
				a.notice = ""
			}
			a.app.Update()
		})
	}()
}

func (a *App) Launch(role nodevisor.Role) {
	a.request("launch "+role.String(), func(ctx context.Context) error {
		return a.client.Launch(ctx, role)
	})
}

func (a *App) Shutdown(target nodevisor.Target) {
	a.request("shutdown "+target.String(), func(ctx context.Context) error {
		return a.client.Shutdown(ctx, target)
	})
}

func (a *App) Quit() {
	/* This just posts the quit event. */
	a.app.Quit()
}

func (a *App) SetLogger(logger *log.Logger) {
	a.logger = logger
	if logger != nil {
		logger.Debug("Start logger")
	}
}

func (a *App) Logf(fmt string, v ...interface{}) {
	if a.logger != nil {
		a.logger.Debugf(fmt, v...)
	}
}

func (a *App) HandleEvent(ev tcell.Event) bool {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		switch ev.Key() {
		// Intercept a few control keys up front, for global handling.
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
	// The first draw means the screen is up, and posted events will
	// be delivered.
	a.once.Do(func() { close(a.started) })
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

func (a *App) GetClient() *rest.Client {
	return a.client
}

func (a *App) GetAppName() string {
	return "Nodevisor v1.0"
}

func NewApp(client *rest.Client, url string) *App {

	app := &App{}
	app.app = &views.Application{}
	app.client = client
	app.url = url
	app.ctx, app.cancel = context.WithCancel(context.Background())
	app.started = make(chan struct{})
	app.info = NewInfoPanel(app)
	app.help = NewHelpPanel(app)
	app.log = NewLogPanel(app)
	app.main = NewMainPanel(app)
	app.auth = NewAuthPanel(app)
	app.panel = app.main

	return app
}

// refresh keeps the app items current, by long polling the server.
func (a *App) refresh() {
	select {
	case <-a.started:
	case <-a.ctx.Done():
		return
	}
	for {
		items, _, e := a.client.WatchNodes(a.ctx)
		if a.ctx.Err() != nil {
			return
		}
		if e == nil {
			items = append([]rest.NodeInfo{}, items...)
			util.SortNodes(items)
		}

		a.app.PostFunc(func() {
			if e == nil {
				a.items = items
			}
			a.err = e
			a.app.Update()
		})
		if e != nil {
			a.Logf("Watch failed: %v", e)
			time.Sleep(2 * time.Second)
		}
	}
}

func (a *App) refreshLog(ctx context.Context, role nodevisor.Role, stream string) {
	info, e := a.client.GetLog(ctx, role, stream)

	for {
		a.app.PostFunc(func() {
			if a.logRole == role && a.logStream == stream {
				if info != nil {
					a.logInfo = info
				}
				a.logErr = e
				a.app.Update()
			}
		})
		select {
		case <-ctx.Done():
			return
		default:
		}
		if e != nil {
			time.Sleep(2 * time.Second)
			info, e = a.client.GetLog(ctx, role, stream)
			continue
		}
		info, e = a.client.WatchLog(ctx, role, stream, info)
	}
}

func (a *App) GetItems() ([]rest.NodeInfo, error) {
	return a.items, a.err
}

func (a *App) GetItem(role nodevisor.Role) (*rest.NodeInfo, error) {
	if a.err != nil {
		return nil, a.err
	}
	for i := range a.items {
		if a.items[i].Role == role {
			return &a.items[i], nil
		}
	}
	return nil, errNoNode
}

func (a *App) GetLog(role nodevisor.Role) (*rest.LogInfo, error) {
	if a.logRole == role {
		return a.logInfo, a.logErr
	}
	return nil, nil
}

// Run takes over the terminal until the user quits.
func (a *App) Run() error {
	defer a.cancel()
	a.Logf("Starting up user interface")
	a.app.SetRootWidget(a)
	a.ShowMain()
	go a.refresh()
	go func() {
		// Give us periodic updates
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
	a.Logf("Starting app loop")
	return a.app.Run()
}
