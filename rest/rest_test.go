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

package rest

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	. "github.com/smartystreets/goconvey/convey"
	"golang.org/x/crypto/bcrypt"

	"github.com/gdamore/nodevisor"
	"github.com/gdamore/nodevisor/updater"
)

type testLog struct {
	t *testing.T
}

func (tl *testLog) Write(p []byte) (int, error) {
	tl.t.Log(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

// stubProc is a child that says hello and runs until signalled.
type stubProc struct {
	done chan struct{}
	once sync.Once
}

func (p *stubProc) Pid() int { return 42 }

func (p *stubProc) Alive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

func (p *stubProc) exit() error {
	p.once.Do(func() { close(p.done) })
	return nil
}

func (p *stubProc) Terminate() error      { return p.exit() }
func (p *stubProc) Kill() error           { return p.exit() }
func (p *stubProc) Done() <-chan struct{} { return p.done }
func (p *stubProc) Err() error            { return nil }

func stubStart(spec *nodevisor.NodeSpec) (nodevisor.ProcessHandle, io.ReadCloser, io.ReadCloser, error) {
	p := &stubProc{done: make(chan struct{})}
	outr, outw := io.Pipe()
	errr, errw := io.Pipe()
	go func() {
		io.WriteString(outw, "hello from "+spec.Path+"\n")
		io.WriteString(errw, "warning from "+spec.Path+"\n")
		<-p.done
		outw.Close()
		errw.Close()
	}()
	return p, outr, errr, nil
}

type fixture struct {
	s   *nodevisor.Supervisor
	h   *Handler
	srv *httptest.Server
	c   *Client
}

func newFixture(t *testing.T) *fixture {
	logger := log.NewWithOptions(&testLog{t: t}, log.Options{Level: log.DebugLevel})
	s := nodevisor.NewSupervisor(nodevisor.Options{
		Name:     t.Name(),
		FullNode: nodevisor.NodeSpec{Path: "bitcoind"},
		Indexer:  nodevisor.NodeSpec{Path: "electrs"},
		Start:    stubStart,
		Logger:   logger,
	})
	h := NewHandler(s)
	h.SetLogger(logger)
	srv := httptest.NewServer(h)
	return &fixture{s: s, h: h, srv: srv, c: NewClient(nil, srv.URL)}
}

func (f *fixture) close() {
	f.srv.Close()
	f.s.Close()
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

func TestNodes(t *testing.T) {
	Convey("Node endpoints", t, func() {
		f := newFixture(t)
		Reset(f.close)
		ctx := context.Background()

		Convey("Both nodes are listed", func() {
			nodes, e := f.c.Nodes(ctx)
			So(e, ShouldBeNil)
			So(len(nodes), ShouldEqual, 2)
			So(nodes[0].Role, ShouldEqual, nodevisor.FullNode)
			So(nodes[1].Role, ShouldEqual, nodevisor.Indexer)
			So(nodes[0].State, ShouldEqual, nodevisor.StateIdle)
		})

		Convey("Unchanged lists are not resent", func() {
			res, e := http.Get(f.srv.URL + "/nodes")
			So(e, ShouldBeNil)
			res.Body.Close()
			etag := res.Header.Get("Etag")
			So(etag, ShouldNotEqual, "")

			req, _ := http.NewRequest("GET", f.srv.URL+"/nodes", nil)
			req.Header.Set("If-None-Match", etag)
			res, e = http.DefaultClient.Do(req)
			So(e, ShouldBeNil)
			res.Body.Close()
			So(res.StatusCode, ShouldEqual, http.StatusNotModified)
		})

		Convey("Unknown nodes are not found", func() {
			e := f.c.post(ctx, f.srv.URL+"/nodes/litecoind/launch", nil)
			So(e, ShouldNotBeNil)
			So(e.(*Error).Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("The indexer needs the full node", func() {
			e := f.c.Launch(ctx, nodevisor.Indexer)
			So(e, ShouldNotBeNil)
			So(e.(*Error).Code, ShouldEqual, http.StatusConflict)
			So(e.Error(), ShouldEqual, nodevisor.ErrDependency.Error())
		})

		Convey("Launching and watching", func() {
			So(f.c.Launch(ctx, nodevisor.FullNode), ShouldBeNil)
			info, e := f.c.GetNode(ctx, nodevisor.FullNode)
			So(e, ShouldBeNil)
			So(info.State, ShouldEqual, nodevisor.StateRunning)
			So(info.Pid, ShouldEqual, 42)

			e = f.c.Launch(ctx, nodevisor.FullNode)
			So(e, ShouldNotBeNil)
			So(e.(*Error).Code, ShouldEqual, http.StatusConflict)

			_, etag, e := f.c.pollNodes(ctx, 0)
			So(e, ShouldBeNil)

			go func() {
				time.Sleep(50 * time.Millisecond)
				f.c.Shutdown(context.Background(), nodevisor.TargetBoth)
			}()
			wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			_, etag2, e := f.c.WatchNodes(wctx)
			So(e, ShouldBeNil)
			So(etag2, ShouldNotEqual, etag)

			So(waitFor(func() bool {
				info, e := f.c.GetNode(ctx, nodevisor.FullNode)
				return e == nil && info.State == nodevisor.StateStopped
			}), ShouldBeTrue)
		})

		Convey("A bad shutdown target is rejected", func() {
			e := f.c.post(ctx, f.srv.URL+"/shutdown?target=everything", nil)
			So(e, ShouldNotBeNil)
			So(e.(*Error).Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("Manager info long polls", func() {
			mi, e := f.c.Info(ctx)
			So(e, ShouldBeNil)
			So(mi.Name, ShouldEqual, t.Name())
			go func() {
				time.Sleep(50 * time.Millisecond)
				f.s.Launch(nodevisor.FullNode)
			}()
			etag, e := f.c.Watch(ctx, mi.Etag())
			So(e, ShouldBeNil)
			So(etag, ShouldNotEqual, mi.Etag())
		})
	})
}

func TestLogs(t *testing.T) {
	Convey("Log endpoints", t, func() {
		f := newFixture(t)
		Reset(f.close)
		ctx := context.Background()
		So(f.s.Launch(nodevisor.FullNode), ShouldBeNil)

		hasText := func(li *LogInfo, text string) bool {
			for _, r := range li.Records {
				if r.Text == text {
					return true
				}
			}
			return false
		}

		Convey("The merged log has every stream", func() {
			So(waitFor(func() bool {
				li, e := f.c.GetLog(ctx, nodevisor.FullNode, "")
				return e == nil && hasText(li, "hello from bitcoind") &&
					hasText(li, "warning from bitcoind") && hasText(li, "$ bitcoind")
			}), ShouldBeTrue)
		})

		Convey("A single stream can be selected", func() {
			So(waitFor(func() bool {
				li, e := f.c.GetLog(ctx, nodevisor.FullNode, "stderr")
				return e == nil && len(li.Records) == 1 && li.Records[0].Text == "warning from bitcoind"
			}), ShouldBeTrue)
		})

		Convey("A bad stream is rejected", func() {
			_, e := f.c.GetLog(ctx, nodevisor.FullNode, "stdin")
			So(e, ShouldNotBeNil)
			So(e.(*Error).Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("Watching wakes on new lines", func() {
			li, e := f.c.GetLog(ctx, nodevisor.FullNode, "system")
			So(e, ShouldBeNil)
			out, _ := f.s.Output(nodevisor.FullNode)
			go func() {
				time.Sleep(50 * time.Millisecond)
				out.Append(nodevisor.StreamSystem, "poke")
			}()
			wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			li2, e := f.c.WatchLog(wctx, nodevisor.FullNode, "system", li)
			So(e, ShouldBeNil)
			So(li2.Etag(), ShouldNotEqual, li.Etag())
			So(hasText(li2, "poke"), ShouldBeTrue)
		})

		Convey("Records stream over a websocket", func() {
			sctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			var mx sync.Mutex
			var got []string
			go f.c.StreamLog(sctx, nodevisor.FullNode, "stdout", 0, func(r LogRecord) {
				mx.Lock()
				got = append(got, r.Text)
				mx.Unlock()
			})
			So(waitFor(func() bool {
				mx.Lock()
				defer mx.Unlock()
				return len(got) == 1 && got[0] == "hello from bitcoind"
			}), ShouldBeTrue)
			cancel()
		})
	})
}

func TestAuth(t *testing.T) {
	Convey("Authentication", t, func() {
		f := newFixture(t)
		Reset(f.close)
		ctx := context.Background()
		hash, e := bcrypt.GenerateFromPassword([]byte("sekrit"), bcrypt.MinCost)
		So(e, ShouldBeNil)
		f.h.SetAuth("admin", string(hash))

		Convey("Is required", func() {
			_, e := f.c.Nodes(ctx)
			So(e, ShouldNotBeNil)
			So(e.(*Error).Code, ShouldEqual, http.StatusUnauthorized)
		})

		Convey("Rejects a bad password", func() {
			f.c.SetAuth("admin", "guess")
			_, e := f.c.Nodes(ctx)
			So(e, ShouldNotBeNil)
		})

		Convey("Accepts the right password", func() {
			f.c.SetAuth("admin", "sekrit")
			nodes, e := f.c.Nodes(ctx)
			So(e, ShouldBeNil)
			So(len(nodes), ShouldEqual, 2)
		})
	})
}

func TestUpdate(t *testing.T) {
	Convey("Updating through the API", t, func() {
		f := newFixture(t)
		Reset(f.close)
		ctx := context.Background()

		Convey("Is unavailable by default", func() {
			_, e := f.c.Update(ctx)
			So(e, ShouldNotBeNil)
			So(e.(*Error).Code, ShouldEqual, http.StatusNotImplemented)
		})

		Convey("Reports a missing staging source", func() {
			f.h.SetUpdater(func() (*updater.Report, error) {
				return nil, updater.ErrNoStagingSource
			})
			_, e := f.c.Update(ctx)
			So(e, ShouldEqual, updater.ErrNoStagingSource)
		})

		Convey("Returns the report", func() {
			f.h.SetUpdater(func() (*updater.Report, error) {
				return &updater.Report{Results: []updater.Result{{
					Candidate: updater.Candidate{Role: "bitcoin", Version: updater.Version{Major: 27, Minor: 1}},
					Installed: []string{"bitcoind"},
				}}}, nil
			})
			rep, e := f.c.Update(ctx)
			So(e, ShouldBeNil)
			So(len(rep.Results), ShouldEqual, 1)
			So(rep.Results[0].Candidate.Version.Minor, ShouldEqual, 1)
			So(rep.Results[0].Installed, ShouldResemble, []string{"bitcoind"})
		})
	})
}
