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

//go:build darwin || dragonfly || freebsd || linux || netbsd || openbsd || solaris

// These tests run real children, using small /bin/sh scripts in place of
// the node binaries, so they are specific to POSIX systems.

package nodevisor

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/gdamore/nodevisor/rpc"
)

func writeStub(t *testing.T, name, body string) string {
	path := filepath.Join(t.TempDir(), name)
	if e := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); e != nil {
		t.Fatal(e)
	}
	return path
}

// deadAddr returns a loopback address nothing listens on.
func deadAddr(t *testing.T) string {
	l, e := net.Listen("tcp", "127.0.0.1:0")
	if e != nil {
		t.Fatal(e)
	}
	addr := l.Addr().String()
	l.Close()
	return addr
}

func TestStartProcess(t *testing.T) {
	Convey("Starting a real process", t, func() {
		Convey("Captures both streams", func() {
			path := writeStub(t, "echo.sh", "echo out1\necho err1 >&2\nprintf 'partial'\n")
			h, stdout, stderr, e := StartProcess(&NodeSpec{Path: path})
			So(e, ShouldBeNil)
			o := NewOutput(10)
			done := capture(o, stdout, stderr)
			<-h.Done()
			<-done
			So(h.Alive(), ShouldBeFalse)
			So(h.Err(), ShouldBeNil)

			recs := o.Log(StreamStdout).Tail(-1)
			So(len(recs), ShouldEqual, 2)
			So(recs[0].Text, ShouldEqual, "out1")
			So(recs[1].Text, ShouldEqual, "partial")
			recs = o.Log(StreamStderr).Tail(-1)
			So(len(recs), ShouldEqual, 1)
			So(recs[0].Text, ShouldEqual, "err1")
		})

		Convey("Reports a missing binary", func() {
			_, _, _, e := StartProcess(&NodeSpec{Path: filepath.Join(t.TempDir(), "nope")})
			So(e, ShouldNotBeNil)
		})

		Convey("Passes the directory and environment", func() {
			dir := t.TempDir()
			path := writeStub(t, "env.sh", "pwd\necho $NODEVISOR_TEST\n")
			h, stdout, stderr, e := StartProcess(&NodeSpec{
				Path: path,
				Dir:  dir,
				Env:  []string{"NODEVISOR_TEST=hello"},
			})
			So(e, ShouldBeNil)
			o := NewOutput(10)
			<-capture(o, stdout, stderr)
			<-h.Done()
			recs := o.Log(StreamStdout).Tail(-1)
			So(len(recs), ShouldEqual, 2)
			real, _ := filepath.EvalSymlinks(dir)
			got, _ := filepath.EvalSymlinks(recs[0].Text)
			So(got, ShouldEqual, real)
			So(recs[1].Text, ShouldEqual, "hello")
		})

		Convey("A non-zero exit is an error", func() {
			path := writeStub(t, "fail.sh", "exit 3\n")
			h, stdout, stderr, e := StartProcess(&NodeSpec{Path: path})
			So(e, ShouldBeNil)
			<-capture(NewOutput(10), stdout, stderr)
			So(h.Err(), ShouldNotBeNil)
		})
	})
}

func TestFullNodeExits(t *testing.T) {
	Convey("A full node that exits on its own", t, func() {
		path := writeStub(t, "bitcoind", "echo 'Bitcoin Core starting'\nsleep 1\nexit 3\n")
		s := NewSupervisor(Options{
			Name:     "TestFullNodeExits",
			FullNode: NodeSpec{Path: path, Dir: t.TempDir()},
			RPC:      rpc.NewClient(deadAddr(t), &rpc.Auth{User: "u", Password: "p"}, time.Second),
		})
		SetTestLogger(t, s)
		Reset(s.Close)

		So(s.Launch(FullNode), ShouldBeNil)
		So(s.Poll(), ShouldBeTrue)
		So(waitFor(func() bool {
			info, _ := s.Info(FullNode)
			return info.RPCError != "" || info.State == StateStopped
		}), ShouldBeTrue)

		So(waitFor(func() bool { return stateOf(s, FullNode) == StateStopped }), ShouldBeTrue)
		info, _ := s.Info(FullNode)
		So(info.ExitError, ShouldNotEqual, "")
		So(info.Readiness.Running, ShouldBeFalse)
		So(s.Poll(), ShouldBeFalse)

		recs := s.nodes[FullNode].out.Log(StreamStdout).Tail(-1)
		So(len(recs), ShouldEqual, 1)
		So(recs[0].Text, ShouldEqual, "Bitcoin Core starting")
	})

	Convey("Polling an unreachable node", t, func() {
		c := rpc.NewClient(deadAddr(t), &rpc.Auth{User: "u", Password: "p"}, time.Second)
		_, e := c.BlockchainInfo(context.Background())
		So(rpc.IsKind(e, rpc.Unreachable), ShouldBeTrue)
	})
}

func TestIndexerRun(t *testing.T) {
	Convey("A real indexer", t, func() {
		full := writeStub(t, "bitcoind", "trap 'exit 0' TERM\nwhile :; do sleep 0.1; done\n")

		Convey("Becomes synced from its output and stops on SIGTERM", func() {
			idx := writeStub(t, "electrs",
				"echo 'opening DB'\necho 'Electrs running on 127.0.0.1:50001' >&2\n"+
					"trap 'echo bye; exit 0' TERM\nwhile :; do sleep 0.1; done\n")
			s := NewSupervisor(Options{
				Name:         "TestIndexerRun",
				FullNode:     NodeSpec{Path: full},
				Indexer:      NodeSpec{Path: idx},
				StopInterval: 20 * time.Millisecond,
			})
			SetTestLogger(t, s)
			Reset(s.Close)
			s.StartMonitoring(20*time.Millisecond, time.Hour)

			So(s.Launch(FullNode), ShouldBeNil)
			So(s.Launch(Indexer), ShouldBeNil)
			So(waitFor(func() bool { return s.Readiness(Indexer).Ready() }), ShouldBeTrue)

			req := s.Shutdown(TargetIndexer)
			So(req.WaitTimeout(10*time.Second), ShouldBeTrue)
			So(req.Escalated(Indexer), ShouldBeFalse)
			So(stateOf(s, Indexer), ShouldEqual, StateStopped)
			So(stateOf(s, FullNode), ShouldEqual, StateRunning)

			recs := s.nodes[Indexer].out.Log(StreamStdout).Tail(1)
			So(len(recs), ShouldEqual, 1)
			So(recs[0].Text, ShouldEqual, "bye")
		})

		Convey("Is killed when it ignores SIGTERM", func() {
			idx := writeStub(t, "electrs", "trap '' TERM\nwhile :; do sleep 0.1; done\n")
			s := NewSupervisor(Options{
				Name:         "TestIndexerKill",
				FullNode:     NodeSpec{Path: full},
				Indexer:      NodeSpec{Path: idx},
				IndexerGrace: 300 * time.Millisecond,
				StopInterval: 20 * time.Millisecond,
			})
			SetTestLogger(t, s)
			Reset(s.Close)

			So(s.Launch(FullNode), ShouldBeNil)
			So(s.Launch(Indexer), ShouldBeNil)
			time.Sleep(100 * time.Millisecond)

			req := s.Shutdown(TargetBoth)
			So(req.WaitTimeout(10*time.Second), ShouldBeTrue)
			So(req.Escalated(Indexer), ShouldBeTrue)
			So(req.Escalated(FullNode), ShouldBeFalse)
			So(stateOf(s, Indexer), ShouldEqual, StateStopped)
			So(stateOf(s, FullNode), ShouldEqual, StateStopped)
		})
	})
}
