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

package rpc

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

type fakeNode struct {
	user, pass string
	method     string
	params     []interface{}
	id         string
	jsonrpc    string
	reply      string
	status     int
	lock       sync.Mutex
}

func (f *fakeNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.user, f.pass, _ = r.BasicAuth()
	b, _ := io.ReadAll(r.Body)
	var req struct {
		JSONRPC string        `json:"jsonrpc"`
		ID      string        `json:"id"`
		Method  string        `json:"method"`
		Params  []interface{} `json:"params"`
	}
	json.Unmarshal(b, &req)
	f.method = req.Method
	f.params = req.Params
	f.id = req.ID
	f.jsonrpc = req.JSONRPC
	if f.status != 0 {
		w.WriteHeader(f.status)
	}
	io.WriteString(w, f.reply)
}

func (f *fakeNode) seen() (string, string, string) {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.user, f.pass, f.method
}

func addrOf(srv *httptest.Server) string {
	return strings.TrimPrefix(srv.URL, "http://")
}

func TestCall(t *testing.T) {
	Convey("Given a fake node", t, func() {
		node := &fakeNode{}
		srv := httptest.NewServer(node)
		defer srv.Close()
		dir := t.TempDir()
		auth := &Auth{DataDir: dir, User: "alice", Password: "secret"}
		c := NewClient(addrOf(srv), auth, time.Second)
		ctx := context.Background()

		Convey("Requests are JSON-RPC 1.0 with params", func() {
			node.reply = `{"result":"ok","error":null,"id":"x"}`
			raw, e := c.Call(ctx, "echo", 1, "two")
			So(e, ShouldBeNil)
			So(string(raw), ShouldEqual, `"ok"`)
			So(node.jsonrpc, ShouldEqual, "1.0")
			So(node.id, ShouldNotBeEmpty)
			So(node.params, ShouldResemble, []interface{}{float64(1), "two"})
		})

		Convey("Without a cookie the configured credentials are used", func() {
			node.reply = `{"result":null,"error":null,"id":"x"}`
			_, e := c.Call(ctx, "uptime")
			So(e, ShouldBeNil)
			user, pass, method := node.seen()
			So(user, ShouldEqual, "alice")
			So(pass, ShouldEqual, "secret")
			So(method, ShouldEqual, "uptime")
		})

		Convey("The cookie is read fresh on every call", func() {
			node.reply = `{"result":null,"error":null,"id":"x"}`
			cookie := filepath.Join(dir, CookieFile)
			So(os.WriteFile(cookie, []byte("__cookie__:aaa\n"), 0600), ShouldBeNil)
			_, e := c.Call(ctx, "uptime")
			So(e, ShouldBeNil)
			user, pass, _ := node.seen()
			So(user, ShouldEqual, "__cookie__")
			So(pass, ShouldEqual, "aaa")

			So(os.WriteFile(cookie, []byte("__cookie__:bbb"), 0600), ShouldBeNil)
			_, e = c.Call(ctx, "uptime")
			So(e, ShouldBeNil)
			_, pass, _ = node.seen()
			So(pass, ShouldEqual, "bbb")
		})

		Convey("A cookie under mainnet/ is found", func() {
			node.reply = `{"result":null,"error":null,"id":"x"}`
			So(os.MkdirAll(filepath.Join(dir, "mainnet"), 0755), ShouldBeNil)
			So(os.WriteFile(filepath.Join(dir, "mainnet", CookieFile),
				[]byte("__cookie__:ccc"), 0600), ShouldBeNil)
			_, e := c.Call(ctx, "uptime")
			So(e, ShouldBeNil)
			_, pass, _ := node.seen()
			So(pass, ShouldEqual, "ccc")
		})

		Convey("HTTP 401 is AuthFailed", func() {
			node.status = http.StatusUnauthorized
			_, e := c.Call(ctx, "uptime")
			So(IsKind(e, AuthFailed), ShouldBeTrue)
		})

		Convey("An error object is MethodFailed", func() {
			node.status = http.StatusNotFound
			node.reply = `{"result":null,"error":{"code":-32601,"message":"Method not found"},"id":"x"}`
			_, e := c.Call(ctx, "bogus")
			So(IsKind(e, MethodFailed), ShouldBeTrue)
			re := e.(*Error)
			So(re.Code, ShouldEqual, -32601)
			So(re.Message, ShouldEqual, "Method not found")
		})

		Convey("A non-JSON body is MalformedResponse", func() {
			node.reply = `<html>nope</html>`
			_, e := c.Call(ctx, "uptime")
			So(IsKind(e, MalformedResponse), ShouldBeTrue)
		})

		Convey("getblockchaininfo is decoded", func() {
			node.reply = `{"result":{"chain":"main","blocks":850000,"headers":850001,` +
				`"verificationprogress":0.99995,"initialblockdownload":false},"error":null,"id":"x"}`
			info, e := c.BlockchainInfo(ctx)
			So(e, ShouldBeNil)
			So(info.Chain, ShouldEqual, "main")
			So(info.Blocks, ShouldEqual, 850000)
			So(info.Headers, ShouldEqual, 850001)
			So(info.VerificationProgress, ShouldAlmostEqual, 0.99995)
			So(info.InitialBlockDownload, ShouldBeFalse)
		})

		Convey("A null getblockchaininfo result is MalformedResponse", func() {
			node.reply = `{"result":null,"error":null,"id":"x"}`
			_, e := c.BlockchainInfo(ctx)
			So(IsKind(e, MalformedResponse), ShouldBeTrue)
		})

		Convey("Stop sends the stop method", func() {
			node.reply = `{"result":"Bitcoin Core stopping","error":null,"id":"x"}`
			So(c.Stop(ctx), ShouldBeNil)
			_, _, method := node.seen()
			So(method, ShouldEqual, "stop")
		})
	})
}

func TestUnreachable(t *testing.T) {
	Convey("A closed endpoint is Unreachable", t, func() {
		srv := httptest.NewServer(http.NotFoundHandler())
		addr := addrOf(srv)
		srv.Close()
		c := NewClient(addr, nil, time.Second)
		_, e := c.BlockchainInfo(context.Background())
		So(e, ShouldNotBeNil)
		So(IsKind(e, Unreachable), ShouldBeTrue)
		So(e.Error(), ShouldContainSubstring, "getblockchaininfo")
	})
}
