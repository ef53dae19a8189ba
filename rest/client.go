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
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gdamore/nodevisor"
	"github.com/gdamore/nodevisor/updater"
)

// DefaultTimeout bounds requests that do not long-poll.
const DefaultTimeout = 5 * time.Second

type Client struct {
	user   string // HTTP Basic-Auth
	pass   string
	base   string // URI to root of tree on server
	auth   bool
	client *http.Client
	dialer *websocket.Dialer

	// Cached data
	manager *ManagerInfo
	nodes   []NodeInfo
	etag    string // etag for the node list
	logs    map[string]*LogInfo
	lock    sync.Mutex
}

func (c *Client) SetAuth(user string, pass string) {
	c.user = user
	c.pass = pass
	c.auth = true
}

func (c *Client) url(role nodevisor.Role) string {
	return c.base + "/nodes/" + url.PathEscape(role.String())
}

func (c *Client) newRequest(ctx context.Context, method, url string) (*http.Request, error) {
	req, e := http.NewRequestWithContext(ctx, method, url, nil)
	if e != nil {
		return nil, e
	}
	if c.auth {
		req.SetBasicAuth(c.user, c.pass)
	}
	return req, nil
}

// readError turns a failed response into an *Error, keeping the server's
// message when it sent one.
func readError(res *http.Response) error {
	e := &Error{Code: res.StatusCode, Message: res.Status}
	if b, err := io.ReadAll(io.LimitReader(res.Body, 64*1024)); err == nil {
		var se Error
		if json.Unmarshal(b, &se) == nil && se.Message != "" {
			e.Message = se.Message
		}
	}
	return e
}

// poll issues an HTTP GET against the URL, optionally checking for a cache,
// including optionally issuing a long poll that tries to wait until the
// value changes.  The return values are the new Etag and any error.  If the
// value did not change, then the returned etag will be "", but the error will
// be nil.
func (c *Client) poll(ctx context.Context, url string, etag string, wait int, v interface{}) (string, error) {
	req, e := c.newRequest(ctx, http.MethodGet, url)
	if e != nil {
		return "", e
	}
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
		if wait > 0 {
			req.Header.Set(PollEtagHeader, etag)
			req.Header.Set(PollTimeHeader, strconv.Itoa(wait))
		}
	}
	res, e := c.client.Do(req)
	if e != nil {
		return "", e
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotModified {
		return "", nil
	}
	if res.StatusCode != http.StatusOK {
		return "", readError(res)
	}
	if e := json.NewDecoder(res.Body).Decode(v); e != nil {
		return "", e
	}
	return res.Header.Get("Etag"), nil
}

func (c *Client) post(ctx context.Context, url string, v interface{}) error {
	req, e := c.newRequest(ctx, http.MethodPost, url)
	if e != nil {
		return e
	}
	res, e := c.client.Do(req)
	if e != nil {
		return e
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK && res.StatusCode != http.StatusAccepted {
		return readError(res)
	}
	if v == nil {
		return nil
	}
	return json.NewDecoder(res.Body).Decode(v)
}

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, DefaultTimeout)
}

// Watch waits for the server's serial to move past etag, and returns the
// new one.  An empty etag returns the current value immediately.
func (c *Client) Watch(ctx context.Context, etag string) (string, error) {
	minfo := &ManagerInfo{}
	wait := MaxPollTime
	if etag == "" {
		wait = 0
	}
	ntag, e := c.poll(ctx, c.base+"/", etag, wait, minfo)
	if e != nil {
		return "", e
	}
	if ntag == "" {
		return etag, nil
	}
	minfo.etag = ntag
	c.lock.Lock()
	c.manager = minfo
	c.lock.Unlock()
	return ntag, nil
}

// Info returns the server's top-level information.
func (c *Client) Info(ctx context.Context) (*ManagerInfo, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	if _, e := c.Watch(ctx, ""); e != nil {
		return nil, e
	}
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.manager, nil
}

func (c *Client) pollNodes(ctx context.Context, secs int) ([]NodeInfo, string, error) {
	c.lock.Lock()
	otag := c.etag
	onodes := c.nodes
	c.lock.Unlock()

	if onodes == nil {
		secs = 0
		otag = ""
	}
	var v []NodeInfo
	etag, e := c.poll(ctx, c.base+"/nodes", otag, secs, &v)
	if e != nil {
		return nil, "", e
	}
	if etag == "" {
		return onodes, otag, nil
	}
	c.lock.Lock()
	c.etag = etag
	c.nodes = v
	c.lock.Unlock()
	return v, etag, nil
}

// Nodes returns the state of both nodes.
func (c *Client) Nodes(ctx context.Context) ([]NodeInfo, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	v, _, e := c.pollNodes(ctx, 0)
	return v, e
}

// WatchNodes waits until the node states differ from those last returned,
// then returns them along with their etag.
func (c *Client) WatchNodes(ctx context.Context) ([]NodeInfo, string, error) {
	return c.pollNodes(ctx, MaxPollTime)
}

// GetNode returns the state of one node.
func (c *Client) GetNode(ctx context.Context, role nodevisor.Role) (*NodeInfo, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	v := &NodeInfo{}
	if _, e := c.poll(ctx, c.url(role), "", 0, v); e != nil {
		return nil, e
	}
	return v, nil
}

// Launch starts a node.
func (c *Client) Launch(ctx context.Context, role nodevisor.Role) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	return c.post(ctx, c.url(role)+"/launch", nil)
}

// Shutdown asks the server to stop the targeted nodes.  It returns once
// the request is accepted; use WatchNodes to follow progress.
func (c *Client) Shutdown(ctx context.Context, target nodevisor.Target) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	return c.post(ctx, c.base+"/shutdown?target="+target.String(), &ShutdownResponse{})
}

// Update installs staged binaries on the server.  The updater's
// sentinel errors are returned as themselves.
func (c *Client) Update(ctx context.Context) (*updater.Report, error) {
	rep := &updater.Report{}
	e := c.post(ctx, c.base+"/update", rep)
	if se, ok := e.(*Error); ok && se.Code == http.StatusNotFound {
		switch se.Message {
		case updater.ErrNoStagingSource.Error():
			return nil, updater.ErrNoStagingSource
		case updater.ErrNothingToUpdate.Error():
			return nil, updater.ErrNothingToUpdate
		}
	}
	if e != nil {
		return nil, e
	}
	return rep, nil
}

func logKey(role nodevisor.Role, stream string) string {
	return role.String() + "/" + stream
}

func (c *Client) pollLog(ctx context.Context, role nodevisor.Role, stream string, secs int, last *LogInfo) (*LogInfo, error) {
	key := logKey(role, stream)
	c.lock.Lock()
	cached, ok := c.logs[key]
	c.lock.Unlock()

	otag := ""
	if last == nil {
		secs = 0
	} else if ok && last.etag != cached.etag {
		// The cache moved on since the caller looked; hand it back.
		return cached, nil
	} else {
		otag = last.etag
	}

	u := c.url(role) + "/log"
	if stream != "" {
		u += "?stream=" + url.QueryEscape(stream)
	}
	v := &LogInfo{}
	etag, e := c.poll(ctx, u, otag, secs, &v.Records)
	if e != nil {
		c.lock.Lock()
		delete(c.logs, key)
		c.lock.Unlock()
		return nil, e
	}
	if etag == "" {
		return last, nil
	}
	v.etag = etag
	c.lock.Lock()
	c.logs[key] = v
	c.lock.Unlock()
	return v, nil
}

// GetLog returns the retained log of a node.  An empty stream merges all
// streams.
func (c *Client) GetLog(ctx context.Context, role nodevisor.Role, stream string) (*LogInfo, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	return c.pollLog(ctx, role, stream, 0, nil)
}

// WatchLog waits for the log to change from last.
func (c *Client) WatchLog(ctx context.Context, role nodevisor.Role, stream string, last *LogInfo) (*LogInfo, error) {
	return c.pollLog(ctx, role, stream, MaxPollTime, last)
}

// StreamLog delivers records newer than since to fn as they arrive, until
// ctx is done or the connection fails.
func (c *Client) StreamLog(ctx context.Context, role nodevisor.Role, stream string, since int64, fn func(LogRecord)) error {
	u, e := url.Parse(c.url(role) + "/log/stream")
	if e != nil {
		return e
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	q := u.Query()
	q.Set("since", strconv.FormatInt(since, 10))
	if stream != "" {
		q.Set("stream", stream)
	}
	u.RawQuery = q.Encode()

	header := http.Header{}
	if c.auth {
		req := &http.Request{Header: header}
		req.SetBasicAuth(c.user, c.pass)
	}
	conn, res, e := c.dialer.DialContext(ctx, u.String(), header)
	if e != nil {
		if res != nil && res.StatusCode != http.StatusSwitchingProtocols {
			defer res.Body.Close()
			return readError(res)
		}
		return e
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-done:
			return
		case <-ctx.Done():
		}
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	}()

	for {
		var rec LogRecord
		if e := conn.ReadJSON(&rec); e != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(e, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return e
		}
		fn(rec)
	}
}

// NewClient returns a Client handle.  The transport maybe nil to use
// a default transport, but it may also be adjusted to support additional
// options such as TLS.  baseURI is the base URL to use.
func NewClient(t *http.Transport, baseURI string) *Client {
	if t == nil {
		t = &http.Transport{}
	}
	if !strings.Contains(baseURI, "://") {
		baseURI = "http://" + baseURI
	}
	c := &Client{
		base:   strings.TrimRight(baseURI, "/"),
		client: &http.Client{Transport: t},
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
			TLSClientConfig:  t.TLSClientConfig,
		},
		logs: make(map[string]*LogInfo),
	}
	return c
}
