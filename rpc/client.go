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

// Package rpc is a small JSON-RPC 1.0 client for the full node's HTTP
// interface.  Only the handful of methods the supervisor needs are
// wrapped; Call can issue anything else.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	// DefaultTimeout bounds each call, so that a hung node cannot stall
	// status polling.
	DefaultTimeout = 5 * time.Second

	maxResponseSize = 16 << 20
)

type request struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      string        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type response struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	ID string `json:"id"`
}

// BlockchainInfo is the subset of getblockchaininfo used for sync status.
type BlockchainInfo struct {
	Chain                string  `json:"chain"`
	Blocks               uint64  `json:"blocks"`
	Headers              uint64  `json:"headers"`
	VerificationProgress float64 `json:"verificationprogress"`
	InitialBlockDownload bool    `json:"initialblockdownload"`
}

// Client calls the full node's JSON-RPC interface.  It is safe for
// concurrent use.
type Client struct {
	url    string
	auth   *Auth
	client *http.Client
}

// NewClient returns a client for the node listening on addr (host:port).
// A zero timeout selects DefaultTimeout.
func NewClient(addr string, auth *Auth, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if auth == nil {
		auth = &Auth{}
	}
	return &Client{
		url:    "http://" + addr + "/",
		auth:   auth,
		client: &http.Client{Timeout: timeout},
	}
}

// URL returns the endpoint the client posts to.
func (c *Client) URL() string {
	return c.url
}

// Call invokes method with the given positional params and returns the raw
// result.  Every failure is an *Error.
func (c *Client) Call(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error) {
	if params == nil {
		params = []interface{}{}
	}
	body, e := json.Marshal(&request{
		JSONRPC: "1.0",
		ID:      uuid.NewString(),
		Method:  method,
		Params:  params,
	})
	if e != nil {
		return nil, &Error{Kind: MalformedResponse, Method: method,
			Err: errors.Wrap(e, "encode request")}
	}
	req, e := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if e != nil {
		return nil, &Error{Kind: Unreachable, Method: method, Err: e}
	}
	user, pass, _ := c.auth.Credentials()
	req.SetBasicAuth(user, pass)
	req.Header.Set("Content-Type", "application/json")

	res, e := c.client.Do(req)
	if e != nil {
		return nil, &Error{Kind: Unreachable, Method: method, Err: e}
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden {
		return nil, &Error{Kind: AuthFailed, Method: method, Message: res.Status}
	}
	b, e := io.ReadAll(io.LimitReader(res.Body, maxResponseSize))
	if e != nil {
		return nil, &Error{Kind: Unreachable, Method: method,
			Err: errors.Wrap(e, "read response")}
	}

	// The node reports method errors with a non-200 status but a
	// well formed body, so decode before looking at the status.
	var r response
	if e := json.Unmarshal(b, &r); e != nil {
		return nil, &Error{Kind: MalformedResponse, Method: method,
			Message: res.Status, Err: errors.Wrap(e, "decode response")}
	}
	if r.Error != nil {
		return nil, &Error{Kind: MethodFailed, Method: method,
			Code: r.Error.Code, Message: r.Error.Message}
	}
	if res.StatusCode != http.StatusOK {
		return nil, &Error{Kind: MalformedResponse, Method: method, Message: res.Status}
	}
	return r.Result, nil
}

// BlockchainInfo calls getblockchaininfo.
func (c *Client) BlockchainInfo(ctx context.Context) (*BlockchainInfo, error) {
	const method = "getblockchaininfo"
	raw, e := c.Call(ctx, method)
	if e != nil {
		return nil, e
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, &Error{Kind: MalformedResponse, Method: method, Message: "null result"}
	}
	info := &BlockchainInfo{}
	if e := json.Unmarshal(raw, info); e != nil {
		return nil, &Error{Kind: MalformedResponse, Method: method,
			Err: errors.Wrap(e, "decode result")}
	}
	return info, nil
}

// Stop asks the node to shut down.  It returns as soon as the node has
// acknowledged the request; it does not wait for the process to exit.
func (c *Client) Stop(ctx context.Context) error {
	_, e := c.Call(ctx, "stop")
	return e
}
