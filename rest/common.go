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

// Package rest exposes a Supervisor over HTTP, and provides a client for
// that interface.
//
// Read endpoints support a long poll.  A client that already holds the
// value with a given Etag sends that Etag in PollEtagHeader along with a
// wait time in seconds in PollTimeHeader.  The server holds the request
// until the value changes or the time passes.
package rest

import (
	"strconv"

	"github.com/gdamore/nodevisor"
)

const (
	mimeJson = "application/json; charset=UTF-8"

	PollEtagHeader = "X-Nodevisor-Poll-Etag"
	PollTimeHeader = "X-Nodevisor-Poll-Time"

	// MaxPollTime is the longest a poll is held, in seconds.
	MaxPollTime = 300
)

var ok struct{}

type NodeInfo = nodevisor.NodeInfo
type LogRecord = nodevisor.LogRecord

// ManagerInfo is the top-level state of the server.
type ManagerInfo struct {
	nodevisor.SupervisorInfo
	etag string
}

// Etag returns the tag the info was fetched with.
func (mi *ManagerInfo) Etag() string {
	return mi.etag
}

// LogInfo is a fetched view of a node's log.
type LogInfo struct {
	Records []LogRecord
	etag    string
}

// Etag returns the tag the log was fetched with.
func (li *LogInfo) Etag() string {
	return li.etag
}

// ShutdownResponse acknowledges an accepted shutdown.
type ShutdownResponse struct {
	Target nodevisor.Target `json:"target"`
}

type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Message
}

func formatEtag(serial int64) string {
	return strconv.FormatInt(serial, 10)
}
