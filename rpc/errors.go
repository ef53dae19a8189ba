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
	"fmt"
)

// Kind classifies an RPC failure.
type Kind int

const (
	Unreachable       Kind = iota // connection refused, timeout, reset
	AuthFailed                    // HTTP 401/403
	MethodFailed                  // the node returned an error object
	MalformedResponse             // the reply was not a JSON-RPC response
)

var kindNames = [...]string{"unreachable", "auth failed", "method failed", "malformed response"}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// Error is returned by every failing Call.
type Error struct {
	Kind    Kind
	Method  string
	Code    int    // JSON-RPC error code, for MethodFailed
	Message string // JSON-RPC error message, or HTTP status
	Err     error  // underlying transport or decode error, if any
}

func (e *Error) Error() string {
	switch e.Kind {
	case MethodFailed:
		return fmt.Sprintf("rpc %s: error %d: %s", e.Method, e.Code, e.Message)
	case AuthFailed:
		return fmt.Sprintf("rpc %s: authentication failed (%s)", e.Method, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("rpc %s: %s: %v", e.Method, e.Kind, e.Err)
	}
	return fmt.Sprintf("rpc %s: %s: %s", e.Method, e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, k Kind) bool {
	if e, ok := err.(*Error); ok {
		return e.Kind == k
	}
	return false
}
