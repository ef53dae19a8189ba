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

package nodevisor

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownNode     = errors.New("Unknown node")
	ErrAlreadyRunning  = errors.New("Node is already running")
	ErrNotRunning      = errors.New("Node is not running")
	ErrDependency      = errors.New("Full node must be running first")
	ErrShuttingDown    = errors.New("Node is shutting down")
	ErrNoRPC           = errors.New("Node has no RPC endpoint")
	ErrBadStream       = errors.New("Bad stream name")
	ErrClosed          = errors.New("Supervisor is closed")
	ErrShutdownTimeout = errors.New("Graceful shutdown timed out")
)

// SpawnError is returned when a node's binary could not be started.  The
// node is left in the state it was in before the launch attempt.
type SpawnError struct {
	Role Role
	Path string
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s (%s): %v", e.Role, e.Path, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}
