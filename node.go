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
	"fmt"
	"strings"
	"time"
)

// Role is one of the two fixed node roles managed by a Supervisor.
type Role int

const (
	FullNode Role = iota // the validating daemon, bitcoind
	Indexer              // the chain indexer, electrs
	numRoles
)

// Roles lists every role, in launch order.
var Roles = []Role{FullNode, Indexer}

var roleNames = [...]string{"bitcoind", "electrs"}

func (r Role) String() string {
	if r < 0 || r >= numRoles {
		return fmt.Sprintf("role(%d)", int(r))
	}
	return roleNames[r]
}

func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(b []byte) error {
	v, e := ParseRole(string(b))
	if e != nil {
		return e
	}
	*r = v
	return nil
}

// ParseRole accepts the role's binary name, or one of the aliases
// "fullnode"/"bitcoin" and "indexer".
func ParseRole(name string) (Role, error) {
	switch strings.ToLower(name) {
	case "bitcoind", "bitcoin", "fullnode", "full", "node":
		return FullNode, nil
	case "electrs", "indexer", "index":
		return Indexer, nil
	}
	return 0, ErrUnknownNode
}

// NodeSpec describes how a node is launched.
type NodeSpec struct {
	Path string   // executable
	Dir  string   // working (data) directory
	Args []string // arguments, not including the executable
	Env  []string // extra environment, appended to os.Environ()
}

// CommandLine renders the spec as a shell-like string for display.
func (ns *NodeSpec) CommandLine() string {
	return strings.Join(append([]string{ns.Path}, ns.Args...), " ")
}

// State is the lifecycle state of a node's process.
type State int

const (
	StateIdle State = iota
	StateLaunching
	StateRunning
	StateShuttingDown
	StateStopped
)

var stateNames = [...]string{"idle", "launching", "running", "shutting down", "stopped"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	for i, n := range stateNames {
		if n == string(b) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("bad state %q", string(b))
}

// Phase is the escalation step of a shutdown in progress.
type Phase int

const (
	PhaseNone     Phase = iota
	PhaseGraceful       // RPC stop or SIGTERM sent, waiting for exit
	PhaseKill           // SIGKILL sent, waiting for reap
)

var phaseNames = [...]string{"", "graceful", "kill"}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "unknown"
	}
	return phaseNames[p]
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Phase) UnmarshalText(b []byte) error {
	for i, n := range phaseNames {
		if n == string(b) {
			*p = Phase(i)
			return nil
		}
	}
	return fmt.Errorf("bad phase %q", string(b))
}

// SyncState is the coarse synchronization state of a node.
type SyncState int

const (
	SyncUnknown SyncState = iota
	SyncSyncing
	SyncSynced
)

var syncNames = [...]string{"unknown", "syncing", "synced"}

func (s SyncState) String() string {
	if s < 0 || int(s) >= len(syncNames) {
		return "unknown"
	}
	return syncNames[s]
}

func (s SyncState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *SyncState) UnmarshalText(b []byte) error {
	for i, n := range syncNames {
		if n == string(b) {
			*s = SyncState(i)
			return nil
		}
	}
	return fmt.Errorf("bad sync state %q", string(b))
}

// SyncStatus carries the sync state and, for the full node, the reported
// verification progress (0..1).
type SyncStatus struct {
	State    SyncState `json:"state"`
	Progress float64   `json:"progress"`
}

// Readiness reports the running and synced conditions independently, so
// partial progress can be displayed.
type Readiness struct {
	Running bool `json:"running"`
	Synced  bool `json:"synced"`
}

// Ready is true only when the node is both running and synced.
func (r Readiness) Ready() bool {
	return r.Running && r.Synced
}

// NodeInfo is a consistent snapshot of a node.
type NodeInfo struct {
	Role      Role       `json:"role"`
	State     State      `json:"state"`
	Phase     Phase      `json:"phase,omitempty"`
	Pid       int        `json:"pid,omitempty"`
	Sync      SyncStatus `json:"sync"`
	Readiness Readiness  `json:"readiness"`
	Blocks    uint64     `json:"blocks"`
	Headers   uint64     `json:"headers"`
	Chain     string     `json:"chain,omitempty"`
	RPCError  string     `json:"rpcError,omitempty"`
	ExitError string     `json:"exitError,omitempty"`
	Status    string     `json:"status"`
	TimeStamp time.Time  `json:"tstamp"`
	Serial    int64      `json:"serial,string"`
}
