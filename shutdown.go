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
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Target selects which nodes a shutdown stops.
type Target int

const (
	TargetIndexer Target = iota // only the indexer
	TargetBoth                  // the indexer and the full node
)

func (t Target) String() string {
	switch t {
	case TargetIndexer:
		return "indexer"
	case TargetBoth:
		return "both"
	}
	return fmt.Sprintf("target(%d)", int(t))
}

func (t Target) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *Target) UnmarshalText(b []byte) error {
	v, e := ParseTarget(string(b))
	if e != nil {
		return e
	}
	*t = v
	return nil
}

// ParseTarget parses "indexer" or "both".  The empty string means both.
func ParseTarget(name string) (Target, error) {
	switch name {
	case "indexer", "electrs":
		return TargetIndexer, nil
	case "both", "all", "":
		return TargetBoth, nil
	}
	return 0, fmt.Errorf("bad shutdown target %q", name)
}

// drainTime bounds how long a stopped node waits for its output readers.
// A grandchild holding the pipes open must not stall the state machine.
const drainTime = time.Second

// ShutdownRequest is one shutdown in progress.  It is returned by
// Supervisor.Shutdown before any node has been signalled.
type ShutdownRequest struct {
	Target        Target
	IndexerGrace  time.Duration
	FullNodeGrace time.Duration
	Interval      time.Duration

	started  time.Time
	timedOut [numRoles]bool
	done     chan struct{}
	mx       sync.Mutex
}

// Done is closed when every targeted node is stopped.
func (r *ShutdownRequest) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until every targeted node is stopped.
func (r *ShutdownRequest) Wait() {
	<-r.done
}

// WaitTimeout is like Wait, but gives up after d.  It reports whether the
// shutdown completed.
func (r *ShutdownRequest) WaitTimeout(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-r.done:
		return true
	case <-t.C:
		return false
	}
}

// Escalated reports whether the node ignored the graceful request and had
// to be killed.  Only meaningful once the request is done.
func (r *ShutdownRequest) Escalated(role Role) bool {
	r.mx.Lock()
	defer r.mx.Unlock()
	return role >= 0 && role < numRoles && r.timedOut[role]
}

func (r *ShutdownRequest) grace(role Role) time.Duration {
	if role == FullNode {
		return r.FullNodeGrace
	}
	return r.IndexerGrace
}

func (r *ShutdownRequest) roles() []Role {
	if r.Target == TargetIndexer {
		return []Role{Indexer}
	}
	return []Role{Indexer, FullNode}
}

func (s *Supervisor) newRequest(t Target) *ShutdownRequest {
	return &ShutdownRequest{
		Target:        t,
		IndexerGrace:  s.grace[Indexer],
		FullNodeGrace: s.grace[FullNode],
		Interval:      s.interval,
	}
}

// Shutdown begins stopping the targeted nodes with the supervisor's
// default timers, and returns immediately.
func (s *Supervisor) Shutdown(t Target) *ShutdownRequest {
	return s.Submit(s.newRequest(t))
}

// Submit begins the shutdown described by req.  Zero timers in req are
// filled in from the supervisor's defaults.  Nodes that are not running
// are already complete; nodes already shutting down are not signalled
// again, and req completes when that earlier shutdown does.
func (s *Supervisor) Submit(req *ShutdownRequest) *ShutdownRequest {
	if req.IndexerGrace <= 0 {
		req.IndexerGrace = s.grace[Indexer]
	}
	if req.FullNodeGrace <= 0 {
		req.FullNodeGrace = s.grace[FullNode]
	}
	if req.Interval <= 0 {
		req.Interval = s.interval
	}
	return s.submit(req, req.roles()...)
}

func (s *Supervisor) submit(req *ShutdownRequest, roles ...Role) *ShutdownRequest {
	req.started = time.Now()
	req.done = make(chan struct{})
	waits := make([]<-chan struct{}, 0, len(roles))
	for _, r := range roles {
		if ch := s.beginStop(s.nodes[r], req); ch != nil {
			waits = append(waits, ch)
		}
	}
	go func() {
		for _, ch := range waits {
			<-ch
		}
		close(req.done)
	}()
	return req
}

// beginStop moves a running node to ShuttingDown and starts its
// escalation.  It returns a channel closed when the node has stopped, or
// nil if there is nothing to wait for.
func (s *Supervisor) beginStop(n *node, req *ShutdownRequest) <-chan struct{} {
	n.lock()
	switch n.state {
	case StateShuttingDown:
		ch := n.stopped
		n.joined = append(n.joined, req)
		n.unlock()
		return ch
	case StateRunning:
	default:
		n.unlock()
		return nil
	}
	h := n.handle
	n.state = StateShuttingDown
	n.phase = PhaseGraceful
	n.stopped = make(chan struct{})
	n.joined = []*ShutdownRequest{req}
	n.killed = false
	ch := n.stopped
	s.setStatus(n, "Shutting down")
	n.unlock()

	s.wg.Add(1)
	go s.stopNode(n, h, req)
	return ch
}

// stopNode runs the escalation for one node: a graceful request, a
// bounded wait, then SIGKILL.
func (s *Supervisor) stopNode(n *node, h ProcessHandle, req *ShutdownRequest) {
	defer s.wg.Done()

	grace := req.grace(n.role)
	if n.role == FullNode {
		s.logf(n, log.InfoLevel, "Requesting stop via RPC")
		if e := s.rpcStop(); e != nil {
			// bitcoind also shuts down cleanly on SIGTERM.
			s.logf(n, log.WarnLevel, "RPC stop failed (%v), sending SIGTERM", e)
			if e := h.Terminate(); e != nil {
				s.logf(n, log.WarnLevel, "SIGTERM failed: %v", e)
			}
		}
	} else {
		s.logf(n, log.InfoLevel, "Sending SIGTERM")
		if e := h.Terminate(); e != nil {
			s.logf(n, log.WarnLevel, "SIGTERM failed: %v", e)
		}
	}

	if !waitExit(h, grace, req.Interval) {
		n.lock()
		n.killed = true
		n.phase = PhaseKill
		s.setStatus(n, "Killing")
		n.unlock()
		s.logf(n, log.WarnLevel, "%v after %v, sending SIGKILL", ErrShutdownTimeout, grace)
		if e := h.Kill(); e != nil {
			s.logf(n, log.ErrorLevel, "SIGKILL failed: %v", e)
		}
		<-h.Done()
	}

	n.lock()
	captured := n.captured
	n.unlock()
	drain(captured)

	n.lock()
	n.handle = nil
	n.state = StateStopped
	n.phase = PhaseNone
	n.sync = SyncStatus{}
	n.exitErr = h.Err()
	s.setStatus(n, "Stopped")
	// Every request that waited on this stop learns how it ended.
	for _, r := range n.joined {
		r.mx.Lock()
		r.timedOut[n.role] = n.killed
		r.mx.Unlock()
	}
	n.joined = nil
	close(n.stopped)
	n.unlock()
	s.logf(n, log.InfoLevel, "Stopped after %v", time.Since(req.started).Round(time.Millisecond))
}

func (s *Supervisor) rpcStop() error {
	if s.rpc == nil {
		return ErrNoRPC
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.rpcTimeout)
	defer cancel()
	return s.rpc.Stop(ctx)
}

func drain(ch <-chan struct{}) {
	if ch == nil {
		return
	}
	t := time.NewTimer(drainTime)
	defer t.Stop()
	select {
	case <-ch:
	case <-t.C:
	}
}
