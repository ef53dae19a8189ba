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
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/gdamore/nodevisor/rpc"
)

// Defaults used when Options leaves a field zero.
const (
	DefaultIndexerGrace  = 10 * time.Second
	DefaultFullNodeGrace = 60 * time.Second
	DefaultStopInterval  = 200 * time.Millisecond
	DefaultTick          = 587 * time.Millisecond
	DefaultPollInterval  = 5 * time.Second
)

// NodeRPC is the part of the full node's RPC interface the supervisor
// uses.  *rpc.Client implements it.
type NodeRPC interface {
	BlockchainInfo(ctx context.Context) (*rpc.BlockchainInfo, error)
	Stop(ctx context.Context) error
}

// Options configure a Supervisor.  Zero values select defaults.
type Options struct {
	Name          string
	FullNode      NodeSpec
	Indexer       NodeSpec
	RPC           NodeRPC // nil if the full node has no reachable endpoint
	RPCTimeout    time.Duration
	Start         StartFunc
	SyncPhrases   []string
	IndexerGrace  time.Duration
	FullNodeGrace time.Duration
	StopInterval  time.Duration
	LogRecords    int
	Logger        *log.Logger

	// Prepare, if set, runs before each launch.  It may adjust the spec
	// (for example to write a default configuration file) and an error
	// aborts the launch.
	Prepare func(r Role, spec *NodeSpec) error
}

type node struct {
	role     Role
	spec     NodeSpec
	out      *Output
	handle   ProcessHandle
	state    State
	phase    Phase
	sync     SyncStatus
	chain    rpc.BlockchainInfo
	rpcErr   error
	exitErr  error
	status   string
	stamp    time.Time
	serial   int64
	polling  bool
	scanned  int64
	stopped  chan struct{}
	joined   []*ShutdownRequest
	killed   bool
	captured <-chan struct{}
	mx       sync.Mutex
}

func (n *node) lock() {
	n.mx.Lock()
}

func (n *node) unlock() {
	n.mx.Unlock()
}

// Supervisor owns the full node and the indexer.  It launches them, tracks
// their health, and stops them.  All methods are safe for concurrent use
// and none of them block on the children.
type Supervisor struct {
	name       string
	nodes      [numRoles]*node
	rpc        NodeRPC
	rpcTimeout time.Duration
	start      StartFunc
	prepare    func(Role, *NodeSpec) error
	classifier *Classifier
	grace      [numRoles]time.Duration
	interval   time.Duration
	logger     *log.Logger
	serial     int64
	createTime time.Time
	updateTime time.Time
	cvs        map[*sync.Cond]bool
	quit       chan struct{}
	monitoring bool
	closed     bool
	wg         sync.WaitGroup
	mx         sync.Mutex
}

// SupervisorInfo is top-level information about a Supervisor.
type SupervisorInfo struct {
	Name       string    `json:"name"`
	Serial     int64     `json:"serial,string"`
	CreateTime time.Time `json:"created"`
	UpdateTime time.Time `json:"updated"`
}

// NewSupervisor returns a Supervisor with both nodes idle.  Monitoring is
// not started; see StartMonitoring.
func NewSupervisor(opts Options) *Supervisor {
	if opts.Name == "" {
		opts.Name = "nodevisor"
	}
	s := &Supervisor{
		name:       opts.Name,
		rpc:        opts.RPC,
		rpcTimeout: opts.RPCTimeout,
		start:      opts.Start,
		prepare:    opts.Prepare,
		classifier: NewClassifier(opts.SyncPhrases),
		interval:   opts.StopInterval,
		logger:     opts.Logger,
		// Start the serial at the current time, so that clients caching
		// against it notice a restarted server.
		serial: time.Now().UnixNano(),
		cvs:    make(map[*sync.Cond]bool),
	}
	if s.rpcTimeout <= 0 {
		s.rpcTimeout = rpc.DefaultTimeout
	}
	if s.start == nil {
		s.start = StartProcess
	}
	if s.interval <= 0 {
		s.interval = DefaultStopInterval
	}
	if s.logger == nil {
		s.logger = log.NewWithOptions(os.Stderr, log.Options{
			Prefix:          s.name,
			ReportTimestamp: true,
		})
	}
	s.grace[FullNode] = opts.FullNodeGrace
	if s.grace[FullNode] <= 0 {
		s.grace[FullNode] = DefaultFullNodeGrace
	}
	s.grace[Indexer] = opts.IndexerGrace
	if s.grace[Indexer] <= 0 {
		s.grace[Indexer] = DefaultIndexerGrace
	}
	specs := [numRoles]NodeSpec{opts.FullNode, opts.Indexer}
	for _, r := range Roles {
		s.nodes[r] = &node{
			role:   r,
			spec:   specs[r],
			out:    NewOutput(opts.LogRecords),
			status: "Not started",
			stamp:  time.Now(),
			serial: s.serial,
		}
	}
	s.createTime = time.Now()
	s.updateTime = s.createTime
	return s
}

func (s *Supervisor) lock() {
	s.mx.Lock()
}

func (s *Supervisor) unlock() {
	s.mx.Unlock()
}

// bumpSerial increments the serial and wakes watchers.  It returns the
// new serial so that it can be stored in the node that changed.
func (s *Supervisor) bumpSerial() int64 {
	s.lock()
	s.updateTime = time.Now()
	s.serial++
	rv := s.serial
	for cv := range s.cvs {
		cv.Broadcast()
	}
	s.unlock()
	return rv
}

// changed records a state change on n.  Call with n locked.
func (s *Supervisor) changed(n *node) {
	n.serial = s.bumpSerial()
}

// WatchSerial waits for the serial number to move past old, or for the
// expiration to pass, and returns the current serial.  An expiration of
// zero polls.
func (s *Supervisor) WatchSerial(old int64, expire time.Duration) int64 {
	expired := false
	cv := sync.NewCond(&s.mx)
	var timer *time.Timer
	var rv int64

	if expire > 0 {
		timer = time.AfterFunc(expire, func() {
			s.lock()
			expired = true
			cv.Broadcast()
			s.unlock()
		})
	} else {
		expired = true
	}

	s.lock()
	s.cvs[cv] = true
	for {
		rv = s.serial
		if rv != old || expired {
			break
		}
		cv.Wait()
	}
	delete(s.cvs, cv)
	s.unlock()
	if timer != nil {
		timer.Stop()
	}
	return rv
}

// Serial returns the global serial number.  It changes whenever either
// node changes state, sync status or status message.
func (s *Supervisor) Serial() int64 {
	s.lock()
	defer s.unlock()
	return s.serial
}

// Name returns the name the supervisor was created with.
func (s *Supervisor) Name() string {
	return s.name
}

// GetInfo returns a consistent snapshot of top-level information.
func (s *Supervisor) GetInfo() *SupervisorInfo {
	s.lock()
	defer s.unlock()
	return &SupervisorInfo{
		Name:       s.name,
		Serial:     s.serial,
		CreateTime: s.createTime,
		UpdateTime: s.updateTime,
	}
}

// SetLogger replaces the structured logger.
func (s *Supervisor) SetLogger(l *log.Logger) {
	s.lock()
	s.logger = l
	s.unlock()
}

func (s *Supervisor) getLogger() *log.Logger {
	s.lock()
	defer s.unlock()
	return s.logger
}

// logf logs a message about n, and mirrors it into the node's system
// stream so that it shows up inline with the process output.
func (s *Supervisor) logf(n *node, level log.Level, format string, v ...interface{}) {
	msg := fmt.Sprintf(format, v...)
	n.out.Append(StreamSystem, msg)
	s.getLogger().Log(level, msg, "node", n.role)
}

// setStatus updates the node's status line.  Call with n locked.
func (s *Supervisor) setStatus(n *node, status string) {
	n.status = status
	n.stamp = time.Now()
	s.changed(n)
}

func (s *Supervisor) node(r Role) (*node, error) {
	if r < 0 || r >= numRoles {
		return nil, ErrUnknownNode
	}
	return s.nodes[r], nil
}

// Output returns the captured output of a node.
func (s *Supervisor) Output(r Role) (*Output, error) {
	n, e := s.node(r)
	if e != nil {
		return nil, e
	}
	return n.out, nil
}

// Spec returns the launch description of a node.
func (s *Supervisor) Spec(r Role) (NodeSpec, error) {
	n, e := s.node(r)
	if e != nil {
		return NodeSpec{}, e
	}
	n.lock()
	defer n.unlock()
	return n.spec, nil
}

// SetSpec replaces the launch description of a node.  It takes effect on
// the next launch.
func (s *Supervisor) SetSpec(r Role, spec NodeSpec) error {
	n, e := s.node(r)
	if e != nil {
		return e
	}
	n.lock()
	n.spec = spec
	n.unlock()
	return nil
}

func (s *Supervisor) snapshot(n *node) NodeInfo {
	n.lock()
	defer n.unlock()
	info := NodeInfo{
		Role:      n.role,
		State:     n.state,
		Phase:     n.phase,
		Sync:      n.sync,
		Blocks:    n.chain.Blocks,
		Headers:   n.chain.Headers,
		Chain:     n.chain.Chain,
		Status:    n.status,
		TimeStamp: n.stamp,
		Serial:    n.serial,
	}
	if n.handle != nil {
		info.Pid = n.handle.Pid()
	}
	if n.rpcErr != nil {
		info.RPCError = n.rpcErr.Error()
	}
	if n.exitErr != nil {
		info.ExitError = n.exitErr.Error()
	}
	info.Readiness.Running = n.state == StateRunning
	info.Readiness.Synced = n.sync.State == SyncSynced
	return info
}

// Info returns a consistent snapshot of one node.
func (s *Supervisor) Info(r Role) (NodeInfo, error) {
	n, e := s.node(r)
	if e != nil {
		return NodeInfo{}, e
	}
	return s.snapshot(n), nil
}

// Infos returns snapshots of both nodes, in launch order.
func (s *Supervisor) Infos() []NodeInfo {
	rv := make([]NodeInfo, 0, len(Roles))
	for _, r := range Roles {
		rv = append(rv, s.snapshot(s.nodes[r]))
	}
	return rv
}

// Readiness reports whether a node is running and synced.
func (s *Supervisor) Readiness(r Role) Readiness {
	info, e := s.Info(r)
	if e != nil {
		return Readiness{}
	}
	return info.Readiness
}

// Alive reports whether the node's process is still alive.
func (s *Supervisor) Alive(r Role) bool {
	n, e := s.node(r)
	if e != nil {
		return false
	}
	n.lock()
	h := n.handle
	n.unlock()
	return h != nil && h.Alive()
}

func (s *Supervisor) isClosed() bool {
	s.lock()
	defer s.unlock()
	return s.closed
}

// Launch starts a node.  It returns once the operating system has
// accepted the process, without waiting for it to become healthy.  The
// indexer can only be launched while the full node is running.
func (s *Supervisor) Launch(r Role) error {
	n, e := s.node(r)
	if e != nil {
		return e
	}
	if s.isClosed() {
		return ErrClosed
	}
	if r == Indexer && !s.Readiness(FullNode).Running {
		return ErrDependency
	}

	n.lock()
	switch n.state {
	case StateLaunching, StateRunning:
		n.unlock()
		return ErrAlreadyRunning
	case StateShuttingDown:
		n.unlock()
		return ErrShuttingDown
	}
	prev := n.state
	spec := n.spec
	n.state = StateLaunching
	s.setStatus(n, "Launching")
	n.unlock()

	h, stdout, stderr, e := s.spawn(r, &spec)
	if e != nil {
		se := &SpawnError{Role: r, Path: spec.Path, Err: e}
		n.lock()
		n.state = prev
		s.setStatus(n, "Failed to launch: "+e.Error())
		n.unlock()
		s.logf(n, log.ErrorLevel, "Failed to launch: %v", e)
		return se
	}

	// Output retained from an earlier run must not classify this one.
	mark := n.out.Serial()
	done := capture(n.out, stdout, stderr)
	n.lock()
	n.handle = h
	n.captured = done
	n.state = StateRunning
	n.phase = PhaseNone
	n.sync = SyncStatus{}
	n.chain = rpc.BlockchainInfo{}
	n.rpcErr = nil
	n.exitErr = nil
	n.scanned = mark
	s.setStatus(n, fmt.Sprintf("Running (pid %d)", h.Pid()))
	n.unlock()
	s.logf(n, log.InfoLevel, "Started %s (pid %d)", r, h.Pid())

	s.wg.Add(1)
	go s.reap(n, h)

	// Close may have run while we were spawning.
	if s.isClosed() {
		s.submit(s.newRequest(TargetBoth), r)
	}
	return nil
}

func (s *Supervisor) spawn(r Role, spec *NodeSpec) (ProcessHandle, io.ReadCloser, io.ReadCloser, error) {
	if s.prepare != nil {
		if e := s.prepare(r, spec); e != nil {
			return nil, nil, nil, e
		}
	}
	if spec.Dir != "" {
		if e := os.MkdirAll(spec.Dir, 0o755); e != nil {
			return nil, nil, nil, e
		}
	}
	s.logf(s.nodes[r], log.InfoLevel, "$ %s", spec.CommandLine())
	return s.start(spec)
}

// reap waits for the process to exit on its own.  Exits during a shutdown
// are handled by the shutdown itself.
func (s *Supervisor) reap(n *node, h ProcessHandle) {
	defer s.wg.Done()
	<-h.Done()
	n.lock()
	captured := n.captured
	n.unlock()
	drain(captured)
	s.exited(n, h)
}

// exited moves a running node whose process has gone away to Stopped.
func (s *Supervisor) exited(n *node, h ProcessHandle) {
	n.lock()
	if n.handle != h || n.state != StateRunning {
		n.unlock()
		return
	}
	select {
	case <-h.Done():
	default:
		// Alive said no, but the reaper has not caught up yet.
		n.unlock()
		return
	}
	n.handle = nil
	n.state = StateStopped
	n.sync = SyncStatus{}
	n.exitErr = h.Err()
	msg := "Exited"
	if n.exitErr != nil {
		msg = "Exited: " + n.exitErr.Error()
	}
	s.setStatus(n, msg)
	n.unlock()
	s.logf(n, log.WarnLevel, "%s", msg)
}

// Poll asks the full node for its chain status.  The call runs in the
// background; Poll returns false if the node is not running, has no RPC
// endpoint, or a previous poll is still in flight.
func (s *Supervisor) Poll() bool {
	n := s.nodes[FullNode]
	n.lock()
	if s.rpc == nil || n.state != StateRunning || n.polling {
		n.unlock()
		return false
	}
	n.polling = true
	h := n.handle
	n.unlock()

	s.wg.Add(1)
	go s.poll(n, h)
	return true
}

func (s *Supervisor) poll(n *node, h ProcessHandle) {
	defer s.wg.Done()
	ctx, cancel := context.WithTimeout(context.Background(), s.rpcTimeout)
	info, e := s.rpc.BlockchainInfo(ctx)
	cancel()

	n.lock()
	defer n.unlock()
	n.polling = false
	if n.handle != h || n.state != StateRunning {
		// Stale answer from a previous run.
		return
	}
	if e != nil {
		first := n.rpcErr == nil
		n.rpcErr = e
		if first {
			s.changed(n)
			s.getLogger().Debug("RPC poll failed", "node", n.role, "err", e)
		}
		return
	}
	was := n.sync.State
	n.rpcErr = nil
	n.chain = *info
	n.sync = n.sync.advance(fullNodeSync(info))
	s.changed(n)
	if was != SyncSynced && n.sync.State == SyncSynced {
		n.out.Append(StreamSystem, "Full node is synced")
		s.getLogger().Info("Full node is synced", "node", n.role,
			"blocks", info.Blocks, "chain", info.Chain)
	}
}

// Tick performs one round of liveness checks and indexer classification.
// The monitor calls it periodically; tests may call it directly.
func (s *Supervisor) Tick() {
	for _, n := range s.nodes {
		n.lock()
		h := n.handle
		running := n.state == StateRunning
		n.unlock()
		if running && h != nil && !h.Alive() {
			s.exited(n, h)
		}
	}
	s.classify(s.nodes[Indexer])
}

// classify scans indexer output appended since the last scan for a sync
// phrase.  Once synced the indexer stays synced until it stops.
func (s *Supervisor) classify(n *node) {
	n.lock()
	if n.state != StateRunning || n.sync.State == SyncSynced {
		n.unlock()
		return
	}
	after := n.scanned
	h := n.handle
	n.unlock()

	recs := n.out.Since(after)
	if len(recs) == 0 {
		return
	}
	matched := s.classifier.Scan(recs)

	n.lock()
	if n.handle != h || n.state != StateRunning {
		n.unlock()
		return
	}
	if last := recs[len(recs)-1].Id; last > n.scanned {
		n.scanned = last
	}
	switch {
	case matched:
		n.sync = SyncStatus{State: SyncSynced, Progress: 1}
		s.changed(n)
	case n.sync.State == SyncUnknown:
		n.sync.State = SyncSyncing
		s.changed(n)
	default:
		n.unlock()
		return
	}
	n.unlock()
	if matched {
		s.logf(n, log.InfoLevel, "Indexer is synced")
	}
}

func (s *Supervisor) monitor(tick, poll time.Duration, quit chan struct{}) {
	defer s.wg.Done()
	tt := time.NewTicker(tick)
	pt := time.NewTicker(poll)
	defer tt.Stop()
	defer pt.Stop()
	for {
		select {
		case <-quit:
			return
		case <-tt.C:
			s.Tick()
		case <-pt.C:
			s.Poll()
		}
	}
}

// StartMonitoring starts the background monitor.  Zero durations select
// DefaultTick and DefaultPollInterval.
func (s *Supervisor) StartMonitoring(tick, poll time.Duration) {
	if tick <= 0 {
		tick = DefaultTick
	}
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	s.lock()
	if s.monitoring || s.closed {
		s.unlock()
		return
	}
	s.monitoring = true
	s.quit = make(chan struct{})
	s.wg.Add(1)
	go s.monitor(tick, poll, s.quit)
	s.unlock()
	s.getLogger().Info("Monitoring started", "tick", tick, "poll", poll)
}

// StopMonitoring stops the background monitor, if running.
func (s *Supervisor) StopMonitoring() {
	s.lock()
	if !s.monitoring {
		s.unlock()
		return
	}
	s.monitoring = false
	close(s.quit)
	s.unlock()
	s.getLogger().Info("Monitoring stopped")
}

// Close shuts down both nodes, waits for them to stop, and stops the
// monitor.  Further launches fail with ErrClosed.
func (s *Supervisor) Close() {
	s.lock()
	if s.closed {
		s.unlock()
		return
	}
	s.closed = true
	s.unlock()

	s.Shutdown(TargetBoth).Wait()
	s.StopMonitoring()
	s.wg.Wait()
	s.getLogger().Info("Supervisor closed", "name", s.name)
}
