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

// Package util is used for internal implementation bits in the CLI/UI.
package util

import (
	"fmt"
	"sort"
	"time"

	"github.com/gdamore/nodevisor"
	"github.com/gdamore/nodevisor/rest"
)

// Level is a coarse health grade used to pick colors.
type Level int

const (
	LevelNormal Level = iota
	LevelGood
	LevelWarn
	LevelError
)

// Status returns a one-word summary of the node.
func Status(n *rest.NodeInfo) string {
	switch n.State {
	case nodevisor.StateRunning:
		switch n.Sync.State {
		case nodevisor.SyncSynced:
			return "ready"
		case nodevisor.SyncSyncing:
			return "syncing"
		}
		return "starting"
	case nodevisor.StateShuttingDown:
		if n.Phase == nodevisor.PhaseKill {
			return "killing"
		}
		return "stopping"
	case nodevisor.StateStopped:
		if n.ExitError != "" {
			return "failed"
		}
		return "stopped"
	}
	return n.State.String()
}

// Grade maps the node onto a Level.
func Grade(n *rest.NodeInfo) Level {
	switch n.State {
	case nodevisor.StateRunning:
		if n.Readiness.Ready() {
			return LevelGood
		}
		return LevelWarn
	case nodevisor.StateLaunching, nodevisor.StateShuttingDown:
		return LevelWarn
	case nodevisor.StateStopped:
		if n.ExitError != "" {
			return LevelError
		}
	}
	return LevelNormal
}

// Progress formats sync progress.  The indexer reports no fraction, so
// only the state is shown for it.
func Progress(n *rest.NodeInfo) string {
	if n.Role != nodevisor.FullNode || n.State != nodevisor.StateRunning {
		return "-"
	}
	if n.Headers == 0 && n.Sync.Progress == 0 {
		return "-"
	}
	return fmt.Sprintf("%6.2f%% %d/%d", n.Sync.Progress*100, n.Blocks, n.Headers)
}

func FormatDuration(d time.Duration) string {

	sec := int((d % time.Minute) / time.Second)
	min := int((d % time.Hour) / time.Minute)
	hour := int(d / time.Hour)

	return fmt.Sprintf("%d:%02d:%02d", hour, min, sec)
}

// Since returns the time since the node last changed, truncated to
// seconds.
func Since(n *rest.NodeInfo) time.Duration {
	if n.TimeStamp.IsZero() {
		return 0
	}
	d := time.Since(n.TimeStamp)
	return d - d%time.Second
}

type sorted []rest.NodeInfo

func (s sorted) Swap(i, j int) {
	s[i], s[j] = s[j], s[i]
}

func (s sorted) Len() int {
	return len(s)
}

func (s sorted) Less(i, j int) bool {
	return s[i].Role < s[j].Role
}

// SortNodes puts nodes in launch order.
func SortNodes(items []rest.NodeInfo) {
	sort.Sort(sorted(items))
}
