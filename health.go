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
	"strings"

	"github.com/gdamore/nodevisor/rpc"
)

// DefaultSyncPhrases are the lines the indexer prints once it has caught
// up with the chain.  They track the indexer's log wording, not a stable
// interface, so they are configurable.
var DefaultSyncPhrases = []string{
	"finished full compaction",
	"electrs running",
	"waiting for new block",
	"index update completed",
	"chain best block",
}

// SyncedProgress is the verification progress above which the full node
// is considered synced.
const SyncedProgress = 0.9999

// Classifier recognizes indexer sync completion in free-text output.
type Classifier struct {
	phrases []string
}

// NewClassifier returns a Classifier for the given phrases, matched
// case-insensitively.  An empty list selects DefaultSyncPhrases.
func NewClassifier(phrases []string) *Classifier {
	if len(phrases) == 0 {
		phrases = DefaultSyncPhrases
	}
	c := &Classifier{phrases: make([]string, 0, len(phrases))}
	for _, p := range phrases {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			c.phrases = append(c.phrases, p)
		}
	}
	return c
}

// Phrases returns the normalized phrase list.
func (c *Classifier) Phrases() []string {
	return append([]string{}, c.phrases...)
}

// Match reports whether line contains any recognized phrase.
func (c *Classifier) Match(line string) bool {
	l := strings.ToLower(line)
	for _, p := range c.phrases {
		if strings.Contains(l, p) {
			return true
		}
	}
	return false
}

// Scan reports whether any process output record matches.  Supervisor
// messages are ignored.
func (c *Classifier) Scan(recs []LogRecord) bool {
	for _, r := range recs {
		if r.Stream == StreamSystem {
			continue
		}
		if c.Match(r.Text) {
			return true
		}
	}
	return false
}

// fullNodeSync derives a SyncStatus from getblockchaininfo.  The node must
// report headers and be within one block of them.
func fullNodeSync(info *rpc.BlockchainInfo) SyncStatus {
	st := SyncStatus{State: SyncSyncing, Progress: info.VerificationProgress}
	if info.VerificationProgress > SyncedProgress &&
		info.Headers > 0 && info.Blocks+1 >= info.Headers {
		st.State = SyncSynced
	}
	return st
}

// advance merges a new observation into s.  Once synced, a status never
// reverts for the rest of the run.
func (s SyncStatus) advance(next SyncStatus) SyncStatus {
	if s.State == SyncSynced {
		if next.Progress > s.Progress {
			s.Progress = next.Progress
		}
		return s
	}
	return next
}
