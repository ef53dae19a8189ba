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

package util

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/gdamore/nodevisor"
	"github.com/gdamore/nodevisor/rest"
)

func TestStatus(t *testing.T) {
	Convey("Node summaries", t, func() {
		n := &rest.NodeInfo{Role: nodevisor.FullNode}
		So(Status(n), ShouldEqual, "idle")
		So(Grade(n), ShouldEqual, LevelNormal)
		So(Progress(n), ShouldEqual, "-")

		n.State = nodevisor.StateRunning
		So(Status(n), ShouldEqual, "starting")
		So(Grade(n), ShouldEqual, LevelWarn)

		n.Sync = nodevisor.SyncStatus{State: nodevisor.SyncSyncing, Progress: 0.5}
		n.Blocks = 400000
		n.Headers = 800000
		So(Status(n), ShouldEqual, "syncing")
		So(Progress(n), ShouldEqual, " 50.00% 400000/800000")

		n.Sync.State = nodevisor.SyncSynced
		n.Readiness = nodevisor.Readiness{Running: true, Synced: true}
		So(Status(n), ShouldEqual, "ready")
		So(Grade(n), ShouldEqual, LevelGood)

		n.State = nodevisor.StateShuttingDown
		n.Phase = nodevisor.PhaseKill
		So(Status(n), ShouldEqual, "killing")

		n.State = nodevisor.StateStopped
		So(Status(n), ShouldEqual, "stopped")
		So(Grade(n), ShouldEqual, LevelNormal)
		n.ExitError = "exit status 1"
		So(Status(n), ShouldEqual, "failed")
		So(Grade(n), ShouldEqual, LevelError)

		Convey("Indexer shows no fraction", func() {
			i := &rest.NodeInfo{Role: nodevisor.Indexer, State: nodevisor.StateRunning}
			So(Progress(i), ShouldEqual, "-")
		})
	})
}

func TestFormatDuration(t *testing.T) {
	Convey("Durations format as h:mm:ss", t, func() {
		So(FormatDuration(0), ShouldEqual, "0:00:00")
		So(FormatDuration(61*time.Second), ShouldEqual, "0:01:01")
		So(FormatDuration(26*time.Hour+3*time.Minute), ShouldEqual, "26:03:00")
	})
}

func TestSortNodes(t *testing.T) {
	Convey("Nodes sort in launch order", t, func() {
		items := []rest.NodeInfo{{Role: nodevisor.Indexer}, {Role: nodevisor.FullNode}}
		SortNodes(items)
		So(items[0].Role, ShouldEqual, nodevisor.FullNode)
		So(items[1].Role, ShouldEqual, nodevisor.Indexer)
	})
}
