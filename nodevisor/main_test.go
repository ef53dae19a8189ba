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

package main

import (
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/gdamore/nodevisor/updater"
)

func TestUpdateHint(t *testing.T) {
	Convey("Update failures explain themselves", t, func() {
		helper := func() string { return "/Applications/BitForge.app" }

		Convey("No staging directory names the helper", func() {
			msg := updateHint(updater.ErrNoStagingSource, helper)
			So(msg, ShouldContainSubstring, updater.ErrNoStagingSource.Error())
			So(msg, ShouldContainSubstring, "/Applications/BitForge.app")
		})
		Convey("An empty staging directory says what is missing", func() {
			msg := updateHint(updater.ErrNothingToUpdate, helper)
			So(msg, ShouldEqual, "No bitcoin-X.Y.Z or electrs-X.Y.Z folders found in the staging directory.")
			So(msg, ShouldNotContainSubstring, "up to date")
		})
		Convey("Other errors get no hint", func() {
			So(updateHint(errors.New("connection refused"), helper), ShouldEqual, "")
		})
	})
}
