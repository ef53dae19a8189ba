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

//go:build !js && !wasip1

package main

import (
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/gdamore/nodevisor/nodevisor/ui"
)

var uiLog string

var uiCmd = &cobra.Command{
	Use:   "ui",
	Short: "Full screen interface",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app := ui.NewApp(client, addr)
		if uiLog != "" {
			f, e := os.OpenFile(uiLog, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
			if e != nil {
				return e
			}
			defer f.Close()
			app.SetLogger(log.NewWithOptions(f, log.Options{
				ReportTimestamp: true,
				Level:           log.DebugLevel,
				Prefix:          "ui",
			}))
		}
		return app.Run()
	},
}

func init() {
	uiCmd.Flags().StringVar(&uiLog, "log", "", "write a debug log to this file")
}

/*
   Our screen has the following appearance:

    http://127.0.0.1:8321                                      Nodevisor v1.0
    bitcoind   syncing     48.20% 401211/832004    0:12:07   Verifying blocks
    electrs    idle        -                       0:00:00
   ____________________________________________________________________________
    1 Running  1 Syncing  0 Ready  0 Failed
    [Q] Quit [H] Help [I] Info [L] Log [S] Stop indexer [X] Stop all
*/
