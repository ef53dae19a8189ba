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

// Command nodevisor is the client for nodevisord.  It uses subcommands.
//
// The flags are
//
//	-a <address>	- select the server address, default is
//			  http://127.0.0.1:8321
//	-u <user:pass>	- user name & password for basic auth
//
// Subcommands are
//
//	status              - show the state of both nodes
//	launch <node>       - launch bitcoind or electrs
//	shutdown            - stop both nodes (--indexer-only for electrs)
//	update              - install staged binaries
//	log <node>          - show a node's log (-f to follow)
//	ui                  - full screen interface (the default)
//	hash-password       - print a bcrypt hash for the server config
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/gdamore/nodevisor"
	"github.com/gdamore/nodevisor/config"
	"github.com/gdamore/nodevisor/nodevisor/util"
	"github.com/gdamore/nodevisor/rest"
	"github.com/gdamore/nodevisor/updater"
)

var (
	addr   = "http://127.0.0.1:8321"
	auth   string
	client *rest.Client
)

var rootCmd = &cobra.Command{
	Use:   "nodevisor",
	Short: "Control a nodevisord server",
	Args:  cobra.NoArgs,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		client = rest.NewClient(nil, addr)
		if auth != "" {
			a := strings.SplitN(auth, ":", 2)
			if len(a) != 2 {
				return errors.New("bad user:pass supplied")
			}
			client.SetAuth(a[0], a[1])
		}
		return nil
	},
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return uiCmd.RunE(cmd, args)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state of both nodes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		infos, e := client.Nodes(cmd.Context())
		if e != nil {
			return e
		}
		util.SortNodes(infos)
		for i := range infos {
			showStatus(&infos[i])
		}
		return nil
	},
}

var launchCmd = &cobra.Command{
	Use:   "launch <node>",
	Short: "Launch bitcoind or electrs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		role, e := nodevisor.ParseRole(args[0])
		if e != nil {
			return e
		}
		return client.Launch(cmd.Context(), role)
	},
}

var (
	indexerOnly bool
	waitStop    bool
)

var shutdownCmd = &cobra.Command{
	Use:   "shutdown",
	Short: "Stop the nodes, indexer first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		target := nodevisor.TargetBoth
		if indexerOnly {
			target = nodevisor.TargetIndexer
		}
		if e := client.Shutdown(cmd.Context(), target); e != nil {
			return e
		}
		if !waitStop {
			return nil
		}
		return waitStopped(cmd.Context(), target)
	},
}

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Install the newest staged binaries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Minute)
		defer cancel()
		rep, e := client.Update(ctx)
		if e != nil {
			if msg := updateHint(e, helperApp); msg != "" {
				fmt.Fprintln(os.Stderr, msg)
			}
			return e
		}
		showReport(rep)
		if rep.Failed() {
			return errors.New("update failed")
		}
		return nil
	},
}

var (
	follow    bool
	logStream string
)

var logCmd = &cobra.Command{
	Use:   "log <node>",
	Short: "Show a node's captured output",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		role, e := nodevisor.ParseRole(args[0])
		if e != nil {
			return e
		}
		info, e := client.GetLog(cmd.Context(), role, logStream)
		if e != nil {
			return e
		}
		var last int64
		for _, r := range info.Records {
			showRecord(r)
			last = r.Id
		}
		if !follow {
			return nil
		}
		e = client.StreamLog(cmd.Context(), role, logStream, last, showRecord)
		if errors.Is(e, context.Canceled) {
			return nil
		}
		return e
	},
}

var hashCmd = &cobra.Command{
	Use:   "hash-password [password]",
	Short: "Print a bcrypt hash for the api.passwordHash setting",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var pass string
		if len(args) == 1 {
			pass = args[0]
		} else {
			sc := bufio.NewScanner(os.Stdin)
			if !sc.Scan() {
				if e := sc.Err(); e != nil {
					return e
				}
				return errors.New("no password supplied")
			}
			pass = sc.Text()
		}
		h, e := bcrypt.GenerateFromPassword([]byte(pass), bcrypt.DefaultCost)
		if e != nil {
			return e
		}
		fmt.Println(string(h))
		return nil
	},
}

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed, color.Bold).SprintFunc()
	faint  = color.New(color.Faint).SprintFunc()
)

func paint(l util.Level, s string) string {
	switch l {
	case util.LevelGood:
		return green(s)
	case util.LevelWarn:
		return yellow(s)
	case util.LevelError:
		return red(s)
	}
	return s
}

func showStatus(n *rest.NodeInfo) {
	fmt.Printf("%-10s %s %20s %10s   %s\n", n.Role,
		paint(util.Grade(n), fmt.Sprintf("%-10s", util.Status(n))),
		util.Progress(n), util.FormatDuration(util.Since(n)), n.Status)
	if n.RPCError != "" {
		fmt.Printf("%-10s %s\n", "", faint("rpc: "+n.RPCError))
	}
}

func showRecord(r rest.LogRecord) {
	text := r.Text
	switch r.Stream {
	case nodevisor.StreamStderr:
		text = yellow(text)
	case nodevisor.StreamSystem:
		text = faint(text)
	}
	fmt.Printf("%s %s\n", r.Time.Format(time.StampMilli), text)
}

func showReport(rep *updater.Report) {
	for _, res := range rep.Results {
		c := res.Candidate
		if res.Error != "" {
			fmt.Printf("%-8s %-10s %s\n", c.Role, c.Version, red(res.Error))
			continue
		}
		fmt.Printf("%-8s %-10s %s %s\n", c.Role, c.Version, green("installed"),
			strings.Join(res.Installed, " "))
	}
}

// waitStopped follows node state until the targeted nodes have exited.
func waitStopped(ctx context.Context, target nodevisor.Target) error {
	for {
		infos, _, e := client.WatchNodes(ctx)
		if e != nil {
			return e
		}
		busy := false
		for i := range infos {
			n := &infos[i]
			if target == nodevisor.TargetIndexer && n.Role != nodevisor.Indexer {
				continue
			}
			switch n.State {
			case nodevisor.StateRunning, nodevisor.StateShuttingDown:
				busy = true
			}
		}
		if !busy {
			util.SortNodes(infos)
			for i := range infos {
				showStatus(&infos[i])
			}
			return nil
		}
	}
}

// updateHint explains an update that could not start.  helper is only
// consulted when there is no staging directory.
func updateHint(e error, helper func() string) string {
	switch {
	case errors.Is(e, updater.ErrNoStagingSource):
		return fmt.Sprintf("%s\nBuild or download binaries first, for example with %s",
			e, helper())
	case errors.Is(e, updater.ErrNothingToUpdate):
		return "No bitcoin-X.Y.Z or electrs-X.Y.Z folders found in the staging directory."
	}
	return ""
}

// helperApp names the tool that populates the staging directory, from
// the local configuration when there is one.
func helperApp() string {
	path, e := config.Path()
	if e != nil {
		return config.DefaultHelperApp
	}
	cfg, e := config.Load(path, config.ResolveRoot())
	if e != nil || cfg.Update.HelperApp == "" {
		return config.DefaultHelperApp
	}
	return cfg.Update.HelperApp
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&addr, "addr", "a", addr, "nodevisord address")
	rootCmd.PersistentFlags().StringVarP(&auth, "user", "u", "", "user:pass authentication")

	shutdownCmd.Flags().BoolVar(&indexerOnly, "indexer-only", false, "stop only electrs")
	shutdownCmd.Flags().BoolVarP(&waitStop, "wait", "w", false, "wait until the nodes have exited")
	logCmd.Flags().BoolVarP(&follow, "follow", "f", false, "follow new output")
	logCmd.Flags().StringVarP(&logStream, "stream", "s", "", "stdout, stderr or system (default all)")

	rootCmd.AddCommand(statusCmd, launchCmd, shutdownCmd, updateCmd, logCmd, uiCmd, hashCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	e := rootCmd.ExecuteContext(ctx)
	stop()
	if e != nil {
		os.Exit(1)
	}
}
