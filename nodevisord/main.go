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

// Command nodevisord supervises bitcoind and electrs, and serves the
// control API used by the nodevisor command.
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"golang.org/x/net/netutil"

	"github.com/gdamore/nodevisor"
	"github.com/gdamore/nodevisor/config"
	"github.com/gdamore/nodevisor/rest"
	"github.com/gdamore/nodevisor/updater"
)

var (
	cfgPath string
	addr    string
	name    = "nodevisord"
	launch  bool
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "nodevisord",
	Short: "Supervise a Bitcoin full node and its indexer",
	Long: `nodevisord runs bitcoind and electrs as child processes, tracks their
sync progress, and stops them cleanly on exit.  It is controlled over
HTTP, normally with the nodevisor command.`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().StringVarP(&cfgPath, "config", "c", "", "configuration file")
	rootCmd.Flags().StringVarP(&addr, "addr", "a", "", "listen address (overrides config)")
	rootCmd.Flags().StringVarP(&name, "name", "n", name, "supervisor name")
	rootCmd.Flags().BoolVarP(&launch, "launch", "l", false, "launch both nodes at startup")
	rootCmd.Flags().BoolVarP(&debug, "debug", "d", false, "enable debug logging")
}

func main() {
	if e := rootCmd.Execute(); e != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	path := cfgPath
	if path == "" {
		p, e := config.Path()
		if e != nil {
			return nil, e
		}
		path = p
	}
	cfg, e := config.Load(path, config.ResolveRoot())
	if e != nil {
		return nil, e
	}
	if addr != "" {
		cfg.API.Listen = addr
	}
	return cfg, nil
}

// launchAll starts the full node and then the indexer.
func launchAll(s *nodevisor.Supervisor, logger *log.Logger) {
	for _, r := range nodevisor.Roles {
		if e := s.Launch(r); e != nil && !errors.Is(e, nodevisor.ErrAlreadyRunning) {
			logger.Error("Launch failed", "node", r, "err", e)
			return
		}
	}
}

func run(cmd *cobra.Command, args []string) error {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		Prefix:          name,
		ReportTimestamp: true,
	})
	if debug {
		logger.SetLevel(log.DebugLevel)
	}

	cfg, e := loadConfig()
	if e != nil {
		logger.Error("Bad configuration", "err", e)
		return e
	}

	unlock, e := lockInstance(filepath.Join(os.TempDir(), name+".lock"))
	if e != nil {
		logger.Error("Another instance is running", "err", e)
		return e
	}
	defer unlock()

	opts := cfg.Options(name)
	opts.Logger = logger
	s := nodevisor.NewSupervisor(opts)
	s.StartMonitoring(cfg.Monitor.Tick, cfg.Monitor.Poll)

	h := rest.NewHandler(s)
	h.SetLogger(logger.WithPrefix("rest"))
	h.SetAuth(cfg.API.User, cfg.API.PasswordHash)
	h.SetUpdater(func() (*updater.Report, error) {
		rep, e := updater.Update(cfg.Update.Staging, cfg.Binaries, cfg.Update.Rules)
		if e != nil {
			logger.Warn("Update not performed", "staging", cfg.Update.Staging, "err", e)
			return nil, e
		}
		for _, res := range rep.Results {
			logger.Info("Update", "release", res.Candidate.Name(),
				"installed", res.Installed, "err", res.Error)
		}
		return rep, nil
	})

	l, e := net.Listen("tcp", cfg.API.Listen)
	if e != nil {
		logger.Error("Cannot listen", "addr", cfg.API.Listen, "err", e)
		s.Close()
		return e
	}
	if cfg.API.MaxConns > 0 {
		l = netutil.LimitListener(l, cfg.API.MaxConns)
	}
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		if e := srv.Serve(l); !errors.Is(e, http.ErrServerClosed) {
			errc <- e
		}
	}()
	logger.Info("Serving", "addr", l.Addr().String(), "root", cfg.Root)

	if launch {
		go launchAll(s, logger)
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	// Wait for a termination signal, and shutdown cleanly if we get it.
	select {
	case sig := <-sigs:
		logger.Info("Shutting down", "signal", sig)
	case e = <-errc:
		logger.Error("Server failed", "err", e)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	srv.Shutdown(ctx)
	cancel()
	s.Close()
	return e
}
