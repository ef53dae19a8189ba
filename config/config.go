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

// Package config holds nodevisor's persistent settings, and turns them
// into the launch descriptions and supervisor options the daemon uses.
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/gdamore/nodevisor"
	"github.com/gdamore/nodevisor/rpc"
	"github.com/gdamore/nodevisor/updater"
)

const (
	// EnvRoot overrides the root directory the data directories are
	// derived from.
	EnvRoot = "NODEVISOR_ROOT"

	FileName            = "config.yaml"
	DefaultNetwork      = "bitcoin"
	DefaultElectrumAddr = "127.0.0.1:50001"
	DefaultListen       = "127.0.0.1:8321"
	DefaultHelperApp    = "/Applications/BitForge.app"
	DefaultMaxConns     = 16
)

// RPC describes how to reach the full node.  Empty fields are filled from
// bitcoin.conf in the data directory, then from defaults.
type RPC struct {
	Host     string        `yaml:"host,omitempty"`
	Port     int           `yaml:"port,omitempty"`
	User     string        `yaml:"user,omitempty"`
	Password string        `yaml:"password,omitempty"`
	Timeout  time.Duration `yaml:"timeout,omitempty"`
}

type Indexer struct {
	Network      string   `yaml:"network"`
	ElectrumAddr string   `yaml:"electrumAddr"`
	SyncPhrases  []string `yaml:"syncPhrases"`
}

type Shutdown struct {
	IndexerGrace  time.Duration `yaml:"indexerGrace"`
	FullNodeGrace time.Duration `yaml:"fullNodeGrace"`
	Interval      time.Duration `yaml:"interval"`
}

type Monitor struct {
	Tick time.Duration `yaml:"tick"`
	Poll time.Duration `yaml:"poll"`
}

type Update struct {
	Staging   string         `yaml:"staging"`
	HelperApp string         `yaml:"helperApp"`
	Rules     []updater.Rule `yaml:"rules"`
}

// API configures the control interface served by nodevisord.  When User
// is empty, no authentication is required.
type API struct {
	Listen       string `yaml:"listen"`
	User         string `yaml:"user,omitempty"`
	PasswordHash string `yaml:"passwordHash,omitempty"`
	MaxConns     int    `yaml:"maxConns"`
}

// Config is the persisted configuration.
type Config struct {
	Root        string   `yaml:"root"`
	Binaries    string   `yaml:"binaries"`
	BitcoinData string   `yaml:"bitcoinData"`
	ElectrsData string   `yaml:"electrsData"`
	LogRecords  int      `yaml:"logRecords"`
	RPC         RPC      `yaml:"rpc"`
	Indexer     Indexer  `yaml:"indexer"`
	Shutdown    Shutdown `yaml:"shutdown"`
	Monitor     Monitor  `yaml:"monitor"`
	Update      Update   `yaml:"update"`
	API         API      `yaml:"api"`
}

// Path returns the default location of the configuration file.
func Path() (string, error) {
	dir, e := os.UserConfigDir()
	if e != nil {
		return "", e
	}
	return filepath.Join(dir, "nodevisor", FileName), nil
}

// Default returns the configuration derived from root.
func Default(root string) *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Root:        root,
		Binaries:    filepath.Join(root, "Binaries"),
		BitcoinData: filepath.Join(root, "BitcoinChain"),
		ElectrsData: filepath.Join(root, "ElectrsDB"),
		LogRecords:  nodevisor.MaxLogRecords,
		RPC: RPC{
			Host:    "127.0.0.1",
			Timeout: rpc.DefaultTimeout,
		},
		Indexer: Indexer{
			Network:      DefaultNetwork,
			ElectrumAddr: DefaultElectrumAddr,
			SyncPhrases:  append([]string{}, nodevisor.DefaultSyncPhrases...),
		},
		Shutdown: Shutdown{
			IndexerGrace:  nodevisor.DefaultIndexerGrace,
			FullNodeGrace: nodevisor.DefaultFullNodeGrace,
			Interval:      nodevisor.DefaultStopInterval,
		},
		Monitor: Monitor{
			Tick: nodevisor.DefaultTick,
			Poll: nodevisor.DefaultPollInterval,
		},
		Update: Update{
			Staging:   filepath.Join(home, "Downloads", "bitcoin_builds", "binaries"),
			HelperApp: DefaultHelperApp,
			Rules:     updater.DefaultRules,
		},
		API: API{
			Listen:   DefaultListen,
			MaxConns: DefaultMaxConns,
		},
	}
}

// Load reads the configuration at path over the defaults for root.  A
// missing file is not an error.
func Load(path, root string) (*Config, error) {
	c := Default(root)
	b, e := os.ReadFile(path)
	if os.IsNotExist(e) {
		return c, nil
	}
	if e != nil {
		return nil, errors.Wrapf(e, "read %s", path)
	}
	if e := yaml.Unmarshal(b, c); e != nil {
		return nil, errors.Wrapf(e, "parse %s", path)
	}
	if e := c.Validate(); e != nil {
		return nil, errors.Wrapf(e, "config %s", path)
	}
	return c, nil
}

// Save writes the configuration to path, creating its directory.
func (c *Config) Save(path string) error {
	b, e := yaml.Marshal(c)
	if e != nil {
		return e
	}
	if e := os.MkdirAll(filepath.Dir(path), 0o755); e != nil {
		return errors.Wrap(e, "create config dir")
	}
	tmp := path + ".tmp"
	if e := os.WriteFile(tmp, b, 0o600); e != nil {
		return errors.Wrapf(e, "write %s", tmp)
	}
	return os.Rename(tmp, path)
}

// Validate checks for settings that cannot work.
func (c *Config) Validate() error {
	switch {
	case c.Binaries == "":
		return errors.New("binaries directory not set")
	case c.BitcoinData == "":
		return errors.New("bitcoin data directory not set")
	case c.ElectrsData == "":
		return errors.New("electrs data directory not set")
	case c.RPC.Port < 0 || c.RPC.Port > 65535:
		return fmt.Errorf("bad rpc port %d", c.RPC.Port)
	case c.API.User != "" && c.API.PasswordHash == "":
		return errors.New("api user set without passwordHash")
	}
	return nil
}

// ResolveRoot returns the root directory: $NODEVISOR_ROOT when it names a
// directory, otherwise the directory holding the executable.
func ResolveRoot() string {
	if r := os.Getenv(EnvRoot); r != "" {
		if fi, e := os.Stat(r); e == nil && fi.IsDir() {
			return r
		}
	}
	exe, e := os.Executable()
	if e != nil {
		return "."
	}
	return rootFromExe(exe)
}

// rootFromExe walks out of a macOS application bundle, so that a bundle
// placed on a drive uses the drive as its root.
func rootFromExe(exe string) string {
	dir := filepath.Dir(exe)
	macos := filepath.Join(".app", "Contents", "MacOS")
	if strings.HasSuffix(dir, macos) {
		return filepath.Dir(filepath.Dir(filepath.Dir(dir)))
	}
	return dir
}

// FullNodeSpec returns how to launch bitcoind.
func (c *Config) FullNodeSpec() nodevisor.NodeSpec {
	return nodevisor.NodeSpec{
		Path: filepath.Join(c.Binaries, "bitcoind"),
		Dir:  c.BitcoinData,
		Args: []string{
			"-datadir=" + c.BitcoinData,
			"-printtoconsole",
		},
	}
}

// IndexerSpec returns how to launch electrs.
func (c *Config) IndexerSpec() nodevisor.NodeSpec {
	return nodevisor.NodeSpec{
		Path: filepath.Join(c.Binaries, "electrs"),
		Dir:  c.ElectrsData,
		Args: []string{
			"--network", c.Indexer.Network,
			"--daemon-dir", c.BitcoinData,
			"--db-dir", c.ElectrsData,
			"--electrum-rpc-addr", c.Indexer.ElectrumAddr,
		},
	}
}

// RPCEndpoint returns the full node's RPC address and credentials,
// combining the configuration with bitcoin.conf.  The cookie, when
// present, takes precedence at call time.
func (c *Config) RPCEndpoint() (string, *rpc.Auth) {
	bc, _ := ReadBitcoinConf(c.BitcoinData)
	port := c.RPC.Port
	if port == 0 {
		port = bc.RPCPort
	}
	if port == 0 {
		port = DefaultRPCPort
	}
	host := c.RPC.Host
	if host == "" {
		host = "127.0.0.1"
	}
	auth := &rpc.Auth{
		DataDir:  c.BitcoinData,
		User:     c.RPC.User,
		Password: c.RPC.Password,
	}
	if auth.User == "" {
		auth.User, auth.Password = bc.RPCUser, bc.RPCPassword
	}
	return net.JoinHostPort(host, strconv.Itoa(port)), auth
}

// RPCClient returns a client for the full node.
func (c *Config) RPCClient() *rpc.Client {
	addr, auth := c.RPCEndpoint()
	return rpc.NewClient(addr, auth, c.RPC.Timeout)
}

// Prepare readies a node's directories before launch.  It writes a
// minimal bitcoin.conf for the full node if there is none.
func (c *Config) Prepare(r nodevisor.Role, spec *nodevisor.NodeSpec) error {
	switch r {
	case nodevisor.FullNode:
		_, e := EnsureBitcoinConf(c.BitcoinData)
		return e
	case nodevisor.Indexer:
		return os.MkdirAll(c.ElectrsData, 0o755)
	}
	return nil
}

// Options returns supervisor options for this configuration.
func (c *Config) Options(name string) nodevisor.Options {
	return nodevisor.Options{
		Name:          name,
		FullNode:      c.FullNodeSpec(),
		Indexer:       c.IndexerSpec(),
		RPC:           c.RPCClient(),
		RPCTimeout:    c.RPC.Timeout,
		SyncPhrases:   c.Indexer.SyncPhrases,
		IndexerGrace:  c.Shutdown.IndexerGrace,
		FullNodeGrace: c.Shutdown.FullNodeGrace,
		StopInterval:  c.Shutdown.Interval,
		LogRecords:    c.LogRecords,
		Prepare:       c.Prepare,
	}
}
