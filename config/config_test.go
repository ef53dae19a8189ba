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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/gdamore/nodevisor"
)

func TestLoad(t *testing.T) {
	Convey("Loading configuration", t, func() {
		root := t.TempDir()
		path := filepath.Join(t.TempDir(), "nodevisor", FileName)

		Convey("A missing file yields defaults", func() {
			c, e := Load(path, root)
			So(e, ShouldBeNil)
			So(c.Binaries, ShouldEqual, filepath.Join(root, "Binaries"))
			So(c.BitcoinData, ShouldEqual, filepath.Join(root, "BitcoinChain"))
			So(c.ElectrsData, ShouldEqual, filepath.Join(root, "ElectrsDB"))
			So(c.Indexer.SyncPhrases, ShouldResemble, nodevisor.DefaultSyncPhrases)
			So(c.Shutdown.FullNodeGrace, ShouldEqual, 60*time.Second)
			So(c.Monitor.Tick, ShouldEqual, 587*time.Millisecond)
		})

		Convey("A partial file overrides only what it names", func() {
			os.MkdirAll(filepath.Dir(path), 0o755)
			os.WriteFile(path, []byte(`
binaries: /opt/node/bin
shutdown:
  indexerGrace: 3s
indexer:
  syncPhrases: ["all caught up"]
`), 0o644)
			c, e := Load(path, root)
			So(e, ShouldBeNil)
			So(c.Binaries, ShouldEqual, "/opt/node/bin")
			So(c.Shutdown.IndexerGrace, ShouldEqual, 3*time.Second)
			So(c.Shutdown.FullNodeGrace, ShouldEqual, 60*time.Second)
			So(c.Indexer.SyncPhrases, ShouldResemble, []string{"all caught up"})
			So(c.BitcoinData, ShouldEqual, filepath.Join(root, "BitcoinChain"))
		})

		Convey("A broken file is an error", func() {
			os.MkdirAll(filepath.Dir(path), 0o755)
			os.WriteFile(path, []byte("binaries: [unterminated"), 0o644)
			_, e := Load(path, root)
			So(e, ShouldNotBeNil)
		})

		Convey("An API user needs a password hash", func() {
			os.MkdirAll(filepath.Dir(path), 0o755)
			os.WriteFile(path, []byte("api:\n  user: admin\n"), 0o644)
			_, e := Load(path, root)
			So(e, ShouldNotBeNil)
		})

		Convey("Saved settings load back", func() {
			c := Default(root)
			c.RPC.Port = 18332
			c.Shutdown.Interval = 50 * time.Millisecond
			So(c.Save(path), ShouldBeNil)
			c2, e := Load(path, "/elsewhere")
			So(e, ShouldBeNil)
			So(c2, ShouldResemble, c)
		})
	})
}

func TestRoot(t *testing.T) {
	Convey("Resolving the root", t, func() {
		Convey("The environment wins when it names a directory", func() {
			dir := t.TempDir()
			t.Setenv(EnvRoot, dir)
			So(ResolveRoot(), ShouldEqual, dir)
		})

		Convey("A bogus environment value is ignored", func() {
			t.Setenv(EnvRoot, filepath.Join(t.TempDir(), "missing"))
			So(ResolveRoot(), ShouldNotEqual, "")
		})

		Convey("Application bundles are walked out of", func() {
			So(rootFromExe("/Volumes/SSD/Node.app/Contents/MacOS/nodevisor"), ShouldEqual, "/Volumes/SSD")
			So(rootFromExe("/Volumes/SSD/nodevisor"), ShouldEqual, "/Volumes/SSD")
		})
	})
}

func TestBitcoinConf(t *testing.T) {
	Convey("bitcoin.conf handling", t, func() {
		dir := filepath.Join(t.TempDir(), "BitcoinChain")

		Convey("A default is written once", func() {
			wrote, e := EnsureBitcoinConf(dir)
			So(e, ShouldBeNil)
			So(wrote, ShouldBeTrue)
			bc, e := ReadBitcoinConf(dir)
			So(e, ShouldBeNil)
			So(bc.RPCPort, ShouldEqual, 8332)

			os.WriteFile(filepath.Join(dir, BitcoinConfFile), []byte("rpcport=1\n"), 0o644)
			wrote, e = EnsureBitcoinConf(dir)
			So(e, ShouldBeNil)
			So(wrote, ShouldBeFalse)
			bc, _ = ReadBitcoinConf(dir)
			So(bc.RPCPort, ShouldEqual, 1)
		})

		Convey("Settings are parsed up to the first section", func() {
			os.MkdirAll(dir, 0o755)
			os.WriteFile(filepath.Join(dir, BitcoinConfFile), []byte(`
# comment
rpcport = 18443
rpcuser=alice
rpcpassword= s3cret
bogus line
[test]
rpcport=18332
`), 0o644)
			bc, e := ReadBitcoinConf(dir)
			So(e, ShouldBeNil)
			So(bc, ShouldResemble, BitcoinConf{RPCPort: 18443, RPCUser: "alice", RPCPassword: "s3cret"})
		})
	})
}

func TestSpecs(t *testing.T) {
	Convey("Launch descriptions", t, func() {
		c := Default("/ssd")

		full := c.FullNodeSpec()
		So(full.Path, ShouldEqual, "/ssd/Binaries/bitcoind")
		So(full.Args, ShouldResemble, []string{"-datadir=/ssd/BitcoinChain", "-printtoconsole"})

		idx := c.IndexerSpec()
		So(idx.Path, ShouldEqual, "/ssd/Binaries/electrs")
		So(idx.Args, ShouldResemble, []string{
			"--network", "bitcoin",
			"--daemon-dir", "/ssd/BitcoinChain",
			"--db-dir", "/ssd/ElectrsDB",
			"--electrum-rpc-addr", "127.0.0.1:50001",
		})
	})

	Convey("RPC endpoint resolution", t, func() {
		c := Default(t.TempDir())

		Convey("Defaults to the standard port", func() {
			addr, auth := c.RPCEndpoint()
			So(addr, ShouldEqual, "127.0.0.1:8332")
			So(auth.DataDir, ShouldEqual, c.BitcoinData)
		})

		Convey("Uses bitcoin.conf", func() {
			os.MkdirAll(c.BitcoinData, 0o755)
			os.WriteFile(filepath.Join(c.BitcoinData, BitcoinConfFile),
				[]byte("rpcport=18443\nrpcuser=bob\nrpcpassword=pw\n"), 0o644)
			addr, auth := c.RPCEndpoint()
			So(addr, ShouldEqual, "127.0.0.1:18443")
			So(auth.User, ShouldEqual, "bob")
			So(auth.Password, ShouldEqual, "pw")

			Convey("Unless configured explicitly", func() {
				c.RPC.Port = 9999
				c.RPC.User = "carol"
				addr, auth := c.RPCEndpoint()
				So(addr, ShouldEqual, "127.0.0.1:9999")
				So(auth.User, ShouldEqual, "carol")
			})
		})

		Convey("Prepare writes bitcoin.conf and the indexer directory", func() {
			spec := c.FullNodeSpec()
			So(c.Prepare(nodevisor.FullNode, &spec), ShouldBeNil)
			_, e := os.Stat(filepath.Join(c.BitcoinData, BitcoinConfFile))
			So(e, ShouldBeNil)
			spec = c.IndexerSpec()
			So(c.Prepare(nodevisor.Indexer, &spec), ShouldBeNil)
			fi, e := os.Stat(c.ElectrsData)
			So(e, ShouldBeNil)
			So(fi.IsDir(), ShouldBeTrue)
		})

		Convey("Options carry the timers", func() {
			o := c.Options("test")
			So(o.Name, ShouldEqual, "test")
			So(o.IndexerGrace, ShouldEqual, 10*time.Second)
			So(o.RPC, ShouldNotBeNil)
			So(o.Prepare, ShouldNotBeNil)
		})
	})
}
