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
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const (
	BitcoinConfFile = "bitcoin.conf"
	DefaultRPCPort  = 8332
)

const defaultBitcoinConf = `# Written by nodevisor.
server=1
txindex=1
rpcport=8332
rpcallowip=127.0.0.1
# Cookie authentication is used unless rpcuser/rpcpassword are set.
`

// BitcoinConf is the subset of bitcoin.conf nodevisor cares about.
type BitcoinConf struct {
	RPCPort     int
	RPCUser     string
	RPCPassword string
}

// ReadBitcoinConf parses bitcoin.conf in dir.  Only top-level settings
// are considered; sections for other networks are ignored.
func ReadBitcoinConf(dir string) (BitcoinConf, error) {
	var bc BitcoinConf
	f, e := os.Open(filepath.Join(dir, BitcoinConfFile))
	if e != nil {
		return bc, e
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "[") {
			// Everything after a section header is network specific.
			break
		}
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		v = strings.TrimSpace(v)
		switch strings.TrimSpace(k) {
		case "rpcport":
			if n, e := strconv.Atoi(v); e == nil && n > 0 && n < 65536 {
				bc.RPCPort = n
			}
		case "rpcuser":
			bc.RPCUser = v
		case "rpcpassword":
			bc.RPCPassword = v
		}
	}
	return bc, scanner.Err()
}

// EnsureBitcoinConf writes a minimal bitcoin.conf into dir unless one
// exists.  It reports whether a file was written.
func EnsureBitcoinConf(dir string) (bool, error) {
	path := filepath.Join(dir, BitcoinConfFile)
	if _, e := os.Stat(path); e == nil {
		return false, nil
	}
	if e := os.MkdirAll(dir, 0o755); e != nil {
		return false, errors.Wrapf(e, "create %s", dir)
	}
	f, e := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if os.IsExist(e) {
		return false, nil
	}
	if e != nil {
		return false, errors.Wrapf(e, "create %s", path)
	}
	if _, e := f.WriteString(defaultBitcoinConf); e != nil {
		f.Close()
		return false, errors.Wrapf(e, "write %s", path)
	}
	return true, f.Close()
}
