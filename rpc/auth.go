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

package rpc

import (
	"os"
	"path/filepath"
	"strings"
)

// CookieFile is the name of the shared-secret file written by the node on
// every start.
const CookieFile = ".cookie"

// Auth resolves credentials for each call.  The cookie is read fresh every
// time, because the node rewrites it on restart.
type Auth struct {
	DataDir  string // node data directory, searched for a cookie
	User     string // used when no cookie is present
	Password string
}

// CookiePaths returns the locations searched for a cookie, in order.
func (a *Auth) CookiePaths() []string {
	if a.DataDir == "" {
		return nil
	}
	return []string{
		filepath.Join(a.DataDir, CookieFile),
		filepath.Join(a.DataDir, "mainnet", CookieFile),
	}
}

// Credentials returns the user and password to present.  The boolean is
// true when they came from a cookie file.
func (a *Auth) Credentials() (string, string, bool) {
	for _, path := range a.CookiePaths() {
		b, e := os.ReadFile(path)
		if e != nil {
			continue
		}
		user, pass, ok := strings.Cut(strings.TrimSpace(string(b)), ":")
		if ok {
			return user, pass, true
		}
	}
	return a.User, a.Password, false
}
