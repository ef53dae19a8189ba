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

// Package updater installs new node binaries from a staging directory.
//
// Releases are staged as directories named <role>-<version> below a
// staging root, for example bitcoin-27.1 or electrs-0.10.5.  Update picks
// the newest release of each role and replaces the installed binaries.
// Every binary is written to a temporary file next to its target and
// renamed into place, so a failed update never leaves a partially
// written executable behind.
package updater

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Rule names a role and the executables its releases carry.
type Rule struct {
	Role     string   `json:"role" yaml:"role"`
	Binaries []string `json:"binaries" yaml:"binaries"`
}

// DefaultRules are the Bitcoin Core and electrs release layouts.
var DefaultRules = []Rule{
	{Role: "bitcoin", Binaries: []string{"bitcoind", "bitcoin-cli", "bitcoin-tx", "bitcoin-util"}},
	{Role: "electrs", Binaries: []string{"electrs"}},
}

// Candidate is one staged release.
type Candidate struct {
	Role     string   `json:"role"`
	Version  Version  `json:"version"`
	Path     string   `json:"path"`
	Binaries []string `json:"binaries"`
}

// Name returns the staging directory name of the candidate.
func (c Candidate) Name() string {
	return filepath.Base(c.Path)
}

// Result is the outcome of installing one candidate.
type Result struct {
	Candidate Candidate `json:"candidate"`
	Installed []string  `json:"installed,omitempty"`
	Error     string    `json:"error,omitempty"`
	Err       error     `json:"-"`
}

// Report is the outcome of Update.  Each role is installed independently.
type Report struct {
	Results []Result `json:"results"`
}

// Failed reports whether any candidate failed to install.
func (r *Report) Failed() bool {
	for _, res := range r.Results {
		if res.Err != nil || res.Error != "" {
			return true
		}
	}
	return false
}

// rename is replaced in tests to inject failures.
var rename = os.Rename

func splitName(name string) (string, string, bool) {
	i := strings.LastIndexByte(name, '-')
	if i <= 0 || i == len(name)-1 {
		return "", "", false
	}
	return name[:i], name[i+1:], true
}

// Scan lists the releases staged in dir for the given rules.  Entries
// that are not directories, belong to no rule, or carry a malformed
// version are skipped.
func Scan(dir string, rules []Rule) ([]Candidate, error) {
	ents, e := os.ReadDir(dir)
	if e != nil {
		return nil, e
	}
	byRole := make(map[string]Rule, len(rules))
	for _, r := range rules {
		byRole[r.Role] = r
	}
	var cands []Candidate
	for _, ent := range ents {
		role, ver, ok := splitName(ent.Name())
		if !ok {
			continue
		}
		rule, ok := byRole[role]
		if !ok {
			continue
		}
		v, e := ParseVersion(ver)
		if e != nil {
			continue
		}
		path := filepath.Join(dir, ent.Name())
		if fi, e := os.Stat(path); e != nil || !fi.IsDir() {
			continue
		}
		cands = append(cands, Candidate{
			Role:     role,
			Version:  v,
			Path:     path,
			Binaries: rule.Binaries,
		})
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].Role != cands[j].Role {
			return cands[i].Role < cands[j].Role
		}
		return cands[i].Version.Compare(cands[j].Version) < 0
	})
	return cands, nil
}

// SelectLatest returns the highest version of each role.
func SelectLatest(cands []Candidate) map[string]Candidate {
	best := make(map[string]Candidate)
	for _, c := range cands {
		if b, ok := best[c.Role]; !ok || c.Version.Compare(b.Version) > 0 {
			best[c.Role] = c
		}
	}
	return best
}

// Install copies the candidate's binaries into dir.  Binaries missing
// from the candidate are skipped; if none are present ErrNoBinaries is
// returned.  The names installed before any failure are returned.
func Install(c Candidate, dir string) ([]string, error) {
	if e := os.MkdirAll(dir, 0o755); e != nil {
		return nil, errors.Wrapf(e, "create %s", dir)
	}
	var done []string
	for _, name := range c.Binaries {
		src := filepath.Join(c.Path, name)
		if _, e := os.Stat(src); e != nil {
			continue
		}
		if e := installFile(src, filepath.Join(dir, name)); e != nil {
			return done, e
		}
		done = append(done, name)
	}
	if len(done) == 0 {
		return nil, ErrNoBinaries
	}
	return done, nil
}

func installFile(src, dst string) error {
	name := filepath.Base(dst)
	tmp := dst + ".tmp"
	if e := writeTemp(src, tmp); e != nil {
		os.Remove(tmp)
		return &Error{Kind: CopyFailed, Binary: name, Err: e}
	}
	if e := rename(tmp, dst); e != nil {
		os.Remove(tmp)
		return &Error{Kind: RenameFailed, Binary: name, Err: e}
	}
	return nil
}

func writeTemp(src, tmp string) error {
	in, e := os.Open(src)
	if e != nil {
		return e
	}
	defer in.Close()
	out, e := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o755)
	if e != nil {
		return e
	}
	if _, e = io.Copy(out, in); e != nil {
		out.Close()
		return errors.Wrap(e, "copy")
	}
	if e = out.Sync(); e != nil {
		out.Close()
		return errors.Wrap(e, "sync")
	}
	if e = out.Close(); e != nil {
		return e
	}
	// The umask may have stripped bits at create time.
	return os.Chmod(tmp, 0o755)
}

// Update installs the newest staged release of every role from staging
// into dir.  A missing staging directory yields ErrNoStagingSource, and
// one with no usable releases ErrNothingToUpdate.  Otherwise every role
// is attempted and the outcome is in the Report.
func Update(staging, dir string, rules []Rule) (*Report, error) {
	if fi, e := os.Stat(staging); e != nil || !fi.IsDir() {
		return nil, ErrNoStagingSource
	}
	cands, e := Scan(staging, rules)
	if e != nil {
		return nil, errors.Wrapf(e, "scan %s", staging)
	}
	latest := SelectLatest(cands)
	if len(latest) == 0 {
		return nil, ErrNothingToUpdate
	}
	r := &Report{}
	for _, rule := range rules {
		c, ok := latest[rule.Role]
		if !ok {
			continue
		}
		res := Result{Candidate: c}
		res.Installed, res.Err = Install(c, dir)
		if res.Err != nil {
			res.Error = res.Err.Error()
		}
		r.Results = append(r.Results, res)
	}
	return r, nil
}
