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

package updater

import (
	"errors"
	"fmt"
)

var (
	ErrNoStagingSource = errors.New("No staging source")
	ErrNothingToUpdate = errors.New("Nothing to update")
	ErrNoBinaries      = errors.New("No binaries in candidate")
)

// Kind classifies an installation failure.
type Kind int

const (
	CopyFailed   Kind = iota // writing the temporary file failed
	RenameFailed             // the final rename failed
)

func (k Kind) String() string {
	switch k {
	case CopyFailed:
		return "copy failed"
	case RenameFailed:
		return "rename failed"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error reports a failed installation of one binary.  The previously
// installed binary, if any, is untouched.
type Error struct {
	Kind   Kind
	Binary string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Binary, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
