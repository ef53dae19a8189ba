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

package nodevisor

import (
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// ProcessHandle is the supervisor's sole reference to a running child.
// Implementations must reap the process before Alive reports false.
type ProcessHandle interface {
	// Pid returns the operating system process id.
	Pid() int

	// Alive reports whether the process has not yet exited and been
	// reaped.  It never blocks.
	Alive() bool

	// Terminate asks the process to exit (SIGTERM on POSIX).
	Terminate() error

	// Kill forcibly ends the process (SIGKILL on POSIX).
	Kill() error

	// Done is closed once the process has exited and been reaped.
	Done() <-chan struct{}

	// Err returns the exit status once Done is closed.  Any non-zero
	// or signalled exit is reported as an error; callers need not
	// interpret it.
	Err() error
}

// StartFunc spawns the process described by spec, returning its handle and
// its standard output and error streams.  The streams reach EOF once the
// process (and anything it handed them to) exits.
type StartFunc func(spec *NodeSpec) (ProcessHandle, io.ReadCloser, io.ReadCloser, error)

type osProcess struct {
	cmd  *exec.Cmd
	done chan struct{}
	err  error
	once sync.Once
}

func (p *osProcess) Pid() int {
	return p.cmd.Process.Pid
}

func (p *osProcess) Alive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

func (p *osProcess) Terminate() error {
	if !p.Alive() {
		return nil
	}
	return p.cmd.Process.Signal(syscall.SIGTERM)
}

func (p *osProcess) Kill() error {
	if !p.Alive() {
		return nil
	}
	return p.cmd.Process.Kill()
}

func (p *osProcess) Done() <-chan struct{} {
	return p.done
}

func (p *osProcess) Err() error {
	<-p.done
	return p.err
}

func (p *osProcess) doWait() {
	e := p.cmd.Wait()
	p.once.Do(func() {
		p.err = e
		close(p.done)
	})
}

// StartProcess is the default StartFunc.  It uses plain pipes rather than
// exec's StdoutPipe, so reaping the child never closes a stream that is
// still being drained.
func StartProcess(spec *NodeSpec) (ProcessHandle, io.ReadCloser, io.ReadCloser, error) {
	if _, e := os.Stat(spec.Path); e != nil {
		return nil, nil, nil, e
	}
	outr, outw, e := os.Pipe()
	if e != nil {
		return nil, nil, nil, e
	}
	errr, errw, e := os.Pipe()
	if e != nil {
		outr.Close()
		outw.Close()
		return nil, nil, nil, e
	}

	cmd := exec.Command(spec.Path, spec.Args...)
	cmd.Dir = spec.Dir
	if len(spec.Env) != 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}
	cmd.Stdout = outw
	cmd.Stderr = errw

	e = cmd.Start()
	// The child has its own copies now.
	outw.Close()
	errw.Close()
	if e != nil {
		outr.Close()
		errr.Close()
		return nil, nil, nil, e
	}

	p := &osProcess{cmd: cmd, done: make(chan struct{})}
	go p.doWait()
	return p, outr, errr, nil
}

// waitExit polls h every interval until it has exited or window elapses.
// It returns true if the process is gone.
func waitExit(h ProcessHandle, window, interval time.Duration) bool {
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	deadline := time.Now().Add(window)
	for {
		if !h.Alive() {
			return true
		}
		if !time.Now().Before(deadline) {
			return false
		}
		wait := interval
		if left := time.Until(deadline); left < wait {
			wait = left
		}
		select {
		case <-h.Done():
		case <-time.After(wait):
		}
	}
}
