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
	"bufio"
	"io"
	"sync"
)

// maxLineLength bounds a single record; longer lines are split.
const maxLineLength = 1 << 20

// doLog copies r into log one line at a time until r reaches EOF.  A final
// line lacking a newline is still recorded.
func doLog(r io.ReadCloser, log *Log) {
	defer r.Close()
	reader := bufio.NewReader(r)
	var line []byte
	for {
		frag, more, e := reader.ReadLine()
		if e != nil {
			if len(line) != 0 {
				log.Append(string(line))
			}
			return
		}
		line = append(line, frag...)
		if more && len(line) < maxLineLength {
			continue
		}
		log.Append(string(line))
		line = line[:0]
	}
}

// capture starts one reader per stream.  The returned channel is closed
// once both streams have reached EOF.
func capture(out *Output, stdout, stderr io.ReadCloser) <-chan struct{} {
	var wg sync.WaitGroup
	done := make(chan struct{})
	if stdout != nil {
		wg.Add(1)
		go func() {
			doLog(stdout, out.Log(StreamStdout))
			wg.Done()
		}()
	}
	if stderr != nil {
		wg.Add(1)
		go func() {
			doLog(stderr, out.Log(StreamStderr))
			wg.Done()
		}()
	}
	go func() {
		wg.Wait()
		close(done)
	}()
	return done
}
