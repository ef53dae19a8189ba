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
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	. "github.com/smartystreets/goconvey/convey"
)

func TestLogRing(t *testing.T) {
	Convey("A log at capacity", t, func() {
		l := NewLog(StreamStdout, 0)
		So(l.Cap(), ShouldEqual, MaxLogRecords)

		for i := 0; i < MaxLogRecords+250; i++ {
			l.Append(strconv.Itoa(i))
		}

		Convey("Keeps only the newest lines", func() {
			So(l.Len(), ShouldEqual, MaxLogRecords)
			recs := l.Tail(-1)
			So(len(recs), ShouldEqual, MaxLogRecords)
			So(recs[0].Text, ShouldEqual, "250")
			So(recs[len(recs)-1].Text, ShouldEqual, strconv.Itoa(MaxLogRecords+249))
		})

		Convey("Tail returns the last n", func() {
			recs := l.Tail(3)
			So(len(recs), ShouldEqual, 3)
			So(recs[2].Text, ShouldEqual, strconv.Itoa(MaxLogRecords+249))
		})

		Convey("GetRecords honors the etag", func() {
			recs, id := l.GetRecords(0)
			So(len(recs), ShouldEqual, MaxLogRecords)
			recs, id2 := l.GetRecords(id)
			So(recs, ShouldBeNil)
			So(id2, ShouldEqual, id)
		})

		Convey("Since skips older records", func() {
			recs := l.Tail(10)
			after := recs[4].Id
			So(len(l.Since(after)), ShouldEqual, 5)
		})
	})
}

func TestLogRetainsNewest(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("log keeps the most recent lines in order", prop.ForAll(
		func(max, n int) bool {
			l := NewLog(StreamStderr, max)
			for i := 0; i < n; i++ {
				l.Append(strconv.Itoa(i))
			}
			want := n
			if want > max {
				want = max
			}
			recs := l.Tail(-1)
			if len(recs) != want || l.Len() != want {
				return false
			}
			for j, r := range recs {
				if r.Text != strconv.Itoa(n-want+j) {
					return false
				}
				if j > 0 && r.Id <= recs[j-1].Id {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 64),
		gen.IntRange(0, 300),
	))

	properties.TestingRun(t)
}

func TestLogWatch(t *testing.T) {
	Convey("Watching a log", t, func() {
		l := NewLog(StreamStdout, 10)
		id := l.Append("first")

		Convey("Times out without change", func() {
			start := time.Now()
			So(l.Watch(id, 50*time.Millisecond), ShouldEqual, id)
			So(time.Since(start), ShouldBeGreaterThanOrEqualTo, 50*time.Millisecond)
		})

		Convey("Wakes on append", func() {
			go func() {
				time.Sleep(20 * time.Millisecond)
				l.Append("second")
			}()
			So(l.Watch(id, 5*time.Second), ShouldBeGreaterThan, id)
		})

		Convey("Polls with zero expiry", func() {
			So(l.Watch(-1, 0), ShouldEqual, id)
		})
	})
}

func TestOutputMerge(t *testing.T) {
	Convey("Output merges streams in arrival order", t, func() {
		o := NewOutput(100)
		o.Append(StreamStdout, "a")
		o.Append(StreamStderr, "b")
		o.Append(StreamSystem, "c")
		last := o.Append(StreamStdout, "d")

		So(o.Serial(), ShouldEqual, last)
		recs := o.Since(0)
		So(len(recs), ShouldEqual, 4)
		text := ""
		for _, r := range recs {
			text += r.Text
		}
		So(text, ShouldEqual, "abcd")
		So(recs[1].Stream, ShouldEqual, StreamStderr)
		So(recs[2].Stream, ShouldEqual, StreamSystem)

		Convey("Since filters across streams", func() {
			recs := o.Since(recs[1].Id)
			So(len(recs), ShouldEqual, 2)
			So(recs[0].Text, ShouldEqual, "c")
		})

		Convey("GetRecords returns nothing when unchanged", func() {
			recs, id := o.GetRecords(last)
			So(recs, ShouldBeNil)
			So(id, ShouldEqual, last)
		})

		Convey("Watch wakes on any stream", func() {
			go func() {
				time.Sleep(20 * time.Millisecond)
				o.Append(StreamStderr, "e")
			}()
			So(o.Watch(last, 5*time.Second), ShouldBeGreaterThan, last)
		})
	})

	Convey("Concurrent writers keep per-stream order", t, func() {
		o := NewOutput(0)
		var wg sync.WaitGroup
		for _, s := range []Stream{StreamStdout, StreamStderr} {
			wg.Add(1)
			go func(s Stream) {
				defer wg.Done()
				for i := 0; i < 500; i++ {
					o.Append(s, fmt.Sprintf("%s %d", s, i))
				}
			}(s)
		}
		wg.Wait()
		for _, s := range []Stream{StreamStdout, StreamStderr} {
			recs := o.Log(s).Tail(-1)
			So(len(recs), ShouldEqual, 500)
			for i, r := range recs {
				So(r.Text, ShouldEqual, fmt.Sprintf("%s %d", s, i))
			}
		}
		So(len(o.Since(0)), ShouldEqual, 1000)
	})

	Convey("An incremental reader sees every record", t, func() {
		const lines = 20000
		o := NewOutput(2 * lines)
		var wg sync.WaitGroup
		for _, s := range []Stream{StreamStdout, StreamStderr} {
			wg.Add(1)
			go func(s Stream) {
				defer wg.Done()
				for i := 0; i < lines; i++ {
					o.Append(s, strconv.Itoa(i))
				}
			}(s)
		}
		finished := make(chan struct{})
		go func() {
			wg.Wait()
			close(finished)
		}()

		var last int64
		seen := 0
		ordered := true
		read := func() {
			for _, r := range o.Since(last) {
				if r.Id <= last {
					ordered = false
				}
				last = r.Id
				seen++
			}
		}
		for done := false; !done; {
			select {
			case <-finished:
				done = true
			default:
			}
			read()
		}
		read()
		So(ordered, ShouldBeTrue)
		So(seen, ShouldEqual, 2*lines)
	})
}

func TestParseStream(t *testing.T) {
	Convey("Stream names parse", t, func() {
		s, e := ParseStream("STDERR")
		So(e, ShouldBeNil)
		So(s, ShouldEqual, StreamStderr)
		_, e = ParseStream("stdin")
		So(e, ShouldEqual, ErrBadStream)
	})
}
