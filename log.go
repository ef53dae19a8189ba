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
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// MaxLogRecords is the number of lines kept per node, per stream.
	MaxLogRecords = 5000
)

// Stream identifies where a captured line came from.
type Stream int

const (
	StreamStdout Stream = iota
	StreamStderr
	StreamSystem // messages from the supervisor itself
	numStreams
)

var streamNames = [...]string{"stdout", "stderr", "system"}

func (s Stream) String() string {
	if s < 0 || s >= numStreams {
		return "unknown"
	}
	return streamNames[s]
}

func (s Stream) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Stream) UnmarshalText(b []byte) error {
	v, e := ParseStream(string(b))
	if e != nil {
		return e
	}
	*s = v
	return nil
}

// ParseStream converts a stream name ("stdout", "stderr", "system")
// back into a Stream.
func ParseStream(name string) (Stream, error) {
	for i, n := range streamNames {
		if strings.EqualFold(n, name) {
			return Stream(i), nil
		}
	}
	return 0, ErrBadStream
}

type LogRecord struct {
	Id     int64     `json:"id,string"`
	Time   time.Time `json:"time"`
	Stream Stream    `json:"stream"`
	Text   string    `json:"text"`
}

// Log is a bounded ring of lines for a single stream.  Once full, every
// Append evicts the oldest record.  Append is the only mutator.
type Log struct {
	records    []LogRecord
	numRecords int
	maxRecords int
	id         int64
	seq        *int64
	order      *sync.Mutex // shared by the logs of an Output, if any
	stream     Stream
	notify     func(int64)
	cvs        map[*sync.Cond]bool
	mx         sync.Mutex
}

func (log *Log) lock() {
	log.mx.Lock()
}

func (log *Log) unlock() {
	log.mx.Unlock()
}

// Append adds a line at the tail, evicting the oldest line if the log is
// at capacity.  It returns the id assigned to the record.
func (log *Log) Append(text string) int64 {
	now := time.Now()
	if log.order != nil {
		log.order.Lock()
	}
	log.lock()
	idx := log.numRecords % log.maxRecords
	id := atomic.AddInt64(log.seq, 1)
	log.records[idx] = LogRecord{
		Id:     id,
		Time:   now,
		Stream: log.stream,
		Text:   text,
	}
	// NB: numRecords may actually be more than maxRecords.
	// In that case, we've looped, but we use this really to
	// track the next index.
	log.numRecords++
	log.id = id
	for cv := range log.cvs {
		cv.Broadcast()
	}
	notify := log.notify
	log.unlock()
	if log.order != nil {
		log.order.Unlock()
	}
	if notify != nil {
		notify(id)
	}
	return id
}

// Len returns the number of records currently retained.
func (log *Log) Len() int {
	log.lock()
	defer log.unlock()
	if log.numRecords > log.maxRecords {
		return log.maxRecords
	}
	return log.numRecords
}

// Serial returns the id of the newest record, or zero if the log is
// empty.
func (log *Log) Serial() int64 {
	log.lock()
	defer log.unlock()
	return log.id
}

// Cap returns the maximum number of records retained.
func (log *Log) Cap() int {
	return log.maxRecords
}

// collect returns up to n of the newest records with an id greater than
// after, oldest first.  Call with lock held.
func (log *Log) collect(after int64, n int) []LogRecord {
	cnt := log.numRecords
	if cnt > log.maxRecords {
		cnt = log.maxRecords
	}
	if n >= 0 && cnt > n {
		cnt = n
	}
	index := log.numRecords - cnt
	recs := make([]LogRecord, 0, cnt)
	for j := 0; j < cnt; j++ {
		r := log.records[index%log.maxRecords]
		index++
		if r.Id > after {
			recs = append(recs, r)
		}
	}
	return recs
}

// GetRecords returns the records that are stored, as well as an ID
// suitable for use as an Etag.  If last matches the current ID, nil is
// returned without copying anything.
func (log *Log) GetRecords(last int64) ([]LogRecord, int64) {
	log.lock()
	defer log.unlock()
	if log.id == last && last != 0 {
		return nil, last
	}
	return log.collect(0, -1), log.id
}

// Tail returns at most n of the most recent records, oldest first.
func (log *Log) Tail(n int) []LogRecord {
	log.lock()
	defer log.unlock()
	return log.collect(0, n)
}

// Since returns the retained records whose id is greater than id.
func (log *Log) Since(id int64) []LogRecord {
	log.lock()
	defer log.unlock()
	return log.collect(id, -1)
}

// Watch waits until the log changes from last, or expire elapses.  It
// returns the current id.
func (log *Log) Watch(last int64, expire time.Duration) int64 {
	expired := false
	var timer *time.Timer
	cv := sync.NewCond(&log.mx)
	if expire > 0 {
		timer = time.AfterFunc(expire, func() {
			log.lock()
			expired = true
			cv.Broadcast()
			log.unlock()
		})
	} else {
		expired = true
	}

	log.lock()
	log.cvs[cv] = true
	for {
		if log.id != last || expired {
			break
		}
		cv.Wait()
	}
	delete(log.cvs, cv)
	last = log.id
	log.unlock()
	if timer != nil {
		timer.Stop()
	}
	return last
}

func newLog(stream Stream, max int, seq *int64) *Log {
	if max <= 0 {
		max = MaxLogRecords
	}
	return &Log{
		records:    make([]LogRecord, max),
		maxRecords: max,
		seq:        seq,
		stream:     stream,
		cvs:        make(map[*sync.Cond]bool),
	}
}

// NewLog returns a Log holding at most max records.  A max of zero selects
// MaxLogRecords.
func NewLog(stream Stream, max int) *Log {
	return newLog(stream, max, new(int64))
}

// Output is the set of per-stream logs belonging to one node.  Record ids
// are unique and increasing across all of the node's streams, so the
// streams can be merged back into arrival order.  Appends to any stream
// are serialized, so a merged read never sees a later id without every
// earlier one.
type Output struct {
	logs  [numStreams]*Log
	seq   int64
	order sync.Mutex
	last  int64
	cvs   map[*sync.Cond]bool
	mx    sync.Mutex
}

// NewOutput returns an Output whose logs each hold at most max records.
func NewOutput(max int) *Output {
	o := &Output{cvs: make(map[*sync.Cond]bool)}
	for i := range o.logs {
		o.logs[i] = newLog(Stream(i), max, &o.seq)
		o.logs[i].order = &o.order
		o.logs[i].notify = o.wakeUp
	}
	return o
}

func (o *Output) wakeUp(id int64) {
	o.mx.Lock()
	if id > o.last {
		o.last = id
	}
	for cv := range o.cvs {
		cv.Broadcast()
	}
	o.mx.Unlock()
}

// Log returns the log for a single stream.
func (o *Output) Log(s Stream) *Log {
	if s < 0 || s >= numStreams {
		return nil
	}
	return o.logs[s]
}

// Append adds a line to the given stream.
func (o *Output) Append(s Stream, text string) int64 {
	return o.logs[s].Append(text)
}

// Serial returns the id of the most recently appended record on any
// stream.
func (o *Output) Serial() int64 {
	o.mx.Lock()
	defer o.mx.Unlock()
	return o.last
}

// Since returns the records of all streams newer than id, merged in
// arrival order.
func (o *Output) Since(id int64) []LogRecord {
	var parts [numStreams][]LogRecord
	n := 0
	o.order.Lock()
	for i, l := range o.logs {
		parts[i] = l.Since(id)
		n += len(parts[i])
	}
	o.order.Unlock()
	recs := make([]LogRecord, 0, n)
	for len(recs) < n {
		best := -1
		for i := range parts {
			if len(parts[i]) == 0 {
				continue
			}
			if best < 0 || parts[i][0].Id < parts[best][0].Id {
				best = i
			}
		}
		recs = append(recs, parts[best][0])
		parts[best] = parts[best][1:]
	}
	return recs
}

// GetRecords is the merged equivalent of Log.GetRecords.
func (o *Output) GetRecords(last int64) ([]LogRecord, int64) {
	serial := o.Serial()
	if serial == last && last != 0 {
		return nil, last
	}
	return o.Since(0), serial
}

// Watch waits for any stream to change from last, or for expire to elapse.
func (o *Output) Watch(last int64, expire time.Duration) int64 {
	expired := false
	var timer *time.Timer
	cv := sync.NewCond(&o.mx)
	if expire > 0 {
		timer = time.AfterFunc(expire, func() {
			o.mx.Lock()
			expired = true
			cv.Broadcast()
			o.mx.Unlock()
		})
	} else {
		expired = true
	}

	o.mx.Lock()
	o.cvs[cv] = true
	for o.last == last && !expired {
		cv.Wait()
	}
	delete(o.cvs, cv)
	last = o.last
	o.mx.Unlock()
	if timer != nil {
		timer.Stop()
	}
	return last
}
