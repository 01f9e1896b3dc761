// Copyright 2015 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package writequeue serialises concurrent writes to the same open file
// handle, enforcing priority order and exposing aggregate and per-fd
// statistics.
//
// Nothing in the teacher serialises writes this way — every op there gets
// its own goroutine and file systems are expected to handle concurrent
// writes themselves. This package follows the teacher's own locking idiom
// (sync.Mutex guarding a struct, checked invariants) for a problem shape
// described elsewhere in the domain by write-back coalescing layers such as
// rclone's vfscache and gcsfuse's bufferedwrites, whose sources were not
// retrievable in this pack; see DESIGN.md.
package writequeue

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jacobsa/syncutil"
	"github.com/jacobsa/timeutil"
)

// Priority classes for queued writes, highest first.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityUrgent
)

const numPriorities = int(PriorityUrgent) + 1

// Executor runs one queued write and returns an errno-style result: zero on
// success, negative on failure. token is whatever was passed to Enqueue for
// this entry, round-tripped so the caller can thread request-scoped state
// (e.g. the fuseops.Op to respond to) through to the point where the real
// work — and the fd's next write — is allowed to start.
type Executor func(fd int, offset int64, data []byte, token interface{}) int32

// Config controls queue admission.
type Config struct {
	DefaultMaxQueueSize int
	PerFDMaxQueueSize   map[int]int
}

// Stats is a point-in-time snapshot, either aggregated across all fds or
// scoped to one.
type Stats struct {
	TotalOps         uint64
	Completed        uint64
	Failed           uint64
	BytesWritten      uint64
	QueueSize        int
	MaxQueueSizeSeen int
	AvgLatencyMs     float64
	ActiveFDs        []int // only populated for the aggregate snapshot
}

type entry struct {
	opID       uint64
	fd         int
	offset     int64
	data       []byte
	priority   Priority
	token      interface{}
	completion func(errno int32)
	enqueuedAt time.Time
}

type perFD struct {
	pending [numPriorities][]*entry
	inFlight bool

	totalOps         uint64
	completed        uint64
	failed           uint64
	bytesWritten     uint64
	maxQueueSizeSeen int
	latencySumMs     float64
	latencyCount     uint64
}

func (q *perFD) size() int {
	n := 0
	for _, p := range q.pending {
		n += len(p)
	}
	return n
}

// Queue is the per-process write queue: one logical sub-queue per fd, each
// with at most one write in flight at a time.
type Queue struct {
	mu   syncutil.InvariantMutex // GUARDED_BY guards everything below
	cond *sync.Cond

	clock   timeutil.Clock
	cfg     Config
	perFD   map[int]*perFD
	nextID  uint64 // atomic
	stopped bool
}

// New creates an empty write queue.
func New(cfg Config, clock timeutil.Clock) *Queue {
	if clock == nil {
		clock = timeutil.RealClock()
	}

	q := &Queue{
		clock: clock,
		cfg:   cfg,
		perFD: make(map[int]*perFD),
	}
	q.mu = syncutil.NewInvariantMutex(q.checkInvariants)
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *Queue) checkInvariants() {
	for fd, pf := range q.perFD {
		if limit := q.fdLimitLocked(fd); limit > 0 && pf.size() > limit {
			panic(fmt.Sprintf("writequeue: fd %d queue size %d exceeds limit %d", fd, pf.size(), limit))
		}
	}
}

func (q *Queue) fdLimitLocked(fd int) int {
	if q.cfg.PerFDMaxQueueSize != nil {
		if limit, ok := q.cfg.PerFDMaxQueueSize[fd]; ok {
			return limit
		}
	}
	return q.cfg.DefaultMaxQueueSize
}

// Enqueue admits one write for fd. token is opaque to the queue and is
// handed back to both the Executor and completion for this entry. It
// returns a non-zero, process-unique op_id on success, or zero if fd's
// queue is full, the arguments are invalid, or the queue has been stopped.
func (q *Queue) Enqueue(
	fd int,
	offset int64,
	size int,
	data []byte,
	priority Priority,
	token interface{},
	completion func(errno int32)) uint64 {
	if fd < 0 || size <= 0 || len(data) < size {
		return 0
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped {
		return 0
	}

	pf, ok := q.perFD[fd]
	if !ok {
		pf = &perFD{}
		q.perFD[fd] = pf
	}

	if limit := q.fdLimitLocked(fd); limit > 0 && pf.size() >= limit {
		return 0
	}

	id := atomic.AddUint64(&q.nextID, 1)
	e := &entry{
		opID:       id,
		fd:         fd,
		offset:     offset,
		data:       data[:size],
		priority:   priority,
		token:      token,
		completion: completion,
		enqueuedAt: q.clock.Now(),
	}

	pf.pending[priority] = append(pf.pending[priority], e)
	pf.totalOps++
	if pf.size() > pf.maxQueueSizeSeen {
		pf.maxQueueSizeSeen = pf.size()
	}

	q.cond.Broadcast()
	return id
}

// Process drains as many ready-to-run entries as the executor services,
// running at most one in-flight write per fd at a time. exec is called, and
// must return, before the entry's fd is marked free for its next write —
// callers that need the real filesystem write and its reply to complete
// before a second write for the same fd can start must do that work inside
// exec, not in completion. It returns the number of entries it ran.
func (q *Queue) Process(exec Executor) int {
	q.mu.Lock()

	var ready []*entry
	var fds []int
	for fd, pf := range q.perFD {
		if pf.inFlight {
			continue
		}
		for p := numPriorities - 1; p >= 0; p-- {
			if len(pf.pending[p]) > 0 {
				e := pf.pending[p][0]
				pf.pending[p] = pf.pending[p][1:]
				pf.inFlight = true
				ready = append(ready, e)
				fds = append(fds, fd)
				break
			}
		}
	}
	q.mu.Unlock()

	for i, e := range ready {
		errno := exec(e.fd, e.offset, e.data, e.token)

		q.mu.Lock()
		pf := q.perFD[e.fd]
		pf.inFlight = false
		pf.completed++
		if errno != 0 {
			pf.failed++
		} else {
			pf.bytesWritten += uint64(len(e.data))
		}
		pf.latencySumMs += float64(q.clock.Now().Sub(e.enqueuedAt).Milliseconds())
		pf.latencyCount++
		q.cond.Broadcast()
		q.mu.Unlock()

		if e.completion != nil {
			e.completion(errno)
		}
		_ = fds[i]
	}

	return len(ready)
}

// Run drains the queue on the calling goroutine until Stop is called and
// every fd's queue has gone empty. It blocks between rounds whenever there
// is nothing ready to run, waking on Enqueue or Stop.
func (q *Queue) Run(exec Executor) {
	for {
		n := q.Process(exec)

		q.mu.Lock()
		if q.stopped {
			empty := true
			for _, pf := range q.perFD {
				if pf.size() > 0 || pf.inFlight {
					empty = false
					break
				}
			}
			if empty {
				q.mu.Unlock()
				return
			}
		}
		if n == 0 {
			q.cond.Wait()
		}
		q.mu.Unlock()
	}
}

// Stop rejects further Enqueue calls and wakes any blocked Run loop so it
// can drain what remains and return.
func (q *Queue) Stop() {
	q.mu.Lock()
	q.stopped = true
	q.cond.Broadcast()
	q.mu.Unlock()
}

// Shutdown stops admitting new writes, then blocks until every queued and
// in-flight write finishes or timeout elapses. It satisfies shutdown.Drainer.
func (q *Queue) Shutdown(timeout time.Duration) bool {
	q.Stop()
	return q.FlushAll(timeout)
}

// Flush blocks until fd's queue (including any in-flight write) is empty,
// or timeout elapses.
func (q *Queue) Flush(fd int, timeout time.Duration) bool {
	deadline := q.clock.Now().Add(timeout)
	timer := time.AfterFunc(timeout, func() {
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	})
	defer timer.Stop()

	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		pf, ok := q.perFD[fd]
		if !ok || (pf.size() == 0 && !pf.inFlight) {
			return true
		}
		if !q.clock.Now().Before(deadline) {
			return false
		}
		q.cond.Wait()
	}
}

// FlushAll blocks until every fd's queue is empty, or timeout elapses.
func (q *Queue) FlushAll(timeout time.Duration) bool {
	deadline := q.clock.Now().Add(timeout)
	timer := time.AfterFunc(timeout, func() {
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	})
	defer timer.Stop()

	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		empty := true
		for _, pf := range q.perFD {
			if pf.size() > 0 || pf.inFlight {
				empty = false
				break
			}
		}
		if empty {
			return true
		}
		if !q.clock.Now().Before(deadline) {
			return false
		}
		q.cond.Wait()
	}
}

// Configure updates admission limits in place.
func (q *Queue) Configure(cfg Config) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cfg = cfg
}

// Stats returns the aggregate snapshot across every fd that has ever had a
// queue, or the snapshot for a single fd if fdFilter is non-nil. The second
// return value is false if fdFilter names an fd with no queue.
func (q *Queue) Stats(fdFilter *int) (Stats, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if fdFilter != nil {
		pf, ok := q.perFD[*fdFilter]
		if !ok {
			return Stats{}, false
		}
		return statsFrom(pf, nil), true
	}

	var agg Stats
	for fd, pf := range q.perFD {
		s := statsFrom(pf, nil)
		agg.TotalOps += s.TotalOps
		agg.Completed += s.Completed
		agg.Failed += s.Failed
		agg.BytesWritten += s.BytesWritten
		agg.QueueSize += s.QueueSize
		if pf.maxQueueSizeSeen > agg.MaxQueueSizeSeen {
			agg.MaxQueueSizeSeen = pf.maxQueueSizeSeen
		}
		agg.ActiveFDs = append(agg.ActiveFDs, fd)
	}
	if len(agg.ActiveFDs) > 0 {
		var sum float64
		var count uint64
		for _, pf := range q.perFD {
			sum += pf.latencySumMs
			count += pf.latencyCount
		}
		if count > 0 {
			agg.AvgLatencyMs = sum / float64(count)
		}
	}
	return agg, true
}

func statsFrom(pf *perFD, _ []int) Stats {
	avg := 0.0
	if pf.latencyCount > 0 {
		avg = pf.latencySumMs / float64(pf.latencyCount)
	}
	return Stats{
		TotalOps:         pf.totalOps,
		Completed:        pf.completed,
		Failed:           pf.failed,
		BytesWritten:     pf.bytesWritten,
		QueueSize:        pf.size(),
		MaxQueueSizeSeen: pf.maxQueueSizeSeen,
		AvgLatencyMs:     avg,
	}
}
