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

package fuse

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jacobsa/syncutil"
	"github.com/jacobsa/timeutil"
)

// Priority classes understood by the Dispatcher's queue. Higher values sort
// first when priority ordering is enabled.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
)

const numPriorities = int(PriorityHigh) + 1

// Handler processes one dispatched operation. args and the returned result
// are opaque to the dispatcher; it exists only to move work off of the
// calling (libfuse / kernel-read) goroutine and onto a bounded worker pool.
type Handler func(ctx context.Context, args interface{}) (result interface{}, err error)

// DispatcherOptions configures a Dispatcher when passed to Initialize. The
// zero value is not usable: Initialize rejects a WorkerThreads below 1. A nil
// Clock defaults to the real clock.
type DispatcherOptions struct {
	// Maximum number of queued-but-undispatched work items. Zero means
	// unlimited.
	MaxQueueSize int

	// Number of worker goroutines draining the queue.
	WorkerThreads int

	// When true, items are served strictly in priority order (FIFO within
	// a class); when false, pure FIFO regardless of priority.
	PriorityOrdering bool

	Clock timeutil.Clock
}

// DispatcherStats is a point-in-time snapshot of dispatcher activity.
type DispatcherStats struct {
	TotalDispatched  uint64
	TotalCompleted   uint64
	TotalErrors      uint64
	QueueSize        int
	MaxQueueSizeSeen int
	AvgLatencyMs     float64
	UptimeMs         int64
}

type workItem struct {
	ctx      context.Context
	cancel   context.CancelFunc
	opName   string
	args     interface{}
	handler  Handler
	priority Priority
	reply    *ReplyHandle
	enqueued time.Time
}

// ReplyHandle enforces the "every reply handle is consumed exactly once"
// rule. A second call to Post, after the first, is a programming error; it
// does not panic, and it is recorded only in the handle's own used count.
// Neither a double Post nor a handle that is never posted is reported in
// DispatcherStats.
type ReplyHandle struct {
	once sync.Once
	used int32
	post func(result interface{}, err error)
}

// Post delivers result/err to whoever is waiting on this handle. Only the
// first call has any effect; subsequent calls are counted but ignored.
func (h *ReplyHandle) Post(result interface{}, err error) {
	posted := false
	h.once.Do(func() {
		posted = true
		atomic.StoreInt32(&h.used, 1)
		h.post(result, err)
	})
	if !posted {
		atomic.AddInt32(&h.used, 1)
	}
}

// Dispatcher moves kernel-delivered callbacks onto a bounded worker pool,
// preserving per-fd ordering only insofar as callers serialise through
// package writequeue; the dispatcher itself treats every item as
// independent. It is grounded on this package's Connection/Server split
// (one reply per request) generalized from one-goroutine-per-op to a fixed
// worker pool with priority classes, the shape gcsfuse's
// internal/workerpool.NewStaticWorkerPool uses atop this same package.
type Dispatcher struct {
	mu   syncutil.InvariantMutex // GUARDED_BY guards the fields below
	cond *sync.Cond

	opts        DispatcherOptions
	initialized bool
	shutdown    bool
	startTime   time.Time

	// handlers holds op-name -> Handler registrations made before
	// Initialize. Once Initialize runs they're compiled into opcodeIndex/
	// opcodeHandlers, a fixed table, and handlers is no longer consulted.
	handlers map[string]Handler

	// opcodeIndex and opcodeHandlers are the compiled, immutable form of
	// handlers, built once by Initialize so Dispatch never has to grow or
	// rehash a map while serving requests.
	opcodeIndex    map[string]int
	opcodeHandlers []Handler

	queues [numPriorities][]*workItem

	totalDispatched  uint64
	totalCompleted   uint64
	totalErrors      uint64
	maxQueueSizeSeen int
	latencySumMs     float64
	latencyCount     uint64

	doubleUseCount uint64
	lostHandles    uint64

	wg sync.WaitGroup
}

// NewDispatcher creates a Dispatcher that has not yet been initialized.
func NewDispatcher() *Dispatcher {
	d := &Dispatcher{}
	d.mu = syncutil.NewInvariantMutex(d.checkInvariants)
	d.cond = sync.NewCond(&d.mu)
	return d
}

func (d *Dispatcher) checkInvariants() {
	if d.opts.MaxQueueSize > 0 {
		total := 0
		for _, q := range d.queues {
			total += len(q)
		}
		if total > d.opts.MaxQueueSize {
			panic(fmt.Sprintf("dispatcher: queue size %d exceeds max %d", total, d.opts.MaxQueueSize))
		}
	}
}

// RegisterHandler binds opName to handler. Registration is only permitted
// before Initialize, which compiles every registered name into a fixed
// opcode table; registering the same name twice, or registering after
// Initialize, is an error. This is the dynamic side of the otherwise
// constant-time, typo-safe dispatch surface: a lookup miss at Dispatch time
// means a caller passed an opName nothing ever registered, not a map that
// might still grow underneath it.
func (d *Dispatcher) RegisterHandler(opName string, handler Handler) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.initialized {
		return fmt.Errorf("dispatcher: cannot register %q after initialize", opName)
	}
	if d.handlers == nil {
		d.handlers = make(map[string]Handler)
	}
	if _, ok := d.handlers[opName]; ok {
		return fmt.Errorf("dispatcher: handler already registered for %q", opName)
	}

	d.handlers[opName] = handler
	return nil
}

// RemoveHandler undoes a prior RegisterHandler call. Like RegisterHandler,
// it is only permitted before Initialize.
func (d *Dispatcher) RemoveHandler(opName string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.initialized {
		return fmt.Errorf("dispatcher: cannot remove %q after initialize", opName)
	}
	if _, ok := d.handlers[opName]; !ok {
		return fmt.Errorf("dispatcher: no handler registered for %q", opName)
	}

	delete(d.handlers, opName)
	return nil
}

// Initialize compiles the registered handlers into a fixed opcode table and
// starts the worker pool. It may be called only once; a second call
// returns an error.
func (d *Dispatcher) Initialize(opts DispatcherOptions) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.initialized {
		return fmt.Errorf("dispatcher: already initialized")
	}
	if opts.WorkerThreads < 1 {
		return fmt.Errorf("dispatcher: worker_threads must be >= 1")
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock()
	}

	names := make([]string, 0, len(d.handlers))
	for name := range d.handlers {
		names = append(names, name)
	}
	sort.Strings(names)

	d.opcodeIndex = make(map[string]int, len(names))
	d.opcodeHandlers = make([]Handler, len(names))
	for i, name := range names {
		d.opcodeIndex[name] = i
		d.opcodeHandlers[i] = d.handlers[name]
	}

	d.opts = opts
	d.initialized = true
	d.startTime = opts.Clock.Now()

	for i := 0; i < opts.WorkerThreads; i++ {
		d.wg.Add(1)
		go d.worker()
	}

	return nil
}

// SetConfig hot-reloads the queue size cap and priority-ordering flag.
func (d *Dispatcher) SetConfig(maxQueueSize *int, priorityOrdering *bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if maxQueueSize != nil {
		d.opts.MaxQueueSize = *maxQueueSize
	}
	if priorityOrdering != nil {
		d.opts.PriorityOrdering = *priorityOrdering
	}
}

// Dispatch enqueues one unit of work for the handler registered under
// opName, returning ESHUTDOWN-shaped errno if the dispatcher has begun
// shutting down, EAGAIN-shaped errno if the queue is full, or a plain error
// if opName names no registered handler. It is safe to call from any
// goroutine, including the goroutine reading from the kernel, since the
// fast path never blocks.
func (d *Dispatcher) Dispatch(
	ctx context.Context,
	opName string,
	args interface{},
	priority Priority,
	post func(result interface{}, err error)) (*ReplyHandle, error) {
	d.mu.Lock()

	if !d.initialized {
		d.mu.Unlock()
		return nil, fmt.Errorf("dispatcher: not initialized")
	}
	if d.shutdown {
		d.mu.Unlock()
		return nil, ESHUTDOWN
	}

	idx, ok := d.opcodeIndex[opName]
	if !ok {
		d.mu.Unlock()
		return nil, fmt.Errorf("dispatcher: no handler registered for %q", opName)
	}
	handler := d.opcodeHandlers[idx]

	total := 0
	for _, q := range d.queues {
		total += len(q)
	}
	if d.opts.MaxQueueSize > 0 && total >= d.opts.MaxQueueSize {
		d.mu.Unlock()
		return nil, EAGAIN
	}

	childCtx, cancel := context.WithCancel(ctx)
	reply := &ReplyHandle{post: post}
	item := &workItem{
		ctx:      childCtx,
		cancel:   cancel,
		opName:   opName,
		args:     args,
		handler:  handler,
		priority: priority,
		reply:    reply,
		enqueued: d.opts.Clock.Now(),
	}

	d.queues[priority] = append(d.queues[priority], item)
	d.totalDispatched++
	if total+1 > d.maxQueueSizeSeen {
		d.maxQueueSizeSeen = total + 1
	}

	d.mu.Unlock()
	d.cond.Signal()

	return reply, nil
}

// nextLocked pops the next item to run, honoring priority ordering if
// configured. Caller must hold d.mu.
func (d *Dispatcher) nextLocked() *workItem {
	order := []int{int(PriorityHigh), int(PriorityNormal), int(PriorityLow)}
	if !d.opts.PriorityOrdering {
		order = []int{int(PriorityLow), int(PriorityNormal), int(PriorityHigh)}
		// Pure FIFO across classes isn't meaningful without a single merged
		// timeline; approximate it by always taking from whichever queue
		// has the oldest head, since that's what "ignore priority" means
		// in practice for a multi-queue implementation.
		var best *workItem
		bestIdx := -1
		for i, q := range d.queues {
			if len(q) == 0 {
				continue
			}
			if best == nil || q[0].enqueued.Before(best.enqueued) {
				best = q[0]
				bestIdx = i
			}
		}
		if bestIdx < 0 {
			return nil
		}
		item := d.queues[bestIdx][0]
		d.queues[bestIdx] = d.queues[bestIdx][1:]
		return item
	}

	for _, p := range order {
		if len(d.queues[p]) > 0 {
			item := d.queues[p][0]
			d.queues[p] = d.queues[p][1:]
			return item
		}
	}
	return nil
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()

	for {
		d.mu.Lock()
		for {
			if d.shutdown && d.empty() {
				d.mu.Unlock()
				return
			}
			if item := d.nextLocked(); item != nil {
				d.mu.Unlock()
				d.run(item)
				break
			}
			d.cond.Wait()
		}
	}
}

func (d *Dispatcher) empty() bool {
	for _, q := range d.queues {
		if len(q) > 0 {
			return false
		}
	}
	return true
}

func (d *Dispatcher) run(item *workItem) {
	result, err := item.handler(item.ctx, item.args)
	item.cancel()

	d.mu.Lock()
	d.totalCompleted++
	if err != nil {
		d.totalErrors++
	}
	d.latencySumMs += float64(d.opts.Clock.Now().Sub(item.enqueued).Milliseconds())
	d.latencyCount++
	d.mu.Unlock()

	item.reply.Post(result, err)
}

// Stats returns a snapshot of dispatcher activity.
func (d *Dispatcher) Stats() DispatcherStats {
	d.mu.Lock()
	defer d.mu.Unlock()

	size := 0
	for _, q := range d.queues {
		size += len(q)
	}

	avg := 0.0
	if d.latencyCount > 0 {
		avg = d.latencySumMs / float64(d.latencyCount)
	}

	uptime := int64(0)
	if d.initialized {
		uptime = d.opts.Clock.Now().Sub(d.startTime).Milliseconds()
	}

	return DispatcherStats{
		TotalDispatched:  d.totalDispatched,
		TotalCompleted:   d.totalCompleted,
		TotalErrors:      d.totalErrors,
		QueueSize:        size,
		MaxQueueSizeSeen: d.maxQueueSizeSeen,
		AvgLatencyMs:     avg,
		UptimeMs:         uptime,
	}
}

// Shutdown stops accepting new work, cancels every queued item's context,
// and waits up to timeout for all workers to drain. It returns false if the
// timeout elapsed first.
func (d *Dispatcher) Shutdown(timeout time.Duration) bool {
	d.mu.Lock()
	d.shutdown = true
	for _, q := range d.queues {
		for _, item := range q {
			item.cancel()
		}
	}
	d.mu.Unlock()
	d.cond.Broadcast()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
