package fuse

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestReplyHandlePostIsIdempotent(t *testing.T) {
	var count int32
	h := &ReplyHandle{post: func(result interface{}, err error) {
		atomic.AddInt32(&count, 1)
	}}

	h.Post(1, nil)
	h.Post(2, nil)
	h.Post(3, nil)

	if got := atomic.LoadInt32(&count); got != 1 {
		t.Fatalf("post invoked %d times, want 1", got)
	}
	if got := atomic.LoadInt32(&h.used); got != 3 {
		t.Fatalf("used = %d, want 3", got)
	}
}

func TestDispatchInvokesPostExactlyOncePerItem(t *testing.T) {
	const n = 200

	d := NewDispatcher()
	if err := d.RegisterHandler("op", func(ctx context.Context, args interface{}) (interface{}, error) {
		return args, nil
	}); err != nil {
		t.Fatalf("RegisterHandler: %v", err)
	}
	if err := d.Initialize(DispatcherOptions{WorkerThreads: 4, PriorityOrdering: true}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	var posted int32
	done := make(chan struct{}, n)
	post := func(result interface{}, err error) {
		atomic.AddInt32(&posted, 1)
		done <- struct{}{}
	}

	for i := 0; i < n; i++ {
		if _, err := d.Dispatch(context.Background(), "op", i, PriorityNormal, post); err != nil {
			t.Fatalf("Dispatch: %v", err)
		}
	}
	for i := 0; i < n; i++ {
		<-done
	}

	if got := atomic.LoadInt32(&posted); got != n {
		t.Fatalf("posted = %d, want %d", got, n)
	}
}

func TestRegisterHandlerRejectsDuplicatesAndPostInit(t *testing.T) {
	d := NewDispatcher()
	noop := func(ctx context.Context, args interface{}) (interface{}, error) { return nil, nil }

	if err := d.RegisterHandler("op", noop); err != nil {
		t.Fatalf("first RegisterHandler: %v", err)
	}
	if err := d.RegisterHandler("op", noop); err == nil {
		t.Fatalf("duplicate RegisterHandler should have failed")
	}
	if err := d.Initialize(DispatcherOptions{WorkerThreads: 1}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := d.RegisterHandler("other", noop); err == nil {
		t.Fatalf("RegisterHandler after Initialize should have failed")
	}
	if err := d.RemoveHandler("op"); err == nil {
		t.Fatalf("RemoveHandler after Initialize should have failed")
	}
}

func TestDispatchUnknownOpNameFails(t *testing.T) {
	d := NewDispatcher()
	if err := d.Initialize(DispatcherOptions{WorkerThreads: 1}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	_, err := d.Dispatch(context.Background(), "nope", nil, PriorityNormal, func(interface{}, error) {})
	if err == nil {
		t.Fatalf("Dispatch with unregistered opName should have failed")
	}
}

// TestPriorityPreemption verifies P3: with priority_ordering enabled, no LOW
// entry runs while a NORMAL-or-higher entry is pending.
func TestPriorityPreemption(t *testing.T) {
	d := NewDispatcher()

	unblock := make(chan struct{})
	started := make(chan struct{})

	var mu sync.Mutex
	var order []string

	if err := d.RegisterHandler("block", func(ctx context.Context, args interface{}) (interface{}, error) {
		close(started)
		<-unblock
		return nil, nil
	}); err != nil {
		t.Fatalf("RegisterHandler(block): %v", err)
	}
	if err := d.RegisterHandler("mark", func(ctx context.Context, args interface{}) (interface{}, error) {
		mu.Lock()
		order = append(order, args.(string))
		mu.Unlock()
		return nil, nil
	}); err != nil {
		t.Fatalf("RegisterHandler(mark): %v", err)
	}
	if err := d.Initialize(DispatcherOptions{WorkerThreads: 1, PriorityOrdering: true}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	done := make(chan struct{}, 3)
	post := func(interface{}, error) { done <- struct{}{} }

	if _, err := d.Dispatch(context.Background(), "block", nil, PriorityNormal, post); err != nil {
		t.Fatalf("Dispatch(block): %v", err)
	}
	<-started

	if _, err := d.Dispatch(context.Background(), "mark", "low", PriorityLow, post); err != nil {
		t.Fatalf("Dispatch(low): %v", err)
	}
	if _, err := d.Dispatch(context.Background(), "mark", "high", PriorityHigh, post); err != nil {
		t.Fatalf("Dispatch(high): %v", err)
	}

	close(unblock)

	for i := 0; i < 3; i++ {
		<-done
	}

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != "high" || order[1] != "low" {
		t.Fatalf("execution order = %v, want [high low]", order)
	}
}

// TestBackpressureReturnsEAGAIN verifies P4: enqueueing beyond max_queue_size
// fails immediately without blocking and without dropping what's already
// queued.
func TestBackpressureReturnsEAGAIN(t *testing.T) {
	d := NewDispatcher()

	unblock := make(chan struct{})
	started := make(chan struct{}, 1)

	if err := d.RegisterHandler("block", func(ctx context.Context, args interface{}) (interface{}, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-unblock
		return nil, nil
	}); err != nil {
		t.Fatalf("RegisterHandler: %v", err)
	}
	if err := d.Initialize(DispatcherOptions{WorkerThreads: 1, MaxQueueSize: 1, PriorityOrdering: true}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	post := func(interface{}, error) {}

	if _, err := d.Dispatch(context.Background(), "block", nil, PriorityNormal, post); err != nil {
		t.Fatalf("Dispatch 1: %v", err)
	}
	<-started

	if _, err := d.Dispatch(context.Background(), "block", nil, PriorityNormal, post); err != nil {
		t.Fatalf("Dispatch 2 (fills the queue): %v", err)
	}

	if _, err := d.Dispatch(context.Background(), "block", nil, PriorityNormal, post); err != EAGAIN {
		t.Fatalf("Dispatch 3 = %v, want EAGAIN", err)
	}

	close(unblock)
}

// TestShutdownCancelsQueuedItemContext verifies P5: shutdown cancels the
// context of every item still queued, even though the handler that's
// actually running ignores cancellation and never returns on its own.
func TestShutdownCancelsQueuedItemContext(t *testing.T) {
	d := NewDispatcher()

	release := make(chan struct{})
	started := make(chan struct{}, 1)
	queuedRan := make(chan error, 1)

	if err := d.RegisterHandler("stuck", func(ctx context.Context, args interface{}) (interface{}, error) {
		started <- struct{}{}
		<-release
		return nil, nil
	}); err != nil {
		t.Fatalf("RegisterHandler(stuck): %v", err)
	}
	if err := d.RegisterHandler("queued", func(ctx context.Context, args interface{}) (interface{}, error) {
		queuedRan <- ctx.Err()
		return nil, ctx.Err()
	}); err != nil {
		t.Fatalf("RegisterHandler(queued): %v", err)
	}
	if err := d.Initialize(DispatcherOptions{WorkerThreads: 1, PriorityOrdering: true}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	post := func(interface{}, error) {}

	if _, err := d.Dispatch(context.Background(), "stuck", nil, PriorityNormal, post); err != nil {
		t.Fatalf("Dispatch(stuck): %v", err)
	}
	<-started

	if _, err := d.Dispatch(context.Background(), "queued", nil, PriorityNormal, post); err != nil {
		t.Fatalf("Dispatch(queued): %v", err)
	}

	shutdownDone := make(chan bool, 1)
	go func() { shutdownDone <- d.Shutdown(200 * time.Millisecond) }()

	// Give Shutdown a chance to cancel the still-queued item before the
	// stuck handler is released and the queued one actually runs.
	time.Sleep(20 * time.Millisecond)
	close(release)

	if ok := <-shutdownDone; !ok {
		t.Fatalf("Shutdown timed out unexpectedly")
	}

	select {
	case err := <-queuedRan:
		if err == nil {
			t.Fatalf("queued handler's context was not cancelled while it waited")
		}
	case <-time.After(time.Second):
		t.Fatal("queued handler never ran")
	}
}
