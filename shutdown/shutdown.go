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

// Package shutdown cleanly tears down a mounted file system's pipeline in
// four bounded-time phases. The teacher has nothing like this —
// MountedFileSystem.Join only waits for the kernel connection to close — so
// this is built fresh, grounded on the same mutex/invariant idiom used
// throughout the teacher's samples, with phase callbacks modelled after the
// lifecycle hooks gcsfuse picks up transitively from jacobsa/daemonize.
package shutdown

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jacobsa/syncutil"
	"github.com/jacobsa/timeutil"
)

// State is one stage of the shutdown state machine. Transitions only move
// forward; CLOSED is terminal.
type State int

const (
	Running State = iota
	Draining
	Unmounting
	Closed
)

func (s State) String() string {
	switch s {
	case Running:
		return "RUNNING"
	case Draining:
		return "DRAINING"
	case Unmounting:
		return "UNMOUNTING"
	case Closed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Callbacks are optional hooks invoked at points in the shutdown sequence.
// Any of them may be nil.
type Callbacks struct {
	OnBegin    func(reason string, sessionID uuid.UUID)
	OnPhase    func(phase State)
	OnComplete func(stats Stats)
	OnFailed   func(phase State, err error)
}

// Timeouts bounds how long each phase is allowed to run before shutdown
// gives up on it and advances anyway.
type Timeouts struct {
	Draining   time.Duration
	Unmounting time.Duration
}

// DefaultTimeouts matches the spec's defaults: 5s draining (15s total
// budget), 8s unmounting.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Draining:   5 * time.Second,
		Unmounting: 8 * time.Second,
	}
}

// PhaseDuration records how long one phase actually took.
type PhaseDuration struct {
	Phase    State
	Duration time.Duration
}

// Stats is a final report once shutdown reaches CLOSED.
type Stats struct {
	FinalState        State
	GracefulCompletion bool
	FailureReason      string
	PhaseDurations     []PhaseDuration
	TotalDuration      time.Duration
}

// Drainer is the subset of the dispatcher/write-queue surface the
// coordinator needs in order to quiesce the pipeline during DRAINING.
type Drainer interface {
	// Shutdown stops accepting new work and waits up to timeout for
	// outstanding work to finish, returning false on timeout.
	Shutdown(timeout time.Duration) bool
}

// Unmounter performs the kernel-side unmount during UNMOUNTING.
type Unmounter interface {
	Unmount() error
}

// Coordinator drives a mounted file system's pipeline through
// RUNNING -> DRAINING -> UNMOUNTING -> CLOSED.
type Coordinator struct {
	mu   syncutil.InvariantMutex // GUARDED_BY guards everything below
	cond *sync.Cond

	clock    timeutil.Clock
	timeouts Timeouts
	cbs      Callbacks

	initialized bool
	state       State
	stats       Stats
	phaseStart  time.Time
	totalStart  time.Time

	drainer   Drainer
	unmounter Unmounter
}

// New creates a Coordinator in RUNNING, not yet initialized.
func New(drainer Drainer, unmounter Unmounter, clock timeutil.Clock) *Coordinator {
	if clock == nil {
		clock = timeutil.RealClock()
	}

	c := &Coordinator{
		clock:     clock,
		timeouts:  DefaultTimeouts(),
		drainer:   drainer,
		unmounter: unmounter,
	}
	c.mu = syncutil.NewInvariantMutex(c.checkInvariants)
	c.cond = sync.NewCond(&c.mu)
	return c
}

func (c *Coordinator) checkInvariants() {
	if c.state < Running || c.state > Closed {
		panic(fmt.Sprintf("shutdown: invalid state %v", c.state))
	}
}

// Initialize must be called once before any other method.
func (c *Coordinator) Initialize() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.initialized {
		return fmt.Errorf("shutdown: already initialized")
	}
	c.initialized = true
	c.state = Running
	return nil
}

// ConfigureTimeouts overrides the default per-phase timeouts. Must be
// called before InitiateGraceful.
func (c *Coordinator) ConfigureTimeouts(t Timeouts) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if t.Draining > 0 {
		c.timeouts.Draining = t.Draining
	}
	if t.Unmounting > 0 {
		c.timeouts.Unmounting = t.Unmounting
	}
}

// RegisterCallback installs lifecycle hooks, replacing any set previously.
func (c *Coordinator) RegisterCallback(cbs Callbacks) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cbs = cbs
}

// State returns the current shutdown state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// InitiateGraceful transitions RUNNING -> DRAINING and runs the remaining
// phases synchronously, honoring timeoutTotal as a best-effort overall
// budget on top of each phase's own timeout. It returns true if every phase
// completed within its own timeout (graceful_completion), false otherwise;
// CLOSED is reached either way.
func (c *Coordinator) InitiateGraceful(reason string, timeoutTotal time.Duration) bool {
	c.mu.Lock()
	if !c.initialized || c.state != Running {
		c.mu.Unlock()
		return false
	}

	sessionID := uuid.New()
	start := c.clock.Now()
	c.totalStart = start
	c.stats = Stats{GracefulCompletion: true}
	cbs := c.cbs
	c.mu.Unlock()

	// budget caps a phase's timeout at whatever is left of timeoutTotal.
	budget := func(phase time.Duration) time.Duration {
		if timeoutTotal <= 0 {
			return phase
		}
		left := timeoutTotal - c.clock.Now().Sub(start)
		if left < 0 {
			return 0
		}
		if left < phase {
			return left
		}
		return phase
	}

	if cbs.OnBegin != nil {
		cbs.OnBegin(reason, sessionID)
	}

	c.runPhase(Draining, budget(c.timeouts.Draining), func(timeout time.Duration) error {
		if c.drainer == nil {
			return nil
		}
		if !c.drainer.Shutdown(timeout) {
			return fmt.Errorf("draining: timed out after %v", timeout)
		}
		return nil
	})

	c.runPhase(Unmounting, budget(c.timeouts.Unmounting), func(timeout time.Duration) error {
		if c.unmounter == nil {
			return nil
		}
		done := make(chan error, 1)
		go func() { done <- c.unmounter.Unmount() }()
		select {
		case err := <-done:
			return err
		case <-time.After(timeout):
			return fmt.Errorf("unmounting: timed out after %v", timeout)
		}
	})

	c.finish()

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats.GracefulCompletion
}

// runPhase transitions into phase, runs fn bounded by timeout, and records
// the phase's duration and any failure, but always advances regardless of
// fn's outcome.
func (c *Coordinator) runPhase(phase State, timeout time.Duration, fn func(time.Duration) error) {
	c.mu.Lock()
	c.state = phase
	c.phaseStart = c.clock.Now()
	cbs := c.cbs
	c.mu.Unlock()

	if cbs.OnPhase != nil {
		cbs.OnPhase(phase)
	}

	err := fn(timeout)

	c.mu.Lock()
	dur := c.clock.Now().Sub(c.phaseStart)
	c.stats.PhaseDurations = append(c.stats.PhaseDurations, PhaseDuration{Phase: phase, Duration: dur})
	if err != nil {
		c.stats.GracefulCompletion = false
		c.stats.FailureReason = err.Error()
	}
	c.mu.Unlock()

	if err != nil && cbs.OnFailed != nil {
		cbs.OnFailed(phase, err)
	}
}

func (c *Coordinator) finish() {
	c.mu.Lock()
	c.state = Closed
	c.stats.FinalState = Closed
	c.stats.TotalDuration = c.clock.Now().Sub(c.totalStart)
	stats := c.stats
	cbs := c.cbs
	c.mu.Unlock()

	c.cond.Broadcast()

	if cbs.OnComplete != nil {
		cbs.OnComplete(stats)
	}
}

// ForceImmediate advances directly to CLOSED from any state, skipping
// remaining phases. It always succeeds.
func (c *Coordinator) ForceImmediate(reason string) bool {
	c.mu.Lock()
	already := c.state == Closed
	c.stats.GracefulCompletion = false
	c.stats.FailureReason = reason
	c.mu.Unlock()

	if already {
		return true
	}

	c.finish()
	return true
}

// Stats returns the final report. Only meaningful once State() == Closed.
func (c *Coordinator) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// WaitCompletion blocks until CLOSED is reached or timeout elapses.
func (c *Coordinator) WaitCompletion(timeout time.Duration) bool {
	deadline := c.clock.Now().Add(timeout)
	timer := time.AfterFunc(timeout, func() {
		c.mu.Lock()
		c.cond.Broadcast()
		c.mu.Unlock()
	})
	defer timer.Stop()

	c.mu.Lock()
	defer c.mu.Unlock()

	for c.state != Closed {
		if !c.clock.Now().Before(deadline) {
			return false
		}
		c.cond.Wait()
	}
	return true
}
