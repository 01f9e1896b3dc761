package shutdown

import (
	"errors"
	"testing"
	"time"

	"github.com/jacobsa/timeutil"
)

type fakeDrainer struct {
	ok bool
}

func (f fakeDrainer) Shutdown(timeout time.Duration) bool { return f.ok }

type fakeUnmounter struct {
	err error
}

func (f fakeUnmounter) Unmount() error { return f.err }

func TestGracefulShutdownReachesClosed(t *testing.T) {
	c := New(fakeDrainer{ok: true}, fakeUnmounter{}, timeutil.RealClock())
	if err := c.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	ok := c.InitiateGraceful("test", time.Second)
	if !ok {
		t.Fatal("InitiateGraceful reported non-graceful completion")
	}
	if c.State() != Closed {
		t.Fatalf("state = %v, want CLOSED", c.State())
	}
}

func TestPhaseFailureStillReachesClosed(t *testing.T) {
	c := New(fakeDrainer{ok: false}, fakeUnmounter{err: errors.New("boom")}, timeutil.RealClock())
	c.Initialize()

	var failedPhases []State
	c.RegisterCallback(Callbacks{
		OnFailed: func(phase State, err error) { failedPhases = append(failedPhases, phase) },
	})

	ok := c.InitiateGraceful("test", time.Second)
	if ok {
		t.Fatal("InitiateGraceful reported graceful completion despite failures")
	}
	if c.State() != Closed {
		t.Fatalf("state = %v, want CLOSED even after phase failures", c.State())
	}
	if len(failedPhases) != 2 {
		t.Fatalf("failed phases = %v, want both DRAINING and UNMOUNTING", failedPhases)
	}
}

func TestForceImmediateAlwaysSucceeds(t *testing.T) {
	c := New(nil, nil, timeutil.RealClock())
	c.Initialize()

	if !c.ForceImmediate("panic") {
		t.Fatal("ForceImmediate returned false")
	}
	if c.State() != Closed {
		t.Fatalf("state = %v, want CLOSED", c.State())
	}
}

func TestSecondInitiateGracefulFails(t *testing.T) {
	c := New(fakeDrainer{ok: true}, fakeUnmounter{}, timeutil.RealClock())
	c.Initialize()
	c.InitiateGraceful("first", time.Second)

	if c.InitiateGraceful("second", time.Second) {
		t.Fatal("second InitiateGraceful from CLOSED unexpectedly succeeded")
	}
}
