package retrocell

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestCommitWaitersWakeReleasesMatchingTargets(t *testing.T) {
	var cw commitWaiters
	var gen atomic.Uint32

	done := make(chan uint32, 1)
	go func() {
		cw.waitAtLeast(3, func() uint32 { return gen.Load() })
		done <- gen.Load()
	}()

	time.Sleep(20 * time.Millisecond)
	select {
	case <-done:
		t.Fatalf("waitAtLeast returned before its target was reached")
	default:
	}

	gen.Store(3)
	cw.wake(3)

	select {
	case v := <-done:
		if v != 3 {
			t.Errorf("got %d, want 3", v)
		}
	case <-time.After(time.Second):
		t.Fatalf("wake never released the waiter")
	}
}

func TestCommitWaitersWaitAtLeastReturnsImmediatelyIfAlreadyReached(t *testing.T) {
	var cw commitWaiters
	current := func() uint32 { return 5 }

	done := make(chan struct{})
	go func() {
		cw.waitAtLeast(3, current)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("waitAtLeast blocked even though the target was already reached")
	}
}

func TestCommitWaitersDoesNotWakeBelowTarget(t *testing.T) {
	var cw commitWaiters
	var gen atomic.Uint32

	done := make(chan struct{})
	go func() {
		cw.waitAtLeast(5, func() uint32 { return gen.Load() })
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	gen.Store(4)
	cw.wake(4)

	select {
	case <-done:
		t.Fatalf("wake released a waiter whose target had not been reached")
	case <-time.After(50 * time.Millisecond):
	}

	gen.Store(5)
	cw.wake(5)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("wake never released the waiter once its target was reached")
	}
}
