package retrocell

import (
	"time"
	_ "unsafe" // for go:linkname
)

// noCopy may be embedded in structs that must not be copied after first
// use. It is detected by the -copylocks checker in `go vet`.
//
// See https://golang.org/issues/8005#issuecomment-190753527 for details.
//
// Note that it must not be embedded, due to the Lock and Unlock methods.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// sema is a zero-allocation counting semaphore, a thin wrapper around the
// runtime's own park/wake primitive. It backs every parking table in this
// package (the commit-wait list and the drain waiter) instead of a
// channel, avoiding both the allocation and the extra scheduling hop a
// buffered channel of size 1 would cost on the hot park/unpark path.
type sema uint32

func (s *sema) Acquire() {
	runtime_semacquire((*uint32)(s))
}

func (s *sema) Release() {
	runtime_semrelease((*uint32)(s), false, 0)
}

//go:linkname runtime_semacquire sync.runtime_Semacquire
func runtime_semacquire(s *uint32)

//go:linkname runtime_semrelease sync.runtime_Semrelease
func runtime_semrelease(s *uint32, handoff bool, skipframes int)

// delay backs off a spin loop: a few rounds of the runtime's own adaptive
// spin, then a short sleep. Used by the single-writer congestion loops
// (write_in_place's retry and drain wait, try_write's wait for an
// in-progress write to commit) where a
// condition variable would be overkill for what is normally a handful of
// iterations.
func delay(spins *int) {
	if trySpin(spins) {
		return
	}
	*spins = 0
	// time.Sleep with a small non-zero duration is an effective backoff
	// under contention; 500us is the value folly's Sleeper uses:
	// https://github.com/facebook/folly/blob/main/folly/synchronization/detail/Sleeper.h
	time.Sleep(500 * time.Microsecond)
}

func trySpin(spins *int) bool {
	if runtime_canSpin(*spins) {
		*spins++
		runtime_doSpin()
		return true
	}
	return false
}

//go:linkname runtime_canSpin sync.runtime_canSpin
func runtime_canSpin(i int) bool

//go:linkname runtime_doSpin sync.runtime_doSpin
func runtime_doSpin()
