// Package retrocell provides Cell, a single-writer/multi-reader container
// with a retroactive read path: a reader that arrives while a write is
// in progress may observe the value that was live immediately before the
// write began, rather than blocking outright.
//
// The writer chooses between two update strategies per write. An
// in-place update mutates the live value directly but requires the
// reader set to be empty to begin, and blocks new readers for its
// duration. A copy-on-write update publishes a freshly built value by
// atomic pointer swap, never blocking readers, at the cost of an
// allocation and a copy.
package retrocell

import (
	"sync/atomic"
	"unsafe"

	"github.com/retrocell/retrocell/internal/opt"
)

// phase occupies the low two bits of the state word.
type phase uint64

const (
	phaseIdle    phase = 0
	phaseInPlace phase = 1
	phaseCow     phase = 2
)

// The state word packs everything try_read and try_write need to decide
// in one atomic operation: the writer's phase, whether a writer is
// parked waiting for the reader set to drain, a commit generation
// counter, and the active-reader count. Packing phase and readers
// together is what lets the reader's fast path be a single fetch-add
// whose returned value determines routing without a second load; the
// generation rides in the same word so a Blocked reader's wait target is
// captured atomically with the phase that blocked it, with no separate
// counter to go stale relative to the word that woke it.
//
//	bits 0-1:  phase
//	bit  2:    drainWait (a write_in_place call is parked on readers==0)
//	bits 3-34: generation (bumped on every phase->IDLE transition)
//	bits 35-63: active reader count
const (
	phaseMask = 0x3

	drainBit = uint64(1) << 2

	genShift = 3
	genBits  = 32
	genMask  = uint64(1<<genBits-1) << genShift
	genUnit  = uint64(1) << genShift

	readerShift = genShift + genBits
	readerUnit  = uint64(1) << readerShift
)

func phaseOf(s uint64) phase { return phase(s & phaseMask) }

func generationOf(s uint64) uint32 { return uint32((s & genMask) >> genShift) }

func readersOf(s uint64) uint64 { return s >> readerShift }

// genAtLeast reports whether cur has reached or passed target, tolerating
// the 32-bit generation counter's wraparound.
func genAtLeast(cur, target uint32) bool {
	return int32(cur-target) >= 0
}

// Cell is the shared, heap-allocated object backing one Writer and any
// number of Readers. Layout follows a hot/warm/cold split: the state
// word is touched by every operation; the parking tables only by the
// slow paths; the value slots are large and comparatively rarely
// resynchronized, so each tier gets its own cache line.
type Cell[T any] struct {
	_ noCopy

	state atomic.Uint64
	_     [opt.CacheLineSize_ - unsafe.Sizeof(atomic.Uint64{})]byte

	commitWaiters commitWaiters
	drainSema     sema
	_             [opt.CacheLineSize_]byte

	live  atomic.Pointer[T]
	retro atomic.Pointer[T]
}

// Writer is the unique, non-cloneable capability to mutate a Cell.
// Exactly one exists per Cell for its lifetime.
type Writer[T any] struct {
	_    noCopy
	cell *Cell[T]

	// retired holds the single most recently swapped-out COW allocation,
	// kept around so the next COW can overwrite it instead of
	// allocating. It is writer-owned, but readers that loaded it before
	// the swap may still hold it, so reclaim reuses it only after
	// observing no active readers.
	retired *T
}

// Reader is a shareable, clonable capability to observe a Cell. Any
// number may coexist; Clone produces another handle to the same Cell.
type Reader[T any] struct {
	cell *Cell[T]
}

// New constructs a Cell holding initial and returns its Writer and an
// initial Reader. Both handles keep the Cell reachable; once neither the
// Writer, this Reader, nor any of its clones are reachable, the garbage
// collector reclaims the Cell and the value it holds.
func New[T any](initial T) (*Writer[T], *Reader[T]) {
	cell := &Cell[T]{}
	v := initial
	cell.live.Store(&v)
	return &Writer[T]{cell: cell}, &Reader[T]{cell: cell}
}

// Clone returns another Reader handle sharing the same Cell.
func (r *Reader[T]) Clone() *Reader[T] {
	return &Reader[T]{cell: r.cell}
}

// releaseReader drops one stake from the active-reader count. If this
// decrement brings the count to zero while a write_in_place call is
// parked waiting to drain, it wakes that writer. Grounded on the
// WAITING_BIT convention of a refcount that tracks both a count and a
// waiter flag in the same word: the decrementer, not the waiter, decides
// whether a wakeup is owed, so there is no window in which the count can
// reach zero without the parked writer eventually being told.
func (c *Cell[T]) releaseReader() {
	s := c.state.Add(^(readerUnit - 1))
	if readersOf(s) == 0 && s&drainBit != 0 {
		c.clearDrainBit()
		c.drainSema.Release()
	}
}

func (c *Cell[T]) clearDrainBit() {
	for {
		s := c.state.Load()
		if s&drainBit == 0 {
			return
		}
		if c.state.CompareAndSwap(s, s&^drainBit) {
			return
		}
	}
}

// waitForDrain blocks the calling writer until the active-reader count
// reaches zero. It parks by setting drainBit on a state word it has just
// observed to have readers > 0, so the only decrement that can miss
// seeing the bit is one that already brought the count to zero before
// the bit was set — in which case the CAS that sets the bit fails
// against the now-stale snapshot and the loop simply re-observes a
// readers==0 state directly.
func (c *Cell[T]) waitForDrain() {
	var spins int
	for {
		s := c.state.Load()
		if readersOf(s) == 0 {
			return
		}
		if s&drainBit == 0 {
			if !c.state.CompareAndSwap(s, s|drainBit) {
				delay(&spins)
				continue
			}
		}
		c.drainSema.Acquire()
		return
	}
}
