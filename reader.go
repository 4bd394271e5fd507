package retrocell

// ReadResult is the outcome of a non-blocking read attempt: either the
// live value was safe to observe immediately, or a write is in progress
// in a mode that requires the caller to either wait or fall back to the
// retro value.
type ReadResult[T any] struct {
	success *ReadGuard[T]
	blocked *BlockedRead[T]
}

// Success reports whether the read completed immediately and, if so,
// returns the guard.
func (r ReadResult[T]) Success() (*ReadGuard[T], bool) {
	return r.success, r.success != nil
}

// Blocked reports whether the live value was unsafe to read right now
// and, if so, returns a handle for resolving it.
func (r ReadResult[T]) Blocked() (*BlockedRead[T], bool) {
	return r.blocked, r.blocked != nil
}

// ReadGuard is a scoped acquisition token for an observed value.
// Releasing it drops the reader's stake in the active-reader count and,
// if that was the last one, wakes a writer parked waiting to drain.
type ReadGuard[T any] struct {
	cell *Cell[T]
	val  *T
	done bool
}

// Value returns the value this guard refers to.
func (g *ReadGuard[T]) Value() *T {
	return g.val
}

// Release drops the guard's stake. Calling Release more than once is a
// no-op.
func (g *ReadGuard[T]) Release() {
	if g.done {
		return
	}
	g.done = true
	g.cell.releaseReader()
}

// BlockedRead retains a reader's stake after TryRead observed an
// in-place write in progress. It must be resolved by calling ReadRetro,
// Wait, or Release.
type BlockedRead[T any] struct {
	cell     *Cell[T]
	gen      uint32
	resolved bool
}

// ReadRetro returns the value that was live immediately before the
// in-progress write began, if one is available. It is only available
// during a copy-on-write: under an in-place write the retro slot is
// deliberately left empty, so the fast path never pays for publishing a
// value nothing will read. Resolves the BlockedRead whether or not a
// value was available.
func (b *BlockedRead[T]) ReadRetro() (*ReadGuard[T], bool) {
	if b.resolved {
		panic("retrocell: BlockedRead already resolved")
	}
	b.resolved = true
	retro := b.cell.retro.Load()
	if retro == nil {
		b.cell.releaseReader()
		return nil, false
	}
	return &ReadGuard[T]{cell: b.cell, val: retro}, true
}

// Wait parks until the writer's next commit, then returns a guard for
// the newly committed value. It releases the original stake before
// parking, so a concurrent write_in_place elsewhere is not held up by a
// reader that is merely waiting, not reading.
func (b *BlockedRead[T]) Wait() *ReadGuard[T] {
	if b.resolved {
		panic("retrocell: BlockedRead already resolved")
	}
	b.resolved = true

	cell := b.cell
	cell.releaseReader()
	target := b.gen + 1

	// A commit past target guarantees phase was IDLE or COW at that
	// instant, but by the time we re-enter try_read a new write may
	// already have started; loop rather than assume a single wakeup
	// suffices.
	for {
		cell.commitWaiters.waitAtLeast(target, func() uint32 {
			return generationOf(cell.state.Load())
		})

		res := (&Reader[T]{cell: cell}).TryRead()
		if g, ok := res.Success(); ok {
			return g
		}
		nb, _ := res.Blocked()
		cell.releaseReader()
		target = nb.gen + 1
	}
}

// Release abandons the BlockedRead without reading the retro value or
// waiting, dropping its stake cleanly.
func (b *BlockedRead[T]) Release() {
	if b.resolved {
		return
	}
	b.resolved = true
	b.cell.releaseReader()
}

// TryRead attempts a non-blocking read. It returns Success when the
// live value is safe to observe immediately, or Blocked when an
// in-place write is underway.
func (r *Reader[T]) TryRead() ReadResult[T] {
	cell := r.cell
	s := cell.state.Add(readerUnit)
	switch phaseOf(s) {
	case phaseIdle, phaseCow:
		return ReadResult[T]{success: &ReadGuard[T]{cell: cell, val: cell.live.Load()}}
	default: // phaseInPlace
		return ReadResult[T]{blocked: &BlockedRead[T]{cell: cell, gen: generationOf(s)}}
	}
}

// Read is a blocking convenience equivalent to TryRead followed, on
// Blocked, by Wait.
func (r *Reader[T]) Read() *ReadGuard[T] {
	res := r.TryRead()
	if g, ok := res.Success(); ok {
		return g
	}
	b, _ := res.Blocked()
	return b.Wait()
}

// ReadRetro peeks at the retro value directly, independent of TryRead.
// It is present for callers that specifically want to observe the value
// that preceded an in-progress copy-on-write without first routing
// through a Blocked handle; under IDLE or an in-place write it reports
// false, since no retro value exists in either case.
//
// The phase check below is load-bearing, not defensive: PerformCOW
// clears the phase bits back to IDLE and clears the retro slot as two
// separate stores, so a reader racing that exact window could otherwise
// observe phase already IDLE while retro still held the just-superseded
// pointer. Checking phase first, and only trusting retro when it still
// reads COW, closes that window — if this reader observes phaseCow here,
// the writer's retro.Store happened-before the CAS that published it, by the same
// ordering try_read relies on for the live slot.
func (r *Reader[T]) ReadRetro() (*ReadGuard[T], bool) {
	cell := r.cell
	s := cell.state.Add(readerUnit)
	if phaseOf(s) != phaseCow {
		cell.releaseReader()
		return nil, false
	}
	retro := cell.retro.Load()
	if retro == nil {
		cell.releaseReader()
		return nil, false
	}
	return &ReadGuard[T]{cell: cell, val: retro}, true
}
