package retrocell

// WriteOutcome is the result of a non-blocking write attempt: either the
// caller got exclusive in-place access, or the writer observed active
// readers and must fall back to a copy-on-write.
type WriteOutcome[T any] struct {
	inPlace   *WriteGuard[T]
	congested *CowWriter[T]
}

// InPlace reports whether the attempt entered in-place mode and, if so,
// returns the scoped write guard.
func (o WriteOutcome[T]) InPlace() (*WriteGuard[T], bool) {
	return o.inPlace, o.inPlace != nil
}

// Congested reports whether the attempt was turned back by active
// readers and, if so, returns a CowWriter that can complete the write
// via copy-on-write instead.
func (o WriteOutcome[T]) Congested() (*CowWriter[T], bool) {
	return o.congested, o.congested != nil
}

// WriteGuard is scoped exclusive mutable access to the live value.
// Releasing it commits the write and wakes any readers parked waiting
// for the next commit.
type WriteGuard[T any] struct {
	cell *Cell[T]
	done bool
}

// Value returns a pointer to the live value for in-place mutation.
func (g *WriteGuard[T]) Value() *T {
	return g.cell.live.Load()
}

// Release commits the write, returning the cell to IDLE and waking
// parked readers. Calling Release more than once is a no-op: there is
// no rollback, a write that began always commits.
func (g *WriteGuard[T]) Release() {
	if g.done {
		return
	}
	g.done = true
	newState := g.cell.state.Add(genUnit - uint64(phaseInPlace))
	g.cell.commitWaiters.wake(generationOf(newState))
}

// CowWriter completes a write via copy-on-write after try_write observed
// active readers. It is only reachable through WriteOutcome.Congested.
type CowWriter[T any] struct {
	writer *Writer[T]
}

// PerformCOW allocates a new value initialized from the current live
// value, lets mutate modify it, then publishes it by atomic pointer
// swap. Readers never block during this call; each one either observes
// the live value before or after the swap, or, while the swap is still
// pending, is routed by the state word exactly as an IDLE reader would
// be.
func (c *CowWriter[T]) PerformCOW(mutate func(*T)) {
	w := c.writer
	cell := w.cell

	next := w.reclaim()
	old := cell.live.Load()
	*next = *old
	mutate(next)

	cell.retro.Store(old)

	for {
		s := cell.state.Load()
		if cell.state.CompareAndSwap(s, s|uint64(phaseCow)) {
			break
		}
	}

	cell.live.Store(next)

	newState := cell.state.Add(genUnit - uint64(phaseCow))
	cell.retro.Store(nil)
	cell.commitWaiters.wake(generationOf(newState))

	w.retired = old
}

// reclaim returns a value to overwrite for the next COW allocation. It
// reuses the previous COW's outgoing buffer only when the active-reader
// count is observed at zero, which proves no reader still references
// it; otherwise, or absent a prior COW, it allocates fresh. It never
// waits, so a COW under sustained read pressure is not held up here.
//
// This is purely a reuse optimization: Go's garbage collector already
// guarantees the outgoing buffer isn't freed while any ReadGuard
// references it, with or without this call.
func (w *Writer[T]) reclaim() *T {
	if w.retired == nil || readersOf(w.cell.state.Load()) != 0 {
		return new(T)
	}
	buf := w.retired
	w.retired = nil
	return buf
}

// TryWrite attempts a non-blocking write. It returns InPlace when no
// readers are active, or Congested when they are. In-place entry is a
// CAS from IDLE only: a call that finds another write on this Writer
// still in progress backs off until that write commits.
func (w *Writer[T]) TryWrite() WriteOutcome[T] {
	cell := w.cell
	var spins int
	for {
		s := cell.state.Load()
		if phaseOf(s) != phaseIdle {
			delay(&spins)
			continue
		}
		if readersOf(s) != 0 {
			return WriteOutcome[T]{congested: &CowWriter[T]{writer: w}}
		}
		if cell.state.CompareAndSwap(s, s|uint64(phaseInPlace)) {
			return WriteOutcome[T]{inPlace: &WriteGuard[T]{cell: cell}}
		}
	}
}

// WriteInPlace blocks until the reader set is empty, then returns an
// in-place write guard. Unlike TryWrite, it never reports congestion: it
// parks on the drain condition and retries until the entry CAS
// succeeds.
func (w *Writer[T]) WriteInPlace() *WriteGuard[T] {
	cell := w.cell
	var spins int
	for {
		s := cell.state.Load()
		if readersOf(s) == 0 {
			if cell.state.CompareAndSwap(s, s|uint64(phaseInPlace)) {
				return &WriteGuard[T]{cell: cell}
			}
			delay(&spins)
			continue
		}
		cell.waitForDrain()
	}
}
