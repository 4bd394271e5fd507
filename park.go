package retrocell

// commitWaiters is the readers-waiting-for-commit queue: any number of
// BlockedRead.Wait callers parked on "the writer has committed again".
// It is woken on every phase->IDLE transition.
//
// Adapted from the check-under-lock pattern used for epoch-style
// wait-for-target-value primitives: a waiter captures a target value,
// enqueues under the same lock the notifier uses to scan and release
// matching waiters, and re-checks the condition under that lock before
// ever parking. A naive "register intent, then block unconditionally"
// design (sufficient for a one-shot gate) would lose the wakeup here,
// because the commit a Blocked reader is waiting for may have already
// happened between the moment it observed IN_PLACE and the moment it
// calls Wait.
type commitWaiters struct {
	mu      TicketLock
	waiters []*commitWaiter
}

type commitWaiter struct {
	target uint32
	sem    sema
}

// waitAtLeast blocks until current() reports a generation at or past
// target. current is called while holding the same lock wake uses, so
// the check-then-park decision is atomic with respect to concurrent
// wake calls.
func (c *commitWaiters) waitAtLeast(target uint32, current func() uint32) {
	c.mu.Lock()
	if genAtLeast(current(), target) {
		c.mu.Unlock()
		return
	}
	w := &commitWaiter{target: target}
	c.waiters = append(c.waiters, w)
	c.mu.Unlock()

	w.sem.Acquire()
}

// wake releases every waiter whose target has been reached by newGen.
func (c *commitWaiters) wake(newGen uint32) {
	c.mu.Lock()
	live := c.waiters[:0]
	for _, w := range c.waiters {
		if genAtLeast(newGen, w.target) {
			w.sem.Release()
		} else {
			live = append(live, w)
		}
	}
	c.waiters = live
	c.mu.Unlock()
}
