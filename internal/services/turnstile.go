package services

import "sync"

// turnstile releases callers in the order their tickets were issued. Tickets are taken
// while the owner's state lock is held; waiting happens after that lock is released, so
// callbacks run in state order without holding it.
type turnstile struct {
	next uint64 // guarded by the owner's state lock

	mu      sync.Mutex
	cond    *sync.Cond
	serving uint64
}

func newTurnstile() *turnstile {
	t := &turnstile{}
	t.cond = sync.NewCond(&t.mu)
	return t
}

// ticketLocked must be called with the owner's state lock held.
func (t *turnstile) ticketLocked() uint64 {
	ticket := t.next
	t.next++
	return ticket
}

// run waits for ticket's turn, calls fn, and admits the next ticket even if fn panics.
func (t *turnstile) run(ticket uint64, fn func()) {
	t.mu.Lock()
	for t.serving != ticket {
		t.cond.Wait()
	}
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		t.serving++
		t.mu.Unlock()
		t.cond.Broadcast()
	}()
	fn()
}
