package services

import (
	"sync"
	"testing"
)

func TestTurnstileRunsInTicketOrder(t *testing.T) {
	var stateMu sync.Mutex
	turns := newTurnstile()

	const n = 32
	tickets := make([]uint64, n)
	stateMu.Lock()
	for i := range tickets {
		tickets[i] = turns.ticketLocked()
	}
	stateMu.Unlock()

	var mu sync.Mutex
	var order []uint64
	var wg sync.WaitGroup
	// Start in reverse so late tickets arrive first and must wait.
	for i := n - 1; i >= 0; i-- {
		wg.Add(1)
		go func(ticket uint64) {
			defer wg.Done()
			turns.run(ticket, func() {
				mu.Lock()
				order = append(order, ticket)
				mu.Unlock()
			})
		}(tickets[i])
	}
	wg.Wait()

	for i, ticket := range order {
		if ticket != uint64(i) {
			t.Fatalf("ticket %d ran at position %d: %v", ticket, i, order)
		}
	}
}

func TestTurnstileAdvancesAfterPanic(t *testing.T) {
	turns := newTurnstile()
	first, second := turns.ticketLocked(), turns.ticketLocked()

	func() {
		defer func() { _ = recover() }()
		turns.run(first, func() { panic("listener failed") })
	}()

	ran := false
	turns.run(second, func() { ran = true })
	if !ran {
		t.Fatal("second ticket did not run")
	}
}
