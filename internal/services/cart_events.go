package services

import (
	"context"
	"errors"
	"sync"
)

// CartEventBus fans CartItemAdded events out to in-process subscribers keyed by cart id.
// It backs the server-sent event stream.
type CartEventBus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[string]map[uint64]func(CartItemAdded)
}

var _ CartEventPublisher = (*CartEventBus)(nil)

// NewCartEventBus returns an empty bus.
func NewCartEventBus() *CartEventBus {
	return &CartEventBus{subs: make(map[string]map[uint64]func(CartItemAdded))}
}

// Subscribe registers fn for events on cartID. The returned func removes it.
func (b *CartEventBus) Subscribe(cartID string, fn func(CartItemAdded)) func() {
	if fn == nil {
		return func() {}
	}
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	if b.subs[cartID] == nil {
		b.subs[cartID] = make(map[uint64]func(CartItemAdded))
	}
	b.subs[cartID][id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs[cartID], id)
		if len(b.subs[cartID]) == 0 {
			delete(b.subs, cartID)
		}
	}
}

// PublishCartItemAdded delivers event synchronously to the cart's subscribers.
func (b *CartEventBus) PublishCartItemAdded(_ context.Context, event CartItemAdded) error {
	b.mu.RLock()
	targets := make([]func(CartItemAdded), 0, len(b.subs[event.CartID]))
	for _, fn := range b.subs[event.CartID] {
		targets = append(targets, fn)
	}
	b.mu.RUnlock()

	for _, fn := range targets {
		fn(event)
	}
	return nil
}

// MultiPublisher publishes to every wrapped publisher and joins their errors.
type MultiPublisher []CartEventPublisher

// PublishCartItemAdded implements CartEventPublisher.
func (m MultiPublisher) PublishCartItemAdded(ctx context.Context, event CartItemAdded) error {
	var errs []error
	for _, publisher := range m {
		if publisher == nil {
			continue
		}
		if err := publisher.PublishCartItemAdded(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
