package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/futurebuildai/lumber-boss/internal/repositories"
)

// DefaultCartStorageKey is the key holding the serialized cart lines.
const DefaultCartStorageKey = "lumberBossCart"

var errCartStoreBackendRequired = errors.New("cart store: key-value store is required")

// ErrCartPersistFailed is returned when a mutation could not be written. The in-memory
// cart is left exactly as it was before the call.
var ErrCartPersistFailed = errors.New("cart store: persist failed")

// CartStoreDeps wires a CartStore.
type CartStoreDeps struct {
	Store  repositories.KeyValueStore
	Key    string
	Logger *zap.Logger
}

// CartStore is the single source of truth for one cart. Every mutation is written to the
// key-value store before listeners hear about it.
//
// mu serializes mutation plus persistence. Each commit takes a ticket under mu and
// listeners are run outside any lock in ticket order, so deliveries follow mutation order.
// Listeners may read the store but must not mutate it synchronously.
type CartStore struct {
	store  repositories.KeyValueStore
	key    string
	logger *zap.Logger

	mu        sync.Mutex
	items     []CartItem
	listeners []*cartSubscription
	notify    *turnstile
}

type cartSubscription struct {
	fn     CartListener
	active atomic.Bool
}

// NewCartStore loads any persisted cart. A missing key, unreadable storage or malformed
// data all start an empty cart; only the latter two are logged.
func NewCartStore(ctx context.Context, deps CartStoreDeps) (*CartStore, error) {
	if deps.Store == nil {
		return nil, errCartStoreBackendRequired
	}
	key := strings.TrimSpace(deps.Key)
	if key == "" {
		key = DefaultCartStorageKey
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &CartStore{store: deps.Store, key: key, logger: logger, notify: newTurnstile()}
	s.items = s.load(ctx)
	return s, nil
}

func (s *CartStore) load(ctx context.Context) []CartItem {
	raw, err := s.store.Get(ctx, s.key)
	if err != nil {
		if !repositories.IsNotFound(err) {
			s.logger.Warn("cart store: read failed, starting empty", zap.String("key", s.key), zap.Error(err))
		}
		return []CartItem{}
	}
	var items []CartItem
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		s.logger.Warn("cart store: discarding malformed cart data", zap.String("key", s.key), zap.Error(err))
		return []CartItem{}
	}
	if items == nil {
		items = []CartItem{}
	}
	return items
}

// Add merges quantity into the line for product.SKU, appending a new line when absent.
// Quantities below one count as one.
func (s *CartStore) Add(ctx context.Context, product Product, quantity int) error {
	if quantity < 1 {
		quantity = 1
	}
	return s.mutate(ctx, func(items []CartItem) ([]CartItem, bool) {
		for i := range items {
			if items[i].SKU == product.SKU {
				items[i].Quantity += quantity
				return items, true
			}
		}
		return append(items, CartItem{
			SKU:      product.SKU,
			Name:     product.Name,
			Price:    product.Price,
			Unit:     product.Unit,
			Quantity: quantity,
		}), true
	})
}

// UpdateQuantity sets an absolute quantity. Unknown SKUs are ignored entirely and a
// quantity of zero or less removes the line.
func (s *CartStore) UpdateQuantity(ctx context.Context, sku string, quantity int) error {
	if quantity <= 0 {
		return s.mutate(ctx, func(items []CartItem) ([]CartItem, bool) {
			if indexOfSKU(items, sku) < 0 {
				return items, false
			}
			return removeSKU(items, sku), true
		})
	}
	return s.mutate(ctx, func(items []CartItem) ([]CartItem, bool) {
		idx := indexOfSKU(items, sku)
		if idx < 0 {
			return items, false
		}
		items[idx].Quantity = quantity
		return items, true
	})
}

// Remove deletes the line for sku. It persists and notifies even when nothing matched.
func (s *CartStore) Remove(ctx context.Context, sku string) error {
	return s.mutate(ctx, func(items []CartItem) ([]CartItem, bool) {
		return removeSKU(items, sku), true
	})
}

// Clear empties the cart.
func (s *CartStore) Clear(ctx context.Context) error {
	return s.mutate(ctx, func([]CartItem) ([]CartItem, bool) {
		return []CartItem{}, true
	})
}

// Subscribe calls listener with the current contents before returning, then after every
// mutation. The returned func unsubscribes and may be called more than once.
func (s *CartStore) Subscribe(listener CartListener) func() {
	if listener == nil {
		return func() {}
	}
	sub := &cartSubscription{fn: listener}
	sub.active.Store(true)

	s.mu.Lock()
	s.listeners = append(s.listeners, sub)
	snapshot := cloneCartItems(s.items)
	ticket := s.notify.ticketLocked()
	s.mu.Unlock()

	s.notify.run(ticket, func() { sub.fn(snapshot) })

	var once sync.Once
	return func() {
		once.Do(func() {
			sub.active.Store(false)
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, candidate := range s.listeners {
				if candidate == sub {
					s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
					break
				}
			}
		})
	}
}

// Items returns a copy of the cart lines in insertion order.
func (s *CartStore) Items() []CartItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneCartItems(s.items)
}

// Count is the sum of line quantities.
func (s *CartStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cartCount(s.items)
}

// Subtotal is the sum of price times quantity.
func (s *CartStore) Subtotal() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cartSubtotal(s.items)
}

// SubscriberCount reports active listeners.
func (s *CartStore) SubscriberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listeners)
}

// mutate applies change to a working copy, persists it, and only then commits and
// notifies. change reports false when nothing should be written.
func (s *CartStore) mutate(ctx context.Context, change func([]CartItem) ([]CartItem, bool)) error {
	s.mu.Lock()
	next, changed := change(cloneCartItems(s.items))
	if !changed {
		s.mu.Unlock()
		return nil
	}
	if next == nil {
		next = []CartItem{}
	}

	payload, err := json.Marshal(next)
	if err == nil {
		err = s.store.Set(ctx, s.key, string(payload))
	}
	if err != nil {
		s.mu.Unlock()
		s.logger.Error("cart store: persist failed, mutation discarded", zap.String("key", s.key), zap.Error(err))
		return fmt.Errorf("%w: %w", ErrCartPersistFailed, err)
	}

	s.items = next
	listeners := append([]*cartSubscription(nil), s.listeners...)
	snapshot := cloneCartItems(next)
	ticket := s.notify.ticketLocked()
	s.mu.Unlock()

	s.notify.run(ticket, func() {
		for _, sub := range listeners {
			if sub.active.Load() {
				sub.fn(cloneCartItems(snapshot))
			}
		}
	})
	return nil
}

func indexOfSKU(items []CartItem, sku string) int {
	for i := range items {
		if items[i].SKU == sku {
			return i
		}
	}
	return -1
}

func removeSKU(items []CartItem, sku string) []CartItem {
	out := items[:0]
	for _, item := range items {
		if item.SKU != sku {
			out = append(out, item)
		}
	}
	return out
}

func cloneCartItems(items []CartItem) []CartItem {
	out := make([]CartItem, len(items))
	copy(out, items)
	return out
}

func cartCount(items []CartItem) int {
	total := 0
	for _, item := range items {
		total += item.Quantity
	}
	return total
}

func cartSubtotal(items []CartItem) float64 {
	total := 0.0
	for _, item := range items {
		total += item.LineTotal()
	}
	return total
}
