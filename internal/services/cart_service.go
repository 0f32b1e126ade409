package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/futurebuildai/lumber-boss/internal/repositories"
)

const (
	cartMetricNamespace   = "github.com/futurebuildai/lumber-boss/internal/services/cart"
	cartScopePrefix       = "carts"
	defaultMaxCachedCarts = 10000
)

var (
	errCartStoreRequired   = errors.New("cart service: key-value store is required")
	errCartCatalogRequired = errors.New("cart service: catalog is required")
)

// ErrCartInvalidInput indicates the caller supplied invalid input.
var ErrCartInvalidInput = errors.New("cart service: invalid input")

// ErrCartUnavailable indicates storage or the catalog could not serve the request.
var ErrCartUnavailable = errors.New("cart service: unavailable")

// ErrCartProductNotFound indicates the SKU is not in the catalog.
var ErrCartProductNotFound = errors.New("cart service: product not found")

// ErrCartProductUnavailable indicates the product cannot be purchased.
var ErrCartProductUnavailable = errors.New("cart service: product unavailable")

type productFinder interface {
	FindProduct(ctx context.Context, sku string) (Product, error)
}

// CartServiceDeps wires storage, catalog lookups and event delivery for carts.
type CartServiceDeps struct {
	Store          repositories.KeyValueStore
	Catalog        productFinder
	Publisher      CartEventPublisher
	Logger         *zap.Logger
	Clock          func() time.Time
	IDGenerator    func() string
	StorageKey     string
	MaxCachedCarts int
	Meter          metric.Meter
}

type cartService struct {
	store     repositories.KeyValueStore
	catalog   productFinder
	publisher CartEventPublisher
	logger    *zap.Logger
	now       func() time.Time
	newID     func() string
	key       string
	maxCached int
	mutations metric.Int64Counter

	mu      sync.Mutex
	entries map[string]*cartEntry
	order   []string
}

type cartEntry struct {
	store *CartStore
	refs  int
}

// NewCartService constructs a CartService enforcing dependency validation.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Store == nil {
		return nil, errCartStoreRequired
	}
	if deps.Catalog == nil {
		return nil, errCartCatalogRequired
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	key := strings.TrimSpace(deps.StorageKey)
	if key == "" {
		key = DefaultCartStorageKey
	}
	maxCached := deps.MaxCachedCarts
	if maxCached <= 0 {
		maxCached = defaultMaxCachedCarts
	}
	meter := deps.Meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(cartMetricNamespace)
	}
	mutations, err := meter.Int64Counter(
		"storefront.cart.mutations",
		metric.WithDescription("Cart mutations by operation and outcome"),
	)
	if err != nil {
		logger.Warn("cart service: unable to register mutation counter", zap.Error(err))
	}

	return &cartService{
		store:     deps.Store,
		catalog:   deps.Catalog,
		publisher: deps.Publisher,
		logger:    logger,
		now:       func() time.Time { return clock().UTC() },
		newID:     idGen,
		key:       key,
		maxCached: maxCached,
		mutations: mutations,
		entries:   make(map[string]*cartEntry),
	}, nil
}

func (s *cartService) Cart(ctx context.Context, cartID string) (CartSnapshot, error) {
	id, err := normalizeCartID(cartID)
	if err != nil {
		return CartSnapshot{}, err
	}
	store, release, err := s.acquire(ctx, id)
	if err != nil {
		return CartSnapshot{}, err
	}
	defer release()
	return NewCartSnapshot(id, store.Items()), nil
}

func (s *cartService) AddItem(ctx context.Context, cmd AddCartItemCommand) (CartSnapshot, error) {
	id, err := normalizeCartID(cmd.CartID)
	if err != nil {
		return CartSnapshot{}, err
	}
	sku := strings.TrimSpace(cmd.SKU)
	if sku == "" {
		return CartSnapshot{}, fmt.Errorf("%w: sku is required", ErrCartInvalidInput)
	}

	product, err := s.catalog.FindProduct(ctx, sku)
	switch {
	case errors.Is(err, ErrCatalogProductNotFound):
		return CartSnapshot{}, fmt.Errorf("%w: %s", ErrCartProductNotFound, sku)
	case err != nil:
		return CartSnapshot{}, fmt.Errorf("%w: %w", ErrCartUnavailable, err)
	}
	if !product.InventoryStatus.Purchasable() {
		return CartSnapshot{}, fmt.Errorf("%w: %s", ErrCartProductUnavailable, sku)
	}

	quantity := cmd.Quantity
	if quantity < 1 {
		quantity = 1
	}

	snapshot, err := s.mutate(ctx, "add", id, func(store *CartStore) error {
		return store.Add(ctx, product, quantity)
	})
	if err != nil {
		return CartSnapshot{}, err
	}

	s.publish(ctx, CartItemAdded{
		EventID:    s.newID(),
		CartID:     id,
		Product:    product,
		Quantity:   quantity,
		OccurredAt: s.now(),
	})
	return snapshot, nil
}

func (s *cartService) UpdateItemQuantity(ctx context.Context, cmd UpdateCartItemCommand) (CartSnapshot, error) {
	id, err := normalizeCartID(cmd.CartID)
	if err != nil {
		return CartSnapshot{}, err
	}
	sku := strings.TrimSpace(cmd.SKU)
	if sku == "" {
		return CartSnapshot{}, fmt.Errorf("%w: sku is required", ErrCartInvalidInput)
	}
	return s.mutate(ctx, "update", id, func(store *CartStore) error {
		return store.UpdateQuantity(ctx, sku, cmd.Quantity)
	})
}

func (s *cartService) RemoveItem(ctx context.Context, cmd RemoveCartItemCommand) (CartSnapshot, error) {
	id, err := normalizeCartID(cmd.CartID)
	if err != nil {
		return CartSnapshot{}, err
	}
	sku := strings.TrimSpace(cmd.SKU)
	if sku == "" {
		return CartSnapshot{}, fmt.Errorf("%w: sku is required", ErrCartInvalidInput)
	}
	return s.mutate(ctx, "remove", id, func(store *CartStore) error {
		return store.Remove(ctx, sku)
	})
}

func (s *cartService) ClearCart(ctx context.Context, cartID string) (CartSnapshot, error) {
	id, err := normalizeCartID(cartID)
	if err != nil {
		return CartSnapshot{}, err
	}
	return s.mutate(ctx, "clear", id, func(store *CartStore) error {
		return store.Clear(ctx)
	})
}

// Subscribe keeps the cart's store cached until the returned func is called.
func (s *cartService) Subscribe(ctx context.Context, cartID string, listener CartListener) (func(), error) {
	id, err := normalizeCartID(cartID)
	if err != nil {
		return nil, err
	}
	if listener == nil {
		return nil, fmt.Errorf("%w: listener is required", ErrCartInvalidInput)
	}
	store, release, err := s.acquire(ctx, id)
	if err != nil {
		return nil, err
	}
	unsubscribe := store.Subscribe(listener)
	release()
	return unsubscribe, nil
}

func (s *cartService) mutate(ctx context.Context, op, cartID string, apply func(*CartStore) error) (CartSnapshot, error) {
	store, release, err := s.acquire(ctx, cartID)
	if err != nil {
		return CartSnapshot{}, err
	}
	defer release()

	if err := apply(store); err != nil {
		s.record(ctx, op, "error")
		if errors.Is(err, ErrCartPersistFailed) {
			return CartSnapshot{}, fmt.Errorf("%w: %w", ErrCartUnavailable, err)
		}
		return CartSnapshot{}, err
	}
	s.record(ctx, op, "ok")
	return NewCartSnapshot(cartID, store.Items()), nil
}

// acquire returns the cached store for cartID, loading it on first use. Entries with
// outstanding references or subscribers are never evicted.
func (s *cartService) acquire(ctx context.Context, cartID string) (*CartStore, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[cartID]
	if ok {
		s.touchLocked(cartID)
	} else {
		store, err := NewCartStore(ctx, CartStoreDeps{
			Store:  repositories.Scoped(s.store, cartScopePrefix+"/"+cartID),
			Key:    s.key,
			Logger: s.logger.With(zap.String("cart_id", cartID)),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %w", ErrCartUnavailable, err)
		}
		s.evictLocked()
		entry = &cartEntry{store: store}
		s.entries[cartID] = entry
		s.order = append(s.order, cartID)
	}
	entry.refs++

	var once sync.Once
	release := func() {
		once.Do(func() {
			s.mu.Lock()
			entry.refs--
			s.mu.Unlock()
		})
	}
	return entry.store, release, nil
}

func (s *cartService) touchLocked(cartID string) {
	for i, id := range s.order {
		if id == cartID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.order = append(s.order, cartID)
}

func (s *cartService) evictLocked() {
	for i := 0; len(s.entries) >= s.maxCached && i < len(s.order); {
		id := s.order[i]
		entry := s.entries[id]
		if entry != nil && entry.refs == 0 && entry.store.SubscriberCount() == 0 {
			delete(s.entries, id)
			s.order = append(s.order[:i], s.order[i+1:]...)
			continue
		}
		i++
	}
}

func (s *cartService) publish(ctx context.Context, event CartItemAdded) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishCartItemAdded(ctx, event); err != nil {
		s.logger.Warn("cart service: publish item added failed",
			zap.String("cart_id", event.CartID),
			zap.String("sku", event.Product.SKU),
			zap.String("event_id", event.EventID),
			zap.Error(err),
		)
	}
}

func (s *cartService) record(ctx context.Context, op, outcome string) {
	if s.mutations == nil {
		return
	}
	s.mutations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("outcome", outcome),
	))
}

func (s *cartService) cachedCarts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func normalizeCartID(raw string) (string, error) {
	id := strings.TrimSpace(raw)
	if id == "" {
		return "", fmt.Errorf("%w: cart id is required", ErrCartInvalidInput)
	}
	if strings.Contains(id, "/") {
		return "", fmt.Errorf("%w: cart id %q contains a slash", ErrCartInvalidInput, id)
	}
	return id, nil
}

// NewCartSnapshot derives count and subtotal for items. A nil slice becomes empty.
func NewCartSnapshot(cartID string, items []CartItem) CartSnapshot {
	if items == nil {
		items = []CartItem{}
	}
	return CartSnapshot{
		CartID:   cartID,
		Items:    items,
		Count:    cartCount(items),
		Subtotal: cartSubtotal(items),
	}
}
