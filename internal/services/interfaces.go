package services

import (
	"context"

	"github.com/futurebuildai/lumber-boss/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Product             = domain.Product
	Category            = domain.Category
	Catalog             = domain.Catalog
	CartItem            = domain.CartItem
	CartItemAdded       = domain.CartItemAdded
	FilterConfiguration = domain.FilterConfiguration
	SystemHealthReport  = domain.SystemHealthReport
)

// CartListener receives a private copy of the cart contents after every mutation.
type CartListener func(items []CartItem)

// CartService manages one cart per visitor.
type CartService interface {
	Cart(ctx context.Context, cartID string) (CartSnapshot, error)
	AddItem(ctx context.Context, cmd AddCartItemCommand) (CartSnapshot, error)
	UpdateItemQuantity(ctx context.Context, cmd UpdateCartItemCommand) (CartSnapshot, error)
	RemoveItem(ctx context.Context, cmd RemoveCartItemCommand) (CartSnapshot, error)
	ClearCart(ctx context.Context, cartID string) (CartSnapshot, error)
	Subscribe(ctx context.Context, cartID string, listener CartListener) (func(), error)
}

// CatalogReader is the read side of the catalog used by filter pipelines.
type CatalogReader interface {
	Catalog(ctx context.Context) (Catalog, error)
}

// CatalogService serves the sanitized catalog snapshot and stateless filtered listings.
type CatalogService interface {
	CatalogReader
	FindProduct(ctx context.Context, sku string) (Product, error)
	Query(ctx context.Context, cfg FilterConfiguration) (CatalogView, error)
	Refresh(ctx context.Context) error
}

// PreferenceService stores per-visitor storefront preferences.
type PreferenceService interface {
	Location(ctx context.Context, visitorID string) (LocationPreference, error)
	SetLocation(ctx context.Context, visitorID, location string) (LocationPreference, error)
}

// CartEventPublisher delivers cart events to interested parties.
type CartEventPublisher interface {
	PublishCartItemAdded(ctx context.Context, event CartItemAdded) error
}

// SystemService reports process health.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// CartSnapshot is a point-in-time view of one cart.
type CartSnapshot struct {
	CartID   string     `json:"cartId"`
	Items    []CartItem `json:"items"`
	Count    int        `json:"count"`
	Subtotal float64    `json:"subtotal"`
}

// AddCartItemCommand adds a catalog product to a cart.
type AddCartItemCommand struct {
	CartID   string
	SKU      string
	Quantity int
}

// UpdateCartItemCommand sets an absolute quantity for a cart line.
type UpdateCartItemCommand struct {
	CartID   string
	SKU      string
	Quantity int
}

// RemoveCartItemCommand deletes a cart line.
type RemoveCartItemCommand struct {
	CartID string
	SKU    string
}
