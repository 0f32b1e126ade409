package domain

import (
	"strings"
	"time"
)

// InventoryStatus enumerates stock states reported for catalog products.
type InventoryStatus string

const (
	// InventoryInStock indicates the product ships from local stock.
	InventoryInStock InventoryStatus = "in_stock"
	// InventoryLowStock indicates only a few units remain.
	InventoryLowStock InventoryStatus = "low_stock"
	// InventoryShipToStore indicates the product is delivered to a store for pickup.
	InventoryShipToStore InventoryStatus = "ship_to_store"
	// InventoryUnavailable indicates the product cannot be purchased.
	InventoryUnavailable InventoryStatus = "unavailable"
)

var inventoryLabels = map[InventoryStatus]string{
	InventoryInStock:     "In Stock",
	InventoryLowStock:    "Low Stock",
	InventoryShipToStore: "Ship to Store",
	InventoryUnavailable: "Not Available",
}

// InventoryStatuses lists every known status in display order.
func InventoryStatuses() []InventoryStatus {
	return []InventoryStatus{
		InventoryInStock,
		InventoryLowStock,
		InventoryShipToStore,
		InventoryUnavailable,
	}
}

// Valid reports whether the status belongs to the known enumeration.
func (s InventoryStatus) Valid() bool {
	_, ok := inventoryLabels[s]
	return ok
}

// Label returns the customer facing badge text. Unknown statuses render as in stock,
// matching the badge fallback of the storefront.
func (s InventoryStatus) Label() string {
	if label, ok := inventoryLabels[s]; ok {
		return label
	}
	return inventoryLabels[InventoryInStock]
}

// Purchasable reports whether items with this status may be added to a cart.
func (s InventoryStatus) Purchasable() bool {
	return s != InventoryUnavailable
}

// Product is a read-only catalog entry.
type Product struct {
	SKU             string          `json:"sku" yaml:"sku"`
	Name            string          `json:"name" yaml:"name"`
	Brand           string          `json:"brand" yaml:"brand"`
	Category        string          `json:"category" yaml:"category"`
	Price           float64         `json:"price" yaml:"price"`
	ProPrice        float64         `json:"proPrice" yaml:"proPrice"`
	Unit            string          `json:"unit" yaml:"unit"`
	InventoryStatus InventoryStatus `json:"inventory_status" yaml:"inventory_status"`
	ImageGradient   string          `json:"image_gradient,omitempty" yaml:"image_gradient"`
}

// Category groups products for navigation and page headers.
type Category struct {
	ID              string `json:"id" yaml:"id"`
	Name            string `json:"name" yaml:"name"`
	Description     string `json:"description" yaml:"description"`
	DescriptionHTML string `json:"descriptionHtml,omitempty" yaml:"-"`
}

// Catalog is the immutable product and category set loaded once per session.
type Catalog struct {
	Products   []Product  `json:"products" yaml:"products"`
	Categories []Category `json:"categories" yaml:"categories"`
	LoadedAt   time.Time  `json:"loadedAt,omitempty" yaml:"-"`
}

// FindProduct returns the product with the given SKU.
func (c Catalog) FindProduct(sku string) (Product, bool) {
	sku = strings.TrimSpace(sku)
	if sku == "" {
		return Product{}, false
	}
	for _, product := range c.Products {
		if product.SKU == sku {
			return product, true
		}
	}
	return Product{}, false
}

// FindCategory returns the category with the given identifier.
func (c Catalog) FindCategory(id string) (Category, bool) {
	for _, category := range c.Categories {
		if category.ID == id {
			return category, true
		}
	}
	return Category{}, false
}

// Clone returns a copy whose slices can be modified without affecting the receiver.
func (c Catalog) Clone() Catalog {
	out := Catalog{LoadedAt: c.LoadedAt}
	if c.Products != nil {
		out.Products = make([]Product, len(c.Products))
		copy(out.Products, c.Products)
	}
	if c.Categories != nil {
		out.Categories = make([]Category, len(c.Categories))
		copy(out.Categories, c.Categories)
	}
	return out
}

// CartItem is one cart line keyed by SKU. The JSON shape is the persisted storage format.
type CartItem struct {
	SKU      string  `json:"sku"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Unit     string  `json:"unit"`
	Quantity int     `json:"quantity"`
}

// LineTotal returns price multiplied by quantity.
func (i CartItem) LineTotal() float64 {
	return i.Price * float64(i.Quantity)
}

// CartItemAdded is emitted after a product display adds an item to a cart.
type CartItemAdded struct {
	EventID    string    `json:"eventId"`
	CartID     string    `json:"cartId"`
	Product    Product   `json:"product"`
	Quantity   int       `json:"quantity"`
	OccurredAt time.Time `json:"occurredAt"`
}
