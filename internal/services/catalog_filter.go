package services

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"

	"github.com/futurebuildai/lumber-boss/internal/domain"
)

// ApplyFilters returns the products passing every facet of cfg, ordered by cfg.Sort.
// Products comparing equal keep their catalog order. The input slice is not modified.
func ApplyFilters(products []Product, cfg FilterConfiguration) []Product {
	// Casers keep internal state and must not be shared across goroutines.
	fold := cases.Fold()
	needle := fold.String(cfg.Search)

	out := make([]Product, 0, len(products))
	for _, product := range products {
		if !matchesFilters(product, cfg, needle, fold) {
			continue
		}
		out = append(out, product)
	}
	sortProducts(out, cfg.Sort, fold)
	return out
}

func matchesFilters(product Product, cfg FilterConfiguration, needle string, fold cases.Caser) bool {
	if cfg.Category != "" && cfg.Category != domain.CategoryAll && product.Category != cfg.Category {
		return false
	}
	if needle != "" &&
		!strings.Contains(fold.String(product.Name), needle) &&
		!strings.Contains(fold.String(product.SKU), needle) &&
		!strings.Contains(fold.String(product.Brand), needle) {
		return false
	}
	if !cfg.Availability.Has(product.InventoryStatus) {
		return false
	}
	if len(cfg.Brands) > 0 && !cfg.Brands.Has(product.Brand) {
		return false
	}
	if cfg.PriceMin != nil && product.Price < *cfg.PriceMin {
		return false
	}
	if cfg.PriceMax != nil && product.Price > *cfg.PriceMax {
		return false
	}
	return true
}

func sortProducts(products []Product, order domain.SortOrder, fold cases.Caser) {
	if !order.Valid() {
		order = domain.DefaultSortOrder
	}
	desc := order.Direction == domain.SortDesc

	switch order.Field {
	case domain.SortFieldPrice:
		sort.SliceStable(products, func(i, j int) bool {
			if desc {
				return products[i].Price > products[j].Price
			}
			return products[i].Price < products[j].Price
		})
	default:
		keys := make(map[string]string, len(products))
		for _, product := range products {
			if _, ok := keys[product.Name]; !ok {
				keys[product.Name] = fold.String(product.Name)
			}
		}
		sort.SliceStable(products, func(i, j int) bool {
			a, b := keys[products[i].Name], keys[products[j].Name]
			if desc {
				return a > b
			}
			return a < b
		})
	}
}
