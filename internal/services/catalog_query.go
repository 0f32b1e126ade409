package services

import (
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/futurebuildai/lumber-boss/internal/domain"
)

// Query parameter names understood by the catalog listing.
const (
	QueryCategory     = "category"
	QuerySearch       = "search"
	QueryAvailability = "availability"
	QueryBrand        = "brand"
	QueryPriceMin     = "price_min"
	QueryPriceMax     = "price_max"
	QuerySort         = "sort"
)

// CanonicalQuery encodes the shareable part of cfg: the category unless it is "all" and
// the search text when non-empty. Other facets never appear in the address bar.
func CanonicalQuery(cfg FilterConfiguration) url.Values {
	values := url.Values{}
	if cfg.Category != "" && cfg.Category != domain.CategoryAll {
		values.Set(QueryCategory, cfg.Category)
	}
	if cfg.Search != "" {
		values.Set(QuerySearch, cfg.Search)
	}
	return values
}

// ShareURL joins path with the canonical query, omitting "?" when the query is empty.
func ShareURL(path string, cfg FilterConfiguration) string {
	encoded := CanonicalQuery(cfg).Encode()
	if encoded == "" {
		return path
	}
	return path + "?" + encoded
}

// SeedFromQuery applies the category and search parameters present in values. Missing
// or empty parameters leave cfg untouched.
func SeedFromQuery(cfg FilterConfiguration, values url.Values) FilterConfiguration {
	out := cfg.Clone()
	if category := values.Get(QueryCategory); category != "" {
		out.Category = category
	}
	if search := values.Get(QuerySearch); search != "" {
		out.Search = search
	}
	return out
}

// FilterFromQuery builds a full configuration for a stateless listing request.
// Unknown availability values are ignored; an unrecognised sort falls back to name-asc.
func FilterFromQuery(values url.Values) FilterConfiguration {
	cfg := SeedFromQuery(domain.DefaultFilterConfiguration(), values)

	if raw, ok := values[QueryAvailability]; ok {
		set := domain.StatusSet{}
		for _, entry := range raw {
			for _, part := range strings.Split(entry, ",") {
				status := domain.InventoryStatus(strings.TrimSpace(part))
				if status.Valid() {
					set[status] = struct{}{}
				}
			}
		}
		cfg.Availability = set
	}
	for _, brand := range values[QueryBrand] {
		if brand = strings.TrimSpace(brand); brand != "" {
			cfg.Brands[brand] = struct{}{}
		}
	}
	cfg.PriceMin = ParsePriceBound(values.Get(QueryPriceMin))
	cfg.PriceMax = ParsePriceBound(values.Get(QueryPriceMax))
	if raw := values.Get(QuerySort); raw != "" {
		cfg.Sort = domain.SortOrderOrDefault(raw)
	}
	return cfg
}

// ParsePriceBound converts raw input to a bound. Empty, unparsable, NaN and infinite
// input all mean no bound.
func ParsePriceBound(raw string) *float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return nil
	}
	return &value
}
