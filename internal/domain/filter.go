package domain

import (
	"sort"
	"strings"
)

// CategoryAll is the sentinel category that disables category filtering.
const CategoryAll = "all"

// SortField names the product attribute used for ordering.
type SortField string

const (
	// SortFieldName orders by product name, case-insensitively.
	SortFieldName SortField = "name"
	// SortFieldPrice orders by unit price.
	SortFieldPrice SortField = "price"
)

// SortDirection indicates ascending or descending ordering.
type SortDirection string

const (
	// SortAsc sorts results in ascending order.
	SortAsc SortDirection = "asc"
	// SortDesc sorts results in descending order.
	SortDesc SortDirection = "desc"
)

// SortOrder pairs a field with a direction. The string form is "<field>-<direction>".
type SortOrder struct {
	Field     SortField
	Direction SortDirection
}

// DefaultSortOrder is name ascending.
var DefaultSortOrder = SortOrder{Field: SortFieldName, Direction: SortAsc}

// String renders the order as used by sort controls, e.g. "price-desc".
func (o SortOrder) String() string {
	return string(o.Field) + "-" + string(o.Direction)
}

// Valid reports whether both field and direction are known.
func (o SortOrder) Valid() bool {
	switch o.Field {
	case SortFieldName, SortFieldPrice:
	default:
		return false
	}
	return o.Direction == SortAsc || o.Direction == SortDesc
}

// ParseSortOrder parses "<field>-<direction>".
func ParseSortOrder(raw string) (SortOrder, bool) {
	field, direction, ok := strings.Cut(strings.ToLower(strings.TrimSpace(raw)), "-")
	if !ok {
		return SortOrder{}, false
	}
	order := SortOrder{Field: SortField(field), Direction: SortDirection(direction)}
	if !order.Valid() {
		return SortOrder{}, false
	}
	return order, true
}

// SortOrderOrDefault parses raw and falls back to DefaultSortOrder when it is not recognised.
func SortOrderOrDefault(raw string) SortOrder {
	if order, ok := ParseSortOrder(raw); ok {
		return order
	}
	return DefaultSortOrder
}

// StatusSet is a set of inventory statuses.
type StatusSet map[InventoryStatus]struct{}

// NewStatusSet builds a set from the provided statuses.
func NewStatusSet(statuses ...InventoryStatus) StatusSet {
	set := make(StatusSet, len(statuses))
	for _, status := range statuses {
		set[status] = struct{}{}
	}
	return set
}

// Has reports membership.
func (s StatusSet) Has(status InventoryStatus) bool {
	_, ok := s[status]
	return ok
}

// Sorted returns the members in inventory display order.
func (s StatusSet) Sorted() []InventoryStatus {
	out := make([]InventoryStatus, 0, len(s))
	for _, status := range InventoryStatuses() {
		if s.Has(status) {
			out = append(out, status)
		}
	}
	return out
}

// Clone copies the set.
func (s StatusSet) Clone() StatusSet {
	out := make(StatusSet, len(s))
	for k := range s {
		out[k] = struct{}{}
	}
	return out
}

// StringSet is a set of strings.
type StringSet map[string]struct{}

// NewStringSet builds a set from the provided values.
func NewStringSet(values ...string) StringSet {
	set := make(StringSet, len(values))
	for _, value := range values {
		set[value] = struct{}{}
	}
	return set
}

// Has reports membership.
func (s StringSet) Has(value string) bool {
	_, ok := s[value]
	return ok
}

// Sorted returns the members in lexical order.
func (s StringSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for value := range s {
		out = append(out, value)
	}
	sort.Strings(out)
	return out
}

// Clone copies the set.
func (s StringSet) Clone() StringSet {
	out := make(StringSet, len(s))
	for k := range s {
		out[k] = struct{}{}
	}
	return out
}

// DefaultAvailability lists every status except unavailable.
func DefaultAvailability() StatusSet {
	return NewStatusSet(InventoryInStock, InventoryLowStock, InventoryShipToStore)
}

// FilterConfiguration holds every facet applied to the catalog listing.
// A nil price bound means unbounded. PriceMin greater than PriceMax is tolerated.
type FilterConfiguration struct {
	Category     string
	Search       string
	Availability StatusSet
	Brands       StringSet
	PriceMin     *float64
	PriceMax     *float64
	Sort         SortOrder
}

// DefaultFilterConfiguration returns the configuration used on first load and after clearing filters.
func DefaultFilterConfiguration() FilterConfiguration {
	return FilterConfiguration{
		Category:     CategoryAll,
		Search:       "",
		Availability: DefaultAvailability(),
		Brands:       StringSet{},
		Sort:         DefaultSortOrder,
	}
}

// Clone returns a deep copy.
func (c FilterConfiguration) Clone() FilterConfiguration {
	out := c
	out.Availability = c.Availability.Clone()
	out.Brands = c.Brands.Clone()
	out.PriceMin = cloneFloat(c.PriceMin)
	out.PriceMax = cloneFloat(c.PriceMax)
	return out
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	dup := *v
	return &dup
}
