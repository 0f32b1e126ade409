package services

import (
	"context"
	"sync"

	"github.com/futurebuildai/lumber-boss/internal/domain"
)

func sampleCatalog() Catalog {
	return Catalog{
		Products: []Product{
			{SKU: "2X4-8-SPF", Name: "2x4x8 SPF Stud", Brand: "Boise Cascade", Category: "lumber", Price: 3.98, ProPrice: 3.58, Unit: "each", InventoryStatus: domain.InventoryInStock},
			{SKU: "OSB-716", Name: "7/16 OSB Sheathing", Brand: "LP", Category: "sheet-goods", Price: 15.25, Unit: "sheet", InventoryStatus: domain.InventoryLowStock},
			{SKU: "PLY-34", Name: "3/4 Plywood Sanded", Brand: "Georgia-Pacific", Category: "sheet-goods", Price: 52.10, Unit: "sheet", InventoryStatus: domain.InventoryShipToStore},
			{SKU: "DECK-SCR", Name: "deck screws 5lb", Brand: "GRK", Category: "fasteners", Price: 38.00, Unit: "box", InventoryStatus: domain.InventoryInStock},
			{SKU: "TREX-16", Name: "Trex Enhance 16ft", Brand: "Trex", Category: "decking", Price: 52.10, Unit: "board", InventoryStatus: domain.InventoryUnavailable},
			{SKU: "LVL-12", Name: "LVL Beam 12ft", Brand: "Boise Cascade", Category: "lumber", Price: 89.50, Unit: "each", InventoryStatus: domain.InventoryLowStock},
		},
		Categories: []Category{
			{ID: "lumber", Name: "Lumber", Description: "Dimensional lumber and engineered wood"},
			{ID: "sheet-goods", Name: "Sheet Goods", Description: "Plywood, OSB and panels"},
			{ID: "fasteners", Name: "Fasteners", Description: "Screws, nails and anchors"},
			{ID: "decking", Name: "Decking", Description: "Composite and wood decking"},
		},
	}
}

func skus(products []Product) []string {
	out := make([]string, 0, len(products))
	for _, product := range products {
		out = append(out, product.SKU)
	}
	return out
}

func floatPtr(v float64) *float64 { return &v }

type stubCatalogReader struct {
	mu      sync.Mutex
	catalog Catalog
	err     error
	calls   int
}

func (s *stubCatalogReader) Catalog(context.Context) (Catalog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return Catalog{}, s.err
	}
	return s.catalog.Clone(), nil
}

type stubCatalogSource struct {
	mu      sync.Mutex
	catalog Catalog
	err     error
	calls   int
}

func (s *stubCatalogSource) Fetch(context.Context) (domain.Catalog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return domain.Catalog{}, s.err
	}
	return s.catalog.Clone(), nil
}

func (s *stubCatalogSource) set(catalog Catalog, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.catalog = catalog
	s.err = err
}

type recordingRenderer struct {
	mu    sync.Mutex
	views []CatalogView
}

func (r *recordingRenderer) Render(view CatalogView) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.views = append(r.views, view)
}

func (r *recordingRenderer) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.views)
}

func (r *recordingRenderer) last() CatalogView {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.views) == 0 {
		return CatalogView{}
	}
	return r.views[len(r.views)-1]
}
