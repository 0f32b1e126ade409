package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/futurebuildai/lumber-boss/internal/domain"
	"github.com/futurebuildai/lumber-boss/internal/platform/requestctx"
	"github.com/futurebuildai/lumber-boss/internal/repositories/memory"
	"github.com/futurebuildai/lumber-boss/internal/services"
)

type staticSource struct {
	catalog domain.Catalog
	err     error
}

func (s staticSource) Fetch(context.Context) (domain.Catalog, error) {
	return s.catalog, s.err
}

func testCatalog() domain.Catalog {
	return domain.Catalog{
		Products: []domain.Product{
			{SKU: "2X4-8-SPF", Name: "2x4x8 SPF Stud", Brand: "Boise Cascade", Category: "lumber", Price: 3.98, Unit: "each", InventoryStatus: domain.InventoryInStock},
			{SKU: "OSB-716", Name: "7/16 OSB Sheathing", Brand: "LP", Category: "sheet-goods", Price: 15.25, Unit: "sheet", InventoryStatus: domain.InventoryLowStock},
			{SKU: "TREX-16", Name: "Trex Enhance 16ft", Brand: "Trex", Category: "decking", Price: 52.10, Unit: "board", InventoryStatus: domain.InventoryUnavailable},
			{SKU: "LVL-12", Name: "LVL Beam 12ft", Brand: "Boise Cascade", Category: "lumber", Price: 89.50, Unit: "each", InventoryStatus: domain.InventoryLowStock},
		},
		Categories: []domain.Category{
			{ID: "lumber", Name: "Lumber", Description: "Dimensional lumber and engineered wood"},
			{ID: "sheet-goods", Name: "Sheet Goods", Description: "Plywood, OSB and panels"},
			{ID: "decking", Name: "Decking", Description: "Composite and wood decking"},
		},
	}
}

// newLoadedCatalog returns a catalog service that has already loaded testCatalog.
func newLoadedCatalog(t *testing.T) services.CatalogService {
	t.Helper()
	catalog, err := services.NewCatalogService(services.CatalogServiceDeps{Source: staticSource{catalog: testCatalog()}})
	if err != nil {
		t.Fatalf("catalog service: %v", err)
	}
	if err := catalog.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	return catalog
}

func newTestCartService(t *testing.T, catalog services.CatalogService, publisher services.CartEventPublisher) services.CartService {
	t.Helper()
	carts, err := services.NewCartService(services.CartServiceDeps{
		Store:     memory.NewStore(),
		Catalog:   catalog,
		Publisher: publisher,
	})
	if err != nil {
		t.Fatalf("cart service: %v", err)
	}
	return carts
}

// withVisitor stands in for the session middleware.
func withVisitor(visitorID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(requestctx.WithVisitorID(r.Context(), visitorID)))
		})
	}
}
