package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/futurebuildai/lumber-boss/internal/platform/httpx"
	"github.com/futurebuildai/lumber-boss/internal/services"
)

// CatalogHandlers exposes the product listing, product lookup and category endpoints.
type CatalogHandlers struct {
	catalog     services.CatalogService
	listingPath string
	live        http.Handler
}

// CatalogOption customises CatalogHandlers.
type CatalogOption func(*CatalogHandlers)

// NewCatalogHandlers constructs catalog handlers backed by the catalog service.
func NewCatalogHandlers(catalog services.CatalogService, opts ...CatalogOption) *CatalogHandlers {
	h := &CatalogHandlers{
		catalog:     catalog,
		listingPath: services.DefaultListingPath,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// WithCatalogListingPath sets the storefront path used when building share URLs.
func WithCatalogListingPath(path string) CatalogOption {
	return func(h *CatalogHandlers) {
		if trimmed := strings.TrimSpace(path); trimmed != "" {
			h.listingPath = trimmed
		}
	}
}

// WithLiveFilters mounts the live filter websocket at /catalog/live.
func WithLiveFilters(live http.Handler) CatalogOption {
	return func(h *CatalogHandlers) {
		h.live = live
	}
}

// Routes wires the /catalog endpoints onto the provided router.
func (h *CatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/products", h.listProducts)
	r.Get("/products/{sku}", h.getProduct)
	r.Get("/categories", h.listCategories)
	if h.live != nil {
		r.Handle("/live", h.live)
	}
}

func (h *CatalogHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	cfg := services.FilterFromQuery(r.URL.Query())
	view, err := h.catalog.Query(ctx, cfg)
	shareURL := services.ShareURL(h.listingPath, cfg)
	view.ShareURL = shareURL
	if err != nil {
		if !errors.Is(err, services.ErrCatalogUnavailable) {
			h.writeCatalogError(ctx, w, err)
			return
		}
		writeJSONResponse(w, http.StatusServiceUnavailable, view)
		return
	}

	w.Header().Set("HX-Replace-Url", shareURL)
	writeJSONResponse(w, http.StatusOK, view)
}

func (h *CatalogHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	sku := strings.TrimSpace(chi.URLParam(r, "sku"))
	if sku == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "sku is required", http.StatusBadRequest))
		return
	}
	product, err := h.catalog.FindProduct(ctx, sku)
	if err != nil {
		h.writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, product)
}

type categoriesResponse struct {
	Categories []services.Category `json:"categories"`
}

func (h *CatalogHandlers) listCategories(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	catalog, err := h.catalog.Catalog(ctx)
	if err != nil {
		h.writeCatalogError(ctx, w, err)
		return
	}
	categories := catalog.Categories
	if categories == nil {
		categories = []services.Category{}
	}
	writeJSONResponse(w, http.StatusOK, categoriesResponse{Categories: categories})
}

func (h *CatalogHandlers) writeCatalogError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrCatalogProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCatalogUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "Please try refreshing the page", http.StatusServiceUnavailable).
			WithDetails(map[string]any{"title": "Error loading products"}))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("catalog_error", "failed to load catalog", http.StatusInternalServerError))
	}
}
