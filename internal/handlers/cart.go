package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/futurebuildai/lumber-boss/internal/platform/httpx"
	"github.com/futurebuildai/lumber-boss/internal/platform/requestctx"
	"github.com/futurebuildai/lumber-boss/internal/services"
)

const (
	maxCartBodySize     = 4 * 1024
	itemAddedTriggerKey = "cart:item-added"
)

// CartHandlers exposes the visitor's cart. The visitor is resolved by the session middleware.
type CartHandlers struct {
	carts  services.CartService
	events *CartEventHandlers
}

// NewCartHandlers constructs cart handlers. A nil events handler disables /cart/events.
func NewCartHandlers(carts services.CartService, events *CartEventHandlers) *CartHandlers {
	return &CartHandlers{
		carts:  carts,
		events: events,
	}
}

// Routes wires the /cart endpoints onto the provided router.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.getCart)
	r.Delete("/", h.clearCart)
	r.Post("/items", h.addItem)
	r.Patch("/items/{sku}", h.updateItem)
	r.Delete("/items/{sku}", h.removeItem)
	if h.events != nil {
		r.Get("/events", h.events.Stream)
	}
}

type addItemRequest struct {
	SKU      string `json:"sku" validate:"required,max=64"`
	Quantity int    `json:"quantity" validate:"omitempty,min=1,max=9999"`
}

type updateItemRequest struct {
	Quantity *int `json:"quantity" validate:"required"`
}

type cartResponse struct {
	Cart services.CartSnapshot `json:"cart"`
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	visitorID, ok := h.begin(ctx, w)
	if !ok {
		return
	}

	snapshot, err := h.carts.Cart(ctx, visitorID)
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	setNoStoreHeaders(w)
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: snapshot})
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	visitorID, ok := h.begin(ctx, w)
	if !ok {
		return
	}

	var req addItemRequest
	if !decodeRequest(w, r, maxCartBodySize, &req) {
		return
	}

	quantity := req.Quantity
	if quantity < 1 {
		quantity = 1
	}
	sku := strings.TrimSpace(req.SKU)
	snapshot, err := h.carts.AddItem(ctx, services.AddCartItemCommand{
		CartID:   visitorID,
		SKU:      sku,
		Quantity: quantity,
	})
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}

	setItemAddedTrigger(ctx, w, sku, quantity, snapshot.Count)
	setNoStoreHeaders(w)
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: snapshot})
}

func (h *CartHandlers) updateItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	visitorID, ok := h.begin(ctx, w)
	if !ok {
		return
	}

	var req updateItemRequest
	if !decodeRequest(w, r, maxCartBodySize, &req) {
		return
	}

	snapshot, err := h.carts.UpdateItemQuantity(ctx, services.UpdateCartItemCommand{
		CartID:   visitorID,
		SKU:      chi.URLParam(r, "sku"),
		Quantity: *req.Quantity,
	})
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	setNoStoreHeaders(w)
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: snapshot})
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	visitorID, ok := h.begin(ctx, w)
	if !ok {
		return
	}

	snapshot, err := h.carts.RemoveItem(ctx, services.RemoveCartItemCommand{
		CartID: visitorID,
		SKU:    chi.URLParam(r, "sku"),
	})
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	setNoStoreHeaders(w)
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: snapshot})
}

func (h *CartHandlers) clearCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	visitorID, ok := h.begin(ctx, w)
	if !ok {
		return
	}

	snapshot, err := h.carts.ClearCart(ctx, visitorID)
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	setNoStoreHeaders(w)
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: snapshot})
}

func (h *CartHandlers) begin(ctx context.Context, w http.ResponseWriter) (string, bool) {
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return "", false
	}
	return requireVisitor(ctx, w)
}

func writeCartError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrCartInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCartProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCartProductUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("product_unavailable", "product is not available for purchase", http.StatusConflict))
	case errors.Is(err, services.ErrCartUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("cart_error", "failed to update cart", http.StatusInternalServerError))
	}
}

type itemAddedTrigger struct {
	SKU       string `json:"sku"`
	Quantity  int    `json:"quantity"`
	CartCount int    `json:"cartCount"`
}

// setItemAddedTrigger emits the item-added notification as an HX-Trigger header so
// htmx-driven pages can refresh the cart badge and show a toast.
func setItemAddedTrigger(ctx context.Context, w http.ResponseWriter, sku string, quantity, count int) {
	payload, err := json.Marshal(map[string]itemAddedTrigger{
		itemAddedTriggerKey: {SKU: sku, Quantity: quantity, CartCount: count},
	})
	if err != nil {
		requestctx.Logger(ctx).Warn("cart: encode item-added trigger failed", zap.Error(err))
		return
	}
	w.Header().Set("HX-Trigger", string(payload))
}
