package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/futurebuildai/lumber-boss/internal/services"
)

type capturePublisher struct {
	mu     sync.Mutex
	events []services.CartItemAdded
}

func (p *capturePublisher) PublishCartItemAdded(_ context.Context, event services.CartItemAdded) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func newCartRouter(t *testing.T, visitorID string, publisher services.CartEventPublisher) http.Handler {
	t.Helper()
	carts := newTestCartService(t, newLoadedCatalog(t), publisher)
	handlers := NewCartHandlers(carts, nil)
	var mws []func(http.Handler) http.Handler
	if visitorID != "" {
		mws = append(mws, withVisitor(visitorID))
	}
	return NewRouter(WithAPIMiddlewares(mws...), WithCartRoutes(handlers.Routes))
}

func doJSON(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func decodeCart(t *testing.T, rr *httptest.ResponseRecorder) services.CartSnapshot {
	t.Helper()
	var body cartResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse cart: %v (%s)", err, rr.Body.String())
	}
	return body.Cart
}

func TestCartHandlersLifecycle(t *testing.T) {
	publisher := &capturePublisher{}
	router := newCartRouter(t, "visitor-1", publisher)

	rr := doJSON(t, router, http.MethodGet, "/api/v1/cart", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if cart := decodeCart(t, rr); cart.Count != 0 || cart.Items == nil {
		t.Fatalf("expected empty cart, got %+v", cart)
	}
	if rr.Header().Get("Cache-Control") == "" {
		t.Fatalf("expected no-store headers")
	}

	rr = doJSON(t, router, http.MethodPost, "/api/v1/cart/items", `{"sku":"OSB-716","quantity":2}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	cart := decodeCart(t, rr)
	if cart.Count != 2 || cart.Subtotal != 30.5 {
		t.Fatalf("unexpected cart after add %+v", cart)
	}
	var trigger map[string]itemAddedTrigger
	if err := json.Unmarshal([]byte(rr.Header().Get("HX-Trigger")), &trigger); err != nil {
		t.Fatalf("failed to parse trigger header: %v", err)
	}
	if got := trigger[itemAddedTriggerKey]; got.SKU != "OSB-716" || got.Quantity != 2 || got.CartCount != 2 {
		t.Fatalf("unexpected trigger %+v", got)
	}
	if len(publisher.events) != 1 || publisher.events[0].CartID != "visitor-1" {
		t.Fatalf("expected item-added event for visitor, got %+v", publisher.events)
	}

	rr = doJSON(t, router, http.MethodPost, "/api/v1/cart/items", `{"sku":"OSB-716"}`)
	if cart := decodeCart(t, rr); cart.Count != 3 || len(cart.Items) != 1 {
		t.Fatalf("expected merge by sku with default quantity, got %+v", cart)
	}

	rr = doJSON(t, router, http.MethodPatch, "/api/v1/cart/items/OSB-716", `{"quantity":5}`)
	if cart := decodeCart(t, rr); cart.Count != 5 {
		t.Fatalf("expected quantity 5, got %+v", cart)
	}

	rr = doJSON(t, router, http.MethodPatch, "/api/v1/cart/items/OSB-716", `{"quantity":0}`)
	if cart := decodeCart(t, rr); len(cart.Items) != 0 {
		t.Fatalf("expected zero quantity to remove, got %+v", cart)
	}

	_ = doJSON(t, router, http.MethodPost, "/api/v1/cart/items", `{"sku":"2X4-8-SPF","quantity":4}`)
	rr = doJSON(t, router, http.MethodDelete, "/api/v1/cart/items/2X4-8-SPF", "")
	if cart := decodeCart(t, rr); len(cart.Items) != 0 {
		t.Fatalf("expected removal, got %+v", cart)
	}

	_ = doJSON(t, router, http.MethodPost, "/api/v1/cart/items", `{"sku":"LVL-12"}`)
	rr = doJSON(t, router, http.MethodDelete, "/api/v1/cart", "")
	if cart := decodeCart(t, rr); cart.Count != 0 {
		t.Fatalf("expected cleared cart, got %+v", cart)
	}
}

func TestCartHandlersErrors(t *testing.T) {
	router := newCartRouter(t, "visitor-1", nil)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   string
	}{
		{name: "empty body", method: http.MethodPost, path: "/api/v1/cart/items", status: http.StatusBadRequest, code: "invalid_request"},
		{name: "invalid json", method: http.MethodPost, path: "/api/v1/cart/items", body: `{"sku":`, status: http.StatusBadRequest, code: "invalid_request"},
		{name: "missing sku", method: http.MethodPost, path: "/api/v1/cart/items", body: `{"quantity":1}`, status: http.StatusBadRequest, code: "invalid_request"},
		{name: "negative quantity", method: http.MethodPost, path: "/api/v1/cart/items", body: `{"sku":"OSB-716","quantity":-2}`, status: http.StatusBadRequest, code: "invalid_request"},
		{name: "unknown sku", method: http.MethodPost, path: "/api/v1/cart/items", body: `{"sku":"NOPE"}`, status: http.StatusNotFound, code: "product_not_found"},
		{name: "unavailable product", method: http.MethodPost, path: "/api/v1/cart/items", body: `{"sku":"TREX-16"}`, status: http.StatusConflict, code: "product_unavailable"},
		{name: "missing quantity", method: http.MethodPatch, path: "/api/v1/cart/items/OSB-716", body: `{}`, status: http.StatusBadRequest, code: "invalid_request"},
		{name: "too large", method: http.MethodPost, path: "/api/v1/cart/items", body: `{"sku":"` + strings.Repeat("x", maxCartBodySize) + `"}`, status: http.StatusRequestEntityTooLarge, code: "payload_too_large"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := doJSON(t, router, tc.method, tc.path, tc.body)
			if rr.Code != tc.status {
				t.Fatalf("expected status %d, got %d: %s", tc.status, rr.Code, rr.Body.String())
			}
			var body map[string]any
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("failed to parse response: %v", err)
			}
			if body["error"] != tc.code {
				t.Fatalf("expected error %s, got %v", tc.code, body["error"])
			}
		})
	}
}

func TestCartHandlersRequireVisitor(t *testing.T) {
	router := newCartRouter(t, "", nil)

	rr := doJSON(t, router, http.MethodGet, "/api/v1/cart", "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}

func TestCartHandlersIsolateVisitors(t *testing.T) {
	carts := newTestCartService(t, newLoadedCatalog(t), nil)
	handlers := NewCartHandlers(carts, nil)
	alice := NewRouter(WithAPIMiddlewares(withVisitor("alice")), WithCartRoutes(handlers.Routes))
	bob := NewRouter(WithAPIMiddlewares(withVisitor("bob")), WithCartRoutes(handlers.Routes))

	_ = doJSON(t, alice, http.MethodPost, "/api/v1/cart/items", `{"sku":"OSB-716","quantity":3}`)
	if cart := decodeCart(t, doJSON(t, bob, http.MethodGet, "/api/v1/cart", "")); cart.Count != 0 {
		t.Fatalf("carts leaked across visitors: %+v", cart)
	}
	if cart := decodeCart(t, doJSON(t, alice, http.MethodGet, "/api/v1/cart", "")); cart.Count != 3 {
		t.Fatalf("expected alice cart to persist, got %+v", cart)
	}
}
