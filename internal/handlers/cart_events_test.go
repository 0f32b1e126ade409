package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/futurebuildai/lumber-boss/internal/services"
)

type sseMessage struct {
	event string
	id    string
	data  string
}

func readSSE(body *bufio.Scanner, out chan<- sseMessage) {
	defer close(out)
	var msg sseMessage
	for body.Scan() {
		line := body.Text()
		switch {
		case line == "":
			if msg.event != "" {
				out <- msg
			}
			msg = sseMessage{}
		case strings.HasPrefix(line, "event: "):
			msg.event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "id: "):
			msg.id = strings.TrimPrefix(line, "id: ")
		case strings.HasPrefix(line, "data: "):
			msg.data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func TestCartEventHandlersStream(t *testing.T) {
	bus := services.NewCartEventBus()
	carts := newTestCartService(t, newLoadedCatalog(t), bus)
	handlers := NewCartHandlers(carts, NewCartEventHandlers(carts, bus, time.Hour))
	router := NewRouter(WithAPIMiddlewares(withVisitor("visitor-1")), WithCartRoutes(handlers.Routes))

	srv := httptest.NewServer(router)
	defer srv.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/cart/events", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	messages := make(chan sseMessage, 8)
	go readSSE(bufio.NewScanner(resp.Body), messages)

	first := <-messages
	if first.event != sseEventCart {
		t.Fatalf("expected initial cart frame, got %+v", first)
	}
	var initial services.CartSnapshot
	if err := json.Unmarshal([]byte(first.data), &initial); err != nil || initial.Count != 0 {
		t.Fatalf("unexpected initial cart %s err %v", first.data, err)
	}

	addReq, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/cart/items", strings.NewReader(`{"sku":"OSB-716","quantity":2}`))
	addResp, err := srv.Client().Do(addReq)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	addResp.Body.Close()

	var sawCart, sawAdded bool
	for !(sawCart && sawAdded) {
		select {
		case msg, ok := <-messages:
			if !ok {
				t.Fatalf("stream closed early")
			}
			switch msg.event {
			case sseEventCart:
				var snapshot services.CartSnapshot
				if err := json.Unmarshal([]byte(msg.data), &snapshot); err != nil {
					t.Fatalf("decode cart frame: %v", err)
				}
				sawCart = snapshot.Count == 2
			case sseEventItemAdded:
				var event services.CartItemAdded
				if err := json.Unmarshal([]byte(msg.data), &event); err != nil {
					t.Fatalf("decode item-added frame: %v", err)
				}
				if event.Product.SKU != "OSB-716" || event.Quantity != 2 || msg.id != event.EventID {
					t.Fatalf("unexpected item-added frame %+v", msg)
				}
				sawAdded = true
			}
		case <-ctx.Done():
			t.Fatalf("timed out waiting for frames (cart=%v added=%v)", sawCart, sawAdded)
		}
	}
}

func TestCartEventHandlersRequireVisitor(t *testing.T) {
	carts := newTestCartService(t, newLoadedCatalog(t), nil)
	events := NewCartEventHandlers(carts, nil, 0)

	rr := httptest.NewRecorder()
	events.Stream(rr, httptest.NewRequest(http.MethodGet, "/cart/events", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}
