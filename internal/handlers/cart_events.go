package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/futurebuildai/lumber-boss/internal/platform/httpx"
	"github.com/futurebuildai/lumber-boss/internal/platform/requestctx"
	"github.com/futurebuildai/lumber-boss/internal/services"
)

const (
	defaultHeartbeat   = 25 * time.Second
	itemAddedBacklog   = 16
	sseEventCart       = "cart"
	sseEventItemAdded  = "item-added"
	sseHeartbeatFrame  = ": ping\n\n"
	sseContentTypeHead = "text/event-stream"
)

// CartEventHandlers streams cart changes and item-added notifications to the visitor as
// server-sent events.
type CartEventHandlers struct {
	carts     services.CartService
	bus       *services.CartEventBus
	heartbeat time.Duration
}

// NewCartEventHandlers constructs the event stream. A nil bus streams cart state only.
func NewCartEventHandlers(carts services.CartService, bus *services.CartEventBus, heartbeat time.Duration) *CartEventHandlers {
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}
	return &CartEventHandlers{carts: carts, bus: bus, heartbeat: heartbeat}
}

// Stream serves GET /cart/events. The first frame is the current cart.
func (h *CartEventHandlers) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return
	}
	visitorID, ok := requireVisitor(ctx, w)
	if !ok {
		return
	}
	if _, ok := w.(http.Flusher); !ok {
		httpx.WriteError(ctx, w, httpx.NewError("streaming_unsupported", "streaming is not supported", http.StatusInternalServerError))
		return
	}
	logger := requestctx.Logger(ctx)

	// Cart frames are latest-wins: a slow client only ever sees the newest state.
	latest := make(chan services.CartSnapshot, 1)
	unsubscribe, err := h.carts.Subscribe(ctx, visitorID, func(items []services.CartItem) {
		snapshot := services.NewCartSnapshot(visitorID, items)
		for {
			select {
			case latest <- snapshot:
				return
			default:
			}
			select {
			case <-latest:
			default:
			}
		}
	})
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	defer unsubscribe()

	added := make(chan services.CartItemAdded, itemAddedBacklog)
	if h.bus != nil {
		unsubscribeBus := h.bus.Subscribe(visitorID, func(event services.CartItemAdded) {
			select {
			case added <- event:
			default:
				logger.Debug("cart events: dropped item-added notification", zap.String("eventId", event.EventID))
			}
		})
		defer unsubscribeBus()
	}

	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	header := w.Header()
	header.Set("Content-Type", sseContentTypeHead)
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	_ = rc.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		var err error
		select {
		case <-ctx.Done():
			return
		case snapshot := <-latest:
			err = writeSSE(w, sseEventCart, "", snapshot)
		case event := <-added:
			err = writeSSE(w, sseEventItemAdded, event.EventID, event)
		case <-ticker.C:
			_, err = fmt.Fprint(w, sseHeartbeatFrame)
		}
		if err == nil {
			err = rc.Flush()
		}
		if err != nil {
			logger.Debug("cart events: stream closed", zap.Error(err))
			return
		}
	}
}

func writeSSE(w http.ResponseWriter, event, id string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if id != "" {
		if _, err := fmt.Fprintf(w, "id: %s\n", id); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
