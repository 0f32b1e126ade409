package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/futurebuildai/lumber-boss/internal/domain"
	"github.com/futurebuildai/lumber-boss/internal/platform/debounce"
	"github.com/futurebuildai/lumber-boss/internal/platform/requestctx"
	"github.com/futurebuildai/lumber-boss/internal/services"
)

const (
	liveOutboundBuffer = 16
	liveReadLimit      = 4 * 1024
)

// LiveConfig tunes the filter pipelines created for each websocket connection.
type LiveConfig struct {
	SiteName       string
	ListingPath    string
	SearchDebounce time.Duration
	PriceDebounce  time.Duration
	Scheduler      debounce.Scheduler
}

// LiveHandlers runs one catalog filter pipeline per websocket connection. Clients send
// filter input and receive every re-rendered view.
type LiveHandlers struct {
	catalog services.CatalogReader
	cfg     LiveConfig
	logger  *zap.Logger
}

// NewLiveHandlers constructs the live filter endpoint.
func NewLiveHandlers(catalog services.CatalogReader, cfg LiveConfig, logger *zap.Logger) *LiveHandlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LiveHandlers{catalog: catalog, cfg: cfg, logger: logger}
}

// liveMessage is client input. Value carries the category, search text, sort order,
// inventory status or brand depending on Type. On defaults to true for toggles.
type liveMessage struct {
	Type  string `json:"type"`
	Value string `json:"value,omitempty"`
	On    *bool  `json:"on,omitempty"`
	Min   string `json:"min,omitempty"`
	Max   string `json:"max,omitempty"`
}

func (m liveMessage) enabled() bool {
	return m.On == nil || *m.On
}

// liveFrame is pushed to the client.
type liveFrame struct {
	Type    string                `json:"type"`
	View    *services.CatalogView `json:"view,omitempty"`
	URL     string                `json:"url,omitempty"`
	Message string                `json:"message,omitempty"`
}

// ServeHTTP upgrades the request and serves the connection until the client disconnects.
func (h *LiveHandlers) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		http.Error(w, "catalog service is unavailable", http.StatusServiceUnavailable)
		return
	}
	upgrader := websocket.Upgrader{CheckOrigin: sameOrigin}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error response.
		return
	}
	defer conn.Close()
	h.serve(r, conn)
}

// sameOrigin accepts clients without an Origin header and browsers whose origin matches
// the requested host.
func sameOrigin(r *http.Request) bool {
	raw := r.Header.Get("Origin")
	if raw == "" {
		return true
	}
	origin, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return strings.EqualFold(origin.Host, r.Host)
}

func (h *LiveHandlers) serve(req *http.Request, conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(req.Context())
	defer cancel()
	logger := requestctx.Logger(ctx)
	if logger == requestctx.NoopLogger() {
		logger = h.logger
	}
	conn.SetReadLimit(liveReadLimit)

	out := make(chan liveFrame, liveOutboundBuffer)
	send := func(frame liveFrame) {
		select {
		case out <- frame:
		case <-ctx.Done():
		}
	}

	pipeline, err := services.NewPipeline(services.PipelineDeps{
		Catalog: h.catalog,
		Renderer: services.RendererFunc(func(view services.CatalogView) {
			send(liveFrame{Type: "view", View: &view})
		}),
		Logger:         logger,
		SiteName:       h.cfg.SiteName,
		Path:           h.cfg.ListingPath,
		SearchDebounce: h.cfg.SearchDebounce,
		PriceDebounce:  h.cfg.PriceDebounce,
		Scheduler:      h.cfg.Scheduler,
		OnShareURL: func(shareURL string) {
			send(liveFrame{Type: "url", URL: shareURL})
		},
	})
	if err != nil {
		logger.Error("live filters: pipeline construction failed", zap.Error(err))
		return
	}
	defer pipeline.Close()

	// The writer goroutine is the connection's only writer.
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case frame := <-out:
				if err := conn.WriteJSON(frame); err != nil {
					logger.Debug("live filters: send failed", zap.Error(err))
					cancel()
					// Unblocks the reader.
					_ = conn.Close()
					return
				}
			}
		}
	}()

	var seed url.Values
	if req.URL != nil {
		seed = req.URL.Query()
	}
	if err := pipeline.Init(ctx, seed); err != nil {
		logger.Warn("live filters: catalog unavailable", zap.Error(err))
	}

	for ctx.Err() == nil {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("live filters: receive failed", zap.Error(err))
			}
			break
		}
		var msg liveMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			send(liveFrame{Type: "error", Message: "message must be valid JSON"})
			continue
		}
		if !applyLiveMessage(pipeline, msg) {
			send(liveFrame{Type: "error", Message: fmt.Sprintf("unknown message type %q", msg.Type)})
		}
	}

	cancel()
	<-writerDone
}

func applyLiveMessage(p *services.Pipeline, msg liveMessage) bool {
	switch strings.ToLower(strings.TrimSpace(msg.Type)) {
	case "category":
		p.SetCategory(msg.Value)
	case "search":
		p.InputSearch(msg.Value)
	case "sort":
		p.SetSort(msg.Value)
	case "availability":
		p.SetAvailability(domain.InventoryStatus(strings.TrimSpace(msg.Value)), msg.enabled())
	case "brand":
		p.SetBrand(msg.Value, msg.enabled())
	case "price":
		p.InputPriceBounds(msg.Min, msg.Max)
	case "clear":
		p.ClearFilters()
	default:
		return false
	}
	return true
}
