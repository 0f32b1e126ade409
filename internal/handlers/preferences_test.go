package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/futurebuildai/lumber-boss/internal/repositories/memory"
	"github.com/futurebuildai/lumber-boss/internal/services"
)

func TestPreferenceHandlersLocation(t *testing.T) {
	prefs, err := services.NewPreferenceService(services.PreferenceServiceDeps{Store: memory.NewStore()})
	if err != nil {
		t.Fatalf("preference service: %v", err)
	}
	handlers := NewPreferenceHandlers(prefs)
	router := NewRouter(WithAPIMiddlewares(withVisitor("visitor-1")), WithPreferenceRoutes(handlers.Routes))

	decode := func(t *testing.T, body []byte) locationResponse {
		t.Helper()
		var resp locationResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		return resp
	}

	rr := doJSON(t, router, http.MethodGet, "/api/v1/preferences/location", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if resp := decode(t, rr.Body.Bytes()); resp.Selected {
		t.Fatalf("expected no location selected, got %+v", resp)
	}

	rr = doJSON(t, router, http.MethodPut, "/api/v1/preferences/location", `{"location":" Boise, ID "}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if resp := decode(t, rr.Body.Bytes()); resp.Location != "Boise, ID" || !resp.Selected {
		t.Fatalf("unexpected stored location %+v", resp)
	}

	rr = doJSON(t, router, http.MethodGet, "/api/v1/preferences/location", "")
	if resp := decode(t, rr.Body.Bytes()); resp.Location != "Boise, ID" {
		t.Fatalf("expected persisted location, got %+v", resp)
	}

	rr = doJSON(t, router, http.MethodPut, "/api/v1/preferences/location", `{"location":"`+strings.Repeat("x", 65)+`"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
	rr = doJSON(t, router, http.MethodPut, "/api/v1/preferences/location", `{"location":"   "}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected blank location rejected, got %d", rr.Code)
	}
}
