package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/futurebuildai/lumber-boss/internal/platform/httpx"
	"github.com/futurebuildai/lumber-boss/internal/services"
)

const maxPreferenceBodySize = 1024

// PreferenceHandlers exposes per-visitor storefront preferences.
type PreferenceHandlers struct {
	prefs services.PreferenceService
}

// NewPreferenceHandlers constructs preference handlers.
func NewPreferenceHandlers(prefs services.PreferenceService) *PreferenceHandlers {
	return &PreferenceHandlers{prefs: prefs}
}

// Routes wires the /preferences endpoints onto the provided router.
func (h *PreferenceHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/location", h.getLocation)
	r.Put("/location", h.putLocation)
}

type locationRequest struct {
	Location string `json:"location" validate:"required,max=64"`
}

type locationResponse struct {
	Location string `json:"location"`
	Selected bool   `json:"selected"`
}

func (h *PreferenceHandlers) getLocation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	visitorID, ok := h.begin(ctx, w)
	if !ok {
		return
	}
	pref, err := h.prefs.Location(ctx, visitorID)
	if err != nil {
		writePreferenceError(ctx, w, err)
		return
	}
	setNoStoreHeaders(w)
	writeJSONResponse(w, http.StatusOK, locationResponse{Location: pref.Location, Selected: pref.Selected})
}

func (h *PreferenceHandlers) putLocation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	visitorID, ok := h.begin(ctx, w)
	if !ok {
		return
	}
	var req locationRequest
	if !decodeRequest(w, r, maxPreferenceBodySize, &req) {
		return
	}
	pref, err := h.prefs.SetLocation(ctx, visitorID, req.Location)
	if err != nil {
		writePreferenceError(ctx, w, err)
		return
	}
	setNoStoreHeaders(w)
	writeJSONResponse(w, http.StatusOK, locationResponse{Location: pref.Location, Selected: pref.Selected})
}

func (h *PreferenceHandlers) begin(ctx context.Context, w http.ResponseWriter) (string, bool) {
	if h.prefs == nil {
		httpx.WriteError(ctx, w, httpx.NewError("preference_service_unavailable", "preference service is unavailable", http.StatusServiceUnavailable))
		return "", false
	}
	return requireVisitor(ctx, w)
}

func writePreferenceError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrPreferenceInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrPreferenceUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("preference_service_unavailable", "preference service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("preference_error", "failed to load preferences", http.StatusInternalServerError))
	}
}
