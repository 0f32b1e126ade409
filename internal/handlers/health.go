package handlers

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/futurebuildai/lumber-boss/internal/domain"
	"github.com/futurebuildai/lumber-boss/internal/platform/httpx"
	"github.com/futurebuildai/lumber-boss/internal/platform/requestctx"
	"github.com/futurebuildai/lumber-boss/internal/services"
)

// HealthHandlers serves the liveness and readiness probes.
type HealthHandlers struct {
	build  services.BuildInfo
	clock  func() time.Time
	system services.SystemService
}

// HealthOption customises HealthHandlers.
type HealthOption func(*HealthHandlers)

// NewHealthHandlers constructs probe handlers. Without a system service readiness mirrors liveness.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	if h.build.StartedAt.IsZero() {
		h.build.StartedAt = h.clock().UTC()
	}
	return h
}

// WithHealthBuildInfo sets the build metadata echoed by /healthz.
func WithHealthBuildInfo(info services.BuildInfo) HealthOption {
	return func(h *HealthHandlers) {
		h.build = info
	}
}

// WithHealthClock overrides the clock used for uptime calculations.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// WithHealthSystemService sets the service consulted by /readyz.
func WithHealthSystemService(svc services.SystemService) HealthOption {
	return func(h *HealthHandlers) {
		h.system = svc
	}
}

type healthzResponse struct {
	Status      domain.HealthStatus `json:"status"`
	Version     string              `json:"version,omitempty"`
	CommitSHA   string              `json:"commitSha,omitempty"`
	Environment string              `json:"environment,omitempty"`
	Uptime      string              `json:"uptime"`
	Time        time.Time           `json:"time"`
}

// Healthz reports process liveness without touching dependencies.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	now := h.clock().UTC()
	httpx.WriteJSON(w, http.StatusOK, healthzResponse{
		Status:      domain.HealthStatusOK,
		Version:     h.build.Version,
		CommitSHA:   h.build.CommitSHA,
		Environment: h.build.Environment,
		Uptime:      now.Sub(h.build.StartedAt).Truncate(time.Second).String(),
		Time:        now,
	})
}

type readyzResponse struct {
	Status      domain.HealthStatus                 `json:"status"`
	Checks      map[string]domain.SystemHealthCheck `json:"checks,omitempty"`
	Version     string                              `json:"version,omitempty"`
	CommitSHA   string                              `json:"commitSha,omitempty"`
	Environment string                              `json:"environment,omitempty"`
	Uptime      string                              `json:"uptime"`
	GeneratedAt time.Time                           `json:"generatedAt"`
	Details     []string                            `json:"details,omitempty"`
}

// Readyz reports dependency readiness. Any non-ok status responds 503.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.system == nil {
		h.Healthz(w, r)
		return
	}

	report, err := h.system.HealthReport(r.Context())
	if err != nil {
		requestctx.Logger(r.Context()).Warn("readiness report failed", zap.Error(err))
		httpx.WriteError(r.Context(), w, httpx.NewError("not_ready", err.Error(), http.StatusServiceUnavailable))
		return
	}

	generated := report.GeneratedAt
	if generated.IsZero() {
		generated = h.clock().UTC()
	}
	resp := readyzResponse{
		Status:      report.Status,
		Checks:      report.Checks,
		Version:     report.Version,
		CommitSHA:   report.CommitSHA,
		Environment: report.Environment,
		Uptime:      report.Uptime.Truncate(time.Second).String(),
		GeneratedAt: generated,
	}
	if resp.Status == "" {
		resp.Status = domain.HealthStatusOK
	}

	status := http.StatusOK
	if resp.Status != domain.HealthStatusOK {
		status = http.StatusServiceUnavailable
		resp.Details = failureDetails(report.Checks)
	}
	httpx.WriteJSON(w, status, resp)
}

func failureDetails(checks map[string]domain.SystemHealthCheck) []string {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	details := make([]string, 0, len(names))
	for _, name := range names {
		check := checks[name]
		if check.Status == domain.HealthStatusOK {
			continue
		}
		reason := strings.TrimSpace(check.Error)
		if reason == "" {
			reason = string(check.Status)
		}
		details = append(details, fmt.Sprintf("%s: %s", name, reason))
	}
	return details
}
