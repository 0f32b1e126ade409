package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/robfig/cron/v3"
	"github.com/yuin/goldmark"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/futurebuildai/lumber-boss/internal/repositories"
)

const catalogMetricNamespace = "github.com/futurebuildai/lumber-boss/internal/services/catalog"

var errCatalogSourceRequired = errors.New("catalog service: source is required")

// ErrCatalogUnavailable indicates no catalog snapshot could be loaded.
var ErrCatalogUnavailable = errors.New("catalog service: unavailable")

// ErrCatalogProductNotFound indicates the SKU is not in the current snapshot.
var ErrCatalogProductNotFound = errors.New("catalog service: product not found")

// CatalogServiceDeps wires the catalog source and instrumentation.
type CatalogServiceDeps struct {
	Source   repositories.CatalogSource
	Logger   *zap.Logger
	Clock    func() time.Time
	SiteName string
	Meter    metric.Meter
}

type catalogService struct {
	source repositories.CatalogSource
	logger *zap.Logger
	now    func() time.Time
	site   string

	strict   *bluemonday.Policy
	ugc      *bluemonday.Policy
	markdown goldmark.Markdown

	snapshot atomic.Pointer[Catalog]
	loadMu   sync.Mutex
	lastErr  atomic.Pointer[error]

	filterLatency metric.Float64Histogram
	loads         metric.Int64Counter
}

// NewCatalogService constructs a CatalogService. The catalog is not loaded until the
// first Refresh.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Source == nil {
		return nil, errCatalogSourceRequired
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	site := strings.TrimSpace(deps.SiteName)
	if site == "" {
		site = DefaultSiteName
	}
	meter := deps.Meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(catalogMetricNamespace)
	}

	svc := &catalogService{
		source:   deps.Source,
		logger:   logger,
		now:      func() time.Time { return clock().UTC() },
		site:     site,
		strict:   bluemonday.StrictPolicy(),
		ugc:      newDescriptionPolicy(),
		markdown: goldmark.New(),
	}

	var err error
	svc.filterLatency, err = meter.Float64Histogram(
		"storefront.catalog.filter.latency",
		metric.WithUnit("ms"),
		metric.WithDescription("Latency in milliseconds for catalog filter evaluation"),
	)
	if err != nil {
		logger.Warn("catalog service: unable to register latency metric", zap.Error(err))
	}
	svc.loads, err = meter.Int64Counter(
		"storefront.catalog.loads",
		metric.WithDescription("Catalog load attempts by outcome"),
	)
	if err != nil {
		logger.Warn("catalog service: unable to register load counter", zap.Error(err))
	}
	return svc, nil
}

func newDescriptionPolicy() *bluemonday.Policy {
	policy := bluemonday.UGCPolicy()
	policy.RequireNoFollowOnLinks(true)
	return policy
}

// Catalog returns the current snapshot. Callers receive a copy.
func (s *catalogService) Catalog(ctx context.Context) (Catalog, error) {
	if err := ctx.Err(); err != nil {
		return Catalog{}, err
	}
	current := s.snapshot.Load()
	if current == nil {
		if last := s.lastErr.Load(); last != nil {
			return Catalog{}, fmt.Errorf("%w: %w", ErrCatalogUnavailable, *last)
		}
		return Catalog{}, ErrCatalogUnavailable
	}
	return current.Clone(), nil
}

func (s *catalogService) FindProduct(ctx context.Context, sku string) (Product, error) {
	current := s.snapshot.Load()
	if current == nil {
		_, err := s.Catalog(ctx)
		return Product{}, err
	}
	product, ok := current.FindProduct(sku)
	if !ok {
		return Product{}, fmt.Errorf("%w: %s", ErrCatalogProductNotFound, strings.TrimSpace(sku))
	}
	return product, nil
}

// Query evaluates cfg against the current snapshot. When no snapshot is loaded the
// error view is returned together with ErrCatalogUnavailable.
func (s *catalogService) Query(ctx context.Context, cfg FilterConfiguration) (CatalogView, error) {
	current := s.snapshot.Load()
	if current == nil {
		_, err := s.Catalog(ctx)
		return ErrorCatalogView(cfg, s.site), err
	}

	started := time.Now()
	view := BuildCatalogView(*current, cfg, s.site)
	if s.filterLatency != nil {
		s.filterLatency.Record(ctx, float64(time.Since(started).Microseconds())/1000.0,
			metric.WithAttributes(attribute.String("category", categoryAttribute(cfg.Category))))
	}
	return view, nil
}

// Refresh reloads the catalog. A failed reload keeps the previous snapshot.
func (s *catalogService) Refresh(ctx context.Context) error {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	catalog, err := s.source.Fetch(ctx)
	if err != nil {
		s.recordLoad(ctx, "error")
		s.lastErr.Store(&err)
		s.logger.Error("catalog service: load failed", zap.Error(err), zap.Bool("has_snapshot", s.snapshot.Load() != nil))
		return fmt.Errorf("%w: %w", ErrCatalogUnavailable, err)
	}

	sanitized := s.sanitize(catalog)
	if sanitized.LoadedAt.IsZero() {
		sanitized.LoadedAt = s.now()
	}
	s.snapshot.Store(&sanitized)
	s.lastErr.Store(nil)
	s.recordLoad(ctx, "ok")
	s.logger.Info("catalog service: catalog loaded",
		zap.Int("products", len(sanitized.Products)),
		zap.Int("categories", len(sanitized.Categories)),
	)
	return nil
}

// sanitize strips markup from display strings, renders category descriptions and drops
// products without a SKU or with a SKU seen earlier.
func (s *catalogService) sanitize(catalog Catalog) Catalog {
	out := Catalog{LoadedAt: catalog.LoadedAt}
	seen := make(map[string]struct{}, len(catalog.Products))
	out.Products = make([]Product, 0, len(catalog.Products))
	for _, product := range catalog.Products {
		product.SKU = strings.TrimSpace(product.SKU)
		if product.SKU == "" {
			s.logger.Warn("catalog service: skipping product without sku", zap.String("name", product.Name))
			continue
		}
		if _, dup := seen[product.SKU]; dup {
			s.logger.Warn("catalog service: skipping duplicate sku", zap.String("sku", product.SKU))
			continue
		}
		seen[product.SKU] = struct{}{}

		product.Name = s.plain(product.Name)
		product.Brand = s.plain(product.Brand)
		product.Category = strings.TrimSpace(product.Category)
		product.Unit = s.plain(product.Unit)
		product.ImageGradient = s.plain(product.ImageGradient)
		out.Products = append(out.Products, product)
	}

	out.Categories = make([]Category, 0, len(catalog.Categories))
	for _, category := range catalog.Categories {
		category.ID = strings.TrimSpace(category.ID)
		if category.ID == "" {
			continue
		}
		category.Name = s.plain(category.Name)
		category.DescriptionHTML = s.renderDescription(category.Description)
		category.Description = s.plain(category.Description)
		out.Categories = append(out.Categories, category)
	}
	return out
}

// plain removes every tag and returns unescaped text suitable for JSON.
func (s *catalogService) plain(value string) string {
	return strings.TrimSpace(html.UnescapeString(s.strict.Sanitize(value)))
}

func (s *catalogService) renderDescription(source string) string {
	if strings.TrimSpace(source) == "" {
		return ""
	}
	var buf bytes.Buffer
	if err := s.markdown.Convert([]byte(source), &buf); err != nil {
		s.logger.Warn("catalog service: markdown render failed", zap.Error(err))
		return ""
	}
	return strings.TrimSpace(s.ugc.Sanitize(buf.String()))
}

func (s *catalogService) recordLoad(ctx context.Context, outcome string) {
	if s.loads == nil {
		return
	}
	s.loads.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func categoryAttribute(category string) string {
	if category == "" {
		return "all"
	}
	return category
}

// CatalogRefresher reloads a catalog on a cron schedule.
type CatalogRefresher struct {
	cron *cron.Cron
}

// NewCatalogRefresher registers service.Refresh under spec, a standard five-field cron
// expression or a descriptor such as "@every 15m".
func NewCatalogRefresher(service CatalogService, spec string, timeout time.Duration, logger *zap.Logger) (*CatalogRefresher, error) {
	if service == nil {
		return nil, errors.New("catalog refresher: service is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = time.Minute
	}
	c := cron.New(
		cron.WithParser(cron.NewParser(cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow|cron.Descriptor)),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	if _, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := service.Refresh(ctx); err != nil {
			logger.Warn("catalog refresher: scheduled refresh failed", zap.Error(err))
		}
	}); err != nil {
		return nil, fmt.Errorf("catalog refresher: invalid schedule %q: %w", spec, err)
	}
	return &CatalogRefresher{cron: c}, nil
}

// Start begins running the schedule in the background.
func (r *CatalogRefresher) Start() { r.cron.Start() }

// Stop halts the schedule and waits for a running refresh or ctx, whichever ends first.
func (r *CatalogRefresher) Stop(ctx context.Context) {
	done := r.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// Entries reports the number of registered schedules.
func (r *CatalogRefresher) Entries() int { return len(r.cron.Entries()) }
