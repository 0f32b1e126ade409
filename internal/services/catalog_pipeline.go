package services

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/futurebuildai/lumber-boss/internal/domain"
	"github.com/futurebuildai/lumber-boss/internal/platform/debounce"
)

const (
	// DefaultSearchDebounce is the idle interval before search input is applied.
	DefaultSearchDebounce = 300 * time.Millisecond
	// DefaultPriceDebounce is the idle interval before price input is applied.
	DefaultPriceDebounce = 500 * time.Millisecond
	// DefaultListingPath is the path share URLs are built on.
	DefaultListingPath = "/products"
)

var (
	errPipelineCatalogRequired  = errors.New("catalog pipeline: catalog reader is required")
	errPipelineRendererRequired = errors.New("catalog pipeline: renderer is required")
)

// Renderer presents a derived listing.
type Renderer interface {
	Render(view CatalogView)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(view CatalogView)

// Render implements Renderer.
func (f RendererFunc) Render(view CatalogView) { f(view) }

// PipelineDeps wires a Pipeline.
type PipelineDeps struct {
	Catalog        CatalogReader
	Renderer       Renderer
	Logger         *zap.Logger
	SiteName       string
	Path           string
	SearchDebounce time.Duration
	PriceDebounce  time.Duration
	Scheduler      debounce.Scheduler
	// OnShareURL is called after category, search or clear changes with the new share URL.
	OnShareURL func(shareURL string)
}

type pipelineState int

const (
	pipelineIdle pipelineState = iota
	pipelineReady
	pipelineFailed
	pipelineClosed
)

// Pipeline owns the filter configuration and catalog snapshot of one browsing session.
// Every accepted change recomputes the listing and hands it to the Renderer. Renders are
// delivered in change order outside the state lock; a renderer may call View or
// Configuration but must not call mutators synchronously.
type Pipeline struct {
	reader     CatalogReader
	renderer   Renderer
	logger     *zap.Logger
	site       string
	path       string
	onShareURL func(string)

	search *debounce.Debouncer
	price  *debounce.Debouncer

	mu      sync.Mutex
	state   pipelineState
	catalog Catalog
	cfg     FilterConfiguration
	view    CatalogView

	renders *turnstile
}

// NewPipeline returns an idle pipeline. Call Init before anything else.
func NewPipeline(deps PipelineDeps) (*Pipeline, error) {
	if deps.Catalog == nil {
		return nil, errPipelineCatalogRequired
	}
	if deps.Renderer == nil {
		return nil, errPipelineRendererRequired
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	site := strings.TrimSpace(deps.SiteName)
	if site == "" {
		site = DefaultSiteName
	}
	path := strings.TrimSpace(deps.Path)
	if path == "" {
		path = DefaultListingPath
	}
	searchDelay := deps.SearchDebounce
	if searchDelay <= 0 {
		searchDelay = DefaultSearchDebounce
	}
	priceDelay := deps.PriceDebounce
	if priceDelay <= 0 {
		priceDelay = DefaultPriceDebounce
	}
	var opts []debounce.Option
	if deps.Scheduler != nil {
		opts = append(opts, debounce.WithScheduler(deps.Scheduler))
	}

	return &Pipeline{
		reader:     deps.Catalog,
		renderer:   deps.Renderer,
		logger:     logger,
		site:       site,
		path:       path,
		onShareURL: deps.OnShareURL,
		search:     debounce.New(searchDelay, opts...),
		price:      debounce.New(priceDelay, opts...),
		cfg:        domain.DefaultFilterConfiguration(),
		renders:    newTurnstile(),
	}, nil
}

// Init loads the catalog, seeds category and search from the initial query, and renders.
// A fetch failure renders the error view, returns the error, and leaves the pipeline in
// a terminal state where every mutator is ignored.
func (p *Pipeline) Init(ctx context.Context, seed url.Values) error {
	p.mu.Lock()
	if p.state != pipelineIdle {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	catalog, err := p.reader.Catalog(ctx)

	p.mu.Lock()
	if p.state != pipelineIdle {
		p.mu.Unlock()
		return nil
	}
	p.cfg = SeedFromQuery(p.cfg, seed)
	if err != nil {
		p.logger.Error("catalog pipeline: catalog load failed", zap.Error(err))
		p.state = pipelineFailed
		p.view = ErrorCatalogView(p.cfg, p.site)
		p.view.ShareURL = ShareURL(p.path, p.cfg)
		p.renderLocked(false)
		return err
	}
	p.catalog = catalog
	p.state = pipelineReady
	p.recomputeLocked(false)
	return nil
}

// SetCategory selects a category id or "all" and publishes the new share URL.
func (p *Pipeline) SetCategory(id string) {
	id = strings.TrimSpace(id)
	if id == "" {
		id = domain.CategoryAll
	}
	p.update(true, func(cfg *FilterConfiguration) { cfg.Category = id })
}

// SetSort applies "<field>-<direction>", falling back to name-asc for unknown values.
func (p *Pipeline) SetSort(raw string) {
	order := domain.SortOrderOrDefault(raw)
	p.update(false, func(cfg *FilterConfiguration) { cfg.Sort = order })
}

// SetAvailability toggles one inventory status. Unknown statuses are ignored.
func (p *Pipeline) SetAvailability(status domain.InventoryStatus, on bool) {
	if !status.Valid() {
		return
	}
	p.update(false, func(cfg *FilterConfiguration) {
		if on {
			cfg.Availability[status] = struct{}{}
		} else {
			delete(cfg.Availability, status)
		}
	})
}

// SetBrand toggles one brand.
func (p *Pipeline) SetBrand(brand string, on bool) {
	if brand == "" {
		return
	}
	p.update(false, func(cfg *FilterConfiguration) {
		if on {
			cfg.Brands[brand] = struct{}{}
		} else {
			delete(cfg.Brands, brand)
		}
	})
}

// InputSearch records raw search input. It is applied once input has been idle for the
// search delay; only the latest text is applied.
func (p *Pipeline) InputSearch(text string) {
	if !p.accepting() {
		return
	}
	p.search.Trigger(func() {
		p.update(true, func(cfg *FilterConfiguration) { cfg.Search = text })
	})
}

// InputPriceBounds records raw price input. Both bounds are parsed when the price delay
// elapses; empty or invalid input means no bound.
func (p *Pipeline) InputPriceBounds(minRaw, maxRaw string) {
	if !p.accepting() {
		return
	}
	p.price.Trigger(func() {
		lower, upper := ParsePriceBound(minRaw), ParsePriceBound(maxRaw)
		p.update(false, func(cfg *FilterConfiguration) {
			cfg.PriceMin = lower
			cfg.PriceMax = upper
		})
	})
}

// ClearFilters drops pending input and restores the default configuration.
func (p *Pipeline) ClearFilters() {
	if !p.accepting() {
		return
	}
	p.search.Cancel()
	p.price.Cancel()
	p.update(true, func(cfg *FilterConfiguration) { *cfg = domain.DefaultFilterConfiguration() })
}

// View returns the most recent derived listing.
func (p *Pipeline) View() CatalogView {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.view
}

// Configuration returns a deep copy of the current filters.
func (p *Pipeline) Configuration() FilterConfiguration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg.Clone()
}

// Failed reports whether the pipeline is in the terminal error state.
func (p *Pipeline) Failed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == pipelineFailed
}

// Close cancels pending input. Later calls to mutators are ignored.
func (p *Pipeline) Close() {
	p.search.Close()
	p.price.Close()
	p.mu.Lock()
	if p.state != pipelineFailed {
		p.state = pipelineClosed
	}
	p.mu.Unlock()
}

func (p *Pipeline) accepting() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == pipelineReady
}

func (p *Pipeline) update(share bool, change func(cfg *FilterConfiguration)) {
	p.mu.Lock()
	if p.state != pipelineReady {
		p.mu.Unlock()
		return
	}
	change(&p.cfg)
	p.recomputeLocked(share)
}

// recomputeLocked rebuilds the view and renders it. It is entered with mu held and
// returns with mu released.
func (p *Pipeline) recomputeLocked(share bool) {
	p.view = BuildCatalogView(p.catalog, p.cfg, p.site)
	p.view.ShareURL = ShareURL(p.path, p.cfg)
	p.renderLocked(share)
}

// renderLocked hands the current view to the renderer in order. It is entered with mu
// held and returns with mu released.
func (p *Pipeline) renderLocked(share bool) {
	view := p.view
	ticket := p.renders.ticketLocked()
	p.mu.Unlock()

	p.renders.run(ticket, func() {
		p.renderer.Render(view)
		if share && p.onShareURL != nil {
			p.onShareURL(view.ShareURL)
		}
	})
}
