package services

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/futurebuildai/lumber-boss/internal/domain"
	"github.com/futurebuildai/lumber-boss/internal/platform/debounce"
)

type pipelineHarness struct {
	pipeline  *Pipeline
	renderer  *recordingRenderer
	scheduler *debounce.ManualScheduler
	reader    *stubCatalogReader
	shared    []string
}

func newPipelineHarness(t *testing.T, readErr error) *pipelineHarness {
	t.Helper()
	h := &pipelineHarness{
		renderer:  &recordingRenderer{},
		scheduler: debounce.NewManualScheduler(),
		reader:    &stubCatalogReader{catalog: sampleCatalog(), err: readErr},
	}
	pipeline, err := NewPipeline(PipelineDeps{
		Catalog:    h.reader,
		Renderer:   h.renderer,
		Scheduler:  h.scheduler,
		SiteName:   "Lumber Boss",
		OnShareURL: func(u string) { h.shared = append(h.shared, u) },
	})
	if err != nil {
		t.Fatalf("unexpected error constructing pipeline: %v", err)
	}
	h.pipeline = pipeline
	t.Cleanup(pipeline.Close)
	return h
}

func TestNewPipelineRequiresDependencies(t *testing.T) {
	if _, err := NewPipeline(PipelineDeps{Renderer: RendererFunc(func(CatalogView) {})}); err == nil {
		t.Fatalf("expected error without catalog reader")
	}
	if _, err := NewPipeline(PipelineDeps{Catalog: &stubCatalogReader{}}); err == nil {
		t.Fatalf("expected error without renderer")
	}
}

func TestPipelineInitSeedsFromQuery(t *testing.T) {
	h := newPipelineHarness(t, nil)
	err := h.pipeline.Init(context.Background(), url.Values{"category": {"lumber"}, "search": {"boise"}})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if h.renderer.count() != 1 {
		t.Fatalf("expected one render after init, got %d", h.renderer.count())
	}
	view := h.renderer.last()
	if view.Header.Title != "Lumber" || view.Count != 2 {
		t.Fatalf("unexpected seeded view: title %q count %d", view.Header.Title, view.Count)
	}
	if view.ShareURL != "/products?category=lumber&search=boise" {
		t.Fatalf("unexpected share url %q", view.ShareURL)
	}
	if len(h.shared) != 0 {
		t.Fatalf("init must not publish a share url")
	}

	if err := h.pipeline.Init(context.Background(), nil); err != nil {
		t.Fatalf("second init should be ignored, got %v", err)
	}
	if h.reader.calls != 1 {
		t.Fatalf("catalog fetched %d times", h.reader.calls)
	}
}

func TestPipelineImmediateMutators(t *testing.T) {
	h := newPipelineHarness(t, nil)
	if err := h.pipeline.Init(context.Background(), nil); err != nil {
		t.Fatalf("init: %v", err)
	}

	h.pipeline.SetCategory("sheet-goods")
	if got := skus(h.renderer.last().Products); len(got) != 2 {
		t.Fatalf("expected two sheet goods, got %v", got)
	}
	if len(h.shared) != 1 || h.shared[0] != "/products?category=sheet-goods" {
		t.Fatalf("expected share url published, got %v", h.shared)
	}

	h.pipeline.SetSort("price-desc")
	if got := skus(h.renderer.last().Products); got[0] != "PLY-34" {
		t.Fatalf("expected price-desc ordering, got %v", got)
	}
	h.pipeline.SetSort("nonsense")
	if h.pipeline.Configuration().Sort != domain.DefaultSortOrder {
		t.Fatalf("unknown sort should fall back to default")
	}

	h.pipeline.SetCategory("all")
	h.pipeline.SetAvailability(domain.InventoryUnavailable, true)
	if h.renderer.last().Count != 6 {
		t.Fatalf("expected every product once unavailable is selected, got %d", h.renderer.last().Count)
	}
	h.pipeline.SetAvailability("discontinued", true)
	h.pipeline.SetBrand("Trex", true)
	if got := skus(h.renderer.last().Products); len(got) != 1 || got[0] != "TREX-16" {
		t.Fatalf("expected brand filter, got %v", got)
	}
	h.pipeline.SetBrand("Trex", false)
	if h.renderer.last().Count != 6 {
		t.Fatalf("expected brand filter removed")
	}
	if len(h.shared) != 2 {
		t.Fatalf("sort, availability and brand must not publish share urls, got %v", h.shared)
	}
}

func TestPipelineSearchDebounceLastWins(t *testing.T) {
	h := newPipelineHarness(t, nil)
	if err := h.pipeline.Init(context.Background(), nil); err != nil {
		t.Fatalf("init: %v", err)
	}
	renders := h.renderer.count()

	h.pipeline.InputSearch("o")
	h.scheduler.Advance(200 * time.Millisecond)
	h.pipeline.InputSearch("os")
	h.scheduler.Advance(200 * time.Millisecond)
	h.pipeline.InputSearch("osb")
	h.scheduler.Advance(299 * time.Millisecond)
	if h.renderer.count() != renders {
		t.Fatalf("search applied before idle interval elapsed")
	}

	h.scheduler.Advance(time.Millisecond)
	if h.renderer.count() != renders+1 {
		t.Fatalf("expected exactly one render after debounce, got %d", h.renderer.count()-renders)
	}
	if got := h.pipeline.Configuration().Search; got != "osb" {
		t.Fatalf("expected last input applied, got %q", got)
	}
	if h.shared[len(h.shared)-1] != "/products?search=osb" {
		t.Fatalf("expected search share url, got %v", h.shared)
	}
}

func TestPipelinePriceDebounceIndependentOfSearch(t *testing.T) {
	h := newPipelineHarness(t, nil)
	if err := h.pipeline.Init(context.Background(), nil); err != nil {
		t.Fatalf("init: %v", err)
	}

	h.pipeline.InputPriceBounds("10", "")
	h.pipeline.InputSearch("boise")
	h.scheduler.Advance(300 * time.Millisecond)
	cfg := h.pipeline.Configuration()
	if cfg.Search != "boise" || cfg.PriceMin != nil {
		t.Fatalf("expected only search applied at 300ms, got search %q min %v", cfg.Search, cfg.PriceMin)
	}

	h.pipeline.InputPriceBounds("10", "x")
	h.scheduler.Advance(499 * time.Millisecond)
	if h.pipeline.Configuration().PriceMin != nil {
		t.Fatalf("price applied early")
	}
	h.scheduler.Advance(time.Millisecond)
	cfg = h.pipeline.Configuration()
	if cfg.PriceMin == nil || *cfg.PriceMin != 10 || cfg.PriceMax != nil {
		t.Fatalf("unexpected price bounds %v %v", cfg.PriceMin, cfg.PriceMax)
	}
	if got := skus(h.renderer.last().Products); len(got) != 1 || got[0] != "LVL-12" {
		t.Fatalf("expected boise products over $10, got %v", got)
	}
}

func TestPipelineClearFiltersCancelsPendingInput(t *testing.T) {
	h := newPipelineHarness(t, nil)
	if err := h.pipeline.Init(context.Background(), url.Values{"category": {"lumber"}}); err != nil {
		t.Fatalf("init: %v", err)
	}
	h.pipeline.SetBrand("LP", true)
	h.pipeline.InputSearch("stud")
	h.pipeline.InputPriceBounds("1", "2")

	h.pipeline.ClearFilters()
	h.scheduler.Advance(time.Second)

	cfg := h.pipeline.Configuration()
	defaults := domain.DefaultFilterConfiguration()
	if cfg.Category != defaults.Category || cfg.Search != "" || len(cfg.Brands) != 0 || cfg.PriceMin != nil || cfg.PriceMax != nil {
		t.Fatalf("expected defaults after clear, got %+v", cfg)
	}
	if h.scheduler.Pending() != 0 {
		t.Fatalf("expected pending timers cancelled")
	}
	if h.shared[len(h.shared)-1] != "/products" {
		t.Fatalf("expected bare share url after clear, got %v", h.shared)
	}
	if h.renderer.last().Count != 5 {
		t.Fatalf("expected default listing, got %d products", h.renderer.last().Count)
	}
}

func TestPipelineTerminalErrorState(t *testing.T) {
	h := newPipelineHarness(t, errors.New("fetch failed"))
	err := h.pipeline.Init(context.Background(), url.Values{"search": {"osb"}})
	if err == nil {
		t.Fatalf("expected init error")
	}
	if !h.pipeline.Failed() {
		t.Fatalf("expected failed state")
	}
	view := h.renderer.last()
	if view.Error == nil || view.Error.Title != "Error loading products" {
		t.Fatalf("expected error view, got %+v", view)
	}
	renders := h.renderer.count()

	h.pipeline.SetCategory("lumber")
	h.pipeline.SetSort("price-asc")
	h.pipeline.SetBrand("LP", true)
	h.pipeline.SetAvailability(domain.InventoryUnavailable, true)
	h.pipeline.InputSearch("x")
	h.pipeline.InputPriceBounds("1", "2")
	h.pipeline.ClearFilters()
	h.scheduler.Advance(time.Second)

	if h.renderer.count() != renders {
		t.Fatalf("mutators must be ignored in the error state")
	}
	if h.pipeline.View().Error == nil {
		t.Fatalf("error view must persist")
	}
	if h.scheduler.Pending() != 0 {
		t.Fatalf("no timers may be scheduled in the error state")
	}
}

func TestPipelineIgnoresMutatorsBeforeInitAndAfterClose(t *testing.T) {
	h := newPipelineHarness(t, nil)
	h.pipeline.SetCategory("lumber")
	h.pipeline.InputSearch("stud")
	if h.renderer.count() != 0 || h.scheduler.Pending() != 0 {
		t.Fatalf("mutators before init must be ignored")
	}

	if err := h.pipeline.Init(context.Background(), nil); err != nil {
		t.Fatalf("init: %v", err)
	}
	h.pipeline.InputSearch("stud")
	h.pipeline.Close()
	h.scheduler.Advance(time.Second)
	if h.pipeline.Configuration().Search != "" {
		t.Fatalf("pending search must be cancelled by close")
	}
	h.pipeline.SetCategory("lumber")
	if h.pipeline.Configuration().Category != domain.CategoryAll {
		t.Fatalf("mutators after close must be ignored")
	}
}

func TestPipelineRendererMayReadView(t *testing.T) {
	var (
		mu       sync.Mutex
		counts   []int
		pipeline *Pipeline
	)
	renderer := RendererFunc(func(view CatalogView) {
		current := pipeline.View()
		mu.Lock()
		counts = append(counts, current.Count)
		mu.Unlock()
	})
	var err error
	pipeline, err = NewPipeline(PipelineDeps{Catalog: &stubCatalogReader{catalog: sampleCatalog()}, Renderer: renderer})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer pipeline.Close()

	if err := pipeline.Init(context.Background(), nil); err != nil {
		t.Fatalf("init: %v", err)
	}
	pipeline.SetCategory("fasteners")
	mu.Lock()
	defer mu.Unlock()
	if len(counts) != 2 || counts[1] != 1 {
		t.Fatalf("unexpected counts observed by renderer %v", counts)
	}
}

func TestPipelineRealTimersDoNotLeak(t *testing.T) {
	defer goleak.VerifyNone(t)

	rendered := make(chan CatalogView, 4)
	pipeline, err := NewPipeline(PipelineDeps{
		Catalog:        &stubCatalogReader{catalog: sampleCatalog()},
		Renderer:       RendererFunc(func(view CatalogView) { rendered <- view }),
		SearchDebounce: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := pipeline.Init(context.Background(), nil); err != nil {
		t.Fatalf("init: %v", err)
	}
	<-rendered

	pipeline.InputSearch("trex")
	select {
	case view := <-rendered:
		if view.Search != "trex" {
			t.Fatalf("unexpected search %q", view.Search)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("debounced search never applied")
	}
	pipeline.InputSearch("never")
	pipeline.Close()
}
