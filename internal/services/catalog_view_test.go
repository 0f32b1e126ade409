package services

import (
	"testing"

	"github.com/futurebuildai/lumber-boss/internal/domain"
)

func TestBuildPageHeader(t *testing.T) {
	catalog := sampleCatalog()

	all := BuildPageHeader(catalog, domain.CategoryAll, "Lumber Boss")
	if all.Title != "All Products" ||
		all.Subtitle != "Browse our complete catalog of building materials" ||
		all.Breadcrumb != "Products" ||
		all.DocumentTitle != "Products | Lumber Boss" {
		t.Fatalf("unexpected all header %+v", all)
	}

	lumber := BuildPageHeader(catalog, "lumber", "Lumber Boss")
	if lumber.Title != "Lumber" || lumber.Breadcrumb != "Lumber" ||
		lumber.Subtitle != "Dimensional lumber and engineered wood" ||
		lumber.DocumentTitle != "Lumber | Lumber Boss" {
		t.Fatalf("unexpected category header %+v", lumber)
	}

	if unknown := BuildPageHeader(catalog, "roofing", ""); unknown != allProductsHeader(DefaultSiteName) {
		t.Fatalf("unknown category should use all header, got %+v", unknown)
	}
}

func TestBuildCategoryPillsExactlyOneActive(t *testing.T) {
	categories := sampleCatalog().Categories

	for _, active := range []string{domain.CategoryAll, "fasteners", "roofing", ""} {
		pills := BuildCategoryPills(categories, active)
		if len(pills) != len(categories)+1 || pills[0].ID != domain.CategoryAll {
			t.Fatalf("expected all pill followed by categories, got %+v", pills)
		}
		count := 0
		activeID := ""
		for _, pill := range pills {
			if pill.Active {
				count++
				activeID = pill.ID
			}
		}
		if count != 1 {
			t.Fatalf("%q: expected exactly one active pill, got %d", active, count)
		}
		wantID := active
		if active != "fasteners" {
			wantID = domain.CategoryAll
		}
		if activeID != wantID {
			t.Fatalf("%q: expected %q active, got %q", active, wantID, activeID)
		}
	}
}

func TestBuildBrandAndAvailabilityOptions(t *testing.T) {
	brands := BuildBrandOptions(sampleCatalog().Products, domain.NewStringSet("LP"))
	wantBrands := []string{"Boise Cascade", "GRK", "Georgia-Pacific", "LP", "Trex"}
	if len(brands) != len(wantBrands) {
		t.Fatalf("expected %d brands, got %+v", len(wantBrands), brands)
	}
	for i, want := range wantBrands {
		if brands[i].Value != want {
			t.Fatalf("expected brand %q at %d, got %q", want, i, brands[i].Value)
		}
		if brands[i].Selected != (want == "LP") {
			t.Fatalf("unexpected selection for %q", want)
		}
	}

	options := BuildAvailabilityOptions(domain.DefaultAvailability())
	if len(options) != 4 {
		t.Fatalf("expected four availability options, got %d", len(options))
	}
	if options[3].Value != "unavailable" || options[3].Label != "Not Available" || options[3].Selected {
		t.Fatalf("unexpected unavailable option %+v", options[3])
	}
	if !options[0].Selected || options[0].Label != "In Stock" {
		t.Fatalf("unexpected in stock option %+v", options[0])
	}
}

func TestBuildCatalogViewAndErrorView(t *testing.T) {
	cfg := domain.DefaultFilterConfiguration()
	cfg.Category = "decking"
	view := BuildCatalogView(sampleCatalog(), cfg, "Lumber Boss")
	if !view.Empty || view.Count != 0 || view.Error != nil {
		t.Fatalf("expected empty state without error, got %+v", view)
	}
	if view.Header.Title != "Decking" || view.Sort != "name-asc" {
		t.Fatalf("unexpected derived metadata %+v", view.Header)
	}

	failed := ErrorCatalogView(domain.DefaultFilterConfiguration(), "Lumber Boss")
	if failed.Error == nil || failed.Error.Title != "Error loading products" || failed.Error.Message != "Please try refreshing the page" {
		t.Fatalf("unexpected error view %+v", failed.Error)
	}
	if failed.Empty {
		t.Fatalf("error state must be distinct from the empty state")
	}
}
