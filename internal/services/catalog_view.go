package services

import "github.com/futurebuildai/lumber-boss/internal/domain"

// DefaultSiteName is appended to document titles.
const DefaultSiteName = "Lumber Boss"

const (
	allProductsTitle      = "All Products"
	allProductsSubtitle   = "Browse our complete catalog of building materials"
	allProductsBreadcrumb = "Products"
	allProductsDocTitle   = "Products"
	allCategoriesLabel    = "All"

	catalogErrorTitle   = "Error loading products"
	catalogErrorMessage = "Please try refreshing the page"
)

// PageHeader is the listing header derived from the selected category.
type PageHeader struct {
	Title         string `json:"title"`
	Subtitle      string `json:"subtitle"`
	SubtitleHTML  string `json:"subtitleHtml,omitempty"`
	Breadcrumb    string `json:"breadcrumb"`
	DocumentTitle string `json:"documentTitle"`
}

// CategoryPill is one entry of the category selector.
type CategoryPill struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Active bool   `json:"active"`
}

// FacetOption is a selectable brand or availability checkbox.
type FacetOption struct {
	Value    string `json:"value"`
	Label    string `json:"label"`
	Selected bool   `json:"selected"`
}

// ViewError marks the terminal state entered when the catalog could not be loaded.
type ViewError struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

// CatalogView is everything a presentation layer needs to draw the listing.
type CatalogView struct {
	Products     []Product      `json:"products"`
	Count        int            `json:"count"`
	Empty        bool           `json:"empty"`
	Header       PageHeader     `json:"header"`
	Categories   []CategoryPill `json:"categories"`
	Brands       []FacetOption  `json:"brands"`
	Availability []FacetOption  `json:"availability"`
	Search       string         `json:"search"`
	Sort         string         `json:"sort"`
	PriceMin     *float64       `json:"priceMin,omitempty"`
	PriceMax     *float64       `json:"priceMax,omitempty"`
	ShareURL     string         `json:"shareUrl,omitempty"`
	Error        *ViewError     `json:"error,omitempty"`
}

// BuildCatalogView filters the catalog and derives all display metadata for cfg.
func BuildCatalogView(catalog Catalog, cfg FilterConfiguration, site string) CatalogView {
	products := ApplyFilters(catalog.Products, cfg)
	return CatalogView{
		Products:     products,
		Count:        len(products),
		Empty:        len(products) == 0,
		Header:       BuildPageHeader(catalog, cfg.Category, site),
		Categories:   BuildCategoryPills(catalog.Categories, cfg.Category),
		Brands:       BuildBrandOptions(catalog.Products, cfg.Brands),
		Availability: BuildAvailabilityOptions(cfg.Availability),
		Search:       cfg.Search,
		Sort:         sortString(cfg.Sort),
		PriceMin:     cfg.PriceMin,
		PriceMax:     cfg.PriceMax,
	}
}

// ErrorCatalogView is the view rendered when the catalog fetch failed.
func ErrorCatalogView(cfg FilterConfiguration, site string) CatalogView {
	return CatalogView{
		Products:     []Product{},
		Header:       allProductsHeader(site),
		Categories:   []CategoryPill{},
		Brands:       []FacetOption{},
		Availability: BuildAvailabilityOptions(cfg.Availability),
		Search:       cfg.Search,
		Sort:         sortString(cfg.Sort),
		Error:        &ViewError{Title: catalogErrorTitle, Message: catalogErrorMessage},
	}
}

// BuildPageHeader derives the header from the category alone. Unknown ids get the
// all-products header.
func BuildPageHeader(catalog Catalog, categoryID, site string) PageHeader {
	if categoryID != domain.CategoryAll {
		if category, ok := catalog.FindCategory(categoryID); ok {
			return PageHeader{
				Title:         category.Name,
				Subtitle:      category.Description,
				SubtitleHTML:  category.DescriptionHTML,
				Breadcrumb:    category.Name,
				DocumentTitle: documentTitle(category.Name, site),
			}
		}
	}
	return allProductsHeader(site)
}

func allProductsHeader(site string) PageHeader {
	return PageHeader{
		Title:         allProductsTitle,
		Subtitle:      allProductsSubtitle,
		Breadcrumb:    allProductsBreadcrumb,
		DocumentTitle: documentTitle(allProductsDocTitle, site),
	}
}

func documentTitle(title, site string) string {
	if site == "" {
		site = DefaultSiteName
	}
	return title + " | " + site
}

// BuildCategoryPills returns the "all" pill followed by one pill per category. Exactly
// one pill is active; "all" when activeID matches no category.
func BuildCategoryPills(categories []Category, activeID string) []CategoryPill {
	pills := make([]CategoryPill, 0, len(categories)+1)
	pills = append(pills, CategoryPill{ID: domain.CategoryAll, Label: allCategoriesLabel})
	matched := false
	for _, category := range categories {
		active := !matched && category.ID == activeID && activeID != domain.CategoryAll
		if active {
			matched = true
		}
		pills = append(pills, CategoryPill{ID: category.ID, Label: category.Name, Active: active})
	}
	pills[0].Active = !matched
	return pills
}

// BuildBrandOptions lists every distinct brand in the catalog alphabetically.
func BuildBrandOptions(products []Product, selected domain.StringSet) []FacetOption {
	brands := domain.StringSet{}
	for _, product := range products {
		if product.Brand != "" {
			brands[product.Brand] = struct{}{}
		}
	}
	names := brands.Sorted()
	options := make([]FacetOption, 0, len(names))
	for _, name := range names {
		options = append(options, FacetOption{Value: name, Label: name, Selected: selected.Has(name)})
	}
	return options
}

// BuildAvailabilityOptions lists the four inventory statuses in display order.
func BuildAvailabilityOptions(selected domain.StatusSet) []FacetOption {
	statuses := domain.InventoryStatuses()
	options := make([]FacetOption, 0, len(statuses))
	for _, status := range statuses {
		options = append(options, FacetOption{
			Value:    string(status),
			Label:    status.Label(),
			Selected: selected.Has(status),
		})
	}
	return options
}

func sortString(order domain.SortOrder) string {
	if !order.Valid() {
		order = domain.DefaultSortOrder
	}
	return order.String()
}
