// Package catalogsource loads the product catalog document from local files, HTTP
// endpoints or Cloud Storage objects.
package catalogsource

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"gopkg.in/yaml.v3"

	"github.com/futurebuildai/lumber-boss/internal/domain"
	"github.com/futurebuildai/lumber-boss/internal/platform/config"
	"github.com/futurebuildai/lumber-boss/internal/repositories"
)

// Format selects the catalog document encoding.
type Format int

const (
	FormatJSON Format = iota
	FormatYAML
)

// maxDocumentBytes bounds remote catalog downloads.
const maxDocumentBytes = 32 << 20

// ErrEmptyCatalog is returned when the document decodes but carries no products.
var ErrEmptyCatalog = errors.New("catalog source: document contains no products")

// FormatFor infers the encoding from the location's extension. Anything that is not
// .yaml or .yml is treated as JSON.
func FormatFor(location string) Format {
	if u, err := url.Parse(location); err == nil && u.Path != "" {
		location = u.Path
	}
	switch strings.ToLower(path.Ext(location)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Decode parses a {products, categories} document.
func Decode(data []byte, format Format) (domain.Catalog, error) {
	var catalog domain.Catalog
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &catalog); err != nil {
			return domain.Catalog{}, fmt.Errorf("catalog source: decode yaml: %w", err)
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		if err := dec.Decode(&catalog); err != nil {
			return domain.Catalog{}, fmt.Errorf("catalog source: decode json: %w", err)
		}
	}
	if len(catalog.Products) == 0 {
		return domain.Catalog{}, ErrEmptyCatalog
	}
	return catalog, nil
}

// Options carries dependencies that only some sources need.
type Options struct {
	StorageClient *storage.Client
	Now           func() time.Time
}

// New picks a source implementation from cfg.Source:
// gs://bucket/object, http(s)://..., or a filesystem path.
func New(ctx context.Context, cfg config.CatalogConfig, opts Options) (repositories.CatalogSource, error) {
	location := strings.TrimSpace(cfg.Source)
	if location == "" {
		return nil, errors.New("catalog source: location is required")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	format := FormatFor(location)

	switch {
	case strings.HasPrefix(location, "gs://"):
		client := opts.StorageClient
		if client == nil {
			var err error
			client, err = storage.NewClient(ctx)
			if err != nil {
				return nil, fmt.Errorf("catalog source: storage client: %w", err)
			}
		}
		return NewGCSSource(client, location, format, now)
	case strings.HasPrefix(location, "http://"), strings.HasPrefix(location, "https://"):
		return NewHTTPSource(location, cfg.AuthToken, cfg.FetchTimeout, format, now)
	default:
		return NewFileSource(location, format, now), nil
	}
}
