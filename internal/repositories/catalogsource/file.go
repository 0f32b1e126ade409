package catalogsource

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/futurebuildai/lumber-boss/internal/domain"
	"github.com/futurebuildai/lumber-boss/internal/repositories"
)

// FileSource reads the catalog from disk on every fetch.
type FileSource struct {
	path   string
	format Format
	now    func() time.Time
}

// NewFileSource returns a source for path.
func NewFileSource(path string, format Format, now func() time.Time) *FileSource {
	if now == nil {
		now = time.Now
	}
	return &FileSource{path: path, format: format, now: now}
}

// Fetch implements repositories.CatalogSource.
func (s *FileSource) Fetch(ctx context.Context) (domain.Catalog, error) {
	if err := ctx.Err(); err != nil {
		return domain.Catalog{}, err
	}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return domain.Catalog{}, repositories.NewNotFoundError("catalog.file", s.path)
	}
	if err != nil {
		return domain.Catalog{}, fmt.Errorf("catalog source: read %s: %w", s.path, err)
	}
	catalog, err := Decode(data, s.format)
	if err != nil {
		return domain.Catalog{}, err
	}
	catalog.LoadedAt = s.now().UTC()
	return catalog, nil
}
