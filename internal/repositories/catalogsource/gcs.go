package catalogsource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"cloud.google.com/go/storage"

	"github.com/futurebuildai/lumber-boss/internal/domain"
	"github.com/futurebuildai/lumber-boss/internal/repositories"
)

// GCSSource reads the catalog document from a Cloud Storage object.
type GCSSource struct {
	client *storage.Client
	bucket string
	object string
	format Format
	now    func() time.Time
}

// ParseGCSURI splits gs://bucket/path/to/object.
func ParseGCSURI(uri string) (bucket, object string, err error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(uri), "gs://")
	if !ok {
		return "", "", fmt.Errorf("catalog source: %q is not a gs:// uri", uri)
	}
	bucket, object, _ = strings.Cut(rest, "/")
	if bucket == "" || strings.Trim(object, "/") == "" {
		return "", "", fmt.Errorf("catalog source: %q must name a bucket and object", uri)
	}
	return bucket, object, nil
}

// NewGCSSource returns a source for the gs:// uri.
func NewGCSSource(client *storage.Client, uri string, format Format, now func() time.Time) (*GCSSource, error) {
	if client == nil {
		return nil, errors.New("catalog source: storage client is required")
	}
	bucket, object, err := ParseGCSURI(uri)
	if err != nil {
		return nil, err
	}
	if now == nil {
		now = time.Now
	}
	return &GCSSource{client: client, bucket: bucket, object: object, format: format, now: now}, nil
}

// Fetch implements repositories.CatalogSource.
func (s *GCSSource) Fetch(ctx context.Context) (domain.Catalog, error) {
	reader, err := s.client.Bucket(s.bucket).Object(s.object).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
		return domain.Catalog{}, repositories.NewNotFoundError("catalog.gcs", s.bucket+"/"+s.object)
	}
	if err != nil {
		return domain.Catalog{}, repositories.NewUnavailableError("catalog.gcs", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(io.LimitReader(reader, maxDocumentBytes))
	if err != nil {
		return domain.Catalog{}, repositories.NewUnavailableError("catalog.gcs", err)
	}
	catalog, err := Decode(data, s.format)
	if err != nil {
		return domain.Catalog{}, err
	}
	catalog.LoadedAt = s.now().UTC()
	return catalog, nil
}
