package catalogsource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html/charset"

	"github.com/futurebuildai/lumber-boss/internal/domain"
	"github.com/futurebuildai/lumber-boss/internal/repositories"
)

const defaultFetchTimeout = 10 * time.Second

// HTTPSource downloads the catalog document, optionally with a bearer token.
type HTTPSource struct {
	url    string
	token  string
	client *http.Client
	format Format
	now    func() time.Time
}

// NewHTTPSource returns a source for url.
func NewHTTPSource(url, token string, timeout time.Duration, format Format, now func() time.Time) (*HTTPSource, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("catalog source: url is required")
	}
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	if now == nil {
		now = time.Now
	}
	return &HTTPSource{
		url:    url,
		token:  strings.TrimSpace(token),
		client: &http.Client{Timeout: timeout},
		format: format,
		now:    now,
	}, nil
}

// Fetch implements repositories.CatalogSource.
func (s *HTTPSource) Fetch(ctx context.Context) (domain.Catalog, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return domain.Catalog{}, fmt.Errorf("catalog source: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json, application/yaml")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return domain.Catalog{}, ctx.Err()
		}
		return domain.Catalog{}, repositories.NewUnavailableError("catalog.http", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return domain.Catalog{}, repositories.NewNotFoundError("catalog.http", s.url)
	case resp.StatusCode >= http.StatusInternalServerError:
		return domain.Catalog{}, repositories.NewUnavailableError("catalog.http", fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return domain.Catalog{}, fmt.Errorf("catalog source: unexpected status %d", resp.StatusCode)
	}

	body := io.LimitReader(resp.Body, maxDocumentBytes)
	// Supplier feeds are not always UTF-8. Only an explicit charset parameter is trusted.
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type")); err == nil && params["charset"] != "" {
		enc, name := charset.Lookup(params["charset"])
		if enc == nil {
			return domain.Catalog{}, fmt.Errorf("catalog source: unsupported charset %q", params["charset"])
		}
		if name != "utf-8" {
			body = enc.NewDecoder().Reader(body)
		}
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return domain.Catalog{}, repositories.NewUnavailableError("catalog.http", err)
	}
	format := s.format
	if ct := resp.Header.Get("Content-Type"); strings.Contains(ct, "yaml") {
		format = FormatYAML
	}
	catalog, err := Decode(data, format)
	if err != nil {
		return domain.Catalog{}, err
	}
	catalog.LoadedAt = s.now().UTC()
	return catalog, nil
}
