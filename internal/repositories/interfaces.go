package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/futurebuildai/lumber-boss/internal/domain"
)

// KeyValueStore is the durable string store backing carts and visitor preferences.
// Get returns a RepositoryError with IsNotFound when the key is absent.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// CatalogSource loads the full product catalog.
type CatalogSource interface {
	Fetch(ctx context.Context) (domain.Catalog, error)
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// HealthRepository exposes status of downstream dependencies for readiness checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// StoreError is the RepositoryError produced by the non-Firestore stores.
type StoreError struct {
	Op          string
	Err         error
	NotFound    bool
	Conflict    bool
	Unavailable bool
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Err.Error()
}

// Unwrap exposes the underlying error.
func (e *StoreError) Unwrap() error { return e.Err }

// IsNotFound reports whether the key or document is missing.
func (e *StoreError) IsNotFound() bool { return e != nil && e.NotFound }

// IsConflict reports whether the write conflicted.
func (e *StoreError) IsConflict() bool { return e != nil && e.Conflict }

// IsUnavailable reports whether the backend is temporarily unreachable.
func (e *StoreError) IsUnavailable() bool { return e != nil && e.Unavailable }

// NewNotFoundError returns a not-found StoreError for key.
func NewNotFoundError(op, key string) error {
	return &StoreError{Op: op, Err: fmt.Errorf("key %q not found", key), NotFound: true}
}

// NewUnavailableError wraps err as a transient failure.
func NewUnavailableError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err, Unavailable: true}
}

// IsNotFound reports whether err carries not-found semantics.
func IsNotFound(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

// IsUnavailable reports whether err carries transient-outage semantics.
func IsUnavailable(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsUnavailable()
}

// Scoped prefixes every key with scope and a slash, isolating one visitor's data inside
// a shared store. An empty scope returns store unchanged.
func Scoped(store KeyValueStore, scope string) KeyValueStore {
	scope = strings.Trim(strings.TrimSpace(scope), "/")
	if scope == "" || store == nil {
		return store
	}
	return scopedStore{inner: store, prefix: scope + "/"}
}

type scopedStore struct {
	inner  KeyValueStore
	prefix string
}

func (s scopedStore) Get(ctx context.Context, key string) (string, error) {
	return s.inner.Get(ctx, s.prefix+key)
}

func (s scopedStore) Set(ctx context.Context, key, value string) error {
	return s.inner.Set(ctx, s.prefix+key, value)
}

func (s scopedStore) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, s.prefix+key)
}
