// Package file persists key-value pairs as individual files under a directory.
package file

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/futurebuildai/lumber-boss/internal/repositories"
)

// Store writes each key to <dir>/<hex(key)>. Writes go through a temp file and rename so
// a crash never leaves a half-written value behind.
type Store struct {
	dir string
	mu  sync.RWMutex
}

var _ repositories.KeyValueStore = (*Store)(nil)

// NewStore creates dir when needed.
func NewStore(dir string) (*Store, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("file store: directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("file store: create %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Get reads the value for key.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return "", repositories.NewNotFoundError("file.get", key)
	}
	if err != nil {
		return "", repositories.NewUnavailableError("file.get", err)
	}
	return string(data), nil
}

// Set writes value atomically.
func (s *Store) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return repositories.NewUnavailableError("file.set", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(value); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return repositories.NewUnavailableError("file.set", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return repositories.NewUnavailableError("file.set", err)
	}
	if err := os.Rename(tmpName, s.path(key)); err != nil {
		os.Remove(tmpName)
		return repositories.NewUnavailableError("file.set", err)
	}
	return nil
}

// Delete removes key. Missing keys are ignored.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return repositories.NewUnavailableError("file.delete", err)
	}
	return nil
}

// Ping verifies the directory is still writable.
func (s *Store) Ping(context.Context) error {
	info, err := os.Stat(s.dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("file store: %s is not a directory", s.dir)
	}
	return nil
}

// Keys are hex encoded so scoped keys containing slashes stay flat and filesystem safe.
func (s *Store) path(key string) string {
	return filepath.Join(s.dir, hex.EncodeToString([]byte(key)))
}
