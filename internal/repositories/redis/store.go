// Package redis stores key-value pairs in Redis so carts survive restarts and are shared
// across storefront replicas.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/futurebuildai/lumber-boss/internal/repositories"
)

const defaultKeyPrefix = "storefront:"

// Store wraps a go-redis client.
type Store struct {
	client *goredis.Client
	prefix string
}

var _ repositories.KeyValueStore = (*Store)(nil)

// Option customises the store.
type Option func(*Store)

// WithKeyPrefix namespaces every key. Defaults to "storefront:".
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

// NewClient parses a redis:// URL and applies password when the URL carries none.
func NewClient(redisURL, password string) (*goredis.Client, error) {
	opt, err := goredis.ParseURL(strings.TrimSpace(redisURL))
	if err != nil {
		return nil, fmt.Errorf("redis store: invalid url: %w", err)
	}
	if opt.Password == "" && password != "" {
		opt.Password = password
	}
	return goredis.NewClient(opt), nil
}

// NewStore wraps client.
func NewStore(client *goredis.Client, opts ...Option) (*Store, error) {
	if client == nil {
		return nil, errors.New("redis store: client is required")
	}
	s := &Store{client: client, prefix: defaultKeyPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Get returns the value for key.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	value, err := s.client.Get(ctx, s.prefix+key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", repositories.NewNotFoundError("redis.get", key)
	}
	if err != nil {
		return "", wrap("redis.get", err)
	}
	return value, nil
}

// Set stores value without expiry.
func (s *Store) Set(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, s.prefix+key, value, 0).Err(); err != nil {
		return wrap("redis.set", err)
	}
	return nil
}

// Delete removes key.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return wrap("redis.delete", err)
	}
	return nil
}

// Ping checks connectivity for readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.client.Close()
}

func wrap(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return repositories.NewUnavailableError(op, err)
}
