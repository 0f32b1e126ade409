package repositories

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

type mapStore map[string]string

func (m mapStore) Get(_ context.Context, key string) (string, error) {
	value, ok := m[key]
	if !ok {
		return "", NewNotFoundError("map.get", key)
	}
	return value, nil
}

func (m mapStore) Set(_ context.Context, key, value string) error {
	m[key] = value
	return nil
}

func (m mapStore) Delete(_ context.Context, key string) error {
	delete(m, key)
	return nil
}

func TestScopedPrefixesKeys(t *testing.T) {
	ctx := context.Background()
	inner := mapStore{}
	a := Scoped(inner, "carts/visitor-a")
	b := Scoped(inner, "carts/visitor-b/")

	if err := a.Set(ctx, "lumberBossCart", "[1]"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, ok := inner["carts/visitor-a/lumberBossCart"]; !ok {
		t.Fatalf("expected prefixed key, got %v", inner)
	}
	if _, err := b.Get(ctx, "lumberBossCart"); !IsNotFound(err) {
		t.Fatalf("expected isolation between scopes, got %v", err)
	}
	if err := a.Delete(ctx, "lumberBossCart"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(inner) != 0 {
		t.Fatalf("expected empty store, got %v", inner)
	}

	if Scoped(inner, " ") == nil {
		t.Fatal("expected passthrough store for empty scope")
	}
}

func TestErrorClassifiersUnwrap(t *testing.T) {
	err := fmt.Errorf("loading cart: %w", NewNotFoundError("redis.get", "k"))
	if !IsNotFound(err) {
		t.Fatal("expected wrapped not found")
	}
	if IsUnavailable(err) {
		t.Fatal("not found should not be unavailable")
	}
	if !IsUnavailable(NewUnavailableError("redis.set", errors.New("dial tcp"))) {
		t.Fatal("expected unavailable")
	}
	if NewUnavailableError("x", nil) != nil {
		t.Fatal("expected nil for nil error")
	}
}
