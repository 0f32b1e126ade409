package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	pfirestore "github.com/futurebuildai/lumber-boss/internal/platform/firestore"
	"github.com/futurebuildai/lumber-boss/internal/repositories"
)

// KeyValueStore keeps each key as a document in one collection. Document IDs cannot contain
// slashes, so scoped keys are escaped before use.
type KeyValueStore struct {
	base *pfirestore.BaseRepository[kvDocument]
	now  func() time.Time
}

type kvDocument struct {
	Key       string    `firestore:"key"`
	Value     string    `firestore:"value"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

var _ repositories.KeyValueStore = (*KeyValueStore)(nil)

// NewKeyValueStore constructs a Firestore-backed store over collection.
func NewKeyValueStore(provider *pfirestore.Provider, collection string) (*KeyValueStore, error) {
	if provider == nil {
		return nil, errors.New("firestore kv store requires firestore provider")
	}
	if strings.TrimSpace(collection) == "" {
		return nil, errors.New("firestore kv store requires collection")
	}
	return &KeyValueStore{
		base: pfirestore.NewBaseRepository[kvDocument](provider, collection),
		now:  time.Now,
	}, nil
}

// Get returns the stored value.
func (s *KeyValueStore) Get(ctx context.Context, key string) (string, error) {
	doc, err := s.base.Get(ctx, DocumentID(key))
	if err != nil {
		return "", err
	}
	return doc.Data.Value, nil
}

// Set upserts the value.
func (s *KeyValueStore) Set(ctx context.Context, key, value string) error {
	return s.base.Set(ctx, DocumentID(key), kvDocument{
		Key:       key,
		Value:     value,
		UpdatedAt: s.now().UTC(),
	})
}

// Delete removes the document.
func (s *KeyValueStore) Delete(ctx context.Context, key string) error {
	return s.base.Delete(ctx, DocumentID(key))
}

var docIDEscaper = strings.NewReplacer("%", "%25", "/", "%2F")

// DocumentID maps a store key onto a valid Firestore document ID.
func DocumentID(key string) string {
	return docIDEscaper.Replace(key)
}
