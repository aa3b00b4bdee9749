package badger

import (
	"context"
	"errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/protrieve/core"
	"github.com/poiesic/protrieve/storage"
)

// EmbeddingStore is a local storage.EmbeddingCache.
type EmbeddingStore struct {
	backend *Backend
}

var _ storage.EmbeddingCache = (*EmbeddingStore)(nil)

func NewEmbeddingStore(backend *Backend) *EmbeddingStore {
	return &EmbeddingStore{backend: backend}
}

func (s *EmbeddingStore) GetEmbedding(ctx context.Context, key string) ([]float32, error) {
	value, err := s.backend.get(makeSeqEmbeddingKey(key))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return storage.UnmarshalVector(value)
}

func (s *EmbeddingStore) PutEmbedding(ctx context.Context, key string, vector []float32) error {
	if err := core.ValidateEmbedding(vector); err != nil {
		return err
	}
	return s.backend.set(makeSeqEmbeddingKey(key), storage.MarshalVector(vector))
}
