package badger

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/poiesic/protrieve/core"
	"github.com/poiesic/protrieve/storage"
)

// DocumentVectorStore keeps text embeddings of flat-file documents and
// ranks them by exhaustive cosine scan.
type DocumentVectorStore struct {
	backend *Backend
	logger  *slog.Logger
}

var _ storage.DocumentVectorRepository = (*DocumentVectorStore)(nil)

func NewDocumentVectorStore(backend *Backend) *DocumentVectorStore {
	return &DocumentVectorStore{
		backend: backend,
		logger:  backend.logger.With("store", "document-vectors"),
	}
}

// PutDocumentVectors stores unit-normalized copies of the vectors.
// Vectors with NaN or infinite components are rejected before any write.
func (s *DocumentVectorStore) PutDocumentVectors(ctx context.Context, vectors map[int64][]float32) error {
	for id, v := range vectors {
		if err := core.ValidateEmbedding(v); err != nil {
			return fmt.Errorf("document %d: %w", id, err)
		}
	}
	return s.backend.WriteBatch(func(set func(key, value []byte) error) error {
		for id, v := range vectors {
			if err := set(makeDocVectorKey(id), storage.MarshalVector(core.NormalizeVector(v))); err != nil {
				return err
			}
		}
		return nil
	})
}

// FindSimilar implements storage.DocumentVectorRepository.
// Ties are broken by ascending file id.
func (s *DocumentVectorStore) FindSimilar(ctx context.Context, vector []float32, minSimilarity float32, limit int) ([]storage.DocumentMatch, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("%w: empty query vector", storage.ErrInvalidQuery)
	}
	if limit <= 0 {
		return nil, nil
	}
	query := core.NormalizeVector(vector)

	var results []storage.DocumentMatch
	err := s.backend.scanPrefix(docVectorPrefixKey(), true, func(key, value []byte) error {
		stored, err := storage.UnmarshalVector(value)
		if err != nil {
			return err
		}
		if len(stored) != len(query) {
			s.logger.Warn("skipping document vector with wrong dimension",
				"key", string(key), "dimension", len(stored), "want", len(query))
			return nil
		}

		// Stored vectors are unit length, so the dot product is the cosine.
		similarity := dotProduct(query, stored)
		if similarity < minSimilarity {
			return nil
		}
		id, err := fileIDFromDocVectorKey(key)
		if err != nil {
			return err
		}
		results = append(results, storage.DocumentMatch{FileID: id, Similarity: similarity})
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(results, func(a, b storage.DocumentMatch) int {
		if c := cmp.Compare(b.Similarity, a.Similarity); c != 0 {
			return c
		}
		return cmp.Compare(a.FileID, b.FileID)
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// CountDocumentVectors implements storage.DocumentVectorRepository.
func (s *DocumentVectorStore) CountDocumentVectors(ctx context.Context) (int, error) {
	count := 0
	err := s.backend.scanPrefix(docVectorPrefixKey(), false, func(key, value []byte) error {
		count++
		return nil
	})
	return count, err
}

func dotProduct(a, b []float32) float32 {
	var sum float32
	minLen := min(len(a), len(b))
	for i := 0; i < minLen; i++ {
		sum += a[i] * b[i]
	}
	return sum
}
