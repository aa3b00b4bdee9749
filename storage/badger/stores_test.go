package badger

import (
	"context"
	"math"
	"testing"

	"github.com/poiesic/protrieve/core"
	"github.com/poiesic/protrieve/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStores(t *testing.T) *Stores {
	t.Helper()
	stores, err := NewMemoryStores()
	require.NoError(t, err)
	t.Cleanup(func() { stores.Close() })
	return stores
}

func TestDocumentVectorStore(t *testing.T) {
	stores := newTestStores(t)
	ctx := context.Background()

	err := stores.Documents.PutDocumentVectors(ctx, map[int64][]float32{
		1: {1, 0, 0},
		2: {0.8, 0.6, 0},
		3: {0, 1, 0},
		4: {0, 0, 5},
		5: {0.8, 0.6, 0}, // duplicate of 2
	})
	require.NoError(t, err)

	count, err := stores.Documents.CountDocumentVectors(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, count)

	t.Run("ranks by cosine", func(t *testing.T) {
		matches, err := stores.Documents.FindSimilar(ctx, []float32{10, 0, 0}, 0.5, 10)
		require.NoError(t, err)
		require.Len(t, matches, 3)
		assert.Equal(t, int64(1), matches[0].FileID)
		assert.InDelta(t, 1.0, matches[0].Similarity, 1e-6)
		// Ties resolve by file id.
		assert.Equal(t, int64(2), matches[1].FileID)
		assert.Equal(t, int64(5), matches[2].FileID)
		assert.InDelta(t, 0.8, matches[1].Similarity, 1e-6)
	})

	t.Run("threshold filtering", func(t *testing.T) {
		matches, err := stores.Documents.FindSimilar(ctx, []float32{0, 0, 1}, 0.99, 10)
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, int64(4), matches[0].FileID)
	})

	t.Run("limit results", func(t *testing.T) {
		matches, err := stores.Documents.FindSimilar(ctx, []float32{1, 1, 1}, -1, 2)
		require.NoError(t, err)
		assert.Len(t, matches, 2)
	})

	t.Run("empty query vector", func(t *testing.T) {
		_, err := stores.Documents.FindSimilar(ctx, nil, -1, 10)
		assert.ErrorIs(t, err, storage.ErrInvalidQuery)
	})

	t.Run("dimension mismatch is skipped", func(t *testing.T) {
		matches, err := stores.Documents.FindSimilar(ctx, []float32{1, 0}, -1, 10)
		require.NoError(t, err)
		assert.Empty(t, matches)
	})

	t.Run("rejects non-finite vectors", func(t *testing.T) {
		err := stores.Documents.PutDocumentVectors(ctx, map[int64][]float32{
			9: {float32(math.NaN()), 0, 0},
		})
		assert.ErrorIs(t, err, core.ErrInvalidEmbedding)

		count, err := stores.Documents.CountDocumentVectors(ctx)
		require.NoError(t, err)
		assert.Equal(t, 5, count)
	})
}

func TestEmbeddingStore(t *testing.T) {
	stores := newTestStores(t)
	ctx := context.Background()

	_, err := stores.Embeddings.GetEmbedding(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, stores.Embeddings.PutEmbedding(ctx, "abc", []float32{0.1, 0.2}))
	got, err := stores.Embeddings.GetEmbedding(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2}, got)

	err = stores.Embeddings.PutEmbedding(ctx, "bad", []float32{float32(math.Inf(1))})
	assert.ErrorIs(t, err, core.ErrNonFiniteEmbedding)
	_, err = stores.Embeddings.GetEmbedding(ctx, "bad")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestLexicalStore(t *testing.T) {
	stores := newTestStores(t)
	ctx := context.Background()

	_, err := stores.Lexical.LoadLexicalSnapshot(ctx, "v1")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	first := &core.LexicalSnapshot{
		DocCount: 1, AvgDocLen: 3, DocFreq: map[uint32]int{1: 1},
		FileIDs: []int64{1},
		Vectors: []core.SparseVector{{Indices: []uint32{1}, Values: []float32{1}}},
	}
	require.NoError(t, stores.Lexical.SaveLexicalSnapshot(ctx, "v1", first))

	got, err := stores.Lexical.LoadLexicalSnapshot(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, first, got)

	second := &core.LexicalSnapshot{DocCount: 0, DocFreq: map[uint32]int{}, FileIDs: []int64{}, Vectors: []core.SparseVector{}}
	require.NoError(t, stores.Lexical.SaveLexicalSnapshot(ctx, "v2", second))

	_, err = stores.Lexical.LoadLexicalSnapshot(ctx, "v1")
	assert.ErrorIs(t, err, storage.ErrNotFound, "older fingerprints are dropped")
	got, err = stores.Lexical.LoadLexicalSnapshot(ctx, "v2")
	require.NoError(t, err)
	assert.Equal(t, second, got)
}

func TestCheckpointRepository(t *testing.T) {
	stores := newTestStores(t)
	ctx := context.Background()

	cp, err := stores.Checkpoints.LoadCheckpoint(ctx, "document-embeddings")
	require.NoError(t, err)
	assert.Nil(t, cp)

	require.NoError(t, stores.Checkpoints.SaveCheckpoint(ctx, &core.Checkpoint{ProcessorType: "document-embeddings", LastID: 42}))

	cp, err = stores.Checkpoints.LoadCheckpoint(ctx, "document-embeddings")
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, int64(42), cp.LastID)
	assert.NotZero(t, cp.UpdatedAt)
}
