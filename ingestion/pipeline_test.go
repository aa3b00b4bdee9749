package ingestion

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/poiesic/protrieve/ai/mock"
	"github.com/poiesic/protrieve/core"
	"github.com/poiesic/protrieve/lexical"
	"github.com/poiesic/protrieve/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingEmbedder records every text it embeds.
type countingEmbedder struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (e *countingEmbedder) embedTexts(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	e.texts = append(e.texts, texts...)
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = mock.DeterministicVector(text, 16)
	}
	return out, nil
}

func (e *countingEmbedder) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.texts)
}

func mockEmbedderFor(e *countingEmbedder) *mock.MockEmbedder {
	m := mock.NewMockEmbedder()
	m.EmbedTextsFunc = e.embedTexts
	return m
}

func newMemoryStores(t *testing.T) *badger.Stores {
	t.Helper()
	stores, err := badger.NewMemoryStores()
	require.NoError(t, err)
	t.Cleanup(func() { stores.Close() })
	return stores
}

func TestNewPipeline(t *testing.T) {
	store := openStore(t)
	stores := newMemoryStores(t)
	provider := mock.NewMockProvider()

	t.Run("valid configuration", func(t *testing.T) {
		p, err := NewPipeline(store, stores.Documents, stores.Checkpoints, provider, WithPoolSize(2))
		require.NoError(t, err)
		defer p.Release()
		assert.NotNil(t, p)
	})

	t.Run("missing dependencies", func(t *testing.T) {
		_, err := NewPipeline(nil, stores.Documents, stores.Checkpoints, provider)
		assert.Equal(t, ErrDocumentRepositoryRequired, err)
		_, err = NewPipeline(store, nil, stores.Checkpoints, provider)
		assert.Equal(t, ErrVectorRepositoryRequired, err)
		_, err = NewPipeline(store, stores.Documents, nil, provider)
		assert.Equal(t, ErrCheckpointRepositoryRequired, err)
		_, err = NewPipeline(store, stores.Documents, stores.Checkpoints, nil)
		assert.Equal(t, ErrAIProviderRequired, err)
	})

	t.Run("invalid options", func(t *testing.T) {
		_, err := NewPipeline(store, stores.Documents, stores.Checkpoints, provider, WithChunking(100, 100))
		assert.Error(t, err)
		_, err = NewPipeline(store, stores.Documents, stores.Checkpoints, provider, WithBatchSize(0))
		assert.Error(t, err)
		_, err = NewPipeline(store, stores.Documents, stores.Checkpoints, provider, WithPageSize(0))
		assert.Error(t, err)
	})
}

func TestPipelineRunIsIncremental(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	stores := newMemoryStores(t)

	_, err := NewLoader(nil, nil, store).LoadFlatFiles(ctx, strings.NewReader(testFlatFiles))
	require.NoError(t, err)

	embedder := &countingEmbedder{}
	provider := mock.NewMockProviderWithEmbedder(mockEmbedderFor(embedder))
	p, err := NewPipeline(store, stores.Documents, stores.Checkpoints, provider,
		WithPoolSize(2), WithPageSize(2), WithBatchSize(1), WithChunking(0, 0))
	require.NoError(t, err)
	defer p.Release()

	stats, err := p.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Documents)
	assert.Equal(t, 2, stats.Pages)
	assert.Equal(t, 3, embedder.count())

	n, err := stores.Documents.CountDocumentVectors(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	cp, err := stores.Checkpoints.LoadCheckpoint(ctx, checkpointDocumentEmbeddings)
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, stats.LastID, cp.LastID)

	// Nothing new: no embedder calls.
	stats, err = p.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Documents)
	assert.Equal(t, 3, embedder.count())

	_, err = store.AddFlatFiles(ctx, core.FlatFile{Content: "ID   NEW_HUMAN\nAC   Q11111;\nDE   RecName: Full=Novel kinase;"})
	require.NoError(t, err)
	stats, err = p.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Documents)
	assert.Equal(t, 4, embedder.count())
}

func TestPipelineChunksLongDocuments(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	stores := newMemoryStores(t)

	long := "ID   LONG_HUMAN\nAC   Q22222;\n" + strings.Repeat("CC   -!- FUNCTION: binds heme and transports oxygen.\n", 40)
	_, err := store.AddFlatFiles(ctx, core.FlatFile{Content: long})
	require.NoError(t, err)

	embedder := &countingEmbedder{}
	provider := mock.NewMockProviderWithEmbedder(mockEmbedderFor(embedder))
	p, err := NewPipeline(store, stores.Documents, stores.Checkpoints, provider, WithChunking(200, 20))
	require.NoError(t, err)
	defer p.Release()

	stats, err := p.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Documents)
	assert.Greater(t, embedder.count(), 1)

	n, err := stores.Documents.CountDocumentVectors(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPipelineFailureKeepsCheckpoint(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	stores := newMemoryStores(t)

	_, err := NewLoader(nil, nil, store).LoadFlatFiles(ctx, strings.NewReader(testFlatFiles))
	require.NoError(t, err)

	boom := errors.New("embedding service unavailable")
	embedder := &countingEmbedder{err: boom}
	provider := mock.NewMockProviderWithEmbedder(mockEmbedderFor(embedder))
	p, err := NewPipeline(store, stores.Documents, stores.Checkpoints, provider)
	require.NoError(t, err)
	defer p.Release()

	_, err = p.Run(ctx)
	assert.ErrorIs(t, err, boom)

	cp, err := stores.Checkpoints.LoadCheckpoint(ctx, checkpointDocumentEmbeddings)
	require.NoError(t, err)
	assert.Nil(t, cp)
}

func TestPipelineBuildsLexicalCache(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	stores := newMemoryStores(t)

	_, err := NewLoader(nil, nil, store).LoadFlatFiles(ctx, strings.NewReader(testFlatFiles))
	require.NoError(t, err)

	lex, err := lexical.NewRetriever(store, lexical.WithCache(stores.Lexical))
	require.NoError(t, err)

	provider := mock.NewMockProviderWithEmbedder(mockEmbedderFor(&countingEmbedder{}))
	p, err := NewPipeline(store, stores.Documents, stores.Checkpoints, provider, WithLexicalIndex(lex))
	require.NoError(t, err)
	defer p.Release()

	_, err = p.Run(ctx)
	require.NoError(t, err)

	fp := lex.Fingerprint()
	require.NotEmpty(t, fp)
	snap, err := stores.Lexical.LoadLexicalSnapshot(ctx, fp)
	require.NoError(t, err)
	assert.Equal(t, 3, snap.DocCount)

	docs, err := lex.Retrieve(ctx, "oxygen transport", 5)
	require.NoError(t, err)
	require.NotEmpty(t, docs)
	assert.Equal(t, "P69905", docs[0].ID)
}
