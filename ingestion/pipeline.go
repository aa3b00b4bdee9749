package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/protrieve/ai"
	"github.com/poiesic/protrieve/lexical"
	"github.com/poiesic/protrieve/storage"
	"github.com/tmc/langchaingo/textsplitter"
)

const (
	// DefaultPageSize is the number of documents read per page.
	DefaultPageSize = 512

	// DefaultEmbedBatchSize is the number of documents per embedder call.
	DefaultEmbedBatchSize = 16

	// DefaultChunkSize and DefaultChunkOverlap bound the text sent to the
	// embedder for one document piece, in characters.
	DefaultChunkSize    = 8000
	DefaultChunkOverlap = 800
)

// RunStats summarizes one pipeline run.
type RunStats struct {
	Documents int
	Pages     int
	LastID    int64
}

// Pipeline embeds the flat-file corpus and warms the lexical cache.
// Pages are processed in file id order. Within a page, embedding batches run
// concurrently on a worker pool. The checkpoint advances only after a whole
// page has been stored.
type Pipeline struct {
	documents     storage.DocumentRepository
	checkpoints   storage.CheckpointRepository
	embeddingPool *ants.Pool
	embeddingProc processor
	lexical       *lexical.Retriever
	pageSize      int
	batchSize     int
	chunkSize     int
	chunkOverlap  int
	logger        *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets the worker pool size for concurrent processing.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}

		// Release old pool
		if p.embeddingPool != nil {
			p.embeddingPool.Release()
		}

		embeddingPool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		p.embeddingPool = embeddingPool
		return nil
	}
}

// WithPageSize sets how many documents are read per page.
// Default is 512.
func WithPageSize(n int) Option {
	return func(p *Pipeline) error {
		if n < 1 {
			return fmt.Errorf("page size must be positive, got %d", n)
		}
		p.pageSize = n
		return nil
	}
}

// WithBatchSize sets how many documents are sent per embedder call.
// Default is 16.
func WithBatchSize(n int) Option {
	return func(p *Pipeline) error {
		if n < 1 {
			return fmt.Errorf("batch size must be positive, got %d", n)
		}
		p.batchSize = n
		return nil
	}
}

// WithChunking sets the document piece size and overlap in characters.
// A size of zero embeds each document whole.
func WithChunking(size, overlap int) Option {
	return func(p *Pipeline) error {
		if size < 0 || overlap < 0 || (size > 0 && overlap >= size) {
			return fmt.Errorf("invalid chunking: size %d, overlap %d", size, overlap)
		}
		p.chunkSize = size
		p.chunkOverlap = overlap
		return nil
	}
}

// WithLexicalIndex rebuilds the lexical retriever's cache after a run.
func WithLexicalIndex(r *lexical.Retriever) Option {
	return func(p *Pipeline) error {
		p.lexical = r
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// NewPipeline creates a new document pipeline.
func NewPipeline(
	documents storage.DocumentRepository,
	vectors storage.DocumentVectorRepository,
	checkpoints storage.CheckpointRepository,
	provider ai.AIProvider,
	opts ...Option,
) (*Pipeline, error) {
	if documents == nil {
		return nil, ErrDocumentRepositoryRequired
	}
	if vectors == nil {
		return nil, ErrVectorRepositoryRequired
	}
	if checkpoints == nil {
		return nil, ErrCheckpointRepositoryRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}

	// Default pool size
	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}

	embeddingPool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	// Create pipeline with defaults
	p := &Pipeline{
		documents:     documents,
		checkpoints:   checkpoints,
		embeddingPool: embeddingPool,
		pageSize:      DefaultPageSize,
		batchSize:     DefaultEmbedBatchSize,
		chunkSize:     DefaultChunkSize,
		chunkOverlap:  DefaultChunkOverlap,
		logger:        slog.Default(),
	}

	// Apply options (may override defaults)
	for _, opt := range opts {
		if optErr := opt(p); optErr != nil {
			p.Release()
			return nil, optErr
		}
	}
	p.logger = p.logger.With("component", "document-pipeline")

	var splitter textsplitter.TextSplitter
	if p.chunkSize > 0 {
		splitter = textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(p.chunkSize),
			textsplitter.WithChunkOverlap(p.chunkOverlap),
		)
	}

	// Create the processor after options are applied so it gets the final config
	embeddingProc, err := newEmbeddingProcessor(vectors, checkpoints, provider.Embedder(), splitter, p.logger)
	if err != nil {
		p.Release()
		return nil, err
	}
	p.embeddingProc = embeddingProc
	return p, nil
}

// Run embeds every document added since the last checkpoint. When a lexical
// index is configured its cache is rebuilt afterwards.
func (p *Pipeline) Run(ctx context.Context) (RunStats, error) {
	var stats RunStats

	cp, err := p.checkpoints.LoadCheckpoint(ctx, checkpointDocumentEmbeddings)
	if err != nil {
		return stats, fmt.Errorf("load checkpoint: %w", err)
	}
	if cp != nil {
		stats.LastID = cp.LastID
		p.logger.Info("resuming from checkpoint", "last_id", cp.LastID)
	}

	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		page, err := p.documents.FlatFilesAfter(ctx, stats.LastID, p.pageSize)
		if err != nil {
			return stats, fmt.Errorf("read documents: %w", err)
		}
		if len(page) == 0 {
			break
		}

		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			errs []error
		)
		record := func(err error) {
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}
		for start := 0; start < len(page); start += p.batchSize {
			batch := page[start:min(start+p.batchSize, len(page))]
			wg.Add(1)
			if err := p.embeddingPool.Submit(func() {
				defer wg.Done()
				if err := p.embeddingProc.process(ctx, batch); err != nil {
					p.logger.Error("error processing embeddings", "first_id", batch[0].FileID, "err", err)
					record(err)
				}
			}); err != nil {
				wg.Done()
				record(fmt.Errorf("submit batch: %w", err))
			}
		}
		wg.Wait()
		if err := errors.Join(errs...); err != nil {
			return stats, err
		}

		lastID := page[len(page)-1].FileID
		if err := p.embeddingProc.checkpoint(ctx, lastID); err != nil {
			return stats, fmt.Errorf("save checkpoint: %w", err)
		}
		stats.LastID = lastID
		stats.Documents += len(page)
		stats.Pages++
		p.logger.Debug("embedded page", "documents", len(page), "last_id", lastID)
	}

	if p.lexical != nil {
		p.lexical.Invalidate()
		if err := p.lexical.Initialize(ctx); err != nil {
			return stats, fmt.Errorf("build lexical index: %w", err)
		}
	}

	p.logger.Info("document embedding complete", "documents", stats.Documents, "last_id", stats.LastID)
	return stats, nil
}

// Release releases resources including worker pools.
// The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	if p.embeddingPool != nil {
		p.embeddingPool.Release()
	}
}
