package reindex

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/poiesic/protrieve/ai"
	"github.com/poiesic/protrieve/core"
	"github.com/poiesic/protrieve/embed"
	"github.com/poiesic/protrieve/ingestion"
)

// SequenceEmbedder embeds protein sequences. *embed.Generator satisfies it.
type SequenceEmbedder interface {
	Embed(ctx context.Context, sequences map[string]string, mode embed.Mode) (*embed.Result, error)
	Dimension() int
}

// BatchProcessor embeds batches of FASTA records per protein.
type BatchProcessor struct {
	embedder       SequenceEmbedder
	maxRetries     int
	retryBaseDelay time.Duration
}

// NewBatchProcessor creates a new batch processor.
// maxRetries: maximum number of attempts for one batch
// retryBaseDelay: base delay for exponential backoff
func NewBatchProcessor(embedder SequenceEmbedder, maxRetries int, retryBaseDelay time.Duration) *BatchProcessor {
	return &BatchProcessor{
		embedder:       embedder,
		maxRetries:     maxRetries,
		retryBaseDelay: retryBaseDelay,
	}
}

// Process returns one unit vector per record, in record order.
// Records are keyed by position so repeated accessions stay distinct.
func (bp *BatchProcessor) Process(ctx context.Context, records []ingestion.FASTARecord) ([][]float32, error) {
	if len(records) == 0 {
		return nil, nil
	}

	sequences := make(map[string]string, len(records))
	for i, rec := range records {
		sequences[strconv.Itoa(i)] = rec.Residues
	}

	var res *embed.Result
	err := RetryWithBackoff(ctx, func() error {
		var err error
		res, err = bp.embedder.Embed(ctx, sequences, embed.PerProtein)
		if err != nil && !transient(err) {
			return Permanent(err)
		}
		return err
	}, bp.maxRetries, bp.retryBaseDelay)
	if err != nil {
		return nil, fmt.Errorf("embed batch of %d sequences: %w", len(records), err)
	}

	vectors := make([][]float32, len(records))
	for i := range records {
		e, err := res.Vector(strconv.Itoa(i))
		if err != nil {
			return nil, fmt.Errorf("sequence %s: %w", records[i].ID(), err)
		}
		if len(e.Values) != bp.embedder.Dimension() {
			return nil, fmt.Errorf("sequence %s: %w: got %d values, want %d",
				records[i].ID(), ai.ErrShapeMismatch, len(e.Values), bp.embedder.Dimension())
		}
		vectors[i] = core.NormalizeVector(e.Values)
	}
	return vectors, nil
}

// transient reports whether a failed embedding pass may succeed when
// repeated. Input and contract errors never do.
func transient(err error) bool {
	var missing *embed.MissingEmbeddingError
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, core.ErrInvalidSequence), errors.Is(err, core.ErrEmptySequence):
		return false
	case errors.Is(err, core.ErrInvalidEmbedding), errors.Is(err, ai.ErrShapeMismatch):
		return false
	case errors.Is(err, embed.ErrUnsplittable), errors.As(err, &missing):
		return false
	}
	return true
}
