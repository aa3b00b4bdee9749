package reindex

import (
	"context"
	"io"

	"github.com/poiesic/protrieve/ingestion"
)

const (
	// DefaultBatchSize is the default number of records per embedding batch
	DefaultBatchSize = 100
)

// RecordIterator streams FASTA records in batches.
type RecordIterator struct {
	batchSize int
}

// NewRecordIterator creates a new record iterator.
// batchSize: number of records per batch (defaults when <= 0)
func NewRecordIterator(batchSize int) *RecordIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &RecordIterator{batchSize: batchSize}
}

// ForEach reads r and calls fn for each batch of records, in file order.
// Iteration stops on the first error from fn. Context cancellation is checked
// between batches.
func (it *RecordIterator) ForEach(ctx context.Context, r io.Reader, fn func([]ingestion.FASTARecord) error) error {
	batch := make([]ingestion.FASTARecord, 0, it.batchSize)
	emit := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(batch); err != nil {
			return err
		}
		batch = make([]ingestion.FASTARecord, 0, it.batchSize)
		return nil
	}

	err := ingestion.ReadFASTA(ctx, r, func(rec ingestion.FASTARecord) error {
		batch = append(batch, rec)
		if len(batch) >= it.batchSize {
			return emit()
		}
		return nil
	})
	if err != nil {
		return err
	}
	return emit()
}
