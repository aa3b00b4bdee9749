// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package reindex

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/poiesic/protrieve/ann"
	"github.com/poiesic/protrieve/core"
	"github.com/poiesic/protrieve/ingestion"
	"github.com/poiesic/protrieve/storage"
)

// Config holds configuration for an index rebuild.
type Config struct {
	// BatchSize is the number of records embedded per generator call
	BatchSize int

	// ReportInterval is how often to report progress (number of records)
	ReportInterval int

	// MaxRetries is the maximum number of attempts for one batch
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration

	// Trees, LeafSize and Seed shape the ANN forest.
	Trees    int
	LeafSize int
	Seed     uint64
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      DefaultBatchSize,
		ReportInterval: 1000,
		MaxRetries:     3,
		RetryDelay:     1 * time.Second,
		Trees:          ann.DefaultTrees,
		LeafSize:       ann.DefaultLeafSize,
		Seed:           1,
	}
}

// VectorSink receives the rebuilt vectors keyed by slot, alongside the local
// index file. *milvus.Index satisfies it.
type VectorSink interface {
	Dimension() int
	Recreate(ctx context.Context) error
	Insert(ctx context.Context, slots []int64, vectors [][]float32) error
	Flush(ctx context.Context) error
}

// Summary describes a completed rebuild.
type Summary struct {
	Sequences int
	Skipped   int
	Dimension int
	Path      string
	Elapsed   time.Duration

	// Index is the rebuilt index, ready to be swapped into a live handle.
	Index *ann.Index
}

// Builder orchestrates an offline rebuild of the sequence index.
type Builder struct {
	embedder  SequenceEmbedder
	metadata  storage.MetadataRepository
	config    *Config
	progress  io.Writer
	sink      VectorSink
	processor *BatchProcessor
	iterator  *RecordIterator
	logger    *slog.Logger
}

// Option configures a Builder.
type Option func(*Builder)

// WithSink mirrors the rebuilt vectors into an external vector store.
func WithSink(sink VectorSink) Option {
	return func(b *Builder) {
		b.sink = sink
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(b *Builder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewBuilder creates a new index builder.
// progress: where to write progress output (typically os.Stderr, or nil)
func NewBuilder(embedder SequenceEmbedder, metadata storage.MetadataRepository, config *Config, progress io.Writer, opts ...Option) (*Builder, error) {
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if metadata == nil {
		return nil, ErrMetadataRepositoryRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if progress == nil {
		progress = io.Discard
	}

	b := &Builder{
		embedder:  embedder,
		metadata:  metadata,
		config:    config,
		progress:  progress,
		processor: NewBatchProcessor(embedder, config.MaxRetries, config.RetryDelay),
		iterator:  NewRecordIterator(config.BatchSize),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With("component", "index-builder")
	return b, nil
}

// Run indexes every valid record of the FASTA stream r and writes the index
// to path. total is the expected record count for progress reporting, or 0.
//
// The index file and the slot table are replaced together: the file is
// written inside the slot table transaction, so a failed write leaves the
// previous slot table in place.
func (b *Builder) Run(ctx context.Context, r io.Reader, total int, path string) (*Summary, error) {
	dim := b.embedder.Dimension()
	if b.sink != nil && b.sink.Dimension() != dim {
		return nil, fmt.Errorf("%w: sink has %d, embedder has %d", ann.ErrDimensionMismatch, b.sink.Dimension(), dim)
	}

	forest, err := ann.NewBuilder(dim,
		ann.WithTrees(b.config.Trees),
		ann.WithLeafSize(b.config.LeafSize),
		ann.WithSeed(b.config.Seed))
	if err != nil {
		return nil, err
	}
	if b.sink != nil {
		if err := b.sink.Recreate(ctx); err != nil {
			return nil, fmt.Errorf("recreate vector sink: %w", err)
		}
	}

	if total > 0 {
		fmt.Fprintf(b.progress, "Starting index rebuild of %d sequences (batch size: %d)\n", total, b.config.BatchSize)
	} else {
		fmt.Fprintf(b.progress, "Starting index rebuild (batch size: %d)\n", b.config.BatchSize)
	}
	tracker := NewProgressTracker(b.progress, total, b.config.ReportInterval)
	tracker.Start()

	var (
		ids     []string
		skipped int
	)
	err = b.iterator.ForEach(ctx, r, func(batch []ingestion.FASTARecord) error {
		valid := make([]ingestion.FASTARecord, 0, len(batch))
		for _, rec := range batch {
			if err := core.ValidateSequence(&core.Sequence{ID: rec.ID(), Residues: rec.Residues}); err != nil {
				skipped++
				b.logger.Warn("skipping invalid sequence", "header", rec.Header, "err", err)
				continue
			}
			valid = append(valid, rec)
		}

		vectors, err := b.processor.Process(ctx, valid)
		if err != nil {
			return fmt.Errorf("failed to process batch: %w", err)
		}

		slots := make([]int64, len(vectors))
		for i, v := range vectors {
			slot, err := forest.Add(v)
			if err != nil {
				return fmt.Errorf("sequence %s: %w", valid[i].ID(), err)
			}
			slots[i] = int64(slot)
			ids = append(ids, valid[i].ID())
		}
		if b.sink != nil && len(slots) > 0 {
			if err := b.sink.Insert(ctx, slots, vectors); err != nil {
				return fmt.Errorf("insert into vector sink: %w", err)
			}
		}

		tracker.Increment(len(batch))
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, ErrNoSequences
	}

	idx, err := forest.Build()
	if err != nil {
		return nil, fmt.Errorf("build index: %w", err)
	}
	err = b.metadata.WithTransaction(ctx, func(ctx context.Context) error {
		if err := b.metadata.ReplaceSlotMap(ctx, ids); err != nil {
			return err
		}
		return idx.Save(path)
	})
	if err != nil {
		return nil, fmt.Errorf("publish index: %w", err)
	}
	if b.sink != nil {
		if err := b.sink.Flush(ctx); err != nil {
			return nil, fmt.Errorf("flush vector sink: %w", err)
		}
	}

	tracker.Finish()
	elapsed := tracker.Elapsed()
	fmt.Fprintf(b.progress, "Index rebuild complete. Indexed %d sequences in %v (%d skipped)\n",
		len(ids), elapsed.Round(time.Millisecond), skipped)
	b.logger.Info("index rebuilt", "sequences", len(ids), "skipped", skipped, "path", path)

	return &Summary{
		Sequences: len(ids),
		Skipped:   skipped,
		Dimension: dim,
		Path:      path,
		Elapsed:   elapsed,
		Index:     idx,
	}, nil
}
