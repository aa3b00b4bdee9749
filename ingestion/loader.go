package ingestion

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/poiesic/protrieve/core"
	"github.com/poiesic/protrieve/storage"
)

// DefaultLoadBatchSize is the number of records written per store call.
const DefaultLoadBatchSize = 500

// LoadStats counts the records seen and written by one load.
type LoadStats struct {
	Read   int
	Stored int
	// Skipped counts records that were not stored. For flat files it counts
	// stored records without an accession.
	Skipped int
}

// Loader writes parsed reference files to the stores.
type Loader struct {
	metadata    storage.MetadataRepository
	annotations storage.AnnotationRepository
	documents   storage.DocumentRepository
	batchSize   int
	logger      *slog.Logger
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithLoadBatchSize sets how many records are written per store call.
// Default is 500.
func WithLoadBatchSize(n int) LoaderOption {
	return func(l *Loader) {
		if n > 0 {
			l.batchSize = n
		}
	}
}

// WithLoaderLogger sets a custom logger.
func WithLoaderLogger(logger *slog.Logger) LoaderOption {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLoader creates a loader. Stores that a load needs are checked when that
// load runs, so callers may pass nil for stores they do not use.
func NewLoader(metadata storage.MetadataRepository, annotations storage.AnnotationRepository, documents storage.DocumentRepository, opts ...LoaderOption) *Loader {
	l := &Loader{
		metadata:    metadata,
		annotations: annotations,
		documents:   documents,
		batchSize:   DefaultLoadBatchSize,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With("component", "loader")
	return l
}

// LoadFASTA stores protein metadata parsed from the UniProt headers of a
// FASTA file. Records with other headers are skipped.
func (l *Loader) LoadFASTA(ctx context.Context, r io.Reader) (LoadStats, error) {
	if l.metadata == nil {
		return LoadStats{}, ErrMetadataRepositoryRequired
	}
	var stats LoadStats
	pending := make([]core.ProteinRecord, 0, l.batchSize)
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		if err := l.metadata.UpsertProteins(ctx, pending...); err != nil {
			return err
		}
		stats.Stored += len(pending)
		pending = pending[:0]
		return nil
	}

	err := ReadFASTA(ctx, r, func(rec FASTARecord) error {
		stats.Read++
		info, err := ParseUniProtHeader(rec.Header)
		if err != nil {
			stats.Skipped++
			l.logger.Debug("skipping header", "header", rec.Header, "err", err)
			return nil
		}
		pending = append(pending, info)
		if len(pending) >= l.batchSize {
			return flush()
		}
		return nil
	})
	if err == nil {
		err = flush()
	}
	if err != nil {
		return stats, fmt.Errorf("load fasta: %w", err)
	}
	l.logger.Info("loaded protein metadata", "read", stats.Read, "stored", stats.Stored, "skipped", stats.Skipped)
	return stats, nil
}

// LoadOBO stores GO term metadata.
func (l *Loader) LoadOBO(ctx context.Context, r io.Reader) (LoadStats, error) {
	if l.annotations == nil {
		return LoadStats{}, ErrAnnotationRepositoryRequired
	}
	var stats LoadStats
	pending := make([]core.GOTerm, 0, l.batchSize)
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		if err := l.annotations.UpsertGOTerms(ctx, pending...); err != nil {
			return err
		}
		stats.Stored += len(pending)
		pending = pending[:0]
		return nil
	}

	err := ReadOBO(ctx, r, func(t core.GOTerm) error {
		stats.Read++
		pending = append(pending, t)
		if len(pending) >= l.batchSize {
			return flush()
		}
		return nil
	})
	if err == nil {
		err = flush()
	}
	if err != nil {
		return stats, fmt.Errorf("load obo: %w", err)
	}
	l.logger.Info("loaded GO terms", "stored", stats.Stored)
	return stats, nil
}

// LoadGPA stores annotations for proteins with metadata and then refreshes the
// background counts used by enrichment.
func (l *Loader) LoadGPA(ctx context.Context, r io.Reader) (LoadStats, error) {
	if l.annotations == nil {
		return LoadStats{}, ErrAnnotationRepositoryRequired
	}
	if l.metadata == nil {
		return LoadStats{}, ErrMetadataRepositoryRequired
	}
	var stats LoadStats
	pending := make([]core.Annotation, 0, l.batchSize)
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		ids := make([]string, len(pending))
		for i, a := range pending {
			ids[i] = a.ProteinID
		}
		known, err := l.metadata.KnownProteins(ctx, ids)
		if err != nil {
			return err
		}
		keep := pending[:0]
		for _, a := range pending {
			if known[a.ProteinID] {
				keep = append(keep, a)
			} else {
				stats.Skipped++
			}
		}
		if len(keep) > 0 {
			if err := l.annotations.AddAnnotations(ctx, keep...); err != nil {
				return err
			}
			stats.Stored += len(keep)
		}
		pending = pending[:0]
		return nil
	}

	err := ReadGPA(ctx, r, func(a core.Annotation) error {
		stats.Read++
		pending = append(pending, a)
		if len(pending) >= l.batchSize {
			return flush()
		}
		return nil
	})
	if err == nil {
		err = flush()
	}
	if err == nil {
		err = l.annotations.RefreshBackground(ctx)
	}
	if err != nil {
		return stats, fmt.Errorf("load gpa: %w", err)
	}
	l.logger.Info("loaded annotations", "read", stats.Read, "stored", stats.Stored, "unknown_proteins", stats.Skipped)
	return stats, nil
}

// LoadFlatFiles stores UniProt flat-file records as retrieval documents.
func (l *Loader) LoadFlatFiles(ctx context.Context, r io.Reader) (LoadStats, error) {
	if l.documents == nil {
		return LoadStats{}, ErrDocumentRepositoryRequired
	}
	var stats LoadStats
	pending := make([]core.FlatFile, 0, l.batchSize)
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		stored, err := l.documents.AddFlatFiles(ctx, pending...)
		if err != nil {
			return err
		}
		stats.Stored += len(stored)
		pending = pending[:0]
		return nil
	}

	err := ReadFlatFiles(ctx, r, func(f core.FlatFile) error {
		stats.Read++
		if f.ProteinID == "" {
			stats.Skipped++
		}
		pending = append(pending, f)
		if len(pending) >= l.batchSize {
			return flush()
		}
		return nil
	})
	if err == nil {
		err = flush()
	}
	if err != nil {
		return stats, fmt.Errorf("load flat files: %w", err)
	}
	l.logger.Info("loaded flat files", "stored", stats.Stored, "without_accession", stats.Skipped)
	return stats, nil
}
