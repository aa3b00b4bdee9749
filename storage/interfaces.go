package storage

import (
	"context"

	"github.com/poiesic/protrieve/core"
)

type Repository interface {
	// WithTransaction executes a function within a transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	// The context passed to fn carries the transaction state.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error

	// Close closes the storage backend and releases resources.
	Close() error
}

// EmbeddingCache stores per-protein sequence embeddings by content key.
type EmbeddingCache interface {
	// GetEmbedding returns ErrNotFound when the key is absent.
	GetEmbedding(ctx context.Context, key string) ([]float32, error)

	// PutEmbedding stores a vector. Callers validate vectors first.
	PutEmbedding(ctx context.Context, key string, vector []float32) error
}

// DocumentMatch is one dense similarity hit over flat-file documents.
type DocumentMatch struct {
	FileID     int64
	Similarity float32
}

type DocumentVectorRepository interface {
	// PutDocumentVectors stores text embeddings keyed by flat-file id.
	PutDocumentVectors(ctx context.Context, vectors map[int64][]float32) error

	// FindSimilar ranks stored document vectors by cosine similarity to vector.
	// Returns matches with similarity >= minSimilarity, up to limit results,
	// highest first.
	FindSimilar(ctx context.Context, vector []float32, minSimilarity float32, limit int) ([]DocumentMatch, error)

	// CountDocumentVectors returns the number of stored document vectors.
	CountDocumentVectors(ctx context.Context) (int, error)
}

type LexicalCache interface {
	// LoadLexicalSnapshot returns ErrNotFound when no snapshot was saved for
	// the fingerprint.
	LoadLexicalSnapshot(ctx context.Context, fingerprint string) (*core.LexicalSnapshot, error)

	// SaveLexicalSnapshot replaces any snapshot stored for the fingerprint.
	SaveLexicalSnapshot(ctx context.Context, fingerprint string, snapshot *core.LexicalSnapshot) error
}

type CheckpointRepository interface {
	// SaveCheckpoint stores a checkpoint and stamps UpdatedAt.
	SaveCheckpoint(ctx context.Context, checkpoint *core.Checkpoint) error

	// LoadCheckpoint returns nil without error when none is stored.
	LoadCheckpoint(ctx context.Context, processorType string) (*core.Checkpoint, error)
}

type MetadataRepository interface {
	Repository

	// ResolveSlots maps ANN index slots to protein ids in one query.
	// Slots without a mapping are absent from the result.
	ResolveSlots(ctx context.Context, slots []int) (map[int]string, error)

	// ReplaceSlotMap atomically replaces the slot table so that slot i maps
	// to proteinIDs[i].
	ReplaceSlotMap(ctx context.Context, proteinIDs []string) error

	// UpsertProteins inserts or replaces protein metadata.
	UpsertProteins(ctx context.Context, records ...core.ProteinRecord) error

	// ProteinRecords fetches metadata for many proteins in one query.
	// Unknown ids are absent from the result.
	ProteinRecords(ctx context.Context, proteinIDs []string) (map[string]core.ProteinRecord, error)

	// KnownProteins reports which of the given ids have metadata.
	KnownProteins(ctx context.Context, proteinIDs []string) (map[string]bool, error)
}

type DocumentRepository interface {
	Repository

	// AddFlatFiles stores flat-file records and their protein mapping.
	// FileID is assigned when zero. Returns the stored records.
	AddFlatFiles(ctx context.Context, files ...core.FlatFile) ([]core.FlatFile, error)

	// FlatFiles fetches records by file id. Unknown ids are absent.
	FlatFiles(ctx context.Context, fileIDs []int64) (map[int64]core.FlatFile, error)

	// FlatFilesAfter returns up to limit records with FileID > afterID in
	// ascending id order.
	FlatFilesAfter(ctx context.Context, afterID int64, limit int) ([]core.FlatFile, error)

	// CorpusFingerprint identifies the current document set. It changes
	// whenever documents are added or removed.
	CorpusFingerprint(ctx context.Context) (string, error)

	// SearchFullText returns documents matching a keyword phrase through the
	// full-text index, best match first.
	SearchFullText(ctx context.Context, phrase string, limit int) ([]core.FlatFile, error)
}

type AnnotationRepository interface {
	Repository

	// AddAnnotations stores protein to GO term mappings.
	AddAnnotations(ctx context.Context, annotations ...core.Annotation) error

	// UpsertGOTerms inserts or replaces GO term metadata.
	UpsertGOTerms(ctx context.Context, terms ...core.GOTerm) error

	// RefreshBackground recomputes the per-term count of distinct annotated
	// proteins.
	RefreshBackground(ctx context.Context) error

	// AnnotationsFor returns the distinct (protein, term) pairs for the
	// given proteins.
	AnnotationsFor(ctx context.Context, proteinIDs []string) ([]core.Annotation, error)

	// BackgroundCounts returns the background count per term.
	BackgroundCounts(ctx context.Context, goIDs []string) (map[string]int, error)

	// BackgroundSize returns the number of distinct annotated proteins.
	BackgroundSize(ctx context.Context) (int, error)

	// GOTerms fetches term metadata. Unknown ids are absent.
	GOTerms(ctx context.Context, goIDs []string) (map[string]core.GOTerm, error)
}
