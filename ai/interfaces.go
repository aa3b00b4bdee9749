package ai

import "context"

// Embedder generates vector embeddings from text for semantic similarity search.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings in a batch.
	// The returned slice contains embeddings in the same order as the input texts.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// SequenceEncoder runs a protein language model over residue strings.
// One encoder instance corresponds to one accelerator device; callers must
// not issue concurrent calls to the same instance.
type SequenceEncoder interface {
	// EncodeResidues returns, for every input sequence, one row per residue
	// of Dimension() columns. out[i] has exactly len(sequences[i]) rows.
	// Returns an error wrapping ErrOutOfMemory when the device cannot hold
	// the batch.
	EncodeResidues(ctx context.Context, sequences []string) ([][][]float32, error)

	// Dimension returns the width of each residue vector.
	Dimension() int
}

// AIProvider aggregates model services for convenient initialization and lifecycle management.
type AIProvider interface {
	// Embedder returns the text embedding service.
	// The returned Embedder is safe for concurrent use.
	Embedder() Embedder

	// Close releases resources held by the provider and its services.
	Close() error
}
