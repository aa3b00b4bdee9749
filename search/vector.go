package search

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/protrieve/ai"
	"github.com/poiesic/protrieve/core"
	"github.com/poiesic/protrieve/storage"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultMinDocumentSimilarity is the dense retriever's broad-recall cutoff.
const DefaultMinDocumentSimilarity = 0.60

// VectorRetriever ranks flat-file documents by cosine similarity between the
// query embedding and stored document embeddings.
type VectorRetriever struct {
	embedder      ai.Embedder
	vectors       storage.DocumentVectorRepository
	docs          storage.DocumentRepository
	minSimilarity float32
	logger        *slog.Logger
}

var _ Retriever = (*VectorRetriever)(nil)

// VectorOption configures a VectorRetriever.
type VectorOption func(*VectorRetriever)

// WithMinSimilarity sets the similarity cutoff.
// Default is 0.60.
func WithMinSimilarity(min float32) VectorOption {
	return func(r *VectorRetriever) {
		r.minSimilarity = min
	}
}

// WithVectorLogger sets a custom logger.
func WithVectorLogger(logger *slog.Logger) VectorOption {
	return func(r *VectorRetriever) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewVectorRetriever creates a dense text retriever.
func NewVectorRetriever(embedder ai.Embedder, vectors storage.DocumentVectorRepository, docs storage.DocumentRepository, opts ...VectorOption) (*VectorRetriever, error) {
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if vectors == nil {
		return nil, ErrVectorRepositoryRequired
	}
	if docs == nil {
		return nil, ErrDocumentRepositoryRequired
	}
	r := &VectorRetriever{
		embedder:      embedder,
		vectors:       vectors,
		docs:          docs,
		minSimilarity: DefaultMinDocumentSimilarity,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "vector-retriever")
	return r, nil
}

// Retrieve embeds query and returns up to topK documents, most similar first.
func (r *VectorRetriever) Retrieve(ctx context.Context, query string, topK int) ([]core.RetrievalDocument, error) {
	ctx, span := tracer.Start(ctx, "search.VectorRetrieve", trace.WithAttributes(
		attribute.Int("retrieve.top_k", topK),
	))
	defer span.End()

	docs, err := r.retrieve(ctx, query, topK)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("retrieve.results", len(docs)))
	return docs, nil
}

func (r *VectorRetriever) retrieve(ctx context.Context, query string, topK int) ([]core.RetrievalDocument, error) {
	if topK <= 0 {
		return nil, nil
	}
	embedding, err := r.embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	matches, err := r.vectors.FindSimilar(ctx, embedding, r.minSimilarity, topK)
	if err != nil {
		return nil, fmt.Errorf("find similar documents: %w", err)
	}
	if len(matches) == 0 {
		return nil, nil
	}

	ids := make([]int64, len(matches))
	for i, m := range matches {
		ids[i] = m.FileID
	}
	files, err := r.docs.FlatFiles(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve documents: %w", err)
	}

	out := make([]core.RetrievalDocument, 0, len(matches))
	for _, m := range matches {
		f, ok := files[m.FileID]
		if !ok || f.ProteinID == "" {
			r.logger.Debug("skipping document vector without accession", "file_id", m.FileID)
			continue
		}
		out = append(out, core.RetrievalDocument{
			ID:      f.ProteinID,
			Content: f.Content,
			Score:   float64(m.Similarity),
			Source:  core.SourceVector,
		})
	}
	return out, nil
}
