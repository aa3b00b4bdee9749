package ingestion

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/protrieve/ai"
	"github.com/poiesic/protrieve/core"
	"github.com/poiesic/protrieve/storage"
	"github.com/tmc/langchaingo/textsplitter"
)

// checkpointDocumentEmbeddings names the pipeline's checkpoint record.
const checkpointDocumentEmbeddings = "document-embeddings"

// embeddingProcessor generates text embeddings for flat-file documents.
// Documents longer than one chunk are embedded piecewise and the unit chunk
// vectors are averaged.
type embeddingProcessor struct {
	vectors     storage.DocumentVectorRepository
	checkpoints storage.CheckpointRepository
	embedder    ai.Embedder
	splitter    textsplitter.TextSplitter
	logger      *slog.Logger
}

var _ processor = (*embeddingProcessor)(nil)

// newEmbeddingProcessor creates a new embedding processor.
func newEmbeddingProcessor(vectors storage.DocumentVectorRepository, checkpoints storage.CheckpointRepository, embedder ai.Embedder, splitter textsplitter.TextSplitter, logger *slog.Logger) (*embeddingProcessor, error) {
	if vectors == nil {
		return nil, ErrVectorRepositoryRequired
	}
	if checkpoints == nil {
		return nil, ErrCheckpointRepositoryRequired
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &embeddingProcessor{
		vectors:     vectors,
		checkpoints: checkpoints,
		embedder:    embedder,
		splitter:    splitter,
		logger:      logger.With("processor", "document-embeddings"),
	}, nil
}

// process generates and stores one vector per document.
func (ep *embeddingProcessor) process(ctx context.Context, files []core.FlatFile) error {
	if len(files) == 0 {
		return nil
	}

	var (
		texts []string
		owner []int
	)
	for i, f := range files {
		chunks, err := ep.split(f.Content)
		if err != nil {
			return fmt.Errorf("split document %d: %w", f.FileID, err)
		}
		for _, c := range chunks {
			texts = append(texts, c)
			owner = append(owner, i)
		}
	}

	ep.logger.Debug("generating embeddings for documents", "documents", len(files), "chunks", len(texts))
	embeddings, err := ep.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed documents: %w", err)
	}
	if len(embeddings) != len(texts) {
		return fmt.Errorf("embedding result mismatch. expected %d, received %d", len(texts), len(embeddings))
	}

	sums := make([][]float32, len(files))
	for j, e := range embeddings {
		if err := core.ValidateEmbedding(e); err != nil {
			return fmt.Errorf("document %d: %w", files[owner[j]].FileID, err)
		}
		unit := core.NormalizeVector(e)
		sum := sums[owner[j]]
		if sum == nil {
			sums[owner[j]] = unit
			continue
		}
		if len(sum) != len(unit) {
			return fmt.Errorf("document %d: chunk embeddings differ in width", files[owner[j]].FileID)
		}
		for k := range sum {
			sum[k] += unit[k]
		}
	}

	out := make(map[int64][]float32, len(files))
	for i, f := range files {
		out[f.FileID] = core.NormalizeVector(sums[i])
	}
	return ep.vectors.PutDocumentVectors(ctx, out)
}

func (ep *embeddingProcessor) split(content string) ([]string, error) {
	if ep.splitter == nil {
		return []string{content}, nil
	}
	chunks, err := ep.splitter.SplitText(content)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return []string{content}, nil
	}
	return chunks, nil
}

// checkpoint saves the highest fully processed file id.
func (ep *embeddingProcessor) checkpoint(ctx context.Context, lastID int64) error {
	return ep.checkpoints.SaveCheckpoint(ctx, &core.Checkpoint{
		ProcessorType: checkpointDocumentEmbeddings,
		LastID:        lastID,
	})
}
