// Package milvus serves ANN queries from a Milvus collection instead of a
// local index file. The collection holds one row per slot with a float
// vector field indexed with IVF_FLAT under the COSINE metric.
package milvus

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/index"
	"github.com/milvus-io/milvus/client/v2/milvusclient"
	"github.com/poiesic/protrieve/ann"
	"github.com/poiesic/protrieve/core"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	slotField   = "slot"
	vectorField = "embedding"

	ivfLists  = 128
	ivfProbes = "16"
)

var tracer = otel.Tracer("github.com/poiesic/protrieve/ann/milvus")

// Config describes the Milvus connection and collection.
type Config struct {
	Address    string
	Username   string
	Password   string
	Database   string
	Collection string
	Dimension  int
	Timeout    time.Duration
}

// Validate checks required fields.
func (c Config) Validate() error {
	if c.Address == "" {
		return fmt.Errorf("milvus address is required")
	}
	if c.Collection == "" {
		return fmt.Errorf("milvus collection is required")
	}
	if c.Dimension <= 0 {
		return ann.ErrInvalidDimension
	}
	return nil
}

// Index is an ann.Searcher backed by a Milvus collection.
type Index struct {
	client     *milvusclient.Client
	collection string
	dim        int
	logger     *slog.Logger
}

var _ ann.Searcher = (*Index)(nil)

// Open connects to Milvus. The collection is not created; call Recreate
// when building.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Index, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	c, err := milvusclient.New(connectCtx, &milvusclient.ClientConfig{
		Address:  cfg.Address,
		Username: cfg.Username,
		Password: cfg.Password,
		DBName:   cfg.Database,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to milvus: %w", err)
	}

	return &Index{
		client:     c,
		collection: cfg.Collection,
		dim:        cfg.Dimension,
		logger:     logger.With("component", "milvus-index", "collection", cfg.Collection),
	}, nil
}

// Dimension returns the configured vector width.
func (x *Index) Dimension() int {
	return x.dim
}

// Close closes the client connection.
func (x *Index) Close(ctx context.Context) error {
	return x.client.Close(ctx)
}

func collectionSchema(name string, dim int) *entity.Schema {
	return entity.NewSchema().
		WithName(name).
		WithDescription("protein embeddings keyed by ANN slot").
		WithField(entity.NewField().
			WithName(slotField).
			WithDataType(entity.FieldTypeInt64).
			WithIsPrimaryKey(true)).
		WithField(entity.NewField().
			WithName(vectorField).
			WithDataType(entity.FieldTypeFloatVector).
			WithDim(int64(dim)))
}

// Recreate drops the collection if present and creates an empty one with
// its vector index.
func (x *Index) Recreate(ctx context.Context) error {
	exists, err := x.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(x.collection))
	if err != nil {
		return fmt.Errorf("failed to check collection existence: %w", err)
	}
	if exists {
		if err := x.client.DropCollection(ctx, milvusclient.NewDropCollectionOption(x.collection)); err != nil {
			return fmt.Errorf("failed to drop collection: %w", err)
		}
	}

	schema := collectionSchema(x.collection, x.dim)
	if err := x.client.CreateCollection(ctx, milvusclient.NewCreateCollectionOption(x.collection, schema)); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	idx := index.NewIvfFlatIndex(entity.COSINE, ivfLists)
	task, err := x.client.CreateIndex(ctx, milvusclient.NewCreateIndexOption(x.collection, vectorField, idx))
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	if err := task.Await(ctx); err != nil {
		return fmt.Errorf("failed to wait for index creation: %w", err)
	}
	x.logger.Info("recreated collection", "dimension", x.dim)
	return nil
}

// Insert writes vectors under the given slots.
func (x *Index) Insert(ctx context.Context, slots []int64, vectors [][]float32) error {
	if len(slots) != len(vectors) {
		return fmt.Errorf("got %d slots for %d vectors", len(slots), len(vectors))
	}
	if len(slots) == 0 {
		return nil
	}
	for _, v := range vectors {
		if len(v) != x.dim {
			return fmt.Errorf("%w: got %d, want %d", ann.ErrDimensionMismatch, len(v), x.dim)
		}
	}

	_, err := x.client.Insert(ctx, milvusclient.NewColumnBasedInsertOption(x.collection,
		column.NewColumnInt64(slotField, slots),
		column.NewColumnFloatVector(vectorField, x.dim, vectors),
	))
	if err != nil {
		return fmt.Errorf("failed to insert vectors: %w", err)
	}
	return nil
}

// Flush persists inserted rows and loads the collection for search.
func (x *Index) Flush(ctx context.Context) error {
	flushTask, err := x.client.Flush(ctx, milvusclient.NewFlushOption(x.collection))
	if err != nil {
		return fmt.Errorf("failed to flush collection: %w", err)
	}
	if err := flushTask.Await(ctx); err != nil {
		return fmt.Errorf("failed to wait for flush: %w", err)
	}
	return x.load(ctx)
}

func (x *Index) load(ctx context.Context) error {
	loadTask, err := x.client.LoadCollection(ctx, milvusclient.NewLoadCollectionOption(x.collection))
	if err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}
	if err := loadTask.Await(ctx); err != nil {
		return fmt.Errorf("failed to wait for collection loading: %w", err)
	}
	return nil
}

// Search returns up to n slots ranked by cosine similarity.
func (x *Index) Search(ctx context.Context, query []float32, n int) ([]core.Neighbor, error) {
	ctx, span := tracer.Start(ctx, "ann.milvus.Search", trace.WithAttributes(
		attribute.Int("ann.n", n),
		attribute.String("ann.collection", x.collection),
	))
	defer span.End()

	neighbors, err := x.search(ctx, query, n)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("ann.results", len(neighbors)))
	return neighbors, nil
}

func (x *Index) search(ctx context.Context, query []float32, n int) ([]core.Neighbor, error) {
	if len(query) != x.dim {
		return nil, fmt.Errorf("%w: got %d, want %d", ann.ErrDimensionMismatch, len(query), x.dim)
	}
	if n <= 0 {
		return nil, nil
	}
	if err := x.load(ctx); err != nil {
		return nil, err
	}

	results, err := x.client.Search(ctx, milvusclient.NewSearchOption(
		x.collection,
		n,
		[]entity.Vector{entity.FloatVector(query)},
	).WithANNSField(vectorField).
		WithSearchParam("nprobe", ivfProbes))
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	if len(results) == 0 {
		return nil, nil
	}
	return neighbors(results[0].IDs, results[0].Scores, results[0].ResultCount)
}

// neighbors converts one result set into slots ordered by descending
// similarity, ties by ascending slot.
func neighbors(ids column.Column, scores []float32, count int) ([]core.Neighbor, error) {
	if count == 0 {
		return nil, nil
	}
	idCol, ok := ids.(*column.ColumnInt64)
	if !ok {
		return nil, fmt.Errorf("unexpected id column type %T", ids)
	}
	data := idCol.Data()
	if len(data) < count || len(scores) < count {
		return nil, fmt.Errorf("result count %d exceeds %d ids and %d scores", count, len(data), len(scores))
	}

	out := make([]core.Neighbor, count)
	for i := range out {
		out[i] = core.Neighbor{Slot: int(data[i]), Similarity: min(1, max(-1, scores[i]))}
	}
	slices.SortFunc(out, func(a, b core.Neighbor) int {
		if c := cmp.Compare(b.Similarity, a.Similarity); c != 0 {
			return c
		}
		return cmp.Compare(a.Slot, b.Slot)
	})
	return out, nil
}
