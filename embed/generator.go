package embed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strconv"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/protrieve/ai"
	"github.com/poiesic/protrieve/batch"
	"github.com/poiesic/protrieve/core"
	"github.com/poiesic/protrieve/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultMinBudget is the token budget floor below which the generator
// splits chunks instead of shrinking the budget further.
const DefaultMinBudget = 256

var tracer = otel.Tracer("github.com/poiesic/protrieve/embed")

// Mode selects how chunk outputs are aggregated.
type Mode int

const (
	// PerProtein yields one vector of Dimension() values per sequence.
	PerProtein Mode = iota
	// PerResidue yields a [length, dim] matrix per sequence.
	PerResidue
)

func (m Mode) String() string {
	if m == PerResidue {
		return "per-residue"
	}
	return "per-protein"
}

// Result holds the output of one embedding pass.
type Result struct {
	Embeddings map[string]core.Embedding
	Sizes      map[string]core.SizeRecord

	CacheHits   int
	OutOfMemory int
	Splits      int
}

// Vector returns the embedding for id, or a *MissingEmbeddingError when the
// pass produced none.
func (r *Result) Vector(id string) (core.Embedding, error) {
	e, ok := r.Embeddings[id]
	if !ok {
		return core.Embedding{}, &MissingEmbeddingError{Key: id}
	}
	return e, nil
}

// Generator produces embeddings for protein sequences.
// Passes are serialized because each encoder drives one device.
type Generator struct {
	encoders  []ai.SequenceEncoder
	dim       int
	batcher   *batch.Batcher
	minBudget int
	cache     storage.EmbeddingCache
	pool      *ants.Pool
	mu        sync.Mutex
	logger    *slog.Logger
}

// Option configures a Generator.
type Option func(*Generator) error

// WithBatcher sets the batcher used to plan encoder calls.
// Default is batch.NewBatcher() with default limits.
func WithBatcher(b *batch.Batcher) Option {
	return func(g *Generator) error {
		if b != nil {
			g.batcher = b
		}
		return nil
	}
}

// WithMinBudget sets the token budget floor.
// Default is 256.
func WithMinBudget(n int) Option {
	return func(g *Generator) error {
		if n <= 0 {
			return ErrInvalidMinBudget
		}
		g.minBudget = n
		return nil
	}
}

// WithCache enables the per-protein embedding cache.
func WithCache(cache storage.EmbeddingCache) Option {
	return func(g *Generator) error {
		g.cache = cache
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(g *Generator) error {
		if logger == nil {
			logger = slog.Default()
		}
		g.logger = logger
		return nil
	}
}

// NewGenerator creates a generator with one worker per encoder.
func NewGenerator(encoders []ai.SequenceEncoder, opts ...Option) (*Generator, error) {
	if len(encoders) == 0 {
		return nil, ErrEncoderRequired
	}
	dim := encoders[0].Dimension()
	for _, enc := range encoders[1:] {
		if enc.Dimension() != dim {
			return nil, fmt.Errorf("%w: %d and %d", ErrDimensionMismatch, dim, enc.Dimension())
		}
	}

	b, err := batch.NewBatcher()
	if err != nil {
		return nil, err
	}

	g := &Generator{
		encoders:  encoders,
		dim:       dim,
		batcher:   b,
		minBudget: DefaultMinBudget,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(g); err != nil {
			return nil, err
		}
	}
	g.logger = g.logger.With("component", "embedding-generator")

	pool, err := ants.NewPool(len(encoders))
	if err != nil {
		return nil, err
	}
	g.pool = pool
	return g, nil
}

// Dimension returns the per-residue vector width.
func (g *Generator) Dimension() int {
	return g.dim
}

// Release stops the device workers.
func (g *Generator) Release() {
	if g.pool != nil {
		g.pool.Release()
	}
}

// Embed embeds every sequence in the map. The returned result holds exactly
// the input keys. Out-of-memory conditions are recovered internally.
func (g *Generator) Embed(ctx context.Context, sequences map[string]string, mode Mode) (*Result, error) {
	ctx, span := tracer.Start(ctx, "embed.Generate", trace.WithAttributes(
		attribute.Int("embed.sequences", len(sequences)),
		attribute.String("embed.mode", mode.String()),
	))
	defer span.End()

	res, err := g.embed(ctx, sequences, mode)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("embed.cache_hits", res.CacheHits),
		attribute.Int("embed.oom", res.OutOfMemory),
		attribute.Int("embed.splits", res.Splits),
	)
	return res, nil
}

func (g *Generator) embed(ctx context.Context, sequences map[string]string, mode Mode) (*Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	res := &Result{
		Embeddings: make(map[string]core.Embedding, len(sequences)),
		Sizes:      make(map[string]core.SizeRecord, len(sequences)),
	}
	if len(sequences) == 0 {
		return res, nil
	}

	perProtein := mode == PerProtein
	misses := make(map[string]string, len(sequences))
	lengths := make(map[string]int, len(sequences))
	keys := make(map[string]string)

	for _, id := range slices.Sorted(maps.Keys(sequences)) {
		raw := sequences[id]
		if err := core.ValidateSequence(&core.Sequence{ID: id, Residues: raw}); err != nil {
			return nil, err
		}
		if perProtein && g.cache != nil {
			key := g.cacheKey(batch.Clean(raw))
			if vec, ok := g.lookup(ctx, key); ok {
				res.Embeddings[id] = core.Embedding{Values: vec, Shape: []int{g.dim}}
				res.CacheHits++
				continue
			}
			keys[id] = key
		}
		misses[id] = raw
		lengths[id] = len(raw)
	}

	if len(misses) > 0 {
		computed, err := g.run(ctx, misses, lengths, perProtein, res)
		if err != nil {
			return nil, err
		}
		for id, e := range computed {
			if err := core.ValidateEmbedding(e.Values); err != nil {
				return nil, fmt.Errorf("sequence %s: %w", id, err)
			}
			res.Embeddings[id] = e
			if key, ok := keys[id]; ok {
				if err := g.cache.PutEmbedding(ctx, key, e.Values); err != nil {
					g.logger.Warn("failed to cache embedding", "sequence", id, "err", err)
				}
			}
		}
	}

	for id, raw := range sequences {
		e, ok := res.Embeddings[id]
		if !ok {
			return nil, &MissingEmbeddingError{Key: id}
		}
		res.Sizes[id] = core.SizeRecord{Length: len(raw), Shape: slices.Clone(e.Shape)}
	}

	g.logger.Debug("embedding pass complete",
		"sequences", len(sequences),
		"cache_hits", res.CacheHits,
		"oom", res.OutOfMemory,
		"splits", res.Splits)
	return res, nil
}

// run schedules the sequences and drives every device until the queue is
// drained.
func (g *Generator) run(ctx context.Context, sequences map[string]string, lengths map[string]int, perProtein bool, res *Result) (map[string]core.Embedding, error) {
	chunks, err := g.batcher.Chunks(sequences)
	if err != nil {
		return nil, err
	}
	batches := batch.Schedule(chunks, g.batcher.TokenBudget(), g.batcher.MaxBatch())
	g.logger.Debug("scheduled embedding pass", "chunks", len(chunks), "batches", len(batches))

	q := newWorkQueue(batches, g.batcher.TokenBudget(), g.batcher.MaxBatch(), g.minBudget)
	acc := newAccumulator(perProtein, g.dim, g.batcher.MaxChunkLength())

	var wg sync.WaitGroup
	for device, enc := range g.encoders {
		wg.Add(1)
		err := g.pool.Submit(func() {
			defer wg.Done()
			g.runDevice(ctx, device, enc, q, acc)
		})
		if err != nil {
			wg.Done()
			q.abort(fmt.Errorf("submit device %d: %w", device, err))
		}
	}
	wg.Wait()

	res.OutOfMemory, res.Splits = q.stats()
	if err := q.failure(); err != nil {
		return nil, err
	}
	if res.OutOfMemory > 0 {
		budget, maxBatch := q.limits()
		g.logger.Info("recovered from encoder out of memory",
			"events", res.OutOfMemory, "splits", res.Splits,
			"budget", budget, "max_batch", maxBatch)
	}
	return acc.finalize(lengths)
}

func (g *Generator) runDevice(ctx context.Context, device int, enc ai.SequenceEncoder, q *workQueue, acc *accumulator) {
	logger := g.logger.With("device", device)
	for {
		b, ok := q.next()
		if !ok {
			return
		}

		residues := make([]string, len(b))
		for i, c := range b {
			residues[i] = c.Residues
		}

		out, err := enc.EncodeResidues(ctx, residues)
		switch {
		case errors.Is(err, ai.ErrOutOfMemory):
			logger.Debug("encoder out of memory", "chunks", len(b), "tokens", b.Tokens())
			if err := q.outOfMemory(b); err != nil {
				logger.Error("cannot reduce work further", "err", err)
				return
			}
		case err != nil:
			q.fail(fmt.Errorf("encode batch on device %d: %w", device, err))
			return
		default:
			if err := acc.add(b, out); err != nil {
				q.fail(err)
				return
			}
			q.done()
		}
	}
}

func (g *Generator) cacheKey(cleaned string) string {
	return core.ContentHash(PerProtein.String(), strconv.Itoa(g.dim), cleaned)
}

// lookup returns a cached vector. Cache failures count as misses.
func (g *Generator) lookup(ctx context.Context, key string) ([]float32, bool) {
	vec, err := g.cache.GetEmbedding(ctx, key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			g.logger.Warn("embedding cache lookup failed", "err", err)
		}
		return nil, false
	}
	if len(vec) != g.dim || core.ValidateEmbedding(vec) != nil {
		return nil, false
	}
	return vec, true
}
