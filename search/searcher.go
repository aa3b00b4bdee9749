package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/poiesic/protrieve/core"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// DefaultTopK is the number of fused results returned when none is given.
const DefaultTopK = 10

var tracer = otel.Tracer("github.com/poiesic/protrieve/search")

// Retriever produces one ranked document list for a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]core.RetrievalDocument, error)
}

// Searcher fans a text query out to its retrievers and fuses the results.
type Searcher struct {
	retrievers [core.NumSources]Retriever
	weights    Weights
	boost      float64
	topK       int
	logger     *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithRetriever sets the retriever for one source.
func WithRetriever(source core.Source, r Retriever) Option {
	return func(s *Searcher) error {
		if source < 0 || int(source) >= core.NumSources {
			return fmt.Errorf("unknown source %d", source)
		}
		s.retrievers[source] = r
		return nil
	}
}

// WithWeights sets the per-source fusion weights.
// Default is DefaultWeights().
func WithWeights(w Weights) Option {
	return func(s *Searcher) error {
		if err := w.Validate(); err != nil {
			return err
		}
		s.weights = w
		return nil
	}
}

// WithOverlapBoost sets the bonus per additional agreeing source.
// Default is 0.15.
func WithOverlapBoost(boost float64) Option {
	return func(s *Searcher) error {
		if boost < 0 {
			return fmt.Errorf("overlap boost must be non-negative, got %g", boost)
		}
		s.boost = boost
		return nil
	}
}

// WithTopK sets the default result count used when Search gets topK <= 0.
// Default is 10.
func WithTopK(k int) Option {
	return func(s *Searcher) error {
		if k <= 0 {
			return fmt.Errorf("top k must be positive, got %d", k)
		}
		s.topK = k
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// NewSearcher creates a new searcher. At least one retriever is required.
func NewSearcher(opts ...Option) (*Searcher, error) {
	s := &Searcher{
		weights: DefaultWeights(),
		boost:   DefaultOverlapBoost,
		topK:    DefaultTopK,
		logger:  slog.Default(),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	configured := 0
	for _, r := range s.retrievers {
		if r != nil {
			configured++
		}
	}
	if configured == 0 {
		return nil, ErrNoRetrievers
	}
	s.logger = s.logger.With("component", "searcher")
	return s, nil
}

// Search retrieves and fuses up to topK records for query.
func (s *Searcher) Search(ctx context.Context, query string, topK int) ([]core.FusionRecord, error) {
	return s.SearchWithMonitor(ctx, query, topK, nil)
}

// SearchWithMonitor is Search with callbacks at each stage.
//
// Retrievers run concurrently. A failing retriever is logged and contributes
// an empty list; Search fails only when every configured retriever fails or
// the context ends.
func (s *Searcher) SearchWithMonitor(ctx context.Context, query string, topK int, monitor SearchMonitor) ([]core.FusionRecord, error) {
	// Use noop monitor if none provided
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	if topK <= 0 {
		topK = s.topK
	}

	ctx, span := tracer.Start(ctx, "search.Search", trace.WithAttributes(
		attribute.Int("search.top_k", topK),
	))
	defer span.End()

	monitor.Start(query)

	var (
		lists    Lists
		failures [core.NumSources]error
		mu       sync.Mutex
	)
	g, gctx := errgroup.WithContext(ctx)
	for src, r := range s.retrievers {
		if r == nil {
			continue
		}
		source := core.Source(src)
		g.Go(func() error {
			docs, err := r.Retrieve(gctx, query, topK)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				s.logger.Warn("retriever failed", "source", source.String(), "err", err)
				monitor.RetrievalFailed(source, err)
				mu.Lock()
				failures[source] = fmt.Errorf("%s retriever: %w", source, err)
				mu.Unlock()
				return nil
			}
			monitor.AfterRetrieval(source, docs)
			mu.Lock()
			lists[source] = docs
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		return nil, err
	}
	if err := s.allFailed(failures); err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		return nil, err
	}

	records, err := Fuse(lists, s.weights, s.boost, topK)
	if err != nil {
		return nil, err
	}
	monitor.AfterFusion(records)

	span.SetAttributes(attribute.Int("search.results", len(records)))
	s.logger.Debug("search complete",
		"vector", len(lists[core.SourceVector]),
		"lexical", len(lists[core.SourceLexical]),
		"fulltext", len(lists[core.SourceFullText]),
		"fused", len(records))
	monitor.Finish(records)
	return records, nil
}

func (s *Searcher) allFailed(failures [core.NumSources]error) error {
	var errs []error
	for src, r := range s.retrievers {
		if r == nil {
			continue
		}
		if failures[src] == nil {
			return nil
		}
		errs = append(errs, failures[src])
	}
	return errors.Join(errs...)
}
