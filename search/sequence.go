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

package search

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"

	"github.com/poiesic/protrieve/ann"
	"github.com/poiesic/protrieve/core"
	"github.com/poiesic/protrieve/embed"
	"github.com/poiesic/protrieve/storage"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultNeighbors is the number of ANN candidates fetched per query.
	DefaultNeighbors = 250

	// DefaultSearchThreshold is the similarity cutoff for returned hits.
	DefaultSearchThreshold = 0.80

	// DefaultPreciseThreshold is the cutoff for hits fed to enrichment.
	DefaultPreciseThreshold = 0.90

	queryKey = "query"
)

// SequenceEmbedder embeds protein sequences. *embed.Generator satisfies it.
type SequenceEmbedder interface {
	Embed(ctx context.Context, sequences map[string]string, mode embed.Mode) (*embed.Result, error)
}

// Enricher computes GO enrichment for a protein set. *enrich.Analyzer
// satisfies it.
type Enricher interface {
	Analyze(ctx context.Context, proteinIDs []string) ([]core.EnrichmentRecord, error)
}

// vectorSource is implemented by indexes that keep their vectors.
type vectorSource interface {
	Vector(slot int) ([]float32, bool)
}

// SequenceResult is the outcome of one sequence search.
type SequenceResult struct {
	Hits       []core.ProteinHit
	Enrichment []core.EnrichmentRecord

	// MissingSlots counts ANN neighbors without a slot mapping.
	MissingSlots int
}

// SequenceSearcher finds proteins similar to a query sequence.
type SequenceSearcher struct {
	embedder  SequenceEmbedder
	index     ann.Searcher
	metadata  storage.MetadataRepository
	enricher  Enricher
	neighbors int
	precise   float64
	logger    *slog.Logger
}

// SequenceOption configures a SequenceSearcher.
type SequenceOption func(*SequenceSearcher) error

// WithNeighbors sets how many ANN candidates are fetched.
// Default is 250.
func WithNeighbors(n int) SequenceOption {
	return func(s *SequenceSearcher) error {
		if n <= 0 {
			return fmt.Errorf("neighbors must be positive, got %d", n)
		}
		s.neighbors = n
		return nil
	}
}

// WithEnricher enables enrichment over hits at or above the precise
// threshold.
func WithEnricher(e Enricher) SequenceOption {
	return func(s *SequenceSearcher) error {
		s.enricher = e
		return nil
	}
}

// WithPreciseThreshold sets the enrichment cutoff.
// Default is 0.90.
func WithPreciseThreshold(t float64) SequenceOption {
	return func(s *SequenceSearcher) error {
		s.precise = t
		return nil
	}
}

// WithSequenceLogger sets a custom logger.
func WithSequenceLogger(logger *slog.Logger) SequenceOption {
	return func(s *SequenceSearcher) error {
		if logger != nil {
			s.logger = logger
		}
		return nil
	}
}

// NewSequenceSearcher creates a sequence searcher.
func NewSequenceSearcher(embedder SequenceEmbedder, index ann.Searcher, metadata storage.MetadataRepository, opts ...SequenceOption) (*SequenceSearcher, error) {
	if embedder == nil {
		return nil, ErrGeneratorRequired
	}
	if index == nil {
		return nil, ErrIndexRequired
	}
	if metadata == nil {
		return nil, ErrMetadataRepositoryRequired
	}
	s := &SequenceSearcher{
		embedder:  embedder,
		index:     index,
		metadata:  metadata,
		neighbors: DefaultNeighbors,
		precise:   DefaultPreciseThreshold,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "sequence-searcher")
	return s, nil
}

// Search returns proteins whose similarity to the query sequence is at least
// threshold, most similar first. The query may carry a FASTA header.
func (s *SequenceSearcher) Search(ctx context.Context, query string, threshold float64) (*SequenceResult, error) {
	ctx, span := tracer.Start(ctx, "search.SequenceSearch", trace.WithAttributes(
		attribute.Float64("search.threshold", threshold),
		attribute.Int("search.neighbors", s.neighbors),
	))
	defer span.End()

	res, err := s.search(ctx, query, threshold)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("search.hits", len(res.Hits)),
		attribute.Int("search.missing_slots", res.MissingSlots),
	)
	return res, nil
}

func (s *SequenceSearcher) search(ctx context.Context, query string, threshold float64) (*SequenceResult, error) {
	seq, err := core.NormalizeQuerySequence(query)
	if err != nil {
		return nil, err
	}

	embedded, err := s.embedder.Embed(ctx, map[string]string{queryKey: seq}, embed.PerProtein)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	vec, err := embedded.Vector(queryKey)
	if err != nil {
		return nil, err
	}
	if dim := s.index.Dimension(); dim != len(vec.Values) {
		return nil, fmt.Errorf("%w: query has %d, index has %d", ann.ErrDimensionMismatch, len(vec.Values), dim)
	}

	neighbors, err := s.index.Search(ctx, vec.Values, s.neighbors)
	if err != nil {
		return nil, fmt.Errorf("ann search: %w", err)
	}

	res := &SequenceResult{Hits: []core.ProteinHit{}}
	if len(neighbors) == 0 {
		return res, nil
	}

	slots := make([]int, len(neighbors))
	for i, n := range neighbors {
		slots[i] = n.Slot
	}
	ids, err := s.metadata.ResolveSlots(ctx, slots)
	if err != nil {
		return nil, err
	}

	vectors, _ := s.index.(vectorSource)
	best := make(map[string]float64)
	var order []string
	for _, n := range neighbors {
		id, ok := ids[n.Slot]
		if !ok {
			res.MissingSlots++
			s.logger.Warn("ann slot has no protein mapping", "slot", n.Slot)
			continue
		}
		sim := float64(n.Similarity)
		if vectors != nil {
			if v, ok := vectors.Vector(n.Slot); ok {
				sim = core.Cosine(vec.Values, v)
			}
		}
		sim = math.Round(sim*1e4) / 1e4
		if sim < threshold {
			continue
		}
		if prev, seen := best[id]; !seen {
			order = append(order, id)
			best[id] = sim
		} else if sim > prev {
			best[id] = sim
		}
	}
	if res.MissingSlots > 0 {
		s.logger.Warn("slot map out of sync with index", "missing", res.MissingSlots, "neighbors", len(neighbors))
	}
	if len(order) == 0 {
		return res, nil
	}

	records, err := s.metadata.ProteinRecords(ctx, order)
	if err != nil {
		return nil, err
	}
	for _, id := range order {
		rec, ok := records[id]
		if !ok {
			rec = core.ProteinRecord{ProteinID: id}
		}
		res.Hits = append(res.Hits, core.ProteinHit{ProteinRecord: rec, Similarity: best[id]})
	}
	slices.SortStableFunc(res.Hits, func(a, b core.ProteinHit) int {
		if c := cmp.Compare(b.Similarity, a.Similarity); c != 0 {
			return c
		}
		return cmp.Compare(a.ProteinID, b.ProteinID)
	})

	if s.enricher != nil {
		var precise []string
		for _, h := range res.Hits {
			if h.Similarity >= s.precise {
				precise = append(precise, h.ProteinID)
			}
		}
		if len(precise) > 0 {
			if res.Enrichment, err = s.enricher.Analyze(ctx, precise); err != nil {
				return nil, fmt.Errorf("enrichment: %w", err)
			}
		}
	}
	return res, nil
}
