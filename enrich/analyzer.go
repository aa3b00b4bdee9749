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

package enrich

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/poiesic/protrieve/core"
	"github.com/poiesic/protrieve/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/poiesic/protrieve/enrich")

// ErrAnnotationsRequired is returned when no annotation repository is given.
var ErrAnnotationsRequired = errors.New("annotation repository is required")

// Analyzer finds GO terms over-represented in a protein set against the
// annotated background population.
type Analyzer struct {
	annotations storage.AnnotationRepository
	logger      *slog.Logger
}

// NewAnalyzer creates an analyzer. A nil logger uses slog.Default().
func NewAnalyzer(annotations storage.AnnotationRepository, logger *slog.Logger) (*Analyzer, error) {
	if annotations == nil {
		return nil, ErrAnnotationsRequired
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{annotations: annotations, logger: logger.With("component", "enrichment")}, nil
}

// Analyze returns one record per GO term annotated on at least one protein
// of the set, ordered by enrichment ratio, highest first. Duplicate ids
// count once. Terms without a background count are skipped. Ratios are
// rounded to 3 decimals and p-values to 5.
func (a *Analyzer) Analyze(ctx context.Context, proteinIDs []string) ([]core.EnrichmentRecord, error) {
	ctx, span := tracer.Start(ctx, "enrich.Analyze", trace.WithAttributes(
		attribute.Int("enrich.proteins", len(proteinIDs)),
	))
	defer span.End()

	records, err := a.analyze(ctx, proteinIDs)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("enrich.terms", len(records)))
	return records, nil
}

func (a *Analyzer) analyze(ctx context.Context, proteinIDs []string) ([]core.EnrichmentRecord, error) {
	interest := dedupe(proteinIDs)
	if len(interest) == 0 {
		return []core.EnrichmentRecord{}, nil
	}
	n := len(interest)

	total, err := a.annotations.BackgroundSize(ctx)
	if err != nil {
		return nil, fmt.Errorf("background size: %w", err)
	}
	if total == 0 {
		a.logger.Warn("no annotated background population")
		return []core.EnrichmentRecord{}, nil
	}

	pairs, err := a.annotations.AnnotationsFor(ctx, interest)
	if err != nil {
		return nil, fmt.Errorf("annotations: %w", err)
	}
	members := make(map[string][]string)
	for _, p := range pairs {
		members[p.GOID] = append(members[p.GOID], p.ProteinID)
	}
	if len(members) == 0 {
		return []core.EnrichmentRecord{}, nil
	}

	goIDs := slices.Sorted(maps.Keys(members))
	background, err := a.annotations.BackgroundCounts(ctx, goIDs)
	if err != nil {
		return nil, fmt.Errorf("background counts: %w", err)
	}
	terms, err := a.annotations.GOTerms(ctx, goIDs)
	if err != nil {
		return nil, fmt.Errorf("go terms: %w", err)
	}

	out := make([]core.EnrichmentRecord, 0, len(goIDs))
	for _, id := range goIDs {
		k := len(members[id])
		m := background[id]
		if m <= 0 {
			continue
		}
		if m > total || k > m {
			a.logger.Warn("inconsistent background count, skipping term",
				"go_id", id, "in_set", k, "background", m, "population", total)
			continue
		}

		term, ok := terms[id]
		if !ok {
			term = core.GOTerm{ID: id}
		}
		ids := slices.Clone(members[id])
		slices.Sort(ids)
		out = append(out, core.EnrichmentRecord{
			Term:            term,
			CountInSet:      k,
			BackgroundCount: m,
			Ratio:           round((float64(k)/float64(n))/(float64(m)/float64(total)), 3),
			PValue:          round(HypergeometricSF(k, total, m, n), 5),
			ProteinIDs:      ids,
		})
	}

	slices.SortStableFunc(out, func(x, y core.EnrichmentRecord) int {
		if c := cmp.Compare(y.Ratio, x.Ratio); c != 0 {
			return c
		}
		if c := cmp.Compare(x.PValue, y.PValue); c != 0 {
			return c
		}
		return cmp.Compare(x.Term.ID, y.Term.ID)
	})
	a.logger.Debug("enrichment complete", "proteins", n, "terms", len(out), "population", total)
	return out, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
