package search

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"github.com/poiesic/protrieve/core"
)

// DefaultOverlapBoost is the score bonus per additional agreeing source.
const DefaultOverlapBoost = 0.15

// Weights holds one fusion weight per core.Source.
type Weights [core.NumSources]float64

// DefaultWeights are vector 0.5, lexical 0.3, full-text 0.2.
func DefaultWeights() Weights {
	return Weights{core.SourceVector: 0.5, core.SourceLexical: 0.3, core.SourceFullText: 0.2}
}

// Validate checks that weights are non-negative and sum to one.
func (w Weights) Validate() error {
	var sum float64
	for _, v := range w {
		if v < 0 || math.IsNaN(v) {
			return fmt.Errorf("%w: %v", ErrInvalidWeights, w)
		}
		sum += v
	}
	if math.Abs(sum-1) > 1e-9 {
		return fmt.Errorf("%w: sum is %g", ErrInvalidWeights, sum)
	}
	return nil
}

// Lists holds one ranked list per source, best first.
type Lists [core.NumSources][]core.RetrievalDocument

// Fuse merges ranked lists into one ranking of at most topK records.
//
// An item at rank r of a source list scores 1 - r/topK for that source; lists
// are cut at topK first and repeated identifiers keep their best rank. The
// combined score is the weighted sum multiplied by 1 + boost*(overlap-1),
// where overlap counts the sources that found the identifier. Content comes
// from the first source, in Source order, that supplied a non-empty payload.
// Records are ordered by combined score, ties by identifier.
func Fuse(lists Lists, weights Weights, boost float64, topK int) ([]core.FusionRecord, error) {
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return []core.FusionRecord{}, nil
	}

	byID := make(map[string]*core.FusionRecord)
	var order []string
	for src, list := range lists {
		seen := make(map[string]bool, len(list))
		for r, doc := range list[:min(len(list), topK)] {
			if doc.ID == "" || seen[doc.ID] {
				continue
			}
			seen[doc.ID] = true

			rec, ok := byID[doc.ID]
			if !ok {
				rec = &core.FusionRecord{ID: doc.ID}
				byID[doc.ID] = rec
				order = append(order, doc.ID)
			}
			rec.Scores[src] = 1 - float64(r)/float64(topK)
			if rec.Content == "" {
				rec.Content = doc.Content
			}
		}
	}

	out := make([]core.FusionRecord, 0, len(order))
	for _, id := range order {
		rec := byID[id]
		var base float64
		for src, s := range rec.Scores {
			base += weights[src] * s
			if s > 0 {
				rec.Overlap++
			}
		}
		rec.Combined = base
		if rec.Overlap > 1 {
			rec.Combined = base * (1 + boost*float64(rec.Overlap-1))
		}
		out = append(out, *rec)
	}

	slices.SortFunc(out, func(a, b core.FusionRecord) int {
		if c := cmp.Compare(b.Combined, a.Combined); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}
