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

package fulltext

import (
	"cmp"
	"context"
	"errors"
	"log/slog"
	"slices"

	"github.com/poiesic/protrieve/core"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/poiesic/protrieve/fulltext")

// ErrIndexRequired is returned when no full-text index is given.
var ErrIndexRequired = errors.New("full-text index is required")

// Index runs one match phrase against the full-text index.
// storage.DocumentRepository satisfies it.
type Index interface {
	SearchFullText(ctx context.Context, phrase string, limit int) ([]core.FlatFile, error)
}

// Retriever ranks documents by accumulated sub-query weight.
type Retriever struct {
	index  Index
	logger *slog.Logger
}

// NewRetriever creates a retriever. A nil logger uses slog.Default().
func NewRetriever(index Index, logger *slog.Logger) (*Retriever, error) {
	if index == nil {
		return nil, ErrIndexRequired
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{index: index, logger: logger.With("component", "fulltext-retriever")}, nil
}

// Retrieve returns up to topK documents, highest accumulated weight first,
// ties by accession. Each phrase fetches at most topK matches. A failing
// phrase is logged and skipped.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int) ([]core.RetrievalDocument, error) {
	ctx, span := tracer.Start(ctx, "fulltext.Retrieve", trace.WithAttributes(
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

func (r *Retriever) retrieve(ctx context.Context, query string, topK int) ([]core.RetrievalDocument, error) {
	subs := ParseQuery(query)
	if len(subs) == 0 || topK <= 0 {
		r.logger.Debug("no full-text search terms", "query", query)
		return nil, nil
	}

	hits := make(map[string]*core.RetrievalDocument)
	for _, sq := range subs {
		for _, phrase := range sq.Expansions {
			files, err := r.index.SearchFullText(ctx, phrase, topK)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return nil, ctxErr
				}
				r.logger.Warn("full-text phrase failed", "phrase", phrase, "err", err)
				continue
			}
			for _, f := range files {
				acc, ok := core.AccessionFromFlatFile(f.Content)
				if !ok {
					continue
				}
				doc, seen := hits[acc]
				if !seen {
					doc = &core.RetrievalDocument{ID: acc, Source: core.SourceFullText}
					hits[acc] = doc
				}
				doc.Content = f.Content
				doc.Score += sq.Weight
			}
		}
	}

	out := make([]core.RetrievalDocument, 0, len(hits))
	for _, d := range hits {
		out = append(out, *d)
	}
	slices.SortFunc(out, func(a, b core.RetrievalDocument) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}
