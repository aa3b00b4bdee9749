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

package lexical

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/poiesic/protrieve/core"
	"github.com/poiesic/protrieve/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// pageSize is the number of flat files read per corpus page while fitting.
const pageSize = 500

var tracer = otel.Tracer("github.com/poiesic/protrieve/lexical")

// ErrDocumentsRequired is returned when no document repository is given.
var ErrDocumentsRequired = errors.New("document repository is required")

// Retriever ranks documents by BM25 similarity to a query.
type Retriever struct {
	docs   storage.DocumentRepository
	cache  storage.LexicalCache
	params Params
	logger *slog.Logger

	mu          sync.Mutex
	ready       atomic.Bool
	index       atomic.Pointer[invertedIndex]
	fingerprint string
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithCache persists fitted snapshots so later processes skip fitting.
func WithCache(cache storage.LexicalCache) Option {
	return func(r *Retriever) {
		r.cache = cache
	}
}

// WithParams overrides the BM25 constants.
func WithParams(p Params) Option {
	return func(r *Retriever) {
		r.params = p
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Retriever) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRetriever creates a retriever over docs. It does no I/O until
// Initialize or the first Retrieve.
func NewRetriever(docs storage.DocumentRepository, opts ...Option) (*Retriever, error) {
	if docs == nil {
		return nil, ErrDocumentsRequired
	}
	r := &Retriever{
		docs:   docs,
		params: DefaultParams(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "lexical-retriever")
	return r, nil
}

// Initialize loads or fits the index for the current corpus. Calls after
// the first successful one return immediately; concurrent callers block
// until the first finishes. A failed initialization is retried by the next
// call.
func (r *Retriever) Initialize(ctx context.Context) error {
	if r.ready.Load() {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ready.Load() {
		return nil
	}

	fp, err := r.docs.CorpusFingerprint(ctx)
	if err != nil {
		return fmt.Errorf("fingerprint corpus: %w", err)
	}

	snap, err := r.load(ctx, fp)
	if err != nil {
		return err
	}
	if snap == nil {
		if snap, err = r.fit(ctx); err != nil {
			return err
		}
		if r.cache != nil {
			if err := r.cache.SaveLexicalSnapshot(ctx, fp, snap); err != nil {
				r.logger.Warn("failed to persist lexical snapshot", "err", err)
			}
		}
	}

	r.index.Store(newInvertedIndex(snap))
	r.fingerprint = fp
	r.ready.Store(true)
	return nil
}

// Invalidate drops the fitted index so the next call refits or reloads it
// for the then-current corpus.
func (r *Retriever) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ready.Store(false)
	r.index.Store(nil)
	r.fingerprint = ""
}

// Fingerprint returns the corpus fingerprint of the loaded index, or "".
func (r *Retriever) Fingerprint() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fingerprint
}

func (r *Retriever) load(ctx context.Context, fp string) (*core.LexicalSnapshot, error) {
	if r.cache == nil {
		return nil, nil
	}
	snap, err := r.cache.LoadLexicalSnapshot(ctx, fp)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return nil, nil
	case err != nil:
		r.logger.Warn("lexical snapshot unreadable, refitting", "err", err)
		return nil, nil
	}
	r.logger.Debug("loaded lexical snapshot", "documents", snap.DocCount)
	return snap, nil
}

func (r *Retriever) fit(ctx context.Context) (*core.LexicalSnapshot, error) {
	f := newFitter(r.params)
	var after int64
	for {
		page, err := r.docs.FlatFilesAfter(ctx, after, pageSize)
		if err != nil {
			return nil, fmt.Errorf("read corpus: %w", err)
		}
		for _, doc := range page {
			f.add(doc.FileID, doc.Content)
		}
		if len(page) < pageSize {
			break
		}
		after = page[len(page)-1].FileID
	}
	snap := f.snapshot()
	r.logger.Info("fitted lexical index", "documents", snap.DocCount, "terms", len(snap.DocFreq))
	return snap, nil
}

// Retrieve returns up to topK documents with a positive score, best first.
// Documents without an accession are skipped.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int) ([]core.RetrievalDocument, error) {
	ctx, span := tracer.Start(ctx, "lexical.Retrieve", trace.WithAttributes(
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
	if err := r.Initialize(ctx); err != nil {
		return nil, err
	}
	idx := r.index.Load()
	if idx == nil {
		return nil, nil
	}

	hits := idx.top(query, topK)
	if len(hits) == 0 {
		return nil, nil
	}

	ids := make([]int64, len(hits))
	for i, h := range hits {
		ids[i] = h.fileID
	}
	files, err := r.docs.FlatFiles(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve lexical hits: %w", err)
	}

	out := make([]core.RetrievalDocument, 0, len(hits))
	for _, h := range hits {
		f, ok := files[h.fileID]
		if !ok || f.ProteinID == "" {
			r.logger.Debug("skipping lexical hit without accession", "file_id", h.fileID)
			continue
		}
		out = append(out, core.RetrievalDocument{
			ID:      f.ProteinID,
			Content: f.Content,
			Score:   h.score,
			Source:  core.SourceLexical,
		})
	}
	return out, nil
}
