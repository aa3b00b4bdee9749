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

package protrieve

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"

	"github.com/poiesic/protrieve/ai"
	"github.com/poiesic/protrieve/ai/openai"
	"github.com/poiesic/protrieve/ai/remote"
	"github.com/poiesic/protrieve/ann"
	"github.com/poiesic/protrieve/ann/milvus"
	"github.com/poiesic/protrieve/batch"
	"github.com/poiesic/protrieve/config"
	"github.com/poiesic/protrieve/core"
	"github.com/poiesic/protrieve/embed"
	"github.com/poiesic/protrieve/enrich"
	"github.com/poiesic/protrieve/fulltext"
	"github.com/poiesic/protrieve/ingestion"
	"github.com/poiesic/protrieve/lexical"
	"github.com/poiesic/protrieve/reindex"
	"github.com/poiesic/protrieve/search"
	"github.com/poiesic/protrieve/storage"
	"github.com/poiesic/protrieve/storage/badger"
	"github.com/poiesic/protrieve/storage/redis"
	"github.com/poiesic/protrieve/storage/sqlstore"
)

// Database wires the protrieve stores and services from one configuration.
type Database struct {
	config    *config.Config
	sql       *sqlstore.Store
	stores    *badger.Stores
	redis     *redis.Cache
	provider  ai.AIProvider
	generator *embed.Generator
	handle    *ann.Handle
	milvus    *milvus.Index
	lexical   *lexical.Retriever
	analyzer  *enrich.Analyzer
	logger    *slog.Logger
}

// DatabaseOption configures a Database.
type DatabaseOption func(*databaseOptions)

type databaseOptions struct {
	provider ai.AIProvider
	encoders []ai.SequenceEncoder
	stores   *badger.Stores
	logger   *slog.Logger
}

// WithProvider replaces the OpenAI-compatible text embedding provider.
func WithProvider(p ai.AIProvider) DatabaseOption {
	return func(o *databaseOptions) {
		o.provider = p
	}
}

// WithEncoders replaces the remote sequence encoders.
func WithEncoders(encoders ...ai.SequenceEncoder) DatabaseOption {
	return func(o *databaseOptions) {
		o.encoders = encoders
	}
}

// WithStores uses already opened badger stores instead of opening
// storage.badger_path. The database takes ownership of them.
func WithStores(s *badger.Stores) DatabaseOption {
	return func(o *databaseOptions) {
		o.stores = s
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) DatabaseOption {
	return func(o *databaseOptions) {
		o.logger = logger
	}
}

// NewDatabase opens the stores named by cfg and builds the services on top
// of them. A missing index file is not an error: sequence search reports
// ann.ErrNoIndex until an index is built.
func NewDatabase(ctx context.Context, cfg *config.Config, opts ...DatabaseOption) (*Database, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	options := &databaseOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	db := &Database{config: cfg, logger: options.logger}
	if err := db.open(ctx, options); err != nil {
		if cerr := db.Close(); cerr != nil {
			db.logger.Error("error closing partially opened database", "err", cerr)
		}
		return nil, err
	}
	return db, nil
}

func (db *Database) open(ctx context.Context, options *databaseOptions) error {
	cfg := db.config
	var err error

	db.stores = options.stores
	if db.stores == nil {
		db.stores, err = badger.OpenStores(cfg.Storage.BadgerPath)
		if err != nil {
			return fmt.Errorf("failed to open vector store: %w", err)
		}
	}

	db.sql, err = sqlstore.Open(ctx, cfg.Storage.DSN, sqlstore.WithLogger(db.logger))
	if err != nil {
		return fmt.Errorf("failed to open metadata store: %w", err)
	}

	var cache storage.EmbeddingCache = db.stores.Embeddings
	if cfg.Cache.RedisAddress != "" {
		db.redis, err = redis.NewCache(ctx, cfg.Cache.RedisAddress, cfg.Cache.TTL)
		if err != nil {
			return fmt.Errorf("failed to connect to embedding cache: %w", err)
		}
		cache = db.redis
	}

	db.provider = options.provider
	if db.provider == nil {
		db.provider, err = openai.NewProvider(&cfg.AI)
		if err != nil {
			return fmt.Errorf("failed to create text embedding provider: %w", err)
		}
	}

	encoders := options.encoders
	if len(encoders) == 0 {
		encoders, err = remote.NewEncoders(&cfg.AI, cfg.Embed.Devices)
		if err != nil {
			return fmt.Errorf("failed to create sequence encoders: %w", err)
		}
	}
	batcher, err := batch.NewBatcher(cfg.BatcherOptions()...)
	if err != nil {
		return err
	}
	db.generator, err = embed.NewGenerator(encoders,
		embed.WithBatcher(batcher),
		embed.WithMinBudget(cfg.Embed.MinBudget),
		embed.WithCache(cache),
		embed.WithLogger(db.logger))
	if err != nil {
		return err
	}

	if err := db.openIndex(ctx); err != nil {
		return err
	}

	db.lexical, err = lexical.NewRetriever(db.sql,
		lexical.WithCache(db.stores.Lexical),
		lexical.WithLogger(db.logger))
	if err != nil {
		return err
	}
	db.analyzer, err = enrich.NewAnalyzer(db.sql, db.logger)
	return err
}

func (db *Database) openIndex(ctx context.Context) error {
	cfg := db.config
	db.handle = ann.NewHandle(nil)
	if idx, err := ann.Load(cfg.ANN.Path); err == nil {
		if idx.Dimension() != db.generator.Dimension() {
			return fmt.Errorf("%w: index %s has %d, encoder has %d",
				ann.ErrDimensionMismatch, cfg.ANN.Path, idx.Dimension(), db.generator.Dimension())
		}
		db.handle.Swap(idx)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load index: %w", err)
	}

	if cfg.ANN.Backend != config.BackendMilvus {
		return nil
	}
	var err error
	db.milvus, err = milvus.Open(ctx, milvus.Config{
		Address:    cfg.ANN.Milvus.Address,
		Username:   cfg.ANN.Milvus.Username,
		Password:   cfg.ANN.Milvus.Password,
		Database:   cfg.ANN.Milvus.Database,
		Collection: cfg.ANN.Milvus.Collection,
		Dimension:  db.generator.Dimension(),
		Timeout:    cfg.ANN.Timeout,
	}, db.logger)
	return err
}

// Close releases the services and closes every store. The first error is
// returned after everything has been closed.
func (db *Database) Close() error {
	var errs []error
	if db.generator != nil {
		db.generator.Release()
	}
	if db.provider != nil {
		if err := db.provider.Close(); err != nil {
			db.logger.Error("error closing AI provider", "err", err)
		}
	}
	if db.milvus != nil {
		if err := db.milvus.Close(context.Background()); err != nil {
			db.logger.Error("error closing milvus client", "err", err)
			errs = append(errs, err)
		}
	}
	if db.redis != nil {
		if err := db.redis.Close(); err != nil {
			db.logger.Error("error closing embedding cache", "err", err)
			errs = append(errs, err)
		}
	}
	if db.stores != nil {
		if err := db.stores.Close(); err != nil {
			db.logger.Error("error closing vector store", "err", err)
			errs = append(errs, err)
		}
	}
	if db.sql != nil {
		if err := db.sql.Close(); err != nil {
			db.logger.Error("error closing metadata store", "err", err)
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

func (db *Database) Config() *config.Config {
	return db.config
}

func (db *Database) MetadataRepository() storage.MetadataRepository {
	return db.sql
}

func (db *Database) DocumentRepository() storage.DocumentRepository {
	return db.sql
}

func (db *Database) AnnotationRepository() storage.AnnotationRepository {
	return db.sql
}

func (db *Database) CheckpointRepository() storage.CheckpointRepository {
	return db.stores.Checkpoints
}

// Generator returns the shared embedding generator.
func (db *Database) Generator() *embed.Generator {
	return db.generator
}

// Analyzer returns the enrichment analyzer.
func (db *Database) Analyzer() *enrich.Analyzer {
	return db.analyzer
}

// Index returns the ANN index used for sequence search.
func (db *Database) Index() ann.Searcher {
	if db.milvus != nil {
		return db.milvus
	}
	return db.handle
}

func (db *Database) NewLoader(opts ...ingestion.LoaderOption) *ingestion.Loader {
	opts = append([]ingestion.LoaderOption{ingestion.WithLoaderLogger(db.logger)}, opts...)
	return ingestion.NewLoader(db.sql, db.sql, db.sql, opts...)
}

// NewDocumentPipeline returns a pipeline that embeds new flat files and
// refreshes the lexical cache. Callers must Release it.
func (db *Database) NewDocumentPipeline(opts ...ingestion.Option) (*ingestion.Pipeline, error) {
	opts = append([]ingestion.Option{
		ingestion.WithLexicalIndex(db.lexical),
		ingestion.WithLogger(db.logger),
	}, opts...)
	return ingestion.NewPipeline(db.sql, db.stores.Documents, db.stores.Checkpoints, db.provider, opts...)
}

// NewSearcher returns a text searcher fusing the dense, lexical and
// full-text retrievers with the configured policy.
func (db *Database) NewSearcher(opts ...search.Option) (*search.Searcher, error) {
	cfg := db.config
	vector, err := search.NewVectorRetriever(db.provider.Embedder(), db.stores.Documents, db.sql,
		search.WithMinSimilarity(float32(cfg.Thresholds.Broad)),
		search.WithVectorLogger(db.logger))
	if err != nil {
		return nil, err
	}
	text, err := fulltext.NewRetriever(db.sql, db.logger)
	if err != nil {
		return nil, err
	}

	opts = append([]search.Option{
		search.WithRetriever(core.SourceVector, vector),
		search.WithRetriever(core.SourceLexical, db.lexical),
		search.WithRetriever(core.SourceFullText, text),
		search.WithWeights(cfg.Fusion.Weights()),
		search.WithOverlapBoost(cfg.Fusion.OverlapBoost),
		search.WithTopK(cfg.Fusion.TopK),
		search.WithLogger(db.logger),
	}, opts...)
	return search.NewSearcher(opts...)
}

// NewSequenceSearcher returns a sequence searcher over the serving index
// with enrichment of precise hits.
func (db *Database) NewSequenceSearcher(opts ...search.SequenceOption) (*search.SequenceSearcher, error) {
	if db.milvus == nil && db.handle.Index() == nil {
		return nil, ann.ErrNoIndex
	}
	cfg := db.config
	opts = append([]search.SequenceOption{
		search.WithNeighbors(cfg.ANN.Neighbors),
		search.WithEnricher(db.analyzer),
		search.WithPreciseThreshold(cfg.Thresholds.Precise),
		search.WithSequenceLogger(db.logger),
	}, opts...)
	return search.NewSequenceSearcher(db.generator, db.Index(), db.sql, opts...)
}

// IndexBuilderConfig returns the rebuild settings implied by the
// configuration.
func (db *Database) IndexBuilderConfig() *reindex.Config {
	rc := reindex.DefaultConfig()
	rc.Trees = db.config.ANN.Trees
	rc.LeafSize = db.config.ANN.LeafSize
	return rc
}

// NewIndexBuilder returns an index builder over the shared generator,
// mirrored into Milvus when that backend is selected. A nil rc uses
// IndexBuilderConfig.
func (db *Database) NewIndexBuilder(rc *reindex.Config, progress io.Writer, opts ...reindex.Option) (*reindex.Builder, error) {
	if rc == nil {
		rc = db.IndexBuilderConfig()
	}
	opts = append([]reindex.Option{reindex.WithLogger(db.logger)}, opts...)
	if db.milvus != nil {
		opts = append(opts, reindex.WithSink(db.milvus))
	}
	return reindex.NewBuilder(db.generator, db.sql, rc, progress, opts...)
}

// RebuildIndex indexes the FASTA stream r into the configured index path
// and swaps the new index into the serving handle.
func (db *Database) RebuildIndex(ctx context.Context, builder *reindex.Builder, r io.Reader, total int) (*reindex.Summary, error) {
	summary, err := builder.Run(ctx, r, total, db.config.ANN.Path)
	if err != nil {
		return nil, err
	}
	db.handle.Swap(summary.Index)
	return summary, nil
}
