package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/poiesic/protrieve/ai"
	"github.com/poiesic/protrieve/ann"
	"github.com/poiesic/protrieve/batch"
	"github.com/poiesic/protrieve/core"
	"github.com/poiesic/protrieve/embed"
	"github.com/poiesic/protrieve/search"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "PROTRIEVE"

// ANN backends.
const (
	BackendAnnoy  = "annoy"
	BackendMilvus = "milvus"
)

// Config aggregates the settings of every protrieve component.
type Config struct {
	AI         ai.Config       `mapstructure:"ai"`
	Batch      BatchConfig     `mapstructure:"batch"`
	Embed      EmbedConfig     `mapstructure:"embed"`
	ANN        ANNConfig       `mapstructure:"ann"`
	Fusion     FusionConfig    `mapstructure:"fusion"`
	Thresholds ThresholdConfig `mapstructure:"thresholds"`
	Storage    StorageConfig   `mapstructure:"storage"`
	Cache      CacheConfig     `mapstructure:"cache"`
}

// BatchConfig controls how sequences are chunked and packed.
type BatchConfig struct {
	MaxChunkLength int `mapstructure:"max_chunk_length"`
	TokenBudget    int `mapstructure:"token_budget"`
	MaxBatch       int `mapstructure:"max_batch"`
}

// EmbedConfig controls the embedding generator.
type EmbedConfig struct {
	// MinBudget is the token budget floor for out-of-memory recovery.
	MinBudget int `mapstructure:"min_budget"`

	// Devices is the number of encoder devices driven in parallel.
	Devices int `mapstructure:"devices"`

	// PerProtein selects mean-pooled vectors over per-residue matrices for
	// exported embeddings. Index builds are always per-protein.
	PerProtein bool `mapstructure:"per_protein"`
}

// ANNConfig selects and shapes the nearest-neighbor index.
type ANNConfig struct {
	Backend   string        `mapstructure:"backend"`
	Path      string        `mapstructure:"path"`
	Trees     int           `mapstructure:"trees"`
	LeafSize  int           `mapstructure:"leaf_size"`
	Neighbors int           `mapstructure:"neighbors"`
	Milvus    MilvusConfig  `mapstructure:"milvus"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// MilvusConfig names the Milvus deployment used by the milvus backend.
type MilvusConfig struct {
	Address    string `mapstructure:"address"`
	Username   string `mapstructure:"username"`
	Password   string `mapstructure:"password"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
}

// FusionConfig holds the rank fusion policy.
type FusionConfig struct {
	VectorWeight   float64 `mapstructure:"vector_weight"`
	LexicalWeight  float64 `mapstructure:"lexical_weight"`
	FullTextWeight float64 `mapstructure:"fulltext_weight"`
	TopK           int     `mapstructure:"top_k"`
	OverlapBoost   float64 `mapstructure:"overlap_boost"`
}

// ThresholdConfig holds the similarity cutoffs.
type ThresholdConfig struct {
	// Broad is the minimum document similarity of the dense text retriever.
	Broad float64 `mapstructure:"broad"`

	// Search is the default cutoff for sequence search hits.
	Search float64 `mapstructure:"search"`

	// Precise is the cutoff for hits fed to enrichment.
	Precise float64 `mapstructure:"precise"`
}

// StorageConfig locates the persistent stores.
type StorageConfig struct {
	// DSN is a sqlite path or sqlite:// URL, or a postgres:// URL.
	DSN string `mapstructure:"dsn"`

	// BadgerPath is the directory of the vector and cache store.
	BadgerPath string `mapstructure:"badger_path"`
}

// CacheConfig configures the shared embedding cache. An empty RedisAddress
// keeps the cache in the local badger store.
type CacheConfig struct {
	RedisAddress string        `mapstructure:"redis_address"`
	TTL          time.Duration `mapstructure:"ttl"`
}

// Weights returns the fusion weights indexed by source.
func (f FusionConfig) Weights() search.Weights {
	var w search.Weights
	w[core.SourceVector] = f.VectorWeight
	w[core.SourceLexical] = f.LexicalWeight
	w[core.SourceFullText] = f.FullTextWeight
	return w
}

// Mode returns the embedding aggregation mode.
func (e EmbedConfig) Mode() embed.Mode {
	if e.PerProtein {
		return embed.PerProtein
	}
	return embed.PerResidue
}

func setDefaults(v *viper.Viper) {
	d := ai.DefaultConfig()
	v.SetDefault("ai.embedding_host", d.EmbeddingHost)
	v.SetDefault("ai.embedding_model", d.EmbeddingModel)
	v.SetDefault("ai.encoder_host", d.EncoderHost)
	v.SetDefault("ai.encoder_model", d.EncoderModel)
	v.SetDefault("ai.dimension", d.Dimension)
	v.SetDefault("ai.request_timeout", d.RequestTimeout)

	v.SetDefault("batch.max_chunk_length", batch.DefaultMaxChunkLength)
	v.SetDefault("batch.token_budget", batch.DefaultTokenBudget)
	v.SetDefault("batch.max_batch", batch.DefaultMaxBatch)

	v.SetDefault("embed.min_budget", embed.DefaultMinBudget)
	v.SetDefault("embed.devices", 1)
	v.SetDefault("embed.per_protein", true)

	v.SetDefault("ann.backend", BackendAnnoy)
	v.SetDefault("ann.path", "data/proteins.ann")
	v.SetDefault("ann.trees", ann.DefaultTrees)
	v.SetDefault("ann.leaf_size", ann.DefaultLeafSize)
	v.SetDefault("ann.neighbors", search.DefaultNeighbors)
	v.SetDefault("ann.timeout", 10*time.Second)
	v.SetDefault("ann.milvus.address", "localhost:19530")
	v.SetDefault("ann.milvus.username", "")
	v.SetDefault("ann.milvus.password", "")
	v.SetDefault("ann.milvus.database", "")
	v.SetDefault("ann.milvus.collection", "protein_embeddings")

	w := search.DefaultWeights()
	v.SetDefault("fusion.vector_weight", w[core.SourceVector])
	v.SetDefault("fusion.lexical_weight", w[core.SourceLexical])
	v.SetDefault("fusion.fulltext_weight", w[core.SourceFullText])
	v.SetDefault("fusion.top_k", search.DefaultTopK)
	v.SetDefault("fusion.overlap_boost", search.DefaultOverlapBoost)

	v.SetDefault("thresholds.broad", search.DefaultMinDocumentSimilarity)
	v.SetDefault("thresholds.search", search.DefaultSearchThreshold)
	v.SetDefault("thresholds.precise", search.DefaultPreciseThreshold)

	v.SetDefault("storage.dsn", "data/protrieve.db")
	v.SetDefault("storage.badger_path", "data/badger")

	v.SetDefault("cache.redis_address", "")
	v.SetDefault("cache.ttl", time.Duration(0))
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg, err := load(viper.New(), "", false)
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from path, or when path is empty from
// protrieve.{yaml,toml,json} in the working directory or
// $HOME/.config/protrieve if one exists. Environment variables override file
// values. The result is validated.
func Load(path string) (*Config, error) {
	return load(viper.New(), path, true)
}

func load(v *viper.Viper, path string, readSources bool) (*Config, error) {
	setDefaults(v)

	if readSources {
		if path != "" {
			v.SetConfigFile(path)
		} else {
			v.SetConfigName("protrieve")
			v.AddConfigPath(".")
			v.AddConfigPath("$HOME/.config/protrieve")
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}

		v.SetEnvPrefix(EnvPrefix)
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
		v.AutomaticEnv()
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every section and normalizes the AI hosts.
func (c *Config) Validate() error {
	if err := c.AI.Validate(); err != nil {
		return err
	}

	if c.Batch.MaxChunkLength <= 0 {
		return errors.New("config: batch.max_chunk_length must be positive")
	}
	if c.Batch.TokenBudget <= 0 {
		return errors.New("config: batch.token_budget must be positive")
	}
	if c.Batch.MaxBatch <= 0 {
		return errors.New("config: batch.max_batch must be positive")
	}

	if c.Embed.MinBudget <= 0 {
		return errors.New("config: embed.min_budget must be positive")
	}
	if c.Embed.Devices <= 0 {
		return errors.New("config: embed.devices must be positive")
	}

	switch c.ANN.Backend {
	case BackendAnnoy:
		if c.ANN.Path == "" {
			return errors.New("config: ann.path is required for the annoy backend")
		}
	case BackendMilvus:
		if c.ANN.Milvus.Address == "" || c.ANN.Milvus.Collection == "" {
			return errors.New("config: ann.milvus.address and ann.milvus.collection are required for the milvus backend")
		}
	default:
		return fmt.Errorf("config: unknown ann.backend %q: must be %s or %s", c.ANN.Backend, BackendAnnoy, BackendMilvus)
	}
	if c.ANN.Trees <= 0 || c.ANN.LeafSize <= 0 || c.ANN.Neighbors <= 0 {
		return errors.New("config: ann.trees, ann.leaf_size and ann.neighbors must be positive")
	}

	if err := c.Fusion.Weights().Validate(); err != nil {
		return fmt.Errorf("config: fusion: %w", err)
	}
	if c.Fusion.TopK <= 0 {
		return errors.New("config: fusion.top_k must be positive")
	}
	if c.Fusion.OverlapBoost < 0 {
		return errors.New("config: fusion.overlap_boost cannot be negative")
	}

	for name, t := range map[string]float64{
		"broad":   c.Thresholds.Broad,
		"search":  c.Thresholds.Search,
		"precise": c.Thresholds.Precise,
	} {
		if t < -1 || t > 1 {
			return fmt.Errorf("config: thresholds.%s must be within [-1, 1], got %g", name, t)
		}
	}

	if c.Storage.DSN == "" {
		return errors.New("config: storage.dsn is required")
	}
	if c.Storage.BadgerPath == "" {
		return errors.New("config: storage.badger_path is required")
	}
	if c.Cache.TTL < 0 {
		return errors.New("config: cache.ttl cannot be negative")
	}
	return nil
}

// BatcherOptions returns the batch.Batcher options for this configuration.
func (c *Config) BatcherOptions() []batch.Option {
	return []batch.Option{
		batch.WithMaxChunkLength(c.Batch.MaxChunkLength),
		batch.WithTokenBudget(c.Batch.TokenBudget),
		batch.WithMaxBatch(c.Batch.MaxBatch),
	}
}
