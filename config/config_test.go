package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/poiesic/protrieve/core"
	"github.com/poiesic/protrieve/embed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "http://localhost:11434/v1", cfg.AI.EmbeddingHost)
	assert.Equal(t, 1024, cfg.AI.Dimension)
	assert.Equal(t, 5*time.Minute, cfg.AI.RequestTimeout)

	assert.Equal(t, 1000, cfg.Batch.MaxChunkLength)
	assert.Equal(t, 4000, cfg.Batch.TokenBudget)
	assert.Equal(t, 100, cfg.Batch.MaxBatch)

	assert.Equal(t, 256, cfg.Embed.MinBudget)
	assert.Equal(t, 1, cfg.Embed.Devices)
	assert.Equal(t, embed.PerProtein, cfg.Embed.Mode())

	assert.Equal(t, BackendAnnoy, cfg.ANN.Backend)
	assert.Equal(t, 10, cfg.ANN.Trees)
	assert.Equal(t, 250, cfg.ANN.Neighbors)
	assert.Equal(t, "protein_embeddings", cfg.ANN.Milvus.Collection)

	w := cfg.Fusion.Weights()
	assert.InDelta(t, 0.5, w[core.SourceVector], 1e-12)
	assert.InDelta(t, 0.3, w[core.SourceLexical], 1e-12)
	assert.InDelta(t, 0.2, w[core.SourceFullText], 1e-12)
	assert.Equal(t, 10, cfg.Fusion.TopK)
	assert.InDelta(t, 0.15, cfg.Fusion.OverlapBoost, 1e-12)

	assert.InDelta(t, 0.60, cfg.Thresholds.Broad, 1e-12)
	assert.InDelta(t, 0.80, cfg.Thresholds.Search, 1e-12)
	assert.InDelta(t, 0.90, cfg.Thresholds.Precise, 1e-12)

	assert.Empty(t, cfg.Cache.RedisAddress)
	assert.Len(t, cfg.BatcherOptions(), 3)
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, "protrieve.yaml", `
ai:
  encoder_host: http://gpu-box:8500/
  dimension: 512
batch:
  token_budget: 2000
embed:
  devices: 2
  per_protein: false
ann:
  backend: milvus
  milvus:
    address: milvus:19530
fusion:
  vector_weight: 0.6
  lexical_weight: 0.2
  fulltext_weight: 0.2
  top_k: 20
cache:
  redis_address: localhost:6379
  ttl: 24h
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://gpu-box:8500", cfg.AI.EncoderHost)
	assert.Equal(t, 512, cfg.AI.Dimension)
	assert.Equal(t, 2000, cfg.Batch.TokenBudget)
	assert.Equal(t, 1000, cfg.Batch.MaxChunkLength)
	assert.Equal(t, 2, cfg.Embed.Devices)
	assert.Equal(t, embed.PerResidue, cfg.Embed.Mode())
	assert.Equal(t, BackendMilvus, cfg.ANN.Backend)
	assert.Equal(t, "milvus:19530", cfg.ANN.Milvus.Address)
	assert.Equal(t, "protein_embeddings", cfg.ANN.Milvus.Collection)
	assert.InDelta(t, 0.6, cfg.Fusion.VectorWeight, 1e-12)
	assert.Equal(t, 20, cfg.Fusion.TopK)
	assert.Equal(t, "localhost:6379", cfg.Cache.RedisAddress)
	assert.Equal(t, 24*time.Hour, cfg.Cache.TTL)
}

func TestLoadJSON(t *testing.T) {
	path := writeConfig(t, "protrieve.json", `{"thresholds": {"search": 0.75}}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.InDelta(t, 0.75, cfg.Thresholds.Search, 1e-12)
	assert.InDelta(t, 0.90, cfg.Thresholds.Precise, 1e-12)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, "protrieve.yaml", `
ann:
  trees: 20
storage:
  dsn: from-file.db
`)
	t.Setenv("PROTRIEVE_ANN_TREES", "40")
	t.Setenv("PROTRIEVE_STORAGE_DSN", "postgres://db/protrieve")
	t.Setenv("PROTRIEVE_EMBED_PER_PROTEIN", "false")
	t.Setenv("PROTRIEVE_CACHE_TTL", "90m")
	t.Setenv("PROTRIEVE_ANN_MILVUS_COLLECTION", "uniref50")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 40, cfg.ANN.Trees)
	assert.Equal(t, "postgres://db/protrieve", cfg.Storage.DSN)
	assert.False(t, cfg.Embed.PerProtein)
	assert.Equal(t, 90*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, "uniref50", cfg.ANN.Milvus.Collection)
}

func TestLoadWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadErrors(t *testing.T) {
	t.Run("missing explicit file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})

	t.Run("malformed file", func(t *testing.T) {
		path := writeConfig(t, "bad.yaml", "ann: [unclosed")
		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("weights must sum to one", func(t *testing.T) {
		path := writeConfig(t, "weights.yaml", "fusion:\n  vector_weight: 0.9\n")
		_, err := Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "fusion")
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown backend", func(c *Config) { c.ANN.Backend = "faiss" }},
		{"annoy without path", func(c *Config) { c.ANN.Path = "" }},
		{"milvus without address", func(c *Config) {
			c.ANN.Backend = BackendMilvus
			c.ANN.Milvus.Address = ""
		}},
		{"zero trees", func(c *Config) { c.ANN.Trees = 0 }},
		{"zero token budget", func(c *Config) { c.Batch.TokenBudget = 0 }},
		{"zero devices", func(c *Config) { c.Embed.Devices = 0 }},
		{"negative boost", func(c *Config) { c.Fusion.OverlapBoost = -0.1 }},
		{"zero top k", func(c *Config) { c.Fusion.TopK = 0 }},
		{"threshold above one", func(c *Config) { c.Thresholds.Precise = 1.5 }},
		{"empty dsn", func(c *Config) { c.Storage.DSN = "" }},
		{"empty badger path", func(c *Config) { c.Storage.BadgerPath = "" }},
		{"negative ttl", func(c *Config) { c.Cache.TTL = -time.Second }},
		{"zero dimension", func(c *Config) { c.AI.Dimension = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
