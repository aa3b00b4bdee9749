package ai

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Equal(t, "http://localhost:11434/v1", cfg.EmbeddingHost)
	assert.Equal(t, "nomic-embed-text", cfg.EmbeddingModel)
	assert.Equal(t, "http://localhost:8500", cfg.EncoderHost)
	assert.Equal(t, 1024, cfg.Dimension)
	assert.Equal(t, 5*time.Minute, cfg.RequestTimeout)
	assert.NoError(t, cfg.Validate())
}

func TestNewConfig(t *testing.T) {
	t.Run("with no options", func(t *testing.T) {
		cfg := NewConfig()
		assert.Equal(t, DefaultConfig(), cfg)
	})

	t.Run("with custom hosts", func(t *testing.T) {
		cfg := NewConfig(
			WithEmbeddingHost("http://embed:8080/v1"),
			WithEncoderHost("http://gpu:8500"),
		)

		assert.Equal(t, "http://embed:8080/v1", cfg.EmbeddingHost)
		assert.Equal(t, "http://gpu:8500", cfg.EncoderHost)
	})

	t.Run("with custom models and dimension", func(t *testing.T) {
		cfg := NewConfig(
			WithEmbeddingModel("text-embedding-3-small"),
			WithEncoderModel("esm2_t33_650M"),
			WithDimension(1280),
			WithRequestTimeout(time.Second),
		)

		assert.Equal(t, "text-embedding-3-small", cfg.EmbeddingModel)
		assert.Equal(t, "esm2_t33_650M", cfg.EncoderModel)
		assert.Equal(t, 1280, cfg.Dimension)
		assert.Equal(t, time.Second, cfg.RequestTimeout)
	})
}

func TestConfigNormalize(t *testing.T) {
	tests := []struct {
		name        string
		embedding   string
		encoder     string
		wantEmbed   string
		wantEncoder string
	}{
		{
			name:        "adds v1 suffix",
			embedding:   "http://localhost:11434",
			encoder:     "http://gpu:8500",
			wantEmbed:   "http://localhost:11434/v1",
			wantEncoder: "http://gpu:8500",
		},
		{
			name:        "trailing slashes",
			embedding:   "http://localhost:11434/",
			encoder:     "http://gpu:8500/",
			wantEmbed:   "http://localhost:11434/v1",
			wantEncoder: "http://gpu:8500",
		},
		{
			name:        "already normalized",
			embedding:   "http://localhost:11434/v1",
			encoder:     "http://gpu:8500",
			wantEmbed:   "http://localhost:11434/v1",
			wantEncoder: "http://gpu:8500",
		},
		{
			name:        "empty hosts stay empty",
			wantEmbed:   "",
			wantEncoder: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{EmbeddingHost: tt.embedding, EncoderHost: tt.encoder}
			cfg.Normalize()
			assert.Equal(t, tt.wantEmbed, cfg.EmbeddingHost)
			assert.Equal(t, tt.wantEncoder, cfg.EncoderHost)
		})
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing embedding host", mutate: func(c *Config) { c.EmbeddingHost = "" }, wantErr: "EmbeddingHost is required"},
		{name: "missing embedding model", mutate: func(c *Config) { c.EmbeddingModel = "" }, wantErr: "EmbeddingModel is required"},
		{name: "missing encoder host", mutate: func(c *Config) { c.EncoderHost = "" }, wantErr: "EncoderHost is required"},
		{name: "zero dimension", mutate: func(c *Config) { c.Dimension = 0 }, wantErr: "Dimension must be positive"},
		{name: "negative timeout", mutate: func(c *Config) { c.RequestTimeout = -time.Second }, wantErr: "RequestTimeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
