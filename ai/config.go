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

package ai

import (
	"errors"
	"strings"
	"time"
)

// Config holds configuration for model service providers.
type Config struct {
	// EmbeddingHost is the base URL for the text embedding service API.
	// Example: "http://localhost:11434/v1" for a local OpenAI-compatible server
	EmbeddingHost string `mapstructure:"embedding_host"`

	// EmbeddingModel is the model identifier to use for text embeddings.
	// Example: "nomic-embed-text"
	EmbeddingModel string `mapstructure:"embedding_model"`

	// EncoderHost is the base URL of the protein sequence encoder service.
	// Example: "http://localhost:8500"
	EncoderHost string `mapstructure:"encoder_host"`

	// EncoderModel names the protein language model served by EncoderHost.
	EncoderModel string `mapstructure:"encoder_model"`

	// Dimension is the width of sequence embeddings.
	// Default: 1024
	Dimension int `mapstructure:"dimension"`

	// RequestTimeout bounds a single encoder HTTP call.
	// Default: 5m
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithEmbeddingHost sets the embedding service host URL.
func WithEmbeddingHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
	}
}

// WithEmbeddingModel sets the embedding model identifier.
func WithEmbeddingModel(model string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingModel = model
	}
}

// WithEncoderHost sets the sequence encoder service URL.
func WithEncoderHost(host string) ConfigOption {
	return func(c *Config) {
		c.EncoderHost = host
	}
}

// WithEncoderModel sets the sequence encoder model name.
func WithEncoderModel(model string) ConfigOption {
	return func(c *Config) {
		c.EncoderModel = model
	}
}

// WithDimension sets the sequence embedding width.
func WithDimension(dim int) ConfigOption {
	return func(c *Config) {
		c.Dimension = dim
	}
}

// WithRequestTimeout sets the encoder request timeout.
func WithRequestTimeout(d time.Duration) ConfigOption {
	return func(c *Config) {
		c.RequestTimeout = d
	}
}

// DefaultConfig returns a Config with sensible defaults for locally hosted services.
func DefaultConfig() *Config {
	return &Config{
		EmbeddingHost:  "http://localhost:11434/v1",
		EmbeddingModel: "nomic-embed-text",
		EncoderHost:    "http://localhost:8500",
		EncoderModel:   "prot_t5_xl_half_uniref50-enc",
		Dimension:      1024,
		RequestTimeout: 5 * time.Minute,
	}
}

// NewConfig creates a Config with the default values and applies the provided options.
//
// Example:
//
//	cfg := NewConfig(
//	    WithEncoderHost("http://gpu-box:8500"),
//	    WithDimension(1024),
//	)
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Normalize ensures the configuration is in a canonical form.
// The embedding host gets a /v1 suffix, which OpenAI-compatible APIs
// (Ollama, LocalAI, vLLM) require. The encoder host loses any trailing slash.
func (c *Config) Normalize() {
	if c.EmbeddingHost != "" && !strings.HasSuffix(c.EmbeddingHost, "/v1") {
		c.EmbeddingHost = strings.TrimSuffix(c.EmbeddingHost, "/")
		c.EmbeddingHost = c.EmbeddingHost + "/v1"
	}
	c.EncoderHost = strings.TrimSuffix(c.EncoderHost, "/")
}

// Validate checks that the configuration is valid and complete.
// It automatically normalizes the configuration before validation.
func (c *Config) Validate() error {
	c.Normalize()

	if c.EmbeddingHost == "" {
		return errors.New("ai config: EmbeddingHost is required")
	}
	if c.EmbeddingModel == "" {
		return errors.New("ai config: EmbeddingModel is required")
	}
	if c.EncoderHost == "" {
		return errors.New("ai config: EncoderHost is required")
	}
	if c.Dimension <= 0 {
		return errors.New("ai config: Dimension must be positive")
	}
	if c.RequestTimeout < 0 {
		return errors.New("ai config: RequestTimeout cannot be negative")
	}
	return nil
}
