// Package mock provides test double implementations of AI service interfaces.
//
// This package contains mock implementations of ai.Embedder,
// ai.SequenceEncoder and ai.AIProvider for use in unit tests. The mocks
// allow tests to run without external model services and give controlled,
// deterministic behavior.
//
// # Usage in Tests
//
//	// Text embeddings with default behavior
//	mockProvider := mock.NewMockProvider()
//	vec, err := mockProvider.Embedder().EmbedText(ctx, "test")
//
//	// Simulated device memory limits
//	enc := mock.NewMockEncoder(32)
//	enc.MaxTokens = 300
//	enc.MaxSequence = 100
//
//	// Check call counts
//	count := enc.CallCount()
//
// # Default Behavior
//
//   - MockEmbedder: Returns deterministic unit vectors based on a text hash
//   - MockEncoder: Returns one vector per residue derived from the residue letter
//   - MockProvider: Wraps a MockEmbedder
package mock
