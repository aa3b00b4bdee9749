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

// Package ai provides abstractions for the model services used by protrieve.
//
// Two kinds of model are involved:
//
//   - SequenceEncoder: a protein language model returning one vector per
//     residue for each input chunk. Encoders report memory exhaustion with
//     ErrOutOfMemory so callers can shrink their work and retry.
//   - Embedder: a text embedding model used for dense retrieval over
//     UniProt flat-file documents.
//
// # Implementation Packages
//
//   - ai/openai: text embeddings through OpenAI-compatible APIs (langchaingo)
//   - ai/remote: HTTP client for a sequence encoder service
//   - ai/mock: deterministic test doubles
//
// Public constructors in implementation packages return interface types.
// Mock constructors return concrete types so tests can inject behaviour and
// inspect call counts.
//
//	provider, err := openai.NewProvider(ai.DefaultConfig())
//	vec, err := provider.Embedder().EmbedText(ctx, "heme binding")
//
//	enc := mock.NewMockEncoder(64)
//	enc.MaxTokens = 512 // report ErrOutOfMemory above 512 residues per call
package ai
