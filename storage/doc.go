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

// Package storage provides the storage abstraction layer for protrieve.
//
// This package defines repository interfaces that decouple storage
// implementation from retrieval logic. Two families of backends exist:
//
//   - storage/sqlstore keeps relational metadata: the ANN slot map, protein
//     records, flat-file documents with their full-text index, GO
//     annotations and background counts. It runs on SQLite or PostgreSQL.
//   - storage/badger keeps binary artifacts: document vectors, the lexical
//     snapshot cache, sequence embedding cache entries and checkpoints.
//     storage/redis offers the embedding cache on a shared server.
//
// # Constructor Return Type Pattern
//
// Public constructors return concrete types that satisfy one or more of the
// interfaces here; consumers accept the narrowest interface they need:
//
//	store, err := sqlstore.Open(ctx, "file:protrieve.db")
//	searcher := search.NewSequenceSearcher(generator, index, store)
//
// # Serialization
//
// Binary values are encoded with mus-go. See MarshalVector,
// MarshalLexicalSnapshot and MarshalCheckpoint.
//
// # Thread Safety
//
// All repository implementations must be thread-safe and support
// concurrent access from multiple goroutines.
//
// # Context Support
//
// All repository methods accept context.Context for cancellation
// and timeout support. Pass context.Background() for operations
// without specific timeout requirements.
package storage
