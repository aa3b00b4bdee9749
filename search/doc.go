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

// Package search ranks proteins for sequence and free-text queries.
//
// Free-text queries fan out to up to three retrievers (dense vectors over
// document embeddings, sparse lexical weights, and the full-text index) and
// the ranked lists are merged by Fuse:
//   - each list is scored by rank as 1 - r/topK
//   - per-source scores are combined with fixed weights summing to one
//   - identifiers found by several sources are boosted by 15% per extra source
//
// Sequence queries are embedded, looked up in the ANN index and resolved to
// protein metadata by SequenceSearcher, optionally followed by GO enrichment
// of the closest hits.
package search
