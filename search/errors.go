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

package search

import "errors"

var (
	// ErrInvalidWeights is returned when fusion weights are negative or do
	// not sum to one.
	ErrInvalidWeights = errors.New("fusion weights must be non-negative and sum to 1")

	// ErrNoRetrievers is returned when a Searcher has no retriever configured.
	ErrNoRetrievers = errors.New("at least one retriever required")

	// ErrEmbedderRequired is returned when a text embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrDocumentRepositoryRequired is returned when a document repository is not provided.
	ErrDocumentRepositoryRequired = errors.New("document repository required")

	// ErrVectorRepositoryRequired is returned when a document vector repository is not provided.
	ErrVectorRepositoryRequired = errors.New("document vector repository required")

	// ErrGeneratorRequired is returned when a sequence embedding generator is not provided.
	ErrGeneratorRequired = errors.New("embedding generator required")

	// ErrIndexRequired is returned when an ANN index is not provided.
	ErrIndexRequired = errors.New("ANN index required")

	// ErrMetadataRepositoryRequired is returned when a metadata repository is not provided.
	ErrMetadataRepositoryRequired = errors.New("metadata repository required")
)
