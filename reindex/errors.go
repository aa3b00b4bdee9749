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

package reindex

import "errors"

var (
	// ErrInvalidMaxAttempts is returned when maxAttempts is <= 0
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")

	// ErrNoSequences is returned when the input holds no FASTA records.
	ErrNoSequences = errors.New("no sequences to index")

	// ErrEmbedderRequired is returned when no sequence embedder is provided.
	ErrEmbedderRequired = errors.New("sequence embedder required")

	// ErrMetadataRepositoryRequired is returned when no metadata repository is provided.
	ErrMetadataRepositoryRequired = errors.New("metadata repository required")
)
