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

package core

import "errors"

// Domain validation errors
var (
	// ErrInvalidSequence indicates a Sequence failed validation.
	ErrInvalidSequence = errors.New("invalid sequence")

	// ErrEmptySequence indicates a sequence has no residues left after
	// header stripping or cleaning.
	ErrEmptySequence = errors.New("sequence cannot be empty")

	// ErrEmptySequenceID indicates the sequence identifier is empty.
	ErrEmptySequenceID = errors.New("sequence id cannot be empty")

	// ErrInvalidResidue indicates a residue outside the A-Z alphabet.
	ErrInvalidResidue = errors.New("invalid residue")

	// ErrInvalidEmbedding indicates an Embedding failed validation.
	ErrInvalidEmbedding = errors.New("invalid embedding")

	// ErrEmptyEmbedding indicates an embedding with no components.
	ErrEmptyEmbedding = errors.New("embedding cannot be empty")

	// ErrNonFiniteEmbedding indicates an embedding component is NaN or infinite.
	ErrNonFiniteEmbedding = errors.New("embedding component is not finite")
)
