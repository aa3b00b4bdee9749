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

package embed

import (
	"errors"
	"fmt"
)

var (
	// ErrEncoderRequired indicates that no sequence encoder was supplied.
	ErrEncoderRequired = errors.New("at least one sequence encoder is required")

	// ErrDimensionMismatch indicates encoders report different output widths.
	ErrDimensionMismatch = errors.New("encoders report different dimensions")

	// ErrInvalidMinBudget indicates a non-positive budget floor.
	ErrInvalidMinBudget = errors.New("minimum token budget must be positive")

	// ErrUnsplittable indicates the encoder ran out of memory on a single
	// residue at the budget floor, so no smaller unit of work exists.
	ErrUnsplittable = errors.New("encoder out of memory on a single residue")
)

// MissingEmbeddingError reports that an embedding pass produced no result
// for a requested sequence id. It is a contract violation, never a normal
// empty result.
type MissingEmbeddingError struct {
	Key string
}

func (e *MissingEmbeddingError) Error() string {
	return fmt.Sprintf("no embedding produced for sequence %q", e.Key)
}
