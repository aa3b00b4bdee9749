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

import (
	"fmt"
	"math"
	"strings"
)

// ValidateSequence validates a Sequence according to domain rules.
//
// Validation rules:
//   - ID must not be empty
//   - Residues must not be empty
//   - Residues must be ASCII letters (case is normalized later)
func ValidateSequence(seq *Sequence) error {
	if seq == nil {
		return fmt.Errorf("%w: sequence is nil", ErrInvalidSequence)
	}

	if seq.ID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidSequence, ErrEmptySequenceID)
	}

	if seq.Residues == "" {
		return fmt.Errorf("%w: %w", ErrInvalidSequence, ErrEmptySequence)
	}

	if err := ValidateResidues(seq.Residues); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidSequence, seq.ID, err)
	}

	return nil
}

// ValidateResidues checks that every residue is an ASCII letter.
func ValidateResidues(residues string) error {
	for i := 0; i < len(residues); i++ {
		c := residues[i]
		if (c < 'A' || c > 'Z') && (c < 'a' || c > 'z') {
			return fmt.Errorf("%w: %q at position %d", ErrInvalidResidue, c, i)
		}
	}
	return nil
}

// ValidateEmbedding rejects empty vectors and vectors holding NaN or
// infinite components. Invalid embeddings must never be persisted.
func ValidateEmbedding(values []float32) error {
	if len(values) == 0 {
		return fmt.Errorf("%w: %w", ErrInvalidEmbedding, ErrEmptyEmbedding)
	}
	for i, v := range values {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: %w: index %d", ErrInvalidEmbedding, ErrNonFiniteEmbedding, i)
		}
	}
	return nil
}

// NormalizeQuerySequence turns user input into a bare residue string.
// FASTA header lines (starting with '>') are dropped and all whitespace
// is removed.
func NormalizeQuerySequence(raw string) (string, error) {
	raw = strings.TrimSpace(raw)

	var b strings.Builder
	b.Grow(len(raw))
	for _, line := range strings.Split(raw, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), ">") {
			continue
		}
		for _, r := range line {
			switch r {
			case ' ', '\t', '\r', '\n':
				continue
			}
			b.WriteRune(r)
		}
	}

	seq := b.String()
	if seq == "" {
		return "", ErrEmptySequence
	}
	if err := ValidateResidues(seq); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidSequence, err)
	}
	return seq, nil
}
