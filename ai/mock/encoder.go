package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/poiesic/protrieve/ai"
)

// MockEncoder is a test double for ai.SequenceEncoder.
// Residue vectors depend only on the residue letter, so the output for a
// sequence does not change when it is encoded in pieces.
type MockEncoder struct {
	// EncodeFunc is called by EncodeResidues if set.
	EncodeFunc func(ctx context.Context, sequences []string) ([][][]float32, error)

	// MaxTokens makes calls whose total residue count exceeds it fail with
	// ai.ErrOutOfMemory. Zero disables the check.
	MaxTokens int

	// MaxSequence makes calls holding any sequence longer than it fail with
	// ai.ErrOutOfMemory. Zero disables the check.
	MaxSequence int

	dim       int
	mu        sync.Mutex
	calls     int
	oomCalls  int
	callSizes [][]int
}

var _ ai.SequenceEncoder = (*MockEncoder)(nil)

// NewMockEncoder creates a mock encoder producing vectors of width dim.
func NewMockEncoder(dim int) *MockEncoder {
	return &MockEncoder{dim: dim}
}

// Dimension returns the residue vector width.
func (m *MockEncoder) Dimension() int {
	return m.dim
}

// EncodeResidues returns deterministic per-residue vectors.
func (m *MockEncoder) EncodeResidues(ctx context.Context, sequences []string) ([][][]float32, error) {
	m.mu.Lock()
	m.calls++
	sizes := make([]int, len(sequences))
	total := 0
	longest := 0
	for i, s := range sequences {
		sizes[i] = len(s)
		total += len(s)
		longest = max(longest, len(s))
	}
	m.callSizes = append(m.callSizes, sizes)
	oom := (m.MaxTokens > 0 && total > m.MaxTokens) || (m.MaxSequence > 0 && longest > m.MaxSequence)
	if oom {
		m.oomCalls++
	}
	m.mu.Unlock()

	if m.EncodeFunc != nil {
		return m.EncodeFunc(ctx, sequences)
	}
	if oom {
		return nil, fmt.Errorf("mock encoder: %d residues: %w", total, ai.ErrOutOfMemory)
	}

	out := make([][][]float32, len(sequences))
	for i, s := range sequences {
		rows := make([][]float32, len(s))
		for j := 0; j < len(s); j++ {
			rows[j] = ResidueVector(s[j], m.dim)
		}
		out[i] = rows
	}
	return out, nil
}

// CallCount returns the number of EncodeResidues calls.
func (m *MockEncoder) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// OOMCount returns how many calls were rejected as out of memory.
func (m *MockEncoder) OOMCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.oomCalls
}

// CallSizes returns the chunk lengths of every call in order.
func (m *MockEncoder) CallSizes() [][]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]int, len(m.callSizes))
	copy(out, m.callSizes)
	return out
}

// ResidueVector is the vector the mock encoder emits for one residue.
func ResidueVector(residue byte, dim int) []float32 {
	v := make([]float32, dim)
	for j := range v {
		v[j] = float32((int(residue)*31+j*17)%97) / 97.0
	}
	return v
}
