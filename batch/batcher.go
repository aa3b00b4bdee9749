package batch

import (
	"cmp"
	"fmt"
	"maps"
	"slices"

	"github.com/poiesic/protrieve/core"
)

const (
	// Wildcard replaces ambiguous or non-standard residue codes.
	Wildcard = 'X'

	DefaultMaxChunkLength = 1000
	DefaultTokenBudget    = 4000
	DefaultMaxBatch       = 100
)

// Clean upper-cases residues and replaces U, Z, O and B with the wildcard.
// The result always has the same length as the input.
func Clean(residues string) string {
	out := []byte(residues)
	for i, c := range out {
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		switch c {
		case 'U', 'Z', 'O', 'B':
			c = Wildcard
		}
		out[i] = c
	}
	return string(out)
}

// Split cuts a cleaned sequence into consecutive, non-overlapping chunks of at
// most maxLen residues. The last chunk may be shorter. A sequence whose length
// is exactly maxLen produces one chunk.
func Split(sequenceID, residues string, maxLen int) []core.Chunk {
	if maxLen <= 0 || residues == "" {
		return nil
	}
	chunks := make([]core.Chunk, 0, (len(residues)+maxLen-1)/maxLen)
	for start := 0; start < len(residues); start += maxLen {
		end := min(start+maxLen, len(residues))
		chunks = append(chunks, core.Chunk{
			SequenceID: sequenceID,
			Start:      start,
			Residues:   residues[start:end],
		})
	}
	return chunks
}

// SortChunks orders chunks longest first. Ties are broken by sequence id and
// offset so the schedule is deterministic.
func SortChunks(chunks []core.Chunk) {
	slices.SortStableFunc(chunks, func(a, b core.Chunk) int {
		if c := cmp.Compare(b.Len(), a.Len()); c != 0 {
			return c
		}
		if c := cmp.Compare(a.SequenceID, b.SequenceID); c != 0 {
			return c
		}
		return cmp.Compare(a.Start, b.Start)
	})
}

// Schedule packs chunks, in the order given, into batches. A chunk is added
// to the open batch while the batch holds fewer than maxBatch chunks and the
// cumulative length stays within budget; otherwise the open batch is flushed
// first. Every returned batch either fits the budget or holds a single chunk.
func Schedule(chunks []core.Chunk, budget, maxBatch int) []core.Batch {
	var (
		batches []core.Batch
		current core.Batch
		tokens  int
	)
	for _, c := range chunks {
		if len(current) > 0 && (len(current) >= maxBatch || tokens+c.Len() > budget) {
			batches = append(batches, current)
			current = nil
			tokens = 0
		}
		current = append(current, c)
		tokens += c.Len()
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches
}

// Repartition re-sorts chunks and schedules them again. It is used after a
// budget change so the remaining work is packed under the new limits.
func Repartition(chunks []core.Chunk, budget, maxBatch int) []core.Batch {
	sorted := slices.Clone(chunks)
	SortChunks(sorted)
	return Schedule(sorted, budget, maxBatch)
}

// Batcher converts sequence maps into encoder schedules.
type Batcher struct {
	maxChunkLength int
	tokenBudget    int
	maxBatch       int
}

// Option configures a Batcher.
type Option func(*Batcher) error

// WithMaxChunkLength sets the maximum chunk length L.
// Default is 1000.
func WithMaxChunkLength(n int) Option {
	return func(b *Batcher) error {
		if n <= 0 {
			return ErrInvalidMaxChunkLength
		}
		b.maxChunkLength = n
		return nil
	}
}

// WithTokenBudget sets the cumulative residue budget per batch.
// Default is 4000.
func WithTokenBudget(n int) Option {
	return func(b *Batcher) error {
		if n <= 0 {
			return ErrInvalidTokenBudget
		}
		b.tokenBudget = n
		return nil
	}
}

// WithMaxBatch sets the maximum number of chunks per batch.
// Default is 100.
func WithMaxBatch(n int) Option {
	return func(b *Batcher) error {
		if n <= 0 {
			return ErrInvalidMaxBatch
		}
		b.maxBatch = n
		return nil
	}
}

// NewBatcher creates a new batcher.
func NewBatcher(opts ...Option) (*Batcher, error) {
	b := &Batcher{
		maxChunkLength: DefaultMaxChunkLength,
		tokenBudget:    DefaultTokenBudget,
		maxBatch:       DefaultMaxBatch,
	}
	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// TokenBudget returns the configured token budget.
func (b *Batcher) TokenBudget() int {
	return b.tokenBudget
}

// MaxBatch returns the configured batch-count limit.
func (b *Batcher) MaxBatch() int {
	return b.maxBatch
}

// MaxChunkLength returns the configured maximum chunk length.
func (b *Batcher) MaxChunkLength() int {
	return b.maxChunkLength
}

// Chunks validates and cleans every sequence and returns all chunks sorted
// longest first.
func (b *Batcher) Chunks(sequences map[string]string) ([]core.Chunk, error) {
	var chunks []core.Chunk
	// Iterate keys in order so error reporting is deterministic.
	for _, id := range slices.Sorted(maps.Keys(sequences)) {
		seq := &core.Sequence{ID: id, Residues: sequences[id]}
		if err := core.ValidateSequence(seq); err != nil {
			return nil, err
		}
		chunks = append(chunks, Split(id, Clean(seq.Residues), b.maxChunkLength)...)
	}
	SortChunks(chunks)
	return chunks, nil
}

// Plan cleans, chunks and schedules the given sequences.
func (b *Batcher) Plan(sequences map[string]string) ([]core.Batch, error) {
	chunks, err := b.Chunks(sequences)
	if err != nil {
		return nil, fmt.Errorf("plan batches: %w", err)
	}
	return Schedule(chunks, b.tokenBudget, b.maxBatch), nil
}
