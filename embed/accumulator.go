package embed

import (
	"cmp"
	"fmt"
	"slices"
	"sync"

	"github.com/poiesic/protrieve/ai"
	"github.com/poiesic/protrieve/core"
)

// piece is the encoder output for one contiguous residue range.
type piece struct {
	start  int
	length int
	sum    []float64   // per-protein: sum of residue rows
	rows   [][]float32 // per-residue: the rows themselves
}

// accumulator collects chunk outputs from concurrent device workers.
// Final values are computed in offset order so they do not depend on
// completion order.
type accumulator struct {
	mu         sync.Mutex
	perProtein bool
	dim        int
	chunkLen   int // planned chunk length, used to fold split pieces back
	pieces     map[string][]piece
}

func newAccumulator(perProtein bool, dim, chunkLen int) *accumulator {
	return &accumulator{
		perProtein: perProtein,
		dim:        dim,
		chunkLen:   chunkLen,
		pieces:     make(map[string][]piece),
	}
}

// add records the encoder output for one batch.
func (a *accumulator) add(b core.Batch, out [][][]float32) error {
	if len(out) != len(b) {
		return fmt.Errorf("%w: %d chunks, %d outputs", ai.ErrShapeMismatch, len(b), len(out))
	}

	built := make([]piece, len(b))
	for i, c := range b {
		rows := out[i]
		if len(rows) != c.Len() {
			return fmt.Errorf("%w: chunk %s@%d has %d residues, %d rows",
				ai.ErrShapeMismatch, c.SequenceID, c.Start, c.Len(), len(rows))
		}
		p := piece{start: c.Start, length: c.Len()}
		if a.perProtein {
			p.sum = make([]float64, a.dim)
		}
		for _, row := range rows {
			if len(row) != a.dim {
				return fmt.Errorf("%w: row width %d, want %d", ai.ErrShapeMismatch, len(row), a.dim)
			}
			if a.perProtein {
				for j, v := range row {
					p.sum[j] += float64(v)
				}
			}
		}
		if !a.perProtein {
			p.rows = rows
		}
		built[i] = p
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	for i, c := range b {
		a.pieces[c.SequenceID] = append(a.pieces[c.SequenceID], built[i])
	}
	return nil
}

// finalize builds one embedding per sequence id. lengths holds the cleaned
// length of every sequence that was scheduled.
func (a *accumulator) finalize(lengths map[string]int) (map[string]core.Embedding, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make(map[string]core.Embedding, len(lengths))
	for id, length := range lengths {
		pieces, ok := a.pieces[id]
		if !ok {
			return nil, &MissingEmbeddingError{Key: id}
		}
		slices.SortFunc(pieces, func(x, y piece) int {
			return cmp.Compare(x.start, y.start)
		})

		covered := 0
		for _, p := range pieces {
			if p.start != covered {
				return nil, fmt.Errorf("%w: sequence %s has a gap or overlap at offset %d",
					ai.ErrShapeMismatch, id, covered)
			}
			covered += p.length
		}
		if covered != length {
			return nil, fmt.Errorf("%w: sequence %s covers %d of %d residues",
				ai.ErrShapeMismatch, id, covered, length)
		}

		if a.perProtein {
			out[id] = a.meanOfChunkMeans(pieces)
		} else {
			out[id] = a.concatenate(pieces, length)
		}
	}
	return out, nil
}

// meanOfChunkMeans averages residues within each planned chunk, then
// averages the chunk means with equal weight. Pieces must be sorted.
func (a *accumulator) meanOfChunkMeans(pieces []piece) core.Embedding {
	total := make([]float64, a.dim)
	chunks := 0

	origin := -1
	chunkSum := make([]float64, a.dim)
	chunkResidues := 0
	flush := func() {
		if chunkResidues == 0 {
			return
		}
		for j := range total {
			total[j] += chunkSum[j] / float64(chunkResidues)
			chunkSum[j] = 0
		}
		chunks++
		chunkResidues = 0
	}

	for _, p := range pieces {
		if o := p.start / a.chunkLen; o != origin {
			flush()
			origin = o
		}
		for j, v := range p.sum {
			chunkSum[j] += v
		}
		chunkResidues += p.length
	}
	flush()

	values := make([]float32, a.dim)
	for j, v := range total {
		values[j] = float32(v / float64(chunks))
	}
	return core.Embedding{Values: values, Shape: []int{a.dim}}
}

// concatenate lays out residue rows in sequence order. Pieces must be sorted.
func (a *accumulator) concatenate(pieces []piece, length int) core.Embedding {
	values := make([]float32, 0, length*a.dim)
	for _, p := range pieces {
		for _, row := range p.rows {
			values = append(values, row...)
		}
	}
	return core.Embedding{Values: values, Shape: []int{length, a.dim}}
}
