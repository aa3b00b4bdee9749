package embed

import (
	"fmt"
	"sync"

	"github.com/poiesic/protrieve/batch"
	"github.com/poiesic/protrieve/core"
)

// workQueue hands batches to device workers and absorbs out-of-memory
// failures by shrinking limits or splitting chunks.
type workQueue struct {
	mu   sync.Mutex
	cond *sync.Cond

	pending  []core.Batch
	inflight int
	err      error

	budget    int
	maxBatch  int
	minBudget int

	ooms   int
	splits int
}

func newWorkQueue(batches []core.Batch, budget, maxBatch, minBudget int) *workQueue {
	q := &workQueue{
		pending:   batches,
		budget:    budget,
		maxBatch:  maxBatch,
		minBudget: min(minBudget, budget),
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// next blocks until a batch is available. It returns false once the queue
// is drained and no batch is in flight, or after a fatal error.
func (q *workQueue) next() (core.Batch, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.pending) == 0 && q.inflight > 0 && q.err == nil {
		q.cond.Wait()
	}
	if q.err != nil || len(q.pending) == 0 {
		return nil, false
	}

	b := q.pending[0]
	q.pending = q.pending[1:]

	// Batches planned before a shrink are repacked when they come up.
	if len(b) > 1 && (b.Tokens() > q.budget || len(b) > q.maxBatch) {
		parts := batch.Repartition(b, q.budget, q.maxBatch)
		b = parts[0]
		q.pushFront(parts[1:]...)
	}

	q.inflight++
	return b, true
}

// done marks an in-flight batch as finished.
func (q *workQueue) done() {
	q.mu.Lock()
	q.inflight--
	q.mu.Unlock()
	q.cond.Broadcast()
}

// fail records a fatal error for an in-flight batch and wakes all workers.
func (q *workQueue) fail(err error) {
	q.mu.Lock()
	if q.err == nil {
		q.err = err
	}
	q.inflight--
	q.mu.Unlock()
	q.cond.Broadcast()
}

// abort records a fatal error that is not tied to an in-flight batch.
func (q *workQueue) abort(err error) {
	q.mu.Lock()
	if q.err == nil {
		q.err = err
	}
	q.mu.Unlock()
	q.cond.Broadcast()
}

// outOfMemory requeues the work of an in-flight batch the device could not
// hold. It returns an error only when the batch is a single residue.
func (q *workQueue) outOfMemory(b core.Batch) error {
	q.mu.Lock()
	defer q.cond.Broadcast()
	defer q.mu.Unlock()

	q.inflight--
	q.ooms++

	switch {
	case len(b) > 1:
		q.shrinkBudget()
		q.pushFront(batch.Repartition(b, q.budget, q.maxBatch)...)
		return nil
	case q.budget > q.minBudget:
		q.shrinkBudget()
		q.pushFront(b)
		return nil
	}

	c := b[0]
	left, right, ok := splitChunk(c)
	if !ok {
		err := fmt.Errorf("%w: sequence %s offset %d", ErrUnsplittable, c.SequenceID, c.Start)
		if q.err == nil {
			q.err = err
		}
		return err
	}
	q.splits++
	q.pushFront(core.Batch{left}, core.Batch{right})
	return nil
}

// shrinkBudget halves the token budget down to the floor, then halves the
// batch count limit. It reports whether either limit changed.
// Callers must hold q.mu.
func (q *workQueue) shrinkBudget() bool {
	if q.budget > q.minBudget {
		q.budget = max(q.budget/2, q.minBudget)
		return true
	}
	if q.maxBatch > 1 {
		q.maxBatch = max(q.maxBatch/2, 1)
		return true
	}
	return false
}

// pushFront puts batches at the head of the queue in the given order.
// Callers must hold q.mu.
func (q *workQueue) pushFront(batches ...core.Batch) {
	if len(batches) == 0 {
		return
	}
	merged := make([]core.Batch, 0, len(batches)+len(q.pending))
	merged = append(merged, batches...)
	q.pending = append(merged, q.pending...)
}

// limits returns the current budget and batch count limit.
func (q *workQueue) limits() (budget, maxBatch int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.budget, q.maxBatch
}

func (q *workQueue) stats() (ooms, splits int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ooms, q.splits
}

func (q *workQueue) failure() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.err
}

// splitChunk cuts a chunk in half by residue position. Chunks shorter than
// two residues cannot be split.
func splitChunk(c core.Chunk) (core.Chunk, core.Chunk, bool) {
	if c.Len() < 2 {
		return core.Chunk{}, core.Chunk{}, false
	}
	half := c.Len() / 2
	left := core.Chunk{SequenceID: c.SequenceID, Start: c.Start, Residues: c.Residues[:half]}
	right := core.Chunk{SequenceID: c.SequenceID, Start: c.Start + half, Residues: c.Residues[half:]}
	return left, right, true
}
