package ann

import (
	"cmp"
	"container/heap"
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/poiesic/protrieve/core"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/poiesic/protrieve/ann")

// node is either a split (normal set) or a leaf (items set).
type node struct {
	normal   []float32
	children [2]int32 // [negative side, non-negative side]
	items    []int32
}

func (n *node) leaf() bool {
	return n.normal == nil
}

// Index is an immutable random-projection forest. It is safe for concurrent
// readers.
type Index struct {
	dim      int
	leafSize int
	count    int
	vectors  []float32 // unit vectors, slot-major
	roots    []int32
	nodes    []node
}

var _ Searcher = (*Index)(nil)

// Dimension returns the vector width.
func (x *Index) Dimension() int {
	return x.dim
}

// Len returns the number of indexed vectors.
func (x *Index) Len() int {
	return x.count
}

// Trees returns the number of trees in the forest.
func (x *Index) Trees() int {
	return len(x.roots)
}

// Vector returns the stored unit vector for slot.
func (x *Index) Vector(slot int) ([]float32, bool) {
	if slot < 0 || slot >= x.count {
		return nil, false
	}
	return x.vector(slot), true
}

func (x *Index) vector(slot int) []float32 {
	return x.vectors[slot*x.dim : (slot+1)*x.dim]
}

// Search returns up to n neighbors ranked by cosine similarity. It inspects
// at least n candidates per tree.
func (x *Index) Search(ctx context.Context, query []float32, n int) ([]core.Neighbor, error) {
	return x.SearchK(ctx, query, n, n*len(x.roots))
}

// SearchK is Search with an explicit candidate budget. Larger budgets trade
// speed for recall; a budget of at least Len() makes the search exact.
func (x *Index) SearchK(ctx context.Context, query []float32, n, searchK int) ([]core.Neighbor, error) {
	_, span := tracer.Start(ctx, "ann.Search", trace.WithAttributes(
		attribute.Int("ann.n", n),
		attribute.Int("ann.search_k", searchK),
		attribute.Int("ann.size", x.count),
	))
	defer span.End()

	if len(query) != x.dim {
		err := fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(query), x.dim)
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		return nil, err
	}
	if n <= 0 {
		return nil, nil
	}

	q := core.NormalizeVector(query)
	candidates := x.candidates(q, max(searchK, n))

	out := make([]core.Neighbor, 0, len(candidates))
	for _, slot := range candidates {
		out = append(out, core.Neighbor{Slot: slot, Similarity: x.similarity(q, slot)})
	}
	slices.SortFunc(out, func(a, b core.Neighbor) int {
		if c := cmp.Compare(b.Similarity, a.Similarity); c != 0 {
			return c
		}
		return cmp.Compare(a.Slot, b.Slot)
	})
	if len(out) > n {
		out = out[:n]
	}
	span.SetAttributes(attribute.Int("ann.results", len(out)))
	return out, nil
}

// similarity is the cosine of a unit query and a stored unit vector,
// computed in float64 and clamped to [-1, 1].
func (x *Index) similarity(q []float32, slot int) float32 {
	v := x.vector(slot)
	var sum float64
	for i := range q {
		sum += float64(q[i]) * float64(v[i])
	}
	return float32(math.Max(-1, math.Min(1, sum)))
}

// candidates walks all trees best-margin-first until searchK distinct slots
// are collected or the forest is exhausted.
func (x *Index) candidates(q []float32, searchK int) []int {
	pq := make(marginQueue, 0, len(x.roots)*2)
	for _, r := range x.roots {
		pq = append(pq, queued{margin: float32(math.Inf(1)), node: r})
	}
	heap.Init(&pq)

	seen := make(map[int32]struct{}, searchK)
	out := make([]int, 0, searchK)
	for pq.Len() > 0 && len(out) < searchK {
		top := heap.Pop(&pq).(queued)
		nd := &x.nodes[top.node]
		if nd.leaf() {
			for _, it := range nd.items {
				if _, ok := seen[it]; ok {
					continue
				}
				seen[it] = struct{}{}
				out = append(out, int(it))
			}
			continue
		}
		m := dot(nd.normal, q)
		heap.Push(&pq, queued{margin: min(top.margin, m), node: nd.children[1]})
		heap.Push(&pq, queued{margin: min(top.margin, -m), node: nd.children[0]})
	}
	return out
}

type queued struct {
	margin float32
	node   int32
}

// marginQueue is a max-heap on margin.
type marginQueue []queued

func (q marginQueue) Len() int { return len(q) }
func (q marginQueue) Less(i, j int) bool {
	if q[i].margin != q[j].margin {
		return q[i].margin > q[j].margin
	}
	return q[i].node < q[j].node
}
func (q marginQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *marginQueue) Push(v any)  { *q = append(*q, v.(queued)) }
func (q *marginQueue) Pop() any {
	old := *q
	v := old[len(old)-1]
	*q = old[:len(old)-1]
	return v
}
