package ann

import (
	"context"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/poiesic/protrieve/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unitAt returns a 2-d unit vector whose cosine with (1, 0) is c.
func unitAt(c float64) []float32 {
	return []float32{float32(c), float32(math.Sqrt(1 - c*c))}
}

func randomVectors(rng *rand.Rand, count, dim int) [][]float32 {
	out := make([][]float32, count)
	for i := range out {
		v := make([]float32, dim)
		for j := range v {
			v[j] = float32(rng.NormFloat64())
		}
		out[i] = v
	}
	return out
}

func buildIndex(t *testing.T, vectors [][]float32, opts ...BuilderOption) *Index {
	t.Helper()
	b, err := NewBuilder(len(vectors[0]), opts...)
	require.NoError(t, err)
	for i, v := range vectors {
		slot, err := b.Add(v)
		require.NoError(t, err)
		require.Equal(t, i, slot)
	}
	idx, err := b.Build()
	require.NoError(t, err)
	return idx
}

func TestSearchReturnsExactOrder(t *testing.T) {
	// A, B, C with cosines 0.95, 0.82, 0.61 to the query.
	idx := buildIndex(t, [][]float32{unitAt(0.61), unitAt(0.95), unitAt(0.82)})

	got, err := idx.Search(context.Background(), []float32{2, 0}, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, []int{1, 2, 0}, []int{got[0].Slot, got[1].Slot, got[2].Slot})
	assert.InDelta(t, 0.95, got[0].Similarity, 1e-6)
	assert.InDelta(t, 0.82, got[1].Similarity, 1e-6)
	assert.InDelta(t, 0.61, got[2].Similarity, 1e-6)
}

func TestSearchTiesBreakBySlot(t *testing.T) {
	idx := buildIndex(t, [][]float32{{0, 1}, {1, 0}, {2, 0}, {3, 0}})

	got, err := idx.Search(context.Background(), []float32{1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{got[0].Slot, got[1].Slot, got[2].Slot})
}

func TestSearchRecall(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	vectors := randomVectors(rng, 2000, 8)
	idx := buildIndex(t, vectors, WithTrees(10), WithLeafSize(16), WithSeed(42))
	ctx := context.Background()

	const k = 10
	hits, total := 0, 0
	for _, q := range randomVectors(rng, 20, 8) {
		exact := make([]int, len(vectors))
		for i := range exact {
			exact[i] = i
		}
		sort.SliceStable(exact, func(a, b int) bool {
			return core.Cosine(q, vectors[exact[a]]) > core.Cosine(q, vectors[exact[b]])
		})
		want := make(map[int]bool, k)
		for _, s := range exact[:k] {
			want[s] = true
		}

		got, err := idx.SearchK(ctx, q, k, 800)
		require.NoError(t, err)
		require.Len(t, got, k)
		for i := 1; i < len(got); i++ {
			assert.GreaterOrEqual(t, got[i-1].Similarity, got[i].Similarity)
		}
		for _, n := range got {
			if want[n.Slot] {
				hits++
			}
		}
		total += k
	}
	assert.Greater(t, float64(hits)/float64(total), 0.8)

	// A budget covering the whole index is exact.
	q := vectors[123]
	got, err := idx.SearchK(ctx, q, 1, len(vectors))
	require.NoError(t, err)
	assert.Equal(t, 123, got[0].Slot)
	assert.InDelta(t, 1.0, got[0].Similarity, 1e-6)
}

func TestSearchDimensionMismatch(t *testing.T) {
	idx := buildIndex(t, [][]float32{{1, 0, 0}})
	_, err := idx.Search(context.Background(), []float32{1, 0}, 1)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestBuilderErrors(t *testing.T) {
	_, err := NewBuilder(0)
	assert.ErrorIs(t, err, ErrInvalidDimension)

	b, err := NewBuilder(2)
	require.NoError(t, err)

	_, err = b.Add([]float32{1, 2, 3})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	_, err = b.Add([]float32{float32(math.NaN()), 1})
	assert.ErrorIs(t, err, core.ErrInvalidEmbedding)

	_, err = b.Build()
	assert.ErrorIs(t, err, ErrEmptyIndex)

	b, err = NewBuilder(2)
	require.NoError(t, err)
	_, err = b.Add([]float32{1, 0})
	require.NoError(t, err)
	_, err = b.Build()
	require.NoError(t, err)
	_, err = b.Add([]float32{0, 1})
	assert.ErrorIs(t, err, ErrIndexBuilt)
	_, err = b.Build()
	assert.ErrorIs(t, err, ErrIndexBuilt)
}

func TestIdenticalVectorsStayTogether(t *testing.T) {
	vectors := make([][]float32, 50)
	for i := range vectors {
		vectors[i] = []float32{1, 1}
	}
	idx := buildIndex(t, vectors, WithLeafSize(4), WithTrees(2))

	got, err := idx.Search(context.Background(), []float32{1, 1}, 50)
	require.NoError(t, err)
	assert.Len(t, got, 50)
}

func TestSaveLoad(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	idx := buildIndex(t, randomVectors(rng, 300, 8), WithLeafSize(8), WithTrees(3))
	path := filepath.Join(t.TempDir(), "proteins.ann")

	require.NoError(t, idx.Save(path))
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, idx.Dimension(), loaded.Dimension())
	assert.Equal(t, idx.Len(), loaded.Len())
	assert.Equal(t, idx.Trees(), loaded.Trees())

	ctx := context.Background()
	q := randomVectors(rng, 1, 8)[0]
	want, err := idx.Search(ctx, q, 10)
	require.NoError(t, err)
	got, err := loaded.Search(ctx, q, 10)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file left behind")
}

func TestLoadMalformed(t *testing.T) {
	dir := t.TempDir()
	idx := buildIndex(t, [][]float32{{1, 0}, {0, 1}, {1, 1}})
	good := idx.marshal()

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"bad magic", []byte("not an index at all")},
		{"truncated", good[:len(good)-2]},
		{"truncated vectors", good[:20]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name)
			require.NoError(t, os.WriteFile(path, tt.data, 0o644))
			_, err := Load(path)
			assert.ErrorIs(t, err, ErrMalformedIndex)
		})
	}
}

func TestHandleSwap(t *testing.T) {
	ctx := context.Background()
	h := NewHandle(nil)
	_, err := h.Search(ctx, []float32{1, 0}, 1)
	assert.ErrorIs(t, err, ErrNoIndex)
	assert.Zero(t, h.Dimension())

	first := buildIndex(t, [][]float32{{1, 0}})
	second := buildIndex(t, [][]float32{{0, 1}, {1, 0}})
	h.Swap(first)

	got, err := h.Search(ctx, []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	path := filepath.Join(t.TempDir(), "idx.ann")
	require.NoError(t, second.Save(path))
	require.NoError(t, h.Reload(path))

	got, err = h.Search(ctx, []float32{1, 0}, 5)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].Slot)

	assert.Error(t, h.Reload(filepath.Join(t.TempDir(), "missing.ann")))
	assert.Equal(t, 2, h.Index().Len())
}
