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

package ann

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"

	"github.com/poiesic/protrieve/core"
)

const (
	DefaultTrees    = 10
	DefaultLeafSize = 64

	// splitAttempts bounds the hyperplane draws for one node before the
	// node is kept as an oversized leaf.
	splitAttempts = 5
)

// Searcher is implemented by every ANN backend.
type Searcher interface {
	// Dimension returns the vector width the backend was built with.
	Dimension() int

	// Search returns up to n neighbors of query, most similar first.
	Search(ctx context.Context, query []float32, n int) ([]core.Neighbor, error)
}

// Builder accumulates vectors and builds an immutable Index.
// Slots are assigned in insertion order starting at zero.
type Builder struct {
	dim      int
	trees    int
	leafSize int
	seed     uint64
	vectors  []float32
	count    int
	built    bool
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder) error

// WithTrees sets the number of trees in the forest.
// More trees improve recall at the cost of memory and query time.
// Default is 10.
func WithTrees(n int) BuilderOption {
	return func(b *Builder) error {
		if n <= 0 {
			return fmt.Errorf("trees must be positive, got %d", n)
		}
		b.trees = n
		return nil
	}
}

// WithLeafSize sets the maximum number of items in a leaf.
// Default is 64.
func WithLeafSize(n int) BuilderOption {
	return func(b *Builder) error {
		if n <= 0 {
			return fmt.Errorf("leaf size must be positive, got %d", n)
		}
		b.leafSize = n
		return nil
	}
}

// WithSeed fixes the random source so equal inputs build equal indexes.
func WithSeed(seed uint64) BuilderOption {
	return func(b *Builder) error {
		b.seed = seed
		return nil
	}
}

// NewBuilder creates a builder for vectors of the given dimensionality.
func NewBuilder(dim int, opts ...BuilderOption) (*Builder, error) {
	if dim <= 0 {
		return nil, ErrInvalidDimension
	}
	b := &Builder{
		dim:      dim,
		trees:    DefaultTrees,
		leafSize: DefaultLeafSize,
		seed:     1,
	}
	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// Add appends a vector and returns its slot. The vector is unit-normalized
// on the way in; NaN or infinite components are rejected.
func (b *Builder) Add(vector []float32) (int, error) {
	if b.built {
		return 0, ErrIndexBuilt
	}
	if len(vector) != b.dim {
		return 0, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vector), b.dim)
	}
	if err := core.ValidateEmbedding(vector); err != nil {
		return 0, err
	}
	b.vectors = append(b.vectors, core.NormalizeVector(vector)...)
	b.count++
	return b.count - 1, nil
}

// Len returns the number of vectors added so far.
func (b *Builder) Len() int {
	return b.count
}

// Build constructs the forest. The builder cannot be used afterwards.
func (b *Builder) Build() (*Index, error) {
	if b.built {
		return nil, ErrIndexBuilt
	}
	if b.count == 0 {
		return nil, ErrEmptyIndex
	}
	b.built = true

	idx := &Index{
		dim:      b.dim,
		leafSize: b.leafSize,
		count:    b.count,
		vectors:  b.vectors,
	}
	b.vectors = nil

	rng := rand.New(rand.NewPCG(b.seed, uint64(b.count)))
	all := make([]int32, idx.count)
	for i := range all {
		all[i] = int32(i)
	}
	for t := 0; t < b.trees; t++ {
		idx.roots = append(idx.roots, idx.grow(rng, slices.Clone(all)))
	}
	return idx, nil
}

// grow builds the subtree over items and returns its node index.
func (x *Index) grow(rng *rand.Rand, items []int32) int32 {
	if len(items) <= x.leafSize {
		return x.addLeaf(items)
	}

	for attempt := 0; attempt < splitAttempts; attempt++ {
		normal, ok := x.hyperplane(rng, items)
		if !ok {
			continue
		}
		var left, right []int32
		for _, it := range items {
			if dot(normal, x.vector(int(it))) >= 0 {
				right = append(right, it)
			} else {
				left = append(left, it)
			}
		}
		if len(left) == 0 || len(right) == 0 {
			continue
		}

		id := int32(len(x.nodes))
		x.nodes = append(x.nodes, node{normal: normal})
		l := x.grow(rng, left)
		r := x.grow(rng, right)
		x.nodes[id].children = [2]int32{l, r}
		return id
	}

	// Items are indistinguishable by direction, keep them together.
	return x.addLeaf(items)
}

func (x *Index) addLeaf(items []int32) int32 {
	id := int32(len(x.nodes))
	x.nodes = append(x.nodes, node{items: slices.Clone(items)})
	return id
}

// hyperplane returns the bisector normal of two random distinct items.
func (x *Index) hyperplane(rng *rand.Rand, items []int32) ([]float32, bool) {
	i := rng.IntN(len(items))
	j := rng.IntN(len(items) - 1)
	if j >= i {
		j++
	}
	a, b := x.vector(int(items[i])), x.vector(int(items[j]))
	diff := make([]float32, x.dim)
	nonzero := false
	for k := range diff {
		diff[k] = a[k] - b[k]
		if diff[k] != 0 {
			nonzero = true
		}
	}
	if !nonzero {
		return nil, false
	}
	return core.NormalizeVector(diff), true
}

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
