package ann

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/poiesic/protrieve/core"
)

// ErrNoIndex indicates a Handle used before any index was installed.
var ErrNoIndex = errors.New("no index loaded")

// Handle is a swappable reference to the serving index. Queries see either
// the old or the new index, never a mix.
type Handle struct {
	current atomic.Pointer[Index]
}

var _ Searcher = (*Handle)(nil)

// NewHandle returns a handle serving idx, which may be nil.
func NewHandle(idx *Index) *Handle {
	h := &Handle{}
	if idx != nil {
		h.current.Store(idx)
	}
	return h
}

// OpenHandle loads the index at path into a new handle.
func OpenHandle(path string) (*Handle, error) {
	idx, err := Load(path)
	if err != nil {
		return nil, err
	}
	return NewHandle(idx), nil
}

// Index returns the index currently served, or nil.
func (h *Handle) Index() *Index {
	return h.current.Load()
}

// Swap installs idx and returns the previous index.
func (h *Handle) Swap(idx *Index) *Index {
	return h.current.Swap(idx)
}

// Reload loads path and swaps it in. On error the served index is kept.
func (h *Handle) Reload(path string) error {
	idx, err := Load(path)
	if err != nil {
		return err
	}
	h.Swap(idx)
	return nil
}

// Dimension returns the served index dimensionality, or 0 when empty.
func (h *Handle) Dimension() int {
	if idx := h.Index(); idx != nil {
		return idx.Dimension()
	}
	return 0
}

// Search delegates to the served index.
func (h *Handle) Search(ctx context.Context, query []float32, n int) ([]core.Neighbor, error) {
	idx := h.Index()
	if idx == nil {
		return nil, ErrNoIndex
	}
	return idx.Search(ctx, query, n)
}
