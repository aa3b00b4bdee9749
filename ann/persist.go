package ann

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
)

const (
	fileMagic   = "protrieve-ann"
	fileVersion = 1

	kindLeaf  = 0
	kindSplit = 1
)

// Save writes the index to path atomically: the bytes go to a temporary
// file in the same directory which is then renamed over path.
func (x *Index) Save(path string) error {
	data := x.marshal()

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp index file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("write index: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("sync index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close index: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace index: %w", err)
	}
	return nil
}

// Load reads an index written by Save.
func Load(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read index: %w", err)
	}
	return unmarshalIndex(data)
}

func (x *Index) marshal() []byte {
	size := ord.String.Size(fileMagic) + varint.Int.Size(fileVersion) +
		varint.Int.Size(x.dim) + varint.Int.Size(x.leafSize) + varint.Int.Size(x.count)
	size += len(x.vectors) * 4
	size += varint.Int.Size(len(x.roots))
	for _, r := range x.roots {
		size += varint.Int.Size(int(r))
	}
	size += varint.Int.Size(len(x.nodes))
	for i := range x.nodes {
		nd := &x.nodes[i]
		if nd.leaf() {
			size += varint.Int.Size(kindLeaf) + varint.Int.Size(len(nd.items))
			for _, it := range nd.items {
				size += varint.Int.Size(int(it))
			}
			continue
		}
		size += varint.Int.Size(kindSplit) + len(nd.normal)*4 +
			varint.Int.Size(int(nd.children[0])) + varint.Int.Size(int(nd.children[1]))
	}

	bs := make([]byte, size)
	n := ord.String.Marshal(fileMagic, bs)
	n += varint.Int.Marshal(fileVersion, bs[n:])
	n += varint.Int.Marshal(x.dim, bs[n:])
	n += varint.Int.Marshal(x.leafSize, bs[n:])
	n += varint.Int.Marshal(x.count, bs[n:])
	for _, f := range x.vectors {
		n += raw.Float32.Marshal(f, bs[n:])
	}
	n += varint.Int.Marshal(len(x.roots), bs[n:])
	for _, r := range x.roots {
		n += varint.Int.Marshal(int(r), bs[n:])
	}
	n += varint.Int.Marshal(len(x.nodes), bs[n:])
	for i := range x.nodes {
		nd := &x.nodes[i]
		if nd.leaf() {
			n += varint.Int.Marshal(kindLeaf, bs[n:])
			n += varint.Int.Marshal(len(nd.items), bs[n:])
			for _, it := range nd.items {
				n += varint.Int.Marshal(int(it), bs[n:])
			}
			continue
		}
		n += varint.Int.Marshal(kindSplit, bs[n:])
		for _, f := range nd.normal {
			n += raw.Float32.Marshal(f, bs[n:])
		}
		n += varint.Int.Marshal(int(nd.children[0]), bs[n:])
		n += varint.Int.Marshal(int(nd.children[1]), bs[n:])
	}
	return bs
}

// decoder reads sequential fields and remembers the first failure.
type decoder struct {
	bs  []byte
	n   int
	err error
}

func (d *decoder) fail(field string, err error) {
	if d.err == nil {
		d.err = fmt.Errorf("%w: %s: %v", ErrMalformedIndex, field, err)
	}
}

func (d *decoder) int(field string) int {
	if d.err != nil {
		return 0
	}
	v, m, err := varint.Int.Unmarshal(d.bs[d.n:])
	if err != nil {
		d.fail(field, err)
		return 0
	}
	d.n += m
	return v
}

// count reads a non-negative length no larger than limit.
func (d *decoder) count(field string, limit int) int {
	v := d.int(field)
	if d.err == nil && (v < 0 || v > limit) {
		d.fail(field, fmt.Errorf("value %d out of range", v))
		return 0
	}
	return v
}

func (d *decoder) floats(field string, dst []float32) {
	if d.err != nil {
		return
	}
	if len(d.bs)-d.n < len(dst)*4 {
		d.fail(field, fmt.Errorf("need %d bytes, have %d", len(dst)*4, len(d.bs)-d.n))
		return
	}
	for i := range dst {
		v, m, err := raw.Float32.Unmarshal(d.bs[d.n:])
		if err != nil {
			d.fail(field, err)
			return
		}
		dst[i] = v
		d.n += m
	}
}

func unmarshalIndex(bs []byte) (*Index, error) {
	magic, m, err := ord.String.Unmarshal(bs)
	if err != nil || magic != fileMagic {
		return nil, fmt.Errorf("%w: bad magic", ErrMalformedIndex)
	}
	d := &decoder{bs: bs, n: m}

	if v := d.int("version"); d.err == nil && v != fileVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrMalformedIndex, v)
	}

	x := &Index{}
	x.dim = d.count("dimension", len(bs))
	x.leafSize = d.count("leaf size", len(bs))
	x.count = d.count("count", len(bs))
	if d.err == nil && (x.dim == 0 || x.count == 0) {
		return nil, fmt.Errorf("%w: empty index", ErrMalformedIndex)
	}
	if d.err == nil && x.count > (len(bs)-d.n)/(4*x.dim) {
		return nil, fmt.Errorf("%w: vectors truncated", ErrMalformedIndex)
	}
	if d.err != nil {
		return nil, d.err
	}

	x.vectors = make([]float32, x.count*x.dim)
	d.floats("vectors", x.vectors)

	roots := d.count("roots", len(bs))
	x.roots = make([]int32, roots)
	for i := range x.roots {
		x.roots[i] = int32(d.int("root"))
	}

	nodes := d.count("nodes", len(bs))
	x.nodes = make([]node, nodes)
	for i := 0; i < nodes && d.err == nil; i++ {
		switch kind := d.int("node kind"); kind {
		case kindLeaf:
			items := make([]int32, d.count("leaf items", x.count))
			for j := range items {
				items[j] = int32(d.int("leaf item"))
			}
			x.nodes[i].items = items
		case kindSplit:
			normal := make([]float32, x.dim)
			d.floats("normal", normal)
			x.nodes[i].normal = normal
			x.nodes[i].children = [2]int32{int32(d.int("child")), int32(d.int("child"))}
		default:
			d.fail("node kind", fmt.Errorf("unknown kind %d", kind))
		}
	}
	if d.err != nil {
		return nil, d.err
	}
	if err := x.validate(); err != nil {
		return nil, err
	}
	return x, nil
}

// validate checks that every reference in the forest is in range.
func (x *Index) validate() error {
	inRange := func(v int32, limit int) bool { return v >= 0 && int(v) < limit }
	if len(x.roots) == 0 {
		return fmt.Errorf("%w: no trees", ErrMalformedIndex)
	}
	for _, r := range x.roots {
		if !inRange(r, len(x.nodes)) {
			return fmt.Errorf("%w: root %d out of range", ErrMalformedIndex, r)
		}
	}
	for i := range x.nodes {
		nd := &x.nodes[i]
		if nd.leaf() {
			for _, it := range nd.items {
				if !inRange(it, x.count) {
					return fmt.Errorf("%w: item %d out of range", ErrMalformedIndex, it)
				}
			}
			continue
		}
		// Children always follow their parent, so the walk cannot cycle.
		for _, c := range nd.children {
			if !inRange(c, len(x.nodes)) || int(c) <= i {
				return fmt.Errorf("%w: child %d of node %d out of range", ErrMalformedIndex, c, i)
			}
		}
	}
	return nil
}
