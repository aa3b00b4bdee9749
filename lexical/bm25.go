package lexical

import (
	"cmp"
	"maps"
	"math"
	"slices"

	"github.com/poiesic/protrieve/core"
)

const (
	DefaultK1 = 1.2
	DefaultB  = 0.75
)

// Params are the BM25 saturation and length-normalization constants.
type Params struct {
	K1 float64
	B  float64
}

// DefaultParams returns k1=1.2, b=0.75.
func DefaultParams() Params {
	return Params{K1: DefaultK1, B: DefaultB}
}

// fitter accumulates term statistics over a corpus in one pass.
type fitter struct {
	params  Params
	fileIDs []int64
	counts  []map[uint32]int
	lengths []int
	docFreq map[uint32]int
	total   int
}

func newFitter(params Params) *fitter {
	return &fitter{params: params, docFreq: make(map[uint32]int)}
}

func (f *fitter) add(fileID int64, content string) {
	tokens := Tokenize(content)
	tf := make(map[uint32]int, len(tokens))
	for _, t := range tokens {
		tf[TermID(t)]++
	}
	for id := range tf {
		f.docFreq[id]++
	}
	f.fileIDs = append(f.fileIDs, fileID)
	f.counts = append(f.counts, tf)
	f.lengths = append(f.lengths, len(tokens))
	f.total += len(tokens)
}

// snapshot computes the per-document BM25 weights.
func (f *fitter) snapshot() *core.LexicalSnapshot {
	s := &core.LexicalSnapshot{
		DocCount: len(f.fileIDs),
		DocFreq:  f.docFreq,
		FileIDs:  f.fileIDs,
		Vectors:  make([]core.SparseVector, len(f.fileIDs)),
	}
	if s.DocCount > 0 {
		s.AvgDocLen = float64(f.total) / float64(s.DocCount)
	}

	k1, b := f.params.K1, f.params.B
	for i, tf := range f.counts {
		norm := 1.0
		if s.AvgDocLen > 0 {
			norm = 1 - b + b*float64(f.lengths[i])/s.AvgDocLen
		}
		v := core.SparseVector{
			Indices: make([]uint32, 0, len(tf)),
			Values:  make([]float32, 0, len(tf)),
		}
		for _, id := range slices.Sorted(maps.Keys(tf)) {
			n := float64(tf[id])
			v.Indices = append(v.Indices, id)
			v.Values = append(v.Values, float32(n*(k1+1)/(n+k1*norm)))
		}
		s.Vectors[i] = v
	}
	return s
}

// queryWeights returns idf weights of the query terms known to the corpus,
// normalized to sum to one.
func queryWeights(s *core.LexicalSnapshot, query string) map[uint32]float64 {
	weights := make(map[uint32]float64)
	var sum float64
	for _, t := range Tokenize(query) {
		id := TermID(t)
		if _, dup := weights[id]; dup {
			continue
		}
		df, ok := s.DocFreq[id]
		if !ok || df == 0 {
			continue
		}
		w := math.Log((float64(s.DocCount) + 1) / (float64(df) + 0.5))
		if w <= 0 {
			continue
		}
		weights[id] = w
		sum += w
	}
	for id := range weights {
		weights[id] /= sum
	}
	return weights
}

type posting struct {
	doc    int32
	weight float32
}

// invertedIndex serves dot-product scoring without scanning every vector.
type invertedIndex struct {
	snapshot *core.LexicalSnapshot
	postings map[uint32][]posting
}

func newInvertedIndex(s *core.LexicalSnapshot) *invertedIndex {
	idx := &invertedIndex{snapshot: s, postings: make(map[uint32][]posting, len(s.DocFreq))}
	for doc, v := range s.Vectors {
		for i, id := range v.Indices {
			idx.postings[id] = append(idx.postings[id], posting{doc: int32(doc), weight: v.Values[i]})
		}
	}
	return idx
}

type scored struct {
	fileID int64
	score  float64
}

// top returns up to k documents with a positive score, best first, ties by
// ascending file id.
func (idx *invertedIndex) top(query string, k int) []scored {
	weights := queryWeights(idx.snapshot, query)
	if len(weights) == 0 || k <= 0 {
		return nil
	}

	scores := make(map[int32]float64)
	for id, w := range weights {
		for _, p := range idx.postings[id] {
			scores[p.doc] += w * float64(p.weight)
		}
	}

	out := make([]scored, 0, len(scores))
	for doc, s := range scores {
		if s > 0 {
			out = append(out, scored{fileID: idx.snapshot.FileIDs[doc], score: s})
		}
	}
	slices.SortFunc(out, func(a, b scored) int {
		if c := cmp.Compare(b.score, a.score); c != 0 {
			return c
		}
		return cmp.Compare(a.fileID, b.fileID)
	})
	if len(out) > k {
		out = out[:k]
	}
	return out
}
