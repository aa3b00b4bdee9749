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

package storage

import (
	"fmt"
	"maps"
	"slices"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/protrieve/core"
)

// MarshalVector serializes a dense vector to bytes.
func MarshalVector(v []float32) []byte {
	buf := make([]byte, vectorSize(v))
	marshalVector(v, buf)
	return buf
}

// UnmarshalVector deserializes a dense vector from bytes.
func UnmarshalVector(data []byte) ([]float32, error) {
	v, _, err := unmarshalVector(data)
	return v, err
}

// MarshalLexicalSnapshot serializes a fitted lexical index.
// Document frequencies are written in term order so equal snapshots
// produce equal bytes.
func MarshalLexicalSnapshot(s *core.LexicalSnapshot) []byte {
	terms := slices.Sorted(maps.Keys(s.DocFreq))

	size := varint.Int.Size(s.DocCount) + raw.Float64.Size(s.AvgDocLen)
	size += varint.Int.Size(len(terms))
	for _, t := range terms {
		size += varint.Uint32.Size(t) + varint.Int.Size(s.DocFreq[t])
	}
	size += varint.Int.Size(len(s.FileIDs))
	for _, id := range s.FileIDs {
		size += varint.Int64.Size(id)
	}
	size += varint.Int.Size(len(s.Vectors))
	for _, v := range s.Vectors {
		size += sparseSize(v)
	}

	buf := make([]byte, size)
	n := varint.Int.Marshal(s.DocCount, buf)
	n += raw.Float64.Marshal(s.AvgDocLen, buf[n:])
	n += varint.Int.Marshal(len(terms), buf[n:])
	for _, t := range terms {
		n += varint.Uint32.Marshal(t, buf[n:])
		n += varint.Int.Marshal(s.DocFreq[t], buf[n:])
	}
	n += varint.Int.Marshal(len(s.FileIDs), buf[n:])
	for _, id := range s.FileIDs {
		n += varint.Int64.Marshal(id, buf[n:])
	}
	n += varint.Int.Marshal(len(s.Vectors), buf[n:])
	for _, v := range s.Vectors {
		n += marshalSparse(v, buf[n:])
	}
	return buf
}

// UnmarshalLexicalSnapshot deserializes a fitted lexical index.
func UnmarshalLexicalSnapshot(data []byte) (*core.LexicalSnapshot, error) {
	s := &core.LexicalSnapshot{}
	var (
		n, m int
		err  error
	)

	if s.DocCount, m, err = varint.Int.Unmarshal(data); err != nil {
		return nil, wrapDecode("doc count", err)
	}
	n += m
	if s.AvgDocLen, m, err = raw.Float64.Unmarshal(data[n:]); err != nil {
		return nil, wrapDecode("average length", err)
	}
	n += m

	terms, m, err := readLength(data[n:])
	if err != nil {
		return nil, err
	}
	n += m
	s.DocFreq = make(map[uint32]int, terms)
	for i := 0; i < terms; i++ {
		t, m, err := varint.Uint32.Unmarshal(data[n:])
		if err != nil {
			return nil, wrapDecode("term", err)
		}
		n += m
		df, m, err := varint.Int.Unmarshal(data[n:])
		if err != nil {
			return nil, wrapDecode("doc freq", err)
		}
		n += m
		s.DocFreq[t] = df
	}

	files, m, err := readLength(data[n:])
	if err != nil {
		return nil, err
	}
	n += m
	s.FileIDs = make([]int64, files)
	for i := range s.FileIDs {
		if s.FileIDs[i], m, err = varint.Int64.Unmarshal(data[n:]); err != nil {
			return nil, wrapDecode("file id", err)
		}
		n += m
	}

	vectors, m, err := readLength(data[n:])
	if err != nil {
		return nil, err
	}
	n += m
	s.Vectors = make([]core.SparseVector, vectors)
	for i := range s.Vectors {
		if s.Vectors[i], m, err = unmarshalSparse(data[n:]); err != nil {
			return nil, err
		}
		n += m
	}
	return s, nil
}

// MarshalCheckpoint serializes a Checkpoint to bytes.
func MarshalCheckpoint(checkpoint *core.Checkpoint) []byte {
	size := ord.String.Size(checkpoint.ProcessorType) +
		varint.Int64.Size(checkpoint.LastID) +
		varint.Int64.Size(checkpoint.UpdatedAt)
	buf := make([]byte, size)
	n := ord.String.Marshal(checkpoint.ProcessorType, buf)
	n += varint.Int64.Marshal(checkpoint.LastID, buf[n:])
	varint.Int64.Marshal(checkpoint.UpdatedAt, buf[n:])
	return buf
}

// UnmarshalCheckpoint deserializes a Checkpoint from bytes.
func UnmarshalCheckpoint(data []byte) (*core.Checkpoint, error) {
	var (
		c    core.Checkpoint
		n, m int
		err  error
	)
	if c.ProcessorType, m, err = ord.String.Unmarshal(data); err != nil {
		return nil, wrapDecode("processor type", err)
	}
	n += m
	if c.LastID, m, err = varint.Int64.Unmarshal(data[n:]); err != nil {
		return nil, wrapDecode("last id", err)
	}
	n += m
	if c.UpdatedAt, _, err = varint.Int64.Unmarshal(data[n:]); err != nil {
		return nil, wrapDecode("updated at", err)
	}
	return &c, nil
}

func vectorSize(v []float32) int {
	size := varint.Int.Size(len(v))
	for _, f := range v {
		size += raw.Float32.Size(f)
	}
	return size
}

func marshalVector(v []float32, bs []byte) int {
	n := varint.Int.Marshal(len(v), bs)
	for _, f := range v {
		n += raw.Float32.Marshal(f, bs[n:])
	}
	return n
}

func unmarshalVector(bs []byte) ([]float32, int, error) {
	length, n, err := readLength(bs)
	if err != nil {
		return nil, 0, err
	}
	if length*4 > len(bs)-n {
		return nil, 0, fmt.Errorf("%w: vector of %d values", ErrTruncatedData, length)
	}
	v := make([]float32, length)
	for i := range v {
		f, m, err := raw.Float32.Unmarshal(bs[n:])
		if err != nil {
			return nil, 0, wrapDecode("vector value", err)
		}
		v[i] = f
		n += m
	}
	return v, n, nil
}

func sparseSize(v core.SparseVector) int {
	size := varint.Int.Size(len(v.Indices))
	for i, idx := range v.Indices {
		size += varint.Uint32.Size(idx) + raw.Float32.Size(v.Values[i])
	}
	return size
}

func marshalSparse(v core.SparseVector, bs []byte) int {
	n := varint.Int.Marshal(len(v.Indices), bs)
	for _, idx := range v.Indices {
		n += varint.Uint32.Marshal(idx, bs[n:])
	}
	for _, f := range v.Values {
		n += raw.Float32.Marshal(f, bs[n:])
	}
	return n
}

func unmarshalSparse(bs []byte) (core.SparseVector, int, error) {
	var v core.SparseVector
	length, n, err := readLength(bs)
	if err != nil {
		return v, 0, err
	}
	v.Indices = make([]uint32, length)
	for i := range v.Indices {
		idx, m, err := varint.Uint32.Unmarshal(bs[n:])
		if err != nil {
			return v, 0, wrapDecode("sparse index", err)
		}
		v.Indices[i] = idx
		n += m
	}
	if length*4 > len(bs)-n {
		return v, 0, fmt.Errorf("%w: sparse vector of %d values", ErrTruncatedData, length)
	}
	v.Values = make([]float32, length)
	for i := range v.Values {
		f, m, err := raw.Float32.Unmarshal(bs[n:])
		if err != nil {
			return v, 0, wrapDecode("sparse value", err)
		}
		v.Values[i] = f
		n += m
	}
	return v, n, nil
}

// readLength decodes a collection length and rejects values that cannot
// fit in the remaining bytes.
func readLength(bs []byte) (int, int, error) {
	length, n, err := varint.Int.Unmarshal(bs)
	if err != nil {
		return 0, 0, wrapDecode("length", err)
	}
	if length < 0 || length > len(bs)-n {
		return 0, 0, fmt.Errorf("%w: length %d exceeds %d remaining bytes", ErrTruncatedData, length, len(bs)-n)
	}
	return length, n, nil
}

func wrapDecode(field string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrSerializationFailed, field, err)
}
