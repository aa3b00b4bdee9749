package reindex

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/protrieve/ai"
	"github.com/poiesic/protrieve/ai/mock"
	"github.com/poiesic/protrieve/ann"
	"github.com/poiesic/protrieve/embed"
	"github.com/poiesic/protrieve/ingestion"
	"github.com/poiesic/protrieve/storage/sqlstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDim = 8

const testFASTA = `>sp|P69905|HBA_HUMAN Hemoglobin subunit alpha OS=Homo sapiens OX=9606 GN=HBA1 PE=1 SV=2
MVLSPADKTNVKAAWGKVGAHAGEYGAEALERMFLSFPTTKTYFPHF
>sp|P99999|CYC_HUMAN Cytochrome c OS=Homo sapiens OX=9606 GN=CYCS PE=1 SV=2
MGDVEKGKKIFIMKCSQCHTVEKGGKHKTGPNLHGLFGRKTGQAPGYSYTAANKNKGIIW
>bad residues
MK1TAY
>sp|P68871|HBB_HUMAN Hemoglobin subunit beta OS=Homo sapiens OX=9606 GN=HBB PE=1 SV=2
MVHLTPEEKSAVTALWGKVNVDEVGGEALGRLLVVYPWTQRFFESFGDLST
>empty
`

type recordingSink struct {
	dim       int
	recreated int
	flushed   int
	slots     []int64
	vectors   [][]float32
	insertErr error
}

func (s *recordingSink) Dimension() int { return s.dim }

func (s *recordingSink) Recreate(context.Context) error {
	s.recreated++
	s.slots, s.vectors = nil, nil
	return nil
}

func (s *recordingSink) Insert(_ context.Context, slots []int64, vectors [][]float32) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	s.slots = append(s.slots, slots...)
	s.vectors = append(s.vectors, vectors...)
	return nil
}

func (s *recordingSink) Flush(context.Context) error {
	s.flushed++
	return nil
}

// flakyEncoder fails the first failures calls, then behaves like the mock
// encoder.
func flakyEncoder(failures int, err error) (*mock.MockEncoder, func() int) {
	var (
		mu    sync.Mutex
		calls int
	)
	enc := mock.NewMockEncoder(testDim)
	enc.EncodeFunc = func(_ context.Context, sequences []string) ([][][]float32, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n <= failures {
			return nil, err
		}
		out := make([][][]float32, len(sequences))
		for i, s := range sequences {
			for j := 0; j < len(s); j++ {
				out[i] = append(out[i], mock.ResidueVector(s[j], testDim))
			}
		}
		return out, nil
	}
	return enc, func() int {
		mu.Lock()
		defer mu.Unlock()
		return calls
	}
}

func newGenerator(t *testing.T, enc ai.SequenceEncoder) *embed.Generator {
	t.Helper()
	gen, err := embed.NewGenerator([]ai.SequenceEncoder{enc})
	require.NoError(t, err)
	t.Cleanup(gen.Release)
	return gen
}

func openStore(t *testing.T) *sqlstore.Store {
	t.Helper()
	s, err := sqlstore.Open(context.Background(), filepath.Join(t.TempDir(), "meta.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.BatchSize = 2
	cfg.RetryDelay = time.Millisecond
	return cfg
}

func TestNewBuilder(t *testing.T) {
	gen := newGenerator(t, mock.NewMockEncoder(testDim))
	store := openStore(t)

	_, err := NewBuilder(nil, store, nil, nil)
	assert.Equal(t, ErrEmbedderRequired, err)
	_, err = NewBuilder(gen, nil, nil, nil)
	assert.Equal(t, ErrMetadataRepositoryRequired, err)

	b, err := NewBuilder(gen, store, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultBatchSize, b.config.BatchSize)
}

func TestBuilderRun(t *testing.T) {
	ctx := context.Background()
	gen := newGenerator(t, mock.NewMockEncoder(testDim))
	store := openStore(t)
	sink := &recordingSink{dim: testDim}
	var progress bytes.Buffer

	b, err := NewBuilder(gen, store, testConfig(), &progress, WithSink(sink))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "proteins.ann")
	summary, err := b.Run(ctx, strings.NewReader(testFASTA), 5, path)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Sequences)
	assert.Equal(t, 2, summary.Skipped)
	assert.Equal(t, testDim, summary.Dimension)
	assert.Equal(t, path, summary.Path)
	require.NotNil(t, summary.Index)
	assert.Equal(t, 3, summary.Index.Len())

	ids, err := store.ResolveSlots(ctx, []int{0, 1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, map[int]string{0: "P69905", 1: "P99999", 2: "P68871"}, ids)

	loaded, err := ann.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, loaded.Len())

	// The stored vector for a slot is the query's own top hit.
	v, ok := loaded.Vector(1)
	require.True(t, ok)
	hits, err := loaded.Search(ctx, v, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, 1, hits[0].Slot)

	assert.Equal(t, 1, sink.recreated)
	assert.Equal(t, 1, sink.flushed)
	assert.Equal(t, []int64{0, 1, 2}, sink.slots)
	assert.Len(t, sink.vectors, 3)

	assert.Contains(t, progress.String(), "Index rebuild complete. Indexed 3 sequences")
}

func TestBuilderRetriesTransientFailures(t *testing.T) {
	enc, calls := flakyEncoder(2, errors.New("connection reset by peer"))
	gen := newGenerator(t, enc)
	store := openStore(t)

	cfg := testConfig()
	cfg.BatchSize = 10
	b, err := NewBuilder(gen, store, cfg, nil)
	require.NoError(t, err)

	summary, err := b.Run(context.Background(), strings.NewReader(testFASTA), 0, filepath.Join(t.TempDir(), "idx.ann"))
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Sequences)
	assert.Equal(t, 3, calls())
}

func TestBuilderDoesNotRetryPermanentFailures(t *testing.T) {
	enc, calls := flakyEncoder(100, fmt.Errorf("remote encoder: %w", ai.ErrShapeMismatch))
	gen := newGenerator(t, enc)
	store := openStore(t)

	cfg := testConfig()
	cfg.BatchSize = 10
	b, err := NewBuilder(gen, store, cfg, nil)
	require.NoError(t, err)

	_, err = b.Run(context.Background(), strings.NewReader(testFASTA), 0, filepath.Join(t.TempDir(), "idx.ann"))
	assert.ErrorIs(t, err, ai.ErrShapeMismatch)
	assert.Equal(t, 1, calls())
}

func TestBuilderKeepsSlotMapWhenPublishFails(t *testing.T) {
	ctx := context.Background()
	gen := newGenerator(t, mock.NewMockEncoder(testDim))
	store := openStore(t)
	require.NoError(t, store.ReplaceSlotMap(ctx, []string{"OLD1", "OLD2"}))

	b, err := NewBuilder(gen, store, testConfig(), nil)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "missing", "idx.ann")
	_, err = b.Run(ctx, strings.NewReader(testFASTA), 0, path)
	require.Error(t, err)

	ids, err := store.ResolveSlots(ctx, []int{0, 1, 2})
	require.NoError(t, err)
	assert.Equal(t, map[int]string{0: "OLD1", 1: "OLD2"}, ids)
}

func TestBuilderErrors(t *testing.T) {
	ctx := context.Background()
	gen := newGenerator(t, mock.NewMockEncoder(testDim))
	store := openStore(t)
	path := filepath.Join(t.TempDir(), "idx.ann")

	t.Run("no sequences", func(t *testing.T) {
		b, err := NewBuilder(gen, store, testConfig(), nil)
		require.NoError(t, err)
		_, err = b.Run(ctx, strings.NewReader(">only invalid\nMK1\n"), 0, path)
		assert.ErrorIs(t, err, ErrNoSequences)
	})

	t.Run("sink dimension mismatch", func(t *testing.T) {
		b, err := NewBuilder(gen, store, testConfig(), nil, WithSink(&recordingSink{dim: 4}))
		require.NoError(t, err)
		_, err = b.Run(ctx, strings.NewReader(testFASTA), 0, path)
		assert.ErrorIs(t, err, ann.ErrDimensionMismatch)
	})

	t.Run("sink insert failure", func(t *testing.T) {
		boom := errors.New("milvus unavailable")
		b, err := NewBuilder(gen, store, testConfig(), nil, WithSink(&recordingSink{dim: testDim, insertErr: boom}))
		require.NoError(t, err)
		_, err = b.Run(ctx, strings.NewReader(testFASTA), 0, path)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("cancelled", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		b, err := NewBuilder(gen, store, testConfig(), nil)
		require.NoError(t, err)
		_, err = b.Run(cctx, strings.NewReader(testFASTA), 0, path)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestRecordIterator(t *testing.T) {
	var sizes []int
	err := NewRecordIterator(2).ForEach(context.Background(), strings.NewReader(testFASTA), func(batch []ingestion.FASTARecord) error {
		sizes = append(sizes, len(batch))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2, 1}, sizes)
}
