package lexical

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/poiesic/protrieve/core"
	"github.com/poiesic/protrieve/storage"
	"github.com/poiesic/protrieve/storage/badger"
	"github.com/poiesic/protrieve/storage/sqlstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingDocs counts corpus scans.
type countingDocs struct {
	storage.DocumentRepository
	scans atomic.Int32
}

func (c *countingDocs) FlatFilesAfter(ctx context.Context, afterID int64, limit int) ([]core.FlatFile, error) {
	if afterID == 0 {
		c.scans.Add(1)
	}
	return c.DocumentRepository.FlatFilesAfter(ctx, afterID, limit)
}

func flatFile(acc, text string) core.FlatFile {
	return core.FlatFile{Content: fmt.Sprintf("ID   %s_HUMAN\nAC   %s;\nCC   %s\n//", acc, acc, text)}
}

func openCorpus(t *testing.T, files ...core.FlatFile) *sqlstore.Store {
	t.Helper()
	s, err := sqlstore.Open(context.Background(), filepath.Join(t.TempDir(), "corpus.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	_, err = s.AddFlatFiles(context.Background(), files...)
	require.NoError(t, err)
	return s
}

func TestTokenize(t *testing.T) {
	assert.Equal(t,
		[]string{"heme", "binding", "protein", "oxygen", "transport", "2"},
		Tokenize("The heme-binding protein, for oxygen transport (2)!"))
	assert.Empty(t, Tokenize("what is the"))
	assert.Equal(t, TermID("heme"), TermID("heme"))
	assert.NotEqual(t, TermID("heme"), TermID("haem"))
}

func TestSnapshotWeights(t *testing.T) {
	f := newFitter(DefaultParams())
	f.add(1, "kinase kinase domain")
	f.add(2, "domain")
	s := f.snapshot()

	assert.Equal(t, 2, s.DocCount)
	assert.InDelta(t, 2.0, s.AvgDocLen, 1e-9)
	assert.Equal(t, 2, s.DocFreq[TermID("domain")])
	assert.Equal(t, 1, s.DocFreq[TermID("kinase")])

	// Doc 1 has length 3 against an average of 2.
	norm := 1 - 0.75 + 0.75*3.0/2.0
	want := 2 * 2.2 / (2 + 1.2*norm)
	v := s.Vectors[0]
	for i, id := range v.Indices {
		if id == TermID("kinase") {
			assert.InDelta(t, want, v.Values[i], 1e-6)
		}
		if i > 0 {
			assert.Less(t, v.Indices[i-1], id)
		}
	}
}

func TestQueryWeightsSumToOne(t *testing.T) {
	f := newFitter(DefaultParams())
	f.add(1, "kinase domain")
	f.add(2, "domain repeat")
	f.add(3, "zinc finger")
	w := queryWeights(f.snapshot(), "kinase domain unknownterm kinase")

	require.Len(t, w, 2)
	sum := 0.0
	for _, v := range w {
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
	assert.Greater(t, w[TermID("kinase")], w[TermID("domain")])

	idf := math.Log(4 / 1.5)
	assert.InDelta(t, idf/(idf+math.Log(4/2.5)), w[TermID("kinase")], 1e-9)
}

func TestRetrieve(t *testing.T) {
	corpus := openCorpus(t,
		flatFile("P1", "Serine threonine kinase involved in apoptosis signaling."),
		flatFile("P2", "Heme binding globin responsible for oxygen transport."),
		flatFile("P3", "Kinase regulatory subunit. Kinase activity requires magnesium."),
		core.FlatFile{Content: "kinase record without accession"},
	)
	r, err := NewRetriever(corpus)
	require.NoError(t, err)
	ctx := context.Background()

	docs, err := r.Retrieve(ctx, "kinase activity", 10)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "P3", docs[0].ID)
	assert.Equal(t, "P1", docs[1].ID)
	assert.Greater(t, docs[0].Score, docs[1].Score)
	for _, d := range docs {
		assert.Equal(t, core.SourceLexical, d.Source)
		assert.NotEmpty(t, d.Content)
	}

	// The short record without an accession ranks first and is dropped.
	docs, err = r.Retrieve(ctx, "kinase", 2)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "P3", docs[0].ID)

	docs, err = r.Retrieve(ctx, "ribosome", 10)
	require.NoError(t, err)
	assert.Empty(t, docs)

	docs, err = r.Retrieve(ctx, "the of and", 10)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestInitializeOnceAndCache(t *testing.T) {
	corpus := openCorpus(t, flatFile("P1", "kinase"), flatFile("P2", "globin"))
	stores, err := badger.NewMemoryStores()
	require.NoError(t, err)
	defer stores.Close()
	ctx := context.Background()

	docs := &countingDocs{DocumentRepository: corpus}
	r, err := NewRetriever(docs, WithCache(stores.Lexical))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, r.Initialize(ctx))
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), docs.scans.Load())
	fp := r.Fingerprint()
	assert.NotEmpty(t, fp)

	// A second retriever over the same corpus loads the snapshot.
	docs2 := &countingDocs{DocumentRepository: corpus}
	r2, err := NewRetriever(docs2, WithCache(stores.Lexical))
	require.NoError(t, err)
	got, err := r2.Retrieve(ctx, "kinase", 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "P1", got[0].ID)
	assert.Zero(t, docs2.scans.Load())

	// Corpus changes invalidate the cached fingerprint.
	_, err = corpus.AddFlatFiles(ctx, flatFile("P3", "kinase kinase"))
	require.NoError(t, err)
	r2.Invalidate()
	got, err = r2.Retrieve(ctx, "kinase", 5)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, int32(1), docs2.scans.Load())
	assert.NotEqual(t, fp, r2.Fingerprint())
}

func TestNewRetrieverRequiresDocs(t *testing.T) {
	_, err := NewRetriever(nil)
	assert.ErrorIs(t, err, ErrDocumentsRequired)
}
