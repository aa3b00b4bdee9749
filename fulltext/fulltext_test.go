package fulltext

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/poiesic/protrieve/core"
	"github.com/poiesic/protrieve/storage/sqlstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQuery(t *testing.T) {
	subs := ParseQuery("What is the cofactor of catalase? And which pathway.")
	require.Len(t, subs, 2)

	assert.Equal(t, "cofactor catalase", subs[0].Base)
	assert.Equal(t, []string{"cofactor catalase", "coenzyme", "co factor", "co enzyme"}, subs[0].Expansions)
	assert.InDelta(t, 1.5, subs[0].Weight, 1e-12)

	assert.Equal(t, "pathway", subs[1].Base)
	assert.Equal(t, []string{"pathway", "biopathway", "biosynthesis", "route"}, subs[1].Expansions)
	assert.InDelta(t, 2.0, subs[1].Weight, 1e-12)
}

func TestParseQueryEdgeCases(t *testing.T) {
	assert.Empty(t, ParseQuery(""))
	assert.Empty(t, ParseQuery("what is the information about it?"))

	subs := ParseQuery("kinase activity")
	require.Len(t, subs, 1)
	assert.Equal(t, []string{"kinase activity", "function", "activity", "action"}, subs[0].Expansions)

	subs = ParseQuery("catalytic protein_complex")
	require.Len(t, subs, 1)
	assert.Equal(t, []string{"catalytic protein complex", "enzymatic", "enzyme driven", "polypeptide", "gene product"},
		subs[0].Expansions)
}

// stubIndex answers phrases from a fixed table.
type stubIndex struct {
	results map[string][]core.FlatFile
	fail    map[string]bool
	calls   []string
}

func (s *stubIndex) SearchFullText(_ context.Context, phrase string, limit int) ([]core.FlatFile, error) {
	s.calls = append(s.calls, phrase)
	if s.fail[phrase] {
		return nil, errors.New("fts5: syntax error")
	}
	files := s.results[phrase]
	if len(files) > limit {
		files = files[:limit]
	}
	return files, nil
}

func record(acc string) core.FlatFile {
	return core.FlatFile{Content: fmt.Sprintf("ID   X_HUMAN\nAC   %s;\n//", acc)}
}

func TestRetrieveAccumulatesWeights(t *testing.T) {
	idx := &stubIndex{
		results: map[string][]core.FlatFile{
			"heme":           {record("P2"), record("P1")},
			"oxygen carrier": {record("P1")},
			"pathway":        {record("P3"), {Content: "no accession"}},
			"biosynthesis":   {record("P3")},
		},
		fail: map[string]bool{"route": true},
	}
	r, err := NewRetriever(idx, nil)
	require.NoError(t, err)

	docs, err := r.Retrieve(context.Background(), "heme; oxygen carrier; pathway", 10)
	require.NoError(t, err)
	require.Len(t, docs, 3)

	// P3: pathway + biosynthesis = 2 + 2; P1: heme + oxygen carrier = 2 + 1.5; P2: heme = 2.
	assert.Equal(t, "P3", docs[0].ID)
	assert.InDelta(t, 4.0, docs[0].Score, 1e-12)
	assert.Equal(t, "P1", docs[1].ID)
	assert.InDelta(t, 3.5, docs[1].Score, 1e-12)
	assert.Equal(t, "P2", docs[2].ID)
	for _, d := range docs {
		assert.Equal(t, core.SourceFullText, d.Source)
	}
	assert.Contains(t, idx.calls, "route")

	docs, err = r.Retrieve(context.Background(), "heme; oxygen carrier; pathway", 1)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "P3", docs[0].ID)
}

func TestRetrieveTiesByAccession(t *testing.T) {
	idx := &stubIndex{results: map[string][]core.FlatFile{"globin": {record("Q9"), record("A1")}}}
	r, err := NewRetriever(idx, nil)
	require.NoError(t, err)

	docs, err := r.Retrieve(context.Background(), "globin", 10)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "A1", docs[0].ID)
	assert.Equal(t, "Q9", docs[1].ID)
}

func TestRetrieveNoTerms(t *testing.T) {
	idx := &stubIndex{}
	r, err := NewRetriever(idx, nil)
	require.NoError(t, err)

	docs, err := r.Retrieve(context.Background(), "what is this?", 10)
	require.NoError(t, err)
	assert.Empty(t, docs)
	assert.Empty(t, idx.calls)

	_, err = NewRetriever(nil, nil)
	assert.ErrorIs(t, err, ErrIndexRequired)
}

func TestRetrieveAgainstSQLite(t *testing.T) {
	ctx := context.Background()
	store, err := sqlstore.Open(ctx, filepath.Join(t.TempDir(), "fts.db"))
	require.NoError(t, err)
	defer store.Close()

	_, err = store.AddFlatFiles(ctx,
		core.FlatFile{Content: "ID   HBA_HUMAN\nAC   P69905;\nCC   -!- FUNCTION: Involved in oxygen transport.\n//"},
		core.FlatFile{Content: "ID   CYC_HUMAN\nAC   P99999;\nCC   -!- FUNCTION: Electron carrier in the respiratory pathway.\n//"},
	)
	require.NoError(t, err)

	r, err := NewRetriever(store, nil)
	require.NoError(t, err)

	docs, err := r.Retrieve(ctx, "What is the oxygen transport?", 10)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "P69905", docs[0].ID)

	docs, err = r.Retrieve(ctx, "respiratory pathway", 10)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "P99999", docs[0].ID)
}
