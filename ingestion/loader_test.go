package ingestion

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/poiesic/protrieve/storage/sqlstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *sqlstore.Store {
	t.Helper()
	s, err := sqlstore.Open(context.Background(), filepath.Join(t.TempDir(), "protrieve.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLoaderRequiresStores(t *testing.T) {
	ctx := context.Background()
	l := NewLoader(nil, nil, nil)

	_, err := l.LoadFASTA(ctx, strings.NewReader(testFASTA))
	assert.Equal(t, ErrMetadataRepositoryRequired, err)
	_, err = l.LoadOBO(ctx, strings.NewReader(testOBO))
	assert.Equal(t, ErrAnnotationRepositoryRequired, err)
	_, err = l.LoadGPA(ctx, strings.NewReader(""))
	assert.Equal(t, ErrAnnotationRepositoryRequired, err)
	_, err = l.LoadFlatFiles(ctx, strings.NewReader(testFlatFiles))
	assert.Equal(t, ErrDocumentRepositoryRequired, err)
}

func TestLoaderEndToEnd(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	l := NewLoader(store, store, store, WithLoadBatchSize(1))

	stats, err := l.LoadFASTA(ctx, strings.NewReader(testFASTA))
	require.NoError(t, err)
	assert.Equal(t, LoadStats{Read: 3, Stored: 2, Skipped: 1}, stats)

	records, err := store.ProteinRecords(ctx, []string{"P69905", "P99999"})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Homo sapiens", records["P69905"].Organism)
	assert.Equal(t, "CYCS", records["P99999"].GeneName)

	stats, err = l.LoadOBO(ctx, strings.NewReader(testOBO))
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Stored)

	gpa := strings.Join([]string{
		"!gpa-version: 1.1",
		"UniProtKB\tP69905\tenables\tGO:0005344\tPMID:1\tECO:0000314\t\t\t20200101\tUniProt",
		"UniProtKB\tP99999\tenables\tGO:0005344\tPMID:2\tECO:0000269\t\t\t20200101\tUniProt",
		"UniProtKB\tP69905\tinvolved_in\tGO:0015671\tPMID:1\tECO:0000314\t\t\t20200101\tUniProt",
		"UniProtKB\tQ00000\tenables\tGO:0005344\tPMID:4\tECO:0000314\t\t\t20200101\tUniProt",
	}, "\n")
	stats, err = l.LoadGPA(ctx, strings.NewReader(gpa))
	require.NoError(t, err)
	assert.Equal(t, LoadStats{Read: 4, Stored: 3, Skipped: 1}, stats)

	size, err := store.BackgroundSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, size)
	counts, err := store.BackgroundCounts(ctx, []string{"GO:0005344", "GO:0015671"})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"GO:0005344": 2, "GO:0015671": 1}, counts)

	stats, err = l.LoadFlatFiles(ctx, strings.NewReader(testFlatFiles))
	require.NoError(t, err)
	assert.Equal(t, LoadStats{Read: 3, Stored: 3, Skipped: 1}, stats)

	files, err := store.FlatFilesAfter(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Equal(t, "P69905", files[0].ProteinID)
}
