package protrieve

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/poiesic/protrieve/ai/mock"
	"github.com/poiesic/protrieve/ann"
	"github.com/poiesic/protrieve/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	hemoglobin = "MVLSPADKTNVKAAWGKVGAHAGEYGAEALERMFLSFPTTKTYFPHFDLSHGSAQVKGHGKKVADALTNAVAHV"

	testFASTA = `>sp|P69905|HBA_HUMAN Hemoglobin subunit alpha OS=Homo sapiens OX=9606 GN=HBA1 PE=1 SV=2
` + hemoglobin + `
>sp|P99999|CYC_HUMAN Cytochrome c OS=Homo sapiens OX=9606 GN=CYCS PE=1 SV=2
MGDVEKGKKIFIMKCSQCHTVEKGGKHKTGPNLHGLFGRKTGQAPGYSYTAANKNKGIIW
`

	testFlatFiles = `ID   HBA_HUMAN               Reviewed;         142 AA.
AC   P69905; P01922;
DE   RecName: Full=Hemoglobin subunit alpha;
CC   -!- FUNCTION: Involved in oxygen transport from the lung to the
CC       various peripheral tissues.
//
ID   CYC_HUMAN               Reviewed;         105 AA.
AC   P99999;
DE   RecName: Full=Cytochrome c;
CC   -!- FUNCTION: Electron carrier protein.
//
`
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Storage.DSN = filepath.Join(dir, "protrieve.db")
	cfg.Storage.BadgerPath = filepath.Join(dir, "badger")
	cfg.ANN.Path = filepath.Join(dir, "proteins.ann")
	return cfg
}

func openTestDatabase(t *testing.T, cfg *config.Config) *Database {
	t.Helper()
	db, err := NewDatabase(context.Background(), cfg,
		WithProvider(mock.NewMockProvider()),
		WithEncoders(mock.NewMockEncoder(16), mock.NewMockEncoder(16)))
	require.NoError(t, err)
	return db
}

func TestNewDatabase(t *testing.T) {
	t.Run("create new database", func(t *testing.T) {
		db := openTestDatabase(t, testConfig(t))
		defer db.Close()

		assert.NotNil(t, db.MetadataRepository())
		assert.NotNil(t, db.DocumentRepository())
		assert.NotNil(t, db.AnnotationRepository())
		assert.NotNil(t, db.CheckpointRepository())
		assert.NotNil(t, db.Analyzer())
		assert.Equal(t, 16, db.Generator().Dimension())
		assert.NotNil(t, db.Index())
	})

	t.Run("error with invalid badger path", func(t *testing.T) {
		cfg := testConfig(t)
		tmpFile := filepath.Join(t.TempDir(), "not_a_dir")
		require.NoError(t, os.WriteFile(tmpFile, []byte("test"), 0644))
		cfg.Storage.BadgerPath = tmpFile

		db, err := NewDatabase(context.Background(), cfg,
			WithProvider(mock.NewMockProvider()),
			WithEncoders(mock.NewMockEncoder(16)))
		assert.Error(t, err)
		assert.Nil(t, db)
	})

	t.Run("error with invalid config", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Fusion.VectorWeight = 2

		_, err := NewDatabase(context.Background(), cfg)
		assert.Error(t, err)
	})

	t.Run("error with malformed index file", func(t *testing.T) {
		cfg := testConfig(t)
		require.NoError(t, os.WriteFile(cfg.ANN.Path, []byte("garbage"), 0644))

		_, err := NewDatabase(context.Background(), cfg,
			WithProvider(mock.NewMockProvider()),
			WithEncoders(mock.NewMockEncoder(16)))
		assert.Error(t, err)
	})
}

func TestDatabase_Close(t *testing.T) {
	provider := mock.NewMockProvider()
	db, err := NewDatabase(context.Background(), testConfig(t),
		WithProvider(provider),
		WithEncoders(mock.NewMockEncoder(4)))
	require.NoError(t, err)

	assert.NoError(t, db.Close())
	assert.True(t, provider.(*mock.MockProvider).Closed())
}

func TestDatabase_SequenceSearch(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	db := openTestDatabase(t, cfg)

	_, err := db.NewSequenceSearcher()
	assert.ErrorIs(t, err, ann.ErrNoIndex)

	_, err = db.NewLoader().LoadFASTA(ctx, strings.NewReader(testFASTA))
	require.NoError(t, err)

	builder, err := db.NewIndexBuilder(nil, io.Discard)
	require.NoError(t, err)
	summary, err := db.RebuildIndex(ctx, builder, strings.NewReader(testFASTA), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Sequences)
	assert.FileExists(t, cfg.ANN.Path)

	searcher, err := db.NewSequenceSearcher()
	require.NoError(t, err)
	res, err := searcher.Search(ctx, ">query\n"+hemoglobin, 0.80)
	require.NoError(t, err)
	require.NotEmpty(t, res.Hits)
	assert.Equal(t, "P69905", res.Hits[0].ProteinID)
	assert.Equal(t, "HBA_HUMAN", res.Hits[0].ShortName)
	assert.InDelta(t, 1.0, res.Hits[0].Similarity, 1e-4)
	require.NoError(t, db.Close())

	t.Run("index is loaded on reopen", func(t *testing.T) {
		db := openTestDatabase(t, cfg)
		defer db.Close()

		searcher, err := db.NewSequenceSearcher()
		require.NoError(t, err)
		res, err := searcher.Search(ctx, hemoglobin, 0.80)
		require.NoError(t, err)
		require.NotEmpty(t, res.Hits)
		assert.Equal(t, "P69905", res.Hits[0].ProteinID)
	})

	t.Run("index dimension must match encoder", func(t *testing.T) {
		_, err := NewDatabase(ctx, cfg,
			WithProvider(mock.NewMockProvider()),
			WithEncoders(mock.NewMockEncoder(8)))
		assert.ErrorIs(t, err, ann.ErrDimensionMismatch)
	})
}

func TestDatabase_TextSearch(t *testing.T) {
	ctx := context.Background()
	db := openTestDatabase(t, testConfig(t))
	defer db.Close()

	_, err := db.NewLoader().LoadFlatFiles(ctx, strings.NewReader(testFlatFiles))
	require.NoError(t, err)

	pipeline, err := db.NewDocumentPipeline()
	require.NoError(t, err)
	defer pipeline.Release()
	stats, err := pipeline.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Documents)

	searcher, err := db.NewSearcher()
	require.NoError(t, err)
	records, err := searcher.Search(ctx, "oxygen transport", 5)
	require.NoError(t, err)
	require.NotEmpty(t, records)
	assert.Equal(t, "P69905", records[0].ID)
	assert.Greater(t, records[0].Overlap, 1)
}
