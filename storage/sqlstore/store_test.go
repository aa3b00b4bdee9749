package sqlstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/poiesic/protrieve/core"
	"github.com/poiesic/protrieve/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "protrieve.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestParseDSN(t *testing.T) {
	tests := []struct {
		dsn     string
		driver  string
		dialect Dialect
	}{
		{"postgres://u:p@localhost/db", "pgx", Postgres},
		{"postgresql://localhost/db", "pgx", Postgres},
		{"sqlite:///tmp/x.db", "sqlite", SQLite},
		{"sqlite:x.db", "sqlite", SQLite},
		{"file:x.db?cache=shared", "sqlite", SQLite},
		{"/var/lib/protrieve.db", "sqlite", SQLite},
	}
	for _, tt := range tests {
		t.Run(tt.dsn, func(t *testing.T) {
			driver, _, dialect, err := parseDSN(tt.dsn)
			require.NoError(t, err)
			assert.Equal(t, tt.driver, driver)
			assert.Equal(t, tt.dialect, dialect)
		})
	}

	_, source, _, err := parseDSN("file:x.db?cache=shared")
	require.NoError(t, err)
	assert.Contains(t, source, "cache=shared&_pragma=journal_mode(WAL)")

	for _, bad := range []string{"", "mysql://localhost/db", "sqlite://"} {
		_, _, _, err := parseDSN(bad)
		assert.ErrorIs(t, err, storage.ErrUnsupportedDialect, bad)
	}
}

func TestRebind(t *testing.T) {
	s := &Store{dialect: Postgres}
	assert.Equal(t, "SELECT a FROM t WHERE x = $1 AND y IN ($2, $3)",
		s.rebind("SELECT a FROM t WHERE x = ? AND y IN (?, ?)"))

	s.dialect = SQLite
	assert.Equal(t, "x = ?", s.rebind("x = ?"))
}

func TestInChunks(t *testing.T) {
	items := make([]int, 1203)
	var sizes []int
	err := inChunks(items, func(part []int, args []any) error {
		sizes = append(sizes, len(part))
		assert.Len(t, args, len(part))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{500, 500, 203}, sizes)
}

func TestMigrateIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "protrieve.db")
	ctx := context.Background()

	s, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(ctx, path)
	require.NoError(t, err)
	defer s.Close()

	var versions int
	require.NoError(t, s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&versions))
	assert.Equal(t, 1, versions)
}

func TestSlotMap(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.ReplaceSlotMap(ctx, []string{"P1", "P2", "P3"}))
	got, err := s.ResolveSlots(ctx, []int{0, 2, 9})
	require.NoError(t, err)
	assert.Equal(t, map[int]string{0: "P1", 2: "P3"}, got)

	require.NoError(t, s.ReplaceSlotMap(ctx, []string{"Q9"}))
	got, err = s.ResolveSlots(ctx, []int{0, 2})
	require.NoError(t, err)
	assert.Equal(t, map[int]string{0: "Q9"}, got)
}

func TestProteins(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rec := core.ProteinRecord{
		ProteinID: "P69905", ShortName: "HBA_HUMAN", Name: "Hemoglobin subunit alpha",
		Organism: "Homo sapiens", TaxonID: "9606", GeneName: "HBA1", Evidence: "1", Version: "2",
	}
	require.NoError(t, s.UpsertProteins(ctx, rec, core.ProteinRecord{ProteinID: "P68871"}))

	rec.Version = "3"
	require.NoError(t, s.UpsertProteins(ctx, rec))

	got, err := s.ProteinRecords(ctx, []string{"P69905", "P68871", "NOPE"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, rec, got["P69905"])
	assert.Equal(t, core.ProteinRecord{ProteinID: "P68871"}, got["P68871"])

	known, err := s.KnownProteins(ctx, []string{"P69905", "NOPE"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"P69905": true}, known)
}

const hbaFlatFile = `ID   HBA_HUMAN               Reviewed;         142 AA.
AC   P69905; P01922;
DE   RecName: Full=Hemoglobin subunit alpha;
CC   -!- FUNCTION: Involved in oxygen transport from the lung to the
CC       various peripheral tissues.
//`

const cytcFlatFile = `ID   CYC_HUMAN               Reviewed;         105 AA.
AC   P99999;
DE   RecName: Full=Cytochrome c;
CC   -!- FUNCTION: Electron carrier protein. Plays a role in apoptosis.
//`

func TestFlatFiles(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	before, err := s.CorpusFingerprint(ctx)
	require.NoError(t, err)

	stored, err := s.AddFlatFiles(ctx,
		core.FlatFile{Content: hbaFlatFile},
		core.FlatFile{Content: cytcFlatFile},
		core.FlatFile{Content: "no accession here"})
	require.NoError(t, err)
	require.Len(t, stored, 3)
	assert.Equal(t, "P69905", stored[0].ProteinID)
	assert.Equal(t, "P99999", stored[1].ProteinID)
	assert.Empty(t, stored[2].ProteinID)
	assert.Less(t, stored[0].FileID, stored[1].FileID)

	after, err := s.CorpusFingerprint(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, before, after)
	again, err := s.CorpusFingerprint(ctx)
	require.NoError(t, err)
	assert.Equal(t, after, again)

	byID, err := s.FlatFiles(ctx, []int64{stored[1].FileID, 999})
	require.NoError(t, err)
	require.Len(t, byID, 1)
	assert.Equal(t, stored[1], byID[stored[1].FileID])

	page, err := s.FlatFilesAfter(ctx, stored[0].FileID, 10)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, stored[1].FileID, page[0].FileID)
	assert.Equal(t, stored[2].FileID, page[1].FileID)

	page, err = s.FlatFilesAfter(ctx, 0, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, stored[0].FileID, page[0].FileID)
}

func TestSearchFullText(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.AddFlatFiles(ctx, core.FlatFile{Content: hbaFlatFile}, core.FlatFile{Content: cytcFlatFile})
	require.NoError(t, err)

	hits, err := s.SearchFullText(ctx, "oxygen transport", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "P69905", hits[0].ProteinID)

	hits, err = s.SearchFullText(ctx, "apoptosis", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "P99999", hits[0].ProteinID)

	hits, err = s.SearchFullText(ctx, "ribosome", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = s.SearchFullText(ctx, "", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestAnnotations(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddAnnotations(ctx,
		core.Annotation{ProteinID: "P1", GOID: "GO:0005344", EvidenceCode: "ECO:0000269"},
		core.Annotation{ProteinID: "P1", GOID: "GO:0005344", EvidenceCode: "ECO:0000314"},
		core.Annotation{ProteinID: "P1", GOID: "GO:0005344", EvidenceCode: "ECO:0000314"},
		core.Annotation{ProteinID: "P2", GOID: "GO:0005344"},
		core.Annotation{ProteinID: "P2", GOID: "GO:0006915"},
		core.Annotation{ProteinID: "P3", GOID: "GO:0006915"},
	))
	require.NoError(t, s.RefreshBackground(ctx))

	n, err := s.BackgroundSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	counts, err := s.BackgroundCounts(ctx, []string{"GO:0005344", "GO:0006915", "GO:9999999"})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"GO:0005344": 2, "GO:0006915": 2}, counts)

	pairs, err := s.AnnotationsFor(ctx, []string{"P1", "P2"})
	require.NoError(t, err)
	assert.Equal(t, []core.Annotation{
		{ProteinID: "P1", GOID: "GO:0005344"},
		{ProteinID: "P2", GOID: "GO:0005344"},
		{ProteinID: "P2", GOID: "GO:0006915"},
	}, pairs)

	require.NoError(t, s.UpsertGOTerms(ctx,
		core.GOTerm{ID: "GO:0005344", Name: "oxygen carrier activity", Namespace: "molecular_function"},
		core.GOTerm{ID: "GO:0005344", Name: "oxygen carrier activity", Namespace: "molecular_function", IsA: "GO:0140104"},
	))
	terms, err := s.GOTerms(ctx, []string{"GO:0005344", "GO:0006915"})
	require.NoError(t, err)
	require.Len(t, terms, 1)
	assert.Equal(t, "GO:0140104", terms["GO:0005344"].IsA)
}

func TestWithTransactionRollback(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	boom := assert.AnError
	err := s.WithTransaction(ctx, func(ctx context.Context) error {
		require.NoError(t, s.UpsertProteins(ctx, core.ProteinRecord{ProteinID: "P1"}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	known, err := s.KnownProteins(ctx, []string{"P1"})
	require.NoError(t, err)
	assert.Empty(t, known)
}
