package sqlstore

import (
	"context"
	"fmt"
	"strconv"

	"github.com/poiesic/protrieve/core"
)

const flatFileColumns = "f.file_id, COALESCE(m.protein_id, ''), f.content"

// AddFlatFiles stores flat-file records. Records without a ProteinID take
// the accession from their AC line; the first file stored for an accession
// keeps the mapping.
func (s *Store) AddFlatFiles(ctx context.Context, files ...core.FlatFile) ([]core.FlatFile, error) {
	stored := make([]core.FlatFile, 0, len(files))
	err := s.WithTransaction(ctx, func(ctx context.Context) error {
		for _, f := range files {
			if f.FileID == 0 {
				row := s.queryRow(ctx, "INSERT INTO flat_files (content) VALUES (?) RETURNING file_id", f.Content)
				if err := row.Scan(&f.FileID); err != nil {
					return fmt.Errorf("insert flat file: %w", notClosed(err))
				}
			} else {
				_, err := s.exec(ctx, `
					INSERT INTO flat_files (file_id, content) VALUES (?, ?)
					ON CONFLICT (file_id) DO UPDATE SET content = excluded.content`, f.FileID, f.Content)
				if err != nil {
					return fmt.Errorf("upsert flat file %d: %w", f.FileID, notClosed(err))
				}
			}

			if f.ProteinID == "" {
				f.ProteinID, _ = core.AccessionFromFlatFile(f.Content)
			}
			if f.ProteinID != "" {
				_, err := s.exec(ctx, `
					INSERT INTO flat_files_mapping (protein_id, file_id) VALUES (?, ?)
					ON CONFLICT (protein_id) DO NOTHING`, f.ProteinID, f.FileID)
				if err != nil {
					return fmt.Errorf("map flat file %d: %w", f.FileID, err)
				}
			}
			stored = append(stored, f)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// FlatFiles fetches records by file id.
func (s *Store) FlatFiles(ctx context.Context, fileIDs []int64) (map[int64]core.FlatFile, error) {
	out := make(map[int64]core.FlatFile, len(fileIDs))
	err := inChunks(fileIDs, func(part []int64, args []any) error {
		rows, err := s.query(ctx, `
			SELECT `+flatFileColumns+`
			FROM flat_files f LEFT JOIN flat_files_mapping m ON m.file_id = f.file_id
			WHERE f.file_id IN (`+placeholders(len(part))+")", args...)
		if err != nil {
			return notClosed(err)
		}
		defer rows.Close()
		for rows.Next() {
			var f core.FlatFile
			if err := rows.Scan(&f.FileID, &f.ProteinID, &f.Content); err != nil {
				return err
			}
			if _, seen := out[f.FileID]; !seen {
				out[f.FileID] = f
			}
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("fetch flat files: %w", err)
	}
	return out, nil
}

// FlatFilesAfter pages through flat files in id order.
func (s *Store) FlatFilesAfter(ctx context.Context, afterID int64, limit int) ([]core.FlatFile, error) {
	rows, err := s.query(ctx, `
		SELECT `+flatFileColumns+`
		FROM flat_files f LEFT JOIN flat_files_mapping m ON m.file_id = f.file_id
		WHERE f.file_id > ?
		ORDER BY f.file_id, m.protein_id
		LIMIT ?`, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("page flat files: %w", notClosed(err))
	}
	defer rows.Close()

	var out []core.FlatFile
	for rows.Next() {
		var f core.FlatFile
		if err := rows.Scan(&f.FileID, &f.ProteinID, &f.Content); err != nil {
			return nil, err
		}
		if n := len(out); n > 0 && out[n-1].FileID == f.FileID {
			continue
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// CorpusFingerprint hashes the document count, the highest file id and the
// total content length.
func (s *Store) CorpusFingerprint(ctx context.Context) (string, error) {
	var count, maxID, size int64
	err := s.queryRow(ctx, `
		SELECT COUNT(*), COALESCE(MAX(file_id), 0), COALESCE(SUM(LENGTH(content)), 0)
		FROM flat_files`).Scan(&count, &maxID, &size)
	if err != nil {
		return "", fmt.Errorf("fingerprint corpus: %w", notClosed(err))
	}
	return core.ContentHash("flat_files",
		strconv.FormatInt(count, 10),
		strconv.FormatInt(maxID, 10),
		strconv.FormatInt(size, 10)), nil
}

// SearchFullText runs a keyword query against the full-text index.
// On SQLite the phrase is an FTS5 MATCH expression; on PostgreSQL it is fed
// to plainto_tsquery.
func (s *Store) SearchFullText(ctx context.Context, phrase string, limit int) ([]core.FlatFile, error) {
	if phrase == "" || limit <= 0 {
		return nil, nil
	}

	var query string
	var args []any
	if s.dialect == Postgres {
		query = `
			SELECT ` + flatFileColumns + `
			FROM flat_files f LEFT JOIN flat_files_mapping m ON m.file_id = f.file_id
			WHERE to_tsvector('english', f.content) @@ plainto_tsquery('english', ?)
			ORDER BY ts_rank(to_tsvector('english', f.content), plainto_tsquery('english', ?)) DESC, f.file_id
			LIMIT ?`
		args = []any{phrase, phrase, limit}
	} else {
		query = `
			SELECT ` + flatFileColumns + `
			FROM flat_files_fts
			JOIN flat_files f ON f.file_id = flat_files_fts.rowid
			LEFT JOIN flat_files_mapping m ON m.file_id = f.file_id
			WHERE flat_files_fts MATCH ?
			ORDER BY bm25(flat_files_fts), f.file_id
			LIMIT ?`
		args = []any{phrase, limit}
	}

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("full-text search: %w", notClosed(err))
	}
	defer rows.Close()

	var out []core.FlatFile
	seen := make(map[int64]bool)
	for rows.Next() {
		var f core.FlatFile
		if err := rows.Scan(&f.FileID, &f.ProteinID, &f.Content); err != nil {
			return nil, err
		}
		if seen[f.FileID] {
			continue
		}
		seen[f.FileID] = true
		out = append(out, f)
	}
	return out, rows.Err()
}
