package sqlstore

import (
	"context"
	"fmt"

	"github.com/poiesic/protrieve/core"
)

// AddAnnotations stores protein to GO term rows, ignoring exact duplicates.
func (s *Store) AddAnnotations(ctx context.Context, annotations ...core.Annotation) error {
	if len(annotations) == 0 {
		return nil
	}
	return s.WithTransaction(ctx, func(ctx context.Context) error {
		stmt, err := s.prepare(ctx, `
			INSERT INTO protein_go_mapping (protein_id, go_id, evidence_code) VALUES (?, ?, ?)
			ON CONFLICT (protein_id, go_id, evidence_code) DO NOTHING`)
		if err != nil {
			return fmt.Errorf("prepare annotation insert: %w", notClosed(err))
		}
		defer stmt.Close()
		for _, a := range annotations {
			if _, err := stmt.ExecContext(ctx, a.ProteinID, a.GOID, a.EvidenceCode); err != nil {
				return fmt.Errorf("insert annotation %s %s: %w", a.ProteinID, a.GOID, err)
			}
		}
		return nil
	})
}

// UpsertGOTerms inserts or replaces go_info rows.
func (s *Store) UpsertGOTerms(ctx context.Context, terms ...core.GOTerm) error {
	if len(terms) == 0 {
		return nil
	}
	return s.WithTransaction(ctx, func(ctx context.Context) error {
		stmt, err := s.prepare(ctx, `
			INSERT INTO go_info (go_id, go_name, namespace, def, is_a) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (go_id) DO UPDATE SET
				go_name = excluded.go_name,
				namespace = excluded.namespace,
				def = excluded.def,
				is_a = excluded.is_a`)
		if err != nil {
			return fmt.Errorf("prepare term upsert: %w", notClosed(err))
		}
		defer stmt.Close()
		for _, t := range terms {
			if _, err := stmt.ExecContext(ctx, t.ID, t.Name, t.Namespace, t.Definition, t.IsA); err != nil {
				return fmt.Errorf("upsert term %s: %w", t.ID, err)
			}
		}
		return nil
	})
}

// RefreshBackground rebuilds background_distribution_count from the
// annotation table.
func (s *Store) RefreshBackground(ctx context.Context) error {
	return s.WithTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.exec(ctx, "DELETE FROM background_distribution_count"); err != nil {
			return fmt.Errorf("clear background: %w", notClosed(err))
		}
		_, err := s.exec(ctx, `
			INSERT INTO background_distribution_count (go_id, background_distribution)
			SELECT go_id, COUNT(DISTINCT protein_id) FROM protein_go_mapping GROUP BY go_id`)
		if err != nil {
			return fmt.Errorf("compute background: %w", err)
		}
		return nil
	})
}

// AnnotationsFor returns distinct (protein, term) pairs ordered by term then
// protein. EvidenceCode is left empty since pairs may carry several codes.
func (s *Store) AnnotationsFor(ctx context.Context, proteinIDs []string) ([]core.Annotation, error) {
	var out []core.Annotation
	err := inChunks(proteinIDs, func(part []string, args []any) error {
		rows, err := s.query(ctx, `
			SELECT DISTINCT protein_id, go_id FROM protein_go_mapping
			WHERE protein_id IN (`+placeholders(len(part))+`)
			ORDER BY go_id, protein_id`, args...)
		if err != nil {
			return notClosed(err)
		}
		defer rows.Close()
		for rows.Next() {
			var a core.Annotation
			if err := rows.Scan(&a.ProteinID, &a.GOID); err != nil {
				return err
			}
			out = append(out, a)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("fetch annotations: %w", err)
	}
	return out, nil
}

// BackgroundCounts returns the stored background count per term.
func (s *Store) BackgroundCounts(ctx context.Context, goIDs []string) (map[string]int, error) {
	out := make(map[string]int, len(goIDs))
	err := inChunks(goIDs, func(part []string, args []any) error {
		rows, err := s.query(ctx, `
			SELECT go_id, background_distribution FROM background_distribution_count
			WHERE go_id IN (`+placeholders(len(part))+")", args...)
		if err != nil {
			return notClosed(err)
		}
		defer rows.Close()
		for rows.Next() {
			var id string
			var n int
			if err := rows.Scan(&id, &n); err != nil {
				return err
			}
			out[id] = n
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("fetch background counts: %w", err)
	}
	return out, nil
}

// BackgroundSize counts distinct annotated proteins.
func (s *Store) BackgroundSize(ctx context.Context) (int, error) {
	var n int
	if err := s.queryRow(ctx, "SELECT COUNT(DISTINCT protein_id) FROM protein_go_mapping").Scan(&n); err != nil {
		return 0, fmt.Errorf("count background: %w", notClosed(err))
	}
	return n, nil
}

// GOTerms fetches go_info rows by id.
func (s *Store) GOTerms(ctx context.Context, goIDs []string) (map[string]core.GOTerm, error) {
	out := make(map[string]core.GOTerm, len(goIDs))
	err := inChunks(goIDs, func(part []string, args []any) error {
		rows, err := s.query(ctx, `
			SELECT go_id, go_name, namespace, def, is_a FROM go_info
			WHERE go_id IN (`+placeholders(len(part))+")", args...)
		if err != nil {
			return notClosed(err)
		}
		defer rows.Close()
		for rows.Next() {
			var t core.GOTerm
			if err := rows.Scan(&t.ID, &t.Name, &t.Namespace, &t.Definition, &t.IsA); err != nil {
				return err
			}
			out[t.ID] = t
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("fetch go terms: %w", err)
	}
	return out, nil
}
