package sqlstore

import (
	"context"
	"fmt"

	"github.com/poiesic/protrieve/core"
)

// ResolveSlots maps ANN slots to protein accessions.
func (s *Store) ResolveSlots(ctx context.Context, slots []int) (map[int]string, error) {
	out := make(map[int]string, len(slots))
	err := inChunks(slots, func(part []int, args []any) error {
		rows, err := s.query(ctx,
			"SELECT index_id, protein_id FROM id_map WHERE index_id IN ("+placeholders(len(part))+")", args...)
		if err != nil {
			return notClosed(err)
		}
		defer rows.Close()
		for rows.Next() {
			var slot int
			var id string
			if err := rows.Scan(&slot, &id); err != nil {
				return err
			}
			out[slot] = id
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("resolve slots: %w", err)
	}
	return out, nil
}

// ReplaceSlotMap rewrites the slot table inside one transaction.
func (s *Store) ReplaceSlotMap(ctx context.Context, proteinIDs []string) error {
	return s.WithTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.exec(ctx, "DELETE FROM id_map"); err != nil {
			return fmt.Errorf("clear slot map: %w", notClosed(err))
		}
		stmt, err := s.prepare(ctx, "INSERT INTO id_map (index_id, protein_id) VALUES (?, ?)")
		if err != nil {
			return fmt.Errorf("prepare slot insert: %w", err)
		}
		defer stmt.Close()
		for slot, id := range proteinIDs {
			if _, err := stmt.ExecContext(ctx, slot, id); err != nil {
				return fmt.Errorf("insert slot %d: %w", slot, err)
			}
		}
		s.logger.Debug("replaced slot map", "slots", len(proteinIDs))
		return nil
	})
}

// UpsertProteins inserts or replaces protein metadata rows.
func (s *Store) UpsertProteins(ctx context.Context, records ...core.ProteinRecord) error {
	if len(records) == 0 {
		return nil
	}
	return s.WithTransaction(ctx, func(ctx context.Context) error {
		stmt, err := s.prepare(ctx, `
			INSERT INTO protein_info (protein_id, protein_name, type, os, ox, gn, pe, sv)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (protein_id) DO UPDATE SET
				protein_name = excluded.protein_name,
				type = excluded.type,
				os = excluded.os,
				ox = excluded.ox,
				gn = excluded.gn,
				pe = excluded.pe,
				sv = excluded.sv`)
		if err != nil {
			return fmt.Errorf("prepare protein upsert: %w", notClosed(err))
		}
		defer stmt.Close()
		for _, r := range records {
			if r.ProteinID == "" {
				continue
			}
			_, err := stmt.ExecContext(ctx, r.ProteinID, r.ShortName, r.Name,
				r.Organism, r.TaxonID, r.GeneName, r.Evidence, r.Version)
			if err != nil {
				return fmt.Errorf("upsert protein %s: %w", r.ProteinID, err)
			}
		}
		return nil
	})
}

// ProteinRecords fetches metadata rows by accession.
func (s *Store) ProteinRecords(ctx context.Context, proteinIDs []string) (map[string]core.ProteinRecord, error) {
	out := make(map[string]core.ProteinRecord, len(proteinIDs))
	err := inChunks(proteinIDs, func(part []string, args []any) error {
		rows, err := s.query(ctx, `
			SELECT protein_id, protein_name, type, os, ox, gn, pe, sv
			FROM protein_info WHERE protein_id IN (`+placeholders(len(part))+")", args...)
		if err != nil {
			return notClosed(err)
		}
		defer rows.Close()
		for rows.Next() {
			var r core.ProteinRecord
			if err := rows.Scan(&r.ProteinID, &r.ShortName, &r.Name, &r.Organism,
				&r.TaxonID, &r.GeneName, &r.Evidence, &r.Version); err != nil {
				return err
			}
			out[r.ProteinID] = r
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("fetch protein records: %w", err)
	}
	return out, nil
}

// KnownProteins reports which accessions have a protein_info row.
func (s *Store) KnownProteins(ctx context.Context, proteinIDs []string) (map[string]bool, error) {
	out := make(map[string]bool, len(proteinIDs))
	err := inChunks(proteinIDs, func(part []string, args []any) error {
		rows, err := s.query(ctx,
			"SELECT protein_id FROM protein_info WHERE protein_id IN ("+placeholders(len(part))+")", args...)
		if err != nil {
			return notClosed(err)
		}
		defer rows.Close()
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return err
			}
			out[id] = true
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("check known proteins: %w", err)
	}
	return out, nil
}
