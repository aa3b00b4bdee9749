package badger

import (
	"context"
	"errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/protrieve/core"
	"github.com/poiesic/protrieve/storage"
)

// LexicalStore persists fitted lexical snapshots by corpus fingerprint.
type LexicalStore struct {
	backend *Backend
}

var _ storage.LexicalCache = (*LexicalStore)(nil)

func NewLexicalStore(backend *Backend) *LexicalStore {
	return &LexicalStore{backend: backend}
}

func (s *LexicalStore) LoadLexicalSnapshot(ctx context.Context, fingerprint string) (*core.LexicalSnapshot, error) {
	value, err := s.backend.get(makeLexicalKey(fingerprint))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return storage.UnmarshalLexicalSnapshot(value)
}

// SaveLexicalSnapshot stores the snapshot and drops snapshots of older
// corpus versions in the same transaction.
func (s *LexicalStore) SaveLexicalSnapshot(ctx context.Context, fingerprint string, snapshot *core.LexicalSnapshot) error {
	key := makeLexicalKey(fingerprint)
	value := storage.MarshalLexicalSnapshot(snapshot)

	var stale [][]byte
	err := s.backend.scanPrefix([]byte(lexicalPrefix+":"), false, func(k, _ []byte) error {
		if string(k) != string(key) {
			stale = append(stale, append([]byte(nil), k...))
		}
		return nil
	})
	if err != nil {
		return err
	}

	return s.backend.WithTx(func(tx *badger.Txn) error {
		for _, k := range stale {
			if err := tx.Delete(k); err != nil {
				return err
			}
		}
		if err := tx.Set(key, value); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}
