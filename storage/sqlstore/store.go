// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sqlstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/poiesic/protrieve/storage"
	"github.com/poiesic/protrieve/storage/sqlstore/migrations"
	_ "modernc.org/sqlite"
)

// Dialect identifies the SQL flavor behind a Store.
type Dialect int

const (
	SQLite Dialect = iota
	Postgres
)

func (d Dialect) String() string {
	if d == Postgres {
		return "postgres"
	}
	return "sqlite"
}

// maxInList caps the number of bound parameters in one IN clause.
const maxInList = 500

// Store is a relational store for protein metadata, flat files, GO
// annotations and the ANN slot map.
type Store struct {
	db      *sql.DB
	dialect Dialect
	logger  *slog.Logger
}

var (
	_ storage.MetadataRepository   = (*Store)(nil)
	_ storage.DocumentRepository   = (*Store)(nil)
	_ storage.AnnotationRepository = (*Store)(nil)
)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Open connects to the database named by dsn and applies pending migrations.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	driver, source, dialect, err := parseDSN(dsn)
	if err != nil {
		return nil, err
	}

	if dialect == SQLite {
		if dir := sqliteDir(source); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
	}

	db, err := sql.Open(driver, source)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", dialect, err)
	}

	if dialect == Postgres {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	} else {
		// One writer at a time; WAL lets readers proceed.
		db.SetMaxOpenConns(1)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s database: %w", dialect, err)
	}

	s := &Store{db: db, dialect: dialect, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "sqlstore", "dialect", dialect.String())

	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// parseDSN maps a DSN to a database/sql driver name and data source.
func parseDSN(dsn string) (driver, source string, dialect Dialect, err error) {
	switch {
	case dsn == "":
		return "", "", 0, fmt.Errorf("%w: empty dsn", storage.ErrUnsupportedDialect)
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return "pgx", dsn, Postgres, nil
	case strings.HasPrefix(dsn, "sqlite://"):
		source = strings.TrimPrefix(dsn, "sqlite://")
	case strings.HasPrefix(dsn, "sqlite:"):
		source = strings.TrimPrefix(dsn, "sqlite:")
	case strings.Contains(dsn, "://"):
		return "", "", 0, fmt.Errorf("%w: %s", storage.ErrUnsupportedDialect, strings.SplitN(dsn, "://", 2)[0])
	default:
		source = dsn
	}
	if source == "" {
		return "", "", 0, fmt.Errorf("%w: missing sqlite path", storage.ErrUnsupportedDialect)
	}

	sep := "?"
	if strings.Contains(source, "?") {
		sep = "&"
	}
	source += sep + "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	return "sqlite", source, SQLite, nil
}

func sqliteDir(source string) string {
	path, _, _ := strings.Cut(strings.TrimPrefix(source, "file:"), "?")
	if path == "" || path == ":memory:" {
		return ""
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return ""
	}
	return dir
}

// Dialect reports the SQL flavor of the store.
func (s *Store) Dialect() Dialect {
	return s.dialect
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

type txKey struct{}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

func (s *Store) q(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return s.db
}

// WithTransaction runs fn in a transaction carried by the context passed to
// it. Nested calls join the outer transaction.
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return fn(ctx)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", storage.ErrTransactionFailed, err)
	}
	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Warn("rollback failed", "err", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", storage.ErrTransactionFailed, err)
	}
	return nil
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (s *Store) rebind(query string) string {
	if s.dialect != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.q(ctx).ExecContext(ctx, s.rebind(query), args...)
}

func (s *Store) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.q(ctx).QueryContext(ctx, s.rebind(query), args...)
}

func (s *Store) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.q(ctx).QueryRowContext(ctx, s.rebind(query), args...)
}

func (s *Store) prepare(ctx context.Context, query string) (*sql.Stmt, error) {
	return s.q(ctx).PrepareContext(ctx, s.rebind(query))
}

// placeholders returns "?, ?, ..." with n entries.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

// inChunks calls fn over consecutive slices of at most maxInList items.
func inChunks[T any](items []T, fn func(part []T, args []any) error) error {
	for start := 0; start < len(items); start += maxInList {
		part := items[start:min(start+maxInList, len(items))]
		args := make([]any, len(part))
		for i, v := range part {
			args[i] = v
		}
		if err := fn(part, args); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) migrate(ctx context.Context) error {
	fsys, dir := migrations.SQLite, "sqlite"
	if s.dialect == Postgres {
		fsys, dir = migrations.Postgres, "postgres"
	}

	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	var current int
	if err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("get current version: %w", err)
	}

	files, err := upMigrations(fsys, dir)
	if err != nil {
		return err
	}

	for _, name := range files {
		var version int
		if _, err := fmt.Sscanf(filepath.Base(name), "%d_", &version); err != nil {
			continue
		}
		if version <= current {
			continue
		}

		content, err := fsys.ReadFile(name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		err = s.WithTransaction(ctx, func(ctx context.Context) error {
			if _, err := s.exec(ctx, string(content)); err != nil {
				return fmt.Errorf("execute migration %s: %w", name, err)
			}
			_, err := s.exec(ctx, "INSERT INTO schema_migrations (version) VALUES (?)", version)
			return err
		})
		if err != nil {
			return err
		}
		s.logger.Info("applied migration", "version", version)
	}
	return nil
}

func upMigrations(fsys embed.FS, dir string) ([]string, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".up.sql") {
			files = append(files, dir+"/"+e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// notClosed converts sql.ErrConnDone into storage.ErrStorageClosed.
func notClosed(err error) error {
	if errors.Is(err, sql.ErrConnDone) {
		return storage.ErrStorageClosed
	}
	return err
}
