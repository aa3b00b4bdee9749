// Package migrations embeds SQL migration files for the SQL store.
package migrations

import "embed"

// SQLite contains the SQLite migrations under sqlite/.
//
//go:embed sqlite/*.sql
var SQLite embed.FS

// Postgres contains the PostgreSQL migrations under postgres/.
//
//go:embed postgres/*.sql
var Postgres embed.FS
