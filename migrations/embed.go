// Package migrations embeds the SQL migration files for both supported
// database dialects.
package migrations

import "embed"

// FS holds the embedded SQL migration files, one directory per dialect.
//
//go:embed sqlite/*.sql postgres/*.sql
var FS embed.FS

// Directory names inside FS.
const (
	SQLiteDir   = "sqlite"
	PostgresDir = "postgres"
)
