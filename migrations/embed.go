package migrations

import "embed"

// FS holds the goose migrations for every supported dialect, one directory each.
//
//go:embed sqlite/*.sql postgres/*.sql
var FS embed.FS

const (
	SqliteDir   = "sqlite"
	PostgresDir = "postgres"
)
