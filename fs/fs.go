package appfs

import "embed"

// FS holds the SQL migrations of every supported dialect.
//
//go:embed migrations
var FS embed.FS

// MigrationsDir returns the migrations directory of a database engine.
func MigrationsDir(engine string) string {
	if engine == "sqlite" {
		return "migrations/sqlite"
	}
	return "migrations/postgres"
}
