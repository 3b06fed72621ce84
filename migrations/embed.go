// Package migrations embeds the bridge's SQLite schema migrations.
package migrations

import "embed"

//go:embed *.sql
var files embed.FS

// FS holds the migration files at its root, ready for database.DB.Migrate.
var FS = files
