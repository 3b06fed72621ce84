// Package database provides the bridge's SQLite storage and, for the
// Postgres registry driver, a pgx-backed connection pool.
//
// Schema changes are versioned SQL files applied by Migrate from any fs.FS;
// production passes the embedded migrations package:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// All queries use parameterised statements. The database file is created
// with 0600 permissions.
package database
