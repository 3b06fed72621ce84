package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
)

const (
	pgMaxOpenConns = 10
	pgMaxIdleConns = 5
)

// OpenPostgres opens a pooled connection to a PostgreSQL database through the
// pgx stdlib driver and verifies it with a ping. It is used when device rows
// live in a hosted Postgres table rather than the local SQLite file.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("opening postgres: empty dsn")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}
	db.SetMaxOpenConns(pgMaxOpenConns)
	db.SetMaxIdleConns(pgMaxIdleConns)
	db.SetConnMaxIdleTime(connMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close() //nolint:errcheck // best effort on error path
		return nil, fmt.Errorf("verifying postgres connection: %w", err)
	}
	return db, nil
}

// PostgresHealth wraps a Postgres handle so it can be reported alongside the
// SQLite database on the health endpoint.
type PostgresHealth struct {
	DB      *sql.DB
	Timeout time.Duration
}

// HealthCheck pings the Postgres server.
func (p PostgresHealth) HealthCheck(ctx context.Context) error {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}
	if err := p.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres health check failed: %w", err)
	}
	return nil
}
