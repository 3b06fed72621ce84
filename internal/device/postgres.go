package device

import (
	"context"
	"database/sql"
)

// PostgresRepository reads the hosted devices table through the pgx driver.
//
// Expected schema:
//
//	CREATE TABLE devices (
//	    id    text NOT NULL,
//	    owner text NOT NULL,
//	    name  text,
//	    model text,
//	    PRIMARY KEY (owner, id)
//	);
type PostgresRepository struct {
	db    *sql.DB
	table string
}

// NewPostgresRepository creates a repository reading the "devices" table.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db, table: "devices"}
}

// ListByOwner implements Repository.
func (r *PostgresRepository) ListByOwner(ctx context.Context, owner string) ([]Device, error) {
	return queryDevices(ctx, r.db,
		"SELECT id, owner, name, model FROM "+r.table+" WHERE owner = $1 ORDER BY id", owner)
}
