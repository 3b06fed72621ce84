package device

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Repository reads device rows from a backing store.
type Repository interface {
	// ListByOwner returns every device belonging to owner, ordered by ID.
	// An owner with no devices yields an empty slice and no error.
	ListByOwner(ctx context.Context, owner string) ([]Device, error)
}

// SQLiteRepository implements Repository over the bridge's local database.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository on an open SQLite handle.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// ListByOwner implements Repository.
func (r *SQLiteRepository) ListByOwner(ctx context.Context, owner string) ([]Device, error) {
	return queryDevices(ctx, r.db,
		"SELECT id, owner, name, model FROM devices WHERE owner = ? ORDER BY id", owner)
}

// Upsert inserts or replaces a device row. It backs the development seed file;
// production registries are managed outside the bridge.
func (r *SQLiteRepository) Upsert(ctx context.Context, d Device) error {
	if err := Validate(d); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO devices (id, owner, name, model, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (owner, id) DO UPDATE SET name = excluded.name, model = excluded.model`,
		d.ID, d.Owner, d.Name, d.Model, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upserting device %s: %w", d.ID, err)
	}
	return nil
}

// queryDevices runs a query returning (id, owner, name, model) rows.
func queryDevices(ctx context.Context, db *sql.DB, query string, args ...any) ([]Device, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	devices := []Device{}
	for rows.Next() {
		var d Device
		var name, model sql.NullString
		if err := rows.Scan(&d.ID, &d.Owner, &name, &model); err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		d.Name = name.String
		d.Model = model.String
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return devices, nil
}
