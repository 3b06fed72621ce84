package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SQLiteStore persists state in the device_state table. Timestamps are
// stored as Unix nanoseconds.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a store on an open, migrated database.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Save implements Store. The upsert only overwrites a row whose updated_at is
// not newer than the incoming one.
func (s *SQLiteStore) Save(ctx context.Context, deviceID string, st State) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO device_state (device_id, online, is_on, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (device_id) DO UPDATE SET
			online = excluded.online,
			is_on = excluded.is_on,
			updated_at = excluded.updated_at
		WHERE excluded.updated_at >= device_state.updated_at`,
		deviceID, boolToInt(st.Online), boolToInt(st.On), st.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return false, fmt.Errorf("upserting state: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reading rows affected: %w", err)
	}
	return n > 0, nil
}

// LoadAll implements Store.
func (s *SQLiteStore) LoadAll(ctx context.Context) (map[string]State, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT device_id, online, is_on, updated_at FROM device_state")
	if err != nil {
		return nil, fmt.Errorf("querying state: %w", err)
	}
	defer rows.Close()

	out := make(map[string]State)
	for rows.Next() {
		var id string
		var online, on int
		var ts int64
		if err := rows.Scan(&id, &online, &on, &ts); err != nil {
			return nil, fmt.Errorf("scanning state: %w", err)
		}
		out[id] = State{Online: online != 0, On: on != 0, UpdatedAt: time.Unix(0, ts).UTC()}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating state: %w", err)
	}
	return out, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
