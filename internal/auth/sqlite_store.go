package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SQLiteStore implements CodeStore and TokenStore on the auth_codes and
// access_tokens tables. Raw tokens are never stored, only their hashes.
// Timestamps are Unix nanoseconds.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a store on db. The credentials migration must have
// been applied.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// SaveCode implements CodeStore.
func (s *SQLiteStore) SaveCode(ctx context.Context, code string, g Grant) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO auth_codes (code, owner, expires_at) VALUES (?, ?, ?)`,
		code, g.Owner, g.ExpiresAt.UnixNano())
	if err != nil {
		return fmt.Errorf("saving authorization code: %w", err)
	}
	return nil
}

// TakeCode implements CodeStore with a single DELETE ... RETURNING.
func (s *SQLiteStore) TakeCode(ctx context.Context, code string) (Grant, error) {
	var g Grant
	var expires int64
	err := s.db.QueryRowContext(ctx,
		`DELETE FROM auth_codes WHERE code = ? RETURNING owner, expires_at`, code,
	).Scan(&g.Owner, &expires)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Grant{}, ErrNotFound
		}
		return Grant{}, fmt.Errorf("taking authorization code: %w", err)
	}
	g.ExpiresAt = time.Unix(0, expires)
	return g, nil
}

// SaveToken implements TokenStore.
func (s *SQLiteStore) SaveToken(ctx context.Context, token string, g Grant) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO access_tokens (token_hash, owner, expires_at) VALUES (?, ?, ?)`,
		HashToken(token), g.Owner, g.ExpiresAt.UnixNano())
	if err != nil {
		return fmt.Errorf("saving access token: %w", err)
	}
	return nil
}

// LookupToken implements TokenStore.
func (s *SQLiteStore) LookupToken(ctx context.Context, token string) (Grant, error) {
	var g Grant
	var expires int64
	err := s.db.QueryRowContext(ctx,
		`SELECT owner, expires_at FROM access_tokens WHERE token_hash = ?`, HashToken(token),
	).Scan(&g.Owner, &expires)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Grant{}, ErrNotFound
		}
		return Grant{}, fmt.Errorf("looking up access token: %w", err)
	}
	g.ExpiresAt = time.Unix(0, expires)
	return g, nil
}

// Sweep deletes codes and tokens expired at now.
func (s *SQLiteStore) Sweep(ctx context.Context, now time.Time) (int64, error) {
	cutoff := now.UnixNano()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning sweep: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback is no-op after commit

	var total int64
	for _, q := range []string{
		`DELETE FROM auth_codes WHERE expires_at <= ?`,
		`DELETE FROM access_tokens WHERE expires_at <= ?`,
	} {
		res, err := tx.ExecContext(ctx, q, cutoff)
		if err != nil {
			return 0, fmt.Errorf("sweeping credentials: %w", err)
		}
		n, _ := res.RowsAffected() //nolint:errcheck // sqlite always reports
		total += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing sweep: %w", err)
	}
	return total, nil
}
