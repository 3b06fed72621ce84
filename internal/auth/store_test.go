package auth

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nerrad567/lumina-bridge/internal/infrastructure/database"
	"github.com/nerrad567/lumina-bridge/migrations"
)

// credentialStore is implemented by both backends.
type credentialStore interface {
	CodeStore
	TokenStore
	Sweeper
}

func testSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{
		Path:        filepath.Join(t.TempDir(), "auth.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		t.Fatalf("migrating: %v", err)
	}
	return NewSQLiteStore(db.DB)
}

func forEachStore(t *testing.T, fn func(t *testing.T, s credentialStore)) {
	t.Helper()
	t.Run("memory", func(t *testing.T) { fn(t, NewMemoryStore()) })
	t.Run("sqlite", func(t *testing.T) { fn(t, testSQLiteStore(t)) })
}

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// ============================================================================
// Codes
// ============================================================================

func TestStore_TakeCodeOnce(t *testing.T) {
	forEachStore(t, func(t *testing.T, s credentialStore) {
		ctx := context.Background()
		want := Grant{Owner: "owner-1", ExpiresAt: testNow.Add(time.Minute)}

		if err := s.SaveCode(ctx, "code-1", want); err != nil {
			t.Fatalf("SaveCode() error = %v", err)
		}

		got, err := s.TakeCode(ctx, "code-1")
		if err != nil {
			t.Fatalf("TakeCode() error = %v", err)
		}
		if got.Owner != want.Owner || !got.ExpiresAt.Equal(want.ExpiresAt) {
			t.Errorf("TakeCode() = %+v, want %+v", got, want)
		}

		if _, err := s.TakeCode(ctx, "code-1"); !errors.Is(err, ErrNotFound) {
			t.Errorf("second TakeCode() error = %v, want ErrNotFound", err)
		}
	})
}

func TestStore_TakeCodeUnknown(t *testing.T) {
	forEachStore(t, func(t *testing.T, s credentialStore) {
		if _, err := s.TakeCode(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
			t.Errorf("TakeCode() error = %v, want ErrNotFound", err)
		}
	})
}

func TestStore_ConcurrentTakeCode(t *testing.T) {
	forEachStore(t, func(t *testing.T, s credentialStore) {
		ctx := context.Background()
		if err := s.SaveCode(ctx, "race", Grant{Owner: "o", ExpiresAt: testNow.Add(time.Minute)}); err != nil {
			t.Fatalf("SaveCode() error = %v", err)
		}

		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := s.TakeCode(ctx, "race"); err == nil {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()

		if wins.Load() != 1 {
			t.Errorf("successful takes = %d, want 1", wins.Load())
		}
	})
}

// ============================================================================
// Tokens
// ============================================================================

func TestStore_LookupToken(t *testing.T) {
	forEachStore(t, func(t *testing.T, s credentialStore) {
		ctx := context.Background()
		want := Grant{Owner: "owner-2", ExpiresAt: testNow.Add(time.Hour)}

		if err := s.SaveToken(ctx, "raw-token", want); err != nil {
			t.Fatalf("SaveToken() error = %v", err)
		}

		got, err := s.LookupToken(ctx, "raw-token")
		if err != nil {
			t.Fatalf("LookupToken() error = %v", err)
		}
		if got.Owner != want.Owner {
			t.Errorf("Owner = %q, want %q", got.Owner, want.Owner)
		}

		// Lookup does not consume.
		if _, err := s.LookupToken(ctx, "raw-token"); err != nil {
			t.Errorf("second LookupToken() error = %v", err)
		}
		if _, err := s.LookupToken(ctx, "other"); !errors.Is(err, ErrNotFound) {
			t.Errorf("LookupToken(other) error = %v, want ErrNotFound", err)
		}
	})
}

func TestSQLiteStore_StoresOnlyHash(t *testing.T) {
	s := testSQLiteStore(t)
	ctx := context.Background()

	if err := s.SaveToken(ctx, "raw-secret", Grant{Owner: "o", ExpiresAt: testNow}); err != nil {
		t.Fatalf("SaveToken() error = %v", err)
	}

	var stored string
	if err := s.db.QueryRowContext(ctx, `SELECT token_hash FROM access_tokens`).Scan(&stored); err != nil {
		t.Fatalf("reading token row: %v", err)
	}
	if stored == "raw-secret" || stored != HashToken("raw-secret") {
		t.Errorf("stored = %q, want hash of the token", stored)
	}
}

// ============================================================================
// Sweep
// ============================================================================

func TestStore_Sweep(t *testing.T) {
	forEachStore(t, func(t *testing.T, s credentialStore) {
		ctx := context.Background()
		past := Grant{Owner: "o", ExpiresAt: testNow.Add(-time.Second)}
		future := Grant{Owner: "o", ExpiresAt: testNow.Add(time.Hour)}

		for _, err := range []error{
			s.SaveCode(ctx, "old-code", past),
			s.SaveCode(ctx, "new-code", future),
			s.SaveToken(ctx, "old-token", past),
			s.SaveToken(ctx, "new-token", future),
		} {
			if err != nil {
				t.Fatalf("seeding: %v", err)
			}
		}

		n, err := s.Sweep(ctx, testNow)
		if err != nil {
			t.Fatalf("Sweep() error = %v", err)
		}
		if n != 2 {
			t.Errorf("Sweep() removed %d, want 2", n)
		}
		if _, err := s.TakeCode(ctx, "new-code"); err != nil {
			t.Errorf("new-code removed: %v", err)
		}
		if _, err := s.LookupToken(ctx, "old-token"); !errors.Is(err, ErrNotFound) {
			t.Errorf("old-token still present: %v", err)
		}
	})
}
