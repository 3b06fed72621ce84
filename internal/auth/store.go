package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// CodeStore holds pending authorization codes.
type CodeStore interface {
	SaveCode(ctx context.Context, code string, g Grant) error
	// TakeCode removes and returns the grant for code in one step, so two
	// concurrent redemptions cannot both succeed. Missing codes return
	// ErrNotFound.
	TakeCode(ctx context.Context, code string) (Grant, error)
}

// TokenStore holds issued access tokens.
type TokenStore interface {
	SaveToken(ctx context.Context, token string, g Grant) error
	// LookupToken returns the grant for token or ErrNotFound. It does not
	// check expiry.
	LookupToken(ctx context.Context, token string) (Grant, error)
}

// HashToken computes the SHA-256 hash of a raw token for storage.
func HashToken(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}

// MemoryStore is an in-process CodeStore and TokenStore. Expired entries are
// dropped when they are next looked up and by Sweep.
type MemoryStore struct {
	mu     sync.Mutex
	codes  map[string]Grant
	tokens map[string]Grant
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		codes:  make(map[string]Grant),
		tokens: make(map[string]Grant),
	}
}

// SaveCode implements CodeStore.
func (s *MemoryStore) SaveCode(_ context.Context, code string, g Grant) error {
	s.mu.Lock()
	s.codes[code] = g
	s.mu.Unlock()
	return nil
}

// TakeCode implements CodeStore.
func (s *MemoryStore) TakeCode(_ context.Context, code string) (Grant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.codes[code]
	if !ok {
		return Grant{}, ErrNotFound
	}
	delete(s.codes, code)
	return g, nil
}

// SaveToken implements TokenStore.
func (s *MemoryStore) SaveToken(_ context.Context, token string, g Grant) error {
	s.mu.Lock()
	s.tokens[HashToken(token)] = g
	s.mu.Unlock()
	return nil
}

// LookupToken implements TokenStore.
func (s *MemoryStore) LookupToken(_ context.Context, token string) (Grant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.tokens[HashToken(token)]
	if !ok {
		return Grant{}, ErrNotFound
	}
	return g, nil
}

// Sweep removes entries expired at now and returns how many were removed.
func (s *MemoryStore) Sweep(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for k, g := range s.codes {
		if g.Expired(now) {
			delete(s.codes, k)
			n++
		}
	}
	for k, g := range s.tokens {
		if g.Expired(now) {
			delete(s.tokens, k)
			n++
		}
	}
	return n, nil
}
