package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/lumina-bridge/internal/metrics"
)

// Default lifetimes.
const (
	DefaultCodeTTL  = 5 * time.Minute
	DefaultTokenTTL = time.Hour
)

// secretBytes is the number of random bytes in codes and access tokens.
const secretBytes = 32

// Logger is the logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Sweeper removes expired credentials. Both stores implement it.
type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) (int64, error)
}

// Issuer runs the authorization code to access token exchange.
type Issuer struct {
	codes    CodeStore
	tokens   TokenStore
	codeTTL  time.Duration
	tokenTTL time.Duration
	logger   Logger
	now      func() time.Time
}

// NewIssuer creates an issuer. Non-positive TTLs fall back to the defaults.
func NewIssuer(codes CodeStore, tokens TokenStore, codeTTL, tokenTTL time.Duration) *Issuer {
	if codeTTL <= 0 {
		codeTTL = DefaultCodeTTL
	}
	if tokenTTL <= 0 {
		tokenTTL = DefaultTokenTTL
	}
	return &Issuer{
		codes:    codes,
		tokens:   tokens,
		codeTTL:  codeTTL,
		tokenTTL: tokenTTL,
		logger:   noopLogger{},
		now:      time.Now,
	}
}

// SetLogger sets the logger for the issuer.
func (i *Issuer) SetLogger(logger Logger) {
	if logger != nil {
		i.logger = logger
	}
}

// IssueCode creates a single-use authorization code for owner.
func (i *Issuer) IssueCode(ctx context.Context, owner string) (string, error) {
	if owner == "" {
		return "", fmt.Errorf("%w: empty owner", ErrUnauthenticated)
	}

	code, err := generateSecret()
	if err != nil {
		metrics.IncAuth("issue_code", metrics.ResultError)
		return "", err
	}

	if err := i.codes.SaveCode(ctx, code, Grant{Owner: owner, ExpiresAt: i.now().Add(i.codeTTL)}); err != nil {
		metrics.IncAuth("issue_code", metrics.ResultError)
		return "", err
	}

	metrics.IncAuth("issue_code", metrics.ResultSuccess)
	i.logger.Info("authorization code issued", "owner", owner, "ttl", i.codeTTL)
	return code, nil
}

// Redeem exchanges code for an access token bound to the code's owner. The
// code is consumed whether or not it had expired; unknown, expired and
// already-redeemed codes all return ErrInvalidGrant.
func (i *Issuer) Redeem(ctx context.Context, code string) (Token, error) {
	if code == "" {
		metrics.IncAuth("redeem", metrics.ResultError)
		return Token{}, ErrInvalidGrant
	}

	grant, err := i.codes.TakeCode(ctx, code)
	if err != nil {
		metrics.IncAuth("redeem", metrics.ResultError)
		if errors.Is(err, ErrNotFound) {
			return Token{}, ErrInvalidGrant
		}
		return Token{}, err
	}

	now := i.now()
	if grant.Expired(now) {
		metrics.IncAuth("redeem", metrics.ResultError)
		return Token{}, ErrInvalidGrant
	}

	access, err := generateSecret()
	if err != nil {
		metrics.IncAuth("redeem", metrics.ResultError)
		return Token{}, err
	}
	if err := i.tokens.SaveToken(ctx, access, Grant{Owner: grant.Owner, ExpiresAt: now.Add(i.tokenTTL)}); err != nil {
		metrics.IncAuth("redeem", metrics.ResultError)
		return Token{}, err
	}

	metrics.IncAuth("redeem", metrics.ResultSuccess)
	i.logger.Info("access token issued", "owner", grant.Owner, "ttl", i.tokenTTL)

	return Token{
		TokenType:   TokenTypeBearer,
		AccessToken: access,
		ExpiresIn:   int(i.tokenTTL.Seconds()),
		// Refresh is not supported; the value is opaque and never accepted.
		RefreshToken: uuid.NewString(),
	}, nil
}

// RunSweeper removes expired credentials from s every interval until ctx
// is done. Lookups never depend on it.
func RunSweeper(ctx context.Context, s Sweeper, interval time.Duration, logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := s.Sweep(ctx, now)
			if err != nil {
				logger.Warn("credential sweep failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Debug("expired credentials removed", "count", n)
			}
		}
	}
}

func generateSecret() (string, error) {
	b := make([]byte, secretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}
