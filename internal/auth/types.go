package auth

import (
	"errors"
	"time"
)

// TokenTypeBearer is the token_type returned by the token endpoint.
const TokenTypeBearer = "Bearer"

// Grant binds a code or access token to an owner until ExpiresAt.
type Grant struct {
	Owner     string
	ExpiresAt time.Time
}

// Expired reports whether the grant is no longer valid at now.
func (g Grant) Expired(now time.Time) bool {
	return !now.Before(g.ExpiresAt)
}

// Token is the result of a successful code redemption.
type Token struct {
	TokenType    string `json:"token_type"`
	AccessToken  string `json:"access_token"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
}

// Sentinel errors.
var (
	// ErrUnauthenticated means the credential is missing, unknown or expired.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrInvalidGrant means the authorization code is unknown, expired or
	// already redeemed.
	ErrInvalidGrant = errors.New("invalid_grant")

	// ErrInvalidClient means the client id or redirect URI is not registered.
	ErrInvalidClient = errors.New("invalid_client")

	// ErrInvalidAssertion means an identity assertion failed verification.
	ErrInvalidAssertion = errors.New("invalid identity assertion")

	// ErrNotFound is returned by stores for a missing entry.
	ErrNotFound = errors.New("credential not found")
)
