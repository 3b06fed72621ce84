package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"github.com/nerrad567/lumina-bridge/internal/metrics"
)

// Resolver maps a bearer credential to an owner id.
type Resolver struct {
	tokens      TokenStore
	staticToken string
	staticOwner string
	now         func() time.Time
}

// NewResolver creates a resolver backed by tokens. If staticToken is not
// empty it is accepted as a credential for staticOwner.
func NewResolver(tokens TokenStore, staticToken, staticOwner string) *Resolver {
	return &Resolver{
		tokens:      tokens,
		staticToken: staticToken,
		staticOwner: staticOwner,
		now:         time.Now,
	}
}

// Resolve returns the owner for credential. Unknown and expired tokens
// return ErrUnauthenticated; a store failure is returned as is.
func (r *Resolver) Resolve(ctx context.Context, credential string) (string, error) {
	if credential == "" {
		metrics.IncAuth("resolve", metrics.ResultError)
		return "", ErrUnauthenticated
	}

	if r.staticToken != "" &&
		subtle.ConstantTimeCompare([]byte(credential), []byte(r.staticToken)) == 1 {
		metrics.IncAuth("resolve", metrics.ResultSuccess)
		return r.staticOwner, nil
	}

	grant, err := r.tokens.LookupToken(ctx, credential)
	if err != nil {
		metrics.IncAuth("resolve", metrics.ResultError)
		if errors.Is(err, ErrNotFound) {
			return "", ErrUnauthenticated
		}
		return "", err
	}
	if grant.Expired(r.now()) {
		metrics.IncAuth("resolve", metrics.ResultError)
		return "", ErrUnauthenticated
	}

	metrics.IncAuth("resolve", metrics.ResultSuccess)
	return grant.Owner, nil
}

// BearerToken extracts the credential from an Authorization header value.
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
