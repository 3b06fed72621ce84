package auth

import (
	"fmt"
	"slices"

	"github.com/golang-jwt/jwt/v5"
)

// ParseAssertion verifies an HS256 identity assertion and returns its
// subject, which is taken as the owner id.
func ParseAssertion(secret, raw string) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("%w: assertions not configured", ErrInvalidAssertion)
	}

	token, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{}, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidAssertion, err)
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid {
		return "", ErrInvalidAssertion
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidAssertion)
	}
	return claims.Subject, nil
}

// Client is the registered OAuth client. Empty fields accept any value.
type Client struct {
	ID           string
	RedirectURIs []string
}

// Check returns ErrInvalidClient if clientID or redirectURI is not
// registered.
func (c Client) Check(clientID, redirectURI string) error {
	if redirectURI == "" {
		return fmt.Errorf("%w: missing redirect_uri", ErrInvalidClient)
	}
	if c.ID != "" && clientID != c.ID {
		return fmt.Errorf("%w: unknown client_id", ErrInvalidClient)
	}
	if len(c.RedirectURIs) > 0 && !slices.Contains(c.RedirectURIs, redirectURI) {
		return fmt.Errorf("%w: redirect_uri not registered", ErrInvalidClient)
	}
	return nil
}
