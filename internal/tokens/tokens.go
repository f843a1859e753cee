// Package tokens issues and checks the short numeric session tokens handed
// out after a successful face match.
//
// Tokens are bare capabilities: they are not tied to an identity, and two
// live tokens may share a value (one in 10^6 for six digits). Issuing a value
// that is already live simply refreshes it.
package tokens

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// Token is an issued session token. A zero ExpiresAt never expires.
type Token struct {
	Value     string    `json:"token"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
}

// Expired reports whether the token is past its expiry at now.
func (t Token) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && !now.Before(t.ExpiresAt)
}

// Store is a session store shared by request handlers.
type Store interface {
	// Issue creates and registers a new token
	Issue(ctx context.Context) (Token, error)
	// Validate reports whether value is a live token; it never consumes it
	Validate(ctx context.Context, value string) (bool, error)
	// Revoke invalidates value; revoking an unknown value is not an error
	Revoke(ctx context.Context, value string) error
	// Expire drops expired tokens and returns how many were removed
	Expire(ctx context.Context) (int, error)
}

// Generate returns a uniformly random decimal string of the given width,
// leading zeros included.
func Generate(digits int) (string, error) {
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(digits)), nil)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return fmt.Sprintf("%0*d", digits, n), nil
}

func newToken(digits int, ttl time.Duration, now time.Time) (Token, error) {
	value, err := Generate(digits)
	if err != nil {
		return Token{}, err
	}
	tok := Token{Value: value, IssuedAt: now}
	if ttl > 0 {
		tok.ExpiresAt = now.Add(ttl)
	}
	return tok, nil
}
