// Package auth holds the bearer token issued by the external auth provider.
// The agent never sees the signing key, so tokens are only inspected for
// their expiry.
package auth

import (
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNoToken      = errors.New("no auth token")
	ErrTokenExpired = errors.New("auth token expired")
)

// expirySkew treats tokens about to expire as already expired.
const expirySkew = 10 * time.Second

// TokenSource stores the current bearer token.
type TokenSource struct {
	mu      sync.RWMutex
	token   string
	subject string
	expires time.Time
	now     func() time.Time
}

// NewTokenSource creates a token source seeded with token, which may be empty.
func NewTokenSource(token string) *TokenSource {
	ts := &TokenSource{now: time.Now}
	ts.Set(token)
	return ts
}

// Set replaces the stored token. Non-JWT tokens are kept as opaque values
// without an expiry.
func (s *TokenSource) Set(token string) {
	subject, expires := inspect(token)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.subject = subject
	s.expires = expires
}

// Clear forgets the stored token.
func (s *TokenSource) Clear() {
	s.Set("")
}

// Token returns the bearer token, or an error wrapping ErrUnauthorized when
// there is none or it has expired. Callers use this to short-circuit before
// any network call.
func (s *TokenSource) Token() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.token == "" {
		return "", errors.Join(ErrUnauthorized, ErrNoToken)
	}
	if !s.expires.IsZero() && !s.now().Add(expirySkew).Before(s.expires) {
		return "", errors.Join(ErrUnauthorized, ErrTokenExpired)
	}
	return s.token, nil
}

// Subject returns the token subject (the user id) when the token is a JWT.
func (s *TokenSource) Subject() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.subject
}

// ExpiresAt returns the token expiry, zero when unknown.
func (s *TokenSource) ExpiresAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.expires
}

func inspect(token string) (string, time.Time) {
	if token == "" {
		return "", time.Time{}
	}

	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", time.Time{}
	}

	var expires time.Time
	if claims.ExpiresAt != nil {
		expires = claims.ExpiresAt.Time
	}
	return claims.Subject, expires
}
