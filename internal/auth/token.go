// Package auth verifies bearer tokens and carries the acting user through contexts.
// Tokens are HS256 JWTs whose subject is the user id; issuing them for real
// users belongs to an external identity provider.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/and161185/econtract/internal/errs"
)

// DefaultLeeway tolerates clock skew between issuer and server.
const DefaultLeeway = 30 * time.Second

// Verifier checks HS256 tokens signed with a shared key.
type Verifier struct {
	key    []byte
	leeway time.Duration
}

// NewVerifier constructs a verifier. A non-positive leeway uses DefaultLeeway.
func NewVerifier(key []byte, leeway time.Duration) *Verifier {
	if leeway <= 0 {
		leeway = DefaultLeeway
	}
	return &Verifier{key: key, leeway: leeway}
}

// ParseSubject verifies the token and returns its subject.
// Every failure wraps errs.ErrUnauthorized.
func (v *Verifier) ParseSubject(token string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("empty token: %w", errs.ErrUnauthorized)
	}
	var claims jwt.RegisteredClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return v.key, nil
	}, jwt.WithLeeway(v.leeway))
	if err != nil || !parsed.Valid {
		return "", fmt.Errorf("invalid token: %w", errs.ErrUnauthorized)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", fmt.Errorf("empty subject: %w", errs.ErrUnauthorized)
	}
	return claims.Subject, nil
}

// Issue creates a signed HS256 JWT for the subject.
func Issue(key []byte, subject string, ttl time.Duration, now time.Time) (string, error) {
	if subject == "" {
		return "", fmt.Errorf("empty subject: %w", errs.ErrInvalidInput)
	}
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
}

// BearerToken extracts the token of an "Authorization: Bearer <token>" value.
func BearerToken(header string) (string, bool) {
	v := strings.TrimSpace(header)
	if len(v) < 7 || !strings.EqualFold(v[:7], "bearer ") {
		return "", false
	}
	t := strings.TrimSpace(v[7:])
	return t, t != ""
}
