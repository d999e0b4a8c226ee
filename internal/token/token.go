// Package token issues and validates the signed bearer tokens used for
// stateless authentication. Expiry is enforced purely by claim inspection;
// there is no revocation list, so logout stays client-side.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/beacon-api/beacon/internal/shared"
)

// Service signs and verifies time-bound bearer tokens with a symmetric secret.
type Service struct {
	secret     []byte
	defaultTTL time.Duration
}

// NewService constructs a Service. ttl is the token lifetime applied when the
// caller does not supply one.
func NewService(secret []byte, ttl time.Duration) *Service {
	return &Service{secret: secret, defaultTTL: ttl}
}

// Issue encodes subject and an absolute expiry into a signed token. A
// non-positive ttl falls back to the configured default.
func (s *Service) Issue(subject string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("token: sign: %w", err)
	}
	return signed, nil
}

// Decode verifies tokenString and returns its subject claim. Expired tokens
// fail with shared.ErrExpiredToken; tampered, malformed, or subject-less
// tokens fail with shared.ErrInvalidToken.
func (s *Service) Decode(tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", shared.ErrExpiredToken
		}
		return "", shared.ErrInvalidToken
	}
	if !parsed.Valid || claims.Subject == "" {
		return "", shared.ErrInvalidToken
	}
	return claims.Subject, nil
}
