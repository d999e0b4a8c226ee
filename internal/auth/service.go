package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/beacon-api/beacon/internal/shared"
	"github.com/beacon-api/beacon/internal/token"
	"github.com/beacon-api/beacon/internal/users"
)

// Service wraps the authentication flow: credential verification, token
// issuance, and token-to-identity resolution.
type Service struct {
	repo   users.Repository
	hasher shared.PasswordHasher
	tokens *token.Service
}

// NewService constructs a Service.
func NewService(repo users.Repository, hasher shared.PasswordHasher, tokens *token.Service) *Service {
	return &Service{repo: repo, hasher: hasher, tokens: tokens}
}

// activeUserByEmail looks up a user by email. An unknown email fails with
// shared.ErrInvalidCredentials, a deactivated account with shared.ErrNotFound.
// Both deny access; the distinction is internal only.
func (s *Service) activeUserByEmail(ctx context.Context, email string) (*users.User, error) {
	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("%w: user lookup: %v", shared.ErrUnavailable, err)
	}
	if !user.IsActive {
		return nil, shared.ErrNotFound
	}
	return user, nil
}

// Authenticate validates email/password credentials and returns the active
// user on success. A wrong password fails with the same error as an unknown
// email so login responses cannot be used for account enumeration.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*users.User, error) {
	user, err := s.activeUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if !s.hasher.Verify(password, user.PasswordHash) {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

// IssueToken creates a bearer token carrying the user's email as subject,
// with the configured default lifetime.
func (s *Service) IssueToken(user *users.User) (string, error) {
	return s.tokens.Issue(user.Email, 0)
}

// ResolveIdentity validates a bearer token and resolves it to an active user.
// A token for a deleted or deactivated account is rejected even if unexpired.
func (s *Service) ResolveIdentity(ctx context.Context, tokenString string) (*users.User, error) {
	subject, err := s.tokens.Decode(tokenString)
	if err != nil {
		return nil, err
	}
	return s.activeUserByEmail(ctx, subject)
}
