package users

import (
	"context"

	"github.com/google/uuid"

	"github.com/beacon-api/beacon/internal/shared"
)

// CreateUser carries the signup/create payload. The plaintext password is
// transient; it is hashed here and never persisted or logged.
type CreateUser struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
}

// UpdateUser patches mutable fields; nil fields stay unchanged. A non-nil
// Password is re-hashed before storage.
type UpdateUser struct {
	FirstName *string
	LastName  *string
	Email     *string
	Password  *string
}

// Service handles user management business logic.
type Service struct {
	repo   Repository
	hasher shared.PasswordHasher
}

// NewService builds a Service instance.
func NewService(repo Repository, hasher shared.PasswordHasher) *Service {
	return &Service{repo: repo, hasher: hasher}
}

// Create registers a new user with a hashed password.
func (s *Service) Create(ctx context.Context, params CreateUser) (*User, error) {
	digest, err := s.hasher.Hash(params.Password)
	if err != nil {
		return nil, err
	}
	return s.repo.Create(ctx, CreateParams{
		FirstName: params.FirstName,
		LastName:  params.LastName,
		Email:     params.Email,
	}, digest)
}

// Get returns a user by ID.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

// Update patches a user. Soft-deleted users remain patchable; reactivation is
// a separate operation.
func (s *Service) Update(ctx context.Context, id uuid.UUID, params UpdateUser) (*User, error) {
	patch := UpdateParams{
		FirstName: params.FirstName,
		LastName:  params.LastName,
		Email:     params.Email,
	}
	if params.Password != nil {
		digest, err := s.hasher.Hash(*params.Password)
		if err != nil {
			return nil, err
		}
		patch.PasswordHash = &digest
	}
	return s.repo.Update(ctx, id, patch)
}

// Delete soft deletes a user by clearing is_active. The row is retained.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := s.repo.SetActive(ctx, id, false)
	return err
}

// Reactivate restores a soft-deleted user.
func (s *Service) Reactivate(ctx context.Context, id uuid.UUID) error {
	_, err := s.repo.SetActive(ctx, id, true)
	return err
}

// ListActive returns all active users.
func (s *Service) ListActive(ctx context.Context) ([]User, error) {
	return s.repo.ListActive(ctx)
}
