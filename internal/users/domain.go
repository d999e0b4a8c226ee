package users

import (
	"time"

	"github.com/google/uuid"
)

// User represents a user account. Deactivated accounts keep their row; only
// is_active flips (soft delete).
type User struct {
	ID           uuid.UUID
	FirstName    string
	LastName     string
	Email        string
	PasswordHash string
	IsAdmin      bool
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
