package shared

import (
	"context"

	"github.com/google/uuid"
)

// Identity carries the fields of the authenticated user that authorization
// decisions need. The full row stays owned by the users repository.
type Identity struct {
	ID        uuid.UUID
	Email     string
	FirstName string
	IsAdmin   bool
}

type identityContextKey struct{}

// ContextWithIdentity stores the authenticated identity in context.
func ContextWithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext extracts the authenticated identity, nil when anonymous.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityContextKey{}).(*Identity)
	return id
}
