package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/beacon-api/beacon/internal/platform/httpx"
	"github.com/beacon-api/beacon/internal/shared"
)

// Middleware gates routes on a valid bearer token and, optionally, the admin
// role. The resolved identity is threaded through the request context, never
// attached to globals.
type Middleware struct {
	Service *Service
	Logger  *slog.Logger
}

// RequireUser rejects requests without a valid bearer token for an active
// user and stores the resolved identity in the request context.
func (m Middleware) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString, ok := bearerToken(r)
		if !ok {
			httpx.RespondError(w, shared.ErrInvalidToken)
			return
		}
		user, err := m.Service.ResolveIdentity(r.Context(), tokenString)
		if err != nil {
			if m.Logger != nil {
				m.Logger.Warn("identity resolution failed", slog.String("path", r.URL.Path), slog.Any("error", err))
			}
			httpx.RespondError(w, err)
			return
		}
		ctx := shared.ContextWithIdentity(r.Context(), &shared.Identity{
			ID:        user.ID,
			Email:     user.Email,
			FirstName: user.FirstName,
			IsAdmin:   user.IsAdmin,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin rejects authenticated non-admin callers. Must run after
// RequireUser.
func (m Middleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := shared.IdentityFromContext(r.Context())
		if id == nil {
			httpx.RespondError(w, shared.ErrInvalidToken)
			return
		}
		if !id.IsAdmin {
			httpx.RespondError(w, shared.ErrPermissionDenied)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(header[len(prefix):]), true
}
