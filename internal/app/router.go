package app

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/beacon-api/beacon/internal/auth"
	"github.com/beacon-api/beacon/internal/observability"
	"github.com/beacon-api/beacon/internal/platform/httpx"
	"github.com/beacon-api/beacon/internal/ratelimit"
	"github.com/beacon-api/beacon/internal/shared"
	"github.com/beacon-api/beacon/internal/users"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger       *slog.Logger
	Config       *Config
	AuthHandler  *auth.Handler
	UsersHandler *users.Handler
	AuthMW       auth.Middleware
	Limiter      *ratelimit.Limiter
	Metrics      *observability.Metrics
}

// NewRouter constructs the chi.Router with Beacon defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"message": "Welcome to the API!"})
	})

	r.Route("/auth", params.AuthHandler.MountRoutes)
	r.Route("/users", params.UsersHandler.MountRoutes)

	r.Group(func(r chi.Router) {
		r.Use(params.AuthMW.RequireUser)
		r.Use(params.Limiter.Middleware(ratelimit.ScopeAuthenticated))
		r.Get("/protected", func(w http.ResponseWriter, r *http.Request) {
			id := shared.IdentityFromContext(r.Context())
			if id == nil {
				httpx.RespondError(w, shared.ErrInvalidToken)
				return
			}
			httpx.JSON(w, http.StatusOK, map[string]string{
				"message": fmt.Sprintf("Hello %s, this is a protected route!", id.FirstName),
			})
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(params.AuthMW.RequireUser)
		r.Use(params.AuthMW.RequireAdmin)
		r.Use(params.Limiter.Middleware(ratelimit.ScopeAdmin))
		r.Get("/admin", func(w http.ResponseWriter, r *http.Request) {
			httpx.JSON(w, http.StatusOK, map[string]string{
				"message": "Hello, this is a protected admin route!",
			})
		})
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
