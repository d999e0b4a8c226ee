package users

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/beacon-api/beacon/internal/platform/httpx"
	"github.com/beacon-api/beacon/internal/ratelimit"
	"github.com/beacon-api/beacon/internal/shared"
)

// Response is the wire representation of a user. The password digest never
// leaves the service boundary.
type Response struct {
	ID        uuid.UUID `json:"id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     string    `json:"email"`
	IsAdmin   bool      `json:"is_admin"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewResponse maps a User to its wire representation.
func NewResponse(u *User) Response {
	return Response{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Email:     u.Email,
		IsAdmin:   u.IsAdmin,
		IsActive:  u.IsActive,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

// Handler manages user management endpoints.
type Handler struct {
	logger       *slog.Logger
	service      *Service
	limiter      *ratelimit.Limiter
	requireUser  func(http.Handler) http.Handler
	requireAdmin func(http.Handler) http.Handler
	validator    *validator.Validate
}

// NewHandler builds a Handler instance. The auth middlewares are injected as
// plain wrappers to keep this package free of the auth flow.
func NewHandler(logger *slog.Logger, service *Service, limiter *ratelimit.Limiter, requireUser, requireAdmin func(http.Handler) http.Handler) *Handler {
	return &Handler{
		logger:       logger,
		service:      service,
		limiter:      limiter,
		requireUser:  requireUser,
		requireAdmin: requireAdmin,
		validator:    validator.New(),
	}
}

// MountRoutes registers user routes. Authentication runs before rate limiting
// so the authenticated user id is part of the counter key.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.requireUser)

		r.With(h.limiter.Middleware(ratelimit.ScopeAuthenticated)).Get("/me", h.me)

		r.Group(func(r chi.Router) {
			r.Use(h.requireAdmin)
			r.Use(h.limiter.Middleware(ratelimit.ScopeAdmin))
			r.Get("/", h.list)
			r.Post("/", h.create)
			r.Get("/{userID}", h.get)
			r.Put("/{userID}", h.update)
			r.Delete("/{userID}", h.delete)
			r.Post("/{userID}/reactivate", h.reactivate)
		})
	})
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	id := shared.IdentityFromContext(r.Context())
	if id == nil {
		httpx.RespondError(w, shared.ErrInvalidToken)
		return
	}
	user, err := h.service.Get(r.Context(), id.ID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, NewResponse(user))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	active, err := h.service.ListActive(r.Context())
	if err != nil {
		h.logger.Error("list users", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]Response, len(active))
	for i := range active {
		out[i] = NewResponse(&active[i])
	}
	httpx.JSON(w, http.StatusOK, out)
}

type createRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8"`
	FirstName string `json:"first_name" validate:"required,max=100"`
	LastName  string `json:"last_name" validate:"required,max=100"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid JSON body", shared.ErrBadRequest))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, httpx.ValidationError(err))
		return
	}
	user, err := h.service.Create(r.Context(), CreateUser{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Password:  req.Password,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, NewResponse(user))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := pathUserID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	user, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	// Soft-deleted users read as absent.
	if !user.IsActive {
		httpx.RespondError(w, shared.ErrNotFound)
		return
	}
	httpx.JSON(w, http.StatusOK, NewResponse(user))
}

type updateRequest struct {
	Email     *string `json:"email" validate:"omitempty,email"`
	Password  *string `json:"password" validate:"omitempty,min=8"`
	FirstName *string `json:"first_name" validate:"omitempty,max=100"`
	LastName  *string `json:"last_name" validate:"omitempty,max=100"`
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := pathUserID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req updateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid JSON body", shared.ErrBadRequest))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, httpx.ValidationError(err))
		return
	}
	user, err := h.service.Update(r.Context(), id, UpdateUser{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Password:  req.Password,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, NewResponse(user))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathUserID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) reactivate(w http.ResponseWriter, r *http.Request) {
	id, err := pathUserID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Reactivate(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pathUserID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid user id", shared.ErrBadRequest)
	}
	return id, nil
}
