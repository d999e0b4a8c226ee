package auth

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/beacon-api/beacon/internal/platform/httpx"
	"github.com/beacon-api/beacon/internal/ratelimit"
	"github.com/beacon-api/beacon/internal/shared"
	"github.com/beacon-api/beacon/internal/users"
	"github.com/beacon-api/beacon/jobs"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	users     *users.Service
	limiter   *ratelimit.Limiter
	enqueuer  jobs.Enqueuer
	validator *validator.Validate
}

// NewHandler constructs a Handler instance. enqueuer may be nil; signup then
// skips the welcome email.
func NewHandler(logger *slog.Logger, service *Service, usersService *users.Service, limiter *ratelimit.Limiter, enqueuer jobs.Enqueuer) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		users:     usersService,
		limiter:   limiter,
		enqueuer:  enqueuer,
		validator: validator.New(),
	}
}

// MountRoutes registers auth routes on the provided router. Login and signup
// carry tightened public-scope quotas under their own counter prefixes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.limiter.Middleware(ratelimit.ScopePublic,
		ratelimit.WithQuota(5), ratelimit.WithWindow(time.Minute), ratelimit.WithPrefix("login"),
	)).Post("/token", h.handleLogin)

	r.With(h.limiter.Middleware(ratelimit.ScopePublic,
		ratelimit.WithQuota(3), ratelimit.WithWindow(5*time.Minute), ratelimit.WithPrefix("signup"),
	)).Post("/signup", h.handleSignup)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid JSON body", shared.ErrBadRequest))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, httpx.ValidationError(err))
		return
	}

	user, err := h.service.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	accessToken, err := h.service.IssueToken(user)
	if err != nil {
		h.logger.Error("issue token", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, tokenResponse{AccessToken: accessToken, TokenType: "bearer"})
}

type signupRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8"`
	FirstName string `json:"first_name" validate:"required,max=100"`
	LastName  string `json:"last_name" validate:"required,max=100"`
}

func (h *Handler) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid JSON body", shared.ErrBadRequest))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, httpx.ValidationError(err))
		return
	}

	user, err := h.users.Create(r.Context(), users.CreateUser{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Password:  req.Password,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	h.enqueueWelcomeEmail(user)
	httpx.JSON(w, http.StatusCreated, users.NewResponse(user))
}

// enqueueWelcomeEmail dispatches the welcome mail task. Best effort: a full
// outbox would be overkill for a greeting, so failures are only logged.
func (h *Handler) enqueueWelcomeEmail(user *users.User) {
	if h.enqueuer == nil {
		return
	}
	task, err := jobs.NewWelcomeEmailTask(user.Email, user.FirstName)
	if err != nil {
		h.logger.Warn("build welcome email task", slog.Any("error", err))
		return
	}
	if _, err := h.enqueuer.Enqueue(task); err != nil {
		h.logger.Warn("enqueue welcome email", slog.String("email", user.Email), slog.Any("error", err))
	}
}
