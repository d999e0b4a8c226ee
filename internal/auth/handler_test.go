package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/beacon-api/beacon/internal/auth"
	"github.com/beacon-api/beacon/internal/ratelimit"
	"github.com/beacon-api/beacon/internal/shared"
	"github.com/beacon-api/beacon/internal/token"
	"github.com/beacon-api/beacon/internal/users"
	_ "github.com/beacon-api/beacon/testing"
)

type stubRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]*users.User
}

func newStubRepo() *stubRepo {
	return &stubRepo{users: make(map[uuid.UUID]*users.User)}
}

func (s *stubRepo) add(u users.User) *users.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	s.users[u.ID] = &u
	return &u
}

func (s *stubRepo) GetByEmail(ctx context.Context, email string) (*users.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (s *stubRepo) GetByID(ctx context.Context, id uuid.UUID) (*users.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (s *stubRepo) Create(ctx context.Context, params users.CreateParams, passwordHash string) (*users.User, error) {
	if existing, err := s.GetByEmail(ctx, params.Email); err == nil && existing != nil {
		return nil, shared.ErrEmailExists
	}
	return s.add(users.User{
		FirstName:    params.FirstName,
		LastName:     params.LastName,
		Email:        params.Email,
		PasswordHash: passwordHash,
		IsActive:     true,
	}), nil
}

func (s *stubRepo) Update(ctx context.Context, id uuid.UUID, params users.UpdateParams) (*users.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	if params.FirstName != nil {
		u.FirstName = *params.FirstName
	}
	if params.LastName != nil {
		u.LastName = *params.LastName
	}
	if params.Email != nil {
		u.Email = *params.Email
	}
	if params.PasswordHash != nil {
		u.PasswordHash = *params.PasswordHash
	}
	u.UpdatedAt = time.Now()
	copied := *u
	return &copied, nil
}

func (s *stubRepo) SetActive(ctx context.Context, id uuid.UUID, active bool) (*users.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	u.IsActive = active
	u.UpdatedAt = time.Now()
	copied := *u
	return &copied, nil
}

func (s *stubRepo) ListActive(ctx context.Context) ([]users.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []users.User
	for _, u := range s.users {
		if u.IsActive {
			result = append(result, *u)
		}
	}
	return result, nil
}

var _ users.Repository = (*stubRepo)(nil)

type stubEnqueuer struct {
	mu    sync.Mutex
	tasks []*asynq.Task
}

func (s *stubEnqueuer) Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, task)
	return &asynq.TaskInfo{}, nil
}

type authFixture struct {
	repo     *stubRepo
	tokens   *token.Service
	enqueuer *stubEnqueuer
	router   http.Handler
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := newStubRepo()
	hasher := shared.BcryptHasher{Cost: bcrypt.MinCost}
	tokens := token.NewService([]byte("test-secret"), time.Hour)
	limiter := ratelimit.NewLimiter(client, nil)
	enqueuer := &stubEnqueuer{}

	usersService := users.NewService(repo, hasher)
	authService := auth.NewService(repo, hasher, tokens)
	handler := auth.NewHandler(testLogger(), authService, usersService, limiter, enqueuer)

	r := chi.NewRouter()
	r.Route("/auth", handler.MountRoutes)

	return &authFixture{repo: repo, tokens: tokens, enqueuer: enqueuer, router: r}
}

func (f *authFixture) seedUser(t *testing.T, email, password string, active bool) *users.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return f.repo.add(users.User{
		FirstName:    "Test",
		LastName:     "User",
		Email:        email,
		PasswordHash: string(hash),
		IsActive:     active,
	})
}

func (f *authFixture) post(path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	f.router.ServeHTTP(res, req)
	return res
}

func TestLoginSuccess(t *testing.T) {
	f := newAuthFixture(t)
	f.seedUser(t, "test@example.com", "testpassword", true)

	res := f.post("/auth/token", `{"email":"test@example.com","password":"testpassword"}`)
	require.Equal(t, http.StatusOK, res.Code)

	var body struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	require.Equal(t, "bearer", body.TokenType)

	subject, err := f.tokens.Decode(body.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "test@example.com", subject)
}

func TestLoginFailureDoesNotRevealAccounts(t *testing.T) {
	f := newAuthFixture(t)
	f.seedUser(t, "test@example.com", "testpassword", true)

	wrongPassword := f.post("/auth/token", `{"email":"test@example.com","password":"wrongpassword"}`)
	unknownEmail := f.post("/auth/token", `{"email":"nobody@example.com","password":"testpassword"}`)

	require.Equal(t, http.StatusUnauthorized, wrongPassword.Code)
	require.Equal(t, http.StatusUnauthorized, unknownEmail.Code)
	require.Contains(t, strings.ToLower(wrongPassword.Body.String()), "could not validate credentials")
	require.Equal(t, wrongPassword.Body.String(), unknownEmail.Body.String())
}

func TestLoginInactiveUserDenied(t *testing.T) {
	f := newAuthFixture(t)
	f.seedUser(t, "gone@example.com", "testpassword", false)

	res := f.post("/auth/token", `{"email":"gone@example.com","password":"testpassword"}`)
	require.Equal(t, http.StatusNotFound, res.Code)
}

func TestLoginRateLimited(t *testing.T) {
	f := newAuthFixture(t)

	for i := 0; i < 5; i++ {
		res := f.post("/auth/token", `{"email":"nobody@example.com","password":"testpassword"}`)
		require.Equal(t, http.StatusUnauthorized, res.Code, "attempt %d", i+1)
	}

	res := f.post("/auth/token", `{"email":"nobody@example.com","password":"testpassword"}`)
	require.Equal(t, http.StatusTooManyRequests, res.Code)
	require.Contains(t, res.Body.String(), "Too Many Requests")
}

func TestSignupCreatesUser(t *testing.T) {
	f := newAuthFixture(t)

	payload := `{"email":"test@example.com","password":"testpassword","first_name":"Test","last_name":"User"}`
	res := f.post("/auth/signup", payload)
	require.Equal(t, http.StatusCreated, res.Code)

	var body users.Response
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	require.Equal(t, "test@example.com", body.Email)
	require.True(t, body.IsActive)
	require.False(t, body.IsAdmin)
	require.NotContains(t, res.Body.String(), "password")

	require.Len(t, f.enqueuer.tasks, 1)
	require.Equal(t, "mail:send", f.enqueuer.tasks[0].Type())
}

func TestSignupDuplicateEmail(t *testing.T) {
	f := newAuthFixture(t)

	payload := `{"email":"test@example.com","password":"testpassword","first_name":"Test","last_name":"User"}`
	first := f.post("/auth/signup", payload)
	require.Equal(t, http.StatusCreated, first.Code)

	second := f.post("/auth/signup", payload)
	require.Equal(t, http.StatusConflict, second.Code)
	require.Contains(t, strings.ToLower(second.Body.String()), "email already exists")
}

func TestSignupValidation(t *testing.T) {
	f := newAuthFixture(t)

	res := f.post("/auth/signup", `{"email":"not-an-email","password":"short","first_name":"","last_name":"User"}`)
	require.Equal(t, http.StatusUnprocessableEntity, res.Code)
}

func TestLoginMalformedBody(t *testing.T) {
	f := newAuthFixture(t)

	res := f.post("/auth/token", `{broken`)
	require.Equal(t, http.StatusBadRequest, res.Code)
}
