package users_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
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

type memRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]*users.User
}

func newMemRepo() *memRepo {
	return &memRepo{users: make(map[uuid.UUID]*users.User)}
}

func (m *memRepo) add(u users.User) *users.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	m.users[u.ID] = &u
	return &u
}

func (m *memRepo) GetByEmail(ctx context.Context, email string) (*users.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (m *memRepo) GetByID(ctx context.Context, id uuid.UUID) (*users.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (m *memRepo) Create(ctx context.Context, params users.CreateParams, passwordHash string) (*users.User, error) {
	if existing, err := m.GetByEmail(ctx, params.Email); err == nil && existing != nil {
		return nil, shared.ErrEmailExists
	}
	return m.add(users.User{
		FirstName:    params.FirstName,
		LastName:     params.LastName,
		Email:        params.Email,
		PasswordHash: passwordHash,
		IsActive:     true,
	}), nil
}

func (m *memRepo) Update(ctx context.Context, id uuid.UUID, params users.UpdateParams) (*users.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
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

func (m *memRepo) SetActive(ctx context.Context, id uuid.UUID, active bool) (*users.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	u.IsActive = active
	u.UpdatedAt = time.Now()
	copied := *u
	return &copied, nil
}

func (m *memRepo) ListActive(ctx context.Context) ([]users.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []users.User
	for _, u := range m.users {
		if u.IsActive {
			result = append(result, *u)
		}
	}
	return result, nil
}

var _ users.Repository = (*memRepo)(nil)

type usersFixture struct {
	repo   *memRepo
	tokens *token.Service
	router http.Handler
}

func newUsersFixture(t *testing.T) *usersFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := newMemRepo()
	hasher := shared.BcryptHasher{Cost: bcrypt.MinCost}
	tokens := token.NewService([]byte("test-secret"), time.Hour)
	limiter := ratelimit.NewLimiter(client, nil)

	service := users.NewService(repo, hasher)
	authService := auth.NewService(repo, hasher, tokens)
	mw := auth.Middleware{Service: authService, Logger: logger}
	handler := users.NewHandler(logger, service, limiter, mw.RequireUser, mw.RequireAdmin)

	r := chi.NewRouter()
	r.Route("/users", handler.MountRoutes)

	return &usersFixture{repo: repo, tokens: tokens, router: r}
}

func (f *usersFixture) seed(t *testing.T, email string, admin bool) *users.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("testpassword"), bcrypt.MinCost)
	require.NoError(t, err)
	return f.repo.add(users.User{
		FirstName:    "Test",
		LastName:     "User",
		Email:        email,
		PasswordHash: string(hash),
		IsAdmin:      admin,
		IsActive:     true,
	})
}

func (f *usersFixture) tokenFor(t *testing.T, email string) string {
	t.Helper()
	signed, err := f.tokens.Issue(email, time.Hour)
	require.NoError(t, err)
	return signed
}

func (f *usersFixture) do(t *testing.T, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res := httptest.NewRecorder()
	f.router.ServeHTTP(res, req)
	return res
}

func TestMeReturnsCurrentUser(t *testing.T) {
	f := newUsersFixture(t)
	seeded := f.seed(t, "me@example.com", false)

	res := f.do(t, http.MethodGet, "/users/me", "", f.tokenFor(t, "me@example.com"))
	require.Equal(t, http.StatusOK, res.Code)

	var body users.Response
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	require.Equal(t, seeded.ID, body.ID)
	require.Equal(t, "me@example.com", body.Email)
	require.NotContains(t, res.Body.String(), "password")
}

func TestMeWithoutToken(t *testing.T) {
	f := newUsersFixture(t)

	res := f.do(t, http.MethodGet, "/users/me", "", "")
	require.Equal(t, http.StatusUnauthorized, res.Code)
	require.Equal(t, "Bearer", res.Header().Get("WWW-Authenticate"))
}

func TestListRequiresAdmin(t *testing.T) {
	f := newUsersFixture(t)
	f.seed(t, "user@example.com", false)
	f.seed(t, "root@example.com", true)

	res := f.do(t, http.MethodGet, "/users/", "", f.tokenFor(t, "user@example.com"))
	require.Equal(t, http.StatusForbidden, res.Code)

	res = f.do(t, http.MethodGet, "/users/", "", f.tokenFor(t, "root@example.com"))
	require.Equal(t, http.StatusOK, res.Code)

	var list []users.Response
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &list))
	require.Len(t, list, 2)
}

func TestAdminCreateUser(t *testing.T) {
	f := newUsersFixture(t)
	f.seed(t, "root@example.com", true)
	adminToken := f.tokenFor(t, "root@example.com")

	payload := `{"email":"new@example.com","password":"testpassword","first_name":"New","last_name":"User"}`
	res := f.do(t, http.MethodPost, "/users/", payload, adminToken)
	require.Equal(t, http.StatusCreated, res.Code)

	var body users.Response
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	require.Equal(t, "new@example.com", body.Email)
	require.False(t, body.IsAdmin)

	res = f.do(t, http.MethodGet, "/users/"+body.ID.String(), "", adminToken)
	require.Equal(t, http.StatusOK, res.Code)
}

func TestAdminUpdateUser(t *testing.T) {
	f := newUsersFixture(t)
	f.seed(t, "root@example.com", true)
	target := f.seed(t, "user@example.com", false)
	adminToken := f.tokenFor(t, "root@example.com")

	res := f.do(t, http.MethodPut, "/users/"+target.ID.String(), `{"first_name":"Renamed"}`, adminToken)
	require.Equal(t, http.StatusOK, res.Code)

	var body users.Response
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	require.Equal(t, "Renamed", body.FirstName)
	require.Equal(t, "User", body.LastName)
}

func TestSoftDeleteAndReactivate(t *testing.T) {
	f := newUsersFixture(t)
	f.seed(t, "root@example.com", true)
	target := f.seed(t, "user@example.com", false)
	adminToken := f.tokenFor(t, "root@example.com")

	res := f.do(t, http.MethodDelete, "/users/"+target.ID.String(), "", adminToken)
	require.Equal(t, http.StatusNoContent, res.Code)

	// Soft-deleted accounts read as absent but the row survives.
	res = f.do(t, http.MethodGet, "/users/"+target.ID.String(), "", adminToken)
	require.Equal(t, http.StatusNotFound, res.Code)

	res = f.do(t, http.MethodPost, "/users/"+target.ID.String()+"/reactivate", "", adminToken)
	require.Equal(t, http.StatusNoContent, res.Code)

	res = f.do(t, http.MethodGet, "/users/"+target.ID.String(), "", adminToken)
	require.Equal(t, http.StatusOK, res.Code)
}

func TestDeletedUserTokenRejected(t *testing.T) {
	f := newUsersFixture(t)
	f.seed(t, "root@example.com", true)
	target := f.seed(t, "user@example.com", false)
	userToken := f.tokenFor(t, "user@example.com")

	res := f.do(t, http.MethodDelete, "/users/"+target.ID.String(), "", f.tokenFor(t, "root@example.com"))
	require.Equal(t, http.StatusNoContent, res.Code)

	res = f.do(t, http.MethodGet, "/users/me", "", userToken)
	require.Equal(t, http.StatusNotFound, res.Code)
}

func TestGetUserInvalidID(t *testing.T) {
	f := newUsersFixture(t)
	f.seed(t, "root@example.com", true)

	res := f.do(t, http.MethodGet, "/users/not-a-uuid", "", f.tokenFor(t, "root@example.com"))
	require.Equal(t, http.StatusBadRequest, res.Code)
}

func TestGetUnknownUser(t *testing.T) {
	f := newUsersFixture(t)
	f.seed(t, "root@example.com", true)

	res := f.do(t, http.MethodGet, "/users/"+uuid.NewString(), "", f.tokenFor(t, "root@example.com"))
	require.Equal(t, http.StatusNotFound, res.Code)
}

func TestAdminCreateDuplicateEmail(t *testing.T) {
	f := newUsersFixture(t)
	f.seed(t, "root@example.com", true)
	f.seed(t, "user@example.com", false)

	payload := `{"email":"user@example.com","password":"testpassword","first_name":"Dup","last_name":"User"}`
	res := f.do(t, http.MethodPost, "/users/", payload, f.tokenFor(t, "root@example.com"))
	require.Equal(t, http.StatusConflict, res.Code)
}
