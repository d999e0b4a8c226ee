package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/beacon-api/beacon/internal/shared"
)

// CreateParams holds the fields required to create a user.
type CreateParams struct {
	FirstName string
	LastName  string
	Email     string
}

// UpdateParams patches mutable user fields. Nil fields are left unchanged.
type UpdateParams struct {
	FirstName    *string
	LastName     *string
	Email        *string
	PasswordHash *string
}

// Repository defines persistence operations for user accounts.
type Repository interface {
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	Create(ctx context.Context, params CreateParams, passwordHash string) (*User, error)
	Update(ctx context.Context, id uuid.UUID, params UpdateParams) (*User, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) (*User, error)
	ListActive(ctx context.Context) ([]User, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const userColumns = `id, first_name, last_name, email, password_hash, is_admin, is_active, created_at, updated_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.PasswordHash, &u.IsAdmin, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("users: scan: %w", err)
	}
	return &u, nil
}

// GetByEmail fetches a user by email. Lookup is case-sensitive, matching the
// unique index.
func (r *PGRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return scanUser(row)
}

// GetByID fetches a user by ID.
func (r *PGRepository) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// Create inserts a new active, non-admin user. A duplicate email surfaces as
// shared.ErrEmailExists via the unique index.
func (r *PGRepository) Create(ctx context.Context, params CreateParams, passwordHash string) (*User, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO users (first_name, last_name, email, password_hash, is_admin, is_active)
		VALUES ($1, $2, $3, $4, false, true)
		RETURNING `+userColumns,
		params.FirstName, params.LastName, params.Email, passwordHash)
	user, err := scanUser(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, shared.ErrEmailExists
		}
		return nil, err
	}
	return user, nil
}

// Update patches the given fields and returns the updated row.
func (r *PGRepository) Update(ctx context.Context, id uuid.UUID, params UpdateParams) (*User, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE users SET
			first_name = COALESCE($2, first_name),
			last_name = COALESCE($3, last_name),
			email = COALESCE($4, email),
			password_hash = COALESCE($5, password_hash),
			updated_at = now()
		WHERE id = $1
		RETURNING `+userColumns,
		id, params.FirstName, params.LastName, params.Email, params.PasswordHash)
	user, err := scanUser(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, shared.ErrEmailExists
		}
		return nil, err
	}
	return user, nil
}

// SetActive flips the is_active flag; rows are never deleted.
func (r *PGRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) (*User, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE users SET is_active = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+userColumns,
		id, active)
	return scanUser(row)
}

// ListActive returns all active users.
func (r *PGRepository) ListActive(ctx context.Context) ([]User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users WHERE is_active ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("users: list active: %w", err)
	}
	defer rows.Close()

	var result []User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("users: list active: %w", err)
	}
	return result, nil
}

var _ Repository = (*PGRepository)(nil)
