package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/auth"
)

const (
	findUserByEmailSQL = `SELECT id, email, password_hash, created_at FROM users WHERE email = $1`

	createUserSQL = `INSERT INTO users (email, password_hash) VALUES ($1, $2)
		ON CONFLICT (email) DO UPDATE SET password_hash = EXCLUDED.password_hash
		RETURNING id, created_at`
)

var _ auth.Repository = (*UserRepository)(nil)

// UserRepository provides user lookups backed by PostgreSQL.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a UserRepository that uses the given pool.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// FindByEmail looks up a user by email address.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	var u auth.User
	err := r.pool.QueryRow(ctx, findUserByEmailSQL, email).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrUserNotFound
		}
		return nil, fmt.Errorf("finding user by email: %w", err)
	}
	return &u, nil
}

// Create inserts a user, resetting the password of an existing account
// with the same email.
func (r *UserRepository) Create(ctx context.Context, u *auth.User) error {
	err := r.pool.QueryRow(ctx, createUserSQL, u.Email, u.PasswordHash).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating user %q: %w", u.Email, err)
	}
	return nil
}
