package repository

import (
	"context"
	"fmt"

	"docportal/internal/model"

	"github.com/jackc/pgx/v5/pgxpool"
)

type PgUserRepository struct {
	db *pgxpool.Pool
}

func NewUserRepository(db *pgxpool.Pool) *PgUserRepository {
	return &PgUserRepository{db: db}
}

const userColumns = `id, email, full_name, role, password_hash, created_at`

// Create inserts a new user.
func (r *PgUserRepository) Create(ctx context.Context, u *model.User) error {
	query := `
        INSERT INTO users (email, full_name, role, password_hash)
        VALUES ($1, $2, $3, $4)
        RETURNING id, created_at
    `
	if err := r.db.QueryRow(ctx, query, u.Email, u.FullName, u.Role, u.PasswordHash).Scan(&u.ID, &u.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// GetByID returns the profile used by the access evaluator.
func (r *PgUserRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	err := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id).Scan(
		&u.ID, &u.Email, &u.FullName, &u.Role, &u.PasswordHash, &u.CreatedAt,
	)
	if err != nil {
		return nil, lookupErr(err, "user", id)
	}
	return &u, nil
}

// GetByEmail returns user by email.
func (r *PgUserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	var u model.User
	err := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email).Scan(
		&u.ID, &u.Email, &u.FullName, &u.Role, &u.PasswordHash, &u.CreatedAt,
	)
	if err != nil {
		return nil, lookupErr(err, "user", email)
	}
	return &u, nil
}
