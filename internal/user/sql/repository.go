package usersql

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openkcm/addon-auth/internal/user"
)

type Repository struct {
	db *pgxpool.Pool
}

var _ user.Repository = (*Repository)(nil)

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Get(ctx context.Context, id string) (user.User, bool, error) {
	var u user.User
	if err := r.db.QueryRow(ctx, `SELECT id, email FROM users WHERE id = $1;`, id).Scan(&u.ID, &u.Email); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.User{}, false, nil
		}

		return user.User{}, false, fmt.Errorf("scanning user: %w", err)
	}

	return u, true, nil
}

func (r *Repository) Put(ctx context.Context, u user.User) error {
	if _, err := r.db.Exec(ctx,
		`INSERT INTO users (id, email, updated_at) VALUES ($1, $2, now())
			ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email, updated_at = EXCLUDED.updated_at;`,
		u.ID, u.Email,
	); err != nil {
		return fmt.Errorf("upserting user: %w", err)
	}

	return nil
}
