package credentialsql

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openkcm/addon-auth/internal/credential"
)

type Repository struct {
	db *pgxpool.Pool
}

var _ credential.Repository = (*Repository)(nil)

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Get(ctx context.Context, subjectID string) (credential.Credential, bool, error) {
	var cred credential.Credential
	err := r.db.QueryRow(ctx,
		`SELECT subject_id, access_token, refresh_token, token_type, expiry FROM credentials WHERE subject_id = $1;`,
		subjectID,
	).Scan(&cred.SubjectID, &cred.AccessToken, &cred.RefreshToken, &cred.TokenType, &cred.Expiry)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return credential.Credential{}, false, nil
		}

		return credential.Credential{}, false, fmt.Errorf("scanning credential: %w", err)
	}

	return cred, true, nil
}

// Put writes the full record in one statement so a concurrent refresh of the
// same subject never leaves a mix of two credentials behind.
func (r *Repository) Put(ctx context.Context, cred credential.Credential) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO credentials (subject_id, access_token, refresh_token, token_type, expiry, updated_at)
			VALUES ($1, $2, $3, $4, $5, now())
			ON CONFLICT (subject_id) DO UPDATE
			SET access_token = EXCLUDED.access_token,
				refresh_token = EXCLUDED.refresh_token,
				token_type = EXCLUDED.token_type,
				expiry = EXCLUDED.expiry,
				updated_at = EXCLUDED.updated_at;`,
		cred.SubjectID, cred.AccessToken, cred.RefreshToken, cred.TokenType, cred.Expiry,
	); err != nil {
		if err, ok := handlePgError(err); ok {
			return err
		}

		return fmt.Errorf("upserting credential: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

// Delete is idempotent.
func (r *Repository) Delete(ctx context.Context, subjectID string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM credentials WHERE subject_id = $1;`, subjectID); err != nil {
		return fmt.Errorf("deleting credential: %w", err)
	}

	return nil
}
