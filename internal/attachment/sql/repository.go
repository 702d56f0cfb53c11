package attachmentsql

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openkcm/addon-auth/internal/attachment"
	"github.com/openkcm/addon-auth/internal/serviceerr"
)

type Repository struct {
	db *pgxpool.Pool
}

var _ attachment.Repository = (*Repository)(nil)

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Get(ctx context.Context, id string) (attachment.Attachment, bool, error) {
	var a attachment.Attachment
	if err := r.db.QueryRow(ctx, `SELECT id, image_filename FROM attachments WHERE id = $1;`, id).Scan(&a.ID, &a.ImageFilename); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return attachment.Attachment{}, false, nil
		}

		return attachment.Attachment{}, false, fmt.Errorf("scanning attachment: %w", err)
	}

	return a, true, nil
}

// Put inserts the record. Attachment ids are assigned upstream, so a second
// write with the same id is reported as a conflict.
func (r *Repository) Put(ctx context.Context, a attachment.Attachment) error {
	if _, err := r.db.Exec(ctx,
		`INSERT INTO attachments (id, image_filename) VALUES ($1, $2);`,
		a.ID, a.ImageFilename,
	); err != nil {
		if err, ok := handlePgError(err); ok {
			return err
		}

		return fmt.Errorf("inserting attachment: %w", err)
	}

	return nil
}

func handlePgError(err error) (error, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return serviceerr.ErrConflict, true
	}

	return err, false
}
