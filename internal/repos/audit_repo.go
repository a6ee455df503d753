package repos

import (
	"context"

	"github.com/jmoiron/sqlx"

	"kantin/internal/domain"
)

// FailedValidationRepo is append-only: there is no update or delete.
type FailedValidationRepo struct{ db *sqlx.DB }

func NewFailedValidationRepo(db *sqlx.DB) *FailedValidationRepo {
	return &FailedValidationRepo{db: db}
}

func (r *FailedValidationRepo) Create(ctx context.Context, v domain.FailedValidation) error {
	if v.CreatedAt == "" {
		v.CreatedAt = now()
	}
	_, err := r.db.ExecContext(ctx, `
	  INSERT INTO failed_validations(id, customer_name, attempted_amount, failure_reason, image_url, created_at)
	  VALUES(?,?,?,?,?,?)
	`, v.ID, v.CustomerName, v.AttemptedAmount, v.FailureReason, v.ImageURL, v.CreatedAt)
	return err
}

// List returns records newest first; since (see Stamp) bounds created_at when set.
func (r *FailedValidationRepo) List(ctx context.Context, since string) ([]domain.FailedValidation, error) {
	out := []domain.FailedValidation{}
	q := `SELECT id, customer_name, attempted_amount, failure_reason, image_url, created_at FROM failed_validations`
	args := []any{}
	if since != "" {
		q += ` WHERE created_at >= ?`
		args = append(args, since)
	}
	q += ` ORDER BY created_at DESC, id`
	err := r.db.SelectContext(ctx, &out, q, args...)
	return out, err
}
