package repos

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"kantin/internal/domain"
)

type QRISRepo struct{ db *sqlx.DB }

func NewQRISRepo(db *sqlx.DB) *QRISRepo { return &QRISRepo{db: db} }

// Get returns the active QRIS target.
func (r *QRISRepo) Get(ctx context.Context) (domain.QRISConfig, error) {
	var q domain.QRISConfig
	err := r.db.GetContext(ctx, &q, `
	  SELECT id, image_url, merchant_name, is_active, updated_at, updated_by
	  FROM qris_config WHERE is_active = 1 ORDER BY updated_at DESC LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.QRISConfig{}, ErrNotFound
	}
	return q, err
}

// QRISPatch leaves a field unchanged when it is empty.
type QRISPatch struct {
	ImageURL     string
	MerchantName string
	UpdatedBy    string
}

func (r *QRISRepo) Update(ctx context.Context, p QRISPatch) (domain.QRISConfig, error) {
	cur, err := r.Get(ctx)
	if err != nil {
		return domain.QRISConfig{}, err
	}
	if p.ImageURL != "" {
		cur.ImageURL = p.ImageURL
	}
	if p.MerchantName != "" {
		cur.MerchantName = p.MerchantName
	}
	cur.UpdatedBy = p.UpdatedBy
	cur.UpdatedAt = now()
	if _, err := r.db.ExecContext(ctx, `
	  UPDATE qris_config SET image_url=?, merchant_name=?, updated_at=?, updated_by=? WHERE id=?
	`, cur.ImageURL, cur.MerchantName, cur.UpdatedAt, cur.UpdatedBy, cur.ID); err != nil {
		return domain.QRISConfig{}, err
	}
	return cur, nil
}
