package repos

import (
	"context"

	"github.com/jmoiron/sqlx"

	"kantin/internal/domain"
)

type CategoryRepo struct{ db *sqlx.DB }

func NewCategoryRepo(db *sqlx.DB) *CategoryRepo { return &CategoryRepo{db: db} }

func (r *CategoryRepo) List(ctx context.Context) ([]domain.Category, error) {
	out := []domain.Category{}
	err := r.db.SelectContext(ctx, &out, `SELECT id, name, icon, created_at FROM categories ORDER BY name`)
	return out, err
}

func (r *CategoryRepo) Create(ctx context.Context, c domain.Category) error {
	if c.CreatedAt == "" {
		c.CreatedAt = now()
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO categories(id,name,icon,created_at) VALUES(?,?,?,?)`,
		c.ID, c.Name, c.Icon, c.CreatedAt)
	return err
}

func (r *CategoryRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM categories WHERE id=?`, id)
	return affected(res, err)
}
