package repos

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/jmoiron/sqlx"

	"kantin/internal/domain"
)

var ErrNotFound = errors.New("record not found")

type ProductRepo struct{ db *sqlx.DB }

func NewProductRepo(db *sqlx.DB) *ProductRepo { return &ProductRepo{db: db} }

const productCols = `
    p.id, p.name, p.description, p.price, p.stock, p.category, p.image_url,
    p.seller_id, COALESCE(u.full_name,'') AS seller_name, p.is_active,
    p.created_at, p.updated_at`

// ListActive returns products a kiosk may sell: active and in stock.
func (r *ProductRepo) ListActive(ctx context.Context) ([]domain.Product, error) {
	out := []domain.Product{}
	err := r.db.SelectContext(ctx, &out, `
	  SELECT`+productCols+`
	  FROM products p LEFT JOIN users u ON u.id = p.seller_id
	  WHERE p.is_active = 1 AND p.stock > 0
	  ORDER BY p.category, p.name
	`)
	return out, err
}

func (r *ProductRepo) ListAll(ctx context.Context) ([]domain.Product, error) {
	out := []domain.Product{}
	err := r.db.SelectContext(ctx, &out, `
	  SELECT`+productCols+`
	  FROM products p LEFT JOIN users u ON u.id = p.seller_id
	  ORDER BY p.created_at DESC, p.name
	`)
	return out, err
}

func (r *ProductRepo) ListBySeller(ctx context.Context, sellerID string) ([]domain.Product, error) {
	out := []domain.Product{}
	err := r.db.SelectContext(ctx, &out, `
	  SELECT`+productCols+`
	  FROM products p LEFT JOIN users u ON u.id = p.seller_id
	  WHERE p.seller_id = ?
	  ORDER BY p.created_at DESC, p.name
	`, sellerID)
	return out, err
}

func (r *ProductRepo) Get(ctx context.Context, id string) (domain.Product, error) {
	var p domain.Product
	err := r.db.GetContext(ctx, &p, `
	  SELECT`+productCols+`
	  FROM products p LEFT JOIN users u ON u.id = p.seller_id
	  WHERE p.id = ?
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Product{}, ErrNotFound
	}
	return p, err
}

func (r *ProductRepo) Create(ctx context.Context, p domain.Product) error {
	ts := now()
	if p.CreatedAt == "" {
		p.CreatedAt = ts
	}
	_, err := r.db.ExecContext(ctx, `
	  INSERT INTO products(id,name,description,price,stock,category,image_url,seller_id,is_active,created_at,updated_at)
	  VALUES(?,?,?,?,?,?,?,?,?,?,?)
	`, p.ID, p.Name, p.Description, p.Price, p.Stock, p.Category, p.ImageURL, p.SellerID, p.Active, p.CreatedAt, ts)
	return err
}

// Update overwrites the editable fields. Ownership never changes.
func (r *ProductRepo) Update(ctx context.Context, p domain.Product) error {
	res, err := r.db.ExecContext(ctx, `
	  UPDATE products
	  SET name=?, description=?, price=?, stock=?, category=?, image_url=?, is_active=?, updated_at=?
	  WHERE id=?
	`, p.Name, p.Description, p.Price, p.Stock, p.Category, p.ImageURL, p.Active, now(), p.ID)
	return affected(res, err)
}

func (r *ProductRepo) SetActive(ctx context.Context, id string, active bool) error {
	res, err := r.db.ExecContext(ctx, `UPDATE products SET is_active=?, updated_at=? WHERE id=?`, active, now(), id)
	return affected(res, err)
}

func (r *ProductRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM products WHERE id=?`, id)
	return affected(res, err)
}

// DecrementStock subtracts qty, clamping at zero, and returns the updated row.
func (r *ProductRepo) DecrementStock(ctx context.Context, id string, qty int) (domain.Product, error) {
	if err := decrementStock(ctx, r.db, id, qty); err != nil {
		return domain.Product{}, err
	}
	return r.Get(ctx, id)
}

// decrementStock works on either the pool or an open transaction.
func decrementStock(ctx context.Context, ex sqlx.ExtContext, id string, qty int) error {
	res, err := ex.ExecContext(ctx, `
	  UPDATE products SET stock = MAX(0, stock - ?), updated_at = ? WHERE id = ?
	`, qty, now(), id)
	return affected(res, err)
}

// Search matches active, in-stock products by category and a case-insensitive
// substring of name or description.
func (r *ProductRepo) Search(ctx context.Context, category, q string) ([]domain.Product, error) {
	where := `p.is_active = 1 AND p.stock > 0`
	args := []any{}
	if q = strings.ToLower(strings.TrimSpace(q)); q != "" {
		where += ` AND (LOWER(p.name) LIKE ? OR LOWER(p.description) LIKE ?)`
		args = append(args, "%"+q+"%", "%"+q+"%")
	}
	if category != "" && category != "all" {
		where += ` AND p.category = ?`
		args = append(args, category)
	}
	out := []domain.Product{}
	err := r.db.SelectContext(ctx, &out, `
	  SELECT`+productCols+`
	  FROM products p LEFT JOIN users u ON u.id = p.seller_id
	  WHERE `+where+`
	  ORDER BY p.category, p.name`, args...)
	return out, err
}

func affected(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
