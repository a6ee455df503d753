package repos

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"kantin/internal/domain"
)

type UserRepo struct{ DB *sqlx.DB }

func NewUserRepo(db *sqlx.DB) *UserRepo { return &UserRepo{DB: db} }

const userCols = `id,email,full_name,nik,department,phone,role,password_hash,created_at,updated_at`

func (r *UserRepo) getOne(ctx context.Context, q string, args ...any) (*domain.User, error) {
	var u domain.User
	err := r.DB.GetContext(ctx, &u, q, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepo) ByNIK(ctx context.Context, nik string) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userCols+` FROM users WHERE nik=?`, nik)
}

func (r *UserRepo) ByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userCols+` FROM users WHERE id=?`, id)
}

func (r *UserRepo) ListSellers(ctx context.Context) ([]domain.User, error) {
	out := []domain.User{}
	err := r.DB.SelectContext(ctx, &out, `SELECT `+userCols+` FROM users WHERE role='seller' ORDER BY full_name`)
	return out, err
}

func (r *UserRepo) Create(ctx context.Context, u domain.User) error {
	ts := now()
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO users(`+userCols+`)
		VALUES(?,?,?,?,?,?,?,?,?,?)
	`, u.ID, u.Email, u.FullName, u.NIK, u.Department, u.Phone, u.Role, u.Hash, ts, ts)
	return err
}

// UpdateProfile changes contact fields; role and password are not touched.
func (r *UserRepo) UpdateProfile(ctx context.Context, u domain.User) error {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE users SET email=?, full_name=?, nik=?, department=?, phone=?, updated_at=?
		WHERE id=?
	`, u.Email, u.FullName, u.NIK, u.Department, u.Phone, now(), u.ID)
	return affected(res, err)
}

func (r *UserRepo) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE users SET password_hash=?, updated_at=? WHERE id=?`, hash, now(), id)
	return affected(res, err)
}

// Delete removes a user; sessions, products and withdrawals cascade.
// Transactions keep the seller id for the audit trail.
func (r *UserRepo) Delete(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM users WHERE id=?`, id)
	return affected(res, err)
}

func (r *UserRepo) BindSession(ctx context.Context, sid, userID string) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO sessions(id,user_id,last_seen)
                          VALUES(?,?,CURRENT_TIMESTAMP)
                          ON CONFLICT(id) DO UPDATE SET user_id=excluded.user_id,last_seen=CURRENT_TIMESTAMP`, sid, userID)
	return err
}

func (r *UserRepo) SessionUser(ctx context.Context, sid string) (*domain.User, error) {
	return r.getOne(ctx, `
      SELECT u.id,u.email,u.full_name,u.nik,u.department,u.phone,u.role,u.password_hash,u.created_at,u.updated_at
      FROM sessions s
      JOIN users u ON u.id=s.user_id
      WHERE s.id=?`, sid)
}

func (r *UserRepo) UnbindSession(ctx context.Context, sid string) error {
	_, err := r.DB.ExecContext(ctx, `UPDATE sessions SET user_id=NULL,last_seen=CURRENT_TIMESTAMP WHERE id=?`, sid)
	return err
}
