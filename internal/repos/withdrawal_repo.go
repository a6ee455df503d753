package repos

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"kantin/internal/domain"
)

type WithdrawalRepo struct{ db *sqlx.DB }

func NewWithdrawalRepo(db *sqlx.DB) *WithdrawalRepo { return &WithdrawalRepo{db: db} }

type WithdrawalFilter struct {
	SellerID string
	Status   domain.WithdrawalStatus
}

const wdCols = `
    w.id, w.seller_id, COALESCE(u.full_name,'') AS seller_name, w.amount, w.fee_amount, w.net_amount,
    w.status, w.bank_name, w.account_number, w.account_name, w.transfer_proof_url, w.admin_notes,
    w.requested_at, w.processed_at, w.created_at, w.updated_at`

func (r *WithdrawalRepo) Create(ctx context.Context, w domain.Withdrawal) error {
	ts := now()
	if w.RequestedAt == "" {
		w.RequestedAt = ts
	}
	_, err := r.db.ExecContext(ctx, `
	  INSERT INTO withdrawals(id, seller_id, amount, fee_amount, net_amount, status, bank_name,
	    account_number, account_name, transfer_proof_url, admin_notes, requested_at, processed_at,
	    created_at, updated_at)
	  VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
	`, w.ID, w.SellerID, w.Amount, w.FeeAmount, w.NetAmount, w.Status, w.BankName, w.AccountNumber,
		w.AccountName, w.TransferProofURL, w.AdminNotes, w.RequestedAt, w.ProcessedAt, ts, ts)
	return err
}

func (r *WithdrawalRepo) Get(ctx context.Context, id string) (domain.Withdrawal, error) {
	var w domain.Withdrawal
	err := r.db.GetContext(ctx, &w, `SELECT `+wdCols+` FROM withdrawals w LEFT JOIN users u ON u.id=w.seller_id WHERE w.id=?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Withdrawal{}, ErrNotFound
	}
	return w, err
}

func (r *WithdrawalRepo) List(ctx context.Context, f WithdrawalFilter) ([]domain.Withdrawal, error) {
	where := `1=1`
	args := []any{}
	if f.SellerID != "" {
		where += ` AND w.seller_id = ?`
		args = append(args, f.SellerID)
	}
	if f.Status != "" {
		where += ` AND w.status = ?`
		args = append(args, f.Status)
	}
	out := []domain.Withdrawal{}
	err := r.db.SelectContext(ctx, &out, `
	  SELECT `+wdCols+`
	  FROM withdrawals w LEFT JOIN users u ON u.id=w.seller_id
	  WHERE `+where+`
	  ORDER BY w.requested_at DESC, w.id`, args...)
	return out, err
}

// Update applies an admin patch. The transition is checked against the row's
// current status inside the same transaction so two admins cannot both win.
func (r *WithdrawalRepo) Update(ctx context.Context, id string, p domain.WithdrawalPatch) (domain.Withdrawal, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return domain.Withdrawal{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var cur domain.WithdrawalStatus
	if err := tx.GetContext(ctx, &cur, `SELECT status FROM withdrawals WHERE id=?`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Withdrawal{}, ErrNotFound
		}
		return domain.Withdrawal{}, err
	}
	if !cur.CanTransition(p.Status) {
		return domain.Withdrawal{}, &TransitionError{From: string(cur), To: string(p.Status)}
	}
	if _, err := tx.ExecContext(ctx, `
	  UPDATE withdrawals
	  SET status=?, transfer_proof_url=COALESCE(NULLIF(?,''),transfer_proof_url),
	      admin_notes=?, processed_at=?, updated_at=?
	  WHERE id=?
	`, p.Status, p.TransferProofURL, p.AdminNotes, p.ProcessedAt, now(), id); err != nil {
		return domain.Withdrawal{}, err
	}
	var w domain.Withdrawal
	if err := tx.GetContext(ctx, &w, `SELECT `+wdCols+` FROM withdrawals w LEFT JOIN users u ON u.id=w.seller_id WHERE w.id=?`, id); err != nil {
		return domain.Withdrawal{}, err
	}
	return w, tx.Commit()
}

// TransitionError reports a status change the row's current state forbids.
type TransitionError struct{ From, To string }

func (e *TransitionError) Error() string { return "invalid status transition " + e.From + " -> " + e.To }
