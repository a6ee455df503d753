package repos

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"kantin/internal/domain"
)

type TransactionRepo struct{ db *sqlx.DB }

func NewTransactionRepo(db *sqlx.DB) *TransactionRepo { return &TransactionRepo{db: db} }

// TransactionFilter narrows ListTransactions. Zero values match everything.
type TransactionFilter struct {
	SellerID string
	Status   domain.TransactionStatus
	Since    string // Stamp-formatted lower bound on created_at
	Limit    int
}

// StockDecrement is one clamped stock reduction applied with a sale.
type StockDecrement struct {
	ProductID string
	Qty       int
}

const txCols = `id, order_ref, customer_name, total_amount, status, payment_proof_url,
    verification_notes, verification_attempts, seller_id, created_at, updated_at`

func insertTransaction(ctx context.Context, ex sqlx.ExtContext, t domain.Transaction) error {
	ts := now()
	if t.CreatedAt == "" {
		t.CreatedAt = ts
	}
	if _, err := ex.ExecContext(ctx, `
	  INSERT INTO transactions(`+txCols+`)
	  VALUES(?,?,?,?,?,?,?,?,?,?,?)
	`, t.ID, t.OrderRef, t.CustomerName, t.TotalAmount, t.Status, t.PaymentProofURL,
		t.VerificationNotes, t.VerificationAttempts, t.SellerID, t.CreatedAt, ts); err != nil {
		return err
	}
	for _, it := range t.Items {
		if _, err := ex.ExecContext(ctx, `
		  INSERT INTO transaction_items(transaction_id, product_id, product_name, quantity, price, subtotal)
		  VALUES(?,?,?,?,?,?)
		`, t.ID, it.ProductID, it.ProductName, it.Quantity, it.Price, it.Subtotal); err != nil {
			return err
		}
	}
	return nil
}

// Create inserts a transaction header with its line items.
func (r *TransactionRepo) Create(ctx context.Context, t domain.Transaction) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if err := insertTransaction(ctx, tx, t); err != nil {
		return err
	}
	return tx.Commit()
}

// CommitSale records the transactions of one checkout and applies every stock
// decrement in a single database transaction. Either all of it lands or none.
func (r *TransactionRepo) CommitSale(ctx context.Context, txns []domain.Transaction, decs []StockDecrement) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, t := range txns {
		if err := insertTransaction(ctx, tx, t); err != nil {
			return fmt.Errorf("insert transaction %s: %w", t.ID, err)
		}
	}
	for _, d := range decs {
		if err := decrementStock(ctx, tx, d.ProductID, d.Qty); err != nil {
			return fmt.Errorf("decrement stock %s: %w", d.ProductID, err)
		}
	}
	return tx.Commit()
}

func (r *TransactionRepo) Get(ctx context.Context, id string) (domain.Transaction, error) {
	var t domain.Transaction
	err := r.db.GetContext(ctx, &t, `SELECT `+txCols+` FROM transactions WHERE id=?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Transaction{}, ErrNotFound
	}
	if err != nil {
		return domain.Transaction{}, err
	}
	if err := r.db.SelectContext(ctx, &t.Items, `
	  SELECT transaction_id, product_id, product_name, quantity, price, subtotal
	  FROM transaction_items WHERE transaction_id=? ORDER BY rowid
	`, id); err != nil {
		return domain.Transaction{}, err
	}
	return t, nil
}

// List returns transactions newest first, with their items attached.
func (r *TransactionRepo) List(ctx context.Context, f TransactionFilter) ([]domain.Transaction, error) {
	where := `1=1`
	args := []any{}
	if f.SellerID != "" {
		where += ` AND seller_id = ?`
		args = append(args, f.SellerID)
	}
	if f.Status != "" {
		where += ` AND status = ?`
		args = append(args, f.Status)
	}
	if f.Since != "" {
		where += ` AND created_at >= ?`
		args = append(args, f.Since)
	}
	q := `SELECT ` + txCols + ` FROM transactions WHERE ` + where + ` ORDER BY created_at DESC, id`
	if f.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	out := []domain.Transaction{}
	if err := r.db.SelectContext(ctx, &out, q, args...); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return out, nil
	}

	ids := make([]string, len(out))
	idx := make(map[string]int, len(out))
	for i, t := range out {
		ids[i] = t.ID
		idx[t.ID] = i
		out[i].Items = []domain.TransactionItem{}
	}
	query, inArgs, err := sqlx.In(`
	  SELECT transaction_id, product_id, product_name, quantity, price, subtotal
	  FROM transaction_items WHERE transaction_id IN (?) ORDER BY rowid`, ids)
	if err != nil {
		return nil, err
	}
	var items []domain.TransactionItem
	if err := r.db.SelectContext(ctx, &items, r.db.Rebind(query), inArgs...); err != nil {
		return nil, err
	}
	for _, it := range items {
		i := idx[it.TransactionID]
		out[i].Items = append(out[i].Items, it)
	}
	return out, nil
}

// TotalVerifiedRevenue sums verified totals, for one seller or for everyone
// when sellerID is empty.
func (r *TransactionRepo) TotalVerifiedRevenue(ctx context.Context, sellerID string) (int64, error) {
	var total int64
	var err error
	if sellerID == "" {
		err = r.db.GetContext(ctx, &total, `SELECT COALESCE(SUM(total_amount),0) FROM transactions WHERE status='verified'`)
	} else {
		err = r.db.GetContext(ctx, &total, `SELECT COALESCE(SUM(total_amount),0) FROM transactions WHERE status='verified' AND seller_id=?`, sellerID)
	}
	return total, err
}

func (r *TransactionRepo) UpdateStatus(ctx context.Context, id string, status domain.TransactionStatus, notes string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE transactions SET status=?, verification_notes=?, updated_at=? WHERE id=?`,
		status, notes, now(), id)
	return affected(res, err)
}
