package services

import (
	"errors"

	"kantin/internal/domain"
)

const (
	// FeeBasisPoints is the consignment fee kept on every withdrawal (8%).
	FeeBasisPoints int64 = 800
	MinWithdrawal  int64 = 10000
)

var (
	ErrBelowMinimum        = errors.New("withdrawal below minimum amount")
	ErrInsufficientBalance = errors.New("withdrawal exceeds available balance")
)

// Fee is amount * 8%, rounded half up to the rupiah.
func Fee(amount int64) int64 {
	if amount <= 0 {
		return 0
	}
	return (amount*FeeBasisPoints + 5000) / 10000
}

// Net is what the seller receives; Fee(a) + Net(a) == a.
func Net(amount int64) int64 { return amount - Fee(amount) }

type Balance struct {
	TotalSales     int64 `json:"total_sales"`
	TotalWithdrawn int64 `json:"total_withdrawn"`
	PendingHold    int64 `json:"pending_hold"`
	Available      int64 `json:"available"`
}

// ComputeBalance derives a seller's balance from the full ledger. Withdrawn
// and held amounts count the requested amount, fee included. PendingHold
// covers approved withdrawals as well as pending ones, so an approval that is
// not yet completed still reserves its amount.
func ComputeBalance(sellerID string, txns []domain.Transaction, wds []domain.Withdrawal) Balance {
	var b Balance
	for _, t := range txns {
		if t.SellerID == sellerID && t.Status == domain.TxVerified {
			b.TotalSales += t.TotalAmount
		}
	}
	for _, w := range wds {
		if w.SellerID != sellerID {
			continue
		}
		switch w.Status {
		case domain.WdCompleted:
			b.TotalWithdrawn += w.Amount
		case domain.WdPending, domain.WdApproved:
			b.PendingHold += w.Amount
		}
	}
	b.Available = b.TotalSales - b.TotalWithdrawn - b.PendingHold
	return b
}

func ValidateWithdrawal(amount int64, b Balance) error {
	if amount < MinWithdrawal {
		return ErrBelowMinimum
	}
	if amount > b.Available {
		return ErrInsufficientBalance
	}
	return nil
}
