package services

import (
	"context"

	"kantin/internal/domain"
	"kantin/internal/repos"
)

type SellerStats struct {
	Revenue         int64                `json:"revenue"`
	VerifiedCount   int                  `json:"verified_count"`
	ProductCount    int                  `json:"product_count"`
	ActiveProducts  int                  `json:"active_products"`
	Balance         Balance              `json:"balance"`
	PendingRequests int                  `json:"pending_requests"`
	RecentSales     []domain.Transaction `json:"recent_sales"`
}

// SellerService backs the seller dashboard.
type SellerService struct {
	Txns  *repos.TransactionRepo
	Wds   *repos.WithdrawalRepo
	Prods *repos.ProductRepo
}

func (s *SellerService) Stats(ctx context.Context, actor *domain.User) (SellerStats, error) {
	if err := requireRole(actor, domain.RoleSeller); err != nil {
		return SellerStats{}, err
	}
	txns, err := s.Txns.List(ctx, repos.TransactionFilter{SellerID: actor.ID})
	if err != nil {
		return SellerStats{}, err
	}
	wds, err := s.Wds.List(ctx, repos.WithdrawalFilter{SellerID: actor.ID})
	if err != nil {
		return SellerStats{}, err
	}
	prods, err := s.Prods.ListBySeller(ctx, actor.ID)
	if err != nil {
		return SellerStats{}, err
	}

	st := SellerStats{Balance: ComputeBalance(actor.ID, txns, wds), ProductCount: len(prods)}
	st.Revenue = st.Balance.TotalSales
	for _, t := range txns {
		if t.Status == domain.TxVerified {
			st.VerifiedCount++
		}
	}
	for _, p := range prods {
		if p.Active {
			st.ActiveProducts++
		}
	}
	// approved but not completed is still outstanding, as in ComputeBalance
	for _, w := range wds {
		if w.Status == domain.WdPending || w.Status == domain.WdApproved {
			st.PendingRequests++
		}
	}
	st.RecentSales = txns
	if len(st.RecentSales) > 10 {
		st.RecentSales = st.RecentSales[:10]
	}
	return st, nil
}

func (s *SellerService) Transactions(ctx context.Context, actor *domain.User) ([]domain.Transaction, error) {
	if err := requireRole(actor, domain.RoleSeller); err != nil {
		return nil, err
	}
	return s.Txns.List(ctx, repos.TransactionFilter{SellerID: actor.ID})
}
