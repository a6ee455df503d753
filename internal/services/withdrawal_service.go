package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"kantin/internal/domain"
	"kantin/internal/events"
	applog "kantin/internal/log"
	"kantin/internal/repos"
)

var (
	ErrMissingBankDetails   = errors.New("bank name, account number and account name are required")
	ErrMissingTransferProof = errors.New("transfer proof is required to complete a withdrawal")
	ErrInvalidTransition    = errors.New("withdrawal cannot change to that status")
)

type WithdrawalRequest struct {
	Amount        int64
	BankName      string
	AccountNumber string
	AccountName   string
}

// PayoutService handles seller withdrawals and their admin review.
type PayoutService struct {
	Txns   *repos.TransactionRepo
	Wds    *repos.WithdrawalRepo
	Events events.Publisher
}

func NewPayoutService(txns *repos.TransactionRepo, wds *repos.WithdrawalRepo, pub events.Publisher) *PayoutService {
	if pub == nil {
		pub = events.Nop{}
	}
	return &PayoutService{Txns: txns, Wds: wds, Events: pub}
}

// Balance computes the seller's balance from the ledger.
func (s *PayoutService) Balance(ctx context.Context, sellerID string) (Balance, error) {
	txns, err := s.Txns.List(ctx, repos.TransactionFilter{SellerID: sellerID, Status: domain.TxVerified})
	if err != nil {
		return Balance{}, err
	}
	wds, err := s.Wds.List(ctx, repos.WithdrawalFilter{SellerID: sellerID})
	if err != nil {
		return Balance{}, err
	}
	return ComputeBalance(sellerID, txns, wds), nil
}

func (s *PayoutService) ListOwn(ctx context.Context, actor *domain.User) ([]domain.Withdrawal, error) {
	if err := requireRole(actor, domain.RoleSeller); err != nil {
		return nil, err
	}
	return s.Wds.List(ctx, repos.WithdrawalFilter{SellerID: actor.ID})
}

// Request validates and records a pending withdrawal. Nothing is written when
// validation fails.
func (s *PayoutService) Request(ctx context.Context, actor *domain.User, req WithdrawalRequest) (domain.Withdrawal, error) {
	if err := requireRole(actor, domain.RoleSeller); err != nil {
		return domain.Withdrawal{}, err
	}
	req.BankName = strings.TrimSpace(req.BankName)
	req.AccountNumber = strings.TrimSpace(req.AccountNumber)
	req.AccountName = strings.TrimSpace(req.AccountName)
	if req.Amount < MinWithdrawal {
		return domain.Withdrawal{}, ErrBelowMinimum
	}
	if req.BankName == "" || req.AccountNumber == "" || req.AccountName == "" {
		return domain.Withdrawal{}, ErrMissingBankDetails
	}
	bal, err := s.Balance(ctx, actor.ID)
	if err != nil {
		return domain.Withdrawal{}, err
	}
	if err := ValidateWithdrawal(req.Amount, bal); err != nil {
		applog.Info(nil, "withdrawal.rejected", map[string]any{
			"seller": actor.ID, "amount": req.Amount, "available": bal.Available, "err": err.Error(),
		})
		return domain.Withdrawal{}, err
	}

	w := domain.Withdrawal{
		ID: "wdr-" + uuid.NewString(), SellerID: actor.ID, SellerName: actor.FullName,
		Amount: req.Amount, FeeAmount: Fee(req.Amount), NetAmount: Net(req.Amount),
		Status: domain.WdPending, BankName: req.BankName, AccountNumber: req.AccountNumber,
		AccountName: req.AccountName, RequestedAt: repos.Stamp(time.Now()),
	}
	if err := s.Wds.Create(ctx, w); err != nil {
		return domain.Withdrawal{}, err
	}
	applog.Audit(nil, "withdrawal.requested", map[string]any{"seller": actor.ID, "id": w.ID, "amount": w.Amount})
	s.publish(ctx, events.WithdrawalRequested, w)
	return w, nil
}

// Approve completes a withdrawal once the admin has transferred the money.
func (s *PayoutService) Approve(ctx context.Context, actor *domain.User, id, transferProofURL, notes string) (domain.Withdrawal, error) {
	if strings.TrimSpace(transferProofURL) == "" {
		return domain.Withdrawal{}, ErrMissingTransferProof
	}
	return s.process(ctx, actor, id, domain.WithdrawalPatch{
		Status: domain.WdCompleted, TransferProofURL: transferProofURL, AdminNotes: notes,
	})
}

func (s *PayoutService) Reject(ctx context.Context, actor *domain.User, id, notes string) (domain.Withdrawal, error) {
	return s.process(ctx, actor, id, domain.WithdrawalPatch{Status: domain.WdRejected, AdminNotes: notes})
}

func (s *PayoutService) process(ctx context.Context, actor *domain.User, id string, p domain.WithdrawalPatch) (domain.Withdrawal, error) {
	if err := requireRole(actor, domain.RoleAdmin); err != nil {
		return domain.Withdrawal{}, err
	}
	p.ProcessedAt = repos.Stamp(time.Now())
	w, err := s.Wds.Update(ctx, id, p)
	var te *repos.TransitionError
	if errors.As(err, &te) {
		return domain.Withdrawal{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, te.From, te.To)
	}
	if err != nil {
		return domain.Withdrawal{}, err
	}
	applog.Audit(nil, "withdrawal.processed", map[string]any{"admin": actor.ID, "id": id, "status": string(w.Status)})
	s.publish(ctx, events.WithdrawalProcessed, w)
	return w, nil
}

func (s *PayoutService) publish(ctx context.Context, typ string, w domain.Withdrawal) {
	env, err := events.New(typ, w.ID, w)
	if err == nil {
		err = s.Events.Publish(ctx, env)
	}
	if err != nil {
		applog.Error(nil, "withdrawal.publish", err, map[string]any{"id": w.ID})
	}
}
