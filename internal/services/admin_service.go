package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"kantin/internal/domain"
	applog "kantin/internal/log"
	"kantin/internal/repos"
)

var (
	ErrMissingSellerFields = errors.New("name, email and NIK are required")
	ErrDuplicateNIK        = errors.New("NIK is already registered")
	ErrMissingQRISFields   = errors.New("QRIS image and merchant name are required")
)

// AdminService fronts every store an admin may touch.
type AdminService struct {
	Users *repos.UserRepo
	Prods *repos.ProductRepo
	Txns  *repos.TransactionRepo
	Wds   *repos.WithdrawalRepo
	Audit *repos.FailedValidationRepo
	QRIS  *repos.QRISRepo
}

type AdminStats struct {
	TotalRevenue       int64 `json:"total_revenue"`
	TransactionCount   int   `json:"transaction_count"`
	SellerCount        int   `json:"seller_count"`
	ProductCount       int   `json:"product_count"`
	PendingWithdrawals int   `json:"pending_withdrawals"`
	FailedValidations  int   `json:"failed_validations"`
}

func (s *AdminService) Stats(ctx context.Context, actor *domain.User) (AdminStats, error) {
	if err := requireRole(actor, domain.RoleAdmin); err != nil {
		return AdminStats{}, err
	}
	var st AdminStats
	var err error
	if st.TotalRevenue, err = s.Txns.TotalVerifiedRevenue(ctx, ""); err != nil {
		return st, err
	}
	txns, err := s.Txns.List(ctx, repos.TransactionFilter{})
	if err != nil {
		return st, err
	}
	sellers, err := s.Users.ListSellers(ctx)
	if err != nil {
		return st, err
	}
	prods, err := s.Prods.ListAll(ctx)
	if err != nil {
		return st, err
	}
	pending, err := s.Wds.List(ctx, repos.WithdrawalFilter{Status: domain.WdPending})
	if err != nil {
		return st, err
	}
	fails, err := s.Audit.List(ctx, "")
	if err != nil {
		return st, err
	}
	st.TransactionCount, st.SellerCount, st.ProductCount = len(txns), len(sellers), len(prods)
	st.PendingWithdrawals, st.FailedValidations = len(pending), len(fails)
	return st, nil
}

type SellerInput struct {
	FullName   string
	Email      string
	NIK        string
	Department string
	Phone      string
}

func (in *SellerInput) normalize() error {
	in.FullName = strings.TrimSpace(in.FullName)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.NIK = strings.TrimSpace(in.NIK)
	in.Department = strings.TrimSpace(in.Department)
	in.Phone = strings.TrimSpace(in.Phone)
	if in.FullName == "" || in.Email == "" || in.NIK == "" {
		return ErrMissingSellerFields
	}
	return nil
}

func (s *AdminService) ListSellers(ctx context.Context, actor *domain.User) ([]domain.User, error) {
	if err := requireRole(actor, domain.RoleAdmin); err != nil {
		return nil, err
	}
	return s.Users.ListSellers(ctx)
}

// CreateSeller registers a seller with the default password.
func (s *AdminService) CreateSeller(ctx context.Context, actor *domain.User, in SellerInput) (domain.User, error) {
	if err := requireRole(actor, domain.RoleAdmin); err != nil {
		return domain.User{}, err
	}
	if err := in.normalize(); err != nil {
		return domain.User{}, err
	}
	if _, err := s.Users.ByNIK(ctx, in.NIK); err == nil {
		return domain.User{}, ErrDuplicateNIK
	} else if !errors.Is(err, repos.ErrNotFound) {
		return domain.User{}, err
	}
	h, err := bcrypt.GenerateFromPassword([]byte(repos.DefaultSellerPassword), bcrypt.DefaultCost)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}
	u := domain.User{
		ID: "seller-" + uuid.NewString(), Email: in.Email, FullName: in.FullName, NIK: in.NIK,
		Department: in.Department, Phone: in.Phone, Role: domain.RoleSeller, Hash: string(h),
	}
	if err := s.Users.Create(ctx, u); err != nil {
		return domain.User{}, err
	}
	applog.Audit(nil, "admin.seller.create", map[string]any{"admin": actor.ID, "seller": u.ID})
	created, err := s.Users.ByID(ctx, u.ID)
	if err != nil {
		return domain.User{}, err
	}
	return *created, nil
}

func (s *AdminService) UpdateSeller(ctx context.Context, actor *domain.User, id string, in SellerInput) (domain.User, error) {
	if err := requireRole(actor, domain.RoleAdmin); err != nil {
		return domain.User{}, err
	}
	if err := in.normalize(); err != nil {
		return domain.User{}, err
	}
	cur, err := s.Users.ByID(ctx, id)
	if err != nil {
		return domain.User{}, err
	}
	if !cur.IsSeller() {
		return domain.User{}, ErrForbidden
	}
	if other, err := s.Users.ByNIK(ctx, in.NIK); err == nil && other.ID != id {
		return domain.User{}, ErrDuplicateNIK
	}
	cur.FullName, cur.Email, cur.NIK, cur.Department, cur.Phone = in.FullName, in.Email, in.NIK, in.Department, in.Phone
	if err := s.Users.UpdateProfile(ctx, *cur); err != nil {
		return domain.User{}, err
	}
	applog.Audit(nil, "admin.seller.update", map[string]any{"admin": actor.ID, "seller": id})
	return *cur, nil
}

func (s *AdminService) DeleteSeller(ctx context.Context, actor *domain.User, id string) error {
	if err := requireRole(actor, domain.RoleAdmin); err != nil {
		return err
	}
	cur, err := s.Users.ByID(ctx, id)
	if err != nil {
		return err
	}
	if !cur.IsSeller() {
		return ErrForbidden
	}
	if err := s.Users.Delete(ctx, id); err != nil {
		return err
	}
	applog.Audit(nil, "admin.seller.delete", map[string]any{"admin": actor.ID, "seller": id})
	return nil
}

func (s *AdminService) ListTransactions(ctx context.Context, actor *domain.User, f repos.TransactionFilter) ([]domain.Transaction, error) {
	if err := requireRole(actor, domain.RoleAdmin); err != nil {
		return nil, err
	}
	return s.Txns.List(ctx, f)
}

// UpdateTransactionStatus moves a transaction along its status table, e.g.
// cancelling a verified sale that was refunded by hand.
func (s *AdminService) UpdateTransactionStatus(ctx context.Context, actor *domain.User, id string, to domain.TransactionStatus, notes string) (domain.Transaction, error) {
	if err := requireRole(actor, domain.RoleAdmin); err != nil {
		return domain.Transaction{}, err
	}
	cur, err := s.Txns.Get(ctx, id)
	if err != nil {
		return domain.Transaction{}, err
	}
	if !to.Valid() || !cur.Status.CanTransition(to) {
		return domain.Transaction{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, cur.Status, to)
	}
	if err := s.Txns.UpdateStatus(ctx, id, to, notes); err != nil {
		return domain.Transaction{}, err
	}
	applog.Audit(nil, "admin.transaction.status", map[string]any{
		"admin": actor.ID, "id": id, "from": string(cur.Status), "to": string(to),
	})
	return s.Txns.Get(ctx, id)
}

func (s *AdminService) ListWithdrawals(ctx context.Context, actor *domain.User, status domain.WithdrawalStatus) ([]domain.Withdrawal, error) {
	if err := requireRole(actor, domain.RoleAdmin); err != nil {
		return nil, err
	}
	return s.Wds.List(ctx, repos.WithdrawalFilter{Status: status})
}

// ListFailedValidations returns audit records, only today's when todayOnly.
func (s *AdminService) ListFailedValidations(ctx context.Context, actor *domain.User, todayOnly bool, now time.Time) ([]domain.FailedValidation, error) {
	if err := requireRole(actor, domain.RoleAdmin); err != nil {
		return nil, err
	}
	since := ""
	if todayOnly {
		y, m, d := now.Date()
		since = repos.Stamp(time.Date(y, m, d, 0, 0, 0, 0, now.Location()))
	}
	return s.Audit.List(ctx, since)
}

func (s *AdminService) QRISConfig(ctx context.Context) (domain.QRISConfig, error) {
	return s.QRIS.Get(ctx)
}

func (s *AdminService) UpdateQRIS(ctx context.Context, actor *domain.User, imageURL, merchant string) (domain.QRISConfig, error) {
	if err := requireRole(actor, domain.RoleAdmin); err != nil {
		return domain.QRISConfig{}, err
	}
	imageURL, merchant = strings.TrimSpace(imageURL), strings.TrimSpace(merchant)
	if imageURL == "" || merchant == "" {
		return domain.QRISConfig{}, ErrMissingQRISFields
	}
	q, err := s.QRIS.Update(ctx, repos.QRISPatch{ImageURL: imageURL, MerchantName: merchant, UpdatedBy: actor.ID})
	if err != nil {
		return domain.QRISConfig{}, err
	}
	applog.Audit(nil, "admin.qris.update", map[string]any{"admin": actor.ID, "merchant": merchant})
	return q, nil
}
