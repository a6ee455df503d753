package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kantin/internal/domain"
	"kantin/internal/repos"
	"kantin/internal/services"
)

func TestLoginByNIK(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()
	auth := services.NewAuthService(repos.NewUserRepo(db))

	sess, err := auth.Login(ctx, "sid-1", "14220148", "123456")
	require.NoError(t, err)
	assert.Equal(t, "sid-1", sess.ID)
	assert.Equal(t, "seller-1", sess.User.ID)

	u, err := auth.CurrentUser(ctx, "sid-1")
	require.NoError(t, err)
	assert.True(t, u.IsSeller())

	_, err = auth.Login(ctx, "sid-2", "14220148", "wrong")
	assert.ErrorIs(t, err, services.ErrBadCreds)
	_, err = auth.Login(ctx, "sid-2", "99999999", "123456")
	assert.ErrorIs(t, err, services.ErrBadCreds)

	require.NoError(t, auth.Logout(ctx, "sid-1"))
	_, err = auth.CurrentUser(ctx, "sid-1")
	assert.ErrorIs(t, err, repos.ErrNotFound)
}

func TestChangePassword(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()
	auth := services.NewAuthService(repos.NewUserRepo(db))

	assert.ErrorIs(t, auth.ChangePassword(ctx, "seller-2", "nope", "abcdef", "abcdef"), services.ErrBadCreds)
	assert.ErrorIs(t, auth.ChangePassword(ctx, "seller-2", "123456", "abc", "abc"), services.ErrWeakPassword)
	assert.ErrorIs(t, auth.ChangePassword(ctx, "seller-2", "123456", "abcdef", "abcdeg"), services.ErrPasswordMismatch)
	require.NoError(t, auth.ChangePassword(ctx, "seller-2", "123456", "rahasia1", "rahasia1"))

	ok, err := auth.VerifyPassword(ctx, "seller-2", "rahasia1")
	require.NoError(t, err)
	assert.True(t, ok)
	_, err = auth.Login(ctx, "sid", "14220207", "123456")
	assert.ErrorIs(t, err, services.ErrBadCreds)
}

func TestSellerCatalogOwnership(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()
	cat := services.NewCatalogService(repos.NewCategoryRepo(db), repos.NewProductRepo(db))
	seller1 := user(t, db, "seller-1")
	admin := user(t, db, "admin-1")

	own, err := cat.ListOwn(ctx, seller1)
	require.NoError(t, err)
	assert.Len(t, own, 1)

	p, err := cat.Save(ctx, seller1, domain.Product{Name: " Lemper ", Price: 4000, Stock: 10})
	require.NoError(t, err)
	assert.Equal(t, "Lemper", p.Name)
	assert.Equal(t, services.DefaultCategory, p.Category)
	assert.Equal(t, "seller-1", p.SellerID)
	assert.True(t, p.Active)

	_, err = cat.Save(ctx, seller1, domain.Product{Name: "Gratis", Price: 0})
	assert.ErrorIs(t, err, services.ErrInvalidProduct)

	_, err = cat.Save(ctx, seller1, domain.Product{ID: "prod-2", Name: "Hijack", Price: 1, Stock: 1})
	assert.ErrorIs(t, err, services.ErrForbidden)
	assert.ErrorIs(t, cat.Delete(ctx, seller1, "prod-2"), services.ErrForbidden)
	_, err = cat.ListOwn(ctx, admin)
	assert.ErrorIs(t, err, services.ErrForbidden)

	toggled, err := cat.ToggleActive(ctx, seller1, p.ID)
	require.NoError(t, err)
	assert.False(t, toggled.Active)

	p.Price = 4500
	p.Active = true
	updated, err := cat.Save(ctx, seller1, p)
	require.NoError(t, err)
	assert.EqualValues(t, 4500, updated.Price)

	require.NoError(t, cat.Delete(ctx, seller1, p.ID))
	_, err = cat.Save(ctx, seller1, p)
	assert.ErrorIs(t, err, repos.ErrNotFound)

	_, err = cat.CreateCategory(ctx, seller1, "Kue", "")
	assert.ErrorIs(t, err, services.ErrForbidden)
	c, err := cat.CreateCategory(ctx, admin, "Kue", "Cake")
	require.NoError(t, err)
	require.NoError(t, cat.DeleteCategory(ctx, admin, c.ID))
}

func TestWithdrawalLifecycle(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()
	txns := repos.NewTransactionRepo(db)
	wds := repos.NewWithdrawalRepo(db)
	pub := &recorder{}
	payout := services.NewPayoutService(txns, wds, pub)
	seller := user(t, db, "seller-3")
	admin := user(t, db, "admin-1")
	bank := services.WithdrawalRequest{BankName: "BRI", AccountNumber: "001", AccountName: "Fauzan"}

	req := bank
	req.Amount = 10000
	_, err := payout.Request(ctx, seller, req)
	assert.ErrorIs(t, err, services.ErrInsufficientBalance)
	list, _ := wds.List(ctx, repos.WithdrawalFilter{})
	assert.Empty(t, list, "rejected requests are never recorded")

	require.NoError(t, txns.Create(ctx, domain.Transaction{
		ID: "trx-1", OrderRef: "ord-1", CustomerName: "Sari", TotalAmount: 100000,
		Status: domain.TxVerified, VerificationAttempts: 1, SellerID: "seller-3",
		Items: []domain.TransactionItem{{ProductID: "prod-5", ProductName: "Basreng", Quantity: 1, Price: 100000, Subtotal: 100000}},
	}))

	req.Amount = 9999
	_, err = payout.Request(ctx, seller, req)
	assert.ErrorIs(t, err, services.ErrBelowMinimum)
	_, err = payout.Request(ctx, seller, services.WithdrawalRequest{Amount: 20000})
	assert.ErrorIs(t, err, services.ErrMissingBankDetails)
	_, err = payout.Request(ctx, admin, req)
	assert.ErrorIs(t, err, services.ErrForbidden)

	req.Amount = 50000
	w, err := payout.Request(ctx, seller, req)
	require.NoError(t, err)
	assert.Equal(t, domain.WdPending, w.Status)
	assert.EqualValues(t, 4000, w.FeeAmount)
	assert.EqualValues(t, 46000, w.NetAmount)

	bal, err := payout.Balance(ctx, "seller-3")
	require.NoError(t, err)
	assert.EqualValues(t, 50000, bal.Available)

	_, err = payout.Approve(ctx, admin, w.ID, "", "")
	assert.ErrorIs(t, err, services.ErrMissingTransferProof)
	_, err = payout.Approve(ctx, seller, w.ID, "transfers/x.jpg", "")
	assert.ErrorIs(t, err, services.ErrForbidden)

	done, err := payout.Approve(ctx, admin, w.ID, "transfers/x.jpg", "ditransfer")
	require.NoError(t, err)
	assert.Equal(t, domain.WdCompleted, done.Status)
	assert.NotEmpty(t, done.ProcessedAt)

	_, err = payout.Reject(ctx, admin, w.ID, "late")
	assert.ErrorIs(t, err, services.ErrInvalidTransition)

	bal, _ = payout.Balance(ctx, "seller-3")
	assert.Equal(t, services.Balance{TotalSales: 100000, TotalWithdrawn: 50000, Available: 50000}, bal)

	req.Amount = 20000
	second, err := payout.Request(ctx, seller, req)
	require.NoError(t, err)
	rejected, err := payout.Reject(ctx, admin, second.ID, "rekening salah")
	require.NoError(t, err)
	assert.Equal(t, domain.WdRejected, rejected.Status)
	bal, _ = payout.Balance(ctx, "seller-3")
	assert.EqualValues(t, 50000, bal.Available, "rejected withdrawals release the hold")

	types := []string{}
	for _, e := range pub.envs {
		types = append(types, e.EventType)
	}
	assert.Equal(t, []string{"withdrawal.requested", "withdrawal.processed", "withdrawal.requested", "withdrawal.processed"}, types)

	own, err := payout.ListOwn(ctx, seller)
	require.NoError(t, err)
	assert.Len(t, own, 2)
}

func TestAdminSellers(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()
	users := repos.NewUserRepo(db)
	adm := &services.AdminService{
		Users: users, Prods: repos.NewProductRepo(db), Txns: repos.NewTransactionRepo(db),
		Wds: repos.NewWithdrawalRepo(db), Audit: repos.NewFailedValidationRepo(db), QRIS: repos.NewQRISRepo(db),
	}
	admin := user(t, db, "admin-1")
	seller := user(t, db, "seller-1")

	_, err := adm.ListSellers(ctx, seller)
	assert.ErrorIs(t, err, services.ErrForbidden)

	u, err := adm.CreateSeller(ctx, admin, services.SellerInput{FullName: "Rina", Email: "RINA@spcorner.com", NIK: "14250001"})
	require.NoError(t, err)
	assert.Equal(t, "rina@spcorner.com", u.Email)
	assert.Equal(t, domain.RoleSeller, u.Role)

	auth := services.NewAuthService(users)
	_, err = auth.Login(ctx, "sid", "14250001", repos.DefaultSellerPassword)
	assert.NoError(t, err, "new sellers start with the default password")

	_, err = adm.CreateSeller(ctx, admin, services.SellerInput{FullName: "Dup", Email: "d@x", NIK: "14250001"})
	assert.ErrorIs(t, err, services.ErrDuplicateNIK)
	_, err = adm.CreateSeller(ctx, admin, services.SellerInput{FullName: "NoNIK", Email: "n@x"})
	assert.ErrorIs(t, err, services.ErrMissingSellerFields)

	upd, err := adm.UpdateSeller(ctx, admin, u.ID, services.SellerInput{FullName: "Rina S", Email: "rina@spcorner.com", NIK: "14250001", Phone: "0812"})
	require.NoError(t, err)
	assert.Equal(t, "Rina S", upd.FullName)
	_, err = adm.UpdateSeller(ctx, admin, u.ID, services.SellerInput{FullName: "Rina", Email: "r@x", NIK: "14220148"})
	assert.ErrorIs(t, err, services.ErrDuplicateNIK)

	assert.ErrorIs(t, adm.DeleteSeller(ctx, admin, "admin-1"), services.ErrForbidden)
	require.NoError(t, adm.DeleteSeller(ctx, admin, u.ID))
	sellers, _ := adm.ListSellers(ctx, admin)
	assert.Len(t, sellers, 5)
}

func TestAdminLedgerAndConfig(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()
	txns := repos.NewTransactionRepo(db)
	audit := repos.NewFailedValidationRepo(db)
	adm := &services.AdminService{
		Users: repos.NewUserRepo(db), Prods: repos.NewProductRepo(db), Txns: txns,
		Wds: repos.NewWithdrawalRepo(db), Audit: audit, QRIS: repos.NewQRISRepo(db),
	}
	admin := user(t, db, "admin-1")

	require.NoError(t, txns.Create(ctx, domain.Transaction{
		ID: "trx-9", OrderRef: "ord-9", CustomerName: "Ani", TotalAmount: 7000,
		Status: domain.TxVerified, VerificationAttempts: 1, SellerID: "seller-3",
	}))
	require.NoError(t, audit.Create(ctx, domain.FailedValidation{ID: "f-old", CustomerName: "X", AttemptedAmount: 1, FailureReason: "r", CreatedAt: repos.Stamp(time.Now().AddDate(0, 0, -2))}))
	require.NoError(t, audit.Create(ctx, domain.FailedValidation{ID: "f-new", CustomerName: "Y", AttemptedAmount: 2, FailureReason: "r"}))

	st, err := adm.Stats(ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, services.AdminStats{TotalRevenue: 7000, TransactionCount: 1, SellerCount: 5, ProductCount: 12, FailedValidations: 2}, st)

	today, err := adm.ListFailedValidations(ctx, admin, true, time.Now())
	require.NoError(t, err)
	require.Len(t, today, 1)
	assert.Equal(t, "f-new", today[0].ID)

	cancelled, err := adm.UpdateTransactionStatus(ctx, admin, "trx-9", domain.TxCancelled, "refund")
	require.NoError(t, err)
	assert.Equal(t, domain.TxCancelled, cancelled.Status)
	_, err = adm.UpdateTransactionStatus(ctx, admin, "trx-9", domain.TxVerified, "")
	assert.ErrorIs(t, err, services.ErrInvalidTransition)
	_, err = adm.UpdateTransactionStatus(ctx, admin, "trx-9", "bogus", "")
	assert.ErrorIs(t, err, services.ErrInvalidTransition)

	_, err = adm.UpdateQRIS(ctx, admin, "qris/new.png", " ")
	assert.ErrorIs(t, err, services.ErrMissingQRISFields)
	q, err := adm.UpdateQRIS(ctx, admin, "qris/new.png", "SPS Corner 2")
	require.NoError(t, err)
	assert.Equal(t, "admin-1", q.UpdatedBy)
	got, _ := adm.QRISConfig(ctx)
	assert.Equal(t, "qris/new.png", got.ImageURL)
}

func TestSellerStats(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()
	txns := repos.NewTransactionRepo(db)
	svc := &services.SellerService{Txns: txns, Wds: repos.NewWithdrawalRepo(db), Prods: repos.NewProductRepo(db)}
	seller := user(t, db, "seller-2")

	require.NoError(t, txns.Create(ctx, domain.Transaction{
		ID: "t1", OrderRef: "o1", CustomerName: "A", TotalAmount: 30000, Status: domain.TxVerified, SellerID: "seller-2", VerificationAttempts: 1,
	}))
	require.NoError(t, txns.Create(ctx, domain.Transaction{
		ID: "t2", OrderRef: "o2", CustomerName: "B", TotalAmount: 5000, Status: domain.TxCancelled, SellerID: "seller-2", VerificationAttempts: 1,
	}))

	st, err := svc.Stats(ctx, seller)
	require.NoError(t, err)
	assert.EqualValues(t, 30000, st.Revenue)
	assert.Equal(t, 1, st.VerifiedCount)
	assert.Equal(t, 3, st.ProductCount)
	assert.EqualValues(t, 30000, st.Balance.Available)
	assert.Len(t, st.RecentSales, 2)
}
