package services_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"kantin/internal/domain"
	"kantin/internal/services"
)

func TestFee(t *testing.T) {
	cases := []struct{ amount, fee int64 }{
		{50000, 4000},
		{10000, 800},
		{12345, 988},
		{6, 0},
		{7, 1},
		{0, 0},
	}
	for _, c := range cases {
		assert.Equal(t, c.fee, services.Fee(c.amount), "amount %d", c.amount)
	}
}

func TestFeePlusNetIsExact(t *testing.T) {
	for a := int64(0); a <= 200000; a += 37 {
		assert.Equal(t, a, services.Fee(a)+services.Net(a))
	}
}

func TestFreshSellerHasZeroBalance(t *testing.T) {
	b := services.ComputeBalance("seller-9", nil, nil)
	assert.Equal(t, services.Balance{}, b)
}

func TestScenarioCBalance(t *testing.T) {
	txns := []domain.Transaction{
		{SellerID: "s", Status: domain.TxVerified, TotalAmount: 60000},
		{SellerID: "s", Status: domain.TxVerified, TotalAmount: 40000},
		{SellerID: "s", Status: domain.TxCancelled, TotalAmount: 99999},
		{SellerID: "other", Status: domain.TxVerified, TotalAmount: 70000},
	}
	wds := []domain.Withdrawal{
		{SellerID: "s", Status: domain.WdCompleted, Amount: 50000, FeeAmount: 4000, NetAmount: 46000},
		{SellerID: "s", Status: domain.WdPending, Amount: 20000},
		{SellerID: "s", Status: domain.WdRejected, Amount: 15000},
		{SellerID: "other", Status: domain.WdPending, Amount: 5000},
	}
	b := services.ComputeBalance("s", txns, wds)
	assert.Equal(t, services.Balance{TotalSales: 100000, TotalWithdrawn: 50000, PendingHold: 20000, Available: 30000}, b)
}

func TestApprovedWithdrawalStaysHeld(t *testing.T) {
	txns := []domain.Transaction{{SellerID: "s", Status: domain.TxVerified, TotalAmount: 100000}}
	wds := []domain.Withdrawal{
		{SellerID: "s", Status: domain.WdPending, Amount: 20000},
		{SellerID: "s", Status: domain.WdApproved, Amount: 30000},
	}
	b := services.ComputeBalance("s", txns, wds)
	assert.EqualValues(t, 50000, b.PendingHold)
	assert.EqualValues(t, 50000, b.Available)
}

func TestScenarioDMinimumBoundary(t *testing.T) {
	b := services.Balance{Available: 1_000_000}
	assert.NoError(t, services.ValidateWithdrawal(10000, b))
	assert.ErrorIs(t, services.ValidateWithdrawal(9999, b), services.ErrBelowMinimum)
	assert.ErrorIs(t, services.ValidateWithdrawal(1_000_001, b), services.ErrInsufficientBalance)
	assert.NoError(t, services.ValidateWithdrawal(1_000_000, b))
}

func TestCartBySellerKeepsOrder(t *testing.T) {
	var c services.Cart
	mk := func(id, seller string, price int64) domain.Product {
		return domain.Product{ID: id, SellerID: seller, Price: price, Stock: 5, Active: true}
	}
	_, _ = c.Add(mk("a", "s2", 1000))
	_, _ = c.Add(mk("b", "s1", 2000))
	_, _ = c.Add(mk("c", "s2", 500))
	_, _ = c.Add(mk("a", "s2", 1000))

	groups := c.BySeller()
	assert.Len(t, groups, 2)
	assert.Equal(t, "s2", groups[0].SellerID)
	assert.EqualValues(t, 2500, groups[0].Total)
	assert.EqualValues(t, 2000, groups[1].Total)
	assert.EqualValues(t, 4500, c.Total())
	assert.Equal(t, 4, c.Count())

	c.Remove("b")
	assert.Len(t, c.BySeller(), 1)
}
