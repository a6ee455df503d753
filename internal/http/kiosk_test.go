package handlers_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kantin/internal/domain"
	"kantin/internal/repos"
	"kantin/internal/verify"
)

type kioskResp struct {
	Session struct {
		State      string `json:"state"`
		ItemCount  int    `json:"item_count"`
		Total      int64  `json:"total"`
		TotalLabel string `json:"total_label"`
		Attempts   int    `json:"attempts"`
		LastReason string `json:"last_reason"`
		Payment    *struct {
			MerchantName string `json:"merchant_name"`
			TotalLabel   string `json:"total_label"`
		} `json:"payment"`
	} `json:"session"`
	Stock *struct {
		Exceeded  bool `json:"exceeded"`
		Available int  `json:"available"`
	} `json:"stock"`
	Outcome *struct {
		Accepted bool   `json:"accepted"`
		Reason   string `json:"reason"`
		OrderRef string `json:"order_ref"`
	} `json:"outcome"`
	Error string `json:"error"`
}

func kiosk(t *testing.T, resp *http.Response, wantStatus int) kioskResp {
	t.Helper()
	require.Equal(t, wantStatus, resp.StatusCode)
	var out kioskResp
	decode(t, resp, &out)
	return out
}

const kapi = "/api/v1/kiosk"

// walks a kiosk to the payment screen with prod-1 x3
func toPayment(t *testing.T, cl *client) kioskResp {
	t.Helper()
	kiosk(t, cl.postJSON(kapi+"/cart", map[string]any{"product_id": "prod-1"}), http.StatusOK)
	r := kiosk(t, cl.postJSON(kapi+"/cart/quantity", map[string]any{"product_id": "prod-1", "quantity": 3}), http.StatusOK)
	require.EqualValues(t, 15000, r.Session.Total)
	kiosk(t, cl.postJSON(kapi+"/cart/open", struct{}{}), http.StatusOK)
	kiosk(t, cl.postJSON(kapi+"/details", struct{}{}), http.StatusOK)
	return kiosk(t, cl.postJSON(kapi+"/payment", map[string]any{"customer_name": "Budi"}), http.StatusOK)
}

func TestKioskCheckoutAccepted(t *testing.T) {
	ta := newTestApp(t)
	cl := ta.client(t)

	s := kiosk(t, cl.get(kapi+"/session"), http.StatusOK)
	assert.Equal(t, "idle", s.Session.State)
	require.NotEmpty(t, cl.cookies["kid"], "kiosk cookie issued on first visit")

	pay := toPayment(t, cl)
	assert.Equal(t, "payment", pay.Session.State)
	require.NotNil(t, pay.Session.Payment)
	assert.Equal(t, "Rp 15.000", pay.Session.Payment.TotalLabel)
	assert.Equal(t, "SPS Corner", pay.Session.Payment.MerchantName)

	var res kioskResp
	logs := captureLogs(t, func() {
		res = kiosk(t, cl.postFile(kapi+"/proof", "proof", pngBytes(t), nil), http.StatusOK)
	})
	require.NotNil(t, res.Outcome)
	assert.True(t, res.Outcome.Accepted)
	assert.NotEmpty(t, res.Outcome.OrderRef)
	assert.Equal(t, "result_success", res.Session.State)
	assert.NotNil(t, findLog(logs, "kiosk.proof.accepted"))

	txns, err := repos.NewTransactionRepo(ta.db).List(context.Background(), repos.TransactionFilter{})
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, "Budi", txns[0].CustomerName)
	assert.EqualValues(t, 15000, txns[0].TotalAmount)
	assert.Equal(t, domain.TxVerified, txns[0].Status)
	p, err := repos.NewProductRepo(ta.db).Get(context.Background(), "prod-1")
	require.NoError(t, err)
	assert.Equal(t, 47, p.Stock)

	ack := kiosk(t, cl.postJSON(kapi+"/ack", struct{}{}), http.StatusOK)
	assert.Equal(t, "idle", ack.Session.State)
	assert.Zero(t, ack.Session.ItemCount)
}

func TestKioskRejectedThenRetry(t *testing.T) {
	ta := newTestApp(t)
	cl := ta.client(t)
	toPayment(t, cl)

	ta.gw.set(verify.Verdict{Reason: "Nominal tidak sesuai"})
	res := kiosk(t, cl.postFile(kapi+"/proof", "proof", pngBytes(t), nil), http.StatusOK)
	require.NotNil(t, res.Outcome)
	assert.False(t, res.Outcome.Accepted)
	assert.Equal(t, "Nominal tidak sesuai", res.Outcome.Reason)
	assert.Equal(t, "result_failure", res.Session.State)

	fails, err := repos.NewFailedValidationRepo(ta.db).List(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, fails, 1)
	assert.EqualValues(t, 15000, fails[0].AttemptedAmount)

	retry := kiosk(t, cl.postJSON(kapi+"/retry", struct{}{}), http.StatusOK)
	assert.Equal(t, "payment", retry.Session.State)
	assert.Equal(t, 2, retry.Session.Attempts)

	cancel := kiosk(t, cl.postJSON(kapi+"/cancel", struct{}{}), http.StatusOK)
	assert.Equal(t, "idle", cancel.Session.State)
}

func TestKioskInputValidation(t *testing.T) {
	ta := newTestApp(t)
	cl := ta.client(t)

	r := kiosk(t, cl.postJSON(kapi+"/details", struct{}{}), http.StatusConflict)
	assert.NotEmpty(t, r.Error)

	kiosk(t, cl.postJSON(kapi+"/cart", map[string]any{"product_id": "../prod-1"}), http.StatusBadRequest)
	kiosk(t, cl.postJSON(kapi+"/cart", map[string]any{"product_id": "nope"}), http.StatusConflict)
	kiosk(t, cl.postJSON(kapi+"/cart", map[string]any{"product_id": "prod-2"}), http.StatusOK)
	kiosk(t, cl.postJSON(kapi+"/cart/quantity", map[string]any{"product_id": "prod-2", "quantity": -1}), http.StatusBadRequest)

	over := kiosk(t, cl.postJSON(kapi+"/cart/quantity", map[string]any{"product_id": "prod-2", "quantity": 99}), http.StatusOK)
	require.NotNil(t, over.Stock)
	assert.True(t, over.Stock.Exceeded)
	assert.Equal(t, 30, over.Session.ItemCount)

	kiosk(t, cl.postJSON(kapi+"/cart/open", struct{}{}), http.StatusOK)
	kiosk(t, cl.postJSON(kapi+"/details", struct{}{}), http.StatusOK)
	var logs []logEntry
	logs = captureLogs(t, func() {
		kiosk(t, cl.postJSON(kapi+"/payment", map[string]any{"customer_name": "   "}), http.StatusBadRequest)
	})
	e := findLog(logs, "validation.fail")
	require.NotNil(t, e)
	assert.Equal(t, "customer_name", e.Fields["field"])

	kiosk(t, cl.postJSON(kapi+"/payment", map[string]any{"customer_name": "Sari"}), http.StatusOK)

	// not an image
	kiosk(t, cl.postFile(kapi+"/proof", "proof", []byte("hello, plain text"), nil), http.StatusBadRequest)
	kiosk(t, cl.postFile(kapi+"/proof", "", nil, map[string]string{"x": "y"}), http.StatusBadRequest)
	s := kiosk(t, cl.get(kapi+"/session"), http.StatusOK)
	assert.Equal(t, "payment", s.Session.State, "rejected uploads never reach the gateway")
}

func TestKioskCameraFallback(t *testing.T) {
	ta := newTestApp(t)
	cl := ta.client(t)
	toPayment(t, cl)

	r := kiosk(t, cl.postJSON(kapi+"/capture/start", struct{}{}), http.StatusServiceUnavailable)
	assert.Contains(t, r.Error, "unggah")
	s := kiosk(t, cl.get(kapi+"/session"), http.StatusOK)
	assert.Equal(t, "payment", s.Session.State)

	res := kiosk(t, cl.postFile(kapi+"/proof", "proof", pngBytes(t), nil), http.StatusOK)
	assert.True(t, res.Outcome.Accepted)
}

func TestKioskCatalog(t *testing.T) {
	ta := newTestApp(t)
	cl := ta.client(t)

	var view struct {
		Products   []domain.Product `json:"products"`
		Categories []string         `json:"categories"`
	}
	resp := cl.get(kapi + "/catalog?category=Snack&q=risol")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &view)
	assert.Len(t, view.Products, 4)
	assert.Equal(t, []string{"Makanan", "Snack"}, view.Categories)

	resp = cl.get(kapi + "/catalog?q=%3Cscript%3E")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestKiosksAreIsolated(t *testing.T) {
	ta := newTestApp(t)
	a, b := ta.client(t), ta.client(t)

	kiosk(t, a.postJSON(kapi+"/cart", map[string]any{"product_id": "prod-1"}), http.StatusOK)
	sb := kiosk(t, b.get(kapi+"/session"), http.StatusOK)
	assert.Equal(t, "idle", sb.Session.State)
	assert.NotEqual(t, a.cookies["kid"], b.cookies["kid"])
}
