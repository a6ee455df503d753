package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"kantin/internal/camera"
	"kantin/internal/domain"
	"kantin/internal/events"
	applog "kantin/internal/log"
	"kantin/internal/media"
	"kantin/internal/repos"
	"kantin/internal/verify"
)

type State string

const (
	StateIdle       State = "idle"
	StateCart       State = "cart"
	StateDetails    State = "details"
	StatePayment    State = "payment"
	StateCapturing  State = "capturing"
	StateProcessing State = "processing"
	StateSuccess    State = "result_success"
	StateFailure    State = "result_failure"
)

var (
	ErrEmptyCart            = errors.New("cart is empty")
	ErrMissingCustomerName  = errors.New("customer name is required")
	ErrCameraUnavailable    = errors.New("camera unavailable, upload the proof instead")
	ErrVerificationInFlight = errors.New("a verification is already in progress")
	ErrCheckoutCancelled    = errors.New("checkout was cancelled before verification finished")
	ErrCommitFailed         = errors.New("payment verified but the sale could not be recorded")
	ErrInvalidState         = errors.New("action not allowed at this checkout step")
	ErrAuditFailed          = errors.New("payment rejected but the attempt could not be recorded")
)

func stateErr(op string, s State) error { return fmt.Errorf("%w: %s while %s", ErrInvalidState, op, s) }

// Stores the engine depends on. The repos types satisfy them.
type (
	CatalogReader interface {
		Search(ctx context.Context, category, q string) ([]domain.Product, error)
		Get(ctx context.Context, id string) (domain.Product, error)
	}
	SaleLedger interface {
		CommitSale(ctx context.Context, txns []domain.Transaction, decs []repos.StockDecrement) error
	}
	QRISReader interface {
		Get(ctx context.Context) (domain.QRISConfig, error)
	}
	AuditLog interface {
		Create(ctx context.Context, v domain.FailedValidation) error
	}
	ProofStore interface {
		Save(kind string, data []byte, mime string) (string, error)
		Remove(ref string) error
	}
)

type EngineConfig struct {
	Catalog CatalogReader
	Ledger  SaleLedger
	QRIS    QRISReader
	Audit   AuditLog
	Proofs  ProofStore
	Gateway verify.Gateway
	Camera  camera.Device
	Events  events.Publisher

	// ResultDisplayDelay is how long a success result stays on screen.
	ResultDisplayDelay time.Duration
	// AfterFunc schedules the return to idle; time.AfterFunc when nil.
	AfterFunc func(d time.Duration, f func()) (stop func() bool)
}

// Engine owns one checkout Session per kiosk.
type Engine struct {
	cfg EngineConfig

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Camera == nil {
		cfg.Camera = camera.None{}
	}
	if cfg.Events == nil {
		cfg.Events = events.Nop{}
	}
	if cfg.AfterFunc == nil {
		cfg.AfterFunc = func(d time.Duration, f func()) func() bool { return time.AfterFunc(d, f).Stop }
	}
	return &Engine{cfg: cfg, sessions: map[string]*Session{}}
}

// Session returns the kiosk's session, creating an idle one on first use.
func (e *Engine) Session(kioskID string) *Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[kioskID]
	if !ok {
		s = &Session{ID: kioskID, eng: e}
		s.reset()
		e.sessions[kioskID] = s
	}
	s.touched = time.Now()
	return s
}

// Sweep forgets sessions untouched for longer than maxIdle. An abandoned
// checkout is cancelled first, which releases the camera. Sessions waiting on
// the gateway are left alone.
func (e *Engine) Sweep(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for id, s := range e.sessions {
		if s.touched.After(cutoff) {
			continue
		}
		s.mu.Lock()
		if s.state == StateProcessing {
			s.mu.Unlock()
			continue
		}
		if s.state != StateIdle || !s.cart.Empty() {
			applog.Info(nil, "checkout.swept", map[string]any{"kiosk": id, "from": string(s.state)})
		}
		s.reset()
		s.mu.Unlock()
		delete(e.sessions, id)
		n++
	}
	return n
}

type CatalogView struct {
	Products   []domain.Product `json:"products"`
	Categories []string         `json:"categories"`
}

// ListCatalog returns purchasable products matching category and query, plus
// every category that currently has something to sell.
func (e *Engine) ListCatalog(ctx context.Context, category, q string) (CatalogView, error) {
	prods, err := e.cfg.Catalog.Search(ctx, category, q)
	if err != nil {
		return CatalogView{}, err
	}
	all := prods
	if (category != "" && category != "all") || strings.TrimSpace(q) != "" {
		if all, err = e.cfg.Catalog.Search(ctx, "", ""); err != nil {
			return CatalogView{}, err
		}
	}
	seen := map[string]bool{}
	cats := []string{}
	for _, p := range all {
		if !seen[p.Category] {
			seen[p.Category] = true
			cats = append(cats, p.Category)
		}
	}
	sort.Strings(cats)
	return CatalogView{Products: prods, Categories: cats}, nil
}

// PaymentDisplay is frozen when the customer reaches the payment step.
type PaymentDisplay struct {
	QRISImageURL string `json:"qris_image_url"`
	MerchantName string `json:"merchant_name"`
	Total        int64  `json:"total"`
	TotalLabel   string `json:"total_label"`
}

type LineView struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	ImageURL  string `json:"image_url"`
	SellerID  string `json:"seller_id"`
	Price     int64  `json:"price"`
	Quantity  int    `json:"quantity"`
	Stock     int    `json:"stock"`
	Subtotal  int64  `json:"subtotal"`
}

type Snapshot struct {
	KioskID       string          `json:"kiosk_id"`
	State         State           `json:"state"`
	Lines         []LineView      `json:"lines"`
	ItemCount     int             `json:"item_count"`
	Total         int64           `json:"total"`
	TotalLabel    string          `json:"total_label"`
	CustomerName  string          `json:"customer_name"`
	Payment       *PaymentDisplay `json:"payment,omitempty"`
	Attempts      int             `json:"attempts"`
	LastReason    string          `json:"last_reason,omitempty"`
	StockExceeded bool            `json:"stock_exceeded"`
	OrderRef      string          `json:"order_ref,omitempty"`
	CameraActive  bool            `json:"camera_active"`
}

// Outcome is the result of one verification attempt.
type Outcome struct {
	Accepted     bool                 `json:"accepted"`
	Reason       string               `json:"reason,omitempty"`
	OrderRef     string               `json:"order_ref,omitempty"`
	Transactions []domain.Transaction `json:"transactions,omitempty"`
	State        State                `json:"state"`
}

// Session is one kiosk's checkout. All methods are safe for concurrent use.
type Session struct {
	ID  string
	eng *Engine

	mu            sync.Mutex
	state         State
	cart          Cart
	customer      string
	payment       *PaymentDisplay
	attempts      int
	lastReason    string
	stockExceeded bool
	orderRef      string
	cameraOpen    bool
	gen           uint64
	stopReset     func() bool
	touched       time.Time // guarded by Engine.mu
}

// reset returns to idle with nothing in the cart. Caller holds mu.
func (s *Session) reset() {
	if s.stopReset != nil {
		s.stopReset()
		s.stopReset = nil
	}
	s.releaseCamera()
	s.gen++
	s.state = StateIdle
	s.cart.Clear()
	s.customer = ""
	s.payment = nil
	s.attempts = 1
	s.lastReason = ""
	s.stockExceeded = false
	s.orderRef = ""
}

func (s *Session) releaseCamera() {
	if !s.cameraOpen {
		return
	}
	s.cameraOpen = false
	if err := s.eng.cfg.Camera.Close(); err != nil {
		applog.Error(nil, "checkout.camera.release", err, map[string]any{"kiosk": s.ID})
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	lines := s.cart.Lines()
	views := make([]LineView, len(lines))
	for i, l := range lines {
		views[i] = LineView{
			ProductID: l.Product.ID, Name: l.Product.Name, ImageURL: l.Product.ImageURL,
			SellerID: l.Product.SellerID, Price: l.Product.Price, Quantity: l.Quantity,
			Stock: l.Product.Stock, Subtotal: l.Subtotal(),
		}
	}
	var pay *PaymentDisplay
	if s.payment != nil {
		p := *s.payment
		pay = &p
	}
	total := s.cart.Total()
	return Snapshot{
		KioskID: s.ID, State: s.state, Lines: views, ItemCount: s.cart.Count(),
		Total: total, TotalLabel: domain.FormatRupiah(total), CustomerName: s.customer,
		Payment: pay, Attempts: s.attempts, LastReason: s.lastReason,
		StockExceeded: s.stockExceeded, OrderRef: s.orderRef, CameraActive: s.cameraOpen,
	}
}

func (s *Session) editable() bool { return s.state == StateIdle || s.state == StateCart }

// AddToCart adds one unit of the product, looked up fresh from the catalog.
func (s *Session) AddToCart(ctx context.Context, productID string) (StockSignal, error) {
	p, err := s.eng.cfg.Catalog.Get(ctx, productID)
	if errors.Is(err, repos.ErrNotFound) {
		return StockSignal{}, ErrProductUnavailable
	}
	if err != nil {
		return StockSignal{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.editable() {
		return StockSignal{}, stateErr("add to cart", s.state)
	}
	sig, err := s.cart.Add(p)
	if err != nil {
		return sig, err
	}
	s.stockExceeded = sig.Exceeded
	return sig, nil
}

func (s *Session) SetQuantity(productID string, qty int) (StockSignal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.editable() {
		return StockSignal{}, stateErr("change quantity", s.state)
	}
	sig := s.cart.SetQuantity(productID, qty)
	s.stockExceeded = sig.Exceeded
	return sig, nil
}

func (s *Session) AdjustQuantity(productID string, delta int) (StockSignal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.editable() {
		return StockSignal{}, stateErr("change quantity", s.state)
	}
	sig := s.cart.Adjust(productID, delta)
	s.stockExceeded = sig.Exceeded
	return sig, nil
}

func (s *Session) Remove(productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.editable() {
		return stateErr("remove item", s.state)
	}
	s.cart.Remove(productID)
	s.stockExceeded = false
	return nil
}

// OpenCart moves to the cart review step. Also used to step back from details.
func (s *Session) OpenCart() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateIdle, StateCart, StateDetails:
	default:
		return stateErr("open cart", s.state)
	}
	if s.cart.Empty() {
		return ErrEmptyCart
	}
	s.state = StateCart
	return nil
}

func (s *Session) ProceedToDetails() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateCart {
		return stateErr("enter details", s.state)
	}
	if s.cart.Empty() {
		return ErrEmptyCart
	}
	s.state = StateDetails
	return nil
}

func (s *Session) SetCustomerName(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateDetails {
		return stateErr("set name", s.state)
	}
	s.customer = strings.TrimSpace(name)
	return nil
}

// ProceedToPayment freezes the QRIS target and the cart total for this checkout.
func (s *Session) ProceedToPayment(ctx context.Context) (PaymentDisplay, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateDetails {
		return PaymentDisplay{}, stateErr("proceed to payment", s.state)
	}
	if s.customer == "" {
		return PaymentDisplay{}, ErrMissingCustomerName
	}
	if s.cart.Empty() {
		return PaymentDisplay{}, ErrEmptyCart
	}
	q, err := s.eng.cfg.QRIS.Get(ctx)
	if err != nil {
		return PaymentDisplay{}, fmt.Errorf("load qris: %w", err)
	}
	total := s.cart.Total()
	s.payment = &PaymentDisplay{
		QRISImageURL: q.ImageURL, MerchantName: q.MerchantName,
		Total: total, TotalLabel: domain.FormatRupiah(total),
	}
	s.state = StatePayment
	return *s.payment, nil
}

// StartCapture takes the camera. When the device cannot be opened the session
// stays in payment so the customer can upload instead.
func (s *Session) StartCapture() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateProcessing:
		return ErrVerificationInFlight
	case StatePayment:
	default:
		return stateErr("start camera", s.state)
	}
	if err := s.eng.cfg.Camera.Open(); err != nil {
		applog.Info(nil, "checkout.camera.unavailable", map[string]any{"kiosk": s.ID, "err": err.Error()})
		return fmt.Errorf("%w: %v", ErrCameraUnavailable, err)
	}
	s.cameraOpen = true
	s.state = StateCapturing
	return nil
}

func (s *Session) CancelCapture() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateCapturing {
		return stateErr("close camera", s.state)
	}
	s.releaseCamera()
	s.state = StatePayment
	return nil
}

// CaptureFrame grabs the current frame as JPEG, releases the camera and
// verifies the frame as the payment proof.
func (s *Session) CaptureFrame(ctx context.Context) (Outcome, error) {
	s.mu.Lock()
	switch s.state {
	case StateProcessing:
		s.mu.Unlock()
		return Outcome{State: StateProcessing}, ErrVerificationInFlight
	case StateCapturing:
	default:
		st := s.state
		s.mu.Unlock()
		return Outcome{State: st}, stateErr("capture", st)
	}
	frame, err := s.eng.cfg.Camera.Frame(ctx)
	s.releaseCamera()
	if err != nil {
		s.state = StatePayment
		s.mu.Unlock()
		return Outcome{State: StatePayment}, fmt.Errorf("%w: %v", ErrCameraUnavailable, err)
	}
	return s.verifyLocked(ctx, frame, "image/jpeg")
}

// SubmitUpload verifies an uploaded proof image. From capturing it also
// releases the camera.
func (s *Session) SubmitUpload(ctx context.Context, image []byte, mime string) (Outcome, error) {
	s.mu.Lock()
	switch s.state {
	case StateProcessing:
		s.mu.Unlock()
		return Outcome{State: StateProcessing}, ErrVerificationInFlight
	case StatePayment, StateCapturing:
	default:
		st := s.state
		s.mu.Unlock()
		return Outcome{State: st}, stateErr("submit proof", st)
	}
	s.releaseCamera()
	if mime == "" {
		mime = "image/jpeg"
	}
	return s.verifyLocked(ctx, image, mime)
}

type attempt struct {
	gen      uint64
	image    []byte
	mime     string
	customer string
	total    int64
	merchant string
	attempts int
	cart     Cart
}

// verifyLocked is entered with mu held and returns with it released. The
// gateway call runs unlocked so Cancel and Snapshot stay responsive.
func (s *Session) verifyLocked(ctx context.Context, image []byte, mime string) (Outcome, error) {
	s.state = StateProcessing
	a := attempt{
		gen: s.gen, image: image, mime: mime, customer: s.customer,
		total: s.cart.Total(), attempts: s.attempts, cart: Cart{lines: s.cart.Lines()},
	}
	if s.payment != nil {
		a.total = s.payment.Total
		a.merchant = s.payment.MerchantName
	}
	s.mu.Unlock()

	// The call is not aborted when the request goes away; a result that
	// arrives after Cancel is dropped below.
	vctx, span := otel.Tracer("kantin/checkout").Start(context.WithoutCancel(ctx), "checkout.verify")
	span.SetAttributes(
		attribute.String("kiosk.id", s.ID),
		attribute.Int64("checkout.total", a.total),
		attribute.Int("checkout.attempt", a.attempts),
	)
	v := s.eng.cfg.Gateway.Verify(vctx, verify.Request{
		Image: image, MIME: mime, ExpectedAmount: a.total, MerchantName: a.merchant,
	})
	span.SetAttributes(attribute.Bool("proof.accepted", v.Accepted))
	span.End()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != a.gen || s.state != StateProcessing {
		applog.Info(nil, "checkout.verify.ignored", map[string]any{"kiosk": s.ID, "accepted": v.Accepted})
		if v.Accepted {
			s.releaseProof(vctx, image)
		}
		return Outcome{Accepted: false, State: s.state}, ErrCheckoutCancelled
	}
	if v.Accepted {
		return s.succeed(vctx, a)
	}
	return s.fail(vctx, a, v.Reason)
}

// releaseProof lets the gateway forget an accepted proof that paid for nothing.
func (s *Session) releaseProof(ctx context.Context, image []byte) {
	if r, ok := s.eng.cfg.Gateway.(verify.Releaser); ok {
		r.Release(ctx, image)
	}
}

// fail records the rejected attempt and moves to result_failure. A lost audit
// record is returned as ErrAuditFailed; the customer can still retry.
func (s *Session) fail(ctx context.Context, a attempt, reason string) (Outcome, error) {
	if reason == "" {
		reason = verify.ReasonRejected
	}
	var ref string
	if r, err := s.eng.cfg.Proofs.Save(media.KindFailed, a.image, a.mime); err != nil {
		applog.Error(nil, "checkout.proof.save", err, map[string]any{"kiosk": s.ID})
	} else {
		ref = r
	}
	rec := domain.FailedValidation{
		ID: "fail-" + uuid.NewString(), CustomerName: a.customer, AttemptedAmount: a.total,
		FailureReason: reason, ImageURL: ref,
	}
	auditErr := s.eng.cfg.Audit.Create(ctx, rec)
	if auditErr != nil {
		applog.Error(nil, "checkout.audit", auditErr, map[string]any{"kiosk": s.ID})
	}
	applog.Security(nil, "checkout.verification_failed", map[string]any{
		"kiosk": s.ID, "amount": a.total, "reason": reason, "attempt": a.attempts,
	})
	s.state = StateFailure
	s.lastReason = reason
	out := Outcome{Accepted: false, Reason: reason, State: s.state}
	if auditErr != nil {
		return out, fmt.Errorf("%w: %v", ErrAuditFailed, auditErr)
	}
	return out, nil
}

func (s *Session) succeed(ctx context.Context, a attempt) (Outcome, error) {
	ctx, span := otel.Tracer("kantin/checkout").Start(ctx, "checkout.commit_sale")
	defer span.End()

	ref, err := s.eng.cfg.Proofs.Save(media.KindProof, a.image, a.mime)
	if err != nil {
		return s.commitFailed(ctx, span, a, err)
	}

	orderRef := "ord-" + uuid.NewString()
	created := repos.Stamp(time.Now())
	var txns []domain.Transaction
	var decs []repos.StockDecrement
	for _, g := range a.cart.BySeller() {
		t := domain.Transaction{
			ID: "trx-" + uuid.NewString(), OrderRef: orderRef, CustomerName: a.customer,
			TotalAmount: g.Total, Status: domain.TxVerified, PaymentProofURL: ref,
			VerificationAttempts: a.attempts, SellerID: g.SellerID, CreatedAt: created,
		}
		for _, l := range g.Lines {
			t.Items = append(t.Items, domain.TransactionItem{
				TransactionID: t.ID, ProductID: l.Product.ID, ProductName: l.Product.Name,
				Quantity: l.Quantity, Price: l.Product.Price, Subtotal: l.Subtotal(),
			})
			decs = append(decs, repos.StockDecrement{ProductID: l.Product.ID, Qty: l.Quantity})
		}
		txns = append(txns, t)
	}
	span.SetAttributes(attribute.String("order.ref", orderRef), attribute.Int("order.splits", len(txns)))

	if err := s.eng.cfg.Ledger.CommitSale(ctx, txns, decs); err != nil {
		_ = s.eng.cfg.Proofs.Remove(ref)
		return s.commitFailed(ctx, span, a, err)
	}

	for _, t := range txns {
		env, err := events.New(events.TransactionVerified, orderRef, t)
		if err == nil {
			err = s.eng.cfg.Events.Publish(ctx, env)
		}
		if err != nil {
			applog.Error(nil, "checkout.publish", err, map[string]any{"transaction": t.ID})
		}
	}
	applog.Audit(nil, "checkout.verified", map[string]any{
		"kiosk": s.ID, "order_ref": orderRef, "total": a.total, "sellers": len(txns), "attempt": a.attempts,
	})

	s.cart.Clear()
	s.customer = ""
	s.payment = nil
	s.lastReason = ""
	s.orderRef = orderRef
	s.state = StateSuccess
	gen := s.gen
	s.stopReset = s.eng.cfg.AfterFunc(s.eng.cfg.ResultDisplayDelay, func() { s.expire(gen) })
	return Outcome{Accepted: true, OrderRef: orderRef, Transactions: txns, State: s.state}, nil
}

func (s *Session) commitFailed(ctx context.Context, span trace.Span, a attempt, err error) (Outcome, error) {
	s.releaseProof(ctx, a.image)
	span.RecordError(err)
	span.SetStatus(codes.Error, "commit")
	applog.Error(nil, "checkout.commit", err, map[string]any{"kiosk": s.ID})
	s.reset()
	return Outcome{State: s.state}, fmt.Errorf("%w: %v", ErrCommitFailed, err)
}

func (s *Session) expire(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen == gen && s.state == StateSuccess {
		s.stopReset = nil
		s.reset()
	}
}

// Acknowledge dismisses the success screen early.
func (s *Session) Acknowledge() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateSuccess {
		return stateErr("acknowledge", s.state)
	}
	s.reset()
	return nil
}

// Retry discards the rejected proof and returns to payment for another attempt.
func (s *Session) Retry() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateFailure {
		return stateErr("retry", s.state)
	}
	s.attempts++
	s.lastReason = ""
	s.state = StatePayment
	return nil
}

// Cancel abandons the checkout from any state. An in-flight verification
// keeps running but its result is dropped.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle || !s.cart.Empty() {
		applog.Info(nil, "checkout.cancelled", map[string]any{"kiosk": s.ID, "from": string(s.state)})
	}
	s.reset()
}
