package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	applog "kantin/internal/log"
	"kantin/internal/services"
	"kantin/internal/validate"
)

// KioskHandler exposes the checkout engine to the kiosk front end. Each
// browser is one kiosk session, identified by the kid cookie.
type KioskHandler struct {
	Engine       *services.Engine
	CookieSecure bool
}

func (h *KioskHandler) session(c *fiber.Ctx) *services.Session {
	kid := c.Cookies("kid")
	if _, ok := validate.ID(kid); !ok {
		kid = uuid.NewString()
		c.Cookie(&fiber.Cookie{
			Name:     "kid",
			Value:    kid,
			Path:     "/",
			HTTPOnly: true,
			SameSite: fiber.CookieSameSiteStrictMode,
			Secure:   h.CookieSecure,
		})
	}
	c.Locals("kiosk", kid)
	return h.Engine.Session(kid)
}

func (h *KioskHandler) snapshot(c *fiber.Ctx, s *services.Session, extra fiber.Map) error {
	body := fiber.Map{"session": s.Snapshot()}
	for k, v := range extra {
		body[k] = v
	}
	return c.JSON(body)
}

// GET /kiosk
func (h *KioskHandler) Page(c *fiber.Ctx) error {
	s := h.session(c)
	return render(c, "kiosk", fiber.Map{"KioskID": s.ID})
}

// GET /api/v1/kiosk/catalog?category=&q=
func (h *KioskHandler) Catalog(c *fiber.Ctx) error {
	q, ok := validate.Q(c.Query("q"))
	if !ok {
		return badRequest(c, "q", "Kata kunci tidak valid")
	}
	view, err := h.Engine.ListCatalog(c.UserContext(), c.Query("category"), q)
	if err != nil {
		return fail(c, "kiosk.catalog", err)
	}
	return c.JSON(view)
}

// GET /api/v1/kiosk/session
func (h *KioskHandler) Session(c *fiber.Ctx) error {
	return h.snapshot(c, h.session(c), nil)
}

type cartInput struct {
	ProductID string `json:"product_id" form:"product_id"`
	Quantity  *int   `json:"quantity" form:"quantity"`
	Delta     int    `json:"delta" form:"delta"`
}

// POST /api/v1/kiosk/cart
func (h *KioskHandler) AddToCart(c *fiber.Ctx) error {
	var in cartInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "body", "Permintaan tidak valid")
	}
	id, ok := validate.ID(in.ProductID)
	if !ok {
		return badRequest(c, "product_id", "Produk tidak valid")
	}
	s := h.session(c)
	sig, err := s.AddToCart(c.UserContext(), id)
	if err != nil {
		return fail(c, "kiosk.cart.add", err)
	}
	return h.snapshot(c, s, fiber.Map{"stock": sig})
}

// POST /api/v1/kiosk/cart/quantity sets an absolute quantity or applies a
// delta; zero removes the line.
func (h *KioskHandler) Quantity(c *fiber.Ctx) error {
	var in cartInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "body", "Permintaan tidak valid")
	}
	id, ok := validate.ID(in.ProductID)
	if !ok {
		return badRequest(c, "product_id", "Produk tidak valid")
	}
	s := h.session(c)
	var (
		sig services.StockSignal
		err error
	)
	switch {
	case in.Quantity != nil:
		if *in.Quantity < 0 {
			return badRequest(c, "quantity", "Jumlah tidak valid")
		}
		sig, err = s.SetQuantity(id, *in.Quantity)
	case in.Delta != 0:
		sig, err = s.AdjustQuantity(id, in.Delta)
	default:
		return badRequest(c, "quantity", "Jumlah tidak valid")
	}
	if err != nil {
		return fail(c, "kiosk.cart.quantity", err)
	}
	return h.snapshot(c, s, fiber.Map{"stock": sig})
}

// POST /api/v1/kiosk/cart/open
func (h *KioskHandler) OpenCart(c *fiber.Ctx) error {
	s := h.session(c)
	if err := s.OpenCart(); err != nil {
		return fail(c, "kiosk.cart.open", err)
	}
	return h.snapshot(c, s, nil)
}

// POST /api/v1/kiosk/details
func (h *KioskHandler) Details(c *fiber.Ctx) error {
	s := h.session(c)
	if err := s.ProceedToDetails(); err != nil {
		return fail(c, "kiosk.details", err)
	}
	return h.snapshot(c, s, nil)
}

// POST /api/v1/kiosk/payment with the customer name.
func (h *KioskHandler) Payment(c *fiber.Ctx) error {
	var in struct {
		CustomerName string `json:"customer_name" form:"customer_name"`
	}
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "body", "Permintaan tidak valid")
	}
	name, ok := validate.CustomerName(in.CustomerName)
	if !ok {
		return badRequest(c, "customer_name", "Nama pemesan wajib diisi, maksimal 50 karakter")
	}
	s := h.session(c)
	if err := s.SetCustomerName(name); err != nil {
		return fail(c, "kiosk.payment", err)
	}
	pd, err := s.ProceedToPayment(c.UserContext())
	if err != nil {
		return fail(c, "kiosk.payment", err)
	}
	return h.snapshot(c, s, fiber.Map{"payment": pd})
}

// POST /api/v1/kiosk/capture/start
func (h *KioskHandler) StartCapture(c *fiber.Ctx) error {
	s := h.session(c)
	if err := s.StartCapture(); err != nil {
		return fail(c, "kiosk.capture.start", err)
	}
	return h.snapshot(c, s, nil)
}

// POST /api/v1/kiosk/capture/cancel
func (h *KioskHandler) CancelCapture(c *fiber.Ctx) error {
	s := h.session(c)
	if err := s.CancelCapture(); err != nil {
		return fail(c, "kiosk.capture.cancel", err)
	}
	return h.snapshot(c, s, nil)
}

// POST /api/v1/kiosk/capture/frame
func (h *KioskHandler) CaptureFrame(c *fiber.Ctx) error {
	s := h.session(c)
	out, err := s.CaptureFrame(c.UserContext())
	return h.outcome(c, s, "kiosk.capture.frame", out, err)
}

// POST /api/v1/kiosk/proof (multipart field "proof")
func (h *KioskHandler) Proof(c *fiber.Ctx) error {
	data, mime, err := readImage(c, "proof")
	if err != nil {
		return fail(c, "kiosk.proof", err)
	}
	s := h.session(c)
	out, err := s.SubmitUpload(c.UserContext(), data, mime)
	return h.outcome(c, s, "kiosk.proof", out, err)
}

func (h *KioskHandler) outcome(c *fiber.Ctx, s *services.Session, action string, out services.Outcome, err error) error {
	if err != nil {
		return fail(c, action, err)
	}
	if out.Accepted {
		applog.Audit(c, action+".accepted", map[string]any{"order_ref": out.OrderRef})
	}
	return h.snapshot(c, s, fiber.Map{"outcome": out})
}

// POST /api/v1/kiosk/retry
func (h *KioskHandler) Retry(c *fiber.Ctx) error {
	s := h.session(c)
	if err := s.Retry(); err != nil {
		return fail(c, "kiosk.retry", err)
	}
	return h.snapshot(c, s, nil)
}

// POST /api/v1/kiosk/cancel
func (h *KioskHandler) Cancel(c *fiber.Ctx) error {
	s := h.session(c)
	s.Cancel()
	return h.snapshot(c, s, nil)
}

// POST /api/v1/kiosk/ack
func (h *KioskHandler) Acknowledge(c *fiber.Ctx) error {
	s := h.session(c)
	if err := s.Acknowledge(); err != nil {
		return fail(c, "kiosk.ack", err)
	}
	return h.snapshot(c, s, nil)
}
