package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/jmoiron/sqlx"

	"kantin/internal/config"
	"kantin/internal/domain"
	"kantin/internal/events"
	applog "kantin/internal/log"
	"kantin/internal/media"
	"kantin/internal/repos"
	"kantin/internal/services"
)

type Deps struct {
	Auth *services.AuthService

	AuthHandler   *AuthHandler
	KioskHandler  *KioskHandler
	SellerHandler *SellerHandler
	AdminHandler  *AdminHandler
	MediaHandler  *MediaHandler

	// Limits; zero disables the limiter.
	LoginMax int
	ProofMax int
}

func NewDeps(db *sqlx.DB, cfg config.Config, engine *services.Engine, store *media.Store, pub events.Publisher) *Deps {
	userRepo := repos.NewUserRepo(db)
	catRepo := repos.NewCategoryRepo(db)
	prodRepo := repos.NewProductRepo(db)
	txRepo := repos.NewTransactionRepo(db)
	wdRepo := repos.NewWithdrawalRepo(db)

	authSvc := services.NewAuthService(userRepo)
	catalogSvc := services.NewCatalogService(catRepo, prodRepo)
	payoutSvc := services.NewPayoutService(txRepo, wdRepo, pub)
	adminSvc := &services.AdminService{
		Users: userRepo, Prods: prodRepo, Txns: txRepo, Wds: wdRepo,
		Audit: repos.NewFailedValidationRepo(db), QRIS: repos.NewQRISRepo(db),
	}
	sellerSvc := &services.SellerService{Txns: txRepo, Wds: wdRepo, Prods: prodRepo}

	return &Deps{
		Auth:         authSvc,
		AuthHandler:  &AuthHandler{Auth: authSvc, CookieSecure: cfg.CookieSecure},
		KioskHandler: &KioskHandler{Engine: engine, CookieSecure: cfg.CookieSecure},
		SellerHandler: &SellerHandler{
			Auth: authSvc, Catalog: catalogSvc, Payout: payoutSvc, Seller: sellerSvc, Media: store,
		},
		AdminHandler: &AdminHandler{Admin: adminSvc, Payout: payoutSvc, Catalog: catalogSvc, Media: store},
		MediaHandler: &MediaHandler{Store: store},
		LoginMax:     5,
		ProofMax:     10,
	}
}

func (d *Deps) limit(n int, exp time.Duration, action string, reached fiber.Handler) fiber.Handler {
	if n <= 0 {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	return limiter.New(limiter.Config{
		Max:        n,
		Expiration: exp,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP() + "|" + action
		},
		LimitReached: func(c *fiber.Ctx) error {
			applog.Security(c, "rate."+action+".hit", nil)
			return reached(c)
		},
	})
}

// Register mounts every application route on app. Global middleware
// (request id, helmet, csrf, access log) is the caller's business.
func (d *Deps) Register(app *fiber.App) {
	app.Get("/healthz", func(c *fiber.Ctx) error { return c.JSON(fiber.Map{"ok": true}) })
	app.Get("/media/*", d.MediaHandler.Serve)

	// Kiosk
	app.Get("/", func(c *fiber.Ctx) error { return c.Redirect("/kiosk") })
	app.Get("/kiosk", d.KioskHandler.Page)
	k := app.Group("/api/v1/kiosk")
	k.Get("/catalog", d.KioskHandler.Catalog)
	k.Get("/session", d.KioskHandler.Session)
	k.Post("/cart", d.KioskHandler.AddToCart)
	k.Post("/cart/quantity", d.KioskHandler.Quantity)
	k.Post("/cart/open", d.KioskHandler.OpenCart)
	k.Post("/details", d.KioskHandler.Details)
	k.Post("/payment", d.KioskHandler.Payment)
	k.Post("/capture/start", d.KioskHandler.StartCapture)
	k.Post("/capture/frame", d.KioskHandler.CaptureFrame)
	k.Post("/capture/cancel", d.KioskHandler.CancelCapture)
	k.Post("/proof", d.limit(d.ProofMax, time.Minute, "proof", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "Terlalu banyak percobaan, tunggu sebentar"})
	}), d.KioskHandler.Proof)
	k.Post("/retry", d.KioskHandler.Retry)
	k.Post("/cancel", d.KioskHandler.Cancel)
	k.Post("/ack", d.KioskHandler.Acknowledge)

	// Auth routes (login throttled)
	app.Get("/login", d.AuthHandler.LoginForm)
	app.Post("/login", d.limit(d.LoginMax, 10*time.Minute, "login", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusTooManyRequests).Render("login", fiber.Map{"Err": "Terlalu banyak percobaan. Coba lagi nanti."})
	}), d.AuthHandler.Login)
	app.Post("/logout", d.AuthHandler.Logout)

	// Seller
	sellerOnly := RequireRole(d.Auth, domain.RoleSeller)
	app.Get("/seller", sellerOnly, d.AuthHandler.Dashboard)
	s := app.Group("/seller/api", sellerOnly)
	s.Get("/stats", d.SellerHandler.Stats)
	s.Get("/transactions", d.SellerHandler.Transactions)
	s.Get("/categories", d.SellerHandler.Categories)
	s.Get("/products", d.SellerHandler.Products)
	s.Post("/products", d.SellerHandler.SaveProduct)
	s.Post("/products/image", d.SellerHandler.UploadImage)
	s.Put("/products/:id", d.SellerHandler.SaveProduct)
	s.Delete("/products/:id", d.SellerHandler.DeleteProduct)
	s.Post("/products/:id/toggle", d.SellerHandler.ToggleProduct)
	s.Get("/withdrawals", d.SellerHandler.Withdrawals)
	s.Post("/withdrawals", d.SellerHandler.RequestWithdrawal)
	s.Post("/password", d.SellerHandler.ChangePassword)

	// Admin
	adminOnly := RequireRole(d.Auth, domain.RoleAdmin)
	app.Get("/admin", adminOnly, d.AuthHandler.Dashboard)
	a := app.Group("/admin/api", adminOnly)
	a.Get("/stats", d.AdminHandler.Stats)
	a.Get("/sellers", d.AdminHandler.Sellers)
	a.Post("/sellers", d.AdminHandler.CreateSeller)
	a.Put("/sellers/:id", d.AdminHandler.UpdateSeller)
	a.Delete("/sellers/:id", d.AdminHandler.DeleteSeller)
	a.Get("/transactions", d.AdminHandler.Transactions)
	a.Post("/transactions/:id/status", d.AdminHandler.UpdateTransactionStatus)
	a.Get("/withdrawals", d.AdminHandler.Withdrawals)
	a.Post("/withdrawals/:id/approve", d.AdminHandler.ApproveWithdrawal)
	a.Post("/withdrawals/:id/reject", d.AdminHandler.RejectWithdrawal)
	a.Get("/failed-validations", d.AdminHandler.FailedValidations)
	a.Get("/qris", d.AdminHandler.QRIS)
	a.Post("/qris", d.AdminHandler.UpdateQRIS)
	a.Get("/categories", d.AdminHandler.Categories)
	a.Post("/categories", d.AdminHandler.CreateCategory)
	a.Delete("/categories/:id", d.AdminHandler.DeleteCategory)

	// 404
	app.Use(func(c *fiber.Ctx) error {
		if isAPI(c) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Tidak ditemukan"})
		}
		return c.Status(fiber.StatusNotFound).Render("notfound", fiber.Map{"Message": "Halaman tidak ditemukan"})
	})
}
