package main

import (
	"context"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/csrf"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	html "github.com/gofiber/template/html/v2"

	"kantin/internal/camera"
	"kantin/internal/config"
	"kantin/internal/events"
	"kantin/internal/http/handlers"
	applog "kantin/internal/log"
	"kantin/internal/media"
	"kantin/internal/repos"
	"kantin/internal/services"
	"kantin/internal/verify"
)

func main() {
	cfg := config.Load()

	// Optional file logging
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			log.Printf("[warn] could not open log file %s: %v", cfg.LogFile, err)
		} else {
			mw := io.MultiWriter(os.Stdout, f)
			log.SetOutput(mw)
		}
	}

	db, err := repos.OpenDB(cfg.DBDSN)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	mediaDir := cfg.MediaDir
	if !filepath.IsAbs(mediaDir) {
		if abs, err := filepath.Abs(mediaDir); err == nil {
			mediaDir = abs
		}
	}
	store := media.NewStore(mediaDir)
	log.Printf("[static] /media  -> %s", mediaDir)

	// ---------- Verification gateway ----------
	var gw verify.Gateway
	if cfg.GeminiAPIKey != "" {
		gw = verify.NewGemini(cfg.GeminiBaseURL, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GatewayTimeout)
	} else {
		log.Printf("[verify] GEMINI_API_KEY not set, using simulator (seed=%d reject=%.2f)", cfg.SimSeed, cfg.SimRejectRate)
		gw = verify.NewSimulator(cfg.SimSeed, cfg.SimRejectRate, cfg.SimDelay)
	}
	var marks verify.ProofMarks = verify.NewMemoryMarks()
	if cfg.RedisAddr != "" {
		rdb := verify.NewRedisClient(cfg.RedisAddr)
		defer rdb.Close()
		marks = verify.NewRedisMarks(rdb)
	}
	gw = verify.NewReplayGuard(gw, marks, cfg.ProofReplayTTL)

	// ---------- Camera ----------
	var cam camera.Device = camera.None{}
	if cfg.CameraSnapshotPath != "" {
		cam = camera.NewFileDevice(cfg.CameraSnapshotPath)
	}

	// ---------- Ledger events ----------
	var pub events.Publisher = events.Nop{}
	if len(cfg.KafkaBrokers) > 0 {
		p := events.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic, 256)
		p.Start()
		defer func() {
			if err := p.Close(); err != nil {
				log.Printf("[events] close: %v", err)
			}
		}()
		pub = p
	}

	// ---------- Checkout engine ----------
	prodRepo := repos.NewProductRepo(db)
	engine := services.NewEngine(services.EngineConfig{
		Catalog:            prodRepo,
		Ledger:             repos.NewTransactionRepo(db),
		QRIS:               repos.NewQRISRepo(db),
		Audit:              repos.NewFailedValidationRepo(db),
		Proofs:             store,
		Gateway:            gw,
		Camera:             cam,
		Events:             pub,
		ResultDisplayDelay: cfg.ResultDisplayDelay,
	})
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		t := time.NewTicker(5 * time.Minute)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if n := engine.Sweep(30 * time.Minute); n > 0 {
					applog.Info(nil, "kiosk.sweep", map[string]any{"removed": n})
				}
			}
		}
	}()

	// Templates & app
	views := html.New("./web/templates", ".html")
	views.Reload(true)

	app := fiber.New(fiber.Config{
		Views:        views,
		ErrorHandler: handlers.ErrorHandler,
		BodyLimit:    handlers.MaxUpload + 1<<20,
	})

	deps := handlers.NewDeps(db, cfg, engine, store, pub)

	// ---------- Middlewares ----------
	app.Use(requestid.New())
	app.Use(logger.New())
	app.Use(helmet.New())
	app.Use(handlers.AttachUser(deps.Auth))
	app.Use(limiter.New(limiter.Config{
		Max:        120,
		Expiration: time.Minute,
		Next: func(c *fiber.Ctx) bool {
			p := string(c.Request().URI().Path())
			return strings.HasPrefix(p, "/static/") || strings.HasPrefix(p, "/media/")
		},
	}))
	app.Use(csrf.New(csrf.Config{
		CookieName:     "csrf_",
		CookieSameSite: "Lax",
		CookieSecure:   cfg.CookieSecure,
		// dashboards send the token as a header, the login form as a field
		Extractor: func(c *fiber.Ctx) (string, error) {
			if tok := c.Get("X-CSRF-Token"); tok != "" {
				return tok, nil
			}
			return csrf.CsrfFromForm("csrf")(c)
		},
		// the kiosk API carries no credentials
		Next: func(c *fiber.Ctx) bool {
			return strings.HasPrefix(c.Path(), "/api/v1/kiosk/")
		},
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			applog.Security(c, "csrf.fail", map[string]any{"err": err.Error()})
			return c.Status(fiber.StatusForbidden).Render("notfound", fiber.Map{"Message": "Pemeriksaan keamanan gagal. Muat ulang halaman lalu coba lagi."})
		},
	}))
	app.Use(func(c *fiber.Ctx) error {
		if tok, ok := c.Locals("csrf").(string); ok {
			c.Locals("CSRFToken", tok)
		}
		return c.Next()
	})

	app.Static("/static", "./web/static")
	deps.Register(app)

	go func() {
		<-ctx.Done()
		log.Printf("[server] shutting down")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("[server] shutdown: %v", err)
		}
	}()

	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Printf("[server] %v", err)
	}
}
