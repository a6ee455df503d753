package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	html "github.com/gofiber/template/html/v2"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"kantin/internal/config"
	"kantin/internal/http/handlers"
	"kantin/internal/media"
	"kantin/internal/repos"
	"kantin/internal/services"
	"kantin/internal/verify"
)

type logEntry struct {
	Level  string         `json:"level"`
	Action string         `json:"action"`
	Err    string         `json:"err"`
	Fields map[string]any `json:"fields"`
}

type lockedWriter struct {
	w  *bytes.Buffer
	mu *sync.Mutex
}

func (lw *lockedWriter) Write(p []byte) (int, error) {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	return lw.w.Write(p)
}

// capture logs by temporarily replacing the standard logger output
func captureLogs(t *testing.T, fn func()) []logEntry {
	t.Helper()
	var buf bytes.Buffer
	var mu sync.Mutex
	oldW := log.Writer()
	oldFlags := log.Flags()
	log.SetOutput(&lockedWriter{w: &buf, mu: &mu})
	log.SetFlags(0) // remove timestamps to make JSON parseable
	defer func() {
		log.SetOutput(oldW)
		log.SetFlags(oldFlags)
	}()

	fn()

	var entries []logEntry
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var e logEntry
		if err := json.Unmarshal([]byte(strings.TrimSpace(line)), &e); err == nil {
			entries = append(entries, e)
		}
	}
	return entries
}

func findLog(entries []logEntry, action string) *logEntry {
	for i := range entries {
		if entries[i].Action == action {
			return &entries[i]
		}
	}
	return nil
}

// gate is a switchable verification gateway.
type gate struct {
	mu      sync.Mutex
	verdict verify.Verdict
}

func (g *gate) set(v verify.Verdict) {
	g.mu.Lock()
	g.verdict = v
	g.mu.Unlock()
}

func (g *gate) verify(_ context.Context, _ verify.Request) verify.Verdict {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.verdict
}

type testApp struct {
	app  *fiber.App
	db   *sqlx.DB
	deps *handlers.Deps
	gw   *gate
	dir  string
}

func newTestApp(t *testing.T, opts ...func(*handlers.Deps)) *testApp {
	t.Helper()
	db, err := repos.OpenDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	dir := t.TempDir()
	store := media.NewStore(dir)
	g := &gate{verdict: verify.Verdict{Accepted: true}}
	engine := services.NewEngine(services.EngineConfig{
		Catalog:            repos.NewProductRepo(db),
		Ledger:             repos.NewTransactionRepo(db),
		QRIS:               repos.NewQRISRepo(db),
		Audit:              repos.NewFailedValidationRepo(db),
		Proofs:             store,
		Gateway:            verify.Func(g.verify),
		ResultDisplayDelay: time.Hour,
		AfterFunc: func(time.Duration, func()) func() bool {
			return func() bool { return true }
		},
	})

	views := html.New("../../web/templates", ".html")
	app := fiber.New(fiber.Config{
		Views:        views,
		ErrorHandler: handlers.ErrorHandler,
		BodyLimit:    handlers.MaxUpload + 1<<20,
	})
	app.Use(requestid.New())
	deps := handlers.NewDeps(db, config.Config{}, engine, store, nil)
	deps.LoginMax, deps.ProofMax = 0, 0
	for _, o := range opts {
		o(deps)
	}
	app.Use(handlers.AttachUser(deps.Auth))
	deps.Register(app)
	return &testApp{app: app, db: db, deps: deps, gw: g, dir: dir}
}

// client keeps cookies between requests like a browser would.
type client struct {
	t       *testing.T
	ta      *testApp
	cookies map[string]string
}

func (ta *testApp) client(t *testing.T) *client {
	return &client{t: t, ta: ta, cookies: map[string]string{}}
}

func (cl *client) do(req *http.Request) *http.Response {
	cl.t.Helper()
	for k, v := range cl.cookies {
		req.AddCookie(&http.Cookie{Name: k, Value: v})
	}
	resp, err := cl.ta.app.Test(req, -1)
	require.NoError(cl.t, err)
	for _, c := range resp.Cookies() {
		if c.MaxAge < 0 || (!c.Expires.IsZero() && c.Expires.Before(time.Now())) {
			delete(cl.cookies, c.Name)
			continue
		}
		cl.cookies[c.Name] = c.Value
	}
	return resp
}

func (cl *client) get(path string) *http.Response {
	return cl.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func (cl *client) sendJSON(method, path string, body any) *http.Response {
	cl.t.Helper()
	b, err := json.Marshal(body)
	require.NoError(cl.t, err)
	req := httptest.NewRequest(method, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	return cl.do(req)
}

func (cl *client) postJSON(path string, body any) *http.Response {
	return cl.sendJSON(http.MethodPost, path, body)
}

func (cl *client) postForm(path, form string) *http.Response {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return cl.do(req)
}

// postFile sends a multipart body with one file field plus plain fields.
func (cl *client) postFile(path, field string, data []byte, fields map[string]string) *http.Response {
	cl.t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if field != "" {
		fw, err := w.CreateFormFile(field, "upload.bin")
		require.NoError(cl.t, err)
		_, _ = fw.Write(data)
	}
	for k, v := range fields {
		require.NoError(cl.t, w.WriteField(k, v))
	}
	require.NoError(cl.t, w.Close())
	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return cl.do(req)
}

func (cl *client) login(nik, password string) {
	cl.t.Helper()
	resp := cl.postForm("/login", "nik="+nik+"&password="+password)
	require.Equal(cl.t, fiber.StatusFound, resp.StatusCode)
	require.NotEmpty(cl.t, cl.cookies["sid"])
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(b, v), string(b))
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 200, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}
