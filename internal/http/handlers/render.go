package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	applog "kantin/internal/log"
	"kantin/internal/media"
	"kantin/internal/repos"
	"kantin/internal/services"
)

func render(c *fiber.Ctx, tmpl string, data fiber.Map) error {
	if data == nil {
		data = fiber.Map{}
	}
	if u := c.Locals("user"); u != nil {
		data["User"] = u
	}
	// Pick up the token the CSRF middleware put into Locals
	if tok, _ := c.Locals("CSRFToken").(string); tok != "" {
		data["CSRFToken"] = tok
	} else if tok := c.Cookies("csrf_"); tok != "" {
		data["CSRFToken"] = tok
	}
	return c.Render(tmpl, data)
}

type apiErr struct {
	status int
	msg    string
}

// errTable maps service sentinels to what the client sees. Anything not
// listed is a 500 with a generic message.
var errTable = []struct {
	err error
	apiErr
}{
	{services.ErrEmptyCart, apiErr{fiber.StatusBadRequest, "Keranjang masih kosong"}},
	{services.ErrMissingCustomerName, apiErr{fiber.StatusBadRequest, "Nama pemesan wajib diisi"}},
	{services.ErrProductUnavailable, apiErr{fiber.StatusConflict, "Produk tidak tersedia atau stok habis"}},
	{services.ErrCameraUnavailable, apiErr{fiber.StatusServiceUnavailable, "Kamera tidak tersedia, silakan unggah bukti pembayaran"}},
	{services.ErrVerificationInFlight, apiErr{fiber.StatusConflict, "Verifikasi sedang berlangsung"}},
	{services.ErrCheckoutCancelled, apiErr{fiber.StatusConflict, "Transaksi sudah dibatalkan"}},
	{services.ErrInvalidState, apiErr{fiber.StatusConflict, "Langkah ini tidak tersedia saat ini"}},
	{services.ErrCommitFailed, apiErr{fiber.StatusInternalServerError, "Pembayaran valid tetapi transaksi gagal disimpan, hubungi admin"}},
	{services.ErrAuditFailed, apiErr{fiber.StatusInternalServerError, "Pembayaran tidak valid dan gagal dicatat, silakan coba lagi"}},
	{services.ErrBadCreds, apiErr{fiber.StatusUnauthorized, "NIK atau password salah"}},
	{services.ErrPasswordMismatch, apiErr{fiber.StatusBadRequest, "Konfirmasi password tidak cocok"}},
	{services.ErrWeakPassword, apiErr{fiber.StatusBadRequest, "Password minimal 6 karakter"}},
	{services.ErrForbidden, apiErr{fiber.StatusForbidden, "Akses ditolak"}},
	{services.ErrInvalidProduct, apiErr{fiber.StatusBadRequest, "Nama, harga dan stok produk tidak valid"}},
	{services.ErrInvalidCategory, apiErr{fiber.StatusBadRequest, "Nama kategori wajib diisi"}},
	{services.ErrBelowMinimum, apiErr{fiber.StatusBadRequest, "Minimal penarikan Rp 10.000"}},
	{services.ErrInsufficientBalance, apiErr{fiber.StatusBadRequest, "Saldo tidak mencukupi"}},
	{services.ErrMissingBankDetails, apiErr{fiber.StatusBadRequest, "Data rekening wajib diisi lengkap"}},
	{services.ErrMissingTransferProof, apiErr{fiber.StatusBadRequest, "Bukti transfer wajib diunggah"}},
	{services.ErrInvalidTransition, apiErr{fiber.StatusConflict, "Status tidak dapat diubah"}},
	{services.ErrMissingSellerFields, apiErr{fiber.StatusBadRequest, "Nama, email dan NIK wajib diisi"}},
	{services.ErrDuplicateNIK, apiErr{fiber.StatusConflict, "NIK sudah terdaftar"}},
	{services.ErrMissingQRISFields, apiErr{fiber.StatusBadRequest, "Gambar QRIS dan nama merchant wajib diisi"}},
	{media.ErrBadRef, apiErr{fiber.StatusBadRequest, "Berkas tidak valid"}},
	{repos.ErrNotFound, apiErr{fiber.StatusNotFound, "Data tidak ditemukan"}},
}

func classify(err error) apiErr {
	for _, e := range errTable {
		if errors.Is(err, e.err) {
			return e.apiErr
		}
	}
	var fe *fiber.Error
	if errors.As(err, &fe) && fe.Code < 500 {
		return apiErr{fe.Code, fe.Message}
	}
	return apiErr{fiber.StatusInternalServerError, "Terjadi kesalahan, silakan coba lagi"}
}

// fail writes err as a JSON error body. 5xx details only go to the log.
func fail(c *fiber.Ctx, action string, err error) error {
	ae := classify(err)
	if ae.status >= 500 {
		applog.Error(c, action, err, nil)
	} else if ae.status == fiber.StatusForbidden {
		applog.Security(c, action, map[string]any{"err": err.Error()})
	}
	return c.Status(ae.status).JSON(fiber.Map{"error": ae.msg})
}

func badRequest(c *fiber.Ctx, field, msg string) error {
	applog.Security(c, "validation.fail", map[string]any{"field": field})
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg, "field": field})
}

func isAPI(c *fiber.Ctx) bool {
	return strings.Contains(c.Path(), "/api/")
}

// ErrorHandler is the app-wide fallback. API callers get JSON, browsers the
// notfound page; neither sees internals.
func ErrorHandler(c *fiber.Ctx, err error) error {
	ae := classify(err)
	if ae.status >= 500 {
		applog.Error(c, "server.error", err, nil)
	}
	if isAPI(c) {
		return c.Status(ae.status).JSON(fiber.Map{"error": ae.msg})
	}
	if rerr := c.Status(ae.status).Render("notfound", fiber.Map{"Message": ae.msg}); rerr != nil {
		return c.Status(ae.status).SendString(ae.msg)
	}
	return nil
}
