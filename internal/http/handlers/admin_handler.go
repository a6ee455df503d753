package handlers

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"kantin/internal/domain"
	applog "kantin/internal/log"
	"kantin/internal/media"
	"kantin/internal/repos"
	"kantin/internal/services"
	"kantin/internal/validate"
)

// AdminHandler is the admin dashboard API. RequireRole(admin) runs first.
type AdminHandler struct {
	Admin   *services.AdminService
	Payout  *services.PayoutService
	Catalog *services.CatalogService
	Media   *media.Store
}

// GET /admin/api/stats
func (h *AdminHandler) Stats(c *fiber.Ctx) error {
	st, err := h.Admin.Stats(c.UserContext(), currentUser(c))
	if err != nil {
		return fail(c, "admin.stats", err)
	}
	return c.JSON(st)
}

// GET /admin/api/sellers
func (h *AdminHandler) Sellers(c *fiber.Ctx) error {
	sellers, err := h.Admin.ListSellers(c.UserContext(), currentUser(c))
	if err != nil {
		return fail(c, "admin.sellers", err)
	}
	return c.JSON(fiber.Map{"sellers": sellers})
}

type sellerInput struct {
	FullName   string `json:"full_name"`
	Email      string `json:"email"`
	NIK        string `json:"nik"`
	Department string `json:"department"`
	Phone      string `json:"phone"`
}

func parseSeller(c *fiber.Ctx) (services.SellerInput, error) {
	var in sellerInput
	if err := c.BodyParser(&in); err != nil {
		return services.SellerInput{}, fiber.NewError(fiber.StatusBadRequest, "Permintaan tidak valid")
	}
	if in.FullName != "" {
		if _, ok := validate.Name(in.FullName); !ok {
			return services.SellerInput{}, fiber.NewError(fiber.StatusBadRequest, "Nama tidak valid")
		}
	}
	if in.NIK != "" {
		if _, ok := validate.NIK(in.NIK); !ok {
			return services.SellerInput{}, fiber.NewError(fiber.StatusBadRequest, "NIK tidak valid")
		}
	}
	if in.Email != "" {
		if _, ok := validate.Email(in.Email); !ok {
			return services.SellerInput{}, fiber.NewError(fiber.StatusBadRequest, "Email tidak valid")
		}
	}
	if _, ok := validate.Phone(in.Phone); !ok {
		return services.SellerInput{}, fiber.NewError(fiber.StatusBadRequest, "Nomor telepon tidak valid")
	}
	return services.SellerInput{
		FullName: in.FullName, Email: in.Email, NIK: in.NIK, Department: in.Department, Phone: in.Phone,
	}, nil
}

// POST /admin/api/sellers
func (h *AdminHandler) CreateSeller(c *fiber.Ctx) error {
	in, err := parseSeller(c)
	if err != nil {
		return fail(c, "admin.seller.create", err)
	}
	u, err := h.Admin.CreateSeller(c.UserContext(), currentUser(c), in)
	if err != nil {
		return fail(c, "admin.seller.create", err)
	}
	return c.Status(fiber.StatusCreated).JSON(u)
}

// PUT /admin/api/sellers/:id
func (h *AdminHandler) UpdateSeller(c *fiber.Ctx) error {
	id, ok := validate.ID(c.Params("id"))
	if !ok {
		return badRequest(c, "id", "Penjual tidak valid")
	}
	in, err := parseSeller(c)
	if err != nil {
		return fail(c, "admin.seller.update", err)
	}
	u, err := h.Admin.UpdateSeller(c.UserContext(), currentUser(c), id, in)
	if err != nil {
		return fail(c, "admin.seller.update", err)
	}
	return c.JSON(u)
}

// DELETE /admin/api/sellers/:id
func (h *AdminHandler) DeleteSeller(c *fiber.Ctx) error {
	id, ok := validate.ID(c.Params("id"))
	if !ok {
		return badRequest(c, "id", "Penjual tidak valid")
	}
	if err := h.Admin.DeleteSeller(c.UserContext(), currentUser(c), id); err != nil {
		return fail(c, "admin.seller.delete", err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// GET /admin/api/transactions?status=&seller_id=&limit=
func (h *AdminHandler) Transactions(c *fiber.Ctx) error {
	f := repos.TransactionFilter{
		SellerID: strings.TrimSpace(c.Query("seller_id")),
		Status:   domain.TransactionStatus(c.Query("status")),
		Limit:    c.QueryInt("limit", 0),
	}
	if f.Status != "" && !f.Status.Valid() {
		return badRequest(c, "status", "Status tidak valid")
	}
	txns, err := h.Admin.ListTransactions(c.UserContext(), currentUser(c), f)
	if err != nil {
		return fail(c, "admin.transactions", err)
	}
	return c.JSON(fiber.Map{"transactions": txns})
}

// POST /admin/api/transactions/:id/status
func (h *AdminHandler) UpdateTransactionStatus(c *fiber.Ctx) error {
	id, ok := validate.ID(c.Params("id"))
	if !ok {
		return badRequest(c, "id", "Transaksi tidak valid")
	}
	var in struct {
		Status string `json:"status"`
		Notes  string `json:"notes"`
	}
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "body", "Permintaan tidak valid")
	}
	t, err := h.Admin.UpdateTransactionStatus(c.UserContext(), currentUser(c), id, domain.TransactionStatus(in.Status), in.Notes)
	if err != nil {
		return fail(c, "admin.transaction.status", err)
	}
	return c.JSON(t)
}

// GET /admin/api/withdrawals?status=
func (h *AdminHandler) Withdrawals(c *fiber.Ctx) error {
	wds, err := h.Admin.ListWithdrawals(c.UserContext(), currentUser(c), domain.WithdrawalStatus(c.Query("status")))
	if err != nil {
		return fail(c, "admin.withdrawals", err)
	}
	return c.JSON(fiber.Map{"withdrawals": wds})
}

// POST /admin/api/withdrawals/:id/approve (multipart: transfer_proof, notes)
func (h *AdminHandler) ApproveWithdrawal(c *fiber.Ctx) error {
	id, ok := validate.ID(c.Params("id"))
	if !ok {
		return badRequest(c, "id", "Penarikan tidak valid")
	}
	if _, err := c.FormFile("transfer_proof"); err != nil {
		return fail(c, "admin.withdrawal.approve", services.ErrMissingTransferProof)
	}
	data, mime, err := readImage(c, "transfer_proof")
	if err != nil {
		return fail(c, "admin.withdrawal.approve", err)
	}
	ref, err := h.Media.Save(media.KindTransfer, data, mime)
	if err != nil {
		return fail(c, "admin.withdrawal.approve", err)
	}
	w, err := h.Payout.Approve(c.UserContext(), currentUser(c), id, ref, c.FormValue("notes"))
	if err != nil {
		if rerr := h.Media.Remove(ref); rerr != nil {
			applog.Error(c, "admin.withdrawal.approve.cleanup", rerr, map[string]any{"ref": ref})
		}
		return fail(c, "admin.withdrawal.approve", err)
	}
	return c.JSON(w)
}

// POST /admin/api/withdrawals/:id/reject
func (h *AdminHandler) RejectWithdrawal(c *fiber.Ctx) error {
	id, ok := validate.ID(c.Params("id"))
	if !ok {
		return badRequest(c, "id", "Penarikan tidak valid")
	}
	var in struct {
		Notes string `json:"notes" form:"notes"`
	}
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "body", "Permintaan tidak valid")
	}
	w, err := h.Payout.Reject(c.UserContext(), currentUser(c), id, in.Notes)
	if err != nil {
		return fail(c, "admin.withdrawal.reject", err)
	}
	return c.JSON(w)
}

// GET /admin/api/failed-validations?today=1
func (h *AdminHandler) FailedValidations(c *fiber.Ctx) error {
	today := c.QueryBool("today", false)
	list, err := h.Admin.ListFailedValidations(c.UserContext(), currentUser(c), today, time.Now())
	if err != nil {
		return fail(c, "admin.failed_validations", err)
	}
	return c.JSON(fiber.Map{"failed_validations": list})
}

// GET /admin/api/qris
func (h *AdminHandler) QRIS(c *fiber.Ctx) error {
	q, err := h.Admin.QRISConfig(c.UserContext())
	if err != nil {
		return fail(c, "admin.qris", err)
	}
	return c.JSON(q)
}

// POST /admin/api/qris (multipart: image optional, merchant_name). Without a
// new image the current one is kept.
func (h *AdminHandler) UpdateQRIS(c *fiber.Ctx) error {
	ctx := c.UserContext()
	cur, err := h.Admin.QRISConfig(ctx)
	if err != nil {
		return fail(c, "admin.qris.update", err)
	}
	imageURL := cur.ImageURL
	var saved string
	if _, ferr := c.FormFile("image"); ferr == nil {
		data, mime, err := readImage(c, "image")
		if err != nil {
			return fail(c, "admin.qris.update", err)
		}
		if saved, err = h.Media.Save(media.KindQRIS, data, mime); err != nil {
			return fail(c, "admin.qris.update", err)
		}
		imageURL = saved
	}
	q, err := h.Admin.UpdateQRIS(ctx, currentUser(c), imageURL, c.FormValue("merchant_name"))
	if err != nil {
		if saved != "" {
			_ = h.Media.Remove(saved)
		}
		return fail(c, "admin.qris.update", err)
	}
	return c.JSON(q)
}

// GET /admin/api/categories
func (h *AdminHandler) Categories(c *fiber.Ctx) error {
	cats, err := h.Catalog.ListCategories(c.UserContext())
	if err != nil {
		return fail(c, "admin.categories", err)
	}
	return c.JSON(fiber.Map{"categories": cats})
}

// POST /admin/api/categories
func (h *AdminHandler) CreateCategory(c *fiber.Ctx) error {
	var in struct {
		Name string `json:"name"`
		Icon string `json:"icon"`
	}
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "body", "Permintaan tidak valid")
	}
	cat, err := h.Catalog.CreateCategory(c.UserContext(), currentUser(c), in.Name, in.Icon)
	if err != nil {
		return fail(c, "admin.category.create", err)
	}
	return c.Status(fiber.StatusCreated).JSON(cat)
}

// DELETE /admin/api/categories/:id
func (h *AdminHandler) DeleteCategory(c *fiber.Ctx) error {
	id, ok := validate.ID(c.Params("id"))
	if !ok {
		return badRequest(c, "id", "Kategori tidak valid")
	}
	if err := h.Catalog.DeleteCategory(c.UserContext(), currentUser(c), id); err != nil {
		return fail(c, "admin.category.delete", err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
