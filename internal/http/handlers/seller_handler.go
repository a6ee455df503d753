package handlers

import (
	"github.com/gofiber/fiber/v2"

	"kantin/internal/domain"
	applog "kantin/internal/log"
	"kantin/internal/media"
	"kantin/internal/services"
	"kantin/internal/validate"
)

// SellerHandler is the seller dashboard API. RequireRole(seller) runs first.
type SellerHandler struct {
	Auth    *services.AuthService
	Catalog *services.CatalogService
	Payout  *services.PayoutService
	Seller  *services.SellerService
	Media   *media.Store
}

// GET /seller/api/stats
func (h *SellerHandler) Stats(c *fiber.Ctx) error {
	st, err := h.Seller.Stats(c.UserContext(), currentUser(c))
	if err != nil {
		return fail(c, "seller.stats", err)
	}
	return c.JSON(st)
}

// GET /seller/api/transactions
func (h *SellerHandler) Transactions(c *fiber.Ctx) error {
	txns, err := h.Seller.Transactions(c.UserContext(), currentUser(c))
	if err != nil {
		return fail(c, "seller.transactions", err)
	}
	return c.JSON(fiber.Map{"transactions": txns})
}

// GET /seller/api/products
func (h *SellerHandler) Products(c *fiber.Ctx) error {
	prods, err := h.Catalog.ListOwn(c.UserContext(), currentUser(c))
	if err != nil {
		return fail(c, "seller.products", err)
	}
	return c.JSON(fiber.Map{"products": prods})
}

type productInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       int64  `json:"price"`
	Stock       int    `json:"stock"`
	Category    string `json:"category"`
	ImageURL    string `json:"image_url"`
	Active      *bool  `json:"is_active"`
}

func (in productInput) product(id string) domain.Product {
	p := domain.Product{
		ID: id, Name: in.Name, Description: in.Description, Price: in.Price, Stock: in.Stock,
		Category: in.Category, ImageURL: in.ImageURL, Active: true,
	}
	if in.Active != nil {
		p.Active = *in.Active
	}
	return p
}

// POST /seller/api/products, PUT /seller/api/products/:id
func (h *SellerHandler) SaveProduct(c *fiber.Ctx) error {
	var in productInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "body", "Permintaan tidak valid")
	}
	id := c.Params("id")
	if id != "" {
		if _, ok := validate.ID(id); !ok {
			return badRequest(c, "id", "Produk tidak valid")
		}
	}
	if in.Name != "" {
		if _, ok := validate.Name(in.Name); !ok {
			return badRequest(c, "name", "Nama produk maksimal 100 karakter")
		}
	}
	if in.ImageURL != "" {
		if _, err := h.Media.Path(in.ImageURL); err != nil {
			return badRequest(c, "image_url", "Gambar tidak valid")
		}
	}
	p, err := h.Catalog.Save(c.UserContext(), currentUser(c), in.product(id))
	if err != nil {
		return fail(c, "seller.product.save", err)
	}
	applog.Audit(c, "seller.product.save", map[string]any{"product": p.ID, "created": id == ""})
	if id == "" {
		c.Status(fiber.StatusCreated)
	}
	return c.JSON(p)
}

// POST /seller/api/products/image uploads a product photo and returns its ref
// for a following save.
func (h *SellerHandler) UploadImage(c *fiber.Ctx) error {
	data, mime, err := readImage(c, "image")
	if err != nil {
		return fail(c, "seller.product.image", err)
	}
	ref, err := h.Media.Save(media.KindProduct, data, mime)
	if err != nil {
		return fail(c, "seller.product.image", err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"image_url": ref})
}

// DELETE /seller/api/products/:id
func (h *SellerHandler) DeleteProduct(c *fiber.Ctx) error {
	id, ok := validate.ID(c.Params("id"))
	if !ok {
		return badRequest(c, "id", "Produk tidak valid")
	}
	if err := h.Catalog.Delete(c.UserContext(), currentUser(c), id); err != nil {
		return fail(c, "seller.product.delete", err)
	}
	applog.Audit(c, "seller.product.delete", map[string]any{"product": id})
	return c.SendStatus(fiber.StatusNoContent)
}

// POST /seller/api/products/:id/toggle
func (h *SellerHandler) ToggleProduct(c *fiber.Ctx) error {
	id, ok := validate.ID(c.Params("id"))
	if !ok {
		return badRequest(c, "id", "Produk tidak valid")
	}
	p, err := h.Catalog.ToggleActive(c.UserContext(), currentUser(c), id)
	if err != nil {
		return fail(c, "seller.product.toggle", err)
	}
	return c.JSON(p)
}

// GET /seller/api/categories
func (h *SellerHandler) Categories(c *fiber.Ctx) error {
	cats, err := h.Catalog.ListCategories(c.UserContext())
	if err != nil {
		return fail(c, "seller.categories", err)
	}
	return c.JSON(fiber.Map{"categories": cats})
}

// GET /seller/api/withdrawals
func (h *SellerHandler) Withdrawals(c *fiber.Ctx) error {
	u := currentUser(c)
	wds, err := h.Payout.ListOwn(c.UserContext(), u)
	if err != nil {
		return fail(c, "seller.withdrawals", err)
	}
	bal, err := h.Payout.Balance(c.UserContext(), u.ID)
	if err != nil {
		return fail(c, "seller.withdrawals", err)
	}
	return c.JSON(fiber.Map{"withdrawals": wds, "balance": bal})
}

// POST /seller/api/withdrawals
func (h *SellerHandler) RequestWithdrawal(c *fiber.Ctx) error {
	var in struct {
		Amount        int64  `json:"amount"`
		BankName      string `json:"bank_name"`
		AccountNumber string `json:"account_number"`
		AccountName   string `json:"account_name"`
	}
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "body", "Permintaan tidak valid")
	}
	if in.AccountNumber != "" {
		if _, ok := validate.AccountNumber(in.AccountNumber); !ok {
			return badRequest(c, "account_number", "Nomor rekening tidak valid")
		}
	}
	w, err := h.Payout.Request(c.UserContext(), currentUser(c), services.WithdrawalRequest{
		Amount: in.Amount, BankName: in.BankName, AccountNumber: in.AccountNumber, AccountName: in.AccountName,
	})
	if err != nil {
		return fail(c, "seller.withdrawal.request", err)
	}
	return c.Status(fiber.StatusCreated).JSON(w)
}

// POST /seller/api/password
func (h *SellerHandler) ChangePassword(c *fiber.Ctx) error {
	var in struct {
		Current string `json:"current_password"`
		New     string `json:"new_password"`
		Confirm string `json:"confirm_password"`
	}
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "body", "Permintaan tidak valid")
	}
	if !validate.Password(in.New) {
		return fail(c, "seller.password", services.ErrWeakPassword)
	}
	u := currentUser(c)
	if err := h.Auth.ChangePassword(c.UserContext(), u.ID, in.Current, in.New, in.Confirm); err != nil {
		return fail(c, "seller.password", err)
	}
	applog.Audit(c, "auth.password.change", nil)
	return c.JSON(fiber.Map{"ok": true})
}
