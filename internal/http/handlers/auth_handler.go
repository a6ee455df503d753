package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"kantin/internal/domain"
	"kantin/internal/log"
	"kantin/internal/services"
	"kantin/internal/validate"
)

type AuthHandler struct {
	Auth         *services.AuthService
	CookieSecure bool
}

func (h *AuthHandler) sidCookie(value string, expires time.Time) *fiber.Cookie {
	return &fiber.Cookie{
		Name:     "sid",
		Value:    value,
		Path:     "/",
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
		Secure:   h.CookieSecure,
		Expires:  expires,
	}
}

func (h *AuthHandler) LoginForm(c *fiber.Ctx) error {
	return render(c, "login", fiber.Map{"Err": ""})
}

func (h *AuthHandler) loginFailed(c *fiber.Ctx, nik, reason string) error {
	log.Security(c, "auth.login.fail", map[string]any{"nik": nik, "reason": reason})
	return c.Status(fiber.StatusUnauthorized).Render("login", fiber.Map{
		"Err": "NIK atau password salah", "CSRFToken": c.Cookies("csrf_"), "NIK": nik,
	})
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	nik, ok := validate.NIK(c.FormValue("nik"))
	if !ok {
		return h.loginFailed(c, "", "bad_format")
	}
	pass := c.FormValue("password")
	if !validate.Password(pass) {
		return h.loginFailed(c, nik, "bad_password_format")
	}

	// a fresh id on every login so a planted cookie cannot be promoted
	sid := uuid.NewString()
	sess, err := h.Auth.Login(c.UserContext(), sid, nik, pass)
	if err != nil {
		return h.loginFailed(c, nik, "bad_credentials")
	}
	c.Cookie(h.sidCookie(sid, time.Time{}))
	c.Locals("user", sess.User)

	log.Audit(c, "auth.login.success", map[string]any{"nik": nik, "role": sess.User.Role})
	if sess.User.Role == domain.RoleAdmin {
		return c.Redirect("/admin")
	}
	return c.Redirect("/seller")
}

func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	if sid := c.Cookies("sid"); sid != "" {
		if err := h.Auth.Logout(c.UserContext(), sid); err != nil {
			log.Error(c, "auth.logout", err, nil)
		}
	}
	c.Cookie(h.sidCookie("", time.Now().Add(-1*time.Hour)))
	log.Audit(c, "auth.logout", nil)
	return c.Redirect("/login")
}

// Dashboard renders the shell page for the seller or admin area; the data
// itself comes from the JSON API.
func (h *AuthHandler) Dashboard(c *fiber.Ctx) error {
	u := currentUser(c)
	return render(c, "dashboard", fiber.Map{"Role": u.Role, "APIBase": "/" + u.Role + "/api"})
}
