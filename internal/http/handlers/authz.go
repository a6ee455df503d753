package handlers

import (
	"github.com/gofiber/fiber/v2"

	"kantin/internal/domain"
	applog "kantin/internal/log"
	"kantin/internal/services"
)

// AttachUser puts the logged-in user into Locals for templates and logs.
func AttachUser(auth *services.AuthService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if sid := c.Cookies("sid"); sid != "" {
			if u, err := auth.CurrentUser(c.UserContext(), sid); err == nil && u != nil {
				c.Locals("user", u)
			}
		}
		return c.Next()
	}
}

// RequireRole lets only logged-in users with the given role through.
func RequireRole(auth *services.AuthService, role string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sid := c.Cookies("sid")
		var u *domain.User
		if sid != "" {
			u, _ = auth.CurrentUser(c.UserContext(), sid)
		}
		if u == nil {
			if isAPI(c) {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Silakan login terlebih dahulu"})
			}
			return c.Redirect("/login")
		}
		c.Locals("user", u)
		if u.Role != role {
			applog.Security(c, "access.denied."+role, map[string]any{"role": u.Role})
			if isAPI(c) {
				return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Akses ditolak"})
			}
			return c.Status(fiber.StatusForbidden).Render("notfound", fiber.Map{"Message": "Akses ditolak"})
		}
		return c.Next()
	}
}

func currentUser(c *fiber.Ctx) *domain.User {
	u, _ := c.Locals("user").(*domain.User)
	return u
}
