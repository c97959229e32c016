package handlers

import (
	applog "tillsync/internal/log"
	"tillsync/internal/services"

	"github.com/gofiber/fiber/v2"
)

// RequireTerminal resolves the X-Terminal-Id/X-Terminal-Key headers to a
// registered terminal and attaches it as the acting principal.
func RequireTerminal(auth *services.TerminalAuthService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Get("X-Terminal-Id")
		key := c.Get("X-Terminal-Key")
		if id == "" || key == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing terminal credentials"})
		}
		t, err := auth.Authenticate(id, key)
		if err != nil {
			applog.Security(c, "access.denied.terminal", map[string]any{"terminal_id": id})
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid terminal credentials"})
		}
		c.Locals("terminal", t)
		return c.Next()
	}
}
