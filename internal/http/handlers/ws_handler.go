package handlers

import (
	"tillsync/internal/hub"
	applog "tillsync/internal/log"
	"tillsync/internal/services"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

// WSHandler upgrades /ws connections into the broadcast hub.
type WSHandler struct {
	Hub  *hub.Hub
	Auth *services.TerminalAuthService
}

// Upgrade authenticates the terminal before the socket upgrade. The key
// travels in headers like every other call.
func (h *WSHandler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	id := c.Get("X-Terminal-Id")
	key := c.Get("X-Terminal-Key")
	t, err := h.Auth.Authenticate(id, key)
	if err != nil {
		applog.Security(c, "access.denied.ws", map[string]any{"terminal_id": id})
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid terminal credentials"})
	}
	c.Locals("terminal_id", t.ID)
	return c.Next()
}

// Serve runs the per-session read loop. Writes go through the hub's writer
// goroutine; a read error is the peer-initiated close path.
func (h *WSHandler) Serve() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		tid, _ := conn.Locals("terminal_id").(string)
		s := h.Hub.Connect(conn, tid)
		defer h.Hub.Disconnect(s)

		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			h.Hub.OnMessage(s, raw)
		}
	})
}
