package handlers

import (
	"errors"

	"tillsync/internal/domain"
	applog "tillsync/internal/log"
	"tillsync/internal/services"
	"tillsync/internal/validate"

	"github.com/gofiber/fiber/v2"
)

type InventoryHandler struct {
	Ledger *services.LedgerService
}

type adjustBody struct {
	ProductID        string `json:"product_id"`
	Quantity         int    `json:"quantity"`
	Type             string `json:"type"`
	Notes            string `json:"notes"`
	IdempotencyToken string `json:"idempotency_token"`
}

// POST /api/v1/inventory/adjust
func (h *InventoryHandler) Adjust(c *fiber.Ctx) error {
	var body adjustBody
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "malformed body"})
	}

	pid, okID := validate.ID(body.ProductID)
	dir, okDir := validate.Direction(body.Type)
	tok, okTok := validate.Token(body.IdempotencyToken)
	note, okNote := validate.Note(body.Notes)
	if !okID || !okDir || !okTok || !okNote || !validate.Magnitude(body.Quantity) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid adjustment"})
	}

	term, _ := c.Locals("terminal").(*domain.Terminal)
	if term == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing terminal credentials"})
	}

	res, err := h.Ledger.AdjustStock(c.Context(), services.AdjustRequest{
		ProductID:        pid,
		Direction:        dir,
		Magnitude:        body.Quantity,
		Note:             note,
		PrincipalID:      term.ID,
		IdempotencyToken: tok,
	})
	switch {
	case errors.Is(err, domain.ErrInsufficientStock):
		applog.Warn(c, "inventory.adjust.insufficient", map[string]any{"product": pid, "qty": body.Quantity, "terminal": term.ID})
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "insufficient_stock", "product_id": pid})
	case errors.Is(err, domain.ErrUnknownProduct):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "unknown_product", "product_id": pid})
	case errors.Is(err, domain.ErrBadAdjustment):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid adjustment"})
	case err != nil:
		applog.Error(c, "inventory.adjust.fail", err, map[string]any{"product": pid})
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "could not adjust stock"})
	}

	applog.Audit(c, "inventory.adjust", map[string]any{
		"product": pid, "direction": dir, "qty": body.Quantity,
		"terminal": term.ID, "tx": res.Transaction.ID, "replay": res.AlreadyApplied,
	})
	return c.JSON(fiber.Map{
		"product":         res.Product,
		"transaction":     res.Transaction,
		"already_applied": res.AlreadyApplied,
	})
}

// GET /api/v1/inventory/history/:id
func (h *InventoryHandler) History(c *fiber.Ctx) error {
	pid, ok := validate.ID(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid product id"})
	}
	items, err := h.Ledger.GetHistory(c.Context(), pid)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownProduct) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "unknown_product", "product_id": pid})
		}
		applog.Error(c, "inventory.history.fail", err, map[string]any{"product": pid})
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "could not load history"})
	}
	if items == nil {
		items = []domain.InventoryTransaction{}
	}
	return c.JSON(fiber.Map{"product_id": pid, "transactions": items})
}

// GET /api/v1/inventory/low-stock
func (h *InventoryHandler) LowStock(c *fiber.Ctx) error {
	products, err := h.Ledger.GetLowStock(c.Context())
	if err != nil {
		applog.Error(c, "inventory.lowstock.fail", err, nil)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "could not load low stock"})
	}
	if products == nil {
		products = []domain.Product{}
	}
	return c.JSON(fiber.Map{"products": products})
}
