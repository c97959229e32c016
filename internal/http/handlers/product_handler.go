package handlers

import (
	"errors"

	"tillsync/internal/domain"
	applog "tillsync/internal/log"
	"tillsync/internal/services"
	"tillsync/internal/validate"

	"github.com/gofiber/fiber/v2"
)

type ProductHandler struct {
	Ledger *services.LedgerService
}

// GET /api/v1/products
func (h *ProductHandler) List(c *fiber.Ctx) error {
	products, err := h.Ledger.ListProducts(c.Context())
	if err != nil {
		applog.Error(c, "products.list.fail", err, nil)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "could not load products"})
	}
	return c.JSON(fiber.Map{"products": products})
}

// GET /api/v1/products/:id
func (h *ProductHandler) Get(c *fiber.Ctx) error {
	pid, ok := validate.ID(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid product id"})
	}
	p, err := h.Ledger.GetProduct(c.Context(), pid)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownProduct) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "unknown_product", "product_id": pid})
		}
		applog.Error(c, "products.get.fail", err, map[string]any{"product": pid})
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "could not load product"})
	}
	return c.JSON(fiber.Map{"product": p})
}
