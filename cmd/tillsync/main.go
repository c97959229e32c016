package main

import (
	"context"
	"io"
	"log"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	"tillsync/internal/config"
	"tillsync/internal/http/handlers"
	"tillsync/internal/hub"
	applog "tillsync/internal/log"
	"tillsync/internal/repos"
)

func main() {
	cfg := config.Load()

	// Optional file logging
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			log.Printf("[warn] could not open log file %s: %v", cfg.LogFile, err)
		} else {
			mw := io.MultiWriter(os.Stdout, f)
			log.SetOutput(mw)
		}
	}

	db, err := repos.OpenDB(cfg.DBDSN, cfg.SeedDemo)
	if err != nil {
		log.Fatal(err)
	}

	// Broadcast hub; ledger commits fan out through it
	h := hub.New(hub.Config{SendBuffer: cfg.HubSendBuffer, SessionTimeout: cfg.SessionTimeout})
	go h.Run(context.Background())

	deps := handlers.NewDeps(db, cfg, h)
	h.Applier = deps.Ledger

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			applog.Error(c, "server.error", err, nil)
			// Avoid leaking internals
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "something went wrong, please retry",
			})
		},
	})
	// Global body size guard
	app.Server().MaxRequestBodySize = 1 << 20 // 1 MiB

	// ---------- Middlewares ----------
	app.Use(requestid.New())
	app.Use(logger.New())

	// ---------- API ----------
	api := app.Group("/api/v1", handlers.RequireTerminal(deps.Auth))

	adjustLimiter := limiter.New(limiter.Config{
		Max:        120,
		Expiration: time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.Get("X-Terminal-Id") + "|adjust"
		},
		LimitReached: func(c *fiber.Ctx) error {
			applog.Security(c, "rate.adjust.hit", nil)
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "rate limit exceeded, retry soon"})
		},
	})
	api.Post("/inventory/adjust", adjustLimiter, deps.InventoryHandler.Adjust)
	api.Get("/inventory/history/:id", deps.InventoryHandler.History)
	api.Get("/inventory/low-stock", deps.InventoryHandler.LowStock)
	api.Get("/products", deps.ProductHandler.List)
	api.Get("/products/:id", deps.ProductHandler.Get)

	// ---------- Realtime channel ----------
	wsH := &handlers.WSHandler{Hub: h, Auth: deps.Auth}
	app.Use("/ws", wsH.Upgrade)
	app.Get("/ws", wsH.Serve())

	// Health & 404
	app.Get("/healthz", func(c *fiber.Ctx) error { return c.JSON(fiber.Map{"ok": true}) })
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not found"})
	})

	log.Fatal(app.Listen(":" + cfg.Port))
}
