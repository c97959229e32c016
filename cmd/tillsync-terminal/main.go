package main

import (
	"context"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	"tillsync/internal/config"
	applog "tillsync/internal/log"
	"tillsync/internal/terminal"
	"tillsync/internal/validate"
)

// The terminal runner owns the durable operation queue and replays it
// against the server. A small loopback API lets the register UI enqueue
// operations and inspect sync state without linking the queue directly.
func main() {
	cfg := config.Load()

	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			log.Printf("[warn] could not open log file %s: %v", cfg.LogFile, err)
		} else {
			log.SetOutput(io.MultiWriter(os.Stdout, f))
		}
	}

	q, err := terminal.OpenQueue(cfg.Terminal.QueueDSN, cfg.Terminal.ID)
	if err != nil {
		log.Fatal(err)
	}
	defer q.Close()

	client := terminal.NewClient(cfg.Terminal)
	mon := terminal.NewMonitor(client.Probe, cfg.Terminal.ProbeInterval, cfg.Terminal.FailThreshold, cfg.Terminal.OKThreshold)
	rec := terminal.NewReconciler(q, client, mon, cfg.Terminal)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go mon.Run(ctx)
	go rec.Run(ctx)

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			applog.Error(c, "terminal.error", err, nil)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "something went wrong"})
		},
	})
	app.Use(requestid.New())

	// POST /ops: append a local operation; durable whether online or not
	app.Post("/ops", func(c *fiber.Ctx) error {
		var body struct {
			ProductID string `json:"product_id"`
			Quantity  int    `json:"quantity"`
			Type      string `json:"type"`
			Notes     string `json:"notes"`
		}
		if err := c.BodyParser(&body); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "malformed body"})
		}
		pid, okID := validate.ID(body.ProductID)
		dir, okDir := validate.Direction(body.Type)
		note, okNote := validate.Note(body.Notes)
		if !okID || !okDir || !okNote || !validate.Magnitude(body.Quantity) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid adjustment"})
		}
		id, err := q.Enqueue(c.Context(), "inventory", "update", fiber.Map{
			"product_id": pid, "quantity": body.Quantity, "type": dir, "notes": note,
		})
		if err != nil {
			applog.Error(c, "terminal.enqueue.fail", err, map[string]any{"product": pid})
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "could not enqueue"})
		}
		applog.Audit(c, "terminal.enqueue", map[string]any{"op_id": id, "product": pid, "qty": body.Quantity})
		return c.JSON(fiber.Map{"id": id, "status": "pending"})
	})

	// GET /ops/dead: operator view of dead-lettered operations
	app.Get("/ops/dead", func(c *fiber.Ctx) error {
		dead, err := q.DeadLetters(c.Context())
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "could not load dead letters"})
		}
		return c.JSON(fiber.Map{"operations": dead})
	})

	// GET /status: connectivity and queue depth
	app.Get("/status", func(c *fiber.Ctx) error {
		depth, err := q.Depth(c.Context())
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "could not read queue"})
		}
		return c.JSON(fiber.Map{"connectivity": mon.State().String(), "pending": depth})
	})

	go func() {
		<-ctx.Done()
		_ = app.Shutdown()
	}()

	log.Printf("[terminal] %s serving local API on %s", cfg.Terminal.ID, cfg.Terminal.LocalAddr)
	if err := app.Listen(cfg.Terminal.LocalAddr); err != nil {
		log.Fatal(err)
	}
}
