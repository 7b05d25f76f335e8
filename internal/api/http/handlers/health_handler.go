package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/flashproto/support-bot/internal/reply"
	"github.com/flashproto/support-bot/internal/store"
)

// HealthHandler responds to liveness and readiness probes.
type HealthHandler struct {
	serviceName string
	version     string
	store       store.TicketStore
	pending     reply.PendingStore
}

// NewHealthHandler returns a new handler instance.
func NewHealthHandler(serviceName, version string, ticketStore store.TicketStore, pending reply.PendingStore) *HealthHandler {
	return &HealthHandler{serviceName: serviceName, version: version, store: ticketStore, pending: pending}
}

// Live reports service liveness.
func (h *HealthHandler) Live(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "alive",
		"service": h.serviceName,
		"version": h.version,
	})
}

// Ready reports service readiness by checking dependencies.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	depStatus := fiber.Map{}
	ready := true

	if err := h.store.Ping(ctx); err != nil {
		depStatus["store"] = err.Error()
		ready = false
	} else {
		depStatus["store"] = "ok"
	}

	if err := h.pending.Ping(ctx); err != nil {
		depStatus["pending"] = err.Error()
		ready = false
	} else {
		depStatus["pending"] = "ok"
	}

	if ready {
		return c.JSON(fiber.Map{
			"status":       "ready",
			"dependencies": depStatus,
		})
	}

	return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "DEPENDENCY_UNAVAILABLE",
			"message": "one or more dependencies unavailable",
			"details": depStatus,
		},
	})
}
