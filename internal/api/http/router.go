// Package http registers the service's HTTP surface: the platform
// webhook, health probes, and the token-gated operator API.
package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/flashproto/support-bot/internal/api/http/handlers"
	"github.com/flashproto/support-bot/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Webhook        *handlers.WebhookHandler
	Ops            *handlers.OpsHandler
	Health         *handlers.HealthHandler
	AuthMiddleware *auth.Middleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	app.Post("/webhook", cfg.Webhook.Handle)

	ops := app.Group("/ops")
	ops.Post("/login", cfg.Ops.Login)

	protected := ops.Group("", cfg.AuthMiddleware.Handle)
	protected.Get("/tickets", cfg.Ops.ListTickets)
	protected.Get("/tickets/search", cfg.Ops.SearchTickets)
	protected.Get("/tickets/:id", cfg.Ops.GetTicket)
	protected.Get("/events", cfg.Ops.Events)
	protected.Get("/metrics", cfg.Ops.Metrics)
}
