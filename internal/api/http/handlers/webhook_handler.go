package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/flashproto/support-bot/internal/dispatch"
	"github.com/flashproto/support-bot/internal/platform"
)

// The platform echoes the configured secret on every webhook delivery
// in this header.
const secretHeader = "X-Telegram-Bot-Api-Secret-Token"

// WebhookHandler receives inbound platform updates.
type WebhookHandler struct {
	dispatcher *dispatch.Dispatcher
	secret     string
	logger     *zap.Logger
}

// NewWebhookHandler returns a new handler instance.
func NewWebhookHandler(dispatcher *dispatch.Dispatcher, secret string, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{dispatcher: dispatcher, secret: secret, logger: logger}
}

// Handle processes POST /webhook. The platform retries non-2xx
// deliveries, so once an update decodes it is always acknowledged;
// processing failures are handled inside the dispatcher.
func (h *WebhookHandler) Handle(c *fiber.Ctx) error {
	if h.secret != "" && c.Get(secretHeader) != h.secret {
		return fiber.NewError(http.StatusForbidden, "bad webhook secret")
	}

	var update platform.Update
	if err := c.BodyParser(&update); err != nil {
		h.logger.Warn("undecodable webhook payload", zap.Error(err))
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}

	h.dispatcher.HandleUpdate(c.UserContext(), update)
	return c.JSON(fiber.Map{"ok": true})
}
