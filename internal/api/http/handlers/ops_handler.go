package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/flashproto/support-bot/internal/auth"
	"github.com/flashproto/support-bot/internal/domain"
	"github.com/flashproto/support-bot/internal/observability"
	"github.com/flashproto/support-bot/internal/store"
	"github.com/flashproto/support-bot/internal/ticket"
)

// OpsHandler exposes the operator API: login, ticket browsing, the
// activity log, and runtime counters.
type OpsHandler struct {
	tickets      *ticket.Service
	tokens       *auth.TokenManager
	passwordHash string
	botLog       *store.EventLog
	metrics      *observability.Metrics
	logger       *zap.Logger
}

// NewOpsHandler constructs handler.
func NewOpsHandler(tickets *ticket.Service, tokens *auth.TokenManager, passwordHash string, botLog *store.EventLog, metrics *observability.Metrics, logger *zap.Logger) *OpsHandler {
	return &OpsHandler{tickets: tickets, tokens: tokens, passwordHash: passwordHash, botLog: botLog, metrics: metrics, logger: logger}
}

type loginRequest struct {
	Operator string `json:"operator"`
	Password string `json:"password"`
}

// Login handles POST /ops/login.
func (h *OpsHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	if req.Operator == "" || req.Password == "" {
		return fiber.NewError(http.StatusBadRequest, "operator and password required")
	}
	if h.passwordHash == "" {
		return fiber.NewError(http.StatusServiceUnavailable, "operator login not configured")
	}

	if err := auth.ComparePassword(h.passwordHash, req.Password); err != nil {
		return fiber.NewError(http.StatusUnauthorized, "invalid credentials")
	}

	token, exp, err := h.tokens.GenerateToken(req.Operator)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"token":      token,
			"expires_at": exp,
		},
	})
}

// ListTickets handles GET /ops/tickets (open tickets, newest first).
func (h *OpsHandler) ListTickets(c *fiber.Ctx) error {
	open, err := h.tickets.ListOpen(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketList(open)})
}

// SearchTickets handles GET /ops/tickets/search?q=.
func (h *OpsHandler) SearchTickets(c *fiber.Ctx) error {
	query := c.Query("q")
	if query == "" {
		return fiber.NewError(http.StatusBadRequest, "q required")
	}
	found, err := h.tickets.Search(c.UserContext(), query)
	if err != nil {
		return err
	}
	operator, _ := auth.OperatorFromContext(c)
	h.logger.Debug("operator searched tickets",
		zap.String("operator", operator), zap.String("query", query), zap.Int("hits", len(found)))
	return c.JSON(fiber.Map{"data": ticketList(found)})
}

// GetTicket handles GET /ops/tickets/:id.
func (h *OpsHandler) GetTicket(c *fiber.Ctx) error {
	t, err := h.tickets.FindByID(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	operator, _ := auth.OperatorFromContext(c)
	h.logger.Debug("operator fetched ticket",
		zap.String("operator", operator), zap.String("ticket_id", t.ID))
	return c.JSON(fiber.Map{"data": t})
}

// Events handles GET /ops/events (recent activity log, newest first).
func (h *OpsHandler) Events(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	return c.JSON(fiber.Map{"data": h.botLog.Recent(limit)})
}

// Metrics handles GET /ops/metrics.
func (h *OpsHandler) Metrics(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": h.metrics.Snapshot()})
}

func ticketList(tickets []*domain.Ticket) []*domain.Ticket {
	if tickets == nil {
		return []*domain.Ticket{}
	}
	return tickets
}
