package events

import (
	"time"

	"github.com/flashproto/support-bot/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated       EventType = "ticket_created"
	EventTicketClientUpdated EventType = "ticket_client_updated"
	EventTicketStatusChanged EventType = "ticket_status_changed"
	EventTicketNoteAdded     EventType = "ticket_note_added"
	EventReplySent           EventType = "ticket_reply_sent"
	EventTicketReopened      EventType = "ticket_reopened"
	EventTicketDeleted       EventType = "ticket_deleted"
)

// Event represents a domain event emitted while handling an update.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	TicketID  string    `json:"ticket_id"`
	Actor     string    `json:"actor"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	RequesterID int64                 `json:"requester_id"`
	Category    domain.TicketCategory `json:"category"`
	Priority    domain.TicketPriority `json:"priority"`
}

// StatusChangedPayload payload.
type StatusChangedPayload struct {
	OldStatus string `json:"old_status"`
	NewStatus string `json:"new_status"`
}

// ReplySentPayload payload.
type ReplySentPayload struct {
	AdminID     int64  `json:"admin_id"`
	BodyPreview string `json:"body_preview"`
	QuickReply  bool   `json:"quick_reply,omitempty"`
}
