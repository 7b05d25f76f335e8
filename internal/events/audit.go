package events

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/flashproto/support-bot/internal/store"
)

// AuditRecorder mirrors every ticket event into the bounded bot log and
// the structured log.
type AuditRecorder struct {
	log    *store.EventLog
	logger *zap.Logger
}

// NewAuditRecorder creates the recorder.
func NewAuditRecorder(log *store.EventLog, logger *zap.Logger) *AuditRecorder {
	return &AuditRecorder{log: log, logger: logger}
}

// RegisterHandlers subscribes to every ticket event type.
func (a *AuditRecorder) RegisterHandlers(dispatcher Dispatcher) {
	for _, eventType := range []EventType{
		EventTicketCreated,
		EventTicketClientUpdated,
		EventTicketStatusChanged,
		EventTicketNoteAdded,
		EventReplySent,
		EventTicketReopened,
		EventTicketDeleted,
	} {
		dispatcher.Subscribe(eventType, a.record)
	}
}

func (a *AuditRecorder) record(ctx context.Context, event Event) error {
	a.log.Append(fmt.Sprintf("%s %s by %s", event.Type, event.TicketID, event.Actor))
	a.logger.Info("ticket event",
		zap.String("type", string(event.Type)),
		zap.String("ticket_id", event.TicketID),
		zap.String("actor", event.Actor),
		zap.Any("payload", event.Payload))
	return nil
}
