package reply

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/flashproto/support-bot/internal/domain"
	"github.com/flashproto/support-bot/internal/events"
	"github.com/flashproto/support-bot/internal/platform"
	"github.com/flashproto/support-bot/internal/store"
	"github.com/flashproto/support-bot/internal/texts"
)

// Workflow drives the staged-reply state machine:
// Idle → StagedReply → Sent or Cancelled. Free-text replies always
// pass through staging; quick replies take SendDirect, an intentional
// fast path for canned responses.
type Workflow struct {
	store      store.TicketStore
	sender     platform.Sender
	dispatcher events.Dispatcher
	logger     *zap.Logger
	now        func() time.Time
}

// Dependencies bundles collaborators for workflow construction.
type Dependencies struct {
	Store      store.TicketStore
	Sender     platform.Sender
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	Now        func() time.Time
}

// NewWorkflow constructs the workflow.
func NewWorkflow(deps Dependencies) *Workflow {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Workflow{
		store:      deps.Store,
		sender:     deps.Sender,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
		now:        now,
	}
}

var markdown = &platform.SendOptions{ParseMode: "Markdown"}

// Stage records the reply text on the ticket and asks the admin to
// confirm or discard it. No client-visible effect yet.
func (w *Workflow) Stage(ctx context.Context, adminID int64, ticketID, text string) error {
	ticket, err := w.update(ctx, ticketID, func(t *domain.Ticket) error {
		t.PendingReply = text
		return nil
	})
	if err != nil {
		return err
	}

	prompt := texts.StagePrompt(ticket.ID, text)
	opts := &platform.SendOptions{ParseMode: "Markdown", ReplyMarkup: texts.StageKeyboard(ticket.ID)}
	if _, err := w.sender.SendMessage(ctx, adminID, prompt, opts); err != nil {
		w.logger.Warn("stage prompt delivery failed", zap.Int64("admin_id", adminID), zap.Error(err))
	}
	return nil
}

// Confirm dispatches the staged reply to the requester with the
// resolved-yes/no prompt. On delivery failure the stage is kept so the
// admin can retry or cancel.
func (w *Workflow) Confirm(ctx context.Context, adminID int64, ticketID string) error {
	ticket, err := w.store.Get(ctx, ticketID)
	if err != nil {
		return err
	}
	staged := ticket.PendingReply
	if staged == "" {
		w.notifyAdmin(ctx, adminID, texts.ReplyCancelled(ticket.ID))
		return nil
	}
	if err := w.dispatch(ctx, adminID, ticket, staged, false); err != nil {
		w.notifyAdmin(ctx, adminID, texts.ReplySendFailed)
		return nil
	}
	w.notifyAdmin(ctx, adminID, texts.ReplySent(ticket.ID))
	return nil
}

// Cancel discards the staged text. The only mutation is clearing the
// transient field.
func (w *Workflow) Cancel(ctx context.Context, adminID int64, ticketID string) error {
	ticket, err := w.update(ctx, ticketID, func(t *domain.Ticket) error {
		t.PendingReply = ""
		return nil
	})
	if err != nil {
		return err
	}
	w.notifyAdmin(ctx, adminID, texts.ReplyCancelled(ticket.ID))
	return nil
}

// SendDirect delivers a reply immediately, bypassing staging. Used by
// the quick-reply shortcuts.
func (w *Workflow) SendDirect(ctx context.Context, adminID int64, ticketID, text string, quick bool) error {
	ticket, err := w.store.Get(ctx, ticketID)
	if err != nil {
		return err
	}
	if err := w.dispatch(ctx, adminID, ticket, text, quick); err != nil {
		w.notifyAdmin(ctx, adminID, texts.ReplySendFailed)
		return nil
	}
	w.notifyAdmin(ctx, adminID, texts.ReplySent(ticket.ID))
	return nil
}

// dispatch performs the Sent transition: one outbound reply with the
// confirmation prompt, one status change, one note, one history entry.
func (w *Workflow) dispatch(ctx context.Context, adminID int64, ticket *domain.Ticket, text string, quick bool) error {
	notice := texts.ReplyNotice(ticket.ID, text)
	opts := &platform.SendOptions{ParseMode: "Markdown", ReplyMarkup: texts.ClientConfirmKeyboard(ticket.ID)}
	if _, err := w.sender.SendMessage(ctx, ticket.Requester.ExternalID, notice, opts); err != nil {
		w.logger.Warn("reply delivery failed",
			zap.String("ticket_id", ticket.ID), zap.Int64("requester", ticket.Requester.ExternalID), zap.Error(err))
		return err
	}

	now := w.now()
	if _, err := w.update(ctx, ticket.ID, func(t *domain.Ticket) error {
		t.Status = domain.NewStatus(domain.StatusAwaitingClient)
		t.AddNote(adminID, text, now)
		t.Record("reply_sent", adminActor(adminID), now)
		t.PendingReply = ""
		return nil
	}); err != nil {
		w.logger.Warn("reply bookkeeping failed",
			zap.String("ticket_id", ticket.ID), zap.Error(err))
	}

	w.publish(ctx, events.Event{
		Type:     events.EventReplySent,
		TicketID: ticket.ID,
		Actor:    adminActor(adminID),
		Payload: events.ReplySentPayload{
			AdminID:     adminID,
			BodyPreview: preview(text, 120),
			QuickReply:  quick,
		},
	})
	return nil
}

func (w *Workflow) notifyAdmin(ctx context.Context, adminID int64, text string) {
	if _, err := w.sender.SendMessage(ctx, adminID, text, markdown); err != nil {
		w.logger.Warn("admin notice delivery failed", zap.Int64("admin_id", adminID), zap.Error(err))
	}
}

// update mutates a ticket atomically through the store, logging and
// swallowing flush failures when the mutation itself stuck.
func (w *Workflow) update(ctx context.Context, id string, mutate func(*domain.Ticket) error) (*domain.Ticket, error) {
	ticket, err := w.store.Update(ctx, id, mutate)
	if err != nil {
		if ticket == nil {
			return nil, err
		}
		w.logger.Warn("ticket persist failed", zap.String("ticket_id", id), zap.Error(err))
	}
	return ticket, nil
}

func (w *Workflow) publish(ctx context.Context, event events.Event) {
	if w.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = w.now()
	}
	_ = w.dispatcher.Publish(ctx, event)
}

func adminActor(id int64) string {
	return fmt.Sprintf("admin:%d", id)
}

func preview(text string, max int) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
