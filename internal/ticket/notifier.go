package ticket

import (
	"context"

	"go.uber.org/zap"

	"github.com/flashproto/support-bot/internal/domain"
	"github.com/flashproto/support-bot/internal/platform"
	"github.com/flashproto/support-bot/internal/texts"
)

// Correlator records outbound notice message ids so quoted replies can
// be resolved back to their ticket without parsing text.
type Correlator interface {
	Remember(chatID, messageID int64, ticketID string)
}

// Notifier fans ticket notices out to every configured admin channel
// and acknowledges requesters. Delivery is best-effort: a failed send
// is logged and the remaining recipients still get their copy.
type Notifier struct {
	sender    platform.Sender
	admins    []int64
	correlate Correlator
	logger    *zap.Logger
}

// NewNotifier creates the notifier. correlate may be nil.
func NewNotifier(sender platform.Sender, admins []int64, correlate Correlator, logger *zap.Logger) *Notifier {
	return &Notifier{sender: sender, admins: admins, correlate: correlate, logger: logger}
}

var markdown = &platform.SendOptions{ParseMode: "Markdown"}

// AnnounceNew delivers the created-ticket notice (with media when the
// ticket has an attachment) to every admin channel and returns the
// message refs of the successful sends.
func (n *Notifier) AnnounceNew(ctx context.Context, t *domain.Ticket) []domain.MessageRef {
	notice := texts.AdminNotice(t)
	if t.Attachment != nil {
		notice += texts.AdminNoticeAttachmentNote(t.Attachment)
	}
	keyboard := texts.AdminTicketKeyboard(t.ID)

	var refs []domain.MessageRef
	for _, chatID := range n.admins {
		messageID, err := n.deliverNotice(ctx, chatID, notice, t.Attachment, keyboard)
		if err != nil {
			n.logger.Warn("admin notice delivery failed",
				zap.Int64("chat_id", chatID), zap.String("ticket_id", t.ID), zap.Error(err))
			continue
		}
		refs = append(refs, domain.MessageRef{ChatID: chatID, MessageID: messageID})
		if n.correlate != nil {
			n.correlate.Remember(chatID, messageID, t.ID)
		}
	}
	return refs
}

// deliverNotice tries the richest shape first: photo, then document,
// then plain text with a failure annotation. The ticket is already
// persisted, so no fallback level may drop the notice entirely.
func (n *Notifier) deliverNotice(ctx context.Context, chatID int64, notice string, att *domain.Attachment, keyboard *platform.InlineKeyboard) (int64, error) {
	opts := &platform.SendOptions{ParseMode: "Markdown", ReplyMarkup: keyboard}

	if att != nil {
		if att.Kind == domain.AttachmentPhoto {
			if id, err := n.sender.SendPhoto(ctx, chatID, att.FileRef, notice, opts); err == nil {
				return id, nil
			}
			if id, err := n.sender.SendDocument(ctx, chatID, att.FileRef, notice, opts); err == nil {
				return id, nil
			}
		} else {
			if id, err := n.sender.SendDocument(ctx, chatID, att.FileRef, notice, opts); err == nil {
				return id, nil
			}
		}
		return n.sender.SendMessage(ctx, chatID, notice+texts.AttachmentDeliveryFailed, opts)
	}
	return n.sender.SendMessage(ctx, chatID, notice, opts)
}

// AnnounceUpdate delivers a client follow-up notice to every admin
// channel.
func (n *Notifier) AnnounceUpdate(ctx context.Context, t *domain.Ticket, update string) []domain.MessageRef {
	notice := texts.AdminUpdateNotice(t, update)
	opts := &platform.SendOptions{ParseMode: "Markdown", ReplyMarkup: texts.AdminTicketKeyboard(t.ID)}

	var refs []domain.MessageRef
	for _, chatID := range n.admins {
		messageID, err := n.sender.SendMessage(ctx, chatID, notice, opts)
		if err != nil {
			n.logger.Warn("admin update notice delivery failed",
				zap.Int64("chat_id", chatID), zap.String("ticket_id", t.ID), zap.Error(err))
			continue
		}
		refs = append(refs, domain.MessageRef{ChatID: chatID, MessageID: messageID})
		if n.correlate != nil {
			n.correlate.Remember(chatID, messageID, t.ID)
		}
	}
	return refs
}

// AnnounceReopened alerts every admin channel that the client rejected
// a resolution.
func (n *Notifier) AnnounceReopened(ctx context.Context, ticketID string) {
	opts := &platform.SendOptions{ParseMode: "Markdown", ReplyMarkup: texts.AdminTicketKeyboard(ticketID)}
	for _, chatID := range n.admins {
		messageID, err := n.sender.SendMessage(ctx, chatID, texts.ReopenedNotice(ticketID), opts)
		if err != nil {
			n.logger.Warn("reopened notice delivery failed",
				zap.Int64("chat_id", chatID), zap.String("ticket_id", ticketID), zap.Error(err))
			continue
		}
		if n.correlate != nil {
			n.correlate.Remember(chatID, messageID, ticketID)
		}
	}
}

// AckRequester confirms receipt to the ticket's requester.
func (n *Notifier) AckRequester(ctx context.Context, t *domain.Ticket, updated bool) {
	text := texts.AckReceived(t.ID, t.Priority)
	if updated {
		text = texts.UpdateAck(t.ID)
	}
	if _, err := n.sender.SendMessage(ctx, t.Requester.ExternalID, text, markdown); err != nil {
		n.logger.Warn("requester acknowledgment failed",
			zap.Int64("chat_id", t.Requester.ExternalID), zap.String("ticket_id", t.ID), zap.Error(err))
	}
}
