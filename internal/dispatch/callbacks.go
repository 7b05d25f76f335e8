package dispatch

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/flashproto/support-bot/internal/platform"
	"github.com/flashproto/support-bot/internal/texts"
	apperrors "github.com/flashproto/support-bot/pkg/util"
)

// handleCallback routes inline-button presses. The press is always
// acknowledged first so the client UI stops spinning even when the
// action afterwards fails.
func (d *Dispatcher) handleCallback(ctx context.Context, cb *platform.CallbackQuery) error {
	if err := d.sender.AnswerCallback(ctx, cb.ID); err != nil {
		d.logger.Warn("callback ack failed", zap.String("callback_id", cb.ID), zap.Error(err))
	}
	if cb.From == nil {
		return nil
	}

	data := strings.TrimSpace(cb.Data)
	chatID := chatOf(cb)

	tag, arg := data, ""
	if i := strings.IndexByte(data, ':'); i >= 0 {
		tag, arg = data[:i], data[i+1:]
	}

	switch tag {
	case texts.ActionTicketView:
		if !d.bot.IsAdmin(cb.From.ID) {
			return apperrors.NewAccessDenied()
		}
		t, err := d.tickets.FindByID(ctx, arg)
		if err != nil {
			return err
		}
		opts := &platform.SendOptions{ParseMode: "Markdown", ReplyMarkup: texts.AdminTicketKeyboard(t.ID)}
		if _, err := d.sender.SendMessage(ctx, chatID, texts.TicketView(t), opts); err != nil {
			return apperrors.NewDeliveryFailure(err)
		}
		return nil

	case texts.ActionTicketReply:
		if !d.bot.IsAdmin(cb.From.ID) {
			return apperrors.NewAccessDenied()
		}
		if _, err := d.tickets.FindByID(ctx, arg); err != nil {
			return err
		}
		if err := d.pending.Set(ctx, cb.From.ID, arg); err != nil {
			d.logger.Warn("pending store write failed", zap.Int64("admin_id", cb.From.ID), zap.Error(err))
		}
		d.say(ctx, chatID, texts.ReplyModePrompt(arg))
		return nil

	case texts.ActionTicketClose:
		if !d.bot.IsAdmin(cb.From.ID) {
			return apperrors.NewAccessDenied()
		}
		t, err := d.tickets.Close(ctx, arg, adminActor(cb.From.ID))
		if err != nil {
			return err
		}
		d.say(ctx, chatID, texts.ClosedByAdmin(t.ID))
		d.say(ctx, t.Requester.ExternalID, texts.ClosedByAdmin(t.ID))
		return nil

	case texts.ActionTicketDelete:
		if !d.bot.IsAdmin(cb.From.ID) {
			return apperrors.NewAccessDenied()
		}
		if _, err := d.tickets.Delete(ctx, arg, adminActor(cb.From.ID)); err != nil {
			return err
		}
		d.correl.Forget(arg)
		d.say(ctx, chatID, texts.Deleted(arg))
		return nil

	case texts.ActionTicketQR:
		if !d.bot.IsAdmin(cb.From.ID) {
			return apperrors.NewAccessDenied()
		}
		if _, err := d.tickets.FindByID(ctx, arg); err != nil {
			return err
		}
		opts := &platform.SendOptions{ReplyMarkup: texts.QuickReplyKeyboard(arg, d.profile.QuickReplyKeys())}
		if _, err := d.sender.SendMessage(ctx, chatID, "Choose a quick reply:", opts); err != nil {
			return apperrors.NewDeliveryFailure(err)
		}
		return nil

	case texts.ActionQRExec:
		if !d.bot.IsAdmin(cb.From.ID) {
			return apperrors.NewAccessDenied()
		}
		ticketID, key, ok := strings.Cut(arg, ":")
		if !ok {
			return nil
		}
		body, found := d.profile.QuickReplies[key]
		if !found {
			d.say(ctx, chatID, texts.QuickReplyUnknown(key, d.profile.QuickReplyKeys()))
			return nil
		}
		return d.workflow.SendDirect(ctx, cb.From.ID, ticketID, body, true)

	case texts.ActionReplyConfirm:
		if !d.bot.IsAdmin(cb.From.ID) {
			return apperrors.NewAccessDenied()
		}
		return d.workflow.Confirm(ctx, cb.From.ID, arg)

	case texts.ActionReplyCancel:
		if !d.bot.IsAdmin(cb.From.ID) {
			return apperrors.NewAccessDenied()
		}
		return d.workflow.Cancel(ctx, cb.From.ID, arg)

	case texts.ActionConfirmYes, texts.ActionConfirmNo:
		// Only the ticket's own requester may answer the resolution
		// prompt.
		if _, err := d.tickets.FindByRequesterAndID(ctx, cb.From.ID, arg); err != nil {
			return err
		}
		confirmed := tag == texts.ActionConfirmYes
		t, err := d.tickets.ResolveClientConfirmation(ctx, arg, confirmed)
		if err != nil {
			return err
		}
		if confirmed {
			d.say(ctx, chatID, texts.ClientClosed(t.ID))
		} else {
			d.say(ctx, chatID, texts.ClientReopened(t.ID))
		}
		return nil

	default:
		if strings.HasPrefix(data, texts.ActionFAQPrefix) {
			return d.showFAQNode(ctx, cb, data)
		}
		d.logger.Debug("unknown callback action", zap.String("data", data))
		return nil
	}
}

// showFAQNode swaps the FAQ message in place for the selected node so
// the conversation does not fill up with menu copies.
func (d *Dispatcher) showFAQNode(ctx context.Context, cb *platform.CallbackQuery, node string) error {
	entry, ok := d.profile.FAQ[node]
	if !ok {
		d.say(ctx, chatOf(cb), texts.FAQUnavailable)
		return nil
	}
	opts := &platform.SendOptions{ReplyMarkup: texts.FAQKeyboard(entry.Buttons)}
	if cb.Message != nil {
		if err := d.sender.EditMessageText(ctx, cb.Message.Chat.ID, cb.Message.MessageID, entry.Text, opts); err == nil {
			return nil
		}
	}
	if _, err := d.sender.SendMessage(ctx, chatOf(cb), entry.Text, opts); err != nil {
		return apperrors.NewDeliveryFailure(err)
	}
	return nil
}
