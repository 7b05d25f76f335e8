package dispatch

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/flashproto/support-bot/internal/domain"
	"github.com/flashproto/support-bot/internal/platform"
	"github.com/flashproto/support-bot/internal/texts"
	apperrors "github.com/flashproto/support-bot/pkg/util"
)

// handleCommand routes slash commands. Operator-only commands answer
// with a denial for everyone else.
func (d *Dispatcher) handleCommand(ctx context.Context, msg *platform.Message, text string) error {
	name, args := splitCommand(text)
	chatID := msg.Chat.ID
	isAdmin := d.bot.IsAdmin(msg.From.ID)

	switch name {
	case "start":
		opts := &platform.SendOptions{ParseMode: "Markdown", ReplyMarkup: texts.MainKeyboard()}
		if _, err := d.sender.SendMessage(ctx, chatID, texts.Start, opts); err != nil {
			return apperrors.NewDeliveryFailure(err)
		}
		return nil

	case "help":
		d.say(ctx, chatID, texts.Help)
		return nil

	case "status":
		return d.cmdStatus(ctx, msg, args, isAdmin)

	case "history":
		return d.cmdHistory(ctx, msg, args, isAdmin)

	case "tickets":
		if !isAdmin {
			return apperrors.NewAccessDenied()
		}
		open, err := d.tickets.ListOpen(ctx)
		if err != nil {
			return err
		}
		d.say(ctx, chatID, texts.OpenTicketList(open))
		return nil

	case "reply":
		if !isAdmin {
			return apperrors.NewAccessDenied()
		}
		return d.cmdReply(ctx, msg, args)

	case "qr":
		if !isAdmin {
			return apperrors.NewAccessDenied()
		}
		return d.cmdQuickReply(ctx, msg, args)

	case "note":
		if !isAdmin {
			return apperrors.NewAccessDenied()
		}
		return d.cmdNote(ctx, msg, args)

	case "search":
		if !isAdmin {
			return apperrors.NewAccessDenied()
		}
		query := strings.TrimSpace(args)
		if query == "" {
			d.say(ctx, chatID, fmtUsage("search", "<text>"))
			return nil
		}
		found, err := d.tickets.Search(ctx, query)
		if err != nil {
			return err
		}
		d.say(ctx, chatID, texts.SearchResults(query, found))
		return nil

	case "setstatus":
		if !isAdmin {
			return apperrors.NewAccessDenied()
		}
		return d.cmdSetStatus(ctx, msg, args)

	case "dashboard":
		if !isAdmin {
			return apperrors.NewAccessDenied()
		}
		stats, err := d.tickets.DashboardStats(ctx)
		if err != nil {
			return err
		}
		d.say(ctx, chatID, texts.Dashboard(stats.Total, stats.OpenLike, stats.OpenByPriority))
		return nil

	default:
		// Unknown commands fall back to the help text.
		d.say(ctx, chatID, texts.Help)
		return nil
	}
}

func (d *Dispatcher) cmdStatus(ctx context.Context, msg *platform.Message, args string, isAdmin bool) error {
	id := ticketIDArg(args)
	if id == "" {
		d.say(ctx, msg.Chat.ID, fmtUsage("status", "<TICKET_ID>"))
		return nil
	}
	t, err := d.lookupFor(ctx, msg.From.ID, id, isAdmin)
	if err != nil {
		return err
	}
	d.say(ctx, msg.Chat.ID, texts.StatusView(t))
	return nil
}

func (d *Dispatcher) cmdHistory(ctx context.Context, msg *platform.Message, args string, isAdmin bool) error {
	id := ticketIDArg(args)
	if id == "" {
		d.say(ctx, msg.Chat.ID, fmtUsage("history", "<TICKET_ID>"))
		return nil
	}
	t, err := d.lookupFor(ctx, msg.From.ID, id, isAdmin)
	if err != nil {
		return err
	}
	d.say(ctx, msg.Chat.ID, texts.HistoryView(t))
	return nil
}

// lookupFor fetches a ticket with ownership rules applied: operators
// see every ticket, requesters only their own.
func (d *Dispatcher) lookupFor(ctx context.Context, userID int64, id string, isAdmin bool) (*domain.Ticket, error) {
	if isAdmin {
		return d.tickets.FindByID(ctx, id)
	}
	return d.tickets.FindByRequesterAndID(ctx, userID, id)
}

// cmdReply arms the reply flow. With only a ticket id the next free
// text from this operator becomes the staged reply; with trailing text
// the reply is staged immediately.
func (d *Dispatcher) cmdReply(ctx context.Context, msg *platform.Message, args string) error {
	id, rest := splitArg(args)
	id = ticketIDArg(id)
	if id == "" {
		d.say(ctx, msg.Chat.ID, fmtUsage("reply", "<TICKET_ID> [text]"))
		return nil
	}
	if _, err := d.tickets.FindByID(ctx, id); err != nil {
		return err
	}
	if rest != "" {
		return d.workflow.Stage(ctx, msg.From.ID, id, rest)
	}
	if err := d.pending.Set(ctx, msg.From.ID, id); err != nil {
		d.logger.Warn("pending store write failed", zap.Int64("admin_id", msg.From.ID), zap.Error(err))
	}
	d.say(ctx, msg.Chat.ID, texts.ReplyModePrompt(id))
	return nil
}

// cmdQuickReply sends a canned response straight to the requester,
// bypassing the staging step.
func (d *Dispatcher) cmdQuickReply(ctx context.Context, msg *platform.Message, args string) error {
	id, key := splitArg(args)
	id = ticketIDArg(id)
	if id == "" {
		d.say(ctx, msg.Chat.ID, fmtUsage("qr", "<TICKET_ID> [key]"))
		return nil
	}
	if _, err := d.tickets.FindByID(ctx, id); err != nil {
		return err
	}
	key = strings.TrimSpace(key)
	if key == "" {
		opts := &platform.SendOptions{ReplyMarkup: texts.QuickReplyKeyboard(id, d.profile.QuickReplyKeys())}
		if _, err := d.sender.SendMessage(ctx, msg.Chat.ID, "Choose a quick reply:", opts); err != nil {
			return apperrors.NewDeliveryFailure(err)
		}
		return nil
	}
	body, ok := d.profile.QuickReplies[key]
	if !ok {
		d.say(ctx, msg.Chat.ID, texts.QuickReplyUnknown(key, d.profile.QuickReplyKeys()))
		return nil
	}
	return d.workflow.SendDirect(ctx, msg.From.ID, id, body, true)
}

func (d *Dispatcher) cmdNote(ctx context.Context, msg *platform.Message, args string) error {
	id, note := splitArg(args)
	id = ticketIDArg(id)
	note = strings.TrimSpace(note)
	if id == "" || note == "" {
		d.say(ctx, msg.Chat.ID, fmtUsage("note", "<TICKET_ID> <text>"))
		return nil
	}
	if _, err := d.tickets.AddNote(ctx, id, msg.From.ID, note); err != nil {
		return err
	}
	d.say(ctx, msg.Chat.ID, "📝 Note saved on *"+id+"*")
	return nil
}

func (d *Dispatcher) cmdSetStatus(ctx context.Context, msg *platform.Message, args string) error {
	id, label := splitArg(args)
	id = ticketIDArg(id)
	label = strings.TrimSpace(label)
	if id == "" || label == "" {
		d.say(ctx, msg.Chat.ID, fmtUsage("setstatus", "<TICKET_ID> <status>"))
		return nil
	}
	actor := adminActor(msg.From.ID)
	t, err := d.tickets.SetStatus(ctx, id, statusFromText(label), actor)
	if err != nil {
		return err
	}
	d.say(ctx, msg.Chat.ID, "Status of *"+t.ID+"* is now _"+t.Status.Label()+"_")
	return nil
}

// splitCommand extracts the command name (without slash or @mention)
// and the raw argument tail.
func splitCommand(text string) (name, args string) {
	name, args = splitArg(strings.TrimPrefix(text, "/"))
	if at := strings.IndexByte(name, '@'); at >= 0 {
		name = name[:at]
	}
	return strings.ToLower(name), args
}

func splitArg(text string) (first, rest string) {
	text = strings.TrimSpace(text)
	if i := strings.IndexAny(text, " \t\n"); i >= 0 {
		return text[:i], strings.TrimSpace(text[i+1:])
	}
	return text, ""
}
