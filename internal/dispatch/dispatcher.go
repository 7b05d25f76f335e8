// Package dispatch routes inbound platform updates: it classifies each
// event by sender role and message shape, then drives the ticket
// lifecycle, the admin reply workflow, or the presentation surfaces
// (FAQ, prompts, commands).
package dispatch

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/flashproto/support-bot/internal/classify"
	"github.com/flashproto/support-bot/internal/config"
	"github.com/flashproto/support-bot/internal/domain"
	"github.com/flashproto/support-bot/internal/observability"
	"github.com/flashproto/support-bot/internal/platform"
	"github.com/flashproto/support-bot/internal/reply"
	"github.com/flashproto/support-bot/internal/texts"
	"github.com/flashproto/support-bot/internal/ticket"
	apperrors "github.com/flashproto/support-bot/pkg/util"
)

// Dispatcher is the inbound routing layer.
type Dispatcher struct {
	bot      config.BotConfig
	profile  *config.BotProfile
	keys     *classify.KeySet
	tickets  *ticket.Service
	workflow *reply.Workflow
	pending  reply.PendingStore
	sender   platform.Sender
	correl   *MessageCorrelator
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// Dependencies bundles collaborators for dispatcher construction.
type Dependencies struct {
	Bot      config.BotConfig
	Profile  *config.BotProfile
	Keys     *classify.KeySet
	Tickets  *ticket.Service
	Workflow *reply.Workflow
	Pending  reply.PendingStore
	Sender   platform.Sender
	Correl   *MessageCorrelator
	Metrics  *observability.Metrics
	Logger   *zap.Logger
}

// NewDispatcher constructs the dispatcher.
func NewDispatcher(deps Dependencies) *Dispatcher {
	return &Dispatcher{
		bot:      deps.Bot,
		profile:  deps.Profile,
		keys:     deps.Keys,
		tickets:  deps.Tickets,
		workflow: deps.Workflow,
		pending:  deps.Pending,
		sender:   deps.Sender,
		correl:   deps.Correl,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
	}
}

var markdown = &platform.SendOptions{ParseMode: "Markdown"}

// HandleUpdate fully processes one inbound event. All failures are
// absorbed here and converted to a user-visible apology or denial.
func (d *Dispatcher) HandleUpdate(ctx context.Context, update platform.Update) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("panic while handling update",
				zap.Int64("update_id", update.UpdateID), zap.Any("panic", r))
			d.metrics.RecordUpdate("panic", false)
		}
	}()

	switch {
	case update.CallbackQuery != nil:
		err := d.handleCallback(ctx, update.CallbackQuery)
		d.finish(ctx, "callback", chatOf(update.CallbackQuery), err)
	case update.Message != nil:
		kind, err := d.handleMessage(ctx, update.Message)
		d.finish(ctx, kind, update.Message.Chat.ID, err)
	}
}

// finish applies the boundary error policy: not-found and denial map
// to their fixed responses, anything else to an apology.
func (d *Dispatcher) finish(ctx context.Context, kind string, chatID int64, err error) {
	if err == nil {
		d.metrics.RecordUpdate(kind, true)
		return
	}
	d.metrics.RecordUpdate(kind, false)

	domainErr := apperrors.ToDomainError(err)
	switch domainErr.Code {
	case apperrors.CodeTicketNotFound:
		d.say(ctx, chatID, texts.TicketNotFound)
	case apperrors.CodeAccessDenied:
		d.say(ctx, chatID, texts.AccessDenied)
	default:
		d.logger.Error("update handling failed", zap.String("kind", kind), zap.Error(err))
		d.say(ctx, chatID, texts.Apology)
	}
}

func (d *Dispatcher) handleMessage(ctx context.Context, msg *platform.Message) (string, error) {
	if msg.From == nil {
		return "message", nil
	}
	text := strings.TrimSpace(msg.Text)

	switch {
	case strings.HasPrefix(text, "/"):
		return "command", d.handleCommand(ctx, msg, text)
	case len(msg.Photo) > 0 || msg.Document != nil:
		return "media", d.handleMedia(ctx, msg)
	default:
		return "text", d.handleText(ctx, msg, text)
	}
}

func (d *Dispatcher) handleText(ctx context.Context, msg *platform.Message, text string) error {
	from := msg.From

	if d.bot.IsAdmin(from.ID) {
		return d.handleAdminText(ctx, msg, text)
	}

	// Quick keyboard labels answer with their prompt, no ticket.
	switch text {
	case texts.LabelSendKey:
		d.say(ctx, msg.Chat.ID, texts.KeyPrompt)
		return nil
	case texts.LabelSendWallet:
		d.say(ctx, msg.Chat.ID, texts.WalletPrompt)
		return nil
	case texts.LabelReportIssue:
		d.say(ctx, msg.Chat.ID, texts.SupportPrompt)
		return nil
	case texts.LabelFAQ:
		return d.showFAQRoot(ctx, msg.Chat.ID)
	}

	// A quoted acknowledgment routes the message to the existing
	// ticket (or a client-update ticket when the target is stale).
	if msg.ReplyTo != nil {
		if targetID, ok := texts.ExtractTicketID(quotedText(msg.ReplyTo)); ok {
			_, _, err := d.tickets.Create(ctx, ticket.CreateInput{
				Requester:     requesterOf(from),
				Category:      domain.CategoryClientUpdate,
				Body:          text,
				ReplyTargetID: targetID,
			})
			return err
		}
	}

	maybeKey := strings.ToUpper(text)
	if d.keys.Contains(maybeKey) {
		d.say(ctx, msg.Chat.ID, texts.KeyValid(maybeKey))
		_, _, err := d.tickets.Create(ctx, ticket.CreateInput{
			Requester: requesterOf(from),
			Category:  domain.CategoryKeyCheck,
			Body:      "Key check: " + maybeKey,
		})
		return err
	}

	if classify.LooksLikeWalletAddress(text) {
		d.say(ctx, msg.Chat.ID, texts.WalletValid(text))
		_, _, err := d.tickets.Create(ctx, ticket.CreateInput{
			Requester: requesterOf(from),
			Category:  domain.CategoryWalletCheck,
			Body:      "Wallet check: " + text,
		})
		return err
	}

	_, _, err := d.tickets.Create(ctx, ticket.CreateInput{
		Requester: requesterOf(from),
		Category:  domain.CategorySupport,
		Body:      text,
	})
	return err
}

// handleAdminText processes free text from an operator: staged-reply
// input when a reply target is pending, quote-addressed staging, and
// otherwise silence (casual admin chatter must not mutate tickets).
func (d *Dispatcher) handleAdminText(ctx context.Context, msg *platform.Message, text string) error {
	adminID := msg.From.ID

	targetID, ok, err := d.pending.Get(ctx, adminID)
	if err != nil {
		d.logger.Warn("pending store read failed", zap.Int64("admin_id", adminID), zap.Error(err))
	}
	if ok {
		if err := d.pending.Clear(ctx, adminID); err != nil {
			d.logger.Warn("pending store clear failed", zap.Int64("admin_id", adminID), zap.Error(err))
		}
		return d.workflow.Stage(ctx, adminID, targetID, text)
	}

	if msg.ReplyTo != nil {
		if ticketID, ok := d.correl.resolve(msg.Chat.ID, msg.ReplyTo.MessageID, quotedText(msg.ReplyTo)); ok {
			return d.workflow.Stage(ctx, adminID, ticketID, text)
		}
	}

	// Plain admin text is ignored entirely.
	return nil
}

func (d *Dispatcher) handleMedia(ctx context.Context, msg *platform.Message) error {
	if d.bot.IsAdmin(msg.From.ID) {
		// Admin media never opens tickets.
		return nil
	}

	caption := strings.TrimSpace(msg.Caption)
	if caption == "" {
		caption = "No description provided"
	}

	var (
		att      domain.Attachment
		category domain.TicketCategory
	)
	if ref := msg.LargestPhoto(); ref != "" {
		att = domain.Attachment{FileRef: ref, Kind: domain.AttachmentPhoto, FileName: "photo", Caption: caption}
		category = domain.CategorySupportPhoto
	} else {
		att = domain.Attachment{FileRef: msg.Document.FileID, Kind: domain.AttachmentDocument, FileName: msg.Document.FileName, Caption: caption}
		category = domain.CategorySupportDoc
	}

	_, _, err := d.tickets.Create(ctx, ticket.CreateInput{
		Requester:  requesterOf(msg.From),
		Category:   category,
		Body:       caption,
		Attachment: &att,
	})
	if err != nil {
		d.say(ctx, msg.Chat.ID, texts.MediaApology)
	}
	return err
}

func quotedText(msg *platform.Message) string {
	if msg.Text != "" {
		return msg.Text
	}
	return msg.Caption
}

func requesterOf(u *platform.User) domain.Requester {
	return domain.Requester{
		ExternalID:  u.ID,
		DisplayName: u.DisplayName(),
		Handle:      u.HandleTag(),
	}
}

func chatOf(cb *platform.CallbackQuery) int64 {
	if cb.Message != nil {
		return cb.Message.Chat.ID
	}
	if cb.From != nil {
		return cb.From.ID
	}
	return 0
}

func (d *Dispatcher) say(ctx context.Context, chatID int64, text string) {
	if chatID == 0 {
		return
	}
	if _, err := d.sender.SendMessage(ctx, chatID, text, markdown); err != nil {
		d.logger.Warn("outbound message failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (d *Dispatcher) showFAQRoot(ctx context.Context, chatID int64) error {
	root, ok := d.profile.FAQ["faq_main"]
	if !ok {
		d.say(ctx, chatID, texts.FAQUnavailable)
		return nil
	}
	opts := &platform.SendOptions{ReplyMarkup: texts.FAQKeyboard(root.Buttons)}
	if _, err := d.sender.SendMessage(ctx, chatID, root.Text, opts); err != nil {
		return apperrors.NewDeliveryFailure(err)
	}
	return nil
}

func ticketIDArg(arg string) string {
	return strings.ToUpper(strings.TrimSpace(arg))
}

// statusFromText maps operator text onto the status enum, falling back
// to the custom variant for anything unrecognized.
func statusFromText(text string) domain.Status {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "open":
		return domain.NewStatus(domain.StatusOpen)
	case "closed", "closed (admin)":
		return domain.NewStatus(domain.StatusClosedByAdmin)
	case "awaiting client confirmation":
		return domain.NewStatus(domain.StatusAwaitingClient)
	default:
		return domain.NewCustomStatus(text)
	}
}

func fmtUsage(cmd, args string) string {
	return fmt.Sprintf("Usage: /%s %s", cmd, args)
}

func adminActor(id int64) string {
	return fmt.Sprintf("admin:%d", id)
}
