// Package texts renders every outbound message and keyboard. The
// created-notice and acknowledgment embed the ticket id; TicketIDPattern
// recovers it from quoted copies, so the id format in these templates is
// part of the protocol, not cosmetics.
package texts

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/flashproto/support-bot/internal/config"
	"github.com/flashproto/support-bot/internal/domain"
	"github.com/flashproto/support-bot/internal/platform"
)

// TicketIDPattern matches ticket ids embedded in outbound notices.
var TicketIDPattern = regexp.MustCompile(`FP-SUP-\d{5}`)

// ExtractTicketID pulls the first ticket id out of rendered text.
func ExtractTicketID(text string) (string, bool) {
	id := TicketIDPattern.FindString(text)
	return id, id != ""
}

// Callback action tags, colon-delimited with the ticket id (and for
// quick replies, the reply key).
const (
	ActionFAQPrefix    = "faq_"
	ActionTicketView   = "ticket_view"
	ActionTicketReply  = "ticket_reply"
	ActionTicketClose  = "ticket_close"
	ActionTicketDelete = "ticket_delete"
	ActionTicketQR     = "ticket_qr"
	ActionQRExec       = "qr_exec"
	ActionReplyConfirm = "reply_confirm"
	ActionReplyCancel  = "reply_cancel"
	ActionConfirmYes   = "confirm_close_yes"
	ActionConfirmNo    = "confirm_close_no"
)

// Reply-keyboard labels shown to end users.
const (
	LabelSendKey     = "🔑 Send key code"
	LabelSendWallet  = "🏦 Send TRC20 wallet"
	LabelReportIssue = "📝 Report an issue"
	LabelFAQ         = "📕 FAQ"
)

const Start = "📡 Flash Protocol Support Hub\n\n" +
	"Hello — you can send:\n" +
	"• Key code (e.g. FP12-L3-250K-W05)\n" +
	"• TRC20 wallet address (starts with T)\n" +
	"• Or describe your issue now.\n\nChoose:"

const Help = "⚙️ Useful commands:\n" +
	"/start - Begin conversation\n" +
	"/help - Help\n" +
	"/status <TICKET_ID> - View ticket status\n" +
	"/history <TICKET_ID> - View ticket history\n"

const (
	KeyPrompt     = "Please send the key code here (example: FP12-L3-250K-W05)"
	WalletPrompt  = "Please send the TRC20 wallet address here (starts with T)"
	SupportPrompt = "📝 Please describe your issue here. Provide as many details as possible (key if available, wallet, TXID, photos...)."

	FAQUnavailable = "Sorry, FAQ data is currently unavailable."
	TicketNotFound = "Sorry, the ticket was not found or it has been deleted."
	AccessDenied   = "Access denied."
	Apology        = "Sorry, an error occurred while processing your message. Please try again."
	MediaApology   = "Sorry, an error occurred while processing the attached file. Please try sending a text message first."
)

// AckReceived confirms ticket creation to the requester. Carries the id.
func AckReceived(ticketID string, priority domain.TicketPriority) string {
	return fmt.Sprintf("✅ Your request has been received. Ticket ID: *%s*\nPriority: *%s*\n\n"+
		"Ticket status: _Under review_.\nYou can check status with: `/status %s`",
		ticketID, priority, ticketID)
}

// UpdateAck confirms a follow-up was attached to an existing ticket.
func UpdateAck(ticketID string) string {
	return fmt.Sprintf("✅ Your follow-up was added to ticket *%s*. Support staff will review it shortly.", ticketID)
}

func KeyValid(key string) string {
	return fmt.Sprintf("🔒 Key check: *%s*\n\n✅ Result: The key is recognized and valid in the local database.", key)
}

func WalletValid(addr string) string {
	return fmt.Sprintf("🔗 Wallet check: `%s`\n\n✅ Result: The TRC20 address appears valid for preliminary linking.", addr)
}

// AdminNotice announces a new ticket on the admin channel. Carries the
// id for quote-based addressing.
func AdminNotice(t *domain.Ticket) string {
	return fmt.Sprintf("🔔 New ticket: *%s* (Priority: %s)\nFrom: %s (%d) %s\nType: %s\nContent:\n%s",
		t.ID, t.Priority, t.Requester.DisplayName, t.Requester.ExternalID, t.Requester.Handle,
		t.Category, t.Body)
}

// AdminUpdateNotice announces a client follow-up on an existing ticket.
func AdminUpdateNotice(t *domain.Ticket, update string) string {
	return fmt.Sprintf("📬 Ticket *%s* updated by client %s (%d):\n\n%s",
		t.ID, t.Requester.DisplayName, t.Requester.ExternalID, update)
}

// AdminNoticeAttachmentNote annotates a notice whose media could not be
// delivered.
func AdminNoticeAttachmentNote(att *domain.Attachment) string {
	name := att.FileName
	if name == "" {
		name = att.FileRef
	}
	return fmt.Sprintf("\n\n_Attached file/photo: %s (%s)_", att.Kind, name)
}

const AttachmentDeliveryFailed = "\n\n⚠️ _The attached file could not be forwarded; it remains available on the original message._"

// ReplyNotice delivers an admin reply to the requester.
func ReplyNotice(ticketID, replyText string) string {
	return fmt.Sprintf("🔔 Update for your ticket *%s* (Reply from support):\n\n%s", ticketID, replyText)
}

// StagePrompt asks the admin to confirm or discard a staged reply.
func StagePrompt(ticketID, replyText string) string {
	return fmt.Sprintf("↩️ Staged reply for ticket *%s*:\n\n%s\n\nSend it to the client?", ticketID, replyText)
}

// ReplyModePrompt tells the admin their next message becomes the reply.
func ReplyModePrompt(ticketID string) string {
	return fmt.Sprintf("↩️ *Reply mode for ticket %s*:\nPlease send your reply text now.", ticketID)
}

func ReplySent(ticketID string) string {
	return fmt.Sprintf("✅ The reply was successfully sent to the customer (ticket: %s). "+
		"The status has been changed to \"awaiting customer confirmation\".", ticketID)
}

const ReplySendFailed = "❌ Failed to send the response to the client. The user might have blocked the bot or an error occurred."

func ReplyCancelled(ticketID string) string {
	return fmt.Sprintf("↩️ Staged reply for ticket *%s* discarded.", ticketID)
}

func ClosedByAdmin(ticketID string) string {
	return fmt.Sprintf("✅ Ticket *%s* has been closed by admin.", ticketID)
}

func Deleted(ticketID string) string {
	return fmt.Sprintf("🗑️ Ticket *%s* has been deleted.", ticketID)
}

func ClientClosed(ticketID string) string {
	return fmt.Sprintf("✅ Thank you! Your ticket *%s* has been closed successfully.", ticketID)
}

func ClientReopened(ticketID string) string {
	return fmt.Sprintf("⚠️ Your ticket *%s* has been reopened. Support staff will review it again.", ticketID)
}

// ReopenedNotice alerts the admin channel that a client rejected the
// resolution.
func ReopenedNotice(ticketID string) string {
	return fmt.Sprintf("⚠️ Ticket *%s* has been reopened by the client.", ticketID)
}

// TicketView renders full ticket details for an admin.
func TicketView(t *domain.Ticket) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*%s* | %s | Priority: %s\n", t.ID, t.Category, t.Priority)
	fmt.Fprintf(&b, "From: %s (%d) %s\n", t.Requester.DisplayName, t.Requester.ExternalID, t.Requester.Handle)
	fmt.Fprintf(&b, "Status: *%s*\n\n", strings.ToUpper(t.Status.Label()))
	fmt.Fprintf(&b, "Content:\n%s", t.Body)
	if t.Attachment != nil {
		fmt.Fprintf(&b, "\n\n_Attached: %s_", t.Attachment.Kind)
	}
	if len(t.Notes) > 0 {
		fmt.Fprintf(&b, "\n\nNotes (%d):", len(t.Notes))
		for _, n := range t.Notes {
			fmt.Fprintf(&b, "\n• [%s] %d: %s", n.Time.Format("01-02 15:04"), n.AuthorID, n.Text)
		}
	}
	return b.String()
}

// StatusView renders the requester-facing /status output.
func StatusView(t *domain.Ticket) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*Ticket status: %s*\n", t.ID)
	fmt.Fprintf(&b, "Priority: %s\n", t.Priority)
	fmt.Fprintf(&b, "Status: *%s*\n", strings.ToUpper(t.Status.Label()))
	fmt.Fprintf(&b, "Created on: %s\n", t.CreatedAt.Format("2006-01-02"))
	fmt.Fprintf(&b, "Content: _%s_\n\n", truncate(t.Body, 100))

	if t.Status.IsClosed() {
		if note, ok := t.LastNote(); ok {
			fmt.Fprintf(&b, "Last reply from support:\n_%s_", truncate(note.Text, 150))
			return b.String()
		}
	}
	if t.Status.IsOpenLike() {
		b.WriteString("The ticket is under review; our team will respond shortly.")
	}
	return b.String()
}

// HistoryView renders the requester-facing /history output.
func HistoryView(t *domain.Ticket) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*History for ticket %s:*\n", t.ID)
	if len(t.History) == 0 {
		b.WriteString("\nNo recorded actions yet.")
		return b.String()
	}
	for _, h := range t.History {
		fmt.Fprintf(&b, "\n%s — %s (%s)", h.Time.Format("2006-01-02 15:04"), h.Action, h.Actor)
	}
	return b.String()
}

// OpenTicketList renders the admin /tickets overview.
func OpenTicketList(tickets []*domain.Ticket) string {
	if len(tickets) == 0 {
		return "No open tickets at the moment."
	}
	var b strings.Builder
	b.WriteString("*Open tickets (last 20):*\n")
	for _, t := range tickets {
		fmt.Fprintf(&b, "\n%s (%s) | %s | %s | %s\n",
			t.ID, t.Priority, t.Category, t.Requester.DisplayName, t.CreatedAt.Format("01-02 15:04"))
	}
	return b.String()
}

// SearchResults renders the admin /search output.
func SearchResults(query string, tickets []*domain.Ticket) string {
	if len(tickets) == 0 {
		return fmt.Sprintf("No tickets matching %q.", query)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "*Tickets matching %q:*\n", query)
	for _, t := range tickets {
		fmt.Fprintf(&b, "\n%s | %s | %s | %s\n", t.ID, t.Status.Label(), t.Requester.DisplayName, truncate(t.Body, 60))
	}
	return b.String()
}

// Dashboard renders the admin summary: totals and open counts by
// priority.
func Dashboard(total, openLike int, byPriority map[domain.TicketPriority]int) string {
	return fmt.Sprintf("📊 *Support dashboard*\n\nTickets total: %d\nOpen: %d\n\n"+
		"Open by priority:\nHIGH: %d\nMEDIUM: %d\nLOW: %d",
		total, openLike,
		byPriority[domain.TicketPriorityHigh],
		byPriority[domain.TicketPriorityMedium],
		byPriority[domain.TicketPriorityLow])
}

func QuickReplyUnknown(key string, available []string) string {
	sort.Strings(available)
	return fmt.Sprintf("Quick reply key (*%s*) not found in configuration.\nAvailable keys: %s",
		key, strings.Join(available, ", "))
}

func truncate(text string, max int) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "..."
}

// MainKeyboard is the four-button reply keyboard shown on /start.
func MainKeyboard() *platform.ReplyKeyboard {
	return &platform.ReplyKeyboard{
		Keyboard: [][]platform.KeyboardButton{
			{{Text: LabelSendKey}, {Text: LabelSendWallet}},
			{{Text: LabelReportIssue}, {Text: LabelFAQ}},
		},
		ResizeKeyboard: true,
	}
}

// AdminTicketKeyboard is attached to every admin notice.
func AdminTicketKeyboard(ticketID string) *platform.InlineKeyboard {
	return &platform.InlineKeyboard{
		InlineKeyboard: [][]platform.InlineButton{
			{
				{Text: "✅ Close ticket", CallbackData: ActionTicketClose + ":" + ticketID},
				{Text: "↩️ Reply to ticket", CallbackData: ActionTicketReply + ":" + ticketID},
			},
			{
				{Text: "⚙️ View details", CallbackData: ActionTicketView + ":" + ticketID},
				{Text: "🗑️ Delete ticket", CallbackData: ActionTicketDelete + ":" + ticketID},
			},
			{
				{Text: "⚡ Quick reply", CallbackData: ActionTicketQR + ":" + ticketID},
			},
		},
	}
}

// StageKeyboard offers confirm/cancel for a staged reply.
func StageKeyboard(ticketID string) *platform.InlineKeyboard {
	return &platform.InlineKeyboard{
		InlineKeyboard: [][]platform.InlineButton{
			{
				{Text: "✅ Send reply", CallbackData: ActionReplyConfirm + ":" + ticketID},
				{Text: "❌ Cancel", CallbackData: ActionReplyCancel + ":" + ticketID},
			},
		},
	}
}

// ClientConfirmKeyboard asks the requester whether the reply resolved
// the issue.
func ClientConfirmKeyboard(ticketID string) *platform.InlineKeyboard {
	return &platform.InlineKeyboard{
		InlineKeyboard: [][]platform.InlineButton{
			{
				{Text: "✅ Yes, resolved", CallbackData: ActionConfirmYes + ":" + ticketID},
				{Text: "❌ No, still an issue", CallbackData: ActionConfirmNo + ":" + ticketID},
			},
		},
	}
}

// QuickReplyKeyboard lists configured canned replies for a ticket.
func QuickReplyKeyboard(ticketID string, keys []string) *platform.InlineKeyboard {
	sort.Strings(keys)
	buttons := make([]platform.InlineButton, 0, len(keys))
	for _, key := range keys {
		buttons = append(buttons, platform.InlineButton{
			Text:         key,
			CallbackData: ActionQRExec + ":" + ticketID + ":" + key,
		})
	}
	return platform.SingleColumn(buttons...)
}

// FAQKeyboard lays out one FAQ node's navigation buttons.
func FAQKeyboard(buttons []config.FAQButton) *platform.InlineKeyboard {
	out := make([]platform.InlineButton, 0, len(buttons))
	for _, b := range buttons {
		out = append(out, platform.InlineButton{Text: b.Label, CallbackData: b.Key})
	}
	return platform.SingleColumn(out...)
}
