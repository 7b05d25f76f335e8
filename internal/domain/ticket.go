package domain

import (
	"fmt"
	"strings"
	"time"
)

// TicketPriority enumerates urgency levels assigned at creation.
type TicketPriority string

const (
	TicketPriorityHigh   TicketPriority = "HIGH"
	TicketPriorityMedium TicketPriority = "MEDIUM"
	TicketPriorityLow    TicketPriority = "LOW"
)

// TicketCategory describes what kind of request opened the ticket.
type TicketCategory string

const (
	CategoryKeyCheck     TicketCategory = "key-check"
	CategoryWalletCheck  TicketCategory = "wallet-check"
	CategorySupport      TicketCategory = "support"
	CategorySupportPhoto TicketCategory = "support-media-photo"
	CategorySupportDoc   TicketCategory = "support-media-document"
	CategoryClientUpdate TicketCategory = "client-update"
)

// StatusCode is the closed set of lifecycle states. Admins can still set
// arbitrary labels through StatusCustom, which carries free text.
type StatusCode string

const (
	StatusOpen            StatusCode = "open"
	StatusUpdatedByClient StatusCode = "updated_by_client"
	StatusAwaitingClient  StatusCode = "awaiting_client_confirmation"
	StatusClosedByAdmin   StatusCode = "closed_by_admin"
	StatusClosedConfirmed StatusCode = "closed_client_confirmed"
	StatusReopened        StatusCode = "reopened_by_client"
	StatusCustom          StatusCode = "custom"
)

// Status pairs a lifecycle code with optional operator-supplied text.
type Status struct {
	Code   StatusCode `json:"code"`
	Custom string     `json:"custom,omitempty"`
}

// NewStatus returns a Status for a known code.
func NewStatus(code StatusCode) Status {
	return Status{Code: code}
}

// NewCustomStatus wraps operator free text in the custom variant.
func NewCustomStatus(text string) Status {
	return Status{Code: StatusCustom, Custom: text}
}

// Label renders the status for display and substring matching.
func (s Status) Label() string {
	if s.Code == StatusCustom {
		return s.Custom
	}
	switch s.Code {
	case StatusOpen:
		return "open"
	case StatusUpdatedByClient:
		return "open (updated by client)"
	case StatusAwaitingClient:
		return "awaiting client confirmation"
	case StatusClosedByAdmin:
		return "closed (admin)"
	case StatusClosedConfirmed:
		return "closed (client confirmed)"
	case StatusReopened:
		return "open (reopened by client)"
	}
	return string(s.Code)
}

// IsClosed reports whether the ticket reached a terminal closed state.
func (s Status) IsClosed() bool {
	return s.Code == StatusClosedByAdmin || s.Code == StatusClosedConfirmed
}

// IsOpenLike reproduces the open-ticket filter: any label containing
// "open", "review" or "awaiting" counts as actionable. Custom labels
// participate through their text.
func (s Status) IsOpenLike() bool {
	label := strings.ToLower(s.Label())
	return strings.Contains(label, "open") ||
		strings.Contains(label, "review") ||
		strings.Contains(label, "awaiting")
}

// Requester identifies the end user who opened a ticket. Immutable
// after creation.
type Requester struct {
	ExternalID  int64  `json:"external_id"`
	DisplayName string `json:"display_name"`
	Handle      string `json:"handle,omitempty"`
}

// AttachmentKind distinguishes the two media shapes the platform sends.
type AttachmentKind string

const (
	AttachmentPhoto    AttachmentKind = "photo"
	AttachmentDocument AttachmentKind = "document"
)

// Attachment references a platform-hosted file tied to a ticket.
type Attachment struct {
	FileRef  string         `json:"external_file_ref"`
	Kind     AttachmentKind `json:"kind"`
	FileName string         `json:"filename,omitempty"`
	Caption  string         `json:"caption,omitempty"`
}

// Note is one entry of the admin-reply audit trail. Append-only.
type Note struct {
	Time     time.Time `json:"timestamp"`
	AuthorID int64     `json:"author_id"`
	Text     string    `json:"text"`
}

// HistoryEntry records a lifecycle action. Append-only, informational.
type HistoryEntry struct {
	Time   time.Time `json:"timestamp"`
	Action string    `json:"action"`
	Actor  string    `json:"actor"`
}

// MessageRef points at an outbound admin-channel message carrying a
// ticket notice, so quoted replies can be resolved without parsing text.
type MessageRef struct {
	ChatID    int64 `json:"chat_id"`
	MessageID int64 `json:"message_id"`
}

// Ticket is the sole persistent aggregate.
type Ticket struct {
	ID         string         `json:"id"`
	CreatedAt  time.Time      `json:"created_at"`
	Requester  Requester      `json:"requester"`
	Category   TicketCategory `json:"category"`
	Body       string         `json:"body"`
	Priority   TicketPriority `json:"priority"`
	Attachment *Attachment    `json:"attachment,omitempty"`
	Status     Status         `json:"status"`
	Notes      []Note         `json:"notes"`
	History    []HistoryEntry `json:"history"`

	// PendingReply holds staged admin reply text between staging and
	// confirm/cancel. Empty otherwise.
	PendingReply string `json:"pending_reply,omitempty"`

	// OriginMessages lists the admin-channel notice messages sent for
	// this ticket, newest last.
	OriginMessages []MessageRef `json:"origin_message_ref,omitempty"`
}

// AppendUpdate merges a client follow-up into the body with a
// timestamped separator and marks the ticket updated.
func (t *Ticket) AppendUpdate(text string, at time.Time) {
	sep := fmt.Sprintf("\n\n--- client update %s ---\n", at.UTC().Format(time.RFC3339))
	t.Body += sep + text
	t.Status = NewStatus(StatusUpdatedByClient)
}

// AddNote appends to the audit trail.
func (t *Ticket) AddNote(authorID int64, text string, at time.Time) {
	t.Notes = append(t.Notes, Note{Time: at, AuthorID: authorID, Text: text})
}

// Record appends a history entry.
func (t *Ticket) Record(action, actor string, at time.Time) {
	t.History = append(t.History, HistoryEntry{Time: at, Action: action, Actor: actor})
}

// LastNote returns the newest note, if any.
func (t *Ticket) LastNote() (Note, bool) {
	if len(t.Notes) == 0 {
		return Note{}, false
	}
	return t.Notes[len(t.Notes)-1], true
}

// RememberOrigin records an outbound notice message for quote-based
// addressing.
func (t *Ticket) RememberOrigin(chatID, messageID int64) {
	t.OriginMessages = append(t.OriginMessages, MessageRef{ChatID: chatID, MessageID: messageID})
}

// Clone returns a deep copy so store consumers cannot alias internal
// state.
func (t *Ticket) Clone() *Ticket {
	if t == nil {
		return nil
	}
	clone := *t
	if t.Attachment != nil {
		att := *t.Attachment
		clone.Attachment = &att
	}
	clone.Notes = append([]Note(nil), t.Notes...)
	clone.History = append([]HistoryEntry(nil), t.History...)
	clone.OriginMessages = append([]MessageRef(nil), t.OriginMessages...)
	return &clone
}
