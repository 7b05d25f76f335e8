// Package ticket implements the ticket lifecycle: creation with
// quote-based de-duplication, status transitions, notes, deletion, and
// the read-side queries used by commands and the ops API.
package ticket

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/flashproto/support-bot/internal/classify"
	"github.com/flashproto/support-bot/internal/domain"
	"github.com/flashproto/support-bot/internal/events"
	"github.com/flashproto/support-bot/internal/store"
	apperrors "github.com/flashproto/support-bot/pkg/util"
)

// Service coordinates ticket workflows against the authoritative store.
type Service struct {
	store      store.TicketStore
	notifier   *Notifier
	dispatcher events.Dispatcher
	logger     *zap.Logger
	now        func() time.Time
}

// Dependencies bundles collaborators for service construction.
type Dependencies struct {
	Store      store.TicketStore
	Notifier   *Notifier
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	Now        func() time.Time
}

// NewService constructs the service.
func NewService(deps Dependencies) *Service {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		store:      deps.Store,
		notifier:   deps.Notifier,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
		now:        now,
	}
}

// CreateInput describes an inbound request that opens or updates a
// ticket.
type CreateInput struct {
	Requester  domain.Requester
	Category   domain.TicketCategory
	Body       string
	Attachment *domain.Attachment

	// ReplyTargetID carries the ticket id recovered from a quoted
	// acknowledgment. When it names an open ticket of the same
	// requester, the body is appended there instead of opening a new
	// ticket.
	ReplyTargetID string
}

// Create opens a new ticket or, for a valid reply target, appends the
// body to the existing one. The second return value reports whether an
// existing ticket absorbed the message.
func (s *Service) Create(ctx context.Context, input CreateInput) (*domain.Ticket, bool, error) {
	if input.ReplyTargetID != "" {
		if existing, ok := s.tryClientUpdate(ctx, input); ok {
			return existing, true, nil
		}
	}

	id, err := s.store.NextID(ctx)
	if err != nil {
		if id == "" {
			return nil, false, err
		}
		s.logger.Warn("id sequence flush failed", zap.Error(err))
	}

	now := s.now()
	ticket := &domain.Ticket{
		ID:         id,
		CreatedAt:  now,
		Requester:  input.Requester,
		Category:   input.Category,
		Body:       input.Body,
		Priority:   classify.DeterminePriority(input.Body),
		Attachment: input.Attachment,
		Status:     domain.NewStatus(domain.StatusOpen),
		Notes:      []domain.Note{},
		History:    []domain.HistoryEntry{},
	}
	ticket.Record("created", requesterActor(input.Requester), now)

	// Persist before fan-out: a notification failure must never lose
	// the ticket.
	s.persist(ctx, ticket)

	if s.notifier != nil {
		ticket = s.rememberOrigins(ctx, ticket, s.notifier.AnnounceNew(ctx, ticket))
		s.notifier.AckRequester(ctx, ticket, false)
	}

	s.publish(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Actor:    requesterActor(input.Requester),
		Payload: events.TicketCreatedPayload{
			RequesterID: input.Requester.ExternalID,
			Category:    ticket.Category,
			Priority:    ticket.Priority,
		},
	})
	return ticket, false, nil
}

// errFreshTicket aborts a reply-target update so the message falls
// through to a new ticket instead.
var errFreshTicket = errors.New("reply target not applicable")

// tryClientUpdate appends the body to the reply target when it exists,
// is open, and belongs to the same requester.
func (s *Service) tryClientUpdate(ctx context.Context, input CreateInput) (*domain.Ticket, bool) {
	now := s.now()
	ticket, err := s.update(ctx, input.ReplyTargetID, func(t *domain.Ticket) error {
		if t.Requester.ExternalID != input.Requester.ExternalID || t.Status.IsClosed() {
			return errFreshTicket
		}
		t.AppendUpdate(input.Body, now)
		t.Record("client_update", requesterActor(input.Requester), now)
		return nil
	})
	if err != nil {
		return nil, false
	}

	if s.notifier != nil {
		ticket = s.rememberOrigins(ctx, ticket, s.notifier.AnnounceUpdate(ctx, ticket, input.Body))
		s.notifier.AckRequester(ctx, ticket, true)
	}

	s.publish(ctx, events.Event{
		Type:     events.EventTicketClientUpdated,
		TicketID: ticket.ID,
		Actor:    requesterActor(input.Requester),
	})
	return ticket, true
}

// SetStatus overwrites the status. The label is open text when the
// operator used the override command; known labels map onto the enum.
func (s *Service) SetStatus(ctx context.Context, id string, status domain.Status, actor string) (*domain.Ticket, error) {
	var old string
	now := s.now()
	ticket, err := s.update(ctx, id, func(t *domain.Ticket) error {
		old = t.Status.Label()
		t.Status = status
		t.Record("status: "+status.Label(), actor, now)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.Event{
		Type:     events.EventTicketStatusChanged,
		TicketID: ticket.ID,
		Actor:    actor,
		Payload:  events.StatusChangedPayload{OldStatus: old, NewStatus: status.Label()},
	})
	return ticket, nil
}

// AddNote appends an internal note to the audit trail.
func (s *Service) AddNote(ctx context.Context, id string, authorID int64, text string) (*domain.Ticket, error) {
	now := s.now()
	ticket, err := s.update(ctx, id, func(t *domain.Ticket) error {
		t.AddNote(authorID, text, now)
		t.Record("note_added", adminActor(authorID), now)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.Event{
		Type:     events.EventTicketNoteAdded,
		TicketID: ticket.ID,
		Actor:    adminActor(authorID),
	})
	return ticket, nil
}

// Close marks the ticket closed by an admin.
func (s *Service) Close(ctx context.Context, id string, actor string) (*domain.Ticket, error) {
	return s.SetStatus(ctx, id, domain.NewStatus(domain.StatusClosedByAdmin), actor)
}

// Delete removes the ticket entirely. Irreversible, no tombstone.
func (s *Service) Delete(ctx context.Context, id string, actor string) (bool, error) {
	removed, err := s.store.Delete(ctx, id)
	if err != nil {
		s.logger.Warn("ticket delete flush failed", zap.String("ticket_id", id), zap.Error(err))
	}
	if !removed {
		return false, nil
	}
	s.publish(ctx, events.Event{
		Type:     events.EventTicketDeleted,
		TicketID: id,
		Actor:    actor,
	})
	return true, nil
}

// ResolveClientConfirmation handles the requester's yes/no answer to a
// support reply: yes closes the ticket, no reopens it and re-alerts
// every admin channel.
func (s *Service) ResolveClientConfirmation(ctx context.Context, id string, confirmed bool) (*domain.Ticket, error) {
	var actor, old string
	now := s.now()
	ticket, err := s.update(ctx, id, func(t *domain.Ticket) error {
		actor = requesterActor(t.Requester)
		old = t.Status.Label()
		if confirmed {
			t.Status = domain.NewStatus(domain.StatusClosedConfirmed)
			t.Record("closed_client_confirmed", actor, now)
		} else {
			t.Status = domain.NewStatus(domain.StatusReopened)
			t.Record("reopened_by_client", actor, now)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if confirmed {
		s.publish(ctx, events.Event{
			Type:     events.EventTicketStatusChanged,
			TicketID: ticket.ID,
			Actor:    actor,
			Payload:  events.StatusChangedPayload{OldStatus: old, NewStatus: ticket.Status.Label()},
		})
	} else {
		s.publish(ctx, events.Event{
			Type:     events.EventTicketReopened,
			TicketID: ticket.ID,
			Actor:    actor,
		})
		if s.notifier != nil {
			s.notifier.AnnounceReopened(ctx, ticket.ID)
		}
	}
	return ticket, nil
}

// FindByID fetches one ticket.
func (s *Service) FindByID(ctx context.Context, id string) (*domain.Ticket, error) {
	return s.store.Get(ctx, id)
}

// FindByRequesterAndID fetches a ticket only when it belongs to the
// requester; any other outcome is reported as not found.
func (s *Service) FindByRequesterAndID(ctx context.Context, requesterID int64, id string) (*domain.Ticket, error) {
	ticket, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if ticket.Requester.ExternalID != requesterID {
		return nil, apperrors.NewTicketNotFound(id)
	}
	return ticket, nil
}

// listLimit caps command/API listings.
const listLimit = 20

// Search returns tickets whose body contains the substring,
// case-insensitive, newest-first.
func (s *Service) Search(ctx context.Context, substring string) ([]*domain.Ticket, error) {
	all, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(strings.TrimSpace(substring))
	var matches []*domain.Ticket
	for _, t := range all {
		if strings.Contains(strings.ToLower(t.Body), needle) {
			matches = append(matches, t)
			if len(matches) == listLimit {
				break
			}
		}
	}
	return matches, nil
}

// ListOpen returns open-like tickets, newest-first.
func (s *Service) ListOpen(ctx context.Context) ([]*domain.Ticket, error) {
	all, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	var open []*domain.Ticket
	for _, t := range all {
		if t.Status.IsOpenLike() {
			open = append(open, t)
			if len(open) == listLimit {
				break
			}
		}
	}
	return open, nil
}

// HistoryForRequester returns the history of a requester-owned ticket.
func (s *Service) HistoryForRequester(ctx context.Context, requesterID int64, id string) ([]domain.HistoryEntry, error) {
	ticket, err := s.FindByRequesterAndID(ctx, requesterID, id)
	if err != nil {
		return nil, err
	}
	return ticket.History, nil
}

// Stats summarizes the collection for the admin dashboard.
type Stats struct {
	Total          int
	OpenLike       int
	OpenByPriority map[domain.TicketPriority]int
}

// DashboardStats counts tickets by state and priority.
func (s *Service) DashboardStats(ctx context.Context) (Stats, error) {
	all, err := s.store.List(ctx)
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{
		Total:          len(all),
		OpenByPriority: map[domain.TicketPriority]int{},
	}
	for _, t := range all {
		if t.Status.IsOpenLike() {
			stats.OpenLike++
			stats.OpenByPriority[t.Priority]++
		}
	}
	return stats, nil
}

// persist flushes a mutation; write failures are logged and swallowed,
// leaving memory authoritative (acknowledged weakness of the snapshot
// store).
func (s *Service) persist(ctx context.Context, ticket *domain.Ticket) {
	if err := s.store.Put(ctx, ticket); err != nil {
		s.logger.Warn("ticket persist failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
	}
}

// update mutates a ticket atomically through the store. A flush
// failure that still produced the mutated ticket is logged and
// swallowed, matching persist.
func (s *Service) update(ctx context.Context, id string, mutate func(*domain.Ticket) error) (*domain.Ticket, error) {
	ticket, err := s.store.Update(ctx, id, mutate)
	if err != nil {
		if ticket == nil {
			return nil, err
		}
		s.logger.Warn("ticket persist failed", zap.String("ticket_id", id), zap.Error(err))
	}
	return ticket, nil
}

// rememberOrigins records admin-notice message refs on the ticket so
// quoted admin replies resolve later. Runs after fan-out, so it goes
// through update rather than rewriting a possibly stale copy.
func (s *Service) rememberOrigins(ctx context.Context, ticket *domain.Ticket, refs []domain.MessageRef) *domain.Ticket {
	if len(refs) == 0 {
		return ticket
	}
	updated, err := s.update(ctx, ticket.ID, func(t *domain.Ticket) error {
		for _, ref := range refs {
			t.RememberOrigin(ref.ChatID, ref.MessageID)
		}
		return nil
	})
	if err != nil {
		return ticket
	}
	return updated
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func requesterActor(r domain.Requester) string {
	name := r.DisplayName
	if name == "" {
		name = "client"
	}
	return name
}

func adminActor(id int64) string {
	return fmt.Sprintf("admin:%d", id)
}
