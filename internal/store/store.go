// Package store persists tickets and the bot event log. The default
// backend keeps everything in memory and rewrites a JSON snapshot after
// every mutation; a Postgres backend is available for deployments that
// want a real database.
package store

import (
	"context"

	"github.com/flashproto/support-bot/internal/domain"
)

// TicketStore is the authoritative ticket collection. List returns
// tickets newest-first; Get and Delete address by id.
type TicketStore interface {
	// NextID allocates the next ticket id from a monotonic sequence.
	// Ids are never reused, including after deletes.
	NextID(ctx context.Context) (string, error)
	// Put inserts or replaces a ticket.
	Put(ctx context.Context, ticket *domain.Ticket) error
	// Get returns a ticket or a not-found error.
	Get(ctx context.Context, id string) (*domain.Ticket, error)
	// Update applies mutate to the stored ticket while it is locked
	// against concurrent writers, then persists the result. When
	// mutate returns an error the ticket is left unchanged and nil is
	// returned with that error. A backend that keeps memory
	// authoritative may return the mutated ticket alongside a flush
	// error.
	Update(ctx context.Context, id string, mutate func(*domain.Ticket) error) (*domain.Ticket, error)
	// Delete removes a ticket entirely. Irreversible.
	Delete(ctx context.Context, id string) (bool, error)
	// List returns all tickets, newest-first.
	List(ctx context.Context) ([]*domain.Ticket, error)
	// Ping verifies the backend is usable.
	Ping(ctx context.Context) error
	// Close releases backend resources.
	Close()
}

// TicketIDFormat renders sequence numbers as public ticket ids.
const TicketIDFormat = "FP-SUP-%05d"
