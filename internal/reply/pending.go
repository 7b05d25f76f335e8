// Package reply implements the admin reply workflow: the per-admin
// reply-target map, reply staging with confirm/cancel, and the
// quick-reply fast path.
package reply

import (
	"context"
	"sync"
)

// PendingStore tracks which ticket an admin's next free-text message
// should reply to. Entries exist only between pressing the reply
// button and sending the text.
type PendingStore interface {
	Set(ctx context.Context, adminID int64, ticketID string) error
	Get(ctx context.Context, adminID int64) (string, bool, error)
	Clear(ctx context.Context, adminID int64) error
	Ping(ctx context.Context) error
	Close()
}

// memoryPending is the default in-process implementation.
type memoryPending struct {
	mu      sync.Mutex
	targets map[int64]string
}

// NewMemoryPending creates an in-memory pending store.
func NewMemoryPending() PendingStore {
	return &memoryPending{targets: make(map[int64]string)}
}

func (m *memoryPending) Set(ctx context.Context, adminID int64, ticketID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.targets[adminID] = ticketID
	return nil
}

func (m *memoryPending) Get(ctx context.Context, adminID int64) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ticketID, ok := m.targets[adminID]
	return ticketID, ok, nil
}

func (m *memoryPending) Clear(ctx context.Context, adminID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.targets, adminID)
	return nil
}

func (m *memoryPending) Ping(ctx context.Context) error { return nil }

func (m *memoryPending) Close() {}
