package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/natefinch/atomic"
	"go.uber.org/zap"

	"github.com/flashproto/support-bot/internal/domain"
	apperrors "github.com/flashproto/support-bot/pkg/util"
)

const ticketsFileName = "tickets.json"

// snapshot is the on-disk layout of the ticket file.
type snapshot struct {
	Version int              `json:"version"`
	NextSeq int64            `json:"next_seq"`
	Tickets []*domain.Ticket `json:"tickets"`
}

// FileStore keeps the full ticket collection in memory and rewrites a
// JSON snapshot via temp-file-and-rename after every mutation. Memory
// is authoritative: a failed flush is reported but does not roll the
// mutation back.
type FileStore struct {
	path   string
	logger *zap.Logger

	mu      sync.Mutex
	nextSeq int64
	tickets []*domain.Ticket // newest-first
}

// NewFileStore loads (or initializes) the snapshot under dataDir.
func NewFileStore(dataDir string, logger *zap.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	s := &FileStore{
		path:    filepath.Join(dataDir, ticketsFileName),
		logger:  logger,
		nextSeq: 1,
	}

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ticket snapshot: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode ticket snapshot %s: %w", s.path, err)
	}
	s.tickets = snap.Tickets
	s.nextSeq = snap.NextSeq
	if s.nextSeq < 1 {
		// Snapshots written before the sequence existed: resume past
		// the highest id already on disk.
		s.nextSeq = int64(len(snap.Tickets)) + 1
		for _, t := range snap.Tickets {
			var seq int64
			if _, err := fmt.Sscanf(t.ID, TicketIDFormat, &seq); err == nil && seq >= s.nextSeq {
				s.nextSeq = seq + 1
			}
		}
	}
	return s, nil
}

// NextID allocates and persists the next sequence number.
func (s *FileStore) NextID(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := fmt.Sprintf(TicketIDFormat, s.nextSeq)
	s.nextSeq++
	return id, s.flushLocked()
}

// Put inserts a new ticket at the head or replaces an existing one in
// place, preserving insertion order.
func (s *FileStore) Put(ctx context.Context, ticket *domain.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := ticket.Clone()
	for i, existing := range s.tickets {
		if existing.ID == stored.ID {
			s.tickets[i] = stored
			return s.flushLocked()
		}
	}
	s.tickets = append([]*domain.Ticket{stored}, s.tickets...)
	return s.flushLocked()
}

// Get returns a copy of the ticket with the given id.
func (s *FileStore) Get(ctx context.Context, id string) (*domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tickets {
		if t.ID == id {
			return t.Clone(), nil
		}
	}
	return nil, apperrors.NewTicketNotFound(id)
}

// Update applies mutate to the ticket under the store lock so that
// concurrent read-modify-write sequences cannot lose appends. The
// mutated copy is returned even when the flush fails.
func (s *FileStore) Update(ctx context.Context, id string, mutate func(*domain.Ticket) error) (*domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, t := range s.tickets {
		if t.ID == id {
			next := t.Clone()
			if err := mutate(next); err != nil {
				return nil, err
			}
			s.tickets[i] = next
			return next.Clone(), s.flushLocked()
		}
	}
	return nil, apperrors.NewTicketNotFound(id)
}

// Delete removes the ticket. Other tickets keep their ids and order.
func (s *FileStore) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, t := range s.tickets {
		if t.ID == id {
			s.tickets = append(s.tickets[:i], s.tickets[i+1:]...)
			return true, s.flushLocked()
		}
	}
	return false, nil
}

// List returns copies of all tickets, newest-first.
func (s *FileStore) List(ctx context.Context) ([]*domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.Ticket, 0, len(s.tickets))
	for _, t := range s.tickets {
		out = append(out, t.Clone())
	}
	return out, nil
}

// Ping verifies the snapshot directory is still reachable.
func (s *FileStore) Ping(ctx context.Context) error {
	if _, err := os.Stat(filepath.Dir(s.path)); err != nil {
		return apperrors.NewPersistenceFailure(err)
	}
	return nil
}

// Close flushes a final snapshot.
func (s *FileStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.flushLocked(); err != nil {
		s.logger.Warn("final ticket snapshot flush failed", zap.Error(err))
	}
}

func (s *FileStore) flushLocked() error {
	snap := snapshot{Version: 1, NextSeq: s.nextSeq, Tickets: s.tickets}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return apperrors.NewPersistenceFailure(err)
	}
	if err := atomic.WriteFile(s.path, bytes.NewReader(data)); err != nil {
		s.logger.Warn("ticket snapshot write failed; memory state diverges from disk",
			zap.String("path", s.path), zap.Error(err))
		return apperrors.NewPersistenceFailure(err)
	}
	return nil
}
