package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/flashproto/support-bot/internal/config"
	"github.com/flashproto/support-bot/internal/domain"
	apperrors "github.com/flashproto/support-bot/pkg/util"
)

// PostgresStore persists tickets in Postgres. The aggregate is stored
// as a JSONB payload with the columns needed for ordering and the
// monotonic id sequence in a side table.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresStore connects, bootstraps the schema, and returns the
// store.
func NewPostgresStore(ctx context.Context, cfg config.PostgresConfig, logger *zap.Logger) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &PostgresStore{pool: pool, logger: logger}
	if err := s.bootstrap(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	logger.Info("connected to postgres ticket store")
	return s, nil
}

func (s *PostgresStore) bootstrap(ctx context.Context) error {
	const schema = `
        CREATE TABLE IF NOT EXISTS tickets (
            id           TEXT PRIMARY KEY,
            created_at   TIMESTAMPTZ NOT NULL,
            requester_id BIGINT NOT NULL,
            payload      JSONB NOT NULL
        );
        CREATE TABLE IF NOT EXISTS ticket_sequence (
            id       INT PRIMARY KEY,
            next_seq BIGINT NOT NULL
        );
        INSERT INTO ticket_sequence (id, next_seq) VALUES (1, 1)
        ON CONFLICT (id) DO NOTHING;`
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("bootstrap ticket schema: %w", err)
	}
	return nil
}

// NextID atomically advances the sequence and formats the ticket id.
func (s *PostgresStore) NextID(ctx context.Context) (string, error) {
	const query = `
        UPDATE ticket_sequence SET next_seq = next_seq + 1
        WHERE id = 1
        RETURNING next_seq - 1`
	var seq int64
	if err := s.pool.QueryRow(ctx, query).Scan(&seq); err != nil {
		return "", apperrors.NewPersistenceFailure(err)
	}
	return fmt.Sprintf(TicketIDFormat, seq), nil
}

// Put inserts or replaces a ticket.
func (s *PostgresStore) Put(ctx context.Context, ticket *domain.Ticket) error {
	payload, err := json.Marshal(ticket)
	if err != nil {
		return apperrors.NewPersistenceFailure(err)
	}
	const query = `
        INSERT INTO tickets (id, created_at, requester_id, payload)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (id) DO UPDATE SET payload = EXCLUDED.payload`
	if _, err := s.pool.Exec(ctx, query, ticket.ID, ticket.CreatedAt, ticket.Requester.ExternalID, payload); err != nil {
		return apperrors.NewPersistenceFailure(err)
	}
	return nil
}

// Get fetches one ticket by id.
func (s *PostgresStore) Get(ctx context.Context, id string) (*domain.Ticket, error) {
	const query = `SELECT payload FROM tickets WHERE id = $1`
	var payload []byte
	if err := s.pool.QueryRow(ctx, query, id).Scan(&payload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewTicketNotFound(id)
		}
		return nil, apperrors.NewPersistenceFailure(err)
	}
	return decodeTicket(payload)
}

// Update applies mutate inside a transaction that holds a row lock,
// so concurrent updates to the same ticket serialize instead of
// overwriting each other.
func (s *PostgresStore) Update(ctx context.Context, id string, mutate func(*domain.Ticket) error) (*domain.Ticket, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, apperrors.NewPersistenceFailure(err)
	}
	defer tx.Rollback(ctx)

	const lockQuery = `SELECT payload FROM tickets WHERE id = $1 FOR UPDATE`
	var payload []byte
	if err := tx.QueryRow(ctx, lockQuery, id).Scan(&payload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewTicketNotFound(id)
		}
		return nil, apperrors.NewPersistenceFailure(err)
	}
	ticket, err := decodeTicket(payload)
	if err != nil {
		return nil, err
	}
	if err := mutate(ticket); err != nil {
		return nil, err
	}
	updated, err := json.Marshal(ticket)
	if err != nil {
		return nil, apperrors.NewPersistenceFailure(err)
	}
	const writeQuery = `UPDATE tickets SET payload = $2 WHERE id = $1`
	if _, err := tx.Exec(ctx, writeQuery, id, updated); err != nil {
		return nil, apperrors.NewPersistenceFailure(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, apperrors.NewPersistenceFailure(err)
	}
	return ticket, nil
}

// Delete removes a ticket row.
func (s *PostgresStore) Delete(ctx context.Context, id string) (bool, error) {
	const query = `DELETE FROM tickets WHERE id = $1`
	cmd, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return false, apperrors.NewPersistenceFailure(err)
	}
	return cmd.RowsAffected() > 0, nil
}

// List returns all tickets newest-first.
func (s *PostgresStore) List(ctx context.Context) ([]*domain.Ticket, error) {
	const query = `SELECT payload FROM tickets ORDER BY created_at DESC, id DESC`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, apperrors.NewPersistenceFailure(err)
	}
	defer rows.Close()

	var result []*domain.Ticket
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, apperrors.NewPersistenceFailure(err)
		}
		ticket, err := decodeTicket(payload)
		if err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewPersistenceFailure(err)
	}
	return result, nil
}

// Ping verifies connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

func decodeTicket(payload []byte) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := json.Unmarshal(payload, &ticket); err != nil {
		return nil, apperrors.NewPersistenceFailure(err)
	}
	return &ticket, nil
}
