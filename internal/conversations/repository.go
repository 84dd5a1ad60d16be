// Package conversations owns the thread grouping all messages between one
// contact and the institution over a channel. The storage layer enforces at
// most one ACTIVE conversation per (contact, channel) with a partial unique
// index; this package treats the conflict as the normal "already exists" path.
package conversations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Conversation statuses. The gateway only ever creates ACTIVE conversations;
// CLOSED and ARCHIVED transitions come from dashboard actions.
const (
	StatusActive   = "ACTIVE"
	StatusClosed   = "CLOSED"
	StatusArchived = "ARCHIVED"
)

type Conversation struct {
	ID             uuid.UUID
	ContactID      uuid.UUID
	Channel        string
	Status         string
	StartedAt      time.Time
	LastActivityAt time.Time
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository stores conversations in Postgres.
type Repository struct {
	pool querier
}

func NewRepository(pool querier) *Repository {
	if pool == nil {
		panic("conversations: pgx pool required")
	}
	return &Repository{pool: pool}
}

// ResolveActive finds the ACTIVE conversation for (contactID, channel),
// creating one when none exists. Concurrent inbound events race on the
// insert; the partial unique index makes all but one writer fall through to
// the re-read, so the invariant holds without in-process locks.
func (r *Repository) ResolveActive(ctx context.Context, contactID uuid.UUID, channel string) (*Conversation, error) {
	insert := `
		INSERT INTO conversations (id, contact_id, channel, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (contact_id, channel) WHERE status = 'ACTIVE' DO NOTHING
		RETURNING id, contact_id, channel, status, started_at, last_activity_at
	`
	var c Conversation
	err := r.pool.QueryRow(ctx, insert, uuid.New(), contactID, channel, StatusActive).Scan(
		&c.ID, &c.ContactID, &c.Channel, &c.Status, &c.StartedAt, &c.LastActivityAt,
	)
	if err == nil {
		return &c, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("conversations: insert conversation: %w", err)
	}

	query := `
		SELECT id, contact_id, channel, status, started_at, last_activity_at
		FROM conversations
		WHERE contact_id = $1 AND channel = $2 AND status = 'ACTIVE'
	`
	if err := r.pool.QueryRow(ctx, query, contactID, channel).Scan(
		&c.ID, &c.ContactID, &c.Channel, &c.Status, &c.StartedAt, &c.LastActivityAt,
	); err != nil {
		return nil, fmt.Errorf("conversations: fetch active conversation: %w", err)
	}
	return &c, nil
}

// ListByContact returns a contact's conversations, most recently active first.
func (r *Repository) ListByContact(ctx context.Context, contactID uuid.UUID) ([]Conversation, error) {
	query := `
		SELECT id, contact_id, channel, status, started_at, last_activity_at
		FROM conversations
		WHERE contact_id = $1
		ORDER BY last_activity_at DESC
	`
	rows, err := r.pool.Query(ctx, query, contactID)
	if err != nil {
		return nil, fmt.Errorf("conversations: list by contact: %w", err)
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.ID, &c.ContactID, &c.Channel, &c.Status, &c.StartedAt, &c.LastActivityAt); err != nil {
			return nil, fmt.Errorf("conversations: scan conversation: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conversations: iterate conversations: %w", err)
	}
	return out, nil
}

// Touch bumps last_activity_at, used when a message lands on the thread.
func (r *Repository) Touch(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE conversations
		SET last_activity_at = GREATEST(last_activity_at, $2)
		WHERE id = $1
	`
	if _, err := r.pool.Exec(ctx, query, id, at); err != nil {
		return fmt.Errorf("conversations: touch conversation: %w", err)
	}
	return nil
}
