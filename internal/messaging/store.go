package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists messages in Postgres. external_message_id is a first-class
// unique column per channel: it is the dedup key for inbound redelivery and
// the correlation key for outbound status callbacks.
type Store struct {
	pool Querier
}

func NewStore(pool Querier) *Store {
	if pool == nil {
		panic("messaging: pgx pool required")
	}
	return &Store{pool: pool}
}

// MessageRecord mirrors one row of the messages table.
type MessageRecord struct {
	ID                uuid.UUID
	ConversationID    uuid.UUID
	Channel           string
	Direction         string
	ExternalMessageID string
	Type              MessageType
	Content           string
	AttachmentRef     string
	Status            Status
	ErrorDetail       string
	PhoneNumberID     string
	SentAt            time.Time
}

// InsertInbound stores an inbound message with status READ. Redelivery of the
// same external id is a no-op returning the already stored id, so the second
// return value reports whether this call created the row.
func (s *Store) InsertInbound(ctx context.Context, conversationID uuid.UUID, msg InboundMessage) (uuid.UUID, bool, error) {
	if strings.TrimSpace(msg.ExternalID) == "" {
		return uuid.Nil, false, errors.New("messaging: inbound message requires external id")
	}
	insert := `
		INSERT INTO messages (
			id, conversation_id, channel, direction, external_message_id,
			type, content, attachment_ref, status, phone_number_id, sent_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (channel, external_message_id) DO NOTHING
		RETURNING id
	`
	var id uuid.UUID
	err := s.pool.QueryRow(ctx, insert,
		uuid.New(), conversationID, ChannelWhatsApp, DirectionInbound, msg.ExternalID,
		msg.Type, msg.Content, msg.AttachmentRef, StatusRead, msg.ReceivingNumberID, msg.Timestamp,
	).Scan(&id)
	if err == nil {
		return id, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, false, fmt.Errorf("messaging: insert inbound message: %w", err)
	}

	query := `SELECT id FROM messages WHERE channel = $1 AND external_message_id = $2`
	if err := s.pool.QueryRow(ctx, query, ChannelWhatsApp, msg.ExternalID).Scan(&id); err != nil {
		return uuid.Nil, false, fmt.Errorf("messaging: fetch deduplicated message: %w", err)
	}
	return id, false, nil
}

// InsertOutboundPending stores the durable PENDING record before the provider
// call. A crash after the call still leaves a row to reconcile against.
func (s *Store) InsertOutboundPending(ctx context.Context, rec MessageRecord) (uuid.UUID, error) {
	insert := `
		INSERT INTO messages (
			id, conversation_id, channel, direction, type,
			content, attachment_ref, status, phone_number_id, sent_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		RETURNING id
	`
	var id uuid.UUID
	if err := s.pool.QueryRow(ctx, insert,
		uuid.New(), rec.ConversationID, ChannelWhatsApp, DirectionOutbound, rec.Type,
		rec.Content, rec.AttachmentRef, StatusPending, rec.PhoneNumberID,
	).Scan(&id); err != nil {
		return uuid.Nil, fmt.Errorf("messaging: insert outbound message: %w", err)
	}
	return id, nil
}

// MarkSent reconciles a PENDING outbound row with the provider response.
func (s *Store) MarkSent(ctx context.Context, id uuid.UUID, externalMessageID string) error {
	query := `
		UPDATE messages
		SET status = $2, external_message_id = $3, updated_at = now()
		WHERE id = $1
	`
	if _, err := s.pool.Exec(ctx, query, id, StatusSent, externalMessageID); err != nil {
		return fmt.Errorf("messaging: mark message sent: %w", err)
	}
	return nil
}

// MarkFailed flips an outbound row to FAILED with the provider error body.
func (s *Store) MarkFailed(ctx context.Context, id uuid.UUID, errorDetail string) error {
	query := `
		UPDATE messages
		SET status = $2, error_detail = $3, updated_at = now()
		WHERE id = $1
	`
	if _, err := s.pool.Exec(ctx, query, id, StatusFailed, errorDetail); err != nil {
		return fmt.Errorf("messaging: mark message failed: %w", err)
	}
	return nil
}

// ApplyStatus applies a delivery-status transition by external message id.
// Only forward progress in PENDING < SENT < DELIVERED < READ is applied;
// FAILED is terminal and always wins; everything else is a no-op. The return
// value reports whether a row was updated.
func (s *Store) ApplyStatus(ctx context.Context, update StatusUpdate) (bool, error) {
	query := `
		UPDATE messages
		SET status = $2,
			error_detail = CASE WHEN $2 = 'FAILED' THEN $3 ELSE error_detail END,
			updated_at = now()
		WHERE channel = $1
			AND external_message_id = $4
			AND (
				$2 = 'FAILED'
				OR (
					status <> 'FAILED'
					AND CASE $2
						WHEN 'SENT' THEN 1
						WHEN 'DELIVERED' THEN 2
						WHEN 'READ' THEN 3
						ELSE -1
					END > CASE status
						WHEN 'PENDING' THEN 0
						WHEN 'SENT' THEN 1
						WHEN 'DELIVERED' THEN 2
						WHEN 'READ' THEN 3
						ELSE 4
					END
				)
			)
	`
	errorDetail := ""
	if len(update.ErrorPayload) > 0 {
		errorDetail = string(update.ErrorPayload)
	}
	ct, err := s.pool.Exec(ctx, query, ChannelWhatsApp, string(update.NewStatus), errorDetail, update.ExternalMessageID)
	if err != nil {
		return false, fmt.Errorf("messaging: apply status: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

// HasExternalMessage checks whether a message with the external id exists.
// Used to tell an unknown-message status apart from an ignored regression.
func (s *Store) HasExternalMessage(ctx context.Context, externalMessageID string) (bool, error) {
	externalMessageID = strings.TrimSpace(externalMessageID)
	if externalMessageID == "" {
		return false, nil
	}
	query := `
		SELECT 1 FROM messages
		WHERE channel = $1 AND external_message_id = $2
		LIMIT 1
	`
	var exists int
	if err := s.pool.QueryRow(ctx, query, ChannelWhatsApp, externalMessageID).Scan(&exists); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("messaging: check external message: %w", err)
	}
	return true, nil
}

// GetByID fetches one message row, used by the dispatcher result path and tests.
func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*MessageRecord, error) {
	query := `
		SELECT id, conversation_id, channel, direction, COALESCE(external_message_id, ''),
			type, content, COALESCE(attachment_ref, ''), status, COALESCE(error_detail, ''),
			COALESCE(phone_number_id, ''), sent_at
		FROM messages
		WHERE id = $1
	`
	var rec MessageRecord
	if err := s.pool.QueryRow(ctx, query, id).Scan(
		&rec.ID, &rec.ConversationID, &rec.Channel, &rec.Direction, &rec.ExternalMessageID,
		&rec.Type, &rec.Content, &rec.AttachmentRef, &rec.Status, &rec.ErrorDetail,
		&rec.PhoneNumberID, &rec.SentAt,
	); err != nil {
		return nil, fmt.Errorf("messaging: select message: %w", err)
	}
	return &rec, nil
}
