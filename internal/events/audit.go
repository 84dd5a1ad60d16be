package events

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Processing outcomes recorded on the audit log.
const (
	OutcomeProcessed = "processed"
	OutcomePartial   = "partial_failure"
	OutcomeRejected  = "rejected"
	OutcomeDuplicate = "duplicate"
)

// AuditStore appends raw webhook payloads. Append-only; nothing in the
// pipeline reads these rows back.
type AuditStore struct {
	pool rowQuerier
}

func NewAuditStore(pool rowQuerier) *AuditStore {
	if pool == nil {
		panic("events: pgx pool required")
	}
	return &AuditStore{pool: pool}
}

// Append stores one received payload with its processing outcome.
func (s *AuditStore) Append(ctx context.Context, provider string, payload []byte, outcome string) error {
	query := `
		INSERT INTO webhook_events (id, provider, payload, processing_outcome)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := s.pool.Exec(ctx, query, uuid.New(), provider, payload, outcome); err != nil {
		return fmt.Errorf("events: append webhook audit: %w", err)
	}
	return nil
}
