package contacts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository stores contacts in Postgres.
type Repository struct {
	pool querier
}

func NewRepository(pool querier) *Repository {
	if pool == nil {
		panic("contacts: pgx pool required")
	}
	return &Repository{pool: pool}
}

// Resolve finds the contact for (channel, phone), creating a PROSPECT when
// none exists. Concurrent webhook deliveries for the same phone race on the
// insert; ON CONFLICT DO NOTHING plus the re-read below makes the loser adopt
// the winner's row instead of erroring.
func (r *Repository) Resolve(ctx context.Context, channel, phoneE164, displayNameHint string) (*Contact, error) {
	phoneE164 = strings.TrimSpace(phoneE164)
	if phoneE164 == "" {
		return nil, errors.New("contacts: phone required")
	}
	name := strings.TrimSpace(displayNameHint)
	if name == "" {
		name = phoneE164
	}

	insert := `
		INSERT INTO contacts (id, channel, phone_e164, display_name, kind)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (channel, phone_e164) DO NOTHING
		RETURNING id, channel, phone_e164, display_name, kind, created_at
	`
	var c Contact
	err := r.pool.QueryRow(ctx, insert, uuid.New(), channel, phoneE164, name, KindProspect).Scan(
		&c.ID, &c.Channel, &c.PhoneE164, &c.DisplayName, &c.Kind, &c.CreatedAt,
	)
	if err == nil {
		return &c, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("contacts: insert contact: %w", err)
	}

	// Conflict path: another writer won, fetch its row.
	query := `
		SELECT id, channel, phone_e164, display_name, kind, created_at
		FROM contacts
		WHERE channel = $1 AND phone_e164 = $2
	`
	if err := r.pool.QueryRow(ctx, query, channel, phoneE164).Scan(
		&c.ID, &c.Channel, &c.PhoneE164, &c.DisplayName, &c.Kind, &c.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("contacts: fetch existing contact: %w", err)
	}
	return &c, nil
}

// GetByID fetches one contact.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Contact, error) {
	query := `
		SELECT id, channel, phone_e164, display_name, kind, created_at
		FROM contacts
		WHERE id = $1
	`
	var c Contact
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&c.ID, &c.Channel, &c.PhoneE164, &c.DisplayName, &c.Kind, &c.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("contacts: %s not found", id)
		}
		return nil, fmt.Errorf("contacts: select contact: %w", err)
	}
	return &c, nil
}
