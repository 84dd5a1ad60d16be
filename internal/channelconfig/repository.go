// Package channelconfig reads channel credentials owned by the dashboard side
// of the platform. The gateway never writes here; exactly one active row per
// channel type is expected and it is looked up per request so credential
// rotation takes effect without a restart.
package channelconfig

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// ErrNotConfigured means no active configuration exists for the channel.
var ErrNotConfigured = errors.New("channelconfig: no active configuration")

// Config holds the credentials for one messaging channel.
type Config struct {
	ChannelType   string
	VerifyToken   string
	WebhookSecret string
	AccessToken   string
	PhoneNumberID string
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository looks up channel configurations in Postgres.
type Repository struct {
	pool rowQuerier
}

func NewRepository(pool rowQuerier) *Repository {
	if pool == nil {
		panic("channelconfig: pgx pool required")
	}
	return &Repository{pool: pool}
}

// GetActive returns the active configuration for a channel type.
func (r *Repository) GetActive(ctx context.Context, channelType string) (Config, error) {
	query := `
		SELECT channel_type, verify_token, webhook_secret, access_token, external_account_id
		FROM channel_configurations
		WHERE channel_type = $1 AND active = true
		ORDER BY updated_at DESC
		LIMIT 1
	`
	var cfg Config
	if err := r.pool.QueryRow(ctx, query, channelType).Scan(
		&cfg.ChannelType,
		&cfg.VerifyToken,
		&cfg.WebhookSecret,
		&cfg.AccessToken,
		&cfg.PhoneNumberID,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Config{}, fmt.Errorf("%w: %s", ErrNotConfigured, channelType)
		}
		return Config{}, fmt.Errorf("channelconfig: lookup %s: %w", channelType, err)
	}
	return cfg, nil
}
