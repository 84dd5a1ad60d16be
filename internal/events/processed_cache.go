package events

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/eduzayn/messaging-gateway/pkg/logging"
)

// Tracker is the dedup surface the webhook handlers depend on.
type Tracker interface {
	AlreadyProcessed(ctx context.Context, provider, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, provider, eventID string) (bool, error)
}

// CachedTracker puts a Redis fast path in front of a ProcessedStore. Cache
// misses and Redis outages fall through to Postgres, so losing Redis only
// costs latency, never correctness.
type CachedTracker struct {
	store  Tracker
	client *redis.Client
	ttl    time.Duration
	logger *logging.Logger
}

func NewCachedTracker(store Tracker, client *redis.Client, ttl time.Duration, logger *logging.Logger) *CachedTracker {
	if store == nil {
		panic("events: processed store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CachedTracker{store: store, client: client, ttl: ttl, logger: logger}
}

func (t *CachedTracker) key(provider, eventID string) string {
	return fmt.Sprintf("gateway:processed:%s:%s", provider, eventID)
}

func (t *CachedTracker) AlreadyProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	if t.client != nil {
		n, err := t.client.Exists(ctx, t.key(provider, eventID)).Result()
		if err == nil && n > 0 {
			return true, nil
		}
		if err != nil {
			t.logger.Warn("processed cache lookup failed, falling back to store", "error", err)
		}
	}
	return t.store.AlreadyProcessed(ctx, provider, eventID)
}

func (t *CachedTracker) MarkProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	inserted, err := t.store.MarkProcessed(ctx, provider, eventID)
	if err != nil {
		return false, err
	}
	if t.client != nil {
		if err := t.client.Set(ctx, t.key(provider, eventID), 1, t.ttl).Err(); err != nil {
			t.logger.Warn("processed cache write failed", "error", err, "event_id", eventID)
		}
	}
	return inserted, nil
}
