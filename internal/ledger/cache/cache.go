// Package cache provides a Redis read-through cache for transaction lookups.
// Reads dominate this workload (dashboards polling pending transactions), so
// the engine serves GETs from Redis and invalidates on every mutation.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"quorumgate/internal/ledger"
)

// Cache wraps a Redis client. A nil *Cache is valid and disables caching, so
// callers never need to branch on configuration.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func New(client *redis.Client, ttl time.Duration, logger *slog.Logger) *Cache {
	if client == nil {
		return nil
	}
	return &Cache{client: client, ttl: ttl, logger: logger}
}

func key(id int64) string {
	return fmt.Sprintf("quorumgate:tx:%d", id)
}

// Get returns the cached transaction, or (nil, false) on miss or error.
// Cache errors are logged and treated as misses; the store stays the source
// of truth.
func (c *Cache) Get(ctx context.Context, id int64) (*ledger.Transaction, bool) {
	if c == nil {
		return nil, false
	}
	raw, err := c.client.Get(ctx, key(id)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) && c.logger != nil {
			c.logger.WarnContext(ctx, "transaction cache read failed", "id", id, "error", err)
		}
		return nil, false
	}
	var tx ledger.Transaction
	if err := json.Unmarshal(raw, &tx); err != nil {
		if c.logger != nil {
			c.logger.WarnContext(ctx, "transaction cache decode failed", "id", id, "error", err)
		}
		return nil, false
	}
	return &tx, true
}

// Set stores the transaction with the configured TTL. Best effort.
func (c *Cache) Set(ctx context.Context, tx *ledger.Transaction) {
	if c == nil {
		return
	}
	raw, err := json.Marshal(tx)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key(tx.ID), raw, c.ttl).Err(); err != nil && c.logger != nil {
		c.logger.WarnContext(ctx, "transaction cache write failed", "id", tx.ID, "error", err)
	}
}

// Invalidate drops the cached entry after a mutation.
func (c *Cache) Invalidate(ctx context.Context, id int64) {
	if c == nil {
		return
	}
	if err := c.client.Del(ctx, key(id)).Err(); err != nil && c.logger != nil {
		c.logger.WarnContext(ctx, "transaction cache invalidate failed", "id", id, "error", err)
	}
}
