package eligibility

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheVersionKey = "eligibility:requestable:version"

// Cache stores per-user requestable listings in redis. Invalidation bumps a
// shared version counter instead of scanning for per-user keys.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewCache creates a cache with the given entry TTL.
func NewCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{client: client, ttl: ttl, logger: logger}
}

func (c *Cache) key(ctx context.Context, userID int64) (string, error) {
	version, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if err != nil && err != redis.Nil {
		return "", err
	}
	return fmt.Sprintf("eligibility:requestable:v%d:user:%d", version, userID), nil
}

// Get returns the cached listing for a user, with a hit flag.
func (c *Cache) Get(ctx context.Context, userID int64) ([]RequestableRole, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	key, err := c.key(ctx, userID)
	if err != nil {
		c.logger.Warn("requestable cache version", slog.Any("error", err))
		return nil, false
	}
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("requestable cache get", slog.Any("error", err))
		}
		return nil, false
	}
	var roles []RequestableRole
	if err := json.Unmarshal(data, &roles); err != nil {
		return nil, false
	}
	return roles, true
}

// Set stores the listing for a user.
func (c *Cache) Set(ctx context.Context, userID int64, roles []RequestableRole) {
	if c == nil || c.client == nil {
		return
	}
	key, err := c.key(ctx, userID)
	if err != nil {
		return
	}
	data, err := json.Marshal(roles)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("requestable cache set", slog.Any("error", err))
	}
}

// InvalidateAll drops every cached listing by bumping the version counter.
// Stale generation keys expire on their own TTL.
func (c *Cache) InvalidateAll(ctx context.Context) {
	if c == nil || c.client == nil {
		return
	}
	if err := c.client.Incr(ctx, cacheVersionKey).Err(); err != nil {
		c.logger.Warn("requestable cache invalidate", slog.Any("error", err))
	}
}
