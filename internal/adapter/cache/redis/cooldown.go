// Package redis implements the shared credential cooldown cache.
//
// When one worker rate-limits a credential, siblings consulting this cache
// skip it until the TTL expires. The cache is advisory: the in-memory
// exhaustion sets in keyring stay authoritative, and every Redis failure
// is treated as "not cooling down" so a dead cache never blocks rotation.
package redis

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/leadpilot/leadpilot/internal/domain"
)

// Cooldown implements keyring.CooldownStore on a Redis client.
type Cooldown struct {
	rdb *redis.Client
}

// New constructs a Cooldown over an existing client.
func New(rdb *redis.Client) *Cooldown { return &Cooldown{rdb: rdb} }

// Connect dials Redis and returns a Cooldown, or an error if the initial
// ping fails.
func Connect(ctx domain.Context, addr, password string) (*Cooldown, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("op=redis.Connect: %w", err)
	}
	return &Cooldown{rdb: rdb}, nil
}

func key(service string, index int) string {
	return fmt.Sprintf("cooldown:%s:%d", service, index)
}

// IsCoolingDown reports whether the credential index is advisory-blocked.
func (c *Cooldown) IsCoolingDown(ctx domain.Context, service string, index int) bool {
	n, err := c.rdb.Exists(ctx, key(service, index)).Result()
	if err != nil {
		slog.Debug("cooldown lookup failed, assuming available",
			slog.String("service", service),
			slog.Int("index", index),
			slog.Any("error", err))
		return false
	}
	return n > 0
}

// MarkCoolingDown records a rate-limited credential with a TTL.
func (c *Cooldown) MarkCoolingDown(ctx domain.Context, service string, index int, reason string, ttl time.Duration) {
	if ttl <= 0 {
		ttl = time.Minute
	}
	if err := c.rdb.Set(ctx, key(service, index), reason, ttl).Err(); err != nil {
		slog.Warn("cooldown mark failed",
			slog.String("service", service),
			slog.Int("index", index),
			slog.Any("error", err))
	}
}

// Ping checks connectivity, used by readiness probes.
func (c *Cooldown) Ping(ctx domain.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close releases the underlying client.
func (c *Cooldown) Close() error { return c.rdb.Close() }
