package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nerrad567/homecore/internal/infrastructure/config"
)

const (
	keyPrefix   = "device:state:"
	pingTimeout = 5 * time.Second
	scanCount   = 100
)

// StateCache stores device state snapshots in Redis.
type StateCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// Connect opens a Redis client and verifies it with a ping.
func Connect(cfg config.RedisConfig) (*StateCache, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close() //nolint:errcheck // error path
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	return NewStateCache(rdb, cfg.StateTTL()), nil
}

// NewStateCache wraps an existing client. A zero ttl keeps keys forever.
func NewStateCache(rdb *redis.Client, ttl time.Duration) *StateCache {
	return &StateCache{rdb: rdb, ttl: ttl}
}

func key(id string) string { return keyPrefix + id }

// Set stores the full state of a device.
func (c *StateCache) Set(ctx context.Context, id string, state map[string]any) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encoding state for %s: %w", id, err)
	}
	return c.rdb.Set(ctx, key(id), data, c.ttl).Err()
}

// Get returns the cached state. ok is false when nothing is cached.
func (c *StateCache) Get(ctx context.Context, id string) (map[string]any, bool, error) {
	data, err := c.rdb.Get(ctx, key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var state map[string]any
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, false, fmt.Errorf("decoding cached state for %s: %w", id, err)
	}
	return state, true, nil
}

// Delete drops a device's cached state.
func (c *StateCache) Delete(ctx context.Context, id string) error {
	return c.rdb.Del(ctx, key(id)).Err()
}

// RemoveAllExcept deletes cached states for devices not in keepIDs and
// returns the removed ids. Called after each device-list announcement so
// departed devices do not linger.
func (c *StateCache) RemoveAllExcept(ctx context.Context, keepIDs []string) ([]string, error) {
	keep := make(map[string]struct{}, len(keepIDs))
	for _, id := range keepIDs {
		if id != "" {
			keep[id] = struct{}{}
		}
	}

	var removed []string
	iter := c.rdb.Scan(ctx, 0, keyPrefix+"*", scanCount).Iterator()
	for iter.Next(ctx) {
		full := iter.Val()
		id, ok := strings.CutPrefix(full, keyPrefix)
		if !ok {
			continue
		}
		if _, kept := keep[id]; kept {
			continue
		}
		if err := c.rdb.Del(ctx, full).Err(); err != nil {
			return removed, err
		}
		removed = append(removed, id)
	}
	return removed, iter.Err()
}

// HealthCheck pings Redis.
func (c *StateCache) HealthCheck(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

// Close closes the client. Safe on nil.
func (c *StateCache) Close() error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}
