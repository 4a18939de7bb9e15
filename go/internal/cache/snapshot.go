// Package cache keeps serialized game snapshots in Redis for the REST
// catch-up path.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/models"
)

// DefaultTTL bounds how stale a cached snapshot can be.
const DefaultTTL = 5 * time.Second

// SnapshotKey formats the key of a game's snapshot.
func SnapshotKey(gameID string) string {
	return fmt.Sprintf("thirty:game:%s:state", gameID)
}

// SnapshotCache reads and writes GameState snapshots. A nil cache is a
// permanent miss.
type SnapshotCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewSnapshotCache(client redis.UniversalClient, ttl time.Duration) *SnapshotCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &SnapshotCache{client: client, ttl: ttl}
}

// Connect builds a client from addr, which is either host:port or a
// redis:// URL, and pings it.
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	var opts *redis.Options
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse redis url: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{Addr: addr}
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	log.Info().Str("addr", opts.Addr).Msg("connected to redis")
	return client, nil
}

// Get returns the cached snapshot and whether it was present.
func (c *SnapshotCache) Get(ctx context.Context, gameID string) (models.GameState, bool, error) {
	if c == nil || c.client == nil {
		return models.GameState{}, false, nil
	}
	data, err := c.client.Get(ctx, SnapshotKey(gameID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.GameState{}, false, nil
	}
	if err != nil {
		return models.GameState{}, false, fmt.Errorf("error getting snapshot: %w", err)
	}

	var state models.GameState
	if err := json.Unmarshal(data, &state); err != nil {
		return models.GameState{}, false, fmt.Errorf("error unmarshaling snapshot: %w", err)
	}
	return state, true, nil
}

func (c *SnapshotCache) Set(ctx context.Context, state models.GameState) error {
	if c == nil || c.client == nil {
		return nil
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("error marshaling snapshot: %w", err)
	}
	if err := c.client.Set(ctx, SnapshotKey(state.GameID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("error setting snapshot: %w", err)
	}
	return nil
}

// Invalidate drops a game's snapshot after a committed row change.
func (c *SnapshotCache) Invalidate(ctx context.Context, gameID string) error {
	if c == nil || c.client == nil {
		return nil
	}
	if err := c.client.Del(ctx, SnapshotKey(gameID)).Err(); err != nil {
		return fmt.Errorf("error deleting snapshot: %w", err)
	}
	return nil
}
