// Package redcache provides the optional Redis hot cache in front of the
// relational store. It keeps identified songs keyed by media ID and a
// serialized stats snapshot. The cache is strictly an accelerator: every
// failure is logged and absorbed, and callers fall through to PostgreSQL.
package redcache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/reelsong/reelsong-api/internal/config"
	"github.com/reelsong/reelsong-api/internal/domain"
)

const (
	songKeyPrefix = "reelsong:song:"
	statsKey      = "reelsong:stats"
)

// Cache wraps a Redis client with the service's key schema and TTL.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// New connects to Redis using the configured URL and verifies the connection
// with a ping. Returns an error when the URL is malformed or the server is
// unreachable, so startup fails fast instead of limping with a dead cache.
func New(ctx context.Context, cfg config.CacheConfig, logger *slog.Logger) (*Cache, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Cache{
		client: client,
		ttl:    cfg.TTL(),
		logger: logger.With(slog.String("component", "cache")),
	}, nil
}

// NewWithClient wraps an existing client (for testing against miniredis).
func NewWithClient(client *redis.Client, ttl time.Duration, logger *slog.Logger) *Cache {
	return &Cache{
		client: client,
		ttl:    ttl,
		logger: logger.With(slog.String("component", "cache")),
	}
}

// Close releases the underlying Redis connection.
func (c *Cache) Close() error {
	return c.client.Close()
}

// GetSong returns the cached song for a media ID, or nil on a miss or any
// cache failure.
func (c *Cache) GetSong(ctx context.Context, mediaID string) *domain.SongSearch {
	data, err := c.client.Get(ctx, songKeyPrefix+mediaID).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("cache read failed", "media_id", mediaID, "error", err)
		}
		return nil
	}

	var song domain.SongSearch
	if err := json.Unmarshal(data, &song); err != nil {
		c.logger.Warn("cache entry corrupt, dropping", "media_id", mediaID, "error", err)
		c.client.Del(ctx, songKeyPrefix+mediaID)
		return nil
	}
	return &song
}

// SetSong stores an identified song under its media ID. Failures are logged
// and absorbed.
func (c *Cache) SetSong(ctx context.Context, song *domain.SongSearch) {
	data, err := json.Marshal(song)
	if err != nil {
		c.logger.Warn("cache encode failed", "media_id", song.MediaID, "error", err)
		return
	}
	if err := c.client.Set(ctx, songKeyPrefix+song.MediaID, data, c.ttl).Err(); err != nil {
		c.logger.Warn("cache write failed", "media_id", song.MediaID, "error", err)
	}
}

// GetStats returns the cached stats snapshot, or nil on a miss or failure.
// The payload is opaque to the cache; the service layer owns its shape.
func (c *Cache) GetStats(ctx context.Context) []byte {
	data, err := c.client.Get(ctx, statsKey).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("stats cache read failed", "error", err)
		}
		return nil
	}
	return data
}

// SetStats stores a serialized stats snapshot.
func (c *Cache) SetStats(ctx context.Context, payload []byte) {
	if err := c.client.Set(ctx, statsKey, payload, c.ttl).Err(); err != nil {
		c.logger.Warn("stats cache write failed", "error", err)
	}
}

// InvalidateStats drops the stats snapshot. Called after every successful
// identification so trending data never serves a stale window longer than
// one TTL.
func (c *Cache) InvalidateStats(ctx context.Context) {
	if err := c.client.Del(ctx, statsKey).Err(); err != nil {
		c.logger.Warn("stats cache invalidation failed", "error", err)
	}
}
