package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/taskboard/config"
)

// RedisCache is a read-through hint in front of the processed-event ledger.
// Entries are written only after the ledger transaction commits, so a cache
// miss always falls through to the database and can never mask an
// unprocessed event.
type RedisCache struct {
	client  *redis.Client
	prefix  string
	enabled bool
}

// NewRedisCache creates a new Redis cache
func NewRedisCache(cfg config.RedisConfig, serviceName string) (*RedisCache, error) {
	if !cfg.Enabled {
		return &RedisCache{enabled: false}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, errors.Wrap(err, "failed to connect to Redis")
	}

	return &RedisCache{
		client:  client,
		prefix:  serviceName + ":processed:",
		enabled: true,
	}, nil
}

// SeenEvent reports whether the event id is known to be processed. False
// means unknown, not unprocessed.
func (c *RedisCache) SeenEvent(ctx context.Context, eventID uuid.UUID) bool {
	if !c.enabled {
		return false
	}

	n, err := c.client.Exists(ctx, c.prefix+eventID.String()).Result()
	if err != nil {
		log.Warn().Err(err).Msg("Redis lookup failed, falling through to ledger")
		return false
	}
	return n > 0
}

// MarkSeen records a processed event id with an expiry. Called only after
// the ledger row is committed.
func (c *RedisCache) MarkSeen(ctx context.Context, eventID uuid.UUID, ttl time.Duration) {
	if !c.enabled {
		return
	}

	if err := c.client.Set(ctx, c.prefix+eventID.String(), 1, ttl).Err(); err != nil {
		log.Warn().Err(err).Msg("Failed to cache processed event id")
	}
}

// Close closes the Redis connection
func (c *RedisCache) Close() error {
	if !c.enabled {
		return nil
	}
	return c.client.Close()
}
