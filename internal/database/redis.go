package database

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/luxquanttrade/luxquant-analyze-app/internal/config"
	"github.com/luxquanttrade/luxquant-analyze-app/internal/logging"
	"github.com/redis/go-redis/v9"
)

var errNilRedis = errors.New("redis client is nil")

// RedisClient wraps a Redis client used for the snapshot cache and the
// rate limiter.
type RedisClient struct {
	Client *redis.Client
	logger logging.Logger
}

// NewRedisConnection connects to Redis and pings it.
//
// Parameters:
//
//	ctx: Context bounding the ping.
//	cfg: Redis configuration.
//	logger: Component logger.
//
// Returns:
//
//	*RedisClient: The initialized client.
//	error: Error if the ping fails.
func NewRedisConnection(ctx context.Context, cfg config.RedisConfig, logger logging.Logger) (*RedisClient, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	logger = logger.WithComponent("redis")

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Host + ":" + strconv.Itoa(cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Successfully connected to Redis")
	return &RedisClient{Client: rdb, logger: logger}, nil
}

// NewRedisClientFromExisting wraps an already configured client.
func NewRedisClientFromExisting(rdb *redis.Client, logger logging.Logger) *RedisClient {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &RedisClient{Client: rdb, logger: logger}
}

// Close closes the Redis connection.
func (r *RedisClient) Close() {
	if r == nil || r.Client == nil {
		return
	}
	if err := r.Client.Close(); err != nil {
		r.logger.WithError(err).Error("Error closing Redis client")
		return
	}
	r.logger.Info("Redis connection closed")
}

// HealthCheck verifies the Redis connection.
func (r *RedisClient) HealthCheck(ctx context.Context) error {
	if r == nil || r.Client == nil {
		return errNilRedis
	}
	return r.Client.Ping(ctx).Err()
}

// Set stores a value with expiration.
func (r *RedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if r == nil || r.Client == nil {
		return errNilRedis
	}
	return r.Client.Set(ctx, key, value, expiration).Err()
}

// Get retrieves a value by key. A missing key returns redis.Nil.
func (r *RedisClient) Get(ctx context.Context, key string) (string, error) {
	if r == nil || r.Client == nil {
		return "", errNilRedis
	}
	return r.Client.Get(ctx, key).Result()
}

// Delete removes one or more keys.
func (r *RedisClient) Delete(ctx context.Context, keys ...string) error {
	if r == nil || r.Client == nil {
		return errNilRedis
	}
	return r.Client.Del(ctx, keys...).Err()
}

// DeletePrefix removes every key starting with prefix and returns how many
// were removed.
func (r *RedisClient) DeletePrefix(ctx context.Context, prefix string) (int64, error) {
	if r == nil || r.Client == nil {
		return 0, errNilRedis
	}

	var removed int64
	iter := r.Client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	batch := make([]string, 0, 100)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == cap(batch) {
			n, err := r.Client.Del(ctx, batch...).Result()
			if err != nil {
				return removed, err
			}
			removed += n
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return removed, err
	}
	if len(batch) > 0 {
		n, err := r.Client.Del(ctx, batch...).Result()
		if err != nil {
			return removed, err
		}
		removed += n
	}
	return removed, nil
}
