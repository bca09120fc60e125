// Package middleware provides the gin middleware of the analysis API.
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/luxquanttrade/luxquant-analyze-app/internal/config"
	"github.com/luxquanttrade/luxquant-analyze-app/internal/logging"
	"github.com/redis/go-redis/v9"
)

const (
	RateLimitHeader          = "X-RateLimit-Limit"
	RateLimitRemainingHeader = "X-RateLimit-Remaining"
	RateLimitResetHeader     = "X-RateLimit-Reset"
)

const rateLimitKeyPrefix = "luxquant:ratelimit:"

// RateLimitConfig controls request throttling.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
	// KeyFunc identifies the client; defaults to the client IP.
	KeyFunc func(*gin.Context) string
	// SkipFunc exempts requests; defaults to skipping /health.
	SkipFunc func(*gin.Context) bool
}

// DefaultRateLimitConfig allows 100 requests per minute per client IP.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Requests: 100,
		Window:   time.Minute,
		KeyFunc:  func(c *gin.Context) string { return c.ClientIP() },
		SkipFunc: func(c *gin.Context) bool { return c.Request.URL.Path == "/health" },
	}
}

// RateLimitConfigFrom applies the configured limits over the defaults.
func RateLimitConfigFrom(cfg config.RateLimitConfig) RateLimitConfig {
	rl := DefaultRateLimitConfig()
	if cfg.Requests > 0 {
		rl.Requests = cfg.Requests
	}
	if d, err := time.ParseDuration(cfg.Window); err == nil && d > 0 {
		rl.Window = d
	}
	return rl
}

// fixedWindow increments the counter unless the limit is reached and
// returns {allowed, remaining, ttl seconds}.
var fixedWindow = redis.NewScript(`
local current = tonumber(redis.call("GET", KEYS[1]) or "0")
local limit = tonumber(ARGV[1])
if current >= limit then
	return {0, 0, redis.call("TTL", KEYS[1])}
end
current = redis.call("INCR", KEYS[1])
if current == 1 then
	redis.call("EXPIRE", KEYS[1], ARGV[2])
end
return {1, limit - current, redis.call("TTL", KEYS[1])}
`)

// RateLimiter counts requests per key in fixed windows, in Redis when a
// client is given and in process memory otherwise.
type RateLimiter struct {
	config RateLimitConfig
	redis  *redis.Client
	logger logging.Logger
	now    func() time.Time

	mu    sync.Mutex
	local map[string]*rateLimitEntry
}

type rateLimitEntry struct {
	count   int
	resetAt time.Time
}

// NewRateLimiter creates a limiter. redisClient and logger may be nil.
func NewRateLimiter(cfg RateLimitConfig, redisClient *redis.Client, logger logging.Logger) *RateLimiter {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	defaults := DefaultRateLimitConfig()
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = defaults.KeyFunc
	}
	if cfg.Requests <= 0 {
		cfg.Requests = defaults.Requests
	}
	if cfg.Window <= 0 {
		cfg.Window = defaults.Window
	}
	return &RateLimiter{
		config: cfg,
		redis:  redisClient,
		logger: logger.WithComponent("rate_limiter"),
		now:    time.Now,
		local:  make(map[string]*rateLimitEntry),
	}
}

// Middleware rejects requests over the limit with 429. A Redis failure
// lets the request through.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.config.SkipFunc != nil && rl.config.SkipFunc(c) {
			c.Next()
			return
		}

		key := rl.config.KeyFunc(c)
		allowed, remaining, resetAt, err := rl.allow(c.Request.Context(), key)
		if err != nil {
			rl.logger.WithError(err).WithFields(map[string]interface{}{"key": key}).Error("Rate limit check failed")
			c.Next()
			return
		}

		c.Header(RateLimitHeader, strconv.Itoa(rl.config.Requests))
		c.Header(RateLimitRemainingHeader, strconv.Itoa(remaining))
		c.Header(RateLimitResetHeader, strconv.FormatInt(resetAt.Unix(), 10))

		if !allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"status":      "error",
				"error":       "rate limit exceeded",
				"retry_after": int64(resetAt.Sub(rl.now()).Seconds()),
			})
			return
		}
		c.Next()
	}
}

func (rl *RateLimiter) allow(ctx context.Context, key string) (bool, int, time.Time, error) {
	if rl.redis != nil {
		return rl.allowRedis(ctx, key)
	}
	return rl.allowLocal(key)
}

func (rl *RateLimiter) allowRedis(ctx context.Context, key string) (bool, int, time.Time, error) {
	res, err := fixedWindow.Run(ctx, rl.redis, []string{rateLimitKeyPrefix + key},
		rl.config.Requests, windowSeconds(rl.config.Window)).Int64Slice()
	if err != nil {
		return false, 0, time.Time{}, fmt.Errorf("rate limit script failed: %w", err)
	}
	if len(res) != 3 {
		return false, 0, time.Time{}, fmt.Errorf("unexpected rate limit reply of length %d", len(res))
	}
	resetAt := rl.now().Add(time.Duration(res[2]) * time.Second)
	return res[0] == 1, int(res[1]), resetAt, nil
}

// windowSeconds rounds the window up to whole seconds, at least one, since
// EXPIRE 0 would delete the counter at once.
func windowSeconds(d time.Duration) int {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}

func (rl *RateLimiter) allowLocal(key string) (bool, int, time.Time, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if len(rl.local) > 100 {
		for k, e := range rl.local {
			if !now.Before(e.resetAt) {
				delete(rl.local, k)
			}
		}
	}

	e, ok := rl.local[key]
	if !ok || !now.Before(e.resetAt) {
		e = &rateLimitEntry{resetAt: now.Add(rl.config.Window)}
		rl.local[key] = e
	}
	if e.count >= rl.config.Requests {
		return false, 0, e.resetAt, nil
	}
	e.count++
	return true, rl.config.Requests - e.count, e.resetAt, nil
}

// Reset clears the counter of key.
func (rl *RateLimiter) Reset(ctx context.Context, key string) error {
	if rl.redis != nil {
		return rl.redis.Del(ctx, rateLimitKeyPrefix+key).Err()
	}
	rl.mu.Lock()
	delete(rl.local, key)
	rl.mu.Unlock()
	return nil
}
