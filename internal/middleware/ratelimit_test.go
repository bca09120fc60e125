package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/luxquanttrade/luxquant-analyze-app/internal/config"
	"github.com/luxquanttrade/luxquant-analyze-app/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func limitedRouter(rl *RateLimiter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(rl.Middleware())
	r.GET("/api/v1/summary", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func get(r http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestRateLimitConfigFrom(t *testing.T) {
	rl := RateLimitConfigFrom(config.RateLimitConfig{Requests: 5, Window: "30s"})
	assert.Equal(t, 5, rl.Requests)
	assert.Equal(t, 30*time.Second, rl.Window)
	assert.NotNil(t, rl.KeyFunc)

	rl = RateLimitConfigFrom(config.RateLimitConfig{Window: "soon"})
	assert.Equal(t, 100, rl.Requests)
	assert.Equal(t, time.Minute, rl.Window)
}

func TestRateLimiter_Local(t *testing.T) {
	cfg := DefaultRateLimitConfig()
	cfg.Requests = 2
	rl := NewRateLimiter(cfg, nil, nil)
	r := limitedRouter(rl)

	first := get(r, "/api/v1/summary")
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "2", first.Header().Get(RateLimitHeader))
	assert.Equal(t, "1", first.Header().Get(RateLimitRemainingHeader))

	assert.Equal(t, http.StatusOK, get(r, "/api/v1/summary").Code)

	blocked := get(r, "/api/v1/summary")
	assert.Equal(t, http.StatusTooManyRequests, blocked.Code)
	assert.Contains(t, blocked.Body.String(), `"status":"error"`)

	assert.Equal(t, http.StatusOK, get(r, "/health").Code, "health is never limited")

	require.NoError(t, rl.Reset(context.Background(), "192.0.2.1"))
	assert.Equal(t, http.StatusOK, get(r, "/api/v1/summary").Code)
}

func TestRateLimiter_LocalWindowExpires(t *testing.T) {
	cfg := DefaultRateLimitConfig()
	cfg.Requests = 1
	rl := NewRateLimiter(cfg, nil, nil)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	ok, _, _, err := rl.allow(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, _, _, _ = rl.allow(context.Background(), "k")
	assert.False(t, ok)

	now = now.Add(time.Minute)
	ok, remaining, _, _ := rl.allow(context.Background(), "k")
	assert.True(t, ok)
	assert.Equal(t, 0, remaining)
}

func TestRateLimiter_Redis(t *testing.T) {
	s, client := testutil.NewMiniRedis(t)

	cfg := DefaultRateLimitConfig()
	cfg.Requests = 2
	cfg.KeyFunc = func(*gin.Context) string { return "client" }
	rl := NewRateLimiter(cfg, client, nil)
	r := limitedRouter(rl)

	assert.Equal(t, http.StatusOK, get(r, "/api/v1/summary").Code)
	assert.Equal(t, http.StatusOK, get(r, "/api/v1/summary").Code)
	assert.Equal(t, http.StatusTooManyRequests, get(r, "/api/v1/summary").Code)

	count, err := s.Get(rateLimitKeyPrefix + "client")
	require.NoError(t, err)
	assert.Equal(t, "2", count)
	assert.Equal(t, time.Minute, s.TTL(rateLimitKeyPrefix+"client"))

	s.FastForward(time.Minute)
	assert.Equal(t, http.StatusOK, get(r, "/api/v1/summary").Code)

	require.NoError(t, rl.Reset(context.Background(), "client"))
	assert.False(t, s.Exists(rateLimitKeyPrefix+"client"))
}

func TestRateLimiter_RedisSubSecondWindow(t *testing.T) {
	s, client := testutil.NewMiniRedis(t)

	cfg := DefaultRateLimitConfig()
	cfg.Requests = 2
	cfg.Window = 500 * time.Millisecond
	cfg.KeyFunc = func(*gin.Context) string { return "client" }
	r := limitedRouter(NewRateLimiter(cfg, client, nil))

	assert.Equal(t, http.StatusOK, get(r, "/api/v1/summary").Code)
	assert.Equal(t, http.StatusOK, get(r, "/api/v1/summary").Code)
	assert.Equal(t, http.StatusTooManyRequests, get(r, "/api/v1/summary").Code)
	assert.Equal(t, time.Second, s.TTL(rateLimitKeyPrefix+"client"))
}

func TestWindowSeconds(t *testing.T) {
	assert.Equal(t, 1, windowSeconds(time.Millisecond))
	assert.Equal(t, 1, windowSeconds(time.Second))
	assert.Equal(t, 2, windowSeconds(1500*time.Millisecond))
	assert.Equal(t, 60, windowSeconds(time.Minute))
}

func TestRateLimiter_RedisDownFailsOpen(t *testing.T) {
	s, client := testutil.NewMiniRedis(t)
	s.Close()

	cfg := DefaultRateLimitConfig()
	cfg.Requests = 1
	r := limitedRouter(NewRateLimiter(cfg, client, nil))

	assert.Equal(t, http.StatusOK, get(r, "/api/v1/summary").Code)
	assert.Equal(t, http.StatusOK, get(r, "/api/v1/summary").Code)
}
