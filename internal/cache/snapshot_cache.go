// Package cache holds the short-lived read-through cache of raw source loads.
package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/luxquanttrade/luxquant-analyze-app/internal/config"
	"github.com/luxquanttrade/luxquant-analyze-app/internal/database"
	"github.com/luxquanttrade/luxquant-analyze-app/internal/logging"
	"github.com/luxquanttrade/luxquant-analyze-app/internal/models"
	"github.com/luxquanttrade/luxquant-analyze-app/internal/observability"
	"github.com/redis/go-redis/v9"
)

// LoadFunc produces a fresh snapshot on a cache miss.
type LoadFunc func(ctx context.Context) (*models.SourceSnapshot, error)

type snapshotEntry struct {
	Snapshot  *models.SourceSnapshot `json:"snapshot"`
	CachedAt  time.Time              `json:"cached_at"`
	ExpiresAt time.Time              `json:"expires_at"`
}

// Stats counts cache traffic since start or the last reset.
type Stats struct {
	Hits    int64  `json:"hits"`
	Misses  int64  `json:"misses"`
	Sets    int64  `json:"sets"`
	Backend string `json:"backend"`
}

// SnapshotCache keeps raw source snapshots for a fixed TTL. Entries live in
// Redis when a client is configured and in process memory otherwise; a Redis
// failure falls back to memory for that call. Concurrent misses are not
// coalesced.
type SnapshotCache struct {
	redis   *database.RedisClient
	ttl     time.Duration
	prefix  string
	enabled bool
	logger  logging.Logger
	now     func() time.Time

	mu     sync.Mutex
	memory map[string]snapshotEntry
	stats  Stats
}

// NewSnapshotCache builds a cache from config. redisClient may be nil.
func NewSnapshotCache(cfg config.CacheConfig, redisClient *database.RedisClient, logger logging.Logger) *SnapshotCache {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "luxquant:snapshot:"
	}
	backend := "memory"
	if redisClient != nil {
		backend = "redis"
	}
	return &SnapshotCache{
		redis:   redisClient,
		ttl:     cfg.TTLDuration(),
		prefix:  prefix,
		enabled: cfg.Enabled,
		logger:  logger.WithComponent("snapshot_cache"),
		now:     time.Now,
		memory:  make(map[string]snapshotEntry),
		stats:   Stats{Backend: backend},
	}
}

// TTL returns the entry lifetime.
func (c *SnapshotCache) TTL() time.Duration { return c.ttl }

// GetOrLoad returns the cached snapshot for key or calls load and caches its
// result. The boolean reports a cache hit. Load errors are never cached.
func (c *SnapshotCache) GetOrLoad(ctx context.Context, key string, load LoadFunc) (*models.SourceSnapshot, bool, error) {
	if !c.enabled {
		snap, err := load(ctx)
		return snap, false, err
	}

	if snap, ok := c.Get(ctx, key); ok {
		return snap, true, nil
	}

	snap, err := load(ctx)
	if err != nil {
		return nil, false, err
	}
	if err := c.Set(ctx, key, snap); err != nil {
		c.logger.WithError(err).Warn("Failed to cache snapshot")
	}
	return snap, false, nil
}

// Get returns a live entry for key.
func (c *SnapshotCache) Get(ctx context.Context, key string) (*models.SourceSnapshot, bool) {
	ctx, span := observability.StartSpan(ctx, observability.SpanOpCache, key)
	defer observability.FinishSpan(span, nil)

	entry, ok := c.lookup(ctx, c.prefix+key)
	if !ok || !c.now().Before(entry.ExpiresAt) {
		c.record(func(s *Stats) { s.Misses++ })
		return nil, false
	}
	c.record(func(s *Stats) { s.Hits++ })
	return entry.Snapshot, true
}

func (c *SnapshotCache) lookup(ctx context.Context, fullKey string) (snapshotEntry, bool) {
	if c.redis != nil {
		data, err := c.redis.Get(ctx, fullKey)
		switch {
		case err == nil:
			entry, decodeErr := decodeEntry([]byte(data))
			if decodeErr == nil {
				return entry, true
			}
			c.logger.WithError(decodeErr).Warn("Discarding undecodable snapshot cache entry")
			return snapshotEntry{}, false
		case errors.Is(err, redis.Nil):
			return snapshotEntry{}, false
		default:
			c.logger.WithError(err).Warn("Redis snapshot cache unavailable; using memory")
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.memory[fullKey]
	return entry, ok
}

// Set stores snap under key for the configured TTL.
func (c *SnapshotCache) Set(ctx context.Context, key string, snap *models.SourceSnapshot) error {
	now := c.now()
	entry := snapshotEntry{Snapshot: snap, CachedAt: now, ExpiresAt: now.Add(c.ttl)}
	fullKey := c.prefix + key

	c.record(func(s *Stats) { s.Sets++ })

	if c.redis != nil {
		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("failed to marshal snapshot cache entry: %w", err)
		}
		err = c.redis.Set(ctx, fullKey, data, c.ttl)
		if err == nil {
			return nil
		}
		c.logger.WithError(err).Warn("Redis snapshot cache unavailable; using memory")
	}

	c.mu.Lock()
	c.memory[fullKey] = entry
	c.mu.Unlock()
	return nil
}

// Invalidate drops every cached snapshot and returns how many were removed.
func (c *SnapshotCache) Invalidate(ctx context.Context) (int64, error) {
	c.mu.Lock()
	removed := int64(len(c.memory))
	c.memory = make(map[string]snapshotEntry)
	c.mu.Unlock()

	if c.redis != nil {
		n, err := c.redis.DeletePrefix(ctx, c.prefix)
		removed += n
		if err != nil {
			return removed, fmt.Errorf("failed to invalidate snapshot cache: %w", err)
		}
	}

	c.logger.WithFields(map[string]interface{}{"removed": removed}).Info("Snapshot cache invalidated")
	return removed, nil
}

// Stats returns a copy of the counters.
func (c *SnapshotCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// HitRate is hits over lookups, in percent.
func (c *SnapshotCache) HitRate() float64 {
	s := c.Stats()
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}

func (c *SnapshotCache) record(update func(*Stats)) {
	c.mu.Lock()
	update(&c.stats)
	c.mu.Unlock()
}

// decodeEntry keeps integers exact: JSON numbers become int64 when integral
// and float64 otherwise.
func decodeEntry(data []byte) (snapshotEntry, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var entry snapshotEntry
	if err := dec.Decode(&entry); err != nil {
		return snapshotEntry{}, err
	}
	if entry.Snapshot == nil {
		return snapshotEntry{}, errors.New("snapshot cache entry has no snapshot")
	}
	for _, table := range entry.Snapshot.Tables {
		if table == nil {
			continue
		}
		for _, row := range table.Rows {
			for i, v := range row {
				if n, ok := v.(json.Number); ok {
					row[i] = numberValue(n)
				}
			}
		}
	}
	return entry, nil
}

func numberValue(n json.Number) any {
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}
