package database

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/jackc/pgx/v5"
	"github.com/luxquanttrade/luxquant-analyze-app/internal/logging"
	"github.com/luxquanttrade/luxquant-analyze-app/internal/observability"
)

const (
	defaultSlowQueryThreshold = 2 * time.Second
	maxTrackedSlowQueries     = 100
)

// SlowQuery aggregates repeated executions of one statement above the
// slow-query threshold.
type SlowQuery struct {
	Query     string        `json:"query"`
	TableName string        `json:"table_name"`
	Duration  time.Duration `json:"duration_ms"`
	LastSeen  time.Time     `json:"last_seen"`
	CallCount int           `json:"call_count"`
}

// QueryTracer is a pgx tracer that opens a Sentry span per query and
// records statements slower than the threshold.
type QueryTracer struct {
	logger    logging.Logger
	threshold time.Duration

	mu      sync.Mutex
	queries map[string]*SlowQuery
}

var _ pgx.QueryTracer = (*QueryTracer)(nil)

type traceKey struct{}

type traceState struct {
	span  *sentry.Span
	sql   string
	start time.Time
}

// NewQueryTracer creates a tracer. A non-positive threshold uses the default.
func NewQueryTracer(logger logging.Logger, threshold time.Duration) *QueryTracer {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if threshold <= 0 {
		threshold = defaultSlowQueryThreshold
	}
	return &QueryTracer{
		logger:    logger,
		threshold: threshold,
		queries:   make(map[string]*SlowQuery),
	}
}

func (t *QueryTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	spanCtx, span := observability.StartSpan(ctx, observability.SpanOpDBQuery, truncateQuery(data.SQL))
	return context.WithValue(spanCtx, traceKey{}, &traceState{span: span, sql: data.SQL, start: time.Now()})
}

func (t *QueryTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	state, ok := ctx.Value(traceKey{}).(*traceState)
	if !ok {
		return
	}
	observability.FinishSpan(state.span, data.Err)
	t.observe(state.sql, time.Since(state.start))
}

func (t *QueryTracer) observe(query string, duration time.Duration) {
	if duration < t.threshold {
		return
	}

	key := normalizeQuery(query)
	table := extractTableNameFromQuery(query)

	t.mu.Lock()
	if existing, ok := t.queries[key]; ok {
		existing.Duration = (existing.Duration*time.Duration(existing.CallCount) + duration) / time.Duration(existing.CallCount+1)
		existing.CallCount++
		existing.LastSeen = time.Now()
	} else {
		t.queries[key] = &SlowQuery{
			Query:     truncateQuery(query),
			TableName: table,
			Duration:  duration,
			LastSeen:  time.Now(),
			CallCount: 1,
		}
		if len(t.queries) > maxTrackedSlowQueries {
			t.evictOldest()
		}
	}
	t.mu.Unlock()

	t.logger.WithFields(map[string]interface{}{
		"table":       table,
		"duration_ms": duration.Milliseconds(),
	}).Warn("Slow query")
}

// SlowQueries returns the tracked statements, slowest first.
func (t *QueryTracer) SlowQueries() []SlowQuery {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]SlowQuery, 0, len(t.queries))
	for _, q := range t.queries {
		out = append(out, *q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Duration > out[j].Duration })
	return out
}

// evictOldest must be called with mu held.
func (t *QueryTracer) evictOldest() {
	var oldestKey string
	var oldest time.Time
	for key, q := range t.queries {
		if oldest.IsZero() || q.LastSeen.Before(oldest) {
			oldest = q.LastSeen
			oldestKey = key
		}
	}
	if oldestKey != "" {
		delete(t.queries, oldestKey)
	}
}

func normalizeQuery(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

func extractTableNameFromQuery(query string) string {
	fields := strings.Fields(strings.ToLower(query))
	for i, f := range fields {
		if (f == "from" || f == "into" || f == "update") && i+1 < len(fields) {
			return strings.Trim(fields[i+1], "()\",;")
		}
	}
	return "unknown"
}

func truncateQuery(query string) string {
	const maxLen = 200
	if len(query) <= maxLen {
		return query
	}
	return query[:maxLen] + "..."
}
