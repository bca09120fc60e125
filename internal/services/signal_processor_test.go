package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/luxquanttrade/luxquant-analyze-app/internal/cache"
	"github.com/luxquanttrade/luxquant-analyze-app/internal/config"
	"github.com/luxquanttrade/luxquant-analyze-app/internal/logging"
	"github.com/luxquanttrade/luxquant-analyze-app/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type stubSource struct {
	snapshot *models.SourceSnapshot
	err      error
	calls    int
}

func (s *stubSource) Load(context.Context) (*models.SourceSnapshot, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.snapshot, nil
}

func pipelineSnapshot() *models.SourceSnapshot {
	return &models.SourceSnapshot{
		Available: []string{"signals", "signal_updates"},
		LoadedAt:  testNow.Add(-time.Minute),
		Tables: map[string]*models.RawTable{
			models.TableSignals: {
				Name:    "signals",
				Columns: []string{"signal_id", "pair", "created_at", "entry", "target1", "target2", "stop1"},
				Rows: [][]any{
					{"S1", "btcusdt", "2024-06-14 10:00:00", 100.0, 110.0, 120.0, 90.0},
					{"S2", "ethusdt", "2024-06-10 10:00:00", 50.0, 55.0, nil, 45.0},
					{"S3", "btcusdt", "2024-05-01 10:00:00", "abc", 10.0, nil, 8.0},
				},
			},
			models.TableUpdates: {
				Name:    "signal_updates",
				Columns: []string{"signal_id", "update_type"},
				Rows: [][]any{
					{"S1", "TP1 hit"},
					{"S1", "target 2 reached"},
					{"S2", "SL hit"},
					{"S3", "moved to breakeven"},
				},
			},
		},
	}
}

func newTestProcessor(source SnapshotSource, c *cache.SnapshotCache, logger logging.Logger) *SignalProcessor {
	p := NewSignalProcessor(source, c, config.AnalyticsConfig{}, logger)
	p.SetClock(func() time.Time { return testNow })
	return p
}

func TestProcessTables_EndToEnd(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := logging.NewStandardLoggerFromZap(zap.New(core))
	p := newTestProcessor(nil, nil, logger)

	snap := pipelineSnapshot()
	data := p.ProcessTables(snap.Table(models.TableSignals), snap.Table(models.TableUpdates))
	require.Len(t, data.Signals, 3)

	s1 := data.Signals[0]
	assert.Equal(t, "BTCUSDT", s1.Pair)
	assert.Equal(t, models.OutcomeTP2, s1.FinalOutcome)
	assert.Equal(t, 2.0, *s1.RRPlanned)
	assert.Equal(t, 2.0, *s1.RRRealized)

	assert.Equal(t, models.OutcomeSL, data.Signals[1].FinalOutcome)
	assert.Equal(t, -1.0, *data.Signals[1].RRRealized)

	s3 := data.Signals[2]
	assert.True(t, s3.IsOpen)
	assert.Nil(t, s3.Entry)
	assert.Nil(t, s3.RRPlanned)
	assert.Equal(t, []string{"S3"}, data.Inference.Unresolved)
	assert.Equal(t, []string{"entry: 1 invalid value(s) replaced with defaults"}, data.Standardize.Warnings)

	entries := logs.FilterMessage("Processed signals").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "signal_processor", fields["component"])
	metrics, ok := fields["metrics"].(map[string]interface{})
	require.True(t, ok)
	assert.EqualValues(t, 3, metrics["signals"])
	assert.EqualValues(t, 2, metrics["inferred_outcomes"])
	assert.EqualValues(t, 1, metrics["unresolved"])
}

func TestProcessTables_NoUpdatesKeepsSourceOutcomes(t *testing.T) {
	p := newTestProcessor(nil, nil, nil)
	data := p.ProcessTables(&models.RawTable{
		Columns: []string{"signal_id", "final_outcome"},
		Rows:    [][]any{{"S1", "tp3"}, {"S2", nil}},
	}, nil)

	assert.Equal(t, models.OutcomeTP3, data.Signals[0].FinalOutcome)
	assert.True(t, data.Signals[1].IsOpen)
	assert.Empty(t, data.UpdateWarnings)
	assert.Zero(t, data.Inference.Events)
}

func TestSignalProcessor_LoadUsesCache(t *testing.T) {
	source := &stubSource{snapshot: pipelineSnapshot()}
	c := cache.NewSnapshotCache(config.CacheConfig{Enabled: true, TTL: "5m"}, nil, nil)
	p := newTestProcessor(source, c, nil)
	ctx := context.Background()

	first, err := p.Load(ctx)
	require.NoError(t, err)
	assert.False(t, first.CacheHit)
	assert.Equal(t, []string{"signals", "signal_updates"}, first.TablesFound)
	assert.Equal(t, testNow.Add(-time.Minute), first.LoadedAt)

	second, err := p.Load(ctx)
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, 1, source.calls)
	assert.Equal(t, first.Signals, second.Signals)
}

func TestSignalProcessor_LoadErrors(t *testing.T) {
	_, err := newTestProcessor(nil, nil, nil).Load(context.Background())
	assert.ErrorIs(t, err, ErrNoSource)

	boom := errors.New("connection refused")
	source := &stubSource{err: boom}
	_, err = newTestProcessor(source, nil, nil).Load(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "failed to load signal source")
}

func TestProcessingSummary(t *testing.T) {
	p := newTestProcessor(nil, nil, nil)
	data := p.Process(context.Background(), pipelineSnapshot())

	s := data.ProcessingSummary()
	assert.Equal(t, 3, s.TotalSignals)
	assert.Equal(t, 2, s.UniquePairs)
	assert.Equal(t, 2, s.SignalsWithOutcomes)
	assert.Equal(t, 1, s.OpenSignals)
	assert.Equal(t, 4, s.UpdateEvents)
	require.NotNil(t, s.DateRange)
	assert.Equal(t, 44, s.DateRange.Days)
}

func TestReports(t *testing.T) {
	p := newTestProcessor(nil, nil, nil)
	data := p.Process(context.Background(), pipelineSnapshot())

	f := DefaultFilter()
	f.TimeRange = TimeRange7D
	summary := p.BuildSummaryReport(data, f)
	assert.Equal(t, 2, summary.Summary.TotalSignals)
	assert.Equal(t, 50.0, summary.Summary.WinRate)
	assert.Equal(t, "Last 7 Days", summary.Winrate.TimeRangeLabel)
	assert.Equal(t, 3, summary.Processing.TotalSignals, "processing covers the unfiltered set")

	trend := p.BuildTrendReport(data, DefaultFilter())
	require.Len(t, trend.Periods, 2)
	assert.Equal(t, "2024-06-10", trend.Periods[0].Period)
	assert.Equal(t, 0.0, trend.Periods[0].WinRate)
	assert.Equal(t, 100.0, trend.Periods[1].WinRate)
	assert.Equal(t, models.TrendStronglyImproving, trend.Trend.Trend)

	quality := p.BuildQualityReport(data, testNow)
	assert.Equal(t, models.QualityWarnings, quality.Quality.Status)
	assert.Equal(t, []string{"S3"}, quality.Unresolved)
	assert.Equal(t, 2, quality.OutcomeStats.TotalOutcomes)
	assert.NotNil(t, quality.UpdateWarnings)
}
