package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/luxquanttrade/luxquant-analyze-app/internal/cache"
	"github.com/luxquanttrade/luxquant-analyze-app/internal/config"
	"github.com/luxquanttrade/luxquant-analyze-app/internal/logging"
	"github.com/luxquanttrade/luxquant-analyze-app/internal/models"
	"github.com/luxquanttrade/luxquant-analyze-app/internal/observability"
)

// snapshotCacheKey identifies the single raw load the processor caches.
const snapshotCacheKey = "source"

// ErrNoSource is returned by Load when the processor has no source.
var ErrNoSource = errors.New("no signal source configured")

// SnapshotSource loads the raw source tables.
type SnapshotSource interface {
	Load(ctx context.Context) (*models.SourceSnapshot, error)
}

// ProcessedData is the result of one pipeline pass.
type ProcessedData struct {
	Signals        []models.Signal
	Standardize    StandardizeResult
	Inference      models.OutcomeInference
	UpdateWarnings []string
	TablesFound    []string
	LoadedAt       time.Time
	CacheHit       bool
}

// SignalProcessor runs the pipeline: load (through the snapshot cache),
// standardize, infer outcomes and compute risk/reward.
type SignalProcessor struct {
	source       SnapshotSource
	cache        *cache.SnapshotCache
	standardizer *Standardizer
	winrate      *WinrateCalculator
	exporter     *Exporter
	analytics    config.AnalyticsConfig
	logger       logging.Logger
	now          func() time.Time
}

// NewSignalProcessor wires the pipeline. source and snapshotCache may be
// nil; without a source only ProcessTables is usable.
func NewSignalProcessor(source SnapshotSource, snapshotCache *cache.SnapshotCache, cfg config.AnalyticsConfig, logger logging.Logger) *SignalProcessor {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &SignalProcessor{
		source:       source,
		cache:        snapshotCache,
		standardizer: NewStandardizer(cfg.PriceCeiling, logger),
		winrate:      NewWinrateCalculator(cfg),
		exporter:     NewExporter(cfg.ExportPrecision),
		analytics:    cfg,
		logger:       logger.WithComponent("signal_processor"),
		now:          time.Now,
	}
}

// Winrate returns the configured winrate calculator.
func (p *SignalProcessor) Winrate() *WinrateCalculator { return p.winrate }

// Exporter returns the configured exporter.
func (p *SignalProcessor) Exporter() *Exporter { return p.exporter }

// Analytics returns the pipeline settings.
func (p *SignalProcessor) Analytics() config.AnalyticsConfig { return p.analytics }

// Now is the reference clock for relative time ranges.
func (p *SignalProcessor) Now() time.Time { return p.now() }

// SetClock replaces the reference clock of the processor and its
// standardizer.
func (p *SignalProcessor) SetClock(now func() time.Time) {
	p.now = now
	p.standardizer.now = now
}

// Load fetches the source snapshot, from cache when fresh, and processes it.
func (p *SignalProcessor) Load(ctx context.Context) (*ProcessedData, error) {
	if p.source == nil {
		return nil, ErrNoSource
	}

	var (
		snapshot *models.SourceSnapshot
		hit      bool
		err      error
	)
	if p.cache != nil {
		snapshot, hit, err = p.cache.GetOrLoad(ctx, snapshotCacheKey, p.source.Load)
	} else {
		snapshot, err = p.source.Load(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load signal source: %w", err)
	}

	data := p.Process(ctx, snapshot)
	data.CacheHit = hit
	return data, nil
}

// Process runs the pipeline over an already loaded snapshot.
func (p *SignalProcessor) Process(ctx context.Context, snapshot *models.SourceSnapshot) *ProcessedData {
	_, span := observability.StartSpan(ctx, observability.SpanOpPipeline, "process signals")
	defer observability.FinishSpan(span, nil)

	data := p.ProcessTables(snapshot.Table(models.TableSignals), snapshot.Table(models.TableUpdates))
	if snapshot != nil {
		data.TablesFound = snapshot.Available
		data.LoadedAt = snapshot.LoadedAt
	}
	return data
}

// ProcessTables runs the pipeline over raw tables. updates may be nil, in
// which case source outcomes are kept as recorded.
func (p *SignalProcessor) ProcessTables(signals, updates *models.RawTable) *ProcessedData {
	data := &ProcessedData{LoadedAt: p.now().UTC(), TablesFound: []string{}}

	data.Standardize = p.standardizer.Standardize(signals)
	data.Signals = data.Standardize.Signals

	events, warnings := ParseUpdateEvents(updates)
	data.UpdateWarnings = warnings
	data.Inference = InferOutcomes(events)
	applied := ApplyOutcomes(data.Signals, data.Inference)

	ApplyRiskReward(data.Signals)

	p.logger.WithMetrics(map[string]interface{}{
		"signals":           len(data.Signals),
		"update_events":     len(events),
		"inferred_outcomes": applied,
		"unresolved":        len(data.Inference.Unresolved),
	}).Info("Processed signals")
	return data
}

// ProcessingSummary describes one pipeline pass.
func (d *ProcessedData) ProcessingSummary() models.ProcessingSummary {
	s := models.ProcessingSummary{
		TotalSignals: len(d.Signals),
		UniquePairs:  len(GroupByPair(d.Signals)),
		UpdateEvents: d.Inference.Events,
		TablesFound:  d.TablesFound,
		DateRange:    dateRange(d.Signals),
		LoadedAt:     d.LoadedAt,
	}
	for _, sig := range d.Signals {
		if sig.FinalOutcome.IsClosed() {
			s.SignalsWithOutcomes++
		}
	}
	s.OpenSignals = s.TotalSignals - s.SignalsWithOutcomes
	return s
}
