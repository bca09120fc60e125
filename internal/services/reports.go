package services

import (
	"time"

	"github.com/luxquanttrade/luxquant-analyze-app/internal/models"
)

// SummaryReport bundles the headline numbers of a filtered signal set.
type SummaryReport struct {
	Summary    models.Summary           `json:"summary" yaml:"summary"`
	Portfolio  models.PortfolioMetrics  `json:"portfolio" yaml:"portfolio"`
	Winrate    models.WinrateSummary    `json:"winrate" yaml:"winrate"`
	Processing models.ProcessingSummary `json:"processing" yaml:"processing"`
}

// TrendReport is a period win-rate series with its trend classification.
type TrendReport struct {
	Granularity Granularity            `json:"granularity" yaml:"granularity"`
	TimeRange   TimeRange              `json:"time_range" yaml:"time_range"`
	Periods     []models.PeriodWinrate `json:"periods" yaml:"periods"`
	Trend       models.TrendResult     `json:"trend" yaml:"trend"`
}

// QualityReport combines data quality with outcome coverage.
type QualityReport struct {
	Quality        models.DataQualityReport `json:"quality" yaml:"quality"`
	Outcomes       models.OutcomeValidation `json:"outcome_validation" yaml:"outcome_validation"`
	OutcomeStats   models.OutcomeStats      `json:"outcome_stats" yaml:"outcome_stats"`
	UpdateWarnings []string                 `json:"update_warnings" yaml:"update_warnings"`
	Unresolved     []string                 `json:"unresolved_signals" yaml:"unresolved_signals"`
}

// BuildSummaryReport filters data and summarizes the selection.
func (p *SignalProcessor) BuildSummaryReport(data *ProcessedData, f Filter) SummaryReport {
	filtered := f.Apply(data.Signals, p.now())
	return SummaryReport{
		Summary:    CalculateSummary(filtered),
		Portfolio:  CalculatePortfolioMetrics(filtered),
		Winrate:    CalculateWinrateSummary(filtered, f.TimeRange),
		Processing: data.ProcessingSummary(),
	}
}

// BuildTrendReport buckets the filtered closed trades and classifies the trend.
func (p *SignalProcessor) BuildTrendReport(data *ProcessedData, f Filter) TrendReport {
	periods := p.winrate.PeriodWinrates(f.Apply(data.Signals, p.now()), f.Granularity, f.ShowMA)
	return TrendReport{
		Granularity: f.Granularity,
		TimeRange:   f.TimeRange,
		Periods:     periods,
		Trend:       p.winrate.Trend(periods),
	}
}

// BuildQualityReport inspects the whole processed table; filters do not apply.
func (p *SignalProcessor) BuildQualityReport(data *ProcessedData, now time.Time) QualityReport {
	warnings := data.UpdateWarnings
	if warnings == nil {
		warnings = []string{}
	}
	return QualityReport{
		Quality:        DataQualityReport(data.Standardize, data.Signals, now),
		Outcomes:       ValidateOutcomes(data.Inference, len(data.Signals)),
		OutcomeStats:   OutcomeStatistics(data.Inference),
		UpdateWarnings: warnings,
		Unresolved:     data.Inference.Unresolved,
	}
}
