package models

import "time"

// PortfolioMetrics aggregates a set of signals. RR statistics are nil when
// no signal carries the underlying value.
type PortfolioMetrics struct {
	TotalSignals    int      `json:"total_signals"`
	ClosedTrades    int      `json:"closed_trades"`
	OpenSignals     int      `json:"open_signals"`
	TPHits          int      `json:"tp_hits"`
	SLHits          int      `json:"sl_hits"`
	WinRate         float64  `json:"win_rate"`
	AvgRRPlanned    *float64 `json:"avg_rr_planned"`
	MedianRRPlanned *float64 `json:"median_rr_planned"`
	MinRRPlanned    *float64 `json:"min_rr_planned"`
	MaxRRPlanned    *float64 `json:"max_rr_planned"`
	AvgRRRealized   *float64 `json:"avg_rr_realized"`
	TotalRRRealized *float64 `json:"total_realized_rr"`
}

// PairMetrics is PortfolioMetrics for one trading pair.
type PairMetrics struct {
	Pair string `json:"pair"`
	PortfolioMetrics
}

// PairProfile breaks a pair's closed trades down by outcome.
type PairProfile struct {
	Pair         string  `json:"pair"`
	TotalSignals int     `json:"total_signals"`
	ClosedTrades int     `json:"closed_trades"`
	OpenSignals  int     `json:"open_signals"`
	WinRate      float64 `json:"win_rate"`
	TP1Count     int     `json:"tp1_count"`
	TP2Count     int     `json:"tp2_count"`
	TP3Count     int     `json:"tp3_count"`
	TP4Count     int     `json:"tp4_count"`
	SLCount      int     `json:"sl_count"`
	TP1Rate      float64 `json:"tp1_rate"`
	TP2Rate      float64 `json:"tp2_rate"`
	TP3Rate      float64 `json:"tp3_rate"`
	TP4Rate      float64 `json:"tp4_rate"`
	SLRate       float64 `json:"sl_rate"`
	AvgRR        float64 `json:"avg_rr"`
	BestRR       float64 `json:"best_rr"`
	WorstRR      float64 `json:"worst_rr"`
	MedianRR     float64 `json:"median_rr"`
}

// TopPerformer is a ranked pair with its composite score.
type TopPerformer struct {
	Pair             string  `json:"pair"`
	TotalSignals     int     `json:"total_signals"`
	ClosedTrades     int     `json:"closed_trades"`
	OpenSignals      int     `json:"open_signals"`
	WinRate          float64 `json:"win_rate"`
	TP1Count         int     `json:"tp1_count"`
	TP2Count         int     `json:"tp2_count"`
	TP3Count         int     `json:"tp3_count"`
	TP4Count         int     `json:"tp4_count"`
	SLCount          int     `json:"sl_count"`
	AvgRR            float64 `json:"avg_rr"`
	PerformanceScore float64 `json:"performance_score"`
}

// RRBucket is one planned-RR histogram bin.
type RRBucket struct {
	Label string  `json:"label"`
	Lower float64 `json:"lower"`
	// Upper is nil for the open-ended last bin.
	Upper *float64 `json:"upper"`
	Count int      `json:"count"`
}

// RRDistribution summarizes planned RR values.
type RRDistribution struct {
	Buckets      []RRBucket `json:"buckets"`
	TotalSignals int        `json:"total_signals"`
	AvgRR        *float64   `json:"avg_rr"`
	MedianRR     *float64   `json:"median_rr"`
}

// PeriodWinrate is the win rate of closed trades in one calendar bucket.
type PeriodWinrate struct {
	Period        string    `json:"period"`
	PeriodStart   time.Time `json:"period_start"`
	TotalTrades   int       `json:"total_trades"`
	WinningTrades int       `json:"winning_trades"`
	LosingTrades  int       `json:"losing_trades"`
	WinRate       float64   `json:"win_rate"`
	MovingAverage *float64  `json:"moving_average,omitempty"`
}

// RollingWinratePoint is the rolling win rate after one closed trade.
type RollingWinratePoint struct {
	SignalID       string    `json:"signal_id"`
	CreatedAt      time.Time `json:"created_at"`
	IsWinner       bool      `json:"is_winner"`
	RollingWinRate float64   `json:"rolling_win_rate"`
}

// Trend labels.
const (
	TrendStronglyImproving = "strongly_improving"
	TrendImproving         = "improving"
	TrendStable            = "stable"
	TrendDeclining         = "declining"
	TrendStronglyDeclining = "strongly_declining"
	TrendInsufficientData  = "insufficient_data"
)

// TrendResult classifies the slope of a period win-rate series.
type TrendResult struct {
	Trend             string  `json:"trend"`
	Slope             float64 `json:"slope"`
	TrendStrength     float64 `json:"trend_strength"`
	CurrentWinRate    float64 `json:"current_win_rate"`
	RecentAvgWinRate  float64 `json:"recent_avg_win_rate"`
	OverallAvgWinRate float64 `json:"overall_avg_win_rate"`
	Points            int     `json:"points"`
}

// WinrateSummary counts closed trades by outcome within a time range.
type WinrateSummary struct {
	TimeRange      string  `json:"time_range"`
	TimeRangeLabel string  `json:"time_range_label"`
	TotalTrades    int     `json:"total_trades"`
	WinningTrades  int     `json:"winning_trades"`
	LosingTrades   int     `json:"losing_trades"`
	OverallWinRate float64 `json:"overall_win_rate"`
	TP1Count       int     `json:"tp1_count"`
	TP2Count       int     `json:"tp2_count"`
	TP3Count       int     `json:"tp3_count"`
	TP4Count       int     `json:"tp4_count"`
	SLCount        int     `json:"sl_count"`
}

// DateRange spans the earliest and latest creation time.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Days  int       `json:"days"`
}

// Summary holds the headline scalars of a signal set.
type Summary struct {
	TotalSignals   int        `json:"total_signals"`
	ClosedTrades   int        `json:"closed_trades"`
	OpenSignals    int        `json:"open_signals"`
	UniquePairs    int        `json:"unique_pairs"`
	WinRate        float64    `json:"win_rate"`
	CompletionRate float64    `json:"completion_rate"`
	AvgRR          float64    `json:"avg_rr"`
	DateRange      *DateRange `json:"date_range,omitempty"`
}

// ProcessingSummary describes the output of one pipeline pass.
type ProcessingSummary struct {
	TotalSignals        int        `json:"total_signals"`
	UniquePairs         int        `json:"unique_pairs"`
	SignalsWithOutcomes int        `json:"signals_with_outcomes"`
	OpenSignals         int        `json:"open_signals"`
	UpdateEvents        int        `json:"update_events"`
	TablesFound         []string   `json:"tables_found"`
	DateRange           *DateRange `json:"date_range,omitempty"`
	LoadedAt            time.Time  `json:"loaded_at"`
}

// InferredOutcome is the best outcome reached by one signal.
type InferredOutcome struct {
	SignalID            string  `json:"signal_id"`
	FinalOutcome        Outcome `json:"final_outcome"`
	TPLevel             int     `json:"tp_level"`
	MatchedUpdates      int     `json:"matched_updates"`
	UnrecognizedUpdates int     `json:"unrecognized_updates"`
}

// OutcomeInference is the result of scanning an update log.
type OutcomeInference struct {
	Outcomes map[string]InferredOutcome `json:"outcomes"`
	// Unresolved lists signals whose updates were all unrecognized.
	Unresolved []string `json:"unresolved"`
	Events     int      `json:"events"`
}

// OutcomeStats counts inferred outcomes.
type OutcomeStats struct {
	TotalOutcomes int             `json:"total_outcomes"`
	TPHits        int             `json:"tp_hits"`
	SLHits        int             `json:"sl_hits"`
	Distribution  map[Outcome]int `json:"outcome_distribution"`
	WinRate       float64         `json:"win_rate"`
}

// OutcomeValidation reports how well the update log covers the signals.
type OutcomeValidation struct {
	IsValid         bool     `json:"is_valid"`
	Coverage        float64  `json:"coverage"`
	UnresolvedCount int      `json:"unresolved_count"`
	Warnings        []string `json:"warnings"`
}

// Data quality statuses.
const (
	QualityGood     = "good"
	QualityWarnings = "warnings"
	QualityIssues   = "issues"
	QualityEmpty    = "empty"
)

// ColumnQuality describes null density of one canonical column.
type ColumnQuality struct {
	NullCount      int     `json:"null_count"`
	NullPercentage float64 `json:"null_percentage"`
	UniqueValues   int     `json:"unique_values"`
}

// DataQualityReport summarizes problems found in a standardized table.
type DataQualityReport struct {
	Status     string                   `json:"status"`
	TotalRows  int                      `json:"total_rows"`
	Issues     []string                 `json:"issues"`
	Warnings   []string                 `json:"warnings"`
	ColumnInfo map[string]ColumnQuality `json:"column_info,omitempty"`
}
