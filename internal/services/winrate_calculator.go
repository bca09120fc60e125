package services

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/luxquanttrade/luxquant-analyze-app/internal/config"
	"github.com/luxquanttrade/luxquant-analyze-app/internal/models"
	"github.com/luxquanttrade/luxquant-analyze-app/internal/talib"
)

// Winrate defaults.
const (
	DefaultRollingWindow       = 30
	DefaultTrendRecentWindow   = 5
	DefaultMovingAveragePeriod = 7
)

// Trend slope thresholds, in win-rate points per period.
const (
	strongTrendSlope = 2.0
	mildTrendSlope   = 0.5
)

// WinrateCalculator buckets closed trades over time and classifies the
// resulting win-rate trend.
type WinrateCalculator struct {
	rollingWindow int
	recentWindow  int
	maPeriod      int
	maKind        int
}

// NewWinrateCalculator reads window sizes from cfg. Non-positive values
// select the defaults.
func NewWinrateCalculator(cfg config.AnalyticsConfig) *WinrateCalculator {
	c := &WinrateCalculator{
		rollingWindow: cfg.RollingWindow,
		recentWindow:  cfg.TrendRecentWindow,
		maPeriod:      cfg.MovingAveragePeriod,
		maKind:        talib.ParseKind(cfg.MovingAverageType),
	}
	if c.rollingWindow <= 0 {
		c.rollingWindow = DefaultRollingWindow
	}
	if c.recentWindow <= 0 {
		c.recentWindow = DefaultTrendRecentWindow
	}
	if c.maPeriod <= 0 {
		c.maPeriod = DefaultMovingAveragePeriod
	}
	return c
}

// RollingWindow is the default rolling window size.
func (c *WinrateCalculator) RollingWindow() int { return c.rollingWindow }

// ClosedTrades drops open signals.
func ClosedTrades(signals []models.Signal) []models.Signal {
	closed := make([]models.Signal, 0, len(signals))
	for _, s := range signals {
		if s.FinalOutcome.IsClosed() {
			closed = append(closed, s)
		}
	}
	return closed
}

// PeriodBucket returns the label and start of the calendar bucket holding t.
// Weeks are ISO weeks starting on Monday.
func PeriodBucket(t time.Time, g Granularity) (string, time.Time) {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	switch g {
	case GranularityWeekly:
		start := day.AddDate(0, 0, -((int(day.Weekday()) + 6) % 7))
		year, week := day.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week), start
	case GranularityMonthly:
		start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
		return start.Format("2006-01"), start
	default:
		return day.Format(DateLayout), day
	}
}

// PeriodWinrates buckets closed trades by g, sorted by period start. With
// showMA each row also carries a moving average of the win rate.
func (c *WinrateCalculator) PeriodWinrates(signals []models.Signal, g Granularity, showMA bool) []models.PeriodWinrate {
	buckets := make(map[string]*models.PeriodWinrate)
	for _, s := range ClosedTrades(signals) {
		label, start := PeriodBucket(s.CreatedAt, g)
		b, ok := buckets[label]
		if !ok {
			b = &models.PeriodWinrate{Period: label, PeriodStart: start}
			buckets[label] = b
		}
		b.TotalTrades++
		if s.FinalOutcome.IsWin() {
			b.WinningTrades++
		}
	}

	periods := make([]models.PeriodWinrate, 0, len(buckets))
	for _, b := range buckets {
		b.LosingTrades = b.TotalTrades - b.WinningTrades
		b.WinRate = percent(b.WinningTrades, b.TotalTrades)
		periods = append(periods, *b)
	}
	sort.Slice(periods, func(i, j int) bool {
		return periods[i].PeriodStart.Before(periods[j].PeriodStart)
	})

	if showMA && len(periods) > 0 {
		rates := make([]float64, len(periods))
		for i, p := range periods {
			rates[i] = p.WinRate
		}
		for i, ma := range talib.MovingAverage(c.maKind, rates, c.maPeriod) {
			periods[i].MovingAverage = RoundPtr(ma, 2)
		}
	}
	return periods
}

// RollingWinrate sorts closed trades by creation time and reports the win
// rate over the last window trades after each one. The first window-1
// points average what is available. A non-positive window selects the
// configured size.
func (c *WinrateCalculator) RollingWinrate(signals []models.Signal, window int) []models.RollingWinratePoint {
	if window <= 0 {
		window = c.rollingWindow
	}
	closed := ClosedTrades(signals)
	sort.SliceStable(closed, func(i, j int) bool {
		if !closed[i].CreatedAt.Equal(closed[j].CreatedAt) {
			return closed[i].CreatedAt.Before(closed[j].CreatedAt)
		}
		return closed[i].SignalID < closed[j].SignalID
	})

	points := make([]models.RollingWinratePoint, len(closed))
	wins := 0
	for i, s := range closed {
		if s.FinalOutcome.IsWin() {
			wins++
		}
		if i >= window && closed[i-window].FinalOutcome.IsWin() {
			wins--
		}
		n := min(i+1, window)
		points[i] = models.RollingWinratePoint{
			SignalID:       s.SignalID,
			CreatedAt:      s.CreatedAt,
			IsWinner:       s.FinalOutcome.IsWin(),
			RollingWinRate: percent(wins, n),
		}
	}
	return points
}

// Trend fits an ordinary least squares line through the period win rates
// against their index and classifies its slope.
func (c *WinrateCalculator) Trend(periods []models.PeriodWinrate) models.TrendResult {
	y := make([]float64, 0, len(periods))
	for _, p := range periods {
		if !math.IsNaN(p.WinRate) {
			y = append(y, p.WinRate)
		}
	}
	if len(y) < 2 {
		return models.TrendResult{Trend: models.TrendInsufficientData, Points: len(y)}
	}

	slope := olsSlope(y)
	recent := y[len(y)-min(c.recentWindow, len(y)):]

	return models.TrendResult{
		Trend:             classifySlope(slope),
		Slope:             Round(slope, 3),
		TrendStrength:     Round(math.Abs(slope), 3),
		CurrentWinRate:    y[len(y)-1],
		RecentAvgWinRate:  Round(mean(recent), 2),
		OverallAvgWinRate: Round(mean(y), 2),
		Points:            len(y),
	}
}

// olsSlope is the least squares slope of y over x = 0..n-1.
func olsSlope(y []float64) float64 {
	n := float64(len(y))
	xMean := (n - 1) / 2
	yMean := mean(y)
	var num, den float64
	for i, v := range y {
		dx := float64(i) - xMean
		num += dx * (v - yMean)
		den += dx * dx
	}
	if den == 0 {
		return 0
	}
	return num / den
}

func classifySlope(slope float64) string {
	switch {
	case slope > strongTrendSlope:
		return models.TrendStronglyImproving
	case slope > mildTrendSlope:
		return models.TrendImproving
	case slope < -strongTrendSlope:
		return models.TrendStronglyDeclining
	case slope < -mildTrendSlope:
		return models.TrendDeclining
	default:
		return models.TrendStable
	}
}

// CalculateWinrateSummary counts closed trades by outcome. signals should
// already be restricted to tr.
func CalculateWinrateSummary(signals []models.Signal, tr TimeRange) models.WinrateSummary {
	closed := ClosedTrades(signals)
	counts := outcomeCounts(closed)
	s := models.WinrateSummary{
		TimeRange:      string(tr),
		TimeRangeLabel: tr.Label(),
		TotalTrades:    len(closed),
		TP1Count:       counts[models.OutcomeTP1],
		TP2Count:       counts[models.OutcomeTP2],
		TP3Count:       counts[models.OutcomeTP3],
		TP4Count:       counts[models.OutcomeTP4],
		SLCount:        counts[models.OutcomeSL],
	}
	s.WinningTrades = s.TP1Count + s.TP2Count + s.TP3Count + s.TP4Count
	s.LosingTrades = s.TotalTrades - s.WinningTrades
	s.OverallWinRate = percent(s.WinningTrades, s.TotalTrades)
	return s
}
