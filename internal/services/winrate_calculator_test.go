package services

import (
	"fmt"
	"testing"
	"time"

	"github.com/luxquanttrade/luxquant-analyze-app/internal/config"
	"github.com/luxquanttrade/luxquant-analyze-app/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tradesOn(day time.Time, wins, total int) []models.Signal {
	var out []models.Signal
	for i := 0; i < total; i++ {
		o := models.OutcomeSL
		if i < wins {
			o = models.OutcomeTP1
		}
		s := signalWith(fmt.Sprintf("%s-%d", day.Format(DateLayout), i), "BTCUSDT", o)
		s.CreatedAt = day.Add(time.Duration(i) * time.Hour)
		out = append(out, s)
	}
	return out
}

func TestPeriodWinrates_DailyScenario(t *testing.T) {
	d1 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	var signals []models.Signal
	signals = append(signals, tradesOn(d1.AddDate(0, 0, 2), 1, 2)...)
	signals = append(signals, tradesOn(d1, 2, 5)...)
	signals = append(signals, tradesOn(d1.AddDate(0, 0, 1), 3, 4)...)
	signals = append(signals, signalWith("open", "BTCUSDT", models.OutcomeOpen))

	calc := NewWinrateCalculator(config.AnalyticsConfig{})
	periods := calc.PeriodWinrates(signals, GranularityDaily, false)
	require.Len(t, periods, 3)

	assert.Equal(t, "2024-03-01", periods[0].Period)
	assert.Equal(t, d1, periods[0].PeriodStart)
	assert.Equal(t, 5, periods[0].TotalTrades)
	assert.Equal(t, 2, periods[0].WinningTrades)
	assert.Equal(t, 3, periods[0].LosingTrades)

	rates := []float64{periods[0].WinRate, periods[1].WinRate, periods[2].WinRate}
	assert.Equal(t, []float64{40, 75, 50}, rates)
	assert.Nil(t, periods[0].MovingAverage)

	trend := calc.Trend(periods)
	assert.Equal(t, models.TrendStronglyImproving, trend.Trend)
	assert.Equal(t, 5.0, trend.Slope)
	assert.Equal(t, 5.0, trend.TrendStrength)
	assert.Equal(t, 50.0, trend.CurrentWinRate)
	assert.Equal(t, 55.0, trend.OverallAvgWinRate)
	assert.Equal(t, 55.0, trend.RecentAvgWinRate)
	assert.Equal(t, 3, trend.Points)
}

func TestPeriodBucket(t *testing.T) {
	label, start := PeriodBucket(time.Date(2021, 1, 1, 15, 0, 0, 0, time.UTC), GranularityWeekly)
	assert.Equal(t, "2020-W53", label)
	assert.Equal(t, time.Date(2020, 12, 28, 0, 0, 0, 0, time.UTC), start)

	label, start = PeriodBucket(time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC), GranularityWeekly)
	assert.Equal(t, "2024-W23", label)
	assert.Equal(t, time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC), start)

	label, start = PeriodBucket(time.Date(2024, 2, 29, 23, 59, 0, 0, time.UTC), GranularityMonthly)
	assert.Equal(t, "2024-02", label)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), start)

	label, _ = PeriodBucket(time.Date(2024, 1, 1, 1, 0, 0, 0, time.FixedZone("WIB", 7*3600)), GranularityDaily)
	assert.Equal(t, "2023-12-31", label, "buckets are UTC days")
}

func TestPeriodWinrates_WeeklyAndMonthly(t *testing.T) {
	signals := append(
		tradesOn(time.Date(2024, 1, 29, 0, 0, 0, 0, time.UTC), 1, 1),
		tradesOn(time.Date(2024, 2, 2, 0, 0, 0, 0, time.UTC), 0, 1)...,
	)
	calc := NewWinrateCalculator(config.AnalyticsConfig{})

	weekly := calc.PeriodWinrates(signals, GranularityWeekly, false)
	require.Len(t, weekly, 1)
	assert.Equal(t, 50.0, weekly[0].WinRate)

	monthly := calc.PeriodWinrates(signals, GranularityMonthly, false)
	require.Len(t, monthly, 2)
	assert.Equal(t, "2024-01", monthly[0].Period)
	assert.Equal(t, 100.0, monthly[0].WinRate)
	assert.Equal(t, 0.0, monthly[1].WinRate)
}

func TestPeriodWinrates_MovingAverage(t *testing.T) {
	d1 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	var signals []models.Signal
	signals = append(signals, tradesOn(d1, 2, 5)...)
	signals = append(signals, tradesOn(d1.AddDate(0, 0, 1), 3, 4)...)
	signals = append(signals, tradesOn(d1.AddDate(0, 0, 2), 1, 2)...)

	calc := NewWinrateCalculator(config.AnalyticsConfig{MovingAveragePeriod: 2})
	periods := calc.PeriodWinrates(signals, GranularityDaily, true)
	require.Len(t, periods, 3)
	assert.Nil(t, periods[0].MovingAverage)
	require.NotNil(t, periods[1].MovingAverage)
	assert.Equal(t, 57.5, *periods[1].MovingAverage)
	assert.Equal(t, 62.5, *periods[2].MovingAverage)
}

func TestPeriodWinrates_Empty(t *testing.T) {
	calc := NewWinrateCalculator(config.AnalyticsConfig{})
	periods := calc.PeriodWinrates([]models.Signal{signalWith("o", "X", models.OutcomeOpen)}, GranularityDaily, true)
	assert.NotNil(t, periods)
	assert.Empty(t, periods)
}

func TestRollingWinrate(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	outcomes := []models.Outcome{models.OutcomeTP1, models.OutcomeSL, models.OutcomeTP2, models.OutcomeTP3, models.OutcomeOpen}
	var signals []models.Signal
	for i, o := range outcomes {
		s := models.Signal{SignalID: fmt.Sprintf("S%d", i), CreatedAt: base.Add(time.Duration(len(outcomes)-i) * time.Hour), FinalOutcome: o}
		signals = append(signals, s)
	}
	// Reverse chronological input: S3 is oldest among the closed trades.
	calc := NewWinrateCalculator(config.AnalyticsConfig{})
	points := calc.RollingWinrate(signals, 2)
	require.Len(t, points, 4)

	ids := make([]string, len(points))
	rates := make([]float64, len(points))
	for i, p := range points {
		ids[i] = p.SignalID
		rates[i] = p.RollingWinRate
	}
	assert.Equal(t, []string{"S3", "S2", "S1", "S0"}, ids)
	assert.Equal(t, []float64{100, 100, 50, 50}, rates)
	assert.True(t, points[0].IsWinner)
	assert.False(t, points[2].IsWinner)

	assert.Equal(t, DefaultRollingWindow, calc.RollingWindow())
	assert.Empty(t, calc.RollingWinrate(nil, 0))
}

func TestTrend_Classification(t *testing.T) {
	calc := NewWinrateCalculator(config.AnalyticsConfig{TrendRecentWindow: 2})
	series := func(rates ...float64) []models.PeriodWinrate {
		out := make([]models.PeriodWinrate, len(rates))
		for i, r := range rates {
			out[i] = models.PeriodWinrate{WinRate: r}
		}
		return out
	}

	tests := []struct {
		name  string
		rates []float64
		want  string
	}{
		{"none", nil, models.TrendInsufficientData},
		{"single", []float64{50}, models.TrendInsufficientData},
		{"strong up", []float64{40, 45}, models.TrendStronglyImproving},
		{"up", []float64{50, 51}, models.TrendImproving},
		{"flat", []float64{50, 50.5}, models.TrendStable},
		{"down", []float64{50, 49}, models.TrendDeclining},
		{"strong down", []float64{60, 50, 40}, models.TrendStronglyDeclining},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, calc.Trend(series(tt.rates...)).Trend)
		})
	}

	res := calc.Trend(series(10, 20, 60, 80))
	assert.Equal(t, 70.0, res.RecentAvgWinRate)
	assert.Equal(t, 42.5, res.OverallAvgWinRate)
	assert.Equal(t, 80.0, res.CurrentWinRate)
}

func TestCalculateWinrateSummary(t *testing.T) {
	signals := []models.Signal{
		signalWith("1", "A", models.OutcomeTP1),
		signalWith("2", "A", models.OutcomeTP4),
		signalWith("3", "A", models.OutcomeSL),
		signalWith("4", "A", models.OutcomeOpen),
	}

	s := CalculateWinrateSummary(signals, TimeRange30D)
	assert.Equal(t, "30d", s.TimeRange)
	assert.Equal(t, "Last 30 Days", s.TimeRangeLabel)
	assert.Equal(t, 3, s.TotalTrades)
	assert.Equal(t, 2, s.WinningTrades)
	assert.Equal(t, 1, s.LosingTrades)
	assert.Equal(t, 66.67, s.OverallWinRate)
	assert.Equal(t, 1, s.TP4Count)

	assert.Zero(t, CalculateWinrateSummary(nil, TimeRangeAll).OverallWinRate)
}
