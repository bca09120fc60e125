package services

import (
	"testing"
	"time"

	"github.com/luxquanttrade/luxquant-analyze-app/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFilter_Defaults(t *testing.T) {
	f, err := ParseFilter(FilterParams{})
	require.NoError(t, err)
	assert.Equal(t, DefaultFilter(), f)
	assert.Equal(t, TimeRangeAll, f.TimeRange)
	assert.Equal(t, GranularityDaily, f.Granularity)
	assert.False(t, f.ShowMA)
}

func TestParseFilter_AllFields(t *testing.T) {
	f, err := ParseFilter(FilterParams{
		TimeRange:   "Custom",
		DateFrom:    "2024-01-01",
		DateTo:      "2024-01-31",
		Pairs:       " btcusdt, ,eth usdt ",
		Granularity: "w",
		ShowMA:      "true",
		Outcomes:    "tp1, SL,open",
		RRMin:       "1",
		RRMax:       "3.5",
	})
	require.NoError(t, err)

	assert.Equal(t, TimeRangeCustom, f.TimeRange)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), *f.DateFrom)
	assert.Equal(t, time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), *f.DateTo)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, f.Pairs)
	assert.Equal(t, GranularityWeekly, f.Granularity)
	assert.True(t, f.ShowMA)
	assert.Equal(t, []models.Outcome{models.OutcomeTP1, models.OutcomeSL, models.OutcomeOpen}, f.Outcomes)
	assert.Equal(t, 1.0, *f.RRMin)
	assert.Equal(t, 3.5, *f.RRMax)
}

func TestParseFilter_DatesIgnoredOutsideCustom(t *testing.T) {
	f, err := ParseFilter(FilterParams{TimeRange: "7d", DateFrom: "not-a-date"})
	require.NoError(t, err)
	assert.Nil(t, f.DateFrom)
}

func TestParseFilter_Invalid(t *testing.T) {
	tests := []struct {
		name string
		p    FilterParams
	}{
		{"time range", FilterParams{TimeRange: "90d"}},
		{"date format", FilterParams{TimeRange: "custom", DateFrom: "01/02/2024"}},
		{"date order", FilterParams{TimeRange: "custom", DateFrom: "2024-02-01", DateTo: "2024-01-01"}},
		{"granularity", FilterParams{Granularity: "hourly"}},
		{"show_ma", FilterParams{ShowMA: "maybe"}},
		{"outcome", FilterParams{Outcomes: "tp9"}},
		{"negative rr", FilterParams{RRMin: "-1"}},
		{"rr text", FilterParams{RRMax: "lots"}},
		{"rr order", FilterParams{RRMin: "3", RRMax: "1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseFilter(tt.p)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidFilter)
		})
	}
}

func TestFilter_RelativeTimeRange(t *testing.T) {
	old := signalWith("old", "BTCUSDT", models.OutcomeTP1)
	old.CreatedAt = testNow.AddDate(0, 0, -10)
	recent := signalWith("recent", "BTCUSDT", models.OutcomeSL)
	recent.CreatedAt = testNow.AddDate(0, 0, -2)
	signals := []models.Signal{old, recent}

	f := DefaultFilter()
	f.TimeRange = TimeRange7D
	got := f.Apply(signals, testNow)
	require.Len(t, got, 1)
	assert.Equal(t, "recent", got[0].SignalID)

	f.TimeRange = TimeRange30D
	assert.Len(t, f.Apply(signals, testNow), 2)
}

func TestFilter_Window(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		tr    TimeRange
		start time.Time
	}{
		{TimeRangeYTD, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		{TimeRangeMTD, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)},
		{TimeRange30D, time.Date(2024, 5, 16, 12, 0, 0, 0, time.UTC)},
		{TimeRange7D, time.Date(2024, 6, 8, 12, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(string(tt.tr), func(t *testing.T) {
			w := Filter{TimeRange: tt.tr}.Window(now)
			require.NotNil(t, w.Start)
			assert.Equal(t, tt.start, *w.Start)
			assert.Nil(t, w.End)
		})
	}

	w := DefaultFilter().Window(now)
	assert.Nil(t, w.Start)
	assert.Nil(t, w.End)
}

func TestFilter_CustomRangeIncludesWholeLastDay(t *testing.T) {
	f, err := ParseFilter(FilterParams{TimeRange: "custom", DateFrom: "2024-01-10", DateTo: "2024-01-20"})
	require.NoError(t, err)

	at := func(id string, ts time.Time) models.Signal {
		s := signalWith(id, "BTCUSDT", models.OutcomeTP1)
		s.CreatedAt = ts
		return s
	}
	signals := []models.Signal{
		at("before", time.Date(2024, 1, 9, 23, 59, 59, 0, time.UTC)),
		at("first", time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)),
		at("last", time.Date(2024, 1, 20, 23, 59, 59, 0, time.UTC)),
		at("after", time.Date(2024, 1, 21, 0, 0, 0, 0, time.UTC)),
	}

	got := f.Apply(signals, testNow)
	require.Len(t, got, 2)
	assert.Equal(t, "first", got[0].SignalID)
	assert.Equal(t, "last", got[1].SignalID)
}

func TestFilter_PairsOutcomesAndRR(t *testing.T) {
	mk := func(id, pair string, o models.Outcome, rr *float64) models.Signal {
		s := signalWith(id, pair, o)
		s.RRPlanned = rr
		return s
	}
	signals := []models.Signal{
		mk("1", "BTCUSDT", models.OutcomeTP1, fp(1.5)),
		mk("2", "ETHUSDT", models.OutcomeSL, fp(0.5)),
		mk("3", "BTCUSDT", models.OutcomeOpen, nil),
		mk("4", "SOLUSDT", models.OutcomeTP2, fp(4)),
	}
	ids := func(in []models.Signal) []string {
		out := make([]string, len(in))
		for i, s := range in {
			out[i] = s.SignalID
		}
		return out
	}

	f := DefaultFilter()
	f.Pairs = []string{"BTCUSDT", "SOLUSDT"}
	assert.Equal(t, []string{"1", "3", "4"}, ids(f.Apply(signals, testNow)))

	f = DefaultFilter()
	f.Outcomes = []models.Outcome{models.OutcomeOpen, models.OutcomeSL}
	assert.Equal(t, []string{"2", "3"}, ids(f.Apply(signals, testNow)))

	f = DefaultFilter()
	f.RRMin, f.RRMax = fp(0), fp(2)
	assert.Equal(t, []string{"1", "2", "3"}, ids(f.Apply(signals, testNow)), "nil RR passes a zero minimum")

	f.RRMin = fp(1)
	assert.Equal(t, []string{"1"}, ids(f.Apply(signals, testNow)))
}

func TestTimeRangeLabel(t *testing.T) {
	assert.Equal(t, "Year to Date", TimeRangeYTD.Label())
	assert.Equal(t, "Unknown", TimeRange("90d").Label())
}
