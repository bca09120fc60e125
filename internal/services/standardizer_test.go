package services

import (
	"testing"
	"time"

	"github.com/luxquanttrade/luxquant-analyze-app/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestStandardizer() *Standardizer {
	s := NewStandardizer(0, nil)
	s.now = func() time.Time { return testNow }
	return s
}

func TestNormalizeColumnName(t *testing.T) {
	tests := map[string]string{
		"Signal-ID":     "signal_id",
		"  Entry Price": "entry_price",
		"TAKE PROFIT-1": "take_profit_1",
		"pair":          "pair",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeColumnName(in), in)
	}
}

func TestResolveColumns_CanonicalWinsOverSynonym(t *testing.T) {
	cols := ResolveColumns([]string{"symbol", "Pair", "TP1", "target1", "SL"})

	assert.Equal(t, 1, cols[ColPair])
	assert.Equal(t, 3, cols[ColTarget1])
	assert.Equal(t, 4, cols[ColStop1])
	assert.Equal(t, -1, cols[ColStop2])
	assert.Equal(t, -1, cols[ColSignalID])
}

func TestStandardize_SynonymsAndCoercion(t *testing.T) {
	table := &models.RawTable{
		Name:    "signals",
		Columns: []string{"Signal-ID", "Symbol", "Entry Price", "TP1", "take_profit_2", "SL", "sl2", "timestamp", "Result"},
		Rows: [][]any{
			{"S1", "btc usdt", "100", int64(110), 120.5, 90.0, nil, "2024-01-02 03:04:05", "TP_2"},
		},
	}

	res := newTestStandardizer().Standardize(table)
	require.Len(t, res.Signals, 1)
	assert.Empty(t, res.Warnings)

	s := res.Signals[0]
	assert.Equal(t, "S1", s.SignalID)
	assert.Equal(t, "BTCUSDT", s.Pair)
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), s.CreatedAt)
	assert.Equal(t, 100.0, *s.Entry)
	assert.Equal(t, 110.0, *s.Target1)
	assert.Equal(t, 120.5, *s.Target2)
	assert.Nil(t, s.Target3)
	assert.Equal(t, 90.0, *s.Stop1)
	assert.Nil(t, s.Stop2)
	assert.Equal(t, models.OutcomeTP2, s.FinalOutcome)
	assert.Equal(t, 2, s.TPLevel)
	assert.True(t, s.IsWinner)
	assert.False(t, s.IsOpen)
}

func TestStandardize_InvalidPriceIsNulledAndRowKept(t *testing.T) {
	table := &models.RawTable{
		Columns: []string{"signal_id", "pair", "entry", "target1"},
		Rows: [][]any{
			{"S1", "ETHUSDT", "abc", "110"},
			{"S2", "ETHUSDT", "100", "n/a"},
		},
	}

	res := newTestStandardizer().Standardize(table)
	require.Len(t, res.Signals, 2)
	assert.Nil(t, res.Signals[0].Entry)
	assert.Equal(t, 110.0, *res.Signals[0].Target1)
	assert.Nil(t, res.Signals[1].Target1, "null markers are not invalid")
	assert.Equal(t, []string{"entry: 1 invalid value(s) replaced with defaults"}, res.Warnings)
}

func TestStandardize_Backfill(t *testing.T) {
	table := &models.RawTable{
		Columns: []string{"entry"},
		Rows:    [][]any{{100.0}, {200.0}},
	}

	res := newTestStandardizer().Standardize(table)
	require.Len(t, res.Signals, 2)

	assert.Equal(t, "SIG_000000", res.Signals[0].SignalID)
	assert.Equal(t, "SIG_000001", res.Signals[1].SignalID)
	for _, s := range res.Signals {
		assert.Equal(t, UnknownPair, s.Pair)
		assert.Equal(t, testNow, s.CreatedAt)
		assert.True(t, s.IsOpen)
		assert.Equal(t, 0, s.TPLevel)
	}
	assert.Contains(t, res.MissingColumns, ColSignalID)
	assert.Contains(t, res.MissingColumns, ColPair)
	assert.Contains(t, res.MissingColumns, ColCreatedAt)
	assert.Equal(t, 2, res.Backfilled[ColSignalID])
	assert.Equal(t, 2, res.Backfilled[ColPair])
	assert.Equal(t, 2, res.Backfilled[ColCreatedAt])
}

func TestStandardize_NullIdentifierUsesRowIndex(t *testing.T) {
	table := &models.RawTable{
		Columns: []string{"signal_id", "pair"},
		Rows:    [][]any{{"A", "x"}, {nil, "y"}, {float64(42), "z"}},
	}

	res := newTestStandardizer().Standardize(table)
	require.Len(t, res.Signals, 3)
	assert.Equal(t, "SIG_000001", res.Signals[1].SignalID)
	assert.Equal(t, "42", res.Signals[2].SignalID)
}

func TestStandardize_GeneratedIdentifierAvoidsSourceIDs(t *testing.T) {
	table := &models.RawTable{
		Columns: []string{"signal_id", "pair"},
		Rows: [][]any{
			{nil, "BTC"},
			{"SIG_000000", "ETH"},
			{"SIG_000002_1", "SOL"},
			{nil, "XRP"},
		},
	}

	res := newTestStandardizer().Standardize(table)
	require.Len(t, res.Signals, 4)
	assert.Zero(t, res.DroppedDuplicates)

	assert.Equal(t, "SIG_000000_1", res.Signals[0].SignalID)
	assert.Equal(t, "BTC", res.Signals[0].Pair)
	assert.Equal(t, "SIG_000000", res.Signals[1].SignalID)
	assert.Equal(t, "ETH", res.Signals[1].Pair)
	assert.Equal(t, "SIG_000003", res.Signals[3].SignalID)
	assert.Equal(t, 2, res.Backfilled[ColSignalID])
}

func TestStandardize_PriceRange(t *testing.T) {
	table := &models.RawTable{
		Columns: []string{"signal_id", "entry", "target1", "target2", "stop1"},
		Rows:    [][]any{{"S1", -5.0, 0.0, 2_000_000.0, 1_000_000.0}},
	}

	s := newTestStandardizer().Standardize(table).Signals[0]
	assert.Nil(t, s.Entry)
	assert.Nil(t, s.Target1)
	assert.Nil(t, s.Target2)
	require.NotNil(t, s.Stop1)
	assert.Equal(t, 1_000_000.0, *s.Stop1)
}

func TestStandardize_CustomCeiling(t *testing.T) {
	st := NewStandardizer(500, nil)
	res := st.Standardize(&models.RawTable{Columns: []string{"entry"}, Rows: [][]any{{600.0}}})
	assert.Nil(t, res.Signals[0].Entry)
}

func TestStandardize_SourceOutcomes(t *testing.T) {
	tests := []struct {
		raw  any
		want models.Outcome
	}{
		{"tp1", models.OutcomeTP1},
		{" TP_3 ", models.OutcomeTP3},
		{"Target_4", models.OutcomeTP4},
		{"stop_loss", models.OutcomeSL},
		{"StopLoss", models.OutcomeSL},
		{"sl", models.OutcomeSL},
		{"open", models.OutcomeOpen},
		{"pending review", models.OutcomeOpen},
		{nil, models.OutcomeOpen},
		{int64(1), models.OutcomeOpen},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeSourceOutcome(tt.raw), "%v", tt.raw)
	}
}

func TestStandardize_DropsEmptyRowsAndDuplicates(t *testing.T) {
	table := &models.RawTable{
		Columns: []string{"signal_id", "pair", "entry"},
		Rows: [][]any{
			{"S1", "btcusdt", 100.0},
			{nil, "", "  "},
			{"S1", "ethusdt", 200.0},
			{"S2", "solusdt", nil},
		},
	}

	res := newTestStandardizer().Standardize(table)
	require.Len(t, res.Signals, 2)
	assert.Equal(t, "BTCUSDT", res.Signals[0].Pair, "first occurrence wins")
	assert.Equal(t, "S2", res.Signals[1].SignalID)
	assert.Equal(t, 1, res.DroppedEmpty)
	assert.Equal(t, 1, res.DroppedDuplicates)
}

func TestStandardize_Timestamps(t *testing.T) {
	want := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		raw  any
	}{
		{"time value", time.Date(2024, 1, 1, 7, 0, 0, 0, time.FixedZone("WIB", 7*3600))},
		{"rfc3339", "2024-01-01T00:00:00Z"},
		{"offset", "2024-01-01T02:00:00+02:00"},
		{"date only", "2024-01-01"},
		{"epoch seconds", int64(1704067200)},
		{"epoch millis", float64(1704067200000)},
		{"epoch string", "1704067200"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseTime(tt.raw)
			require.True(t, ok)
			assert.True(t, want.Equal(got), "got %s", got)
			assert.Equal(t, time.UTC, got.Location())
		})
	}

	res := newTestStandardizer().Standardize(&models.RawTable{
		Columns: []string{"signal_id", "created_at"},
		Rows:    [][]any{{"S1", "not a date"}},
	})
	assert.Equal(t, testNow, res.Signals[0].CreatedAt)
	assert.Equal(t, []string{"created_at: 1 invalid value(s) replaced with defaults"}, res.Warnings)
}

func TestStandardize_EmptyInput(t *testing.T) {
	st := newTestStandardizer()

	res := st.Standardize(nil)
	assert.NotNil(t, res.Signals)
	assert.Empty(t, res.Signals)

	res = st.Standardize(&models.RawTable{Columns: []string{"pair"}})
	assert.Empty(t, res.Signals)
}

func TestStandardize_RecoversFromPanic(t *testing.T) {
	st := NewStandardizer(0, nil)
	st.now = func() time.Time { panic("clock unavailable") }

	res := st.Standardize(&models.RawTable{Columns: []string{"pair"}, Rows: [][]any{{"btc"}}})
	assert.NotNil(t, res.Signals)
	assert.Empty(t, res.Signals)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "clock unavailable")
}
