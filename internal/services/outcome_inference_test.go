package services

import (
	"testing"
	"time"

	"github.com/luxquanttrade/luxquant-analyze-app/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeUpdateType(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"TP1 hit", "tp1"},
		{"target 2 reached", "tp2"},
		{"Target3", "tp3"},
		{"TP4 HIT - all targets done", "tp4"},
		{"tp1 and tp3 filled", "tp3"},
		{"SL hit", "sl"},
		{"Stop loss triggered", "sl"},
		{"stoploss", "sl"},
		{"hit 3", "tp3"},
		{"hit 1", "tp1"},
		{"reached 2", "tp2"},
		{"reached 4", "tp4"},
		{"  Closed Manually ", "closed manually"},
		{"", ""},
		{"   ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeUpdateType(tt.in))
		})
	}
}

func TestClassifyUpdate(t *testing.T) {
	o, ok := ClassifyUpdate("TP2 hit")
	assert.True(t, ok)
	assert.Equal(t, models.OutcomeTP2, o)

	o, ok = ClassifyUpdate("moved to breakeven")
	assert.False(t, ok)
	assert.Equal(t, models.OutcomeOpen, o)
}

func TestInferOutcomes_KeepsBestRank(t *testing.T) {
	events := []models.UpdateEvent{
		{SignalID: "S1", UpdateType: "TP1 hit"},
		{SignalID: "S1", UpdateType: "target 2 reached"},
		{SignalID: "S2", UpdateType: "tp3"},
		{SignalID: "S2", UpdateType: "closed at sl"},
		{SignalID: "S3", UpdateType: "SL hit"},
		{SignalID: "S4", UpdateType: "moved to breakeven"},
		{SignalID: "S4", UpdateType: ""},
	}

	inf := InferOutcomes(events)
	assert.Equal(t, 7, inf.Events)
	require.Len(t, inf.Outcomes, 3)

	assert.Equal(t, models.OutcomeTP2, inf.Outcomes["S1"].FinalOutcome)
	assert.Equal(t, 2, inf.Outcomes["S1"].TPLevel)
	assert.Equal(t, models.OutcomeTP3, inf.Outcomes["S2"].FinalOutcome, "a later stop does not downgrade")
	assert.Equal(t, models.OutcomeSL, inf.Outcomes["S3"].FinalOutcome)
	assert.Equal(t, 0, inf.Outcomes["S3"].TPLevel)
	assert.Equal(t, []string{"S4"}, inf.Unresolved)
	_, ok := inf.Outcomes["S4"]
	assert.False(t, ok)
}

func TestInferOutcomes_OrderIndependentAndIdempotent(t *testing.T) {
	events := []models.UpdateEvent{
		{SignalID: "A", UpdateType: "sl"},
		{SignalID: "A", UpdateType: "tp4"},
		{SignalID: "B", UpdateType: "tp1"},
		{SignalID: "A", UpdateType: "tp2"},
	}
	reversed := make([]models.UpdateEvent, len(events))
	for i, ev := range events {
		reversed[len(events)-1-i] = ev
	}

	first := InferOutcomes(events)
	assert.Equal(t, first, InferOutcomes(events))
	assert.Equal(t, first.Outcomes, InferOutcomes(reversed).Outcomes)
	assert.Equal(t, models.OutcomeTP4, first.Outcomes["A"].FinalOutcome)
	assert.Equal(t, 3, first.Outcomes["A"].MatchedUpdates)
}

func TestInferOutcomes_Empty(t *testing.T) {
	inf := InferOutcomes(nil)
	assert.Empty(t, inf.Outcomes)
	assert.Empty(t, inf.Unresolved)
	assert.Zero(t, inf.Events)
}

func TestApplyOutcomes_OverridesSourceOutcome(t *testing.T) {
	signals := []models.Signal{{SignalID: "S1"}, {SignalID: "S2"}}
	signals[0].SetOutcome(models.OutcomeSL)
	signals[1].SetOutcome(models.OutcomeTP1)

	inf := InferOutcomes([]models.UpdateEvent{{SignalID: "S1", UpdateType: "tp3 hit"}})
	assert.Equal(t, 1, ApplyOutcomes(signals, inf))

	assert.Equal(t, models.OutcomeTP3, signals[0].FinalOutcome)
	assert.True(t, signals[0].IsWinner)
	assert.False(t, signals[0].IsLoser)
	assert.Equal(t, models.OutcomeTP1, signals[1].FinalOutcome, "source outcome kept")
}

func TestParseUpdateEvents(t *testing.T) {
	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	table := &models.RawTable{
		Name:    "signal_updates",
		Columns: []string{"Signal ID", "Status", "Timestamp"},
		Rows: [][]any{
			{"S1", "TP1 hit", ts},
			{nil, "tp2", ts},
			{int64(7), nil, "garbage"},
		},
	}

	events, warnings := ParseUpdateEvents(table)
	require.Len(t, events, 2)
	assert.Equal(t, "S1", events[0].SignalID)
	assert.Equal(t, "TP1 hit", events[0].UpdateType)
	require.NotNil(t, events[0].UpdatedAt)
	assert.Equal(t, ts, *events[0].UpdatedAt)
	assert.Equal(t, "7", events[1].SignalID)
	assert.Empty(t, events[1].UpdateType)
	assert.Nil(t, events[1].UpdatedAt)
	assert.Equal(t, []string{"1 update(s) without signal_id skipped"}, warnings)
}

func TestParseUpdateEvents_MissingColumns(t *testing.T) {
	events, warnings := ParseUpdateEvents(&models.RawTable{Name: "updates", Columns: []string{"id", "status"}, Rows: [][]any{{"1", "tp1"}}})
	assert.Empty(t, events)
	assert.Equal(t, []string{`update table "updates" has no signal_id column`}, warnings)

	events, warnings = ParseUpdateEvents(&models.RawTable{Name: "updates", Columns: []string{"signal_id", "note"}, Rows: [][]any{{"1", "tp1"}}})
	assert.Empty(t, events)
	assert.Equal(t, []string{`update table "updates" has no update type column`}, warnings)

	events, warnings = ParseUpdateEvents(nil)
	assert.Empty(t, events)
	assert.Empty(t, warnings)
}

func TestOutcomeStatistics(t *testing.T) {
	inf := InferOutcomes([]models.UpdateEvent{
		{SignalID: "A", UpdateType: "tp1"},
		{SignalID: "B", UpdateType: "tp4"},
		{SignalID: "C", UpdateType: "tp1"},
		{SignalID: "D", UpdateType: "sl"},
	})

	stats := OutcomeStatistics(inf)
	assert.Equal(t, 4, stats.TotalOutcomes)
	assert.Equal(t, 3, stats.TPHits)
	assert.Equal(t, 1, stats.SLHits)
	assert.Equal(t, 75.0, stats.WinRate)
	assert.Equal(t, map[models.Outcome]int{models.OutcomeTP1: 2, models.OutcomeTP4: 1, models.OutcomeSL: 1}, stats.Distribution)

	assert.Zero(t, OutcomeStatistics(models.OutcomeInference{}).WinRate)
}

func TestValidateOutcomes(t *testing.T) {
	inf := InferOutcomes([]models.UpdateEvent{
		{SignalID: "A", UpdateType: "tp1"},
		{SignalID: "B", UpdateType: "still running"},
	})

	v := ValidateOutcomes(inf, 4)
	assert.True(t, v.IsValid)
	assert.Equal(t, 25.0, v.Coverage)
	assert.Equal(t, 1, v.UnresolvedCount)
	assert.Equal(t, []string{
		"Low outcome coverage: 25.0%",
		"1 signals have only unrecognized updates",
	}, v.Warnings)

	v = ValidateOutcomes(InferOutcomes(nil), 4)
	assert.False(t, v.IsValid)
	assert.Equal(t, []string{"No outcomes inferred"}, v.Warnings)
}
