package services

import (
	"testing"

	"github.com/luxquanttrade/luxquant-analyze-app/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDataQualityReport_Empty(t *testing.T) {
	report := DataQualityReport(StandardizeResult{Warnings: []string{"standardization failed: boom"}}, nil, testNow)
	assert.Equal(t, models.QualityEmpty, report.Status)
	assert.Equal(t, []string{"No data available"}, report.Issues)
	assert.Equal(t, []string{"standardization failed: boom"}, report.Warnings)
	assert.Nil(t, report.ColumnInfo)
}

func TestDataQualityReport_Good(t *testing.T) {
	signals := []models.Signal{
		signalWith("1", "BTCUSDT", models.OutcomeTP1),
		signalWith("2", "ETHUSDT", models.OutcomeSL),
	}
	signals[0].RRPlanned = fp(2)
	signals[1].RRPlanned = fp(1)

	report := DataQualityReport(StandardizeResult{}, signals, testNow)
	assert.Equal(t, models.QualityGood, report.Status)
	assert.Empty(t, report.Warnings)
	assert.Empty(t, report.Issues)
	assert.Equal(t, 2, report.TotalRows)

	require.Contains(t, report.ColumnInfo, ColPair)
	assert.Equal(t, 2, report.ColumnInfo[ColPair].UniqueValues)
	assert.Equal(t, 0, report.ColumnInfo[ColPair].NullCount)
	assert.Equal(t, 100.0, report.ColumnInfo[ColEntry].NullPercentage)
	assert.Equal(t, 1, report.ColumnInfo[ColCreatedAt].UniqueValues)
	assert.Len(t, report.ColumnInfo, 12)
}

func TestDataQualityReport_Warnings(t *testing.T) {
	table := &models.RawTable{
		Columns: []string{"signal_id", "created_at", "entry"},
		Rows: [][]any{
			{"S1", "2030-01-01", "abc"},
			{nil, "2024-01-01", 100.0},
			{nil, "2024-01-02", 100.0},
		},
	}
	std := newTestStandardizer().Standardize(table)

	report := DataQualityReport(std, std.Signals, testNow)
	assert.Equal(t, models.QualityWarnings, report.Status)
	assert.Equal(t, []string{
		"High null percentage in signal_id: 66.7%",
		"Missing source column pair; values were backfilled",
		"High number of unknown pairs: 3",
		"1 signals have future dates",
		"No closed trades found",
		"Planned RR unavailable for 100.0% of signals",
		"entry: 1 invalid value(s) replaced with defaults",
	}, report.Warnings)
	assert.Equal(t, 3, report.ColumnInfo[ColPair].NullCount)
}

func TestDataQualityReport_LowCompletion(t *testing.T) {
	signals := []models.Signal{signalWith("closed", "BTCUSDT", models.OutcomeTP1)}
	for i := 0; i < 10; i++ {
		s := signalWith(string(rune('a'+i)), "BTCUSDT", models.OutcomeOpen)
		s.RRPlanned = fp(1)
		signals = append(signals, s)
	}

	report := DataQualityReport(StandardizeResult{}, signals, testNow)
	assert.Equal(t, []string{"Low completion rate: 9.1%"}, report.Warnings)
}
