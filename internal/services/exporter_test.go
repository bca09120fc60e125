package services

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/luxquanttrade/luxquant-analyze-app/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exportFixture() []models.Signal {
	winner := models.Signal{
		SignalID:  "S1",
		Pair:      "BTCUSDT",
		CreatedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.FixedZone("WIB", 7*3600)),
		Entry:     fp(100),
		Target1:   fp(110),
		Target2:   fp(120.5),
		Stop1:     fp(90),
	}
	winner.SetOutcome(models.OutcomeTP2)
	open := models.Signal{
		SignalID:  "S2",
		Pair:      "ETHUSDT",
		CreatedAt: time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC),
		Entry:     fp(0.123456789),
		Stop2:     fp(0.1),
	}
	open.SetOutcome(models.OutcomeOpen)

	signals := []models.Signal{winner, open}
	ApplyRiskReward(signals)
	return signals
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)

	f, err = ParseFormat(" JSON ")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)

	_, err = ParseFormat("xlsx")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestExportFileName(t *testing.T) {
	now := time.Date(2024, 6, 15, 9, 5, 3, 0, time.UTC)
	assert.Equal(t, "luxquant_analysis_20240615_090503.csv", ExportFileName(FormatCSV, now))
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewExporter(-1).WriteCSV(&buf, exportFixture()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, strings.Join(ExportColumns, ","), lines[0])

	first := strings.Split(lines[1], ",")
	require.Len(t, first, len(ExportColumns))
	assert.Equal(t, "S1", first[0])
	assert.Equal(t, "2024-01-01 20:04:05", first[2], "datetimes are written in UTC")
	assert.Equal(t, "120.5", first[5])
	assert.Equal(t, "", first[6], "nulls are empty")
	assert.Equal(t, "tp2", first[10])
	assert.Equal(t, "2", first[11])
	assert.Equal(t, "2.05", first[18])
	assert.Equal(t, "true", first[20])

	second := strings.Split(lines[2], ",")
	assert.Equal(t, "0.12345679", second[3])
	assert.Equal(t, "", second[10])
}

func TestWriteCSV_Precision(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewExporter(2).Write(&buf, FormatCSV, exportFixture()[1:]))
	assert.Contains(t, buf.String(), ",0.12,")
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewExporter(-1).Write(&buf, FormatJSON, exportFixture()))

	var records []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &records))
	require.Len(t, records, 2)
	assert.Equal(t, "2024-01-01T20:04:05Z", records[0]["created_at"])
	assert.Equal(t, "tp2", records[0]["final_outcome"])
	assert.Nil(t, records[1]["final_outcome"])
	assert.Nil(t, records[1]["target1"])
	assert.Equal(t, true, records[1]["is_open"])
}

func TestWrite_UnsupportedFormat(t *testing.T) {
	err := NewExporter(-1).Write(&bytes.Buffer{}, "parquet", nil)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestCSVRoundTrip(t *testing.T) {
	original := exportFixture()
	var buf bytes.Buffer
	require.NoError(t, NewExporter(-1).WriteCSV(&buf, original))

	table, err := ReadCSV(strings.NewReader("\ufeff"+buf.String()), "export")
	require.NoError(t, err)
	assert.Equal(t, ColSignalID, table.Columns[0])
	require.Len(t, table.Rows, len(original))

	res := NewStandardizer(0, nil).Standardize(table)
	require.Len(t, res.Signals, len(original))
	assert.Empty(t, res.Warnings)

	for i, got := range res.Signals {
		want := original[i]
		assert.Equal(t, want.SignalID, got.SignalID)
		assert.Equal(t, want.FinalOutcome, got.FinalOutcome)
		assert.True(t, want.CreatedAt.Equal(got.CreatedAt))
		for j, p := range [][2]*float64{
			{want.Entry, got.Entry}, {want.Target1, got.Target1}, {want.Target2, got.Target2},
			{want.Stop1, got.Stop1}, {want.Stop2, got.Stop2},
		} {
			if p[0] == nil {
				assert.Nil(t, p[1], "row %d price %d", i, j)
				continue
			}
			require.NotNil(t, p[1], "row %d price %d", i, j)
			assert.InDelta(t, *p[0], *p[1], 1e-8)
		}
	}
}

func TestReadCSV_EmptyAndFile(t *testing.T) {
	table, err := ReadCSV(strings.NewReader(""), "empty")
	require.NoError(t, err)
	assert.Empty(t, table.Rows)

	path := filepath.Join(t.TempDir(), "signals.csv")
	require.NoError(t, os.WriteFile(path, []byte("signal_id,pair\nS1,\nS2,ETHUSDT\n"), 0o600))

	table, err = ReadCSVFile(path)
	require.NoError(t, err)
	assert.Equal(t, "signals", table.Name)
	require.Len(t, table.Rows, 2)
	assert.Nil(t, table.Rows[0][1])
	assert.Equal(t, "ETHUSDT", table.Rows[1][1])

	_, err = ReadCSVFile(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}

func TestSignalRecords_NewestFirst(t *testing.T) {
	records := SignalRecords(exportFixture())
	require.Len(t, records, 2)
	assert.Equal(t, "S2", records[0].SignalID)
	assert.Equal(t, "S1", records[1].SignalID)
}
