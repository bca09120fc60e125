package services

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/luxquanttrade/luxquant-analyze-app/internal/models"
	"github.com/shopspring/decimal"
)

// Export formats.
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
)

// DefaultExportPrecision is the number of decimals written for prices and ratios.
const DefaultExportPrecision = 8

// ExportTimeLayout is the datetime format of CSV exports.
const ExportTimeLayout = "2006-01-02 15:04:05"

// ErrUnsupportedFormat is returned for export formats other than csv and json.
var ErrUnsupportedFormat = errors.New("unsupported export format")

// ExportColumns is the column order of CSV exports.
var ExportColumns = []string{
	ColSignalID, ColPair, ColCreatedAt,
	ColEntry, ColTarget1, ColTarget2, ColTarget3, ColTarget4, ColStop1, ColStop2,
	ColFinalOutcome, ColTPLevel,
	"risk_distance", "rr_target1", "rr_target2", "rr_target3", "rr_target4", "rr_planned", "rr_realized",
	"is_open", "is_winner", "is_loser",
}

// ParseFormat validates an export format name.
func ParseFormat(name string) (string, error) {
	switch f := strings.ToLower(strings.TrimSpace(name)); f {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, name)
	}
}

// ExportFileName names an export taken at now.
func ExportFileName(format string, now time.Time) string {
	return fmt.Sprintf("luxquant_analysis_%s.%s", now.Format("20060102_150405"), format)
}

// Exporter serializes processed signals.
type Exporter struct {
	precision int32
}

// NewExporter creates an exporter writing floats with precision decimals.
// A negative precision selects DefaultExportPrecision.
func NewExporter(precision int) *Exporter {
	if precision < 0 {
		precision = DefaultExportPrecision
	}
	return &Exporter{precision: int32(precision)}
}

// Write encodes signals in format to w.
func (e *Exporter) Write(w io.Writer, format string, signals []models.Signal) error {
	switch format {
	case FormatCSV:
		return e.WriteCSV(w, signals)
	case FormatJSON:
		return e.WriteJSON(w, signals)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// WriteCSV writes a header and one row per signal. Nulls are empty strings.
func (e *Exporter) WriteCSV(w io.Writer, signals []models.Signal) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ExportColumns); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for i := range signals {
		if err := cw.Write(e.csvRecord(&signals[i])); err != nil {
			return fmt.Errorf("failed to write csv row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func (e *Exporter) csvRecord(s *models.Signal) []string {
	f := e.formatFloat
	return []string{
		s.SignalID,
		s.Pair,
		s.CreatedAt.UTC().Format(ExportTimeLayout),
		f(s.Entry), f(s.Target1), f(s.Target2), f(s.Target3), f(s.Target4), f(s.Stop1), f(s.Stop2),
		string(s.FinalOutcome),
		strconv.Itoa(s.TPLevel),
		f(s.RiskDistance), f(s.RRTarget1), f(s.RRTarget2), f(s.RRTarget3), f(s.RRTarget4), f(s.RRPlanned), f(s.RRRealized),
		strconv.FormatBool(s.IsOpen),
		strconv.FormatBool(s.IsWinner),
		strconv.FormatBool(s.IsLoser),
	}
}

func (e *Exporter) formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return decimal.NewFromFloat(*v).Round(e.precision).String()
}

// WriteJSON writes an indented array of records with RFC3339 UTC datetimes.
func (e *Exporter) WriteJSON(w io.Writer, signals []models.Signal) error {
	records := make([]models.Signal, len(signals))
	for i, s := range signals {
		s.CreatedAt = s.CreatedAt.UTC()
		records[i] = s
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("failed to encode json export: %w", err)
	}
	return nil
}

// ReadCSV parses an export (or any CSV with a header) into a raw table so
// it can be standardized again. Empty cells become nil.
func ReadCSV(r io.Reader, name string) (*models.RawTable, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return &models.RawTable{Name: name, Columns: []string{}, Rows: [][]any{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	table := &models.RawTable{Name: name, Columns: header, Rows: [][]any{}}
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv row %d: %w", len(table.Rows)+1, err)
		}
		row := make([]any, len(header))
		for i := range row {
			if i < len(record) && record[i] != "" {
				row[i] = record[i]
			}
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

// ReadCSVFile opens path and parses it with ReadCSV. The table is named
// after the file.
func ReadCSVFile(path string) (*models.RawTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	return ReadCSV(f, strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
}

// SignalRecords is the record view: signals without price levels, newest
// first.
func SignalRecords(signals []models.Signal) []models.SignalRecord {
	records := make([]models.SignalRecord, len(signals))
	for i, s := range signals {
		records[i] = models.SignalRecord{
			SignalID:     s.SignalID,
			Pair:         s.Pair,
			CreatedAt:    s.CreatedAt,
			Entry:        s.Entry,
			FinalOutcome: s.FinalOutcome,
			TPLevel:      s.TPLevel,
			RRPlanned:    s.RRPlanned,
			RRRealized:   s.RRRealized,
			IsOpen:       s.IsOpen,
			IsWinner:     s.IsWinner,
		}
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	return records
}
