package services

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/luxquanttrade/luxquant-analyze-app/internal/logging"
	"github.com/luxquanttrade/luxquant-analyze-app/internal/models"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DefaultPriceCeiling is the highest price accepted before a value is
// treated as corrupt.
const DefaultPriceCeiling = 1_000_000.0

// UnknownPair replaces missing or blank pair names.
const UnknownPair = "UNKNOWN"

// Canonical signal columns, in export order.
const (
	ColSignalID     = "signal_id"
	ColPair         = "pair"
	ColCreatedAt    = "created_at"
	ColEntry        = "entry"
	ColTarget1      = "target1"
	ColTarget2      = "target2"
	ColTarget3      = "target3"
	ColTarget4      = "target4"
	ColStop1        = "stop1"
	ColStop2        = "stop2"
	ColFinalOutcome = "final_outcome"
	ColTPLevel      = "tp_level"
)

var priceColumns = []string{ColEntry, ColTarget1, ColTarget2, ColTarget3, ColTarget4, ColStop1, ColStop2}

// signalColumns lists the source columns the standardizer reads.
var signalColumns = append([]string{ColSignalID, ColPair, ColCreatedAt}, append(priceColumns, ColFinalOutcome)...)

// columnSynonyms maps a canonical column to the source names accepted for
// it, after name normalization. A canonical column present in the source
// always wins over its synonyms.
var columnSynonyms = map[string][]string{
	ColCreatedAt:    {"timestamp", "time", "date", "create_time"},
	ColPair:         {"symbol", "ticker", "coin", "trading_pair"},
	ColEntry:        {"entry_price", "buy_price", "sell_price"},
	ColTarget1:      {"tp1", "take_profit_1"},
	ColTarget2:      {"tp2", "take_profit_2"},
	ColTarget3:      {"tp3", "take_profit_3"},
	ColTarget4:      {"tp4", "take_profit_4"},
	ColStop1:        {"sl", "sl1", "stop_loss", "stoploss"},
	ColStop2:        {"sl2"},
	ColFinalOutcome: {"outcome", "result", "status"},
}

var sourceOutcomeAliases = map[string]models.Outcome{
	"tp_1":      models.OutcomeTP1,
	"tp_2":      models.OutcomeTP2,
	"tp_3":      models.OutcomeTP3,
	"tp_4":      models.OutcomeTP4,
	"target_1":  models.OutcomeTP1,
	"target_2":  models.OutcomeTP2,
	"target_3":  models.OutcomeTP3,
	"target_4":  models.OutcomeTP4,
	"stop_loss": models.OutcomeSL,
	"stoploss":  models.OutcomeSL,
}

var nullMarkers = map[string]bool{"": true, "nan": true, "none": true, "null": true, "nat": true, "n/a": true}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02 15:04:05",
	"2006/01/02",
	"02/01/2006 15:04:05",
	"02/01/2006",
}

// StandardizeResult is the typed output of one standardization pass.
type StandardizeResult struct {
	Signals []models.Signal `json:"signals"`
	// Warnings are data problems that were recovered by defaulting.
	Warnings []string `json:"warnings"`
	// MissingColumns are canonical columns absent from the source table.
	MissingColumns []string `json:"missing_columns"`
	// Backfilled counts defaulted identifiers, pairs and timestamps.
	Backfilled        map[string]int `json:"backfilled"`
	DroppedEmpty      int            `json:"dropped_empty"`
	DroppedDuplicates int            `json:"dropped_duplicates"`
}

// Standardizer turns a source table with unknown column names and types
// into canonical signals.
type Standardizer struct {
	priceCeiling float64
	logger       logging.Logger
	now          func() time.Time
}

// NewStandardizer creates a standardizer. A non-positive ceiling selects
// DefaultPriceCeiling.
func NewStandardizer(priceCeiling float64, logger logging.Logger) *Standardizer {
	if priceCeiling <= 0 {
		priceCeiling = DefaultPriceCeiling
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Standardizer{
		priceCeiling: priceCeiling,
		logger:       logger.WithComponent("standardizer"),
		now:          time.Now,
	}
}

// NormalizeColumnName lower-cases a column name, trims it and turns spaces
// and dashes into underscores.
func NormalizeColumnName(name string) string {
	n := cases.Lower(language.Und).String(strings.TrimSpace(name))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(n)
}

// ResolveColumns maps each canonical column to its index in columns, or -1.
func ResolveColumns(columns []string) map[string]int {
	normalized := make(map[string]int, len(columns))
	for i, c := range columns {
		n := NormalizeColumnName(c)
		if _, dup := normalized[n]; !dup {
			normalized[n] = i
		}
	}

	resolved := make(map[string]int, len(signalColumns))
	for _, canonical := range signalColumns {
		resolved[canonical] = -1
		if idx, ok := normalized[canonical]; ok {
			resolved[canonical] = idx
			continue
		}
		for _, synonym := range columnSynonyms[canonical] {
			if idx, ok := normalized[synonym]; ok {
				resolved[canonical] = idx
				break
			}
		}
	}
	return resolved
}

// Standardize converts table into signals. It never panics: an unexpected
// failure yields an empty result carrying the failure as a warning.
func (s *Standardizer) Standardize(table *models.RawTable) (result StandardizeResult) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.WithFields(map[string]interface{}{"panic": fmt.Sprint(r)}).Error("Standardization failed")
			result = StandardizeResult{
				Signals:  []models.Signal{},
				Warnings: []string{fmt.Sprintf("standardization failed: %v", r)},
			}
		}
	}()

	result = StandardizeResult{Signals: []models.Signal{}, Warnings: []string{}, Backfilled: map[string]int{}}
	if table == nil || len(table.Rows) == 0 {
		return result
	}

	cols := ResolveColumns(table.Columns)
	for _, c := range signalColumns {
		if cols[c] < 0 {
			result.MissingColumns = append(result.MissingColumns, c)
		}
	}

	now := s.now().UTC()
	upper := cases.Upper(language.Und)
	invalid := make(map[string]int)
	seen := make(map[string]bool, len(table.Rows))
	taken := sourceSignalIDs(table.Rows, cols[ColSignalID])

	for i, row := range table.Rows {
		if rowIsEmpty(row) {
			result.DroppedEmpty++
			continue
		}
		cell := func(name string) any {
			idx := cols[name]
			if idx < 0 || idx >= len(row) {
				return nil
			}
			return row[idx]
		}

		sig := models.Signal{Pair: normalizePair(upper, cell(ColPair))}
		if id, ok := signalIDValue(cell(ColSignalID)); ok {
			sig.SignalID = id
		} else {
			sig.SignalID = syntheticSignalID(i, taken)
			result.Backfilled[ColSignalID]++
		}
		if sig.Pair == UnknownPair {
			result.Backfilled[ColPair]++
		}

		createdAt, ok := parseTime(cell(ColCreatedAt))
		if !ok {
			if !isNull(cell(ColCreatedAt)) {
				invalid[ColCreatedAt]++
			}
			result.Backfilled[ColCreatedAt]++
			createdAt = now
		}
		sig.CreatedAt = createdAt

		prices := make(map[string]*float64, len(priceColumns))
		for _, name := range priceColumns {
			v, ok := parseFloat(cell(name))
			if !ok {
				invalid[name]++
			}
			if v != nil && (*v <= 0 || *v > s.priceCeiling) {
				v = nil
			}
			prices[name] = v
		}
		sig.Entry = prices[ColEntry]
		sig.Target1, sig.Target2 = prices[ColTarget1], prices[ColTarget2]
		sig.Target3, sig.Target4 = prices[ColTarget3], prices[ColTarget4]
		sig.Stop1, sig.Stop2 = prices[ColStop1], prices[ColStop2]

		sig.SetOutcome(normalizeSourceOutcome(cell(ColFinalOutcome)))

		if seen[sig.SignalID] {
			result.DroppedDuplicates++
			continue
		}
		seen[sig.SignalID] = true
		result.Signals = append(result.Signals, sig)
	}

	for _, name := range signalColumns {
		if n := invalid[name]; n > 0 {
			result.Warnings = append(result.Warnings, fmt.Sprintf("%s: %d invalid value(s) replaced with defaults", name, n))
		}
	}
	if len(result.Warnings) > 0 {
		s.logger.WithFields(map[string]interface{}{"warnings": result.Warnings}).Warn("Recovered invalid values during standardization")
	}

	s.logger.WithMetrics(map[string]interface{}{
		"input_rows":         len(table.Rows),
		"signals":            len(result.Signals),
		"dropped_empty":      result.DroppedEmpty,
		"dropped_duplicates": result.DroppedDuplicates,
	}).Debug("Standardized signals table")
	return result
}

func rowIsEmpty(row []any) bool {
	for _, v := range row {
		if !isNull(v) {
			return false
		}
	}
	return true
}

// isNull reports nil values and textual null markers.
func isNull(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return nullMarkers[strings.ToLower(strings.TrimSpace(t))]
	case float64:
		return math.IsNaN(t)
	case time.Time:
		return t.IsZero()
	}
	return false
}

func signalIDValue(v any) (string, bool) {
	if isNull(v) {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	default:
		return fmt.Sprint(t), true
	}
}

// sourceSignalIDs collects the IDs present in the source so generated IDs
// never shadow a real one.
func sourceSignalIDs(rows [][]any, idx int) map[string]bool {
	taken := make(map[string]bool, len(rows))
	if idx < 0 {
		return taken
	}
	for _, row := range rows {
		if idx >= len(row) {
			continue
		}
		if id, ok := signalIDValue(row[idx]); ok {
			taken[id] = true
		}
	}
	return taken
}

// syntheticSignalID returns SIG_<row> for a row without an ID, adding a
// numeric suffix when that name is already used. The result is marked taken.
func syntheticSignalID(index int, taken map[string]bool) string {
	base := fmt.Sprintf("SIG_%06d", index)
	id := base
	for n := 1; taken[id]; n++ {
		id = fmt.Sprintf("%s_%d", base, n)
	}
	taken[id] = true
	return id
}

func normalizePair(upper cases.Caser, v any) string {
	if isNull(v) {
		return UnknownPair
	}
	pair := strings.Join(strings.Fields(fmt.Sprint(v)), "")
	if pair == "" {
		return UnknownPair
	}
	return upper.String(pair)
}

// normalizeSourceOutcome maps an outcome column value onto the closed set.
// Anything unrecognized, including "open", is open.
func normalizeSourceOutcome(v any) models.Outcome {
	if isNull(v) {
		return models.OutcomeOpen
	}
	s, ok := v.(string)
	if !ok {
		return models.OutcomeOpen
	}
	s = strings.ToLower(strings.TrimSpace(s))
	if o, ok := sourceOutcomeAliases[s]; ok {
		return o
	}
	return models.ParseOutcome(s)
}

// parseFloat coerces numbers and numeric strings. The boolean is false when
// a non-null value could not be parsed.
func parseFloat(v any) (*float64, bool) {
	if isNull(v) {
		return nil, true
	}
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int64:
		f = float64(t)
	case int:
		f = float64(t)
	case int32:
		f = float64(t)
	case string:
		parsed, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(t), ",", ""), 64)
		if err != nil {
			return nil, false
		}
		f = parsed
	default:
		return nil, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, true
	}
	return &f, true
}

// parseTime accepts time values, common textual layouts and epoch numbers
// (seconds, or milliseconds when large). Results are UTC.
func parseTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		if t.IsZero() {
			return time.Time{}, false
		}
		return t.UTC(), true
	case int64:
		return epochTime(float64(t)), true
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return time.Time{}, false
		}
		return epochTime(t), true
	case string:
		s := strings.TrimSpace(t)
		if nullMarkers[strings.ToLower(s)] {
			return time.Time{}, false
		}
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed.UTC(), true
			}
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return epochTime(f), true
		}
	}
	return time.Time{}, false
}

func epochTime(f float64) time.Time {
	if math.Abs(f) >= 1e11 {
		return time.UnixMilli(int64(f)).UTC()
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC()
}
