package services

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/luxquanttrade/luxquant-analyze-app/internal/models"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ErrInvalidFilter is wrapped by every filter parsing error.
var ErrInvalidFilter = errors.New("invalid filter")

// TimeRange selects signals by creation time relative to a reference clock.
type TimeRange string

const (
	TimeRangeAll    TimeRange = "all"
	TimeRangeYTD    TimeRange = "ytd"
	TimeRangeMTD    TimeRange = "mtd"
	TimeRange30D    TimeRange = "30d"
	TimeRange7D     TimeRange = "7d"
	TimeRangeCustom TimeRange = "custom"
)

var timeRangeLabels = map[TimeRange]string{
	TimeRangeAll:    "All Time",
	TimeRangeYTD:    "Year to Date",
	TimeRangeMTD:    "Month to Date",
	TimeRange30D:    "Last 30 Days",
	TimeRange7D:     "Last 7 Days",
	TimeRangeCustom: "Custom Range",
}

// Label is the human readable name of the range.
func (r TimeRange) Label() string {
	if l, ok := timeRangeLabels[r]; ok {
		return l
	}
	return "Unknown"
}

// Granularity is the calendar bucket used for period win rates.
type Granularity string

const (
	GranularityDaily   Granularity = "daily"
	GranularityWeekly  Granularity = "weekly"
	GranularityMonthly Granularity = "monthly"
)

// DateLayout is the format of date_from and date_to.
const DateLayout = "2006-01-02"

// FilterParams carries raw filter values as received from a query string
// or command-line flags.
type FilterParams struct {
	TimeRange   string
	DateFrom    string
	DateTo      string
	Pairs       string
	Granularity string
	ShowMA      string
	Outcomes    string
	RRMin       string
	RRMax       string
}

// Filter is a validated, request-scoped selection over standardized signals.
type Filter struct {
	TimeRange   TimeRange
	DateFrom    *time.Time
	DateTo      *time.Time
	Pairs       []string
	Granularity Granularity
	ShowMA      bool
	// Outcomes is an allowlist; empty keeps every outcome.
	Outcomes []models.Outcome
	RRMin    *float64
	RRMax    *float64
}

// TimeWindow is a half-open creation-time interval. Nil bounds are open.
type TimeWindow struct {
	Start *time.Time `json:"start,omitempty"`
	End   *time.Time `json:"end,omitempty"`
}

// Contains reports whether t lies in [Start, End).
func (w TimeWindow) Contains(t time.Time) bool {
	if w.Start != nil && t.Before(*w.Start) {
		return false
	}
	if w.End != nil && !t.Before(*w.End) {
		return false
	}
	return true
}

// DefaultFilter keeps everything and buckets daily.
func DefaultFilter() Filter {
	return Filter{TimeRange: TimeRangeAll, Granularity: GranularityDaily}
}

// ParseFilter validates raw parameters. Blank values take defaults.
func ParseFilter(p FilterParams) (Filter, error) {
	f := DefaultFilter()

	if tr := strings.ToLower(strings.TrimSpace(p.TimeRange)); tr != "" {
		f.TimeRange = TimeRange(tr)
		if _, ok := timeRangeLabels[f.TimeRange]; !ok {
			return Filter{}, fmt.Errorf("%w: time_range must be one of all, ytd, mtd, 30d, 7d, custom (got %q)", ErrInvalidFilter, p.TimeRange)
		}
	}

	if f.TimeRange == TimeRangeCustom {
		var err error
		if f.DateFrom, err = parseDate("date_from", p.DateFrom); err != nil {
			return Filter{}, err
		}
		if f.DateTo, err = parseDate("date_to", p.DateTo); err != nil {
			return Filter{}, err
		}
		if f.DateFrom != nil && f.DateTo != nil && f.DateTo.Before(*f.DateFrom) {
			return Filter{}, fmt.Errorf("%w: date_to is before date_from", ErrInvalidFilter)
		}
	}

	f.Pairs = ParsePairList(p.Pairs)

	switch strings.ToLower(strings.TrimSpace(p.Granularity)) {
	case "", "daily", "day", "d":
		f.Granularity = GranularityDaily
	case "weekly", "week", "w":
		f.Granularity = GranularityWeekly
	case "monthly", "month", "m":
		f.Granularity = GranularityMonthly
	default:
		return Filter{}, fmt.Errorf("%w: granularity must be one of daily, weekly, monthly (got %q)", ErrInvalidFilter, p.Granularity)
	}

	if s := strings.TrimSpace(p.ShowMA); s != "" {
		v, err := strconv.ParseBool(s)
		if err != nil {
			return Filter{}, fmt.Errorf("%w: show_ma must be a boolean (got %q)", ErrInvalidFilter, p.ShowMA)
		}
		f.ShowMA = v
	}

	for _, raw := range strings.Split(p.Outcomes, ",") {
		s := strings.ToLower(strings.TrimSpace(raw))
		if s == "" {
			continue
		}
		o := models.ParseOutcome(s)
		if o.IsOpen() && s != "open" {
			return Filter{}, fmt.Errorf("%w: unknown outcome %q", ErrInvalidFilter, raw)
		}
		f.Outcomes = append(f.Outcomes, o)
	}

	var err error
	if f.RRMin, err = parseBound("rr_min", p.RRMin); err != nil {
		return Filter{}, err
	}
	if f.RRMax, err = parseBound("rr_max", p.RRMax); err != nil {
		return Filter{}, err
	}
	if f.RRMin != nil && f.RRMax != nil && *f.RRMax < *f.RRMin {
		return Filter{}, fmt.Errorf("%w: rr_max is below rr_min", ErrInvalidFilter)
	}
	return f, nil
}

func parseDate(name, raw string) (*time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be YYYY-MM-DD (got %q)", ErrInvalidFilter, name, raw)
	}
	return &t, nil
}

func parseBound(name, raw string) (*float64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return nil, fmt.Errorf("%w: %s must be a non-negative number (got %q)", ErrInvalidFilter, name, raw)
	}
	return &v, nil
}

// ParsePairList splits a comma-separated allowlist, trimming and
// upper-casing each pair and dropping blanks.
func ParsePairList(raw string) []string {
	upper := cases.Upper(language.Und)
	var pairs []string
	for _, p := range strings.Split(raw, ",") {
		p = strings.Join(strings.Fields(p), "")
		if p != "" {
			pairs = append(pairs, upper.String(p))
		}
	}
	return pairs
}

// Window resolves the time range against now. Relative ranges have an
// inclusive lower bound; a custom range ends at the start of the day after
// date_to.
func (f Filter) Window(now time.Time) TimeWindow {
	now = now.UTC()
	startOfDay := func(t time.Time) time.Time {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
	at := func(t time.Time) *time.Time { return &t }

	switch f.TimeRange {
	case TimeRangeYTD:
		return TimeWindow{Start: at(time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, time.UTC))}
	case TimeRangeMTD:
		return TimeWindow{Start: at(time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC))}
	case TimeRange30D:
		return TimeWindow{Start: at(now.AddDate(0, 0, -30))}
	case TimeRange7D:
		return TimeWindow{Start: at(now.AddDate(0, 0, -7))}
	case TimeRangeCustom:
		var w TimeWindow
		if f.DateFrom != nil {
			w.Start = at(startOfDay(*f.DateFrom))
		}
		if f.DateTo != nil {
			w.End = at(startOfDay(*f.DateTo).AddDate(0, 0, 1))
		}
		return w
	}
	return TimeWindow{}
}

// Apply returns the signals selected by the filter, preserving order.
func (f Filter) Apply(signals []models.Signal, now time.Time) []models.Signal {
	window := f.Window(now)

	pairs := make(map[string]bool, len(f.Pairs))
	for _, p := range f.Pairs {
		pairs[p] = true
	}
	outcomes := make(map[models.Outcome]bool, len(f.Outcomes))
	for _, o := range f.Outcomes {
		outcomes[o] = true
	}
	keepNilRR := f.RRMin == nil || *f.RRMin == 0

	out := make([]models.Signal, 0, len(signals))
	for _, s := range signals {
		if !window.Contains(s.CreatedAt) {
			continue
		}
		if len(pairs) > 0 && !pairs[s.Pair] {
			continue
		}
		if len(outcomes) > 0 && !outcomes[s.FinalOutcome] {
			continue
		}
		if f.RRMin != nil || f.RRMax != nil {
			if s.RRPlanned == nil {
				if !keepNilRR {
					continue
				}
			} else if (f.RRMin != nil && *s.RRPlanned < *f.RRMin) || (f.RRMax != nil && *s.RRPlanned > *f.RRMax) {
				continue
			}
		}
		out = append(out, s)
	}
	return out
}
