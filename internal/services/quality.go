package services

import (
	"fmt"
	"time"

	"github.com/luxquanttrade/luxquant-analyze-app/internal/models"
)

var requiredColumns = []string{ColSignalID, ColPair, ColCreatedAt}

// DataQualityReport inspects a standardized table. std carries the
// standardizer's diagnostics; signals are the processed rows.
func DataQualityReport(std StandardizeResult, signals []models.Signal, now time.Time) models.DataQualityReport {
	report := models.DataQualityReport{
		Status:    models.QualityGood,
		TotalRows: len(signals),
		Issues:    []string{},
		Warnings:  []string{},
	}
	if len(signals) == 0 {
		report.Status = models.QualityEmpty
		report.Issues = append(report.Issues, "No data available")
		report.Warnings = append(report.Warnings, std.Warnings...)
		return report
	}
	total := len(signals)

	missing := make(map[string]bool, len(std.MissingColumns))
	for _, c := range std.MissingColumns {
		missing[c] = true
	}
	for _, col := range requiredColumns {
		if missing[col] {
			report.Warnings = append(report.Warnings, fmt.Sprintf("Missing source column %s; values were backfilled", col))
			continue
		}
		if pct := float64(std.Backfilled[col]) * 100 / float64(total); pct > 50 {
			report.Warnings = append(report.Warnings, fmt.Sprintf("High null percentage in %s: %.1f%%", col, pct))
		}
	}

	var unknown, future, noRR int
	for _, s := range signals {
		if s.Pair == UnknownPair {
			unknown++
		}
		if s.CreatedAt.After(now) {
			future++
		}
		if s.RRPlanned == nil {
			noRR++
		}
	}
	if unknown*2 > total {
		report.Warnings = append(report.Warnings, fmt.Sprintf("High number of unknown pairs: %d", unknown))
	}
	if future > 0 {
		report.Warnings = append(report.Warnings, fmt.Sprintf("%d signals have future dates", future))
	}

	closed := len(ClosedTrades(signals))
	if closed == 0 {
		report.Warnings = append(report.Warnings, "No closed trades found")
	} else if rate := float64(closed) * 100 / float64(total); rate < 10 {
		report.Warnings = append(report.Warnings, fmt.Sprintf("Low completion rate: %.1f%%", rate))
	}
	if noRR*2 > total {
		report.Warnings = append(report.Warnings, fmt.Sprintf("Planned RR unavailable for %.1f%% of signals", float64(noRR)*100/float64(total)))
	}

	report.Warnings = append(report.Warnings, std.Warnings...)
	report.ColumnInfo = columnInfo(signals)

	switch {
	case len(report.Issues) > 0:
		report.Status = models.QualityIssues
	case len(report.Warnings) > 0:
		report.Status = models.QualityWarnings
	}
	return report
}

func columnInfo(signals []models.Signal) map[string]models.ColumnQuality {
	type column struct {
		name  string
		value func(s *models.Signal) (any, bool)
	}
	price := func(get func(s *models.Signal) *float64) func(s *models.Signal) (any, bool) {
		return func(s *models.Signal) (any, bool) {
			v := get(s)
			if v == nil {
				return nil, false
			}
			return *v, true
		}
	}
	columns := []column{
		{ColSignalID, func(s *models.Signal) (any, bool) { return s.SignalID, true }},
		{ColPair, func(s *models.Signal) (any, bool) { return s.Pair, s.Pair != UnknownPair }},
		{ColCreatedAt, func(s *models.Signal) (any, bool) { return s.CreatedAt, true }},
		{ColEntry, price(func(s *models.Signal) *float64 { return s.Entry })},
		{ColTarget1, price(func(s *models.Signal) *float64 { return s.Target1 })},
		{ColTarget2, price(func(s *models.Signal) *float64 { return s.Target2 })},
		{ColTarget3, price(func(s *models.Signal) *float64 { return s.Target3 })},
		{ColTarget4, price(func(s *models.Signal) *float64 { return s.Target4 })},
		{ColStop1, price(func(s *models.Signal) *float64 { return s.Stop1 })},
		{ColStop2, price(func(s *models.Signal) *float64 { return s.Stop2 })},
		{ColFinalOutcome, func(s *models.Signal) (any, bool) { return s.FinalOutcome, s.FinalOutcome.IsClosed() }},
		{"rr_planned", price(func(s *models.Signal) *float64 { return s.RRPlanned })},
	}

	info := make(map[string]models.ColumnQuality, len(columns))
	total := float64(len(signals))
	for _, c := range columns {
		var q models.ColumnQuality
		unique := make(map[any]bool)
		for i := range signals {
			v, ok := c.value(&signals[i])
			if !ok {
				q.NullCount++
				continue
			}
			if t, isTime := v.(time.Time); isTime {
				v = t.UnixNano()
			}
			unique[v] = true
		}
		q.UniqueValues = len(unique)
		q.NullPercentage = Round(float64(q.NullCount)*100/total, 2)
		info[c.name] = q
	}
	return info
}
