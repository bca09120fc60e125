package services

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/luxquanttrade/luxquant-analyze-app/internal/models"
)

// Update log columns, after name normalization, in order of preference.
var (
	updateTypeColumns = []string{"update_type", "status", "type", "event", "outcome"}
	updateTimeColumns = []string{"update_at", "created_at", "timestamp", "time"}
)

type updatePattern struct {
	outcome  models.Outcome
	patterns []string
}

// Higher targets come first so that a message naming several levels
// resolves to the best one.
var (
	targetPatterns = []updatePattern{
		{models.OutcomeTP4, []string{"tp4", "target 4", "target4", "t4"}},
		{models.OutcomeTP3, []string{"tp3", "target 3", "target3", "t3"}},
		{models.OutcomeTP2, []string{"tp2", "target 2", "target2", "t2"}},
		{models.OutcomeTP1, []string{"tp1", "target 1", "target1", "t1"}},
	}
	stopPatterns = []string{"sl", "stop", "stop loss", "stoploss"}
	hitPatterns  = []updatePattern{
		{models.OutcomeTP4, []string{"4", "tp4", "target 4"}},
		{models.OutcomeTP3, []string{"3", "tp3", "target 3"}},
		{models.OutcomeTP2, []string{"2", "tp2", "target 2"}},
		{models.OutcomeTP1, []string{"1", "tp1", "target 1"}},
	}
	reachedPatterns = []updatePattern{
		{models.OutcomeTP4, []string{"4", "tp4"}},
		{models.OutcomeTP3, []string{"3", "tp3"}},
		{models.OutcomeTP2, []string{"2", "tp2"}},
		{models.OutcomeTP1, []string{"1", "tp1"}},
	}
)

var tpLabel = regexp.MustCompile(`^tp\d+$`)

// NormalizeUpdateType maps free update text onto tp1..tp4 or sl. Text that
// matches no pattern is returned lower-cased and trimmed; blank text
// returns "".
func NormalizeUpdateType(text string) string {
	s := strings.ToLower(strings.TrimSpace(text))
	if s == "" {
		return ""
	}

	if o, ok := matchFamily(s, targetPatterns); ok {
		return string(o)
	}
	if containsAny(s, stopPatterns...) {
		return string(models.OutcomeSL)
	}
	if strings.Contains(s, "hit") {
		if o, ok := matchFamily(s, hitPatterns); ok {
			return string(o)
		}
	}
	if strings.Contains(s, "reached") {
		if o, ok := matchFamily(s, reachedPatterns); ok {
			return string(o)
		}
	}
	return s
}

func matchFamily(s string, family []updatePattern) (models.Outcome, bool) {
	for _, p := range family {
		if containsAny(s, p.patterns...) {
			return p.outcome, true
		}
	}
	return models.OutcomeOpen, false
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// ClassifyUpdate returns the ranked outcome named by an update, if any.
func ClassifyUpdate(text string) (models.Outcome, bool) {
	o := models.Outcome(NormalizeUpdateType(text))
	if _, ok := o.Rank(); ok {
		return o, true
	}
	return models.OutcomeOpen, false
}

// ParseUpdateEvents reads the update log. Rows without a signal id are
// skipped; a table without signal_id or an update type column yields no
// events and a warning.
func ParseUpdateEvents(table *models.RawTable) ([]models.UpdateEvent, []string) {
	events := []models.UpdateEvent{}
	if table == nil || len(table.Rows) == 0 {
		return events, nil
	}

	normalized := make(map[string]int, len(table.Columns))
	for i, c := range table.Columns {
		n := NormalizeColumnName(c)
		if _, dup := normalized[n]; !dup {
			normalized[n] = i
		}
	}
	first := func(candidates []string) int {
		for _, c := range candidates {
			if idx, ok := normalized[c]; ok {
				return idx
			}
		}
		return -1
	}

	idCol, ok := normalized[ColSignalID]
	if !ok {
		return events, []string{fmt.Sprintf("update table %q has no signal_id column", table.Name)}
	}
	typeCol := first(updateTypeColumns)
	if typeCol < 0 {
		return events, []string{fmt.Sprintf("update table %q has no update type column", table.Name)}
	}
	timeCol := first(updateTimeColumns)

	var skipped int
	for _, row := range table.Rows {
		if idCol >= len(row) || isNull(row[idCol]) {
			skipped++
			continue
		}
		ev := models.UpdateEvent{SignalID: signalIDValue(row[idCol], 0)}
		if typeCol < len(row) && !isNull(row[typeCol]) {
			ev.UpdateType = fmt.Sprint(row[typeCol])
		}
		if timeCol >= 0 && timeCol < len(row) {
			if ts, ok := parseTime(row[timeCol]); ok {
				ev.UpdatedAt = &ts
			}
		}
		events = append(events, ev)
	}

	var warnings []string
	if skipped > 0 {
		warnings = append(warnings, fmt.Sprintf("%d update(s) without signal_id skipped", skipped))
	}
	return events, warnings
}

// InferOutcomes keeps the best outcome each signal reached. The result does
// not depend on event order. Signals whose updates were all unrecognized
// are listed as unresolved and get no outcome.
func InferOutcomes(events []models.UpdateEvent) models.OutcomeInference {
	inference := models.OutcomeInference{
		Outcomes:   make(map[string]models.InferredOutcome),
		Unresolved: []string{},
		Events:     len(events),
	}

	type tally struct {
		best         int
		matched      int
		unrecognized int
	}
	tallies := make(map[string]*tally)

	for _, ev := range events {
		t, ok := tallies[ev.SignalID]
		if !ok {
			t = &tally{best: -1}
			tallies[ev.SignalID] = t
		}
		o, ranked := ClassifyUpdate(ev.UpdateType)
		if !ranked {
			t.unrecognized++
			continue
		}
		t.matched++
		if r, _ := o.Rank(); r > t.best {
			t.best = r
		}
	}

	for id, t := range tallies {
		if t.matched == 0 {
			inference.Unresolved = append(inference.Unresolved, id)
			continue
		}
		o := models.OutcomeFromRank(t.best)
		inference.Outcomes[id] = models.InferredOutcome{
			SignalID:            id,
			FinalOutcome:        o,
			TPLevel:             o.TPLevel(),
			MatchedUpdates:      t.matched,
			UnrecognizedUpdates: t.unrecognized,
		}
	}
	sort.Strings(inference.Unresolved)
	return inference
}

// ApplyOutcomes overrides source outcomes with inferred ones. Signals
// without an inferred outcome keep what the source recorded.
func ApplyOutcomes(signals []models.Signal, inference models.OutcomeInference) int {
	applied := 0
	for i := range signals {
		if inferred, ok := inference.Outcomes[signals[i].SignalID]; ok {
			signals[i].SetOutcome(inferred.FinalOutcome)
			applied++
		}
	}
	return applied
}

// OutcomeStatistics counts inferred outcomes by label.
func OutcomeStatistics(inference models.OutcomeInference) models.OutcomeStats {
	stats := models.OutcomeStats{Distribution: make(map[models.Outcome]int)}
	for _, o := range inference.Outcomes {
		stats.TotalOutcomes++
		stats.Distribution[o.FinalOutcome]++
		switch {
		case tpLabel.MatchString(string(o.FinalOutcome)):
			stats.TPHits++
		case o.FinalOutcome == models.OutcomeSL:
			stats.SLHits++
		}
	}
	if closed := stats.TPHits + stats.SLHits; closed > 0 {
		stats.WinRate = Round(float64(stats.TPHits)/float64(closed)*100, 2)
	}
	return stats
}

// ValidateOutcomes checks how many of totalSignals received an outcome.
func ValidateOutcomes(inference models.OutcomeInference, totalSignals int) models.OutcomeValidation {
	v := models.OutcomeValidation{
		IsValid:         true,
		UnresolvedCount: len(inference.Unresolved),
		Warnings:        []string{},
	}
	if len(inference.Outcomes) == 0 {
		v.IsValid = false
		v.Warnings = append(v.Warnings, "No outcomes inferred")
		if v.UnresolvedCount > 0 {
			v.Warnings = append(v.Warnings, fmt.Sprintf("%d signals have only unrecognized updates", v.UnresolvedCount))
		}
		return v
	}

	if totalSignals > 0 {
		v.Coverage = Round(float64(len(inference.Outcomes))/float64(totalSignals)*100, 2)
		if v.Coverage < 50 {
			v.Warnings = append(v.Warnings, fmt.Sprintf("Low outcome coverage: %.1f%%", v.Coverage))
		}
	}

	invalid := 0
	for _, o := range inference.Outcomes {
		if _, ok := o.FinalOutcome.Rank(); !ok {
			invalid++
		}
	}
	if invalid > 0 {
		v.Warnings = append(v.Warnings, fmt.Sprintf("%d signals with invalid outcomes", invalid))
	}
	if v.UnresolvedCount > 0 {
		v.Warnings = append(v.Warnings, fmt.Sprintf("%d signals have only unrecognized updates", v.UnresolvedCount))
	}
	return v
}
