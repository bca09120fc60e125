package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/luxquanttrade/luxquant-analyze-app/internal/models"
	"github.com/luxquanttrade/luxquant-analyze-app/internal/services"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

// Report formats.
const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

func parseOutputFormat(raw string) (string, error) {
	switch f := strings.ToLower(strings.TrimSpace(raw)); f {
	case "", formatText:
		return formatText, nil
	case formatJSON, formatYAML:
		return f, nil
	case "yml":
		return formatYAML, nil
	default:
		return "", fmt.Errorf("output format must be text, json or yaml (got %q)", raw)
	}
}

// render writes v in the selected output format; text uses writeText.
func (a *app) render(c *cli.Context, v interface{}, writeText func(io.Writer)) error {
	format, err := parseOutputFormat(c.String("output-format"))
	if err != nil {
		return err
	}
	switch format {
	case formatJSON:
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		return writeYAML(a.out, v)
	default:
		writeText(a.out)
		return nil
	}
}

// writeYAML encodes v with its JSON field names and order. The JSON form is
// parsed into a yaml.Node and re-emitted in block style.
func writeYAML(w io.Writer, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to convert report to yaml: %w", err)
	}
	blockStyle(&doc)

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return fmt.Errorf("failed to write yaml: %w", err)
	}
	return enc.Close()
}

func blockStyle(n *yaml.Node) {
	n.Style &^= yaml.FlowStyle | yaml.DoubleQuotedStyle
	for _, child := range n.Content {
		blockStyle(child)
	}
}

func optional(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *v)
}

func writeTables(w io.Writer, r TablesReport) {
	fmt.Fprintf(w, "Source: %s\n", r.Source)
	fmt.Fprintf(w, "Tables (%d):\n", len(r.Available))
	for _, t := range r.Available {
		fmt.Fprintf(w, "  %s\n", t)
	}
	for _, logical := range []string{models.TableSignals, models.TableUpdates, models.TableFills} {
		name, ok := r.Mapped[logical]
		if !ok {
			name = "(not found)"
		}
		fmt.Fprintf(w, "%-8s -> %s\n", logical, name)
	}
}

func writeStatus(w io.Writer, s models.ConnectionStatus) {
	state := "connected"
	if !s.Connected {
		state = "not connected"
	}
	fmt.Fprintf(w, "Database: %s (%s)\n", state, s.Driver)
	if s.Target != "" {
		fmt.Fprintf(w, "Target:   %s\n", s.Target)
	}
	if s.URLSource != "" {
		fmt.Fprintf(w, "Source:   %s\n", s.URLSource)
	}
	if s.Error != "" {
		fmt.Fprintf(w, "Error:    [%s] %s\n", s.Category, s.Error)
		fmt.Fprintf(w, "Hint:     %s\n", s.Hint)
	}
}

func writeSummary(w io.Writer, f services.Filter, r services.SummaryReport) {
	s := r.Summary
	fmt.Fprintf(w, "Range:            %s\n", f.TimeRange.Label())
	fmt.Fprintf(w, "Total signals:    %d\n", s.TotalSignals)
	fmt.Fprintf(w, "Closed trades:    %d\n", s.ClosedTrades)
	fmt.Fprintf(w, "Open signals:     %d\n", s.OpenSignals)
	fmt.Fprintf(w, "Unique pairs:     %d\n", s.UniquePairs)
	fmt.Fprintf(w, "Win rate:         %.2f%%\n", s.WinRate)
	fmt.Fprintf(w, "Completion rate:  %.2f%%\n", s.CompletionRate)
	fmt.Fprintf(w, "Avg planned RR:   %s\n", optional(r.Portfolio.AvgRRPlanned))
	fmt.Fprintf(w, "Total realized RR: %s\n", optional(r.Portfolio.TotalRRRealized))
	if s.DateRange != nil {
		fmt.Fprintf(w, "Date range:       %s to %s (%d days)\n",
			s.DateRange.Start.Format(services.DateLayout), s.DateRange.End.Format(services.DateLayout), s.DateRange.Days)
	}
	ws := r.Winrate
	fmt.Fprintf(w, "Outcomes:         TP1 %d  TP2 %d  TP3 %d  TP4 %d  SL %d\n",
		ws.TP1Count, ws.TP2Count, ws.TP3Count, ws.TP4Count, ws.LosingTrades)
}

func writePairs(w io.Writer, pairs []models.PairMetrics) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PAIR\tSIGNALS\tCLOSED\tWIN %\tAVG RR\tREALIZED RR")
	for _, p := range pairs {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%.2f\t%s\t%s\n",
			p.Pair, p.TotalSignals, p.ClosedTrades, p.WinRate, optional(p.AvgRRPlanned), optional(p.TotalRRRealized))
	}
	_ = tw.Flush()
}

func writeTopPerformers(w io.Writer, top []models.TopPerformer) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tPAIR\tCLOSED\tWIN %\tAVG RR\tSCORE")
	for i, p := range top {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%.2f\t%.2f\t%.2f\n", i+1, p.Pair, p.ClosedTrades, p.WinRate, p.AvgRR, p.PerformanceScore)
	}
	_ = tw.Flush()
}

func writeProfile(w io.Writer, p models.PairProfile) {
	fmt.Fprintf(w, "%s: %d signals, %d closed, %d open\n", p.Pair, p.TotalSignals, p.ClosedTrades, p.OpenSignals)
	fmt.Fprintf(w, "Win rate: %.2f%%\n", p.WinRate)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "OUTCOME\tCOUNT\tRATE %")
	for _, row := range []struct {
		name  string
		count int
		rate  float64
	}{
		{"TP1", p.TP1Count, p.TP1Rate},
		{"TP2", p.TP2Count, p.TP2Rate},
		{"TP3", p.TP3Count, p.TP3Rate},
		{"TP4", p.TP4Count, p.TP4Rate},
		{"SL", p.SLCount, p.SLRate},
	} {
		fmt.Fprintf(tw, "%s\t%d\t%.2f\n", row.name, row.count, row.rate)
	}
	_ = tw.Flush()
	fmt.Fprintf(w, "RR avg %.2f, median %.2f, best %.2f, worst %.2f\n", p.AvgRR, p.MedianRR, p.BestRR, p.WorstRR)
}

func writeTrend(w io.Writer, r services.TrendReport) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PERIOD\tTRADES\tWINS\tWIN %\tMA")
	for _, p := range r.Periods {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%.2f\t%s\n", p.Period, p.TotalTrades, p.WinningTrades, p.WinRate, optional(p.MovingAverage))
	}
	_ = tw.Flush()
	t := r.Trend
	fmt.Fprintf(w, "Trend: %s (slope %.2f per period, %d points)\n", t.Trend, t.Slope, t.Points)
	fmt.Fprintf(w, "Current %.2f%%, recent avg %.2f%%, overall avg %.2f%%\n", t.CurrentWinRate, t.RecentAvgWinRate, t.OverallAvgWinRate)
}

func writeQuality(w io.Writer, r services.QualityReport) {
	fmt.Fprintf(w, "Data quality: %s (%d rows)\n", r.Quality.Status, r.Quality.TotalRows)
	for _, issue := range r.Quality.Issues {
		fmt.Fprintf(w, "  issue:   %s\n", issue)
	}
	for _, warning := range r.Quality.Warnings {
		fmt.Fprintf(w, "  warning: %s\n", warning)
	}
	fmt.Fprintf(w, "Outcome coverage: %.1f%% (%d unresolved)\n", r.Outcomes.Coverage, r.Outcomes.UnresolvedCount)
	for _, warning := range r.Outcomes.Warnings {
		fmt.Fprintf(w, "  warning: %s\n", warning)
	}
	for _, warning := range r.UpdateWarnings {
		fmt.Fprintf(w, "  update:  %s\n", warning)
	}
}
