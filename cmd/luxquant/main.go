// Command luxquant analyzes trading-signal performance from the terminal.
//
// Reports are computed from the configured source database, or from a CSV
// file given with --input (for example a previous export).
package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/luxquanttrade/luxquant-analyze-app/internal/config"
	"github.com/urfave/cli/v2"
)

var version = "dev"

// app holds what the commands need from the outside world.
type app struct {
	out        io.Writer
	loadConfig func() (*config.Config, error)
	now        func() time.Time
}

func main() {
	a := &app{out: os.Stdout, loadConfig: config.Load, now: time.Now}
	if err := a.cli().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func (a *app) cli() *cli.App {
	return &cli.App{
		Name:    "luxquant",
		Usage:   "Analyze trading-signal performance",
		Version: version,
		Writer:  a.out,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "input",
				Usage: "analyze a CSV file instead of the source database",
			},
			&cli.StringFlag{
				Name:  "updates",
				Usage: "CSV of signal updates used to infer outcomes (with --input)",
			},
			&cli.StringFlag{
				Name:    "output-format",
				Aliases: []string{"o"},
				Usage:   "report format: text, json or yaml",
				Value:   formatText,
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "log pipeline progress to stderr",
			},
		},
		Before: func(c *cli.Context) error {
			_, err := parseOutputFormat(c.String("output-format"))
			return err
		},
		Commands: []*cli.Command{
			{
				Name:   "tables",
				Usage:  "List source tables and how they map to signals and updates",
				Action: a.tables,
			},
			{
				Name:   "status",
				Usage:  "Check the source database connection",
				Action: a.status,
			},
			{
				Name:   "summary",
				Usage:  "Show headline metrics for the selected signals",
				Flags:  filterFlags(),
				Action: a.summary,
			},
			{
				Name:  "pairs",
				Usage: "Show per-pair metrics, one pair's profile or the top performers",
				Flags: append(filterFlags(),
					&cli.StringFlag{Name: "pair", Usage: "show the profile of one pair"},
					&cli.BoolFlag{Name: "top", Usage: "rank the best performing pairs"},
					&cli.IntFlag{Name: "min-trades", Usage: "closed trades required to rank a pair"},
					&cli.IntFlag{Name: "limit", Usage: "number of ranked pairs"},
					&cli.StringFlag{Name: "sort", Value: "win_rate", Usage: "rank by win_rate, total_signals, avg_rr or score"},
				),
				Action: a.pairs,
			},
			{
				Name:   "trend",
				Usage:  "Show period win rates and their trend",
				Flags:  filterFlags(),
				Action: a.trend,
			},
			{
				Name:   "quality",
				Usage:  "Report data quality and outcome coverage",
				Action: a.quality,
			},
			{
				Name:  "export",
				Usage: "Write the selected signals as CSV or JSON",
				Flags: append(filterFlags(),
					&cli.StringFlag{Name: "format", Usage: "csv or json", Value: "csv"},
					&cli.StringFlag{Name: "output", Usage: "file to write, - for stdout (default: generated name)"},
				),
				Action: a.export,
			},
		},
	}
}

// filterFlags are the selection flags shared by the report commands.
func filterFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "time-range", Usage: "all, ytd, mtd, 30d, 7d or custom", Value: "all"},
		&cli.StringFlag{Name: "date-from", Usage: "start date (YYYY-MM-DD) of a custom range"},
		&cli.StringFlag{Name: "date-to", Usage: "end date (YYYY-MM-DD, inclusive) of a custom range"},
		&cli.StringFlag{Name: "pairs", Usage: "comma-separated pair allowlist"},
		&cli.StringFlag{Name: "outcomes", Usage: "comma-separated outcome allowlist (tp1..tp4, sl, open)"},
		&cli.StringFlag{Name: "granularity", Usage: "daily, weekly or monthly", Value: "daily"},
		&cli.BoolFlag{Name: "show-ma", Usage: "add a moving average to period win rates"},
		&cli.StringFlag{Name: "rr-min", Usage: "minimum planned risk/reward"},
		&cli.StringFlag{Name: "rr-max", Usage: "maximum planned risk/reward"},
	}
}
