package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/luxquanttrade/luxquant-analyze-app/internal/config"
	"github.com/luxquanttrade/luxquant-analyze-app/internal/database"
	"github.com/luxquanttrade/luxquant-analyze-app/internal/logging"
	"github.com/luxquanttrade/luxquant-analyze-app/internal/models"
	"github.com/luxquanttrade/luxquant-analyze-app/internal/services"
	"github.com/urfave/cli/v2"
)

// TablesReport lists the source tables and the logical tables they serve.
type TablesReport struct {
	Source    string            `json:"source"`
	Available []string          `json:"available"`
	Mapped    map[string]string `json:"mapped"`
}

// session is one command's configuration, logger and optional database.
type session struct {
	cfg     *config.Config
	logger  logging.Logger
	db      database.Database
	openErr error
}

func (s *session) close() {
	if s.db != nil {
		_ = s.db.Close()
	}
}

// open loads configuration and, unless withDB is false or --input is set,
// connects the source database. A connection failure is kept in openErr.
func (a *app) open(c *cli.Context, withDB bool) (*session, error) {
	cfg, err := a.loadConfig()
	s := &session{cfg: cfg, logger: logging.NewNopLogger()}
	if err != nil {
		if cfg == nil || !errors.Is(err, config.ErrNoDatabaseURL) {
			return nil, fmt.Errorf("failed to load configuration: %w", err)
		}
		s.openErr = err
	}
	if c.Bool("verbose") {
		s.logger = logging.NewStandardLogger("debug", "development").WithService("luxquant-cli")
	}
	if !withDB || c.String("input") != "" || s.openErr != nil {
		return s, nil
	}

	db, err := database.NewDatabaseConnection(c.Context, &cfg.Database, s.logger)
	if err != nil {
		s.openErr = err
		return s, nil
	}
	s.db = db
	return s, nil
}

// load runs the pipeline over --input or the source database.
func (a *app) load(c *cli.Context) (*services.SignalProcessor, *services.ProcessedData, error) {
	s, err := a.open(c, true)
	if err != nil {
		return nil, nil, err
	}
	defer s.close()

	var source services.SnapshotSource
	if s.db != nil {
		source = database.NewSnapshotLoader(s.db, s.logger)
	}
	p := services.NewSignalProcessor(source, nil, s.cfg.Analytics, s.logger)
	p.SetClock(a.now)

	if input := c.String("input"); input != "" {
		signals, err := services.ReadCSVFile(input)
		if err != nil {
			return nil, nil, err
		}
		var updates *models.RawTable
		if path := c.String("updates"); path != "" {
			if updates, err = services.ReadCSVFile(path); err != nil {
				return nil, nil, err
			}
		}
		data := p.ProcessTables(signals, updates)
		data.TablesFound = []string{signals.Name}
		return p, data, nil
	}

	if s.openErr != nil {
		return nil, nil, connectionFailure(s.openErr)
	}
	data, err := p.Load(c.Context)
	if err != nil {
		return nil, nil, connectionFailure(err)
	}
	return p, data, nil
}

// connectionFailure adds the remediation hint to a source error.
func connectionFailure(err error) error {
	ce := database.ClassifyError(err)
	return fmt.Errorf("%w\nhint: %s", err, ce.Hint)
}

func parseFilter(c *cli.Context) (services.Filter, error) {
	return services.ParseFilter(services.FilterParams{
		TimeRange:   c.String("time-range"),
		DateFrom:    c.String("date-from"),
		DateTo:      c.String("date-to"),
		Pairs:       c.String("pairs"),
		Granularity: c.String("granularity"),
		ShowMA:      strconv.FormatBool(c.Bool("show-ma")),
		Outcomes:    c.String("outcomes"),
		RRMin:       c.String("rr-min"),
		RRMax:       c.String("rr-max"),
	})
}

func (a *app) tables(c *cli.Context) error {
	report := TablesReport{Mapped: map[string]string{}}
	if input := c.String("input"); input != "" {
		report.Source = input
		report.Available = []string{input}
		report.Mapped[models.TableSignals] = input
		if updates := c.String("updates"); updates != "" {
			report.Available = append(report.Available, updates)
			report.Mapped[models.TableUpdates] = updates
		}
		return a.render(c, report, func(w io.Writer) { writeTables(w, report) })
	}

	s, err := a.open(c, true)
	if err != nil {
		return err
	}
	defer s.close()
	if s.openErr != nil {
		return connectionFailure(s.openErr)
	}

	available, err := database.ListTables(c.Context, s.db, s.db.Driver())
	if err != nil {
		return connectionFailure(err)
	}
	report.Source = string(s.db.Driver())
	report.Available = available
	for _, logical := range []string{models.TableSignals, models.TableUpdates, models.TableFills} {
		if name, err := database.ResolveTable(logical, available); err == nil {
			report.Mapped[logical] = name
		}
	}
	return a.render(c, report, func(w io.Writer) { writeTables(w, report) })
}

func (a *app) status(c *cli.Context) error {
	s, err := a.open(c, true)
	if err != nil {
		return err
	}
	defer s.close()

	status := database.CheckConnection(c.Context, s.db, &s.cfg.Database, s.openErr)
	if err := a.render(c, status, func(w io.Writer) { writeStatus(w, status) }); err != nil {
		return err
	}
	if !status.Connected {
		return errors.New("source database is not reachable")
	}
	return nil
}

func (a *app) summary(c *cli.Context) error {
	f, err := parseFilter(c)
	if err != nil {
		return err
	}
	p, data, err := a.load(c)
	if err != nil {
		return err
	}
	report := p.BuildSummaryReport(data, f)
	return a.render(c, report, func(w io.Writer) { writeSummary(w, f, report) })
}

func (a *app) pairs(c *cli.Context) error {
	f, err := parseFilter(c)
	if err != nil {
		return err
	}
	p, data, err := a.load(c)
	if err != nil {
		return err
	}
	signals := f.Apply(data.Signals, p.Now())

	if pair := c.String("pair"); pair != "" {
		names := services.ParsePairList(pair)
		if len(names) != 1 {
			return fmt.Errorf("--pair takes a single pair")
		}
		profile, ok := services.CalculatePairProfile(signals, names[0])
		if !ok {
			return fmt.Errorf("no signals for pair %s", names[0])
		}
		return a.render(c, profile, func(w io.Writer) { writeProfile(w, profile) })
	}

	if c.Bool("top") {
		analytics := p.Analytics()
		minTrades, limit := analytics.TopPerformersMinTrades, analytics.TopPerformersLimit
		if c.IsSet("min-trades") {
			minTrades = c.Int("min-trades")
		}
		if c.IsSet("limit") {
			limit = c.Int("limit")
		}
		by, err := services.ParseTopPerformerSort(c.String("sort"))
		if err != nil {
			return err
		}
		top := services.CalculateTopPerformers(signals, minTrades, limit, by)
		return a.render(c, top, func(w io.Writer) { writeTopPerformers(w, top) })
	}

	metrics := services.CalculatePairMetrics(signals)
	return a.render(c, metrics, func(w io.Writer) { writePairs(w, metrics) })
}

func (a *app) trend(c *cli.Context) error {
	f, err := parseFilter(c)
	if err != nil {
		return err
	}
	p, data, err := a.load(c)
	if err != nil {
		return err
	}
	report := p.BuildTrendReport(data, f)
	return a.render(c, report, func(w io.Writer) { writeTrend(w, report) })
}

func (a *app) quality(c *cli.Context) error {
	p, data, err := a.load(c)
	if err != nil {
		return err
	}
	report := p.BuildQualityReport(data, p.Now())
	return a.render(c, report, func(w io.Writer) { writeQuality(w, report) })
}

func (a *app) export(c *cli.Context) error {
	format, err := services.ParseFormat(c.String("format"))
	if err != nil {
		return err
	}
	f, err := parseFilter(c)
	if err != nil {
		return err
	}
	p, data, err := a.load(c)
	if err != nil {
		return err
	}
	signals := f.Apply(data.Signals, p.Now())

	path := c.String("output")
	if path == "-" {
		return p.Exporter().Write(a.out, format, signals)
	}
	if path == "" {
		path = services.ExportFileName(format, p.Now())
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := p.Exporter().Write(file, format, signals); err != nil {
		_ = file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	fmt.Fprintf(a.out, "Exported %d signals to %s\n", len(signals), path)
	return nil
}
