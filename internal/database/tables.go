package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/luxquanttrade/luxquant-analyze-app/internal/logging"
	"github.com/luxquanttrade/luxquant-analyze-app/internal/models"
	"github.com/luxquanttrade/luxquant-analyze-app/internal/observability"
)

// ErrTableNotFound is returned when no candidate of a logical table exists.
var ErrTableNotFound = errors.New("table not found")

// TableMappings lists the physical table names accepted for each logical
// table, in preference order.
var TableMappings = map[string][]string{
	models.TableSignals: {"signals", "signal", "trading_signals"},
	models.TableUpdates: {"signal_updates", "updates", "signal_update_log"},
	models.TableFills:   {"executions", "fills", "signal_fills"},
}

// logicalTables fixes the load order.
var logicalTables = []string{models.TableSignals, models.TableUpdates, models.TableFills}

const (
	listPostgresTablesQuery = `SELECT table_name FROM information_schema.tables WHERE table_schema = $1 ORDER BY table_name`
	listSQLiteTablesQuery   = `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`
	postgresSchema          = "public"
)

// ListTables returns the user tables visible in the source schema.
func ListTables(ctx context.Context, q Querier, driver DBType) ([]string, error) {
	var (
		rows Rows
		err  error
	)
	if driver == DBTypeSQLite {
		rows, err = q.Query(ctx, listSQLiteTablesQuery)
	} else {
		rows, err = q.Query(ctx, listPostgresTablesQuery, postgresSchema)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	tables := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	return tables, nil
}

// ResolveTable picks the first candidate of a logical table present in
// available.
func ResolveTable(logical string, available []string) (string, error) {
	present := make(map[string]struct{}, len(available))
	for _, t := range available {
		present[t] = struct{}{}
	}
	for _, candidate := range TableMappings[logical] {
		if _, ok := present[candidate]; ok {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrTableNotFound, logical)
}

// LoadTable reads every row of name into a RawTable.
func LoadTable(ctx context.Context, q Querier, name string) (*models.RawTable, error) {
	query := "SELECT * FROM " + pgx.Identifier{name}.Sanitize()
	rows, err := q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query table %s: %w", name, err)
	}
	defer rows.Close()

	columns, err := rows.ColumnNames()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", name, err)
	}

	table := &models.RawTable{Name: name, Columns: columns, Rows: make([][]any, 0)}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to read row of %s: %w", name, err)
		}
		row := make([]any, len(values))
		for i, v := range values {
			row[i] = NormalizeValue(v)
		}
		table.Rows = append(table.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read table %s: %w", name, err)
	}
	return table, nil
}

// SnapshotLoader reads the mapped tables of a source database.
type SnapshotLoader struct {
	db     Database
	logger logging.Logger
	now    func() time.Time
}

// NewSnapshotLoader creates a loader over db.
func NewSnapshotLoader(db Database, logger logging.Logger) *SnapshotLoader {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &SnapshotLoader{
		db:     db,
		logger: logger.WithComponent("snapshot_loader"),
		now:    time.Now,
	}
}

// Load lists the source tables and reads each mapped one. A table that
// fails to load is logged and skipped; a failure to list tables is fatal.
func (l *SnapshotLoader) Load(ctx context.Context) (*models.SourceSnapshot, error) {
	ctx, span := observability.StartSpan(ctx, observability.SpanOpDBQuery, "load source snapshot")

	available, err := ListTables(ctx, l.db, l.db.Driver())
	if err != nil {
		observability.FinishSpan(span, err)
		return nil, err
	}

	snapshot := &models.SourceSnapshot{
		Available: available,
		Tables:    make(map[string]*models.RawTable),
		LoadedAt:  l.now().UTC(),
	}

	for _, logical := range logicalTables {
		name, err := ResolveTable(logical, available)
		if err != nil {
			l.logger.WithFields(map[string]interface{}{"table": logical}).Debug("Logical table not present in source")
			continue
		}
		table, err := LoadTable(ctx, l.db, name)
		if err != nil {
			l.logger.WithError(err).WithFields(map[string]interface{}{"table": name}).Warn("Failed to load table; skipping")
			continue
		}
		snapshot.Tables[logical] = table
		l.logger.WithFields(map[string]interface{}{
			"table": name,
			"rows":  table.Len(),
		}).Debug("Loaded table")
	}

	observability.FinishSpan(span, nil)
	return snapshot, nil
}
