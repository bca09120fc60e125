package database

import (
	"context"
	"database/sql"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Rows is a driver-neutral result cursor. ColumnNames and Values let the
// loader read tables whose shape is unknown ahead of time.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	ColumnNames() ([]string, error)
	Values() ([]any, error)
	Close()
	Err() error
}

type Row interface {
	Scan(dest ...any) error
}

type Result interface {
	RowsAffected() (int64, error)
}

// Querier is the read surface used by the snapshot loader.
type Querier interface {
	Query(ctx context.Context, query string, args ...any) (Rows, error)
	QueryRow(ctx context.Context, query string, args ...any) Row
}

type DBPool interface {
	Querier
	Exec(ctx context.Context, query string, args ...any) (Result, error)
}

type PgxRows struct{ pgx.Rows }

func (r PgxRows) Scan(dest ...any) error {
	return r.Rows.Scan(dest...)
}

func (r PgxRows) Close() {
	r.Rows.Close()
}

func (r PgxRows) Err() error {
	return r.Rows.Err()
}

func (r PgxRows) Next() bool {
	return r.Rows.Next()
}

func (r PgxRows) ColumnNames() ([]string, error) {
	fields := r.Rows.FieldDescriptions()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	return names, nil
}

func (r PgxRows) Values() ([]any, error) {
	return r.Rows.Values()
}

type PgxRow struct{ pgx.Row }

func (r PgxRow) Scan(dest ...any) error {
	return r.Row.Scan(dest...)
}

type PgxResult struct{ pgconn.CommandTag }

func (r PgxResult) RowsAffected() (int64, error) {
	return r.CommandTag.RowsAffected(), nil
}

type SQLRows struct{ *sql.Rows }

func (r SQLRows) Scan(dest ...any) error {
	return r.Rows.Scan(dest...)
}

func (r SQLRows) Close() {
	_ = r.Rows.Close()
}

func (r SQLRows) Err() error {
	return r.Rows.Err()
}

func (r SQLRows) Next() bool {
	return r.Rows.Next()
}

func (r SQLRows) ColumnNames() ([]string, error) {
	return r.Rows.Columns()
}

// Values scans the current row into untyped destinations.
func (r SQLRows) Values() ([]any, error) {
	cols, err := r.Rows.Columns()
	if err != nil {
		return nil, err
	}
	values := make([]any, len(cols))
	dest := make([]any, len(cols))
	for i := range values {
		dest[i] = &values[i]
	}
	if err := r.Rows.Scan(dest...); err != nil {
		return nil, err
	}
	return values, nil
}

type SQLRow struct{ *sql.Row }

func (r SQLRow) Scan(dest ...any) error {
	if r.Row == nil {
		return sql.ErrConnDone
	}
	return r.Row.Scan(dest...)
}

type SQLResult struct{ sql.Result }

func (r SQLResult) RowsAffected() (int64, error) {
	return r.Result.RowsAffected()
}
