package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var errSQLiteNotInitialized = errors.New("sqlite database is not initialized")

// SQLiteDB is a local signal source for offline analysis. The file is opened
// as-is: its journal mode is left to whoever writes it.
type SQLiteDB struct {
	DB   *sql.DB
	Path string
}

var _ Database = (*SQLiteDB)(nil)

// sqliteDSN waits on writer locks and reads DATETIME columns as UTC.
func sqliteDSN(path string) string {
	params := url.Values{}
	params.Set("_busy_timeout", "5000")
	params.Set("_loc", "UTC")
	return "file:" + path + "?" + params.Encode()
}

// NewSQLiteConnection opens and pings the SQLite file at path.
func NewSQLiteConnection(path string) (*SQLiteDB, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("sqlite database path is required")
	}

	db, err := sql.Open("sqlite3", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database %s: %w", path, err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(1)
	db.SetConnMaxIdleTime(time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database %s: %w", path, err)
	}

	return &SQLiteDB{DB: db, Path: path}, nil
}

func (db *SQLiteDB) Driver() DBType { return DBTypeSQLite }

func (db *SQLiteDB) IsReady() bool {
	return db != nil && db.DB != nil
}

func (db *SQLiteDB) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	if !db.IsReady() {
		return nil, errSQLiteNotInitialized
	}
	rows, err := db.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return SQLRows{Rows: rows}, nil
}

func (db *SQLiteDB) QueryRow(ctx context.Context, query string, args ...any) Row {
	if !db.IsReady() {
		return SQLRow{}
	}
	return SQLRow{Row: db.DB.QueryRowContext(ctx, query, args...)}
}

func (db *SQLiteDB) Exec(ctx context.Context, query string, args ...any) (Result, error) {
	if !db.IsReady() {
		return nil, errSQLiteNotInitialized
	}
	res, err := db.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return SQLResult{Result: res}, nil
}

// HealthCheck pings the file.
func (db *SQLiteDB) HealthCheck(ctx context.Context) error {
	if !db.IsReady() {
		return errSQLiteNotInitialized
	}
	return db.DB.PingContext(ctx)
}

// Close is safe to call more than once.
func (db *SQLiteDB) Close() error {
	if !db.IsReady() {
		return nil
	}
	return db.DB.Close()
}
