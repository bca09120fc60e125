package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/luxquanttrade/luxquant-analyze-app/internal/config"
	"github.com/luxquanttrade/luxquant-analyze-app/internal/models"
)

// Connection error categories.
const (
	CategoryTimeout         = "timeout"
	CategoryAuthentication  = "authentication"
	CategoryUnreachable     = "unreachable"
	CategorySSL             = "ssl"
	CategoryDatabaseMissing = "database_missing"
	CategoryConfiguration   = "configuration"
	CategoryUnknown         = "unknown"
)

var categoryHints = map[string]string{
	CategoryTimeout:         "The database did not answer in time. Check the network path or tunnel and consider raising database.connect_timeout.",
	CategoryAuthentication:  "Authentication failed. Verify the user name and password in DATABASE_URL or the secrets file.",
	CategoryUnreachable:     "The database host could not be reached. Verify host and port and that the server is running.",
	CategorySSL:             "The SSL handshake failed. Remote hosts require sslmode=require; check certificates or the server's SSL support.",
	CategoryDatabaseMissing: "The database does not exist. Verify the database name in the connection URL.",
	CategoryConfiguration:   "The database is not configured. Set DATABASE_URL or database.connection_url in the secrets file.",
	CategoryUnknown:         "Unexpected database error. Check the server logs for details.",
}

// ConnectionError is a driver error annotated with a category and a
// remediation hint.
type ConnectionError struct {
	Category string
	Hint     string
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s: %v", e.Category, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// HintFor returns the remediation hint of a category.
func HintFor(category string) string {
	if h, ok := categoryHints[category]; ok {
		return h
	}
	return categoryHints[CategoryUnknown]
}

// ClassifyError wraps err in a ConnectionError. An error that already is a
// ConnectionError is returned as is. Nil stays nil.
func ClassifyError(err error) *ConnectionError {
	if err == nil {
		return nil
	}
	var ce *ConnectionError
	if errors.As(err, &ce) {
		return ce
	}
	category := categorize(err)
	return &ConnectionError{Category: category, Hint: HintFor(category), Err: err}
}

func categorize(err error) string {
	if errors.Is(err, config.ErrNoDatabaseURL) || errors.Is(err, ErrUnsupportedDriver) {
		return CategoryConfiguration
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTimeout
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "timeout", "timed out", "deadline exceeded"):
		return CategoryTimeout
	case strings.Contains(msg, "password authentication failed"),
		strings.Contains(msg, "role") && strings.Contains(msg, "does not exist"),
		strings.Contains(msg, "authentication"):
		return CategoryAuthentication
	case strings.Contains(msg, "database") && strings.Contains(msg, "does not exist"):
		return CategoryDatabaseMissing
	case containsAny(msg, "connection refused", "no such host", "could not connect", "unreachable"):
		return CategoryUnreachable
	case containsAny(msg, "ssl", "tls", "certificate"):
		return CategorySSL
	default:
		return CategoryUnknown
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// CheckConnection pings db and reports the outcome. A nil db with a non-nil
// openErr reports why the connection could not be opened.
func CheckConnection(ctx context.Context, db Database, cfg *config.DatabaseConfig, openErr error) models.ConnectionStatus {
	status := models.ConnectionStatus{
		Driver:    string(DetectDBType(cfg.Driver)),
		URLSource: cfg.URLSource,
		CheckedAt: time.Now().UTC(),
	}
	if status.Driver == string(DBTypeSQLite) {
		status.Target = cfg.SQLitePath
	} else {
		status.Target = config.MaskURL(cfg.DatabaseURL)
	}

	err := openErr
	if err == nil && db == nil {
		err = errors.New("database connection is not initialized")
	}
	if err == nil {
		err = db.HealthCheck(ctx)
	}
	if err == nil {
		status.Connected = true
		return status
	}

	ce := ClassifyError(err)
	status.Category = ce.Category
	status.Hint = ce.Hint
	status.Error = maskCredentials(ce.Err.Error(), cfg)
	return status
}

// maskCredentials removes the configured password from driver messages.
func maskCredentials(msg string, cfg *config.DatabaseConfig) string {
	if cfg.DatabaseURL != "" {
		msg = strings.ReplaceAll(msg, cfg.DatabaseURL, config.MaskURL(cfg.DatabaseURL))
		if pw := config.URLPassword(cfg.DatabaseURL); pw != "" {
			msg = strings.ReplaceAll(msg, pw, "****")
		}
	}
	if cfg.Password != "" {
		msg = strings.ReplaceAll(msg, cfg.Password, "****")
	}
	return msg
}
