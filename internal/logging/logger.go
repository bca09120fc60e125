// Package logging provides the structured logger used across the analyzer.
package logging

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the contextual logging surface handed to services and handlers.
type Logger interface {
	WithService(service string) Logger
	WithComponent(component string) Logger
	WithOperation(operation string) Logger
	WithRequestID(requestID string) Logger
	WithPair(pair string) Logger
	WithError(err error) Logger
	WithFields(fields map[string]interface{}) Logger
	WithMetrics(metrics map[string]interface{}) Logger

	Debug(msg string)
	Info(msg string)
	Warn(msg string)
	Error(msg string)
	Fatal(msg string)

	LogStartup(service, version string, port int)
	LogShutdown(service, reason string)
	LogAPIRequest(method, path string, status int, durationMs int64, requestID string)
}

// StandardLogger implements Logger on top of zap.
type StandardLogger struct {
	logger *zap.Logger
}

var _ Logger = (*StandardLogger)(nil)

// NewStandardLogger builds a zap logger for the given level and environment.
// Production uses JSON output; anything else uses the console encoder.
func NewStandardLogger(level, environment string) *StandardLogger {
	var cfg zap.Config
	if strings.EqualFold(environment, "production") {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.Level = zap.NewAtomicLevelAt(getZapLevel(level))
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		logger = zap.New(zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			zapcore.Lock(os.Stderr),
			getZapLevel(level),
		))
	}
	return &StandardLogger{logger: logger}
}

// NewStandardLoggerFromZap wraps an existing zap logger.
func NewStandardLoggerFromZap(logger *zap.Logger) *StandardLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StandardLogger{logger: logger}
}

// NewNopLogger returns a logger that discards everything.
func NewNopLogger() *StandardLogger {
	return &StandardLogger{logger: zap.NewNop()}
}

// Logger exposes the underlying zap logger.
func (l *StandardLogger) Logger() *zap.Logger {
	return l.logger
}

// Sync flushes buffered entries.
func (l *StandardLogger) Sync() error {
	return l.logger.Sync()
}

func getZapLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

func (l *StandardLogger) with(fields ...zap.Field) Logger {
	return &StandardLogger{logger: l.logger.With(fields...)}
}

func (l *StandardLogger) WithService(service string) Logger {
	return l.with(zap.String("service", service))
}

func (l *StandardLogger) WithComponent(component string) Logger {
	return l.with(zap.String("component", component))
}

func (l *StandardLogger) WithOperation(operation string) Logger {
	return l.with(zap.String("operation", operation))
}

func (l *StandardLogger) WithRequestID(requestID string) Logger {
	return l.with(zap.String("request_id", requestID))
}

func (l *StandardLogger) WithPair(pair string) Logger {
	return l.with(zap.String("pair", pair))
}

func (l *StandardLogger) WithError(err error) Logger {
	if err == nil {
		return l
	}
	return l.with(zap.String("error", err.Error()))
}

func (l *StandardLogger) WithFields(fields map[string]interface{}) Logger {
	zf := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		zf = append(zf, zap.Any(k, v))
	}
	return l.with(zf...)
}

// WithMetrics nests the metrics under a single "metrics" key.
func (l *StandardLogger) WithMetrics(metrics map[string]interface{}) Logger {
	return l.with(zap.Any("metrics", metrics))
}

func (l *StandardLogger) Debug(msg string) { l.logger.Debug(msg) }
func (l *StandardLogger) Info(msg string)  { l.logger.Info(msg) }
func (l *StandardLogger) Warn(msg string)  { l.logger.Warn(msg) }
func (l *StandardLogger) Error(msg string) { l.logger.Error(msg) }
func (l *StandardLogger) Fatal(msg string) { l.logger.Fatal(msg) }

func (l *StandardLogger) LogStartup(service, version string, port int) {
	l.logger.Info("Service starting",
		zap.String("event", "startup"),
		zap.String("service", service),
		zap.String("version", version),
		zap.Int("port", port),
	)
}

func (l *StandardLogger) LogShutdown(service, reason string) {
	l.logger.Info("Service shutting down",
		zap.String("event", "shutdown"),
		zap.String("service", service),
		zap.String("reason", reason),
	)
}

func (l *StandardLogger) LogAPIRequest(method, path string, status int, durationMs int64, requestID string) {
	fields := []zap.Field{
		zap.String("event", "api_request"),
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", status),
		zap.Int64("duration_ms", durationMs),
	}
	if requestID != "" {
		fields = append(fields, zap.String("request_id", requestID))
	}

	switch {
	case status >= 500:
		l.logger.Error("API request", fields...)
	case status >= 400:
		l.logger.Warn("API request", fields...)
	default:
		l.logger.Info("API request", fields...)
	}
}
