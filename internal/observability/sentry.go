// Package observability wires Sentry error reporting and tracing spans.
package observability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/luxquanttrade/luxquant-analyze-app/internal/config"
)

// Span operations used by the pipeline.
const (
	SpanOpDBQuery  = "db.query"
	SpanOpCache    = "cache.get"
	SpanOpPipeline = "pipeline.process"
)

// InitSentry configures the global Sentry client. It is a no-op when Sentry
// is disabled or no DSN is set.
func InitSentry(cfg config.SentryConfig, release, environment string) error {
	if !cfg.Enabled || cfg.DSN == "" {
		return nil
	}

	env := cfg.Environment
	if env == "" {
		env = environment
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      env,
		Release:          release,
		EnableTracing:    cfg.TracesSampleRate > 0,
		TracesSampleRate: cfg.TracesSampleRate,
		AttachStacktrace: true,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize sentry: %w", err)
	}
	return nil
}

// Flush waits for buffered events, bounded by ctx or two seconds.
func Flush(ctx context.Context) {
	timeout := 2 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	sentry.Flush(timeout)
}

func hubFromContext(ctx context.Context) *sentry.Hub {
	if hub := sentry.GetHubFromContext(ctx); hub != nil {
		return hub
	}
	return sentry.CurrentHub()
}

// CaptureException reports err on the hub bound to ctx.
func CaptureException(ctx context.Context, err error) {
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	hubFromContext(ctx).CaptureException(err)
}

// AddBreadcrumb records a breadcrumb on the hub bound to ctx.
func AddBreadcrumb(ctx context.Context, category, message string, level sentry.Level) {
	hubFromContext(ctx).AddBreadcrumb(&sentry.Breadcrumb{
		Category:  category,
		Message:   message,
		Level:     level,
		Timestamp: time.Now(),
	}, nil)
}

// StartSpan starts a child span and returns the context carrying it.
func StartSpan(ctx context.Context, operation, description string) (context.Context, *sentry.Span) {
	span := sentry.StartSpan(ctx, operation)
	span.Description = description
	return span.Context(), span
}

// FinishSpan marks the span status from err and finishes it.
func FinishSpan(span *sentry.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.Status = sentry.SpanStatusInternalError
	} else {
		span.Status = sentry.SpanStatusOK
	}
	span.Finish()
}
