package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/getsentry/sentry-go"
	"github.com/luxquanttrade/luxquant-analyze-app/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitSentry_DisabledIsNoop(t *testing.T) {
	assert.NoError(t, InitSentry(config.SentryConfig{Enabled: false, DSN: "https://key@example.com/1"}, "dev", "test"))
	assert.NoError(t, InitSentry(config.SentryConfig{Enabled: true}, "dev", "test"))
}

func TestInitSentry_InvalidDSN(t *testing.T) {
	err := InitSentry(config.SentryConfig{Enabled: true, DSN: "not a dsn"}, "dev", "test")
	assert.Error(t, err)
}

func TestSpanHelpers(t *testing.T) {
	require.NoError(t, sentry.Init(sentry.ClientOptions{Dsn: ""}))

	ctx, span := StartSpan(context.Background(), SpanOpDBQuery, "load signals")
	require.NotNil(t, span)
	assert.Equal(t, "load signals", span.Description)
	assert.NotNil(t, ctx)

	FinishSpan(span, errors.New("boom"))
	assert.Equal(t, sentry.SpanStatusInternalError, span.Status)

	_, ok := StartSpan(context.Background(), SpanOpCache, "get")
	FinishSpan(ok, nil)
	assert.Equal(t, sentry.SpanStatusOK, ok.Status)

	assert.NotPanics(t, func() {
		FinishSpan(nil, nil)
		CaptureException(context.Background(), nil)
		CaptureException(context.Background(), context.Canceled)
		CaptureException(context.Background(), errors.New("x"))
		AddBreadcrumb(context.Background(), "pipeline", "loaded", sentry.LevelInfo)
		Flush(context.Background())
	})
}
