package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
	"github.com/luxquanttrade/luxquant-analyze-app/internal/logging"
)

// Telemetry attaches a Sentry hub to each request. Panics are re-raised so
// that Recovery can answer them.
func Telemetry() gin.HandlerFunc {
	return sentrygin.New(sentrygin.Options{
		Repanic:         true,
		WaitForDelivery: false,
		Timeout:         2 * time.Second,
	})
}

// Recovery turns a panic into a 500 envelope, logs it and reports it to
// Sentry when a hub is attached.
func Recovery(logger logging.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			err, ok := r.(error)
			if !ok {
				err = fmt.Errorf("%v", r)
			}
			if hub := sentrygin.GetHubFromContext(c); hub != nil {
				hub.RecoverWithContext(c.Request.Context(), r)
			}
			logger.WithRequestID(RequestIDFrom(c)).WithError(err).WithFields(map[string]interface{}{
				"path": c.Request.URL.Path,
			}).Error("Recovered from panic")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"status": "error",
				"error":  "internal server error",
			})
		}()
		c.Next()
	}
}

// RecordError reports err on the request's Sentry hub and marks the
// running transaction as failed.
func RecordError(c *gin.Context, err error) {
	hub := sentrygin.GetHubFromContext(c)
	if hub == nil || err == nil {
		return
	}
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("path", c.FullPath())
		scope.SetTag("request_id", RequestIDFrom(c))
		hub.CaptureException(err)
	})
	if tx := sentry.TransactionFromContext(c.Request.Context()); tx != nil {
		tx.Status = sentry.SpanStatusUnavailable
	}
}

// AccessLog logs one line per request once it completes.
func AccessLog(logger logging.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if c.Request.URL.Path == "/health" {
			return
		}
		logger.LogAPIRequest(c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start).Milliseconds(), RequestIDFrom(c))
	}
}
