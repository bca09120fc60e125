package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/luxquanttrade/luxquant-analyze-app/internal/cache"
	"github.com/luxquanttrade/luxquant-analyze-app/internal/database"
	"github.com/luxquanttrade/luxquant-analyze-app/internal/logging"
	"github.com/luxquanttrade/luxquant-analyze-app/internal/middleware"
	"github.com/luxquanttrade/luxquant-analyze-app/internal/models"
	"github.com/luxquanttrade/luxquant-analyze-app/internal/services"
)

// ConnectionChecker reports the reachability of the source database.
type ConnectionChecker func(ctx context.Context) models.ConnectionStatus

// AnalysisHandler serves the analysis reports. Every request runs the
// pipeline over the cached raw load; filters are request scoped.
type AnalysisHandler struct {
	processor  *services.SignalProcessor
	cache      *cache.SnapshotCache
	connection ConnectionChecker
	logger     logging.Logger
}

// NewAnalysisHandler creates the analysis handler. snapshotCache and
// connection may be nil.
func NewAnalysisHandler(processor *services.SignalProcessor, snapshotCache *cache.SnapshotCache, connection ConnectionChecker, logger logging.Logger) *AnalysisHandler {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &AnalysisHandler{
		processor:  processor,
		cache:      snapshotCache,
		connection: connection,
		logger:     logger.WithComponent("analysis_handler"),
	}
}

// SignalsResponse is the body of GET /api/v1/signals.
type SignalsResponse struct {
	Count   int         `json:"count"`
	Filter  string      `json:"time_range"`
	Signals interface{} `json:"signals"`
}

// RollingResponse is the body of GET /api/v1/winrate/rolling.
type RollingResponse struct {
	Window int                          `json:"window"`
	Points []models.RollingWinratePoint `json:"points"`
}

// filterFromQuery reads the shared filter query parameters.
func filterFromQuery(c *gin.Context) (services.Filter, error) {
	return services.ParseFilter(services.FilterParams{
		TimeRange:   c.Query("time_range"),
		DateFrom:    c.Query("date_from"),
		DateTo:      c.Query("date_to"),
		Pairs:       c.Query("pairs"),
		Granularity: c.Query("granularity"),
		ShowMA:      c.Query("show_ma"),
		Outcomes:    c.Query("outcomes"),
		RRMin:       c.Query("rr_min"),
		RRMax:       c.Query("rr_max"),
	})
}

// intQuery parses an optional positive integer parameter.
func intQuery(c *gin.Context, name string, fallback int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer (got %q)", name, raw)
	}
	return v, nil
}

// load runs the pipeline and answers the request itself on failure.
func (h *AnalysisHandler) load(c *gin.Context) (*services.ProcessedData, bool) {
	data, err := h.processor.Load(c.Request.Context())
	if err == nil {
		return data, true
	}

	middleware.RecordError(c, err)
	if errors.Is(err, services.ErrNoSource) {
		respondError(c, http.StatusServiceUnavailable, err.Error(), database.HintFor(database.CategoryConfiguration))
		return nil, false
	}
	ce := database.ClassifyError(err)
	h.logger.WithRequestID(middleware.RequestIDFrom(c)).WithError(err).WithFields(map[string]interface{}{
		"category": ce.Category,
	}).Warn("Failed to load signal source")
	respondError(c, http.StatusServiceUnavailable, "signal source unavailable", ce.Hint)
	return nil, false
}

// loadFiltered parses the filter, loads and applies it.
func (h *AnalysisHandler) loadFiltered(c *gin.Context) (*services.ProcessedData, services.Filter, []models.Signal, bool) {
	f, err := filterFromQuery(c)
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error(), "")
		return nil, f, nil, false
	}
	data, ok := h.load(c)
	if !ok {
		return nil, f, nil, false
	}
	return data, f, f.Apply(data.Signals, h.processor.Now()), true
}

// GetConnection handles GET /api/v1/connection.
func (h *AnalysisHandler) GetConnection(c *gin.Context) {
	if h.connection == nil {
		respondError(c, http.StatusServiceUnavailable, "connection check is not configured", database.HintFor(database.CategoryConfiguration))
		return
	}
	respondSuccess(c, http.StatusOK, h.connection(c.Request.Context()))
}

// GetSignals handles GET /api/v1/signals. view=record drops price levels.
func (h *AnalysisHandler) GetSignals(c *gin.Context) {
	_, f, signals, ok := h.loadFiltered(c)
	if !ok {
		return
	}
	resp := SignalsResponse{Count: len(signals), Filter: string(f.TimeRange), Signals: signals}
	switch c.DefaultQuery("view", "table") {
	case "table":
	case "record":
		resp.Signals = services.SignalRecords(signals)
	default:
		respondError(c, http.StatusBadRequest, "view must be table or record", "")
		return
	}
	respondSuccess(c, http.StatusOK, resp)
}

// GetSummary handles GET /api/v1/summary.
func (h *AnalysisHandler) GetSummary(c *gin.Context) {
	f, err := filterFromQuery(c)
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error(), "")
		return
	}
	data, ok := h.load(c)
	if !ok {
		return
	}
	respondSuccess(c, http.StatusOK, h.processor.BuildSummaryReport(data, f))
}

// GetPairs handles GET /api/v1/pairs.
func (h *AnalysisHandler) GetPairs(c *gin.Context) {
	_, _, signals, ok := h.loadFiltered(c)
	if !ok {
		return
	}
	respondSuccess(c, http.StatusOK, services.CalculatePairMetrics(signals))
}

// GetPairProfile handles GET /api/v1/pairs/:pair.
func (h *AnalysisHandler) GetPairProfile(c *gin.Context) {
	pairs := services.ParsePairList(c.Param("pair"))
	if len(pairs) != 1 {
		respondError(c, http.StatusBadRequest, "a single pair is required", "")
		return
	}
	_, _, signals, ok := h.loadFiltered(c)
	if !ok {
		return
	}
	profile, found := services.CalculatePairProfile(signals, pairs[0])
	if !found {
		respondError(c, http.StatusNotFound, fmt.Sprintf("no signals for pair %s", pairs[0]), "")
		return
	}
	respondSuccess(c, http.StatusOK, profile)
}

// GetTopPerformers handles GET /api/v1/top-performers.
func (h *AnalysisHandler) GetTopPerformers(c *gin.Context) {
	analytics := h.processor.Analytics()
	minTrades, err := intQuery(c, "min_trades", analytics.TopPerformersMinTrades)
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error(), "")
		return
	}
	limit, err := intQuery(c, "limit", analytics.TopPerformersLimit)
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error(), "")
		return
	}
	by, err := services.ParseTopPerformerSort(c.Query("sort"))
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error(), "")
		return
	}
	_, _, signals, ok := h.loadFiltered(c)
	if !ok {
		return
	}
	respondSuccess(c, http.StatusOK, services.CalculateTopPerformers(signals, minTrades, limit, by))
}

// GetPeriodWinrates handles GET /api/v1/winrate/periods.
func (h *AnalysisHandler) GetPeriodWinrates(c *gin.Context) {
	_, f, signals, ok := h.loadFiltered(c)
	if !ok {
		return
	}
	respondSuccess(c, http.StatusOK, h.processor.Winrate().PeriodWinrates(signals, f.Granularity, f.ShowMA))
}

// GetRollingWinrate handles GET /api/v1/winrate/rolling.
func (h *AnalysisHandler) GetRollingWinrate(c *gin.Context) {
	window, err := intQuery(c, "window", h.processor.Winrate().RollingWindow())
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error(), "")
		return
	}
	_, _, signals, ok := h.loadFiltered(c)
	if !ok {
		return
	}
	respondSuccess(c, http.StatusOK, RollingResponse{
		Window: window,
		Points: h.processor.Winrate().RollingWinrate(signals, window),
	})
}

// GetTrend handles GET /api/v1/winrate/trend.
func (h *AnalysisHandler) GetTrend(c *gin.Context) {
	f, err := filterFromQuery(c)
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error(), "")
		return
	}
	data, ok := h.load(c)
	if !ok {
		return
	}
	respondSuccess(c, http.StatusOK, h.processor.BuildTrendReport(data, f))
}

// GetRRDistribution handles GET /api/v1/rr-distribution.
func (h *AnalysisHandler) GetRRDistribution(c *gin.Context) {
	_, _, signals, ok := h.loadFiltered(c)
	if !ok {
		return
	}
	respondSuccess(c, http.StatusOK, services.CalculateRRDistribution(signals))
}

// GetQuality handles GET /api/v1/quality. Filters do not apply.
func (h *AnalysisHandler) GetQuality(c *gin.Context) {
	data, ok := h.load(c)
	if !ok {
		return
	}
	respondSuccess(c, http.StatusOK, h.processor.BuildQualityReport(data, h.processor.Now()))
}

// Export handles GET /api/v1/export and streams the filtered signals as an
// attachment.
func (h *AnalysisHandler) Export(c *gin.Context) {
	format, err := services.ParseFormat(c.Query("format"))
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error(), "format must be csv or json")
		return
	}
	_, _, signals, ok := h.loadFiltered(c)
	if !ok {
		return
	}

	contentType := "text/csv; charset=utf-8"
	if format == services.FormatJSON {
		contentType = "application/json; charset=utf-8"
	}
	name := services.ExportFileName(format, h.processor.Now())
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	c.Header("Content-Type", contentType)
	c.Status(http.StatusOK)
	if err := h.processor.Exporter().Write(c.Writer, format, signals); err != nil {
		middleware.RecordError(c, err)
		h.logger.WithRequestID(middleware.RequestIDFrom(c)).WithError(err).Error("Failed to write export")
		return
	}
	h.logger.WithFields(map[string]interface{}{
		"format":  format,
		"signals": len(signals),
	}).Debug("Exported signals")
}

// RefreshCache handles POST /api/v1/cache/refresh.
func (h *AnalysisHandler) RefreshCache(c *gin.Context) {
	if h.cache == nil {
		respondSuccess(c, http.StatusOK, gin.H{"invalidated": 0})
		return
	}
	n, err := h.cache.Invalidate(c.Request.Context())
	if err != nil {
		middleware.RecordError(c, err)
		respondError(c, http.StatusServiceUnavailable, "failed to invalidate cache", "Check the Redis connection.")
		return
	}
	h.logger.WithFields(map[string]interface{}{"invalidated": n}).Info("Snapshot cache invalidated")
	respondSuccess(c, http.StatusOK, gin.H{"invalidated": n})
}
