package api

import (
	"github.com/gin-gonic/gin"
	"github.com/luxquanttrade/luxquant-analyze-app/internal/api/handlers"
	"github.com/luxquanttrade/luxquant-analyze-app/internal/cache"
	"github.com/luxquanttrade/luxquant-analyze-app/internal/config"
	"github.com/luxquanttrade/luxquant-analyze-app/internal/logging"
	"github.com/luxquanttrade/luxquant-analyze-app/internal/middleware"
	"github.com/luxquanttrade/luxquant-analyze-app/internal/services"
	"github.com/redis/go-redis/v9"
)

// Dependencies are the services the routes are served from. Only
// Processor is required.
type Dependencies struct {
	Config     *config.Config
	Processor  *services.SignalProcessor
	Cache      *cache.SnapshotCache
	DB         handlers.HealthChecker
	Redis      handlers.HealthChecker
	RateRedis  *redis.Client
	Connection handlers.ConnectionChecker
	Logger     logging.Logger
	Version    string
}

// NewRouter builds a gin engine with the global middleware chain and all
// routes registered.
func NewRouter(deps Dependencies) *gin.Engine {
	router := gin.New()
	SetupRoutes(router, deps)
	return router
}

// SetupRoutes installs the middleware chain on router and registers the
// health check and the /api/v1 analysis routes.
func SetupRoutes(router *gin.Engine, deps Dependencies) {
	cfg := deps.Config
	if cfg == nil {
		cfg = &config.Config{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	router.Use(
		middleware.RequestID(),
		middleware.Telemetry(),
		middleware.Recovery(logger),
		middleware.AccessLog(logger),
		middleware.CORS(cfg.Server.AllowedOrigins),
	)
	if cfg.RateLimit.Enabled {
		limiter := middleware.NewRateLimiter(middleware.RateLimitConfigFrom(cfg.RateLimit), deps.RateRedis, logger)
		router.Use(limiter.Middleware())
	}

	healthHandler := handlers.NewHealthHandler(deps.DB, deps.Redis, deps.Cache, deps.Version)
	router.GET("/health", healthHandler.HealthCheck)
	router.HEAD("/health", healthHandler.HealthCheck)
	router.GET("/live", healthHandler.LivenessCheck)

	analysis := handlers.NewAnalysisHandler(deps.Processor, deps.Cache, deps.Connection, logger)
	auth := middleware.NewAuth(cfg.Auth.JWTSecret)

	v1 := router.Group("/api/v1")
	v1.Use(auth.Middleware())
	{
		v1.GET("/connection", analysis.GetConnection)
		v1.GET("/signals", analysis.GetSignals)
		v1.GET("/summary", analysis.GetSummary)
		v1.GET("/pairs", analysis.GetPairs)
		v1.GET("/pairs/:pair", analysis.GetPairProfile)
		v1.GET("/top-performers", analysis.GetTopPerformers)
		v1.GET("/rr-distribution", analysis.GetRRDistribution)
		v1.GET("/quality", analysis.GetQuality)
		v1.GET("/export", analysis.Export)
		v1.POST("/cache/refresh", analysis.RefreshCache)

		winrate := v1.Group("/winrate")
		{
			winrate.GET("/periods", analysis.GetPeriodWinrates)
			winrate.GET("/rolling", analysis.GetRollingWinrate)
			winrate.GET("/trend", analysis.GetTrend)
		}
	}
}
