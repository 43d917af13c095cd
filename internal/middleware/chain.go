package middleware

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/wangpzi/apoolo-workers/internal/config"
	"github.com/wangpzi/apoolo-workers/internal/metrics"
)

// Install adds the gateway middleware chain to e. CORS sits ahead of every
// middleware that can reject a request, so 413 and 429 responses carry it.
func Install(e *echo.Echo, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) {
	e.Use(echomw.Recover())
	e.Use(RequestLogger(logger))
	if cfg.Metrics.Enabled {
		e.Use(RequestMetrics(m))
	}
	e.Use(CORS())
	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(echomw.BodyLimit(fmt.Sprintf("%dB", cfg.Server.BodyMaxBytes)))
	e.Use(SecurityHeaders())

	if cfg.Server.RateLimit.Enabled {
		store := echomw.NewRateLimiterMemoryStore(rate.Limit(cfg.Server.RateLimit.RequestsPerSecond))
		e.Use(echomw.RateLimiter(store))
		logger.Info("rate limiter enabled", "rps", cfg.Server.RateLimit.RequestsPerSecond)
	}
}
