// Package server builds the Echo instances behind the relay and admin listeners.
package server

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"cors-relay/internal/config"
	"cors-relay/internal/metrics"
	"cors-relay/internal/middleware"
)

// NewRelay builds the relay listener. Middleware order matters: CORS runs
// before anything that can reject a request, so every response carries it.
func NewRelay(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *echo.Echo {
	e := newEcho()

	// "OPTIONS *" goes through the middleware chain instead of net/http's
	// built-in reply, so it gets the CORS headers too.
	e.Server.DisableGeneralOptionsHandler = true

	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(logger))
	e.Use(middleware.MetricsMiddleware(m))
	e.Use(middleware.CORS())

	if cfg.Server.BodyMaxBytes > 0 {
		e.Use(echomw.BodyLimit(fmt.Sprintf("%dB", cfg.Server.BodyMaxBytes)))
	}

	if cfg.Server.RateLimit.Enabled {
		store := echomw.NewRateLimiterMemoryStore(rate.Limit(cfg.Server.RateLimit.RequestsPerSecond))
		e.Use(echomw.RateLimiter(store))
		logger.Info("rate limiter enabled", "rps", cfg.Server.RateLimit.RequestsPerSecond)
	}

	return e
}

// NewAdmin builds the admin listener for health, status and metrics.
func NewAdmin() *echo.Echo {
	e := newEcho()
	e.Use(echomw.Recover())
	return e
}

func newEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Inbound timeouts to mitigate slow-client attacks.
	e.Server.ReadHeaderTimeout = 10 * time.Second
	// ReadTimeout and WriteTimeout stay disabled so large uploads and
	// long-running streamed responses are never cut off.
	e.Server.ReadTimeout = 0
	e.Server.WriteTimeout = 0
	e.Server.IdleTimeout = 120 * time.Second

	return e
}
