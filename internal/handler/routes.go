// Package handler contains the relay and admin HTTP handlers.
package handler

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cors-relay/internal/config"
	"cors-relay/internal/metrics"
)

// RegisterRoutes sends every method and path on the relay listener to the relay.
func RegisterRoutes(e *echo.Echo, relay *RelayHandler) {
	e.Any("/", relay.Handle)
	e.Any("/*", relay.Handle)
	// Methods outside Any's fixed list would otherwise get 405.
	e.RouteNotFound("/", relay.Handle)
	e.RouteNotFound("/*", relay.Handle)
}

// RegisterAdminRoutes wires health, status and (when enabled) metrics onto
// the admin listener.
func RegisterAdminRoutes(e *echo.Echo, health *HealthHandler, m *metrics.Metrics, cfg *config.Config) {
	e.GET("/healthz", health.Healthz)
	e.GET("/relay/status", health.Status)

	if cfg.Metrics.Enabled {
		e.GET(cfg.Metrics.Path, echo.WrapHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
	}
}
