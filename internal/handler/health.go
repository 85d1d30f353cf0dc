package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"cors-relay/internal/config"
)

// Version is a string type for dependency injection of the build version.
type Version string

// HealthHandler serves health and status endpoints on the admin listener.
type HealthHandler struct {
	cfg     *config.Config
	version Version
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(cfg *config.Config, v Version) *HealthHandler {
	return &HealthHandler{cfg: cfg, version: v}
}

// Healthz returns a simple OK response for liveness probes.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// statusResponse is the body of /relay/status.
type statusResponse struct {
	Status             string `json:"status"`
	Version            string `json:"version"`
	Listen             string `json:"listen"`
	UpstreamURL        string `json:"upstream_url"`
	InsecureSkipVerify bool   `json:"insecure_skip_verify"`
}

// Status returns relay status information.
func (h *HealthHandler) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, statusResponse{
		Status:             "ok",
		Version:            string(h.version),
		Listen:             h.cfg.Server.Addr(),
		UpstreamURL:        h.cfg.Upstream.BaseURL(),
		InsecureSkipVerify: h.cfg.Upstream.SkipVerify(),
	})
}
