package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/labstack/echo/v4"
	"go.uber.org/fx"

	"cors-relay/internal/client"
	"cors-relay/internal/config"
	"cors-relay/internal/handler"
	"cors-relay/internal/metrics"
	"cors-relay/internal/server"
	"cors-relay/internal/service"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	var cli config.CLI
	kong.Parse(&cli,
		kong.Name("cors-relay"),
		kong.Description("Plain-HTTP to HTTPS relay that lets a browser reach a self-signed backend."),
		kong.Vars{"version": fmt.Sprintf("%s (%s, %s)", version, commit, date)},
	)

	fx.New(
		fx.Provide(
			func() *config.CLI { return &cli },
			func() handler.Version { return handler.Version(version) },
			config.Load,
			newLogger,
			metrics.New,
			server.NewRelay,
			fx.Annotate(server.NewAdmin, fx.ResultTags(`name:"admin"`)),
			client.NewUpstreamClient,
			service.NewRelayService,
			handler.NewRelayHandler,
			handler.NewHealthHandler,
		),
		fx.Invoke(
			handler.RegisterRoutes,
			fx.Annotate(handler.RegisterAdminRoutes, fx.ParamTags(`name:"admin"`)),
			warnConfigPermissions,
			startServer,
			fx.Annotate(startAdminServer, fx.ParamTags(``, `name:"admin"`)),
		),
	).Run()
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	switch strings.ToLower(cfg.Log.Format) {
	case "text":
		h = slog.NewTextHandler(os.Stdout, opts)
	default:
		h = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(h)
}

func warnConfigPermissions(cfg *config.Config, logger *slog.Logger) {
	cfg.WarnPermissions(logger)
	if cfg.Upstream.SkipVerify() {
		logger.Warn("upstream certificate verification disabled",
			"upstream", cfg.Upstream.BaseURL(),
			"setting", "upstream.insecure_skip_verify",
		)
	}
}

func startServer(lc fx.Lifecycle, e *echo.Echo, cfg *config.Config, logger *slog.Logger) {
	serve(lc, e, cfg.Server.Addr(), logger, func() {
		logger.Info("cors relay listening",
			"local_url", cfg.Server.LocalURL(),
			"addr", cfg.Server.Addr(),
			"upstream", cfg.Upstream.BaseURL(),
		)
	})
}

func startAdminServer(lc fx.Lifecycle, e *echo.Echo, cfg *config.Config, logger *slog.Logger) {
	if !cfg.Admin.Enabled {
		return
	}
	serve(lc, e, cfg.Admin.Addr(), logger, func() {
		logger.Info("admin listening",
			"addr", cfg.Admin.Addr(),
			"metrics", cfg.Metrics.Enabled,
		)
	})
}

// serve binds addr on start, failing start-up if the port is taken, and
// shuts e down on stop.
func serve(lc fx.Lifecycle, e *echo.Echo, addr string, logger *slog.Logger, started func()) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("bind %s: %w", addr, err)
			}
			started()
			go func() {
				if err := e.Server.Serve(ln); err != nil && err != http.ErrServerClosed {
					logger.Error("server error", "addr", addr, "err", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("shutting down server", "addr", addr)
			return e.Shutdown(ctx)
		},
	})
}
