package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jo-hoe/bannerforge/internal/backend"
	"github.com/jo-hoe/bannerforge/internal/common"
	"github.com/jo-hoe/bannerforge/internal/core"
	"github.com/jo-hoe/bannerforge/internal/frontend"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API and web interface",
		Example: `  # Use config.yaml from the working directory
  bannerforge serve

  # Use an explicit config file
  bannerforge serve --config /etc/bannerforge/config.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := core.ConfigPath(configPath)
			if err != nil {
				return err
			}
			config, err := core.LoadConfig(path)
			if err != nil {
				return fmt.Errorf("failed to load config from %s: %w", path, err)
			}

			coreService, err := core.NewCoreService(cmd.Context(), config)
			if err != nil {
				return err
			}
			defer func() {
				if err := coreService.Close(); err != nil {
					slog.Error("core service close error", "error", err)
				}
			}()

			server := defineServer()
			limiter := backend.NewGenerationLimiter(config.Generation.RateLimit.Interval, config.Generation.RateLimit.Burst)
			backend.NewAPIService(config, coreService, limiter).SetRoutes(server)
			frontend.NewFrontendService(config, coreService, limiter).SetRoutes(server)
			if root, ok := coreService.ObjectRoot(); ok {
				server.Static(core.ObjectsRoute, root)
			}

			return run(cmd.Context(), server, fmt.Sprintf(":%d", config.Port))
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to the YAML config (defaults to $CONFIG_PATH, then ./config.yaml)")

	return cmd
}

// run serves until ctx is cancelled or the listener fails.
func run(ctx context.Context, server *echo.Echo, address string) error {
	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		slog.Info("bannerforge available", "addr", address)
		if err := server.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		<-ctx.Done()
		slog.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		return nil
	})

	return group.Wait()
}

func defineServer() *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			return c.Path() == backend.HealthRoute
		},
		LogStatus:    true,
		LogLatency:   true,
		LogMethod:    true,
		LogURI:       true,
		LogError:     true,
		LogRemoteIP:  true,
		LogRoutePath: true,
		HandleError:  false,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"route", v.RoutePath,
				"status", v.Status,
				"latency", v.Latency,
				"remote_ip", v.RemoteIP,
			}
			if v.Error != nil {
				slog.Error("request failed", append(attrs, "error", v.Error)...)
				return nil
			}
			slog.Info("request", attrs...)
			return nil
		},
	}))

	e.Use(middleware.Recover())
	e.Pre(middleware.RemoveTrailingSlash())

	e.Validator = common.NewGenericEchoValidator()

	return e
}
