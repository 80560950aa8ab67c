// Command vakitd keeps prayer notifications scheduled for the configured
// location and serves a loopback status API.
//
// Usage:
//
//	vakitd
//	LATITUDE=41.01 LONGITUDE=28.98 STATUS_ADDR=127.0.0.1:8787 vakitd
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/albapepper/vakit/internal/api"
	"github.com/albapepper/vakit/internal/api/handler"
	"github.com/albapepper/vakit/internal/app"
	"github.com/albapepper/vakit/internal/config"
)

func main() {
	// Load .env if present
	_ = godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	// Context with signal handling
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfg, nil, logger)
	if err != nil {
		logger.Error("Failed to initialize", "error", err)
		os.Exit(1)
	}
	defer a.Close()
	logger.Info("Initialized",
		"store", cfg.StoreBackend,
		"timezone", cfg.Timezone.String(),
		"location", cfg.HasLocation,
		"diyanet", a.Diyanet != nil)

	// Arm alerts immediately, then keep them fresh on tickers.
	a.Runner.Replan(ctx)
	go a.Runner.Start(ctx, a.Maintenance())

	var srv *http.Server
	if cfg.StatusAddr != "" {
		h := handler.New(handler.Deps{
			Timings:   a.Timings,
			Settings:  a.Settings,
			Locator:   a.Locator,
			Replanner: a.Replanner,
			Alerts:    a.Scheduler,
			Mosques:   a.Mosques,
			Store:     a.Store,
		}, logger)
		srv = &http.Server{
			Addr:         cfg.StatusAddr,
			Handler:      api.NewRouter(h, cfg),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		go func() {
			logger.Info("Starting status server",
				"addr", cfg.StatusAddr,
				"environment", cfg.Environment,
				"docs", "http://"+cfg.StatusAddr+"/docs/")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Status server failed", "error", err)
				cancel()
			}
		}()
	}

	// Wait for interrupt
	<-ctx.Done()
	logger.Info("Shutting down...")

	if srv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Shutdown error", "error", err)
		}
	}
	logger.Info("Stopped")
}
