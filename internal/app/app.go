// Package app wires configuration into the running components shared by
// cmd/vakit and cmd/vakitd.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/albapepper/vakit/internal/config"
	"github.com/albapepper/vakit/internal/db"
	"github.com/albapepper/vakit/internal/external"
	"github.com/albapepper/vakit/internal/location"
	"github.com/albapepper/vakit/internal/maintenance"
	"github.com/albapepper/vakit/internal/mosque"
	"github.com/albapepper/vakit/internal/notifications"
	"github.com/albapepper/vakit/internal/provider"
	"github.com/albapepper/vakit/internal/provider/aladhan"
	"github.com/albapepper/vakit/internal/provider/diyanet"
	"github.com/albapepper/vakit/internal/settings"
	"github.com/albapepper/vakit/internal/store"
	"github.com/albapepper/vakit/internal/timings"
)

// App holds the wired components.
type App struct {
	Config    *config.Config
	Store     store.Store
	Settings  *settings.Repository
	Timings   *timings.Service
	Locator   location.Locator
	Scheduler *notifications.LocalScheduler
	Replanner *notifications.Replanner
	Runner    *maintenance.Runner
	Mosques   *mosque.Finder
	Diyanet   *diyanet.Handler // nil unless DIYANET_PROXY_URL is set

	closers []func()
}

// New builds every component from cfg. Call Close when done.
func New(ctx context.Context, cfg *config.Config, deliverer notifications.Deliverer, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg}

	st, err := a.openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Store = st

	clientOpts := provider.ClientOptions{
		Timeout:           cfg.ProviderTimeout,
		RequestsPerMinute: cfg.ProviderRPM,
		UserAgent:         cfg.UserAgent,
	}
	geocoder := external.NewGeocoder(cfg.NominatimBaseURL, cfg.UserAgent, cfg.ProviderTimeout, logger)

	registry := provider.Registry{
		settings.ProviderAladhan: aladhan.NewHandler(cfg.AladhanBaseURL, clientOpts, logger),
	}
	if cfg.DiyanetProxyURL != "" {
		a.Diyanet = diyanet.NewHandler(diyanet.Options{
			BaseURL:     cfg.DiyanetProxyURL,
			ForceCityID: cfg.DiyanetForceCityID,
			Client:      clientOpts,
			Geocoder:    geocoder,
		}, logger)
		registry[settings.ProviderDiyanet] = a.Diyanet
	}

	a.Settings = settings.NewRepository(st, logger)
	a.Timings = timings.NewService(timings.NewResolver(registry, logger), timings.NewRepository(st, logger), cfg.Timezone, logger)
	a.Locator = location.NewStatic(location.Fix{
		Lat:   cfg.Latitude,
		Lon:   cfg.Longitude,
		Label: cfg.LocationLabel,
	}, cfg.HasLocation)

	a.Scheduler = notifications.NewLocalScheduler(cfg.NotificationsGranted, deliverer, logger)
	a.Replanner = notifications.NewReplanner(a.Scheduler, a.Timings, a.Locator, nil, cfg.Timezone, logger)
	a.Runner = maintenance.NewRunner(a.Settings, a.Replanner, a.Timings, a.Locator, cfg.Timezone, logger)

	var source mosque.Source
	if cfg.OverpassURL != "" {
		source = external.NewOverpass(cfg.OverpassURL, cfg.UserAgent, cfg.ProviderTimeout, logger)
	}
	a.Mosques = mosque.NewFinder(source, st, logger)

	return a, nil
}

// Maintenance returns the ticker intervals from configuration.
func (a *App) Maintenance() maintenance.Config {
	mc := maintenance.DefaultConfig()
	mc.ReplanInterval = a.Config.ReplanInterval
	mc.PrefetchInterval = a.Config.PrefetchInterval
	return mc
}

// Close releases store connections and pending timers.
func (a *App) Close() {
	if a.Scheduler != nil {
		a.Scheduler.CancelAll(context.Background())
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func (a *App) openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	switch cfg.StoreBackend {
	case config.StoreMemory:
		return store.NewMemory(), nil

	case config.StoreFile:
		f, err := store.OpenFile(cfg.StorePath)
		if err != nil {
			return nil, fmt.Errorf("open file store: %w", err)
		}
		logger.Debug("File store opened", "path", cfg.StorePath)
		return f, nil

	case config.StoreRedis:
		client, err := store.NewRedisClient(ctx, store.RedisOptions{
			Addr:     cfg.RedisAddr,
			Username: cfg.RedisUsername,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { client.Close() })
		logger.Info("Redis store connected", "addr", cfg.RedisAddr, "db", cfg.RedisDB)
		return store.NewRedis(client, cfg.RedisPrefix), nil

	case config.StorePostgres:
		start := time.Now()
		pool, err := db.New(ctx, cfg)
		if err != nil {
			return nil, err
		}
		pg := store.NewPostgres(pool)
		if err := pg.Migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate kv_store: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		logger.Info("Postgres store connected",
			"min_conns", cfg.DBPoolMinConns,
			"max_conns", cfg.DBPoolMaxConns,
			"duration", time.Since(start).Round(time.Millisecond))
		return pg, nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}
