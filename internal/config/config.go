// Package config provides centralized configuration loaded from environment
// variables. Shared by cmd/vakit and cmd/vakitd.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Store backends
// --------------------------------------------------------------------------

const (
	StoreMemory   = "memory"
	StoreFile     = "file"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

// --------------------------------------------------------------------------
// Config struct, populated from environment variables
// --------------------------------------------------------------------------

type Config struct {
	Environment string // development, production
	LogLevel    slog.Level

	// User calendar. Date keys and "today" are computed in this zone.
	Timezone *time.Location

	// Cache Store
	StoreBackend  string
	StorePath     string
	RedisAddr     string
	RedisUsername string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string

	// Postgres store
	DatabaseURL    string
	DBPoolMinConns int
	DBPoolMaxConns int
	DBPoolMaxLife  time.Duration

	// Providers
	AladhanBaseURL     string
	DiyanetProxyURL    string
	DiyanetForceCityID string
	NominatimBaseURL   string
	OverpassURL        string
	ProviderTimeout    time.Duration
	ProviderRPM        int
	UserAgent          string

	// Static location (device GPS stand-in)
	Latitude      float64
	Longitude     float64
	HasLocation   bool
	LocationLabel string

	// Notifications
	NotificationsGranted bool

	// Daemon
	ReplanInterval   time.Duration
	PrefetchInterval time.Duration
	StatusAddr       string

	// Status server
	CORSAllowOrigins  []string
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	tzName := envOr("VAKIT_TIMEZONE", envOr("TZ", "Local"))
	tz, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, fmt.Errorf("VAKIT_TIMEZONE %q: %w", tzName, err)
	}

	level := slog.LevelInfo
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		if err := level.UnmarshalText([]byte(v)); err != nil {
			return nil, fmt.Errorf("LOG_LEVEL %q: %w", v, err)
		}
	}

	cfg := &Config{
		Environment: envOr("ENVIRONMENT", "development"),
		LogLevel:    level,
		Timezone:    tz,

		StoreBackend:  strings.ToLower(envOr("STORE_BACKEND", StoreFile)),
		StorePath:     envOr("STORE_PATH", defaultStorePath()),
		RedisAddr:     envOr("REDIS_ADDR", "localhost:6379"),
		RedisUsername: envOr("REDIS_USERNAME", ""),
		RedisPassword: envOr("REDIS_PASSWORD", ""),
		RedisDB:       envInt("REDIS_DB", 0),
		RedisPrefix:   envOr("REDIS_PREFIX", "vakit:"),

		DatabaseURL:    envOr("DATABASE_URL", ""),
		DBPoolMinConns: envInt("DB_POOL_MIN_CONNS", 1),
		DBPoolMaxConns: envInt("DB_POOL_MAX_CONNS", 4),
		DBPoolMaxLife:  time.Duration(envInt("DB_POOL_MAX_LIFE_MINUTES", 30)) * time.Minute,

		AladhanBaseURL:     envOr("ALADHAN_BASE_URL", "https://api.aladhan.com/v1"),
		DiyanetProxyURL:    envOr("DIYANET_PROXY_URL", ""),
		DiyanetForceCityID: envOr("DIYANET_FORCE_CITY_ID", ""),
		NominatimBaseURL:   envOr("NOMINATIM_BASE_URL", "https://nominatim.openstreetmap.org"),
		OverpassURL:        envOr("OVERPASS_URL", "https://overpass-api.de/api"),
		ProviderTimeout:    envDuration("PROVIDER_TIMEOUT", 10*time.Second),
		ProviderRPM:        envInt("PROVIDER_RPM", 120),
		UserAgent:          envOr("HTTP_USER_AGENT", "vakit/1.0"),

		LocationLabel: envOr("LOCATION_LABEL", ""),

		NotificationsGranted: envBool("NOTIFICATIONS_GRANTED", true),

		ReplanInterval:   envDuration("REPLAN_INTERVAL", 15*time.Minute),
		PrefetchInterval: envDuration("PREFETCH_INTERVAL", 6*time.Hour),
		StatusAddr:       envOr("STATUS_ADDR", "127.0.0.1:8787"),

		CORSAllowOrigins: envList("CORS_ALLOW_ORIGINS", []string{
			"http://localhost:*",
			"http://127.0.0.1:*",
		}),
		RateLimitEnabled:  envBool("RATE_LIMIT_ENABLED", true),
		RateLimitRequests: envInt("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:   time.Duration(envInt("RATE_LIMIT_WINDOW", 60)) * time.Second,
	}

	lat, latOK := envFloat("LATITUDE")
	lon, lonOK := envFloat("LONGITUDE")
	if latOK != lonOK {
		return nil, fmt.Errorf("LATITUDE and LONGITUDE must be set together")
	}
	cfg.Latitude, cfg.Longitude, cfg.HasLocation = lat, lon, latOK && lonOK

	switch cfg.StoreBackend {
	case StoreMemory, StoreFile, StoreRedis:
	case StorePostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL must be set for STORE_BACKEND=postgres")
		}
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}

	return cfg, nil
}

// IsProduction returns true if running in production environment.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// NewLogger builds the process logger at the configured level.
func (c *Config) NewLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: c.LogLevel}))
}

func defaultStorePath() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return dir + string(os.PathSeparator) + "vakit" + string(os.PathSeparator) + "store.json"
	}
	return "vakit-store.json"
}

// --------------------------------------------------------------------------
// Env helpers
// --------------------------------------------------------------------------

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}

func envFloat(key string) (float64, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// envDuration accepts Go durations ("90s") or bare seconds ("90").
func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}
