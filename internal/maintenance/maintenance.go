// Package maintenance runs vakitd's periodic background tasks as Go tickers:
// the periodic replan, the midnight rollover and the month prefetch.
package maintenance

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/albapepper/vakit/internal/errs"
	"github.com/albapepper/vakit/internal/location"
	"github.com/albapepper/vakit/internal/notifications"
	"github.com/albapepper/vakit/internal/prayer"
	"github.com/albapepper/vakit/internal/settings"
)

// Config controls maintenance task intervals. Zero duration disables a task.
type Config struct {
	ReplanInterval   time.Duration // Rebuild alerts from current settings
	RolloverInterval time.Duration // Poll for a calendar day change
	PrefetchInterval time.Duration // Warm the current month's cache
}

// DefaultConfig returns sensible production defaults.
func DefaultConfig() Config {
	return Config{
		ReplanInterval:   15 * time.Minute,
		RolloverInterval: time.Minute,
		PrefetchInterval: 6 * time.Hour,
	}
}

// nextMonthLead is how close to the end of a month the prefetch also warms
// the following month.
const nextMonthLead = 3

// SettingsLoader reads the current settings.
type SettingsLoader interface {
	Load(ctx context.Context) (settings.Settings, error)
}

// Replanner rebuilds the alert schedule.
type Replanner interface {
	Replan(ctx context.Context, s settings.Settings) (notifications.Result, error)
}

// MonthLoader warms a month of timings, cache first.
type MonthLoader interface {
	LoadMonth(ctx context.Context, year int, month time.Month, loc location.Fix, s settings.Settings) (map[string]prayer.Timings, error)
}

// Runner holds the dependencies the tasks share.
type Runner struct {
	settings  SettingsLoader
	replanner Replanner
	months    MonthLoader
	locator   location.Locator
	zone      *time.Location
	now       func() time.Time
	logger    *slog.Logger

	mu      sync.Mutex
	lastDay string
}

// NewRunner wires a runner. months may be nil to disable prefetching.
func NewRunner(s SettingsLoader, r Replanner, months MonthLoader, locator location.Locator, zone *time.Location, logger *slog.Logger) *Runner {
	if zone == nil {
		zone = time.Local
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		settings:  s,
		replanner: r,
		months:    months,
		locator:   locator,
		zone:      zone,
		now:       time.Now,
		logger:    logger,
	}
}

// SetClock replaces the time source.
func (r *Runner) SetClock(now func() time.Time) { r.now = now }

// Start launches all configured maintenance tickers. Blocks until ctx is
// cancelled. Intended to be called with `go`.
func (r *Runner) Start(ctx context.Context, cfg Config) {
	r.logger.Info("Maintenance tickers started",
		"replan", cfg.ReplanInterval,
		"rollover", cfg.RolloverInterval,
		"prefetch", cfg.PrefetchInterval)

	r.mu.Lock()
	r.lastDay = prayer.DateKey(r.now().In(r.zone))
	r.mu.Unlock()

	tickers := make([]*time.Ticker, 0, 3)
	defer func() {
		for _, t := range tickers {
			t.Stop()
		}
	}()

	// Replan: picks up location moves and keeps two days of alerts armed
	if cfg.ReplanInterval > 0 {
		t := time.NewTicker(cfg.ReplanInterval)
		tickers = append(tickers, t)
		go runLoop(ctx, t.C, "replan", func() { r.Replan(ctx) })
	}

	// Rollover: replan as soon as the calendar day changes
	if cfg.RolloverInterval > 0 {
		t := time.NewTicker(cfg.RolloverInterval)
		tickers = append(tickers, t)
		go runLoop(ctx, t.C, "rollover", func() { r.Rollover(ctx) })
	}

	// Prefetch: keep the month view warm
	if cfg.PrefetchInterval > 0 && r.months != nil {
		t := time.NewTicker(cfg.PrefetchInterval)
		tickers = append(tickers, t)
		go runLoop(ctx, t.C, "prefetch", func() { r.Prefetch(ctx) })
	}

	<-ctx.Done()
	r.logger.Info("Maintenance tickers stopped")
}

func runLoop(ctx context.Context, ch <-chan time.Time, name string, fn func()) {
	for {
		select {
		case <-ch:
			fn()
		case <-ctx.Done():
			return
		}
	}
}

// --------------------------------------------------------------------------
// Task implementations
// --------------------------------------------------------------------------

// Replan loads settings and runs one replan. Errors are logged; the next
// tick retries.
func (r *Runner) Replan(ctx context.Context) {
	s, err := r.settings.Load(ctx)
	if err != nil {
		r.logger.Warn("Replan: failed to load settings", "error", err)
		return
	}
	if _, err := r.replanner.Replan(ctx, s); err != nil {
		r.logger.Warn("Replan: failed", "error", err)
	}
}

// Rollover replans when the day key has moved since the last check and
// reports whether it did.
func (r *Runner) Rollover(ctx context.Context) bool {
	today := prayer.DateKey(r.now().In(r.zone))

	r.mu.Lock()
	changed := r.lastDay != "" && r.lastDay != today
	prev := r.lastDay
	r.lastDay = today
	r.mu.Unlock()

	if !changed {
		return false
	}
	r.logger.Info("Day rollover", "from", prev, "to", today)
	r.Replan(ctx)
	return true
}

// Prefetch warms the current month, and the next one near the month end.
// Without a location there is nothing to fetch.
func (r *Runner) Prefetch(ctx context.Context) {
	if r.months == nil {
		return
	}
	s, err := r.settings.Load(ctx)
	if err != nil {
		r.logger.Warn("Prefetch: failed to load settings", "error", err)
		return
	}
	fix, err := location.Resolve(ctx, s, r.locator)
	if errors.Is(err, errs.ErrPermissionDenied) {
		r.logger.Debug("Prefetch: no location, skipping")
		return
	}
	if err != nil {
		r.logger.Warn("Prefetch: location failed", "error", err)
		return
	}

	now := r.now().In(r.zone)
	r.prefetchMonth(ctx, now.Year(), now.Month(), fix, s)
	if prayer.DaysInMonth(now.Year(), now.Month())-now.Day() < nextMonthLead {
		next := time.Date(now.Year(), now.Month()+1, 1, 12, 0, 0, 0, r.zone)
		r.prefetchMonth(ctx, next.Year(), next.Month(), fix, s)
	}
}

func (r *Runner) prefetchMonth(ctx context.Context, year int, month time.Month, fix location.Fix, s settings.Settings) {
	start := time.Now()
	days, err := r.months.LoadMonth(ctx, year, month, fix, s)
	dur := time.Since(start).Round(time.Millisecond)
	if err != nil {
		r.logger.Warn("Prefetch: month incomplete",
			"year", year, "month", int(month), "days", len(days), "duration", dur, "error", err)
		return
	}
	r.logger.Info("Prefetch: month warm", "year", year, "month", int(month), "days", len(days), "duration", dur)
}
