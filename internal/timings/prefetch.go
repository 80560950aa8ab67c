package timings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/albapepper/vakit/internal/location"
	"github.com/albapepper/vakit/internal/prayer"
	"github.com/albapepper/vakit/internal/settings"
)

// BatchSize bounds concurrent provider requests within one prefetch.
const BatchSize = 4

// Prefetcher fetches date ranges and caches every day it gets.
type Prefetcher struct {
	resolver *Resolver
	repo     *Repository
	zone     *time.Location
	now      func() time.Time
	logger   *slog.Logger
}

// NewPrefetcher creates a prefetcher. zone is the user's calendar zone.
func NewPrefetcher(resolver *Resolver, repo *Repository, zone *time.Location, logger *slog.Logger) *Prefetcher {
	if zone == nil {
		zone = time.Local
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Prefetcher{resolver: resolver, repo: repo, zone: zone, now: time.Now, logger: logger}
}

type dayResult struct {
	key     string
	timings prayer.Timings
	err     error
}

// FetchAndCacheRange fetches days consecutive dates from start. Each success
// is saved as it arrives. The map holds every date that succeeded; the error
// joins the per-date failures and is nil if none failed. A non-positive
// days fetches nothing.
func (p *Prefetcher) FetchAndCacheRange(ctx context.Context, start time.Time, days int, loc location.Fix, s settings.Settings) (map[string]prayer.Timings, error) {
	if days <= 0 {
		return map[string]prayer.Timings{}, nil
	}
	start = start.In(p.zone)
	dates := make([]time.Time, 0, days)
	for i := 0; i < days; i++ {
		dates = append(dates, prayer.AddDays(start, i))
	}
	return p.fetchDates(ctx, dates, loc, s)
}

func (p *Prefetcher) fetchDates(ctx context.Context, dates []time.Time, loc location.Fix, s settings.Settings) (map[string]prayer.Timings, error) {
	out := make(map[string]prayer.Timings, len(dates))
	var failures []error

	for i := 0; i < len(dates); i += BatchSize {
		if err := ctx.Err(); err != nil {
			failures = append(failures, err)
			break
		}
		end := i + BatchSize
		if end > len(dates) {
			end = len(dates)
		}
		batch := dates[i:end]

		results := make([]dayResult, len(batch))
		var wg sync.WaitGroup
		for j, d := range batch {
			wg.Add(1)
			go func(j int, d time.Time) {
				defer wg.Done()
				results[j] = p.fetchOne(ctx, d, loc, s)
			}(j, d)
		}
		wg.Wait()

		for _, r := range results {
			if r.err != nil {
				failures = append(failures, fmt.Errorf("%s: %w", r.key, r.err))
				continue
			}
			out[r.key] = r.timings
		}
	}

	if len(failures) > 0 {
		p.logger.Warn("Prefetch incomplete",
			"provider", s.TimingsProvider, "requested", len(dates), "fetched", len(out), "failed", len(failures))
	}
	return out, errors.Join(failures...)
}

func (p *Prefetcher) fetchOne(ctx context.Context, date time.Time, loc location.Fix, s settings.Settings) dayResult {
	key := prayer.DateKey(date)
	t, err := p.resolver.GetTimingsForDate(ctx, date, loc, s, loc.Label)
	if err != nil {
		return dayResult{key: key, err: err}
	}
	p.save(ctx, t, loc, s)
	return dayResult{key: key, timings: t}
}

// save persists t. A failed write is logged; the fetched day is still used.
func (p *Prefetcher) save(ctx context.Context, t prayer.Timings, loc location.Fix, s settings.Settings) {
	rec := NewRecord(t, loc, s, SourceAPI, p.now())
	if err := p.repo.SaveCachedTimings(ctx, CacheKey(t.DateKey, loc, s), rec); err != nil {
		p.logger.Warn("Failed to cache timings", "date", t.DateKey, "error", err)
	}
}

// --------------------------------------------------------------------------
// Month prefetch
// --------------------------------------------------------------------------

// MonthOptions narrows a month prefetch.
type MonthOptions struct {
	// Only restricts the fetch to these date keys. Keys outside the month
	// are ignored.
	Only []string
	// Force fetches every day of the month, ignoring what is cached.
	Force bool
}

// PrefetchMonth fills the cache for a calendar month and returns the days it
// fetched. Without Only or Force, days already cached are skipped. When the
// whole month is needed and the provider has a monthly endpoint it is used
// in a single call.
func (p *Prefetcher) PrefetchMonth(ctx context.Context, year int, month time.Month, loc location.Fix, s settings.Settings, opts MonthOptions) (map[string]prayer.Timings, error) {
	keys := prayer.MonthKeys(year, month, p.zone)

	var want []string
	switch {
	case opts.Force:
		want = keys
	case len(opts.Only) > 0:
		only := make(map[string]bool, len(opts.Only))
		for _, k := range opts.Only {
			only[k] = true
		}
		for _, k := range keys {
			if only[k] {
				want = append(want, k)
			}
		}
	default:
		for _, k := range keys {
			_, ok, err := p.repo.GetCachedTimings(ctx, CacheKey(k, loc, s))
			if err != nil {
				return nil, err
			}
			if !ok {
				want = append(want, k)
			}
		}
	}
	if len(want) == 0 {
		return map[string]prayer.Timings{}, nil
	}

	if len(want) == len(keys) {
		days, supported, err := p.resolver.GetMonthlyTimings(ctx, year, month, p.zone, loc, s, loc.Label)
		switch {
		case supported && err == nil:
			out := make(map[string]prayer.Timings, len(days))
			for _, k := range keys {
				if t, ok := days[k]; ok {
					p.save(ctx, t, loc, s)
					out[k] = t
				}
			}
			if len(out) == len(keys) {
				return out, nil
			}
			want = missingKeys(keys, out)
			rest, err := p.fetchKeys(ctx, want, loc, s)
			for k, t := range rest {
				out[k] = t
			}
			return out, err
		case supported:
			p.logger.Warn("Monthly fetch failed, falling back to daily requests",
				"year", year, "month", int(month), "error", err)
		}
	}

	return p.fetchKeys(ctx, want, loc, s)
}

func (p *Prefetcher) fetchKeys(ctx context.Context, keys []string, loc location.Fix, s settings.Settings) (map[string]prayer.Timings, error) {
	dates := make([]time.Time, 0, len(keys))
	for _, k := range keys {
		d, err := prayer.ParseDateKey(k, p.zone)
		if err != nil {
			return nil, err
		}
		dates = append(dates, prayer.AddDays(d, 0))
	}
	return p.fetchDates(ctx, dates, loc, s)
}

func missingKeys(keys []string, have map[string]prayer.Timings) []string {
	var out []string
	for _, k := range keys {
		if _, ok := have[k]; !ok {
			out = append(out, k)
		}
	}
	return out
}
