package timings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/albapepper/vakit/internal/errs"
	"github.com/albapepper/vakit/internal/location"
	"github.com/albapepper/vakit/internal/prayer"
	"github.com/albapepper/vakit/internal/settings"
)

// Suspicious-cache thresholds: this many cached days carrying at most
// suspiciousMaxDistinct distinct schedules forces a month re-fetch.
const (
	suspiciousMinDays     = 7
	suspiciousMaxDistinct = 2
	monthReadConcurrency  = 8
)

// fastPathDays is the minimum window fetched on a today/tomorrow miss.
const fastPathDays = 2

// monthEndLead is how close to month end a monthly fast path also loads the
// next month.
const monthEndLead = 3

// Service is the cache-first facade used by the replanner, the CLI and the
// status server.
type Service struct {
	resolver   *Resolver
	repo       *Repository
	prefetcher *Prefetcher
	zone       *time.Location
	now        func() time.Time
	logger     *slog.Logger
}

// NewService wires a service. zone is the user's calendar zone.
func NewService(resolver *Resolver, repo *Repository, zone *time.Location, logger *slog.Logger) *Service {
	if zone == nil {
		zone = time.Local
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		resolver:   resolver,
		repo:       repo,
		prefetcher: NewPrefetcher(resolver, repo, zone, logger),
		zone:       zone,
		now:        time.Now,
		logger:     logger,
	}
}

// SetClock replaces the time source. Used by tests and by callers that need
// every component to agree on "now".
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
	s.prefetcher.now = now
}

// Prefetcher exposes the underlying range prefetcher.
func (s *Service) Prefetcher() *Prefetcher { return s.prefetcher }

// Repository exposes the cache repository.
func (s *Service) Repository() *Repository { return s.repo }

// Zone is the calendar zone date keys are computed in.
func (s *Service) Zone() *time.Location { return s.zone }

// --------------------------------------------------------------------------
// Today / tomorrow
// --------------------------------------------------------------------------

// TodayTomorrow returns today's and tomorrow's timings. Both cache entries
// are checked concurrently; on any miss a fetch starting today is issued.
// Aladhan fetches a two-day window. Diyanet loads the month through its
// monthly endpoint, plus the next month near month end; without one it
// fetches daily to the end of the month.
func (s *Service) TodayTomorrow(ctx context.Context, loc location.Fix, st settings.Settings) (prayer.Timings, prayer.Timings, error) {
	now := s.now().In(s.zone)
	keys := [2]string{prayer.DateKey(now), prayer.DateKey(prayer.AddDays(now, 1))}

	var cached [2]*prayer.Timings
	g, gctx := errgroup.WithContext(ctx)
	for i, k := range keys {
		i, k := i, k
		g.Go(func() error {
			rec, ok, err := s.repo.GetCachedTimings(gctx, CacheKey(k, loc, st))
			if err != nil {
				return err
			}
			if ok {
				t := rec.Timings
				cached[i] = &t
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.logger.Warn("Cache read failed, fetching from provider", "error", err)
	}
	if cached[0] != nil && cached[1] != nil {
		return *cached[0], *cached[1], nil
	}

	fetched, fetchErr := s.fetchWindow(ctx, now, loc, st)
	var days [2]prayer.Timings
	for i, k := range keys {
		switch t, ok := fetched[k]; {
		case ok:
			days[i] = t
		case cached[i] != nil:
			days[i] = *cached[i]
		default:
			if fetchErr == nil {
				fetchErr = fmt.Errorf("%w: no timings for %s", errs.ErrProviderUnavailable, k)
			}
			return prayer.Timings{}, prayer.Timings{}, fmt.Errorf("resolve today/tomorrow: %w", fetchErr)
		}
	}
	return days[0], days[1], nil
}

func (s *Service) fetchWindow(ctx context.Context, now time.Time, loc location.Fix, st settings.Settings) (map[string]prayer.Timings, error) {
	if st.TimingsProvider != settings.ProviderDiyanet {
		return s.prefetcher.FetchAndCacheRange(ctx, now, fastPathDays, loc, st)
	}
	rest := prayer.DaysInMonth(now.Year(), now.Month()) - now.Day() + 1
	if !s.resolver.SupportsMonthly(st) {
		return s.prefetcher.FetchAndCacheRange(ctx, now, max(rest, fastPathDays), loc, st)
	}

	months := []time.Time{now}
	if rest <= monthEndLead {
		months = append(months, prayer.AddDays(now, rest))
	}
	out := make(map[string]prayer.Timings)
	var failures []error
	for _, m := range months {
		got, err := s.prefetcher.PrefetchMonth(ctx, m.Year(), m.Month(), loc, st, MonthOptions{})
		for k, t := range got {
			out[k] = t
		}
		if err != nil {
			failures = append(failures, err)
		}
	}
	return out, errors.Join(failures...)
}

// --------------------------------------------------------------------------
// Month view
// --------------------------------------------------------------------------

// LoadMonth returns every day of the month it can, cache first. Missing days
// are prefetched. A suspicious cache (see Suspicious) is discarded and the
// whole month fetched again. The error joins per-day failures; the map still
// holds what was resolved.
func (s *Service) LoadMonth(ctx context.Context, year int, month time.Month, loc location.Fix, st settings.Settings) (map[string]prayer.Timings, error) {
	keys := prayer.MonthKeys(year, month, s.zone)
	cached, err := s.readCached(ctx, keys, loc, st)
	if err != nil {
		return nil, err
	}

	opts := MonthOptions{}
	switch {
	case Suspicious(keys, cached):
		s.logger.Warn("Cached month looks stale, forcing re-fetch",
			"year", year, "month", int(month), "cached_days", len(cached))
		cached = map[string]prayer.Timings{}
		opts.Force = true
	case len(cached) == len(keys):
		return cached, nil
	default:
		opts.Only = missingKeys(keys, cached)
	}

	fetched, fetchErr := s.prefetcher.PrefetchMonth(ctx, year, month, loc, st, opts)
	for k, t := range fetched {
		cached[k] = t
	}
	return cached, fetchErr
}

func (s *Service) readCached(ctx context.Context, keys []string, loc location.Fix, st settings.Settings) (map[string]prayer.Timings, error) {
	var mu sync.Mutex
	out := make(map[string]prayer.Timings, len(keys))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(monthReadConcurrency)
	for _, k := range keys {
		k := k
		g.Go(func() error {
			rec, ok, err := s.repo.GetCachedTimings(gctx, CacheKey(k, loc, st))
			if err != nil || !ok {
				return err
			}
			mu.Lock()
			out[k] = rec.Timings
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Suspicious reports whether a month's cached days look like one stale
// write repeated: at least seven cached days sharing no more than two
// distinct schedules.
func Suspicious(keys []string, cached map[string]prayer.Timings) bool {
	distinct := make(map[string]struct{})
	n := 0
	for _, k := range keys {
		t, ok := cached[k]
		if !ok {
			continue
		}
		n++
		distinct[t.Fingerprint()] = struct{}{}
	}
	return n >= suspiciousMinDays && len(distinct) <= suspiciousMaxDistinct
}

// --------------------------------------------------------------------------
// Last known good
// --------------------------------------------------------------------------

// TodayOrLatest returns today's record, or the latest cached record marked
// SourceCache when today cannot be resolved. A nil loc means no location is
// available and goes straight to the latest slot.
func (s *Service) TodayOrLatest(ctx context.Context, loc *location.Fix, st settings.Settings) (CachedTimings, error) {
	var liveErr error
	if loc != nil {
		rec, err := s.today(ctx, *loc, st)
		if err == nil {
			return rec, nil
		}
		liveErr = err
		s.logger.Warn("Live timings unavailable, using latest cached", "error", err)
	}

	rec, ok, err := s.repo.GetLatestCachedTimings(ctx)
	if err != nil {
		return CachedTimings{}, errors.Join(liveErr, err)
	}
	if !ok {
		if liveErr != nil {
			return CachedTimings{}, liveErr
		}
		return CachedTimings{}, fmt.Errorf("no cached timings: %w", errs.ErrNotFound)
	}
	rec.Source = SourceCache
	return rec, nil
}

func (s *Service) today(ctx context.Context, loc location.Fix, st settings.Settings) (CachedTimings, error) {
	now := s.now().In(s.zone)
	key := CacheKey(prayer.DateKey(now), loc, st)
	rec, ok, err := s.repo.GetCachedTimings(ctx, key)
	if err == nil && ok {
		return rec, nil
	}

	fetched, err := s.prefetcher.FetchAndCacheRange(ctx, now, 1, loc, st)
	t, ok := fetched[prayer.DateKey(now)]
	if !ok {
		if err == nil {
			err = fmt.Errorf("%w: no timings for today", errs.ErrProviderUnavailable)
		}
		return CachedTimings{}, err
	}
	return NewRecord(t, loc, st, SourceAPI, s.now()), nil
}
