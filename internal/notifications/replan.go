package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/albapepper/vakit/internal/errs"
	"github.com/albapepper/vakit/internal/location"
	"github.com/albapepper/vakit/internal/prayer"
	"github.com/albapepper/vakit/internal/settings"
)

// TimingsSource resolves today's and tomorrow's timings, cache first.
type TimingsSource interface {
	TodayTomorrow(ctx context.Context, loc location.Fix, s settings.Settings) (prayer.Timings, prayer.Timings, error)
}

// Replanner rebuilds the alert schedule from settings and location.
type Replanner struct {
	scheduler Scheduler
	source    TimingsSource
	locator   location.Locator
	queue     *Queue
	zone      *time.Location
	now       func() time.Time
	logger    *slog.Logger
}

// NewReplanner wires a replanner. A nil queue gets a fresh one; share a
// queue between replanners only if they drive the same scheduler.
func NewReplanner(scheduler Scheduler, source TimingsSource, locator location.Locator, queue *Queue, zone *time.Location, logger *slog.Logger) *Replanner {
	if queue == nil {
		queue = NewQueue()
	}
	if zone == nil {
		zone = time.Local
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Replanner{
		scheduler: scheduler,
		source:    source,
		locator:   locator,
		queue:     queue,
		zone:      zone,
		now:       time.Now,
		logger:    logger,
	}
}

// SetClock replaces the time source.
func (r *Replanner) SetClock(now func() time.Time) { r.now = now }

// Queue exposes the serializer, e.g. for status reporting.
func (r *Replanner) Queue() *Queue { return r.queue }

// Replan rebuilds the schedule for s. Denied permissions and unchanged
// inputs yield a skipped Result and a nil error. A resolve failure happens
// after the cancel, so it leaves no alerts scheduled, and is returned.
func (r *Replanner) Replan(ctx context.Context, s settings.Settings) (Result, error) {
	var res Result
	err := r.queue.Do(ctx, func(ctx context.Context, st State) (State, error) {
		var err error
		res, st, err = r.run(ctx, st, s)
		return st, err
	})

	switch {
	case err != nil:
		r.logger.Error("Replan failed", "summary", res.Summary(), "error", err)
	case res.Skipped:
		r.logger.Debug("Replan skipped", "reason", res.Reason)
	default:
		r.logger.Info("Replan applied", "summary", res.Summary())
	}
	return res, err
}

func (r *Replanner) run(ctx context.Context, st State, s settings.Settings) (Result, State, error) {
	// 1. Permission gate
	granted, err := r.scheduler.RequestPermission(ctx)
	if err != nil {
		return Result{}, st, fmt.Errorf("request notification permission: %w", err)
	}
	if !granted {
		return Result{Skipped: true, Reason: ReasonPermission}, st, nil
	}

	// 2. Location
	fix, err := location.Resolve(ctx, s, r.locator)
	if errors.Is(err, errs.ErrPermissionDenied) {
		return Result{Skipped: true, Reason: ReasonNoLocation}, st, nil
	}
	if err != nil {
		return Result{}, st, err
	}

	// 3. Signature check
	now := r.now()
	sig := Signature(fix, s)
	res := Result{Signature: sig}
	if !Gate(st, sig, now) {
		return Result{Skipped: true, Reason: ReasonUnchanged, Signature: sig}, st, nil
	}

	// 4. Cancel
	if err := r.scheduler.CancelAll(ctx); err != nil {
		return res, st, fmt.Errorf("cancel alerts: %w", err)
	}
	res.Cancelled = true

	// 5. Resolve
	plan, err := r.compose(ctx, fix, s, now)
	if err != nil {
		return res, st, err
	}

	// 6. Schedule
	res.Dropped = plan.Dropped
	var failures []error
	for _, a := range plan.Alerts {
		if err := r.scheduler.ScheduleOneShot(ctx, a); err != nil {
			failures = append(failures, fmt.Errorf("%s/%s: %w", a.Data["dateKey"], a.Title, err))
			continue
		}
		res.Scheduled++
	}
	if len(failures) > 0 {
		return res, st, fmt.Errorf("schedule alerts: %w", errors.Join(failures...))
	}

	// 7. Commit
	return res, Commit(st, sig, now), nil
}

// Preview composes the plan a replan would schedule now, without touching
// the scheduler, the queue or the debounce state.
func (r *Replanner) Preview(ctx context.Context, s settings.Settings) (Plan, error) {
	fix, err := location.Resolve(ctx, s, r.locator)
	if err != nil {
		return Plan{}, err
	}
	return r.compose(ctx, fix, s, r.now())
}

func (r *Replanner) compose(ctx context.Context, fix location.Fix, s settings.Settings, now time.Time) (Plan, error) {
	today, tomorrow, err := r.source.TodayTomorrow(ctx, fix, s)
	if err != nil {
		return Plan{}, fmt.Errorf("resolve timings: %w", err)
	}
	if want := prayer.DateKey(now.In(r.zone)); today.DateKey != want {
		return Plan{}, fmt.Errorf("%w: resolved %s but today is %s", errs.ErrDataIntegrity, today.DateKey, want)
	}
	return Compose([]prayer.Timings{today, tomorrow}, s, now, r.zone)
}
