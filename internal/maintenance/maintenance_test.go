package maintenance

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albapepper/vakit/internal/location"
	"github.com/albapepper/vakit/internal/notifications"
	"github.com/albapepper/vakit/internal/prayer"
	"github.com/albapepper/vakit/internal/settings"
	"github.com/albapepper/vakit/internal/store"
)

type countingReplanner struct {
	calls atomic.Int32
	err   error
	last  settings.Settings
	mu    sync.Mutex
}

func (c *countingReplanner) Replan(_ context.Context, s settings.Settings) (notifications.Result, error) {
	c.calls.Add(1)
	c.mu.Lock()
	c.last = s
	c.mu.Unlock()
	if c.err != nil {
		return notifications.Result{}, c.err
	}
	return notifications.Result{Cancelled: true, Scheduled: 3}, nil
}

type monthCall struct {
	year  int
	month time.Month
}

type recordingMonths struct {
	mu    sync.Mutex
	calls []monthCall
}

func (m *recordingMonths) LoadMonth(_ context.Context, year int, month time.Month, _ location.Fix, _ settings.Settings) (map[string]prayer.Timings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, monthCall{year, month})
	return map[string]prayer.Timings{}, nil
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func newRunner(t *testing.T, locator location.Locator, now time.Time) (*Runner, *countingReplanner, *recordingMonths, *clock) {
	t.Helper()
	rp := &countingReplanner{}
	months := &recordingMonths{}
	c := &clock{now: now}
	r := NewRunner(settings.NewRepository(store.NewMemory(), nil), rp, months, locator, time.UTC, nil)
	r.SetClock(c.Now)
	return r, rp, months, c
}

var ankara = location.NewStatic(location.Fix{Lat: 39.93, Lon: 32.86, Label: "Ankara"}, true)

func TestReplanLoadsSettings(t *testing.T) {
	r, rp, _, _ := newRunner(t, ankara, time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC))

	r.Replan(context.Background())
	assert.Equal(t, int32(1), rp.calls.Load())
	assert.Equal(t, settings.Default().TimingsProvider, rp.last.TimingsProvider)
}

func TestReplanErrorIsLogged(t *testing.T) {
	r, rp, _, _ := newRunner(t, ankara, time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC))
	rp.err = errors.New("provider down")

	assert.NotPanics(t, func() { r.Replan(context.Background()) })
	assert.Equal(t, int32(1), rp.calls.Load())
}

func TestRolloverReplansOnDayChange(t *testing.T) {
	r, rp, _, c := newRunner(t, ankara, time.Date(2026, 10, 14, 23, 59, 0, 0, time.UTC))

	// First check only records the day.
	assert.False(t, r.Rollover(context.Background()))
	c.Set(time.Date(2026, 10, 14, 23, 59, 30, 0, time.UTC))
	assert.False(t, r.Rollover(context.Background()))
	assert.Equal(t, int32(0), rp.calls.Load())

	c.Set(time.Date(2026, 10, 15, 0, 0, 5, 0, time.UTC))
	assert.True(t, r.Rollover(context.Background()))
	assert.Equal(t, int32(1), rp.calls.Load())

	// Same day again is a no-op.
	assert.False(t, r.Rollover(context.Background()))
	assert.Equal(t, int32(1), rp.calls.Load())
}

func TestPrefetchCurrentMonth(t *testing.T) {
	r, _, months, _ := newRunner(t, ankara, time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC))

	r.Prefetch(context.Background())
	assert.Equal(t, []monthCall{{2026, time.October}}, months.calls)
}

func TestPrefetchNearMonthEndWarmsNextMonth(t *testing.T) {
	r, _, months, _ := newRunner(t, ankara, time.Date(2026, 12, 30, 9, 0, 0, 0, time.UTC))

	r.Prefetch(context.Background())
	assert.Equal(t, []monthCall{{2026, time.December}, {2027, time.January}}, months.calls)
}

func TestPrefetchWithoutLocation(t *testing.T) {
	r, _, months, _ := newRunner(t, location.NewStatic(location.Fix{}, false), time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC))

	r.Prefetch(context.Background())
	assert.Empty(t, months.calls)
}

func TestApplySettings(t *testing.T) {
	r, rp, months, _ := newRunner(t, ankara, time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC))
	repo := settings.NewRepository(store.NewMemory(), nil)

	s := settings.Default()
	s.TimingsProvider = settings.ProviderDiyanet
	saved, res, err := r.ApplySettings(context.Background(), repo, s)
	require.NoError(t, err)
	assert.Equal(t, settings.ProviderDiyanet, saved.TimingsProvider)
	assert.Equal(t, 3, res.Scheduled)
	assert.Equal(t, int32(1), rp.calls.Load())
	assert.Equal(t, []monthCall{{2026, time.October}}, months.calls)

	loaded, err := repo.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, settings.ProviderDiyanet, loaded.TimingsProvider)
}

func TestStartRunsTickers(t *testing.T) {
	r, rp, _, _ := newRunner(t, ankara, time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Start(ctx, Config{ReplanInterval: 5 * time.Millisecond})
		close(done)
	}()

	assert.Eventually(t, func() bool { return rp.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not return after cancel")
	}
}
