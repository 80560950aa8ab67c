package notifications

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albapepper/vakit/internal/errs"
	"github.com/albapepper/vakit/internal/location"
	"github.com/albapepper/vakit/internal/prayer"
	"github.com/albapepper/vakit/internal/settings"
)

// --------------------------------------------------------------------------
// Fakes
// --------------------------------------------------------------------------

type fakeScheduler struct {
	mu        sync.Mutex
	granted   bool
	cancels   int
	scheduled []Alert
}

func (f *fakeScheduler) RequestPermission(context.Context) (bool, error) { return f.granted, nil }

func (f *fakeScheduler) ScheduleOneShot(_ context.Context, a Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scheduled = append(f.scheduled, a)
	return nil
}

func (f *fakeScheduler) CancelAll(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels++
	f.scheduled = nil
	return nil
}

func (f *fakeScheduler) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancels, len(f.scheduled)
}

type fakeSource struct {
	today, tomorrow prayer.Timings
	err             error
	calls           int
}

func (f *fakeSource) TodayTomorrow(context.Context, location.Fix, settings.Settings) (prayer.Timings, prayer.Timings, error) {
	f.calls++
	return f.today, f.tomorrow, f.err
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func day(key, fajr string) prayer.Timings {
	return prayer.Timings{
		DateKey:  key,
		Timezone: "UTC",
		Times: map[prayer.Name]string{
			prayer.Fajr: fajr, prayer.Sunrise: "06:32", prayer.Dhuhr: "12:40",
			prayer.Asr: "16:05", prayer.Maghrib: "19:02", prayer.Isha: "20:20",
		},
	}
}

var fix = location.Fix{Lat: 41.0082, Lon: 28.9784, Label: "İstanbul"}

func newTestReplanner(sched *fakeScheduler, src *fakeSource, locator location.Locator) (*Replanner, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, time.March, 15, 19, 30, 0, 0, time.UTC)}
	r := NewReplanner(sched, src, locator, nil, time.UTC, nil)
	r.SetClock(clock.now)
	return r, clock
}

// --------------------------------------------------------------------------
// Replan
// --------------------------------------------------------------------------

func TestReplanSchedulesFutureAlerts(t *testing.T) {
	sched := &fakeScheduler{granted: true}
	src := &fakeSource{today: day("15-03-2025", "05:10"), tomorrow: day("16-03-2025", "05:11")}
	r, clock := newTestReplanner(sched, src, location.NewStatic(fix, true))

	res, err := r.Replan(context.Background(), settings.Default())
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.True(t, res.Cancelled)
	// Today only Isha remains (offset + at_time); tomorrow has five prayers.
	assert.Equal(t, 12, res.Scheduled)
	assert.Equal(t, 8, res.Dropped)

	cancels, scheduled := sched.counts()
	assert.Equal(t, 1, cancels)
	assert.Equal(t, 12, scheduled)
	for _, a := range sched.scheduled {
		assert.True(t, a.TriggerAt.After(clock.now()), a.Title)
		assert.NotEqual(t, string(prayer.Sunrise), a.Data["prayer"])
	}
	assert.Equal(t, "Isha in 10 minutes", sched.scheduled[0].Title)
	assert.Equal(t, time.Date(2025, time.March, 15, 20, 10, 0, 0, time.UTC), sched.scheduled[0].TriggerAt)
}

func TestReplanIdenticalInputsWithinDebounce(t *testing.T) {
	sched := &fakeScheduler{granted: true}
	src := &fakeSource{today: day("15-03-2025", "05:10"), tomorrow: day("16-03-2025", "05:11")}
	r, clock := newTestReplanner(sched, src, location.NewStatic(fix, true))
	ctx := context.Background()

	first, err := r.Replan(ctx, settings.Default())
	require.NoError(t, err)
	cancels, scheduled := sched.counts()

	clock.advance(2 * time.Second)
	second, err := r.Replan(ctx, settings.Default())
	require.NoError(t, err)
	assert.True(t, second.Skipped)
	assert.Equal(t, ReasonUnchanged, second.Reason)
	assert.Equal(t, first.Signature, second.Signature)

	c2, s2 := sched.counts()
	assert.Equal(t, cancels, c2)
	assert.Equal(t, scheduled, s2)
	assert.Equal(t, 1, src.calls)

	clock.advance(9 * time.Second)
	third, err := r.Replan(ctx, settings.Default())
	require.NoError(t, err)
	assert.False(t, third.Skipped)
	c3, _ := sched.counts()
	assert.Equal(t, 2, c3)
}

func TestReplanChangedSettingsBypassesDebounce(t *testing.T) {
	sched := &fakeScheduler{granted: true}
	src := &fakeSource{today: day("15-03-2025", "05:10"), tomorrow: day("16-03-2025", "05:11")}
	r, clock := newTestReplanner(sched, src, location.NewStatic(fix, true))
	ctx := context.Background()

	_, err := r.Replan(ctx, settings.Default())
	require.NoError(t, err)

	s := settings.Default()
	isha := s.Notifications[prayer.Isha]
	isha.MinutesBefore = 0
	s.Notifications[prayer.Isha] = isha

	clock.advance(time.Second)
	res, err := r.Replan(ctx, s)
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Equal(t, 10, res.Scheduled)
}

func TestReplanResolveFailure(t *testing.T) {
	sched := &fakeScheduler{granted: true}
	src := &fakeSource{err: fmt.Errorf("fetch: %w", errs.ErrProviderUnavailable)}
	r, _ := newTestReplanner(sched, src, location.NewStatic(fix, true))

	res, err := r.Replan(context.Background(), settings.Default())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrProviderUnavailable))
	assert.True(t, res.Cancelled)

	cancels, scheduled := sched.counts()
	assert.Equal(t, 1, cancels)
	assert.Equal(t, 0, scheduled)
	assert.Empty(t, r.Queue().State().LastSignature, "failed replan must not commit")

	// The next attempt is not debounced.
	src.err = nil
	src.today, src.tomorrow = day("15-03-2025", "05:10"), day("16-03-2025", "05:11")
	res, err = r.Replan(context.Background(), settings.Default())
	require.NoError(t, err)
	assert.False(t, res.Skipped)
}

func TestReplanRejectsStaleToday(t *testing.T) {
	sched := &fakeScheduler{granted: true}
	src := &fakeSource{today: day("14-03-2025", "05:10"), tomorrow: day("15-03-2025", "05:11")}
	r, _ := newTestReplanner(sched, src, location.NewStatic(fix, true))

	_, err := r.Replan(context.Background(), settings.Default())
	assert.True(t, errors.Is(err, errs.ErrDataIntegrity))
	_, scheduled := sched.counts()
	assert.Equal(t, 0, scheduled)
}

func TestPreviewLeavesSchedulerAlone(t *testing.T) {
	sched := &fakeScheduler{granted: true}
	src := &fakeSource{today: day("15-03-2025", "05:10"), tomorrow: day("16-03-2025", "05:11")}
	r, _ := newTestReplanner(sched, src, location.NewStatic(fix, true))

	plan, err := r.Preview(context.Background(), settings.Default())
	require.NoError(t, err)
	assert.Len(t, plan.Alerts, 12)
	assert.Equal(t, 8, plan.Dropped)
	cancels, scheduled := sched.counts()
	assert.Equal(t, 0, cancels)
	assert.Equal(t, 0, scheduled)

	// No debounce state was committed, so a real replan still applies.
	res, err := r.Replan(context.Background(), settings.Default())
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Equal(t, 12, res.Scheduled)
}

func TestPreviewWithoutLocation(t *testing.T) {
	sched := &fakeScheduler{granted: true}
	r, _ := newTestReplanner(sched, &fakeSource{}, location.NewStatic(location.Fix{}, false))

	_, err := r.Preview(context.Background(), settings.Default())
	assert.True(t, errors.Is(err, errs.ErrPermissionDenied))
}

func TestReplanPermissionDenied(t *testing.T) {
	t.Run("notifications", func(t *testing.T) {
		sched := &fakeScheduler{granted: false}
		src := &fakeSource{}
		r, _ := newTestReplanner(sched, src, location.NewStatic(fix, true))

		res, err := r.Replan(context.Background(), settings.Default())
		require.NoError(t, err)
		assert.True(t, res.Skipped)
		assert.Equal(t, ReasonPermission, res.Reason)
		cancels, _ := sched.counts()
		assert.Equal(t, 0, cancels)
		assert.Equal(t, 0, src.calls)
	})

	t.Run("location", func(t *testing.T) {
		sched := &fakeScheduler{granted: true}
		src := &fakeSource{}
		r, _ := newTestReplanner(sched, src, location.NewStatic(location.Fix{}, false))

		res, err := r.Replan(context.Background(), settings.Default())
		require.NoError(t, err)
		assert.True(t, res.Skipped)
		assert.Equal(t, ReasonNoLocation, res.Reason)
		cancels, _ := sched.counts()
		assert.Equal(t, 0, cancels)
	})
}

// --------------------------------------------------------------------------
// Pure helpers
// --------------------------------------------------------------------------

func TestComposeDedupesAndDropsPast(t *testing.T) {
	now := time.Date(2025, time.March, 15, 19, 30, 0, 0, time.UTC)
	today := day("15-03-2025", "05:10")
	tomorrow := day("16-03-2025", "05:11")

	plan, err := Compose([]prayer.Timings{today, tomorrow, tomorrow}, settings.Default(), now, time.UTC)
	require.NoError(t, err)

	seen := make(map[DedupeKey]bool)
	for i, k := range plan.Keys {
		assert.False(t, seen[k], "duplicate key %+v", k)
		seen[k] = true
		assert.True(t, plan.Alerts[i].TriggerAt.After(now))
	}
	assert.Len(t, plan.Alerts, 12)
	assert.Equal(t, 18, plan.Dropped)
}

func TestComposeZeroOffset(t *testing.T) {
	s := settings.Default()
	for _, n := range prayer.Names {
		pref := s.Notifications[n]
		pref.MinutesBefore = 0
		pref.PlaySound = false
		s.Notifications[n] = pref
	}
	now := time.Date(2025, time.March, 15, 0, 0, 0, 0, time.UTC)

	plan, err := Compose([]prayer.Timings{day("15-03-2025", "05:10")}, s, now, time.UTC)
	require.NoError(t, err)
	assert.Len(t, plan.Alerts, 5)
	for _, a := range plan.Alerts {
		assert.Equal(t, string(IntentAtTime), a.Data["intent"])
		assert.Empty(t, a.Sound)
	}
}

func TestComposeInvalidDay(t *testing.T) {
	broken := day("15-03-2025", "05:10")
	delete(broken.Times, prayer.Asr)
	_, err := Compose([]prayer.Timings{broken}, settings.Default(), time.Time{}, time.UTC)
	assert.True(t, errors.Is(err, errs.ErrDataIntegrity))
}

func TestGate(t *testing.T) {
	now := time.Date(2025, time.March, 15, 12, 0, 0, 0, time.UTC)
	assert.True(t, Gate(State{}, "a", now))

	st := Commit(State{}, "a", now)
	assert.False(t, Gate(st, "a", now.Add(9*time.Second)))
	assert.True(t, Gate(st, "a", now.Add(10*time.Second)))
	assert.True(t, Gate(st, "b", now.Add(time.Second)))
}

func TestSignatureSensitivity(t *testing.T) {
	base := settings.Default()
	variants := map[string]func(s *settings.Settings, f *location.Fix){
		"provider": func(s *settings.Settings, _ *location.Fix) { s.TimingsProvider = settings.ProviderDiyanet },
		"method":   func(s *settings.Settings, _ *location.Fix) { s.MethodID = 3 },
		"mode":     func(s *settings.Settings, _ *location.Fix) { s.LocationMode = settings.LocationManual },
		"manual": func(s *settings.Settings, _ *location.Fix) {
			s.ManualLocation = &settings.ManualLocation{Label: "Fatih", Lat: 41.02, Lon: 28.94}
		},
		"enabled": func(s *settings.Settings, _ *location.Fix) {
			n := s.Notifications[prayer.Asr]
			n.Enabled = false
			s.Notifications[prayer.Asr] = n
		},
		"minutes": func(s *settings.Settings, _ *location.Fix) {
			n := s.Notifications[prayer.Fajr]
			n.MinutesBefore = 30
			s.Notifications[prayer.Fajr] = n
		},
		"lat": func(_ *settings.Settings, f *location.Fix) { f.Lat += 0.0001 },
	}

	ref := Signature(fix, base)
	seen := map[string]string{ref: "base"}
	for name, mutate := range variants {
		s := base.Clone()
		f := fix
		mutate(&s, &f)
		sig := Signature(f, s)
		prev, dup := seen[sig]
		assert.False(t, dup, "%s collides with %s", name, prev)
		seen[sig] = name
	}

	sound := base.Clone()
	n := sound.Notifications[prayer.Isha]
	n.Tone = "ezan"
	n.Volume = 10
	sound.Notifications[prayer.Isha] = n
	assert.Equal(t, ref, Signature(fix, sound))

	jitter := fix
	jitter.Lat += 0.00001
	assert.Equal(t, ref, Signature(jitter, base))
}

// --------------------------------------------------------------------------
// Queue
// --------------------------------------------------------------------------

func waitEnqueued(t *testing.T, q *Queue, prev chan struct{}) chan struct{} {
	t.Helper()
	var tail chan struct{}
	require.Eventually(t, func() bool {
		q.mu.Lock()
		defer q.mu.Unlock()
		tail = q.tail
		return tail != prev
	}, time.Second, time.Millisecond)
	return tail
}

func TestQueueRunsInSubmissionOrder(t *testing.T) {
	q := NewQueue()
	ctx := context.Background()
	release := make(chan struct{})

	var (
		mu      sync.Mutex
		order   []int
		running int32
		overlap int32
	)
	run := func(i int) func(context.Context, State) (State, error) {
		return func(_ context.Context, st State) (State, error) {
			if atomic.AddInt32(&running, 1) > 1 {
				atomic.StoreInt32(&overlap, 1)
			}
			defer atomic.AddInt32(&running, -1)
			if i == 0 {
				<-release
			}
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			st.LastSignature += fmt.Sprint(i)
			return st, nil
		}
	}

	var wg sync.WaitGroup
	tail := waitEnqueued(t, q, nil)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, q.Do(ctx, run(i)))
		}(i)
		tail = waitEnqueued(t, q, tail)
	}
	close(release)
	wg.Wait()

	assert.Equal(t, []int{0, 1, 2, 3}, order)
	assert.Equal(t, int32(0), atomic.LoadInt32(&overlap))
	assert.Equal(t, "0123", q.State().LastSignature)
}

func TestQueueCancelledWaiterKeepsChain(t *testing.T) {
	q := NewQueue()
	release := make(chan struct{})
	firstDone := make(chan struct{})

	tail := waitEnqueued(t, q, nil)
	go func() {
		defer close(firstDone)
		_ = q.Do(context.Background(), func(_ context.Context, st State) (State, error) {
			<-release
			st.LastSignature = "first"
			return st, nil
		})
	}()
	tail = waitEnqueued(t, q, tail)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := q.Do(ctx, func(_ context.Context, st State) (State, error) {
		t.Error("cancelled call must not run")
		return st, nil
	})
	assert.ErrorIs(t, err, context.Canceled)

	var sawFirst bool
	thirdDone := make(chan struct{})
	go func() {
		defer close(thirdDone)
		_ = q.Do(context.Background(), func(_ context.Context, st State) (State, error) {
			sawFirst = st.LastSignature == "first"
			return st, nil
		})
	}()

	select {
	case <-thirdDone:
		t.Fatal("third call ran before the first settled")
	case <-time.After(20 * time.Millisecond):
	}
	close(release)
	<-firstDone
	<-thirdDone
	assert.True(t, sawFirst)
}

// --------------------------------------------------------------------------
// LocalScheduler
// --------------------------------------------------------------------------

type recordingDeliverer struct {
	mu     sync.Mutex
	alerts []Alert
}

func (d *recordingDeliverer) Deliver(_ context.Context, a Alert) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.alerts = append(d.alerts, a)
	return nil
}

func (d *recordingDeliverer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.alerts)
}

func TestLocalSchedulerDelivers(t *testing.T) {
	d := &recordingDeliverer{}
	s := NewLocalScheduler(true, d, nil)
	ctx := context.Background()

	require.NoError(t, s.ScheduleOneShot(ctx, Alert{Title: "later", TriggerAt: time.Now().Add(time.Hour)}))
	require.NoError(t, s.ScheduleOneShot(ctx, Alert{Title: "soon", TriggerAt: time.Now().Add(10 * time.Millisecond)}))

	pending := s.Pending()
	require.Len(t, pending, 2)
	assert.Equal(t, "soon", pending[0].Title)
	assert.Len(t, pending[0].ID, 36)

	require.Eventually(t, func() bool { return d.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Len(t, s.Pending(), 1)

	require.NoError(t, s.CancelAll(ctx))
	assert.Empty(t, s.Pending())
}

func TestLocalSchedulerCancelStopsTimers(t *testing.T) {
	d := &recordingDeliverer{}
	s := NewLocalScheduler(true, d, nil)
	require.NoError(t, s.ScheduleOneShot(context.Background(), Alert{TriggerAt: time.Now().Add(20 * time.Millisecond)}))
	require.NoError(t, s.CancelAll(context.Background()))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, d.count())
}

func TestLocalSchedulerRejectsPast(t *testing.T) {
	s := NewLocalScheduler(false, nil, nil)
	err := s.ScheduleOneShot(context.Background(), Alert{Title: "x", TriggerAt: time.Now().Add(-time.Second)})
	assert.ErrorContains(t, err, "not in the future")

	granted, err := s.RequestPermission(context.Background())
	require.NoError(t, err)
	assert.False(t, granted)
}

func TestResultSummary(t *testing.T) {
	assert.Equal(t, "skipped reason=unchanged", Result{Skipped: true, Reason: ReasonUnchanged}.Summary())
	s := Result{Cancelled: true, Scheduled: 3, Dropped: 1, Signature: strings.Repeat("ab", 32)}.Summary()
	assert.Equal(t, "cancelled=true scheduled=3 dropped=1 sig=abababababab", s)
}
