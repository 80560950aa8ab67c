package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Scheduler is the local notification contract.
type Scheduler interface {
	RequestPermission(ctx context.Context) (bool, error)
	ScheduleOneShot(ctx context.Context, a Alert) error
	CancelAll(ctx context.Context) error
}

// LocalScheduler fires alerts from in-process timers.
type LocalScheduler struct {
	granted   bool
	deliverer Deliverer
	now       func() time.Time
	logger    *slog.Logger

	mu      sync.Mutex
	pending map[string]*pendingAlert
}

type pendingAlert struct {
	alert Alert
	timer *time.Timer
}

// NewLocalScheduler creates a scheduler. granted is the permission
// RequestPermission reports. A nil deliverer logs alerts.
func NewLocalScheduler(granted bool, deliverer Deliverer, logger *slog.Logger) *LocalScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if deliverer == nil {
		deliverer = NewLogDeliverer(logger)
	}
	return &LocalScheduler{
		granted:   granted,
		deliverer: deliverer,
		now:       time.Now,
		logger:    logger,
		pending:   make(map[string]*pendingAlert),
	}
}

// RequestPermission reports the configured grant.
func (s *LocalScheduler) RequestPermission(context.Context) (bool, error) {
	return s.granted, nil
}

// ScheduleOneShot arms a timer for a. An empty ID is replaced with a UUID.
func (s *LocalScheduler) ScheduleOneShot(_ context.Context, a Alert) error {
	delay := a.TriggerAt.Sub(s.now())
	if delay <= 0 {
		return fmt.Errorf("alert %q trigger %s is not in the future", a.Title, a.TriggerAt.Format(time.RFC3339))
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.pending[a.ID]; ok {
		old.timer.Stop()
	}
	p := &pendingAlert{alert: a}
	p.timer = time.AfterFunc(delay, func() { s.fire(a.ID) })
	s.pending[a.ID] = p
	return nil
}

// CancelAll stops every pending alert.
func (s *LocalScheduler) CancelAll(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, p := range s.pending {
		p.timer.Stop()
		delete(s.pending, id)
	}
	return nil
}

// Pending lists armed alerts ordered by trigger time.
func (s *LocalScheduler) Pending() []Alert {
	s.mu.Lock()
	out := make([]Alert, 0, len(s.pending))
	for _, p := range s.pending {
		out = append(out, p.alert)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].TriggerAt.Before(out[j].TriggerAt)
	})
	return out
}

func (s *LocalScheduler) fire(id string) {
	s.mu.Lock()
	p, ok := s.pending[id]
	if ok {
		delete(s.pending, id)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	if err := s.deliverer.Deliver(context.Background(), p.alert); err != nil {
		s.logger.Warn("Alert delivery failed", "id", id, "error", err)
	}
}
