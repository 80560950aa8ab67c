package notifications

import (
	"context"
	"sync"
)

// Queue serializes replans. Each call runs after every earlier call has
// settled, in submission order, and owns the State while it runs.
type Queue struct {
	mu    sync.Mutex
	state State
	tail  chan struct{}
}

// NewQueue returns an idle queue.
func NewQueue() *Queue {
	done := make(chan struct{})
	close(done)
	return &Queue{tail: done}
}

// Do runs fn once its turn comes. fn's returned State replaces the queue
// state. If ctx ends while waiting, Do returns ctx.Err() without running fn
// and later calls still wait for the earlier ones.
func (q *Queue) Do(ctx context.Context, fn func(ctx context.Context, st State) (State, error)) error {
	q.mu.Lock()
	prev := q.tail
	done := make(chan struct{})
	q.tail = done
	q.mu.Unlock()

	select {
	case <-prev:
	case <-ctx.Done():
		go func() {
			<-prev
			close(done)
		}()
		return ctx.Err()
	}
	defer close(done)

	q.mu.Lock()
	st := q.state
	q.mu.Unlock()

	next, err := fn(ctx, st)

	q.mu.Lock()
	q.state = next
	q.mu.Unlock()
	return err
}

// State returns a snapshot of the last committed state.
func (q *Queue) State() State {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}
