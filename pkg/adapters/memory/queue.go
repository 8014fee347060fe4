// Package memory provides in-process implementations of the queue and
// state store ports. Suitable for tests and single-instance deployments.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/tradewire/botcore/pkg/domain"
)

// Queue implements ports.EventQueue on a bounded channel. Enqueue blocks
// while the buffer is full, giving producers cooperative backpressure.
type Queue struct {
	events chan domain.Event

	closeOnce sync.Once
	closed    chan struct{}
}

// DefaultCapacity is used when NewQueue is given a non-positive capacity.
const DefaultCapacity = 1024

// NewQueue creates a bounded in-memory queue.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue{
		events: make(chan domain.Event, capacity),
		closed: make(chan struct{}),
	}
}

// Enqueue appends the event, blocking while the queue is at capacity.
func (q *Queue) Enqueue(ctx context.Context, evt domain.Event) error {
	select {
	case <-q.closed:
		return domain.ErrQueueClosed
	default:
	}

	select {
	case q.events <- evt:
		return nil
	case <-q.closed:
		return domain.ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dequeue returns the oldest event, waiting up to wait for one to arrive.
func (q *Queue) Dequeue(ctx context.Context, wait time.Duration) (domain.Event, error) {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case evt := <-q.events:
		return evt, nil
	case <-timer.C:
		return domain.Event{}, domain.ErrNoEvent
	case <-ctx.Done():
		return domain.Event{}, ctx.Err()
	}
}

// Len reports the number of buffered events.
func (q *Queue) Len(ctx context.Context) (int, error) {
	return len(q.events), nil
}

// Close wakes blocked producers. Buffered events stay dequeueable so
// consumers can drain before shutdown.
func (q *Queue) Close() error {
	q.closeOnce.Do(func() {
		close(q.closed)
	})
	return nil
}
