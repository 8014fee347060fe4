package ports

import (
	"context"
	"time"

	"github.com/tradewire/botcore/pkg/domain"
)

// EventQueue is a durable, bounded, multi-producer/multi-consumer queue of
// inbound events. Delivery is FIFO per producer submission; no global order
// is guaranteed across producers.
type EventQueue interface {
	// Enqueue appends an event. It blocks while the queue is at capacity
	// (cooperative backpressure) until space frees up or ctx is done.
	// An unreachable backing store surfaces a *domain.StorageError.
	Enqueue(ctx context.Context, evt domain.Event) error

	// Dequeue removes and returns the oldest event, waiting up to wait for
	// one to arrive (long-poll). An empty queue after the wait returns
	// domain.ErrNoEvent, which is a normal outcome and not a failure.
	// An unreachable backing store surfaces a *domain.StorageError.
	Dequeue(ctx context.Context, wait time.Duration) (domain.Event, error)

	// Len reports the number of queued events.
	Len(ctx context.Context) (int, error)

	// Close releases the queue's resources. Blocked producers are woken
	// with domain.ErrQueueClosed.
	Close() error
}
