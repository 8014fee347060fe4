// Package redis provides Redis-backed implementations of the queue, state
// store and locker ports, for deployments where events and conversations
// must survive process restarts and be shared across replicas.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	backend "github.com/redis/go-redis/v9"

	"github.com/tradewire/botcore/pkg/domain"
)

// Queue implements ports.EventQueue on a Redis list. Producers RPUSH,
// consumers BLPOP with a server-side timeout for long-poll semantics.
type Queue struct {
	client *backend.Client
	key    string
	maxLen int64
}

// QueueOption configures the Queue.
type QueueOption func(*Queue)

// WithQueueKey sets the Redis list key.
func WithQueueKey(key string) QueueOption {
	return func(q *Queue) {
		q.key = key
	}
}

// WithMaxLen bounds the queue. Producers block (polling) while the list is
// at or above this length. Zero means unbounded.
func WithMaxLen(n int64) QueueOption {
	return func(q *Queue) {
		q.maxLen = n
	}
}

// NewQueue creates a Redis queue with its own client.
func NewQueue(address, password string, db int, opts ...QueueOption) *Queue {
	client := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewQueueFromClient(client, opts...)
}

// NewQueueFromClient creates a Redis queue from an existing client.
func NewQueueFromClient(client *backend.Client, opts ...QueueOption) *Queue {
	q := &Queue{
		client: client,
		key:    "botcore:events",
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// enqueuePollInterval is how often a blocked producer re-checks capacity.
const enqueuePollInterval = 100 * time.Millisecond

// Enqueue appends the event. With a max length configured it blocks,
// polling, until the list drops below the bound or ctx is done.
func (q *Queue) Enqueue(ctx context.Context, evt domain.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if q.maxLen > 0 {
		if err := q.waitForCapacity(ctx); err != nil {
			return err
		}
	}

	if err := q.client.RPush(ctx, q.key, data).Err(); err != nil {
		return classify("enqueue", err)
	}
	return nil
}

func (q *Queue) waitForCapacity(ctx context.Context) error {
	ticker := time.NewTicker(enqueuePollInterval)
	defer ticker.Stop()

	for {
		n, err := q.client.LLen(ctx, q.key).Result()
		if err != nil {
			return classify("enqueue", err)
		}
		if n < q.maxLen {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Dequeue pops the oldest event, blocking server-side up to wait.
// An empty list after the wait maps to domain.ErrNoEvent.
func (q *Queue) Dequeue(ctx context.Context, wait time.Duration) (domain.Event, error) {
	res, err := q.client.BLPop(ctx, wait, q.key).Result()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return domain.Event{}, domain.ErrNoEvent
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return domain.Event{}, err
		}
		return domain.Event{}, classify("dequeue", err)
	}

	// BLPOP replies [key, value].
	if len(res) != 2 {
		return domain.Event{}, domain.NewStorageError("dequeue", fmt.Errorf("unexpected BLPOP reply of length %d", len(res)))
	}

	var evt domain.Event
	if err := json.Unmarshal([]byte(res[1]), &evt); err != nil {
		return domain.Event{}, domain.NewStorageError("dequeue", fmt.Errorf("failed to unmarshal event: %w", err))
	}
	return evt, nil
}

// Len reports the list length.
func (q *Queue) Len(ctx context.Context) (int, error) {
	n, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, classify("len", err)
	}
	return int(n), nil
}

// Close closes the underlying client.
func (q *Queue) Close() error {
	return q.client.Close()
}

// classify wraps broker faults as storage errors so the resilience layer
// can count them toward the circuit breaker. Context errors pass through.
func classify(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return domain.NewStorageError(op, err)
}
