package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/tradewire/botcore/internal/logging"
	"github.com/tradewire/botcore/pkg/domain"
)

// DispatcherConfig configures the bounded-concurrency dispatch loop.
type DispatcherConfig struct {
	// MaxConcurrent caps how many events are mid-processing at once.
	MaxConcurrent int64

	// OpenWait is how long the loop sleeps between pulls while the
	// circuit is open, so the breaker is not polled in a tight loop.
	OpenWait time.Duration
}

// DefaultDispatcherConfig mirrors the production defaults.
var DefaultDispatcherConfig = DispatcherConfig{
	MaxConcurrent: 10,
	OpenWait:      time.Second,
}

// Dispatcher runs the consumption loop: pull, acquire a capacity unit,
// hand the event to a detached worker, pull again. The loop never waits
// for processing to finish, so ingestion rate is decoupled from
// processing rate while total concurrent work stays capped.
type Dispatcher struct {
	puller  *Puller
	exec    *Executor
	sem     *semaphore.Weighted
	cfg     DispatcherConfig
	logger  *slog.Logger
	workers sync.WaitGroup

	// onInFlight observes worker count changes (observability hook).
	onInFlight func(delta int)
}

// DispatcherOption configures the Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDispatcherLogger sets the dispatcher's logger.
func WithDispatcherLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithInFlightHook registers a callback fired with +1 when a worker starts
// and -1 when it finishes.
func WithInFlightHook(hook func(delta int)) DispatcherOption {
	return func(d *Dispatcher) {
		d.onInFlight = hook
	}
}

// NewDispatcher creates a dispatcher over a puller and an executor.
func NewDispatcher(puller *Puller, exec *Executor, cfg DispatcherConfig, opts ...DispatcherOption) *Dispatcher {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultDispatcherConfig.MaxConcurrent
	}
	if cfg.OpenWait <= 0 {
		cfg.OpenWait = DefaultDispatcherConfig.OpenWait
	}

	d := &Dispatcher{
		puller: puller,
		exec:   exec,
		sem:    semaphore.NewWeighted(cfg.MaxConcurrent),
		cfg:    cfg,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run consumes until ctx is cancelled, then drains: it returns only after
// every in-flight worker has finished. The returned error is ctx.Err().
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info("dispatcher started", "max_concurrent", d.cfg.MaxConcurrent)

	for {
		evt, err := d.puller.Pull(ctx)
		switch {
		case err == nil:
			// fall through to admission
		case errors.Is(err, domain.ErrNoEvent):
			continue
		case errors.Is(err, ErrCircuitOpen):
			if !d.sleep(ctx, d.cfg.OpenWait) {
				return d.drain(ctx)
			}
			continue
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			return d.drain(ctx)
		default:
			// Storage errors are already counted by the breaker; log and
			// keep consuming.
			d.logger.Error("dequeue failed", "err", err)
			continue
		}

		if err := d.sem.Acquire(ctx, 1); err != nil {
			// Shutdown raced the admission gate. The event was already
			// dequeued; losing it here is visible, not silent.
			d.logger.Warn("dropping event admitted during shutdown", "event_id", evt.ID)
			return d.drain(ctx)
		}

		d.workers.Add(1)
		if d.onInFlight != nil {
			d.onInFlight(+1)
		}
		go d.work(ctx, evt)
	}
}

// work processes one event on a detached goroutine. The capacity unit is
// released unconditionally, and a panicking processor is logged at the
// detachment boundary instead of killing the process.
func (d *Dispatcher) work(ctx context.Context, evt domain.Event) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("panic in event processing",
				"event_id", evt.ID,
				"panic", r,
			)
		}
		d.sem.Release(1)
		if d.onInFlight != nil {
			d.onInFlight(-1)
		}
		d.workers.Done()
	}()

	if err := d.exec.Execute(ctx, evt); err != nil {
		// Executor only surfaces cancellation; everything else is
		// handled (retried or dead-lettered) internally.
		d.logger.Debug("event processing aborted",
			"event_id", evt.ID,
			"err", err,
		)
	}
}

// sleep waits for the duration or cancellation; reports whether to go on.
func (d *Dispatcher) sleep(ctx context.Context, delay time.Duration) bool {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// drain waits for in-flight workers, then reports the loop's exit cause.
func (d *Dispatcher) drain(ctx context.Context) error {
	d.logger.Info("dispatcher stopping, draining in-flight workers")
	d.workers.Wait()
	d.logger.Info("dispatcher stopped")
	return ctx.Err()
}
