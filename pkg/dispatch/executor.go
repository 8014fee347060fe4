package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/tradewire/botcore/internal/logging"
	"github.com/tradewire/botcore/pkg/domain"
	"github.com/tradewire/botcore/pkg/ports"
	"github.com/tradewire/botcore/pkg/session"
)

// ExecutorConfig configures per-event retry behavior.
type ExecutorConfig struct {
	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries uint64

	// BackoffBase is the delay before the first retry; each subsequent
	// delay is multiplied by BackoffFactor.
	BackoffBase   time.Duration
	BackoffFactor float64

	// Jitter is the randomization factor applied to each delay
	// (0 disables jitter, useful in tests).
	Jitter float64
}

// DefaultExecutorConfig mirrors the production defaults: three retries at
// roughly 2s/4s/8s with jitter against thundering herds.
var DefaultExecutorConfig = ExecutorConfig{
	MaxRetries:    3,
	BackoffBase:   2 * time.Second,
	BackoffFactor: 2.0,
	Jitter:        0.25,
}

// notifyTimeout bounds the operator alert once the owning context is gone.
const notifyTimeout = 10 * time.Second

// Executor runs a single event's processing with bounded retries. On
// exhaustion it alerts the operator channel and discards the event instead
// of re-throwing into the dispatch loop, so one poisoned event can never
// stall consumption.
type Executor struct {
	process  ports.Processor
	notifier ports.Notifier
	sessions *session.Manager
	logger   *slog.Logger
	cfg      ExecutorConfig

	// onRetry and onDeadLetter are observability hooks.
	onRetry      func(evt domain.Event, err error, delay time.Duration)
	onDeadLetter func(evt domain.Event, err error)
}

// ExecutorOption configures the Executor.
type ExecutorOption func(*Executor)

// WithNotifier sets the operator alert channel.
func WithNotifier(n ports.Notifier) ExecutorOption {
	return func(e *Executor) {
		e.notifier = n
	}
}

// WithSessions serializes processing per user through the manager.
func WithSessions(m *session.Manager) ExecutorOption {
	return func(e *Executor) {
		e.sessions = m
	}
}

// WithExecutorLogger sets the executor's logger.
func WithExecutorLogger(logger *slog.Logger) ExecutorOption {
	return func(e *Executor) {
		e.logger = logger
	}
}

// WithRetryHook registers a callback fired before each retry wait.
func WithRetryHook(hook func(evt domain.Event, err error, delay time.Duration)) ExecutorOption {
	return func(e *Executor) {
		e.onRetry = hook
	}
}

// WithDeadLetterHook registers a callback fired when an event is discarded
// after exhausting retries.
func WithDeadLetterHook(hook func(evt domain.Event, err error)) ExecutorOption {
	return func(e *Executor) {
		e.onDeadLetter = hook
	}
}

// cfgOrDefaults fills zero values from DefaultExecutorConfig.
func cfgOrDefaults(cfg ExecutorConfig) ExecutorConfig {
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = DefaultExecutorConfig.BackoffBase
	}
	if cfg.BackoffFactor <= 0 {
		cfg.BackoffFactor = DefaultExecutorConfig.BackoffFactor
	}
	return cfg
}

// NewExecutor creates a retry executor around the processor.
func NewExecutor(process ports.Processor, cfg ExecutorConfig, opts ...ExecutorOption) *Executor {
	e := &Executor{
		process:  process,
		notifier: ports.NopNotifier{},
		logger:   logging.NewNop(),
	}
	e.cfg = cfgOrDefaults(cfg)
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute processes one event to a terminal outcome. It returns an error
// only for cancellation; transient failures are retried internally and a
// permanent failure is alerted and swallowed, never propagated.
func (e *Executor) Execute(ctx context.Context, evt domain.Event) error {
	var attempts int

	operation := func() error {
		attempts++
		err := e.runOnce(ctx, evt)
		if err == nil {
			return nil
		}
		// Cancellation aborts immediately and is never retried.
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(e.newBackOff(), e.cfg.MaxRetries), ctx)

	err := backoff.RetryNotify(operation, policy, func(err error, delay time.Duration) {
		e.logger.Warn("event processing failed, will retry",
			"event_id", evt.ID,
			"event_type", evt.Type,
			"user_id", evt.UserID,
			"attempt", attempts,
			"retry_in", delay,
			"err", err,
		)
		if e.onRetry != nil {
			e.onRetry(evt, err, delay)
		}
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	e.deadLetter(ctx, evt, err, attempts)
	return nil
}

// runOnce executes the processor, serialized per user when a session
// manager is configured.
func (e *Executor) runOnce(ctx context.Context, evt domain.Event) error {
	if e.sessions == nil || evt.UserID == "" {
		return e.process(ctx, evt)
	}
	return e.sessions.WithLock(ctx, evt.UserID, func(ctx context.Context) error {
		return e.process(ctx, evt)
	})
}

// newBackOff builds the exponential schedule for one event.
func (e *Executor) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.cfg.BackoffBase
	b.Multiplier = e.cfg.BackoffFactor
	b.RandomizationFactor = e.cfg.Jitter
	b.MaxInterval = 5 * time.Minute
	b.MaxElapsedTime = 0 // attempts are bounded by count, not wall clock
	return b
}

// deadLetter logs the permanent failure and alerts operators, best-effort.
func (e *Executor) deadLetter(ctx context.Context, evt domain.Event, err error, attempts int) {
	e.logger.Error("event processing failed permanently, discarding",
		"event_id", evt.ID,
		"event_type", evt.Type,
		"user_id", evt.UserID,
		"attempts", attempts,
		"err", err,
	)
	if e.onDeadLetter != nil {
		e.onDeadLetter(evt, err)
	}

	// The owning context may already be cancelled (shutdown) or about to
	// be; give the alert its own deadline.
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	alert := fmt.Sprintf(
		"⚠️ Event discarded after %d attempts\nID: %s\nType: %s\nUser: %s\nError: %v",
		attempts, evt.ID, evt.Type, evt.UserID, err,
	)
	if nerr := e.notifier.Notify(nctx, alert); nerr != nil {
		e.logger.Warn("failed to deliver operator alert",
			"event_id", evt.ID,
			"err", nerr,
		)
	}
}
