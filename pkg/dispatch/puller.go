package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/tradewire/botcore/internal/logging"
	"github.com/tradewire/botcore/pkg/domain"
	"github.com/tradewire/botcore/pkg/ports"
)

// ErrCircuitOpen is returned by Pull while the breaker is open or a
// half-open trial is already in flight. The dispatch loop backs off
// without touching the queue.
var ErrCircuitOpen = errors.New("event queue circuit is open")

// PullerConfig configures the resilience wrapper around queue reads.
type PullerConfig struct {
	// PollTimeout bounds each dequeue (long-poll). A timeout with no
	// event is normal and closes nothing.
	PollTimeout time.Duration

	// TripThreshold is the number of consecutive storage errors that
	// opens the circuit.
	TripThreshold uint32

	// CoolDown is how long the circuit stays open before allowing a
	// single half-open trial pull.
	CoolDown time.Duration
}

// DefaultPullerConfig mirrors the production defaults.
var DefaultPullerConfig = PullerConfig{
	PollTimeout:   5 * time.Second,
	TripThreshold: 3,
	CoolDown:      time.Minute,
}

// Puller wraps queue reads with a poll timeout and a circuit breaker, so a
// failing broker is neither hammered nor allowed to flood the logs.
type Puller struct {
	queue   ports.EventQueue
	breaker *gobreaker.CircuitBreaker[domain.Event]
	cfg     PullerConfig
	logger  *slog.Logger
}

// PullerOption configures the Puller.
type PullerOption func(*pullerOptions)

type pullerOptions struct {
	logger        *slog.Logger
	onStateChange func(from, to gobreaker.State)
}

// WithPullerLogger sets the puller's logger.
func WithPullerLogger(logger *slog.Logger) PullerOption {
	return func(o *pullerOptions) {
		o.logger = logger
	}
}

// WithStateChangeHook registers a callback for breaker transitions
// (observability hook).
func WithStateChangeHook(hook func(from, to gobreaker.State)) PullerOption {
	return func(o *pullerOptions) {
		o.onStateChange = hook
	}
}

// NewPuller creates a resilient puller over the queue.
func NewPuller(queue ports.EventQueue, cfg PullerConfig, opts ...PullerOption) *Puller {
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = DefaultPullerConfig.PollTimeout
	}
	if cfg.TripThreshold == 0 {
		cfg.TripThreshold = DefaultPullerConfig.TripThreshold
	}
	if cfg.CoolDown <= 0 {
		cfg.CoolDown = DefaultPullerConfig.CoolDown
	}

	options := &pullerOptions{logger: logging.NewNop()}
	for _, opt := range opts {
		opt(options)
	}
	logger := options.logger

	settings := gobreaker.Settings{
		Name: "event-queue",
		// Half-open allows exactly one trial pull.
		MaxRequests: 1,
		Timeout:     cfg.CoolDown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.TripThreshold
		},
		// Only storage-level faults count as failures. A no-event timeout
		// is a normal long-poll outcome and cancellation is shutdown.
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, domain.ErrNoEvent) ||
				errors.Is(err, context.Canceled) ||
				errors.Is(err, context.DeadlineExceeded)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("event queue circuit state changed",
				"from", from.String(),
				"to", to.String(),
			)
			if options.onStateChange != nil {
				options.onStateChange(from, to)
			}
		},
	}

	return &Puller{
		queue:   queue,
		breaker: gobreaker.NewCircuitBreaker[domain.Event](settings),
		cfg:     cfg,
		logger:  logger,
	}
}

// Pull performs one guarded dequeue. Returns domain.ErrNoEvent when the
// poll timed out empty, ErrCircuitOpen while the breaker rejects calls,
// the context error on cancellation, and the storage error otherwise.
func (p *Puller) Pull(ctx context.Context) (domain.Event, error) {
	evt, err := p.breaker.Execute(func() (domain.Event, error) {
		return p.queue.Dequeue(ctx, p.cfg.PollTimeout)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return domain.Event{}, ErrCircuitOpen
		}
		return domain.Event{}, err
	}
	return evt, nil
}

// State exposes the breaker state (for health reporting).
func (p *Puller) State() gobreaker.State {
	return p.breaker.State()
}

// CoolDown reports the configured open-circuit window.
func (p *Puller) CoolDown() time.Duration {
	return p.cfg.CoolDown
}
