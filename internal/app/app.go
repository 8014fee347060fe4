// Package app wires configuration, adapters and the pipeline into a
// runnable application.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	backend "github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"

	"github.com/tradewire/botcore/internal/config"
	"github.com/tradewire/botcore/internal/metrics"
	"github.com/tradewire/botcore/internal/ops"
	"github.com/tradewire/botcore/pkg/adapters/memory"
	redisadapter "github.com/tradewire/botcore/pkg/adapters/redis"
	"github.com/tradewire/botcore/pkg/adapters/telegram"
	"github.com/tradewire/botcore/pkg/conversation"
	"github.com/tradewire/botcore/pkg/dispatch"
	"github.com/tradewire/botcore/pkg/domain"
	"github.com/tradewire/botcore/pkg/ports"
	"github.com/tradewire/botcore/pkg/session"
)

// queueDepthInterval is how often the queue length gauge is sampled.
const queueDepthInterval = 10 * time.Second

// App is the assembled application.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics

	queue      ports.EventQueue
	store      ports.StateStore
	machine    *conversation.Machine
	dispatcher *dispatch.Dispatcher
	ops        *ops.Server

	closers []func() error
}

// Build assembles the application from configuration. The registry holds
// the deployment's state definitions; messenger (optional) delivers entry
// messages to users.
func Build(cfg *config.Config, logger *slog.Logger, registry *conversation.Registry, messenger conversation.Messenger) (*App, error) {
	registry.Freeze()

	a := &App{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics.New(cfg.MetricsNamespace),
	}

	var redisClient *backend.Client
	if cfg.QueueBackend == "redis" || cfg.StateBackend == "redis" {
		redisClient = backend.NewClient(&backend.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		a.closers = append(a.closers, redisClient.Close)
	}

	switch cfg.QueueBackend {
	case "redis":
		a.queue = redisadapter.NewQueueFromClient(redisClient,
			redisadapter.WithQueueKey(cfg.QueueKey),
			redisadapter.WithMaxLen(int64(cfg.QueueCapacity)),
		)
	case "memory":
		q := memory.NewQueue(cfg.QueueCapacity)
		a.queue = q
		a.closers = append(a.closers, q.Close)
	default:
		return nil, fmt.Errorf("unknown queue backend %q", cfg.QueueBackend)
	}

	switch cfg.StateBackend {
	case "redis":
		a.store = redisadapter.NewStoreFromClient(redisClient,
			redisadapter.WithPrefix(cfg.StatePrefix),
			redisadapter.WithTTL(cfg.StateTTL),
		)
	case "memory":
		a.store = memory.NewStore()
	default:
		return nil, fmt.Errorf("unknown state backend %q", cfg.StateBackend)
	}

	a.machine = conversation.NewMachine(registry, a.store,
		conversation.WithMessenger(messenger),
		conversation.WithLogger(logger),
		conversation.WithUnknownStateHook(func(userID, name string) {
			a.metrics.UnknownStates.Inc()
		}),
	)

	var notifier ports.Notifier = ports.NopNotifier{}
	if cfg.TelegramToken != "" && cfg.TelegramAdminChatID != "" {
		notifier = telegram.NewNotifier(cfg.TelegramToken, cfg.TelegramAdminChatID)
	} else {
		logger.Warn("no operator notifier configured, permanent failures are log-only")
	}

	sessionOpts := []session.Option{session.WithLogger(logger)}
	if redisClient != nil {
		sessionOpts = append(sessionOpts, session.WithLocker(redisadapter.NewLocker(redisClient, cfg.StatePrefix)))
	}
	sessions := session.NewManager(sessionOpts...)

	process := func(ctx context.Context, evt domain.Event) error {
		if err := a.machine.ProcessUpdate(ctx, evt.UserID, evt); err != nil {
			return err
		}
		a.metrics.EventsProcessed.WithLabelValues(metrics.OutcomeSuccess).Inc()
		return nil
	}

	exec := dispatch.NewExecutor(process,
		dispatch.ExecutorConfig{
			MaxRetries:    uint64(cfg.RetryCount),
			BackoffBase:   cfg.BackoffBase,
			BackoffFactor: dispatch.DefaultExecutorConfig.BackoffFactor,
			Jitter:        dispatch.DefaultExecutorConfig.Jitter,
		},
		dispatch.WithNotifier(notifier),
		dispatch.WithSessions(sessions),
		dispatch.WithExecutorLogger(logger),
		dispatch.WithRetryHook(func(evt domain.Event, err error, delay time.Duration) {
			a.metrics.RetriesTotal.Inc()
		}),
		dispatch.WithDeadLetterHook(func(evt domain.Event, err error) {
			a.metrics.EventsProcessed.WithLabelValues(metrics.OutcomeDeadLetter).Inc()
		}),
	)

	puller := dispatch.NewPuller(a.queue,
		dispatch.PullerConfig{
			PollTimeout:   cfg.PollTimeout,
			TripThreshold: uint32(cfg.BreakerThreshold),
			CoolDown:      cfg.BreakerCoolDown,
		},
		dispatch.WithPullerLogger(logger),
		dispatch.WithStateChangeHook(func(from, to gobreaker.State) {
			a.metrics.ObserveBreaker(to)
		}),
	)

	a.dispatcher = dispatch.NewDispatcher(puller, exec,
		dispatch.DispatcherConfig{MaxConcurrent: int64(cfg.MaxConcurrent)},
		dispatch.WithDispatcherLogger(logger),
		dispatch.WithInFlightHook(func(delta int) {
			if delta > 0 {
				a.metrics.EventsConsumed.Inc()
				a.metrics.InFlight.Inc()
			} else {
				a.metrics.InFlight.Dec()
			}
		}),
	)

	a.ops = ops.NewServer(cfg.OpsHost, cfg.OpsPort, logger, a.metrics.Handler(), func() map[string]any {
		return map[string]any{
			"queue_backend": cfg.QueueBackend,
			"state_backend": cfg.StateBackend,
			"breaker":       puller.State().String(),
		}
	})

	return a, nil
}

// Queue exposes the event queue for the ingress collaborator.
func (a *App) Queue() ports.EventQueue {
	return a.queue
}

// Machine exposes the conversation machine for command handlers that start
// flows (e.g. a /subscribe command transitioning the user into a state).
func (a *App) Machine() *conversation.Machine {
	return a.machine
}

// Run starts the ops server and the dispatch loop, blocking until ctx is
// cancelled, then shuts everything down in order.
func (a *App) Run(ctx context.Context) error {
	opsErr := make(chan error, 1)
	go func() {
		opsErr <- a.ops.Start()
	}()
	go a.sampleQueueDepth(ctx)

	runErr := a.dispatcher.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.ops.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("ops server shutdown failed", "err", err)
	}
	if err := <-opsErr; err != nil {
		a.logger.Warn("ops server exited with error", "err", err)
	}

	for _, closer := range a.closers {
		if err := closer(); err != nil {
			a.logger.Warn("failed to close resource", "err", err)
		}
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

// sampleQueueDepth keeps the queue depth gauge current.
func (a *App) sampleQueueDepth(ctx context.Context) {
	ticker := time.NewTicker(queueDepthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := a.queue.Len(ctx); err == nil {
				a.metrics.QueueDepth.Set(float64(n))
			}
		}
	}
}
