package dispatch_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradewire/botcore/pkg/dispatch"
	"github.com/tradewire/botcore/pkg/domain"
	"github.com/tradewire/botcore/pkg/session"
)

// recordingNotifier captures operator alerts.
type recordingNotifier struct {
	mu     sync.Mutex
	alerts []string
}

func (n *recordingNotifier) Notify(ctx context.Context, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, message)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.alerts)
}

func TestExecutor_SucceedsFirstAttempt(t *testing.T) {
	notifier := &recordingNotifier{}
	var attempts int

	exec := dispatch.NewExecutor(
		func(ctx context.Context, evt domain.Event) error {
			attempts++
			return nil
		},
		dispatch.ExecutorConfig{MaxRetries: 3, BackoffBase: time.Millisecond},
		dispatch.WithNotifier(notifier),
	)

	err := exec.Execute(context.Background(), domain.NewEvent("message", "u1", nil))
	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
	assert.Zero(t, notifier.count())
}

func TestExecutor_RetriesThenRecovers(t *testing.T) {
	notifier := &recordingNotifier{}
	var attempts int

	exec := dispatch.NewExecutor(
		func(ctx context.Context, evt domain.Event) error {
			attempts++
			if attempts < 3 {
				return errors.New("transient downstream failure")
			}
			return nil
		},
		dispatch.ExecutorConfig{MaxRetries: 3, BackoffBase: 5 * time.Millisecond, BackoffFactor: 2, Jitter: 0},
		dispatch.WithNotifier(notifier),
	)

	err := exec.Execute(context.Background(), domain.NewEvent("message", "u1", nil))
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Zero(t, notifier.count(), "a recovered event must not alert operators")
}

func TestExecutor_ExhaustionAlertsOnceAndDiscards(t *testing.T) {
	notifier := &recordingNotifier{}
	var times []time.Time

	var deadLetters int
	exec := dispatch.NewExecutor(
		func(ctx context.Context, evt domain.Event) error {
			times = append(times, time.Now())
			return errors.New("poisoned event")
		},
		dispatch.ExecutorConfig{MaxRetries: 3, BackoffBase: 30 * time.Millisecond, BackoffFactor: 2, Jitter: 0},
		dispatch.WithNotifier(notifier),
		dispatch.WithDeadLetterHook(func(evt domain.Event, err error) {
			deadLetters++
		}),
	)

	evt := domain.NewEvent("message", "u1", nil)
	err := exec.Execute(context.Background(), evt)

	// The failure is terminal but handled: nothing propagates upward.
	require.NoError(t, err)

	// Initial attempt plus exactly MaxRetries retries.
	require.Len(t, times, 4)

	// Delays are strictly increasing (30ms, 60ms, 120ms with no jitter).
	gap1 := times[1].Sub(times[0])
	gap2 := times[2].Sub(times[1])
	gap3 := times[3].Sub(times[2])
	assert.Greater(t, gap2, gap1, "backoff delays must increase")
	assert.Greater(t, gap3, gap2, "backoff delays must increase")

	// Exactly one operator alert, carrying the event identity.
	require.Equal(t, 1, notifier.count())
	assert.Contains(t, notifier.alerts[0], evt.ID)
	assert.Equal(t, 1, deadLetters)
}

func TestExecutor_CancellationAbortsWithoutAlert(t *testing.T) {
	notifier := &recordingNotifier{}
	ctx, cancel := context.WithCancel(context.Background())

	var attempts int
	exec := dispatch.NewExecutor(
		func(ctx context.Context, evt domain.Event) error {
			attempts++
			cancel()
			return ctx.Err()
		},
		dispatch.ExecutorConfig{MaxRetries: 3, BackoffBase: time.Millisecond},
		dispatch.WithNotifier(notifier),
	)

	err := exec.Execute(ctx, domain.NewEvent("message", "u1", nil))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts, "cancellation must not be retried")
	assert.Zero(t, notifier.count(), "cancellation is not a failure to report")
}

func TestExecutor_CancellationDuringBackoffAborts(t *testing.T) {
	notifier := &recordingNotifier{}
	ctx, cancel := context.WithCancel(context.Background())

	var attempts int
	exec := dispatch.NewExecutor(
		func(ctx context.Context, evt domain.Event) error {
			attempts++
			if attempts == 1 {
				// Cancel while the executor waits out the first backoff.
				go func() {
					time.Sleep(20 * time.Millisecond)
					cancel()
				}()
			}
			return errors.New("transient failure")
		},
		dispatch.ExecutorConfig{MaxRetries: 3, BackoffBase: 10 * time.Second},
		dispatch.WithNotifier(notifier),
	)

	start := time.Now()
	err := exec.Execute(ctx, domain.NewEvent("message", "u1", nil))
	assert.Error(t, err)
	assert.Less(t, time.Since(start), time.Second, "cancellation must abort the backoff wait immediately")
	assert.Equal(t, 1, attempts)
	assert.Zero(t, notifier.count())
}

func TestExecutor_RetryHookFires(t *testing.T) {
	var retries int
	exec := dispatch.NewExecutor(
		func(ctx context.Context, evt domain.Event) error {
			return errors.New("transient failure")
		},
		dispatch.ExecutorConfig{MaxRetries: 2, BackoffBase: time.Millisecond, BackoffFactor: 2, Jitter: 0},
		dispatch.WithRetryHook(func(evt domain.Event, err error, delay time.Duration) {
			retries++
		}),
	)

	require.NoError(t, exec.Execute(context.Background(), domain.NewEvent("message", "u1", nil)))
	assert.Equal(t, 2, retries)
}

func TestExecutor_SerializesPerUser(t *testing.T) {
	var mu sync.Mutex
	inside := make(map[string]bool)

	exec := dispatch.NewExecutor(
		func(ctx context.Context, evt domain.Event) error {
			mu.Lock()
			require.False(t, inside[evt.UserID], "two events for one user processed concurrently")
			inside[evt.UserID] = true
			mu.Unlock()

			time.Sleep(10 * time.Millisecond)

			mu.Lock()
			inside[evt.UserID] = false
			mu.Unlock()
			return nil
		},
		dispatch.ExecutorConfig{MaxRetries: 0, BackoffBase: time.Millisecond},
		dispatch.WithSessions(session.NewManager()),
	)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = exec.Execute(context.Background(), domain.NewEvent("message", "same-user", nil))
		}()
	}
	wg.Wait()
}
