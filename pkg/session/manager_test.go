package session_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradewire/botcore/pkg/ports"
	"github.com/tradewire/botcore/pkg/session"
)

func TestManager_SerializesSameUser(t *testing.T) {
	m := session.NewManager()
	ctx := context.Background()

	var mu sync.Mutex
	var order []int
	var inside bool

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		i := i
		go func() {
			defer wg.Done()
			_ = m.WithLock(ctx, "user-1", func(ctx context.Context) error {
				mu.Lock()
				require.False(t, inside, "two holders inside the same user's lock")
				inside = true
				order = append(order, i)
				mu.Unlock()

				time.Sleep(10 * time.Millisecond)

				mu.Lock()
				inside = false
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()

	assert.Len(t, order, 5)
}

func TestManager_DifferentUsersRunConcurrently(t *testing.T) {
	m := session.NewManager()
	ctx := context.Background()

	release := make(chan struct{})
	holding := make(chan struct{})

	go func() {
		_ = m.WithLock(ctx, "user-1", func(ctx context.Context) error {
			close(holding)
			<-release
			return nil
		})
	}()
	<-holding

	// user-2 must not be blocked by user-1's lock.
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.WithLock(ctx, "user-2", func(ctx context.Context) error { return nil })
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("different user was blocked by an unrelated lock")
	}
	close(release)
}

type fakeLocker struct {
	mu      sync.Mutex
	locked  map[string]bool
	lockErr error
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{locked: make(map[string]bool)}
}

func (f *fakeLocker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lockErr != nil {
		return nil, f.lockErr
	}
	f.locked[key] = true
	return func(ctx context.Context) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.locked[key] = false
		return nil
	}, nil
}

func TestManager_UsesDistributedLocker(t *testing.T) {
	locker := newFakeLocker()
	m := session.NewManager(session.WithLocker(locker))

	err := m.WithLock(context.Background(), "user-1", func(ctx context.Context) error {
		locker.mu.Lock()
		defer locker.mu.Unlock()
		assert.True(t, locker.locked["user-1"], "distributed lock not held during fn")
		return nil
	})
	require.NoError(t, err)

	locker.mu.Lock()
	defer locker.mu.Unlock()
	assert.False(t, locker.locked["user-1"], "distributed lock not released after fn")
}

func TestManager_PropagatesFnError(t *testing.T) {
	m := session.NewManager()

	want := assert.AnError
	err := m.WithLock(context.Background(), "user-1", func(ctx context.Context) error {
		return want
	})
	assert.ErrorIs(t, err, want)
}
