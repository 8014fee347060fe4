package ports

import (
	"context"
	"time"
)

// UnlockFunc releases a distributed lock.
type UnlockFunc func(ctx context.Context) error

// DistributedLocker coordinates per-user processing across replicas. The
// session manager takes a local lock first, then the distributed one, so a
// user's events are serialized even when consumers run on several
// instances.
type DistributedLocker interface {
	// Lock acquires the lock for key, blocking until acquired or ctx is
	// done. The lock self-expires after ttl as a crash safety net; the
	// returned UnlockFunc MUST still be called on the normal path.
	Lock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error)
}
