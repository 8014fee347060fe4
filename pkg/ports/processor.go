package ports

import (
	"context"

	"github.com/tradewire/botcore/pkg/domain"
)

// Processor handles one event. The retry executor may invoke it several
// times with the identical event, so implementations must be idempotent.
// A returned error is treated as transient unless it is the context's
// cancellation error.
type Processor func(ctx context.Context, evt domain.Event) error
