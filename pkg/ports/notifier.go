package ports

import "context"

// Notifier delivers free-text alerts to operators. Delivery is
// best-effort: callers log a failed Notify and move on, a broken alert
// channel must never escalate into the pipeline.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

// NopNotifier discards all alerts. Used when no operator channel is
// configured and as a test default.
type NopNotifier struct{}

func (NopNotifier) Notify(ctx context.Context, message string) error { return nil }
