package job

import "context"

// Notifier publishes a wake-up signal when a job is enqueued so idle
// pollers can skip their timer. The queue is an optimization, never the
// source of truth: a poller that misses every notification still discovers
// the job by scanning QUEUED rows, so Notify failures are logged and
// swallowed by the caller.
type Notifier interface {
	NotifyQueued(ctx context.Context, j *Job) error
}

// NopNotifier discards notifications.
type NopNotifier struct{}

func (NopNotifier) NotifyQueued(context.Context, *Job) error { return nil }
