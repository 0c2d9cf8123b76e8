// Package jobs defines the asynq tasks that trigger the queue sweep, the lead
// reconciliation sweep and the plan check producer
package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/hibiken/asynq"
)

// Task type names handled by cmd/worker
const (
	TypeQueueSweep    = "queue:sweep"
	TypeLeadReconcile = "leads:reconcile"
	TypePlanCheck     = "plan:check"
)

// QueueName is the asynq queue every trigger runs on
const QueueName = "sweeps"

// Enqueuer submits asynq tasks. *asynq.Client satisfies it.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// NewQueueSweepTask creates one queue sweep trigger
func NewQueueSweepTask() *asynq.Task {
	return asynq.NewTask(TypeQueueSweep, nil)
}

// NewLeadReconcileTask creates one reconciliation sweep trigger
func NewLeadReconcileTask() *asynq.Task {
	return asynq.NewTask(TypeLeadReconcile, nil)
}

// NewPlanCheckTask creates one trigger that enqueues plan_check tasks for brands whose usage
// period has ended
func NewPlanCheckTask() *asynq.Task {
	return asynq.NewTask(TypePlanCheck, nil)
}

// Options returns the enqueue options of a sweep trigger. A sweep is never retried: the next
// trigger runs a fresh one. Unique keeps at most one trigger of a kind waiting for uniqueFor.
func Options(uniqueFor time.Duration) []asynq.Option {
	opts := []asynq.Option{
		asynq.Queue(QueueName),
		asynq.MaxRetry(0),
	}
	if uniqueFor > 0 {
		opts = append(opts, asynq.Unique(uniqueFor))
	}
	return opts
}

// Enqueue submits a trigger and reports whether it was queued. An identical trigger that is
// already waiting is not an error.
func Enqueue(ctx context.Context, client Enqueuer, task *asynq.Task, uniqueFor time.Duration) (bool, error) {
	_, err := client.EnqueueContext(ctx, task, Options(uniqueFor)...)
	if errors.Is(err, asynq.ErrDuplicateTask) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
