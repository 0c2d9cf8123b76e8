package main

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/leadpulse/backend/internal/services"
	"go.uber.org/zap"
)

// QueueSweeper runs one queue scheduler invocation
type QueueSweeper interface {
	// RunOnce polls outstanding batches, claims ready tasks, runs immediate ones and submits
	// batchable ones.
	//
	// If the claimable tasks cannot be read, the error will be returned together with the
	// statistics gathered so far.
	RunOnce(ctx context.Context) (services.SweepStats, error)
}

// LeadReconciler re-queues leads that never got an ai_intent task
type LeadReconciler interface {
	Run(ctx context.Context) (services.ReconcileStats, error)
}

// PlanCheckProducer enqueues plan_check tasks for brands whose usage period has ended
type PlanCheckProducer interface {
	Run(ctx context.Context) (int, error)
}

// Worker handles sweep triggers delivered through asynq
type Worker struct {
	logger     *zap.Logger
	sweeper    QueueSweeper
	reconciler LeadReconciler
	planChecks PlanCheckProducer
}

// NewWorker creates a new worker instance
func NewWorker(logger *zap.Logger, sweeper QueueSweeper, reconciler LeadReconciler, planChecks PlanCheckProducer) *Worker {
	return &Worker{
		logger:     logger,
		sweeper:    sweeper,
		reconciler: reconciler,
		planChecks: planChecks,
	}
}

// HandleQueueSweep handles the queue:sweep trigger
func (w *Worker) HandleQueueSweep(ctx context.Context, t *asynq.Task) error {
	jobID, _ := asynq.GetTaskID(ctx)
	started := time.Now()

	stats, err := w.sweeper.RunOnce(ctx)
	if err != nil {
		w.logger.Error("Queue sweep failed", zap.String("job_id", jobID), zap.Any("stats", stats), zap.Error(err))
		return fmt.Errorf("queue sweep failed: %w", err)
	}

	w.logger.Info("Queue sweep completed",
		zap.String("job_id", jobID),
		zap.Duration("took", time.Since(started)),
		zap.Any("stats", stats),
	)
	return nil
}

// HandleLeadReconcile handles the leads:reconcile trigger
func (w *Worker) HandleLeadReconcile(ctx context.Context, t *asynq.Task) error {
	jobID, _ := asynq.GetTaskID(ctx)

	stats, err := w.reconciler.Run(ctx)
	if err != nil {
		w.logger.Error("Lead reconciliation failed", zap.String("job_id", jobID), zap.Error(err))
		return fmt.Errorf("lead reconciliation failed: %w", err)
	}

	if stats.Found > 0 {
		w.logger.Info("Lead reconciliation completed",
			zap.String("job_id", jobID),
			zap.Int("found", stats.Found),
			zap.Int("reenqueued", stats.Reenqueued),
		)
	}
	return nil
}

// HandlePlanCheck handles the plan:check trigger
func (w *Worker) HandlePlanCheck(ctx context.Context, t *asynq.Task) error {
	jobID, _ := asynq.GetTaskID(ctx)

	created, err := w.planChecks.Run(ctx)
	if err != nil {
		w.logger.Error("Plan check scheduling failed", zap.String("job_id", jobID), zap.Error(err))
		return fmt.Errorf("plan check scheduling failed: %w", err)
	}

	if created > 0 {
		w.logger.Info("Plan checks scheduled", zap.String("job_id", jobID), zap.Int("brands", created))
	}
	return nil
}
