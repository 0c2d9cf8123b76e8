package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/leadpulse/backend/internal/models"
	"github.com/leadpulse/backend/internal/repositories"
	"go.uber.org/zap"
)

// SchedulerTaskRepository is the task store used by the queue scheduler
type SchedulerTaskRepository interface {
	GetClaimable(ctx context.Context, limit int, staleBefore time.Time) ([]models.Task, error)
	ClaimPending(ctx context.Context, id int, now time.Time) (bool, error)
	ReclaimStale(ctx context.Context, id int, staleBefore, now time.Time) (bool, error)
	UpdateStatus(ctx context.Context, id int, from, to models.TaskStatus, errorMsg string, now time.Time) error
}

// BatchTracker submits and polls external inference batches
type BatchTracker interface {
	PollOutstanding(ctx context.Context) PollStats
	Submit(ctx context.Context, brandID int, tasks []models.Task) (string, error)
}

// TaskExecutor runs one immediate task
type TaskExecutor interface {
	Execute(ctx context.Context, task *models.Task) error
}

// SweepStats summarizes one scheduler invocation
type SweepStats struct {
	Poll             PollStats `json:"poll"`
	Fetched          int       `json:"fetched"`
	Claimed          int       `json:"claimed"`
	Skipped          int       `json:"skipped"`
	Completed        int       `json:"completed"`
	Failed           int       `json:"failed"`
	Submitted        int       `json:"submitted"`
	BatchesSubmitted int       `json:"batches_submitted"`
}

type queueScheduler struct {
	tasks        SchedulerTaskRepository
	tracker      BatchTracker
	executors    map[models.TaskType]TaskExecutor
	fetchLimit   int
	claimTimeout time.Duration
	maxBatchSize int
	logger       *zap.Logger
	now          func() time.Time
}

// NewQueueScheduler creates the queue scheduler. maxBatchSize caps the number of requests in
// one external batch; 0 means no cap.
func NewQueueScheduler(tasks SchedulerTaskRepository, tracker BatchTracker, fetchLimit int, claimTimeout time.Duration, maxBatchSize int, logger *zap.Logger) *queueScheduler {
	return &queueScheduler{
		tasks:        tasks,
		tracker:      tracker,
		executors:    make(map[models.TaskType]TaskExecutor),
		fetchLimit:   fetchLimit,
		claimTimeout: claimTimeout,
		maxBatchSize: maxBatchSize,
		logger:       logger,
		now:          time.Now,
	}
}

// RegisterExecutor sets the executor of an immediate task type
func (s *queueScheduler) RegisterExecutor(taskType models.TaskType, executor TaskExecutor) {
	s.executors[taskType] = executor
}

// RunOnce performs one sweep: poll outstanding batches, claim work, submit batchable tasks
// grouped by brand and run immediate tasks one at a time. Overlapping invocations are safe because
// every claim is a conditional update. Batchable tasks go first so their claims cannot time out
// behind slow immediate tasks.
func (s *queueScheduler) RunOnce(ctx context.Context) (SweepStats, error) {
	var stats SweepStats

	// Poll first so a finished batch is reconciled before new work is claimed
	stats.Poll = s.tracker.PollOutstanding(ctx)

	// started_at has second precision and doubles as the claim token
	now := s.now().Truncate(time.Second)
	staleBefore := now.Add(-s.claimTimeout)
	candidates, err := s.tasks.GetClaimable(ctx, s.fetchLimit, staleBefore)
	if err != nil {
		return stats, fmt.Errorf("failed to fetch claimable tasks: %w", err)
	}
	stats.Fetched = len(candidates)

	var immediate, batchable []models.Task
	for _, task := range candidates {
		claimed, err := s.claim(ctx, task, staleBefore, now)
		if err != nil {
			s.logger.Warn("failed to claim task", zap.Int("task_id", task.ID), zap.Error(err))
			stats.Skipped++
			continue
		}
		if !claimed {
			stats.Skipped++
			continue
		}
		stats.Claimed++

		task.Status = models.TaskStatusProcessing
		startedAt := now
		task.StartedAt = &startedAt
		if task.TaskType.IsBatchable() {
			batchable = append(batchable, task)
		} else {
			immediate = append(immediate, task)
		}
	}

	for _, group := range groupForSubmission(batchable, s.maxBatchSize) {
		if _, err := s.tracker.Submit(ctx, group.brandID, group.tasks); err != nil {
			s.logger.Error("batch submission failed",
				zap.Int("brand_id", group.brandID),
				zap.Int("tasks", len(group.tasks)),
				zap.Error(err),
			)
			continue
		}
		stats.Submitted += len(group.tasks)
		stats.BatchesSubmitted++
	}

	for i := range immediate {
		if s.execute(ctx, &immediate[i]) {
			stats.Completed++
		} else {
			stats.Failed++
		}
	}

	s.logger.Info("queue sweep finished",
		zap.Int("batches_polled", stats.Poll.Polled),
		zap.Int("batches_reconciled", stats.Poll.Reconciled),
		zap.Int("fetched", stats.Fetched),
		zap.Int("claimed", stats.Claimed),
		zap.Int("skipped", stats.Skipped),
		zap.Int("completed", stats.Completed),
		zap.Int("failed", stats.Failed),
		zap.Int("submitted", stats.Submitted),
	)
	return stats, nil
}

func (s *queueScheduler) claim(ctx context.Context, task models.Task, staleBefore, now time.Time) (bool, error) {
	if err := models.ValidateTransition(task.Status, models.TaskStatusProcessing); err != nil {
		return false, err
	}
	if task.Status == models.TaskStatusProcessing {
		return s.tasks.ReclaimStale(ctx, task.ID, staleBefore, now)
	}
	return s.tasks.ClaimPending(ctx, task.ID, now)
}

// execute runs one claimed immediate task and records its outcome. It reports success.
func (s *queueScheduler) execute(ctx context.Context, task *models.Task) bool {
	log := s.logger.With(zap.Int("task_id", task.ID), zap.String("task_type", string(task.TaskType)))

	err := s.runExecutor(ctx, task)

	to := models.TaskStatusCompleted
	errMsg := ""
	if err != nil {
		to = models.TaskStatusFailed
		errMsg = err.Error()
	}

	if uerr := s.tasks.UpdateStatus(ctx, task.ID, models.TaskStatusProcessing, to, errMsg, s.now()); uerr != nil {
		if errors.Is(uerr, repositories.ErrTaskStatusConflict) {
			log.Warn("task status changed while executing", zap.Error(uerr))
		} else {
			log.Error("failed to record task outcome", zap.Error(uerr))
		}
		return false
	}

	if err != nil {
		log.Warn("task failed", zap.Error(err))
		return false
	}
	log.Debug("task completed")
	return true
}

func (s *queueScheduler) runExecutor(ctx context.Context, task *models.Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("executor panic: %v", r)
		}
	}()

	executor, ok := s.executors[task.TaskType]
	if !ok {
		return fmt.Errorf("no executor registered for task type %q", task.TaskType)
	}
	return executor.Execute(ctx, task)
}

type submissionGroup struct {
	brandID int
	tasks   []models.Task
}

// groupForSubmission groups batchable tasks by brand in order of first appearance, so the
// highest-priority brand goes first, and splits groups larger than maxSize
func groupForSubmission(tasks []models.Task, maxSize int) []submissionGroup {
	byBrand := make(map[int][]models.Task)
	var brands []int
	for _, task := range tasks {
		if _, ok := byBrand[task.BrandID]; !ok {
			brands = append(brands, task.BrandID)
		}
		byBrand[task.BrandID] = append(byBrand[task.BrandID], task)
	}

	var groups []submissionGroup
	for _, brandID := range brands {
		brandTasks := byBrand[brandID]
		for len(brandTasks) > 0 {
			n := len(brandTasks)
			if maxSize > 0 && n > maxSize {
				n = maxSize
			}
			groups = append(groups, submissionGroup{brandID: brandID, tasks: brandTasks[:n]})
			brandTasks = brandTasks[n:]
		}
	}
	return groups
}
