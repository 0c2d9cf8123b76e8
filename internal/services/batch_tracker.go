package services

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/leadpulse/backend/internal/clients/inference"
	"github.com/leadpulse/backend/internal/models"
	"go.uber.org/zap"
)

// BatchInferenceClient is the external batch-inference service
type BatchInferenceClient interface {
	CreateBatch(ctx context.Context, requests []inference.Request) (string, error)
	GetBatchStatus(ctx context.Context, handle string) (*inference.BatchStatus, error)
	GetResults(ctx context.Context, handle string) ([]inference.Result, error)
}

// TrackerTaskRepository is the task store used by the batch tracker
type TrackerTaskRepository interface {
	RenewClaim(ctx context.Context, id int, claimedAt, now time.Time) (bool, error)
	AttachBatch(ctx context.Context, ids []int, handle string) (int64, error)
	FinishMany(ctx context.Context, ids []int, to models.TaskStatus, errorMsg string, now time.Time) (int64, error)
}

// TrackerBatchRepository is the batch store used by the batch tracker
type TrackerBatchRepository interface {
	Create(ctx context.Context, batch *models.Batch) error
	GetProcessing(ctx context.Context) ([]models.Batch, error)
	MarkCompleted(ctx context.Context, id int, now time.Time) (bool, error)
}

// TrackerLeadRepository is the lead store used by the batch tracker
type TrackerLeadRepository interface {
	UpdateIntentScore(ctx context.Context, leadID int, score *int) (bool, error)
	MarkProcessed(ctx context.Context, ids []int) (int64, error)
}

// StaleBatchReporter is told about batches the external service has not finished in time
type StaleBatchReporter interface {
	ReportStale(ctx context.Context, batch models.Batch, age time.Duration)
}

// PollStats summarizes one polling pass over outstanding batches
type PollStats struct {
	Polled     int `json:"polled"`
	Reconciled int `json:"reconciled"`
	Stale      int `json:"stale"`
	Errors     int `json:"errors"`
}

// scorePattern matches signed integers and ranges such as "1-10"
var scorePattern = regexp.MustCompile(`-?\d+(?:-\d+)?`)

// ParseIntentScore extracts the first integer of a model response. Ranges like "1-10" restate
// the scale and are skipped. A negative number or anything outside 1-10 yields nil rather than a
// guessed default.
func ParseIntentScore(text string) *int {
	for _, match := range scorePattern.FindAllString(text, -1) {
		if strings.Contains(match[1:], "-") {
			continue
		}
		score, err := strconv.Atoi(match)
		if err != nil || score < 1 || score > 10 {
			return nil
		}
		return &score
	}
	return nil
}

type batchTracker struct {
	client     BatchInferenceClient
	tasks      TrackerTaskRepository
	batches    TrackerBatchRepository
	leads      TrackerLeadRepository
	stale      StaleBatchReporter
	staleAfter time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

// NewBatchTracker creates the batch lifecycle tracker. A zero staleAfter disables stale reporting.
func NewBatchTracker(
	client BatchInferenceClient,
	tasks TrackerTaskRepository,
	batches TrackerBatchRepository,
	leads TrackerLeadRepository,
	stale StaleBatchReporter,
	staleAfter time.Duration,
	logger *zap.Logger,
) *batchTracker {
	return &batchTracker{
		client:     client,
		tasks:      tasks,
		batches:    batches,
		leads:      leads,
		stale:      stale,
		staleAfter: staleAfter,
		logger:     logger,
		now:        time.Now,
	}
}

// Submit sends claimed ai_intent tasks of one brand as a single external batch, records the
// batch and attaches its handle to the tasks. Tasks must already be processing, with StartedAt
// holding the claim time. Tasks whose claim was taken over by another invocation are left out.
// On submission failure every task is failed and its lead marked processed without a score.
func (t *batchTracker) Submit(ctx context.Context, brandID int, tasks []models.Task) (string, error) {
	if len(tasks) == 0 {
		return "", nil
	}

	requests := make([]inference.Request, 0, len(tasks))
	submitted := make([]models.Task, 0, len(tasks))
	taskIDs := make([]int, 0, len(tasks))
	leadIDs := make([]int, 0, len(tasks))
	usedIDs := make(map[string]struct{}, len(tasks))
	renewedAt := t.now().Truncate(time.Second)

	for i := range tasks {
		task := &tasks[i]

		if !t.renewClaim(ctx, task, renewedAt) {
			continue
		}

		var payload models.AIIntentPayload
		if err := json.Unmarshal(task.Payload, &payload); err != nil {
			t.failTasks(ctx, []models.Task{*task}, fmt.Sprintf("invalid ai_intent payload: %v", err))
			continue
		}

		correlation := models.CorrelationForTask(task)
		if _, dup := usedIDs[correlation.String()]; dup {
			// Two tasks for one lead in the same batch; the second correlates by task
			correlation = models.TaskCorrelation{TaskID: task.ID}
		}
		usedIDs[correlation.String()] = struct{}{}

		requests = append(requests, inference.Request{
			CustomID: correlation.String(),
			Prompt:   BuildIntentPrompt(payload.Conversation),
		})
		submitted = append(submitted, *task)
		taskIDs = append(taskIDs, task.ID)
		leadIDs = append(leadIDs, leadIDOf(task))
	}

	if len(requests) == 0 {
		return "", nil
	}

	handle, err := t.client.CreateBatch(ctx, requests)
	if err != nil {
		t.failTasks(ctx, submitted, fmt.Sprintf("batch submission failed: %v", err))
		return "", fmt.Errorf("failed to submit batch for brand %d: %w", brandID, err)
	}

	batch := &models.Batch{
		BatchHandle: handle,
		BrandID:     brandID,
		TaskIDs:     taskIDs,
		LeadIDs:     leadIDs,
	}
	if err := t.batches.Create(ctx, batch); err != nil {
		// The tasks keep their claim without a handle and are re-claimed after the claim timeout
		t.logger.Error("external batch submitted but not recorded",
			zap.String("batch_handle", handle),
			zap.Int("brand_id", brandID),
			zap.Ints("task_ids", taskIDs),
			zap.Error(err),
		)
		return "", fmt.Errorf("failed to record batch %s: %w", handle, err)
	}

	attached, err := t.tasks.AttachBatch(ctx, taskIDs, handle)
	if err != nil {
		t.logger.Error("failed to attach batch handle to tasks",
			zap.String("batch_handle", handle),
			zap.Ints("task_ids", taskIDs),
			zap.Error(err),
		)
	} else if int(attached) != len(taskIDs) {
		t.logger.Warn("batch handle attached to fewer tasks than submitted",
			zap.String("batch_handle", handle),
			zap.Int("submitted", len(taskIDs)),
			zap.Int64("attached", attached),
		)
	}

	t.logger.Info("batch submitted",
		zap.String("batch_handle", handle),
		zap.Int("brand_id", brandID),
		zap.Int("tasks", len(taskIDs)),
	)
	return handle, nil
}

// renewClaim pushes the claim of task forward so no other invocation can re-claim it while the
// batch is created. It reports false when the claim was lost.
func (t *batchTracker) renewClaim(ctx context.Context, task *models.Task, renewedAt time.Time) bool {
	log := t.logger.With(zap.Int("task_id", task.ID))
	if task.StartedAt == nil {
		log.Warn("ai_intent task has no claim time, skipping submission")
		return false
	}

	claimedAt := *task.StartedAt
	if !renewedAt.After(claimedAt) {
		renewedAt = claimedAt.Add(time.Second)
	}

	renewed, err := t.tasks.RenewClaim(ctx, task.ID, claimedAt, renewedAt)
	if err != nil {
		log.Warn("failed to renew task claim, skipping submission", zap.Error(err))
		return false
	}
	if !renewed {
		log.Info("task re-claimed by another invocation, skipping submission")
		return false
	}
	task.StartedAt = &renewedAt
	return true
}

func (t *batchTracker) failTasks(ctx context.Context, tasks []models.Task, reason string) {
	if len(tasks) == 0 {
		return
	}

	ids := make([]int, 0, len(tasks))
	var leadIDs []int
	for _, task := range tasks {
		ids = append(ids, task.ID)
		if id := leadIDOf(&task); id > 0 {
			leadIDs = append(leadIDs, id)
		}
	}

	if _, err := t.tasks.FinishMany(ctx, ids, models.TaskStatusFailed, reason, t.now()); err != nil {
		t.logger.Error("failed to mark tasks failed", zap.Ints("task_ids", ids), zap.Error(err))
	}
	if _, err := t.leads.MarkProcessed(ctx, leadIDs); err != nil {
		t.logger.Error("failed to mark leads processed", zap.Ints("lead_ids", leadIDs), zap.Error(err))
	}
	t.logger.Warn("ai_intent tasks failed", zap.Ints("task_ids", ids), zap.String("reason", reason))
}

// PollOutstanding checks every processing batch once. Batches that are still running are
// left alone; ended batches are reconciled. A failure on one batch is logged and retried on
// the next invocation without affecting the others.
func (t *batchTracker) PollOutstanding(ctx context.Context) PollStats {
	var stats PollStats

	batches, err := t.batches.GetProcessing(ctx)
	if err != nil {
		t.logger.Error("failed to load processing batches", zap.Error(err))
		stats.Errors++
		return stats
	}

	for _, batch := range batches {
		stats.Polled++
		log := t.logger.With(zap.String("batch_handle", batch.BatchHandle), zap.Int("batch_id", batch.ID))

		status, err := t.client.GetBatchStatus(ctx, batch.BatchHandle)
		if err != nil {
			log.Warn("failed to poll batch status", zap.Error(err))
			stats.Errors++
			continue
		}

		if !status.Ended() {
			if age := t.now().Sub(batch.CreatedAt); t.staleAfter > 0 && age > t.staleAfter {
				stats.Stale++
				if t.stale != nil {
					t.stale.ReportStale(ctx, batch, age)
				}
			}
			continue
		}

		if err := t.reconcile(ctx, batch); err != nil {
			log.Warn("failed to reconcile batch", zap.Error(err))
			stats.Errors++
			continue
		}
		stats.Reconciled++
	}

	return stats
}

// reconcile applies the results of an ended batch. Per-result failures are isolated.
func (t *batchTracker) reconcile(ctx context.Context, batch models.Batch) error {
	results, err := t.client.GetResults(ctx, batch.BatchHandle)
	if err != nil {
		return err
	}

	log := t.logger.With(zap.String("batch_handle", batch.BatchHandle))

	inBatch := make(map[int]struct{}, len(batch.LeadIDs))
	for _, id := range batch.LeadIDs {
		if id > 0 {
			inBatch[id] = struct{}{}
		}
	}

	handled := make(map[int]struct{}, len(results))
	scored := 0
	for _, result := range results {
		leadID, ok := t.applyResult(ctx, log, batch, inBatch, result)
		if ok {
			handled[leadID] = struct{}{}
			if result.Succeeded() {
				scored++
			}
		}
	}

	var missing []int
	for id := range inBatch {
		if _, ok := handled[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		log.Warn("leads without batch result marked processed without score", zap.Ints("lead_ids", missing))
		if _, err := t.leads.MarkProcessed(ctx, missing); err != nil {
			log.Error("failed to mark leads processed", zap.Ints("lead_ids", missing), zap.Error(err))
		}
	}

	now := t.now()
	if _, err := t.tasks.FinishMany(ctx, batch.TaskIDs, models.TaskStatusCompleted, "", now); err != nil {
		return fmt.Errorf("failed to complete batch tasks: %w", err)
	}

	completed, err := t.batches.MarkCompleted(ctx, batch.ID, now)
	if err != nil {
		return err
	}
	if !completed {
		log.Debug("batch already completed by another invocation")
	}

	log.Info("batch reconciled",
		zap.Int("results", len(results)),
		zap.Int("succeeded", scored),
		zap.Int("tasks", len(batch.TaskIDs)),
	)
	return nil
}

// applyResult writes one result to its lead and reports the lead it resolved to
func (t *batchTracker) applyResult(ctx context.Context, log *zap.Logger, batch models.Batch, inBatch map[int]struct{}, result inference.Result) (leadID int, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("panic while applying batch result", zap.String("custom_id", result.CustomID), zap.Any("panic", r))
			ok = false
		}
	}()

	correlation, err := models.ParseCorrelationID(result.CustomID)
	if err != nil {
		log.Warn("unrecognized batch result", zap.String("custom_id", result.CustomID), zap.String("error", result.Error))
		return 0, false
	}

	switch c := correlation.(type) {
	case models.LeadCorrelation:
		leadID = c.LeadID
	case models.TaskCorrelation:
		leadID = batch.LeadIDForTask(c.TaskID)
	}
	if _, member := inBatch[leadID]; !member {
		log.Warn("batch result does not belong to a lead of this batch",
			zap.String("custom_id", result.CustomID),
			zap.Int("lead_id", leadID),
		)
		return 0, false
	}

	var score *int
	if result.Succeeded() {
		score = ParseIntentScore(result.Text)
		if score == nil {
			log.Info("unparseable intent score stored as null", zap.Int("lead_id", leadID), zap.String("text", result.Text))
		}
	} else {
		log.Info("batch request unsuccessful",
			zap.Int("lead_id", leadID),
			zap.String("outcome", result.Outcome),
			zap.String("error", result.Error),
		)
	}

	updated, err := t.leads.UpdateIntentScore(ctx, leadID, score)
	if err != nil {
		log.Error("failed to store intent score", zap.Int("lead_id", leadID), zap.Error(err))
		return leadID, true
	}
	if !updated {
		log.Debug("lead already processed", zap.Int("lead_id", leadID))
	}
	return leadID, true
}

func leadIDOf(task *models.Task) int {
	if task.LeadID != nil {
		return *task.LeadID
	}
	return 0
}
