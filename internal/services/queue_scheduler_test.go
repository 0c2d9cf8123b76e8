package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/leadpulse/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeTracker records submissions instead of calling the inference service
type fakeTracker struct {
	mu        sync.Mutex
	polls     int
	submitted map[int]int
	groups    [][]int
	err       error
}

func newFakeTracker() *fakeTracker {
	return &fakeTracker{submitted: make(map[int]int)}
}

func (f *fakeTracker) PollOutstanding(ctx context.Context) PollStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	return PollStats{}
}

func (f *fakeTracker) Submit(ctx context.Context, brandID int, tasks []models.Task) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	var ids []int
	for _, t := range tasks {
		f.submitted[t.ID]++
		ids = append(ids, t.ID)
	}
	f.groups = append(f.groups, ids)
	return "msgbatch_test", nil
}

// countingExecutor counts executions per task and returns err
type countingExecutor struct {
	mu    sync.Mutex
	calls map[int]int
	err   error
	panic bool
}

func (e *countingExecutor) Execute(ctx context.Context, task *models.Task) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.calls == nil {
		e.calls = make(map[int]int)
	}
	e.calls[task.ID]++
	if e.panic {
		panic("boom")
	}
	return e.err
}

type executorFunc func(ctx context.Context, task *models.Task) error

func (f executorFunc) Execute(ctx context.Context, task *models.Task) error {
	return f(ctx, task)
}

// barrierTaskStore holds every GetClaimable caller until all have fetched, so concurrent
// sweeps see the same candidates and race on the claim
type barrierTaskStore struct {
	*fakeTaskStore
	fetched sync.WaitGroup
}

func (s *barrierTaskStore) GetClaimable(ctx context.Context, limit int, staleBefore time.Time) ([]models.Task, error) {
	tasks, err := s.fakeTaskStore.GetClaimable(ctx, limit, staleBefore)
	s.fetched.Done()
	s.fetched.Wait()
	return tasks, err
}

func TestQueueScheduler_ConcurrentSweepsClaimOnce(t *testing.T) {
	var seed []models.Task
	for id := 1; id <= 20; id++ {
		taskType := models.TaskTypeAIIntent
		if id%2 == 0 {
			taskType = models.TaskTypePlanCheck
		}
		seed = append(seed, models.Task{ID: id, TaskType: taskType, BrandID: 1 + id%3, Priority: id % 4, Payload: []byte(`{}`)})
	}
	store := &barrierTaskStore{fakeTaskStore: newFakeTaskStore(seed...)}
	store.fetched.Add(2)

	tracker := newFakeTracker()
	executor := &countingExecutor{}

	var wg sync.WaitGroup
	results := make([]SweepStats, 2)
	for i := 0; i < 2; i++ {
		scheduler := NewQueueScheduler(store, tracker, 100, 30*time.Minute, 0, zap.NewNop())
		scheduler.RegisterExecutor(models.TaskTypePlanCheck, executor)
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			stats, err := scheduler.RunOnce(context.Background())
			assert.NoError(t, err)
			results[i] = stats
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 20, results[0].Fetched)
	assert.Equal(t, 20, results[1].Fetched)
	assert.Equal(t, 20, results[0].Claimed+results[1].Claimed)
	assert.Equal(t, 20, results[0].Skipped+results[1].Skipped)

	for id := 1; id <= 20; id++ {
		if id%2 == 0 {
			assert.Equal(t, 1, executor.calls[id], "task %d executed once", id)
			assert.Equal(t, models.TaskStatusCompleted, store.get(id).Status)
		} else {
			assert.Equal(t, 1, tracker.submitted[id], "task %d submitted once", id)
			assert.Equal(t, models.TaskStatusProcessing, store.get(id).Status)
		}
	}
}

func TestQueueScheduler_ImmediateOutcomes(t *testing.T) {
	tests := []struct {
		name           string
		taskType       models.TaskType
		executor       *countingExecutor
		expectedStatus models.TaskStatus
		expectedError  string
	}{
		{
			name:           "success",
			taskType:       models.TaskTypePlanCheck,
			executor:       &countingExecutor{},
			expectedStatus: models.TaskStatusCompleted,
		},
		{
			name:           "executor error",
			taskType:       models.TaskTypePlanCheck,
			executor:       &countingExecutor{err: errors.New("brand not found")},
			expectedStatus: models.TaskStatusFailed,
			expectedError:  "brand not found",
		},
		{
			name:           "executor panic",
			taskType:       models.TaskTypePlanCheck,
			executor:       &countingExecutor{panic: true},
			expectedStatus: models.TaskStatusFailed,
			expectedError:  "executor panic: boom",
		},
		{
			name:           "no executor registered",
			taskType:       models.TaskTypeLeadSync,
			executor:       &countingExecutor{},
			expectedStatus: models.TaskStatusFailed,
			expectedError:  `no executor registered for task type "lead_sync"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeTaskStore(models.Task{ID: 1, TaskType: tt.taskType, BrandID: 1})
			scheduler := NewQueueScheduler(store, newFakeTracker(), 10, time.Minute, 0, zap.NewNop())
			scheduler.RegisterExecutor(models.TaskTypePlanCheck, tt.executor)

			stats, err := scheduler.RunOnce(context.Background())

			require.NoError(t, err)
			assert.Equal(t, 1, stats.Claimed)
			task := store.get(1)
			assert.Equal(t, tt.expectedStatus, task.Status)
			assert.Equal(t, tt.expectedError, task.ErrorMessage)
			assert.NotNil(t, task.CompletedAt)
		})
	}
}

func TestQueueScheduler_ReclaimsOrphanedClaims(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	handle := "msgbatch_live"
	store := newFakeTaskStore(
		models.Task{ID: 1, TaskType: models.TaskTypeAIIntent, BrandID: 1, Status: models.TaskStatusProcessing, StartedAt: timePtr(now.Add(-2 * time.Hour))},
		models.Task{ID: 2, TaskType: models.TaskTypeAIIntent, BrandID: 1, Status: models.TaskStatusProcessing, StartedAt: timePtr(now.Add(-5 * time.Minute))},
		models.Task{ID: 3, TaskType: models.TaskTypeAIIntent, BrandID: 1, Status: models.TaskStatusProcessing, StartedAt: timePtr(now.Add(-2 * time.Hour)), BatchHandle: &handle},
	)
	tracker := newFakeTracker()
	scheduler := NewQueueScheduler(store, tracker, 10, 30*time.Minute, 0, zap.NewNop())
	scheduler.now = func() time.Time { return now }

	stats, err := scheduler.RunOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, stats.Claimed)
	assert.Equal(t, 1, tracker.submitted[1])
	assert.Zero(t, tracker.submitted[2])
	assert.Zero(t, tracker.submitted[3])
	assert.True(t, store.get(1).StartedAt.Equal(now))
}

func TestQueueScheduler_SlowImmediateTaskDoesNotResubmitBatchable(t *testing.T) {
	start := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	intent := claimedIntentTask(1, 11, start)
	intent.Status = models.TaskStatusPending
	intent.StartedAt = nil
	store := newFakeTaskStore(intent, models.Task{ID: 2, TaskType: models.TaskTypeLeadSync, BrandID: 1})

	client := newFakeInferenceClient()
	batches := newFakeBatchStore()
	leads := newFakeLeadStore(models.Lead{ID: 11, BrandID: 1, LeadEmail: "lead@example.com"})

	sweepAt := func(at time.Time) *queueScheduler {
		tracker := NewBatchTracker(client, store, batches, leads, nil, 0, zap.NewNop())
		tracker.now = func() time.Time { return at }
		scheduler := NewQueueScheduler(store, tracker, 10, 10*time.Minute, 0, zap.NewNop())
		scheduler.now = func() time.Time { return at }
		return scheduler
	}

	first := sweepAt(start)
	overlapping := sweepAt(start.Add(11 * time.Minute))

	// The lead_sync task outlives the claim timeout while another sweep runs
	var overlapStats SweepStats
	first.RegisterExecutor(models.TaskTypeLeadSync, executorFunc(func(ctx context.Context, task *models.Task) error {
		var err error
		overlapStats, err = overlapping.RunOnce(ctx)
		return err
	}))

	stats, err := first.RunOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, stats.Submitted)
	assert.Zero(t, overlapStats.Submitted)
	require.Len(t, client.requests, 1)
	processing, _ := batches.GetProcessing(context.Background())
	require.Len(t, processing, 1)
	assert.Equal(t, []int{1}, processing[0].TaskIDs)
	require.NotNil(t, store.get(1).BatchHandle)
	assert.Equal(t, processing[0].BatchHandle, *store.get(1).BatchHandle)
}

func TestQueueScheduler_PollsAndSurvivesSubmitFailure(t *testing.T) {
	store := newFakeTaskStore(models.Task{ID: 1, TaskType: models.TaskTypeAIIntent, BrandID: 1})
	tracker := newFakeTracker()
	tracker.err = errors.New("inference unavailable")
	scheduler := NewQueueScheduler(store, tracker, 10, time.Minute, 0, zap.NewNop())

	stats, err := scheduler.RunOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, tracker.polls)
	assert.Equal(t, 1, stats.Claimed)
	assert.Zero(t, stats.Submitted)
	assert.Zero(t, stats.BatchesSubmitted)
}

func TestQueueScheduler_PriorityOrder(t *testing.T) {
	store := newFakeTaskStore(
		models.Task{ID: 1, TaskType: models.TaskTypeAIIntent, BrandID: 1, Priority: 1},
		models.Task{ID: 2, TaskType: models.TaskTypeAIIntent, BrandID: 2, Priority: 8},
		models.Task{ID: 3, TaskType: models.TaskTypeAIIntent, BrandID: 1, Priority: 1},
	)
	tracker := newFakeTracker()
	scheduler := NewQueueScheduler(store, tracker, 10, time.Minute, 0, zap.NewNop())

	_, err := scheduler.RunOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, [][]int{{2}, {1, 3}}, tracker.groups)
}

func TestGroupForSubmission(t *testing.T) {
	tasks := []models.Task{
		{ID: 1, BrandID: 5}, {ID: 2, BrandID: 3}, {ID: 3, BrandID: 5},
		{ID: 4, BrandID: 5}, {ID: 5, BrandID: 3},
	}

	tests := []struct {
		name     string
		maxSize  int
		expected [][]int
	}{
		{name: "no cap", maxSize: 0, expected: [][]int{{1, 3, 4}, {2, 5}}},
		{name: "cap of two", maxSize: 2, expected: [][]int{{1, 3}, {4}, {2, 5}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got [][]int
			for _, g := range groupForSubmission(tasks, tt.maxSize) {
				var ids []int
				for _, task := range g.tasks {
					ids = append(ids, task.ID)
				}
				got = append(got, ids)
			}
			assert.Equal(t, tt.expected, got)
		})
	}
}
