package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/leadpulse/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPlanCheckService_Run(t *testing.T) {
	now := time.Date(2024, 7, 1, 0, 5, 0, 0, time.UTC)
	june := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	july := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)

	brands := newFakeBrandStore(
		models.BrandUsage{BrandID: 1, SubscriptionPlan: models.PlanFree, LeadsUsedThisMonth: 100, UsagePeriodStart: june},
		models.BrandUsage{BrandID: 2, SubscriptionPlan: models.PlanGrowth, LeadsUsedThisMonth: 12, UsagePeriodStart: july},
		models.BrandUsage{BrandID: 3, SubscriptionPlan: models.PlanScale, LeadsUsedThisMonth: 7, UsagePeriodStart: june},
	)
	tasks := newFakeTaskStore()
	service := NewPlanCheckService(brands, tasks, zap.NewNop())
	service.now = func() time.Time { return now }

	created, err := service.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, created)
	require.Len(t, tasks.created, 1)
	for i, brandID := range []int{1, 3} {
		task := tasks.created[0][i]
		assert.Equal(t, models.TaskTypePlanCheck, task.TaskType)
		assert.Equal(t, brandID, task.BrandID)
		assert.Equal(t, PlanCheckPriority, task.Priority)
	}

	// The next sweep runs the checks and the capped brand gets its quota back
	scheduler := NewQueueScheduler(tasks, newFakeTracker(), 10, time.Minute, 0, zap.NewNop())
	scheduler.now = func() time.Time { return now }
	executor := NewPlanCheckExecutor(brands, zap.NewNop())
	executor.now = func() time.Time { return now }
	scheduler.RegisterExecutor(models.TaskTypePlanCheck, executor)

	stats, err := scheduler.RunOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, stats.Completed)
	assert.Zero(t, brands.used(1))
	assert.Equal(t, 12, brands.used(2))
	assert.Zero(t, brands.used(3))
	assert.Equal(t, 2, brands.resets)
}

func TestPlanCheckService_NothingDue(t *testing.T) {
	now := time.Date(2024, 7, 20, 0, 0, 0, 0, time.UTC)
	brands := newFakeBrandStore(models.BrandUsage{BrandID: 1, UsagePeriodStart: time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)})
	tasks := newFakeTaskStore()
	service := NewPlanCheckService(brands, tasks, zap.NewNop())
	service.now = func() time.Time { return now }

	created, err := service.Run(context.Background())

	require.NoError(t, err)
	assert.Zero(t, created)
	assert.Empty(t, tasks.created)
}

func TestPlanCheckService_Errors(t *testing.T) {
	june := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	t.Run("lookup fails", func(t *testing.T) {
		brands := newFakeBrandStore()
		brands.rolloverErr = errors.New("connection refused")

		_, err := NewPlanCheckService(brands, newFakeTaskStore(), zap.NewNop()).Run(context.Background())

		assert.ErrorContains(t, err, "failed to find brands due for rollover")
	})

	t.Run("insert fails", func(t *testing.T) {
		brands := newFakeBrandStore(models.BrandUsage{BrandID: 1, UsagePeriodStart: june})
		tasks := newFakeTaskStore()
		tasks.bulkErr = errors.New("deadlock")

		created, err := NewPlanCheckService(brands, tasks, zap.NewNop()).Run(context.Background())

		assert.ErrorContains(t, err, "failed to enqueue plan checks")
		assert.Zero(t, created)
	})
}
