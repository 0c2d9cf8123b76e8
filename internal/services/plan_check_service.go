package services

import (
	"context"
	"fmt"
	"time"

	"github.com/leadpulse/backend/internal/models"
	"go.uber.org/zap"
)

// PlanCheckPriority puts usage rollovers ahead of every plan's ai_intent tasks
const PlanCheckPriority = 10

// RolloverBrandRepository finds brands whose usage period has ended
type RolloverBrandRepository interface {
	GetDueForRollover(ctx context.Context, periodStart time.Time) ([]int, error)
}

type planCheckService struct {
	brands RolloverBrandRepository
	tasks  TaskBulkCreator
	logger *zap.Logger
	now    func() time.Time
}

// NewPlanCheckService creates the producer of plan_check tasks
func NewPlanCheckService(brands RolloverBrandRepository, tasks TaskBulkCreator, logger *zap.Logger) *planCheckService {
	return &planCheckService{brands: brands, tasks: tasks, logger: logger, now: time.Now}
}

// Run enqueues one plan_check task for every brand still in a previous month's usage period.
// Brands with a plan_check already waiting are skipped. It returns the number of tasks created.
func (s *planCheckService) Run(ctx context.Context) (int, error) {
	periodStart := currentPeriodStart(s.now())

	brandIDs, err := s.brands.GetDueForRollover(ctx, periodStart)
	if err != nil {
		return 0, fmt.Errorf("failed to find brands due for rollover: %w", err)
	}
	if len(brandIDs) == 0 {
		return 0, nil
	}

	tasks := make([]models.Task, 0, len(brandIDs))
	for _, id := range brandIDs {
		tasks = append(tasks, models.Task{
			TaskType: models.TaskTypePlanCheck,
			Priority: PlanCheckPriority,
			BrandID:  id,
		})
	}

	if err := s.tasks.BulkCreate(ctx, tasks); err != nil {
		return 0, fmt.Errorf("failed to enqueue plan checks: %w", err)
	}

	s.logger.Info("plan checks enqueued", zap.Int("brands", len(tasks)), zap.Time("period_start", periodStart))
	return len(tasks), nil
}
