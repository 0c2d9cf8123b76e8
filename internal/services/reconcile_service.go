package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/leadpulse/backend/internal/models"
	"go.uber.org/zap"
)

// reconcileBatchLimit bounds how many orphaned leads one sweep re-enqueues
const reconcileBatchLimit = 500

// OrphanedLeadRepository finds leads that were persisted without an ai_intent task
type OrphanedLeadRepository interface {
	GetUnprocessedWithoutTask(ctx context.Context, olderThan time.Time, limit int) ([]models.UnprocessedLead, error)
}

// BrandPlanReader reads a brand's plan
type BrandPlanReader interface {
	GetUsage(ctx context.Context, brandID int) (*models.BrandUsage, error)
}

// ReconcileStats summarizes one reconciliation sweep
type ReconcileStats struct {
	Found      int `json:"found"`
	Reenqueued int `json:"reenqueued"`
}

type reconcileService struct {
	leads  OrphanedLeadRepository
	brands BrandPlanReader
	tasks  TaskBulkCreator
	minAge time.Duration
	logger *zap.Logger
	now    func() time.Time
}

// NewReconcileService creates the sweep that re-enqueues leads left without an ai_intent task.
// Leads younger than minAge are skipped so an in-flight enqueue is not duplicated.
func NewReconcileService(leads OrphanedLeadRepository, brands BrandPlanReader, tasks TaskBulkCreator, minAge time.Duration, logger *zap.Logger) *reconcileService {
	return &reconcileService{
		leads:  leads,
		brands: brands,
		tasks:  tasks,
		minAge: minAge,
		logger: logger,
		now:    time.Now,
	}
}

// Run re-enqueues one ai_intent task per orphaned lead in a single insert
func (s *reconcileService) Run(ctx context.Context) (ReconcileStats, error) {
	var stats ReconcileStats

	orphans, err := s.leads.GetUnprocessedWithoutTask(ctx, s.now().Add(-s.minAge), reconcileBatchLimit)
	if err != nil {
		return stats, fmt.Errorf("failed to find orphaned leads: %w", err)
	}
	stats.Found = len(orphans)
	if len(orphans) == 0 {
		return stats, nil
	}

	priorities := make(map[int]int)
	tasks := make([]models.Task, 0, len(orphans))
	for _, lead := range orphans {
		priority, ok := priorities[lead.BrandID]
		if !ok {
			priority = models.PlanFree.TaskPriority()
			if usage, err := s.brands.GetUsage(ctx, lead.BrandID); err == nil {
				priority = usage.SubscriptionPlan.TaskPriority()
			} else {
				s.logger.Warn("failed to read brand plan, using default priority", zap.Int("brand_id", lead.BrandID), zap.Error(err))
			}
			priorities[lead.BrandID] = priority
		}

		payload, err := json.Marshal(models.AIIntentPayload{
			LeadEmail:    lead.LeadEmail,
			Conversation: lead.ParsedConversation,
		})
		if err != nil {
			return stats, fmt.Errorf("failed to encode task payload: %w", err)
		}

		leadID := lead.ID
		tasks = append(tasks, models.Task{
			TaskType: models.TaskTypeAIIntent,
			Payload:  payload,
			Priority: priority,
			BrandID:  lead.BrandID,
			LeadID:   &leadID,
		})
	}

	if err := s.tasks.BulkCreate(ctx, tasks); err != nil {
		return stats, fmt.Errorf("failed to re-enqueue orphaned leads: %w", err)
	}
	stats.Reenqueued = len(tasks)

	s.logger.Info("orphaned leads re-enqueued", zap.Int("leads", stats.Reenqueued))
	return stats, nil
}
