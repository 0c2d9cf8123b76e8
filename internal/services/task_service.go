package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/leadpulse/backend/internal/models"
	"go.uber.org/zap"
)

// ErrInvalidTaskRequest marks a task creation request rejected by validation
var ErrInvalidTaskRequest = errors.New("invalid task request")

// TaskRepository is the task store used by the task API
type TaskRepository interface {
	Create(ctx context.Context, task *models.Task) error
	GetByID(ctx context.Context, id int) (*models.Task, error)
	GetAll(ctx context.Context, page, count int, filter models.TaskFilter) ([]models.TaskListItem, error)
}

type taskService struct {
	repo   TaskRepository
	brands BrandPlanReader
	logger *zap.Logger
}

// NewTaskService creates a new task service
func NewTaskService(repo TaskRepository, brands BrandPlanReader, logger *zap.Logger) *taskService {
	return &taskService{repo: repo, brands: brands, logger: logger}
}

// Create validates and stores a pending task. A zero priority takes the brand plan's default.
func (s *taskService) Create(ctx context.Context, req *models.CreateTaskRequest) (int, error) {
	if err := validateCreateTaskRequest(req); err != nil {
		return 0, err
	}

	usage, err := s.brands.GetUsage(ctx, req.BrandID)
	if err != nil {
		return 0, err
	}

	priority := req.Priority
	if priority == 0 {
		priority = usage.SubscriptionPlan.TaskPriority()
	}

	task := &models.Task{
		TaskType: req.TaskType,
		Payload:  req.Payload,
		Priority: priority,
		BrandID:  req.BrandID,
		LeadID:   req.LeadID,
	}
	if err := s.repo.Create(ctx, task); err != nil {
		return 0, fmt.Errorf("failed to create task: %w", err)
	}

	s.logger.Info("task created",
		zap.Int("task_id", task.ID),
		zap.String("task_type", string(task.TaskType)),
		zap.Int("brand_id", task.BrandID),
	)
	return task.ID, nil
}

func validateCreateTaskRequest(req *models.CreateTaskRequest) error {
	if !req.TaskType.IsValid() {
		return fmt.Errorf("%w: unsupported task_type %q", ErrInvalidTaskRequest, req.TaskType)
	}
	if req.BrandID <= 0 {
		return fmt.Errorf("%w: brand_id is required", ErrInvalidTaskRequest)
	}
	if req.Priority < 0 {
		return fmt.Errorf("%w: priority must not be negative", ErrInvalidTaskRequest)
	}
	if req.LeadID != nil && *req.LeadID <= 0 {
		return fmt.Errorf("%w: lead_id must be positive", ErrInvalidTaskRequest)
	}
	if len(req.Payload) > 0 && !json.Valid(req.Payload) {
		return fmt.Errorf("%w: payload must be valid JSON", ErrInvalidTaskRequest)
	}

	switch req.TaskType {
	case models.TaskTypeAIIntent:
		var payload models.AIIntentPayload
		if len(req.Payload) == 0 || json.Unmarshal(req.Payload, &payload) != nil || strings.TrimSpace(payload.LeadEmail) == "" {
			return fmt.Errorf("%w: ai_intent payload needs lead_email and conversation", ErrInvalidTaskRequest)
		}
	case models.TaskTypeConversationParse, models.TaskTypeLeadSync:
		task := models.Task{LeadID: req.LeadID, Payload: req.Payload}
		if _, err := taskLeadID(&task); err != nil {
			return fmt.Errorf("%w: %s requires lead_id", ErrInvalidTaskRequest, req.TaskType)
		}
	}
	return nil
}

// GetByID returns one task
func (s *taskService) GetByID(ctx context.Context, id int) (*models.Task, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns a page of tasks
func (s *taskService) List(ctx context.Context, page, count int, filter models.TaskFilter) ([]models.TaskListItem, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidTaskRequest, filter.Status)
	}
	if filter.TaskType != "" && !filter.TaskType.IsValid() {
		return nil, fmt.Errorf("%w: unknown task_type %q", ErrInvalidTaskRequest, filter.TaskType)
	}
	page, count = normalizePage(page, count)
	return s.repo.GetAll(ctx, page, count, filter)
}

// normalizePage clamps pagination to page >= 1 and 1 <= count <= 100, default 20
func normalizePage(page, count int) (int, int) {
	if page < 1 {
		page = 1
	}
	if count < 1 {
		count = 20
	}
	if count > 100 {
		count = 100
	}
	return page, count
}
