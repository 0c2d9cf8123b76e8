package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/leadpulse/backend/internal/jobs"
	"github.com/leadpulse/backend/internal/models"
	"github.com/leadpulse/backend/internal/repositories"
	"github.com/leadpulse/backend/internal/services"
	"github.com/leadpulse/backend/libs/auth/middleware"
	"github.com/leadpulse/backend/libs/handlers"
	"go.uber.org/zap"
)

// manualTriggerUniqueFor keeps repeated admin clicks from stacking identical sweeps
const manualTriggerUniqueFor = 30 * time.Second

// BatchService is the interface that wraps methods for batch business logic
type BatchService interface {
	GetByID(ctx context.Context, id int) (*models.Batch, error)
	List(ctx context.Context, page, count int, status models.BatchStatus) ([]models.BatchListItem, error)
}

// AdminHandler handles admin-related HTTP requests
type AdminHandler struct {
	handlers.BaseHandler
	taskService  TaskService
	batchService BatchService
	enqueuer     jobs.Enqueuer
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(taskService TaskService, batchService BatchService, enqueuer jobs.Enqueuer, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		BaseHandler:  handlers.BaseHandler{Logger: logger},
		taskService:  taskService,
		batchService: batchService,
		enqueuer:     enqueuer,
	}
}

// RegisterRoutes registers all admin handler routes
func (h *AdminHandler) RegisterRoutes(r chi.Router) {
	r.Route("/admin", func(r chi.Router) {
		// Tasks
		r.Get("/tasks", h.GetTasksList)
		r.Get("/tasks/{id}", h.GetTask)

		// Batches
		r.Get("/batches", h.GetBatchesList)
		r.Get("/batches/{id}", h.GetBatch)

		// Manual triggers
		r.Post("/sweep", h.TriggerSweep)
		r.Post("/reconcile", h.TriggerReconcile)
	})
}

// GetTasksList handles GET /admin/tasks
// @Summary Get list of tasks
// @Description Get paginated list of tasks with optional filters. Requires admin role (JWT authentication).
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page number (default: 1)"
// @Param count query int false "Items per page (default: 20)"
// @Param status query string false "Filter by status (pending, processing, completed, failed)"
// @Param task_type query string false "Filter by task type"
// @Param brand_id query int false "Filter by brand ID"
// @Success 200 {array} models.TaskListItem "List of tasks"
// @Failure 400 {object} map[string]string "Invalid request parameters"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /admin/tasks [get]
func (h *AdminHandler) GetTasksList(w http.ResponseWriter, r *http.Request) {
	filter := models.TaskFilter{
		Status:   models.TaskStatus(r.URL.Query().Get("status")),
		TaskType: models.TaskType(r.URL.Query().Get("task_type")),
		BrandID:  h.QueryInt(r, "brand_id", 0),
	}

	tasks, err := h.taskService.List(r.Context(), h.QueryInt(r, "page", 1), h.QueryInt(r, "count", 20), filter)
	if err != nil {
		if errors.Is(err, services.ErrInvalidTaskRequest) {
			h.RespondError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.Logger.Error("failed to get tasks list", zap.Error(err))
		h.RespondError(w, http.StatusInternalServerError, "failed to get tasks")
		return
	}
	if tasks == nil {
		tasks = []models.TaskListItem{}
	}

	h.RespondJSON(w, http.StatusOK, tasks)
}

// GetTask handles GET /admin/tasks/{id}
// @Summary Get task by ID
// @Description Get full task information by ID. Requires admin role (JWT authentication).
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param id path int true "Task ID"
// @Success 200 {object} models.Task "Task details"
// @Failure 400 {object} map[string]string "Invalid task ID"
// @Failure 404 {object} map[string]string "Task not found"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /admin/tasks/{id} [get]
func (h *AdminHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	respondTask(&h.BaseHandler, h.taskService, w, r)
}

// GetBatchesList handles GET /admin/batches
// @Summary Get list of inference batches
// @Description Get paginated list of external inference batches. Requires admin role (JWT authentication).
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page number (default: 1)"
// @Param count query int false "Items per page (default: 20)"
// @Param status query string false "Filter by status (processing, completed)"
// @Success 200 {array} models.BatchListItem "List of batches"
// @Failure 400 {object} map[string]string "Invalid request parameters"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /admin/batches [get]
func (h *AdminHandler) GetBatchesList(w http.ResponseWriter, r *http.Request) {
	status := models.BatchStatus(r.URL.Query().Get("status"))

	batches, err := h.batchService.List(r.Context(), h.QueryInt(r, "page", 1), h.QueryInt(r, "count", 20), status)
	if err != nil {
		if errors.Is(err, services.ErrInvalidTaskRequest) {
			h.RespondError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.Logger.Error("failed to get batches list", zap.Error(err))
		h.RespondError(w, http.StatusInternalServerError, "failed to get batches")
		return
	}
	if batches == nil {
		batches = []models.BatchListItem{}
	}

	h.RespondJSON(w, http.StatusOK, batches)
}

// GetBatch handles GET /admin/batches/{id}
// @Summary Get batch by ID
// @Description Get an inference batch with its task and lead ids. Requires admin role (JWT authentication).
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param id path int true "Batch ID"
// @Success 200 {object} models.Batch "Batch details"
// @Failure 400 {object} map[string]string "Invalid batch ID"
// @Failure 404 {object} map[string]string "Batch not found"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /admin/batches/{id} [get]
func (h *AdminHandler) GetBatch(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		h.RespondError(w, http.StatusBadRequest, "invalid batch ID")
		return
	}

	batch, err := h.batchService.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repositories.ErrBatchNotFound) {
			h.RespondError(w, http.StatusNotFound, err.Error())
			return
		}
		h.Logger.Error("failed to get batch", zap.Int("batch_id", id), zap.Error(err))
		h.RespondError(w, http.StatusInternalServerError, "failed to get batch")
		return
	}

	h.RespondJSON(w, http.StatusOK, batch)
}

// TriggerSweep handles POST /admin/sweep
// @Summary Trigger a queue sweep
// @Description Enqueue one queue scheduler invocation on the worker. Requires admin role (JWT authentication).
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Success 202 {object} map[string]any "Sweep queued"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /admin/sweep [post]
func (h *AdminHandler) TriggerSweep(w http.ResponseWriter, r *http.Request) {
	h.trigger(w, r, jobs.NewQueueSweepTask())
}

// TriggerReconcile handles POST /admin/reconcile
// @Summary Trigger a reconciliation sweep
// @Description Enqueue one orphaned-lead reconciliation on the worker. Requires admin role (JWT authentication).
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Success 202 {object} map[string]any "Reconciliation queued"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /admin/reconcile [post]
func (h *AdminHandler) TriggerReconcile(w http.ResponseWriter, r *http.Request) {
	h.trigger(w, r, jobs.NewLeadReconcileTask())
}

func (h *AdminHandler) trigger(w http.ResponseWriter, r *http.Request, task *asynq.Task) {
	queued, err := jobs.Enqueue(r.Context(), h.enqueuer, task, manualTriggerUniqueFor)
	if err != nil {
		h.Logger.Error("failed to enqueue manual trigger", zap.String("type", task.Type()), zap.Error(err))
		h.RespondError(w, http.StatusInternalServerError, "failed to enqueue "+task.Type())
		return
	}

	h.Logger.Info("manual trigger requested",
		zap.String("type", task.Type()),
		zap.Int("operator_id", middleware.GetOperatorID(r.Context())),
		zap.Bool("queued", queued),
	)
	h.RespondJSON(w, http.StatusAccepted, map[string]any{
		"type":   task.Type(),
		"queued": queued,
	})
}
