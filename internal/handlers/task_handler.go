package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/leadpulse/backend/internal/models"
	"github.com/leadpulse/backend/internal/repositories"
	"github.com/leadpulse/backend/internal/services"
	"github.com/leadpulse/backend/libs/handlers"
	"go.uber.org/zap"
)

// TaskService is the interface that wraps methods for task business logic
type TaskService interface {
	Create(ctx context.Context, req *models.CreateTaskRequest) (int, error)
	GetByID(ctx context.Context, id int) (*models.Task, error)
	List(ctx context.Context, page, count int, filter models.TaskFilter) ([]models.TaskListItem, error)
}

// TaskHandler handles service-to-service task requests
type TaskHandler struct {
	handlers.BaseHandler
	taskService TaskService
}

// NewTaskHandler creates a new task handler
func NewTaskHandler(taskService TaskService, logger *zap.Logger) *TaskHandler {
	return &TaskHandler{
		BaseHandler: handlers.BaseHandler{Logger: logger},
		taskService: taskService,
	}
}

// RegisterRoutes registers all task handler routes
func (h *TaskHandler) RegisterRoutes(r chi.Router) {
	r.Route("/tasks", func(r chi.Router) {
		r.Post("/", h.CreateTask)
		r.Get("/{id}", h.GetTask)
	})
}

// CreateTask handles POST /tasks
// @Summary Create a task
// @Description Queue a task of any known type. A zero priority takes the brand plan's default. Requires API key.
// @Tags tasks
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param task body models.CreateTaskRequest true "Task creation request"
// @Success 201 {object} map[string]any "Task created successfully"
// @Failure 400 {object} map[string]string "Bad request - invalid request body or task"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /tasks [post]
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req models.CreateTaskRequest
	if err := h.DecodeJSON(r, &req); err != nil {
		h.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	taskID, err := h.taskService.Create(r.Context(), &req)
	if err != nil {
		if errors.Is(err, services.ErrInvalidTaskRequest) || errors.Is(err, repositories.ErrBrandNotFound) {
			h.RespondError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.Logger.Error("failed to create task", zap.Error(err))
		h.RespondError(w, http.StatusInternalServerError, "failed to create task")
		return
	}

	h.RespondJSON(w, http.StatusCreated, map[string]any{
		"message": "task created successfully",
		"id":      taskID,
	})
}

// GetTask handles GET /tasks/{id}
// @Summary Get task by ID
// @Description Get a task with its status. Requires API key.
// @Tags tasks
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "Task ID"
// @Success 200 {object} models.Task
// @Failure 400 {object} map[string]string "Invalid task ID"
// @Failure 404 {object} map[string]string "Task not found"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /tasks/{id} [get]
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	respondTask(&h.BaseHandler, h.taskService, w, r)
}

// respondTask writes the task named by the {id} path parameter
func respondTask(h *handlers.BaseHandler, svc TaskService, w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		h.RespondError(w, http.StatusBadRequest, "invalid task ID")
		return
	}

	task, err := svc.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repositories.ErrTaskNotFound) {
			h.RespondError(w, http.StatusNotFound, err.Error())
			return
		}
		h.Logger.Error("failed to get task", zap.Int("task_id", id), zap.Error(err))
		h.RespondError(w, http.StatusInternalServerError, "failed to get task")
		return
	}

	h.RespondJSON(w, http.StatusOK, task)
}
