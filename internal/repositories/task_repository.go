package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/leadpulse/backend/internal/models"
)

const taskColumns = "id, task_type, payload, `status`, priority, brand_id, lead_id, batch_handle, created_at, started_at, completed_at, COALESCE(error_message, '')"

type taskRepository struct {
	db *sql.DB
}

// NewTaskRepository creates a new task repository
func NewTaskRepository(db *sql.DB) *taskRepository {
	return &taskRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*models.Task, error) {
	task := &models.Task{}
	var (
		payload     []byte
		leadID      sql.NullInt64
		batchHandle sql.NullString
		startedAt   sql.NullTime
		completedAt sql.NullTime
	)
	err := row.Scan(
		&task.ID,
		&task.TaskType,
		&payload,
		&task.Status,
		&task.Priority,
		&task.BrandID,
		&leadID,
		&batchHandle,
		&task.CreatedAt,
		&startedAt,
		&completedAt,
		&task.ErrorMessage,
	)
	if err != nil {
		return nil, err
	}
	if len(payload) > 0 {
		task.Payload = payload
	}
	task.LeadID = intPtr(leadID)
	task.BatchHandle = stringPtr(batchHandle)
	task.StartedAt = timePtr(startedAt)
	task.CompletedAt = timePtr(completedAt)
	return task, nil
}

// Create inserts a single pending task
func (r *taskRepository) Create(ctx context.Context, task *models.Task) error {
	query := `
		INSERT INTO tasks (task_type, payload, ` + "`status`" + `, priority, brand_id, lead_id)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		task.TaskType, nullableBytes(task.Payload), models.TaskStatusPending, task.Priority, task.BrandID, task.LeadID)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	task.ID = int(id)
	task.Status = models.TaskStatusPending
	return nil
}

// BulkCreate inserts all tasks as pending in one multi-row statement and assigns their ids
func (r *taskRepository) BulkCreate(ctx context.Context, tasks []models.Task) error {
	if len(tasks) == 0 {
		return nil
	}

	rows := make([]string, 0, len(tasks))
	args := make([]any, 0, len(tasks)*6)
	for _, t := range tasks {
		rows = append(rows, "(?, ?, ?, ?, ?, ?)")
		args = append(args, t.TaskType, nullableBytes(t.Payload), models.TaskStatusPending, t.Priority, t.BrandID, t.LeadID)
	}

	query := `INSERT INTO tasks (task_type, payload, ` + "`status`" + `, priority, brand_id, lead_id) VALUES ` +
		strings.Join(rows, ", ")

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to bulk create tasks: %w", err)
	}

	// A multi-row insert reserves consecutive auto-increment values starting at LastInsertId
	firstID, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	for i := range tasks {
		tasks[i].ID = int(firstID) + i
		tasks[i].Status = models.TaskStatusPending
	}
	return nil
}

// GetByID retrieves a task by ID
func (r *taskRepository) GetByID(ctx context.Context, id int) (*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = ? LIMIT 1`

	task, err := scanTask(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task by ID: %w", err)
	}
	return task, nil
}

// GetAll retrieves a paginated list of tasks with optional filters
func (r *taskRepository) GetAll(ctx context.Context, page, count int, filter models.TaskFilter) ([]models.TaskListItem, error) {
	var whereConditions []string
	var args []any

	if filter.Status != "" {
		whereConditions = append(whereConditions, "`status` = ?")
		args = append(args, filter.Status)
	}
	if filter.TaskType != "" {
		whereConditions = append(whereConditions, "task_type = ?")
		args = append(args, filter.TaskType)
	}
	if filter.BrandID != 0 {
		whereConditions = append(whereConditions, "brand_id = ?")
		args = append(args, filter.BrandID)
	}

	whereClause := ""
	if len(whereConditions) > 0 {
		whereClause = "WHERE " + strings.Join(whereConditions, " AND ")
	}

	offset := (page - 1) * count

	query := fmt.Sprintf(`
		SELECT id, task_type, `+"`status`"+`, priority, brand_id, lead_id, batch_handle, created_at
		FROM tasks
		%s
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, whereClause)

	args = append(args, count, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.TaskListItem
	for rows.Next() {
		var item models.TaskListItem
		var leadID sql.NullInt64
		var batchHandle sql.NullString
		if err := rows.Scan(&item.ID, &item.TaskType, &item.Status, &item.Priority, &item.BrandID, &leadID, &batchHandle, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		item.LeadID = intPtr(leadID)
		item.BatchHandle = stringPtr(batchHandle)
		tasks = append(tasks, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return tasks, nil
}

// GetClaimable returns pending tasks plus processing tasks that never received a batch
// handle and were claimed before staleBefore, highest priority first, oldest first.
func (r *taskRepository) GetClaimable(ctx context.Context, limit int, staleBefore time.Time) ([]models.Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE ` + "`status`" + ` = ?
		   OR (` + "`status`" + ` = ? AND batch_handle IS NULL AND started_at < ?)
		ORDER BY priority DESC, created_at ASC, id ASC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, models.TaskStatusPending, models.TaskStatusProcessing, staleBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query claimable tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, *task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return tasks, nil
}

// ClaimPending moves a pending task to processing. It reports false when another
// invocation claimed the row first.
func (r *taskRepository) ClaimPending(ctx context.Context, id int, now time.Time) (bool, error) {
	query := `
		UPDATE tasks
		SET ` + "`status`" + ` = ?, started_at = ?
		WHERE id = ? AND ` + "`status`" + ` = ?
	`

	return r.execClaim(ctx, query, models.TaskStatusProcessing, now, id, models.TaskStatusPending)
}

// ReclaimStale re-claims a processing task that has no batch handle and was started
// before staleBefore. It reports false when the row no longer qualifies.
func (r *taskRepository) ReclaimStale(ctx context.Context, id int, staleBefore, now time.Time) (bool, error) {
	query := `
		UPDATE tasks
		SET started_at = ?
		WHERE id = ? AND ` + "`status`" + ` = ? AND batch_handle IS NULL AND started_at < ?
	`

	return r.execClaim(ctx, query, now, id, models.TaskStatusProcessing, staleBefore)
}

// RenewClaim moves the claim of a processing task without a batch handle from claimedAt to
// now. It reports false when another invocation re-claimed the row in the meantime. now must
// differ from claimedAt, since MySQL only counts rows it actually changed.
func (r *taskRepository) RenewClaim(ctx context.Context, id int, claimedAt, now time.Time) (bool, error) {
	query := `
		UPDATE tasks
		SET started_at = ?
		WHERE id = ? AND ` + "`status`" + ` = ? AND batch_handle IS NULL AND started_at = ?
	`

	return r.execClaim(ctx, query, now, id, models.TaskStatusProcessing, claimedAt)
}

func (r *taskRepository) execClaim(ctx context.Context, query string, args ...any) (bool, error) {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to claim task: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected == 1, nil
}

// UpdateStatus moves a task from one status to another. The update only applies while the
// row still has status from; ErrTaskStatusConflict is returned otherwise.
func (r *taskRepository) UpdateStatus(ctx context.Context, id int, from, to models.TaskStatus, errorMsg string, now time.Time) error {
	if err := models.ValidateTransition(from, to); err != nil {
		return err
	}

	var completedAt any
	if to.IsTerminal() {
		completedAt = now
	}

	query := `
		UPDATE tasks
		SET ` + "`status`" + ` = ?, completed_at = ?, error_message = ?
		WHERE id = ? AND ` + "`status`" + ` = ?
	`

	result, err := r.db.ExecContext(ctx, query, to, completedAt, nullableString(errorMsg), id, from)
	if err != nil {
		return fmt.Errorf("failed to update task status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("%w: task %d is no longer %s", ErrTaskStatusConflict, id, from)
	}

	return nil
}

// AttachBatch sets the batch handle on processing tasks that do not have one yet
func (r *taskRepository) AttachBatch(ctx context.Context, ids []int, handle string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	query := `
		UPDATE tasks
		SET batch_handle = ?
		WHERE ` + "`status`" + ` = ? AND batch_handle IS NULL AND id IN (` + placeholders(len(ids)) + `)
	`

	args := append([]any{handle, models.TaskStatusProcessing}, intArgs(ids)...)
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to attach batch handle: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}

// FinishMany moves every listed task still in processing to a terminal status
func (r *taskRepository) FinishMany(ctx context.Context, ids []int, to models.TaskStatus, errorMsg string, now time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	if err := models.ValidateTransition(models.TaskStatusProcessing, to); err != nil {
		return 0, err
	}

	query := `
		UPDATE tasks
		SET ` + "`status`" + ` = ?, completed_at = ?, error_message = ?
		WHERE ` + "`status`" + ` = ? AND id IN (` + placeholders(len(ids)) + `)
	`

	args := append([]any{to, now, nullableString(errorMsg), models.TaskStatusProcessing}, intArgs(ids)...)
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to finish tasks: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}
