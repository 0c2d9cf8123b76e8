package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/leadpulse/backend/internal/models"
)

const batchColumns = "id, batch_handle, `status`, brand_id, task_ids, lead_ids, created_at, completed_at"

type batchRepository struct {
	db *sql.DB
}

// NewBatchRepository creates a new batch repository
func NewBatchRepository(db *sql.DB) *batchRepository {
	return &batchRepository{db: db}
}

func scanBatch(row rowScanner) (*models.Batch, error) {
	batch := &models.Batch{}
	var taskIDs, leadIDs []byte
	var completedAt sql.NullTime
	err := row.Scan(
		&batch.ID,
		&batch.BatchHandle,
		&batch.Status,
		&batch.BrandID,
		&taskIDs,
		&leadIDs,
		&batch.CreatedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(taskIDs, &batch.TaskIDs); err != nil {
		return nil, fmt.Errorf("failed to decode task ids of batch %d: %w", batch.ID, err)
	}
	if len(leadIDs) > 0 {
		if err := json.Unmarshal(leadIDs, &batch.LeadIDs); err != nil {
			return nil, fmt.Errorf("failed to decode lead ids of batch %d: %w", batch.ID, err)
		}
	}
	batch.CompletedAt = timePtr(completedAt)
	return batch, nil
}

// Create inserts a batch in processing status
func (r *batchRepository) Create(ctx context.Context, batch *models.Batch) error {
	taskIDs, err := json.Marshal(batch.TaskIDs)
	if err != nil {
		return fmt.Errorf("failed to encode task ids: %w", err)
	}
	leadIDs, err := json.Marshal(batch.LeadIDs)
	if err != nil {
		return fmt.Errorf("failed to encode lead ids: %w", err)
	}

	query := `
		INSERT INTO batches (batch_handle, ` + "`status`" + `, brand_id, task_ids, lead_ids)
		VALUES (?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query, batch.BatchHandle, models.BatchStatusProcessing, batch.BrandID, taskIDs, leadIDs)
	if err != nil {
		return fmt.Errorf("failed to create batch: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	batch.ID = int(id)
	batch.Status = models.BatchStatusProcessing
	return nil
}

// GetProcessing returns every batch still awaiting its external result, oldest first
func (r *batchRepository) GetProcessing(ctx context.Context) ([]models.Batch, error) {
	query := `SELECT ` + batchColumns + ` FROM batches WHERE ` + "`status`" + ` = ? ORDER BY created_at ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, models.BatchStatusProcessing)
	if err != nil {
		return nil, fmt.Errorf("failed to query processing batches: %w", err)
	}
	defer rows.Close()

	var batches []models.Batch
	for rows.Next() {
		batch, err := scanBatch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan batch: %w", err)
		}
		batches = append(batches, *batch)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return batches, nil
}

// GetByID retrieves a batch by ID
func (r *batchRepository) GetByID(ctx context.Context, id int) (*models.Batch, error) {
	query := `SELECT ` + batchColumns + ` FROM batches WHERE id = ? LIMIT 1`

	batch, err := scanBatch(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBatchNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get batch by ID: %w", err)
	}
	return batch, nil
}

// GetAll retrieves a paginated list of batches, optionally filtered by status
func (r *batchRepository) GetAll(ctx context.Context, page, count int, status models.BatchStatus) ([]models.BatchListItem, error) {
	whereClause := ""
	var args []any
	if status != "" {
		whereClause = "WHERE `status` = ?"
		args = append(args, status)
	}

	query := fmt.Sprintf(`
		SELECT id, batch_handle, `+"`status`"+`, brand_id, JSON_LENGTH(task_ids), created_at, completed_at
		FROM batches
		%s
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, whereClause)

	args = append(args, count, (page-1)*count)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query batches: %w", err)
	}
	defer rows.Close()

	var batches []models.BatchListItem
	for rows.Next() {
		var item models.BatchListItem
		var completedAt sql.NullTime
		if err := rows.Scan(&item.ID, &item.BatchHandle, &item.Status, &item.BrandID, &item.TaskCount, &item.CreatedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("failed to scan batch: %w", err)
		}
		item.CompletedAt = timePtr(completedAt)
		batches = append(batches, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return batches, nil
}

// MarkCompleted moves a processing batch to completed. It reports false when the batch
// had already been completed by another invocation.
func (r *batchRepository) MarkCompleted(ctx context.Context, id int, now time.Time) (bool, error) {
	query := `
		UPDATE batches
		SET ` + "`status`" + ` = ?, completed_at = ?
		WHERE id = ? AND ` + "`status`" + ` = ?
	`

	result, err := r.db.ExecContext(ctx, query, models.BatchStatusCompleted, now, id, models.BatchStatusProcessing)
	if err != nil {
		return false, fmt.Errorf("failed to complete batch: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected == 1, nil
}
