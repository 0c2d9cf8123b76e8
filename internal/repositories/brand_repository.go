package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/leadpulse/backend/internal/models"
)

type brandRepository struct {
	db *sql.DB
}

// NewBrandRepository creates a new brand repository
func NewBrandRepository(db *sql.DB) *brandRepository {
	return &brandRepository{db: db}
}

const brandUsageQuery = `
	SELECT id, subscription_plan, leads_used_this_month, max_leads_per_month, usage_period_start
	FROM brands
	WHERE id = ?
`

func scanBrandUsage(row rowScanner) (*models.BrandUsage, error) {
	usage := &models.BrandUsage{}
	err := row.Scan(
		&usage.BrandID,
		&usage.SubscriptionPlan,
		&usage.LeadsUsedThisMonth,
		&usage.MaxLeadsPerMonth,
		&usage.UsagePeriodStart,
	)
	if err != nil {
		return nil, err
	}
	return usage, nil
}

// GetUsage retrieves the quota state of a brand
func (r *brandRepository) GetUsage(ctx context.Context, brandID int) (*models.BrandUsage, error) {
	usage, err := scanBrandUsage(r.db.QueryRowContext(ctx, brandUsageQuery+" LIMIT 1", brandID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBrandNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get brand usage: %w", err)
	}
	return usage, nil
}

// ReserveLeads locks the brand row, asks decide how many slots to take given the current
// usage, and adds that many to leads_used_this_month in the same transaction.
// It returns the usage observed before the reservation and the reserved count.
func (r *brandRepository) ReserveLeads(ctx context.Context, brandID int, decide func(models.BrandUsage) int) (*models.BrandUsage, int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	usage, err := scanBrandUsage(tx.QueryRowContext(ctx, brandUsageQuery+" FOR UPDATE", brandID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, ErrBrandNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to lock brand usage: %w", err)
	}

	reserved := decide(*usage)
	if reserved <= 0 {
		if err := tx.Commit(); err != nil {
			return nil, 0, fmt.Errorf("failed to commit transaction: %w", err)
		}
		return usage, 0, nil
	}

	_, err = tx.ExecContext(ctx, `UPDATE brands SET leads_used_this_month = leads_used_this_month + ? WHERE id = ?`, reserved, brandID)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to reserve leads: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return usage, reserved, nil
}

// ReleaseLeads gives back reserved slots that did not turn into inserted rows. The slots
// belong to the usage period starting at periodStart; once the period has rolled over there is
// nothing to give back and false is returned.
func (r *brandRepository) ReleaseLeads(ctx context.Context, brandID, count int, periodStart time.Time) (bool, error) {
	if count <= 0 {
		return false, nil
	}

	query := `
		UPDATE brands
		SET leads_used_this_month = GREATEST(leads_used_this_month - ?, 0)
		WHERE id = ? AND usage_period_start = ?
	`

	result, err := r.db.ExecContext(ctx, query, count, brandID, periodStart)
	if err != nil {
		return false, fmt.Errorf("failed to release leads: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected == 1, nil
}

// GetDueForRollover returns the brands whose usage period started before periodStart and that
// have no plan_check task waiting or running
func (r *brandRepository) GetDueForRollover(ctx context.Context, periodStart time.Time) ([]int, error) {
	query := `
		SELECT b.id
		FROM brands b
		WHERE b.usage_period_start < ?
		  AND NOT EXISTS (
			SELECT 1 FROM tasks t
			WHERE t.brand_id = b.id AND t.task_type = ? AND t.` + "`status`" + ` IN (?, ?)
		  )
		ORDER BY b.id
	`

	rows, err := r.db.QueryContext(ctx, query, periodStart, models.TaskTypePlanCheck, models.TaskStatusPending, models.TaskStatusProcessing)
	if err != nil {
		return nil, fmt.Errorf("failed to query brands due for rollover: %w", err)
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan brand id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return ids, nil
}

// ResetMonthlyUsage starts a new usage period, provided the brand is still in periodStart.
// It reports false when another invocation rolled the period over first.
func (r *brandRepository) ResetMonthlyUsage(ctx context.Context, brandID int, periodStart, newPeriodStart time.Time) (bool, error) {
	query := `
		UPDATE brands
		SET leads_used_this_month = 0, usage_period_start = ?
		WHERE id = ? AND usage_period_start = ?
	`

	result, err := r.db.ExecContext(ctx, query, newPeriodStart, brandID, periodStart)
	if err != nil {
		return false, fmt.Errorf("failed to reset monthly usage: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected == 1, nil
}
