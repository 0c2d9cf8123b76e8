package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/leadpulse/backend/internal/models"
)

type leadRepository struct {
	db *sql.DB
}

// NewLeadRepository creates a new lead repository
func NewLeadRepository(db *sql.DB) *leadRepository {
	return &leadRepository{db: db}
}

// BulkCreate inserts all leads in one multi-row statement. It returns the first generated
// id and the number of rows inserted.
func (r *leadRepository) BulkCreate(ctx context.Context, leads []models.Lead) (int, int, error) {
	if len(leads) == 0 {
		return 0, 0, nil
	}

	rows := make([]string, 0, len(leads))
	args := make([]any, 0, len(leads)*10)
	for _, l := range leads {
		var parsed []byte
		if l.ParsedConversation != nil {
			var err error
			parsed, err = json.Marshal(l.ParsedConversation)
			if err != nil {
				return 0, 0, fmt.Errorf("failed to encode parsed conversation for %s: %w", l.LeadEmail, err)
			}
		}
		status := l.Status
		if status == "" {
			status = models.LeadStatusInbox
		}
		rows = append(rows, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args,
			l.BrandID,
			nullableString(l.ExternalLeadID),
			nullableString(l.CampaignID),
			l.LeadEmail,
			nullableString(l.FirstName),
			nullableString(l.LastName),
			nullableString(l.Website),
			nullableBytes(l.RawConversation),
			nullableBytes(parsed),
			status,
		)
	}

	query := `INSERT INTO leads (brand_id, external_lead_id, campaign_id, lead_email, first_name, last_name, website, raw_conversation, parsed_conversation, ` +
		"`status`" + `) VALUES ` + strings.Join(rows, ", ")

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to bulk create leads: %w", err)
	}

	firstID, err := result.LastInsertId()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to get last insert id: %w", err)
	}
	inserted, err := result.RowsAffected()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return int(firstID), int(inserted), nil
}

// GetIDsByEmails maps lowercase lead emails of a brand to the lowest lead id in [minID, maxID).
// The range is the id block handed out by one BulkCreate, so rows from concurrent inserts are ignored.
func (r *leadRepository) GetIDsByEmails(ctx context.Context, brandID int, emails []string, minID, maxID int) (map[string]int, error) {
	ids := make(map[string]int, len(emails))
	if len(emails) == 0 {
		return ids, nil
	}

	query := `
		SELECT id, lead_email
		FROM leads
		WHERE brand_id = ? AND id >= ? AND id < ? AND lead_email IN (` + placeholders(len(emails)) + `)
		ORDER BY id ASC
	`

	args := []any{brandID, minID, maxID}
	for _, e := range emails {
		args = append(args, e)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query lead ids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int
		var email string
		if err := rows.Scan(&id, &email); err != nil {
			return nil, fmt.Errorf("failed to scan lead id: %w", err)
		}
		key := strings.ToLower(email)
		if _, seen := ids[key]; !seen {
			ids[key] = id
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return ids, nil
}

// GetByID retrieves a lead by ID
func (r *leadRepository) GetByID(ctx context.Context, id int) (*models.Lead, error) {
	query := `
		SELECT id, brand_id, COALESCE(external_lead_id, ''), COALESCE(campaign_id, ''), lead_email,
		       COALESCE(first_name, ''), COALESCE(last_name, ''), COALESCE(website, ''),
		       raw_conversation, parsed_conversation, intent_score, processed, ` + "`status`" + `, created_at, updated_at
		FROM leads
		WHERE id = ?
		LIMIT 1
	`

	lead := &models.Lead{}
	var raw, parsed []byte
	var score sql.NullInt64
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&lead.ID,
		&lead.BrandID,
		&lead.ExternalLeadID,
		&lead.CampaignID,
		&lead.LeadEmail,
		&lead.FirstName,
		&lead.LastName,
		&lead.Website,
		&raw,
		&parsed,
		&score,
		&lead.Processed,
		&lead.Status,
		&lead.CreatedAt,
		&lead.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrLeadNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get lead by ID: %w", err)
	}

	if len(raw) > 0 {
		lead.RawConversation = raw
	}
	if len(parsed) > 0 {
		summary := &models.ConversationSummary{}
		if err := json.Unmarshal(parsed, summary); err != nil {
			return nil, fmt.Errorf("failed to decode parsed conversation of lead %d: %w", id, err)
		}
		lead.ParsedConversation = summary
	}
	lead.IntentScore = intPtr(score)
	return lead, nil
}

// UpdateIntentScore records the scoring outcome and marks the lead processed. A nil score is
// stored as NULL. Leads that are already processed are left untouched and false is returned.
func (r *leadRepository) UpdateIntentScore(ctx context.Context, leadID int, score *int) (bool, error) {
	query := `
		UPDATE leads
		SET intent_score = ?, processed = 1
		WHERE id = ? AND processed = 0
	`

	result, err := r.db.ExecContext(ctx, query, score, leadID)
	if err != nil {
		return false, fmt.Errorf("failed to update intent score: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected == 1, nil
}

// MarkProcessed marks unprocessed leads as processed without a score
func (r *leadRepository) MarkProcessed(ctx context.Context, ids []int) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	query := `UPDATE leads SET processed = 1 WHERE processed = 0 AND id IN (` + placeholders(len(ids)) + `)`

	result, err := r.db.ExecContext(ctx, query, intArgs(ids)...)
	if err != nil {
		return 0, fmt.Errorf("failed to mark leads processed: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}

// UpdateConversation replaces the stored raw and parsed conversation of a lead
func (r *leadRepository) UpdateConversation(ctx context.Context, leadID int, raw json.RawMessage, parsed models.ConversationSummary) error {
	encoded, err := json.Marshal(parsed)
	if err != nil {
		return fmt.Errorf("failed to encode parsed conversation: %w", err)
	}

	query := `
		UPDATE leads
		SET raw_conversation = COALESCE(?, raw_conversation), parsed_conversation = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query, nullableBytes(raw), encoded, leadID)
	if err != nil {
		return fmt.Errorf("failed to update lead conversation: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrLeadNotFound
	}
	return nil
}

// GetUnprocessedWithoutTask returns unprocessed leads created before olderThan that have
// no ai_intent task at all
func (r *leadRepository) GetUnprocessedWithoutTask(ctx context.Context, olderThan time.Time, limit int) ([]models.UnprocessedLead, error) {
	query := `
		SELECT l.id, l.brand_id, l.lead_email, l.parsed_conversation
		FROM leads l
		WHERE l.processed = 0
		  AND l.created_at < ?
		  AND NOT EXISTS (
		      SELECT 1 FROM tasks t WHERE t.lead_id = l.id AND t.task_type = ?
		  )
		ORDER BY l.id ASC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, olderThan, models.TaskTypeAIIntent, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query unprocessed leads: %w", err)
	}
	defer rows.Close()

	var leads []models.UnprocessedLead
	for rows.Next() {
		var lead models.UnprocessedLead
		var parsed []byte
		if err := rows.Scan(&lead.ID, &lead.BrandID, &lead.LeadEmail, &parsed); err != nil {
			return nil, fmt.Errorf("failed to scan unprocessed lead: %w", err)
		}
		if len(parsed) > 0 {
			// A corrupt summary still gets re-enqueued with an empty conversation
			_ = json.Unmarshal(parsed, &lead.ParsedConversation)
		}
		leads = append(leads, lead)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return leads, nil
}
