package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/leadpulse/backend/internal/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// MessageHistoryFetcher returns the full thread of a lead from the campaign platform
type MessageHistoryFetcher interface {
	GetMessageHistory(ctx context.Context, apiKey, campaignID, leadID string) ([]models.RawMessage, error)
}

// LeadWriter is the lead store used when persisting admitted events
type LeadWriter interface {
	BulkCreate(ctx context.Context, leads []models.Lead) (int, int, error)
	GetIDsByEmails(ctx context.Context, brandID int, emails []string, minID, maxID int) (map[string]int, error)
}

// TaskBulkCreator inserts many pending tasks in one write
type TaskBulkCreator interface {
	BulkCreate(ctx context.Context, tasks []models.Task) error
}

// EnqueueResult reports what an Enqueue call persisted
type EnqueueResult struct {
	LeadsInserted int
	TasksCreated  int
	LeadIDs       []int
}

type leadEnqueuer struct {
	leads       LeadWriter
	tasks       TaskBulkCreator
	fetcher     MessageHistoryFetcher
	concurrency int
	logger      *zap.Logger
}

// NewLeadEnqueuer creates a new lead persistence and task enqueue step
func NewLeadEnqueuer(leads LeadWriter, tasks TaskBulkCreator, fetcher MessageHistoryFetcher, concurrency int, logger *zap.Logger) *leadEnqueuer {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &leadEnqueuer{
		leads:       leads,
		tasks:       tasks,
		fetcher:     fetcher,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Enqueue persists admitted events of one account as leads and creates one ai_intent task per
// lead. When the lead insert fails nothing is written. When the task insert fails the leads
// stay without tasks and the result still reports them; the reconciliation sweep picks them up.
func (e *leadEnqueuer) Enqueue(ctx context.Context, account ResolvedAccount, priority int, events []models.BufferedEvent) (EnqueueResult, error) {
	var result EnqueueResult
	if len(events) == 0 {
		return result, nil
	}

	conversations := e.enrich(ctx, account, events)

	leads := make([]models.Lead, 0, len(events))
	emails := make([]string, 0, len(events))
	for i, entry := range events {
		ev := entry.Event
		var raw json.RawMessage
		if len(conversations[i]) > 0 {
			encoded, err := json.Marshal(conversations[i])
			if err != nil {
				return result, fmt.Errorf("failed to encode conversation of %s: %w", ev.LeadEmail, err)
			}
			raw = encoded
		}
		summary := ParseConversation(conversations[i])
		email := normalizeEmail(ev.LeadEmail)

		leads = append(leads, models.Lead{
			BrandID:            account.BrandID,
			ExternalLeadID:     ev.ExternalLeadID,
			CampaignID:         ev.CampaignID,
			LeadEmail:          email,
			FirstName:          ev.FirstName,
			LastName:           ev.LastName,
			Website:            ev.Website,
			RawConversation:    raw,
			ParsedConversation: &summary,
			Status:             models.LeadStatusInbox,
		})
		emails = append(emails, email)
	}

	firstID, inserted, err := e.leads.BulkCreate(ctx, leads)
	if err != nil {
		return result, fmt.Errorf("failed to persist leads: %w", err)
	}
	result.LeadsInserted = inserted

	ids, err := e.leads.GetIDsByEmails(ctx, account.BrandID, emails, firstID, firstID+inserted)
	if err != nil {
		e.logger.Error("leads persisted but ids could not be mapped, ai_intent tasks not created",
			zap.Int("brand_id", account.BrandID),
			zap.Int("first_lead_id", firstID),
			zap.Int("leads", inserted),
			zap.Error(err),
		)
		return result, fmt.Errorf("failed to map lead ids: %w", err)
	}

	tasks := make([]models.Task, 0, len(leads))
	for _, lead := range leads {
		payload, err := json.Marshal(models.AIIntentPayload{
			LeadEmail:    lead.LeadEmail,
			Conversation: *lead.ParsedConversation,
		})
		if err != nil {
			return result, fmt.Errorf("failed to encode task payload: %w", err)
		}

		task := models.Task{
			TaskType: models.TaskTypeAIIntent,
			Payload:  payload,
			Priority: priority,
			BrandID:  account.BrandID,
		}
		if id, ok := ids[lead.LeadEmail]; ok {
			leadID := id
			task.LeadID = &leadID
			result.LeadIDs = append(result.LeadIDs, id)
		} else {
			e.logger.Warn("lead id not resolved, task will correlate by task id",
				zap.Int("brand_id", account.BrandID),
				zap.String("lead_email", lead.LeadEmail),
			)
		}
		tasks = append(tasks, task)
	}

	if err := e.tasks.BulkCreate(ctx, tasks); err != nil {
		e.logger.Error("leads persisted without ai_intent tasks, awaiting reconciliation",
			zap.Int("brand_id", account.BrandID),
			zap.Ints("lead_ids", result.LeadIDs),
			zap.Error(err),
		)
		return result, fmt.Errorf("failed to enqueue ai_intent tasks: %w", err)
	}
	result.TasksCreated = len(tasks)

	e.logger.Info("leads persisted and queued",
		zap.Int("brand_id", account.BrandID),
		zap.String("account_id", account.AccountID),
		zap.Int("leads", inserted),
		zap.Int("tasks", len(tasks)),
	)
	return result, nil
}

// enrich returns, per event, the fetched message history or the event's own messages when
// the fetch is impossible or fails
func (e *leadEnqueuer) enrich(ctx context.Context, account ResolvedAccount, events []models.BufferedEvent) [][]models.RawMessage {
	conversations := make([][]models.RawMessage, len(events))

	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for i, entry := range events {
		conversations[i] = entry.Event.Messages

		apiKey := account.APIKey
		if apiKey == "" {
			apiKey = entry.Event.APIKey
		}
		if e.fetcher == nil || apiKey == "" || entry.Event.ExternalLeadID == "" || entry.Event.CampaignID == "" {
			continue
		}

		g.Go(func() error {
			history, err := e.fetcher.GetMessageHistory(ctx, apiKey, entry.Event.CampaignID, entry.Event.ExternalLeadID)
			if err != nil {
				e.logger.Warn("message history fetch failed, using event payload",
					zap.String("account_id", account.AccountID),
					zap.String("lead_email", entry.Event.LeadEmail),
					zap.Error(err),
				)
				return nil
			}
			if len(history) > 0 {
				conversations[i] = history
			}
			return nil
		})
	}
	_ = g.Wait()

	return conversations
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
