package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/leadpulse/backend/internal/models"
	"go.uber.org/zap"
)

// LeadConversationStore reads leads and rewrites their stored conversation
type LeadConversationStore interface {
	GetByID(ctx context.Context, id int) (*models.Lead, error)
	UpdateConversation(ctx context.Context, leadID int, raw json.RawMessage, parsed models.ConversationSummary) error
}

// BrandAccountResolver resolves the upstream credential of a brand
type BrandAccountResolver interface {
	ResolveBrand(ctx context.Context, brandID int) (*ResolvedAccount, error)
}

// BrandUsageStore reads and rolls over brand usage periods
type BrandUsageStore interface {
	GetUsage(ctx context.Context, brandID int) (*models.BrandUsage, error)
	ResetMonthlyUsage(ctx context.Context, brandID int, periodStart, newPeriodStart time.Time) (bool, error)
}

var errNoLeadReference = errors.New("task does not reference a lead")

// taskLeadID returns the lead of a task from its lead_id column or its payload
func taskLeadID(task *models.Task) (int, error) {
	if task.LeadID != nil && *task.LeadID > 0 {
		return *task.LeadID, nil
	}
	if len(task.Payload) > 0 {
		var ref models.LeadRefPayload
		if err := json.Unmarshal(task.Payload, &ref); err == nil && ref.LeadID > 0 {
			return ref.LeadID, nil
		}
	}
	return 0, errNoLeadReference
}

type conversationParseExecutor struct {
	leads LeadConversationStore
}

// NewConversationParseExecutor creates the executor that re-parses a lead's stored raw conversation
func NewConversationParseExecutor(leads LeadConversationStore) *conversationParseExecutor {
	return &conversationParseExecutor{leads: leads}
}

// Execute rebuilds parsed_conversation from raw_conversation
func (e *conversationParseExecutor) Execute(ctx context.Context, task *models.Task) error {
	leadID, err := taskLeadID(task)
	if err != nil {
		return err
	}

	lead, err := e.leads.GetByID(ctx, leadID)
	if err != nil {
		return fmt.Errorf("failed to load lead %d: %w", leadID, err)
	}

	summary := ParseConversationJSON(lead.RawConversation)
	if err := e.leads.UpdateConversation(ctx, leadID, nil, summary); err != nil {
		return fmt.Errorf("failed to store parsed conversation: %w", err)
	}
	return nil
}

type leadSyncExecutor struct {
	leads    LeadConversationStore
	accounts BrandAccountResolver
	fetcher  MessageHistoryFetcher
}

// NewLeadSyncExecutor creates the executor that refreshes a lead's conversation from the campaign platform
func NewLeadSyncExecutor(leads LeadConversationStore, accounts BrandAccountResolver, fetcher MessageHistoryFetcher) *leadSyncExecutor {
	return &leadSyncExecutor{leads: leads, accounts: accounts, fetcher: fetcher}
}

// Execute fetches the full message history and stores both raw and parsed forms
func (e *leadSyncExecutor) Execute(ctx context.Context, task *models.Task) error {
	leadID, err := taskLeadID(task)
	if err != nil {
		return err
	}

	lead, err := e.leads.GetByID(ctx, leadID)
	if err != nil {
		return fmt.Errorf("failed to load lead %d: %w", leadID, err)
	}

	account, err := e.accounts.ResolveBrand(ctx, lead.BrandID)
	if err != nil {
		return fmt.Errorf("failed to resolve account of brand %d: %w", lead.BrandID, err)
	}

	messages, err := e.fetcher.GetMessageHistory(ctx, account.APIKey, lead.CampaignID, lead.ExternalLeadID)
	if err != nil {
		return fmt.Errorf("failed to fetch message history: %w", err)
	}

	raw, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("failed to encode message history: %w", err)
	}

	if err := e.leads.UpdateConversation(ctx, leadID, raw, ParseConversation(messages)); err != nil {
		return fmt.Errorf("failed to store conversation: %w", err)
	}
	return nil
}

type planCheckExecutor struct {
	brands BrandUsageStore
	logger *zap.Logger
	now    func() time.Time
}

// NewPlanCheckExecutor creates the executor that rolls a brand's monthly usage period over
func NewPlanCheckExecutor(brands BrandUsageStore, logger *zap.Logger) *planCheckExecutor {
	return &planCheckExecutor{brands: brands, logger: logger, now: time.Now}
}

// Execute resets leads_used_this_month once the calendar month of the usage period has passed
func (e *planCheckExecutor) Execute(ctx context.Context, task *models.Task) error {
	usage, err := e.brands.GetUsage(ctx, task.BrandID)
	if err != nil {
		return fmt.Errorf("failed to load usage of brand %d: %w", task.BrandID, err)
	}

	monthStart := currentPeriodStart(e.now())
	if !usage.UsagePeriodStart.Before(monthStart) {
		return nil
	}

	reset, err := e.brands.ResetMonthlyUsage(ctx, task.BrandID, usage.UsagePeriodStart, monthStart)
	if err != nil {
		return fmt.Errorf("failed to reset usage of brand %d: %w", task.BrandID, err)
	}
	if reset {
		e.logger.Info("brand usage period rolled over",
			zap.Int("brand_id", task.BrandID),
			zap.Int("previous_usage", usage.LeadsUsedThisMonth),
			zap.Time("period_start", monthStart),
		)
	}
	return nil
}

// currentPeriodStart is the start of the calendar month, in UTC, that now falls in
func currentPeriodStart(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
}
