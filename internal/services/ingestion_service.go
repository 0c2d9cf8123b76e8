package services

import (
	"context"
	"errors"

	"github.com/leadpulse/backend/internal/models"
	"github.com/leadpulse/backend/internal/repositories"
	"go.uber.org/zap"
)

// AccountResolver maps an upstream account to a brand and credential
type AccountResolver interface {
	Resolve(ctx context.Context, accountID string) (*ResolvedAccount, error)
}

// QuotaAdmitter reserves and releases monthly lead quota
type QuotaAdmitter interface {
	Admit(ctx context.Context, brandID, candidates int) (*models.BrandUsage, int, error)
	Release(ctx context.Context, usage models.BrandUsage, count int) error
}

// LeadEnqueuer persists admitted events and queues their ai_intent tasks
type LeadEnqueuer interface {
	Enqueue(ctx context.Context, account ResolvedAccount, priority int, events []models.BufferedEvent) (EnqueueResult, error)
}

// IngestionStats summarizes one processed collector flush
type IngestionStats struct {
	Accounts       int
	Received       int
	Duplicates     int
	UnknownAccount int
	QuotaDropped   int
	Persisted      int
	TasksCreated   int
	FailedGroups   int
}

type ingestionService struct {
	resolver AccountResolver
	quota    QuotaAdmitter
	enqueuer LeadEnqueuer
	logger   *zap.Logger
}

// NewIngestionService creates the service that turns collector flushes into leads and tasks
func NewIngestionService(resolver AccountResolver, quota QuotaAdmitter, enqueuer LeadEnqueuer, logger *zap.Logger) *ingestionService {
	return &ingestionService{
		resolver: resolver,
		quota:    quota,
		enqueuer: enqueuer,
		logger:   logger,
	}
}

// ProcessBatch handles one drained collector buffer. Entries are grouped by account in order
// of first arrival; a failing account never blocks the others.
func (s *ingestionService) ProcessBatch(ctx context.Context, entries []models.BufferedEvent) IngestionStats {
	stats := IngestionStats{Received: len(entries)}

	var order []string
	groups := make(map[string][]models.BufferedEvent)
	for _, entry := range entries {
		if _, ok := groups[entry.AccountID]; !ok {
			order = append(order, entry.AccountID)
		}
		groups[entry.AccountID] = append(groups[entry.AccountID], entry)
	}
	stats.Accounts = len(order)

	for _, accountID := range order {
		s.processAccount(ctx, accountID, groups[accountID], &stats)
	}

	s.logger.Info("ingestion batch processed",
		zap.Int("accounts", stats.Accounts),
		zap.Int("received", stats.Received),
		zap.Int("duplicates", stats.Duplicates),
		zap.Int("unknown_account", stats.UnknownAccount),
		zap.Int("quota_dropped", stats.QuotaDropped),
		zap.Int("persisted", stats.Persisted),
		zap.Int("tasks_created", stats.TasksCreated),
		zap.Int("failed_groups", stats.FailedGroups),
	)
	return stats
}

func (s *ingestionService) processAccount(ctx context.Context, accountID string, entries []models.BufferedEvent, stats *IngestionStats) {
	log := s.logger.With(zap.String("account_id", accountID))

	account, err := s.resolver.Resolve(ctx, accountID)
	if err != nil {
		if errors.Is(err, repositories.ErrAccountNotFound) {
			log.Warn("webhook events for unknown account dropped", zap.Int("events", len(entries)))
			stats.UnknownAccount += len(entries)
			return
		}
		log.Error("failed to resolve account, events dropped", zap.Int("events", len(entries)), zap.Error(err))
		stats.FailedGroups++
		return
	}

	unique := dedupeByEmail(entries)
	stats.Duplicates += len(entries) - len(unique)

	usage, admitted, err := s.quota.Admit(ctx, account.BrandID, len(unique))
	if err != nil {
		log.Error("quota check failed, events dropped", zap.Int("brand_id", account.BrandID), zap.Error(err))
		stats.FailedGroups++
		return
	}
	stats.QuotaDropped += len(unique) - admitted
	if admitted == 0 {
		return
	}

	result, err := s.enqueuer.Enqueue(ctx, *account, usage.SubscriptionPlan.TaskPriority(), unique[:admitted])
	stats.Persisted += result.LeadsInserted
	stats.TasksCreated += result.TasksCreated
	if err != nil {
		log.Error("failed to persist admitted leads", zap.Int("brand_id", account.BrandID), zap.Error(err))
		stats.FailedGroups++
	}

	if unused := admitted - result.LeadsInserted; unused > 0 {
		if err := s.quota.Release(ctx, *usage, unused); err != nil {
			log.Error("failed to release unused lead quota",
				zap.Int("brand_id", account.BrandID),
				zap.Int("unused", unused),
				zap.Error(err),
			)
		}
	}
}

// dedupeByEmail keeps the first event per lead email in arrival order
func dedupeByEmail(entries []models.BufferedEvent) []models.BufferedEvent {
	seen := make(map[string]struct{}, len(entries))
	unique := make([]models.BufferedEvent, 0, len(entries))
	for _, entry := range entries {
		email := normalizeEmail(entry.Event.LeadEmail)
		if _, dup := seen[email]; dup {
			continue
		}
		seen[email] = struct{}{}
		unique = append(unique, entry)
	}
	return unique
}
