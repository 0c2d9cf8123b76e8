package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/leadpulse/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type ingestionFixture struct {
	service *ingestionService
	brands  *fakeBrandStore
	leads   *fakeLeadStore
	tasks   *fakeTaskStore
}

func newIngestionFixture(t *testing.T, usages ...models.BrandUsage) *ingestionFixture {
	settings := map[string]models.AccountSettings{}
	for _, u := range usages {
		id := fmt.Sprintf("acc-%d", u.BrandID)
		settings[id] = models.AccountSettings{AccountID: id, BrandID: u.BrandID}
	}
	resolver, err := NewAccountResolver(&fakeAccountRepo{settings: settings}, "", zap.NewNop())
	require.NoError(t, err)

	f := &ingestionFixture{
		brands: newFakeBrandStore(usages...),
		leads:  newFakeLeadStore(),
		tasks:  newFakeTaskStore(),
	}
	enqueuer := NewLeadEnqueuer(f.leads, f.tasks, nil, 4, zap.NewNop())
	f.service = NewIngestionService(resolver, NewQuotaGate(f.brands, zap.NewNop()), enqueuer, zap.NewNop())
	return f
}

func TestIngestionService_TruncatesAtQuota(t *testing.T) {
	f := newIngestionFixture(t, models.BrandUsage{
		BrandID:            1,
		SubscriptionPlan:   models.PlanFree,
		LeadsUsedThisMonth: 95,
		MaxLeadsPerMonth:   100,
	})

	var entries []models.BufferedEvent
	for i := 0; i < 10; i++ {
		entries = append(entries, replyEvent("acc-1", fmt.Sprintf("lead%d@example.com", i)))
	}

	stats := f.service.ProcessBatch(context.Background(), entries)

	assert.Equal(t, 10, stats.Received)
	assert.Equal(t, 5, stats.Persisted)
	assert.Equal(t, 5, stats.QuotaDropped)
	assert.Equal(t, 5, stats.TasksCreated)
	assert.Equal(t, 100, f.brands.used(1))

	persisted := make(map[string]bool)
	for id := 1; id <= 5; id++ {
		persisted[f.leads.lead(id).LeadEmail] = true
	}
	for i := 0; i < 5; i++ {
		assert.True(t, persisted[fmt.Sprintf("lead%d@example.com", i)], "first arrivals are kept")
	}
}

func TestIngestionService_DedupesByEmail(t *testing.T) {
	f := newIngestionFixture(t, models.BrandUsage{BrandID: 1, SubscriptionPlan: models.PlanStarter})

	entries := []models.BufferedEvent{
		replyEvent("acc-1", "Jane@Example.com"),
		replyEvent("acc-1", "jane@example.com "),
		replyEvent("acc-1", "bob@example.com"),
	}

	stats := f.service.ProcessBatch(context.Background(), entries)

	assert.Equal(t, 1, stats.Duplicates)
	assert.Equal(t, 2, stats.Persisted)
	assert.Equal(t, 2, f.brands.used(1))
	assert.Equal(t, "jane@example.com", f.leads.lead(1).LeadEmail)
}

func TestIngestionService_UnknownAccountDropped(t *testing.T) {
	f := newIngestionFixture(t, models.BrandUsage{BrandID: 1, SubscriptionPlan: models.PlanStarter})

	entries := []models.BufferedEvent{
		replyEvent("acc-404", "ghost@example.com"),
		replyEvent("acc-1", "real@example.com"),
	}

	stats := f.service.ProcessBatch(context.Background(), entries)

	assert.Equal(t, 2, stats.Accounts)
	assert.Equal(t, 1, stats.UnknownAccount)
	assert.Equal(t, 1, stats.Persisted)
	assert.Zero(t, stats.FailedGroups)
}

func TestIngestionService_FailedInsertReleasesQuota(t *testing.T) {
	f := newIngestionFixture(t, models.BrandUsage{BrandID: 1, SubscriptionPlan: models.PlanFree, LeadsUsedThisMonth: 40})
	f.leads.bulkErr = errors.New("deadlock")

	stats := f.service.ProcessBatch(context.Background(), []models.BufferedEvent{
		replyEvent("acc-1", "a@example.com"),
		replyEvent("acc-1", "b@example.com"),
	})

	assert.Equal(t, 1, stats.FailedGroups)
	assert.Zero(t, stats.Persisted)
	assert.Equal(t, 40, f.brands.used(1))
	assert.Equal(t, 2, f.brands.released)
}

func TestIngestionService_TaskPriorityFollowsPlan(t *testing.T) {
	f := newIngestionFixture(t, models.BrandUsage{BrandID: 1, SubscriptionPlan: models.PlanScale})

	f.service.ProcessBatch(context.Background(), []models.BufferedEvent{replyEvent("acc-1", "a@example.com")})

	require.Len(t, f.tasks.created, 1)
	assert.Equal(t, models.PlanScale.TaskPriority(), f.tasks.created[0][0].Priority)
}

func TestIngestionService_IsolatesAccounts(t *testing.T) {
	f := newIngestionFixture(t,
		models.BrandUsage{BrandID: 1, SubscriptionPlan: models.PlanFree, LeadsUsedThisMonth: 100},
		models.BrandUsage{BrandID: 2, SubscriptionPlan: models.PlanGrowth},
	)

	stats := f.service.ProcessBatch(context.Background(), []models.BufferedEvent{
		replyEvent("acc-1", "capped@example.com"),
		replyEvent("acc-2", "fine@example.com"),
	})

	assert.Equal(t, 1, stats.QuotaDropped)
	assert.Equal(t, 1, stats.Persisted)
	assert.Equal(t, 100, f.brands.used(1))
	assert.Equal(t, 1, f.brands.used(2))
}
