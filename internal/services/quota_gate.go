package services

import (
	"context"
	"fmt"
	"time"

	"github.com/leadpulse/backend/internal/models"
	"go.uber.org/zap"
)

// BrandQuotaRepository is the brand usage store used by the quota gate
type BrandQuotaRepository interface {
	ReserveLeads(ctx context.Context, brandID int, decide func(models.BrandUsage) int) (*models.BrandUsage, int, error)
	ReleaseLeads(ctx context.Context, brandID, count int, periodStart time.Time) (bool, error)
}

// AdmissibleCount returns how many more leads a brand may admit this period
func AdmissibleCount(used, limit int) int {
	return max(0, limit-used)
}

type quotaGate struct {
	repo   BrandQuotaRepository
	logger *zap.Logger
}

// NewQuotaGate creates a new plan-quota gate
func NewQuotaGate(repo BrandQuotaRepository, logger *zap.Logger) *quotaGate {
	return &quotaGate{repo: repo, logger: logger}
}

// Admit reserves room for up to candidates new leads and returns the usage seen before the
// reservation together with the number admitted. The caller keeps the first admitted
// candidates in arrival order and drops the rest.
func (g *quotaGate) Admit(ctx context.Context, brandID, candidates int) (*models.BrandUsage, int, error) {
	if candidates <= 0 {
		return nil, 0, nil
	}

	usage, admitted, err := g.repo.ReserveLeads(ctx, brandID, func(u models.BrandUsage) int {
		return min(candidates, AdmissibleCount(u.LeadsUsedThisMonth, u.EffectiveCap()))
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to reserve lead quota: %w", err)
	}

	if dropped := candidates - admitted; dropped > 0 {
		g.logger.Info("monthly lead quota reached, dropping excess leads",
			zap.Int("brand_id", brandID),
			zap.String("plan", string(usage.SubscriptionPlan)),
			zap.Int("used", usage.LeadsUsedThisMonth),
			zap.Int("cap", usage.EffectiveCap()),
			zap.Int("admitted", admitted),
			zap.Int("dropped", dropped),
		)
	}

	return usage, admitted, nil
}

// Release returns reserved slots that did not become persisted leads. usage is the state
// Admit observed; slots of a period that has since rolled over are not given back.
func (g *quotaGate) Release(ctx context.Context, usage models.BrandUsage, count int) error {
	if count <= 0 {
		return nil
	}

	released, err := g.repo.ReleaseLeads(ctx, usage.BrandID, count, usage.UsagePeriodStart)
	if err != nil {
		return fmt.Errorf("failed to release lead quota: %w", err)
	}
	if !released {
		g.logger.Info("usage period changed since reservation, unused quota not released",
			zap.Int("brand_id", usage.BrandID),
			zap.Int("unused", count),
		)
	}
	return nil
}
