package models

import "time"

// SubscriptionPlan is a brand's billing plan
type SubscriptionPlan string

const (
	PlanFree    SubscriptionPlan = "free"
	PlanStarter SubscriptionPlan = "starter"
	PlanGrowth  SubscriptionPlan = "growth"
	PlanScale   SubscriptionPlan = "scale"
)

var planLeadLimits = map[SubscriptionPlan]int{
	PlanFree:    100,
	PlanStarter: 1000,
	PlanGrowth:  5000,
	PlanScale:   25000,
}

var planPriorities = map[SubscriptionPlan]int{
	PlanFree:    1,
	PlanStarter: 3,
	PlanGrowth:  5,
	PlanScale:   8,
}

// DefaultLeadLimit is the monthly lead allowance of the plan; unknown plans get the free limit
func (p SubscriptionPlan) DefaultLeadLimit() int {
	if limit, ok := planLeadLimits[p]; ok {
		return limit
	}
	return planLeadLimits[PlanFree]
}

// TaskPriority is the queue priority given to ai_intent tasks of brands on this plan
func (p SubscriptionPlan) TaskPriority() int {
	if prio, ok := planPriorities[p]; ok {
		return prio
	}
	return planPriorities[PlanFree]
}

// BrandUsage is the quota state embedded in a brand
type BrandUsage struct {
	BrandID            int              `json:"brand_id"`
	SubscriptionPlan   SubscriptionPlan `json:"subscription_plan"`
	LeadsUsedThisMonth int              `json:"leads_used_this_month"`
	MaxLeadsPerMonth   int              `json:"max_leads_per_month"`
	UsagePeriodStart   time.Time        `json:"usage_period_start"`
}

// EffectiveCap returns the monthly cap, falling back to the plan default when unset
func (u BrandUsage) EffectiveCap() int {
	if u.MaxLeadsPerMonth > 0 {
		return u.MaxLeadsPerMonth
	}
	return u.SubscriptionPlan.DefaultLeadLimit()
}

// AccountSettings maps an upstream account to a brand and its stored credential
type AccountSettings struct {
	AccountID       string
	BrandID         int
	EncryptedAPIKey string
}
