package models

import (
	"encoding/json"
	"time"
)

// LeadStatus is the inbox state of a lead
type LeadStatus string

const (
	LeadStatusInbox    LeadStatus = "inbox"
	LeadStatusSnoozed  LeadStatus = "snoozed"
	LeadStatusArchived LeadStatus = "archived"
)

// Lead is a persisted lead conversation
type Lead struct {
	ID                 int                  `json:"id"`
	BrandID            int                  `json:"brand_id"`
	ExternalLeadID     string               `json:"external_lead_id,omitempty"`
	CampaignID         string               `json:"campaign_id,omitempty"`
	LeadEmail          string               `json:"lead_email"`
	FirstName          string               `json:"first_name,omitempty"`
	LastName           string               `json:"last_name,omitempty"`
	Website            string               `json:"website,omitempty"`
	RawConversation    json.RawMessage      `json:"raw_conversation,omitempty"`
	ParsedConversation *ConversationSummary `json:"parsed_conversation,omitempty"`
	IntentScore        *int                 `json:"intent_score,omitempty"`
	Processed          bool                 `json:"processed"`
	Status             LeadStatus           `json:"status"`
	CreatedAt          time.Time            `json:"created_at"`
	UpdatedAt          time.Time            `json:"updated_at"`
}

// UnprocessedLead is a lead selected by the reconciliation sweep
type UnprocessedLead struct {
	ID                 int
	BrandID            int
	LeadEmail          string
	ParsedConversation ConversationSummary
}
