package models

import "time"

// LeadEvent is one inbound lead-reply webhook delivery
type LeadEvent struct {
	EventType      string       `json:"event_type,omitempty"`
	CampaignID     string       `json:"campaign_id,omitempty"`
	ExternalLeadID string       `json:"lead_id,omitempty"`
	LeadEmail      string       `json:"lead_email"`
	FirstName      string       `json:"first_name,omitempty"`
	LastName       string       `json:"last_name,omitempty"`
	Website        string       `json:"website,omitempty"`
	APIKey         string       `json:"api_key,omitempty"`
	Messages       []RawMessage `json:"messages,omitempty"`
}

// BufferedEvent is a LeadEvent held by the batch collector
type BufferedEvent struct {
	EntryID    string
	AccountID  string
	ReceivedAt time.Time
	Event      LeadEvent
}

// WebhookAck is the immediate response to a webhook delivery
type WebhookAck struct {
	Accepted bool `json:"accepted"`
	Queued   bool `json:"queued"`
}
