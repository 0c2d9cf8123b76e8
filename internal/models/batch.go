package models

import "time"

// BatchStatus is the lifecycle state of an external inference batch
type BatchStatus string

const (
	BatchStatusProcessing BatchStatus = "processing"
	BatchStatusCompleted  BatchStatus = "completed"
)

// IsValid reports whether s is a known batch status
func (s BatchStatus) IsValid() bool {
	return s == BatchStatusProcessing || s == BatchStatusCompleted
}

// Batch is one external bulk-inference submission. LeadIDs is parallel to TaskIDs;
// 0 marks a task whose lead was not resolved at submission time.
type Batch struct {
	ID          int         `json:"id"`
	BatchHandle string      `json:"batch_handle"`
	Status      BatchStatus `json:"status"`
	BrandID     int         `json:"brand_id"`
	TaskIDs     []int       `json:"task_ids"`
	LeadIDs     []int       `json:"lead_ids"`
	CreatedAt   time.Time   `json:"created_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
}

// LeadIDForTask returns the lead recorded alongside taskID at submission, or 0
func (b *Batch) LeadIDForTask(taskID int) int {
	for i, id := range b.TaskIDs {
		if id == taskID && i < len(b.LeadIDs) {
			return b.LeadIDs[i]
		}
	}
	return 0
}

// BatchListItem represents a batch in a list response
type BatchListItem struct {
	ID          int         `json:"id"`
	BatchHandle string      `json:"batch_handle"`
	Status      BatchStatus `json:"status"`
	BrandID     int         `json:"brand_id"`
	TaskCount   int         `json:"task_count"`
	CreatedAt   time.Time   `json:"created_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
}
