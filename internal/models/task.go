package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// TaskType identifies the kind of deferred work a task carries
type TaskType string

const (
	TaskTypeAIIntent          TaskType = "ai_intent"
	TaskTypePlanCheck         TaskType = "plan_check"
	TaskTypeConversationParse TaskType = "conversation_parse"
	TaskTypeLeadSync          TaskType = "lead_sync"
)

// IsValid reports whether t is a known task type
func (t TaskType) IsValid() bool {
	switch t {
	case TaskTypeAIIntent, TaskTypePlanCheck, TaskTypeConversationParse, TaskTypeLeadSync:
		return true
	}
	return false
}

// IsBatchable reports whether tasks of this type are coalesced into one external batch call
func (t TaskType) IsBatchable() bool {
	return t == TaskTypeAIIntent
}

// TaskStatus is the lifecycle state of a task
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// ErrInvalidTransition is returned when a status change is not in the transition table
var ErrInvalidTransition = errors.New("invalid task status transition")

// taskTransitions lists every legal status change. processing -> processing is the
// re-claim of an orphaned claim that never received a batch handle.
var taskTransitions = map[TaskStatus][]TaskStatus{
	TaskStatusPending:    {TaskStatusProcessing},
	TaskStatusProcessing: {TaskStatusProcessing, TaskStatusCompleted, TaskStatusFailed},
}

// IsValid reports whether s is a known status
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskStatusPending, TaskStatusProcessing, TaskStatusCompleted, TaskStatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is allowed from s
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// CanTransitionTo reports whether s -> next is allowed
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	for _, allowed := range taskTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ValidateTransition returns ErrInvalidTransition wrapped with both states when s -> next is illegal
func ValidateTransition(s, next TaskStatus) error {
	if !s.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s, next)
	}
	return nil
}

// Task is a unit of deferred work
type Task struct {
	ID           int             `json:"id"`
	TaskType     TaskType        `json:"task_type"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	Status       TaskStatus      `json:"status"`
	Priority     int             `json:"priority"`
	BrandID      int             `json:"brand_id"`
	LeadID       *int            `json:"lead_id,omitempty"`
	BatchHandle  *string         `json:"batch_handle,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
}

// AIIntentPayload is the payload of an ai_intent task
type AIIntentPayload struct {
	LeadEmail    string              `json:"lead_email"`
	Conversation ConversationSummary `json:"conversation"`
}

// LeadRefPayload is the payload of conversation_parse and lead_sync tasks when the
// lead is not set on the task row itself
type LeadRefPayload struct {
	LeadID int `json:"lead_id"`
}

// CreateTaskRequest represents a request to create a task through the internal API
type CreateTaskRequest struct {
	TaskType TaskType        `json:"task_type"`
	BrandID  int             `json:"brand_id"`
	LeadID   *int            `json:"lead_id,omitempty"`
	Priority int             `json:"priority"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// TaskListItem represents a task in a list response
type TaskListItem struct {
	ID          int        `json:"id"`
	TaskType    TaskType   `json:"task_type"`
	Status      TaskStatus `json:"status"`
	Priority    int        `json:"priority"`
	BrandID     int        `json:"brand_id"`
	LeadID      *int       `json:"lead_id,omitempty"`
	BatchHandle *string    `json:"batch_handle,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// TaskFilter narrows admin task listings; zero values mean "any"
type TaskFilter struct {
	Status   TaskStatus
	TaskType TaskType
	BrandID  int
}
