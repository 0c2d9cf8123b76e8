package models

import (
	"fmt"
	"strconv"
	"strings"
)

// CorrelationID ties an external batch result back to a lead or, when the lead was not
// resolved at submission time, to the task that carried the request.
// It is either LeadCorrelation or TaskCorrelation.
type CorrelationID interface {
	String() string
	isCorrelationID()
}

// LeadCorrelation correlates a result with a persisted lead
type LeadCorrelation struct {
	LeadID int
}

// TaskCorrelation correlates a result with a task whose lead was unresolved
type TaskCorrelation struct {
	TaskID int
}

const (
	leadCorrelationPrefix = "lead_"
	taskCorrelationPrefix = "task_"
)

func (c LeadCorrelation) String() string { return leadCorrelationPrefix + strconv.Itoa(c.LeadID) }
func (c TaskCorrelation) String() string { return taskCorrelationPrefix + strconv.Itoa(c.TaskID) }

func (LeadCorrelation) isCorrelationID() {}
func (TaskCorrelation) isCorrelationID() {}

// CorrelationForTask picks the lead id when the task has one and falls back to the task id
func CorrelationForTask(t *Task) CorrelationID {
	if t.LeadID != nil && *t.LeadID > 0 {
		return LeadCorrelation{LeadID: *t.LeadID}
	}
	return TaskCorrelation{TaskID: t.ID}
}

// ParseCorrelationID parses the custom id produced by String
func ParseCorrelationID(s string) (CorrelationID, error) {
	switch {
	case strings.HasPrefix(s, leadCorrelationPrefix):
		id, err := strconv.Atoi(strings.TrimPrefix(s, leadCorrelationPrefix))
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid lead correlation id %q", s)
		}
		return LeadCorrelation{LeadID: id}, nil
	case strings.HasPrefix(s, taskCorrelationPrefix):
		id, err := strconv.Atoi(strings.TrimPrefix(s, taskCorrelationPrefix))
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid task correlation id %q", s)
		}
		return TaskCorrelation{TaskID: id}, nil
	}
	return nil, fmt.Errorf("unknown correlation id %q", s)
}
