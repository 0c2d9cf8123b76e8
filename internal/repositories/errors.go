package repositories

import "errors"

var (
	// ErrTaskNotFound is returned when no task matches the requested id
	ErrTaskNotFound = errors.New("task not found")
	// ErrTaskStatusConflict is returned when a conditional status update matched no row
	ErrTaskStatusConflict = errors.New("task status changed concurrently")
	// ErrBatchNotFound is returned when no batch matches the requested id
	ErrBatchNotFound = errors.New("batch not found")
	// ErrLeadNotFound is returned when no lead matches the requested id
	ErrLeadNotFound = errors.New("lead not found")
	// ErrBrandNotFound is returned when no brand matches the requested id
	ErrBrandNotFound = errors.New("brand not found")
	// ErrAccountNotFound is returned when an upstream account is not mapped to a brand
	ErrAccountNotFound = errors.New("account not found")
)
