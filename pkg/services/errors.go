// Package services provides the application layer between the HTTP API
// and the engine: validation, orchestration, and standardized errors.
package services

import (
	"errors"
	"fmt"

	"github.com/outflowhq/outflow/pkg/persistence"
)

// Business logic errors. These indicate client errors (4xx responses).
var (
	// Not found (404).
	ErrNotFound        = persistence.ErrNotFound
	ErrVersionNotFound = persistence.ErrVersionNotFound

	// Validation errors (400 Bad Request).
	ErrInvalidRequest        = errors.New("invalid request")
	ErrFlowNil               = errors.New("flow cannot be nil")
	ErrAutomationNil         = errors.New("automation cannot be nil")
	ErrScheduleNil           = errors.New("schedule cannot be nil")
	ErrInvalidPreviewRequest = errors.New("preview count must be between 1 and 100")

	// Business logic conflicts (409 Conflict).
	ErrAutomationDeleted  = errors.New("automation has been deleted")
	ErrExecutionTerminal  = errors.New("execution already reached a terminal state")
	ErrScheduleExhausted  = errors.New("schedule has no upcoming occurrences")
	ErrFlowHasAutomations = errors.New("flow is referenced by an automation")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrFlowNil) ||
		errors.Is(err, ErrAutomationNil) ||
		errors.Is(err, ErrScheduleNil) ||
		errors.Is(err, ErrInvalidPreviewRequest)
}

// IsConflictError checks if an error should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrAutomationDeleted) ||
		errors.Is(err, ErrExecutionTerminal) ||
		errors.Is(err, ErrScheduleExhausted) ||
		errors.Is(err, ErrFlowHasAutomations)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}
