// Package services provides standardized error types for service layer operations.
package services

import (
	"errors"
	"fmt"
)

// Business Logic Errors - These indicate client errors (4xx responses).
var (
	// Validation Errors (400 Bad Request).
	ErrInvalidRequest   = errors.New("invalid request")
	ErrInvalidSortField = errors.New("invalid sort field")
	ErrInvalidSortOrder = errors.New("invalid sort order")
	ErrInvalidStatus    = errors.New("invalid status")

	ErrPipelineNil          = errors.New("pipeline cannot be nil")
	ErrPipelineNameRequired = errors.New("pipeline name is required")
	ErrTriggersRequired     = errors.New("pipeline must have at least one trigger")
	ErrStepsRequired        = errors.New("pipeline must have at least one step")

	// Business Logic Conflicts (409 Conflict).
	ErrSlugConflict      = errors.New("pipeline slug already in use")
	ErrPipelineNotActive = errors.New("pipeline is not active")
	ErrNoManualTrigger   = errors.New("pipeline has no manual trigger")
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

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrInvalidSortField) ||
		errors.Is(err, ErrInvalidSortOrder) ||
		errors.Is(err, ErrInvalidStatus) ||
		errors.Is(err, ErrPipelineNil) ||
		errors.Is(err, ErrPipelineNameRequired) ||
		errors.Is(err, ErrTriggersRequired) ||
		errors.Is(err, ErrStepsRequired)
}

// IsConflictError checks if an error is a business logic conflict that should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrSlugConflict) ||
		errors.Is(err, ErrPipelineNotActive) ||
		errors.Is(err, ErrNoManualTrigger)
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
