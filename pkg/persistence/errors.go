// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrPipelineNotFound indicates a pipeline was not found by the given identifier.
	ErrPipelineNotFound = errors.New("pipeline not found")

	// ErrPipelineAlreadyExists indicates a pipeline with the same slug already exists.
	ErrPipelineAlreadyExists = errors.New("pipeline already exists")

	// ErrRunNotFound indicates a run was not found by the given identifier.
	ErrRunNotFound = errors.New("run not found")

	// ErrScheduleNotFound indicates a schedule was not found by the given identifier.
	ErrScheduleNotFound = errors.New("schedule not found")

	// ErrInvalidSortField indicates a sort field outside the allowlist was requested.
	ErrInvalidSortField = errors.New("invalid sort field")
)

// PipelineError wraps pipeline-related errors with additional context.
type PipelineError struct {
	Op         string // Operation being performed (e.g., "GetByID", "Save", "Delete")
	PipelineID string
	Slug       string
	Err        error
}

func (e *PipelineError) Error() string {
	target := e.PipelineID
	if e.Slug != "" {
		target = fmt.Sprintf("slug %s", e.Slug)
	}

	return fmt.Sprintf("%s operation failed for pipeline %s: %v", e.Op, target, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

func (e *PipelineError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewPipelineError creates a new pipeline error with context.
func NewPipelineError(op, pipelineID string, err error) *PipelineError {
	return &PipelineError{
		Op:         op,
		PipelineID: pipelineID,
		Err:        err,
	}
}

// NewPipelineSlugError creates a new pipeline error for slug-based operations.
func NewPipelineSlugError(op, slug string, err error) *PipelineError {
	return &PipelineError{
		Op:   op,
		Slug: slug,
		Err:  err,
	}
}

// RunError wraps run-related errors with additional context.
type RunError struct {
	Op    string
	RunID string
	Err   error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("%s operation failed for run %s: %v", e.Op, e.RunID, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

func (e *RunError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewRunError creates a new run error with context.
func NewRunError(op, runID string, err error) *RunError {
	return &RunError{
		Op:    op,
		RunID: runID,
		Err:   err,
	}
}

// IsPipelineNotFound checks if an error indicates a pipeline was not found.
func IsPipelineNotFound(err error) bool {
	return errors.Is(err, ErrPipelineNotFound)
}

// IsPipelineAlreadyExists checks if an error indicates a pipeline slug collision.
func IsPipelineAlreadyExists(err error) bool {
	return errors.Is(err, ErrPipelineAlreadyExists)
}

// IsRunNotFound checks if an error indicates a run was not found.
func IsRunNotFound(err error) bool {
	return errors.Is(err, ErrRunNotFound)
}

// IsScheduleNotFound checks if an error indicates a schedule was not found.
func IsScheduleNotFound(err error) bool {
	return errors.Is(err, ErrScheduleNotFound)
}

// IsInvalidSortField checks if an error indicates a disallowed sort field.
func IsInvalidSortField(err error) bool {
	return errors.Is(err, ErrInvalidSortField)
}
