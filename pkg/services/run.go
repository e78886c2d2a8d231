package services

import (
	"context"
	"fmt"

	"github.com/gantryci/gantry/pkg/models"
	"github.com/gantryci/gantry/pkg/persistence"
)

// ErrRunNotFound is returned when a run is not found.
var ErrRunNotFound = persistence.ErrRunNotFound

// Run exposes the run history recorded by the runner.
type Run struct {
	persistence persistence.Persistence
}

// NewRun creates a new run query service.
func NewRun(persistence persistence.Persistence) *Run {
	return &Run{
		persistence: persistence,
	}
}

// ListRunsRequest contains options for listing runs.
type ListRunsRequest struct {
	// Pagination
	Limit  int `validate:"min=1,max=100"`
	Offset int `validate:"min=0"`

	// Filtering
	Status  *models.RunStatus
	GroupID string
}

// ListRunsResponse contains one page of runs, newest first.
type ListRunsResponse struct {
	Runs        []*models.Run `json:"runs"`
	TotalCount  int64         `json:"total_count"`
	HasNextPage bool          `json:"has_next_page"`
}

// ListByPipeline retrieves the run history of one pipeline.
func (s *Run) ListByPipeline(ctx context.Context, pipelineID string, req *ListRunsRequest) (*ListRunsResponse, error) {
	pipeline, err := s.persistence.PipelineRepository().GetByID(ctx, pipelineID)
	if err != nil {
		return nil, err
	}

	if pipeline == nil {
		return nil, ErrPipelineNotFound
	}

	if err := s.validateListRequest(req); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	opts := persistence.ListRunsOptions{
		Limit:      req.Limit,
		Offset:     req.Offset,
		PipelineID: pipelineID,
		GroupID:    req.GroupID,
		Status:     req.Status,
	}

	result, err := s.persistence.RunRepository().List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	return &ListRunsResponse{
		Runs:        result.Runs,
		TotalCount:  result.TotalCount,
		HasNextPage: result.HasNextPage,
	}, nil
}

// validateListRequest validates and sets defaults for the request.
func (s *Run) validateListRequest(req *ListRunsRequest) error {
	if req.Limit <= 0 {
		req.Limit = 20
	}

	if req.Limit > 100 {
		req.Limit = 100
	}

	if req.Offset < 0 {
		req.Offset = 0
	}

	if req.Status != nil && !isValidRunStatus(*req.Status) {
		return NewValidationError(
			"validateListRequest",
			"INVALID_STATUS",
			fmt.Sprintf("invalid status '%s'", *req.Status),
			ErrInvalidStatus,
		)
	}

	return nil
}

// FetchByID retrieves a run by its ID.
func (s *Run) FetchByID(ctx context.Context, id string) (*models.Run, error) {
	run, err := s.persistence.RunRepository().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if run == nil {
		return nil, ErrRunNotFound
	}

	return run, nil
}

// FetchGroup retrieves the sibling runs expanded from one trigger firing.
func (s *Run) FetchGroup(ctx context.Context, groupID string) ([]*models.Run, error) {
	return s.persistence.RunRepository().GetByGroupID(ctx, groupID)
}

// StepResults retrieves the per-step outcomes of one run, in execution
// order. Queued runs have none yet.
func (s *Run) StepResults(ctx context.Context, runID string) ([]models.StepResult, error) {
	run, err := s.FetchByID(ctx, runID)
	if err != nil {
		return nil, err
	}

	return run.Steps, nil
}

func isValidRunStatus(status models.RunStatus) bool {
	switch status {
	case models.RunStatusQueued, models.RunStatusRunning, models.RunStatusPassed,
		models.RunStatusFailed, models.RunStatusCancelled:
		return true
	}

	return false
}
