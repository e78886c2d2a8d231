package services

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gantryci/gantry/pkg/defs"
	"github.com/gantryci/gantry/pkg/models"
	"github.com/gantryci/gantry/pkg/persistence"
)

// ErrPipelineNotFound is returned when a pipeline is not found.
var ErrPipelineNotFound = persistence.ErrPipelineNotFound

type Pipeline struct {
	persistence persistence.Persistence
}

// NewPipeline creates a new pipeline service.
func NewPipeline(persistence persistence.Persistence) *Pipeline {
	return &Pipeline{
		persistence: persistence,
	}
}

// HealthCheck checks the health of the persistence layer.
func (s *Pipeline) HealthCheck(ctx context.Context) (string, bool) {
	if s.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := s.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// ListPipelinesRequest contains options for listing pipelines.
type ListPipelinesRequest struct {
	// Pagination
	Limit  int `validate:"min=1,max=100"`
	Offset int `validate:"min=0"`

	// Filtering
	Status *models.PipelineStatus

	// Sorting
	SortBy    string `validate:"oneof=created_at updated_at name"`
	SortOrder string `validate:"oneof=asc desc"`
}

// ListPipelinesResponse contains the result of listing pipelines.
type ListPipelinesResponse struct {
	Pipelines   []*models.Pipeline `json:"pipelines"`
	TotalCount  int64              `json:"total_count"`
	HasNextPage bool               `json:"has_next_page"`
}

// List retrieves pipelines with filtering, sorting and pagination.
func (s *Pipeline) List(ctx context.Context, req *ListPipelinesRequest) (*ListPipelinesResponse, error) {
	if err := s.validateListRequest(req); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	opts := persistence.ListPipelinesOptions{
		Limit:     req.Limit,
		Offset:    req.Offset,
		Status:    req.Status,
		SortBy:    req.SortBy,
		SortOrder: req.SortOrder,
	}

	result, err := s.persistence.PipelineRepository().List(ctx, opts)
	if err != nil {
		if persistence.IsInvalidSortField(err) {
			return nil, ErrInvalidSortField
		}

		return nil, fmt.Errorf("failed to list pipelines: %w", err)
	}

	return &ListPipelinesResponse{
		Pipelines:   result.Pipelines,
		TotalCount:  result.TotalCount,
		HasNextPage: result.HasNextPage,
	}, nil
}

// validateListRequest validates and sets defaults for the request.
func (s *Pipeline) validateListRequest(req *ListPipelinesRequest) error {
	if req.Limit <= 0 {
		req.Limit = 20
	}

	if req.Limit > 100 {
		req.Limit = 100
	}

	if req.Offset < 0 {
		req.Offset = 0
	}

	if req.SortBy == "" {
		req.SortBy = "created_at"
	}

	if req.SortOrder == "" {
		req.SortOrder = "desc"
	}

	allowedSorts := []string{"created_at", "updated_at", "name"}

	if !slices.Contains(allowedSorts, req.SortBy) {
		return NewValidationError(
			"validateListRequest",
			"INVALID_SORT_FIELD",
			fmt.Sprintf("invalid sort field '%s', allowed: %s", req.SortBy, strings.Join(allowedSorts, ", ")),
			ErrInvalidSortField,
		)
	}

	if req.SortOrder != "asc" && req.SortOrder != "desc" {
		return NewValidationError(
			"validateListRequest",
			"INVALID_SORT_ORDER",
			fmt.Sprintf("invalid sort order '%s', allowed: asc, desc", req.SortOrder),
			ErrInvalidSortOrder,
		)
	}

	if req.Status != nil && !isValidPipelineStatus(*req.Status) {
		return NewValidationError(
			"validateListRequest",
			"INVALID_STATUS",
			fmt.Sprintf("invalid status '%s'", *req.Status),
			ErrInvalidStatus,
		)
	}

	return nil
}

// FetchByID retrieves a pipeline by its ID.
func (s *Pipeline) FetchByID(ctx context.Context, id string) (*models.Pipeline, error) {
	pipeline, err := s.persistence.PipelineRepository().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if pipeline == nil {
		return nil, ErrPipelineNotFound
	}

	return pipeline, nil
}

// FetchBySlug retrieves a pipeline by its slug.
func (s *Pipeline) FetchBySlug(ctx context.Context, slug string) (*models.Pipeline, error) {
	pipeline, err := s.persistence.PipelineRepository().GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}

	if pipeline == nil {
		return nil, ErrPipelineNotFound
	}

	return pipeline, nil
}

// Create adds a new pipeline to the repository. The slug is derived from the
// name when not provided and must be unique among live pipelines.
func (s *Pipeline) Create(ctx context.Context, pipeline *models.Pipeline) (*models.Pipeline, error) {
	if err := validatePipeline("Create", pipeline); err != nil {
		return nil, err
	}

	if pipeline.Slug == "" {
		pipeline.Slug = defs.Slugify(pipeline.Name)
	}

	existing, err := s.persistence.PipelineRepository().GetBySlug(ctx, pipeline.Slug)
	if err != nil {
		return nil, fmt.Errorf("failed to check pipeline slug: %w", err)
	}

	if existing != nil {
		return nil, ErrSlugConflict
	}

	now := time.Now().UTC()
	pipeline.ID = uuid.New().String()
	pipeline.CreatedAt = now
	pipeline.UpdatedAt = now

	if pipeline.Status == "" {
		pipeline.Status = models.PipelineStatusActive
	}

	if err := s.persistence.PipelineRepository().Save(ctx, pipeline); err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	return pipeline, nil
}

// Update modifies an existing pipeline by its ID. The creation timestamp is
// preserved; an omitted slug or status keeps the stored one.
func (s *Pipeline) Update(ctx context.Context, pipelineID string, pipeline *models.Pipeline) (*models.Pipeline, error) {
	existing, err := s.persistence.PipelineRepository().GetByID(ctx, pipelineID)
	if err != nil {
		return nil, err
	}

	if existing == nil {
		return nil, ErrPipelineNotFound
	}

	if err := validatePipeline("Update", pipeline); err != nil {
		return nil, err
	}

	if pipeline.Slug == "" {
		pipeline.Slug = existing.Slug
	}

	if pipeline.Slug != existing.Slug {
		conflict, err := s.persistence.PipelineRepository().GetBySlug(ctx, pipeline.Slug)
		if err != nil {
			return nil, fmt.Errorf("failed to check pipeline slug: %w", err)
		}

		if conflict != nil {
			return nil, ErrSlugConflict
		}
	}

	if pipeline.Status == "" {
		pipeline.Status = existing.Status
	}

	pipeline.ID = pipelineID
	pipeline.CreatedAt = existing.CreatedAt
	pipeline.UpdatedAt = time.Now().UTC()

	if err := s.persistence.PipelineRepository().Save(ctx, pipeline); err != nil {
		return nil, fmt.Errorf("failed to update pipeline: %w", err)
	}

	return pipeline, nil
}

// Delete removes a pipeline by its ID.
func (s *Pipeline) Delete(ctx context.Context, pipelineID string) error {
	existing, err := s.persistence.PipelineRepository().GetByID(ctx, pipelineID)
	if err != nil {
		return err
	}

	if existing == nil {
		return ErrPipelineNotFound
	}

	err = s.persistence.PipelineRepository().Delete(ctx, pipelineID)
	if err != nil {
		return fmt.Errorf("failed to delete pipeline: %w", err)
	}

	return nil
}

// validatePipeline checks the structural minimum for a stored pipeline.
func validatePipeline(op string, pipeline *models.Pipeline) error {
	if pipeline == nil {
		return ErrPipelineNil
	}

	if pipeline.Name == "" {
		return ErrPipelineNameRequired
	}

	if len(pipeline.Triggers) == 0 {
		return ErrTriggersRequired
	}

	if len(pipeline.Steps) == 0 {
		return ErrStepsRequired
	}

	if pipeline.Status != "" && !isValidPipelineStatus(pipeline.Status) {
		return NewValidationError(
			op,
			"INVALID_STATUS",
			fmt.Sprintf("invalid status '%s'", pipeline.Status),
			ErrInvalidStatus,
		)
	}

	for _, trigger := range pipeline.Triggers {
		if err := trigger.Validate(); err != nil {
			return NewValidationError(op, "INVALID_TRIGGER", err.Error(), ErrInvalidRequest)
		}
	}

	return nil
}

func isValidPipelineStatus(status models.PipelineStatus) bool {
	return status == models.PipelineStatusActive || status == models.PipelineStatusDisabled
}
