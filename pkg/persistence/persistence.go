// Package persistence provides the data storage abstraction layer for
// pipelines, runs and schedules.
package persistence

import (
	"context"
	"time"

	"github.com/gantryci/gantry/pkg/models"
)

// Persistence bundles the repositories an implementation provides.
type Persistence interface {
	PipelineRepository() PipelineRepository
	RunRepository() RunRepository
	ScheduleRepository() ScheduleRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// ListPipelinesOptions controls pagination, filtering and sorting of
// pipeline listings.
type ListPipelinesOptions struct {
	Limit  int
	Offset int

	Status *models.PipelineStatus

	SortBy    string // created_at, updated_at or name
	SortOrder string // asc or desc
}

// PipelineListResult is one page of pipelines.
type PipelineListResult struct {
	Pipelines   []*models.Pipeline
	TotalCount  int64
	HasNextPage bool
}

type PipelineRepository interface {
	List(ctx context.Context, opts ListPipelinesOptions) (*PipelineListResult, error)
	GetAll(ctx context.Context) ([]*models.Pipeline, error)
	GetByID(ctx context.Context, id string) (*models.Pipeline, error)
	GetBySlug(ctx context.Context, slug string) (*models.Pipeline, error)
	Save(ctx context.Context, pipeline *models.Pipeline) error
	Delete(ctx context.Context, id string) error
}

// ListRunsOptions controls pagination and filtering of run listings.
type ListRunsOptions struct {
	Limit  int
	Offset int

	PipelineID string
	GroupID    string
	Status     *models.RunStatus
}

// RunListResult is one page of runs, newest first.
type RunListResult struct {
	Runs        []*models.Run
	TotalCount  int64
	HasNextPage bool
}

type RunRepository interface {
	List(ctx context.Context, opts ListRunsOptions) (*RunListResult, error)
	GetByID(ctx context.Context, id string) (*models.Run, error)
	GetByGroupID(ctx context.Context, groupID string) ([]*models.Run, error)
	Save(ctx context.Context, run *models.Run) error
}

type ScheduleRepository interface {
	GetAll(ctx context.Context) ([]*models.Schedule, error)
	GetByID(ctx context.Context, id string) (*models.Schedule, error)
	GetByPipelineID(ctx context.Context, pipelineID string) ([]*models.Schedule, error)
	GetDue(ctx context.Context, now time.Time) ([]*models.Schedule, error)
	Save(ctx context.Context, schedule *models.Schedule) error
	Delete(ctx context.Context, id string) error
}
