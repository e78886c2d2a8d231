package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gantryci/gantry/pkg/defs"
	"github.com/gantryci/gantry/pkg/models"
	"github.com/gantryci/gantry/pkg/persistence"
)

// Definitions imports declarative pipeline definition files into the store.
// Definitions are upserted by slug: the first import creates the pipeline,
// later imports replace its configuration while keeping the stored id so
// run history stays attached.
type Definitions struct {
	persistence persistence.Persistence
}

// NewDefinitions creates a new definitions import service.
func NewDefinitions(persistence persistence.Persistence) *Definitions {
	return &Definitions{
		persistence: persistence,
	}
}

// ImportResult reports the outcome of a definition import by slug.
type ImportResult struct {
	Created []string `json:"created"`
	Updated []string `json:"updated"`
}

// ImportDir loads every definition file under dir and upserts each one.
// A single invalid definition aborts the whole import.
func (s *Definitions) ImportDir(ctx context.Context, dir string) (*ImportResult, error) {
	loaded, err := defs.LoadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to load definitions: %w", err)
	}

	result := &ImportResult{}

	for _, def := range loaded {
		pipeline, err := def.Pipeline()
		if err != nil {
			return nil, fmt.Errorf("invalid definition %q: %w", def.Name, err)
		}

		created, err := s.upsert(ctx, pipeline)
		if err != nil {
			return nil, err
		}

		if created {
			result.Created = append(result.Created, pipeline.Slug)
		} else {
			result.Updated = append(result.Updated, pipeline.Slug)
		}
	}

	return result, nil
}

// ImportFile loads and upserts a single definition file.
func (s *Definitions) ImportFile(ctx context.Context, path string) (*models.Pipeline, bool, error) {
	def, err := defs.Load(path)
	if err != nil {
		return nil, false, err
	}

	pipeline, err := def.Pipeline()
	if err != nil {
		return nil, false, fmt.Errorf("invalid definition %q: %w", def.Name, err)
	}

	created, err := s.upsert(ctx, pipeline)
	if err != nil {
		return nil, false, err
	}

	return pipeline, created, nil
}

func (s *Definitions) upsert(ctx context.Context, pipeline *models.Pipeline) (bool, error) {
	existing, err := s.persistence.PipelineRepository().GetBySlug(ctx, pipeline.Slug)
	if err != nil {
		return false, fmt.Errorf("failed to look up pipeline %q: %w", pipeline.Slug, err)
	}

	now := time.Now().UTC()

	if existing == nil {
		pipeline.ID = uuid.New().String()
		pipeline.CreatedAt = now
		pipeline.UpdatedAt = now

		if err := s.persistence.PipelineRepository().Save(ctx, pipeline); err != nil {
			return false, fmt.Errorf("failed to create pipeline %q: %w", pipeline.Slug, err)
		}

		return true, nil
	}

	pipeline.ID = existing.ID
	pipeline.CreatedAt = existing.CreatedAt
	pipeline.UpdatedAt = now

	if err := s.persistence.PipelineRepository().Save(ctx, pipeline); err != nil {
		return false, fmt.Errorf("failed to update pipeline %q: %w", pipeline.Slug, err)
	}

	return false, nil
}
