package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"time"

	"github.com/gantryci/gantry/pkg/models"
	"github.com/gantryci/gantry/pkg/persistence"
)

// PipelineRepository handles pipeline-related file operations.
type PipelineRepository struct {
	root string
}

// NewPipelineRepository creates a new pipeline repository.
func NewPipelineRepository(root string) *PipelineRepository {
	return &PipelineRepository{root: root}
}

// List returns paginated and filtered pipelines with in-memory operations.
func (pr *PipelineRepository) List(ctx context.Context, opts persistence.ListPipelinesOptions) (*persistence.PipelineListResult, error) {
	if opts.Limit <= 0 || opts.Limit > 100 {
		opts.Limit = 20
	}

	if opts.SortBy == "" {
		opts.SortBy = "created_at"
	}

	if opts.SortOrder == "" {
		opts.SortOrder = "desc"
	}

	allowedSorts := map[string]bool{
		"created_at": true,
		"updated_at": true,
		"name":       true,
	}
	if !allowedSorts[opts.SortBy] {
		return nil, fmt.Errorf("%w: %s", persistence.ErrInvalidSortField, opts.SortBy)
	}

	pipelines, err := pr.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	filtered := make([]*models.Pipeline, 0, len(pipelines))

	for _, pipeline := range pipelines {
		if opts.Status != nil && pipeline.Status != *opts.Status {
			continue
		}

		filtered = append(filtered, pipeline)
	}

	sortPipelines(filtered, opts.SortBy, opts.SortOrder)

	totalCount := int64(len(filtered))

	startIdx := opts.Offset
	if startIdx >= len(filtered) {
		return &persistence.PipelineListResult{
			Pipelines:   make([]*models.Pipeline, 0),
			TotalCount:  totalCount,
			HasNextPage: false,
		}, nil
	}

	endIdx := opts.Offset + opts.Limit
	if endIdx > len(filtered) {
		endIdx = len(filtered)
	}

	return &persistence.PipelineListResult{
		Pipelines:   filtered[startIdx:endIdx],
		TotalCount:  totalCount,
		HasNextPage: endIdx < len(filtered),
	}, nil
}

func sortPipelines(pipelines []*models.Pipeline, sortBy, sortOrder string) {
	sort.Slice(pipelines, func(i, j int) bool {
		var less bool

		switch sortBy {
		case "updated_at":
			less = pipelines[i].UpdatedAt.Before(pipelines[j].UpdatedAt)
		case "name":
			less = pipelines[i].Name < pipelines[j].Name
		default:
			less = pipelines[i].CreatedAt.Before(pipelines[j].CreatedAt)
		}

		if sortOrder == "desc" {
			return !less
		}

		return less
	})
}

// GetAll loads every pipeline document under the root.
func (pr *PipelineRepository) GetAll(ctx context.Context) ([]*models.Pipeline, error) {
	dir := path.Join(pr.root, "pipelines")
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return make([]*models.Pipeline, 0), nil
	}

	jsonFiles, err := fs.Glob(os.DirFS(dir), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list pipeline files: %w", err)
	}

	pipelines := make([]*models.Pipeline, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		pipelineID := file[:len(file)-5]

		pipeline, err := pr.GetByID(ctx, pipelineID)
		if err != nil {
			return nil, fmt.Errorf("failed to load pipeline %s: %w", pipelineID, err)
		}

		if pipeline != nil {
			pipelines = append(pipelines, pipeline)
		}
	}

	return pipelines, nil
}

// GetByID retrieves a pipeline by its ID from the file system.
func (pr *PipelineRepository) GetByID(_ context.Context, pipelineID string) (*models.Pipeline, error) {
	filePath := filepath.Clean(path.Join(pr.root, "pipelines", pipelineID+".json"))

	body, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to fetch pipeline %s: %w", pipelineID, err)
	}

	var pipeline models.Pipeline

	err = json.Unmarshal(body, &pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal pipeline %s: %w", pipelineID, err)
	}

	return &pipeline, nil
}

// GetBySlug scans all pipelines for the given slug.
func (pr *PipelineRepository) GetBySlug(ctx context.Context, slug string) (*models.Pipeline, error) {
	pipelines, err := pr.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	for _, pipeline := range pipelines {
		if pipeline.Slug == slug && pipeline.DeletedAt == nil {
			return pipeline, nil
		}
	}

	return nil, nil
}

// Save saves a pipeline to the file system.
func (pr *PipelineRepository) Save(_ context.Context, pipeline *models.Pipeline) error {
	dir := path.Join(pr.root, "pipelines")

	err := os.MkdirAll(dir, 0750)
	if err != nil {
		return fmt.Errorf("failed to create pipelines directory: %w", err)
	}

	now := time.Now().UTC()
	if pipeline.CreatedAt.IsZero() {
		pipeline.CreatedAt = now
	}

	pipeline.UpdatedAt = now

	data, err := json.MarshalIndent(pipeline, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal pipeline %s: %w", pipeline.ID, err)
	}

	return os.WriteFile(path.Join(dir, pipeline.ID+".json"), data, 0600)
}

// Delete removes a pipeline by its ID.
func (pr *PipelineRepository) Delete(_ context.Context, id string) error {
	filePath := path.Join(pr.root, "pipelines", id+".json")

	err := os.Remove(filePath)
	if err != nil && os.IsNotExist(err) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to delete pipeline %s: %w", id, err)
	}

	return nil
}
