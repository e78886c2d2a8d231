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

// RunRepository handles run-related file operations.
type RunRepository struct {
	root string
}

// NewRunRepository creates a new run repository.
func NewRunRepository(root string) *RunRepository {
	return &RunRepository{root: root}
}

// List returns paginated and filtered runs, newest first.
func (rr *RunRepository) List(ctx context.Context, opts persistence.ListRunsOptions) (*persistence.RunListResult, error) {
	if opts.Limit <= 0 || opts.Limit > 100 {
		opts.Limit = 20
	}

	runs, err := rr.getAll(ctx)
	if err != nil {
		return nil, err
	}

	filtered := make([]*models.Run, 0, len(runs))

	for _, run := range runs {
		if opts.PipelineID != "" && run.PipelineID != opts.PipelineID {
			continue
		}

		if opts.GroupID != "" && run.GroupID != opts.GroupID {
			continue
		}

		if opts.Status != nil && run.Status != *opts.Status {
			continue
		}

		filtered = append(filtered, run)
	}

	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].CreatedAt.After(filtered[j].CreatedAt)
	})

	totalCount := int64(len(filtered))

	startIdx := opts.Offset
	if startIdx >= len(filtered) {
		return &persistence.RunListResult{
			Runs:        make([]*models.Run, 0),
			TotalCount:  totalCount,
			HasNextPage: false,
		}, nil
	}

	endIdx := opts.Offset + opts.Limit
	if endIdx > len(filtered) {
		endIdx = len(filtered)
	}

	return &persistence.RunListResult{
		Runs:        filtered[startIdx:endIdx],
		TotalCount:  totalCount,
		HasNextPage: endIdx < len(filtered),
	}, nil
}

// GetByID retrieves a run by its ID from the file system.
func (rr *RunRepository) GetByID(_ context.Context, runID string) (*models.Run, error) {
	filePath := filepath.Clean(path.Join(rr.root, "runs", runID+".json"))

	body, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to fetch run %s: %w", runID, err)
	}

	var run models.Run

	err = json.Unmarshal(body, &run)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal run %s: %w", runID, err)
	}

	return &run, nil
}

// GetByGroupID returns every run sharing the given group, newest first.
func (rr *RunRepository) GetByGroupID(ctx context.Context, groupID string) ([]*models.Run, error) {
	result, err := rr.List(ctx, persistence.ListRunsOptions{GroupID: groupID, Limit: 100})
	if err != nil {
		return nil, err
	}

	return result.Runs, nil
}

// Save saves a run to the file system.
func (rr *RunRepository) Save(_ context.Context, run *models.Run) error {
	dir := path.Join(rr.root, "runs")

	err := os.MkdirAll(dir, 0750)
	if err != nil {
		return fmt.Errorf("failed to create runs directory: %w", err)
	}

	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run %s: %w", run.ID, err)
	}

	return os.WriteFile(path.Join(dir, run.ID+".json"), data, 0600)
}

func (rr *RunRepository) getAll(ctx context.Context) ([]*models.Run, error) {
	dir := path.Join(rr.root, "runs")
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return make([]*models.Run, 0), nil
	}

	jsonFiles, err := fs.Glob(os.DirFS(dir), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list run files: %w", err)
	}

	runs := make([]*models.Run, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		runID := file[:len(file)-5]

		run, err := rr.GetByID(ctx, runID)
		if err != nil {
			return nil, fmt.Errorf("failed to load run %s: %w", runID, err)
		}

		if run != nil {
			runs = append(runs, run)
		}
	}

	return runs, nil
}
