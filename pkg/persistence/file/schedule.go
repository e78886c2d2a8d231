package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/gantryci/gantry/pkg/models"
)

// ScheduleRepository handles schedule-related file operations.
type ScheduleRepository struct {
	root string
}

// NewScheduleRepository creates a new schedule repository.
func NewScheduleRepository(root string) *ScheduleRepository {
	return &ScheduleRepository{root: root}
}

// GetAll loads every schedule document under the root.
func (sr *ScheduleRepository) GetAll(ctx context.Context) ([]*models.Schedule, error) {
	dir := path.Join(sr.root, "schedules")
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return make([]*models.Schedule, 0), nil
	}

	jsonFiles, err := fs.Glob(os.DirFS(dir), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list schedule files: %w", err)
	}

	schedules := make([]*models.Schedule, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		scheduleID := file[:len(file)-5]

		schedule, err := sr.GetByID(ctx, scheduleID)
		if err != nil {
			return nil, fmt.Errorf("failed to load schedule %s: %w", scheduleID, err)
		}

		if schedule != nil {
			schedules = append(schedules, schedule)
		}
	}

	return schedules, nil
}

// GetByID retrieves a schedule by its ID from the file system.
func (sr *ScheduleRepository) GetByID(_ context.Context, scheduleID string) (*models.Schedule, error) {
	filePath := filepath.Clean(path.Join(sr.root, "schedules", scheduleID+".json"))

	body, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to fetch schedule %s: %w", scheduleID, err)
	}

	var schedule models.Schedule

	err = json.Unmarshal(body, &schedule)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal schedule %s: %w", scheduleID, err)
	}

	return &schedule, nil
}

// GetByPipelineID returns the schedules belonging to a pipeline.
func (sr *ScheduleRepository) GetByPipelineID(ctx context.Context, pipelineID string) ([]*models.Schedule, error) {
	schedules, err := sr.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	matched := make([]*models.Schedule, 0)

	for _, schedule := range schedules {
		if schedule.PipelineID == pipelineID {
			matched = append(matched, schedule)
		}
	}

	return matched, nil
}

// GetDue returns the active schedules whose next due time has passed.
func (sr *ScheduleRepository) GetDue(ctx context.Context, now time.Time) ([]*models.Schedule, error) {
	schedules, err := sr.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	due := make([]*models.Schedule, 0)

	for _, schedule := range schedules {
		if schedule.IsDue(now) {
			due = append(due, schedule)
		}
	}

	return due, nil
}

// Save saves a schedule to the file system.
func (sr *ScheduleRepository) Save(_ context.Context, schedule *models.Schedule) error {
	dir := path.Join(sr.root, "schedules")

	err := os.MkdirAll(dir, 0750)
	if err != nil {
		return fmt.Errorf("failed to create schedules directory: %w", err)
	}

	now := time.Now().UTC()
	if schedule.CreatedAt.IsZero() {
		schedule.CreatedAt = now
	}

	schedule.UpdatedAt = now

	data, err := json.MarshalIndent(schedule, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal schedule %s: %w", schedule.ID, err)
	}

	return os.WriteFile(path.Join(dir, schedule.ID+".json"), data, 0600)
}

// Delete removes a schedule by its ID.
func (sr *ScheduleRepository) Delete(_ context.Context, id string) error {
	filePath := path.Join(sr.root, "schedules", id+".json")

	err := os.Remove(filePath)
	if err != nil && os.IsNotExist(err) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to delete schedule %s: %w", id, err)
	}

	return nil
}
