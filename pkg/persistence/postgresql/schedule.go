package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gantryci/gantry/pkg/models"
)

// ScheduleRepository handles schedule-related database operations.
type ScheduleRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewScheduleRepository creates a new schedule repository.
func NewScheduleRepository(db *sql.DB, logger *slog.Logger) *ScheduleRepository {
	return &ScheduleRepository{db: db, logger: logger}
}

const scheduleColumns = `
	id
  , pipeline_id
  , trigger_id
  , cron_expr
  , active
  , next_due_at
  , created_at
  , updated_at
`

// GetAll returns all schedules from the database.
func (r *ScheduleRepository) GetAll(ctx context.Context) ([]*models.Schedule, error) {
	query := fmt.Sprintf("SELECT %s FROM schedules ORDER BY created_at", scheduleColumns)

	return r.queryMany(ctx, query)
}

// GetByID returns a schedule by its ID, or nil when it does not exist.
func (r *ScheduleRepository) GetByID(ctx context.Context, id string) (*models.Schedule, error) {
	query := fmt.Sprintf("SELECT %s FROM schedules WHERE id = $1", scheduleColumns)

	schedule, err := scanSchedule(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan schedule: %w", err)
	}

	return schedule, nil
}

// GetByPipelineID returns the schedules belonging to a pipeline.
func (r *ScheduleRepository) GetByPipelineID(ctx context.Context, pipelineID string) ([]*models.Schedule, error) {
	query := fmt.Sprintf("SELECT %s FROM schedules WHERE pipeline_id = $1 ORDER BY created_at", scheduleColumns)

	return r.queryMany(ctx, query, pipelineID)
}

// GetDue returns the active schedules whose next due time has passed.
func (r *ScheduleRepository) GetDue(ctx context.Context, now time.Time) ([]*models.Schedule, error) {
	query := fmt.Sprintf("SELECT %s FROM schedules WHERE active AND next_due_at IS NOT NULL AND next_due_at <= $1", scheduleColumns)

	return r.queryMany(ctx, query, now)
}

// Save upserts a schedule.
func (r *ScheduleRepository) Save(ctx context.Context, schedule *models.Schedule) error {
	now := time.Now().UTC()

	if schedule.CreatedAt.IsZero() {
		schedule.CreatedAt = now
	}

	schedule.UpdatedAt = now

	query := `
		INSERT INTO schedules (id, pipeline_id, trigger_id, cron_expr,
			active, next_due_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			cron_expr = EXCLUDED.cron_expr,
			active = EXCLUDED.active,
			next_due_at = EXCLUDED.next_due_at,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		schedule.ID,
		schedule.PipelineID,
		schedule.TriggerID,
		schedule.CronExpr,
		schedule.Active,
		schedule.NextDueAt,
		schedule.CreatedAt,
		schedule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save schedule: %w", err)
	}

	return nil
}

// Delete removes a schedule by its ID.
func (r *ScheduleRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM schedules WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete schedule: %w", err)
	}

	return nil
}

func (r *ScheduleRepository) queryMany(ctx context.Context, query string, args ...any) ([]*models.Schedule, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query schedules: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	schedules := make([]*models.Schedule, 0)

	for rows.Next() {
		schedule, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan schedule: %w", err)
		}

		schedules = append(schedules, schedule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating schedules: %w", err)
	}

	return schedules, nil
}

func scanSchedule(row scanner) (*models.Schedule, error) {
	var schedule models.Schedule

	err := row.Scan(
		&schedule.ID,
		&schedule.PipelineID,
		&schedule.TriggerID,
		&schedule.CronExpr,
		&schedule.Active,
		&schedule.NextDueAt,
		&schedule.CreatedAt,
		&schedule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &schedule, nil
}
