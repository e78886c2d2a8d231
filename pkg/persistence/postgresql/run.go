package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gantryci/gantry/pkg/models"
	"github.com/gantryci/gantry/pkg/persistence"
)

// RunRepository handles run-related database operations.
type RunRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewRunRepository creates a new run repository.
func NewRunRepository(db *sql.DB, logger *slog.Logger) *RunRepository {
	return &RunRepository{db: db, logger: logger}
}

const runColumns = `
	id
  , group_id
  , pipeline_id
  , trigger_id
  , instance
  , status
  , reason
  , branch
  , commit_sha
  , event_data
  , steps
  , created_at
  , started_at
  , finished_at
`

// List returns paginated and filtered runs, newest first.
func (r *RunRepository) List(ctx context.Context, opts persistence.ListRunsOptions) (*persistence.RunListResult, error) {
	if opts.Limit <= 0 || opts.Limit > 100 {
		opts.Limit = 20
	}

	where := "WHERE 1=1"
	args := []any{}

	if opts.PipelineID != "" {
		args = append(args, opts.PipelineID)
		where += fmt.Sprintf(" AND pipeline_id = $%d", len(args))
	}

	if opts.GroupID != "" {
		args = append(args, opts.GroupID)
		where += fmt.Sprintf(" AND group_id = $%d", len(args))
	}

	if opts.Status != nil {
		args = append(args, string(*opts.Status))
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}

	var totalCount int64

	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs "+where, args...).Scan(&totalCount)
	if err != nil {
		return nil, fmt.Errorf("failed to count runs: %w", err)
	}

	query := fmt.Sprintf("SELECT %s FROM runs %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		runColumns, where, len(args)+1, len(args)+2)
	args = append(args, opts.Limit, opts.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	runs := make([]*models.Run, 0)

	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return &persistence.RunListResult{
		Runs:        runs,
		TotalCount:  totalCount,
		HasNextPage: int64(opts.Offset+len(runs)) < totalCount,
	}, nil
}

// GetByID returns a run by its ID, or nil when it does not exist.
func (r *RunRepository) GetByID(ctx context.Context, id string) (*models.Run, error) {
	query := fmt.Sprintf("SELECT %s FROM runs WHERE id = $1", runColumns)

	run, err := scanRun(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	return run, nil
}

// GetByGroupID returns every run sharing the given group, newest first.
func (r *RunRepository) GetByGroupID(ctx context.Context, groupID string) ([]*models.Run, error) {
	query := fmt.Sprintf("SELECT %s FROM runs WHERE group_id = $1 ORDER BY created_at DESC", runColumns)

	rows, err := r.db.QueryContext(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	runs := make([]*models.Run, 0)

	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

// Save upserts a run.
func (r *RunRepository) Save(ctx context.Context, run *models.Run) error {
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	instanceJSON, err := json.Marshal(run.Instance)
	if err != nil {
		return fmt.Errorf("failed to marshal instance: %w", err)
	}

	eventDataJSON, err := json.Marshal(run.EventData)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	stepsJSON, err := json.Marshal(run.Steps)
	if err != nil {
		return fmt.Errorf("failed to marshal steps: %w", err)
	}

	query := `
		INSERT INTO runs (id, group_id, pipeline_id, trigger_id, instance,
			status, reason, branch, commit_sha, event_data, steps,
			created_at, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			reason = EXCLUDED.reason,
			steps = EXCLUDED.steps,
			started_at = EXCLUDED.started_at,
			finished_at = EXCLUDED.finished_at
	`

	_, err = r.db.ExecContext(ctx, query,
		run.ID,
		run.GroupID,
		run.PipelineID,
		run.TriggerID,
		instanceJSON,
		run.Status,
		run.Reason,
		run.Branch,
		run.CommitSHA,
		eventDataJSON,
		stepsJSON,
		run.CreatedAt,
		run.StartedAt,
		run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	return nil
}

func scanRun(row scanner) (*models.Run, error) {
	var (
		run           models.Run
		instanceJSON  []byte
		eventDataJSON []byte
		stepsJSON     []byte
	)

	err := row.Scan(
		&run.ID,
		&run.GroupID,
		&run.PipelineID,
		&run.TriggerID,
		&instanceJSON,
		&run.Status,
		&run.Reason,
		&run.Branch,
		&run.CommitSHA,
		&eventDataJSON,
		&stepsJSON,
		&run.CreatedAt,
		&run.StartedAt,
		&run.FinishedAt,
	)
	if err != nil {
		return nil, err
	}

	for _, field := range []struct {
		data   []byte
		target any
	}{
		{instanceJSON, &run.Instance},
		{eventDataJSON, &run.EventData},
		{stepsJSON, &run.Steps},
	} {
		if len(field.data) == 0 {
			continue
		}

		if err := json.Unmarshal(field.data, field.target); err != nil {
			return nil, fmt.Errorf("failed to unmarshal run field: %w", err)
		}
	}

	return &run, nil
}
