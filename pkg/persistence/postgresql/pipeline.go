package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/gantryci/gantry/pkg/models"
	"github.com/gantryci/gantry/pkg/persistence"
)

// scanner lets the same scan helper serve both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// PipelineRepository handles pipeline-related database operations.
type PipelineRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPipelineRepository creates a new pipeline repository.
func NewPipelineRepository(db *sql.DB, logger *slog.Logger) *PipelineRepository {
	return &PipelineRepository{db: db, logger: logger}
}

const pipelineColumns = `
	id
  , slug
  , name
  , description
  , status
  , repository
  , triggers
  , matrix
  , steps
  , env
  , variables
  , metadata
  , owner
  , created_at
  , updated_at
  , deleted_at
`

// List returns paginated and filtered pipelines.
func (r *PipelineRepository) List(ctx context.Context, opts persistence.ListPipelinesOptions) (*persistence.PipelineListResult, error) {
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

	order := "DESC"
	if opts.SortOrder == "asc" {
		order = "ASC"
	}

	where := "WHERE deleted_at IS NULL"
	args := []any{}

	if opts.Status != nil {
		args = append(args, string(*opts.Status))
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}

	var totalCount int64

	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM pipelines "+where, args...).Scan(&totalCount)
	if err != nil {
		return nil, fmt.Errorf("failed to count pipelines: %w", err)
	}

	query := fmt.Sprintf("SELECT %s FROM pipelines %s ORDER BY %s %s LIMIT $%d OFFSET $%d",
		pipelineColumns, where, opts.SortBy, order, len(args)+1, len(args)+2)
	args = append(args, opts.Limit, opts.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query pipelines: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	pipelines := make([]*models.Pipeline, 0)

	for rows.Next() {
		pipeline, err := scanPipeline(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pipeline: %w", err)
		}

		pipelines = append(pipelines, pipeline)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pipelines: %w", err)
	}

	return &persistence.PipelineListResult{
		Pipelines:   pipelines,
		TotalCount:  totalCount,
		HasNextPage: int64(opts.Offset+len(pipelines)) < totalCount,
	}, nil
}

// GetAll returns all pipelines from the database.
func (r *PipelineRepository) GetAll(ctx context.Context) ([]*models.Pipeline, error) {
	query := fmt.Sprintf("SELECT %s FROM pipelines WHERE deleted_at IS NULL ORDER BY created_at DESC", pipelineColumns)

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query pipelines: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	pipelines := make([]*models.Pipeline, 0)

	for rows.Next() {
		pipeline, err := scanPipeline(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pipeline: %w", err)
		}

		pipelines = append(pipelines, pipeline)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pipelines: %w", err)
	}

	return pipelines, nil
}

// GetByID returns a pipeline by its ID, or nil when it does not exist.
func (r *PipelineRepository) GetByID(ctx context.Context, id string) (*models.Pipeline, error) {
	query := fmt.Sprintf("SELECT %s FROM pipelines WHERE id = $1 AND deleted_at IS NULL", pipelineColumns)

	pipeline, err := scanPipeline(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan pipeline: %w", err)
	}

	return pipeline, nil
}

// GetBySlug returns a pipeline by its slug, or nil when it does not exist.
func (r *PipelineRepository) GetBySlug(ctx context.Context, slug string) (*models.Pipeline, error) {
	query := fmt.Sprintf("SELECT %s FROM pipelines WHERE slug = $1 AND deleted_at IS NULL", pipelineColumns)

	pipeline, err := scanPipeline(r.db.QueryRowContext(ctx, query, slug))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan pipeline: %w", err)
	}

	return pipeline, nil
}

// Save upserts a pipeline.
func (r *PipelineRepository) Save(ctx context.Context, pipeline *models.Pipeline) error {
	now := time.Now().UTC()

	if pipeline.CreatedAt.IsZero() {
		pipeline.CreatedAt = now
	}

	pipeline.UpdatedAt = now

	if pipeline.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate pipeline ID: %w", err)
		}

		pipeline.ID = id.String()
	}

	repositoryJSON, err := json.Marshal(pipeline.Repository)
	if err != nil {
		return fmt.Errorf("failed to marshal repository: %w", err)
	}

	triggersJSON, err := json.Marshal(pipeline.Triggers)
	if err != nil {
		return fmt.Errorf("failed to marshal triggers: %w", err)
	}

	matrixJSON, err := json.Marshal(pipeline.Matrix)
	if err != nil {
		return fmt.Errorf("failed to marshal matrix: %w", err)
	}

	stepsJSON, err := json.Marshal(pipeline.Steps)
	if err != nil {
		return fmt.Errorf("failed to marshal steps: %w", err)
	}

	envJSON, err := json.Marshal(pipeline.Env)
	if err != nil {
		return fmt.Errorf("failed to marshal env: %w", err)
	}

	variablesJSON, err := json.Marshal(pipeline.Variables)
	if err != nil {
		return fmt.Errorf("failed to marshal variables: %w", err)
	}

	metadataJSON, err := json.Marshal(pipeline.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO pipelines (id, slug, name, description, status, repository,
			triggers, matrix, steps, env, variables, metadata, owner,
			created_at, updated_at, deleted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (id) DO UPDATE SET
			slug = EXCLUDED.slug,
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			status = EXCLUDED.status,
			repository = EXCLUDED.repository,
			triggers = EXCLUDED.triggers,
			matrix = EXCLUDED.matrix,
			steps = EXCLUDED.steps,
			env = EXCLUDED.env,
			variables = EXCLUDED.variables,
			metadata = EXCLUDED.metadata,
			owner = EXCLUDED.owner,
			updated_at = EXCLUDED.updated_at,
			deleted_at = EXCLUDED.deleted_at
	`

	_, err = r.db.ExecContext(ctx, query,
		pipeline.ID,
		pipeline.Slug,
		pipeline.Name,
		pipeline.Description,
		pipeline.Status,
		repositoryJSON,
		triggersJSON,
		matrixJSON,
		stepsJSON,
		envJSON,
		variablesJSON,
		metadataJSON,
		pipeline.Owner,
		pipeline.CreatedAt,
		pipeline.UpdatedAt,
		pipeline.DeletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save pipeline: %w", err)
	}

	return nil
}

// Delete soft deletes a pipeline by setting deleted_at timestamp.
func (r *PipelineRepository) Delete(ctx context.Context, id string) error {
	query := `UPDATE pipelines SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete pipeline: %w", err)
	}

	// Missing or already deleted pipelines are not an error.
	if _, err := result.RowsAffected(); err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	return nil
}

func scanPipeline(row scanner) (*models.Pipeline, error) {
	var (
		pipeline       models.Pipeline
		repositoryJSON []byte
		triggersJSON   []byte
		matrixJSON     []byte
		stepsJSON      []byte
		envJSON        []byte
		variablesJSON  []byte
		metadataJSON   []byte
	)

	err := row.Scan(
		&pipeline.ID,
		&pipeline.Slug,
		&pipeline.Name,
		&pipeline.Description,
		&pipeline.Status,
		&repositoryJSON,
		&triggersJSON,
		&matrixJSON,
		&stepsJSON,
		&envJSON,
		&variablesJSON,
		&metadataJSON,
		&pipeline.Owner,
		&pipeline.CreatedAt,
		&pipeline.UpdatedAt,
		&pipeline.DeletedAt,
	)
	if err != nil {
		return nil, err
	}

	for _, field := range []struct {
		data   []byte
		target any
	}{
		{repositoryJSON, &pipeline.Repository},
		{triggersJSON, &pipeline.Triggers},
		{matrixJSON, &pipeline.Matrix},
		{stepsJSON, &pipeline.Steps},
		{envJSON, &pipeline.Env},
		{variablesJSON, &pipeline.Variables},
		{metadataJSON, &pipeline.Metadata},
	} {
		if len(field.data) == 0 {
			continue
		}

		if err := json.Unmarshal(field.data, field.target); err != nil {
			return nil, fmt.Errorf("failed to unmarshal pipeline field: %w", err)
		}
	}

	return &pipeline, nil
}
