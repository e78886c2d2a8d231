package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/gantryci/gantry/pkg/persistence/sqlbase"
	"github.com/gantryci/gantry/pkg/sources/webhook/models"

	_ "github.com/lib/pq"
)

// PostgresPersistence implements EndpointPersistence using PostgreSQL.
type PostgresPersistence struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresPersistence creates a PostgreSQL endpoint store and runs its
// migrations. The webhook provider shares the schema_migrations version
// sequence with the core store, claiming version 2.
func NewPostgresPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*PostgresPersistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, endpointMigrations())

	postgres := &PostgresPersistence{
		db:     database,
		logger: logger.With("component", "webhook_postgres_persistence"),
	}

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run webhook migrations: %w", err)
	}

	logger.InfoContext(ctx, "Webhook PostgreSQL persistence initialized successfully")

	return postgres, nil
}

// SaveEndpoint inserts or updates an endpoint keyed by its source id.
func (p *PostgresPersistence) SaveEndpoint(endpoint *models.Endpoint) error {
	ctx := context.Background()

	query := `
		INSERT INTO webhook_endpoints (
			source_id, external_id, json_schema, configuration,
			created_at, updated_at, active
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (source_id)
		DO UPDATE SET
			external_id = EXCLUDED.external_id,
			json_schema = EXCLUDED.json_schema,
			configuration = EXCLUDED.configuration,
			updated_at = EXCLUDED.updated_at,
			active = EXCLUDED.active
	`

	var jsonSchemaJSON sql.NullString

	if len(endpoint.JSONSchema) > 0 {
		jsonBytes, err := json.Marshal(endpoint.JSONSchema)
		if err != nil {
			return fmt.Errorf("failed to serialize JSON schema: %w", err)
		}

		jsonSchemaJSON = sql.NullString{String: string(jsonBytes), Valid: true}
	}

	configurationJSON, err := json.Marshal(endpoint.Configuration)
	if err != nil {
		return fmt.Errorf("failed to serialize configuration: %w", err)
	}

	now := time.Now().UTC()
	if endpoint.CreatedAt.IsZero() {
		endpoint.CreatedAt = now
	}

	endpoint.UpdatedAt = now

	_, err = p.db.ExecContext(ctx, query,
		endpoint.SourceID,
		endpoint.ExternalID,
		jsonSchemaJSON,
		string(configurationJSON),
		endpoint.CreatedAt,
		endpoint.UpdatedAt,
		endpoint.Active,
	)
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to save webhook endpoint", "source_id", endpoint.SourceID, "error", err)

		return fmt.Errorf("failed to save webhook endpoint: %w", err)
	}

	p.logger.DebugContext(ctx, "Webhook endpoint saved", "source_id", endpoint.SourceID, "external_id", endpoint.ExternalID)

	return nil
}

// EndpointBySourceID retrieves an endpoint by its source id.
func (p *PostgresPersistence) EndpointBySourceID(sourceID string) (*models.Endpoint, error) {
	ctx := context.Background()

	query := `
		SELECT source_id, external_id, json_schema, configuration, created_at, updated_at, active
		FROM webhook_endpoints
		WHERE source_id = $1
	`

	return p.scanEndpointRow(ctx, p.db.QueryRowContext(ctx, query, sourceID))
}

// EndpointByExternalID retrieves an endpoint by its external UUID. This is
// the lookup every incoming delivery pays, backed by the unique index on
// external_id.
func (p *PostgresPersistence) EndpointByExternalID(externalID string) (*models.Endpoint, error) {
	ctx := context.Background()

	externalUUID, err := uuid.Parse(externalID)
	if err != nil {
		return nil, fmt.Errorf("invalid external ID format: %w", err)
	}

	query := `
		SELECT source_id, external_id, json_schema, configuration, created_at, updated_at, active
		FROM webhook_endpoints
		WHERE external_id = $1
	`

	return p.scanEndpointRow(ctx, p.db.QueryRowContext(ctx, query, externalUUID))
}

// Endpoints retrieves all endpoints ordered by creation time.
func (p *PostgresPersistence) Endpoints() ([]*models.Endpoint, error) {
	ctx := context.Background()

	query := `
		SELECT source_id, external_id, json_schema, configuration, created_at, updated_at, active
		FROM webhook_endpoints
		ORDER BY created_at ASC
	`

	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query webhook endpoints: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			p.logger.ErrorContext(ctx, "Failed to close rows", "error", closeErr)
		}
	}()

	return p.scanEndpointRows(rows)
}

// ActiveEndpoints retrieves all endpoints accepting deliveries.
func (p *PostgresPersistence) ActiveEndpoints() ([]*models.Endpoint, error) {
	ctx := context.Background()

	query := `
		SELECT source_id, external_id, json_schema, configuration, created_at, updated_at, active
		FROM webhook_endpoints
		WHERE active = true
		ORDER BY created_at ASC
	`

	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query active webhook endpoints: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			p.logger.ErrorContext(ctx, "Failed to close rows", "error", closeErr)
		}
	}()

	return p.scanEndpointRows(rows)
}

// DeleteEndpoint removes the endpoint bound to the given source id.
func (p *PostgresPersistence) DeleteEndpoint(sourceID string) error {
	ctx := context.Background()

	_, err := p.db.ExecContext(ctx, `DELETE FROM webhook_endpoints WHERE source_id = $1`, sourceID)
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to delete webhook endpoint", "source_id", sourceID, "error", err)

		return fmt.Errorf("failed to delete webhook endpoint: %w", err)
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *PostgresPersistence) HealthCheck() error {
	ctx := context.Background()

	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	var count int

	err = p.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM webhook_endpoints").Scan(&count)
	if err != nil {
		return fmt.Errorf("database table query failed: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (p *PostgresPersistence) Close() error {
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (p *PostgresPersistence) scanEndpointRow(ctx context.Context, row rowScanner) (*models.Endpoint, error) {
	var (
		jsonSchemaJSON    sql.NullString
		configurationJSON string
	)

	endpoint := &models.Endpoint{}

	err := row.Scan(
		&endpoint.SourceID,
		&endpoint.ExternalID,
		&jsonSchemaJSON,
		&configurationJSON,
		&endpoint.CreatedAt,
		&endpoint.UpdatedAt,
		&endpoint.Active,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		p.logger.ErrorContext(ctx, "Failed to scan webhook endpoint", "error", err)

		return nil, fmt.Errorf("failed to scan webhook endpoint: %w", err)
	}

	if jsonSchemaJSON.Valid && jsonSchemaJSON.String != "" {
		if err := json.Unmarshal([]byte(jsonSchemaJSON.String), &endpoint.JSONSchema); err != nil {
			return nil, fmt.Errorf("failed to deserialize JSON schema: %w", err)
		}
	}

	if err := json.Unmarshal([]byte(configurationJSON), &endpoint.Configuration); err != nil {
		return nil, fmt.Errorf("failed to deserialize configuration: %w", err)
	}

	return endpoint, nil
}

func (p *PostgresPersistence) scanEndpointRows(rows *sql.Rows) ([]*models.Endpoint, error) {
	ctx := context.Background()

	var endpoints []*models.Endpoint

	for rows.Next() {
		endpoint, err := p.scanEndpointRow(ctx, rows)
		if err != nil {
			return nil, err
		}

		endpoints = append(endpoints, endpoint)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating webhook endpoint rows: %w", err)
	}

	return endpoints, nil
}

// endpointMigrations returns the migration scripts for webhook-specific
// tables. Version 1 belongs to the core store.
func endpointMigrations() map[int]string {
	return map[int]string{
		2: `
			CREATE TABLE webhook_endpoints (
				source_id VARCHAR(255) PRIMARY KEY,
				external_id UUID NOT NULL UNIQUE,
				json_schema JSONB,
				configuration JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				active BOOLEAN NOT NULL DEFAULT true
			);

			CREATE INDEX idx_webhook_endpoints_active ON webhook_endpoints(active);
		`,
	}
}
