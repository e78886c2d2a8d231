// Package webhook implements the centralized forge webhook intake: one HTTP
// server, persisted endpoints keyed by external UUID, and source events
// emitted for accepted deliveries.
package webhook

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/gantryci/gantry/pkg/models"
	"github.com/gantryci/gantry/pkg/protocol"
	endpointModels "github.com/gantryci/gantry/pkg/sources/webhook/models"
	endpointPersistence "github.com/gantryci/gantry/pkg/sources/webhook/persistence"
)

// Provider owns the webhook intake server, the endpoint store and the
// reconciliation of endpoints against pipeline definitions.
type Provider struct {
	config      map[string]any
	logger      *slog.Logger
	callback    protocol.SourceEventCallback
	server      *Server
	persistence endpointPersistence.EndpointPersistence
	port        int
	started     bool
	mu          sync.RWMutex
}

// Start begins serving forge deliveries.
func (p *Provider) Start(ctx context.Context, callback protocol.SourceEventCallback) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return nil
	}

	p.callback = callback
	p.logger.Info("Starting webhook intake", "port", p.port)

	p.server.SetCallback(callback)

	if err := p.server.Start(ctx); err != nil {
		return err
	}

	p.started = true

	endpoints, err := p.persistence.ActiveEndpoints()
	if err != nil {
		p.logger.Warn("Failed to get active endpoint count", "error", err)
		p.logger.Info("Webhook intake started", "port", p.port)
	} else {
		p.logger.Info("Webhook intake started",
			"port", p.port,
			"active_endpoints", len(endpoints))
	}

	return nil
}

// Stop gracefully shuts down the webhook intake.
func (p *Provider) Stop(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return nil
	}

	p.logger.Info("Stopping webhook intake")

	if err := p.server.Stop(ctx); err != nil {
		p.logger.Error("Error stopping webhook server", "error", err)

		return err
	}

	p.started = false
	p.logger.Info("Webhook intake stopped")

	return nil
}

// Validate checks if the webhook provider configuration is valid.
func (p *Provider) Validate() error {
	if p.server == nil {
		return errors.New("webhook server not initialized")
	}

	if p.port <= 0 || p.port > 65535 {
		return errors.New("invalid webhook server port")
	}

	return nil
}

// ProviderLifecycle interface implementation

// Initialize sets up the provider with required dependencies.
func (p *Provider) Initialize(ctx context.Context, deps protocol.Dependencies) error {
	p.logger = deps.Logger

	persistenceURL := os.Getenv("WEBHOOK_PERSISTENCE_URL")
	if persistenceURL == "" {
		return errors.New("webhook provider requires WEBHOOK_PERSISTENCE_URL environment variable (e.g., file://./data/webhook)")
	}

	persistence, err := p.createPersistence(ctx, persistenceURL)
	if err != nil {
		return err
	}

	p.persistence = persistence
	p.port = p.getPort()

	p.server = NewServer(p.port, p.logger)
	p.server.SetPersistence(p.persistence)

	p.logger.Info("Webhook provider initialized", "port", p.port, "persistence", persistenceURL)

	return nil
}

// Configure reconciles webhook endpoints with the current pipeline
// definitions. Every push and pull_request trigger of an active pipeline
// gets an endpoint for its source id, defaulting to the pipeline slug when
// the trigger leaves the source unpinned. Endpoints no pipeline wants
// anymore are deactivated, not deleted, so a pipeline coming back reclaims
// its external id and configured forge URLs survive the gap.
func (p *Provider) Configure(pipelines []*models.Pipeline) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.logger.Info("Configuring webhook provider", "pipeline_count", len(pipelines))

	createdCount := 0
	seen := make(map[string]bool)

	for _, pipeline := range pipelines {
		if !pipeline.Active() {
			continue
		}

		for _, trigger := range pipeline.Triggers {
			if trigger.Kind != models.TriggerKindPush && trigger.Kind != models.TriggerKindPullRequest {
				continue
			}

			sourceID := trigger.SourceID
			if sourceID == "" {
				sourceID = pipeline.Slug
			}

			if sourceID == "" || seen[sourceID] {
				continue
			}

			seen[sourceID] = true

			if p.reconcileEndpoint(sourceID, endpointConfiguration(pipeline)) {
				createdCount++
			}
		}
	}

	deactivatedCount := p.deactivateOrphans(seen)

	total, err := p.persistence.Endpoints()
	if err != nil {
		p.logger.Warn("Failed to get endpoint count", "error", err)
		p.logger.Info("Webhook configuration completed",
			"created_endpoints", createdCount,
			"deactivated_endpoints", deactivatedCount)
	} else {
		p.logger.Info("Webhook configuration completed",
			"created_endpoints", createdCount,
			"deactivated_endpoints", deactivatedCount,
			"total_endpoints", len(total))
	}

	return nil
}

// Prepare performs final preparation before starting the provider.
func (p *Provider) Prepare(ctx context.Context) error {
	if p.server == nil {
		return errors.New("webhook server not initialized")
	}

	endpoints, err := p.persistence.ActiveEndpoints()
	if err != nil {
		return err
	}

	for _, endpoint := range endpoints {
		if err := p.server.RegisterEndpoint(endpoint); err != nil {
			p.logger.Error("Failed to register webhook endpoint",
				"source_id", endpoint.SourceID,
				"external_id", endpoint.ExternalID,
				"error", err)

			return err
		}
	}

	p.logger.Info("Webhook provider prepared", "registered_endpoints", len(endpoints))

	return nil
}

// EndpointPath returns the intake path for a given source id, or an empty
// string when no endpoint is bound to it.
func (p *Provider) EndpointPath(sourceID string) string {
	endpoint, err := p.persistence.EndpointBySourceID(sourceID)
	if err != nil || endpoint == nil {
		return ""
	}

	return endpoint.Path()
}

// reconcileEndpoint creates or refreshes the endpoint bound to a source id.
// Returns true when a new endpoint was created. Existing endpoints keep
// their external id so configured forge URLs stay valid.
func (p *Provider) reconcileEndpoint(sourceID string, configuration map[string]any) bool {
	existing, err := p.persistence.EndpointBySourceID(sourceID)
	if err != nil {
		p.logger.Error("Failed to check existing webhook endpoint", "source_id", sourceID, "error", err)

		return false
	}

	if existing != nil {
		existing.UpdateConfiguration(configuration)

		if !existing.Active {
			existing.Activate()
			p.logger.Info("Reactivated webhook endpoint", "source_id", sourceID)
		}

		if err := p.persistence.SaveEndpoint(existing); err != nil {
			p.logger.Error("Failed to update webhook endpoint", "source_id", sourceID, "error", err)
		}

		return false
	}

	endpoint, err := endpointModels.NewEndpoint(sourceID, configuration)
	if err != nil {
		p.logger.Error("Failed to create webhook endpoint", "source_id", sourceID, "error", err)

		return false
	}

	if err := p.persistence.SaveEndpoint(endpoint); err != nil {
		p.logger.Error("Failed to save webhook endpoint", "source_id", sourceID, "error", err)

		return false
	}

	p.logger.Info("Created webhook endpoint",
		"source_id", sourceID,
		"external_id", endpoint.ExternalID,
		"path", endpoint.Path())

	return true
}

// deactivateOrphans turns off active endpoints whose source id no longer
// appears in any pipeline.
func (p *Provider) deactivateOrphans(wanted map[string]bool) int {
	endpoints, err := p.persistence.Endpoints()
	if err != nil {
		p.logger.Error("Failed to list webhook endpoints", "error", err)

		return 0
	}

	deactivated := 0

	for _, endpoint := range endpoints {
		if !endpoint.Active || wanted[endpoint.SourceID] {
			continue
		}

		endpoint.Deactivate()

		if err := p.persistence.SaveEndpoint(endpoint); err != nil {
			p.logger.Error("Failed to deactivate webhook endpoint", "source_id", endpoint.SourceID, "error", err)

			continue
		}

		p.logger.Info("Deactivated orphaned webhook endpoint", "source_id", endpoint.SourceID)
		deactivated++
	}

	return deactivated
}

// getPort gets the webhook server port from configuration or environment.
func (p *Provider) getPort() int {
	if portVal, exists := p.config["port"]; exists {
		if port, ok := portVal.(int); ok && port > 0 && port <= 65535 {
			return port
		}

		if portStr, ok := portVal.(string); ok {
			if port, err := strconv.Atoi(portStr); err == nil && port > 0 && port <= 65535 {
				return port
			}
		}
	}

	if portEnv := os.Getenv("WEBHOOK_PORT"); portEnv != "" {
		if port, err := strconv.Atoi(portEnv); err == nil && port > 0 && port <= 65535 {
			return port
		}
	}

	return 8085
}

// createPersistence creates the endpoint store for the given URL scheme.
func (p *Provider) createPersistence(ctx context.Context, persistenceURL string) (endpointPersistence.EndpointPersistence, error) {
	scheme := parsePersistenceScheme(persistenceURL)
	p.logger.Info("Initializing webhook persistence", "scheme", scheme)

	switch scheme {
	case "file":
		path := strings.TrimPrefix(persistenceURL, "file://")

		return endpointPersistence.NewFilePersistence(path)
	case "postgres", "postgresql":
		return endpointPersistence.NewPostgresPersistence(ctx, p.logger, persistenceURL)
	default:
		return nil, errors.New("unsupported persistence scheme: " + scheme + " (supported: file://, postgres://)")
	}
}

// endpointConfiguration extracts the webhook settings block from a pipeline
// definition. Pipelines opt into payload validation by placing a
// json_schema under metadata.webhook.
func endpointConfiguration(pipeline *models.Pipeline) map[string]any {
	if settings, ok := pipeline.Metadata["webhook"].(map[string]any); ok {
		return settings
	}

	return map[string]any{}
}

func parsePersistenceScheme(persistenceURL string) string {
	parts := strings.SplitN(persistenceURL, "://", 2)
	if len(parts) < 2 {
		return "unknown"
	}

	return parts[0]
}
