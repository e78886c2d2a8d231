package webhook

import (
	"log/slog"

	"github.com/gantryci/gantry/pkg/protocol"
)

// Factory creates instances of the webhook source provider.
type Factory struct{}

// NewFactory creates a new factory instance.
func NewFactory() *Factory {
	return &Factory{}
}

// Create instantiates the centralized webhook intake provider. Port and
// persistence configuration are resolved during Initialize.
func (f *Factory) Create(config map[string]any, logger *slog.Logger) (protocol.Provider, error) {
	return &Provider{
		config: config,
		logger: logger.With("module", "webhook_provider"),
	}, nil
}

// ID returns the unique identifier for this source provider type.
func (f *Factory) ID() string {
	return "webhook"
}

// Name returns a human-readable name for this source provider.
func (f *Factory) Name() string {
	return "Forge Webhook"
}

// Description returns a detailed description of what this source provider does.
func (f *Factory) Description() string {
	return "Centralized webhook intake for forge push and pull_request deliveries. Serves one HTTP endpoint per source id at /hooks/{external id}, validates payloads against an optional JSON schema and emits source events for trigger matching."
}

// Schema returns a JSON Schema that describes the provider configuration.
func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"port": map[string]any{
				"type":        "integer",
				"description": "Port number for the webhook HTTP server (default: 8085)",
				"minimum":     1,
				"maximum":     65535,
				"default":     8085,
			},
		},
		"required":             []string{},
		"additionalProperties": false,
		"description":          "Webhook intake configuration. Endpoints are created automatically from the push and pull_request triggers of active pipelines.",
	}
}

// EventTypes returns a list of event types that this source provider can emit.
func (f *Factory) EventTypes() []string {
	return []string{"push", "pull_request"}
}

// Ensure interface compliance.
var _ protocol.ProviderFactory = (*Factory)(nil)
