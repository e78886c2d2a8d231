package scheduler

import (
	"log/slog"

	"github.com/gantryci/gantry/pkg/events"
	"github.com/gantryci/gantry/pkg/protocol"
)

// Factory creates instances of the scheduler source provider.
type Factory struct{}

// NewFactory creates a new factory instance.
func NewFactory() *Factory {
	return &Factory{}
}

// Create instantiates the centralized schedule poller. The schedule store
// connection is resolved during Initialize.
func (f *Factory) Create(config map[string]any, logger *slog.Logger) (protocol.Provider, error) {
	return &Provider{
		config: config,
		logger: logger.With("module", "scheduler_provider"),
	}, nil
}

// ID returns the unique identifier for this source provider type.
func (f *Factory) ID() string {
	return "scheduler"
}

// Name returns a human-readable name for this source provider.
func (f *Factory) Name() string {
	return "Schedule Poller"
}

// Description returns a detailed description of what this source provider does.
func (f *Factory) Description() string {
	return "Centralized schedule poller that checks the schedule store once a minute and emits a ScheduleDue source event for every due schedule, regardless of the individual cron expressions. Schedules are synchronized from the schedule triggers of active pipelines."
}

// Schema returns a JSON Schema that describes the provider configuration.
func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"properties":           map[string]any{},
		"required":             []string{},
		"additionalProperties": false,
		"description":          "Schedule poller configuration. Cron expressions live on pipeline schedule triggers, not here; the store is selected via SCHEDULER_PERSISTENCE_URL.",
	}
}

// EventTypes returns a list of event types that this source provider can emit.
func (f *Factory) EventTypes() []string {
	return []string{events.SourceEventScheduleDue}
}

// Ensure interface compliance.
var _ protocol.ProviderFactory = (*Factory)(nil)
