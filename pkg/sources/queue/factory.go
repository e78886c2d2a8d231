package queue

import (
	"log/slog"

	"github.com/gantryci/gantry/pkg/events"
	"github.com/gantryci/gantry/pkg/protocol"
)

// Factory creates instances of the queue source provider.
type Factory struct{}

// NewFactory creates a new queue provider factory.
func NewFactory() *Factory {
	return &Factory{}
}

// Create instantiates a queue provider bound to the configured stream.
func (f *Factory) Create(config map[string]any, logger *slog.Logger) (protocol.Provider, error) {
	return NewProvider(config, logger.With("module", "queue_provider"))
}

func (f *Factory) ID() string {
	return "queue"
}

func (f *Factory) Name() string {
	return "Dispatch Queue"
}

func (f *Factory) Description() string {
	return "Consumes pipeline dispatch requests from a Redis stream through a consumer group and emits a ManualDispatch source event per request. Requests name the target pipeline by slug or id."
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"stream": map[string]any{
				"type":        "string",
				"description": "Redis stream to consume dispatch requests from",
				"default":     defaultStream,
			},
			"consumer_group": map[string]any{
				"type":        "string",
				"description": "Consumer group name shared by all queue provider instances",
				"default":     defaultConsumerGroup,
			},
			"consumer": map[string]any{
				"type":        "string",
				"description": "Consumer name for this instance, generated when omitted",
			},
			"connection": map[string]any{
				"type":        "object",
				"description": "Redis connection settings",
				"properties": map[string]any{
					"addr": map[string]any{
						"type":        "string",
						"description": "Redis server address",
						"default":     "localhost:6379",
					},
					"password": map[string]any{
						"type":        "string",
						"description": "Redis password",
					},
					"db": map[string]any{
						"type":        "string",
						"description": "Redis database number",
						"default":     "0",
					},
				},
			},
		},
	}
}

func (f *Factory) EventTypes() []string {
	return []string{events.SourceEventManualDispatch}
}

var _ protocol.ProviderFactory = (*Factory)(nil)
