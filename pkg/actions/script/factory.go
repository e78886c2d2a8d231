package script

import (
	"github.com/gantryci/gantry/pkg/models"
	"github.com/gantryci/gantry/pkg/protocol"
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Create(config map[string]any) (protocol.Action, error) {
	return NewAction(config)
}

func (f *Factory) ID() string {
	return models.ActionScript
}

func (f *Factory) Name() string {
	return "Script"
}

func (f *Factory) Description() string {
	return "Run a repository script and treat its exit code as the verdict"
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []string{"path"},
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "Script path relative to the checkout",
			},
			"interpreter": map[string]any{
				"type":        "string",
				"description": "Interpreter to run the script with when no runtime step resolved one",
			},
			"args": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Arguments passed to the script",
			},
			"timeout": map[string]any{
				"type":        "integer",
				"description": "Timeout in seconds",
			},
		},
	}
}
