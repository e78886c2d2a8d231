package runtime

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
	return models.ActionRuntime
}

func (f *Factory) Name() string {
	return "Runtime"
}

func (f *Factory) Description() string {
	return "Resolve a language interpreter at a specific version and expose it to later steps"
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []string{"interpreter"},
		"properties": map[string]any{
			"interpreter": map[string]any{
				"type":        "string",
				"description": "Interpreter base name, for example 'python'",
			},
			"version": map[string]any{
				"type":        "string",
				"description": "Version suffix, usually templated from the matrix, for example '{{ .matrix.python }}'",
			},
			"strict": map[string]any{
				"type":        "boolean",
				"description": "Fail unless the exact versioned binary exists",
				"default":     true,
			},
		},
	}
}
