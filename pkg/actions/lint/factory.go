package lint

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
	return models.ActionLint
}

func (f *Factory) Name() string {
	return "Lint"
}

func (f *Factory) Description() string {
	return "Run a static analyzer over tracked files and enforce a minimum score gate"
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"tool": map[string]any{
				"type":        "string",
				"description": "Analyzer to run",
				"default":     DefaultTool,
			},
			"files": map[string]any{
				"type":        "string",
				"description": "Glob matched against tracked files",
				"default":     DefaultFiles,
			},
			"fail_under": map[string]any{
				"type":        "number",
				"description": "Minimum acceptable score out of 10",
				"minimum":     0,
				"maximum":     10,
			},
			"args": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Extra analyzer flags",
			},
			"timeout": map[string]any{
				"type":        "integer",
				"description": "Timeout in seconds",
			},
		},
	}
}
