package install

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
	return models.ActionInstall
}

func (f *Factory) Name() string {
	return "Install"
}

func (f *Factory) Description() string {
	return "Install native packages through apt and language packages through pip"
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"apt": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Native packages, installed before any pip package",
			},
			"pip": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Python packages, usually version pinned, for example 'pylint==2.13.9'",
			},
			"sudo": map[string]any{
				"type":        "boolean",
				"description": "Prefix apt with sudo",
				"default":     false,
			},
			"upgrade_pip": map[string]any{
				"type":        "boolean",
				"description": "Upgrade pip itself before installing packages",
				"default":     false,
			},
			"timeout": map[string]any{
				"type":        "integer",
				"description": "Per command timeout in seconds",
			},
		},
	}
}
