package checkout

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
	return models.ActionCheckout
}

func (f *Factory) Name() string {
	return "Checkout"
}

func (f *Factory) Description() string {
	return "Clone the pipeline repository into the run working directory at the triggering commit"
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"repository": map[string]any{
				"type":        "string",
				"description": "Clone URL. Defaults to the pipeline repository.",
			},
			"ref": map[string]any{
				"type":        "string",
				"description": "Branch, tag or commit SHA. Defaults to the ref the trigger carried.",
			},
			"depth": map[string]any{
				"type":        "integer",
				"description": "Fetch depth",
				"default":     DefaultDepth,
			},
			"timeout": map[string]any{
				"type":        "integer",
				"description": "Timeout in seconds",
			},
		},
	}
}
