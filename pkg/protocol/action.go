// Package protocol defines the contracts between the runner, step actions
// and source providers.
package protocol

import (
	"context"
	"log/slog"

	"github.com/gantryci/gantry/pkg/models"
)

// Action executes one pipeline step. Implementations render their
// configuration against the execution context, invoke whatever external
// tool the step wraps and report the outcome. A returned error marks the
// run failed; the remaining steps never start.
type Action interface {
	Execute(ctx context.Context, executionCtx models.ExecutionContext, logger *slog.Logger) (*models.StepOutcome, error)
}

// ActionFactory creates action instances from raw step configuration.
type ActionFactory interface {
	// Create instantiates the action. The config may contain template
	// expressions; those are rendered at execution time, not here.
	Create(config map[string]interface{}) (Action, error)

	// ID returns the action identifier referenced by step definitions.
	ID() string

	// Name returns a human-readable name for this action.
	Name() string

	// Description returns a detailed description of what this action does.
	Description() string

	// Schema returns a JSON Schema describing the action configuration.
	Schema() map[string]any
}
