package defs

import (
	"errors"
	"fmt"

	"github.com/gantryci/gantry/pkg/models"
	"github.com/go-playground/validator/v10"
)

var (
	ErrNoTriggers        = errors.New("pipeline definition enables no triggers")
	ErrScriptPathMissing = errors.New("script step requires a path")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the definition structurally and semantically. It returns
// the first problem found.
func (d *Def) Validate() error {
	if err := validate.Struct(d); err != nil {
		return fmt.Errorf("invalid pipeline definition: %w", err)
	}

	if d.On.Push == nil && d.On.PullRequest == nil && d.On.Schedule == nil && d.On.Manual == nil {
		return ErrNoTriggers
	}

	for _, trigger := range d.triggers() {
		if err := trigger.Validate(); err != nil {
			return err
		}
	}

	if err := d.validateSteps(); err != nil {
		return err
	}

	return nil
}

func (d *Def) validateSteps() error {
	seen := make(map[string]bool, len(d.Steps))

	for i, step := range d.Steps {
		uid := stepUID(step)
		if seen[uid] {
			return fmt.Errorf("step %d: %w: %q", i, models.ErrDuplicateStepUID, uid)
		}

		seen[uid] = true

		switch step.Action {
		case models.ActionLint:
			if err := validateLintGate(step.With); err != nil {
				return fmt.Errorf("step %q: %w", uid, err)
			}
		case models.ActionScript:
			if path, _ := step.With["path"].(string); path == "" {
				return fmt.Errorf("step %q: %w", uid, ErrScriptPathMissing)
			}
		}
	}

	return nil
}

// validateLintGate enforces the analyzer's scoring range on the fail_under
// threshold. Pylint scores run up to 10.
func validateLintGate(with map[string]any) error {
	raw, ok := with["fail_under"]
	if !ok {
		return nil
	}

	gate, ok := gateValue(raw)
	if !ok {
		return fmt.Errorf("%w: %v is not a number", models.ErrLintGateOutOfRange, raw)
	}

	if gate < 0 || gate > 10 {
		return fmt.Errorf("%w: got %v", models.ErrLintGateOutOfRange, gate)
	}

	return nil
}

func gateValue(raw any) (float64, bool) {
	switch v := raw.(type) {
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case float64:
		return v, true
	}

	return 0, false
}
