package models

// Built-in stage action identifiers. The runner resolves these through the
// action registry; plugins may register additional identifiers.
const (
	ActionCheckout = "checkout"
	ActionRuntime  = "runtime"
	ActionInstall  = "install"
	ActionLint     = "lint"
	ActionScript   = "script"
)

// Step is one stage of a pipeline. Steps run strictly in declaration order;
// a failing step terminates the run and the remaining steps never start.
type Step struct {
	ID            string         `json:"id"`
	UID           string         `json:"uid"       validate:"required"`
	Name          string         `json:"name"`
	ActionID      string         `json:"action_id" validate:"required"`
	Configuration map[string]any `json:"configuration"`
	Enabled       bool           `json:"enabled"`
}

// StepOutcome is what an action reports back to the runner. The runner
// folds it into the run's step results.
type StepOutcome struct {
	ExitCode int            `json:"exit_code"`
	Score    *float64       `json:"score,omitempty"`
	Output   string         `json:"output,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
}

// BuiltinAction reports whether the identifier names one of the bundled
// stage actions.
func BuiltinAction(actionID string) bool {
	switch actionID {
	case ActionCheckout, ActionRuntime, ActionInstall, ActionLint, ActionScript:
		return true
	}

	return false
}
