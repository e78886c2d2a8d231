// Package runtime resolves the language interpreter a matrix instance
// asked for and publishes it to the rest of the run.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/gantryci/gantry/pkg/models"
	"github.com/gantryci/gantry/pkg/shell"
	"github.com/gantryci/gantry/pkg/template"
)

var (
	ErrInterpreterRequired = errors.New("interpreter is required")
	ErrRuntimeUnavailable  = errors.New("interpreter not available on this runner")
)

type Action struct {
	Interpreter string
	Version     string

	// Strict requires the exact versioned binary. When false the action
	// falls back to the major version and then the bare interpreter.
	Strict bool
}

func NewAction(config map[string]any) (*Action, error) {
	interpreter, ok := config["interpreter"].(string)
	if !ok || interpreter == "" {
		return nil, fmt.Errorf("missing or invalid 'interpreter' in configuration: %w", ErrInterpreterRequired)
	}

	action := &Action{
		Interpreter: interpreter,
		Strict:      true,
	}

	if version, ok := config["version"].(string); ok {
		action.Version = version
	}

	if strict, ok := config["strict"].(bool); ok {
		action.Strict = strict
	}

	return action, nil
}

func (a *Action) Execute(ctx context.Context, executionCtx models.ExecutionContext, logger *slog.Logger) (*models.StepOutcome, error) {
	logger = logger.With("module", "runtime_action")

	version, err := template.RenderString(a.Version, &executionCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to render version: %w", err)
	}

	candidates := candidates(a.Interpreter, version, a.Strict)

	var path string

	for _, candidate := range candidates {
		resolved, err := exec.LookPath(candidate)
		if err != nil {
			continue
		}

		path = resolved

		break
	}

	if path == "" {
		return nil, models.NewStepError(models.FailureRuntime,
			fmt.Errorf("%w: tried %s", ErrRuntimeUnavailable, strings.Join(candidates, ", ")))
	}

	logger.InfoContext(ctx, "Resolved interpreter", "interpreter", a.Interpreter, "version", version, "path", path)

	if executionCtx.Env != nil {
		executionCtx.Env[models.EnvInterpreter] = path
	}

	outcome := &models.StepOutcome{
		Data: map[string]any{
			"interpreter": a.Interpreter,
			"version":     version,
			"path":        path,
		},
	}

	// Best effort version probe so the run log shows what actually ran.
	runner := shell.NewRunner(logger)
	if result, err := runner.Run(ctx, shell.Spec{Command: shell.Quote(path) + " --version"}); err == nil {
		outcome.Output = strings.TrimSpace(result.Output)
	}

	return outcome, nil
}

func candidates(interpreter, version string, strict bool) []string {
	if version == "" {
		return []string{interpreter}
	}

	names := []string{interpreter + version}

	if !strict {
		if major, _, found := strings.Cut(version, "."); found {
			names = append(names, interpreter+major)
		}

		names = append(names, interpreter)
	}

	return names
}
