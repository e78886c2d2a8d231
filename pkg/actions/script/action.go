// Package script executes a repository script, typically the test entry
// point. The script's exit code is the verdict.
package script

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gantryci/gantry/pkg/models"
	"github.com/gantryci/gantry/pkg/shell"
	"github.com/gantryci/gantry/pkg/template"
)

const DefaultTimeout = 30 * time.Minute

var (
	ErrPathRequired   = errors.New("path is required")
	ErrScriptNotFound = errors.New("script not found")
	ErrScriptFailed   = errors.New("script exited with a non-zero code")
)

type Action struct {
	Path        string
	Interpreter string
	Args        []string
	Timeout     time.Duration
}

func NewAction(config map[string]any) (*Action, error) {
	path, ok := config["path"].(string)
	if !ok || path == "" {
		return nil, fmt.Errorf("missing or invalid 'path' in configuration: %w", ErrPathRequired)
	}

	action := &Action{
		Path:    path,
		Timeout: DefaultTimeout,
	}

	if interpreter, ok := config["interpreter"].(string); ok {
		action.Interpreter = interpreter
	}

	if args, ok := stringList(config["args"]); ok {
		action.Args = args
	}

	if timeout, ok := intValue(config["timeout"]); ok && timeout > 0 {
		action.Timeout = time.Duration(timeout) * time.Second
	}

	return action, nil
}

func (a *Action) Execute(ctx context.Context, executionCtx models.ExecutionContext, logger *slog.Logger) (*models.StepOutcome, error) {
	logger = logger.With("module", "script_action")

	path, err := template.RenderString(a.Path, &executionCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to render path: %w", err)
	}

	resolved := path
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(executionCtx.WorkDir, path)
	}

	if _, err := os.Stat(resolved); err != nil {
		return nil, models.NewStepError(models.FailureScriptMissing,
			fmt.Errorf("%w: %s", ErrScriptNotFound, path))
	}

	command, err := a.command(&executionCtx, resolved)
	if err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "Running script", "path", path, "timeout", a.Timeout)

	runner := shell.NewRunner(logger)

	result, err := runner.Run(ctx, shell.Spec{
		Command: command,
		Dir:     executionCtx.WorkDir,
		Timeout: a.Timeout,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, models.NewStepError(models.FailureTestNonzero, err)
		}

		return nil, err
	}

	outcome := &models.StepOutcome{
		ExitCode: result.ExitCode,
		Output:   result.Output,
		Data: map[string]any{
			"path": path,
		},
	}

	if result.ExitCode != 0 {
		return outcome, models.NewStepError(models.FailureTestNonzero,
			fmt.Errorf("%w: exit code %d", ErrScriptFailed, result.ExitCode))
	}

	logger.InfoContext(ctx, "Script passed", "path", path, "duration", result.Duration)

	return outcome, nil
}

// command prefixes the script with an interpreter. The one the runtime
// step resolved wins so the script runs under the matrix instance's
// version; the configured interpreter covers pipelines without a
// runtime step, and with neither the script runs directly.
func (a *Action) command(executionCtx *models.ExecutionContext, resolved string) (string, error) {
	interpreter := executionCtx.Env[models.EnvInterpreter]

	if interpreter == "" && a.Interpreter != "" {
		rendered, err := template.RenderString(a.Interpreter, executionCtx)
		if err != nil {
			return "", fmt.Errorf("failed to render interpreter: %w", err)
		}

		interpreter = rendered
	}

	parts := make([]string, 0, len(a.Args)+2)

	if interpreter != "" {
		parts = append(parts, shell.Quote(interpreter))
	}

	parts = append(parts, shell.Quote(resolved))

	for _, arg := range a.Args {
		rendered, err := template.RenderString(arg, executionCtx)
		if err != nil {
			return "", fmt.Errorf("failed to render argument: %w", err)
		}

		parts = append(parts, shell.Quote(rendered))
	}

	return strings.Join(parts, " "), nil
}

func stringList(value any) ([]string, bool) {
	switch v := value.(type) {
	case []string:
		return v, true
	case []any:
		list := make([]string, 0, len(v))

		for _, item := range v {
			str, ok := item.(string)
			if !ok {
				return nil, false
			}

			list = append(list, str)
		}

		return list, true
	default:
		return nil, false
	}
}

func intValue(value any) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}
