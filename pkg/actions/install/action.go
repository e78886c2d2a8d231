// Package install provisions run dependencies, native packages through
// apt and language packages through pip.
package install

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gantryci/gantry/pkg/models"
	"github.com/gantryci/gantry/pkg/shell"
	"github.com/gantryci/gantry/pkg/template"
)

const DefaultTimeout = 10 * time.Minute

var (
	ErrPackagesRequired = errors.New("at least one package is required")
	ErrInstallFailed    = errors.New("package installation failed")
)

type Action struct {
	// Apt packages install first so native build dependencies exist
	// before pip compiles anything against them.
	Apt []string
	Pip []string

	Sudo       bool
	UpgradePip bool
	Timeout    time.Duration
}

func NewAction(config map[string]any) (*Action, error) {
	action := &Action{Timeout: DefaultTimeout}

	if apt, ok := stringList(config["apt"]); ok {
		action.Apt = apt
	}

	if pip, ok := stringList(config["pip"]); ok {
		action.Pip = pip
	}

	if len(action.Apt) == 0 && len(action.Pip) == 0 {
		return nil, fmt.Errorf("missing or invalid 'apt' and 'pip' in configuration: %w", ErrPackagesRequired)
	}

	if sudo, ok := config["sudo"].(bool); ok {
		action.Sudo = sudo
	}

	if upgrade, ok := config["upgrade_pip"].(bool); ok {
		action.UpgradePip = upgrade
	}

	if timeout, ok := intValue(config["timeout"]); ok && timeout > 0 {
		action.Timeout = time.Duration(timeout) * time.Second
	}

	return action, nil
}

type invocation struct {
	label   string
	command string
}

func (a *Action) Execute(ctx context.Context, executionCtx models.ExecutionContext, logger *slog.Logger) (*models.StepOutcome, error) {
	logger = logger.With("module", "install_action")

	invocations, err := a.invocations(&executionCtx)
	if err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "Installing dependencies", "apt", len(a.Apt), "pip", len(a.Pip))

	runner := shell.NewRunner(logger)

	var output strings.Builder

	for _, inv := range invocations {
		result, err := runner.Run(ctx, shell.Spec{
			Command: inv.command,
			Dir:     executionCtx.WorkDir,
			Timeout: a.Timeout,
		})
		if err != nil {
			return nil, models.NewStepError(models.FailureInstall, err)
		}

		output.WriteString(result.Output)

		if result.ExitCode != 0 {
			outcome := &models.StepOutcome{ExitCode: result.ExitCode, Output: output.String()}

			return outcome, models.NewStepError(models.FailureInstall,
				fmt.Errorf("%w: %s exited with code %d", ErrInstallFailed, inv.label, result.ExitCode))
		}

		logger.InfoContext(ctx, "Installed", "step", inv.label, "duration", result.Duration)
	}

	return &models.StepOutcome{
		Output: output.String(),
		Data: map[string]any{
			"apt": len(a.Apt),
			"pip": len(a.Pip),
		},
	}, nil
}

// invocations renders package names and assembles the ordered commands
// this action will run.
func (a *Action) invocations(executionCtx *models.ExecutionContext) ([]invocation, error) {
	apt, err := renderList(a.Apt, executionCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to render apt packages: %w", err)
	}

	pip, err := renderList(a.Pip, executionCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to render pip packages: %w", err)
	}

	var invocations []invocation

	if len(apt) > 0 {
		invocations = append(invocations, invocation{
			label:   "apt-get install",
			command: a.aptCommand(apt),
		})
	}

	pipBin := pipCommand(executionCtx)

	if a.UpgradePip {
		invocations = append(invocations, invocation{
			label:   "pip upgrade",
			command: pipBin + " install --upgrade pip",
		})
	}

	for _, pkg := range pip {
		invocations = append(invocations, invocation{
			label:   "pip install " + pkg,
			command: pipBin + " install " + shell.Quote(pkg),
		})
	}

	return invocations, nil
}

func (a *Action) aptCommand(packages []string) string {
	quoted := make([]string, 0, len(packages))
	for _, pkg := range packages {
		quoted = append(quoted, shell.Quote(pkg))
	}

	prefix := ""
	if a.Sudo {
		prefix = "sudo "
	}

	return fmt.Sprintf("%sapt-get update -qq && %sapt-get install -y -qq %s",
		prefix, prefix, strings.Join(quoted, " "))
}

// pipCommand routes pip through the interpreter the runtime step
// resolved, so packages land in the matrix instance's environment.
func pipCommand(executionCtx *models.ExecutionContext) string {
	if bin := executionCtx.Env[models.EnvInterpreter]; bin != "" {
		return shell.Quote(bin) + " -m pip"
	}

	return "python3 -m pip"
}

func renderList(values []string, executionCtx *models.ExecutionContext) ([]string, error) {
	rendered := make([]string, 0, len(values))

	for _, value := range values {
		result, err := template.RenderString(value, executionCtx)
		if err != nil {
			return nil, err
		}

		rendered = append(rendered, result)
	}

	return rendered, nil
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
