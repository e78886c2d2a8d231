// Package checkout clones the pipeline repository into the run working
// directory and positions it on the commit the trigger referenced.
package checkout

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

const (
	// DefaultDepth keeps clones shallow. Runs only need the commit under
	// test, not the repository history.
	DefaultDepth = 1

	DefaultTimeout = 5 * time.Minute
)

var (
	ErrRepositoryRequired = errors.New("repository url is required")
	ErrCheckoutFailed     = errors.New("git checkout failed")
)

type Action struct {
	Repository string
	Ref        string
	Depth      int
	Timeout    time.Duration
}

func NewAction(config map[string]any) (*Action, error) {
	action := &Action{
		Depth:   DefaultDepth,
		Timeout: DefaultTimeout,
	}

	if repository, ok := config["repository"].(string); ok {
		action.Repository = repository
	}

	if ref, ok := config["ref"].(string); ok {
		action.Ref = ref
	}

	if depth, ok := intValue(config["depth"]); ok && depth > 0 {
		action.Depth = depth
	}

	if timeout, ok := intValue(config["timeout"]); ok && timeout > 0 {
		action.Timeout = time.Duration(timeout) * time.Second
	}

	return action, nil
}

func (a *Action) Execute(ctx context.Context, executionCtx models.ExecutionContext, logger *slog.Logger) (*models.StepOutcome, error) {
	logger = logger.With("module", "checkout_action")

	repository := a.Repository
	if repository == "" {
		repository = executionCtx.Repository.URL
	}

	if repository == "" {
		return nil, models.NewStepError(models.FailureCheckout, ErrRepositoryRequired)
	}

	repository, err := template.RenderString(repository, &executionCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to render repository url: %w", err)
	}

	ref := a.Ref
	if ref == "" {
		ref = refFromTrigger(executionCtx)
	}

	ref, err = template.RenderString(ref, &executionCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to render ref: %w", err)
	}

	logger.InfoContext(ctx, "Checking out repository", "repository", repository, "ref", ref, "depth", a.Depth)

	runner := shell.NewRunner(logger)

	result, err := runner.Run(ctx, shell.Spec{
		Command: a.cloneCommand(repository, ref),
		Dir:     executionCtx.WorkDir,
		Timeout: a.Timeout,
	})
	if err != nil {
		return nil, models.NewStepError(models.FailureCheckout, err)
	}

	outcome := &models.StepOutcome{
		ExitCode: result.ExitCode,
		Output:   result.Output,
		Data: map[string]any{
			"repository": repository,
			"ref":        ref,
		},
	}

	if result.ExitCode != 0 {
		return outcome, models.NewStepError(models.FailureCheckout,
			fmt.Errorf("%w: git exited with code %d", ErrCheckoutFailed, result.ExitCode))
	}

	logger.InfoContext(ctx, "Checkout complete", "duration", result.Duration)

	return outcome, nil
}

// cloneCommand fetches only the requested ref instead of cloning the
// whole repository, so commits outside any branch head remain reachable
// at the configured depth.
func (a *Action) cloneCommand(repository, ref string) string {
	steps := []string{
		"git init -q .",
		"git remote add origin " + shell.Quote(repository),
		fmt.Sprintf("git fetch -q --depth %d origin %s", a.Depth, shell.Quote(ref)),
		"git checkout -q FETCH_HEAD",
	}

	return strings.Join(steps, " && ")
}

// refFromTrigger picks the most specific commit reference the trigger
// carried, falling back to the repository default branch.
func refFromTrigger(executionCtx models.ExecutionContext) string {
	for _, key := range []string{"sha", "ref", "branch"} {
		if value, ok := executionCtx.TriggerData[key].(string); ok && value != "" {
			return value
		}
	}

	if executionCtx.Repository.DefaultBranch != "" {
		return executionCtx.Repository.DefaultBranch
	}

	return "HEAD"
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
