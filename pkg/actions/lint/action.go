// Package lint runs a static analyzer over the tracked files matching a
// glob and enforces a minimum score gate.
package lint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gantryci/gantry/pkg/models"
	"github.com/gantryci/gantry/pkg/shell"
	"github.com/gantryci/gantry/pkg/template"
)

const (
	DefaultTool    = "pylint"
	DefaultFiles   = "*.py"
	DefaultTimeout = 10 * time.Minute
)

var (
	ErrScoreBelowGate = errors.New("score below gate")
	ErrLintFailed     = errors.New("linter reported errors")
)

// scorePattern matches pylint's summary line, "Your code has been rated
// at 7.50/10".
var scorePattern = regexp.MustCompile(`rated at (-?[0-9]+(?:\.[0-9]+)?)/10`)

type Action struct {
	Tool  string
	Files string

	// FailUnder is the minimum acceptable score out of 10. Nil leaves
	// the tool's exit code as the only signal.
	FailUnder *float64

	Args    []string
	Timeout time.Duration
}

func NewAction(config map[string]any) (*Action, error) {
	action := &Action{
		Tool:    DefaultTool,
		Files:   DefaultFiles,
		Timeout: DefaultTimeout,
	}

	if tool, ok := config["tool"].(string); ok && tool != "" {
		action.Tool = tool
	}

	if files, ok := config["files"].(string); ok && files != "" {
		action.Files = files
	}

	if gate, ok := floatValue(config["fail_under"]); ok {
		if gate < 0 || gate > 10 {
			return nil, fmt.Errorf("invalid 'fail_under' in configuration: %w", models.ErrLintGateOutOfRange)
		}

		action.FailUnder = &gate
	}

	if args, ok := stringList(config["args"]); ok {
		action.Args = args
	}

	if timeout, ok := floatValue(config["timeout"]); ok && timeout > 0 {
		action.Timeout = time.Duration(timeout * float64(time.Second))
	}

	return action, nil
}

func (a *Action) Execute(ctx context.Context, executionCtx models.ExecutionContext, logger *slog.Logger) (*models.StepOutcome, error) {
	logger = logger.With("module", "lint_action")

	pattern, err := template.RenderString(a.Files, &executionCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to render files pattern: %w", err)
	}

	runner := shell.NewRunner(logger)

	files, err := listFiles(ctx, runner, executionCtx.WorkDir, pattern)
	if err != nil {
		return nil, err
	}

	if len(files) == 0 {
		logger.InfoContext(ctx, "No files matched pattern, skipping lint", "pattern", pattern)

		return &models.StepOutcome{Output: "no files matched " + pattern}, nil
	}

	logger.InfoContext(ctx, "Linting", "tool", a.Tool, "files", len(files))

	result, err := runner.Run(ctx, shell.Spec{
		Command: a.toolCommand(&executionCtx, files),
		Dir:     executionCtx.WorkDir,
		Timeout: a.Timeout,
	})
	if err != nil {
		return nil, err
	}

	outcome := &models.StepOutcome{
		ExitCode: result.ExitCode,
		Output:   result.Output,
		Data: map[string]any{
			"tool":  a.Tool,
			"files": len(files),
		},
	}

	score, scored := parseScore(result.Output)
	if scored {
		outcome.Score = &score
		outcome.Data["score"] = score
	}

	if a.FailUnder != nil && !scored && result.ExitCode == 0 {
		logger.WarnContext(ctx, "No score in linter output, gate not enforced", "tool", a.Tool)
	}

	if err := a.gateDecision(result.ExitCode, score, scored); err != nil {
		return outcome, err
	}

	if scored {
		logger.InfoContext(ctx, "Lint passed", "score", score)
	}

	return outcome, nil
}

// gateDecision applies the configured gate. A parsed score beats the
// tool's own exit code, which mirrors how pylint treats --fail-under:
// messages may be emitted as long as the score clears the gate.
func (a *Action) gateDecision(exitCode int, score float64, scored bool) error {
	if a.FailUnder != nil && scored {
		if score < *a.FailUnder {
			return models.NewStepError(models.FailureLintGate,
				fmt.Errorf("%w: scored %.2f, gate is %.2f", ErrScoreBelowGate, score, *a.FailUnder))
		}

		return nil
	}

	if a.FailUnder != nil && !scored && exitCode == 0 {
		return nil
	}

	if exitCode != 0 {
		return models.NewStepError(models.FailureLintGate,
			fmt.Errorf("%w: %s exited with code %d", ErrLintFailed, a.Tool, exitCode))
	}

	return nil
}

// toolCommand runs a bare tool name through the interpreter the runtime
// step resolved, so the analyzer sees the same environment pip installed
// into.
func (a *Action) toolCommand(executionCtx *models.ExecutionContext, files []string) string {
	parts := []string{a.toolInvocation(executionCtx)}

	for _, arg := range a.Args {
		parts = append(parts, shell.Quote(arg))
	}

	for _, file := range files {
		parts = append(parts, shell.Quote(file))
	}

	return strings.Join(parts, " ")
}

func (a *Action) toolInvocation(executionCtx *models.ExecutionContext) string {
	if strings.ContainsRune(a.Tool, '/') {
		return shell.Quote(a.Tool)
	}

	if bin := executionCtx.Env[models.EnvInterpreter]; bin != "" {
		return shell.Quote(bin) + " -m " + a.Tool
	}

	return a.Tool
}

// listFiles asks git for the tracked files matching the pattern. Git
// pathspec globs cross directory boundaries, so "*.py" covers the whole
// tree.
func listFiles(ctx context.Context, runner *shell.Runner, workDir, pattern string) ([]string, error) {
	result, err := runner.Run(ctx, shell.Spec{
		Command: "git ls-files -- " + shell.Quote(pattern),
		Dir:     workDir,
		Timeout: time.Minute,
	})
	if err != nil {
		return nil, err
	}

	if result.ExitCode != 0 {
		return nil, fmt.Errorf("git ls-files exited with code %d: %s", result.ExitCode, strings.TrimSpace(result.Output))
	}

	var files []string

	for _, line := range strings.Split(result.Output, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			files = append(files, line)
		}
	}

	return files, nil
}

func parseScore(output string) (float64, bool) {
	match := scorePattern.FindStringSubmatch(output)
	if match == nil {
		return 0, false
	}

	score, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0, false
	}

	return score, true
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

func floatValue(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}
