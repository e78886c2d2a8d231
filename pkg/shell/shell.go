// Package shell runs step commands through the system shell with bounded
// output capture.
package shell

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
)

// MaxOutputBytes caps how much combined output a single command may keep.
// Longer output is truncated from the front so the failure tail survives.
const MaxOutputBytes = 64 * 1024

// Quote wraps a value in single quotes so it can be interpolated into a
// Spec command without the shell interpreting it.
func Quote(value string) string {
	return "'" + strings.ReplaceAll(value, "'", `'\''`) + "'"
}

// Spec describes one command invocation.
type Spec struct {
	// Command is passed verbatim to "sh -c".
	Command string

	// Dir is the working directory. Empty means the process default.
	Dir string

	// Env entries are appended to the inherited environment.
	Env map[string]string

	// Timeout bounds the command beyond the caller's context. Zero means
	// no additional limit.
	Timeout time.Duration
}

// Result is the outcome of a completed command. A non-zero ExitCode is a
// result, not an error; Run returns errors only for commands that could
// not run to completion.
type Result struct {
	ExitCode  int
	Output    string
	Truncated bool
	Duration  time.Duration
}

type Runner struct {
	logger *slog.Logger
}

func NewRunner(logger *slog.Logger) *Runner {
	return &Runner{logger: logger.With("module", "shell")}
}

// Run executes the spec and captures combined stdout/stderr.
func (r *Runner) Run(ctx context.Context, spec Spec) (*Result, error) {
	if spec.Command == "" {
		return nil, errors.New("empty command")
	}

	if spec.Timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", spec.Command)
	cmd.Dir = spec.Dir
	cmd.Env = os.Environ()

	for key, value := range spec.Env {
		cmd.Env = append(cmd.Env, key+"="+value)
	}

	out := newTailBuffer(MaxOutputBytes)
	cmd.Stdout = out
	cmd.Stderr = out

	r.logger.DebugContext(ctx, "Running command", "command", spec.Command, "dir", spec.Dir)

	started := time.Now()
	err := cmd.Run()
	duration := time.Since(started)

	result := &Result{
		ExitCode:  0,
		Output:    out.String(),
		Truncated: out.Truncated(),
		Duration:  duration,
	}

	if err == nil {
		return result, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return result, fmt.Errorf("command timed out after %s: %w", duration.Round(time.Millisecond), ctxErr)
		}

		result.ExitCode = exitErr.ExitCode()

		return result, nil
	}

	return result, fmt.Errorf("failed to run command: %w", err)
}
