package shell

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRunner() *Runner {
	return NewRunner(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRunCapturesOutput(t *testing.T) {
	runner := newTestRunner()

	result, err := runner.Run(context.Background(), Spec{Command: "echo hello; echo world >&2"})
	require.NoError(t, err)

	assert.Equal(t, 0, result.ExitCode)
	assert.Contains(t, result.Output, "hello")
	assert.Contains(t, result.Output, "world")
	assert.False(t, result.Truncated)
	assert.Positive(t, result.Duration)
}

func TestRunReportsExitCode(t *testing.T) {
	runner := newTestRunner()

	result, err := runner.Run(context.Background(), Spec{Command: "exit 3"})
	require.NoError(t, err)

	assert.Equal(t, 3, result.ExitCode)
}

func TestRunSetsWorkingDirectory(t *testing.T) {
	runner := newTestRunner()
	dir := t.TempDir()

	result, err := runner.Run(context.Background(), Spec{Command: "pwd", Dir: dir})
	require.NoError(t, err)

	assert.Equal(t, dir, strings.TrimSpace(result.Output))
}

func TestRunPassesEnvironment(t *testing.T) {
	runner := newTestRunner()

	result, err := runner.Run(context.Background(), Spec{
		Command: "echo $PIPELINE_MARKER",
		Env:     map[string]string{"PIPELINE_MARKER": "gantry-test"},
	})
	require.NoError(t, err)

	assert.Equal(t, "gantry-test", strings.TrimSpace(result.Output))
}

func TestRunEmptyCommand(t *testing.T) {
	runner := newTestRunner()

	_, err := runner.Run(context.Background(), Spec{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty command")
}

func TestRunTimeout(t *testing.T) {
	runner := newTestRunner()

	_, err := runner.Run(context.Background(), Spec{
		Command: "sleep 5",
		Timeout: 100 * time.Millisecond,
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRunTruncatesLongOutput(t *testing.T) {
	runner := newTestRunner()

	// Emit ~1MiB of output, far beyond the cap.
	result, err := runner.Run(context.Background(), Spec{
		Command: `i=0; while [ $i -lt 16384 ]; do echo "0123456789012345678901234567890123456789012345678901234567890123"; i=$((i+1)); done`,
	})
	require.NoError(t, err)

	assert.True(t, result.Truncated)
	assert.LessOrEqual(t, len(result.Output), MaxOutputBytes)
}

func TestTailBuffer(t *testing.T) {
	buf := newTailBuffer(8)

	_, err := buf.Write([]byte("abcd"))
	require.NoError(t, err)
	assert.Equal(t, "abcd", buf.String())
	assert.False(t, buf.Truncated())

	_, err = buf.Write([]byte("efghij"))
	require.NoError(t, err)
	assert.Equal(t, "cdefghij", buf.String())
	assert.True(t, buf.Truncated())
}

func TestQuote(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "plain", input: "tests.py", expected: "'tests.py'"},
		{name: "spaces", input: "a b", expected: "'a b'"},
		{name: "dollar", input: "$HOME", expected: "'$HOME'"},
		{name: "single quote", input: "it's", expected: `'it'\''s'`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Quote(tt.input))
		})
	}
}

func TestQuoteSurvivesShell(t *testing.T) {
	runner := newTestRunner()

	result, err := runner.Run(context.Background(), Spec{
		Command: "printf %s " + Quote("it's $HOME"),
	})
	require.NoError(t, err)

	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, "it's $HOME", result.Output)
}
