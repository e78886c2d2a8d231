package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRun(t *testing.T) {
	groupID := NewGroupID()
	run := NewRun(groupID, "pipe-1", "trigger-1", Instance{"python": "3.9"})

	assert.NotEmpty(t, run.ID)
	assert.Contains(t, run.ID, "run-")
	assert.Equal(t, groupID, run.GroupID)
	assert.Equal(t, "pipe-1", run.PipelineID)
	assert.Equal(t, "trigger-1", run.TriggerID)
	assert.Equal(t, Instance{"python": "3.9"}, run.Instance)
	assert.Equal(t, RunStatusQueued, run.Status)
	assert.False(t, run.CreatedAt.IsZero())
	assert.Nil(t, run.StartedAt)
	assert.Nil(t, run.FinishedAt)
	assert.False(t, run.Finished())
}

func TestRunTransitions(t *testing.T) {
	t.Run("passed", func(t *testing.T) {
		run := NewRun(NewGroupID(), "pipe-1", "trigger-1", nil)

		run.MarkRunning()
		require.Equal(t, RunStatusRunning, run.Status)
		require.NotNil(t, run.StartedAt)
		assert.False(t, run.Finished())

		run.MarkPassed()
		assert.Equal(t, RunStatusPassed, run.Status)
		assert.Equal(t, FailureNone, run.Reason)
		assert.NotNil(t, run.FinishedAt)
		assert.True(t, run.Finished())
	})

	t.Run("failed keeps reason", func(t *testing.T) {
		run := NewRun(NewGroupID(), "pipe-1", "trigger-1", nil)

		run.MarkRunning()
		run.MarkFailed(FailureLintGate)

		assert.Equal(t, RunStatusFailed, run.Status)
		assert.Equal(t, FailureLintGate, run.Reason)
		assert.True(t, run.Finished())
	})

	t.Run("cancelled", func(t *testing.T) {
		run := NewRun(NewGroupID(), "pipe-1", "trigger-1", nil)

		run.MarkCancelled()

		assert.Equal(t, RunStatusCancelled, run.Status)
		assert.True(t, run.Finished())
	})
}

func TestRunSiblingsShareGroup(t *testing.T) {
	matrix := Matrix{Axes: map[string][]string{"python": {"2.7", "3.5", "3.9"}}}
	groupID := NewGroupID()

	runs := make([]*Run, 0, matrix.Size())
	for _, instance := range matrix.Expand() {
		runs = append(runs, NewRun(groupID, "pipe-1", "trigger-1", instance))
	}

	require.Len(t, runs, 3)

	seen := make(map[string]bool)
	for _, run := range runs {
		assert.Equal(t, groupID, run.GroupID)
		assert.False(t, seen[run.ID])
		seen[run.ID] = true
	}
}

func TestStepResultDuration(t *testing.T) {
	run := NewRun(NewGroupID(), "pipe-1", "trigger-1", nil)
	run.MarkRunning()

	result := StepResult{
		StepUID:    "lint",
		ActionID:   ActionLint,
		Status:     StepStatusPassed,
		StartedAt:  run.CreatedAt,
		FinishedAt: run.CreatedAt.Add(1500000000),
	}

	assert.Equal(t, int64(1500), result.Duration().Milliseconds())
}
