package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipelineActive(t *testing.T) {
	now := time.Now().UTC()

	tests := []struct {
		name     string
		pipeline Pipeline
		want     bool
	}{
		{
			name:     "active pipeline",
			pipeline: Pipeline{Status: PipelineStatusActive},
			want:     true,
		},
		{
			name:     "disabled pipeline",
			pipeline: Pipeline{Status: PipelineStatusDisabled},
			want:     false,
		},
		{
			name:     "deleted pipeline",
			pipeline: Pipeline{Status: PipelineStatusActive, DeletedAt: &now},
			want:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.pipeline.Active())
		})
	}
}

func TestPipelineFindStep(t *testing.T) {
	pipeline := Pipeline{
		Steps: []*Step{
			{UID: "checkout", ActionID: ActionCheckout},
			{UID: "lint", ActionID: ActionLint},
		},
	}

	step, found := pipeline.FindStep("lint")
	require.True(t, found)
	assert.Equal(t, ActionLint, step.ActionID)

	_, found = pipeline.FindStep("deploy")
	assert.False(t, found)
}

func TestBuiltinAction(t *testing.T) {
	for _, actionID := range []string{ActionCheckout, ActionRuntime, ActionInstall, ActionLint, ActionScript} {
		assert.True(t, BuiltinAction(actionID), actionID)
	}

	assert.False(t, BuiltinAction("deploy"))
	assert.False(t, BuiltinAction(""))
}
