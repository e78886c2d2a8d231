package template

import (
	"testing"

	"github.com/gantryci/gantry/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender_SimpleExpression(t *testing.T) {
	data := map[string]any{
		"branch": "main",
		"score":  7,
		"passed": true,
	}

	result, err := Render("{{ .branch }}", data)
	require.NoError(t, err)
	assert.Equal(t, "main", result)

	result, err = Render("{{ .passed }}", data)
	require.NoError(t, err)
	assert.Equal(t, true, result)

	// Numbers coerce to float
	result, err = Render("{{ .score }}", data)
	require.NoError(t, err)
	assert.Equal(t, 7.0, result)
}

func TestRender_ObjectConstruction(t *testing.T) {
	data := map[string]any{
		"run": map[string]any{
			"id":     "run-1a2b3c4d",
			"status": "passed",
		},
		"steps": []any{"checkout", "lint"},
	}

	result, err := Render(`{
		"run_id": "{{ .run.id }}",
		"step_count": {{ len .steps }}
	}`, data)
	require.NoError(t, err)

	resultMap, ok := result.(map[string]any)

	require.True(t, ok)
	assert.Equal(t, "run-1a2b3c4d", resultMap["run_id"])
	assert.Equal(t, 2.0, resultMap["step_count"])
}

func TestRender_ErrorHandling(t *testing.T) {
	data := map[string]any{"test": "value"}

	_, err := Render("{ invalid..expression }}", data)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse json")

	_, err = Render("{{ nonexistent.field }}", data)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "function \"nonexistent\" not defined")
}

func TestRenderString_KeepsVersionStrings(t *testing.T) {
	ctx := &models.ExecutionContext{
		Instance: models.Instance{"python": "3.10"},
	}

	result, err := RenderString("{{ .matrix.python }}", ctx)
	require.NoError(t, err)
	assert.Equal(t, "3.10", result)
}

func TestRenderWithContext(t *testing.T) {
	ctx := &models.ExecutionContext{
		RunID:      "run-1a2b3c4d",
		PipelineID: "pipe-1",
		Instance:   models.Instance{"python": "2.7"},
		Env:        map[string]string{"CI": "true"},
		TriggerData: map[string]any{
			"branch": "main",
		},
	}
	ctx.RecordStep(models.StepResult{
		StepUID:  "lint",
		Status:   models.StepStatusPassed,
		ExitCode: 0,
	})

	result, err := RenderWithContext("{{ .trigger.branch }}", ctx)
	require.NoError(t, err)
	assert.Equal(t, "main", result)

	result, err = RenderWithContext("{{ .env.CI }}", ctx)
	require.NoError(t, err)
	assert.Equal(t, true, result)

	result, err = RenderWithContext("run {{ .run_id }} on python {{ .matrix.python }}", ctx)
	require.NoError(t, err)
	assert.Equal(t, "run run-1a2b3c4d on python 2.7", result)
}

func TestNeedsTemplating(t *testing.T) {
	assert.True(t, NeedsTemplating("{{ .matrix.python }}"))
	assert.True(t, NeedsTemplating("python{{.v}}"))
	assert.False(t, NeedsTemplating("tests.py"))
	assert.False(t, NeedsTemplating(""))
}

func TestRenderConfig(t *testing.T) {
	ctx := &models.ExecutionContext{
		Instance: models.Instance{"python": "3.9"},
		Env:      map[string]string{"WORKSPACE": "/tmp/ws"},
	}

	config := map[string]any{
		"interpreter": "python",
		"version":     "{{ .matrix.python }}",
		"fail_under":  6,
		"packages": []any{
			"pylint==2.13.9",
			"flask",
		},
		"paths": map[string]any{
			"workdir": "{{ .env.WORKSPACE }}/src",
		},
	}

	rendered, err := RenderConfig(config, ctx)
	require.NoError(t, err)

	assert.Equal(t, "python", rendered["interpreter"])
	assert.Equal(t, "3.9", rendered["version"])
	assert.Equal(t, 6, rendered["fail_under"])
	assert.Equal(t, []any{"pylint==2.13.9", "flask"}, rendered["packages"])

	paths, ok := rendered["paths"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "/tmp/ws/src", paths["workdir"])
}

func TestRenderConfig_BadTemplate(t *testing.T) {
	ctx := &models.ExecutionContext{}

	_, err := RenderConfig(map[string]any{"version": "{{ .matrix."}, ctx)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "config key \"version\"")
}
