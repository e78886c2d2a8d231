// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"github.com/google/uuid"

	"github.com/gantryci/gantry/pkg/models"
)

// CreateTestPipeline creates a test Pipeline with default values that can
// be overridden. The default pipeline has one push trigger on the default
// branch and two enabled steps.
func CreateTestPipeline(overrides ...func(*models.Pipeline)) *models.Pipeline {
	pipeline := &models.Pipeline{
		ID:     uuid.New().String(),
		Name:   "Test Pipeline",
		Slug:   "test-pipeline",
		Status: models.PipelineStatusActive,
		Repository: models.Repository{
			URL:           "https://github.com/acme/metricsd.git",
			DefaultBranch: "main",
		},
		Triggers: []*models.Trigger{
			{ID: "push", Kind: models.TriggerKindPush},
		},
		Steps: []*models.Step{
			{ID: "step-1", UID: "checkout", ActionID: models.ActionCheckout, Enabled: true},
			{ID: "step-2", UID: "tests", ActionID: models.ActionScript, Configuration: map[string]any{"path": "tests.py"}, Enabled: true},
		},
	}

	for _, override := range overrides {
		override(pipeline)
	}

	return pipeline
}

// WithID sets the pipeline id.
func WithID(id string) func(*models.Pipeline) {
	return func(p *models.Pipeline) {
		p.ID = id
	}
}

// WithSlug sets the pipeline slug.
func WithSlug(slug string) func(*models.Pipeline) {
	return func(p *models.Pipeline) {
		p.Slug = slug
	}
}

// WithStatus sets the pipeline status.
func WithStatus(status models.PipelineStatus) func(*models.Pipeline) {
	return func(p *models.Pipeline) {
		p.Status = status
	}
}

// WithDefaultBranch sets the repository default branch.
func WithDefaultBranch(branch string) func(*models.Pipeline) {
	return func(p *models.Pipeline) {
		p.Repository.DefaultBranch = branch
	}
}

// WithTriggers replaces the pipeline triggers.
func WithTriggers(triggers ...*models.Trigger) func(*models.Pipeline) {
	return func(p *models.Pipeline) {
		p.Triggers = triggers
	}
}

// WithMatrix sets the pipeline matrix axes.
func WithMatrix(axes map[string][]string) func(*models.Pipeline) {
	return func(p *models.Pipeline) {
		p.Matrix = models.Matrix{Axes: axes}
	}
}

// WithFailFast sets the matrix fail-fast flag.
func WithFailFast() func(*models.Pipeline) {
	return func(p *models.Pipeline) {
		p.Matrix.FailFast = true
	}
}

// WithSteps replaces the pipeline steps.
func WithSteps(steps ...*models.Step) func(*models.Pipeline) {
	return func(p *models.Pipeline) {
		p.Steps = steps
	}
}

// WithEnv sets the pipeline environment.
func WithEnv(env map[string]string) func(*models.Pipeline) {
	return func(p *models.Pipeline) {
		p.Env = env
	}
}

// WithVariables sets the pipeline variables.
func WithVariables(vars map[string]any) func(*models.Pipeline) {
	return func(p *models.Pipeline) {
		p.Variables = vars
	}
}

// CreateTestRun creates a queued test Run for the given pipeline with
// default values that can be overridden.
func CreateTestRun(pipelineID string, overrides ...func(*models.Run)) *models.Run {
	run := models.NewRun(models.NewGroupID(), pipelineID, "push", nil)
	run.Branch = "main"

	for _, override := range overrides {
		override(run)
	}

	return run
}

// WithInstance sets the run's matrix instance.
func WithInstance(instance models.Instance) func(*models.Run) {
	return func(r *models.Run) {
		r.Instance = instance
	}
}

// WithGroupID sets the run's group id.
func WithGroupID(groupID string) func(*models.Run) {
	return func(r *models.Run) {
		r.GroupID = groupID
	}
}

// WithEventData sets the run's trigger event data.
func WithEventData(data map[string]any) func(*models.Run) {
	return func(r *models.Run) {
		r.EventData = data
	}
}
