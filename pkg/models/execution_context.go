package models

import "maps"

// ExecutionContext carries everything a step action needs at execution
// time. It accumulates step results as the run progresses so later steps
// and templates can reference earlier outcomes.
type ExecutionContext struct {
	RunID       string                `json:"run_id"`
	PipelineID  string                `json:"pipeline_id"`
	Repository  Repository            `json:"repository"`
	Instance    Instance              `json:"instance,omitempty"`
	WorkDir     string                `json:"work_dir"`
	Env         map[string]string     `json:"env,omitempty"`
	TriggerData map[string]any        `json:"trigger_data,omitempty"`
	Variables   map[string]any        `json:"variables,omitempty"`
	Metadata    map[string]any        `json:"metadata,omitempty"`
	StepResults map[string]StepResult `json:"step_results,omitempty"`
}

// EnvInterpreter is the context env key under which the runtime action
// publishes the resolved interpreter binary for later steps.
const EnvInterpreter = "GANTRY_INTERPRETER"

// NewExecutionContext builds the context for one run. Pipeline env is
// copied so step actions can extend it without mutating the definition.
func NewExecutionContext(run *Run, pipeline *Pipeline, workDir string) *ExecutionContext {
	env := make(map[string]string, len(pipeline.Env))
	maps.Copy(env, pipeline.Env)

	return &ExecutionContext{
		RunID:       run.ID,
		PipelineID:  pipeline.ID,
		Repository:  pipeline.Repository,
		Instance:    run.Instance,
		WorkDir:     workDir,
		Env:         env,
		TriggerData: run.EventData,
		Variables:   pipeline.Variables,
		Metadata:    pipeline.Metadata,
		StepResults: make(map[string]StepResult),
	}
}

// RecordStep stores a finished step result under its uid.
func (ec *ExecutionContext) RecordStep(result StepResult) {
	if ec.StepResults == nil {
		ec.StepResults = make(map[string]StepResult)
	}

	ec.StepResults[result.StepUID] = result
}

// TemplateData exposes the context to template rendering under stable
// namespace keys.
func (ec *ExecutionContext) TemplateData() map[string]any {
	matrix := make(map[string]any, len(ec.Instance))
	for axis, value := range ec.Instance {
		matrix[axis] = value
	}

	env := make(map[string]any, len(ec.Env))
	for key, value := range ec.Env {
		env[key] = value
	}

	steps := make(map[string]any, len(ec.StepResults))
	for uid, result := range ec.StepResults {
		steps[uid] = result
	}

	return map[string]any{
		"run_id":      ec.RunID,
		"pipeline_id": ec.PipelineID,
		"workdir":     ec.WorkDir,
		"repository": map[string]any{
			"url":            ec.Repository.URL,
			"default_branch": ec.Repository.DefaultBranch,
		},
		"matrix":   matrix,
		"env":      env,
		"steps":    steps,
		"trigger":  ec.TriggerData,
		"vars":     ec.Variables,
		"metadata": ec.Metadata,
	}
}
