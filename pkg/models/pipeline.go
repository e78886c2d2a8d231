// Package models defines the core domain models for CI pipeline automation.
package models

import "time"

// PipelineStatus represents the lifecycle state of a pipeline definition.
type PipelineStatus string

const (
	PipelineStatusActive   PipelineStatus = "active"   // Matched against incoming events
	PipelineStatusDisabled PipelineStatus = "disabled" // Kept in storage, never matched
)

// Repository identifies the source tree a pipeline builds.
type Repository struct {
	URL           string `json:"url"            validate:"required"`
	DefaultBranch string `json:"default_branch" validate:"required"`
}

// Pipeline is a declarative CI pipeline: a set of triggers, an optional
// version matrix, and a linear sequence of steps executed per matrix
// instance. Definitions are parsed once per triggering event; nothing in a
// pipeline mutates at run time.
type Pipeline struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"        validate:"required,min=3"`
	Slug        string            `json:"slug"        validate:"required,lowercase"`
	Description string            `json:"description"`
	Status      PipelineStatus    `json:"status"      validate:"required"`
	Repository  Repository        `json:"repository"`
	Triggers    []*Trigger        `json:"triggers"    validate:"dive"`
	Matrix      Matrix            `json:"matrix"`
	Steps       []*Step           `json:"steps"       validate:"dive"`
	Env         map[string]string `json:"env,omitempty"`
	Variables   map[string]any    `json:"variables,omitempty"`
	Metadata    map[string]any    `json:"metadata,omitempty"`
	Owner       string            `json:"owner"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	DeletedAt   *time.Time        `json:"deleted_at,omitempty"`
}

// Active reports whether the pipeline should be considered for trigger
// matching.
func (p *Pipeline) Active() bool {
	return p.Status == PipelineStatusActive && p.DeletedAt == nil
}

// FindStep returns the step with the given UID.
func (p *Pipeline) FindStep(uid string) (*Step, bool) {
	for _, step := range p.Steps {
		if step.UID == uid {
			return step, true
		}
	}

	return nil, false
}
