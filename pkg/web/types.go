// Package web provides HTTP request and response types for the pipeline API.
package web

import "github.com/gantryci/gantry/pkg/models"

// CreatePipelineRequest represents the request body for creating a new pipeline.
type CreatePipelineRequest struct {
	Name        string            `json:"name"                  validate:"required,min=3"`
	Slug        string            `json:"slug,omitempty"        validate:"omitempty,lowercase"`
	Description string            `json:"description,omitempty"`
	Repository  models.Repository `json:"repository"`
	Triggers    []*models.Trigger `json:"triggers"              validate:"required,min=1"`
	Matrix      models.Matrix     `json:"matrix"`
	Steps       []*models.Step    `json:"steps"                 validate:"required,min=1"`
	Env         map[string]string `json:"env,omitempty"`
	Variables   map[string]any    `json:"variables,omitempty"`
	Metadata    map[string]any    `json:"metadata,omitempty"`
	Owner       string            `json:"owner,omitempty"`
}

// UpdatePipelineRequest represents the request body for updating an existing
// pipeline. All fields are optional to support partial updates.
type UpdatePipelineRequest struct {
	Name        *string                `json:"name,omitempty"        validate:"omitempty,min=3"`
	Slug        *string                `json:"slug,omitempty"        validate:"omitempty,lowercase"`
	Description *string                `json:"description,omitempty"`
	Status      *models.PipelineStatus `json:"status,omitempty"      validate:"omitempty,oneof=active disabled"`
	Repository  *models.Repository     `json:"repository,omitempty"`
	Triggers    []*models.Trigger      `json:"triggers,omitempty"`
	Matrix      *models.Matrix         `json:"matrix,omitempty"`
	Steps       []*models.Step         `json:"steps,omitempty"`
	Env         map[string]string      `json:"env,omitempty"`
	Variables   map[string]any         `json:"variables,omitempty"`
	Metadata    map[string]any         `json:"metadata,omitempty"`
}
