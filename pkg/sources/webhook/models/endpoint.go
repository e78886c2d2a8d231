// Package models defines the webhook endpoint model owned by the webhook
// source provider.
package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidEndpoint is returned when endpoint validation fails.
var ErrInvalidEndpoint = errors.New("invalid webhook endpoint")

// Endpoint maps a routable external UUID to the source id pipeline triggers
// bind to. Only the external id appears in intake URLs, so endpoint paths
// stay unguessable even when source ids are predictable pipeline slugs.
type Endpoint struct {
	// SourceID is the internal source identifier triggers bind to.
	SourceID string `json:"source_id" validate:"required"`

	// ExternalID is the UUID used in intake URLs.
	ExternalID uuid.UUID `json:"external_id" validate:"required"`

	// JSONSchema optionally validates delivery payloads before they are
	// accepted.
	JSONSchema map[string]any `json:"json_schema,omitempty"`

	// Configuration carries webhook settings copied from the pipeline
	// definition.
	Configuration map[string]any `json:"configuration"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Active endpoints accept deliveries; inactive ones answer 404.
	Active bool `json:"active"`
}

// NewEndpoint creates an endpoint for the given source id with a freshly
// generated external UUID.
func NewEndpoint(sourceID string, configuration map[string]any) (*Endpoint, error) {
	if sourceID == "" {
		return nil, ErrInvalidEndpoint
	}

	if configuration == nil {
		configuration = make(map[string]any)
	}

	now := time.Now().UTC()

	endpoint := &Endpoint{
		SourceID:      sourceID,
		ExternalID:    uuid.New(),
		Configuration: configuration,
		CreatedAt:     now,
		UpdatedAt:     now,
		Active:        true,
	}

	if schema, exists := configuration["json_schema"]; exists {
		if schemaMap, ok := schema.(map[string]any); ok {
			endpoint.JSONSchema = schemaMap
		}
	}

	return endpoint, nil
}

// Validate checks that the endpoint has a source binding and a routable
// external id.
func (e *Endpoint) Validate() error {
	if e.SourceID == "" {
		return ErrInvalidEndpoint
	}

	if e.ExternalID == uuid.Nil {
		return ErrInvalidEndpoint
	}

	return nil
}

// Path returns the intake URL path for this endpoint.
func (e *Endpoint) Path() string {
	return "/hooks/" + e.ExternalID.String()
}

// HasJSONSchema reports whether payload validation is configured.
func (e *Endpoint) HasJSONSchema() bool {
	return len(e.JSONSchema) > 0
}

// UpdateConfiguration replaces the endpoint configuration and re-extracts
// the optional JSON schema. A missing or malformed json_schema key clears
// any previous schema.
func (e *Endpoint) UpdateConfiguration(config map[string]any) {
	e.Configuration = config
	e.UpdatedAt = time.Now().UTC()

	if schema, exists := config["json_schema"]; exists {
		if schemaMap, ok := schema.(map[string]any); ok {
			e.JSONSchema = schemaMap

			return
		}
	}

	e.JSONSchema = nil
}

// Deactivate turns the endpoint off without releasing its external id.
func (e *Endpoint) Deactivate() {
	e.Active = false
	e.UpdatedAt = time.Now().UTC()
}

// Activate turns the endpoint back on.
func (e *Endpoint) Activate() {
	e.Active = true
	e.UpdatedAt = time.Now().UTC()
}
