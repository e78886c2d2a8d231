// Package persistence stores webhook endpoints for the webhook source
// provider. The provider owns its own store and stays isolated from the
// core persistence layer.
package persistence

import (
	"github.com/gantryci/gantry/pkg/sources/webhook/models"
)

// EndpointPersistence defines the storage surface for webhook intake
// endpoints. Lookups by external id resolve intake URLs; lookups by source
// id serve endpoint reconciliation against pipeline definitions.
type EndpointPersistence interface {
	SaveEndpoint(endpoint *models.Endpoint) error
	EndpointBySourceID(sourceID string) (*models.Endpoint, error)
	EndpointByExternalID(externalID string) (*models.Endpoint, error)
	Endpoints() ([]*models.Endpoint, error)
	ActiveEndpoints() ([]*models.Endpoint, error)
	DeleteEndpoint(sourceID string) error

	HealthCheck() error
	Close() error
}
