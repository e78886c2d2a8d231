package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gantryci/gantry/pkg/sources/webhook/models"
)

// FilePersistence implements EndpointPersistence using a JSON file.
type FilePersistence struct {
	dataDir   string
	mu        sync.RWMutex
	endpoints map[string]*models.Endpoint // source id -> endpoint
}

// NewFilePersistence creates a file-based endpoint store rooted at dataDir.
func NewFilePersistence(dataDir string) (*FilePersistence, error) {
	if err := os.MkdirAll(dataDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	fp := &FilePersistence{
		dataDir:   dataDir,
		endpoints: make(map[string]*models.Endpoint),
	}

	if err := fp.loadEndpoints(); err != nil {
		return nil, fmt.Errorf("failed to load webhook endpoints: %w", err)
	}

	return fp, nil
}

// SaveEndpoint stores the endpoint and flushes the store to disk.
func (fp *FilePersistence) SaveEndpoint(endpoint *models.Endpoint) error {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	fp.endpoints[endpoint.SourceID] = endpoint

	return fp.saveEndpointsToFile()
}

// EndpointBySourceID retrieves an endpoint by its source id.
func (fp *FilePersistence) EndpointBySourceID(sourceID string) (*models.Endpoint, error) {
	fp.mu.RLock()
	defer fp.mu.RUnlock()

	endpoint, exists := fp.endpoints[sourceID]
	if !exists {
		return nil, nil
	}

	return endpoint, nil
}

// EndpointByExternalID retrieves an endpoint by its external UUID.
func (fp *FilePersistence) EndpointByExternalID(externalID string) (*models.Endpoint, error) {
	fp.mu.RLock()
	defer fp.mu.RUnlock()

	for _, endpoint := range fp.endpoints {
		if endpoint.ExternalID.String() == externalID {
			return endpoint, nil
		}
	}

	return nil, nil
}

// Endpoints returns all stored endpoints.
func (fp *FilePersistence) Endpoints() ([]*models.Endpoint, error) {
	fp.mu.RLock()
	defer fp.mu.RUnlock()

	endpoints := make([]*models.Endpoint, 0, len(fp.endpoints))
	for _, endpoint := range fp.endpoints {
		endpoints = append(endpoints, endpoint)
	}

	return endpoints, nil
}

// ActiveEndpoints returns only endpoints accepting deliveries.
func (fp *FilePersistence) ActiveEndpoints() ([]*models.Endpoint, error) {
	fp.mu.RLock()
	defer fp.mu.RUnlock()

	var active []*models.Endpoint

	for _, endpoint := range fp.endpoints {
		if endpoint.Active {
			active = append(active, endpoint)
		}
	}

	return active, nil
}

// DeleteEndpoint removes the endpoint bound to the given source id.
func (fp *FilePersistence) DeleteEndpoint(sourceID string) error {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	delete(fp.endpoints, sourceID)

	return fp.saveEndpointsToFile()
}

// HealthCheck verifies that the data directory is still accessible.
func (fp *FilePersistence) HealthCheck() error {
	if _, err := os.Stat(fp.dataDir); os.IsNotExist(err) {
		return fmt.Errorf("data directory does not exist: %s", fp.dataDir)
	}

	return nil
}

// Close flushes the store to disk.
func (fp *FilePersistence) Close() error {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	return fp.saveEndpointsToFile()
}

func (fp *FilePersistence) loadEndpoints() error {
	endpointsFile := filepath.Join(fp.dataDir, "endpoints.json")

	if _, err := os.Stat(endpointsFile); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(endpointsFile) // #nosec G304 -- endpointsFile is constructed from controlled dataDir
	if err != nil {
		return fmt.Errorf("failed to read endpoints file: %w", err)
	}

	var endpoints []*models.Endpoint
	if err := json.Unmarshal(data, &endpoints); err != nil {
		return fmt.Errorf("failed to unmarshal endpoints: %w", err)
	}

	for _, endpoint := range endpoints {
		fp.endpoints[endpoint.SourceID] = endpoint
	}

	return nil
}

func (fp *FilePersistence) saveEndpointsToFile() error {
	endpointsFile := filepath.Join(fp.dataDir, "endpoints.json")

	endpoints := make([]*models.Endpoint, 0, len(fp.endpoints))
	for _, endpoint := range fp.endpoints {
		endpoints = append(endpoints, endpoint)
	}

	data, err := json.MarshalIndent(endpoints, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal endpoints: %w", err)
	}

	if err := os.WriteFile(endpointsFile, data, 0600); err != nil {
		return fmt.Errorf("failed to write endpoints file: %w", err)
	}

	return nil
}
