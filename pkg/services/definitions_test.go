package services

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gantryci/gantry/pkg/persistence/file"
)

const metricsdDefinition = `name: Metricsd CI
repository:
  url: https://github.com/acme/metricsd.git
  default_branch: main
on:
  push:
    branches: [main]
steps:
  - name: Checkout
    action: checkout
  - name: Tests
    action: script
    with:
      path: tests.py
`

const collectorDefinition = `name: Collector CI
repository:
  url: https://github.com/acme/collector.git
on:
  pull_request:
    actions: [opened, reopened]
steps:
  - name: Checkout
    action: checkout
  - name: Lint
    action: lint
    with:
      fail_under: 6
`

func writeDefinitions(t *testing.T, files map[string]string) string {
	t.Helper()

	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
	}

	return dir
}

func TestDefinitions_ImportDir(t *testing.T) {
	store := file.NewPersistence(t.TempDir())
	service := NewDefinitions(store)

	dir := writeDefinitions(t, map[string]string{
		"metricsd.yaml":  metricsdDefinition,
		"collector.yaml": collectorDefinition,
	})

	result, err := service.ImportDir(t.Context(), dir)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"metricsd-ci", "collector-ci"}, result.Created)
	assert.Empty(t, result.Updated)

	pipeline, err := store.PipelineRepository().GetBySlug(t.Context(), "metricsd-ci")
	require.NoError(t, err)
	require.NotNil(t, pipeline)
	assert.NotEmpty(t, pipeline.ID)
	assert.Len(t, pipeline.Steps, 2)
	assert.True(t, pipeline.Active())
}

func TestDefinitions_ImportDir_UpsertKeepsID(t *testing.T) {
	store := file.NewPersistence(t.TempDir())
	service := NewDefinitions(store)

	dir := writeDefinitions(t, map[string]string{"metricsd.yaml": metricsdDefinition})

	_, err := service.ImportDir(t.Context(), dir)
	require.NoError(t, err)

	original, err := store.PipelineRepository().GetBySlug(t.Context(), "metricsd-ci")
	require.NoError(t, err)
	require.NotNil(t, original)

	result, err := service.ImportDir(t.Context(), dir)
	require.NoError(t, err)
	assert.Empty(t, result.Created)
	assert.Equal(t, []string{"metricsd-ci"}, result.Updated)

	reloaded, err := store.PipelineRepository().GetBySlug(t.Context(), "metricsd-ci")
	require.NoError(t, err)
	require.NotNil(t, reloaded)
	assert.Equal(t, original.ID, reloaded.ID)
	assert.WithinDuration(t, original.CreatedAt, reloaded.CreatedAt, 0)
}

func TestDefinitions_ImportDir_InvalidDefinitionAborts(t *testing.T) {
	store := file.NewPersistence(t.TempDir())
	service := NewDefinitions(store)

	dir := writeDefinitions(t, map[string]string{
		"broken.yaml": "name: Broken\nrepository:\n  url: https://example.com/x.git\nsteps: []\n",
	})

	_, err := service.ImportDir(t.Context(), dir)
	require.Error(t, err)
}

func TestDefinitions_ImportFile(t *testing.T) {
	store := file.NewPersistence(t.TempDir())
	service := NewDefinitions(store)

	dir := writeDefinitions(t, map[string]string{"metricsd.yaml": metricsdDefinition})
	path := filepath.Join(dir, "metricsd.yaml")

	pipeline, created, err := service.ImportFile(t.Context(), path)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "metricsd-ci", pipeline.Slug)

	_, created, err = service.ImportFile(t.Context(), path)
	require.NoError(t, err)
	assert.False(t, created)
}

func TestDefinitions_ImportFile_Missing(t *testing.T) {
	store := file.NewPersistence(t.TempDir())
	service := NewDefinitions(store)

	_, _, err := service.ImportFile(t.Context(), filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
