package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/gantryci/gantry/pkg/channels/gochannel"
	"github.com/gantryci/gantry/pkg/eventbus"
	"github.com/gantryci/gantry/pkg/models"
	"github.com/gantryci/gantry/pkg/persistence/file"
	"github.com/gantryci/gantry/pkg/registry"
	"github.com/gantryci/gantry/pkg/testutil"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestApp(t *testing.T, tempDir string) *fiber.App {
	t.Helper()

	persistence := file.NewPersistence(tempDir)

	pub, sub, err := gochannel.CreateTestChannel(watermill.NopLogger{})
	require.NoError(t, err)

	sourceEventBus := eventbus.NewWatermillSourceEventBus(pub, sub, slog.Default())
	t.Cleanup(func() {
		if err := sourceEventBus.Close(); err != nil {
			t.Logf("Failed to close source event bus: %v", err)
		}
	})

	app := NewAPI(
		slog.Default(),
		persistence,
		registry.NewRegistry(slog.Default()),
		sourceEventBus,
	)

	return app.App()
}

func TestAPI_RootEndpoint(t *testing.T) {
	tempDir := t.TempDir()
	app := setupTestApp(t, tempDir)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "Gantry API", string(body))
}

func TestAPI_Liveness(t *testing.T) {
	tempDir := t.TempDir()
	app := setupTestApp(t, tempDir)

	req := httptest.NewRequest(http.MethodGet, "/livez", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "OK", string(body))
}

func TestAPI_GetPipelines_Empty(t *testing.T) {
	tempDir := t.TempDir()
	app := setupTestApp(t, tempDir)

	req := httptest.NewRequest(http.MethodGet, "/pipelines", nil)
	req.Header.Set("Accept", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var listing struct {
		Pipelines  []models.Pipeline `json:"pipelines"`
		TotalCount int64             `json:"total_count"`
	}

	err = json.NewDecoder(resp.Body).Decode(&listing)
	require.NoError(t, err)
	assert.Empty(t, listing.Pipelines)
	assert.Zero(t, listing.TotalCount)
}

func TestAPI_GetPipelines_WithData(t *testing.T) {
	tempDir := t.TempDir()
	persistence := file.NewPersistence(tempDir)

	pipeline1 := testutil.CreateTestPipeline(
		testutil.WithID("metricsd-ci-1"),
		testutil.WithSlug("metricsd-ci"),
	)
	pipeline2 := testutil.CreateTestPipeline(
		testutil.WithID("collector-ci-1"),
		testutil.WithSlug("collector-ci"),
	)

	err := persistence.PipelineRepository().Save(t.Context(), pipeline1)
	require.NoError(t, err)
	err = persistence.PipelineRepository().Save(t.Context(), pipeline2)
	require.NoError(t, err)

	app := setupTestApp(t, tempDir)

	req := httptest.NewRequest(http.MethodGet, "/pipelines", nil)
	req.Header.Set("Accept", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var listing struct {
		Pipelines []models.Pipeline `json:"pipelines"`
	}

	err = json.NewDecoder(resp.Body).Decode(&listing)
	require.NoError(t, err)
	assert.Len(t, listing.Pipelines, 2)

	pipelineIDs := []string{listing.Pipelines[0].ID, listing.Pipelines[1].ID}
	assert.Contains(t, pipelineIDs, "metricsd-ci-1")
	assert.Contains(t, pipelineIDs, "collector-ci-1")
}

func TestAPI_GetPipeline_NotFound(t *testing.T) {
	tempDir := t.TempDir()
	app := setupTestApp(t, tempDir)

	req := httptest.NewRequest(http.MethodGet, "/pipelines/non-existent-pipeline", nil)
	req.Header.Set("Accept", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_CORS_Headers(t *testing.T) {
	tempDir := t.TempDir()
	app := setupTestApp(t, tempDir)

	req := httptest.NewRequest(http.MethodOptions, "/pipelines", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "GET")
	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestAPI_ContentType_JSON(t *testing.T) {
	tempDir := t.TempDir()
	app := setupTestApp(t, tempDir)

	req := httptest.NewRequest(http.MethodGet, "/pipelines", nil)
	req.Header.Set("Accept", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "application/json")
}

func TestAPI_DispatchEndpointWired(t *testing.T) {
	tempDir := t.TempDir()
	persistence := file.NewPersistence(tempDir)

	pipeline := testutil.CreateTestPipeline(
		testutil.WithID("dispatchable-1"),
		testutil.WithSlug("dispatchable-ci"),
		testutil.WithTriggers(&models.Trigger{ID: "manual", Kind: models.TriggerKindManual}),
	)

	err := persistence.PipelineRepository().Save(t.Context(), pipeline)
	require.NoError(t, err)

	app := setupTestApp(t, tempDir)

	req := httptest.NewRequest(http.MethodPost, "/pipelines/dispatchable-1/dispatch", nil)
	req.Header.Set("Accept", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	var accepted struct {
		PipelineID string `json:"pipeline_id"`
	}

	err = json.NewDecoder(resp.Body).Decode(&accepted)
	require.NoError(t, err)
	assert.Equal(t, "dispatchable-1", accepted.PipelineID)
}
