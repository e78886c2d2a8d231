package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/gantryci/gantry/pkg/actions/checkout"
	"github.com/gantryci/gantry/pkg/models"
	"github.com/gantryci/gantry/pkg/persistence/postgresql"
	"github.com/gantryci/gantry/pkg/registry"
	"github.com/gantryci/gantry/pkg/services"
	"github.com/gantryci/gantry/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

func setupIntegrationApp(t *testing.T) (*fiber.App, *capturingPublisher) {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("gantry_test"),
		postgres.WithUsername("gantry"),
		postgres.WithPassword("gantry"),
		postgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)

	databaseURL, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	persist, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, persist.Close(ctx))
		require.NoError(t, container.Terminate(ctx))
		cancel()
	})

	publisher := &capturingPublisher{}
	v := validator.New(validator.WithRequiredStructEnabled())

	registryInstance := registry.NewRegistry(logger)
	registryInstance.RegisterAction(checkout.NewFactory())

	handlers := web.NewAPIHandlers(
		services.NewPipeline(persist),
		services.NewRun(persist),
		services.NewDispatch(persist, publisher),
		v,
		registryInstance,
	)

	app := fiber.New()

	p := app.Group("/pipelines")
	p.Get("/", handlers.GetPipelines)
	p.Post("/", handlers.CreatePipeline)
	p.Get("/:id", handlers.GetPipeline)
	p.Patch("/:id", handlers.UpdatePipeline)
	p.Delete("/:id", handlers.DeletePipeline)
	p.Get("/:id/runs", handlers.GetPipelineRuns)
	p.Post("/:id/dispatch", handlers.DispatchPipeline)

	r := app.Group("/runs")
	r.Get("/:id", handlers.GetRun)
	r.Get("/:id/steps", handlers.GetRunSteps)

	app.Get("/health", handlers.HealthCheck)

	return app, publisher
}

func TestPipelineAPI_Integration(t *testing.T) {
	app, publisher := setupIntegrationApp(t)

	createReq := web.CreatePipelineRequest{
		Name:        "Collector Nightly",
		Description: "Nightly build across the python matrix",
		Repository: models.Repository{
			URL:           "https://github.com/acme/collector.git",
			DefaultBranch: "main",
		},
		Triggers: []*models.Trigger{
			{ID: "push", Kind: models.TriggerKindPush, Branches: []string{"main"}},
			{ID: "manual", Kind: models.TriggerKindManual},
		},
		Matrix: models.Matrix{
			Axes: map[string][]string{"python": {"3.8", "3.9"}},
		},
		Steps: []*models.Step{
			{ID: "step-1", UID: "checkout", ActionID: models.ActionCheckout, Enabled: true},
			{ID: "step-2", UID: "tests", ActionID: models.ActionScript, Configuration: map[string]any{"path": "tests.py"}, Enabled: true},
		},
		Env:   map[string]string{"CI": "1"},
		Owner: "platform-team",
	}

	var pipelineID string

	t.Run("create pipeline", func(t *testing.T) {
		body, err := json.Marshal(createReq)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodPost, "/pipelines", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")

		resp, err := app.Test(req)
		require.NoError(t, err)

		defer func() { _ = resp.Body.Close() }()

		assert.Equal(t, http.StatusCreated, resp.StatusCode)

		var created models.Pipeline

		err = json.NewDecoder(resp.Body).Decode(&created)
		require.NoError(t, err)
		assert.NotEmpty(t, created.ID)
		assert.Equal(t, "collector-nightly", created.Slug)
		assert.Equal(t, models.PipelineStatusActive, created.Status)
		assert.Len(t, created.Triggers, 2)
		assert.Len(t, created.Steps, 2)

		pipelineID = created.ID
	})

	t.Run("fetch pipeline", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/pipelines/"+pipelineID, nil)
		req.Header.Set("Accept", "application/json")

		resp, err := app.Test(req)
		require.NoError(t, err)

		defer func() { _ = resp.Body.Close() }()

		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var fetched models.Pipeline

		err = json.NewDecoder(resp.Body).Decode(&fetched)
		require.NoError(t, err)
		assert.Equal(t, "Collector Nightly", fetched.Name)
		assert.Equal(t, map[string]string{"CI": "1"}, fetched.Env)
		assert.Len(t, fetched.Matrix.Axes["python"], 2)
	})

	t.Run("update pipeline", func(t *testing.T) {
		body, err := json.Marshal(web.UpdatePipelineRequest{
			Description: stringPtr("Nightly build, python 3 only"),
			Status:      pipelineStatusPtr(models.PipelineStatusDisabled),
		})
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodPatch, "/pipelines/"+pipelineID, bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")

		resp, err := app.Test(req)
		require.NoError(t, err)

		defer func() { _ = resp.Body.Close() }()

		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var updated models.Pipeline

		err = json.NewDecoder(resp.Body).Decode(&updated)
		require.NoError(t, err)
		assert.Equal(t, "Nightly build, python 3 only", updated.Description)
		assert.Equal(t, models.PipelineStatusDisabled, updated.Status)
		assert.Equal(t, "Collector Nightly", updated.Name)
	})

	t.Run("dispatch rejected while disabled", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/pipelines/"+pipelineID+"/dispatch", nil)

		resp, err := app.Test(req)
		require.NoError(t, err)

		defer func() { _ = resp.Body.Close() }()

		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		assert.Empty(t, publisher.events)
	})

	t.Run("dispatch after re-enabling", func(t *testing.T) {
		body, err := json.Marshal(web.UpdatePipelineRequest{
			Status: pipelineStatusPtr(models.PipelineStatusActive),
		})
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodPatch, "/pipelines/"+pipelineID, bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")

		resp, err := app.Test(req)
		require.NoError(t, err)
		_ = resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		req = httptest.NewRequest(http.MethodPost, "/pipelines/"+pipelineID+"/dispatch", nil)

		resp, err = app.Test(req)
		require.NoError(t, err)

		defer func() { _ = resp.Body.Close() }()

		assert.Equal(t, http.StatusAccepted, resp.StatusCode)
		require.Len(t, publisher.events, 1)
		assert.Equal(t, pipelineID, publisher.events[0].EventData["pipeline"])
	})

	t.Run("list pipelines", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/pipelines", nil)
		req.Header.Set("Accept", "application/json")

		resp, err := app.Test(req)
		require.NoError(t, err)

		defer func() { _ = resp.Body.Close() }()

		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var response struct {
			Pipelines   []models.Pipeline `json:"pipelines"`
			TotalCount  int64             `json:"total_count"`
			HasNextPage bool              `json:"has_next_page"`
		}

		err = json.NewDecoder(resp.Body).Decode(&response)
		require.NoError(t, err)
		assert.Len(t, response.Pipelines, 1)
		assert.Equal(t, int64(1), response.TotalCount)
		assert.False(t, response.HasNextPage)
	})

	t.Run("delete pipeline", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodDelete, "/pipelines/"+pipelineID, nil)

		resp, err := app.Test(req)
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)

		req = httptest.NewRequest(http.MethodGet, "/pipelines/"+pipelineID, nil)

		resp, err = app.Test(req)
		require.NoError(t, err)

		defer func() { _ = resp.Body.Close() }()

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestRunAPI_Integration(t *testing.T) {
	app, _ := setupIntegrationApp(t)

	// A freshly created pipeline has no run history yet.
	createReq := validCreateRequest()

	body, err := json.Marshal(createReq)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/pipelines", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)

	var created models.Pipeline

	err = json.NewDecoder(resp.Body).Decode(&created)
	require.NoError(t, err)
	_ = resp.Body.Close()

	req = httptest.NewRequest(http.MethodGet, "/pipelines/"+created.ID+"/runs", nil)
	req.Header.Set("Accept", "application/json")

	resp, err = app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var response struct {
		Runs       []models.Run `json:"runs"`
		TotalCount int64        `json:"total_count"`
	}

	err = json.NewDecoder(resp.Body).Decode(&response)
	require.NoError(t, err)
	assert.Empty(t, response.Runs)
	assert.Equal(t, int64(0), response.TotalCount)
}
