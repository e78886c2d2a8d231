// Package main provides the Gantry API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/gantryci/gantry/pkg/eventbus"
	"github.com/gantryci/gantry/pkg/persistence"
	"github.com/gantryci/gantry/pkg/registry"
	"github.com/gantryci/gantry/pkg/services"
	"github.com/gantryci/gantry/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

type API struct {
	logger       *slog.Logger
	persistence  persistence.Persistence
	registry     *registry.Registry
	sourceEvents eventbus.SourceEventPublisher
	validate     *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	registry *registry.Registry,
	sourceEvents eventbus.SourceEventPublisher,
) *API {
	return &API{
		persistence:  persistence,
		logger:       logger,
		registry:     registry,
		sourceEvents: sourceEvents,
		validate:     validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	pipelineService := services.NewPipeline(a.persistence)
	runService := services.NewRun(a.persistence)
	dispatchService := services.NewDispatch(a.persistence, a.sourceEvents)

	handlers := web.NewAPIHandlers(pipelineService, runService, dispatchService, a.validate, a.registry)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Gantry API")
	})

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

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	err := app.Listen(":" + strconv.Itoa(port))

	return err
}
