// Package web provides HTTP handlers and REST API endpoints for pipeline management.
package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gantryci/gantry/pkg/models"
	"github.com/gantryci/gantry/pkg/persistence"
	"github.com/gantryci/gantry/pkg/registry"
	"github.com/gantryci/gantry/pkg/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

type APIHandlers struct {
	pipelineService *services.Pipeline
	runService      *services.Run
	dispatchService *services.Dispatch
	validator       *validator.Validate
	registry        *registry.Registry
}

func NewAPIHandlers(
	pipelineService *services.Pipeline,
	runService *services.Run,
	dispatchService *services.Dispatch,
	validator *validator.Validate,
	registry *registry.Registry,
) *APIHandlers {
	return &APIHandlers{
		pipelineService: pipelineService,
		runService:      runService,
		dispatchService: dispatchService,
		validator:       validator,
		registry:        registry,
	}
}

func (h *APIHandlers) GetPipelines(c fiber.Ctx) error {
	req, err := h.parseListPipelinesRequest(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	result, err := h.pipelineService.List(c.Context(), req)
	if err != nil {
		return handleServiceError(c, err)
	}

	// Return structured response with pagination metadata
	return c.JSON(fiber.Map{
		"pipelines":     result.Pipelines,
		"total_count":   result.TotalCount,
		"has_next_page": result.HasNextPage,
		"pagination": fiber.Map{
			"limit":  req.Limit,
			"offset": req.Offset,
		},
		"sorting": fiber.Map{
			"sort_by":    req.SortBy,
			"sort_order": req.SortOrder,
		},
	})
}

// parseListPipelinesRequest parses and validates query parameters for listing pipelines.
func (h *APIHandlers) parseListPipelinesRequest(c fiber.Ctx) (*services.ListPipelinesRequest, error) {
	req := &services.ListPipelinesRequest{}

	// Parse pagination parameters
	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return nil, err
		}

		req.Limit = limit
	}

	if offsetStr := c.Query("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil {
			return nil, err
		}

		req.Offset = offset
	}

	// Parse filtering parameters
	if statusStr := c.Query("status"); statusStr != "" {
		status := models.PipelineStatus(statusStr)
		req.Status = &status
	}

	// Parse sorting parameters
	req.SortBy = c.Query("sort_by")
	req.SortOrder = c.Query("sort_order")

	return req, nil
}

func (h *APIHandlers) GetPipeline(c fiber.Ctx) error {
	id := c.Params("id")

	if id == "" {
		return badRequest(c, "Pipeline ID is required")
	}

	pipeline, err := h.pipelineService.FetchByID(c.Context(), id)
	if err != nil {
		if persistence.IsPipelineNotFound(err) {
			return notFound(c, "Pipeline not found")
		}

		return internalError(c, err)
	}

	return c.JSON(pipeline)
}

func (h *APIHandlers) CreatePipeline(c fiber.Ctx) error {
	var req CreatePipelineRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	pipeline := &models.Pipeline{
		Name:        req.Name,
		Slug:        req.Slug,
		Description: req.Description,
		Repository:  req.Repository,
		Triggers:    req.Triggers,
		Matrix:      req.Matrix,
		Steps:       req.Steps,
		Env:         req.Env,
		Variables:   req.Variables,
		Metadata:    req.Metadata,
		Owner:       req.Owner,
	}

	created, err := h.pipelineService.Create(c.Context(), pipeline)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) UpdatePipeline(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Pipeline ID is required")
	}

	var req UpdatePipelineRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	// Get existing pipeline and merge changes
	existing, err := h.pipelineService.FetchByID(c.Context(), id)
	if err != nil {
		if persistence.IsPipelineNotFound(err) {
			return notFound(c, "Pipeline not found")
		}

		return internalError(c, err)
	}

	// Apply partial updates
	if req.Name != nil {
		existing.Name = *req.Name
	}

	if req.Slug != nil {
		existing.Slug = *req.Slug
	}

	if req.Description != nil {
		existing.Description = *req.Description
	}

	if req.Status != nil {
		existing.Status = *req.Status
	}

	if req.Repository != nil {
		existing.Repository = *req.Repository
	}

	if req.Triggers != nil {
		existing.Triggers = req.Triggers
	}

	if req.Matrix != nil {
		existing.Matrix = *req.Matrix
	}

	if req.Steps != nil {
		existing.Steps = req.Steps
	}

	if req.Env != nil {
		existing.Env = req.Env
	}

	if req.Variables != nil {
		existing.Variables = req.Variables
	}

	if req.Metadata != nil {
		existing.Metadata = req.Metadata
	}

	updated, err := h.pipelineService.Update(c.Context(), id, existing)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeletePipeline(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Pipeline ID is required")
	}

	err := h.pipelineService.Delete(c.Context(), id)
	if err != nil {
		if persistence.IsPipelineNotFound(err) {
			return notFound(c, "Pipeline not found")
		}

		return internalError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) GetPipelineRuns(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Pipeline ID is required")
	}

	req, err := h.parseListRunsRequest(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	result, err := h.runService.ListByPipeline(c.Context(), id, req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"runs":          result.Runs,
		"total_count":   result.TotalCount,
		"has_next_page": result.HasNextPage,
		"pagination": fiber.Map{
			"limit":  req.Limit,
			"offset": req.Offset,
		},
	})
}

// parseListRunsRequest parses and validates query parameters for listing runs.
func (h *APIHandlers) parseListRunsRequest(c fiber.Ctx) (*services.ListRunsRequest, error) {
	req := &services.ListRunsRequest{}

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return nil, err
		}

		req.Limit = limit
	}

	if offsetStr := c.Query("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil {
			return nil, err
		}

		req.Offset = offset
	}

	if statusStr := c.Query("status"); statusStr != "" {
		status := models.RunStatus(statusStr)
		req.Status = &status
	}

	req.GroupID = c.Query("group_id")

	return req, nil
}

func (h *APIHandlers) GetRun(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Run ID is required")
	}

	run, err := h.runService.FetchByID(c.Context(), id)
	if err != nil {
		if persistence.IsRunNotFound(err) {
			return notFound(c, "Run not found")
		}

		return internalError(c, err)
	}

	return c.JSON(run)
}

func (h *APIHandlers) GetRunSteps(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Run ID is required")
	}

	steps, err := h.runService.StepResults(c.Context(), id)
	if err != nil {
		if persistence.IsRunNotFound(err) {
			return notFound(c, "Run not found")
		}

		return internalError(c, err)
	}

	// Queued runs have no step results yet; render an empty list, not null.
	if steps == nil {
		steps = []models.StepResult{}
	}

	return c.JSON(steps)
}

func (h *APIHandlers) DispatchPipeline(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Pipeline ID is required")
	}

	var req services.DispatchRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	accepted, err := h.dispatchService.Dispatch(c.Context(), id, req)
	if err != nil {
		return handleServiceError(c, err)
	}

	// The run itself is created asynchronously by the dispatcher.
	return c.Status(fiber.StatusAccepted).JSON(accepted)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	registryCheck, regOk := h.registry.HealthCheck()
	repositoryCheck, repOk := h.pipelineService.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Gantry API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if regOk && repOk {
		status = "healthy"
		message = "Gantry API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"registry":   registryCheck,
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}
