// Package runner executes queued runs: the strictly sequential stage loop,
// step result bookkeeping and run lifecycle events.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/gantryci/gantry/pkg/eventbus"
	"github.com/gantryci/gantry/pkg/events"
	"github.com/gantryci/gantry/pkg/models"
	"github.com/gantryci/gantry/pkg/otelhelper"
	"github.com/gantryci/gantry/pkg/persistence"
	"github.com/gantryci/gantry/pkg/registry"
)

const tracerName = "gantry-runner"

// Engine executes runs picked up from the run bus. One engine handles one
// run at a time per handler invocation; concurrency comes from running
// multiple runner processes, never from sharing state between instances.
type Engine struct {
	runnerID      string
	persistence   persistence.Persistence
	registry      *registry.Registry
	eventBus      eventbus.EventBus
	workspaceRoot string
	logger        *slog.Logger
}

func NewEngine(
	runnerID string,
	persistence persistence.Persistence,
	registry *registry.Registry,
	eventBus eventbus.EventBus,
	workspaceRoot string,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		runnerID:      runnerID,
		persistence:   persistence,
		registry:      registry,
		eventBus:      eventBus,
		workspaceRoot: workspaceRoot,
		logger:        logger.With("module", "runner_engine", "runner_id", runnerID),
	}
}

// HandleRunQueued is the run bus handler for run.queued events.
func (e *Engine) HandleRunQueued(ctx context.Context, event any) error {
	queuedEvent, ok := event.(*events.RunQueued)
	if !ok {
		e.logger.ErrorContext(ctx, "Invalid event type for RunQueued")

		return nil
	}

	logger := e.logger.With(
		"run_id", queuedEvent.RunID,
		"pipeline_id", queuedEvent.PipelineID,
		"event_id", queuedEvent.ID,
	)
	logger.InfoContext(ctx, "Processing run queued event")

	run, err := e.persistence.RunRepository().GetByID(ctx, queuedEvent.RunID)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to fetch run", "error", err)

		return err
	}

	if run == nil {
		logger.WarnContext(ctx, "Run not found, dropping event")

		return nil
	}

	// Redeliveries of runs another runner already picked up are dropped.
	if run.Status != models.RunStatusQueued {
		logger.InfoContext(ctx, "Run is not queued, skipping", "status", run.Status)

		return nil
	}

	pipeline, err := e.persistence.PipelineRepository().GetByID(ctx, run.PipelineID)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to fetch pipeline", "error", err)

		return err
	}

	if pipeline == nil {
		logger.ErrorContext(ctx, "Pipeline not found for run")

		return fmt.Errorf("pipeline %s not found for run %s", run.PipelineID, run.ID)
	}

	return e.Execute(ctx, run, pipeline)
}

// Execute drives one run to a terminal state. Execution failures are
// recorded on the run, not returned: a failed run is handled work.
func (e *Engine) Execute(ctx context.Context, run *models.Run, pipeline *models.Pipeline) error {
	tracer := otel.Tracer(tracerName)

	ctx, span := otelhelper.StartSpan(ctx, tracer, "run.execute",
		attribute.String(otelhelper.RunIDKey, run.ID),
		attribute.String(otelhelper.GroupIDKey, run.GroupID),
		attribute.String(otelhelper.PipelineIDKey, pipeline.ID),
		attribute.String(otelhelper.InstanceKey, run.Instance.Label()),
		attribute.String(otelhelper.RunnerIDKey, e.runnerID),
	)
	defer span.End()

	logger := e.logger.With(
		"run_id", run.ID,
		"pipeline_id", pipeline.ID,
		"instance", run.Instance.Label(),
	)

	if pipeline.Matrix.FailFast {
		cancelled, err := e.cancelIfSiblingFailed(ctx, run, logger)
		if err != nil {
			return err
		}

		if cancelled {
			return nil
		}
	}

	workDir := filepath.Join(e.workspaceRoot, run.ID)
	if err := os.MkdirAll(workDir, 0o750); err != nil {
		logger.ErrorContext(ctx, "Failed to create run workspace", "error", err)

		return fmt.Errorf("failed to create run workspace: %w", err)
	}

	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			logger.Warn("Failed to clean up run workspace", "workdir", workDir, "error", err)
		}
	}()

	executionCtx := models.NewExecutionContext(run, pipeline, workDir)

	run.MarkRunning()
	if err := e.persistence.RunRepository().Save(ctx, run); err != nil {
		return fmt.Errorf("failed to mark run running: %w", err)
	}

	e.publishRunStarted(ctx, run, pipeline)
	logger.InfoContext(ctx, "Run started", "steps", len(pipeline.Steps))

	for _, step := range pipeline.Steps {
		if !step.Enabled {
			logger.InfoContext(ctx, "Step is disabled, skipping", "step_uid", step.UID)
			e.recordSkippedStep(run, executionCtx, step)

			continue
		}

		result, stepErr := e.executeStep(ctx, tracer, executionCtx, step, logger)

		run.Steps = append(run.Steps, result)
		executionCtx.RecordStep(result)

		if err := e.persistence.RunRepository().Save(ctx, run); err != nil {
			return fmt.Errorf("failed to persist step result: %w", err)
		}

		e.publishStepFinished(ctx, run, result)

		if stepErr != nil {
			reason := models.ReasonOf(stepErr)
			run.MarkFailed(reason)

			if err := e.persistence.RunRepository().Save(ctx, run); err != nil {
				return fmt.Errorf("failed to mark run failed: %w", err)
			}

			otelhelper.SetError(span, stepErr)
			e.publishRunFailed(ctx, run, stepErr)
			logger.InfoContext(ctx, "Run failed",
				"step_uid", step.UID,
				"reason", reason,
				"error", stepErr)

			return nil
		}
	}

	run.MarkPassed()
	if err := e.persistence.RunRepository().Save(ctx, run); err != nil {
		return fmt.Errorf("failed to mark run passed: %w", err)
	}

	e.publishRunFinished(ctx, run)
	logger.InfoContext(ctx, "Run passed", "steps_executed", len(run.Steps))

	return nil
}

// cancelIfSiblingFailed implements fail-fast: a run whose group already
// contains a failed sibling is cancelled before any step starts.
func (e *Engine) cancelIfSiblingFailed(ctx context.Context, run *models.Run, logger *slog.Logger) (bool, error) {
	siblings, err := e.persistence.RunRepository().GetByGroupID(ctx, run.GroupID)
	if err != nil {
		return false, fmt.Errorf("failed to fetch sibling runs: %w", err)
	}

	for _, sibling := range siblings {
		if sibling.ID == run.ID || sibling.Status != models.RunStatusFailed {
			continue
		}

		logger.InfoContext(ctx, "Sibling run failed with fail-fast set, cancelling",
			"failed_sibling", sibling.ID)

		run.MarkCancelled()

		if err := e.persistence.RunRepository().Save(ctx, run); err != nil {
			return false, fmt.Errorf("failed to mark run cancelled: %w", err)
		}

		e.publishRunCancelled(ctx, run, "sibling "+sibling.ID+" failed")

		return true, nil
	}

	return false, nil
}

// executeStep runs one step action and folds its outcome into a result.
// The returned error, when non-nil, classifies the failure.
func (e *Engine) executeStep(
	ctx context.Context,
	tracer trace.Tracer,
	executionCtx *models.ExecutionContext,
	step *models.Step,
	logger *slog.Logger,
) (models.StepResult, error) {
	ctx, span := otelhelper.StartSpan(ctx, tracer, "step.execute",
		attribute.String(otelhelper.StepUIDKey, step.UID),
		attribute.String(otelhelper.ActionIDKey, step.ActionID),
	)
	defer span.End()

	stepLogger := logger.With("step_uid", step.UID, "action_id", step.ActionID)
	stepLogger.InfoContext(ctx, "Executing step")

	e.publishStepStarted(ctx, executionCtx, step)

	result := models.StepResult{
		StepUID:   step.UID,
		ActionID:  step.ActionID,
		StartedAt: time.Now().UTC(),
	}

	outcome, err := e.runAction(ctx, executionCtx, step, stepLogger)

	result.FinishedAt = time.Now().UTC()

	if outcome != nil {
		result.ExitCode = outcome.ExitCode
		result.Score = outcome.Score
		result.Output = outcome.Output
	}

	if err != nil {
		result.Status = models.StepStatusFailed
		result.Error = err.Error()

		otelhelper.SetError(span, err)
		stepLogger.ErrorContext(ctx, "Step failed", "error", err)

		return result, err
	}

	result.Status = models.StepStatusPassed
	stepLogger.InfoContext(ctx, "Step passed", "duration", result.Duration())

	return result, nil
}

// runAction creates the step's action from the registry and executes it.
// Raw configuration goes to the factory unchanged; actions render template
// expressions against the execution context themselves.
func (e *Engine) runAction(
	ctx context.Context,
	executionCtx *models.ExecutionContext,
	step *models.Step,
	logger *slog.Logger,
) (*models.StepOutcome, error) {
	action, err := e.registry.CreateAction(step.ActionID, step.Configuration)
	if err != nil {
		return nil, fmt.Errorf("failed to create action for step %s: %w", step.UID, err)
	}

	return action.Execute(ctx, *executionCtx, logger)
}

func (e *Engine) recordSkippedStep(run *models.Run, executionCtx *models.ExecutionContext, step *models.Step) {
	now := time.Now().UTC()
	result := models.StepResult{
		StepUID:    step.UID,
		ActionID:   step.ActionID,
		Status:     models.StepStatusSkipped,
		StartedAt:  now,
		FinishedAt: now,
	}

	run.Steps = append(run.Steps, result)
	executionCtx.RecordStep(result)
}

func (e *Engine) publishRunStarted(ctx context.Context, run *models.Run, pipeline *models.Pipeline) {
	event := events.RunStarted{
		BaseEvent:    events.NewBaseEvent(events.RunStartedEvent, run.PipelineID),
		RunID:        run.ID,
		PipelineName: pipeline.Name,
		Instance:     run.Instance,
	}
	event.RunnerID = e.runnerID

	e.publish(ctx, run.ID, event)
}

func (e *Engine) publishStepStarted(ctx context.Context, executionCtx *models.ExecutionContext, step *models.Step) {
	event := events.StepStarted{
		BaseEvent: events.NewBaseEvent(events.StepStartedEvent, executionCtx.PipelineID),
		RunID:     executionCtx.RunID,
		StepUID:   step.UID,
		ActionID:  step.ActionID,
	}
	event.RunnerID = e.runnerID

	e.publish(ctx, executionCtx.RunID, event)
}

func (e *Engine) publishStepFinished(ctx context.Context, run *models.Run, result models.StepResult) {
	event := events.StepFinished{
		BaseEvent:  events.NewBaseEvent(events.StepFinishedEvent, run.PipelineID),
		RunID:      run.ID,
		StepUID:    result.StepUID,
		ActionID:   result.ActionID,
		Status:     result.Status,
		ExitCode:   result.ExitCode,
		Score:      result.Score,
		Error:      result.Error,
		DurationMs: result.Duration().Milliseconds(),
	}
	event.RunnerID = e.runnerID

	e.publish(ctx, run.ID, event)
}

func (e *Engine) publishRunFinished(ctx context.Context, run *models.Run) {
	event := events.RunFinished{
		BaseEvent:     events.NewBaseEvent(events.RunFinishedEvent, run.PipelineID),
		RunID:         run.ID,
		Status:        run.Status,
		DurationMs:    runDurationMs(run),
		StepsExecuted: len(run.Steps),
	}
	event.RunnerID = e.runnerID

	e.publish(ctx, run.ID, event)
}

func (e *Engine) publishRunFailed(ctx context.Context, run *models.Run, stepErr error) {
	event := events.RunFailed{
		BaseEvent:     events.NewBaseEvent(events.RunFailedEvent, run.PipelineID),
		RunID:         run.ID,
		Reason:        run.Reason,
		Error:         stepErr.Error(),
		DurationMs:    runDurationMs(run),
		StepsExecuted: len(run.Steps),
	}
	event.RunnerID = e.runnerID

	e.publish(ctx, run.ID, event)
}

func (e *Engine) publishRunCancelled(ctx context.Context, run *models.Run, reason string) {
	event := events.RunCancelled{
		BaseEvent:   events.NewBaseEvent(events.RunCancelledEvent, run.PipelineID),
		RunID:       run.ID,
		Reason:      reason,
		CancelledBy: e.runnerID,
	}
	event.RunnerID = e.runnerID

	e.publish(ctx, run.ID, event)
}

// publish sends a lifecycle event. The persisted run is the source of
// truth; a lost event is logged, never fatal.
func (e *Engine) publish(ctx context.Context, key string, event eventbus.Event) {
	if err := e.eventBus.Publish(ctx, key, event); err != nil {
		e.logger.ErrorContext(ctx, "Failed to publish run event",
			"event_type", event.GetType(),
			"key", key,
			"error", err)
	}
}

func runDurationMs(run *models.Run) int64 {
	if run.StartedAt == nil || run.FinishedAt == nil {
		return 0
	}

	return run.FinishedAt.Sub(*run.StartedAt).Milliseconds()
}
