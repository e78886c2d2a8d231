package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gantryci/gantry/pkg/eventbus"
	"github.com/gantryci/gantry/pkg/events"
	"github.com/gantryci/gantry/pkg/models"
	"github.com/gantryci/gantry/pkg/persistence"
)

// Dispatcher consumes source events, matches them against pipeline
// triggers, expands the matrix of each matched pipeline and queues one run
// per instance on the run bus.
type Dispatcher struct {
	id             string
	matcher        *Matcher
	eventBus       eventbus.EventBus
	sourceEventBus eventbus.SourceEventBus
	persistence    persistence.Persistence
	logger         *slog.Logger
}

func NewDispatcher(
	id string,
	persistence persistence.Persistence,
	eventBus eventbus.EventBus,
	sourceEventBus eventbus.SourceEventBus,
	logger *slog.Logger,
) *Dispatcher {
	return &Dispatcher{
		id:             id,
		matcher:        NewMatcher(logger),
		eventBus:       eventBus,
		sourceEventBus: sourceEventBus,
		persistence:    persistence,
		logger:         logger.With("module", "dispatcher", "dispatcher_id", id),
	}
}

// Start registers the source event handler and begins consuming. It returns
// once the subscription is live; events are handled on the bus's goroutines
// until the context is cancelled.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.logger.InfoContext(ctx, "Setting up source event subscription")

	err := d.sourceEventBus.HandleSourceEvents(func(ctx context.Context, sourceEvent *events.SourceEvent) error {
		return d.HandleSourceEvent(ctx, sourceEvent)
	})
	if err != nil {
		return fmt.Errorf("failed to register source event handler: %w", err)
	}

	if err := d.sourceEventBus.SubscribeToSourceEvents(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to source events: %w", err)
	}

	d.logger.InfoContext(ctx, "Subscribed to source events, waiting for events")

	return nil
}

// HandleSourceEvent processes a single source event end to end: match,
// expand, persist and queue.
func (d *Dispatcher) HandleSourceEvent(ctx context.Context, sourceEvent *events.SourceEvent) error {
	logger := d.logger.With(
		"source_id", sourceEvent.SourceID,
		"provider_id", sourceEvent.ProviderID,
		"event_type", sourceEvent.EventType,
	)

	if err := sourceEvent.Validate(); err != nil {
		logger.ErrorContext(ctx, "Invalid source event", "error", err)

		return err
	}

	pipelines, err := d.persistence.PipelineRepository().GetAll(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to fetch pipelines", "error", err)

		return err
	}

	matches := d.matcher.Match(sourceEvent, pipelines)
	if len(matches) == 0 {
		logger.DebugContext(ctx, "No matching triggers for source event")

		return nil
	}

	// Matches dispatch independently. One failing pipeline must not block
	// the runs of another.
	for _, match := range matches {
		if _, err := d.dispatch(ctx, sourceEvent, match); err != nil {
			logger.ErrorContext(ctx, "Failed to dispatch matched pipeline",
				"pipeline_id", match.Pipeline.ID,
				"trigger_id", match.Trigger.ID,
				"error", err)
		}
	}

	return nil
}

// dispatch expands the matched pipeline's matrix into runs sharing one
// group id, persists each run and publishes it on the run bus.
func (d *Dispatcher) dispatch(ctx context.Context, sourceEvent *events.SourceEvent, match Match) ([]*models.Run, error) {
	pipeline := match.Pipeline
	groupID := models.NewGroupID()
	instances := pipeline.Matrix.Expand()

	logger := d.logger.With(
		"pipeline_id", pipeline.ID,
		"trigger_id", match.Trigger.ID,
		"group_id", groupID,
	)
	logger.InfoContext(ctx, "Dispatching pipeline", "instances", len(instances))

	sha, _ := sourceEvent.GetEventDataString("sha")

	runs := make([]*models.Run, 0, len(instances))

	for _, instance := range instances {
		run := models.NewRun(groupID, pipeline.ID, match.Trigger.ID, instance)
		run.Branch = sourceEvent.Branch()
		run.CommitSHA = sha
		run.EventData = sourceEvent.EventData

		if err := d.persistence.RunRepository().Save(ctx, run); err != nil {
			return runs, fmt.Errorf("failed to save run: %w", err)
		}

		if err := d.publishRunQueued(ctx, run); err != nil {
			return runs, err
		}

		runs = append(runs, run)
	}

	logger.InfoContext(ctx, "Queued runs", "count", len(runs))

	return runs, nil
}

// publishRunQueued announces a queued run. Runs are keyed by their own id
// so sibling instances spread across partitions instead of serializing
// behind each other.
func (d *Dispatcher) publishRunQueued(ctx context.Context, run *models.Run) error {
	event := events.RunQueued{
		BaseEvent: events.NewBaseEvent(events.RunQueuedEvent, run.PipelineID),
		RunID:     run.ID,
		GroupID:   run.GroupID,
		TriggerID: run.TriggerID,
		Instance:  run.Instance,
		EventData: run.EventData,
	}
	event.ID = d.eventBus.GenerateID()

	if err := d.eventBus.Publish(ctx, run.ID, event); err != nil {
		return fmt.Errorf("failed to publish run queued event: %w", err)
	}

	d.logger.With("event_id", event.ID, "run_id", run.ID).DebugContext(ctx, "Published run queued event")

	return nil
}
