package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gantryci/gantry/pkg/eventbus"
	"github.com/gantryci/gantry/pkg/events"
	"github.com/gantryci/gantry/pkg/persistence"
	"github.com/gantryci/gantry/pkg/registry"
	"github.com/gantryci/gantry/pkg/runner"
)

// RunnerManager subscribes a runner engine to the run bus and keeps it
// consuming until the process is told to stop. Scaling out means starting
// more runner processes; they share one consumer group.
type RunnerManager struct {
	id            string
	logger        *slog.Logger
	persistence   persistence.Persistence
	registry      *registry.Registry
	eventBus      eventbus.EventBus
	workspaceRoot string
}

func NewRunnerManager(
	id string,
	persistence persistence.Persistence,
	eventBus eventbus.EventBus,
	logger *slog.Logger,
	registry *registry.Registry,
	workspaceRoot string,
) *RunnerManager {
	return &RunnerManager{
		id:            id,
		logger:        logger.With("module", "gantry-runner", "runner_id", id),
		persistence:   persistence,
		registry:      registry,
		eventBus:      eventBus,
		workspaceRoot: workspaceRoot,
	}
}

func (rm *RunnerManager) Start(ctx context.Context) error {
	rm.logger.InfoContext(ctx, "Starting runner manager", "workspace_root", rm.workspaceRoot)

	engine := runner.NewEngine(rm.id, rm.persistence, rm.registry, rm.eventBus, rm.workspaceRoot, rm.logger)

	err := rm.eventBus.Handle(events.RunQueuedEvent, engine.HandleRunQueued)
	if err != nil {
		return err
	}

	err = rm.eventBus.Subscribe(ctx)
	if err != nil {
		rm.logger.ErrorContext(ctx, "Failed to subscribe to event bus", "error", err)

		return err
	}

	rm.logger.InfoContext(ctx, "Runner started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	rm.logger.InfoContext(ctx, "Shutting down runner...")

	return nil
}
