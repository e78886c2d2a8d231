package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gantryci/gantry/pkg/cmd"
	"github.com/gantryci/gantry/pkg/dispatch"
	"github.com/gantryci/gantry/pkg/eventbus"
	"github.com/gantryci/gantry/pkg/persistence"
)

// DispatcherManager runs the dispatcher with signal handling and bounded
// restarts. SIGHUP tears the source event subscription down and brings it
// back up; SIGINT and SIGTERM shut down gracefully.
type DispatcherManager struct {
	id               string
	eventBus         eventbus.EventBus
	eventBusProvider string
	sourceEventBus   eventbus.SourceEventBus
	persistence      persistence.Persistence
	logger           *slog.Logger
	restartCount     int
}

func NewDispatcherManager(
	id string,
	persistence persistence.Persistence,
	eventBus eventbus.EventBus,
	eventBusProvider string,
	logger *slog.Logger,
) *DispatcherManager {
	return &DispatcherManager{
		id:               id,
		logger:           logger.With("module", "gantry-dispatcher", "dispatcher_id", id),
		persistence:      persistence,
		restartCount:     0,
		eventBus:         eventBus,
		eventBusProvider: eventBusProvider,
	}
}

func (dm *DispatcherManager) Start(ctx context.Context) {
	dmCtx, cancel := context.WithCancel(ctx)

	dm.logger.Info("Starting dispatcher manager")

	dm.handleSignals(dmCtx, cancel)
	dm.run(ctx, cancel)
}

func (dm *DispatcherManager) handleSignals(ctx context.Context, cancel context.CancelFunc) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-signals
		dm.logger.Info("Received signal", "signal", sig)

		switch sig {
		case syscall.SIGHUP:
			dm.logger.Info("Reloading...")
			dm.restart(ctx, cancel)
		case syscall.SIGINT, syscall.SIGTERM:
			dm.logger.Info("Shutting down gracefully...")
			dm.stop(ctx, cancel)
			os.Exit(0)
		default:
			dm.logger.Warn("Unhandled signal received", "signal", sig)
		}
	}()
}

func (dm *DispatcherManager) restart(ctx context.Context, cancel context.CancelFunc) {
	dm.restartCount++
	dmCtx := context.WithoutCancel(ctx)
	dm.stop(dmCtx, cancel)

	if dm.restartCount > 5 {
		dm.logger.Error("Restart limit reached, exiting...")
		os.Exit(1)
	}

	backoff := time.Duration(dm.restartCount) * time.Second
	dm.logger.Info("Restarting dispatcher manager...", "backoff", backoff)
	time.Sleep(backoff)

	dm.Start(dmCtx)
}

func (dm *DispatcherManager) run(ctx context.Context, cancel context.CancelFunc) {
	if err := dm.startDispatcher(ctx); err != nil {
		dm.logger.Error("Failed to start dispatcher", "error", err)
		dm.restart(ctx, cancel)

		return
	}

	dm.logger.Info("Dispatcher started successfully")

	// Keep running until context is cancelled
	<-ctx.Done()

	dm.logger.Info("Dispatcher manager stopped")
}

// startDispatcher builds a fresh source event bus and subscribes a new
// dispatcher to it. Creating the bus here, not in main, keeps exactly one
// live subscription across SIGHUP restarts.
func (dm *DispatcherManager) startDispatcher(ctx context.Context) error {
	if err := dm.persistence.HealthCheck(ctx); err != nil {
		return fmt.Errorf("persistence is not ready: %w", err)
	}

	dm.sourceEventBus = cmd.NewSourceEventBus(dm.eventBusProvider, "gantry-dispatcher", dm.logger)

	dispatcher := dispatch.NewDispatcher(dm.id, dm.persistence, dm.eventBus, dm.sourceEventBus, dm.logger)

	return dispatcher.Start(ctx)
}

func (dm *DispatcherManager) stop(ctx context.Context, cancel context.CancelFunc) {
	dm.logger.Info("Stopping dispatcher manager")

	if cancel != nil {
		cancel()
	}

	if dm.sourceEventBus != nil {
		if err := dm.sourceEventBus.Close(); err != nil {
			dm.logger.Error("Error closing source event bus", "error", err)
		}

		dm.sourceEventBus = nil
	}

	dm.logger.Info("Dispatcher stopped")
}
