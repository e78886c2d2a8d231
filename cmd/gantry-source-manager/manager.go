package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"sync"
	"syscall"
	"time"

	"github.com/gantryci/gantry/pkg/eventbus"
	"github.com/gantryci/gantry/pkg/events"
	"github.com/gantryci/gantry/pkg/persistence"
	"github.com/gantryci/gantry/pkg/protocol"
	"github.com/gantryci/gantry/pkg/registry"
)

// SourceProviderManager hosts the source providers of a gantry deployment:
// the forge webhook intake, the schedule poller and the dispatch queue
// consumer. Every event a provider emits is validated and published on the
// source events bus for the dispatcher to match. SIGHUP restarts all
// providers against the current pipeline definitions; SIGINT and SIGTERM
// shut down gracefully.
type SourceProviderManager struct {
	id               string
	sourceEventBus   eventbus.SourceEventBus
	runningProviders map[string]protocol.Provider
	providerMutex    sync.RWMutex
	logger           *slog.Logger
	persistence      persistence.Persistence
	registry         *registry.Registry
	restartCount     int
	providerFilter   []string
}

func NewSourceProviderManager(
	id string,
	persistence persistence.Persistence,
	sourceEventBus eventbus.SourceEventBus,
	logger *slog.Logger,
	registry *registry.Registry,
	providerFilter []string,
) *SourceProviderManager {
	return &SourceProviderManager{
		id:               id,
		logger:           logger.With("module", "gantry-source-manager", "manager_id", id),
		persistence:      persistence,
		registry:         registry,
		restartCount:     0,
		sourceEventBus:   sourceEventBus,
		runningProviders: make(map[string]protocol.Provider),
		providerFilter:   providerFilter,
	}
}

func (spm *SourceProviderManager) Start(ctx context.Context) {
	spmCtx, cancel := context.WithCancel(ctx)

	spm.logger.Info("Starting source provider manager")

	spm.handleSignals(spmCtx, cancel)
	spm.run(ctx, cancel)
}

func (spm *SourceProviderManager) handleSignals(ctx context.Context, cancel context.CancelFunc) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-signals
		spm.logger.Info("Received signal", "signal", sig)

		switch sig {
		case syscall.SIGHUP:
			spm.logger.Info("Reloading configuration...")
			spm.restart(ctx, cancel)
		case syscall.SIGINT, syscall.SIGTERM:
			spm.logger.Info("Shutting down gracefully...")
			spm.stop(ctx, cancel)
			os.Exit(0)
		default:
			spm.logger.Warn("Unhandled signal received", "signal", sig)
		}
	}()
}

func (spm *SourceProviderManager) restart(ctx context.Context, cancel context.CancelFunc) {
	spm.restartCount++
	spmCtx := context.WithoutCancel(ctx)
	spm.stop(spmCtx, cancel)

	if spm.restartCount > 5 {
		spm.logger.Error("Restart limit reached, exiting...")
		os.Exit(1)
	}

	backoff := time.Duration(spm.restartCount) * time.Second
	spm.logger.Info("Restarting source provider manager...", "backoff", backoff)
	time.Sleep(backoff)

	spm.Start(spmCtx)
}

func (spm *SourceProviderManager) run(ctx context.Context, cancel context.CancelFunc) {
	if err := spm.startSourceProviders(ctx); err != nil {
		spm.logger.Error("Failed to start source providers", "error", err)
		spm.restart(ctx, cancel)

		return
	}

	spm.logger.Info("Source provider manager started successfully")

	// Keep running until context is cancelled
	<-ctx.Done()

	spm.logger.Info("Source provider manager stopped")
}

// startSourceProviders brings up every selected provider. A provider that
// fails to start is logged and skipped so the others keep serving; only an
// unreachable pipeline store aborts the startup, since no provider can be
// configured without it.
func (spm *SourceProviderManager) startSourceProviders(ctx context.Context) error {
	if err := spm.persistence.HealthCheck(ctx); err != nil {
		return fmt.Errorf("persistence is not ready: %w", err)
	}

	availableProviders := spm.registry.AvailableSourceProviders()
	providersToStart := spm.filterProviders(availableProviders)

	spm.logger.Info("Starting source providers",
		"available_count", len(availableProviders),
		"filtered_count", len(providersToStart),
		"filter", spm.providerFilter)

	var wg sync.WaitGroup
	for _, factory := range providersToStart {
		wg.Add(1)

		go func(factory protocol.ProviderFactory) {
			defer wg.Done()

			if err := spm.startSourceProvider(ctx, factory); err != nil {
				spm.logger.Error("Failed to start source provider",
					"provider_id", factory.ID(),
					"error", err)
			}
		}(factory)
	}

	wg.Wait()

	return nil
}

// filterProviders narrows the available providers down to the configured
// filter. An empty filter selects every provider.
func (spm *SourceProviderManager) filterProviders(available []protocol.ProviderFactory) []protocol.ProviderFactory {
	if len(spm.providerFilter) == 0 {
		return available
	}

	var selected []protocol.ProviderFactory

	for _, factory := range available {
		if slices.Contains(spm.providerFilter, factory.ID()) {
			selected = append(selected, factory)
		}
	}

	return selected
}

func (spm *SourceProviderManager) startSourceProvider(ctx context.Context, factory protocol.ProviderFactory) error {
	providerID := factory.ID()

	// Providers read their own settings from the environment.
	provider, err := spm.registry.CreateSourceProvider(providerID, map[string]any{})
	if err != nil {
		return fmt.Errorf("failed to create source provider %s: %w", providerID, err)
	}

	if lifecycle, ok := provider.(protocol.ProviderLifecycle); ok {
		if err := spm.runProviderLifecycle(ctx, providerID, lifecycle); err != nil {
			return err
		}
	}

	spm.providerMutex.Lock()
	spm.runningProviders[providerID] = provider
	spm.providerMutex.Unlock()

	if err := provider.Start(ctx, spm.createSourceEventCallback()); err != nil {
		spm.providerMutex.Lock()
		delete(spm.runningProviders, providerID)
		spm.providerMutex.Unlock()

		return fmt.Errorf("failed to start source provider %s: %w", providerID, err)
	}

	spm.logger.Info("Started source provider", "provider_id", providerID)

	return nil
}

// runProviderLifecycle walks a provider through initialization and
// configuration against the current pipeline definitions.
func (spm *SourceProviderManager) runProviderLifecycle(ctx context.Context, providerID string, lifecycle protocol.ProviderLifecycle) error {
	deps := protocol.Dependencies{
		Logger: spm.logger,
	}

	if err := lifecycle.Initialize(ctx, deps); err != nil {
		return fmt.Errorf("failed to initialize provider %s: %w", providerID, err)
	}

	pipelines, err := spm.persistence.PipelineRepository().GetAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load pipelines for provider %s: %w", providerID, err)
	}

	if err := lifecycle.Configure(pipelines); err != nil {
		return fmt.Errorf("failed to configure provider %s: %w", providerID, err)
	}

	if err := lifecycle.Prepare(ctx); err != nil {
		return fmt.Errorf("failed to prepare provider %s: %w", providerID, err)
	}

	return nil
}

// createSourceEventCallback builds the callback through which providers
// hand their events to the source events bus.
func (spm *SourceProviderManager) createSourceEventCallback() protocol.SourceEventCallback {
	return func(ctx context.Context, sourceID, providerID, eventType string, eventData map[string]any) error {
		logger := spm.logger.With(
			"source_id", sourceID,
			"provider_id", providerID,
			"event_type", eventType)

		sourceEvent := events.NewSourceEvent(sourceID, providerID, eventType, eventData)

		if err := sourceEvent.Validate(); err != nil {
			logger.Error("Invalid source event", "error", err)

			return err
		}

		logger.Info("Publishing source event")

		if err := spm.sourceEventBus.PublishSourceEvent(ctx, sourceEvent); err != nil {
			logger.Error("Failed to publish source event", "error", err)

			return err
		}

		return nil
	}
}

func (spm *SourceProviderManager) stop(ctx context.Context, cancel context.CancelFunc) {
	spm.logger.Info("Stopping source provider manager")

	if cancel != nil {
		cancel()
	}

	spm.providerMutex.Lock()
	defer spm.providerMutex.Unlock()

	for providerID, provider := range spm.runningProviders {
		spm.logger.Info("Stopping source provider", "provider_id", providerID)

		if err := provider.Stop(ctx); err != nil {
			spm.logger.Error("Error stopping source provider",
				"provider_id", providerID,
				"error", err)
		}
	}

	spm.runningProviders = make(map[string]protocol.Provider)
	spm.logger.Info("All source providers stopped")
}
