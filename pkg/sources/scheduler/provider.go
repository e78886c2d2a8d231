// Package scheduler implements the centralized schedule poller: persisted
// schedules with precomputed due times, a one-minute tick and ScheduleDue
// source events addressed to exact pipeline triggers.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gantryci/gantry/pkg/events"
	"github.com/gantryci/gantry/pkg/models"
	"github.com/gantryci/gantry/pkg/persistence"
	"github.com/gantryci/gantry/pkg/persistence/file"
	"github.com/gantryci/gantry/pkg/persistence/postgresql"
	"github.com/gantryci/gantry/pkg/protocol"
)

// Provider is the centralized schedule poller. One tick covers every due
// schedule regardless of the individual cron expressions. Schedules live in
// the core store so the API and the dispatcher see the same state.
type Provider struct {
	config      map[string]any
	logger      *slog.Logger
	persistence persistence.Persistence
	callback    protocol.SourceEventCallback
	ticker      *time.Ticker
	done        chan bool
	started     bool
	mu          sync.RWMutex
}

// Start begins the schedule poller.
func (p *Provider) Start(ctx context.Context, callback protocol.SourceEventCallback) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return nil
	}

	p.callback = callback
	p.logger.Info("Starting schedule poller")

	p.ticker = time.NewTicker(1 * time.Minute)
	p.done = make(chan bool)
	p.started = true

	go p.pollSchedules(ctx)

	p.logger.Info("Schedule poller started")

	return nil
}

// Stop gracefully shuts down the schedule poller.
func (p *Provider) Stop(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return nil
	}

	p.logger.Info("Stopping schedule poller")

	if p.ticker != nil {
		p.ticker.Stop()
	}

	select {
	case p.done <- true:
	default:
	}

	p.started = false
	p.logger.Info("Schedule poller stopped")

	return nil
}

// Validate checks if the schedule poller configuration is valid.
func (p *Provider) Validate() error {
	if p.persistence == nil {
		return errors.New("scheduler persistence not initialized")
	}

	return nil
}

// pollSchedules is the centralized poller loop.
func (p *Provider) pollSchedules(ctx context.Context) {
	for {
		select {
		case <-p.done:
			return
		case <-ctx.Done():
			return
		case <-p.ticker.C:
			p.processDueSchedules(ctx)
		}
	}
}

// processDueSchedules queries for every due schedule, publishes its event
// and advances next_due_at. A schedule whose publish fails keeps its due
// time, so the next tick retries it.
func (p *Provider) processDueSchedules(ctx context.Context) {
	now := time.Now().UTC()

	dueSchedules, err := p.persistence.ScheduleRepository().GetDue(ctx, now)
	if err != nil {
		p.logger.Error("Failed to get due schedules", "error", err)

		return
	}

	if len(dueSchedules) > 0 {
		p.logger.Info("Processing due schedules", "count", len(dueSchedules))
	}

	for _, schedule := range dueSchedules {
		p.logger.Info("Processing due schedule",
			"schedule_id", schedule.ID,
			"pipeline_id", schedule.PipelineID,
			"cron", schedule.CronExpr,
			"due_at", schedule.NextDueAt)

		if err := p.publishScheduleEvent(ctx, schedule); err != nil {
			p.logger.Error("Failed to publish schedule event",
				"schedule_id", schedule.ID,
				"error", err)

			continue
		}

		if err := schedule.Advance(now); err != nil {
			p.logger.Error("Failed to advance schedule",
				"schedule_id", schedule.ID,
				"error", err)

			continue
		}

		if err := p.persistence.ScheduleRepository().Save(ctx, schedule); err != nil {
			p.logger.Error("Failed to save schedule",
				"schedule_id", schedule.ID,
				"error", err)
		}
	}
}

// publishScheduleEvent emits the ScheduleDue source event addressing one
// exact pipeline trigger.
func (p *Provider) publishScheduleEvent(ctx context.Context, schedule *models.Schedule) error {
	eventData := map[string]any{
		"pipeline_id":  schedule.PipelineID,
		"trigger_id":   schedule.TriggerID,
		"cron_expr":    schedule.CronExpr,
		"due_at":       schedule.NextDueAt.Format(time.RFC3339),
		"published_at": time.Now().UTC().Format(time.RFC3339),
	}

	return p.callback(ctx, schedule.ID, "scheduler", events.SourceEventScheduleDue, eventData)
}

// ProviderLifecycle interface implementation

// Initialize sets up the provider with required dependencies.
func (p *Provider) Initialize(ctx context.Context, deps protocol.Dependencies) error {
	p.logger = deps.Logger

	persistenceURL := os.Getenv("SCHEDULER_PERSISTENCE_URL")
	if persistenceURL == "" {
		return errors.New("scheduler provider requires SCHEDULER_PERSISTENCE_URL environment variable (e.g., file://./data, postgres://...)")
	}

	store, err := p.createPersistence(ctx, persistenceURL)
	if err != nil {
		return err
	}

	p.persistence = store

	p.logger.Info("Scheduler provider initialized", "persistence", persistenceURL)

	return nil
}

// triggerRef addresses one schedule trigger inside one pipeline.
type triggerRef struct {
	pipelineID string
	triggerID  string
}

// Configure synchronizes persisted schedules with the schedule triggers of
// the given pipelines: missing schedules are created, changed cron
// expressions are picked up and schedules whose trigger disappeared are
// deleted.
func (p *Provider) Configure(pipelines []*models.Pipeline) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	ctx := context.Background()

	p.logger.Info("Configuring scheduler provider", "pipeline_count", len(pipelines))

	desired := desiredSchedules(pipelines)

	existing, err := p.persistence.ScheduleRepository().GetAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load schedules: %w", err)
	}

	created, updated, deleted := 0, 0, 0

	for _, schedule := range existing {
		ref := triggerRef{schedule.PipelineID, schedule.TriggerID}

		cronExpr, wanted := desired[ref]
		if !wanted {
			if err := p.persistence.ScheduleRepository().Delete(ctx, schedule.ID); err != nil {
				p.logger.Error("Failed to delete orphaned schedule", "schedule_id", schedule.ID, "error", err)

				continue
			}

			deleted++

			continue
		}

		delete(desired, ref)

		if schedule.CronExpr == cronExpr {
			continue
		}

		schedule.CronExpr = cronExpr
		if err := schedule.Advance(time.Now().UTC()); err != nil {
			p.logger.Error("Failed to advance schedule for new cron expression",
				"schedule_id", schedule.ID,
				"cron", cronExpr,
				"error", err)

			continue
		}

		if err := p.persistence.ScheduleRepository().Save(ctx, schedule); err != nil {
			p.logger.Error("Failed to save schedule", "schedule_id", schedule.ID, "error", err)

			continue
		}

		updated++
	}

	for ref, cronExpr := range desired {
		schedule, err := models.NewSchedule(ref.pipelineID, ref.triggerID, cronExpr)
		if err != nil {
			p.logger.Error("Failed to create schedule",
				"pipeline_id", ref.pipelineID,
				"trigger_id", ref.triggerID,
				"cron", cronExpr,
				"error", err)

			continue
		}

		if err := p.persistence.ScheduleRepository().Save(ctx, schedule); err != nil {
			p.logger.Error("Failed to save schedule", "schedule_id", schedule.ID, "error", err)

			continue
		}

		p.logger.Info("Created schedule",
			"schedule_id", schedule.ID,
			"pipeline_id", ref.pipelineID,
			"trigger_id", ref.triggerID,
			"cron", cronExpr,
			"next_due_at", schedule.NextDueAt)

		created++
	}

	p.logger.Info("Scheduler configuration completed",
		"created_schedules", created,
		"updated_schedules", updated,
		"deleted_schedules", deleted)

	return nil
}

// Prepare performs final preparation before starting the provider.
func (p *Provider) Prepare(ctx context.Context) error {
	if p.persistence == nil {
		return errors.New("scheduler persistence not initialized")
	}

	schedules, err := p.persistence.ScheduleRepository().GetAll(ctx)
	if err != nil {
		return err
	}

	p.logger.Info("Scheduler provider prepared", "schedules", len(schedules))

	return nil
}

// desiredSchedules collects the schedule triggers of active pipelines.
func desiredSchedules(pipelines []*models.Pipeline) map[triggerRef]string {
	desired := make(map[triggerRef]string)

	for _, pipeline := range pipelines {
		if !pipeline.Active() {
			continue
		}

		for _, trigger := range pipeline.Triggers {
			if trigger.Kind != models.TriggerKindSchedule || trigger.Cron == "" {
				continue
			}

			desired[triggerRef{pipeline.ID, trigger.ID}] = trigger.Cron
		}
	}

	return desired
}

// createPersistence opens the schedule store for the given URL scheme.
func (p *Provider) createPersistence(ctx context.Context, persistenceURL string) (persistence.Persistence, error) {
	scheme := parsePersistenceScheme(persistenceURL)
	p.logger.Info("Initializing scheduler persistence", "scheme", scheme)

	switch scheme {
	case "file":
		return file.NewPersistence(persistenceURL), nil
	case "postgres", "postgresql":
		return postgresql.NewPersistence(ctx, p.logger, persistenceURL)
	default:
		return nil, errors.New("unsupported persistence scheme: " + scheme + " (supported: file://, postgres://)")
	}
}

func parsePersistenceScheme(persistenceURL string) string {
	parts := strings.SplitN(persistenceURL, "://", 2)
	if len(parts) < 2 {
		return "unknown"
	}

	return parts[0]
}
