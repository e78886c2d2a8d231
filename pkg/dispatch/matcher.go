// Package dispatch matches source events against pipeline triggers and fans
// matched pipelines out into queued runs, one per matrix instance.
package dispatch

import (
	"log/slog"
	"slices"

	"github.com/gantryci/gantry/pkg/events"
	"github.com/gantryci/gantry/pkg/models"
)

// Match pairs a pipeline with the trigger that matched a source event.
type Match struct {
	Pipeline *models.Pipeline
	Trigger  *models.Trigger
}

// Matcher decides which pipeline triggers react to a source event.
type Matcher struct {
	logger *slog.Logger
}

func NewMatcher(logger *slog.Logger) *Matcher {
	return &Matcher{
		logger: logger.With("module", "trigger_matcher"),
	}
}

// Match finds every trigger across the given pipelines that reacts to the
// source event. Inactive pipelines never match.
func (m *Matcher) Match(sourceEvent *events.SourceEvent, pipelines []*models.Pipeline) []Match {
	var results []Match

	m.logger.Debug("Matching source event against pipelines",
		"event_type", sourceEvent.EventType,
		"source_id", sourceEvent.SourceID,
		"pipelines_count", len(pipelines))

	for _, pipeline := range pipelines {
		if !pipeline.Active() {
			continue
		}

		for _, trigger := range pipeline.Triggers {
			if m.matchTrigger(sourceEvent, pipeline, trigger) {
				results = append(results, Match{Pipeline: pipeline, Trigger: trigger})

				m.logger.Debug("Found matching pipeline",
					"pipeline_id", pipeline.ID,
					"pipeline_name", pipeline.Name,
					"trigger_id", trigger.ID)
			}
		}
	}

	m.logger.Info("Completed trigger matching",
		"event_type", sourceEvent.EventType,
		"source_id", sourceEvent.SourceID,
		"matches_found", len(results))

	return results
}

func (m *Matcher) matchTrigger(sourceEvent *events.SourceEvent, pipeline *models.Pipeline, trigger *models.Trigger) bool {
	// A trigger pinned to a source only reacts to events from that source.
	if trigger.SourceID != "" && trigger.SourceID != sourceEvent.SourceID {
		return false
	}

	switch sourceEvent.EventType {
	case events.SourceEventPush:
		return m.matchPush(sourceEvent, pipeline, trigger)
	case events.SourceEventPullRequest:
		return m.matchPullRequest(sourceEvent, trigger)
	case events.SourceEventScheduleDue:
		return m.matchSchedule(sourceEvent, pipeline, trigger)
	case events.SourceEventManualDispatch:
		return m.matchManual(sourceEvent, pipeline, trigger)
	default:
		m.logger.Warn("Unknown source event type", "event_type", sourceEvent.EventType)

		return false
	}
}

// matchPush matches push events by exact branch name. A trigger without an
// explicit branch list covers the repository default branch only.
func (m *Matcher) matchPush(sourceEvent *events.SourceEvent, pipeline *models.Pipeline, trigger *models.Trigger) bool {
	if trigger.Kind != models.TriggerKindPush {
		return false
	}

	branch := sourceEvent.Branch()
	if branch == "" {
		return false
	}

	return slices.Contains(trigger.BranchFilter(pipeline.Repository.DefaultBranch), branch)
}

// matchPullRequest matches pull_request events by action. A trigger without
// an explicit action list covers opened and reopened.
func (m *Matcher) matchPullRequest(sourceEvent *events.SourceEvent, trigger *models.Trigger) bool {
	if trigger.Kind != models.TriggerKindPullRequest {
		return false
	}

	action := sourceEvent.Action()
	if action == "" {
		return false
	}

	return slices.Contains(trigger.ActionFilter(), action)
}

// matchSchedule matches schedule_due events emitted by the scheduler
// source. The event addresses one exact pipeline trigger, so both ids must
// line up.
func (m *Matcher) matchSchedule(sourceEvent *events.SourceEvent, pipeline *models.Pipeline, trigger *models.Trigger) bool {
	if trigger.Kind != models.TriggerKindSchedule {
		return false
	}

	pipelineID, ok := sourceEvent.GetEventDataString("pipeline_id")
	if !ok || pipelineID != pipeline.ID {
		return false
	}

	triggerID, ok := sourceEvent.GetEventDataString("trigger_id")

	return ok && triggerID == trigger.ID
}

// matchManual matches manual dispatch requests addressed by pipeline slug
// or id.
func (m *Matcher) matchManual(sourceEvent *events.SourceEvent, pipeline *models.Pipeline, trigger *models.Trigger) bool {
	if trigger.Kind != models.TriggerKindManual {
		return false
	}

	target, ok := sourceEvent.GetEventDataString("pipeline")
	if !ok {
		return false
	}

	return target == pipeline.Slug || target == pipeline.ID
}
