// Package events defines event types and structures for run lifecycle notifications.
package events

import (
	"time"

	"github.com/gantryci/gantry/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// Kafka topics.
const Topic = "gantry.runs" // Topic for run lifecycle events

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Run lifecycle events.
	RunQueuedEvent    EventType = "run.queued"
	RunStartedEvent   EventType = "run.started"
	RunFinishedEvent  EventType = "run.finished"
	RunFailedEvent    EventType = "run.failed"
	RunCancelledEvent EventType = "run.cancelled"

	// Step lifecycle events.
	StepStartedEvent  EventType = "step.started"
	StepFinishedEvent EventType = "step.finished"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	PipelineID string         `json:"pipeline_id"`
	RunnerID   string         `json:"runner_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, pipelineID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		PipelineID: pipelineID,
		Metadata:   make(map[string]any),
	}
}

// RunQueued is published by the dispatcher once per matrix instance and
// consumed by runners to pick up work.
type RunQueued struct {
	BaseEvent

	RunID     string          `json:"run_id"`
	GroupID   string          `json:"group_id"`
	TriggerID string          `json:"trigger_id"`
	Instance  models.Instance `json:"instance,omitempty"`
	EventData map[string]any  `json:"event_data,omitempty"`
}

func (r RunQueued) GetType() EventType {
	return RunQueuedEvent
}

type RunStarted struct {
	BaseEvent

	RunID        string          `json:"run_id"`
	PipelineName string          `json:"pipeline_name"`
	Instance     models.Instance `json:"instance,omitempty"`
}

func (r RunStarted) GetType() EventType {
	return RunStartedEvent
}

type RunFinished struct {
	BaseEvent

	RunID         string           `json:"run_id"`
	Status        models.RunStatus `json:"status"`
	DurationMs    int64            `json:"duration_ms"`
	StepsExecuted int              `json:"steps_executed"`
}

func (r RunFinished) GetType() EventType {
	return RunFinishedEvent
}

type RunFailed struct {
	BaseEvent

	RunID         string               `json:"run_id"`
	Reason        models.FailureReason `json:"reason"`
	Error         string               `json:"error"`
	DurationMs    int64                `json:"duration_ms"`
	StepsExecuted int                  `json:"steps_executed"`
}

func (r RunFailed) GetType() EventType {
	return RunFailedEvent
}

type RunCancelled struct {
	BaseEvent

	RunID       string `json:"run_id"`
	Reason      string `json:"reason"`
	CancelledBy string `json:"cancelled_by,omitempty"`
}

func (r RunCancelled) GetType() EventType {
	return RunCancelledEvent
}

type StepStarted struct {
	BaseEvent

	RunID    string `json:"run_id"`
	StepUID  string `json:"step_uid"`
	ActionID string `json:"action_id"`
}

func (s StepStarted) GetType() EventType {
	return StepStartedEvent
}

type StepFinished struct {
	BaseEvent

	RunID      string            `json:"run_id"`
	StepUID    string            `json:"step_uid"`
	ActionID   string            `json:"action_id"`
	Status     models.StepStatus `json:"status"`
	ExitCode   int               `json:"exit_code"`
	Score      *float64          `json:"score,omitempty"`
	Error      string            `json:"error,omitempty"`
	DurationMs int64             `json:"duration_ms"`
}

func (s StepFinished) GetType() EventType {
	return StepFinishedEvent
}
