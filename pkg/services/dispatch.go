package services

import (
	"context"
	"fmt"
	"time"

	"github.com/gantryci/gantry/pkg/eventbus"
	"github.com/gantryci/gantry/pkg/events"
	"github.com/gantryci/gantry/pkg/models"
	"github.com/gantryci/gantry/pkg/persistence"
)

// Dispatch orchestrates manual runs requested through the API. It validates
// the target pipeline and publishes a ManualDispatch source event; matching
// and run creation happen asynchronously in the dispatcher.
type Dispatch struct {
	persistence persistence.Persistence
	publisher   eventbus.SourceEventPublisher
}

// NewDispatch creates a new dispatch service.
func NewDispatch(persistence persistence.Persistence, publisher eventbus.SourceEventPublisher) *Dispatch {
	return &Dispatch{
		persistence: persistence,
		publisher:   publisher,
	}
}

// DispatchRequest carries the parameters of a manual run request.
type DispatchRequest struct {
	// Branch overrides the branch the run checks out. Empty means the
	// repository default branch.
	Branch string `json:"branch,omitempty"`

	// Variables are exposed to steps through the trigger data.
	Variables map[string]any `json:"variables,omitempty"`
}

// DispatchAccepted reports an accepted manual dispatch.
type DispatchAccepted struct {
	PipelineID  string    `json:"pipeline_id"`
	Branch      string    `json:"branch,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}

// Dispatch requests a manual run of the given pipeline. The pipeline must
// be active and carry a manual trigger.
func (s *Dispatch) Dispatch(ctx context.Context, pipelineID string, req DispatchRequest) (*DispatchAccepted, error) {
	pipeline, err := s.persistence.PipelineRepository().GetByID(ctx, pipelineID)
	if err != nil {
		return nil, fmt.Errorf("failed to get pipeline: %w", err)
	}

	if pipeline == nil {
		return nil, ErrPipelineNotFound
	}

	if !pipeline.Active() {
		return nil, ErrPipelineNotActive
	}

	if !hasManualTrigger(pipeline) {
		return nil, ErrNoManualTrigger
	}

	requestedAt := time.Now().UTC()

	eventData := map[string]any{
		"pipeline":     pipeline.ID,
		"requested_at": requestedAt.Format(time.RFC3339),
	}

	if req.Branch != "" {
		eventData["branch"] = req.Branch
	}

	if len(req.Variables) > 0 {
		eventData["variables"] = req.Variables
	}

	sourceEvent := events.NewSourceEvent("api", "api", events.SourceEventManualDispatch, eventData)

	if err := s.publisher.PublishSourceEvent(ctx, sourceEvent); err != nil {
		return nil, fmt.Errorf("failed to publish dispatch event: %w", err)
	}

	return &DispatchAccepted{
		PipelineID:  pipeline.ID,
		Branch:      req.Branch,
		RequestedAt: requestedAt,
	}, nil
}

func hasManualTrigger(pipeline *models.Pipeline) bool {
	for _, trigger := range pipeline.Triggers {
		if trigger.Kind == models.TriggerKindManual {
			return true
		}
	}

	return false
}
