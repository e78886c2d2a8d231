package events

import "errors"

// ErrInvalidEventData is returned when source event data cannot be parsed or is invalid.
var ErrInvalidEventData = errors.New("invalid event data")

// Source event types emitted by the bundled providers. Forge webhooks pass
// the forge's own event names through unchanged; internal providers use
// their own names.
const (
	SourceEventPush           = "push"
	SourceEventPullRequest    = "pull_request"
	SourceEventScheduleDue    = "ScheduleDue"
	SourceEventManualDispatch = "ManualDispatch"
)

// SourceEvent represents an event emitted by source providers that can
// trigger pipeline runs. These events are consumed by the dispatcher to
// determine which pipelines should run, based on source ID and event type
// matching against each pipeline's triggers.
type SourceEvent struct {
	// SourceID uniquely identifies the source instance that generated this
	// event. An empty SourceID on a trigger matches any source.
	SourceID string `json:"source_id" validate:"required"`

	// ProviderID identifies the provider type that generated this event.
	// Examples: "webhook", "scheduler", "queue".
	ProviderID string `json:"provider_id" validate:"required"`

	// EventType is the event name within the provider, e.g. "push",
	// "pull_request" or "ScheduleDue".
	EventType string `json:"event_type" validate:"required"`

	// EventData carries provider-specific payload details. For forge
	// webhooks this includes branch, action, commit SHA and repository.
	// The data is handed to matched runs as trigger data.
	EventData map[string]any `json:"event_data"`
}

// NewSourceEvent creates a new SourceEvent with the provided parameters.
func NewSourceEvent(sourceID, providerID, eventType string, eventData map[string]any) *SourceEvent {
	if eventData == nil {
		eventData = make(map[string]any)
	}

	return &SourceEvent{
		SourceID:   sourceID,
		ProviderID: providerID,
		EventType:  eventType,
		EventData:  eventData,
	}
}

// GetEventDataString safely extracts a string value from the event data.
// Returns the string value and true if the key exists and is a string, otherwise empty string and false.
func (se *SourceEvent) GetEventDataString(key string) (string, bool) {
	value, exists := se.EventData[key]
	if !exists {
		return "", false
	}

	strValue, ok := value.(string)

	return strValue, ok
}

// GetEventDataInt safely extracts an integer value from the event data.
// Returns the int value and true if the key exists and is numeric, otherwise 0 and false.
func (se *SourceEvent) GetEventDataInt(key string) (int, bool) {
	value, exists := se.EventData[key]
	if !exists {
		return 0, false
	}

	switch v := value.(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	case float32:
		return int(v), true
	default:
		return 0, false
	}
}

// GetEventDataMap safely extracts a nested map from the event data.
// Returns the map and true if the key exists and is a map, otherwise nil and false.
func (se *SourceEvent) GetEventDataMap(key string) (map[string]any, bool) {
	value, exists := se.EventData[key]
	if !exists {
		return nil, false
	}

	mapValue, ok := value.(map[string]any)

	return mapValue, ok
}

// Branch returns the branch name carried by forge push events.
func (se *SourceEvent) Branch() string {
	branch, _ := se.GetEventDataString("branch")

	return branch
}

// Action returns the pull-request action carried by forge events.
func (se *SourceEvent) Action() string {
	action, _ := se.GetEventDataString("action")

	return action
}

// Validate performs basic validation on the source event structure.
func (se *SourceEvent) Validate() error {
	if se.SourceID == "" {
		return errors.New("source_id is required")
	}

	if se.ProviderID == "" {
		return errors.New("provider_id is required")
	}

	if se.EventType == "" {
		return errors.New("event_type is required")
	}

	return nil
}
