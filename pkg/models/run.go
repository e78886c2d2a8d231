package models

import (
	"time"

	"github.com/google/uuid"
)

type RunStatus string

const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusPassed    RunStatus = "passed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// FailureReason classifies why a run reached RunStatusFailed. Every reason
// is terminal; failed runs are never retried.
type FailureReason string

const (
	FailureNone          FailureReason = ""
	FailureCheckout      FailureReason = "checkout_failure"
	FailureRuntime       FailureReason = "runtime_unavailable"
	FailureInstall       FailureReason = "install_failure"
	FailureLintGate      FailureReason = "lint_below_gate"
	FailureScriptMissing FailureReason = "script_missing"
	FailureTestNonzero   FailureReason = "test_nonzero"
	FailureInternal      FailureReason = "internal_error"
)

type StepStatus string

const (
	StepStatusPassed  StepStatus = "passed"
	StepStatusFailed  StepStatus = "failed"
	StepStatusSkipped StepStatus = "skipped"
)

// StepResult captures the outcome of one executed step.
type StepResult struct {
	StepUID    string     `json:"step_uid"`
	ActionID   string     `json:"action_id"`
	Status     StepStatus `json:"status"`
	ExitCode   int        `json:"exit_code"`
	Score      *float64   `json:"score,omitempty"`
	Output     string     `json:"output,omitempty"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at"`
}

func (r StepResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Run is one execution of a pipeline against a single matrix instance.
// Sibling instances expanded from the same trigger firing share a GroupID
// but are otherwise independent.
type Run struct {
	ID         string        `json:"id"`
	GroupID    string        `json:"group_id"`
	PipelineID string        `json:"pipeline_id"`
	TriggerID  string        `json:"trigger_id"`
	Instance   Instance      `json:"instance,omitempty"`
	Status     RunStatus     `json:"status"`
	Reason     FailureReason `json:"reason,omitempty"`

	// Event context the trigger matched on.
	Branch    string         `json:"branch,omitempty"`
	CommitSHA string         `json:"commit_sha,omitempty"`
	EventData map[string]any `json:"event_data,omitempty"`

	Steps      []StepResult `json:"steps,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
	StartedAt  *time.Time   `json:"started_at,omitempty"`
	FinishedAt *time.Time   `json:"finished_at,omitempty"`
}

// NewRun creates a queued run for one matrix instance.
func NewRun(groupID, pipelineID, triggerID string, instance Instance) *Run {
	return &Run{
		ID:         "run-" + uuid.New().String()[:8],
		GroupID:    groupID,
		PipelineID: pipelineID,
		TriggerID:  triggerID,
		Instance:   instance,
		Status:     RunStatusQueued,
		CreatedAt:  time.Now().UTC(),
	}
}

// NewGroupID returns an identifier shared by all runs expanded from one
// trigger firing.
func NewGroupID() string {
	return "grp-" + uuid.New().String()[:8]
}

func (r *Run) MarkRunning() {
	now := time.Now().UTC()
	r.Status = RunStatusRunning
	r.StartedAt = &now
}

func (r *Run) MarkPassed() {
	now := time.Now().UTC()
	r.Status = RunStatusPassed
	r.Reason = FailureNone
	r.FinishedAt = &now
}

func (r *Run) MarkFailed(reason FailureReason) {
	now := time.Now().UTC()
	r.Status = RunStatusFailed
	r.Reason = reason
	r.FinishedAt = &now
}

func (r *Run) MarkCancelled() {
	now := time.Now().UTC()
	r.Status = RunStatusCancelled
	r.FinishedAt = &now
}

// Finished reports whether the run reached a terminal status.
func (r *Run) Finished() bool {
	switch r.Status {
	case RunStatusPassed, RunStatusFailed, RunStatusCancelled:
		return true
	}

	return false
}
