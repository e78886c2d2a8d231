package models

import (
	"fmt"

	"github.com/robfig/cron/v3"
)

// TriggerKind identifies the class of event a trigger reacts to.
type TriggerKind string

const (
	TriggerKindPush        TriggerKind = "push"
	TriggerKindPullRequest TriggerKind = "pull_request"
	TriggerKindSchedule    TriggerKind = "schedule"
	TriggerKindManual      TriggerKind = "manual"
)

// Pull-request actions a trigger can subscribe to. The reference pipelines
// subscribe to opened and reopened only.
const (
	PullRequestOpened   = "opened"
	PullRequestReopened = "reopened"
)

// Trigger binds a pipeline to a class of source events. SourceID optionally
// pins the trigger to one intake endpoint (webhook, schedule or queue
// source); an empty SourceID matches any source emitting the trigger's
// event kind.
type Trigger struct {
	ID       string      `json:"id"       validate:"required"`
	Kind     TriggerKind `json:"kind"     validate:"required,oneof=push pull_request schedule manual"`
	SourceID string      `json:"source_id,omitempty"`

	// Branches filters push events by exact branch name. Empty means the
	// repository default branch only.
	Branches []string `json:"branches,omitempty"`

	// Actions filters pull_request events. Empty means opened and reopened.
	Actions []string `json:"actions,omitempty"`

	// Cron is the 5-field schedule expression for schedule triggers.
	Cron string `json:"cron,omitempty"`
}

// Validate checks kind-specific trigger configuration.
func (t *Trigger) Validate() error {
	switch t.Kind {
	case TriggerKindPush, TriggerKindPullRequest, TriggerKindManual:
		if t.Cron != "" {
			return fmt.Errorf("trigger %s: %w", t.ID, ErrTriggerCronNotAllowed)
		}
	case TriggerKindSchedule:
		if t.Cron == "" {
			return fmt.Errorf("trigger %s: %w", t.ID, ErrTriggerCronRequired)
		}

		if _, err := cron.ParseStandard(t.Cron); err != nil {
			return fmt.Errorf("trigger %s: invalid cron expression: %w", t.ID, err)
		}
	default:
		return fmt.Errorf("trigger %s: %w: %q", t.ID, ErrTriggerKindUnknown, t.Kind)
	}

	return nil
}

// BranchFilter returns the effective branch list for push triggers,
// substituting the repository default branch when none is configured.
func (t *Trigger) BranchFilter(defaultBranch string) []string {
	if len(t.Branches) > 0 {
		return t.Branches
	}

	if defaultBranch == "" {
		return nil
	}

	return []string{defaultBranch}
}

// ActionFilter returns the effective pull-request action list.
func (t *Trigger) ActionFilter() []string {
	if len(t.Actions) > 0 {
		return t.Actions
	}

	return []string{PullRequestOpened, PullRequestReopened}
}
