package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// Schedule tracks the next due time of one schedule trigger. The scheduler
// source polls due schedules and emits source events for them.
type Schedule struct {
	ID         string     `json:"id"`
	PipelineID string     `json:"pipeline_id"`
	TriggerID  string     `json:"trigger_id"`
	CronExpr   string     `json:"cron_expr"`
	NextDueAt  *time.Time `json:"next_due_at,omitempty"`
	Active     bool       `json:"active"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func NewSchedule(pipelineID, triggerID, cronExpr string) (*Schedule, error) {
	now := time.Now().UTC()

	nextDueAt, err := calculateNextDueAt(cronExpr, now)
	if err != nil {
		return nil, err
	}

	return &Schedule{
		ID:         "sched-" + uuid.New().String()[:8],
		PipelineID: pipelineID,
		TriggerID:  triggerID,
		CronExpr:   cronExpr,
		NextDueAt:  nextDueAt,
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// IsDue reports whether the schedule should fire at the given time.
func (s *Schedule) IsDue(now time.Time) bool {
	return s.Active && s.NextDueAt != nil && !s.NextDueAt.After(now)
}

// Advance moves NextDueAt to the next occurrence after the given time.
func (s *Schedule) Advance(now time.Time) error {
	nextDueAt, err := calculateNextDueAt(s.CronExpr, now)
	if err != nil {
		return err
	}

	s.NextDueAt = nextDueAt
	s.UpdatedAt = time.Now().UTC()

	return nil
}

func calculateNextDueAt(cronExpr string, from time.Time) (*time.Time, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

	schedule, err := parser.Parse(cronExpr)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSchedule, err.Error())
	}

	next := schedule.Next(from)

	return &next, nil
}
