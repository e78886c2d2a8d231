package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSchedule(t *testing.T) {
	schedule, err := NewSchedule("pipe-1", "trigger-1", "0 2 * * *")
	require.NoError(t, err)

	assert.Contains(t, schedule.ID, "sched-")
	assert.Equal(t, "pipe-1", schedule.PipelineID)
	assert.Equal(t, "trigger-1", schedule.TriggerID)
	assert.True(t, schedule.Active)
	require.NotNil(t, schedule.NextDueAt)
	assert.Equal(t, 2, schedule.NextDueAt.Hour())
	assert.Equal(t, 0, schedule.NextDueAt.Minute())
}

func TestNewScheduleInvalidCron(t *testing.T) {
	_, err := NewSchedule("pipe-1", "trigger-1", "every tuesday")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidSchedule)
}

func TestScheduleIsDue(t *testing.T) {
	schedule, err := NewSchedule("pipe-1", "trigger-1", "* * * * *")
	require.NoError(t, err)

	assert.False(t, schedule.IsDue(time.Now()))
	assert.True(t, schedule.IsDue(time.Now().Add(2*time.Minute)))

	schedule.Active = false
	assert.False(t, schedule.IsDue(time.Now().Add(2*time.Minute)))
}

func TestScheduleAdvance(t *testing.T) {
	schedule, err := NewSchedule("pipe-1", "trigger-1", "* * * * *")
	require.NoError(t, err)

	first := *schedule.NextDueAt

	require.NoError(t, schedule.Advance(first))

	assert.True(t, schedule.NextDueAt.After(first))
}
