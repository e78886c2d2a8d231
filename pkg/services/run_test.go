package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gantryci/gantry/pkg/models"
	"github.com/gantryci/gantry/pkg/persistence"
	"github.com/gantryci/gantry/pkg/persistence/file"
	"github.com/gantryci/gantry/pkg/testutil"
)

func seedRunFixtures(t *testing.T) (persistence.Persistence, *models.Pipeline) {
	t.Helper()

	store := file.NewPersistence(t.TempDir())
	pipeline := testutil.CreateTestPipeline()
	require.NoError(t, store.PipelineRepository().Save(t.Context(), pipeline))

	return store, pipeline
}

func TestRun_ListByPipeline(t *testing.T) {
	store, pipeline := seedRunFixtures(t)
	service := NewRun(store)

	passed := testutil.CreateTestRun(pipeline.ID)
	passed.MarkPassed()
	require.NoError(t, store.RunRepository().Save(t.Context(), passed))

	queued := testutil.CreateTestRun(pipeline.ID)
	require.NoError(t, store.RunRepository().Save(t.Context(), queued))

	result, err := service.ListByPipeline(t.Context(), pipeline.ID, &ListRunsRequest{})
	require.NoError(t, err)
	assert.Len(t, result.Runs, 2)
	assert.Equal(t, int64(2), result.TotalCount)
	assert.False(t, result.HasNextPage)
}

func TestRun_ListByPipeline_StatusFilter(t *testing.T) {
	store, pipeline := seedRunFixtures(t)
	service := NewRun(store)

	passed := testutil.CreateTestRun(pipeline.ID)
	passed.MarkPassed()
	require.NoError(t, store.RunRepository().Save(t.Context(), passed))

	failed := testutil.CreateTestRun(pipeline.ID)
	failed.MarkFailed(models.FailureTestNonzero)
	require.NoError(t, store.RunRepository().Save(t.Context(), failed))

	status := models.RunStatusFailed
	result, err := service.ListByPipeline(t.Context(), pipeline.ID, &ListRunsRequest{Status: &status})
	require.NoError(t, err)
	require.Len(t, result.Runs, 1)
	assert.Equal(t, failed.ID, result.Runs[0].ID)
	assert.Equal(t, models.FailureTestNonzero, result.Runs[0].Reason)
}

func TestRun_ListByPipeline_InvalidStatus(t *testing.T) {
	store, pipeline := seedRunFixtures(t)
	service := NewRun(store)

	bogus := models.RunStatus("exploded")
	_, err := service.ListByPipeline(t.Context(), pipeline.ID, &ListRunsRequest{Status: &bogus})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidStatus)
	assert.True(t, IsValidationError(err))
}

func TestRun_ListByPipeline_UnknownPipeline(t *testing.T) {
	store := file.NewPersistence(t.TempDir())
	service := NewRun(store)

	_, err := service.ListByPipeline(t.Context(), "non-existent", &ListRunsRequest{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPipelineNotFound)
}

func TestRun_ListByPipeline_DefaultsApplied(t *testing.T) {
	store, pipeline := seedRunFixtures(t)
	service := NewRun(store)

	req := &ListRunsRequest{Limit: 500, Offset: -3}

	_, err := service.ListByPipeline(t.Context(), pipeline.ID, req)
	require.NoError(t, err)

	assert.Equal(t, 100, req.Limit)
	assert.Equal(t, 0, req.Offset)
}

func TestRun_FetchByID(t *testing.T) {
	store, pipeline := seedRunFixtures(t)
	service := NewRun(store)

	run := testutil.CreateTestRun(pipeline.ID)
	require.NoError(t, store.RunRepository().Save(t.Context(), run))

	fetched, err := service.FetchByID(t.Context(), run.ID)
	require.NoError(t, err)
	require.NotNil(t, fetched)
	assert.Equal(t, run.ID, fetched.ID)
	assert.Equal(t, pipeline.ID, fetched.PipelineID)
}

func TestRun_FetchByID_NotFound(t *testing.T) {
	store := file.NewPersistence(t.TempDir())
	service := NewRun(store)

	run, err := service.FetchByID(t.Context(), "run-missing")
	require.Error(t, err)
	assert.Nil(t, run)
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestRun_FetchGroup(t *testing.T) {
	store, pipeline := seedRunFixtures(t)
	service := NewRun(store)

	groupID := models.NewGroupID()

	first := testutil.CreateTestRun(pipeline.ID, testutil.WithGroupID(groupID))
	require.NoError(t, store.RunRepository().Save(t.Context(), first))

	second := testutil.CreateTestRun(pipeline.ID, testutil.WithGroupID(groupID))
	require.NoError(t, store.RunRepository().Save(t.Context(), second))

	loner := testutil.CreateTestRun(pipeline.ID)
	require.NoError(t, store.RunRepository().Save(t.Context(), loner))

	siblings, err := service.FetchGroup(t.Context(), groupID)
	require.NoError(t, err)
	assert.Len(t, siblings, 2)
}

func TestRun_StepResults(t *testing.T) {
	store, pipeline := seedRunFixtures(t)
	service := NewRun(store)

	run := testutil.CreateTestRun(pipeline.ID)
	run.MarkRunning()
	run.Steps = append(run.Steps, models.StepResult{
		StepUID:  "checkout",
		ActionID: "checkout",
		Status:   models.StepStatusPassed,
	})
	run.MarkPassed()
	require.NoError(t, store.RunRepository().Save(t.Context(), run))

	steps, err := service.StepResults(t.Context(), run.ID)
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, "checkout", steps[0].StepUID)
	assert.Equal(t, models.StepStatusPassed, steps[0].Status)
}

func TestRun_StepResults_QueuedRunHasNone(t *testing.T) {
	store, pipeline := seedRunFixtures(t)
	service := NewRun(store)

	run := testutil.CreateTestRun(pipeline.ID)
	require.NoError(t, store.RunRepository().Save(t.Context(), run))

	steps, err := service.StepResults(t.Context(), run.ID)
	require.NoError(t, err)
	assert.Empty(t, steps)
}
