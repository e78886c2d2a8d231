package postgresql_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gantryci/gantry/pkg/models"
	"github.com/gantryci/gantry/pkg/persistence"
)

func integrationPipeline(id, slug string) *models.Pipeline {
	return &models.Pipeline{
		ID:          id,
		Name:        "tcollector pull request",
		Slug:        slug,
		Description: "Lint and test every pull request",
		Status:      models.PipelineStatusActive,
		Repository: models.Repository{
			URL:           "https://github.com/acme/metricsd.git",
			DefaultBranch: "main",
		},
		Triggers: []*models.Trigger{
			{ID: "pull_request", Kind: models.TriggerKindPullRequest, Actions: []string{"opened", "reopened"}},
			{ID: "schedule", Kind: models.TriggerKindSchedule, Cron: "0 4 * * *"},
		},
		Matrix: models.Matrix{
			Axes: map[string][]string{"python": {"2.7", "3.5", "3.6", "3.7", "3.8", "3.9"}},
		},
		Steps: []*models.Step{
			{ID: "step-1", UID: "checkout", ActionID: models.ActionCheckout, Enabled: true},
			{ID: "step-2", UID: "lint", ActionID: models.ActionLint, Configuration: map[string]any{"fail_under": 6}, Enabled: true},
		},
		Env: map[string]string{"PIP_DISABLE_PIP_VERSION_CHECK": "1"},
	}
}

func TestPipelineRepository_Lifecycle(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.PipelineRepository()

	pipeline := integrationPipeline("pipe-1", "tcollector-pr")
	require.NoError(t, repo.Save(ctx, pipeline))

	loaded, err := repo.GetByID(ctx, "pipe-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)

	assert.Equal(t, pipeline.Name, loaded.Name)
	assert.Equal(t, pipeline.Repository, loaded.Repository)
	require.Len(t, loaded.Triggers, 2)
	assert.Equal(t, "0 4 * * *", loaded.Triggers[1].Cron)
	require.Len(t, loaded.Steps, 2)
	assert.Equal(t, map[string]string{"PIP_DISABLE_PIP_VERSION_CHECK": "1"}, loaded.Env)
	assert.Len(t, loaded.Matrix.Axes["python"], 6)

	bySlug, err := repo.GetBySlug(ctx, "tcollector-pr")
	require.NoError(t, err)
	require.NotNil(t, bySlug)
	assert.Equal(t, "pipe-1", bySlug.ID)

	// Update through upsert.
	loaded.Status = models.PipelineStatusDisabled
	require.NoError(t, repo.Save(ctx, loaded))

	updated, err := repo.GetByID(ctx, "pipe-1")
	require.NoError(t, err)
	assert.Equal(t, models.PipelineStatusDisabled, updated.Status)

	// Soft delete hides the pipeline from reads.
	require.NoError(t, repo.Delete(ctx, "pipe-1"))

	gone, err := repo.GetByID(ctx, "pipe-1")
	require.NoError(t, err)
	assert.Nil(t, gone)

	all, err := repo.GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestPipelineRepository_List(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.PipelineRepository()

	require.NoError(t, repo.Save(ctx, integrationPipeline("pipe-1", "one")))

	disabled := integrationPipeline("pipe-2", "two")
	disabled.Status = models.PipelineStatusDisabled
	require.NoError(t, repo.Save(ctx, disabled))

	status := models.PipelineStatusActive

	result, err := repo.List(ctx, persistence.ListPipelinesOptions{Status: &status})
	require.NoError(t, err)

	assert.Equal(t, int64(1), result.TotalCount)
	require.Len(t, result.Pipelines, 1)
	assert.Equal(t, "pipe-1", result.Pipelines[0].ID)

	_, err = repo.List(ctx, persistence.ListPipelinesOptions{SortBy: "status; DROP TABLE pipelines"})
	require.Error(t, err)
	assert.True(t, persistence.IsInvalidSortField(err))
}

func TestRunRepository_Lifecycle(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.RunRepository()

	run := models.NewRun("grp-11112222", "pipe-1", "pull_request", models.Instance{"python": "3.9"})
	run.Branch = "main"
	run.CommitSHA = "abc123"
	run.EventData = map[string]any{"action": "opened"}
	require.NoError(t, repo.Save(ctx, run))

	run.MarkRunning()

	score := 7.5
	run.Steps = append(run.Steps, models.StepResult{
		StepUID:  "lint",
		ActionID: models.ActionLint,
		Status:   models.StepStatusFailed,
		ExitCode: 16,
		Score:    &score,
	})
	run.MarkFailed(models.FailureLintGate)
	require.NoError(t, repo.Save(ctx, run))

	loaded, err := repo.GetByID(ctx, run.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded)

	assert.Equal(t, models.RunStatusFailed, loaded.Status)
	assert.Equal(t, models.FailureLintGate, loaded.Reason)
	assert.Equal(t, models.Instance{"python": "3.9"}, loaded.Instance)
	assert.Equal(t, "opened", loaded.EventData["action"])
	require.Len(t, loaded.Steps, 1)
	require.NotNil(t, loaded.Steps[0].Score)
	assert.InDelta(t, 7.5, *loaded.Steps[0].Score, 0.001)
	require.NotNil(t, loaded.FinishedAt)

	missing, err := repo.GetByID(ctx, "run-missing")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRunRepository_ListAndGroups(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.RunRepository()

	groupID := models.NewGroupID()

	for _, version := range []string{"2.7", "3.5", "3.9"} {
		run := models.NewRun(groupID, "pipe-1", "push", models.Instance{"python": version})
		require.NoError(t, repo.Save(ctx, run))
	}

	other := models.NewRun(models.NewGroupID(), "pipe-2", "push", nil)
	other.MarkRunning()
	other.MarkPassed()
	require.NoError(t, repo.Save(ctx, other))

	siblings, err := repo.GetByGroupID(ctx, groupID)
	require.NoError(t, err)
	assert.Len(t, siblings, 3)

	byPipeline, err := repo.List(ctx, persistence.ListRunsOptions{PipelineID: "pipe-1"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), byPipeline.TotalCount)

	passed := models.RunStatusPassed

	byStatus, err := repo.List(ctx, persistence.ListRunsOptions{Status: &passed})
	require.NoError(t, err)
	require.Len(t, byStatus.Runs, 1)
	assert.Equal(t, other.ID, byStatus.Runs[0].ID)
}

func TestScheduleRepository_Lifecycle(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.ScheduleRepository()

	schedule, err := models.NewSchedule("pipe-1", "schedule", "0 4 * * *")
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, schedule))

	loaded, err := repo.GetByID(ctx, schedule.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "0 4 * * *", loaded.CronExpr)

	// Force the schedule due and fetch it.
	past := time.Now().UTC().Add(-time.Minute)
	loaded.NextDueAt = &past
	require.NoError(t, repo.Save(ctx, loaded))

	due, err := repo.GetDue(ctx, time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, schedule.ID, due[0].ID)

	// Advance pushes the due time into the future.
	require.NoError(t, due[0].Advance(time.Now().UTC()))
	require.NoError(t, repo.Save(ctx, due[0]))

	dueAfter, err := repo.GetDue(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Empty(t, dueAfter)

	byPipeline, err := repo.GetByPipelineID(ctx, "pipe-1")
	require.NoError(t, err)
	assert.Len(t, byPipeline, 1)

	require.NoError(t, repo.Delete(ctx, schedule.ID))

	gone, err := repo.GetByID(ctx, schedule.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
}
