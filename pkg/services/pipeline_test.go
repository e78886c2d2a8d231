package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gantryci/gantry/pkg/models"
	"github.com/gantryci/gantry/pkg/persistence/file"
	"github.com/gantryci/gantry/pkg/testutil"
)

func TestNewPipeline(t *testing.T) {
	persistence := file.NewPersistence(t.TempDir())
	service := NewPipeline(persistence)

	assert.NotNil(t, service)
	assert.Equal(t, persistence, service.persistence)
}

func TestPipeline_Create(t *testing.T) {
	service := NewPipeline(file.NewPersistence(t.TempDir()))

	pipeline := testutil.CreateTestPipeline()
	pipeline.ID = ""
	pipeline.Status = ""

	created, err := service.Create(t.Context(), pipeline)
	require.NoError(t, err)
	require.NotNil(t, created)

	assert.NotEmpty(t, created.ID)
	assert.False(t, created.CreatedAt.IsZero())
	assert.False(t, created.UpdatedAt.IsZero())
	assert.Equal(t, models.PipelineStatusActive, created.Status)
}

func TestPipeline_Create_DerivesSlugFromName(t *testing.T) {
	service := NewPipeline(file.NewPersistence(t.TempDir()))

	pipeline := testutil.CreateTestPipeline()
	pipeline.Name = "Metricsd Pull Request"
	pipeline.Slug = ""

	created, err := service.Create(t.Context(), pipeline)
	require.NoError(t, err)
	assert.Equal(t, "metricsd-pull-request", created.Slug)
}

func TestPipeline_Create_SlugConflict(t *testing.T) {
	service := NewPipeline(file.NewPersistence(t.TempDir()))

	_, err := service.Create(t.Context(), testutil.CreateTestPipeline(testutil.WithSlug("metricsd")))
	require.NoError(t, err)

	_, err = service.Create(t.Context(), testutil.CreateTestPipeline(testutil.WithSlug("metricsd")))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSlugConflict)
	assert.True(t, IsConflictError(err))
}

func TestPipeline_Create_ValidationFailures(t *testing.T) {
	service := NewPipeline(file.NewPersistence(t.TempDir()))

	tests := []struct {
		name     string
		pipeline *models.Pipeline
		wantErr  error
	}{
		{
			name:     "nil pipeline",
			pipeline: nil,
			wantErr:  ErrPipelineNil,
		},
		{
			name: "missing name",
			pipeline: func() *models.Pipeline {
				p := testutil.CreateTestPipeline()
				p.Name = ""

				return p
			}(),
			wantErr: ErrPipelineNameRequired,
		},
		{
			name: "no triggers",
			pipeline: func() *models.Pipeline {
				p := testutil.CreateTestPipeline()
				p.Triggers = nil

				return p
			}(),
			wantErr: ErrTriggersRequired,
		},
		{
			name: "no steps",
			pipeline: func() *models.Pipeline {
				p := testutil.CreateTestPipeline()
				p.Steps = nil

				return p
			}(),
			wantErr: ErrStepsRequired,
		},
		{
			name: "invalid status",
			pipeline: testutil.CreateTestPipeline(
				testutil.WithStatus(models.PipelineStatus("archived")),
			),
			wantErr: ErrInvalidStatus,
		},
		{
			name: "schedule trigger without cron",
			pipeline: testutil.CreateTestPipeline(
				testutil.WithTriggers(&models.Trigger{ID: "nightly", Kind: models.TriggerKindSchedule}),
			),
			wantErr: ErrInvalidRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.Create(t.Context(), tt.pipeline)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.True(t, IsValidationError(err))
		})
	}
}

func TestPipeline_FetchByID(t *testing.T) {
	service := NewPipeline(file.NewPersistence(t.TempDir()))

	created, err := service.Create(t.Context(), testutil.CreateTestPipeline())
	require.NoError(t, err)

	fetched, err := service.FetchByID(t.Context(), created.ID)
	require.NoError(t, err)
	require.NotNil(t, fetched)
	assert.Equal(t, created.ID, fetched.ID)
	assert.Equal(t, created.Slug, fetched.Slug)
}

func TestPipeline_FetchByID_NotFound(t *testing.T) {
	service := NewPipeline(file.NewPersistence(t.TempDir()))

	pipeline, err := service.FetchByID(t.Context(), "non-existent")
	require.Error(t, err)
	assert.Nil(t, pipeline)
	assert.ErrorIs(t, err, ErrPipelineNotFound)
}

func TestPipeline_FetchBySlug(t *testing.T) {
	service := NewPipeline(file.NewPersistence(t.TempDir()))

	created, err := service.Create(t.Context(), testutil.CreateTestPipeline(testutil.WithSlug("metricsd")))
	require.NoError(t, err)

	fetched, err := service.FetchBySlug(t.Context(), "metricsd")
	require.NoError(t, err)
	require.NotNil(t, fetched)
	assert.Equal(t, created.ID, fetched.ID)

	_, err = service.FetchBySlug(t.Context(), "unknown")
	assert.ErrorIs(t, err, ErrPipelineNotFound)
}

func TestPipeline_List(t *testing.T) {
	service := NewPipeline(file.NewPersistence(t.TempDir()))

	_, err := service.Create(t.Context(), testutil.CreateTestPipeline(testutil.WithSlug("first")))
	require.NoError(t, err)
	_, err = service.Create(t.Context(), testutil.CreateTestPipeline(testutil.WithSlug("second")))
	require.NoError(t, err)

	result, err := service.List(t.Context(), &ListPipelinesRequest{})
	require.NoError(t, err)
	assert.Len(t, result.Pipelines, 2)
	assert.Equal(t, int64(2), result.TotalCount)
	assert.False(t, result.HasNextPage)
}

func TestPipeline_List_DefaultsApplied(t *testing.T) {
	service := NewPipeline(file.NewPersistence(t.TempDir()))

	req := &ListPipelinesRequest{}

	_, err := service.List(t.Context(), req)
	require.NoError(t, err)

	assert.Equal(t, 20, req.Limit)
	assert.Equal(t, 0, req.Offset)
	assert.Equal(t, "created_at", req.SortBy)
	assert.Equal(t, "desc", req.SortOrder)
}

func TestPipeline_List_InvalidSortField(t *testing.T) {
	service := NewPipeline(file.NewPersistence(t.TempDir()))

	_, err := service.List(t.Context(), &ListPipelinesRequest{SortBy: "owner"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidSortField)
	assert.True(t, IsValidationError(err))
}

func TestPipeline_List_InvalidSortOrder(t *testing.T) {
	service := NewPipeline(file.NewPersistence(t.TempDir()))

	_, err := service.List(t.Context(), &ListPipelinesRequest{SortOrder: "sideways"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidSortOrder)
	assert.True(t, IsValidationError(err))
}

func TestPipeline_List_StatusFilter(t *testing.T) {
	service := NewPipeline(file.NewPersistence(t.TempDir()))

	_, err := service.Create(t.Context(), testutil.CreateTestPipeline(testutil.WithSlug("active-one")))
	require.NoError(t, err)
	_, err = service.Create(t.Context(), testutil.CreateTestPipeline(
		testutil.WithSlug("disabled-one"),
		testutil.WithStatus(models.PipelineStatusDisabled),
	))
	require.NoError(t, err)

	disabled := models.PipelineStatusDisabled
	result, err := service.List(t.Context(), &ListPipelinesRequest{Status: &disabled})
	require.NoError(t, err)
	require.Len(t, result.Pipelines, 1)
	assert.Equal(t, "disabled-one", result.Pipelines[0].Slug)

	bogus := models.PipelineStatus("archived")
	_, err = service.List(t.Context(), &ListPipelinesRequest{Status: &bogus})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestPipeline_Update(t *testing.T) {
	service := NewPipeline(file.NewPersistence(t.TempDir()))

	created, err := service.Create(t.Context(), testutil.CreateTestPipeline(testutil.WithSlug("metricsd")))
	require.NoError(t, err)

	updated := testutil.CreateTestPipeline(testutil.WithSlug("metricsd"))
	updated.Name = "Renamed Pipeline"
	updated.Description = "Updated description"

	result, err := service.Update(t.Context(), created.ID, updated)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, created.ID, result.ID)
	assert.Equal(t, "Renamed Pipeline", result.Name)
	assert.WithinDuration(t, created.CreatedAt, result.CreatedAt, 0)
	assert.False(t, result.UpdatedAt.Before(created.UpdatedAt))
}

func TestPipeline_Update_KeepsStoredSlugAndStatus(t *testing.T) {
	service := NewPipeline(file.NewPersistence(t.TempDir()))

	created, err := service.Create(t.Context(), testutil.CreateTestPipeline(
		testutil.WithSlug("metricsd"),
		testutil.WithStatus(models.PipelineStatusDisabled),
	))
	require.NoError(t, err)

	updated := testutil.CreateTestPipeline()
	updated.Slug = ""
	updated.Status = ""

	result, err := service.Update(t.Context(), created.ID, updated)
	require.NoError(t, err)

	assert.Equal(t, "metricsd", result.Slug)
	assert.Equal(t, models.PipelineStatusDisabled, result.Status)
}

func TestPipeline_Update_NotFound(t *testing.T) {
	service := NewPipeline(file.NewPersistence(t.TempDir()))

	_, err := service.Update(t.Context(), "non-existent", testutil.CreateTestPipeline())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPipelineNotFound)
}

func TestPipeline_Update_SlugConflict(t *testing.T) {
	service := NewPipeline(file.NewPersistence(t.TempDir()))

	_, err := service.Create(t.Context(), testutil.CreateTestPipeline(testutil.WithSlug("taken")))
	require.NoError(t, err)

	created, err := service.Create(t.Context(), testutil.CreateTestPipeline(testutil.WithSlug("metricsd")))
	require.NoError(t, err)

	updated := testutil.CreateTestPipeline(testutil.WithSlug("taken"))

	_, err = service.Update(t.Context(), created.ID, updated)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSlugConflict)
}

func TestPipeline_Delete(t *testing.T) {
	service := NewPipeline(file.NewPersistence(t.TempDir()))

	created, err := service.Create(t.Context(), testutil.CreateTestPipeline())
	require.NoError(t, err)

	require.NoError(t, service.Delete(t.Context(), created.ID))

	_, err = service.FetchByID(t.Context(), created.ID)
	assert.ErrorIs(t, err, ErrPipelineNotFound)
}

func TestPipeline_Delete_NotFound(t *testing.T) {
	service := NewPipeline(file.NewPersistence(t.TempDir()))

	err := service.Delete(t.Context(), "non-existent")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPipelineNotFound)
}

func TestPipeline_HealthCheck(t *testing.T) {
	service := NewPipeline(file.NewPersistence(t.TempDir()))

	msg, healthy := service.HealthCheck(t.Context())
	assert.True(t, healthy)
	assert.NotEmpty(t, msg)

	uninitialized := &Pipeline{}
	_, healthy = uninitialized.HealthCheck(t.Context())
	assert.False(t, healthy)
}

func TestIsValidationError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{name: "ErrInvalidRequest", err: ErrInvalidRequest, expected: true},
		{name: "ErrInvalidSortField", err: ErrInvalidSortField, expected: true},
		{name: "ErrInvalidSortOrder", err: ErrInvalidSortOrder, expected: true},
		{name: "ErrInvalidStatus", err: ErrInvalidStatus, expected: true},
		{name: "ErrPipelineNil", err: ErrPipelineNil, expected: true},
		{name: "ErrPipelineNameRequired", err: ErrPipelineNameRequired, expected: true},
		{name: "ErrTriggersRequired", err: ErrTriggersRequired, expected: true},
		{name: "ErrStepsRequired", err: ErrStepsRequired, expected: true},
		{name: "ErrSlugConflict is a conflict", err: ErrSlugConflict, expected: false},
		{name: "ErrPipelineNotFound is not validation", err: ErrPipelineNotFound, expected: false},
		{name: "generic error", err: assert.AnError, expected: false},
		{name: "nil error", err: nil, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsValidationError(tt.err))
		})
	}
}

func TestIsConflictError(t *testing.T) {
	assert.True(t, IsConflictError(ErrSlugConflict))
	assert.True(t, IsConflictError(ErrPipelineNotActive))
	assert.True(t, IsConflictError(ErrNoManualTrigger))
	assert.False(t, IsConflictError(ErrInvalidRequest))
	assert.False(t, IsConflictError(nil))
}
