package web_test

import (
	"errors"
	"testing"

	"github.com/gantryci/gantry/pkg/models"
	"github.com/gantryci/gantry/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertValidation(t *testing.T, err error, wantErr bool, errFields []string) {
	t.Helper()

	if !wantErr {
		assert.NoError(t, err)

		return
	}

	require.Error(t, err)

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		t.Fatalf("Expected validator.ValidationErrors, got %T", err)
	}

	errorFields := make(map[string]bool)
	for _, fieldErr := range validationErrors {
		errorFields[fieldErr.Field()] = true
	}

	for _, expectedField := range errFields {
		assert.True(t, errorFields[expectedField], "Expected validation error for field %s", expectedField)
	}
}

func TestCreatePipelineRequest_Validation(t *testing.T) {
	t.Parallel()

	v := validator.New()

	tests := []struct {
		name      string
		request   web.CreatePipelineRequest
		wantErr   bool
		errFields []string
	}{
		{
			name:    "valid request",
			request: validCreateRequest(),
			wantErr: false,
		},
		{
			name: "missing name",
			request: func() web.CreatePipelineRequest {
				req := validCreateRequest()
				req.Name = ""

				return req
			}(),
			wantErr:   true,
			errFields: []string{"Name"},
		},
		{
			name: "name too short",
			request: func() web.CreatePipelineRequest {
				req := validCreateRequest()
				req.Name = "CI"

				return req
			}(),
			wantErr:   true,
			errFields: []string{"Name"},
		},
		{
			name: "uppercase slug",
			request: func() web.CreatePipelineRequest {
				req := validCreateRequest()
				req.Slug = "Metricsd-CI"

				return req
			}(),
			wantErr:   true,
			errFields: []string{"Slug"},
		},
		{
			name: "missing repository",
			request: func() web.CreatePipelineRequest {
				req := validCreateRequest()
				req.Repository = models.Repository{}

				return req
			}(),
			wantErr:   true,
			errFields: []string{"URL", "DefaultBranch"},
		},
		{
			name: "no triggers",
			request: func() web.CreatePipelineRequest {
				req := validCreateRequest()
				req.Triggers = nil

				return req
			}(),
			wantErr:   true,
			errFields: []string{"Triggers"},
		},
		{
			name: "no steps",
			request: func() web.CreatePipelineRequest {
				req := validCreateRequest()
				req.Steps = nil

				return req
			}(),
			wantErr:   true,
			errFields: []string{"Steps"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := v.Struct(tt.request)
			assertValidation(t, err, tt.wantErr, tt.errFields)
		})
	}
}

func TestUpdatePipelineRequest_Validation(t *testing.T) {
	t.Parallel()

	v := validator.New()

	tests := []struct {
		name      string
		request   web.UpdatePipelineRequest
		wantErr   bool
		errFields []string
	}{
		{
			name:    "empty request is valid",
			request: web.UpdatePipelineRequest{},
			wantErr: false,
		},
		{
			name: "valid partial update",
			request: web.UpdatePipelineRequest{
				Name:      stringPtr("Updated Pipeline"),
				Status:    pipelineStatusPtr(models.PipelineStatusDisabled),
				Variables: map[string]any{"env": "production"},
			},
			wantErr: false,
		},
		{
			name: "name too short when provided",
			request: web.UpdatePipelineRequest{
				Name: stringPtr("CI"),
			},
			wantErr:   true,
			errFields: []string{"Name"},
		},
		{
			name: "unknown status",
			request: web.UpdatePipelineRequest{
				Status: pipelineStatusPtr(models.PipelineStatus("archived")),
			},
			wantErr:   true,
			errFields: []string{"Status"},
		},
		{
			name: "repository without url",
			request: web.UpdatePipelineRequest{
				Repository: &models.Repository{DefaultBranch: "main"},
			},
			wantErr:   true,
			errFields: []string{"URL"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := v.Struct(tt.request)
			assertValidation(t, err, tt.wantErr, tt.errFields)
		})
	}
}
