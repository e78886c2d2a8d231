// Package mocks provides testify mock implementations of the persistence
// and event bus interfaces for unit testing.
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/gantryci/gantry/pkg/models"
	"github.com/gantryci/gantry/pkg/persistence"
)

// MockPipelineRepository is a mock implementation of persistence.PipelineRepository.
type MockPipelineRepository struct {
	mock.Mock
}

func (m *MockPipelineRepository) List(ctx context.Context, opts persistence.ListPipelinesOptions) (*persistence.PipelineListResult, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*persistence.PipelineListResult), args.Error(1)
}

func (m *MockPipelineRepository) GetAll(ctx context.Context) ([]*models.Pipeline, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Pipeline), args.Error(1)
}

func (m *MockPipelineRepository) GetByID(ctx context.Context, id string) (*models.Pipeline, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Pipeline), args.Error(1)
}

func (m *MockPipelineRepository) GetBySlug(ctx context.Context, slug string) (*models.Pipeline, error) {
	args := m.Called(ctx, slug)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Pipeline), args.Error(1)
}

func (m *MockPipelineRepository) Save(ctx context.Context, pipeline *models.Pipeline) error {
	args := m.Called(ctx, pipeline)

	return args.Error(0)
}

func (m *MockPipelineRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)

	return args.Error(0)
}

// MockRunRepository is a mock implementation of persistence.RunRepository.
type MockRunRepository struct {
	mock.Mock
}

func (m *MockRunRepository) List(ctx context.Context, opts persistence.ListRunsOptions) (*persistence.RunListResult, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*persistence.RunListResult), args.Error(1)
}

func (m *MockRunRepository) GetByID(ctx context.Context, id string) (*models.Run, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Run), args.Error(1)
}

func (m *MockRunRepository) GetByGroupID(ctx context.Context, groupID string) ([]*models.Run, error) {
	args := m.Called(ctx, groupID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Run), args.Error(1)
}

func (m *MockRunRepository) Save(ctx context.Context, run *models.Run) error {
	args := m.Called(ctx, run)

	return args.Error(0)
}

// MockScheduleRepository is a mock implementation of persistence.ScheduleRepository.
type MockScheduleRepository struct {
	mock.Mock
}

func (m *MockScheduleRepository) GetAll(ctx context.Context) ([]*models.Schedule, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Schedule), args.Error(1)
}

func (m *MockScheduleRepository) GetByID(ctx context.Context, id string) (*models.Schedule, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Schedule), args.Error(1)
}

func (m *MockScheduleRepository) GetByPipelineID(ctx context.Context, pipelineID string) ([]*models.Schedule, error) {
	args := m.Called(ctx, pipelineID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Schedule), args.Error(1)
}

func (m *MockScheduleRepository) GetDue(ctx context.Context, now time.Time) ([]*models.Schedule, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Schedule), args.Error(1)
}

func (m *MockScheduleRepository) Save(ctx context.Context, schedule *models.Schedule) error {
	args := m.Called(ctx, schedule)

	return args.Error(0)
}

func (m *MockScheduleRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)

	return args.Error(0)
}

// MockPersistence is a mock implementation of persistence.Persistence.
type MockPersistence struct {
	mock.Mock

	pipelineRepo *MockPipelineRepository
	runRepo      *MockRunRepository
	scheduleRepo *MockScheduleRepository
}

// NewMockPersistence creates a MockPersistence with all mock repositories.
func NewMockPersistence() *MockPersistence {
	return &MockPersistence{
		pipelineRepo: &MockPipelineRepository{},
		runRepo:      &MockRunRepository{},
		scheduleRepo: &MockScheduleRepository{},
	}
}

// GetMockPipelineRepository returns the underlying mock pipeline repository
// for setting up expectations.
func (m *MockPersistence) GetMockPipelineRepository() *MockPipelineRepository {
	return m.pipelineRepo
}

// GetMockRunRepository returns the underlying mock run repository for
// setting up expectations.
func (m *MockPersistence) GetMockRunRepository() *MockRunRepository {
	return m.runRepo
}

// GetMockScheduleRepository returns the underlying mock schedule repository
// for setting up expectations.
func (m *MockPersistence) GetMockScheduleRepository() *MockScheduleRepository {
	return m.scheduleRepo
}

func (m *MockPersistence) PipelineRepository() persistence.PipelineRepository {
	return m.pipelineRepo
}

func (m *MockPersistence) RunRepository() persistence.RunRepository {
	return m.runRepo
}

func (m *MockPersistence) ScheduleRepository() persistence.ScheduleRepository {
	return m.scheduleRepo
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
