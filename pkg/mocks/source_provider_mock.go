package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/gantryci/gantry/pkg/protocol"
)

// MockProvider is a mock implementation of protocol.Provider.
type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) Start(ctx context.Context, callback protocol.SourceEventCallback) error {
	args := m.Called(ctx, callback)

	return args.Error(0)
}

func (m *MockProvider) Stop(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockProvider) Validate() error {
	args := m.Called()

	return args.Error(0)
}
