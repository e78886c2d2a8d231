package dispatch

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/gantryci/gantry/pkg/events"
	"github.com/gantryci/gantry/pkg/mocks"
	"github.com/gantryci/gantry/pkg/models"
	"github.com/gantryci/gantry/pkg/testutil"
)

func createTestDispatcher() (*Dispatcher, *mocks.MockPersistence, *mocks.MockEventBus, *mocks.MockSourceEventBus) {
	mockPersistence := mocks.NewMockPersistence()
	mockEventBus := &mocks.MockEventBus{}
	mockSourceEventBus := &mocks.MockSourceEventBus{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	dispatcher := NewDispatcher("test-dispatcher", mockPersistence, mockEventBus, mockSourceEventBus, logger)

	return dispatcher, mockPersistence, mockEventBus, mockSourceEventBus
}

func TestHandleSourceEvent_QueuesRunPerInstance(t *testing.T) {
	dispatcher, mockPersistence, mockEventBus, _ := createTestDispatcher()

	pipeline := testutil.CreateTestPipeline(
		testutil.WithID("pipe-1"),
		testutil.WithMatrix(map[string][]string{"python": {"2.7", "3.5", "3.9"}}),
	)

	mockPersistence.GetMockPipelineRepository().
		On("GetAll", mock.Anything).Return([]*models.Pipeline{pipeline}, nil)

	var saved []*models.Run

	mockPersistence.GetMockRunRepository().
		On("Save", mock.Anything, mock.AnythingOfType("*models.Run")).
		Run(func(args mock.Arguments) {
			saved = append(saved, args.Get(1).(*models.Run))
		}).Return(nil)

	var published []events.RunQueued

	mockEventBus.On("GenerateID").Return("event-123")
	mockEventBus.On("Publish", mock.Anything, mock.AnythingOfType("string"), mock.AnythingOfType("events.RunQueued")).
		Run(func(args mock.Arguments) {
			published = append(published, args.Get(2).(events.RunQueued))
		}).Return(nil)

	err := dispatcher.HandleSourceEvent(context.Background(), pushEvent("main"))
	require.NoError(t, err)

	require.Len(t, saved, 3)
	require.Len(t, published, 3)

	versions := make(map[string]bool)

	for _, run := range saved {
		assert.Equal(t, saved[0].GroupID, run.GroupID)
		assert.Equal(t, "pipe-1", run.PipelineID)
		assert.Equal(t, models.RunStatusQueued, run.Status)
		versions[run.Instance["python"]] = true
	}

	assert.Equal(t, map[string]bool{"2.7": true, "3.5": true, "3.9": true}, versions)

	for i, event := range published {
		assert.Equal(t, saved[i].ID, event.RunID)
		assert.Equal(t, saved[i].GroupID, event.GroupID)
		assert.Equal(t, events.RunQueuedEvent, event.Type)
	}

	mockPersistence.GetMockRunRepository().AssertExpectations(t)
	mockEventBus.AssertExpectations(t)
}

func TestHandleSourceEvent_EmptyMatrixQueuesSingleRun(t *testing.T) {
	dispatcher, mockPersistence, mockEventBus, _ := createTestDispatcher()

	pipeline := testutil.CreateTestPipeline(testutil.WithID("pipe-1"))

	mockPersistence.GetMockPipelineRepository().
		On("GetAll", mock.Anything).Return([]*models.Pipeline{pipeline}, nil)

	var saved []*models.Run

	mockPersistence.GetMockRunRepository().
		On("Save", mock.Anything, mock.AnythingOfType("*models.Run")).
		Run(func(args mock.Arguments) {
			saved = append(saved, args.Get(1).(*models.Run))
		}).Return(nil)

	mockEventBus.On("GenerateID").Return("event-123")
	mockEventBus.On("Publish", mock.Anything, mock.AnythingOfType("string"), mock.AnythingOfType("events.RunQueued")).Return(nil)

	err := dispatcher.HandleSourceEvent(context.Background(), pushEvent("main"))
	require.NoError(t, err)

	require.Len(t, saved, 1)
	assert.Empty(t, saved[0].Instance)
}

func TestHandleSourceEvent_RunCarriesEventContext(t *testing.T) {
	dispatcher, mockPersistence, mockEventBus, _ := createTestDispatcher()

	pipeline := testutil.CreateTestPipeline(testutil.WithID("pipe-1"))

	mockPersistence.GetMockPipelineRepository().
		On("GetAll", mock.Anything).Return([]*models.Pipeline{pipeline}, nil)

	var saved *models.Run

	mockPersistence.GetMockRunRepository().
		On("Save", mock.Anything, mock.AnythingOfType("*models.Run")).
		Run(func(args mock.Arguments) {
			saved = args.Get(1).(*models.Run)
		}).Return(nil)

	mockEventBus.On("GenerateID").Return("event-123")
	mockEventBus.On("Publish", mock.Anything, mock.AnythingOfType("string"), mock.AnythingOfType("events.RunQueued")).Return(nil)

	event := pushEvent("main")

	err := dispatcher.HandleSourceEvent(context.Background(), event)
	require.NoError(t, err)

	require.NotNil(t, saved)
	assert.Equal(t, "main", saved.Branch)
	assert.Equal(t, "abc123", saved.CommitSHA)
	assert.Equal(t, event.EventData, saved.EventData)
	assert.Equal(t, "push", saved.TriggerID)
}

func TestHandleSourceEvent_InvalidEvent(t *testing.T) {
	dispatcher, mockPersistence, mockEventBus, _ := createTestDispatcher()

	invalid := &events.SourceEvent{
		ProviderID: "webhook",
		EventType:  events.SourceEventPush,
		EventData:  map[string]any{"branch": "main"},
	}

	err := dispatcher.HandleSourceEvent(context.Background(), invalid)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "source_id is required")
	mockPersistence.GetMockPipelineRepository().AssertNotCalled(t, "GetAll")
	mockEventBus.AssertNotCalled(t, "Publish")
}

func TestHandleSourceEvent_NoMatches(t *testing.T) {
	dispatcher, mockPersistence, mockEventBus, _ := createTestDispatcher()

	pipeline := testutil.CreateTestPipeline(testutil.WithDefaultBranch("trunk"))

	mockPersistence.GetMockPipelineRepository().
		On("GetAll", mock.Anything).Return([]*models.Pipeline{pipeline}, nil)

	err := dispatcher.HandleSourceEvent(context.Background(), pushEvent("main"))

	require.NoError(t, err)
	mockPersistence.GetMockRunRepository().AssertNotCalled(t, "Save")
	mockEventBus.AssertNotCalled(t, "Publish")
}

func TestHandleSourceEvent_PipelineFetchError(t *testing.T) {
	dispatcher, mockPersistence, mockEventBus, _ := createTestDispatcher()

	mockPersistence.GetMockPipelineRepository().
		On("GetAll", mock.Anything).Return(nil, assert.AnError)

	err := dispatcher.HandleSourceEvent(context.Background(), pushEvent("main"))

	require.Error(t, err)
	assert.Equal(t, assert.AnError, err)
	mockEventBus.AssertNotCalled(t, "Publish")
}

func TestHandleSourceEvent_SaveFailureStopsGroup(t *testing.T) {
	dispatcher, mockPersistence, mockEventBus, _ := createTestDispatcher()

	pipeline := testutil.CreateTestPipeline(
		testutil.WithID("pipe-1"),
		testutil.WithMatrix(map[string][]string{"python": {"2.7", "3.5"}}),
	)

	mockPersistence.GetMockPipelineRepository().
		On("GetAll", mock.Anything).Return([]*models.Pipeline{pipeline}, nil)
	mockPersistence.GetMockRunRepository().
		On("Save", mock.Anything, mock.AnythingOfType("*models.Run")).Return(assert.AnError)

	// Dispatch failures are logged per pipeline, not bubbled up: one broken
	// pipeline must not prevent other matches from queueing.
	err := dispatcher.HandleSourceEvent(context.Background(), pushEvent("main"))

	require.NoError(t, err)
	mockEventBus.AssertNotCalled(t, "Publish")
}

func TestHandleSourceEvent_PublishFailureContinues(t *testing.T) {
	dispatcher, mockPersistence, mockEventBus, _ := createTestDispatcher()

	one := testutil.CreateTestPipeline(testutil.WithID("pipe-1"), testutil.WithSlug("one"))
	two := testutil.CreateTestPipeline(testutil.WithID("pipe-2"), testutil.WithSlug("two"))

	mockPersistence.GetMockPipelineRepository().
		On("GetAll", mock.Anything).Return([]*models.Pipeline{one, two}, nil)
	mockPersistence.GetMockRunRepository().
		On("Save", mock.Anything, mock.AnythingOfType("*models.Run")).Return(nil)

	mockEventBus.On("GenerateID").Return("event-123")
	mockEventBus.On("Publish", mock.Anything, mock.AnythingOfType("string"), mock.AnythingOfType("events.RunQueued")).
		Return(assert.AnError).Once()
	mockEventBus.On("Publish", mock.Anything, mock.AnythingOfType("string"), mock.AnythingOfType("events.RunQueued")).
		Return(nil).Once()

	err := dispatcher.HandleSourceEvent(context.Background(), pushEvent("main"))

	require.NoError(t, err)
	mockEventBus.AssertExpectations(t)
}

func TestStart_RegistersAndSubscribes(t *testing.T) {
	dispatcher, _, _, mockSourceEventBus := createTestDispatcher()

	mockSourceEventBus.On("HandleSourceEvents", mock.AnythingOfType("eventbus.SourceEventHandler")).Return(nil)
	mockSourceEventBus.On("SubscribeToSourceEvents", mock.Anything).Return(nil)

	err := dispatcher.Start(context.Background())

	require.NoError(t, err)
	mockSourceEventBus.AssertExpectations(t)
}

func TestStart_HandlerRegistrationFailure(t *testing.T) {
	dispatcher, _, _, mockSourceEventBus := createTestDispatcher()

	mockSourceEventBus.On("HandleSourceEvents", mock.AnythingOfType("eventbus.SourceEventHandler")).Return(assert.AnError)

	err := dispatcher.Start(context.Background())

	require.Error(t, err)
	mockSourceEventBus.AssertNotCalled(t, "SubscribeToSourceEvents")
}

func TestStart_SubscriptionFailure(t *testing.T) {
	dispatcher, _, _, mockSourceEventBus := createTestDispatcher()

	mockSourceEventBus.On("HandleSourceEvents", mock.AnythingOfType("eventbus.SourceEventHandler")).Return(nil)
	mockSourceEventBus.On("SubscribeToSourceEvents", mock.Anything).Return(assert.AnError)

	err := dispatcher.Start(context.Background())

	require.Error(t, err)
	mockSourceEventBus.AssertExpectations(t)
}
