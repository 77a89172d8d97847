package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
	"www.github.com/Wanderer0074348/RoastRouter/src/models"
)

// MockProvider implements models.Provider
type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) Complete(ctx context.Context, prompt string, cacheableLength int) (*models.Completion, error) {
	args := m.Called(ctx, prompt, cacheableLength)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Completion), args.Error(1)
}

// MockRemoteClassifier implements models.RemoteIntentClassifier
type MockRemoteClassifier struct {
	mock.Mock
}

func (m *MockRemoteClassifier) ClassifyRemote(ctx context.Context, message string) (*models.Classification, error) {
	args := m.Called(ctx, message)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Classification), args.Error(1)
}

// MockContextSource implements models.ContextSource
type MockContextSource struct {
	mock.Mock
}

func (m *MockContextSource) Fetch(ctx context.Context, userID string) (string, error) {
	args := m.Called(ctx, userID)
	return args.String(0), args.Error(1)
}

// MockRoutingLogSink implements models.RoutingLogSink
type MockRoutingLogSink struct {
	mock.Mock
}

func (m *MockRoutingLogSink) Write(ctx context.Context, entry *models.RoutingLogEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

// MockHistoryStore implements models.HistoryStore
type MockHistoryStore struct {
	mock.Mock
}

func (m *MockHistoryStore) Recent(ctx context.Context, userID string) ([]models.ChatMessage, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ChatMessage), args.Error(1)
}

func (m *MockHistoryStore) Append(ctx context.Context, userID string, messages ...models.ChatMessage) error {
	args := m.Called(ctx, userID, messages)
	return args.Error(0)
}

// MockChatService implements handlers.ChatService
type MockChatService struct {
	mock.Mock
}

func (m *MockChatService) Handle(ctx context.Context, userID string, req *models.ChatRequest) (*models.ChatResponse, error) {
	args := m.Called(ctx, userID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ChatResponse), args.Error(1)
}

// MockUsageReporter implements handlers.UsageReporter
type MockUsageReporter struct {
	mock.Mock
}

func (m *MockUsageReporter) Usage(ctx context.Context, userID string) models.UsageSnapshot {
	args := m.Called(ctx, userID)
	return args.Get(0).(models.UsageSnapshot)
}
