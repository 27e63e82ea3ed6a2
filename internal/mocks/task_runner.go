package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/phrazzld/audiopaper-api/internal/domain"
	"github.com/phrazzld/audiopaper-api/internal/generation"
	"github.com/stretchr/testify/mock"
)

// MockTaskRunner is a testify mock of service.TaskRunner.
type MockTaskRunner struct {
	mock.Mock
}

// Submit records the call and returns the configured error.
func (m *MockTaskRunner) Submit(ctx context.Context, t *domain.Task) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

// SubmitWithParams records the call and returns the configured error.
func (m *MockTaskRunner) SubmitWithParams(ctx context.Context, t *domain.Task, params map[string]string) error {
	args := m.Called(ctx, t, params)
	return args.Error(0)
}

// Cancel records the superseded ids as a single slice argument.
func (m *MockTaskRunner) Cancel(taskIDs ...uuid.UUID) {
	m.Called(taskIDs)
}

// Stream returns the configured sequence, or an empty one.
func (m *MockTaskRunner) Stream(ctx context.Context, t *domain.Task, params map[string]string) generation.EventSequence {
	args := m.Called(ctx, t, params)
	if seq, ok := args.Get(0).(generation.EventSequence); ok {
		return seq
	}
	return func(func(generation.Event) bool) {}
}
