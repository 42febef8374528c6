package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/outflowhq/outflow/pkg/models"
	"github.com/outflowhq/outflow/pkg/persistence"
)

// MockFlowRepository is a mock implementation of
// persistence.FlowRepository interface.
type MockFlowRepository struct {
	mock.Mock
}

func (m *MockFlowRepository) SaveFlow(ctx context.Context, flow *models.Flow) error {
	args := m.Called(ctx, flow)

	return args.Error(0)
}

func (m *MockFlowRepository) FlowByID(ctx context.Context, id string) (*models.Flow, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Flow), args.Error(1)
}

func (m *MockFlowRepository) FlowVersion(ctx context.Context, id string, version int) (*models.Flow, error) {
	args := m.Called(ctx, id, version)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Flow), args.Error(1)
}

// MockAutomationRepository is a mock implementation of
// persistence.AutomationRepository interface.
type MockAutomationRepository struct {
	mock.Mock
}

func (m *MockAutomationRepository) SaveAutomation(ctx context.Context, automation *models.Automation) error {
	args := m.Called(ctx, automation)

	return args.Error(0)
}

func (m *MockAutomationRepository) AutomationByID(ctx context.Context, id string) (*models.Automation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Automation), args.Error(1)
}

func (m *MockAutomationRepository) DeleteAutomation(ctx context.Context, id string) error {
	args := m.Called(ctx, id)

	return args.Error(0)
}

// MockScheduleRepository is a mock implementation of
// persistence.ScheduleRepository interface.
type MockScheduleRepository struct {
	mock.Mock
}

func (m *MockScheduleRepository) SaveSchedule(ctx context.Context, schedule *models.Schedule) error {
	args := m.Called(ctx, schedule)

	return args.Error(0)
}

func (m *MockScheduleRepository) ScheduleByID(ctx context.Context, id string) (*models.Schedule, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Schedule), args.Error(1)
}

func (m *MockScheduleRepository) ScheduleByAutomation(ctx context.Context, automationID string) (*models.Schedule, error) {
	args := m.Called(ctx, automationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Schedule), args.Error(1)
}

func (m *MockScheduleRepository) DeleteSchedule(ctx context.Context, id string) error {
	args := m.Called(ctx, id)

	return args.Error(0)
}

func (m *MockScheduleRepository) ListDueSchedules(ctx context.Context, now time.Time) ([]*models.Schedule, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Schedule), args.Error(1)
}

func (m *MockScheduleRepository) SaveException(ctx context.Context, exception *models.Exception) error {
	args := m.Called(ctx, exception)

	return args.Error(0)
}

func (m *MockScheduleRepository) DeleteException(ctx context.Context, id string) error {
	args := m.Called(ctx, id)

	return args.Error(0)
}

func (m *MockScheduleRepository) ExceptionsBySchedule(ctx context.Context, scheduleID string) ([]*models.Exception, error) {
	args := m.Called(ctx, scheduleID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Exception), args.Error(1)
}

// MockExecutionRepository is a mock implementation of
// persistence.ExecutionRepository interface.
type MockExecutionRepository struct {
	mock.Mock
}

func (m *MockExecutionRepository) SaveExecution(ctx context.Context, execution *models.Execution) error {
	args := m.Called(ctx, execution)

	return args.Error(0)
}

func (m *MockExecutionRepository) ExecutionByID(ctx context.Context, id string) (*models.Execution, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Execution), args.Error(1)
}

func (m *MockExecutionRepository) SaveRecipient(ctx context.Context, recipient *models.Recipient) error {
	args := m.Called(ctx, recipient)

	return args.Error(0)
}

func (m *MockExecutionRepository) RecipientsByExecution(ctx context.Context, executionID string) ([]*models.Recipient, error) {
	args := m.Called(ctx, executionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Recipient), args.Error(1)
}

// MockPersistence is a mock implementation of persistence.Persistence
// that hands out the repository mocks it was built with.
type MockPersistence struct {
	mock.Mock

	Flows       *MockFlowRepository
	Automations *MockAutomationRepository
	Schedules   *MockScheduleRepository
	Executions  *MockExecutionRepository
}

func NewMockPersistence() *MockPersistence {
	return &MockPersistence{
		Flows:       new(MockFlowRepository),
		Automations: new(MockAutomationRepository),
		Schedules:   new(MockScheduleRepository),
		Executions:  new(MockExecutionRepository),
	}
}

func (m *MockPersistence) FlowRepository() persistence.FlowRepository {
	return m.Flows
}

func (m *MockPersistence) AutomationRepository() persistence.AutomationRepository {
	return m.Automations
}

func (m *MockPersistence) ScheduleRepository() persistence.ScheduleRepository {
	return m.Schedules
}

func (m *MockPersistence) ExecutionRepository() persistence.ExecutionRepository {
	return m.Executions
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
