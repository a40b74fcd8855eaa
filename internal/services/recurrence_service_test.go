package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"example.com/taskboard/internal/consumer"
	"example.com/taskboard/internal/events"
	"example.com/taskboard/internal/taskapi"
)

type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) MarkProcessed(ctx context.Context, eventID uuid.UUID) error {
	args := m.Called(ctx, eventID)
	return args.Error(0)
}

func (m *MockLedger) MarkProcessedWith(ctx context.Context, eventID uuid.UUID, effect func(tx *gorm.DB) error) error {
	args := m.Called(ctx, eventID)
	if args.Error(0) != nil {
		return args.Error(0)
	}
	return effect(nil)
}

type MockTaskCreator struct {
	mock.Mock
}

func (m *MockTaskCreator) CreateTask(ctx context.Context, userID string, req taskapi.CreateTaskRequest) error {
	args := m.Called(ctx, userID, req)
	return args.Error(0)
}

func taskEnvelope(t *testing.T, payload events.TaskEventPayload) (uuid.UUID, *events.Envelope) {
	t.Helper()
	env, err := events.NewEnvelope("taskboard-backend", "com.taskboard.task.completed", payload)
	require.NoError(t, err)
	id, err := env.EventID()
	require.NoError(t, err)
	return id, env
}

func strPtr(s string) *string { return &s }

func TestNextDueDate(t *testing.T) {
	due := func(y int, m time.Month, d int) *time.Time {
		v := time.Date(y, m, d, 10, 30, 0, 0, time.UTC)
		return &v
	}

	tests := []struct {
		name  string
		dueAt *time.Time
		rule  string
		want  time.Time
	}{
		{"daily", due(2026, 3, 14), RuleDaily, time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC)},
		{"weekly", due(2026, 3, 14), RuleWeekly, time.Date(2026, 3, 21, 10, 30, 0, 0, time.UTC)},
		{"monthly mid-month", due(2026, 3, 14), RuleMonthly, time.Date(2026, 4, 14, 10, 30, 0, 0, time.UTC)},
		{"monthly clamps jan 31", due(2026, 1, 31), RuleMonthly, time.Date(2026, 2, 28, 10, 30, 0, 0, time.UTC)},
		{"monthly clamps jan 31 leap year", due(2024, 1, 31), RuleMonthly, time.Date(2024, 2, 29, 10, 30, 0, 0, time.UTC)},
		{"monthly dec wraps year", due(2026, 12, 31), RuleMonthly, time.Date(2027, 1, 31, 10, 30, 0, 0, time.UTC)},
		{"unknown rule falls back to daily", due(2026, 3, 14), "fortnightly", time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, NextDueDate(tt.dueAt, tt.rule))
		})
	}
}

func TestNextDueDateNilBasesOnNow(t *testing.T) {
	got := NextDueDate(nil, RuleDaily)
	expected := time.Now().UTC().AddDate(0, 0, 1)
	require.WithinDuration(t, expected, got, 5*time.Second)
}

func TestRecurrenceHandleCreatesSuccessor(t *testing.T) {
	ledger := new(MockLedger)
	creator := new(MockTaskCreator)
	svc := NewRecurrenceService(ledger, creator)

	dueAt := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	eventID, env := taskEnvelope(t, events.TaskEventPayload{
		EventType: events.EventCompleted,
		TaskID:    uuid.New().String(),
		UserID:    "user-1",
		TaskData: events.TaskData{
			Title:          "weekly report",
			Completed:      true,
			DueAt:          &dueAt,
			IsRecurring:    true,
			RecurrenceRule: strPtr(RuleWeekly),
		},
		Timestamp: events.Now(),
	})

	ledger.On("MarkProcessed", mock.Anything, eventID).Return(nil)
	creator.On("CreateTask", mock.Anything, "user-1", mock.MatchedBy(func(req taskapi.CreateTaskRequest) bool {
		return req.Title == "weekly report" &&
			req.IsRecurring &&
			req.RecurrenceRule != nil && *req.RecurrenceRule == RuleWeekly &&
			req.DueAt != nil && req.DueAt.Equal(dueAt.AddDate(0, 0, 7))
	})).Return(nil)

	status := svc.Handle(context.Background(), eventID, env)
	require.Equal(t, consumer.StatusSuccess, status)
	creator.AssertExpectations(t)
	ledger.AssertExpectations(t)
}

func TestRecurrenceHandleIgnoresNonRecurring(t *testing.T) {
	ledger := new(MockLedger)
	creator := new(MockTaskCreator)
	svc := NewRecurrenceService(ledger, creator)

	eventID, env := taskEnvelope(t, events.TaskEventPayload{
		EventType: events.EventCompleted,
		TaskID:    uuid.New().String(),
		UserID:    "user-1",
		TaskData:  events.TaskData{Title: "one-off", Completed: true},
	})

	ledger.On("MarkProcessed", mock.Anything, eventID).Return(nil)

	status := svc.Handle(context.Background(), eventID, env)
	require.Equal(t, consumer.StatusSuccess, status)
	creator.AssertNotCalled(t, "CreateTask", mock.Anything, mock.Anything, mock.Anything)
}

func TestRecurrenceHandleIgnoresNonCompleted(t *testing.T) {
	ledger := new(MockLedger)
	creator := new(MockTaskCreator)
	svc := NewRecurrenceService(ledger, creator)

	eventID, env := taskEnvelope(t, events.TaskEventPayload{
		EventType: events.EventUpdated,
		TaskID:    uuid.New().String(),
		UserID:    "user-1",
		TaskData: events.TaskData{
			Title:          "weekly report",
			IsRecurring:    true,
			RecurrenceRule: strPtr(RuleWeekly),
		},
	})

	ledger.On("MarkProcessed", mock.Anything, eventID).Return(nil)

	status := svc.Handle(context.Background(), eventID, env)
	require.Equal(t, consumer.StatusSuccess, status)
	creator.AssertNotCalled(t, "CreateTask", mock.Anything, mock.Anything, mock.Anything)
}

func TestRecurrenceHandleMissingRuleSkips(t *testing.T) {
	ledger := new(MockLedger)
	creator := new(MockTaskCreator)
	svc := NewRecurrenceService(ledger, creator)

	eventID, env := taskEnvelope(t, events.TaskEventPayload{
		EventType: events.EventCompleted,
		TaskID:    uuid.New().String(),
		UserID:    "user-1",
		TaskData:  events.TaskData{Title: "broken", IsRecurring: true},
	})

	ledger.On("MarkProcessed", mock.Anything, eventID).Return(nil)

	status := svc.Handle(context.Background(), eventID, env)
	require.Equal(t, consumer.StatusSuccess, status)
	creator.AssertNotCalled(t, "CreateTask", mock.Anything, mock.Anything, mock.Anything)
}

func TestRecurrenceHandleCreateFailureRetries(t *testing.T) {
	ledger := new(MockLedger)
	creator := new(MockTaskCreator)
	svc := NewRecurrenceService(ledger, creator)

	eventID, env := taskEnvelope(t, events.TaskEventPayload{
		EventType: events.EventCompleted,
		TaskID:    uuid.New().String(),
		UserID:    "user-1",
		TaskData: events.TaskData{
			Title:          "weekly report",
			IsRecurring:    true,
			RecurrenceRule: strPtr(RuleWeekly),
		},
	})

	creator.On("CreateTask", mock.Anything, "user-1", mock.Anything).Return(errors.New("task api unavailable"))

	status := svc.Handle(context.Background(), eventID, env)
	require.Equal(t, consumer.StatusRetry, status)
	ledger.AssertNotCalled(t, "MarkProcessed", mock.Anything, mock.Anything)
}

func TestRecurrenceHandleMalformedPayloadDrops(t *testing.T) {
	ledger := new(MockLedger)
	creator := new(MockTaskCreator)
	svc := NewRecurrenceService(ledger, creator)

	env := &events.Envelope{ID: uuid.New().String(), Data: json.RawMessage(`{"event_type":"completed"}`)}

	status := svc.Handle(context.Background(), uuid.New(), env)
	require.Equal(t, consumer.StatusDrop, status)
	ledger.AssertNotCalled(t, "MarkProcessed", mock.Anything, mock.Anything)
}
