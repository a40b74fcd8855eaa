package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"example.com/taskboard/internal/models"
	"example.com/taskboard/internal/repositories"
)

type MockReminderStore struct {
	mock.Mock
}

func (m *MockReminderStore) Create(ctx context.Context, reminder *models.Reminder) error {
	args := m.Called(ctx, reminder)
	return args.Error(0)
}

func (m *MockReminderStore) GetByIDAndUser(ctx context.Context, id uuid.UUID, userID string) (*models.Reminder, error) {
	args := m.Called(ctx, id, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Reminder), args.Error(1)
}

func (m *MockReminderStore) ListByTask(ctx context.Context, taskID uuid.UUID, userID string) ([]models.Reminder, error) {
	args := m.Called(ctx, taskID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Reminder), args.Error(1)
}

func (m *MockReminderStore) ListDueWithin(ctx context.Context, horizon time.Duration) ([]models.Reminder, error) {
	args := m.Called(ctx, horizon)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Reminder), args.Error(1)
}

func (m *MockReminderStore) Delete(ctx context.Context, id uuid.UUID, userID string) error {
	args := m.Called(ctx, id, userID)
	return args.Error(0)
}

type MockTaskStore struct {
	mock.Mock
}

func (m *MockTaskStore) GetByIDAndUser(ctx context.Context, id uuid.UUID, userID string) (*models.Task, error) {
	args := m.Called(ctx, id, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Task), args.Error(1)
}

type MockJobScheduler struct {
	mock.Mock
}

func (m *MockJobScheduler) Schedule(ctx context.Context, name string, fireAt time.Time, data interface{}) error {
	args := m.Called(ctx, name, fireAt, data)
	return args.Error(0)
}

func (m *MockJobScheduler) Cancel(ctx context.Context, name string) error {
	args := m.Called(ctx, name)
	return args.Error(0)
}

type MockReminderPublisher struct {
	mock.Mock
}

func (m *MockReminderPublisher) PublishReminderEvent(ctx context.Context, reminderID uuid.UUID, task *models.Task, userID string, remindAt time.Time) bool {
	args := m.Called(ctx, reminderID, task, userID, remindAt)
	return args.Bool(0)
}

func newReminderFixture() (*MockReminderStore, *MockTaskStore, *MockJobScheduler, *MockReminderPublisher, *ReminderService) {
	reminders := new(MockReminderStore)
	tasks := new(MockTaskStore)
	scheduler := new(MockJobScheduler)
	publisher := new(MockReminderPublisher)
	return reminders, tasks, scheduler, publisher, NewReminderService(reminders, tasks, scheduler, publisher)
}

func TestReminderCreateSchedulesJob(t *testing.T) {
	reminders, tasks, scheduler, _, svc := newReminderFixture()

	taskID := uuid.New()
	remindAt := time.Now().Add(time.Hour)

	tasks.On("GetByIDAndUser", mock.Anything, taskID, "user-1").Return(&models.Task{ID: taskID, UserID: "user-1", Title: "ship it"}, nil)
	reminders.On("Create", mock.Anything, mock.Anything).Return(nil)
	scheduler.On("Schedule", mock.Anything, mock.MatchedBy(func(name string) bool {
		return len(name) > len("reminder-") && name[:len("reminder-")] == "reminder-"
	}), mock.Anything, mock.Anything).Return(nil)

	reminder, err := svc.Create(context.Background(), "user-1", taskID, remindAt)
	require.NoError(t, err)
	require.Equal(t, taskID, reminder.TaskID)
	require.Equal(t, "user-1", reminder.UserID)
	scheduler.AssertExpectations(t)
}

func TestReminderCreateRejectsPastRemindAt(t *testing.T) {
	reminders, tasks, scheduler, _, svc := newReminderFixture()

	_, err := svc.Create(context.Background(), "user-1", uuid.New(), time.Now().Add(-time.Minute))
	require.ErrorIs(t, err, ErrRemindAtNotFuture)
	tasks.AssertNotCalled(t, "GetByIDAndUser", mock.Anything, mock.Anything, mock.Anything)
	reminders.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	scheduler.AssertNotCalled(t, "Schedule", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestReminderCreateUnknownTask(t *testing.T) {
	_, tasks, scheduler, _, svc := newReminderFixture()

	taskID := uuid.New()
	tasks.On("GetByIDAndUser", mock.Anything, taskID, "user-1").Return(nil, repositories.ErrNotFound)

	_, err := svc.Create(context.Background(), "user-1", taskID, time.Now().Add(time.Hour))
	require.ErrorIs(t, err, ErrNotFound)
	scheduler.AssertNotCalled(t, "Schedule", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestReminderCreateSurvivesScheduleFailure(t *testing.T) {
	reminders, tasks, scheduler, _, svc := newReminderFixture()

	taskID := uuid.New()
	tasks.On("GetByIDAndUser", mock.Anything, taskID, "user-1").Return(&models.Task{ID: taskID, UserID: "user-1"}, nil)
	reminders.On("Create", mock.Anything, mock.Anything).Return(nil)
	scheduler.On("Schedule", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("scheduler unreachable"))

	reminder, err := svc.Create(context.Background(), "user-1", taskID, time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.NotNil(t, reminder)
}

func TestReminderDeleteCancelsJob(t *testing.T) {
	reminders, _, scheduler, _, svc := newReminderFixture()

	reminderID := uuid.New()
	reminders.On("Delete", mock.Anything, reminderID, "user-1").Return(nil)
	scheduler.On("Cancel", mock.Anything, JobName(reminderID)).Return(nil)

	require.NoError(t, svc.Delete(context.Background(), "user-1", reminderID))
	scheduler.AssertExpectations(t)
}

func TestReminderDeleteUnknown(t *testing.T) {
	reminders, _, scheduler, _, svc := newReminderFixture()

	reminderID := uuid.New()
	reminders.On("Delete", mock.Anything, reminderID, "user-1").Return(repositories.ErrNotFound)

	require.ErrorIs(t, svc.Delete(context.Background(), "user-1", reminderID), ErrNotFound)
	scheduler.AssertNotCalled(t, "Cancel", mock.Anything, mock.Anything)
}

func TestCancelJobsForTask(t *testing.T) {
	reminders, _, scheduler, _, svc := newReminderFixture()

	taskID := uuid.New()
	r1 := models.Reminder{ID: uuid.New(), TaskID: taskID, UserID: "user-1"}
	r2 := models.Reminder{ID: uuid.New(), TaskID: taskID, UserID: "user-1"}
	reminders.On("ListByTask", mock.Anything, taskID, "user-1").Return([]models.Reminder{r1, r2}, nil)
	scheduler.On("Cancel", mock.Anything, JobName(r1.ID)).Return(nil)
	// one cancel failing must not abort the rest
	scheduler.On("Cancel", mock.Anything, JobName(r2.ID)).Return(errors.New("scheduler unreachable"))

	require.NoError(t, svc.CancelJobsForTask(context.Background(), "user-1", taskID))
	scheduler.AssertExpectations(t)
}

func TestTriggerPublishesReminderEvent(t *testing.T) {
	reminders, tasks, _, publisher, svc := newReminderFixture()

	reminderID := uuid.New()
	taskID := uuid.New()
	remindAt := time.Now().UTC()
	task := &models.Task{ID: taskID, UserID: "user-1", Title: "ship it"}

	reminders.On("GetByIDAndUser", mock.Anything, reminderID, "user-1").
		Return(&models.Reminder{ID: reminderID, TaskID: taskID, UserID: "user-1", RemindAt: remindAt}, nil)
	tasks.On("GetByIDAndUser", mock.Anything, taskID, "user-1").Return(task, nil)
	publisher.On("PublishReminderEvent", mock.Anything, reminderID, task, "user-1", remindAt).Return(true)

	require.NoError(t, svc.Trigger(context.Background(), reminderID, taskID, "user-1"))
	publisher.AssertExpectations(t)
}

func TestTriggerUnknownReminder(t *testing.T) {
	reminders, _, _, publisher, svc := newReminderFixture()

	reminderID := uuid.New()
	reminders.On("GetByIDAndUser", mock.Anything, reminderID, "user-1").Return(nil, repositories.ErrNotFound)

	require.ErrorIs(t, svc.Trigger(context.Background(), reminderID, uuid.New(), "user-1"), ErrNotFound)
	publisher.AssertNotCalled(t, "PublishReminderEvent", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestTriggerPublishFailure(t *testing.T) {
	reminders, tasks, _, publisher, svc := newReminderFixture()

	reminderID := uuid.New()
	taskID := uuid.New()
	task := &models.Task{ID: taskID, UserID: "user-1"}

	reminders.On("GetByIDAndUser", mock.Anything, reminderID, "user-1").
		Return(&models.Reminder{ID: reminderID, TaskID: taskID, UserID: "user-1"}, nil)
	tasks.On("GetByIDAndUser", mock.Anything, taskID, "user-1").Return(task, nil)
	publisher.On("PublishReminderEvent", mock.Anything, reminderID, task, "user-1", mock.Anything).Return(false)

	require.ErrorIs(t, svc.Trigger(context.Background(), reminderID, taskID, "user-1"), ErrPublishFailed)
}

func TestSweepDueReschedulesJobs(t *testing.T) {
	reminders, _, scheduler, _, svc := newReminderFixture()

	r1 := models.Reminder{ID: uuid.New(), TaskID: uuid.New(), UserID: "user-1", RemindAt: time.Now().Add(5 * time.Minute)}
	r2 := models.Reminder{ID: uuid.New(), TaskID: uuid.New(), UserID: "user-2", RemindAt: time.Now().Add(8 * time.Minute)}
	reminders.On("ListDueWithin", mock.Anything, 10*time.Minute).Return([]models.Reminder{r1, r2}, nil)
	scheduler.On("Schedule", mock.Anything, JobName(r1.ID), r1.RemindAt, mock.Anything).Return(nil)
	scheduler.On("Schedule", mock.Anything, JobName(r2.ID), r2.RemindAt, mock.Anything).Return(nil)

	require.NoError(t, svc.SweepDue(context.Background(), 10*time.Minute))
	scheduler.AssertExpectations(t)
}
