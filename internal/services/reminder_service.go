package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/taskboard/internal/models"
	"example.com/taskboard/internal/repositories"
)

// Service-level errors surfaced to the HTTP boundary
var (
	// ErrRemindAtNotFuture rejects a reminder before any job is scheduled.
	ErrRemindAtNotFuture = errors.New("remind_at must be in the future")
	// ErrNotFound maps to a 404 at the boundary.
	ErrNotFound = errors.New("not found")
	// ErrPublishFailed maps to a 500 at the callback boundary, so the
	// scheduler's delivery attempt counts as failed and is retried.
	ErrPublishFailed = errors.New("failed to publish reminder event")
)

// ReminderStore provides reminder persistence
type ReminderStore interface {
	Create(ctx context.Context, reminder *models.Reminder) error
	GetByIDAndUser(ctx context.Context, id uuid.UUID, userID string) (*models.Reminder, error)
	ListByTask(ctx context.Context, taskID uuid.UUID, userID string) ([]models.Reminder, error)
	ListDueWithin(ctx context.Context, horizon time.Duration) ([]models.Reminder, error)
	Delete(ctx context.Context, id uuid.UUID, userID string) error
}

// TaskStore provides task lookups scoped to an owner
type TaskStore interface {
	GetByIDAndUser(ctx context.Context, id uuid.UUID, userID string) (*models.Task, error)
}

// JobScheduler registers and cancels one-shot callback jobs
type JobScheduler interface {
	Schedule(ctx context.Context, name string, fireAt time.Time, data interface{}) error
	Cancel(ctx context.Context, name string) error
}

// ReminderPublisher emits reminder events synchronously
type ReminderPublisher interface {
	PublishReminderEvent(ctx context.Context, reminderID uuid.UUID, task *models.Task, userID string, remindAt time.Time) bool
}

// JobPayload is the callback body the scheduler posts back at fire time
type JobPayload struct {
	ReminderID string `json:"reminder_id"`
	TaskID     string `json:"task_id"`
	UserID     string `json:"user_id"`
}

// ReminderService owns the reminder job lifecycle: persisting reminders,
// arranging the one-shot callback, handling the callback at fire time and
// cancelling jobs when their reminder or task goes away.
type ReminderService struct {
	reminders ReminderStore
	tasks     TaskStore
	scheduler JobScheduler
	publisher ReminderPublisher
}

// NewReminderService creates a reminder service
func NewReminderService(reminders ReminderStore, tasks TaskStore, scheduler JobScheduler, publisher ReminderPublisher) *ReminderService {
	return &ReminderService{
		reminders: reminders,
		tasks:     tasks,
		scheduler: scheduler,
		publisher: publisher,
	}
}

// JobName derives the deterministic scheduler job name for a reminder
func JobName(reminderID uuid.UUID) string {
	return "reminder-" + reminderID.String()
}

// Create validates and persists a reminder, then schedules its callback
// job. remind_at must be strictly in the future; nothing is scheduled
// otherwise. A scheduling failure is logged but does not fail the create;
// the sweep worker re-issues lost jobs.
func (s *ReminderService) Create(ctx context.Context, userID string, taskID uuid.UUID, remindAt time.Time) (*models.Reminder, error) {
	if !remindAt.After(time.Now()) {
		return nil, ErrRemindAtNotFuture
	}

	task, err := s.tasks.GetByIDAndUser(ctx, taskID, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	reminder := &models.Reminder{
		ID:       uuid.New(),
		TaskID:   task.ID,
		UserID:   userID,
		RemindAt: remindAt.UTC(),
	}
	if err := s.reminders.Create(ctx, reminder); err != nil {
		return nil, err
	}

	if err := s.scheduleJob(ctx, reminder); err != nil {
		log.Warn().Err(err).Str("reminder_id", reminder.ID.String()).Msg("Failed to schedule reminder job")
	}

	return reminder, nil
}

// Delete removes a reminder and cancels its job. Cancelling a job that
// already fired or was removed still succeeds.
func (s *ReminderService) Delete(ctx context.Context, userID string, reminderID uuid.UUID) error {
	if err := s.reminders.Delete(ctx, reminderID, userID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}

	if err := s.scheduler.Cancel(ctx, JobName(reminderID)); err != nil {
		log.Warn().Err(err).Str("reminder_id", reminderID.String()).Msg("Failed to cancel reminder job")
	}

	return nil
}

// CancelJobsForTask cancels the scheduled job of every reminder attached
// to a task. Called when the task is deleted; the reminder rows themselves
// go away through the store's cascade delete.
func (s *ReminderService) CancelJobsForTask(ctx context.Context, userID string, taskID uuid.UUID) error {
	reminders, err := s.reminders.ListByTask(ctx, taskID, userID)
	if err != nil {
		return err
	}

	for _, reminder := range reminders {
		if err := s.scheduler.Cancel(ctx, JobName(reminder.ID)); err != nil {
			log.Warn().Err(err).Str("reminder_id", reminder.ID.String()).Msg("Failed to cancel reminder job for deleted task")
		}
	}

	return nil
}

// Trigger handles the scheduler's callback at fire time. It resolves the
// reminder and task for the given user and publishes the reminder event.
// Here a publish failure is an error: the callback's own status decides
// whether the scheduler's delivery attempt succeeded.
func (s *ReminderService) Trigger(ctx context.Context, reminderID, taskID uuid.UUID, userID string) error {
	reminder, err := s.reminders.GetByIDAndUser(ctx, reminderID, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			log.Warn().Str("reminder_id", reminderID.String()).Msg("Reminder not found at fire time")
			return ErrNotFound
		}
		return err
	}

	task, err := s.tasks.GetByIDAndUser(ctx, taskID, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			log.Warn().Str("task_id", taskID.String()).Str("user_id", userID).Msg("Task not found at fire time")
			return ErrNotFound
		}
		return err
	}

	if !s.publisher.PublishReminderEvent(ctx, reminder.ID, task, userID, reminder.RemindAt) {
		return ErrPublishFailed
	}

	return nil
}

// SweepDue re-schedules jobs for reminders firing within the horizon.
// The scheduler keys jobs by name, so re-issuing an existing job is a
// harmless overwrite; this is the fallback for jobs lost between the
// reminder commit and the original schedule call.
func (s *ReminderService) SweepDue(ctx context.Context, horizon time.Duration) error {
	reminders, err := s.reminders.ListDueWithin(ctx, horizon)
	if err != nil {
		return err
	}

	for _, reminder := range reminders {
		r := reminder
		if err := s.scheduleJob(ctx, &r); err != nil {
			log.Warn().Err(err).Str("reminder_id", r.ID.String()).Msg("Sweep failed to schedule reminder job")
		}
	}

	if len(reminders) > 0 {
		log.Info().Int("count", len(reminders)).Msg("Reminder sweep completed")
	}
	return nil
}

func (s *ReminderService) scheduleJob(ctx context.Context, reminder *models.Reminder) error {
	return s.scheduler.Schedule(ctx, JobName(reminder.ID), reminder.RemindAt, JobPayload{
		ReminderID: reminder.ID.String(),
		TaskID:     reminder.TaskID.String(),
		UserID:     reminder.UserID,
	})
}
