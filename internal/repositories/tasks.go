package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"example.com/taskboard/internal/models"
)

// TaskRepository provides read access to tasks for the event core. Task
// mutations belong to the surrounding CRUD API, not this module.
type TaskRepository struct {
	db *gorm.DB
}

// NewTaskRepository creates a new task repository
func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// GetByIDAndUser gets a task scoped to its owner
func (r *TaskRepository) GetByIDAndUser(ctx context.Context, id uuid.UUID, userID string) (*models.Task, error) {
	var task models.Task
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&task).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to get task")
	}
	return &task, nil
}

// ReminderRepository provides access to reminders
type ReminderRepository struct {
	db *gorm.DB
}

// NewReminderRepository creates a new reminder repository
func NewReminderRepository(db *gorm.DB) *ReminderRepository {
	return &ReminderRepository{db: db}
}

// Create inserts a reminder
func (r *ReminderRepository) Create(ctx context.Context, reminder *models.Reminder) error {
	if reminder.ID == uuid.Nil {
		reminder.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(reminder).Error; err != nil {
		return errors.Wrap(err, "failed to create reminder")
	}
	return nil
}

// GetByIDAndUser gets a reminder scoped to its owner
func (r *ReminderRepository) GetByIDAndUser(ctx context.Context, id uuid.UUID, userID string) (*models.Reminder, error) {
	var reminder models.Reminder
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&reminder).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to get reminder")
	}
	return &reminder, nil
}

// ListByTask returns all reminders attached to a task. A task may have any
// number of reminders; no uniqueness is enforced.
func (r *ReminderRepository) ListByTask(ctx context.Context, taskID uuid.UUID, userID string) ([]models.Reminder, error) {
	var reminders []models.Reminder
	err := r.db.WithContext(ctx).
		Where("task_id = ? AND user_id = ?", taskID, userID).
		Order("remind_at ASC").
		Find(&reminders).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list reminders")
	}
	return reminders, nil
}

// ListDueWithin returns reminders firing between now and now+horizon.
// Used by the sweep worker to re-issue scheduler jobs that may have been
// lost; re-scheduling is idempotent because job names are deterministic.
func (r *ReminderRepository) ListDueWithin(ctx context.Context, horizon time.Duration) ([]models.Reminder, error) {
	now := time.Now().UTC()
	var reminders []models.Reminder
	err := r.db.WithContext(ctx).
		Where("remind_at > ? AND remind_at <= ?", now, now.Add(horizon)).
		Find(&reminders).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list due reminders")
	}
	return reminders, nil
}

// Delete removes a reminder scoped to its owner
func (r *ReminderRepository) Delete(ctx context.Context, id uuid.UUID, userID string) error {
	res := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&models.Reminder{})
	if res.Error != nil {
		return errors.Wrap(res.Error, "failed to delete reminder")
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
