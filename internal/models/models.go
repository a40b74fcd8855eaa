package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// Task represents a user's task. The event core reads and creates tasks but
// never mutates an existing row.
type Task struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
	UserID         string     `gorm:"not null;index" json:"user_id"`
	Title          string     `gorm:"size:255;not null" json:"title"`
	Description    *string    `json:"description"`
	Completed      bool       `gorm:"not null;default:false" json:"completed"`
	Priority       *string    `gorm:"size:20" json:"priority"`
	Tags           []byte     `gorm:"type:jsonb" json:"tags"`
	DueAt          *time.Time `json:"due_at"`
	IsRecurring    bool       `gorm:"not null;default:false" json:"is_recurring"`
	RecurrenceRule *string    `gorm:"size:20" json:"recurrence_rule"`
	Reminders      []Reminder `gorm:"foreignKey:TaskID;constraint:OnDelete:CASCADE" json:"-"`
}

// Reminder is a scheduled notification for a task. Removing the task removes
// its reminders through the cascade constraint, not application code.
type Reminder struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	TaskID    uuid.UUID `gorm:"type:uuid;not null;index" json:"task_id"`
	UserID    string    `gorm:"not null;index" json:"user_id"`
	RemindAt  time.Time `gorm:"not null" json:"remind_at"`
	Task      Task      `gorm:"foreignKey:TaskID" json:"-"`
}

// AuditEntry is an immutable record of a task lifecycle event.
// task_id is deliberately not a foreign key: the task may be deleted while
// its audit history must persist.
type AuditEntry struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	EventType string    `gorm:"size:20;not null" json:"event_type"`
	TaskID    uuid.UUID `gorm:"type:uuid;not null;index:idx_audit_task_id" json:"task_id"`
	UserID    string    `gorm:"not null;index:idx_audit_user_id" json:"user_id"`
	EventData []byte    `gorm:"type:jsonb;not null" json:"event_data"`
	Timestamp time.Time `gorm:"not null;index:idx_audit_timestamp" json:"timestamp"`
}

// ProcessedEvent tracks event ids a service has already applied. A row here
// means the effect for that envelope id was committed exactly once.
type ProcessedEvent struct {
	EventID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"event_id"`
	ServiceName string    `gorm:"size:50;not null" json:"service_name"`
	ProcessedAt time.Time `gorm:"autoCreateTime" json:"processed_at"`
}

// SetupModels configures GORM models and runs migrations
func SetupModels(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&Task{},
		&Reminder{},
		&AuditEntry{},
		&ProcessedEvent{},
	); err != nil {
		return errors.Wrap(err, "failed to migrate database models")
	}

	return nil
}
