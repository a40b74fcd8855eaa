package events

import (
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

// Task lifecycle event types
const (
	EventCreated   = "created"
	EventUpdated   = "updated"
	EventCompleted = "completed"
	EventDeleted   = "deleted"
)

var validate = validator.New()

// Timestamp is a lenient RFC3339 time. A malformed or absent value decodes
// to zero instead of failing the whole payload; consumers substitute their
// receipt time for zero.
type Timestamp struct {
	time.Time
}

// UnmarshalJSON never fails: a bad timestamp must not reject the record.
func (t *Timestamp) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		t.Time = time.Time{}
		return nil
	}
	parsed, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Time = time.Time{}
		return nil
	}
	t.Time = parsed
	return nil
}

// Now returns the current UTC time as a Timestamp
func Now() Timestamp {
	return Timestamp{Time: time.Now().UTC()}
}

// ValidEventType reports whether t is a known task lifecycle event type.
func ValidEventType(t string) bool {
	switch t {
	case EventCreated, EventUpdated, EventCompleted, EventDeleted:
		return true
	}
	return false
}

// TaskData is the denormalized task snapshot carried inside a task event.
// It is immutable once published; later task mutations never rewrite a
// delivered payload.
type TaskData struct {
	Title          string     `json:"title"`
	Description    *string    `json:"description"`
	Completed      bool       `json:"completed"`
	Priority       *string    `json:"priority"`
	Tags           []string   `json:"tags"`
	DueAt          *time.Time `json:"due_at"`
	IsRecurring    bool       `json:"is_recurring"`
	RecurrenceRule *string    `json:"recurrence_rule"`
}

// TaskEventPayload is the data field of an envelope on the task-events topic.
type TaskEventPayload struct {
	EventType string    `json:"event_type" validate:"required"`
	TaskID    string    `json:"task_id" validate:"required,uuid"`
	UserID    string    `json:"user_id" validate:"required"`
	TaskData  TaskData  `json:"task_data"`
	Timestamp Timestamp `json:"timestamp"`
}

// TaskUpdateEventPayload is the thin companion on the task-updates topic,
// carrying no snapshot. Meant for cheap cache/UI invalidation.
type TaskUpdateEventPayload struct {
	TaskID     string    `json:"task_id" validate:"required,uuid"`
	UserID     string    `json:"user_id" validate:"required"`
	ChangeType string    `json:"change_type" validate:"required"`
	Timestamp  Timestamp `json:"timestamp"`
}

// ReminderEventPayload is the data field of an envelope on the reminders topic.
type ReminderEventPayload struct {
	ReminderID string     `json:"reminder_id" validate:"required,uuid"`
	TaskID     string     `json:"task_id" validate:"required,uuid"`
	Title      string     `json:"title"`
	UserID     string     `json:"user_id" validate:"required"`
	DueAt      *time.Time `json:"due_at"`
	RemindAt   time.Time  `json:"remind_at"`
	Timestamp  Timestamp  `json:"timestamp"`
}

// DecodeTaskEventPayload decodes and validates the payload of a task-events
// envelope. A shape mismatch is a permanent rejection, not a retryable one.
func DecodeTaskEventPayload(data json.RawMessage) (*TaskEventPayload, error) {
	var p TaskEventPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, errors.Wrap(err, "failed to decode task event payload")
	}
	if err := validate.Struct(&p); err != nil {
		return nil, errors.Wrap(err, "invalid task event payload")
	}
	return &p, nil
}

// DecodeTaskUpdatePayload decodes and validates a task-updates payload.
func DecodeTaskUpdatePayload(data json.RawMessage) (*TaskUpdateEventPayload, error) {
	var p TaskUpdateEventPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, errors.Wrap(err, "failed to decode task update payload")
	}
	if err := validate.Struct(&p); err != nil {
		return nil, errors.Wrap(err, "invalid task update payload")
	}
	return &p, nil
}

// DecodeReminderPayload decodes and validates a reminders payload.
func DecodeReminderPayload(data json.RawMessage) (*ReminderEventPayload, error) {
	var p ReminderEventPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, errors.Wrap(err, "failed to decode reminder payload")
	}
	if err := validate.Struct(&p); err != nil {
		return nil, errors.Wrap(err, "invalid reminder payload")
	}
	return &p, nil
}
