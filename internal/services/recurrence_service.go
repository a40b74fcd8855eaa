package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"example.com/taskboard/internal/consumer"
	"example.com/taskboard/internal/events"
	"example.com/taskboard/internal/taskapi"
)

// Recurrence rules
const (
	RuleDaily   = "daily"
	RuleWeekly  = "weekly"
	RuleMonthly = "monthly"
)

// TaskCreator materializes a successor task through the external task API
type TaskCreator interface {
	CreateTask(ctx context.Context, userID string, req taskapi.CreateTaskRequest) error
}

// RecurrenceService watches task events for completed recurring tasks and
// creates the next occurrence. The completed original is never mutated;
// recurrence only ever creates a successor.
type RecurrenceService struct {
	ledger  Ledger
	creator TaskCreator
}

// NewRecurrenceService creates the recurrence event handler
func NewRecurrenceService(ledger Ledger, creator TaskCreator) *RecurrenceService {
	return &RecurrenceService{
		ledger:  ledger,
		creator: creator,
	}
}

// Name identifies the service in logs and traces
func (s *RecurrenceService) Name() string {
	return "recurring-service"
}

// Handle filters for completed recurring tasks and requests creation of the
// successor. Everything else is marked processed so it is never retried.
func (s *RecurrenceService) Handle(ctx context.Context, eventID uuid.UUID, env *events.Envelope) consumer.Status {
	payload, err := events.DecodeTaskEventPayload(env.Data)
	if err != nil {
		log.Warn().Err(err).Str("event_id", env.ID).Msg("Malformed task event, dropping")
		return consumer.StatusDrop
	}

	if payload.EventType != events.EventCompleted || !payload.TaskData.IsRecurring {
		if err := s.ledger.MarkProcessed(ctx, eventID); err != nil {
			log.Error().Err(err).Str("event_id", env.ID).Msg("Failed to mark event processed")
			return consumer.StatusRetry
		}
		return consumer.StatusSuccess
	}

	rule := payload.TaskData.RecurrenceRule
	if rule == nil || *rule == "" {
		log.Warn().Str("task_id", payload.TaskID).Msg("Recurring task has no recurrence rule, skipping")
		if err := s.ledger.MarkProcessed(ctx, eventID); err != nil {
			log.Error().Err(err).Str("event_id", env.ID).Msg("Failed to mark event processed")
			return consumer.StatusRetry
		}
		return consumer.StatusSuccess
	}

	nextDueAt := NextDueDate(payload.TaskData.DueAt, *rule)

	req := taskapi.CreateTaskRequest{
		Title:          payload.TaskData.Title,
		Description:    payload.TaskData.Description,
		Priority:       payload.TaskData.Priority,
		Tags:           payload.TaskData.Tags,
		DueAt:          &nextDueAt,
		IsRecurring:    true,
		RecurrenceRule: rule,
	}

	if err := s.creator.CreateTask(ctx, payload.UserID, req); err != nil {
		log.Error().Err(err).
			Str("task_id", payload.TaskID).
			Str("user_id", payload.UserID).
			Msg("Failed to create successor task")
		return consumer.StatusRetry
	}

	log.Info().
		Str("task_id", payload.TaskID).
		Str("user_id", payload.UserID).
		Time("next_due_at", nextDueAt).
		Msg("Created next recurring task")

	// The remote creation already happened; if this commit fails, the
	// redelivery can create a duplicate successor. Known gap in the
	// at-least-once design.
	if err := s.ledger.MarkProcessed(ctx, eventID); err != nil {
		log.Error().Err(err).Str("event_id", env.ID).Msg("Failed to mark event processed after task creation")
		return consumer.StatusRetry
	}

	return consumer.StatusSuccess
}

// NextDueDate computes the successor's due time from the completed task's
// due time and rule. A nil due time bases the computation on now. Monthly
// recurrence clamps to the end of the target month: Jan 31 + 1 month is
// Feb 28, or Feb 29 in a leap year.
func NextDueDate(dueAt *time.Time, rule string) time.Time {
	base := time.Now().UTC()
	if dueAt != nil {
		base = dueAt.UTC()
	}

	switch rule {
	case RuleDaily:
		return base.AddDate(0, 0, 1)
	case RuleWeekly:
		return base.AddDate(0, 0, 7)
	case RuleMonthly:
		return addMonthClamped(base)
	default:
		log.Warn().Str("rule", rule).Msg("Unknown recurrence rule, defaulting to daily")
		return base.AddDate(0, 0, 1)
	}
}

// addMonthClamped adds one calendar month, clamping the day to the last
// valid day of the target month. time.AddDate would normalize Jan 31 into
// early March instead.
func addMonthClamped(t time.Time) time.Time {
	year, month, day := t.Date()
	firstOfNext := time.Date(year, month+1, 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	lastDay := firstOfNext.AddDate(0, 1, -1).Day()
	if day > lastDay {
		day = lastDay
	}
	return time.Date(firstOfNext.Year(), firstOfNext.Month(), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}
