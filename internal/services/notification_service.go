package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"example.com/taskboard/internal/consumer"
	"example.com/taskboard/internal/events"
)

// NotificationService consumes reminder events and emits one structured
// notification log line per non-duplicate event. Delivery to a real
// channel (push/email/SMS) is deferred; the log line is the notification.
type NotificationService struct {
	ledger Ledger
}

// NewNotificationService creates the reminder event handler
func NewNotificationService(ledger Ledger) *NotificationService {
	return &NotificationService{ledger: ledger}
}

// Name identifies the service in logs and traces
func (s *NotificationService) Name() string {
	return "notification-service"
}

// Handle logs the notification and records the ledger row.
func (s *NotificationService) Handle(ctx context.Context, eventID uuid.UUID, env *events.Envelope) consumer.Status {
	payload, err := events.DecodeReminderPayload(env.Data)
	if err != nil {
		log.Warn().Err(err).Str("event_id", env.ID).Msg("Malformed reminder event, dropping")
		return consumer.StatusDrop
	}

	evt := log.Info().
		Str("user_id", payload.UserID).
		Str("task_id", payload.TaskID).
		Str("title", payload.Title).
		Time("remind_at", payload.RemindAt).
		Str("reminder_id", payload.ReminderID)
	if payload.DueAt != nil {
		evt = evt.Time("due_at", *payload.DueAt)
	}
	evt.Msg("NOTIFICATION: reminder triggered")

	if err := s.ledger.MarkProcessed(ctx, eventID); err != nil {
		log.Error().Err(err).Str("event_id", env.ID).Msg("Failed to mark reminder event processed")
		return consumer.StatusRetry
	}

	return consumer.StatusSuccess
}
