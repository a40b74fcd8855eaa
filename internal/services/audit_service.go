package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"example.com/taskboard/internal/consumer"
	"example.com/taskboard/internal/events"
	"example.com/taskboard/internal/models"
	"example.com/taskboard/internal/search"
)

// Ledger is the write side of the processed-event ledger. The repository
// implementation puts the ledger row in the same transaction as the effect.
type Ledger interface {
	MarkProcessed(ctx context.Context, eventID uuid.UUID) error
	MarkProcessedWith(ctx context.Context, eventID uuid.UUID, effect func(tx *gorm.DB) error) error
}

// AuditWriter inserts audit entries inside a transaction
type AuditWriter interface {
	Create(tx *gorm.DB, entry *models.AuditEntry) error
}

// AuditService records every task lifecycle event as an immutable audit
// entry. No update or delete is ever issued against the audit table.
type AuditService struct {
	ledger  Ledger
	audit   AuditWriter
	elastic *search.ElasticClient
}

// NewAuditService creates the audit event handler
func NewAuditService(ledger Ledger, audit AuditWriter, elastic *search.ElasticClient) *AuditService {
	return &AuditService{
		ledger:  ledger,
		audit:   audit,
		elastic: elastic,
	}
}

// Name identifies the service in logs and traces
func (s *AuditService) Name() string {
	return "audit-service"
}

// Handle records one non-duplicate task event.
func (s *AuditService) Handle(ctx context.Context, eventID uuid.UUID, env *events.Envelope) consumer.Status {
	payload, err := events.DecodeTaskEventPayload(env.Data)
	if err != nil {
		log.Warn().Err(err).Str("event_id", env.ID).Msg("Malformed task event, dropping")
		return consumer.StatusDrop
	}

	if !events.ValidEventType(payload.EventType) {
		log.Warn().Str("event_type", payload.EventType).Str("event_id", env.ID).Msg("Unknown event type, dropping")
		return consumer.StatusDrop
	}

	taskID, err := uuid.Parse(payload.TaskID)
	if err != nil {
		log.Warn().Err(err).Str("event_id", env.ID).Msg("Task event with invalid task id, dropping")
		return consumer.StatusDrop
	}

	// A bad timestamp never rejects the record; receipt time stands in.
	timestamp := payload.Timestamp.Time
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}

	entry := models.AuditEntry{
		ID:        uuid.New(),
		EventType: payload.EventType,
		TaskID:    taskID,
		UserID:    payload.UserID,
		EventData: env.Data,
		Timestamp: timestamp,
	}

	err = s.ledger.MarkProcessedWith(ctx, eventID, func(tx *gorm.DB) error {
		return s.audit.Create(tx, &entry)
	})
	if err != nil {
		log.Error().Err(err).Str("event_id", env.ID).Msg("Failed to record audit entry")
		return consumer.StatusRetry
	}

	log.Info().
		Str("event_type", payload.EventType).
		Str("task_id", payload.TaskID).
		Str("user_id", payload.UserID).
		Msg("Audit entry created")

	// Search indexing is best-effort; the committed row is authoritative.
	if s.elastic != nil {
		if err := s.elastic.IndexAuditEntry(ctx, &entry); err != nil {
			log.Warn().Err(err).Str("audit_id", entry.ID.String()).Msg("Failed to index audit entry")
		}
	}

	return consumer.StatusSuccess
}
