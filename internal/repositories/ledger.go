package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"example.com/taskboard/internal/models"
)

// LedgerRepository provides access to the processed-event ledger of one
// consuming service.
type LedgerRepository struct {
	db          *gorm.DB
	serviceName string
}

// NewLedgerRepository creates a ledger repository scoped to a service name
func NewLedgerRepository(db *gorm.DB, serviceName string) *LedgerRepository {
	return &LedgerRepository{
		db:          db,
		serviceName: serviceName,
	}
}

// IsProcessed reports whether the event id already has a ledger row.
func (r *LedgerRepository) IsProcessed(ctx context.Context, eventID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.ProcessedEvent{}).
		Where("event_id = ?", eventID).
		Count(&count).Error
	if err != nil {
		return false, errors.Wrap(err, "failed to check processed event")
	}
	return count > 0, nil
}

// MarkProcessed writes a ledger row with no accompanying effect. Used when
// a consumer decides an event needs no action but must never be retried.
func (r *LedgerRepository) MarkProcessed(ctx context.Context, eventID uuid.UUID) error {
	entry := models.ProcessedEvent{
		EventID:     eventID,
		ServiceName: r.serviceName,
	}
	if err := r.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return errors.Wrap(err, "failed to record processed event")
	}
	return nil
}

// MarkProcessedWith runs the effect and the ledger insert in one
// transaction. If the effect fails the ledger row is rolled back, so a
// redelivery retries the effect; there are no partial-success ledger rows.
func (r *LedgerRepository) MarkProcessedWith(ctx context.Context, eventID uuid.UUID, effect func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := effect(tx); err != nil {
			return err
		}
		entry := models.ProcessedEvent{
			EventID:     eventID,
			ServiceName: r.serviceName,
		}
		if err := tx.Create(&entry).Error; err != nil {
			return errors.Wrap(err, "failed to record processed event")
		}
		return nil
	})
}
