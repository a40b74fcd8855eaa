package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"example.com/taskboard/internal/models"
)

// AuditRepository provides access to the append-only audit trail. There is
// deliberately no update or delete method on this repository.
type AuditRepository struct {
	db *gorm.DB
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create inserts an audit entry inside the given transaction
func (r *AuditRepository) Create(tx *gorm.DB, entry *models.AuditEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if err := tx.Create(entry).Error; err != nil {
		return errors.Wrap(err, "failed to create audit entry")
	}
	return nil
}

// ListByUser returns a user's audit entries, newest first
func (r *AuditRepository) ListByUser(ctx context.Context, userID string, limit int) ([]models.AuditEntry, error) {
	var entries []models.AuditEntry
	q := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("timestamp DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&entries).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list audit entries")
	}
	return entries, nil
}

// ListByTask returns a task's audit entries for one user, newest first
func (r *AuditRepository) ListByTask(ctx context.Context, userID string, taskID uuid.UUID, limit int) ([]models.AuditEntry, error) {
	var entries []models.AuditEntry
	q := r.db.WithContext(ctx).
		Where("user_id = ? AND task_id = ?", userID, taskID).
		Order("timestamp DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&entries).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list audit entries for task")
	}
	return entries, nil
}
