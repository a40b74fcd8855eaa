package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"example.com/taskboard/internal/consumer"
	"example.com/taskboard/internal/events"
	"example.com/taskboard/internal/models"
)

type MockAuditWriter struct {
	mock.Mock
}

func (m *MockAuditWriter) Create(tx *gorm.DB, entry *models.AuditEntry) error {
	args := m.Called(tx, entry)
	return args.Error(0)
}

func TestAuditHandleRecordsEntry(t *testing.T) {
	ledger := new(MockLedger)
	audit := new(MockAuditWriter)
	svc := NewAuditService(ledger, audit, nil)

	taskID := uuid.New()
	eventID, env := taskEnvelope(t, events.TaskEventPayload{
		EventType: events.EventCompleted,
		TaskID:    taskID.String(),
		UserID:    "user-1",
		TaskData:  events.TaskData{Title: "ship it", Completed: true},
		Timestamp: events.Timestamp{Time: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)},
	})

	ledger.On("MarkProcessedWith", mock.Anything, eventID).Return(nil)
	audit.On("Create", mock.Anything, mock.MatchedBy(func(entry *models.AuditEntry) bool {
		return entry.EventType == events.EventCompleted &&
			entry.TaskID == taskID &&
			entry.UserID == "user-1" &&
			entry.Timestamp.Equal(time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC))
	})).Return(nil)

	status := svc.Handle(context.Background(), eventID, env)
	require.Equal(t, consumer.StatusSuccess, status)
	audit.AssertExpectations(t)
}

func TestAuditHandleBadTimestampUsesReceiptTime(t *testing.T) {
	ledger := new(MockLedger)
	audit := new(MockAuditWriter)
	svc := NewAuditService(ledger, audit, nil)

	taskID := uuid.New()
	data, err := json.Marshal(map[string]interface{}{
		"event_type": events.EventCreated,
		"task_id":    taskID.String(),
		"user_id":    "user-1",
		"timestamp":  "yesterday-ish",
	})
	require.NoError(t, err)

	eventID := uuid.New()
	env := &events.Envelope{ID: eventID.String(), Data: data}

	ledger.On("MarkProcessedWith", mock.Anything, eventID).Return(nil)
	audit.On("Create", mock.Anything, mock.MatchedBy(func(entry *models.AuditEntry) bool {
		return time.Since(entry.Timestamp) < 5*time.Second
	})).Return(nil)

	status := svc.Handle(context.Background(), eventID, env)
	require.Equal(t, consumer.StatusSuccess, status)
	audit.AssertExpectations(t)
}

func TestAuditHandleUnknownEventTypeDrops(t *testing.T) {
	ledger := new(MockLedger)
	audit := new(MockAuditWriter)
	svc := NewAuditService(ledger, audit, nil)

	eventID, env := taskEnvelope(t, events.TaskEventPayload{
		EventType: "archived",
		TaskID:    uuid.New().String(),
		UserID:    "user-1",
	})

	status := svc.Handle(context.Background(), eventID, env)
	require.Equal(t, consumer.StatusDrop, status)
	audit.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	ledger.AssertNotCalled(t, "MarkProcessedWith", mock.Anything, mock.Anything)
}

func TestAuditHandleMalformedPayloadDrops(t *testing.T) {
	ledger := new(MockLedger)
	audit := new(MockAuditWriter)
	svc := NewAuditService(ledger, audit, nil)

	env := &events.Envelope{ID: uuid.New().String(), Data: json.RawMessage(`{"user_id":"user-1"}`)}

	status := svc.Handle(context.Background(), uuid.New(), env)
	require.Equal(t, consumer.StatusDrop, status)
	audit.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

type recordingAuditWriter struct {
	entries []models.AuditEntry
}

func (w *recordingAuditWriter) Create(tx *gorm.DB, entry *models.AuditEntry) error {
	w.entries = append(w.entries, *entry)
	return nil
}

// Every lifecycle event yields exactly one audit row; earlier rows are
// never touched by later events.
func TestAuditTrailAppendOnly(t *testing.T) {
	ledger := new(MockLedger)
	audit := &recordingAuditWriter{}
	svc := NewAuditService(ledger, audit, nil)

	taskID := uuid.New()
	lifecycle := []string{events.EventCreated, events.EventUpdated, events.EventCompleted, events.EventDeleted}

	for _, eventType := range lifecycle {
		eventID, env := taskEnvelope(t, events.TaskEventPayload{
			EventType: eventType,
			TaskID:    taskID.String(),
			UserID:    "user-1",
			TaskData:  events.TaskData{Title: "ship it", Completed: eventType == events.EventCompleted},
			Timestamp: events.Now(),
		})
		ledger.On("MarkProcessedWith", mock.Anything, eventID).Return(nil).Once()

		status := svc.Handle(context.Background(), eventID, env)
		require.Equal(t, consumer.StatusSuccess, status)
	}

	require.Len(t, audit.entries, len(lifecycle))
	for i, eventType := range lifecycle {
		require.Equal(t, eventType, audit.entries[i].EventType)
		require.Equal(t, taskID, audit.entries[i].TaskID)
		require.Equal(t, "user-1", audit.entries[i].UserID)
	}
	ledger.AssertExpectations(t)
}

func TestAuditHandleWriteFailureRetries(t *testing.T) {
	ledger := new(MockLedger)
	audit := new(MockAuditWriter)
	svc := NewAuditService(ledger, audit, nil)

	eventID, env := taskEnvelope(t, events.TaskEventPayload{
		EventType: events.EventCreated,
		TaskID:    uuid.New().String(),
		UserID:    "user-1",
		Timestamp: events.Now(),
	})

	ledger.On("MarkProcessedWith", mock.Anything, eventID).Return(errors.New("db unavailable"))

	status := svc.Handle(context.Background(), eventID, env)
	require.Equal(t, consumer.StatusRetry, status)
}
