package broker

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"example.com/taskboard/internal/events"
	"example.com/taskboard/internal/metrics"
	"example.com/taskboard/internal/models"
)

// Event type prefixes on the wire
const (
	taskEventType       = "com.taskboard.task."
	taskUpdateEventType = "com.taskboard.task.update."
	reminderEventType   = "com.taskboard.reminder.trigger"
)

type publishJob struct {
	topic     string
	eventType string
	payload   interface{}
}

// Publisher submits envelopes to a background worker and returns to the
// caller immediately. There is no atomicity between the caller's state
// mutation and publication: a crash between commit and publish drops the
// event. Failures are observed through logs and the publish counters only.
type Publisher struct {
	client *Client
	queue  chan publishJob
	wg     sync.WaitGroup
	once   sync.Once
}

// NewPublisher creates a publisher and starts its worker
func NewPublisher(client *Client, queueSize int) *Publisher {
	if queueSize <= 0 {
		queueSize = 256
	}

	p := &Publisher{
		client: client,
		queue:  make(chan publishJob, queueSize),
	}

	p.wg.Add(1)
	go p.run()

	return p
}

func (p *Publisher) run() {
	defer p.wg.Done()
	for job := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		p.client.Publish(ctx, job.topic, job.eventType, job.payload)
		cancel()
	}
}

func (p *Publisher) submit(job publishJob) {
	select {
	case p.queue <- job:
	default:
		// Queue is full; the event is dropped rather than blocking the
		// request path. Counted so the loss is not silent.
		log.Warn().Str("topic", job.topic).Msg("Publish queue full, dropping event")
		p.client.metrics.IncrCounter(metrics.PublishQueueDropped)
	}
}

// Close drains pending events and stops the worker
func (p *Publisher) Close() {
	p.once.Do(func() {
		close(p.queue)
		p.wg.Wait()
	})
}

// PublishTaskEvent emits a full-snapshot task event to task-events.
// eventType must be one of created, updated, completed, deleted.
func (p *Publisher) PublishTaskEvent(eventType string, task *models.Task, userID string) {
	p.submit(publishJob{
		topic:     events.TopicTaskEvents,
		eventType: taskEventType + eventType,
		payload: events.TaskEventPayload{
			EventType: eventType,
			TaskID:    task.ID.String(),
			UserID:    userID,
			TaskData:  SnapshotTask(task),
			Timestamp: events.Now(),
		},
	})
}

// PublishTaskUpdateEvent emits a thin change notification to task-updates.
func (p *Publisher) PublishTaskUpdateEvent(changeType string, taskID uuid.UUID, userID string) {
	p.submit(publishJob{
		topic:     events.TopicTaskUpdates,
		eventType: taskUpdateEventType + changeType,
		payload: events.TaskUpdateEventPayload{
			TaskID:     taskID.String(),
			UserID:     userID,
			ChangeType: changeType,
			Timestamp:  events.Now(),
		},
	})
}

// PublishReminderEvent emits a reminder event to the reminders topic.
// Unlike the task event helpers this is synchronous: the reminder callback
// handler's own success depends on the publish outcome.
func (p *Publisher) PublishReminderEvent(ctx context.Context, reminderID uuid.UUID, task *models.Task, userID string, remindAt time.Time) bool {
	return p.client.Publish(ctx, events.TopicReminders, reminderEventType, events.ReminderEventPayload{
		ReminderID: reminderID.String(),
		TaskID:     task.ID.String(),
		Title:      task.Title,
		UserID:     userID,
		DueAt:      task.DueAt,
		RemindAt:   remindAt,
		Timestamp:  events.Now(),
	})
}

// SnapshotTask builds the denormalized task snapshot carried in task events.
func SnapshotTask(task *models.Task) events.TaskData {
	var tags []string
	if len(task.Tags) > 0 {
		if err := json.Unmarshal(task.Tags, &tags); err != nil {
			log.Warn().Err(err).Str("task_id", task.ID.String()).Msg("Could not decode task tags for snapshot")
		}
	}
	if tags == nil {
		tags = []string{}
	}

	return events.TaskData{
		Title:          task.Title,
		Description:    task.Description,
		Completed:      task.Completed,
		Priority:       task.Priority,
		Tags:           tags,
		DueAt:          task.DueAt,
		IsRecurring:    task.IsRecurring,
		RecurrenceRule: task.RecurrenceRule,
	}
}
