package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"example.com/taskboard/internal/broker"
	"example.com/taskboard/internal/events"
	"example.com/taskboard/internal/repositories"
	"example.com/taskboard/internal/services"
)

// EmitTaskEventRequest asks for a task lifecycle event to be published.
// The CRUD layer calls this after committing a mutation; for deletions it
// must call before the row disappears, since the event snapshots the task.
type EmitTaskEventRequest struct {
	EventType string `json:"event_type" binding:"required"`
	TaskID    string `json:"task_id" binding:"required,uuid"`
	UserID    string `json:"user_id" binding:"required"`
}

// RegisterEventRoutes wires the internal event emission endpoint
func (s *Server) RegisterEventRoutes(publisher *broker.Publisher, tasks services.TaskStore) {
	s.router.POST("/internal/events/task", emitTaskEvent(publisher, tasks))
}

// emitTaskEvent publishes the full-snapshot task event and its thin
// task-update companion. Both are fire-and-forget: the response only
// acknowledges that the events were submitted, not delivered.
func emitTaskEvent(publisher *broker.Publisher, tasks services.TaskStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req EmitTaskEventRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if !events.ValidEventType(req.EventType) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown event type"})
			return
		}

		taskID := uuid.MustParse(req.TaskID)
		task, err := tasks.GetByIDAndUser(c.Request.Context(), taskID, req.UserID)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		publisher.PublishTaskEvent(req.EventType, task, req.UserID)
		publisher.PublishTaskUpdateEvent(req.EventType, task.ID, req.UserID)

		c.JSON(http.StatusAccepted, gin.H{"status": "submitted"})
	}
}
