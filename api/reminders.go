package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/taskboard/internal/services"
)

// ReminderTriggerRequest is the callback body the scheduler posts when a
// reminder job fires
type ReminderTriggerRequest struct {
	ReminderID string `json:"reminder_id" binding:"required,uuid"`
	TaskID     string `json:"task_id" binding:"required,uuid"`
	UserID     string `json:"user_id" binding:"required"`
}

// CreateReminderRequest is the body for creating a reminder
type CreateReminderRequest struct {
	RemindAt time.Time `json:"remind_at" binding:"required"`
}

// CancelTaskJobsRequest asks for every reminder job of a task to be
// cancelled, invoked when the task is deleted
type CancelTaskJobsRequest struct {
	TaskID string `json:"task_id" binding:"required,uuid"`
	UserID string `json:"user_id" binding:"required"`
}

// RegisterReminderRoutes wires the reminder lifecycle endpoints
func (s *Server) RegisterReminderRoutes(svc *services.ReminderService) {
	internal := s.router.Group("/internal")
	{
		internal.POST("/jobs/reminder-trigger", triggerReminder(svc))
		internal.POST("/tasks/cancel-jobs", cancelTaskJobs(svc))
	}

	reminders := s.router.Group("/api/:user_id/tasks/:task_id/reminders")
	{
		reminders.POST("", createReminder(svc))
		reminders.DELETE("/:reminder_id", deleteReminder(svc))
	}
}

// triggerReminder handles the scheduler callback at fire time. 404 when
// the reminder or task is gone, 500 when the reminder event cannot be
// published; the scheduler retries on failure per its own policy.
func triggerReminder(svc *services.ReminderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ReminderTriggerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		reminderID := uuid.MustParse(req.ReminderID)
		taskID := uuid.MustParse(req.TaskID)

		log.Info().
			Str("reminder_id", req.ReminderID).
			Str("task_id", req.TaskID).
			Msg("Reminder trigger received")

		err := svc.Trigger(c.Request.Context(), reminderID, taskID, req.UserID)
		switch {
		case errors.Is(err, services.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "reminder or task not found"})
		case err != nil:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		}
	}
}

func createReminder(svc *services.ReminderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		taskID, err := uuid.Parse(c.Param("task_id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid task id"})
			return
		}

		var req CreateReminderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		reminder, err := svc.Create(c.Request.Context(), c.Param("user_id"), taskID, req.RemindAt)
		switch {
		case errors.Is(err, services.ErrRemindAtNotFuture):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, services.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		case err != nil:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusCreated, reminder)
		}
	}
}

func deleteReminder(svc *services.ReminderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		reminderID, err := uuid.Parse(c.Param("reminder_id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid reminder id"})
			return
		}

		err = svc.Delete(c.Request.Context(), c.Param("user_id"), reminderID)
		switch {
		case errors.Is(err, services.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "reminder not found"})
		case err != nil:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		default:
			c.Status(http.StatusNoContent)
		}
	}
}

func cancelTaskJobs(svc *services.ReminderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CancelTaskJobsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		taskID := uuid.MustParse(req.TaskID)
		if err := svc.CancelJobsForTask(c.Request.Context(), req.UserID, taskID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
