package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"example.com/taskboard/internal/repositories"
)

const defaultAuditLimit = 100

// RegisterAuditRoutes wires the audit trail query endpoint on the audit
// service. The trail is append-only; reads are the only user-facing
// operation.
func (s *Server) RegisterAuditRoutes(repo *repositories.AuditRepository) {
	s.router.GET("/api/:user_id/audit", listAudit(repo))
}

func listAudit(repo *repositories.AuditRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("user_id")

		limit := defaultAuditLimit
		if raw := c.Query("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
				return
			}
			limit = parsed
		}

		if raw := c.Query("task_id"); raw != "" {
			taskID, err := uuid.Parse(raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid task id"})
				return
			}
			entries, err := repo.ListByTask(c.Request.Context(), userID, taskID, limit)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, entries)
			return
		}

		entries, err := repo.ListByUser(c.Request.Context(), userID, limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, entries)
	}
}
