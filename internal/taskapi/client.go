package taskapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/taskboard/config"
)

// CreateTaskRequest is the body accepted by the task API's create endpoint
type CreateTaskRequest struct {
	Title          string     `json:"title"`
	Description    *string    `json:"description"`
	Priority       *string    `json:"priority"`
	Tags           []string   `json:"tags"`
	DueAt          *time.Time `json:"due_at"`
	IsRecurring    bool       `json:"is_recurring"`
	RecurrenceRule *string    `json:"recurrence_rule"`
}

// Client calls the external task API. The recurrence engine uses it to
// materialize successor tasks; creation is not idempotent on the remote
// side, so callers decide how a failure maps onto redelivery.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a task API client
func NewClient(cfg config.TaskAPIConfig) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    cfg.BaseURL,
	}
}

// CreateTask creates a task for the given user
func (c *Client) CreateTask(ctx context.Context, userID string, req CreateTaskRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return errors.Wrap(err, "failed to marshal create task request")
	}

	url := fmt.Sprintf("%s/api/%s/tasks", c.baseURL, userID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "failed to build create task request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return errors.Wrap(err, "failed to call task API")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return errors.Errorf("task API returned status %d", resp.StatusCode)
	}

	log.Info().Str("user_id", userID).Str("title", req.Title).Msg("Task created via task API")
	return nil
}
