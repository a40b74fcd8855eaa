package scheduler

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
	"example.com/taskboard/internal/metrics"
)

// Client registers and cancels one-shot callback jobs with the external
// scheduler. Job state lives entirely in the scheduler; no local copy is
// kept. Callers are responsible for validating that the fire time is
// meaningfully in the future; the scheduler may fire a past time at once.
type Client struct {
	httpClient *http.Client
	baseURL    string
	retries    int
	retryDelay int
	metrics    *metrics.Metrics
}

type jobRequest struct {
	Name       string      `json:"name"`
	Schedule   string      `json:"schedule"`
	Data       interface{} `json:"data"`
	Retries    int         `json:"retries"`
	RetryDelay int         `json:"retryDelay"`
}

// NewClient creates a scheduler client
func NewClient(cfg config.SchedulerConfig, m *metrics.Metrics) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    cfg.BaseURL,
		retries:    cfg.Retries,
		retryDelay: cfg.RetryDelay,
		metrics:    m,
	}
}

// Schedule registers a one-shot job named name firing at fireAt with the
// given callback payload. The retry policy covers the scheduler's own
// callback delivery attempts, not broker redelivery.
func (c *Client) Schedule(ctx context.Context, name string, fireAt time.Time, data interface{}) error {
	body, err := json.Marshal(jobRequest{
		Name:       name,
		Schedule:   fireAt.UTC().Format(time.RFC3339),
		Data:       data,
		Retries:    c.retries,
		RetryDelay: c.retryDelay,
	})
	if err != nil {
		return errors.Wrap(err, "failed to marshal job request")
	}

	url := fmt.Sprintf("%s/jobs/%s", c.baseURL, name)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "failed to build job request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "failed to schedule job '%s'", name)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return errors.Errorf("scheduler rejected job '%s': status %d", name, resp.StatusCode)
	}

	log.Info().Str("job", name).Time("fire_at", fireAt).Msg("Job scheduled")
	c.metrics.IncrCounter(metrics.JobsScheduled)
	return nil
}

// Cancel removes a scheduled job. Cancelling a job that no longer exists is
// a success: it may have already fired or been removed concurrently.
func (c *Client) Cancel(ctx context.Context, name string) error {
	url := fmt.Sprintf("%s/jobs/%s", c.baseURL, name)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return errors.Wrap(err, "failed to build cancel request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "failed to cancel job '%s'", name)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		log.Info().Str("job", name).Msg("Job not found on cancel, treating as success")
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		log.Info().Str("job", name).Msg("Job cancelled")
	default:
		return errors.Errorf("failed to cancel job '%s': status %d", name, resp.StatusCode)
	}

	c.metrics.IncrCounter(metrics.JobsCancelled)
	return nil
}
