package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"example.com/taskboard/config"
	"example.com/taskboard/internal/events"
	"example.com/taskboard/internal/metrics"
	"example.com/taskboard/internal/tracing"
)

// Client posts event envelopes to the broker sidecar over HTTP.
// Built once at process start and shared by reference.
type Client struct {
	httpClient *http.Client
	baseURL    string
	pubsubName string
	source     string
	metrics    *metrics.Metrics
	tracer     tracing.Tracer
}

// NewClient creates a broker client
func NewClient(cfg config.BrokerConfig, m *metrics.Metrics, tracer tracing.Tracer) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    cfg.BaseURL,
		pubsubName: cfg.PubsubName,
		source:     cfg.Source,
		metrics:    m,
		tracer:     tracer,
	}
}

// Publish wraps the payload in an envelope and posts it to the topic.
// Every failure is logged and counted, never raised: callers on the request
// path must not fail or stall because the broker is unhealthy. No retry is
// performed here; redelivery semantics belong to the broker.
func (c *Client) Publish(ctx context.Context, topic, eventType string, payload interface{}) bool {
	txn := c.tracer.StartTransaction("broker-publish")
	defer c.tracer.EndTransaction(txn)
	c.tracer.AddAttribute(txn, "topic", topic)

	env, err := events.NewEnvelope(c.source, eventType, payload)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to build event envelope")
		c.tracer.RecordError(txn, err)
		c.metrics.IncrCounter(metrics.PublishFailures)
		return false
	}

	body, err := json.Marshal(env)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to marshal event envelope")
		c.tracer.RecordError(txn, err)
		c.metrics.IncrCounter(metrics.PublishFailures)
		return false
	}

	url := fmt.Sprintf("%s/publish/%s/%s", c.baseURL, c.pubsubName, topic)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to build publish request")
		c.tracer.RecordError(txn, err)
		c.metrics.IncrCounter(metrics.PublishFailures)
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Str("event_id", env.ID).Msg("Failed to publish event")
		c.tracer.RecordError(txn, err)
		c.metrics.IncrCounter(metrics.PublishFailures)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Error().
			Int("status", resp.StatusCode).
			Str("topic", topic).
			Str("event_id", env.ID).
			Msg("Broker rejected event")
		c.metrics.IncrCounter(metrics.PublishFailures)
		return false
	}

	log.Info().
		Str("topic", topic).
		Str("type", eventType).
		Str("event_id", env.ID).
		Msg("Event published")
	c.metrics.IncrCounter(metrics.EventsPublished)
	return true
}
