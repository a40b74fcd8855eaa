package consumer

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"example.com/taskboard/internal/cache"
	"example.com/taskboard/internal/events"
	"example.com/taskboard/internal/metrics"
	"example.com/taskboard/internal/tracing"
)

// Status is the tri-state result the broker interprets for redelivery.
type Status string

// Consumer results
const (
	// StatusSuccess acknowledges the event; it will not be redelivered.
	StatusSuccess Status = "SUCCESS"
	// StatusRetry asks the broker to redeliver later.
	StatusRetry Status = "RETRY"
	// StatusDrop acknowledges and permanently discards a malformed event.
	StatusDrop Status = "DROP"
)

// Result is the response body of a consumer endpoint
type Result struct {
	Status Status `json:"status"`
}

// Ledger is the read side of the processed-event ledger. Handlers own the
// write side so the ledger row lands in the same transaction as the effect.
type Ledger interface {
	IsProcessed(ctx context.Context, eventID uuid.UUID) (bool, error)
}

// Handler applies one service's validation and business effect for an
// envelope whose id is not yet in the ledger. It must write the ledger row
// atomically with the effect and must not have written it when returning
// StatusRetry.
type Handler interface {
	Name() string
	Handle(ctx context.Context, eventID uuid.UUID, env *events.Envelope) Status
}

const cacheTTL = 24 * time.Hour

// Consumer runs the idempotent-consumption contract shared by every
// downstream service. Only the handler differs per service.
type Consumer struct {
	ledger  Ledger
	handler Handler
	cache   *cache.RedisCache
	metrics *metrics.Metrics
	tracer  tracing.Tracer
}

// New creates a consumer around a service handler
func New(ledger Ledger, handler Handler, c *cache.RedisCache, m *metrics.Metrics, tracer tracing.Tracer) *Consumer {
	return &Consumer{
		ledger:  ledger,
		handler: handler,
		cache:   c,
		metrics: m,
		tracer:  tracer,
	}
}

// Consume processes one raw envelope body and returns the tri-state result.
// Duplicate suppression happens here; the handler never sees an id that is
// already in the ledger.
func (c *Consumer) Consume(ctx context.Context, body []byte) Result {
	txn := c.tracer.StartTransaction("consume-" + c.handler.Name())
	defer c.tracer.EndTransaction(txn)

	env, err := events.DecodeEnvelope(body)
	if err != nil {
		log.Warn().Err(err).Str("service", c.handler.Name()).Msg("Undecodable event body, dropping")
		c.metrics.IncrCounter(metrics.EventsDropped)
		return Result{Status: StatusDrop}
	}

	eventID, err := env.EventID()
	if err != nil {
		// Without an id the event can never be deduplicated; retrying
		// would loop forever.
		log.Warn().Err(err).Str("service", c.handler.Name()).Msg("Event without usable id, dropping")
		c.metrics.IncrCounter(metrics.EventsDropped)
		return Result{Status: StatusDrop}
	}
	c.tracer.AddAttribute(txn, "event_id", env.ID)

	if c.cache != nil && c.cache.SeenEvent(ctx, eventID) {
		log.Info().Str("event_id", env.ID).Str("service", c.handler.Name()).Msg("Event already processed (cache), skipping")
		c.metrics.IncrCounter(metrics.EventsDuplicate)
		return Result{Status: StatusSuccess}
	}

	processed, err := c.ledger.IsProcessed(ctx, eventID)
	if err != nil {
		log.Error().Err(err).Str("event_id", env.ID).Msg("Ledger lookup failed")
		c.tracer.RecordError(txn, err)
		c.metrics.IncrCounter(metrics.EventsRetried)
		return Result{Status: StatusRetry}
	}
	if processed {
		log.Info().Str("event_id", env.ID).Str("service", c.handler.Name()).Msg("Event already processed, skipping")
		c.metrics.IncrCounter(metrics.EventsDuplicate)
		return Result{Status: StatusSuccess}
	}

	status := c.handler.Handle(ctx, eventID, env)

	switch status {
	case StatusSuccess:
		c.metrics.IncrCounter(metrics.EventsProcessed)
		if c.cache != nil {
			c.cache.MarkSeen(ctx, eventID, cacheTTL)
		}
	case StatusRetry:
		c.metrics.IncrCounter(metrics.EventsRetried)
	case StatusDrop:
		c.metrics.IncrCounter(metrics.EventsDropped)
	}

	return Result{Status: status}
}
