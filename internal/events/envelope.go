package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Topic names on the broker
const (
	TopicTaskEvents  = "task-events"
	TopicTaskUpdates = "task-updates"
	TopicReminders   = "reminders"
)

// Envelope is the CloudEvents 1.0 wrapper around every published payload.
// The id is assigned once at publish time and is the sole deduplication key
// on the consumer side.
type Envelope struct {
	ID              string          `json:"id"`
	Source          string          `json:"source"`
	Type            string          `json:"type"`
	Data            json.RawMessage `json:"data"`
	DataContentType string          `json:"datacontenttype"`
	SpecVersion     string          `json:"specversion"`
	Time            time.Time       `json:"time"`
}

// NewEnvelope wraps a payload in a fresh envelope. The payload must be
// JSON-serializable; a marshalling failure is a programming error surfaced
// to the caller.
func NewEnvelope(source, eventType string, payload interface{}) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal event payload")
	}

	return &Envelope{
		ID:              uuid.New().String(),
		Source:          source,
		Type:            eventType,
		Data:            data,
		DataContentType: "application/json",
		SpecVersion:     "1.0",
		Time:            time.Now().UTC(),
	}, nil
}

// DecodeEnvelope parses an inbound envelope body. The payload stays raw;
// topic-specific decoding happens in the consumer.
func DecodeEnvelope(body []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, errors.Wrap(err, "failed to decode event envelope")
	}
	return &env, nil
}

// EventID returns the envelope id parsed as a UUID. An absent or malformed
// id means the event can never be deduplicated and must be dropped.
func (e *Envelope) EventID() (uuid.UUID, error) {
	if e.ID == "" {
		return uuid.Nil, errors.New("envelope has no id")
	}
	id, err := uuid.Parse(e.ID)
	if err != nil {
		return uuid.Nil, errors.Wrap(err, "envelope id is not a valid uuid")
	}
	return id, nil
}
