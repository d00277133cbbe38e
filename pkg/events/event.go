package events

import (
	"context"
	"encoding/json"
	"time"
)

// Event is something the billing core announces to the rest of the platform,
// e.g. a referral payout request after a paid activation.
type Event interface {
	EventType() string
	Payload() map[string]interface{}
	Timestamp() time.Time
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

type BaseEvent struct {
	Type       string
	Data       map[string]interface{}
	OccurredAt time.Time
}

func (e BaseEvent) EventType() string              { return e.Type }
func (e BaseEvent) Payload() map[string]interface{} { return e.Data }
func (e BaseEvent) Timestamp() time.Time            { return e.OccurredAt }

// DedupKey is the payload key publishers use as the message id, so a
// re-published event is dropped by the bus instead of delivered twice.
const DedupKey = "dedup_id"

// Subject is the bus subject an event type is published on.
func Subject(eventType string) string {
	return "billing." + eventType
}

// DedupID returns the event's dedup id, or "" when it carries none.
func DedupID(event Event) string {
	id, _ := event.Payload()[DedupKey].(string)
	return id
}

// Envelope is the wire form shared by every publisher.
type Envelope struct {
	Type       string                 `json:"type"`
	OccurredAt time.Time              `json:"occurred_at"`
	Payload    map[string]interface{} `json:"payload"`
}

func Encode(event Event) ([]byte, error) {
	return json.Marshal(Envelope{
		Type:       event.EventType(),
		OccurredAt: event.Timestamp().UTC(),
		Payload:    event.Payload(),
	})
}

func Decode(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	return &env, nil
}
