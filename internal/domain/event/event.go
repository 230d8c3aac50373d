package event

import (
	"time"

	"github.com/google/uuid"
)

// Event represents a committed change to a request or liquidation
type Event struct {
	ID            string                 `json:"id"`
	Type          Type                   `json:"type"`
	AggregateType string                 `json:"aggregate_type"`
	AggregateID   string                 `json:"aggregate_id"`
	Version       int                    `json:"version"`
	Actor         string                 `json:"actor,omitempty"`
	Payload       map[string]interface{} `json:"payload"`
	Timestamp     time.Time              `json:"timestamp"`
	CorrelationID string                 `json:"correlation_id"`
}

// NewEvent creates a new domain event with auto-generated ID and timestamp
func NewEvent(eventType Type, aggregateType, aggregateID string, version int, payload map[string]interface{}) *Event {
	return NewEventWithCorrelation(eventType, aggregateType, aggregateID, version, payload, uuid.NewString())
}

// NewEventWithCorrelation creates an event linked to a correlation chain,
// e.g. the liquidation opened by an approval
func NewEventWithCorrelation(eventType Type, aggregateType, aggregateID string, version int, payload map[string]interface{}, correlationID string) *Event {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	return &Event{
		ID:            uuid.NewString(),
		Type:          eventType,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Version:       version,
		Payload:       payload,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
	}
}

// WithActor returns a copy attributed to actor
func (e *Event) WithActor(actor string) *Event {
	out := e.clone()
	out.Actor = actor
	return out
}

// WithPayload returns a new Event with an added payload key-value pair (immutable operation)
func (e *Event) WithPayload(key string, value interface{}) *Event {
	out := e.clone()
	out.Payload[key] = value
	return out
}

func (e *Event) clone() *Event {
	payload := make(map[string]interface{}, len(e.Payload)+1)
	for k, v := range e.Payload {
		payload[k] = v
	}
	out := *e
	out.Payload = payload
	return &out
}

// GetPayloadString retrieves a string value from the payload
func (e *Event) GetPayloadString(key string) string {
	if val, ok := e.Payload[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

// RoutingKey is the broker routing key, e.g. "viaticos.request.approved"
func (e *Event) RoutingKey(prefix string) string {
	if prefix == "" {
		return string(e.Type)
	}
	return prefix + "." + string(e.Type)
}
