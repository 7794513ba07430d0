package telemetry

import (
	"context"
	"log"
	"time"

	"chat-sync/internal/rabbitmq"
)

// Event types emitted on the chat lifecycle exchange.
const (
	EventMessageSent        = "message_sent"
	EventSendFailed         = "send_failed"
	EventConversationRead   = "conversation_read"
	EventSubscriptionOpened = "subscription_opened"
	EventSubscriptionClosed = "subscription_closed"
)

// Envelope is the wire format of one chat lifecycle event.
type Envelope struct {
	SchemaVersion int            `json:"schema_version"`
	EventType     string         `json:"event_type"`
	OccurredAt    string         `json:"occurred_at"`
	Service       string         `json:"service"`
	Environment   string         `json:"environment"`
	RequestID     string         `json:"request_id,omitempty"`
	UserID        string         `json:"user_id,omitempty"`
	Payload       map[string]any `json:"payload,omitempty"`
}

// Emitter publishes chat lifecycle events. A nil Emitter is inert, so callers
// never have to guard their emit calls.
type Emitter struct {
	publisher   rabbitmq.Publisher
	routingKey  string
	service     string
	environment string
}

// NewEmitter builds an Emitter on top of publisher.
func NewEmitter(publisher rabbitmq.Publisher, routingKey, service, environment string) *Emitter {
	return &Emitter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
	}
}

// Emit publishes one event. Failures are logged and swallowed: telemetry
// never blocks or fails a chat operation.
func (e *Emitter) Emit(ctx context.Context, eventType, requestID, userID string, payload map[string]any) {
	if e == nil || e.publisher == nil {
		return
	}

	envelope := Envelope{
		SchemaVersion: 1,
		EventType:     eventType,
		OccurredAt:    time.Now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		RequestID:     requestID,
		UserID:        userID,
		Payload:       payload,
	}

	if err := e.publisher.Publish(ctx, e.routingKey, envelope); err != nil {
		log.Printf("telemetry publish failed: event_type=%s err=%v", eventType, err)
	}
}
