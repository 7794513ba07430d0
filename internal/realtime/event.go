package realtime

import (
	"encoding/json"
	"fmt"

	"chat-sync/internal/models"
)

// wireEvent is the raw change-feed payload. It is decoded and validated
// exactly once, here at the subscription boundary.
type wireEvent struct {
	Kind   models.EventKind `json:"kind"`
	Record models.Message   `json:"record"`
}

// ParseEvent validates a raw change-feed payload into a tagged event.
func ParseEvent(raw []byte) (models.Event, error) {
	var we wireEvent
	if err := json.Unmarshal(raw, &we); err != nil {
		return models.Event{}, fmt.Errorf("realtime: malformed event: %w", err)
	}
	switch we.Kind {
	case models.EventInsert, models.EventUpdate:
	default:
		return models.Event{}, fmt.Errorf("realtime: unknown event kind %q", we.Kind)
	}
	if we.Record.SenderID == "" || we.Record.ReceiverID == "" {
		return models.Event{}, fmt.Errorf("realtime: event record missing participants")
	}
	return models.Event{Kind: we.Kind, Message: we.Record}, nil
}
